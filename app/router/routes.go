// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/amirphl/kartu-tanda-boga/app/dto"
	"github.com/amirphl/kartu-tanda-boga/app/handlers"
	"github.com/amirphl/kartu-tanda-boga/app/middleware"
	"github.com/amirphl/kartu-tanda-boga/docs"
	"github.com/amirphl/kartu-tanda-boga/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggo/swag"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// Options carries the server and security settings the router needs
type Options struct {
	AppName         string
	Version         string
	Environment     string
	BodyLimit       int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	TrustedProxies  []string
	ProxyHeader     string
	EnableCompress  bool
	EnableAccessLog bool

	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	CORSMaxAge       int
	CSPPolicy        string
	XFrameOptions    string
	ReferrerPolicy   string

	GlobalRateLimit int
	SubmitRateLimit int
	ProxyRateLimit  int
	RateLimitWindow time.Duration

	MetricsEnabled bool
	MetricsPath    string

	AdminKeyHeader string
	AdminKeyHash   string
}

// Handlers groups the HTTP handlers mounted by the router
type Handlers struct {
	Wizard  handlers.WizardHandlerInterface
	Proxy   handlers.ProxyHandlerInterface
	Admin   handlers.AdminMembershipHandlerInterface
	Session *middleware.SessionMiddleware
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app      *fiber.App
	opts     Options
	handlers Handlers
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(opts Options, h Handlers) Router {
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = time.Minute
	}

	app := fiber.New(fiber.Config{
		AppName:      opts.AppName,
		ServerHeader: "Kartu-Tanda-Boga",
		ErrorHandler: errorHandler,
		BodyLimit:    opts.BodyLimit,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		ProxyHeader:  opts.ProxyHeader,
		TrustProxy:   len(opts.TrustedProxies) > 0,
		TrustProxyConfig: fiber.TrustProxyConfig{
			Proxies: opts.TrustedProxies,
		},
	})

	return &FiberRouter{
		app:      app,
		opts:     opts,
		handlers: h,
	}
}

func rateLimited(c fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
		Success: false,
		Message: "Too many requests. Please try again later.",
		Error: dto.ErrorDetail{
			Code: "RATE_LIMIT_EXCEEDED",
		},
	})
}

func newLimiter(max int, window time.Duration, keyPrefix string) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c fiber.Ctx) string {
			return keyPrefix + c.IP()
		},
		LimitReached: rateLimited,
	})
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	r.setupMiddleware()

	r.app.Get("/health", r.healthCheck)
	if r.opts.MetricsEnabled {
		r.app.Get(r.opts.MetricsPath, adaptor.HTTPHandler(promhttp.Handler()))
	}

	// Image proxy, under both paths the card pages use
	proxyLimit := newLimiter(r.opts.ProxyRateLimit, r.opts.RateLimitWindow, "proxy:")
	for _, path := range []string{"/proxy-image", "/api/proxy-image"} {
		r.app.Options(path, r.handlers.Proxy.Preflight)
		r.app.Get(path, proxyLimit, r.handlers.Proxy.ProxyImage)
	}

	api := r.app.Group("/api/v1")
	api.Get("/health", r.healthCheck)

	if r.opts.Environment == "development" || r.opts.Environment == "local" {
		api.Get("/docs", r.getAPIDocumentation)
		api.Get("/swagger.json", r.serveSwaggerJSON)
		log.Println("API documentation enabled for development")
	}

	api.Use(limiter.New(limiter.Config{
		Max:        r.opts.GlobalRateLimit,
		Expiration: r.opts.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: rateLimited,
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/api/v1/health"
		},
	}))

	wizard := api.Group("/wizard")
	wizard.Post("/sessions", r.handlers.Session.OptionalSession(), r.handlers.Wizard.StartSession)

	session := wizard.Group("", r.handlers.Session.RequireSession())
	session.Get("/state", r.handlers.Wizard.GetState)
	session.Put("/details", r.handlers.Wizard.UpdateDetails)
	session.Post("/details/next", r.handlers.Wizard.NextFromDetails)
	session.Post("/photo/upload", r.handlers.Wizard.UploadPhoto)
	session.Post("/photo/capture", r.handlers.Wizard.CapturePhoto)
	session.Post("/photo/next", r.handlers.Wizard.NextFromPhoto)
	session.Get("/cards", r.handlers.Wizard.ListCards)
	session.Post("/cards/move", r.handlers.Wizard.MoveCard)
	session.Post("/submit", newLimiter(r.opts.SubmitRateLimit, r.opts.RateLimitWindow, "submit:"), r.handlers.Wizard.Submit)
	session.Post("/back", r.handlers.Wizard.Back)
	session.Post("/back-to-form", r.handlers.Wizard.BackToForm)
	session.Post("/start-over", r.handlers.Wizard.StartOver)
	session.Get("/card/download", r.handlers.Wizard.DownloadCard)

	if r.handlers.Admin != nil {
		admin := api.Group("/admin", middleware.AdminKey(r.opts.AdminKeyHeader, r.opts.AdminKeyHash))
		admin.Get("/memberships", r.handlers.Admin.ListMemberships)
		admin.Get("/memberships/export", r.handlers.Admin.ExportMemberships)
	}

	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: fiber.HeaderXRequestID,
		Generator: func() string {
			return generateRequestID()
		},
	}))
	r.app.Use(func(c fiber.Ctx) error {
		c.Locals(utils.LocalRequestID, c.GetRespHeader(fiber.HeaderXRequestID))
		return c.Next()
	})

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				c.GetRespHeader(fiber.HeaderXRequestID),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))

	r.app.Use(middleware.Metrics())

	// The card pages draw photos and proxied card art onto canvases, so resources must be
	// loadable cross-origin.
	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             r.opts.XFrameOptions,
		HSTSMaxAge:                31536000,
		ContentSecurityPolicy:     r.opts.CSPPolicy,
		ReferrerPolicy:            r.opts.ReferrerPolicy,
		CrossOriginEmbedderPolicy: "unsafe-none",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "cross-origin",
		OriginAgentCluster:        "?1",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	// The proxy answers CORS itself with a wildcard origin.
	r.app.Use(cors.New(cors.Config{
		AllowOrigins:     r.opts.AllowedOrigins,
		AllowMethods:     r.opts.AllowedMethods,
		AllowHeaders:     append(r.opts.AllowedHeaders, fiber.HeaderXRequestID, r.opts.AdminKeyHeader),
		ExposeHeaders:    []string{fiber.HeaderXRequestID, fiber.HeaderContentDisposition},
		AllowCredentials: r.opts.AllowCredentials,
		MaxAge:           r.opts.CORSMaxAge,
		Next: func(c fiber.Ctx) bool {
			return isProxyPath(c.Path())
		},
	}))

	if r.opts.EnableCompress {
		r.app.Use(compress.New(compress.Config{
			Level: compress.LevelBestSpeed,
			Next: func(c fiber.Ctx) bool {
				// Images are already compressed
				return isProxyPath(c.Path()) || strings.HasSuffix(c.Path(), "/card/download")
			},
		}))
	}

	if r.opts.EnableAccessLog {
		r.app.Use(logger.New(logger.Config{
			Format:     `{"time":"${time}","pid":"${pid}","request_id":"${respHeader:X-Request-ID}","level":"info","method":"${method}","path":"${path}","protocol":"${protocol}","ip":"${ip}","user_agent":"${ua}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent},"referer":"${referer}"}` + "\n",
			TimeFormat: time.RFC3339,
			TimeZone:   "UTC",
			Next: func(c fiber.Ctx) bool {
				return c.Path() == "/health" || c.Path() == "/api/v1/health" || c.Path() == r.opts.MetricsPath
			},
		}))
	}
}

func isProxyPath(path string) bool {
	return path == "/proxy-image" || path == "/api/proxy-image"
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":    "ok",
			"timestamp": utils.UTCNow().Unix(),
			"version":   r.opts.Version,
			"service":   "kartu-tanda-boga-api",
		},
	})
}

func (r *FiberRouter) getAPIDocumentation(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "API documentation retrieved successfully",
		Data: fiber.Map{
			"title":       docs.SwaggerInfo.Title,
			"version":     docs.SwaggerInfo.Version,
			"description": docs.SwaggerInfo.Description,
			"endpoints":   GetRouteDocumentation(),
		},
	})
}

func (r *FiberRouter) serveSwaggerJSON(c fiber.Ctx) error {
	doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{
			Success: false,
			Message: "Failed to load Swagger documentation",
			Error: dto.ErrorDetail{
				Code: "SWAGGER_LOAD_ERROR",
			},
		})
	}

	c.Set("Content-Type", "application/json")
	return c.SendString(doc)
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
			},
		},
	})
}

// Global error handler
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	errorCode := "INTERNAL_ERROR"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		if code < fiber.StatusInternalServerError {
			message = e.Message
			errorCode = "REQUEST_ERROR"
		}
		if code == fiber.StatusRequestEntityTooLarge {
			errorCode = "FILE_TOO_LARGE"
		}
	}

	log.Printf("Error %d: %v", code, err)

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: errorCode,
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
			},
		},
	})
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// GetRouteDocumentation returns a short listing of the public endpoints
func GetRouteDocumentation() []map[string]any {
	return []map[string]any{
		{"method": "POST", "path": "/api/v1/wizard/sessions", "description": "Start a wizard session, or resume the one named by the token"},
		{"method": "GET", "path": "/api/v1/wizard/state", "description": "Current wizard state", "parameters": map[string]any{"include_photo": "bool (optional) - inline the photo as a data URI"}},
		{"method": "PUT", "path": "/api/v1/wizard/details", "description": "Patch name, phone, email and birthday"},
		{"method": "POST", "path": "/api/v1/wizard/details/next", "description": "Validate details and move to the photo step"},
		{"method": "POST", "path": "/api/v1/wizard/photo/upload", "description": "Upload a gallery photo (multipart field file)"},
		{"method": "POST", "path": "/api/v1/wizard/photo/capture", "description": "Capture from a camera frame (multipart field frame, facing, torch)"},
		{"method": "POST", "path": "/api/v1/wizard/photo/next", "description": "Move to card selection"},
		{"method": "GET", "path": "/api/v1/wizard/cards", "description": "Card catalog and carousel window"},
		{"method": "POST", "path": "/api/v1/wizard/cards/move", "description": "Move the carousel", "parameters": map[string]any{"direction": "string (required) - next|prev|select", "index": "number (select only)"}},
		{"method": "POST", "path": "/api/v1/wizard/submit", "description": "Create the membership"},
		{"method": "POST", "path": "/api/v1/wizard/back", "description": "Go back one step"},
		{"method": "POST", "path": "/api/v1/wizard/back-to-form", "description": "Drop the result and return to details"},
		{"method": "POST", "path": "/api/v1/wizard/start-over", "description": "Discard everything"},
		{"method": "GET", "path": "/api/v1/wizard/card/download", "description": "Download the membership card as PNG"},
		{"method": "GET", "path": "/api/proxy-image", "description": "Proxy a remote image", "parameters": map[string]any{"url": "string (required) - absolute http or https URL"}},
		{"method": "GET", "path": "/health", "description": "Health check endpoint"},
	}
}
