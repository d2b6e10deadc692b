// Package main provides the main entry point for the Kartu Tanda Boga membership card service
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/kartu-tanda-boga/app/handlers"
	"github.com/amirphl/kartu-tanda-boga/app/middleware"
	"github.com/amirphl/kartu-tanda-boga/app/router"
	"github.com/amirphl/kartu-tanda-boga/app/services"
	businessflow "github.com/amirphl/kartu-tanda-boga/business_flow"
	"github.com/amirphl/kartu-tanda-boga/config"
	"github.com/amirphl/kartu-tanda-boga/media"
	"github.com/amirphl/kartu-tanda-boga/models"
	"github.com/amirphl/kartu-tanda-boga/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	closeLog := setupLogging(cfg.Logging)
	defer func() { _ = closeLog() }()

	log.Printf("Starting Kartu Tanda Boga %s (%s, commit %s)...", cfg.Deployment.Version, cfg.Deployment.Environment, cfg.Deployment.CommitHash)

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	// Background workers stop after the server so in-flight requests can still persist
	for _, fn := range app.stopFuncs {
		fn()
	}

	log.Println("Server stopped")
}

// setupLogging routes the standard logger to stdout, a rotated file, or both.
func setupLogging(cfg config.LoggingConfig) func() error {
	log.SetFlags(log.LstdFlags | log.LUTC)

	if cfg.Output == "stdout" || cfg.FilePath == "" {
		log.SetOutput(os.Stdout)
		return func() error { return nil }
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	if cfg.Output == "both" {
		log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	} else {
		log.SetOutput(rotator)
	}
	return rotator.Close
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(log.Default(), gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&models.MembershipRecord{}); err != nil {
			return nil, fmt.Errorf("failed to migrate membership records: %w", err)
		}
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Cache client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Session store: Redis when configured, otherwise process memory
	var store repository.SessionStore
	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		store = repository.NewRedisSessionStore(rc)
		stopMonitor := startCacheHealthMonitor(context.Background(), rc, 30*time.Second)
		stopFuncs = append(stopFuncs, stopMonitor, func() { _ = rc.Close() })
	} else {
		memStore := repository.NewMemorySessionStore()
		store = memStore
		stopFuncs = append(stopFuncs, memStore.Close)
		log.Println("Redis disabled, wizard sessions are kept in memory")
	}

	var recordRepo repository.MembershipRecordRepository
	if cfg.Database.Enabled {
		db, err := initializeDatabase(cfg.Database)
		if err != nil {
			return nil, err
		}
		recordRepo = repository.NewMembershipRecordRepository(db)
	} else {
		log.Println("Database disabled, membership records are not kept")
	}

	tokenService, err := services.NewTokenService(cfg.JWT.TokenTTL, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	membershipClient := services.NewMembershipClient(
		cfg.Membership.CatalogURL,
		cfg.Membership.CreateURL,
		cfg.Membership.APIKeyHeader,
		cfg.Membership.APIKey,
		cfg.Membership.Timeout,
	)
	imageFetcher := services.NewImageFetcher(
		cfg.Media.ProxyTimeout,
		cfg.Media.ProxyUserAgent,
		cfg.Media.ProxyMaxBytes,
		cfg.Media.ProxyAllowPrivateHost,
	)

	catalog, err := businessflow.NewCardCatalog(membershipClient, cfg.Membership.CatalogTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize card catalog: %w", err)
	}

	bridge := businessflow.NewSessionBridge(store, cfg.Session.KeyPrefix, cfg.Session.RecordTTL, cfg.Session.PersistDebounce)
	registry := businessflow.NewWizardRegistry(businessflow.WizardDeps{
		Validator:  businessflow.NewDetailsValidator(nil),
		Normalizer: media.NewNormalizer(cfg.Media.MaxWidth, cfg.Media.MaxHeight, cfg.Media.Quality),
		Submitter:  membershipClient,
	}, bridge, catalog, cfg.Session.IdleTimeout)
	registry.Start(cfg.Session.CleanupInterval)

	// Stopped in reverse: wizards first, then pending writes are flushed
	stopFuncs = append([]func(){registry.Stop, bridge.Close}, stopFuncs...)

	wizardFlow := businessflow.NewWizardFlow(registry, tokenService, catalog, imageFetcher, recordRepo, cfg.Media.CameraAttemptTimeout)
	reportFlow := businessflow.NewMembershipReportFlow(recordRepo)

	appRouter := router.NewFiberRouter(router.Options{
		AppName:          "Kartu Tanda Boga API",
		Version:          cfg.Deployment.Version,
		Environment:      cfg.Deployment.Environment,
		BodyLimit:        cfg.Server.BodyLimit,
		ReadTimeout:      cfg.Server.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		IdleTimeout:      cfg.Server.IdleTimeout,
		TrustedProxies:   cfg.Server.TrustedProxies,
		ProxyHeader:      cfg.Server.ProxyHeader,
		EnableCompress:   cfg.Server.EnableCompression,
		EnableAccessLog:  cfg.Logging.EnableAccessLog,
		AllowedOrigins:   cfg.Security.AllowedOrigins,
		AllowedMethods:   cfg.Security.AllowedMethods,
		AllowedHeaders:   cfg.Security.AllowedHeaders,
		AllowCredentials: cfg.Security.AllowCredentials,
		CORSMaxAge:       cfg.Security.CORSMaxAge,
		CSPPolicy:        cfg.Security.CSPPolicy,
		XFrameOptions:    cfg.Security.XFrameOptions,
		ReferrerPolicy:   cfg.Security.ReferrerPolicy,
		GlobalRateLimit:  cfg.Security.GlobalRateLimit,
		SubmitRateLimit:  cfg.Security.SubmitRateLimit,
		ProxyRateLimit:   cfg.Security.ProxyRateLimit,
		RateLimitWindow:  cfg.Security.RateLimitWindow,
		MetricsEnabled:   cfg.Metrics.Enabled,
		MetricsPath:      cfg.Metrics.Path,
		AdminKeyHeader:   cfg.Security.AdminAPIKeyHeader,
		AdminKeyHash:     cfg.Security.AdminAPIKeyHash,
	}, router.Handlers{
		Wizard:  handlers.NewWizardHandler(wizardFlow, int64(cfg.Media.MaxUploadBytes), cfg.Membership.Timeout+5*time.Second),
		Proxy:   handlers.NewProxyHandler(imageFetcher, cfg.Media.ProxyTimeout),
		Admin:   handlers.NewAdminMembershipHandler(reportFlow),
		Session: middleware.NewSessionMiddleware(tokenService),
	})

	fiberRouter := appRouter.(*router.FiberRouter)
	return &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}, nil
}
