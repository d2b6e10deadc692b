package handlers

import (
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/amirphl/kartu-tanda-boga/app/services"
	"github.com/gofiber/fiber/v3"
)

const defaultProxyContentType = "image/jpeg"

// ProxyHandlerInterface defines the contract for the image proxy
type ProxyHandlerInterface interface {
	ProxyImage(c fiber.Ctx) error
	Preflight(c fiber.Ctx) error
}

// ProxyHandler relays remote card images so browsers can draw them without CORS errors
type ProxyHandler struct {
	fetcher services.ImageFetcher
	timeout time.Duration
	now     func() time.Time
}

func NewProxyHandler(fetcher services.ImageFetcher, timeout time.Duration) *ProxyHandler {
	return &ProxyHandler{fetcher: fetcher, timeout: timeout, now: time.Now}
}

func setProxyCORSHeaders(c fiber.Ctx) {
	c.Set("Access-Control-Allow-Origin", "*")
	c.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	c.Set("Access-Control-Allow-Headers", "Content-Type")
}

// Preflight answers CORS preflight requests for the proxy
// @Summary Image proxy preflight
// @Tags Proxy
// @Success 204
// @Router /api/proxy-image [options]
func (h *ProxyHandler) Preflight(c fiber.Ctx) error {
	setProxyCORSHeaders(c)
	return c.SendStatus(fiber.StatusNoContent)
}

// ProxyImage fetches the image named by the url query parameter and relays it
// @Summary Proxy a remote image
// @Description Fetches an http or https image and returns it with permissive CORS and cache headers.
// @Tags Proxy
// @Produce image/jpeg,image/png,image/webp
// @Param url query string true "Absolute image URL"
// @Success 200 {string} string "Image bytes"
// @Failure 400 {object} map[string]string "Image URL is required"
// @Failure 403 {object} map[string]string "Host not allowed"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /api/proxy-image [get]
func (h *ProxyHandler) ProxyImage(c fiber.Ctx) error {
	rawURL := c.Query("url")
	if rawURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Image URL is required"})
	}

	ctx, cancel := createRequestContext(c, "proxy_image", h.timeout)
	defer cancel()

	img, err := h.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return h.proxyError(c, rawURL, err)
	}

	contentType := img.ContentType
	if contentType == "" {
		contentType = defaultProxyContentType
	}

	setProxyCORSHeaders(c)
	c.Set("Content-Type", contentType)
	c.Set("Cache-Control", "public, max-age=300, must-revalidate")
	c.Set("ETag", `"`+base64.StdEncoding.EncodeToString([]byte(rawURL))+`"`)
	c.Set("Last-Modified", h.now().UTC().Format(http.TimeFormat))
	return c.Status(fiber.StatusOK).Send(img.Data)
}

func (h *ProxyHandler) proxyError(c fiber.Ctx, rawURL string, err error) error {
	var upstream *services.UpstreamStatusError
	switch {
	case errors.As(err, &upstream):
		return c.Status(upstream.Status).JSON(fiber.Map{"error": "Failed to fetch image: " + strconv.Itoa(upstream.Status)})
	case errors.Is(err, services.ErrImageURLRequired):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Image URL is required"})
	case errors.Is(err, services.ErrImageURLInvalid):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid image URL"})
	case errors.Is(err, services.ErrImageHostBlocked):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Image host is not allowed"})
	case errors.Is(err, services.ErrImageTooLarge):
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "Image is too large"})
	}

	log.Printf("image proxy failed for %s: %v", rawURL, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "Internal server error",
		"details": err.Error(),
	})
}
