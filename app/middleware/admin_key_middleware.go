package middleware

import (
	"github.com/amirphl/kartu-tanda-boga/app/dto"
	"github.com/gofiber/fiber/v3"
	"golang.org/x/crypto/bcrypt"
)

// DefaultAdminKeyHeader carries the admin API key when no header is configured
const DefaultAdminKeyHeader = "X-Admin-Key"

// AdminKey checks the admin key header against a bcrypt hash. With an empty hash
// every admin request is rejected.
func AdminKey(header, keyHash string) fiber.Handler {
	if header == "" {
		header = DefaultAdminKeyHeader
	}
	hash := []byte(keyHash)
	return func(c fiber.Ctx) error {
		key := c.Get(header)
		if key == "" {
			return unauthorized(c, "Admin key is required", "MISSING_ADMIN_KEY")
		}
		if len(hash) == 0 || bcrypt.CompareHashAndPassword(hash, []byte(key)) != nil {
			return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
				Success: false,
				Message: "Invalid admin key",
				Error:   dto.ErrorDetail{Code: "INVALID_ADMIN_KEY"},
			})
		}
		c.Locals("admin", true)
		return c.Next()
	}
}
