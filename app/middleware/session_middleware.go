// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"errors"
	"strings"

	"github.com/amirphl/kartu-tanda-boga/app/dto"
	"github.com/amirphl/kartu-tanda-boga/app/services"
	"github.com/amirphl/kartu-tanda-boga/utils"
	"github.com/gofiber/fiber/v3"
)

// SessionTokenHeader carries the session token for clients that cannot set Authorization
const SessionTokenHeader = "X-Session-Token"

// SessionMiddleware binds requests to a wizard session through its signed token
type SessionMiddleware struct {
	tokenService services.TokenService
}

// NewSessionMiddleware creates a new session middleware
func NewSessionMiddleware(tokenService services.TokenService) *SessionMiddleware {
	return &SessionMiddleware{
		tokenService: tokenService,
	}
}

// extractToken returns the token and whether a credential was presented at all.
func extractToken(c fiber.Ctx) (string, bool, error) {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", true, errors.New("invalid authorization header format")
		}
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")), true, nil
	}
	if token := strings.TrimSpace(c.Get(SessionTokenHeader)); token != "" {
		return token, true, nil
	}
	return "", false, nil
}

func unauthorized(c fiber.Ctx, message, code string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: code,
		},
	})
}

func storeRequestID(c fiber.Ctx) {
	if _, ok := c.Locals(utils.LocalRequestID).(string); ok {
		return
	}
	if requestID := c.Get("X-Request-ID"); requestID != "" {
		c.Locals(utils.LocalRequestID, requestID)
	}
}

// RequireSession rejects requests without a valid session token
func (m *SessionMiddleware) RequireSession() fiber.Handler {
	return func(c fiber.Ctx) error {
		token, presented, err := extractToken(c)
		if !presented {
			return unauthorized(c, "Session token is required", "MISSING_SESSION_TOKEN")
		}
		if err != nil {
			return unauthorized(c, "Invalid authorization header format. Expected 'Bearer <token>'", "INVALID_AUTHORIZATION_FORMAT")
		}
		if token == "" {
			return unauthorized(c, "Session token is required", "MISSING_SESSION_TOKEN")
		}

		claims, err := m.tokenService.ValidateSessionToken(token)
		if err != nil {
			if errors.Is(err, services.ErrTokenExpired) {
				return unauthorized(c, "Session token has expired", "TOKEN_EXPIRED")
			}
			if errors.Is(err, services.ErrTokenInvalid) {
				return unauthorized(c, "Invalid session token", "TOKEN_INVALID")
			}
			return unauthorized(c, "Token validation failed", "TOKEN_VALIDATION_FAILED")
		}

		c.Locals(utils.LocalSessionID, claims.SessionID)
		c.Locals("token_claims", claims)
		storeRequestID(c)

		return c.Next()
	}
}

// OptionalSession binds the session when a valid token is present and otherwise lets
// the request through, so a new session can be started.
func (m *SessionMiddleware) OptionalSession() fiber.Handler {
	return func(c fiber.Ctx) error {
		storeRequestID(c)

		token, presented, err := extractToken(c)
		if !presented || err != nil || token == "" {
			return c.Next()
		}

		claims, err := m.tokenService.ValidateSessionToken(token)
		if err != nil {
			return c.Next()
		}

		c.Locals(utils.LocalSessionID, claims.SessionID)
		c.Locals("token_claims", claims)
		return c.Next()
	}
}
