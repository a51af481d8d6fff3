// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"errors"
	"strings"

	"github.com/amirphl/nexus-communicator/app/dto"
	"github.com/amirphl/nexus-communicator/app/services"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/gofiber/fiber/v3"
)

const (
	localUserID      = "user_id"
	localTokenID     = "token_id"
	localTokenClaims = "token_claims"
	localRawToken    = "raw_token"
	localRequestID   = "request_id"
)

// AuthMiddleware handles JWT token validation for protected endpoints
type AuthMiddleware struct {
	tokenService services.TokenService
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenService services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

func unauthorized(c fiber.Ctx, message, code string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   message,
		Code:    code,
	})
}

// ExtractToken returns the bearer token of the request, falling back to the
// session cookie used by browser clients
func ExtractToken(c fiber.Ctx) (string, string) {
	authHeader := c.Get("Authorization")
	if authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", "INVALID_AUTHORIZATION_FORMAT"
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			return "", "MISSING_ACCESS_TOKEN"
		}
		return token, ""
	}

	if cookie := c.Cookies(utils.SessionCookieName); cookie != "" {
		return cookie, ""
	}
	return "", "MISSING_AUTHORIZATION"
}

// Authenticate is the middleware function that validates JWT tokens
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		token, problem := ExtractToken(c)
		switch problem {
		case "":
		case "INVALID_AUTHORIZATION_FORMAT":
			return unauthorized(c, "Invalid authorization header format. Expected 'Bearer <token>'", problem)
		case "MISSING_ACCESS_TOKEN":
			return unauthorized(c, "Access token is required", problem)
		default:
			return unauthorized(c, "Authentication required", problem)
		}

		// Validate the token (this already checks for revocation)
		claims, err := m.tokenService.ValidateToken(c.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTokenExpired):
				return unauthorized(c, "Access token has expired", "TOKEN_EXPIRED")
			case errors.Is(err, services.ErrTokenRevoked):
				return unauthorized(c, "Access token has been revoked", "TOKEN_REVOKED")
			case errors.Is(err, services.ErrTokenInvalid):
				return unauthorized(c, "Invalid access token", "TOKEN_INVALID")
			default:
				return unauthorized(c, "Token validation failed", "TOKEN_VALIDATION_FAILED")
			}
		}
		if claims.TokenType != services.TokenTypeAccess {
			return unauthorized(c, "Refresh tokens cannot be used for API access", "TOKEN_INVALID")
		}

		// Store user information in context for downstream handlers
		c.Locals(localUserID, claims.UserID)
		c.Locals(localTokenID, claims.TokenID)
		c.Locals(localTokenClaims, claims)
		c.Locals(localRawToken, token)

		if requestID := c.Get("X-Request-ID"); requestID != "" {
			c.Locals(localRequestID, requestID)
		}

		return c.Next()
	}
}

// GetUserIDFromContext extracts the authenticated user ID from the request context
func GetUserIDFromContext(c fiber.Ctx) (uint, bool) {
	userID, ok := c.Locals(localUserID).(uint)
	return userID, ok && userID != 0
}

// GetTokenClaimsFromContext extracts token claims from the request context
func GetTokenClaimsFromContext(c fiber.Ctx) (*services.TokenClaims, bool) {
	claims, ok := c.Locals(localTokenClaims).(*services.TokenClaims)
	return claims, ok
}

// GetRawTokenFromContext returns the token the request was authenticated with
func GetRawTokenFromContext(c fiber.Ctx) string {
	token, _ := c.Locals(localRawToken).(string)
	return token
}
