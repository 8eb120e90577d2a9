// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"errors"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/kisaan-market/kisaan/app/dto"
	"github.com/kisaan-market/kisaan/app/services"
	"github.com/kisaan-market/kisaan/models"
)

// Locals keys set by Authenticate
const (
	LocalAccountID   = "account_id"
	LocalRole        = "role"
	LocalTokenID     = "token_id"
	LocalTokenClaims = "token_claims"
	LocalAccessToken = "access_token"
)

// StreamTokenQueryParam carries the access token for clients that cannot set
// headers, such as a browser EventSource.
const StreamTokenQueryParam = "access_token"

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

// Authenticate validates the bearer access token in the Authorization header
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return m.authenticate(false)
}

// StreamAuthenticate behaves like Authenticate but also accepts the token
// from the access_token query parameter.
func (m *AuthMiddleware) StreamAuthenticate() fiber.Handler {
	return m.authenticate(true)
}

func (m *AuthMiddleware) authenticate(allowQuery bool) fiber.Handler {
	return func(c fiber.Ctx) error {
		token, code, message := bearerToken(c)
		if token == "" && allowQuery {
			if q := strings.TrimSpace(c.Query(StreamTokenQueryParam)); q != "" {
				token = q
			}
		}
		if token == "" {
			return unauthorizedResponse(c, message, code)
		}

		// ValidateToken already checks for revocation
		claims, err := m.tokenService.ValidateToken(token)
		if err != nil {
			code, message := tokenErrorDetail(err)
			return unauthorizedResponse(c, message, code)
		}
		if claims.TokenType != services.TokenTypeAccess {
			return unauthorizedResponse(c, "Refresh tokens cannot be used to access the API", "TOKEN_TYPE_INVALID")
		}

		c.Locals(LocalAccountID, claims.AccountID)
		c.Locals(LocalRole, claims.Role)
		c.Locals(LocalTokenID, claims.TokenID)
		c.Locals(LocalTokenClaims, claims)
		c.Locals(LocalAccessToken, token)

		return c.Next()
	}
}

// RequireRole rejects requests whose token role is not one of roles. The
// flows re-check the stored role, so this only stops obviously misrouted calls.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c fiber.Ctx) error {
		role, ok := GetRoleFromContext(c)
		if !ok {
			return unauthorizedResponse(c, "Authentication required", "AUTHENTICATION_REQUIRED")
		}
		if !slices.Contains(roles, role) {
			return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
				Success: false,
				Message: "Your role is not allowed to perform this action",
				Error:   dto.ErrorDetail{Code: "ROLE_NOT_ALLOWED"},
			})
		}
		return c.Next()
	}
}

func bearerToken(c fiber.Ctx) (token, code, message string) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", "MISSING_AUTHORIZATION_HEADER", "Authorization header is required"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "INVALID_AUTHORIZATION_FORMAT", "Invalid authorization header format. Expected 'Bearer <token>'"
	}
	token = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "MISSING_ACCESS_TOKEN", "Access token is required"
	}
	return token, "", ""
}

func tokenErrorDetail(err error) (code, message string) {
	switch {
	case errors.Is(err, services.ErrTokenExpired):
		return "TOKEN_EXPIRED", "Access token has expired"
	case errors.Is(err, services.ErrTokenRevoked):
		return "TOKEN_REVOKED", "Access token has been revoked"
	case errors.Is(err, services.ErrTokenInvalid):
		return "TOKEN_INVALID", "Invalid access token"
	default:
		return "TOKEN_VALIDATION_FAILED", "Token validation failed"
	}
}

func unauthorizedResponse(c fiber.Ctx, message, code string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: code},
	})
}

// GetAccountIDFromContext extracts the account ID from the request context
func GetAccountIDFromContext(c fiber.Ctx) (uint, bool) {
	accountID, ok := c.Locals(LocalAccountID).(uint)
	return accountID, ok
}

// GetRoleFromContext extracts the token role from the request context
func GetRoleFromContext(c fiber.Ctx) (models.Role, bool) {
	role, ok := c.Locals(LocalRole).(models.Role)
	return role, ok
}

// GetTokenClaimsFromContext extracts token claims from the request context
func GetTokenClaimsFromContext(c fiber.Ctx) (*services.TokenClaims, bool) {
	claims, ok := c.Locals(LocalTokenClaims).(*services.TokenClaims)
	return claims, ok
}

// GetAccessTokenFromContext returns the raw token Authenticate accepted
func GetAccessTokenFromContext(c fiber.Ctx) (string, bool) {
	token, ok := c.Locals(LocalAccessToken).(string)
	return token, ok
}
