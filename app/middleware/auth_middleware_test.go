package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kisaan-market/kisaan/app/dto"
	"github.com/kisaan-market/kisaan/app/services"
	"github.com/kisaan-market/kisaan/models"
)

func newTestApp(t *testing.T) (*fiber.App, services.TokenService) {
	t.Helper()
	tokens, err := services.NewTokenService(15*time.Minute, time.Hour, "kisaan", "kisaan-api", false, "", "", "middleware-test-secret")
	require.NoError(t, err)

	auth := NewAuthMiddleware(tokens)
	whoami := func(c fiber.Ctx) error {
		id, _ := GetAccountIDFromContext(c)
		role, _ := GetRoleFromContext(c)
		return c.JSON(fiber.Map{"account_id": id, "role": role})
	}

	app := fiber.New()
	app.Get("/me", auth.Authenticate(), whoami)
	app.Get("/stream", auth.StreamAuthenticate(), whoami)
	app.Get("/farmers-only", auth.Authenticate(), RequireRole(models.RoleFarmer), whoami)
	return app, tokens
}

func call(t *testing.T, app *fiber.App, path, bearer string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	body := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func errorCodeOf(body map[string]any) string {
	detail, _ := body["error"].(map[string]any)
	code, _ := detail["code"].(string)
	return code
}

func TestAuthenticate(t *testing.T) {
	app, tokens := newTestApp(t)
	access, refresh, err := tokens.GenerateTokens(42, models.RoleCustomer)
	require.NoError(t, err)

	t.Run("MissingHeader", func(t *testing.T) {
		status, body := call(t, app, "/me", "")
		assert.Equal(t, fiber.StatusUnauthorized, status)
		assert.Equal(t, "MISSING_AUTHORIZATION_HEADER", errorCodeOf(body))
	})

	t.Run("WrongScheme", func(t *testing.T) {
		status, body := call(t, app, "/me", "Token "+access)
		assert.Equal(t, fiber.StatusUnauthorized, status)
		assert.Equal(t, "INVALID_AUTHORIZATION_FORMAT", errorCodeOf(body))
	})

	t.Run("GarbageToken", func(t *testing.T) {
		status, body := call(t, app, "/me", "Bearer not-a-jwt")
		assert.Equal(t, fiber.StatusUnauthorized, status)
		assert.Equal(t, "TOKEN_INVALID", errorCodeOf(body))
	})

	t.Run("RefreshTokenRejected", func(t *testing.T) {
		status, body := call(t, app, "/me", "Bearer "+refresh)
		assert.Equal(t, fiber.StatusUnauthorized, status)
		assert.Equal(t, "TOKEN_TYPE_INVALID", errorCodeOf(body))
	})

	t.Run("ValidAccessToken", func(t *testing.T) {
		status, body := call(t, app, "/me", "Bearer "+access)
		require.Equal(t, fiber.StatusOK, status)
		assert.EqualValues(t, 42, body["account_id"])
		assert.Equal(t, string(models.RoleCustomer), body["role"])
	})

	t.Run("QueryTokenIgnoredOutsideStream", func(t *testing.T) {
		status, _ := call(t, app, "/me?"+StreamTokenQueryParam+"="+access, "")
		assert.Equal(t, fiber.StatusUnauthorized, status)
	})

	t.Run("RevokedToken", func(t *testing.T) {
		revocable, _, err := tokens.GenerateTokens(43, models.RoleCustomer)
		require.NoError(t, err)
		require.NoError(t, tokens.RevokeToken(revocable))

		status, body := call(t, app, "/me", "Bearer "+revocable)
		assert.Equal(t, fiber.StatusUnauthorized, status)
		assert.Equal(t, "TOKEN_REVOKED", errorCodeOf(body))
	})
}

func TestStreamAuthenticate(t *testing.T) {
	app, tokens := newTestApp(t)
	access, _, err := tokens.GenerateTokens(9, models.RoleFarmer)
	require.NoError(t, err)

	t.Run("QueryToken", func(t *testing.T) {
		status, body := call(t, app, "/stream?"+StreamTokenQueryParam+"="+access, "")
		require.Equal(t, fiber.StatusOK, status)
		assert.EqualValues(t, 9, body["account_id"])
	})

	t.Run("HeaderStillWorks", func(t *testing.T) {
		status, _ := call(t, app, "/stream", "Bearer "+access)
		assert.Equal(t, fiber.StatusOK, status)
	})

	t.Run("NoToken", func(t *testing.T) {
		status, _ := call(t, app, "/stream", "")
		assert.Equal(t, fiber.StatusUnauthorized, status)
	})
}

func TestRequireRole(t *testing.T) {
	app, tokens := newTestApp(t)
	farmer, _, err := tokens.GenerateTokens(1, models.RoleFarmer)
	require.NoError(t, err)
	customer, _, err := tokens.GenerateTokens(2, models.RoleCustomer)
	require.NoError(t, err)

	status, _ := call(t, app, "/farmers-only", "Bearer "+farmer)
	assert.Equal(t, fiber.StatusOK, status)

	status, body := call(t, app, "/farmers-only", "Bearer "+customer)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "ROLE_NOT_ALLOWED", errorCodeOf(body))

	var envelope dto.APIResponse
	raw, _ := json.Marshal(body)
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.False(t, envelope.Success)
}
