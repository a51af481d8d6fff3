package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/nexus-communicator/app/dto"
	"github.com/amirphl/nexus-communicator/app/services"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-test-secret-key-long-enough"

func newTokenService(t *testing.T, accessTTL time.Duration) services.TokenService {
	t.Helper()
	svc, err := services.NewTokenService(accessTTL, time.Hour, "nexus", "nexus", false, "", "", testSecret, services.NewMemoryRevocationStore())
	require.NoError(t, err)
	return svc
}

func newProtectedApp(svc services.TokenService) *fiber.App {
	app := fiber.New()
	app.Get("/private", NewAuthMiddleware(svc).Authenticate(), func(c fiber.Ctx) error {
		userID, ok := GetUserIDFromContext(c)
		if !ok {
			return c.SendStatus(fiber.StatusTeapot)
		}
		claims, _ := GetTokenClaimsFromContext(c)
		return c.JSON(fiber.Map{"user_id": userID, "token_id": claims.TokenID, "raw": GetRawTokenFromContext(c)})
	})
	return app
}

func call(t *testing.T, app *fiber.App, mutate func(*http.Request)) (int, dto.APIResponse, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	if mutate != nil {
		mutate(req)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	out := dto.APIResponse{}
	if code, ok := raw["code"].(string); ok {
		out.Code = code
	}
	return resp.StatusCode, out, raw
}

func TestExtractToken(t *testing.T) {
	cases := []struct {
		name      string
		header    string
		cookie    string
		wantToken string
		wantCode  string
	}{
		{name: "bearer", header: "Bearer abc", wantToken: "abc"},
		{name: "bearer wins over cookie", header: "Bearer abc", cookie: "xyz", wantToken: "abc"},
		{name: "cookie fallback", cookie: "xyz", wantToken: "xyz"},
		{name: "wrong scheme", header: "Basic abc", wantCode: "INVALID_AUTHORIZATION_FORMAT"},
		{name: "empty bearer", header: "Bearer   ", wantCode: "MISSING_ACCESS_TOKEN"},
		{name: "nothing", wantCode: "MISSING_AUTHORIZATION"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c fiber.Ctx) error {
				token, code := ExtractToken(c)
				return c.JSON(fiber.Map{"token": token, "code": code})
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: utils.SessionCookieName, Value: tc.cookie})
			}
			resp, err := app.Test(req)
			require.NoError(t, err)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tc.wantToken, body["token"])
			assert.Equal(t, tc.wantCode, body["code"])
		})
	}
}

func TestAuthenticate(t *testing.T) {
	svc := newTokenService(t, time.Hour)
	app := newProtectedApp(svc)

	access, refresh, err := svc.GenerateTokens(42)
	require.NoError(t, err)

	t.Run("valid access token", func(t *testing.T) {
		status, _, raw := call(t, app, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+access) })
		assert.Equal(t, http.StatusOK, status)
		assert.EqualValues(t, 42, raw["user_id"])
		assert.Equal(t, access, raw["raw"])
	})

	t.Run("refresh token is refused", func(t *testing.T) {
		status, resp, _ := call(t, app, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+refresh) })
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "TOKEN_INVALID", resp.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		status, resp, _ := call(t, app, func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") })
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "TOKEN_INVALID", resp.Code)
	})

	t.Run("revoked token", func(t *testing.T) {
		token, _, err := svc.GenerateTokens(43)
		require.NoError(t, err)
		require.NoError(t, svc.RevokeToken(context.Background(), token))

		status, resp, _ := call(t, app, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) })
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "TOKEN_REVOKED", resp.Code)
	})

	t.Run("missing credentials", func(t *testing.T) {
		status, resp, _ := call(t, app, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "MISSING_AUTHORIZATION", resp.Code)
	})
}

func TestAuthenticateExpiredToken(t *testing.T) {
	svc := newTokenService(t, -time.Minute)
	access, _, err := svc.GenerateTokens(7)
	require.NoError(t, err)

	status, resp, _ := call(t, newProtectedApp(svc), func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+access) })
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "TOKEN_EXPIRED", resp.Code)
}

func TestMetricsRecordsMatchedRoute(t *testing.T) {
	app := fiber.New()
	app.Use(Metrics())
	app.Get("/items/:id", func(c fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/items/:id", "204")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"1", "2", "3"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}

	assert.Equal(t, before+3, testutil.ToFloat64(counter))
	assert.Zero(t, testutil.ToFloat64(httpInFlight))
}
