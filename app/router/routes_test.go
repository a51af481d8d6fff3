package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/nexus-communicator/app/handlers"
	"github.com/amirphl/nexus-communicator/app/middleware"
	"github.com/amirphl/nexus-communicator/app/router"
	"github.com/amirphl/nexus-communicator/app/services"
	businessflow "github.com/amirphl/nexus-communicator/business_flow"
	"github.com/amirphl/nexus-communicator/config"
	"github.com/amirphl/nexus-communicator/repository"
	testingutil "github.com/amirphl/nexus-communicator/testing"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const verifyToken = "router-verify"

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	app    *fiber.App
	sender *services.MockMessageSender
}

func newTestServer(t *testing.T, probes map[string]router.Probe) *testServer {
	t.Helper()

	tdb := testingutil.NewTestDB(t)
	db := tdb.DB

	cfg := config.LoadFromEnv()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"
	cfg.Logging.EnableAccessLog = false
	cfg.Security.GlobalRateLimit = 10000
	cfg.Security.AuthRateLimit = 10000
	cfg.Storage.MaxMediaSize = 1 << 20
	cfg.Server.ReadTimeout = 0
	cfg.Server.WriteTimeout = 0

	userRepo := repository.NewUserRepository(db)
	contactRepo := repository.NewContactRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	deliveryRepo := repository.NewCampaignDeliveryRepository(db)
	mediaRepo := repository.NewMediaFileRepository(db)
	importRepo := repository.NewImportedFileRepository(db)
	activityRepo := repository.NewBotActivityRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	tokenSvc, err := services.NewTokenService(time.Hour, 24*time.Hour, "nexus-test", "nexus-test", false, "", "",
		"router-test-secret-key-with-enough-length", services.NewMemoryRevocationStore())
	require.NoError(t, err)

	store := services.NewDiskMediaStore(t.TempDir(), cfg.Storage.MaxMediaSize)
	sender := services.NewMockMessageSender()
	generator := services.NewTemplateReplyGenerator()
	notifier := services.NewNotificationService(services.NewMockEmailProvider())

	authFlow := businessflow.NewAuthFlow(userRepo, auditRepo, tokenSvc, nil, 4)
	profileFlow := businessflow.NewProfileFlow(userRepo, auditRepo, store, 4)
	contactFlow := businessflow.NewContactFlow(contactRepo, importRepo, auditRepo)
	importFlow := businessflow.NewImportFlow(contactRepo, importRepo, auditRepo, services.NewLoggingSheetFetcher(), 100)
	campaignFlow := businessflow.NewCampaignFlow(campaignRepo, contactRepo, mediaRepo, userRepo, auditRepo, store, generator, db)
	dispatchFlow := businessflow.NewDispatchFlow(campaignRepo, deliveryRepo, userRepo, auditRepo, sender, notifier, nil, time.Minute, db)
	automationFlow := businessflow.NewAutomationFlow(userRepo, activityRepo, auditRepo, generator, verifyToken)
	dashboardFlow := businessflow.NewDashboardFlow(userRepo, contactRepo, campaignRepo, activityRepo, nil, 0)

	h := router.Handlers{
		Auth:       handlers.NewAuthHandler(authFlow, handlers.SessionCookieConfig{SameSite: "Lax"}),
		Profile:    handlers.NewProfileHandler(profileFlow),
		Contact:    handlers.NewContactHandler(contactFlow, importFlow),
		Campaign:   handlers.NewCampaignHandler(campaignFlow, dispatchFlow),
		Automation: handlers.NewAutomationHandler(automationFlow, dispatchFlow),
		Dashboard:  handlers.NewDashboardHandler(dashboardFlow),
	}

	r := router.NewFiberRouter(cfg, h, middleware.NewAuthMiddleware(tokenSvc), io.Discard, probes)
	r.SetupRoutes()

	return &testServer{app: r.GetApp(), sender: sender}
}

func (s *testServer) do(t *testing.T, req *http.Request) (*http.Response, apiEnvelope) {
	t.Helper()
	resp, err := s.app.Test(req, fiber.TestConfig{Timeout: 10 * time.Second})
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	var env apiEnvelope
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

func (s *testServer) json(t *testing.T, method, path, token string, body any) (*http.Response, apiEnvelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.do(t, req)
}

func (s *testServer) register(t *testing.T, email string) string {
	t.Helper()
	resp, env := s.json(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":    email,
		"password": "secreto123",
		"name":     "Ana García",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Error)

	var auth struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &auth))
	require.NotEmpty(t, auth.AccessToken)
	return auth.AccessToken
}

func decodeID(t *testing.T, raw json.RawMessage, key string) uint {
	t.Helper()
	var wrapper map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &wrapper))
	var entity struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(wrapper[key], &entity))
	require.NotZero(t, entity.ID)
	return entity.ID
}

func TestHealthReportsProbeState(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := newTestServer(t, map[string]router.Probe{
			"database": func(context.Context) error { return nil },
		})
		resp, env := srv.json(t, http.MethodGet, "/api/v1/health", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, env.Success)
		assert.Contains(t, string(env.Data), `"database":"up"`)
	})

	t.Run("degraded", func(t *testing.T) {
		srv := newTestServer(t, map[string]router.Probe{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		})
		resp, env := srv.json(t, http.MethodGet, "/api/v1/health", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.False(t, env.Success)
		assert.Contains(t, string(env.Data), `"redis":"down"`)
	})
}

func TestSwaggerAndMetricsAreServed(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, _ := srv.json(t, http.MethodGet, "/api/v1/swagger.json", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = srv.json(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, env := srv.json(t, http.MethodGet, "/api/v1/contacts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "MISSING_AUTHORIZATION", env.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/contacts", nil)
	req.Header.Set("Authorization", "Token abc")
	resp, env = srv.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_AUTHORIZATION_FORMAT", env.Code)

	resp, env = srv.json(t, http.MethodGet, "/api/v1/contacts", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "TOKEN_INVALID", env.Code)
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.register(t, "session@example.com")

	resp, env := srv.json(t, http.MethodGet, "/api/v1/auth/check-session", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), `"authenticated":true`)

	// Browser clients authenticate with the session cookie alone
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: utils.SessionCookieName, Value: token})
	resp, env = srv.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), "session@example.com")

	resp, _ = srv.json(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = srv.json(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "TOKEN_REVOKED", env.Code)

	resp, env = srv.json(t, http.MethodGet, "/api/v1/auth/check-session", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), `"authenticated":false`)
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.register(t, "dup@example.com")

	resp, env := srv.json(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email": "dup@example.com", "password": "secreto123", "name": "Otra",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)
}

func TestContactRoutes(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.register(t, "contacts@example.com")

	resp, env := srv.json(t, http.MethodPost, "/api/v1/contacts", token, map[string]any{
		"name": "Luis Pérez", "phone": "+34600111222", "tags": []string{"vip"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Error)
	contactID := decodeID(t, env.Data, "contact")

	resp, env = srv.json(t, http.MethodPost, "/api/v1/contacts", token, map[string]any{
		"name": "Copia", "phone": "+34600111222",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, env = srv.json(t, http.MethodPost, "/api/v1/contacts", token, map[string]any{"phone": "+34600"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)

	// /stats must not be captured by the :id route
	resp, env = srv.json(t, http.MethodGet, "/api/v1/contacts/stats", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), `"total_contacts":1`)

	resp, _ = srv.json(t, http.MethodGet, "/api/v1/contacts?tags=vip", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	path := fmt.Sprintf("/api/v1/contacts/%d", contactID)
	resp, _ = srv.json(t, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = srv.json(t, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "CONTACT_NOT_FOUND", env.Code)

	resp, env = srv.json(t, http.MethodGet, "/api/v1/contacts/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_ID", env.Code)
}

func TestContactsAreIsolatedPerUser(t *testing.T) {
	srv := newTestServer(t, nil)
	owner := srv.register(t, "owner@example.com")
	other := srv.register(t, "other@example.com")

	resp, env := srv.json(t, http.MethodPost, "/api/v1/contacts", owner, map[string]any{
		"name": "Luis", "phone": "+34600999888",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decodeID(t, env.Data, "contact")

	resp, _ = srv.json(t, http.MethodGet, fmt.Sprintf("/api/v1/contacts/%d", id), other, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCSVImportUpload(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.register(t, "import@example.com")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "contactos.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("name,phone,email\nLuis,+34600111222,luis@example.com\nMarta,+34600333444,\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/contacts/import/csv", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, env := srv.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	assert.Contains(t, string(env.Data), `"imported_count":2`)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/contacts/import/csv", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, env = srv.do(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "FILE_REQUIRED", env.Code)

	resp, env = srv.json(t, http.MethodGet, "/api/v1/contacts/import/history", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), "contactos.csv")
}

func pngFixture(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for x := 0; x < 32; x++ {
		for y := 0; y < 32; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCampaignLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.register(t, "campaigns@example.com")

	resp, env := srv.json(t, http.MethodPost, "/api/v1/contacts", token, map[string]any{
		"name": "Luis", "phone": "+34600111222",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	contactID := decodeID(t, env.Data, "contact")

	resp, env = srv.json(t, http.MethodPost, "/api/v1/campaigns", token, map[string]any{
		"name": "Otoño", "message": "Hola {nombre}", "contact_ids": []uint{contactID},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Error)
	campaignID := decodeID(t, env.Data, "campaign")
	base := fmt.Sprintf("/api/v1/campaigns/%d", campaignID)

	resp, env = srv.json(t, http.MethodGet, base+"/preview", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), "Hola Luis")

	// No WhatsApp credential yet
	resp, env = srv.json(t, http.MethodPost, base+"/send", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, env.Code)

	// Media upload and thumbnail
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "banner.png")
	require.NoError(t, err)
	_, _ = part.Write(pngFixture(t))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, base+"/media", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, env = srv.do(t, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Error)
	var upload struct {
		MediaFile struct {
			ID uint `json:"id"`
		} `json:"media_file"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &upload))
	require.NotZero(t, upload.MediaFile.ID)

	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("%s/media/%d/preview", base, upload.MediaFile.ID), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = srv.app.Test(req, fiber.TestConfig{Timeout: 10 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	_ = resp.Body.Close()

	resp, env = srv.json(t, http.MethodPut, "/api/v1/profile", token, map[string]any{"whatsapp_api_key": "EAAB-test-key"})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)

	resp, env = srv.json(t, http.MethodPost, base+"/send", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	assert.Len(t, srv.sender.Sent(), 1)
	assert.Equal(t, "Hola Luis", srv.sender.Sent()[0].Body)

	// Completed campaigns cannot be edited
	resp, _ = srv.json(t, http.MethodPut, base, token, map[string]any{"name": "Nuevo"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, env = srv.json(t, http.MethodGet, "/api/v1/campaigns/stats", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), `"total_campaigns":1`)
}

func TestWebhookVerification(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/automation/webhook/whatsapp?hub.mode=subscribe&hub.verify_token="+verifyToken+"&hub.challenge=12345", nil)
	resp, err := srv.app.Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "12345", string(raw))

	req = httptest.NewRequest(http.MethodGet,
		"/api/v1/automation/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	resp, err = srv.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebhookNotifications(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/automation/webhook/whatsapp", nil)
	req.Header.Set("Content-Type", "application/json")
	resp, env := srv.do(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "EMPTY_WEBHOOK", env.Code)

	resp, env = srv.json(t, http.MethodPost, "/api/v1/automation/webhook/whatsapp", "", map[string]any{
		"object": "whatsapp_business_account",
		"entry": []any{map[string]any{
			"id": "1",
			"changes": []any{map[string]any{
				"field": "messages",
				"value": map[string]any{
					"messaging_product": "whatsapp",
					"statuses":          []any{map[string]any{"id": "wamid.unknown", "status": "read"}},
				},
			}},
		}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	assert.Contains(t, string(env.Data), `"statuses_ignored":1`)
}

func TestAutomationAndDashboardRoutes(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.register(t, "bot@example.com")

	resp, env := srv.json(t, http.MethodPost, "/api/v1/automation/toggle", token, map[string]any{"enabled": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "enabling without an AI credential must fail")
	assert.NotEmpty(t, env.Code)

	resp, env = srv.json(t, http.MethodPost, "/api/v1/automation/toggle", token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)

	resp, _ = srv.json(t, http.MethodPut, "/api/v1/automation/knowledge-base", token, map[string]any{"knowledge_base": "Abrimos de 9 a 18"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	for _, path := range []string{
		"/api/v1/automation/status",
		"/api/v1/automation/settings",
		"/api/v1/automation/activity",
		"/api/v1/automation/activity/stats",
		"/api/v1/dashboard/stats",
		"/api/v1/dashboard/charts/contacts",
		"/api/v1/dashboard/charts/campaigns",
		"/api/v1/dashboard/charts/messages",
		"/api/v1/dashboard/recent-activity",
		"/api/v1/dashboard/performance",
		"/api/v1/dashboard/quick-actions",
	} {
		resp, env := srv.json(t, http.MethodGet, path, token, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "%s: %s", path, env.Error)
	}

	resp, _ = srv.json(t, http.MethodDelete, "/api/v1/automation/clear-activity", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProfileRoutes(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.register(t, "profile@example.com")

	resp, env := srv.json(t, http.MethodPost, "/api/v1/profile/change-password", token, map[string]any{
		"current_password": "incorrecta", "new_password": "nuevo12345",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, env.Code)

	resp, _ = srv.json(t, http.MethodPost, "/api/v1/profile/change-password", token, map[string]any{
		"current_password": "secreto123", "new_password": "nuevo12345",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = srv.json(t, http.MethodGet, "/api/v1/profile/api-keys", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), `"whatsapp_configured":false`)

	resp, _ = srv.json(t, http.MethodDelete, "/api/v1/profile/delete-account", token, map[string]any{"password": "nuevo12345"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = srv.json(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email": "profile@example.com", "password": "nuevo12345",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, env := srv.json(t, http.MethodGet, "/api/v1/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", env.Code)
}
