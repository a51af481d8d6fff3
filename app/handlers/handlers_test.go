package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/amirphl/nexus-communicator/app/dto"
	businessflow "github.com/amirphl/nexus-communicator/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"contact not found", businessflow.NewBusinessError("CONTACT_NOT_FOUND", "x", businessflow.ErrContactNotFound), http.StatusNotFound},
		{"campaign not found", businessflow.ErrCampaignNotFound, http.StatusNotFound},
		{"media not found", businessflow.ErrMediaNotFound, http.StatusNotFound},
		{"invalid credentials", businessflow.ErrInvalidCredentials, http.StatusUnauthorized},
		{"unauthorized", businessflow.ErrUnauthorized, http.StatusUnauthorized},
		{"webhook verification", businessflow.ErrWebhookVerification, http.StatusForbidden},
		{"duplicate phone", businessflow.ErrDuplicatePhone, http.StatusConflict},
		{"email exists", businessflow.ErrEmailAlreadyExists, http.StatusConflict},
		{"dispatch in flight", businessflow.ErrDispatchInFlight, http.StatusConflict},
		{"media too large", businessflow.ErrMediaTooLarge, http.StatusRequestEntityTooLarge},
		{"dispatch failed", businessflow.ErrDispatchFailed, http.StatusBadGateway},
		{"invalid transition", businessflow.ErrInvalidTransition, http.StatusBadRequest},
		{"no recipients", businessflow.ErrNoRecipients, http.StatusBadRequest},
		{"missing credential", businessflow.ErrMissingCredential, http.StatusBadRequest},
		{"unsupported type", businessflow.ErrUnsupportedType, http.StatusBadRequest},
		{"too many rows", businessflow.ErrTooManyRows, http.StatusBadRequest},
		{"incorrect password", businessflow.ErrIncorrectPassword, http.StatusBadRequest},
		{"captcha", businessflow.ErrCaptchaInvalid, http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("outer: %w", businessflow.ErrValidation), http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}

// stubContactFlow answers every call with the configured error
type stubContactFlow struct {
	businessflow.ContactFlow
	err     error
	created *dto.CreateContactRequest
}

func (s *stubContactFlow) CreateContact(_ context.Context, uc businessflow.UserContext, req *dto.CreateContactRequest) (*dto.ContactDTO, error) {
	s.created = req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.ContactDTO{ID: 9, Name: req.Name, Phone: req.Phone}, nil
}

func (s *stubContactFlow) GetContact(context.Context, businessflow.UserContext, uint) (*dto.ContactDTO, error) {
	return nil, s.err
}

func (s *stubContactFlow) DeleteContact(context.Context, businessflow.UserContext, uint) (int64, error) {
	return 0, s.err
}

func newContactApp(flow businessflow.ContactFlow, userID uint) *fiber.App {
	app := fiber.New()
	h := NewContactHandler(flow, nil)
	app.Use(func(c fiber.Ctx) error {
		if userID != 0 {
			c.Locals("user_id", userID)
		}
		return c.Next()
	})
	app.Post("/contacts", h.CreateContact)
	app.Get("/contacts/:id", h.GetContact)
	app.Delete("/contacts/:id", h.DeleteContact)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (int, dto.APIResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out dto.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestContactHandlerRequiresCaller(t *testing.T) {
	app := newContactApp(&stubContactFlow{}, 0)
	status, resp := doJSON(t, app, http.MethodGet, "/contacts/1", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "AUTHENTICATION_REQUIRED", resp.Code)
}

func TestContactHandlerRejectsBadInput(t *testing.T) {
	flow := &stubContactFlow{}
	app := newContactApp(flow, 7)

	status, resp := doJSON(t, app, http.MethodGet, "/contacts/0", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ID", resp.Code)

	status, resp = doJSON(t, app, http.MethodPost, "/contacts", map[string]any{"name": "Sin teléfono"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)
	assert.Nil(t, flow.created, "flow must not run when validation fails")

	req := httptest.NewRequest(http.MethodPost, "/contacts", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestContactHandlerMapsFlowErrors(t *testing.T) {
	t.Run("business error keeps its code and message", func(t *testing.T) {
		flow := &stubContactFlow{err: businessflow.NewBusinessError("DUPLICATE_PHONE", "Phone already registered", businessflow.ErrDuplicatePhone)}
		app := newContactApp(flow, 7)

		status, resp := doJSON(t, app, http.MethodPost, "/contacts", map[string]any{"name": "Luis", "phone": "+34600111222"})
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "DUPLICATE_PHONE", resp.Code)
		assert.Equal(t, "Phone already registered", resp.Error)
	})

	t.Run("unexpected error is hidden behind the fallback", func(t *testing.T) {
		flow := &stubContactFlow{err: errors.New("database is on fire")}
		app := newContactApp(flow, 7)

		status, resp := doJSON(t, app, http.MethodGet, "/contacts/3", nil)
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "CONTACT_FETCH_FAILED", resp.Code)
		assert.NotContains(t, resp.Error, "fire")
	})

	t.Run("deleting nothing is a not found", func(t *testing.T) {
		app := newContactApp(&stubContactFlow{}, 7)
		status, resp := doJSON(t, app, http.MethodDelete, "/contacts/3", nil)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "CONTACT_NOT_FOUND", resp.Code)
	})
}

func TestContactHandlerCreate(t *testing.T) {
	flow := &stubContactFlow{}
	app := newContactApp(flow, 7)

	status, resp := doJSON(t, app, http.MethodPost, "/contacts", map[string]any{"name": "Luis", "phone": "+34600111222"})
	assert.Equal(t, http.StatusCreated, status)
	assert.True(t, resp.Success)
	require.NotNil(t, flow.created)
	assert.Equal(t, "+34600111222", flow.created.Phone)
}

// stubAutomationFlow drives the public webhook verification handler
type stubAutomationFlow struct {
	businessflow.AutomationFlow
}

func (stubAutomationFlow) VerifyWebhook(mode, token, challenge string) (string, error) {
	if mode == "subscribe" && token == "secret" {
		return challenge, nil
	}
	return "", businessflow.ErrWebhookVerification
}

func TestVerifyWebhook(t *testing.T) {
	app := fiber.New()
	h := NewAutomationHandler(stubAutomationFlow{}, nil)
	app.Get("/webhook", h.VerifyWebhook)

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=abc", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc", string(body))

	req = httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=abc", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
