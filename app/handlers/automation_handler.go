package handlers

import (
	"bytes"
	"encoding/json"

	"github.com/amirphl/nexus-communicator/app/dto"
	businessflow "github.com/amirphl/nexus-communicator/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// AutomationHandlerInterface defines the contract for automation handlers
type AutomationHandlerInterface interface {
	GetStatus(c fiber.Ctx) error
	Toggle(c fiber.Ctx) error
	GetKnowledgeBase(c fiber.Ctx) error
	UpdateKnowledgeBase(c fiber.Ctx) error
	ListActivity(c fiber.Ctx) error
	GetActivityStats(c fiber.Ctx) error
	TestResponse(c fiber.Ctx) error
	GetSettings(c fiber.Ctx) error
	ClearActivity(c fiber.Ctx) error
	VerifyWebhook(c fiber.Ctx) error
	ReceiveWebhook(c fiber.Ctx) error
}

// AutomationHandler handles auto-reply configuration and the provider webhook
type AutomationHandler struct {
	baseHandler
	automationFlow businessflow.AutomationFlow
	dispatchFlow   businessflow.DispatchFlow
}

// NewAutomationHandler creates a new automation handler
func NewAutomationHandler(automationFlow businessflow.AutomationFlow, dispatchFlow businessflow.DispatchFlow) *AutomationHandler {
	return &AutomationHandler{
		baseHandler:    newBaseHandler(),
		automationFlow: automationFlow,
		dispatchFlow:   dispatchFlow,
	}
}

// GetStatus reports whether auto-reply is on and configured
// @Summary Automation status
// @Tags Automation
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.AutomationStatusResponse}
// @Router /api/v1/automation/status [get]
func (h *AutomationHandler) GetStatus(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/automation/status")
	defer cancel()

	status, err := h.automationFlow.GetStatus(ctx, uc)
	if err != nil {
		return h.handleError(c, err, "Failed to load automation status", "AUTOMATION_STATUS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", status)
}

// Toggle switches auto-reply on or off
// @Summary Toggle automation
// @Tags Automation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.ToggleAutomationRequest true "Desired state"
// @Success 200 {object} dto.APIResponse{data=dto.ToggleAutomationResponse}
// @Failure 400 {object} dto.APIResponse "AI credential missing"
// @Router /api/v1/automation/toggle [post]
func (h *AutomationHandler) Toggle(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	var req dto.ToggleAutomationRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/automation/toggle")
	defer cancel()

	result, err := h.automationFlow.Toggle(ctx, uc, *req.Enabled)
	if err != nil {
		return h.handleError(c, err, "Failed to toggle automation", "AUTOMATION_TOGGLE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// GetKnowledgeBase returns the stored knowledge base text
// @Summary Get knowledge base
// @Tags Automation
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.KnowledgeBaseResponse}
// @Router /api/v1/automation/knowledge-base [get]
func (h *AutomationHandler) GetKnowledgeBase(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/automation/knowledge-base")
	defer cancel()

	kb, err := h.automationFlow.GetKnowledgeBase(ctx, uc)
	if err != nil {
		return h.handleError(c, err, "Failed to load knowledge base", "KNOWLEDGE_BASE_FETCH_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", kb)
}

// UpdateKnowledgeBase replaces the knowledge base text
// @Summary Update knowledge base
// @Tags Automation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.KnowledgeBaseRequest true "Knowledge base"
// @Success 200 {object} dto.APIResponse{data=dto.KnowledgeBaseResponse}
// @Router /api/v1/automation/knowledge-base [put]
func (h *AutomationHandler) UpdateKnowledgeBase(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	var req dto.KnowledgeBaseRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/automation/knowledge-base")
	defer cancel()

	kb, err := h.automationFlow.UpdateKnowledgeBase(ctx, uc, *req.KnowledgeBase)
	if err != nil {
		return h.handleError(c, err, "Failed to update knowledge base", "KNOWLEDGE_BASE_UPDATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, kb.Message, kb)
}

// ListActivity returns one page of the bot activity log
// @Summary List automation activity
// @Tags Automation
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Page size (max 100)" default(20)
// @Param type query string false "Activity type filter"
// @Success 200 {object} dto.APIResponse{data=dto.ListActivityResponse}
// @Router /api/v1/automation/activity [get]
func (h *AutomationHandler) ListActivity(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	var req dto.ListActivityRequest
	if ok, err := h.bindQuery(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/automation/activity")
	defer cancel()

	page, err := h.automationFlow.ListActivity(ctx, uc, &req)
	if err != nil {
		return h.handleError(c, err, "Failed to list activity", "ACTIVITY_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", page)
}

// GetActivityStats aggregates the activity log
// @Summary Automation activity stats
// @Tags Automation
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.ActivityStatsResponse}
// @Router /api/v1/automation/activity/stats [get]
func (h *AutomationHandler) GetActivityStats(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/automation/activity/stats")
	defer cancel()

	stats, err := h.automationFlow.GetActivityStats(ctx, uc)
	if err != nil {
		return h.handleError(c, err, "Failed to load activity stats", "ACTIVITY_STATS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", stats)
}

// TestResponse generates a reply to a sample message without sending it
// @Summary Test automated reply
// @Tags Automation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.TestResponseRequest true "Sample message"
// @Success 200 {object} dto.APIResponse{data=dto.TestResponseResponse}
// @Failure 400 {object} dto.APIResponse "AI credential missing"
// @Router /api/v1/automation/test-response [post]
func (h *AutomationHandler) TestResponse(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	var req dto.TestResponseRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/automation/test-response")
	defer cancel()

	result, err := h.automationFlow.TestResponse(ctx, uc, req.TestMessage)
	if err != nil {
		return h.handleError(c, err, "Failed to generate response", "TEST_RESPONSE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", result)
}

// GetSettings returns the full automation configuration
// @Summary Automation settings
// @Tags Automation
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.AutomationSettingsResponse}
// @Router /api/v1/automation/settings [get]
func (h *AutomationHandler) GetSettings(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/automation/settings")
	defer cancel()

	settings, err := h.automationFlow.GetSettings(ctx, uc)
	if err != nil {
		return h.handleError(c, err, "Failed to load automation settings", "AUTOMATION_SETTINGS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", settings)
}

// ClearActivity deletes the caller's activity log
// @Summary Clear automation activity
// @Tags Automation
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.ClearActivityResponse}
// @Router /api/v1/automation/clear-activity [delete]
func (h *AutomationHandler) ClearActivity(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/automation/clear-activity")
	defer cancel()

	result, err := h.automationFlow.ClearActivity(ctx, uc)
	if err != nil {
		return h.handleError(c, err, "Failed to clear activity", "ACTIVITY_CLEAR_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// VerifyWebhook answers the provider subscription handshake
// @Summary WhatsApp webhook verification
// @Tags Webhooks
// @Produce plain
// @Param hub.mode query string true "Must be subscribe"
// @Param hub.verify_token query string true "Shared verify token"
// @Param hub.challenge query string true "Challenge to echo"
// @Success 200 {string} string "Challenge"
// @Failure 403 {string} string "Verification failed"
// @Router /api/v1/automation/webhook/whatsapp [get]
func (h *AutomationHandler) VerifyWebhook(c fiber.Ctx) error {
	challenge, err := h.automationFlow.VerifyWebhook(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"ip":   c.IP(),
			"mode": c.Query("hub.mode"),
		}).Warn("Webhook verification rejected")
		return c.Status(fiber.StatusForbidden).SendString("Verification failed")
	}
	return c.Status(fiber.StatusOK).SendString(challenge)
}

// ReceiveWebhook applies delivery statuses and logs inbound messages
// @Summary WhatsApp webhook notifications
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param request body dto.WhatsAppWebhookPayload true "Notification"
// @Success 200 {object} dto.APIResponse{data=dto.WebhookResult}
// @Failure 400 {object} dto.APIResponse "Empty or malformed body"
// @Router /api/v1/automation/webhook/whatsapp [post]
func (h *AutomationHandler) ReceiveWebhook(c fiber.Ctx) error {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "No data received", "EMPTY_WEBHOOK", nil)
	}

	var payload dto.WhatsAppWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid webhook payload", "INVALID_WEBHOOK", err.Error())
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/automation/webhook/whatsapp")
	defer cancel()

	result, err := h.dispatchFlow.ProcessWebhook(ctx, &payload)
	if err != nil {
		return h.handleError(c, err, "Failed to process webhook", "WEBHOOK_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}
