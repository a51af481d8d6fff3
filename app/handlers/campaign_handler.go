package handlers

import (
	"github.com/amirphl/nexus-communicator/app/dto"
	businessflow "github.com/amirphl/nexus-communicator/business_flow"
	"github.com/gofiber/fiber/v3"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	ListCampaigns(c fiber.Ctx) error
	CreateCampaign(c fiber.Ctx) error
	GetCampaign(c fiber.Ctx) error
	UpdateCampaign(c fiber.Ctx) error
	DeleteCampaign(c fiber.Ctx) error
	GetCampaignStats(c fiber.Ctx) error
	PreviewCampaign(c fiber.Ctx) error
	SendCampaign(c fiber.Ctx) error
	PauseCampaign(c fiber.Ctx) error
	ResumeCampaign(c fiber.Ctx) error
	UploadMedia(c fiber.Ctx) error
	DeleteMedia(c fiber.Ctx) error
	MediaPreview(c fiber.Ctx) error
	GenerateMessage(c fiber.Ctx) error
}

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	baseHandler
	campaignFlow businessflow.CampaignFlow
	dispatchFlow businessflow.DispatchFlow
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignFlow businessflow.CampaignFlow, dispatchFlow businessflow.DispatchFlow) *CampaignHandler {
	return &CampaignHandler{
		baseHandler:  newBaseHandler(),
		campaignFlow: campaignFlow,
		dispatchFlow: dispatchFlow,
	}
}

// ListCampaigns returns one page of the caller's campaigns
// @Summary List campaigns
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Page size (max 100)" default(20)
// @Param status query string false "Status filter"
// @Success 200 {object} dto.APIResponse{data=dto.ListCampaignsResponse}
// @Router /api/v1/campaigns [get]
func (h *CampaignHandler) ListCampaigns(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	var req dto.ListCampaignsRequest
	if ok, err := h.bindQuery(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns")
	defer cancel()

	result, err := h.campaignFlow.ListCampaigns(ctx, uc, &req)
	if err != nil {
		return h.handleError(c, err, "Failed to list campaigns", "CAMPAIGN_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", result)
}

// CreateCampaign creates a campaign bound to the given contacts
// @Summary Create campaign
// @Tags Campaigns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateCampaignRequest true "Campaign"
// @Success 201 {object} dto.APIResponse{data=dto.CampaignResponse}
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	var req dto.CreateCampaignRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns")
	defer cancel()

	campaign, err := h.campaignFlow.CreateCampaign(ctx, uc, &req)
	if err != nil {
		return h.handleError(c, err, "Failed to create campaign", "CAMPAIGN_CREATION_FAILED")
	}

	const message = "Campaña creada exitosamente"
	return h.SuccessResponse(c, fiber.StatusCreated, message, dto.CampaignResponse{Message: message, Campaign: *campaign})
}

// GetCampaign returns a campaign with its recipients and media
// @Summary Get campaign
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignResponse}
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/campaigns/{id} [get]
func (h *CampaignHandler) GetCampaign(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return h.invalidID(c, "campaign id")
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:id")
	defer cancel()

	campaign, err := h.campaignFlow.GetCampaign(ctx, uc, id)
	if err != nil {
		return h.handleError(c, err, "Failed to load campaign", "CAMPAIGN_FETCH_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", dto.CampaignResponse{Campaign: *campaign})
}

// UpdateCampaign patches a campaign that is not active or completed
// @Summary Update campaign
// @Tags Campaigns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param request body dto.UpdateCampaignRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignResponse}
// @Failure 400 {object} dto.APIResponse "Campaign can no longer be edited"
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/campaigns/{id} [put]
func (h *CampaignHandler) UpdateCampaign(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return h.invalidID(c, "campaign id")
	}

	var req dto.UpdateCampaignRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:id")
	defer cancel()

	campaign, err := h.campaignFlow.UpdateCampaign(ctx, uc, id, &req)
	if err != nil {
		return h.handleError(c, err, "Failed to update campaign", "CAMPAIGN_UPDATE_FAILED")
	}

	const message = "Campaña actualizada exitosamente"
	return h.SuccessResponse(c, fiber.StatusOK, message, dto.CampaignResponse{Message: message, Campaign: *campaign})
}

// DeleteCampaign removes a campaign that is not active
// @Summary Delete campaign
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} dto.APIResponse
// @Failure 400 {object} dto.APIResponse "Campaign is active"
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/campaigns/{id} [delete]
func (h *CampaignHandler) DeleteCampaign(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return h.invalidID(c, "campaign id")
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:id")
	defer cancel()

	if err := h.campaignFlow.DeleteCampaign(ctx, uc, id); err != nil {
		return h.handleError(c, err, "Failed to delete campaign", "CAMPAIGN_DELETE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaña eliminada exitosamente", nil)
}

// GetCampaignStats returns campaign counters of the caller
// @Summary Campaign stats
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.CampaignStatsResponse}
// @Router /api/v1/campaigns/stats [get]
func (h *CampaignHandler) GetCampaignStats(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/stats")
	defer cancel()

	stats, err := h.campaignFlow.GetCampaignStats(ctx, uc)
	if err != nil {
		return h.handleError(c, err, "Failed to load campaign stats", "CAMPAIGN_STATS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", stats)
}

// PreviewCampaign renders the template for the first recipient
// @Summary Preview campaign
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignPreviewResponse}
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/campaigns/{id}/preview [get]
func (h *CampaignHandler) PreviewCampaign(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return h.invalidID(c, "campaign id")
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:id/preview")
	defer cancel()

	preview, err := h.campaignFlow.PreviewCampaign(ctx, uc, id)
	if err != nil {
		return h.handleError(c, err, "Failed to preview campaign", "CAMPAIGN_PREVIEW_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", preview)
}

// SendCampaign dispatches a draft or scheduled campaign
// @Summary Send campaign
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} dto.APIResponse{data=dto.SendCampaignResponse}
// @Failure 400 {object} dto.APIResponse "Status, recipients or credential precondition failed"
// @Failure 409 {object} dto.APIResponse "Dispatch already running"
// @Failure 502 {object} dto.APIResponse "Messaging provider failed; campaign paused"
// @Router /api/v1/campaigns/{id}/send [post]
func (h *CampaignHandler) SendCampaign(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return h.invalidID(c, "campaign id")
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:id/send")
	defer cancel()

	result, err := h.dispatchFlow.SendCampaign(ctx, uc, id)
	if err != nil {
		return h.handleError(c, err, "Failed to send campaign", "CAMPAIGN_SEND_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// PauseCampaign stops an active campaign
// @Summary Pause campaign
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignResponse}
// @Failure 400 {object} dto.APIResponse "Campaign is not active"
// @Router /api/v1/campaigns/{id}/pause [post]
func (h *CampaignHandler) PauseCampaign(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return h.invalidID(c, "campaign id")
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:id/pause")
	defer cancel()

	campaign, err := h.dispatchFlow.PauseCampaign(ctx, uc, id)
	if err != nil {
		return h.handleError(c, err, "Failed to pause campaign", "CAMPAIGN_PAUSE_FAILED")
	}

	const message = "Campaña pausada"
	return h.SuccessResponse(c, fiber.StatusOK, message, dto.CampaignResponse{Message: message, Campaign: *campaign})
}

// ResumeCampaign re-dispatches the pending deliveries of a paused campaign
// @Summary Resume campaign
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} dto.APIResponse{data=dto.SendCampaignResponse}
// @Failure 400 {object} dto.APIResponse "Campaign is not paused"
// @Router /api/v1/campaigns/{id}/resume [post]
func (h *CampaignHandler) ResumeCampaign(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return h.invalidID(c, "campaign id")
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:id/resume")
	defer cancel()

	result, err := h.dispatchFlow.ResumeCampaign(ctx, uc, id)
	if err != nil {
		return h.handleError(c, err, "Failed to resume campaign", "CAMPAIGN_RESUME_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// UploadMedia attaches a file to a campaign
// @Summary Upload campaign media
// @Tags Campaigns
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param file formData file true "Media file"
// @Success 201 {object} dto.APIResponse{data=dto.MediaUploadResponse}
// @Failure 400 {object} dto.APIResponse "Missing file or extension not allowed"
// @Failure 413 {object} dto.APIResponse "File too large"
// @Router /api/v1/campaigns/{id}/media [post]
func (h *CampaignHandler) UploadMedia(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return h.invalidID(c, "campaign id")
	}

	header, err := c.FormFile("file")
	if err != nil || header == nil || header.Filename == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "No se proporcionó archivo", "FILE_REQUIRED", nil)
	}
	file, err := header.Open()
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Could not read uploaded file", "INVALID_FILE", nil)
	}
	defer file.Close()

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:id/media")
	defer cancel()

	media, err := h.campaignFlow.AttachMedia(ctx, uc, id, header.Filename, header.Header.Get(fiber.HeaderContentType), file)
	if err != nil {
		return h.handleError(c, err, "Failed to upload media", "MEDIA_UPLOAD_FAILED")
	}

	const message = "Archivo subido exitosamente"
	return h.SuccessResponse(c, fiber.StatusCreated, message, dto.MediaUploadResponse{Message: message, MediaFile: *media})
}

// DeleteMedia detaches a file from a campaign
// @Summary Delete campaign media
// @Tags Campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param media_id path int true "Media ID"
// @Success 200 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/campaigns/{id}/media/{media_id} [delete]
func (h *CampaignHandler) DeleteMedia(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return h.invalidID(c, "campaign id")
	}
	mediaID, ok := h.pathID(c, "media_id")
	if !ok {
		return h.invalidID(c, "media id")
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:id/media/:media_id")
	defer cancel()

	if err := h.campaignFlow.DetachMedia(ctx, uc, id, mediaID); err != nil {
		return h.handleError(c, err, "Failed to delete media", "MEDIA_DELETE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Archivo eliminado exitosamente", nil)
}

// MediaPreview returns a JPEG thumbnail of an image attachment
// @Summary Campaign media preview
// @Tags Campaigns
// @Produce jpeg
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param media_id path int true "Media ID"
// @Success 200 {file} binary
// @Failure 400 {object} dto.APIResponse "Not an image"
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/campaigns/{id}/media/{media_id}/preview [get]
func (h *CampaignHandler) MediaPreview(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return h.invalidID(c, "campaign id")
	}
	mediaID, ok := h.pathID(c, "media_id")
	if !ok {
		return h.invalidID(c, "media id")
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:id/media/:media_id/preview")
	defer cancel()

	thumb, err := h.campaignFlow.MediaPreview(ctx, uc, id, mediaID)
	if err != nil {
		return h.handleError(c, err, "Failed to render preview", "MEDIA_PREVIEW_FAILED")
	}

	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "private, max-age=300")
	return c.Status(fiber.StatusOK).Send(thumb)
}

// GenerateMessage drafts a template for the campaign from a prompt
// @Summary Generate campaign message
// @Tags Campaigns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param request body dto.GenerateMessageRequest true "Prompt"
// @Success 200 {object} dto.APIResponse{data=dto.GenerateMessageResponse}
// @Failure 400 {object} dto.APIResponse "AI credential missing"
// @Router /api/v1/campaigns/{id}/generate-message [post]
func (h *CampaignHandler) GenerateMessage(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return h.invalidID(c, "campaign id")
	}

	var req dto.GenerateMessageRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:id/generate-message")
	defer cancel()

	result, err := h.campaignFlow.GenerateMessage(ctx, uc, id, &req)
	if err != nil {
		return h.handleError(c, err, "Failed to generate message", "MESSAGE_GENERATION_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Mensaje generado exitosamente", result)
}
