// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/amirphl/nexus-communicator/app/dto"
	"github.com/amirphl/nexus-communicator/app/services"
	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/repository"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AllowedMediaExtensions lists the attachment types a campaign accepts
var AllowedMediaExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".mp4", ".avi", ".pdf", ".doc", ".docx"}

// Template placeholders substituted per recipient
const (
	placeholderName  = "{nombre}"
	placeholderPhone = "{telefono}"
	placeholderEmail = "{email}"
)

// CampaignFlow handles the campaign business logic
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, uc UserContext, req *dto.CreateCampaignRequest) (*dto.CampaignDTO, error)
	GetCampaign(ctx context.Context, uc UserContext, campaignID uint) (*dto.CampaignDTO, error)
	ListCampaigns(ctx context.Context, uc UserContext, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error)
	UpdateCampaign(ctx context.Context, uc UserContext, campaignID uint, req *dto.UpdateCampaignRequest) (*dto.CampaignDTO, error)
	DeleteCampaign(ctx context.Context, uc UserContext, campaignID uint) error
	PreviewCampaign(ctx context.Context, uc UserContext, campaignID uint) (*dto.CampaignPreviewResponse, error)
	GetCampaignStats(ctx context.Context, uc UserContext) (*dto.CampaignStatsResponse, error)
	AttachMedia(ctx context.Context, uc UserContext, campaignID uint, filename, mimetype string, r io.Reader) (*dto.MediaFileDTO, error)
	DetachMedia(ctx context.Context, uc UserContext, campaignID, mediaID uint) error
	MediaPreview(ctx context.Context, uc UserContext, campaignID, mediaID uint) ([]byte, error)
	GenerateMessage(ctx context.Context, uc UserContext, campaignID uint, req *dto.GenerateMessageRequest) (*dto.GenerateMessageResponse, error)
}

// CampaignFlowImpl implements the campaign business flow
type CampaignFlowImpl struct {
	campaignRepo repository.CampaignRepository
	contactRepo  repository.ContactRepository
	mediaRepo    repository.MediaFileRepository
	userRepo     repository.UserRepository
	mediaStore   services.MediaStore
	generator    services.ReplyGenerator
	audit        auditor
	db           *gorm.DB
}

// NewCampaignFlow creates a new campaign flow instance
func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	contactRepo repository.ContactRepository,
	mediaRepo repository.MediaFileRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditLogRepository,
	mediaStore services.MediaStore,
	generator services.ReplyGenerator,
	db *gorm.DB,
) CampaignFlow {
	return &CampaignFlowImpl{
		campaignRepo: campaignRepo,
		contactRepo:  contactRepo,
		mediaRepo:    mediaRepo,
		userRepo:     userRepo,
		mediaStore:   mediaStore,
		generator:    generator,
		audit:        auditor{repo: auditRepo},
		db:           db,
	}
}

// CreateCampaign stores a campaign and binds the owned subset of contact ids
func (s *CampaignFlowImpl) CreateCampaign(ctx context.Context, uc UserContext, req *dto.CreateCampaignRequest) (*dto.CampaignDTO, error) {
	name := strings.TrimSpace(req.Name)
	message := strings.TrimSpace(req.Message)
	if name == "" || message == "" {
		return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Name and message are required", ErrValidation)
	}

	status, err := parseEditableStatus(req.Status, models.CampaignStatusDraft)
	if err != nil {
		return nil, err
	}

	campaign := &models.Campaign{
		UserID:      uc.UserID,
		Name:        name,
		Message:     message,
		Status:      status,
		ScheduledAt: utils.TimeToUTCPtr(req.ScheduledAt),
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.campaignRepo.Save(txCtx, campaign); err != nil {
			return err
		}
		if len(req.ContactIDs) == 0 {
			return nil
		}
		total, err := s.bindRecipients(txCtx, uc, campaign.ID, req.ContactIDs)
		if err != nil {
			return err
		}
		campaign.TotalRecipients = total
		return nil
	})
	if err != nil {
		s.audit.failure(ctx, uc, models.AuditActionCampaignCreated, err)
		return nil, NewBusinessError("CAMPAIGN_CREATION_FAILED", "Campaign creation failed", err)
	}

	s.audit.record(ctx, uc, models.AuditActionCampaignCreated,
		fmt.Sprintf("Campaign %d created with %d recipients", campaign.ID, campaign.TotalRecipients), true, nil)

	resp := ToCampaignDTO(campaign)
	return &resp, nil
}

// bindRecipients drops ids the user does not own and replaces the recipient set
func (s *CampaignFlowImpl) bindRecipients(ctx context.Context, uc UserContext, campaignID uint, ids []uint) (int64, error) {
	owned, err := s.contactRepo.OwnedIDs(ctx, uc.UserID, ids)
	if err != nil {
		return 0, err
	}
	return s.campaignRepo.ReplaceRecipients(ctx, campaignID, owned)
}

// parseEditableStatus accepts only the statuses a user may set directly
func parseEditableStatus(raw *string, fallback models.CampaignStatus) (models.CampaignStatus, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return fallback, nil
	}
	status := models.CampaignStatus(strings.TrimSpace(*raw))
	if status != models.CampaignStatusDraft && status != models.CampaignStatusScheduled {
		return "", NewBusinessErrorf("INVALID_CAMPAIGN_STATUS", "Status %q cannot be set directly", ErrInvalidStatus, status)
	}
	return status, nil
}

// ownedCampaign loads a campaign with its media, or ErrCampaignNotFound
func (s *CampaignFlowImpl) ownedCampaign(ctx context.Context, uc UserContext, campaignID uint) (*models.Campaign, error) {
	return loadOwnedCampaign(ctx, s.campaignRepo, uc, campaignID)
}

func loadOwnedCampaign(ctx context.Context, repo repository.CampaignRepository, uc UserContext, campaignID uint) (*models.Campaign, error) {
	campaign, err := repo.ByUserAndID(ctx, uc.UserID, campaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}
	return campaign, nil
}

// GetCampaign returns the campaign with its recipients and media
func (s *CampaignFlowImpl) GetCampaign(ctx context.Context, uc UserContext, campaignID uint) (*dto.CampaignDTO, error) {
	campaign, err := s.ownedCampaign(ctx, uc, campaignID)
	if err != nil {
		return nil, err
	}

	contacts, err := s.campaignRepo.Recipients(ctx, campaign.ID, 0)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_RECIPIENTS_FAILED", "Failed to load recipients", err)
	}

	resp := ToCampaignDTO(campaign)
	resp.Contacts = toContactDTOs(contacts)
	return &resp, nil
}

// ListCampaigns returns one page ordered by created_at desc
func (s *CampaignFlowImpl) ListCampaigns(ctx context.Context, uc UserContext, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error) {
	page, perPage := normalizePage(req.Page, req.PerPage)

	filter := models.CampaignFilter{UserID: &uc.UserID}
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status := models.CampaignStatus(raw)
		if !status.Valid() {
			return nil, NewBusinessErrorf("INVALID_CAMPAIGN_STATUS", "Unknown campaign status %q", ErrInvalidStatus, raw)
		}
		filter.Status = &status
	}

	total, err := s.campaignRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to count campaigns", err)
	}

	campaigns, err := s.campaignRepo.ByFilter(ctx, filter, "created_at DESC, id DESC", perPage, (page-1)*perPage)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to list campaigns", err)
	}

	items := make([]dto.CampaignDTO, 0, len(campaigns))
	for _, c := range campaigns {
		items = append(items, ToCampaignDTO(c))
	}

	return &dto.ListCampaignsResponse{
		Campaigns:  items,
		Pagination: buildPagination(page, perPage, total),
	}, nil
}

// UpdateCampaign applies a patch while the campaign is still editable. Only
// patched columns are written, and only if the status is still the one the
// editability check saw.
func (s *CampaignFlowImpl) UpdateCampaign(ctx context.Context, uc UserContext, campaignID uint, req *dto.UpdateCampaignRequest) (*dto.CampaignDTO, error) {
	campaign, err := s.ownedCampaign(ctx, uc, campaignID)
	if err != nil {
		return nil, err
	}

	if !campaign.Status.IsEditable() {
		return nil, NewBusinessErrorf("CAMPAIGN_UPDATE_NOT_ALLOWED", "Campaign cannot be edited while %s", ErrInvalidTransition, campaign.Status)
	}

	from := campaign.Status
	to := from
	values := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Name cannot be empty", ErrValidation)
		}
		values["name"] = name
	}
	if req.Message != nil {
		message := strings.TrimSpace(*req.Message)
		if message == "" {
			return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Message cannot be empty", ErrValidation)
		}
		values["message"] = message
	}
	if req.Status != nil {
		status, err := parseEditableStatus(req.Status, from)
		if err != nil {
			return nil, err
		}
		if status != from && !from.CanTransitionTo(status) {
			return nil, NewBusinessErrorf("CAMPAIGN_UPDATE_NOT_ALLOWED", "Cannot move campaign from %s to %s", ErrInvalidTransition, from, status)
		}
		to = status
	}
	if req.ScheduledAt != nil {
		values["scheduled_at"] = utils.TimeToUTCPtr(req.ScheduledAt)
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		changed, err := s.campaignRepo.TransitionStatus(txCtx, campaign.ID, from, to, values)
		if err != nil {
			return err
		}
		if !changed {
			return ErrInvalidTransition
		}
		if req.ContactIDs == nil {
			return nil
		}
		_, err = s.bindRecipients(txCtx, uc, campaign.ID, *req.ContactIDs)
		return err
	})
	if err != nil {
		s.audit.failure(ctx, uc, models.AuditActionCampaignUpdated, err)
		if IsInvalidTransition(err) {
			return nil, NewBusinessError("CAMPAIGN_UPDATE_NOT_ALLOWED", "Campaign status changed concurrently", ErrInvalidTransition)
		}
		return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "Campaign update failed", err)
	}
	if to != from {
		observeTransition(string(from), string(to))
	}

	s.audit.record(ctx, uc, models.AuditActionCampaignUpdated, fmt.Sprintf("Campaign %d updated", campaign.ID), true, nil)

	campaign, err = s.ownedCampaign(ctx, uc, campaignID)
	if err != nil {
		return nil, err
	}
	resp := ToCampaignDTO(campaign)
	return &resp, nil
}

// DeleteCampaign removes a campaign that is not being dispatched, together
// with its media records and stored files
func (s *CampaignFlowImpl) DeleteCampaign(ctx context.Context, uc UserContext, campaignID uint) error {
	campaign, err := s.ownedCampaign(ctx, uc, campaignID)
	if err != nil {
		return err
	}
	if !campaign.Status.IsDeletable() {
		return NewBusinessError("CAMPAIGN_DELETE_NOT_ALLOWED", "Active campaigns cannot be deleted", ErrInvalidTransition)
	}

	if err := s.campaignRepo.Delete(ctx, campaign.ID); err != nil {
		s.audit.failure(ctx, uc, models.AuditActionCampaignDeleted, err)
		return NewBusinessError("CAMPAIGN_DELETION_FAILED", "Campaign deletion failed", err)
	}

	for _, media := range campaign.MediaFiles {
		s.removeStoredFile(campaign.ID, media.Filepath)
	}

	s.audit.record(ctx, uc, models.AuditActionCampaignDeleted, fmt.Sprintf("Campaign %d deleted", campaign.ID), true, nil)
	return nil
}

func (s *CampaignFlowImpl) removeStoredFile(campaignID uint, path string) {
	if s.mediaStore == nil || path == "" {
		return
	}
	if err := s.mediaStore.Remove(path); err != nil {
		logrus.WithFields(logrus.Fields{
			"campaign_id": campaignID,
			"path":        path,
			"error":       err,
		}).Warn("failed to remove media file")
	}
}

// PreviewCampaign renders the template for the first bound contact
func (s *CampaignFlowImpl) PreviewCampaign(ctx context.Context, uc UserContext, campaignID uint) (*dto.CampaignPreviewResponse, error) {
	campaign, err := s.ownedCampaign(ctx, uc, campaignID)
	if err != nil {
		return nil, err
	}

	sample, err := s.campaignRepo.Recipients(ctx, campaign.ID, 1)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_RECIPIENTS_FAILED", "Failed to load recipients", err)
	}

	resp := &dto.CampaignPreviewResponse{
		PreviewMessage:  campaign.Message,
		TotalRecipients: campaign.TotalRecipients,
		MediaFiles:      ToCampaignDTO(campaign).MediaFiles,
	}
	if len(sample) > 0 {
		resp.PreviewMessage = RenderMessage(campaign.Message, sample[0])
		contact := ToContactDTO(sample[0])
		resp.SampleContact = &contact
	}
	return resp, nil
}

// RenderMessage substitutes the recipient placeholders; {email} is kept when
// the contact has no email
func RenderMessage(template string, contact *models.Contact) string {
	pairs := []string{
		placeholderName, contact.Name,
		placeholderPhone, contact.Phone,
	}
	if contact.Email != nil && *contact.Email != "" {
		pairs = append(pairs, placeholderEmail, *contact.Email)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// GetCampaignStats aggregates status counts and engagement counters
func (s *CampaignFlowImpl) GetCampaignStats(ctx context.Context, uc UserContext) (*dto.CampaignStatsResponse, error) {
	counts, err := s.campaignRepo.CountByStatus(ctx, uc.UserID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_STATS_FAILED", "Failed to compute campaign stats", err)
	}
	sent, opened, err := s.campaignRepo.SumCounters(ctx, uc.UserID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_STATS_FAILED", "Failed to compute campaign stats", err)
	}

	resp := &dto.CampaignStatsResponse{TotalSent: sent, TotalOpened: opened, OpenRate: utils.Percent(opened, sent)}
	for _, c := range counts {
		resp.TotalCampaigns += c.Count
		switch c.Status {
		case models.CampaignStatusDraft:
			resp.DraftCampaigns = c.Count
		case models.CampaignStatusActive:
			resp.ActiveCampaigns = c.Count
		case models.CampaignStatusCompleted:
			resp.CompletedCampaigns = c.Count
		}
	}
	return resp, nil
}

// AttachMedia stores an upload and records it against the campaign. A file
// whose record cannot be inserted is removed again.
func (s *CampaignFlowImpl) AttachMedia(ctx context.Context, uc UserContext, campaignID uint, filename, mimetype string, r io.Reader) (*dto.MediaFileDTO, error) {
	campaign, err := s.ownedCampaign(ctx, uc, campaignID)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !slices.Contains(AllowedMediaExtensions, ext) {
		return nil, NewBusinessErrorf("UNSUPPORTED_FILE_TYPE", "File type %q is not allowed", ErrUnsupportedType, ext)
	}

	stored, err := s.mediaStore.Save(campaign.ID, filename, mimetype, r)
	if err != nil {
		if errors.Is(err, services.ErrMediaTooLarge) {
			return nil, NewBusinessError("MEDIA_TOO_LARGE", "File exceeds the maximum size", ErrMediaTooLarge)
		}
		return nil, NewBusinessError("MEDIA_STORE_FAILED", "Failed to store media file", err)
	}

	media := &models.MediaFile{
		CampaignID:       campaign.ID,
		Filename:         stored.Filename,
		OriginalFilename: filename,
		Filepath:         stored.Path,
		Mimetype:         stored.Mimetype,
		FileSize:         stored.Size,
	}
	if err := s.mediaRepo.Save(ctx, media); err != nil {
		s.removeStoredFile(campaign.ID, stored.Path)
		s.audit.failure(ctx, uc, models.AuditActionMediaUploaded, err)
		return nil, NewBusinessError("MEDIA_RECORD_FAILED", "Failed to record media file", err)
	}

	s.audit.record(ctx, uc, models.AuditActionMediaUploaded,
		fmt.Sprintf("Media %s attached to campaign %d", media.Filename, campaign.ID), true, nil)

	resp := ToMediaFileDTO(media)
	return &resp, nil
}

// DetachMedia removes the stored file best-effort, then always the record
func (s *CampaignFlowImpl) DetachMedia(ctx context.Context, uc UserContext, campaignID, mediaID uint) error {
	media, err := s.ownedMedia(ctx, uc, campaignID, mediaID)
	if err != nil {
		return err
	}

	s.removeStoredFile(campaignID, media.Filepath)

	if err := s.mediaRepo.Delete(ctx, media.ID); err != nil {
		return NewBusinessError("MEDIA_DELETION_FAILED", "Failed to delete media record", err)
	}

	s.audit.record(ctx, uc, models.AuditActionMediaDeleted,
		fmt.Sprintf("Media %d detached from campaign %d", media.ID, campaignID), true, nil)
	return nil
}

// MediaPreview renders a JPEG thumbnail of an image attachment
func (s *CampaignFlowImpl) MediaPreview(ctx context.Context, uc UserContext, campaignID, mediaID uint) ([]byte, error) {
	media, err := s.ownedMedia(ctx, uc, campaignID, mediaID)
	if err != nil {
		return nil, err
	}
	if !media.IsImage() {
		return nil, NewBusinessError("MEDIA_NOT_PREVIEWABLE", "Only images have a preview", ErrNotPreviewable)
	}

	thumb, err := s.mediaStore.Thumbnail(media.Filepath)
	if err != nil {
		if errors.Is(err, services.ErrMediaNotPreviewable) {
			return nil, NewBusinessError("MEDIA_NOT_PREVIEWABLE", "Image could not be decoded", ErrNotPreviewable)
		}
		return nil, NewBusinessError("MEDIA_PREVIEW_FAILED", "Failed to render preview", err)
	}
	return thumb, nil
}

func (s *CampaignFlowImpl) ownedMedia(ctx context.Context, uc UserContext, campaignID, mediaID uint) (*models.MediaFile, error) {
	if _, err := s.ownedCampaign(ctx, uc, campaignID); err != nil {
		return nil, err
	}
	media, err := s.mediaRepo.ByCampaignAndID(ctx, campaignID, mediaID)
	if err != nil {
		return nil, NewBusinessError("MEDIA_LOOKUP_FAILED", "Failed to lookup media file", err)
	}
	if media == nil {
		return nil, NewBusinessError("MEDIA_NOT_FOUND", "Media file not found", ErrMediaNotFound)
	}
	return media, nil
}

// GenerateMessage drafts a template with the ReplyGenerator; the campaign is
// only read
func (s *CampaignFlowImpl) GenerateMessage(ctx context.Context, uc UserContext, campaignID uint, req *dto.GenerateMessageRequest) (*dto.GenerateMessageResponse, error) {
	if _, err := s.ownedCampaign(ctx, uc, campaignID); err != nil {
		return nil, err
	}

	user, err := loadUser(ctx, s.userRepo, uc.UserID)
	if err != nil {
		return nil, err
	}
	if !user.HasAICredential() {
		return nil, NewBusinessError("GEMINI_NOT_CONFIGURED", "Gemini API key is not configured", ErrMissingCredential)
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, NewBusinessError("PROMPT_REQUIRED", "Prompt is required", ErrValidation)
	}

	draft, err := s.generator.DraftMessage(ctx, services.MessageDraftRequest{
		Prompt:  prompt,
		Tone:    req.Tone,
		Company: utils.DerefString(user.Company),
	})
	if err != nil {
		return nil, NewBusinessError("MESSAGE_GENERATION_FAILED", "Failed to generate message", err)
	}

	return &dto.GenerateMessageResponse{
		GeneratedMessage: draft.Message,
		Tone:             draft.Tone,
		Prompt:           draft.Prompt,
	}, nil
}

// loadUser returns the user or ErrUserNotFound
func loadUser(ctx context.Context, repo repository.UserRepository, userID uint) (*models.User, error) {
	user, err := repo.ByID(ctx, userID)
	if err != nil {
		return nil, NewBusinessError("USER_LOOKUP_FAILED", "Failed to lookup user", err)
	}
	if user == nil {
		return nil, NewBusinessError("USER_NOT_FOUND", "User not found", ErrUserNotFound)
	}
	return user, nil
}
