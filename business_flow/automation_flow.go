package businessflow

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/nexus-communicator/app/dto"
	"github.com/amirphl/nexus-communicator/app/services"
	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/repository"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/sirupsen/logrus"
)

const (
	activityWindowDays   = 30
	testContactName      = "Usuario de Prueba"
	webhookModeSubscribe = "subscribe"
)

// AutomationFlow handles the auto-reply assistant and its activity log
type AutomationFlow interface {
	GetStatus(ctx context.Context, uc UserContext) (*dto.AutomationStatusResponse, error)
	Toggle(ctx context.Context, uc UserContext, enabled bool) (*dto.ToggleAutomationResponse, error)
	Enable(ctx context.Context, uc UserContext) (*dto.ToggleAutomationResponse, error)
	Disable(ctx context.Context, uc UserContext) (*dto.ToggleAutomationResponse, error)
	GetKnowledgeBase(ctx context.Context, uc UserContext) (*dto.KnowledgeBaseResponse, error)
	UpdateKnowledgeBase(ctx context.Context, uc UserContext, text string) (*dto.KnowledgeBaseResponse, error)
	TestResponse(ctx context.Context, uc UserContext, message string) (*dto.TestResponseResponse, error)
	ListActivity(ctx context.Context, uc UserContext, req *dto.ListActivityRequest) (*dto.ListActivityResponse, error)
	GetActivityStats(ctx context.Context, uc UserContext) (*dto.ActivityStatsResponse, error)
	GetSettings(ctx context.Context, uc UserContext) (*dto.AutomationSettingsResponse, error)
	ClearActivity(ctx context.Context, uc UserContext) (*dto.ClearActivityResponse, error)
	VerifyWebhook(mode, token, challenge string) (string, error)
}

// AutomationFlowImpl implements the automation business flow
type AutomationFlowImpl struct {
	userRepo     repository.UserRepository
	activityRepo repository.BotActivityRepository
	generator    services.ReplyGenerator
	audit        auditor
	verifyToken  string
}

// NewAutomationFlow creates a new automation flow instance
func NewAutomationFlow(
	userRepo repository.UserRepository,
	activityRepo repository.BotActivityRepository,
	auditRepo repository.AuditLogRepository,
	generator services.ReplyGenerator,
	verifyToken string,
) AutomationFlow {
	return &AutomationFlowImpl{
		userRepo:     userRepo,
		activityRepo: activityRepo,
		generator:    generator,
		audit:        auditor{repo: auditRepo},
		verifyToken:  verifyToken,
	}
}

// GetStatus reports the flag, the configured prerequisites and the last activity time
func (f *AutomationFlowImpl) GetStatus(ctx context.Context, uc UserContext) (*dto.AutomationStatusResponse, error) {
	user, err := loadUser(ctx, f.userRepo, uc.UserID)
	if err != nil {
		return nil, err
	}

	latest, err := f.activityRepo.ByFilter(ctx, models.BotActivityFilter{UserID: &uc.UserID}, "created_at DESC, id DESC", 1, 0)
	if err != nil {
		return nil, NewBusinessError("ACTIVITY_LOOKUP_FAILED", "Failed to load activity", err)
	}

	resp := &dto.AutomationStatusResponse{
		Enabled:                 user.GeminiAutoReplyEnabled,
		GeminiConfigured:        user.HasAICredential(),
		KnowledgeBaseConfigured: user.HasKnowledgeBase(),
	}
	if len(latest) > 0 {
		resp.LastActivity = utils.FormatTimePtr(&latest[0].CreatedAt)
	}
	return resp, nil
}

// Toggle dispatches to Enable or Disable
func (f *AutomationFlowImpl) Toggle(ctx context.Context, uc UserContext, enabled bool) (*dto.ToggleAutomationResponse, error) {
	if enabled {
		return f.Enable(ctx, uc)
	}
	return f.Disable(ctx, uc)
}

// Enable requires an AI credential and a non-empty knowledge base
func (f *AutomationFlowImpl) Enable(ctx context.Context, uc UserContext) (*dto.ToggleAutomationResponse, error) {
	user, err := loadUser(ctx, f.userRepo, uc.UserID)
	if err != nil {
		return nil, err
	}
	if !user.HasAICredential() {
		return nil, NewBusinessError("GEMINI_NOT_CONFIGURED", "Gemini API key is not configured", ErrMissingCredential)
	}
	if !user.HasKnowledgeBase() {
		return nil, NewBusinessError("KNOWLEDGE_BASE_NOT_CONFIGURED", "Knowledge base is empty", ErrMissingCredential)
	}
	return f.setEnabled(ctx, uc, true)
}

// Disable always succeeds
func (f *AutomationFlowImpl) Disable(ctx context.Context, uc UserContext) (*dto.ToggleAutomationResponse, error) {
	if _, err := loadUser(ctx, f.userRepo, uc.UserID); err != nil {
		return nil, err
	}
	return f.setEnabled(ctx, uc, false)
}

func (f *AutomationFlowImpl) setEnabled(ctx context.Context, uc UserContext, enabled bool) (*dto.ToggleAutomationResponse, error) {
	if err := f.userRepo.UpdateFields(ctx, uc.UserID, map[string]any{"gemini_auto_reply_enabled": enabled}); err != nil {
		f.audit.failure(ctx, uc, models.AuditActionAutomationToggled, err)
		return nil, NewBusinessError("AUTOMATION_TOGGLE_FAILED", "Failed to update automation", err)
	}

	word := "desactivada"
	if enabled {
		word = "activada"
	}
	f.appendActivity(ctx, uc, &models.BotActivity{
		ActivityType:   models.ActivityAutomationToggled,
		MessageContent: utils.ToPtr("Automatización " + word),
		Status:         models.ActivityStatusSuccess,
	})
	f.audit.record(ctx, uc, models.AuditActionAutomationToggled, "Automation "+word, true, nil)

	return &dto.ToggleAutomationResponse{
		Message: fmt.Sprintf("Automatización %s exitosamente", word),
		Enabled: enabled,
	}, nil
}

// GetKnowledgeBase returns the stored text, empty when unset
func (f *AutomationFlowImpl) GetKnowledgeBase(ctx context.Context, uc UserContext) (*dto.KnowledgeBaseResponse, error) {
	user, err := loadUser(ctx, f.userRepo, uc.UserID)
	if err != nil {
		return nil, err
	}
	return &dto.KnowledgeBaseResponse{
		KnowledgeBase: utils.DerefString(user.GeminiKnowledgeBase),
		LastUpdated:   utils.FormatTimePtr(&user.UpdatedAt),
	}, nil
}

// UpdateKnowledgeBase replaces the knowledge base text
func (f *AutomationFlowImpl) UpdateKnowledgeBase(ctx context.Context, uc UserContext, text string) (*dto.KnowledgeBaseResponse, error) {
	if _, err := loadUser(ctx, f.userRepo, uc.UserID); err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if err := f.userRepo.UpdateFields(ctx, uc.UserID, map[string]any{"gemini_knowledge_base": text}); err != nil {
		f.audit.failure(ctx, uc, models.AuditActionKnowledgeBaseUpdated, err)
		return nil, NewBusinessError("KNOWLEDGE_BASE_UPDATE_FAILED", "Failed to update knowledge base", err)
	}

	f.appendActivity(ctx, uc, &models.BotActivity{
		ActivityType:   models.ActivityKnowledgeBaseUpdated,
		MessageContent: utils.ToPtr("Base de conocimiento actualizada"),
		Status:         models.ActivityStatusSuccess,
	})
	f.audit.record(ctx, uc, models.AuditActionKnowledgeBaseUpdated,
		fmt.Sprintf("Knowledge base updated (%d chars)", len(text)), true, nil)

	return &dto.KnowledgeBaseResponse{
		Message:       "Base de conocimiento actualizada exitosamente",
		KnowledgeBase: text,
		LastUpdated:   utils.FormatTimePtr(utils.UTCNowPtr()),
	}, nil
}

// TestResponse runs the ReplyGenerator on a sample message and logs the exchange
func (f *AutomationFlowImpl) TestResponse(ctx context.Context, uc UserContext, message string) (*dto.TestResponseResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, NewBusinessError("TEST_MESSAGE_REQUIRED", "Test message is required", ErrValidation)
	}

	user, err := loadUser(ctx, f.userRepo, uc.UserID)
	if err != nil {
		return nil, err
	}
	if !user.HasAICredential() || !user.HasKnowledgeBase() {
		return nil, NewBusinessError("AUTOMATION_NOT_CONFIGURED", "Gemini API key and knowledge base are required", ErrMissingCredential)
	}

	started := time.Now()
	reply, err := f.generator.Reply(ctx, services.ReplyRequest{
		Credential:    utils.DerefString(user.GeminiAPIKey),
		KnowledgeBase: utils.DerefString(user.GeminiKnowledgeBase),
		Message:       message,
	})
	if err != nil {
		f.appendActivity(ctx, uc, &models.BotActivity{
			ActivityType:   models.ActivityTestResponse,
			ContactName:    utils.ToPtr(testContactName),
			MessageContent: &message,
			Status:         models.ActivityStatusFailed,
		})
		return nil, NewBusinessError("REPLY_GENERATION_FAILED", "Failed to generate response", err)
	}
	elapsed := time.Since(started)

	contactName := reply.ContactName
	if contactName == "" {
		contactName = testContactName
	}
	f.appendActivity(ctx, uc, &models.BotActivity{
		ActivityType:    models.ActivityTestResponse,
		ContactName:     &contactName,
		MessageContent:  &message,
		ResponseContent: &reply.Response,
		Status:          models.ActivityStatusSuccess,
	})

	return &dto.TestResponseResponse{
		TestMessage:       message,
		GeneratedResponse: reply.Response,
		ResponseTime:      fmt.Sprintf("%.1fs", elapsed.Seconds()),
		Confidence:        reply.Confidence,
	}, nil
}

// ListActivity pages the activity log, newest first
func (f *AutomationFlowImpl) ListActivity(ctx context.Context, uc UserContext, req *dto.ListActivityRequest) (*dto.ListActivityResponse, error) {
	page, perPage := normalizePage(req.Page, req.PerPage)

	filter := models.BotActivityFilter{UserID: &uc.UserID}
	if t := strings.TrimSpace(req.Type); t != "" {
		filter.ActivityType = &t
	}

	total, err := f.activityRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("ACTIVITY_LIST_FAILED", "Failed to count activity", err)
	}
	activities, err := f.activityRepo.ByFilter(ctx, filter, "created_at DESC, id DESC", perPage, (page-1)*perPage)
	if err != nil {
		return nil, NewBusinessError("ACTIVITY_LIST_FAILED", "Failed to list activity", err)
	}

	return &dto.ListActivityResponse{
		Activities: toBotActivityDTOs(activities),
		Pagination: buildPagination(page, perPage, total),
	}, nil
}

// GetActivityStats rolls up the activity log by window, type and outcome
func (f *AutomationFlowImpl) GetActivityStats(ctx context.Context, uc UserContext) (*dto.ActivityStatsResponse, error) {
	wrap := func(err error) error {
		return NewBusinessError("ACTIVITY_STATS_FAILED", "Failed to compute activity stats", err)
	}

	total, err := f.activityRepo.Count(ctx, models.BotActivityFilter{UserID: &uc.UserID})
	if err != nil {
		return nil, wrap(err)
	}
	since := utils.UTCDaysAgo(activityWindowDays)
	recent, err := f.activityRepo.Count(ctx, models.BotActivityFilter{UserID: &uc.UserID, CreatedAfter: &since})
	if err != nil {
		return nil, wrap(err)
	}
	today := utils.StartOfUTCDay(utils.UTCNow())
	todayCount, err := f.activityRepo.Count(ctx, models.BotActivityFilter{UserID: &uc.UserID, CreatedAfter: &today})
	if err != nil {
		return nil, wrap(err)
	}
	byType, err := f.activityRepo.CountByType(ctx, uc.UserID)
	if err != nil {
		return nil, wrap(err)
	}
	byStatus, err := f.activityRepo.CountByStatus(ctx, uc.UserID)
	if err != nil {
		return nil, wrap(err)
	}

	successful := byStatus[models.ActivityStatusSuccess]
	return &dto.ActivityStatsResponse{
		TotalActivities:      total,
		RecentActivities:     recent,
		TodayActivities:      todayCount,
		MessageReceived:      byType[models.ActivityMessageReceived],
		AutoReplies:          byType[models.ActivityAutoReplySent],
		SuccessfulActivities: successful,
		FailedActivities:     byStatus[models.ActivityStatusFailed],
		SuccessRate:          utils.Percent(successful, total),
	}, nil
}

// GetSettings returns the automation configuration summary
func (f *AutomationFlowImpl) GetSettings(ctx context.Context, uc UserContext) (*dto.AutomationSettingsResponse, error) {
	user, err := loadUser(ctx, f.userRepo, uc.UserID)
	if err != nil {
		return nil, err
	}
	return &dto.AutomationSettingsResponse{
		AutoReplyEnabled:        user.GeminiAutoReplyEnabled,
		GeminiAPIConfigured:     user.HasAICredential(),
		KnowledgeBaseConfigured: user.HasKnowledgeBase(),
		KnowledgeBaseLength:     len([]rune(utils.DerefString(user.GeminiKnowledgeBase))),
		LastUpdated:             utils.FormatTimePtr(&user.UpdatedAt),
	}, nil
}

// ClearActivity deletes the whole activity log of the user
func (f *AutomationFlowImpl) ClearActivity(ctx context.Context, uc UserContext) (*dto.ClearActivityResponse, error) {
	deleted, err := f.activityRepo.DeleteByUser(ctx, uc.UserID)
	if err != nil {
		return nil, NewBusinessError("ACTIVITY_CLEAR_FAILED", "Failed to clear activity", err)
	}
	return &dto.ClearActivityResponse{
		Message:      fmt.Sprintf("Historial de actividad limpiado: %d registros eliminados", deleted),
		DeletedCount: deleted,
	}, nil
}

// VerifyWebhook answers the WhatsApp subscription handshake
func (f *AutomationFlowImpl) VerifyWebhook(mode, token, challenge string) (string, error) {
	if mode != webhookModeSubscribe || f.verifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(f.verifyToken)) != 1 {
		return "", NewBusinessError("WEBHOOK_VERIFICATION_FAILED", "Verification failed", ErrWebhookVerification)
	}
	return challenge, nil
}

// appendActivity writes one log entry; a failed write is logged and dropped
func (f *AutomationFlowImpl) appendActivity(ctx context.Context, uc UserContext, activity *models.BotActivity) {
	activity.UserID = uc.UserID
	if err := f.activityRepo.Save(ctx, activity); err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id":       uc.UserID,
			"activity_type": activity.ActivityType,
			"error":         err,
		}).Warn("failed to record bot activity")
	}
}
