package businessflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/nexus-communicator/app/dto"
	"github.com/amirphl/nexus-communicator/app/services"
	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/repository"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	webhookStatusProcessed  = "processed"
	webhookMessageProcessed = "Webhook procesado exitosamente"
	completionEmailSubject  = "Campaña completada"
)

// DispatchFlow drives the campaign state machine and applies delivery outcomes
type DispatchFlow interface {
	SendCampaign(ctx context.Context, uc UserContext, campaignID uint) (*dto.SendCampaignResponse, error)
	PauseCampaign(ctx context.Context, uc UserContext, campaignID uint) (*dto.CampaignDTO, error)
	ResumeCampaign(ctx context.Context, uc UserContext, campaignID uint) (*dto.SendCampaignResponse, error)
	RecordDeliveryStatus(ctx context.Context, providerMessageID string, status models.DeliveryStatus, errorMessage string) (applied bool, err error)
	ProcessWebhook(ctx context.Context, payload *dto.WhatsAppWebhookPayload) (*dto.WebhookResult, error)
}

// DispatchFlowImpl implements the dispatch business flow
type DispatchFlowImpl struct {
	campaignRepo repository.CampaignRepository
	deliveryRepo repository.CampaignDeliveryRepository
	userRepo     repository.UserRepository
	sender       services.MessageSender
	notifier     services.NotificationService
	rc           *redis.Client
	lockTTL      time.Duration
	audit        auditor
	db           *gorm.DB
}

// NewDispatchFlow creates a new dispatch flow instance; rc and notifier may be nil
func NewDispatchFlow(
	campaignRepo repository.CampaignRepository,
	deliveryRepo repository.CampaignDeliveryRepository,
	userRepo repository.UserRepository,
	auditRepo repository.AuditLogRepository,
	sender services.MessageSender,
	notifier services.NotificationService,
	rc *redis.Client,
	lockTTL time.Duration,
	db *gorm.DB,
) DispatchFlow {
	return &DispatchFlowImpl{
		campaignRepo: campaignRepo,
		deliveryRepo: deliveryRepo,
		userRepo:     userRepo,
		sender:       sender,
		notifier:     notifier,
		rc:           rc,
		lockTTL:      lockTTL,
		audit:        auditor{repo: auditRepo},
		db:           db,
	}
}

// dispatchOutcome sums what one sender call produced
type dispatchOutcome struct {
	accepted int
	failed   int
}

// SendCampaign activates a draft or scheduled campaign, creates one pending
// delivery per recipient and hands the batch to the MessageSender.
// Preconditions are checked in order and leave the status untouched.
func (s *DispatchFlowImpl) SendCampaign(ctx context.Context, uc UserContext, campaignID uint) (*dto.SendCampaignResponse, error) {
	campaign, err := loadOwnedCampaign(ctx, s.campaignRepo, uc, campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.Status.IsDispatchable() {
		return nil, NewBusinessErrorf("CAMPAIGN_NOT_SENDABLE", "Campaign cannot be sent while %s", ErrInvalidTransition, campaign.Status)
	}

	recipients, err := s.campaignRepo.Recipients(ctx, campaign.ID, 0)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_RECIPIENTS_FAILED", "Failed to load recipients", err)
	}
	if len(recipients) == 0 {
		return nil, NewBusinessError("NO_RECIPIENTS", "Campaign has no recipients", ErrNoRecipients)
	}

	user, err := loadUser(ctx, s.userRepo, uc.UserID)
	if err != nil {
		return nil, err
	}
	if !user.HasMessagingCredential() {
		return nil, NewBusinessError("WHATSAPP_NOT_CONFIGURED", "WhatsApp API key is not configured", ErrMissingCredential)
	}

	unlock, err := s.lock(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	from := campaign.Status
	deliveries := make([]*models.CampaignDelivery, 0, len(recipients))
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		changed, err := s.campaignRepo.TransitionStatus(txCtx, campaign.ID, from, models.CampaignStatusActive,
			map[string]any{"sent_at": utils.UTCNow()})
		if err != nil {
			return err
		}
		if !changed {
			return ErrInvalidTransition
		}
		for _, c := range recipients {
			deliveries = append(deliveries, &models.CampaignDelivery{
				CampaignID: campaign.ID,
				ContactID:  c.ID,
				Phone:      c.Phone,
				Status:     models.DeliveryStatusPending,
			})
		}
		return s.deliveryRepo.SaveBatch(txCtx, deliveries)
	})
	if err != nil {
		if IsInvalidTransition(err) {
			return nil, NewBusinessError("CAMPAIGN_NOT_SENDABLE", "Campaign status changed concurrently", ErrInvalidTransition)
		}
		s.audit.failure(ctx, uc, models.AuditActionCampaignSent, err)
		return nil, NewBusinessError("CAMPAIGN_SEND_FAILED", "Failed to start campaign dispatch", err)
	}
	observeTransition(string(from), string(models.CampaignStatusActive))

	contacts := make(map[uint]*models.Contact, len(recipients))
	for _, c := range recipients {
		contacts[c.ID] = c
	}

	outcome, err := s.dispatch(ctx, uc, campaign, user, deliveries, contacts)
	if err != nil {
		return nil, err
	}

	s.audit.record(ctx, uc, models.AuditActionCampaignSent,
		fmt.Sprintf("Campaign %d sent to %d recipients", campaign.ID, len(deliveries)), true, nil)

	return s.sendResponse(ctx, uc, campaign.ID, fmt.Sprintf("Campaña enviada a %d destinatarios", len(deliveries)), outcome)
}

// PauseCampaign stops an active campaign; pending deliveries stay pending
func (s *DispatchFlowImpl) PauseCampaign(ctx context.Context, uc UserContext, campaignID uint) (*dto.CampaignDTO, error) {
	campaign, err := loadOwnedCampaign(ctx, s.campaignRepo, uc, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusActive {
		return nil, NewBusinessErrorf("CAMPAIGN_NOT_PAUSABLE", "Campaign cannot be paused while %s", ErrInvalidTransition, campaign.Status)
	}

	changed, err := s.campaignRepo.TransitionStatus(ctx, campaign.ID, models.CampaignStatusActive, models.CampaignStatusPaused, nil)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_PAUSE_FAILED", "Failed to pause campaign", err)
	}
	if !changed {
		return nil, NewBusinessError("CAMPAIGN_NOT_PAUSABLE", "Campaign status changed concurrently", ErrInvalidTransition)
	}
	observeTransition(string(models.CampaignStatusActive), string(models.CampaignStatusPaused))

	s.audit.record(ctx, uc, models.AuditActionCampaignPaused, fmt.Sprintf("Campaign %d paused", campaign.ID), true, nil)

	campaign, err = loadOwnedCampaign(ctx, s.campaignRepo, uc, campaignID)
	if err != nil {
		return nil, err
	}
	resp := ToCampaignDTO(campaign)
	return &resp, nil
}

// ResumeCampaign reactivates a paused campaign. Recipients may have changed
// while it was paused, so deliveries are reconciled first: bound contacts
// without a delivery get a pending one, and pending deliveries of unbound
// contacts are dropped. Every delivery left pending is then re-sent.
func (s *DispatchFlowImpl) ResumeCampaign(ctx context.Context, uc UserContext, campaignID uint) (*dto.SendCampaignResponse, error) {
	campaign, err := loadOwnedCampaign(ctx, s.campaignRepo, uc, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusPaused {
		return nil, NewBusinessErrorf("CAMPAIGN_NOT_RESUMABLE", "Campaign cannot be resumed while %s", ErrInvalidTransition, campaign.Status)
	}

	user, err := loadUser(ctx, s.userRepo, uc.UserID)
	if err != nil {
		return nil, err
	}
	if !user.HasMessagingCredential() {
		return nil, NewBusinessError("WHATSAPP_NOT_CONFIGURED", "WhatsApp API key is not configured", ErrMissingCredential)
	}

	unlock, err := s.lock(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var recipients []*models.Contact
	var added, dropped int64
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		changed, err := s.campaignRepo.TransitionStatus(txCtx, campaign.ID, models.CampaignStatusPaused, models.CampaignStatusActive, nil)
		if err != nil {
			return err
		}
		if !changed {
			return ErrInvalidTransition
		}

		recipients, err = s.campaignRepo.Recipients(txCtx, campaign.ID, 0)
		if err != nil {
			return err
		}
		if len(recipients) == 0 {
			return ErrNoRecipients
		}
		added, dropped, err = s.reconcileDeliveries(txCtx, campaign.ID, recipients)
		return err
	})
	if err != nil {
		switch {
		case IsInvalidTransition(err):
			return nil, NewBusinessError("CAMPAIGN_NOT_RESUMABLE", "Campaign status changed concurrently", ErrInvalidTransition)
		case IsNoRecipients(err):
			return nil, NewBusinessError("NO_RECIPIENTS", "Campaign has no recipients", ErrNoRecipients)
		}
		s.audit.failure(ctx, uc, models.AuditActionCampaignResumed, err)
		return nil, NewBusinessError("CAMPAIGN_RESUME_FAILED", "Failed to resume campaign", err)
	}
	observeTransition(string(models.CampaignStatusPaused), string(models.CampaignStatusActive))

	pending := models.DeliveryStatusPending
	deliveries, err := s.deliveryRepo.ByCampaign(ctx, campaign.ID, &pending)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_RESUME_FAILED", "Failed to load pending deliveries", err)
	}

	contacts := make(map[uint]*models.Contact, len(recipients))
	for _, c := range recipients {
		contacts[c.ID] = c
	}

	outcome, err := s.dispatch(ctx, uc, campaign, user, deliveries, contacts)
	if err != nil {
		return nil, err
	}

	s.audit.record(ctx, uc, models.AuditActionCampaignResumed,
		fmt.Sprintf("Campaign %d resumed with %d pending deliveries (%d added, %d dropped)", campaign.ID, len(deliveries), added, dropped), true, nil)

	return s.sendResponse(ctx, uc, campaign.ID, "Campaña reanudada", outcome)
}

// reconcileDeliveries aligns the delivery rows of a campaign with its current
// recipient set. Deliveries that already left pending are kept as history.
func (s *DispatchFlowImpl) reconcileDeliveries(ctx context.Context, campaignID uint, recipients []*models.Contact) (added, dropped int64, err error) {
	bound := make([]uint, 0, len(recipients))
	for _, c := range recipients {
		bound = append(bound, c.ID)
	}

	dropped, err = s.deliveryRepo.DeletePendingExcept(ctx, campaignID, bound)
	if err != nil {
		return 0, 0, err
	}

	existing, err := s.deliveryRepo.ByCampaign(ctx, campaignID, nil)
	if err != nil {
		return 0, 0, err
	}
	has := make(map[uint]bool, len(existing))
	for _, d := range existing {
		has[d.ContactID] = true
	}

	var fresh []*models.CampaignDelivery
	for _, c := range recipients {
		if has[c.ID] {
			continue
		}
		fresh = append(fresh, &models.CampaignDelivery{
			CampaignID: campaignID,
			ContactID:  c.ID,
			Phone:      c.Phone,
			Status:     models.DeliveryStatusPending,
		})
	}
	if err := s.deliveryRepo.SaveBatch(ctx, fresh); err != nil {
		return 0, 0, err
	}
	return int64(len(fresh)), dropped, nil
}

// dispatch renders and sends the given deliveries, applies every result and
// re-checks completion. A transport failure pauses the campaign.
func (s *DispatchFlowImpl) dispatch(
	ctx context.Context,
	uc UserContext,
	campaign *models.Campaign,
	user *models.User,
	deliveries []*models.CampaignDelivery,
	contacts map[uint]*models.Contact,
) (dispatchOutcome, error) {
	var outcome dispatchOutcome

	byID := make(map[uint]*models.CampaignDelivery, len(deliveries))
	messages := make([]services.OutboundMessage, 0, len(deliveries))
	for _, d := range deliveries {
		byID[d.ID] = d
		contact, ok := contacts[d.ContactID]
		if !ok {
			contact = &models.Contact{Phone: d.Phone}
		}
		messages = append(messages, services.OutboundMessage{
			DeliveryID: d.ID,
			Phone:      d.Phone,
			Body:       RenderMessage(campaign.Message, contact),
		})
	}

	var sendErr error
	if len(messages) > 0 {
		var results []services.SendResult
		results, sendErr = s.sender.Send(ctx, utils.DerefString(user.WhatsAppAPIKey), messages)
		for _, res := range results {
			d, ok := byID[res.DeliveryID]
			if !ok {
				continue
			}
			if res.Status == models.DeliveryStatusFailed {
				outcome.failed++
			} else {
				outcome.accepted++
			}
			if _, err := s.applyOutcome(ctx, d, res.Status, res.ProviderMessageID, res.Error); err != nil {
				logrus.WithFields(logrus.Fields{
					"campaign_id": campaign.ID,
					"delivery_id": d.ID,
					"error":       err,
				}).Error("failed to apply delivery outcome")
			}
		}
	}

	if sendErr != nil {
		dispatchFailuresTotal.Inc()
		logrus.WithFields(logrus.Fields{
			"campaign_id": campaign.ID,
			"user_id":     uc.UserID,
			"error":       sendErr,
		}).Error("campaign dispatch failed, pausing campaign")

		if changed, err := s.campaignRepo.TransitionStatus(ctx, campaign.ID, models.CampaignStatusActive, models.CampaignStatusPaused, nil); err != nil {
			logrus.WithError(err).WithField("campaign_id", campaign.ID).Error("failed to pause campaign after dispatch failure")
		} else if changed {
			observeTransition(string(models.CampaignStatusActive), string(models.CampaignStatusPaused))
		}
		s.audit.failure(ctx, uc, models.AuditActionCampaignSent, sendErr)
		return outcome, NewBusinessError("DISPATCH_FAILED", "Messaging provider is unavailable, campaign paused", ErrDispatchFailed)
	}

	s.completeIfSettled(ctx, campaign.ID, user)
	return outcome, nil
}

// applyOutcome advances one delivery and bumps the campaign counters for the
// ranks it crossed. Regressions and repeats are ignored.
func (s *DispatchFlowImpl) applyOutcome(ctx context.Context, d *models.CampaignDelivery, next models.DeliveryStatus, providerMessageID, errorMessage string) (bool, error) {
	prev := d.Status
	if !prev.CanAdvanceTo(next) {
		if providerMessageID != "" && d.ProviderMessageID == nil {
			d.ProviderMessageID = &providerMessageID
			return false, s.deliveryRepo.UpdateFields(ctx, d.ID, map[string]any{"provider_message_id": providerMessageID})
		}
		return false, nil
	}

	now := utils.UTCNow()
	values := map[string]any{"status": next}
	if providerMessageID != "" && d.ProviderMessageID == nil {
		values["provider_message_id"] = providerMessageID
	}
	if next.Rank() >= models.DeliveryStatusSent.Rank() && d.SentAt == nil {
		values["sent_at"] = now
	}
	if next.Rank() >= models.DeliveryStatusDelivered.Rank() && d.DeliveredAt == nil {
		values["delivered_at"] = now
	}
	if next == models.DeliveryStatusRead {
		values["read_at"] = now
	}
	if next == models.DeliveryStatusFailed && errorMessage != "" {
		values["error_message"] = errorMessage
	}

	var sent, opened int64
	if prev.Rank() < models.DeliveryStatusSent.Rank() && next.Rank() >= models.DeliveryStatusSent.Rank() {
		sent = 1
	}
	if prev != models.DeliveryStatusRead && next == models.DeliveryStatusRead {
		opened = 1
	}

	var changed bool
	err := repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		var err error
		changed, err = s.deliveryRepo.AdvanceStatus(txCtx, d.ID, prev, values)
		if err != nil || !changed {
			return err
		}
		return s.campaignRepo.IncrementCounters(txCtx, d.CampaignID, sent, opened)
	})
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	d.Status = next
	if providerMessageID != "" && d.ProviderMessageID == nil {
		d.ProviderMessageID = &providerMessageID
	}
	deliveryOutcomesTotal.WithLabelValues(string(next)).Inc()
	return true, nil
}

// completeIfSettled moves an active campaign to completed once no delivery
// is still pending or merely sent, and notifies the owner
func (s *DispatchFlowImpl) completeIfSettled(ctx context.Context, campaignID uint, user *models.User) bool {
	open, err := s.deliveryRepo.CountOpen(ctx, campaignID)
	if err != nil {
		logrus.WithError(err).WithField("campaign_id", campaignID).Error("failed to count open deliveries")
		return false
	}
	if open > 0 {
		return false
	}

	changed, err := s.campaignRepo.TransitionStatus(ctx, campaignID, models.CampaignStatusActive, models.CampaignStatusCompleted, nil)
	if err != nil {
		logrus.WithError(err).WithField("campaign_id", campaignID).Error("failed to complete campaign")
		return false
	}
	if !changed {
		return false
	}
	observeTransition(string(models.CampaignStatusActive), string(models.CampaignStatusCompleted))

	uc := NewUserContext(user.ID, nil)
	s.audit.record(ctx, uc, models.AuditActionCampaignCompleted, fmt.Sprintf("Campaign %d completed", campaignID), true, nil)
	s.notifyCompletion(ctx, campaignID, user)
	return true
}

func (s *DispatchFlowImpl) notifyCompletion(ctx context.Context, campaignID uint, user *models.User) {
	if s.notifier == nil || !user.EmailNotifications {
		return
	}

	campaign, err := s.campaignRepo.ByID(ctx, campaignID)
	if err != nil || campaign == nil {
		return
	}

	body := fmt.Sprintf("Hola %s,\n\nTu campaña \"%s\" ha finalizado.\nMensajes enviados: %d\nMensajes leídos: %d\n",
		user.Name, campaign.Name, campaign.SentCount, campaign.OpenedCount)
	if err := s.notifier.SendEmail(user.Email, completionEmailSubject, body); err != nil {
		logrus.WithFields(logrus.Fields{
			"campaign_id": campaignID,
			"user_id":     user.ID,
			"error":       err,
		}).Warn("failed to send completion email")
	}
}

// RecordDeliveryStatus applies a provider status update. Unknown message ids
// and regressions are ignored.
func (s *DispatchFlowImpl) RecordDeliveryStatus(ctx context.Context, providerMessageID string, status models.DeliveryStatus, errorMessage string) (bool, error) {
	applied, _, err := s.recordStatus(ctx, providerMessageID, status, errorMessage)
	return applied, err
}

func (s *DispatchFlowImpl) recordStatus(ctx context.Context, providerMessageID string, status models.DeliveryStatus, errorMessage string) (applied, finished bool, err error) {
	if providerMessageID == "" || !status.Valid() {
		return false, false, nil
	}

	d, err := s.deliveryRepo.ByProviderMessageID(ctx, providerMessageID)
	if err != nil {
		return false, false, NewBusinessError("DELIVERY_LOOKUP_FAILED", "Failed to lookup delivery", err)
	}
	if d == nil {
		return false, false, nil
	}

	applied, err = s.applyOutcome(ctx, d, status, "", errorMessage)
	if err != nil {
		return false, false, NewBusinessError("DELIVERY_UPDATE_FAILED", "Failed to apply delivery status", err)
	}
	if !applied || !status.IsTerminal() {
		return applied, false, nil
	}

	campaign, err := s.campaignRepo.ByID(ctx, d.CampaignID)
	if err != nil || campaign == nil || campaign.Status != models.CampaignStatusActive {
		return applied, false, nil
	}
	user, err := s.userRepo.ByID(ctx, campaign.UserID)
	if err != nil || user == nil {
		return applied, false, nil
	}
	return applied, s.completeIfSettled(ctx, campaign.ID, user), nil
}

// ProcessWebhook walks a WhatsApp Cloud API callback. Status entries update
// deliveries; inbound messages are counted and logged.
func (s *DispatchFlowImpl) ProcessWebhook(ctx context.Context, payload *dto.WhatsAppWebhookPayload) (*dto.WebhookResult, error) {
	result := &dto.WebhookResult{
		Status:  webhookStatusProcessed,
		Message: webhookMessageProcessed,
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, st := range change.Value.Statuses {
				status := models.DeliveryStatus(strings.ToLower(st.Status))
				var errMsg string
				if len(st.Errors) > 0 {
					errMsg = st.Errors[0].Title
				}
				applied, finished, err := s.recordStatus(ctx, st.ID, status, errMsg)
				if err != nil {
					return nil, err
				}
				if finished {
					result.CampaignsFinished++
				}
				if applied {
					result.StatusesApplied++
				} else {
					result.StatusesIgnored++
				}
			}
			for _, msg := range change.Value.Messages {
				result.MessagesReceived++
				logrus.WithFields(logrus.Fields{
					"from": msg.From,
					"id":   msg.ID,
					"type": msg.Type,
				}).Info("inbound WhatsApp message received")
			}
		}
	}

	return result, nil
}

// lock takes the per-campaign dispatch lock when Redis is configured. A Redis
// outage degrades to unlocked dispatch.
func (s *DispatchFlowImpl) lock(ctx context.Context, campaignID uint) (func(), error) {
	noop := func() {}
	if s.rc == nil {
		return noop, nil
	}

	key := fmt.Sprintf("%s%d", utils.DispatchLockKeyPrefix, campaignID)
	ok, err := s.rc.SetNX(ctx, key, 1, s.lockTTL).Result()
	if err != nil {
		logrus.WithError(err).WithField("campaign_id", campaignID).Warn("dispatch lock unavailable")
		return noop, nil
	}
	if !ok {
		return nil, NewBusinessError("DISPATCH_IN_FLIGHT", "Campaign is already being dispatched", ErrDispatchInFlight)
	}

	return func() {
		if err := s.rc.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
			logrus.WithError(err).WithField("campaign_id", campaignID).Warn("failed to release dispatch lock")
		}
	}, nil
}

func (s *DispatchFlowImpl) sendResponse(ctx context.Context, uc UserContext, campaignID uint, message string, outcome dispatchOutcome) (*dto.SendCampaignResponse, error) {
	campaign, err := loadOwnedCampaign(ctx, s.campaignRepo, uc, campaignID)
	if err != nil {
		return nil, err
	}
	open, err := s.deliveryRepo.CountOpen(ctx, campaignID)
	if err != nil {
		return nil, NewBusinessError("DELIVERY_COUNT_FAILED", "Failed to count open deliveries", err)
	}

	return &dto.SendCampaignResponse{
		Message:   message,
		Campaign:  ToCampaignDTO(campaign),
		Accepted:  outcome.accepted,
		Failed:    outcome.failed,
		Pending:   int(open),
		Completed: campaign.Status == models.CampaignStatusCompleted,
	}, nil
}
