// Package scheduler runs background jobs that move campaigns forward without a user request
package scheduler

import (
	"context"
	"sync"
	"time"

	businessflow "github.com/amirphl/nexus-communicator/business_flow"
	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/repository"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/sirupsen/logrus"
)

// CampaignScheduler periodically dispatches scheduled campaigns whose scheduled_at has passed
type CampaignScheduler struct {
	campaignRepo repository.CampaignRepository
	dispatch     businessflow.DispatchFlow
	interval     time.Duration
	batchSize    int
	logger       *logrus.Entry

	mu sync.Mutex
	// parked remembers campaigns that failed a precondition at a given
	// updated_at so they are retried only after the owner edits them
	parked map[uint]time.Time
}

func NewCampaignScheduler(
	campaignRepo repository.CampaignRepository,
	dispatch businessflow.DispatchFlow,
	interval time.Duration,
	batchSize int,
) *CampaignScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 20
	}

	return &CampaignScheduler{
		campaignRepo: campaignRepo,
		dispatch:     dispatch,
		interval:     interval,
		batchSize:    batchSize,
		logger:       logrus.WithField("component", "campaign_scheduler"),
		parked:       make(map[uint]time.Time),
	}
}

// Start launches the scheduler loop in a background goroutine and returns a stop function
func (s *CampaignScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// RunOnce dispatches every due campaign found in one pass and reports how many went out
func (s *CampaignScheduler) RunOnce(ctx context.Context) int {
	now := utils.UTCNow()
	status := models.CampaignStatusScheduled
	due, err := s.campaignRepo.ByFilter(ctx, models.CampaignFilter{Status: &status, DueBefore: &now}, "scheduled_at ASC, id ASC", s.batchSize, 0)
	if err != nil {
		s.logger.WithError(err).Error("list due campaigns failed")
		return 0
	}

	sent := 0
	for _, campaign := range due {
		if ctx.Err() != nil {
			return sent
		}
		if s.isParked(campaign) {
			continue
		}

		uc := businessflow.NewUserContext(campaign.UserID, businessflow.NewClientMetadata("scheduler", "campaign-scheduler"))
		resp, err := s.dispatch.SendCampaign(ctx, uc, campaign.ID)
		entry := s.logger.WithFields(logrus.Fields{"campaign_id": campaign.ID, "user_id": campaign.UserID})
		switch {
		case err == nil:
			sent++
			entry.WithField("accepted", resp.Accepted).Info("scheduled campaign dispatched")
		case businessflow.IsNoRecipients(err), businessflow.IsMissingCredential(err), businessflow.IsInvalidTransition(err):
			s.park(campaign)
			entry.WithError(err).Warn("scheduled campaign not dispatchable")
		case businessflow.IsDispatchInFlight(err):
			entry.Debug("scheduled campaign already dispatching")
		default:
			entry.WithError(err).Error("scheduled campaign dispatch failed")
		}
	}
	return sent
}

func (s *CampaignScheduler) isParked(c *models.Campaign) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.parked[c.ID]
	if !ok {
		return false
	}
	if at.Equal(c.UpdatedAt) {
		return true
	}
	delete(s.parked, c.ID)
	return false
}

func (s *CampaignScheduler) park(c *models.Campaign) {
	s.mu.Lock()
	s.parked[c.ID] = c.UpdatedAt
	s.mu.Unlock()
}
