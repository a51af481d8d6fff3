package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/nexus-communicator/app/dto"
	"github.com/amirphl/nexus-communicator/app/services"
	businessflow "github.com/amirphl/nexus-communicator/business_flow"
	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/repository"
	testingutil "github.com/amirphl/nexus-communicator/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schedulerEnv struct {
	db       *testingutil.TestDB
	fixtures *testingutil.TestFixtures
	campaign repository.CampaignRepository
}

func newSchedulerEnv(t *testing.T) *schedulerEnv {
	t.Helper()
	db := testingutil.NewTestDB(t)
	return &schedulerEnv{
		db:       db,
		fixtures: testingutil.NewTestFixtures(db),
		campaign: repository.NewCampaignRepository(db.DB),
	}
}

func (e *schedulerEnv) scheduledCampaign(t *testing.T, userID uint, at time.Time, contactIDs ...uint) *models.Campaign {
	t.Helper()
	campaign, err := e.fixtures.CreateTestCampaign(userID, models.CampaignStatusScheduled, contactIDs...)
	require.NoError(t, err)
	require.NoError(t, e.db.DB.Model(campaign).Update("scheduled_at", at.UTC()).Error)
	return campaign
}

// countingDispatch records SendCampaign calls and answers with a fixed error
type countingDispatch struct {
	businessflow.DispatchFlow
	mu    sync.Mutex
	calls []uint
	err   error
}

func (d *countingDispatch) SendCampaign(_ context.Context, _ businessflow.UserContext, campaignID uint) (*dto.SendCampaignResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, campaignID)
	if d.err != nil {
		return nil, d.err
	}
	return &dto.SendCampaignResponse{Accepted: 1}, nil
}

func (d *countingDispatch) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func TestRunOnceDispatchesDueCampaigns(t *testing.T) {
	env := newSchedulerEnv(t)
	user, err := env.fixtures.CreateTestUser(testingutil.WithWhatsAppKey("EAAB-key"))
	require.NoError(t, err)
	contact, err := env.fixtures.CreateTestContact(user.ID, "Luis", "+34600111222")
	require.NoError(t, err)

	due := env.scheduledCampaign(t, user.ID, time.Now().Add(-time.Minute), contact.ID)
	future := env.scheduledCampaign(t, user.ID, time.Now().Add(time.Hour), contact.ID)

	sender := services.NewMockMessageSender()
	dispatch := businessflow.NewDispatchFlow(
		env.campaign,
		repository.NewCampaignDeliveryRepository(env.db.DB),
		repository.NewUserRepository(env.db.DB),
		repository.NewAuditLogRepository(env.db.DB),
		sender,
		services.NewNotificationService(services.NewMockEmailProvider()),
		nil,
		time.Minute,
		env.db.DB,
	)

	s := NewCampaignScheduler(env.campaign, dispatch, time.Minute, 10)
	assert.Equal(t, 1, s.RunOnce(context.Background()))
	require.Len(t, sender.Sent(), 1)
	assert.Equal(t, "Hola Luis, tu número es +34600111222", sender.Sent()[0].Body)

	reloaded, err := env.campaign.ByID(context.Background(), due.ID)
	require.NoError(t, err)
	assert.NotEqual(t, models.CampaignStatusScheduled, reloaded.Status)

	untouched, err := env.campaign.ByID(context.Background(), future.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusScheduled, untouched.Status)

	// Nothing left to do on the next tick
	assert.Equal(t, 0, s.RunOnce(context.Background()))
	assert.Len(t, sender.Sent(), 1)
}

func TestRunOnceParksUndispatchableCampaigns(t *testing.T) {
	env := newSchedulerEnv(t)
	user, err := env.fixtures.CreateTestUser()
	require.NoError(t, err)
	campaign := env.scheduledCampaign(t, user.ID, time.Now().Add(-time.Minute))

	dispatch := &countingDispatch{err: businessflow.NewBusinessError("NO_RECIPIENTS", "Campaign has no recipients", businessflow.ErrNoRecipients)}
	s := NewCampaignScheduler(env.campaign, dispatch, time.Minute, 10)

	assert.Equal(t, 0, s.RunOnce(context.Background()))
	assert.Equal(t, 0, s.RunOnce(context.Background()))
	assert.Equal(t, 1, dispatch.callCount(), "parked campaign must not be retried until edited")

	// Editing the campaign bumps updated_at and releases it
	require.NoError(t, env.db.DB.Model(&models.Campaign{}).Where("id = ?", campaign.ID).
		Update("updated_at", time.Now().Add(time.Second).UTC()).Error)
	dispatch.err = nil
	assert.Equal(t, 1, s.RunOnce(context.Background()))
	assert.Equal(t, 2, dispatch.callCount())
}

func TestRunOnceRetriesTransientFailures(t *testing.T) {
	env := newSchedulerEnv(t)
	user, err := env.fixtures.CreateTestUser()
	require.NoError(t, err)
	env.scheduledCampaign(t, user.ID, time.Now().Add(-time.Minute))

	dispatch := &countingDispatch{err: businessflow.NewBusinessError("DISPATCH_FAILED", "provider down", businessflow.ErrDispatchFailed)}
	s := NewCampaignScheduler(env.campaign, dispatch, time.Minute, 10)

	s.RunOnce(context.Background())
	s.RunOnce(context.Background())
	assert.Equal(t, 2, dispatch.callCount())
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	env := newSchedulerEnv(t)
	user, err := env.fixtures.CreateTestUser()
	require.NoError(t, err)
	env.scheduledCampaign(t, user.ID, time.Now().Add(-time.Minute))

	dispatch := &countingDispatch{}
	stop := NewCampaignScheduler(env.campaign, dispatch, time.Hour, 10).Start(context.Background())

	assert.Eventually(t, func() bool { return dispatch.callCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	stop()
}
