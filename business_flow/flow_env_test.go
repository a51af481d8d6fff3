package businessflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/nexus-communicator/app/services"
	businessflow "github.com/amirphl/nexus-communicator/business_flow"
	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/repository"
	testingutil "github.com/amirphl/nexus-communicator/testing"
	"github.com/stretchr/testify/require"
)

// flowEnv wires every flow against one isolated SQLite database
type flowEnv struct {
	db       *testingutil.TestDB
	fixtures *testingutil.TestFixtures
	ctx      context.Context

	userRepo     repository.UserRepository
	contactRepo  repository.ContactRepository
	campaignRepo repository.CampaignRepository
	deliveryRepo repository.CampaignDeliveryRepository
	mediaRepo    repository.MediaFileRepository
	importRepo   repository.ImportedFileRepository
	activityRepo repository.BotActivityRepository
	auditRepo    repository.AuditLogRepository

	sender   *fakeSender
	fetcher  *recordingFetcher
	emails   *services.MockEmailProvider
	store    services.MediaStore
	uploads  string
	tokenSvc services.TokenService

	contacts   businessflow.ContactFlow
	imports    businessflow.ImportFlow
	campaigns  businessflow.CampaignFlow
	dispatch   businessflow.DispatchFlow
	automation businessflow.AutomationFlow
	dashboard  businessflow.DashboardFlow
	auth       businessflow.AuthFlow
	profile    businessflow.ProfileFlow
}

const testVerifyToken = "verify-me"

func newFlowEnv(t *testing.T) *flowEnv {
	t.Helper()

	tdb := testingutil.NewTestDB(t)
	env := &flowEnv{
		db:       tdb,
		fixtures: testingutil.NewTestFixtures(tdb),
		ctx:      testingutil.CreateTestContext(),

		userRepo:     repository.NewUserRepository(tdb.DB),
		contactRepo:  repository.NewContactRepository(tdb.DB),
		campaignRepo: repository.NewCampaignRepository(tdb.DB),
		deliveryRepo: repository.NewCampaignDeliveryRepository(tdb.DB),
		mediaRepo:    repository.NewMediaFileRepository(tdb.DB),
		importRepo:   repository.NewImportedFileRepository(tdb.DB),
		activityRepo: repository.NewBotActivityRepository(tdb.DB),
		auditRepo:    repository.NewAuditLogRepository(tdb.DB),

		sender:  &fakeSender{status: models.DeliveryStatusDelivered},
		fetcher: &recordingFetcher{},
		emails:  services.NewMockEmailProvider(),
		uploads: t.TempDir(),
	}
	env.store = services.NewDiskMediaStore(env.uploads, 1<<20)

	tokenSvc, err := services.NewTokenService(time.Hour, 24*time.Hour, "nexus-test", "nexus-test", false, "", "", "test-secret-key-with-enough-length", services.NewMemoryRevocationStore())
	require.NoError(t, err)
	env.tokenSvc = tokenSvc

	generator := services.NewTemplateReplyGenerator()

	env.contacts = businessflow.NewContactFlow(env.contactRepo, env.importRepo, env.auditRepo)
	env.imports = businessflow.NewImportFlow(env.contactRepo, env.importRepo, env.auditRepo, env.fetcher, 100)
	env.campaigns = businessflow.NewCampaignFlow(env.campaignRepo, env.contactRepo, env.mediaRepo, env.userRepo, env.auditRepo, env.store, generator, tdb.DB)
	env.dispatch = businessflow.NewDispatchFlow(env.campaignRepo, env.deliveryRepo, env.userRepo, env.auditRepo, env.sender,
		services.NewNotificationService(env.emails), nil, time.Minute, tdb.DB)
	env.automation = businessflow.NewAutomationFlow(env.userRepo, env.activityRepo, env.auditRepo, generator, testVerifyToken)
	env.dashboard = businessflow.NewDashboardFlow(env.userRepo, env.contactRepo, env.campaignRepo, env.activityRepo, nil, 0)
	env.auth = businessflow.NewAuthFlow(env.userRepo, env.auditRepo, tokenSvc, nil, 4)
	env.profile = businessflow.NewProfileFlow(env.userRepo, env.auditRepo, env.store, 4)

	return env
}

func (e *flowEnv) user(t *testing.T, opts ...testingutil.UserOption) (*models.User, businessflow.UserContext) {
	t.Helper()
	user, err := e.fixtures.CreateTestUser(opts...)
	require.NoError(t, err)
	return user, businessflow.NewUserContext(user.ID, businessflow.NewClientMetadata("127.0.0.1", "go-test"))
}

func (e *flowEnv) contact(t *testing.T, userID uint, name, phone string, tags ...string) *models.Contact {
	t.Helper()
	c, err := e.fixtures.CreateTestContact(userID, name, phone, tags...)
	require.NoError(t, err)
	return c
}

func (e *flowEnv) campaign(t *testing.T, userID uint, status models.CampaignStatus, contactIDs ...uint) *models.Campaign {
	t.Helper()
	c, err := e.fixtures.CreateTestCampaign(userID, status, contactIDs...)
	require.NoError(t, err)
	return c
}

func (e *flowEnv) reloadCampaign(t *testing.T, id uint) *models.Campaign {
	t.Helper()
	c, err := e.campaignRepo.ByID(e.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func (e *flowEnv) recipientIDs(t *testing.T, campaignID uint) []uint {
	t.Helper()
	contacts, err := e.campaignRepo.Recipients(e.ctx, campaignID, 0)
	require.NoError(t, err)
	ids := make([]uint, 0, len(contacts))
	for _, c := range contacts {
		ids = append(ids, c.ID)
	}
	return ids
}

// fakeSender answers every message with a fixed status, or fails the batch
type fakeSender struct {
	mu       sync.Mutex
	status   models.DeliveryStatus
	failWith error
	failFrom int
	calls    [][]services.OutboundMessage
	nextID   int
}

func (s *fakeSender) Send(_ context.Context, _ string, messages []services.OutboundMessage) ([]services.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, messages)
	results := make([]services.SendResult, 0, len(messages))
	for i, msg := range messages {
		if s.failWith != nil && i >= s.failFrom {
			return results, s.failWith
		}
		s.nextID++
		results = append(results, services.SendResult{
			DeliveryID:        msg.DeliveryID,
			ProviderMessageID: providerID(s.nextID),
			Status:            s.status,
		})
	}
	return results, nil
}

func (s *fakeSender) lastBatch() []services.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return nil
	}
	return s.calls[len(s.calls)-1]
}

func providerID(n int) string {
	return "wamid." + string(rune('A'+n-1))
}

// recordingFetcher keeps every enqueued external import
type recordingFetcher struct {
	mu       sync.Mutex
	requests []services.SheetFetchRequest
}

func (f *recordingFetcher) Enqueue(_ context.Context, req services.SheetFetchRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return nil
}
