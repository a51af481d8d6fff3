package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/repository"
	testingutil "github.com/amirphl/nexus-communicator/testing"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewUserRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		user, err := fixtures.CreateTestUser()
		require.NoError(t, err)

		t.Run("ByEmail", func(t *testing.T) {
			found, err := repo.ByEmail(ctx, user.Email)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, user.ID, found.ID)

			missing, err := repo.ByEmail(ctx, "nobody@example.com")
			assert.NoError(t, err)
			assert.Nil(t, missing)
		})

		t.Run("ByIDNotFound", func(t *testing.T) {
			found, err := repo.ByID(ctx, 999)
			assert.NoError(t, err)
			assert.Nil(t, found)
		})

		t.Run("DuplicateEmail", func(t *testing.T) {
			dup := &models.User{Email: user.Email, PasswordHash: "x", Name: "Dup"}
			err := repo.Save(ctx, dup)
			require.Error(t, err)
			assert.True(t, repository.IsUniqueViolation(err))
		})

		t.Run("UpdateFields", func(t *testing.T) {
			require.NoError(t, repo.UpdateFields(ctx, user.ID, map[string]any{"company": "Acme"}))
			found, err := repo.ByID(ctx, user.ID)
			require.NoError(t, err)
			require.NotNil(t, found.Company)
			assert.Equal(t, "Acme", *found.Company)
		})

		t.Run("UpdateLastLogin", func(t *testing.T) {
			at := utils.UTCNow().Truncate(time.Second)
			require.NoError(t, repo.UpdateLastLogin(ctx, user.ID, at))
			found, err := repo.ByID(ctx, user.ID)
			require.NoError(t, err)
			require.NotNil(t, found.LastLogin)
			assert.True(t, at.Equal(found.LastLogin.UTC()))
		})
		return nil
	})
	require.NoError(t, err)
}

func TestUserRepositoryDeleteCascade(t *testing.T) {
	testDB := testingutil.NewTestDB(t)
	fixtures := testingutil.NewTestFixtures(testDB)
	ctx := context.Background()
	users := repository.NewUserRepository(testDB.DB)

	owner, err := fixtures.CreateTestUser()
	require.NoError(t, err)
	other, err := fixtures.CreateTestUser()
	require.NoError(t, err)

	contact, err := fixtures.CreateTestContact(owner.ID, "Luis", "+34600111222")
	require.NoError(t, err)
	campaign, err := fixtures.CreateTestCampaign(owner.ID, models.CampaignStatusDraft, contact.ID)
	require.NoError(t, err)
	require.NoError(t, testDB.DB.Create(&models.MediaFile{
		CampaignID: campaign.ID, Filename: "a.png", OriginalFilename: "a.png", Filepath: "/tmp/a.png",
	}).Error)
	_, err = fixtures.CreateTestBotActivity(owner.ID, "auto_response", models.ActivityStatusSuccess, time.Now())
	require.NoError(t, err)
	_, err = fixtures.CreateTestAuditLog(&owner.ID, "login", true)
	require.NoError(t, err)

	survivor, err := fixtures.CreateTestContact(other.ID, "Marta", "+34600333444")
	require.NoError(t, err)

	paths, err := users.DeleteCascade(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/a.png"}, paths)

	for _, model := range []any{&models.Contact{}, &models.Campaign{}, &models.CampaignContact{}, &models.MediaFile{}, &models.BotActivity{}} {
		var n int64
		require.NoError(t, testDB.DB.Model(model).Where("1 = 1").Count(&n).Error)
		if _, isContact := model.(*models.Contact); isContact {
			assert.Equal(t, int64(1), n, "other users' contacts stay")
			continue
		}
		assert.Zero(t, n, "%T rows remain", model)
	}

	var audits int64
	require.NoError(t, testDB.DB.Model(&models.AuditLog{}).Count(&audits).Error)
	assert.Equal(t, int64(1), audits, "audit trail outlives the account")

	kept, err := repository.NewContactRepository(testDB.DB).ByID(ctx, survivor.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestContactRepository(t *testing.T) {
	testDB := testingutil.NewTestDB(t)
	fixtures := testingutil.NewTestFixtures(testDB)
	repo := repository.NewContactRepository(testDB.DB)
	ctx := context.Background()

	owner, err := fixtures.CreateTestUser()
	require.NoError(t, err)
	other, err := fixtures.CreateTestUser()
	require.NoError(t, err)

	luis, err := fixtures.CreateTestContact(owner.ID, "Luis Pérez", "+34600111222", "vip", "madrid")
	require.NoError(t, err)
	marta, err := fixtures.CreateTestContact(owner.ID, "Marta Ruiz", "+34600333444", "barcelona")
	require.NoError(t, err)
	foreign, err := fixtures.CreateTestContact(other.ID, "Ajeno", "+34600555666")
	require.NoError(t, err)

	t.Run("ByUserAndID enforces ownership", func(t *testing.T) {
		found, err := repo.ByUserAndID(ctx, owner.ID, luis.ID)
		require.NoError(t, err)
		assert.NotNil(t, found)

		found, err = repo.ByUserAndID(ctx, owner.ID, foreign.ID)
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("ByUserAndPhone trims input", func(t *testing.T) {
		found, err := repo.ByUserAndPhone(ctx, owner.ID, "  +34600333444 ")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, marta.ID, found.ID)
	})

	t.Run("phone is unique per user only", func(t *testing.T) {
		err := repo.Save(ctx, &models.Contact{UserID: owner.ID, Name: "Dup", Phone: luis.Phone, Status: models.ContactStatusActive})
		assert.True(t, repository.IsUniqueViolation(err))

		err = repo.Save(ctx, &models.Contact{UserID: other.ID, Name: "Same phone", Phone: luis.Phone, Status: models.ContactStatusActive})
		assert.NoError(t, err)
	})

	t.Run("search and tag filters are case insensitive", func(t *testing.T) {
		search := "PÉREZ"
		found, err := repo.ByFilter(ctx, models.ContactFilter{UserID: &owner.ID, Search: &search}, "", 0, 0)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, luis.ID, found[0].ID)

		tag := "VIP"
		found, err = repo.ByFilter(ctx, models.ContactFilter{UserID: &owner.ID, Tag: &tag}, "", 0, 0)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, luis.ID, found[0].ID)
	})

	t.Run("OwnedIDs keeps input order and drops strangers", func(t *testing.T) {
		ids, err := repo.OwnedIDs(ctx, owner.ID, []uint{marta.ID, foreign.ID, luis.ID, marta.ID})
		require.NoError(t, err)
		assert.Equal(t, []uint{marta.ID, luis.ID}, ids)
	})

	t.Run("CountByStatus", func(t *testing.T) {
		counts, err := repo.CountByStatus(ctx, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), counts[models.ContactStatusActive])
	})

	t.Run("DeleteOwned unlinks campaigns and ignores foreign ids", func(t *testing.T) {
		campaign, err := fixtures.CreateTestCampaign(owner.ID, models.CampaignStatusDraft, luis.ID, marta.ID)
		require.NoError(t, err)

		affected, err := repo.DeleteOwned(ctx, owner.ID, []uint{luis.ID, foreign.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), affected)

		recipients, err := repository.NewCampaignRepository(testDB.DB).Recipients(ctx, campaign.ID, 0)
		require.NoError(t, err)
		require.Len(t, recipients, 1)
		assert.Equal(t, marta.ID, recipients[0].ID)

		stillThere, err := repo.ByID(ctx, foreign.ID)
		require.NoError(t, err)
		assert.NotNil(t, stillThere)
	})
}

func TestCampaignRepository(t *testing.T) {
	testDB := testingutil.NewTestDB(t)
	fixtures := testingutil.NewTestFixtures(testDB)
	repo := repository.NewCampaignRepository(testDB.DB)
	ctx := context.Background()

	user, err := fixtures.CreateTestUser()
	require.NoError(t, err)
	a, err := fixtures.CreateTestContact(user.ID, "A", "+1001")
	require.NoError(t, err)
	b, err := fixtures.CreateTestContact(user.ID, "B", "+1002")
	require.NoError(t, err)
	campaign, err := fixtures.CreateTestCampaign(user.ID, models.CampaignStatusDraft)
	require.NoError(t, err)

	t.Run("ReplaceRecipients dedupes and updates the total", func(t *testing.T) {
		total, err := repo.ReplaceRecipients(ctx, campaign.ID, []uint{b.ID, a.ID, b.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)

		reloaded, err := repo.ByID(ctx, campaign.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), reloaded.TotalRecipients)

		recipients, err := repo.Recipients(ctx, campaign.ID, 0)
		require.NoError(t, err)
		assert.Len(t, recipients, 2)

		total, err = repo.ReplaceRecipients(ctx, campaign.ID, []uint{a.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})

	t.Run("TransitionStatus is compare and set", func(t *testing.T) {
		changed, err := repo.TransitionStatus(ctx, campaign.ID, models.CampaignStatusDraft, models.CampaignStatusActive,
			map[string]any{"sent_at": utils.UTCNow()})
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = repo.TransitionStatus(ctx, campaign.ID, models.CampaignStatusDraft, models.CampaignStatusActive, nil)
		require.NoError(t, err)
		assert.False(t, changed, "second writer loses")
	})

	t.Run("IncrementCounters only moves forward", func(t *testing.T) {
		require.NoError(t, repo.IncrementCounters(ctx, campaign.ID, 2, 1))
		require.NoError(t, repo.IncrementCounters(ctx, campaign.ID, 0, 0))
		reloaded, err := repo.ByID(ctx, campaign.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), reloaded.SentCount)
		assert.Equal(t, int64(1), reloaded.OpenedCount)

		sent, opened, err := repo.SumCounters(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), sent)
		assert.Equal(t, int64(1), opened)
	})

	t.Run("DueBefore filter", func(t *testing.T) {
		scheduled, err := fixtures.CreateTestCampaign(user.ID, models.CampaignStatusScheduled)
		require.NoError(t, err)
		past := utils.UTCNow().Add(-time.Hour)
		require.NoError(t, repo.UpdateFields(ctx, scheduled.ID, map[string]any{"scheduled_at": past}))

		now := utils.UTCNow()
		status := models.CampaignStatusScheduled
		due, err := repo.ByFilter(ctx, models.CampaignFilter{Status: &status, DueBefore: &now}, "", 0, 0)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, scheduled.ID, due[0].ID)
	})

	t.Run("Delete removes dependents", func(t *testing.T) {
		require.NoError(t, testDB.DB.Create(&models.CampaignDelivery{CampaignID: campaign.ID, ContactID: a.ID, Phone: a.Phone}).Error)
		require.NoError(t, repo.Delete(ctx, campaign.ID))

		gone, err := repo.ByID(ctx, campaign.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)

		var deliveries int64
		require.NoError(t, testDB.DB.Model(&models.CampaignDelivery{}).Where("campaign_id = ?", campaign.ID).Count(&deliveries).Error)
		assert.Zero(t, deliveries)
	})
}

func TestCampaignDeliveryRepository(t *testing.T) {
	testDB := testingutil.NewTestDB(t)
	fixtures := testingutil.NewTestFixtures(testDB)
	repo := repository.NewCampaignDeliveryRepository(testDB.DB)
	ctx := context.Background()

	user, err := fixtures.CreateTestUser()
	require.NoError(t, err)
	contact, err := fixtures.CreateTestContact(user.ID, "A", "+1001")
	require.NoError(t, err)
	campaign, err := fixtures.CreateTestCampaign(user.ID, models.CampaignStatusActive, contact.ID)
	require.NoError(t, err)

	delivery := &models.CampaignDelivery{
		CampaignID:        campaign.ID,
		ContactID:         contact.ID,
		Phone:             contact.Phone,
		Status:            models.DeliveryStatusSent,
		ProviderMessageID: utils.ToPtr("wamid.1"),
	}
	require.NoError(t, repo.Save(ctx, delivery))

	found, err := repo.ByProviderMessageID(ctx, "wamid.1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, delivery.ID, found.ID)

	open, err := repo.CountOpen(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), open)

	changed, err := repo.AdvanceStatus(ctx, delivery.ID, models.DeliveryStatusSent, map[string]any{"status": models.DeliveryStatusDelivered})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.AdvanceStatus(ctx, delivery.ID, models.DeliveryStatusSent, map[string]any{"status": models.DeliveryStatusRead})
	require.NoError(t, err)
	assert.False(t, changed)

	open, err = repo.CountOpen(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Zero(t, open)

	err = repo.Save(ctx, &models.CampaignDelivery{CampaignID: campaign.ID, ContactID: contact.ID, Phone: contact.Phone})
	assert.True(t, repository.IsUniqueViolation(err), "one delivery per recipient")
}

func TestCampaignDeliveryRepositoryDeletePendingExcept(t *testing.T) {
	testDB := testingutil.NewTestDB(t)
	fixtures := testingutil.NewTestFixtures(testDB)
	repo := repository.NewCampaignDeliveryRepository(testDB.DB)
	ctx := context.Background()

	user, err := fixtures.CreateTestUser()
	require.NoError(t, err)
	campaign, err := fixtures.CreateTestCampaign(user.ID, models.CampaignStatusPaused)
	require.NoError(t, err)
	other, err := fixtures.CreateTestCampaign(user.ID, models.CampaignStatusPaused)
	require.NoError(t, err)

	rows := []*models.CampaignDelivery{
		{CampaignID: campaign.ID, ContactID: 1, Phone: "+1", Status: models.DeliveryStatusPending},
		{CampaignID: campaign.ID, ContactID: 2, Phone: "+2", Status: models.DeliveryStatusPending},
		{CampaignID: campaign.ID, ContactID: 3, Phone: "+3", Status: models.DeliveryStatusDelivered},
		{CampaignID: other.ID, ContactID: 2, Phone: "+2", Status: models.DeliveryStatusPending},
	}
	require.NoError(t, repo.SaveBatch(ctx, rows))

	removed, err := repo.DeletePendingExcept(ctx, campaign.ID, []uint{1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	left, err := repo.ByCampaign(ctx, campaign.ID, nil)
	require.NoError(t, err)
	var contacts []uint
	for _, d := range left {
		contacts = append(contacts, d.ContactID)
	}
	assert.Equal(t, []uint{1, 3}, contacts, "delivered rows are history and stay")

	removed, err = repo.DeletePendingExcept(ctx, campaign.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	untouched, err := repo.ByCampaign(ctx, other.ID, nil)
	require.NoError(t, err)
	assert.Len(t, untouched, 1)
}

func TestWithTransactionRollsBack(t *testing.T) {
	testDB := testingutil.NewTestDB(t)
	fixtures := testingutil.NewTestFixtures(testDB)
	repo := repository.NewContactRepository(testDB.DB)

	user, err := fixtures.CreateTestUser()
	require.NoError(t, err)

	boom := errors.New("boom")
	err = repository.WithTransaction(context.Background(), testDB.DB, func(ctx context.Context) error {
		if err := repo.Save(ctx, &models.Contact{UserID: user.ID, Name: "Temp", Phone: "+1999", Status: models.ContactStatusActive}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := repo.Count(context.Background(), models.ContactFilter{UserID: &user.ID})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBotActivityRepository(t *testing.T) {
	testDB := testingutil.NewTestDB(t)
	fixtures := testingutil.NewTestFixtures(testDB)
	repo := repository.NewBotActivityRepository(testDB.DB)
	ctx := context.Background()

	user, err := fixtures.CreateTestUser()
	require.NoError(t, err)
	now := time.Now()
	_, err = fixtures.CreateTestBotActivity(user.ID, "auto_response", models.ActivityStatusSuccess, now)
	require.NoError(t, err)
	_, err = fixtures.CreateTestBotActivity(user.ID, "auto_response", models.ActivityStatusFailed, now)
	require.NoError(t, err)
	_, err = fixtures.CreateTestBotActivity(user.ID, "message_received", models.ActivityStatusSuccess, now)
	require.NoError(t, err)

	byStatus, err := repo.CountByStatus(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), byStatus[models.ActivityStatusSuccess])
	assert.Equal(t, int64(1), byStatus[models.ActivityStatusFailed])

	byType, err := repo.CountByType(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), byType["auto_response"])

	removed, err := repo.DeleteByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
}
