package businessflow_test

import (
	"strings"
	"testing"

	"github.com/amirphl/nexus-communicator/app/dto"
	businessflow "github.com/amirphl/nexus-communicator/business_flow"
	"github.com/amirphl/nexus-communicator/models"
	testingutil "github.com/amirphl/nexus-communicator/testing"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileFlow_UpdateProfile(t *testing.T) {
	env := newFlowEnv(t)
	user, uc := env.user(t, testingutil.WithWhatsAppKey("EAABwhatsappsecretx9Zq"))

	t.Run("patches only the given fields", func(t *testing.T) {
		resp, err := env.profile.UpdateProfile(env.ctx, uc, &dto.UpdateProfileRequest{
			Company:            utils.ToPtr(" Acme SL "),
			Theme:              utils.ToPtr("dark"),
			EmailNotifications: utils.ToPtr(false),
		})
		require.NoError(t, err)
		assert.Equal(t, user.Name, resp.Name)
		require.NotNil(t, resp.Company)
		assert.Equal(t, "Acme SL", *resp.Company)
		assert.Equal(t, "dark", resp.Theme)
		assert.False(t, resp.EmailNotifications)
		assert.True(t, resp.PushNotifications)
		assert.Equal(t, int64(0), countAudit(t, env, models.AuditActionAPIKeysUpdated))
	})

	t.Run("unknown theme", func(t *testing.T) {
		_, err := env.profile.UpdateProfile(env.ctx, uc, &dto.UpdateProfileRequest{Theme: utils.ToPtr("neon")})
		assert.True(t, businessflow.IsValidation(err))
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := env.profile.UpdateProfile(env.ctx, uc, &dto.UpdateProfileRequest{Name: utils.ToPtr("  ")})
		assert.True(t, businessflow.IsValidation(err))
	})

	t.Run("credentials are set, cleared and masked", func(t *testing.T) {
		_, err := env.profile.UpdateProfile(env.ctx, uc, &dto.UpdateProfileRequest{
			GeminiAPIKey:   utils.ToPtr("AIzaGeminiKey123456"),
			WhatsAppAPIKey: utils.ToPtr(""),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), countAudit(t, env, models.AuditActionAPIKeysUpdated))

		keys, err := env.profile.GetAPIKeys(env.ctx, uc)
		require.NoError(t, err)
		assert.False(t, keys.WhatsAppConfigured)
		assert.Equal(t, "", keys.WhatsAppAPIKey)
		assert.True(t, keys.GeminiConfigured)
		assert.Equal(t, "AIza***********3456", keys.GeminiAPIKey)
		assert.False(t, keys.GmailConfigured)
	})
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", businessflow.MaskSecret(nil))
	assert.Equal(t, "", businessflow.MaskSecret(utils.ToPtr("")))
	assert.Equal(t, "********", businessflow.MaskSecret(utils.ToPtr("12345678")))
	assert.Equal(t, "1234*6789", businessflow.MaskSecret(utils.ToPtr("123456789")))
	assert.Equal(t, "*****", businessflow.MaskSecret(utils.ToPtr("ñandú")))
}

func TestProfileFlow_ChangePassword(t *testing.T) {
	env := newFlowEnv(t)
	user, uc := env.user(t)
	meta := businessflow.NewClientMetadata("127.0.0.1", "go-test")

	err := env.profile.ChangePassword(env.ctx, uc, &dto.ChangePasswordRequest{CurrentPassword: "wrong", NewPassword: "nuevo123"})
	assert.True(t, businessflow.IsIncorrectPassword(err))

	err = env.profile.ChangePassword(env.ctx, uc, &dto.ChangePasswordRequest{CurrentPassword: testingutil.TestPassword, NewPassword: "123"})
	assert.Equal(t, "PASSWORD_TOO_SHORT", businessflow.ErrorCode(err))

	require.NoError(t, env.profile.ChangePassword(env.ctx, uc, &dto.ChangePasswordRequest{
		CurrentPassword: testingutil.TestPassword,
		NewPassword:     "nuevo123",
	}))

	_, err = env.auth.Login(env.ctx, &dto.LoginRequest{Email: user.Email, Password: testingutil.TestPassword}, meta)
	assert.True(t, businessflow.IsInvalidCredentials(err))
	_, err = env.auth.Login(env.ctx, &dto.LoginRequest{Email: user.Email, Password: "nuevo123"}, meta)
	assert.NoError(t, err)
}

func TestProfileFlow_DeleteAccount(t *testing.T) {
	env := newFlowEnv(t)
	user, uc := env.user(t)
	other, otherUC := env.user(t)

	c := env.contact(t, user.ID, "Ana", "+111")
	campaign := env.campaign(t, user.ID, models.CampaignStatusDraft, c.ID)
	_, err := env.campaigns.AttachMedia(env.ctx, uc, campaign.ID, "a.pdf", "application/pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	_, err = env.campaigns.AttachMedia(env.ctx, uc, campaign.ID, "b.pdf", "application/pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	_, err = env.fixtures.CreateTestBotActivity(user.ID, models.ActivityMessageReceived, models.ActivityStatusSuccess, utils.UTCNow())
	require.NoError(t, err)

	keep := env.contact(t, other.ID, "Bea", "+222")

	t.Run("wrong password keeps everything", func(t *testing.T) {
		_, err := env.profile.DeleteAccount(env.ctx, uc, &dto.DeleteAccountRequest{Password: "nope"})
		assert.True(t, businessflow.IsIncorrectPassword(err))

		still, err := env.userRepo.ByID(env.ctx, user.ID)
		require.NoError(t, err)
		assert.NotNil(t, still)
	})

	t.Run("cascade removes owned rows and files", func(t *testing.T) {
		resp, err := env.profile.DeleteAccount(env.ctx, uc, &dto.DeleteAccountRequest{Password: testingutil.TestPassword})
		require.NoError(t, err)
		assert.Equal(t, "Cuenta eliminada exitosamente", resp.Message)
		assert.Equal(t, 2, resp.MediaFilesRemoved)
		assert.Equal(t, 0, resp.MediaFilesOrphaned)

		gone, err := env.userRepo.ByID(env.ctx, user.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)

		for _, model := range []any{&models.Contact{}, &models.Campaign{}, &models.BotActivity{}} {
			var n int64
			require.NoError(t, env.db.DB.Model(model).Where("user_id = ?", user.ID).Count(&n).Error)
			assert.Zero(t, n)
		}

		var media int64
		require.NoError(t, env.db.DB.Model(&models.MediaFile{}).Where("campaign_id = ?", campaign.ID).Count(&media).Error)
		assert.Zero(t, media)

		survivor, err := env.contactRepo.ByUserAndID(env.ctx, other.ID, keep.ID)
		require.NoError(t, err)
		assert.NotNil(t, survivor)

		_, err = env.profile.GetProfile(env.ctx, otherUC)
		require.NoError(t, err)
	})
}
