package businessflow_test

import (
	"context"
	"testing"

	"github.com/amirphl/nexus-communicator/app/dto"
	"github.com/amirphl/nexus-communicator/app/services"
	businessflow "github.com/amirphl/nexus-communicator/business_flow"
	"github.com/amirphl/nexus-communicator/models"
	testingutil "github.com/amirphl/nexus-communicator/testing"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCaptcha accepts a single angle for every challenge
type stubCaptcha struct {
	angle float64
}

func (c stubCaptcha) Generate(context.Context) (*services.RotateChallenge, error) {
	return &services.RotateChallenge{ID: "challenge-1", MasterImage: "data:image/png;base64,AA==", ThumbImage: "data:image/png;base64,AA=="}, nil
}

func (c stubCaptcha) Verify(_ context.Context, _ string, angle float64) bool {
	return angle == c.angle
}

func countAudit(t *testing.T, env *flowEnv, action string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, env.db.DB.Model(&models.AuditLog{}).Where("action = ?", action).Count(&n).Error)
	return n
}

func TestAuthFlow_Register(t *testing.T) {
	env := newFlowEnv(t)
	meta := businessflow.NewClientMetadata("10.0.0.1", "go-test")

	t.Run("creates account with defaults and tokens", func(t *testing.T) {
		resp, err := env.auth.Register(env.ctx, &dto.RegisterRequest{
			Email:    "  Ana@Example.COM ",
			Password: "secreto1",
			Name:     " Ana ",
			Company:  utils.ToPtr("Acme"),
		}, meta)
		require.NoError(t, err)
		assert.Equal(t, "ana@example.com", resp.User.Email)
		assert.Equal(t, "Ana", resp.User.Name)
		assert.Equal(t, models.DefaultLanguage, resp.User.Language)
		assert.True(t, resp.User.EmailNotifications)
		assert.Equal(t, "Bearer", resp.TokenType)
		assert.Equal(t, 3600, resp.ExpiresIn)
		assert.NotEmpty(t, resp.AccessToken)
		assert.NotEmpty(t, resp.RefreshToken)
		assert.Equal(t, int64(1), countAudit(t, env, models.AuditActionSignupCompleted))
	})

	t.Run("email is unique regardless of case", func(t *testing.T) {
		_, err := env.auth.Register(env.ctx, &dto.RegisterRequest{Email: "ANA@example.com", Password: "secreto1", Name: "Otra"}, meta)
		assert.True(t, businessflow.IsEmailAlreadyExists(err))
	})

	t.Run("validation", func(t *testing.T) {
		_, err := env.auth.Register(env.ctx, &dto.RegisterRequest{Email: "not-an-email", Password: "secreto1", Name: "X"}, meta)
		assert.Equal(t, "INVALID_EMAIL", businessflow.ErrorCode(err))

		_, err = env.auth.Register(env.ctx, &dto.RegisterRequest{Email: "b@example.com", Password: "123", Name: "X"}, meta)
		assert.Equal(t, "PASSWORD_TOO_SHORT", businessflow.ErrorCode(err))

		_, err = env.auth.Register(env.ctx, &dto.RegisterRequest{Email: "b@example.com", Password: "secreto1", Name: " "}, meta)
		assert.Equal(t, "NAME_REQUIRED", businessflow.ErrorCode(err))
	})

	t.Run("captcha is enforced when configured", func(t *testing.T) {
		flow := businessflow.NewAuthFlow(env.userRepo, env.auditRepo, env.tokenSvc, stubCaptcha{angle: 90}, 4)

		_, err := flow.Register(env.ctx, &dto.RegisterRequest{Email: "c@example.com", Password: "secreto1", Name: "C"}, meta)
		assert.True(t, businessflow.IsCaptchaInvalid(err))

		_, err = flow.Register(env.ctx, &dto.RegisterRequest{
			Email: "c@example.com", Password: "secreto1", Name: "C",
			CaptchaID: "challenge-1", CaptchaAngle: utils.ToPtr(45.0),
		}, meta)
		assert.True(t, businessflow.IsCaptchaInvalid(err))

		_, err = flow.Register(env.ctx, &dto.RegisterRequest{
			Email: "c@example.com", Password: "secreto1", Name: "C",
			CaptchaID: "challenge-1", CaptchaAngle: utils.ToPtr(90.0),
		}, meta)
		require.NoError(t, err)

		challenge, err := flow.Captcha(env.ctx)
		require.NoError(t, err)
		assert.Equal(t, "challenge-1", challenge.ChallengeID)
	})

	t.Run("captcha endpoint disabled by default", func(t *testing.T) {
		_, err := env.auth.Captcha(env.ctx)
		assert.True(t, businessflow.IsNotFound(err))
	})
}

func TestAuthFlow_LoginLogoutRefresh(t *testing.T) {
	env := newFlowEnv(t)
	user, _ := env.user(t)
	meta := businessflow.NewClientMetadata("10.0.0.1", "go-test")

	t.Run("wrong password", func(t *testing.T) {
		_, err := env.auth.Login(env.ctx, &dto.LoginRequest{Email: user.Email, Password: "nope"}, meta)
		assert.True(t, businessflow.IsInvalidCredentials(err))
		assert.Equal(t, int64(1), countAudit(t, env, models.AuditActionLoginFailed))
	})

	t.Run("unknown email looks the same", func(t *testing.T) {
		_, err := env.auth.Login(env.ctx, &dto.LoginRequest{Email: "ghost@example.com", Password: "nope"}, meta)
		assert.True(t, businessflow.IsInvalidCredentials(err))
	})

	var auth *dto.AuthResponse
	t.Run("login records last login", func(t *testing.T) {
		var err error
		auth, err = env.auth.Login(env.ctx, &dto.LoginRequest{Email: user.Email, Password: testingutil.TestPassword}, meta)
		require.NoError(t, err)
		assert.NotNil(t, auth.User.LastLogin)

		session := env.auth.CheckSession(env.ctx, auth.AccessToken)
		assert.True(t, session.Authenticated)
		assert.Equal(t, user.ID, session.User.ID)
	})

	t.Run("refresh token is not a session", func(t *testing.T) {
		session := env.auth.CheckSession(env.ctx, auth.RefreshToken)
		assert.False(t, session.Authenticated)
		assert.False(t, env.auth.CheckSession(env.ctx, "").Authenticated)
		assert.False(t, env.auth.CheckSession(env.ctx, "garbage").Authenticated)
	})

	t.Run("refresh rotates the pair", func(t *testing.T) {
		rotated, err := env.auth.Refresh(env.ctx, auth.RefreshToken, meta)
		require.NoError(t, err)
		assert.NotEqual(t, auth.AccessToken, rotated.AccessToken)
		assert.Equal(t, user.ID, rotated.User.ID)

		_, err = env.auth.Refresh(env.ctx, auth.AccessToken, meta)
		assert.True(t, businessflow.IsUnauthorized(err))
	})

	t.Run("logout revokes the token", func(t *testing.T) {
		uc := businessflow.NewUserContext(user.ID, meta)
		require.NoError(t, env.auth.Logout(env.ctx, uc, auth.AccessToken))
		assert.False(t, env.auth.CheckSession(env.ctx, auth.AccessToken).Authenticated)
	})

	t.Run("me", func(t *testing.T) {
		me, err := env.auth.Me(env.ctx, businessflow.NewUserContext(user.ID, meta))
		require.NoError(t, err)
		assert.Equal(t, user.Email, me.Email)

		_, err = env.auth.Me(env.ctx, businessflow.NewUserContext(9999, meta))
		assert.True(t, businessflow.IsUserNotFound(err))
	})
}
