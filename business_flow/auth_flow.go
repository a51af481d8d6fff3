// Package businessflow contains the core business logic and use cases for authentication workflows
package businessflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/amirphl/nexus-communicator/app/dto"
	"github.com/amirphl/nexus-communicator/app/services"
	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/repository"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/badoux/checkmail"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	bearerTokenType   = "Bearer"
)

// AuthFlow handles registration, login and token lifecycle
type AuthFlow interface {
	Register(ctx context.Context, req *dto.RegisterRequest, metadata *ClientMetadata) (*dto.AuthResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest, metadata *ClientMetadata) (*dto.AuthResponse, error)
	Logout(ctx context.Context, uc UserContext, token string) error
	Refresh(ctx context.Context, refreshToken string, metadata *ClientMetadata) (*dto.AuthResponse, error)
	Me(ctx context.Context, uc UserContext) (*dto.UserDTO, error)
	CheckSession(ctx context.Context, token string) *dto.SessionResponse
	Captcha(ctx context.Context) (*dto.CaptchaResponse, error)
}

// AuthFlowImpl implements the authentication business flow
type AuthFlowImpl struct {
	userRepo     repository.UserRepository
	tokenService services.TokenService
	captcha      services.CaptchaService
	audit        auditor
	bcryptCost   int
}

// NewAuthFlow creates a new auth flow instance; a nil captcha disables the challenge
func NewAuthFlow(
	userRepo repository.UserRepository,
	auditRepo repository.AuditLogRepository,
	tokenService services.TokenService,
	captcha services.CaptchaService,
	bcryptCost int,
) AuthFlow {
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthFlowImpl{
		userRepo:     userRepo,
		tokenService: tokenService,
		captcha:      captcha,
		audit:        auditor{repo: auditRepo},
		bcryptCost:   bcryptCost,
	}
}

// Register creates an account and signs it in
func (af *AuthFlowImpl) Register(ctx context.Context, req *dto.RegisterRequest, metadata *ClientMetadata) (*dto.AuthResponse, error) {
	email := models.NormalizeEmail(req.Email)
	if err := checkmail.ValidateFormat(email); err != nil {
		return nil, NewBusinessError("INVALID_EMAIL", "Invalid email format", ErrInvalidEmail)
	}
	if len(req.Password) < minPasswordLength {
		return nil, NewBusinessErrorf("PASSWORD_TOO_SHORT", "Password must be at least %d characters", ErrPasswordTooShort, minPasswordLength)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, NewBusinessError("NAME_REQUIRED", "Name is required", ErrValidation)
	}

	if af.captcha != nil {
		if req.CaptchaID == "" || req.CaptchaAngle == nil || !af.captcha.Verify(ctx, req.CaptchaID, *req.CaptchaAngle) {
			return nil, NewBusinessError("CAPTCHA_INVALID", "Captcha verification failed", ErrCaptchaInvalid)
		}
	}

	existing, err := af.userRepo.ByEmail(ctx, email)
	if err != nil {
		return nil, NewBusinessError("USER_LOOKUP_FAILED", "Failed to lookup user", err)
	}
	if existing != nil {
		return nil, NewBusinessError("EMAIL_ALREADY_EXISTS", "Email is already registered", ErrEmailAlreadyExists)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), af.bcryptCost)
	if err != nil {
		return nil, NewBusinessError("PASSWORD_HASH_FAILED", "Failed to hash password", err)
	}

	user := &models.User{
		Email:              email,
		PasswordHash:       string(hash),
		Name:               name,
		Phone:              trimmedOrNil(req.Phone),
		Company:            trimmedOrNil(req.Company),
		EmailNotifications: true,
		PushNotifications:  true,
		ProfileVisible:     true,
		Analytics:          true,
		Language:           models.DefaultLanguage,
		Timezone:           models.DefaultTimezone,
		Theme:              models.DefaultTheme,
	}
	if err := af.userRepo.Save(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, NewBusinessError("EMAIL_ALREADY_EXISTS", "Email is already registered", ErrEmailAlreadyExists)
		}
		return nil, NewBusinessError("REGISTRATION_FAILED", "Registration failed", err)
	}

	uc := NewUserContext(user.ID, metadata)
	af.audit.record(ctx, uc, models.AuditActionSignupCompleted, fmt.Sprintf("User registered: %d", user.ID), true, nil)

	return af.issue(user)
}

// Login checks the password and records the login time
func (af *AuthFlowImpl) Login(ctx context.Context, req *dto.LoginRequest, metadata *ClientMetadata) (*dto.AuthResponse, error) {
	email := models.NormalizeEmail(req.Email)
	user, err := af.userRepo.ByEmail(ctx, email)
	if err != nil {
		return nil, NewBusinessError("USER_LOOKUP_FAILED", "Failed to lookup user", err)
	}

	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		uc := NewUserContext(0, metadata)
		if user != nil {
			uc.UserID = user.ID
		}
		msg := "invalid credentials for " + email
		af.audit.record(ctx, uc, models.AuditActionLoginFailed, "Login failed", false, &msg)
		return nil, NewBusinessError("INVALID_CREDENTIALS", "Invalid email or password", ErrInvalidCredentials)
	}

	now := utils.UTCNow()
	if err := af.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, NewBusinessError("LOGIN_FAILED", "Login failed", err)
	}
	user.LastLogin = &now

	uc := NewUserContext(user.ID, metadata)
	af.audit.record(ctx, uc, models.AuditActionLoginSuccess, fmt.Sprintf("User logged in successfully: %d", user.ID), true, nil)

	return af.issue(user)
}

// Logout revokes the presented token until it expires
func (af *AuthFlowImpl) Logout(ctx context.Context, uc UserContext, token string) error {
	if err := af.tokenService.RevokeToken(ctx, token); err != nil {
		return NewBusinessError("LOGOUT_FAILED", "Failed to revoke token", err)
	}
	af.audit.record(ctx, uc, models.AuditActionLogout, fmt.Sprintf("User logged out: %d", uc.UserID), true, nil)
	return nil
}

// Refresh rotates a refresh token into a new token pair
func (af *AuthFlowImpl) Refresh(ctx context.Context, refreshToken string, metadata *ClientMetadata) (*dto.AuthResponse, error) {
	access, refresh, err := af.tokenService.RefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, NewBusinessError("INVALID_REFRESH_TOKEN", "Invalid or expired refresh token", ErrUnauthorized)
	}

	claims, err := af.tokenService.ValidateToken(ctx, access)
	if err != nil {
		return nil, NewBusinessError("INVALID_REFRESH_TOKEN", "Invalid or expired refresh token", ErrUnauthorized)
	}
	user, err := loadUser(ctx, af.userRepo, claims.UserID)
	if err != nil {
		return nil, NewBusinessError("INVALID_REFRESH_TOKEN", "Account no longer exists", ErrUnauthorized)
	}

	af.audit.record(ctx, NewUserContext(user.ID, metadata), models.AuditActionTokenRefreshed, "Token refreshed", true, nil)

	return &dto.AuthResponse{
		User:         ToUserDTO(user),
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    bearerTokenType,
		ExpiresIn:    int(af.tokenService.AccessTokenTTL().Seconds()),
	}, nil
}

// Me returns the authenticated user
func (af *AuthFlowImpl) Me(ctx context.Context, uc UserContext) (*dto.UserDTO, error) {
	user, err := loadUser(ctx, af.userRepo, uc.UserID)
	if err != nil {
		return nil, err
	}
	return ToUserDTO(user), nil
}

// CheckSession never fails; an unusable token reports unauthenticated
func (af *AuthFlowImpl) CheckSession(ctx context.Context, token string) *dto.SessionResponse {
	if token == "" {
		return &dto.SessionResponse{}
	}
	claims, err := af.tokenService.ValidateToken(ctx, token)
	if err != nil || claims.TokenType != services.TokenTypeAccess {
		return &dto.SessionResponse{}
	}
	user, err := af.userRepo.ByID(ctx, claims.UserID)
	if err != nil || user == nil {
		return &dto.SessionResponse{}
	}
	return &dto.SessionResponse{Authenticated: true, User: ToUserDTO(user)}
}

// Captcha issues a rotate challenge for the registration form
func (af *AuthFlowImpl) Captcha(ctx context.Context) (*dto.CaptchaResponse, error) {
	if af.captcha == nil {
		return nil, NewBusinessError("CAPTCHA_DISABLED", "Captcha is not enabled", ErrNotFound)
	}
	challenge, err := af.captcha.Generate(ctx)
	if err != nil {
		return nil, NewBusinessError("CAPTCHA_GENERATION_FAILED", "Failed to generate captcha", err)
	}
	return &dto.CaptchaResponse{
		ChallengeID: challenge.ID,
		MasterImage: challenge.MasterImage,
		ThumbImage:  challenge.ThumbImage,
	}, nil
}

func (af *AuthFlowImpl) issue(user *models.User) (*dto.AuthResponse, error) {
	access, refresh, err := af.tokenService.GenerateTokens(user.ID)
	if err != nil {
		return nil, NewBusinessError("TOKEN_GENERATION_FAILED", "Failed to generate tokens", err)
	}
	return &dto.AuthResponse{
		User:         ToUserDTO(user),
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    bearerTokenType,
		ExpiresIn:    int(af.tokenService.AccessTokenTTL().Seconds()),
	}, nil
}
