package businessflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/amirphl/nexus-communicator/app/dto"
	"github.com/amirphl/nexus-communicator/app/services"
	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var allowedThemes = map[string]bool{"light": true, "dark": true, "auto": true}

// ProfileFlow handles the account profile, credentials and account removal
type ProfileFlow interface {
	GetProfile(ctx context.Context, uc UserContext) (*dto.UserDTO, error)
	UpdateProfile(ctx context.Context, uc UserContext, req *dto.UpdateProfileRequest) (*dto.UserDTO, error)
	ChangePassword(ctx context.Context, uc UserContext, req *dto.ChangePasswordRequest) error
	GetAPIKeys(ctx context.Context, uc UserContext) (*dto.APIKeysResponse, error)
	DeleteAccount(ctx context.Context, uc UserContext, req *dto.DeleteAccountRequest) (*dto.DeleteAccountResponse, error)
}

// ProfileFlowImpl implements the profile business flow
type ProfileFlowImpl struct {
	userRepo   repository.UserRepository
	mediaStore services.MediaStore
	audit      auditor
	bcryptCost int
}

// NewProfileFlow creates a new profile flow instance
func NewProfileFlow(
	userRepo repository.UserRepository,
	auditRepo repository.AuditLogRepository,
	mediaStore services.MediaStore,
	bcryptCost int,
) ProfileFlow {
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &ProfileFlowImpl{
		userRepo:   userRepo,
		mediaStore: mediaStore,
		audit:      auditor{repo: auditRepo},
		bcryptCost: bcryptCost,
	}
}

func (f *ProfileFlowImpl) GetProfile(ctx context.Context, uc UserContext) (*dto.UserDTO, error) {
	user, err := loadUser(ctx, f.userRepo, uc.UserID)
	if err != nil {
		return nil, err
	}
	return ToUserDTO(user), nil
}

// UpdateProfile applies every non-nil field. An empty credential clears the slot.
func (f *ProfileFlowImpl) UpdateProfile(ctx context.Context, uc UserContext, req *dto.UpdateProfileRequest) (*dto.UserDTO, error) {
	if _, err := loadUser(ctx, f.userRepo, uc.UserID); err != nil {
		return nil, err
	}

	values := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, NewBusinessError("NAME_REQUIRED", "Name cannot be empty", ErrValidation)
		}
		values["name"] = name
	}
	if req.Phone != nil {
		values["phone"] = trimmedOrNil(req.Phone)
	}
	if req.Company != nil {
		values["company"] = trimmedOrNil(req.Company)
	}

	keysChanged := false
	for column, v := range map[string]*string{
		"whatsapp_api_key": req.WhatsAppAPIKey,
		"gmail_api_key":    req.GmailAPIKey,
		"gemini_api_key":   req.GeminiAPIKey,
	} {
		if v != nil {
			values[column] = trimmedOrNil(v)
			keysChanged = true
		}
	}

	if req.GeminiAutoReplyEnabled != nil {
		values["gemini_auto_reply_enabled"] = *req.GeminiAutoReplyEnabled
	}
	if req.GeminiKnowledgeBase != nil {
		values["gemini_knowledge_base"] = strings.TrimSpace(*req.GeminiKnowledgeBase)
	}

	for column, v := range map[string]*bool{
		"email_notifications": req.EmailNotifications,
		"push_notifications":  req.PushNotifications,
		"sms_notifications":   req.SMSNotifications,
		"profile_visible":     req.ProfileVisible,
		"data_sharing":        req.DataSharing,
		"analytics":           req.Analytics,
	} {
		if v != nil {
			values[column] = *v
		}
	}

	if req.Language != nil {
		values["language"] = strings.TrimSpace(*req.Language)
	}
	if req.Timezone != nil {
		values["timezone"] = strings.TrimSpace(*req.Timezone)
	}
	if req.Theme != nil {
		if !allowedThemes[*req.Theme] {
			return nil, NewBusinessErrorf("INVALID_THEME", "Theme %q is not supported", ErrValidation, *req.Theme)
		}
		values["theme"] = *req.Theme
	}

	if len(values) > 0 {
		if err := f.userRepo.UpdateFields(ctx, uc.UserID, values); err != nil {
			f.audit.failure(ctx, uc, models.AuditActionProfileUpdated, err)
			return nil, NewBusinessError("PROFILE_UPDATE_FAILED", "Profile update failed", err)
		}
		f.audit.record(ctx, uc, models.AuditActionProfileUpdated, fmt.Sprintf("Profile updated (%d fields)", len(values)), true, nil)
		if keysChanged {
			f.audit.record(ctx, uc, models.AuditActionAPIKeysUpdated, "API keys updated", true, nil)
		}
	}

	return f.GetProfile(ctx, uc)
}

// ChangePassword requires the current password
func (f *ProfileFlowImpl) ChangePassword(ctx context.Context, uc UserContext, req *dto.ChangePasswordRequest) error {
	user, err := loadUser(ctx, f.userRepo, uc.UserID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
		msg := "current password mismatch"
		f.audit.record(ctx, uc, models.AuditActionPasswordChanged, "Password change rejected", false, &msg)
		return NewBusinessError("INCORRECT_PASSWORD", "Current password is incorrect", ErrIncorrectPassword)
	}
	if len(req.NewPassword) < minPasswordLength {
		return NewBusinessErrorf("PASSWORD_TOO_SHORT", "Password must be at least %d characters", ErrPasswordTooShort, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), f.bcryptCost)
	if err != nil {
		return NewBusinessError("PASSWORD_HASH_FAILED", "Failed to hash password", err)
	}
	if err := f.userRepo.UpdatePassword(ctx, uc.UserID, string(hash)); err != nil {
		f.audit.failure(ctx, uc, models.AuditActionPasswordChanged, err)
		return NewBusinessError("PASSWORD_CHANGE_FAILED", "Failed to change password", err)
	}

	f.audit.record(ctx, uc, models.AuditActionPasswordChanged, "Password changed", true, nil)
	return nil
}

// GetAPIKeys reports which credential slots are set, with masked values
func (f *ProfileFlowImpl) GetAPIKeys(ctx context.Context, uc UserContext) (*dto.APIKeysResponse, error) {
	user, err := loadUser(ctx, f.userRepo, uc.UserID)
	if err != nil {
		return nil, err
	}
	return &dto.APIKeysResponse{
		WhatsAppConfigured: user.HasMessagingCredential(),
		GmailConfigured:    user.GmailAPIKey != nil && strings.TrimSpace(*user.GmailAPIKey) != "",
		GeminiConfigured:   user.HasAICredential(),
		WhatsAppAPIKey:     MaskSecret(user.WhatsAppAPIKey),
		GmailAPIKey:        MaskSecret(user.GmailAPIKey),
		GeminiAPIKey:       MaskSecret(user.GeminiAPIKey),
	}, nil
}

// MaskSecret hides all but the first and last four characters; values of
// eight characters or fewer are fully masked
func MaskSecret(secret *string) string {
	if secret == nil || *secret == "" {
		return ""
	}
	r := []rune(*secret)
	if len(r) <= 8 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:4]) + strings.Repeat("*", len(r)-8) + string(r[len(r)-4:])
}

// DeleteAccount removes the user and everything it owns, then the stored media
func (f *ProfileFlowImpl) DeleteAccount(ctx context.Context, uc UserContext, req *dto.DeleteAccountRequest) (*dto.DeleteAccountResponse, error) {
	user, err := loadUser(ctx, f.userRepo, uc.UserID)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, NewBusinessError("INCORRECT_PASSWORD", "Password is incorrect", ErrIncorrectPassword)
	}

	paths, err := f.userRepo.DeleteCascade(ctx, user.ID)
	if err != nil {
		f.audit.failure(ctx, uc, models.AuditActionAccountDeleted, err)
		return nil, NewBusinessError("ACCOUNT_DELETION_FAILED", "Account deletion failed", err)
	}

	resp := &dto.DeleteAccountResponse{Message: "Cuenta eliminada exitosamente"}
	for _, path := range paths {
		if f.mediaStore == nil {
			resp.MediaFilesOrphaned++
			continue
		}
		if err := f.mediaStore.Remove(path); err != nil {
			resp.MediaFilesOrphaned++
			logrus.WithFields(logrus.Fields{
				"user_id": user.ID,
				"path":    path,
				"error":   err,
			}).Warn("failed to remove media file of deleted account")
			continue
		}
		resp.MediaFilesRemoved++
	}

	f.audit.record(ctx, uc, models.AuditActionAccountDeleted,
		fmt.Sprintf("Account %d deleted, %d media files removed", user.ID, resp.MediaFilesRemoved), true, nil)
	return resp, nil
}
