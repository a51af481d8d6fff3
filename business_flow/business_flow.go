// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/amirphl/nexus-communicator/app/dto"
	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/repository"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// ClientMetadata holds all client-related information for audit logging
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// UserContext identifies the authenticated caller of a core operation
type UserContext struct {
	UserID uint
	Client *ClientMetadata
}

// NewUserContext builds the caller identity passed into every flow
func NewUserContext(userID uint, client *ClientMetadata) UserContext {
	return UserContext{UserID: userID, Client: client}
}

func (uc UserContext) userIDPtr() *uint {
	if uc.UserID == 0 {
		return nil
	}
	id := uc.UserID
	return &id
}

// auditor writes audit log rows; failures are logged and never surface
type auditor struct {
	repo repository.AuditLogRepository
}

func (a auditor) record(ctx context.Context, uc UserContext, action, description string, success bool, errorMsg *string) {
	if a.repo == nil {
		return
	}

	audit := &models.AuditLog{
		UserID:       uc.userIDPtr(),
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		ErrorMessage: errorMsg,
	}

	if uc.Client != nil {
		audit.IPAddress = &uc.Client.IPAddress
		audit.UserAgent = &uc.Client.UserAgent
		if len(uc.Client.Additional) > 0 {
			if raw, err := json.Marshal(uc.Client.Additional); err == nil {
				audit.Metadata = datatypes.JSON(raw)
			}
		}
		if uc.Client.RequestID != "" {
			audit.RequestID = &uc.Client.RequestID
		}
	}

	// Extract request ID from context if available
	if audit.RequestID == nil {
		if requestID, ok := ctx.Value(utils.RequestIDKey).(string); ok && requestID != "" {
			audit.RequestID = &requestID
		}
	}

	if err := a.repo.Save(ctx, audit); err != nil {
		logrus.WithFields(logrus.Fields{
			"action":  action,
			"user_id": uc.UserID,
			"error":   err,
		}).Warn("failed to write audit log")
	}
}

func (a auditor) failure(ctx context.Context, uc UserContext, action string, err error) {
	msg := err.Error()
	a.record(ctx, uc, action, action+" failed", false, &msg)
}

// normalizePage clamps page to >= 1 and per_page to [1, MaxPageSize]
func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = utils.DefaultPageSize
	}
	if perPage > utils.MaxPageSize {
		perPage = utils.MaxPageSize
	}
	return page, perPage
}

func buildPagination(page, perPage int, total int64) dto.Pagination {
	pages := 0
	if total > 0 {
		pages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return dto.Pagination{
		Page:    page,
		PerPage: perPage,
		Total:   total,
		Pages:   pages,
		HasNext: page < pages,
		HasPrev: page > 1,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ToUserDTO converts a user model to its API view
func ToUserDTO(user *models.User) *dto.UserDTO {
	if user == nil {
		return nil
	}
	return &dto.UserDTO{
		ID:                     user.ID,
		Email:                  user.Email,
		Name:                   user.Name,
		Phone:                  user.Phone,
		Company:                user.Company,
		GeminiAutoReplyEnabled: user.GeminiAutoReplyEnabled,
		EmailNotifications:     user.EmailNotifications,
		PushNotifications:      user.PushNotifications,
		SMSNotifications:       user.SMSNotifications,
		ProfileVisible:         user.ProfileVisible,
		DataSharing:            user.DataSharing,
		Analytics:              user.Analytics,
		Language:               user.Language,
		Timezone:               user.Timezone,
		Theme:                  user.Theme,
		CreatedAt:              formatTime(user.CreatedAt),
		UpdatedAt:              formatTime(user.UpdatedAt),
		LastLogin:              utils.FormatTimePtr(user.LastLogin),
	}
}

// ToContactDTO converts a contact model to its API view
func ToContactDTO(contact *models.Contact) dto.ContactDTO {
	tags := []string(contact.Tags)
	if tags == nil {
		tags = []string{}
	}
	return dto.ContactDTO{
		ID:            contact.ID,
		Name:          contact.Name,
		Phone:         contact.Phone,
		Email:         contact.Email,
		Status:        string(contact.Status),
		Tags:          tags,
		Notes:         contact.Notes,
		CreatedAt:     formatTime(contact.CreatedAt),
		UpdatedAt:     formatTime(contact.UpdatedAt),
		LastMessageAt: utils.FormatTimePtr(contact.LastMessageAt),
	}
}

func toContactDTOs(contacts []*models.Contact) []dto.ContactDTO {
	out := make([]dto.ContactDTO, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, ToContactDTO(c))
	}
	return out
}

// ToMediaFileDTO converts a media file model to its API view
func ToMediaFileDTO(media *models.MediaFile) dto.MediaFileDTO {
	return dto.MediaFileDTO{
		ID:               media.ID,
		Filename:         media.Filename,
		OriginalFilename: media.OriginalFilename,
		Mimetype:         media.Mimetype,
		FileSize:         media.FileSize,
		IsImage:          media.IsImage(),
		CreatedAt:        formatTime(media.CreatedAt),
	}
}

// ToCampaignDTO converts a campaign model to its API view
func ToCampaignDTO(campaign *models.Campaign) dto.CampaignDTO {
	media := make([]dto.MediaFileDTO, 0, len(campaign.MediaFiles))
	for i := range campaign.MediaFiles {
		media = append(media, ToMediaFileDTO(&campaign.MediaFiles[i]))
	}
	return dto.CampaignDTO{
		ID:              campaign.ID,
		Name:            campaign.Name,
		Message:         campaign.Message,
		Status:          string(campaign.Status),
		SentCount:       campaign.SentCount,
		OpenedCount:     campaign.OpenedCount,
		ClickedCount:    campaign.ClickedCount,
		TotalRecipients: campaign.TotalRecipients,
		ScheduledAt:     utils.FormatTimePtr(campaign.ScheduledAt),
		MediaPath:       campaign.MediaPath,
		CreatedAt:       formatTime(campaign.CreatedAt),
		UpdatedAt:       formatTime(campaign.UpdatedAt),
		SentAt:          utils.FormatTimePtr(campaign.SentAt),
		MediaFiles:      media,
	}
}

// ToImportedFileDTO converts an import history row to its API view
func ToImportedFileDTO(file *models.ImportedFile) dto.ImportedFileDTO {
	return dto.ImportedFileDTO{
		ID:               file.ID,
		Filename:         file.Filename,
		FileType:         string(file.FileType),
		FileURL:          file.FileURL,
		ContactsImported: file.ContactsImported,
		Status:           string(file.Status),
		ErrorMessage:     file.ErrorMessage,
		CreatedAt:        formatTime(file.CreatedAt),
		CompletedAt:      utils.FormatTimePtr(file.CompletedAt),
	}
}

// ToBotActivityDTO converts an activity row to its API view
func ToBotActivityDTO(activity *models.BotActivity) dto.BotActivityDTO {
	return dto.BotActivityDTO{
		ID:              activity.ID,
		ActivityType:    activity.ActivityType,
		ContactPhone:    activity.ContactPhone,
		ContactName:     activity.ContactName,
		MessageContent:  activity.MessageContent,
		ResponseContent: activity.ResponseContent,
		Status:          string(activity.Status),
		CreatedAt:       formatTime(activity.CreatedAt),
	}
}

func toBotActivityDTOs(activities []*models.BotActivity) []dto.BotActivityDTO {
	out := make([]dto.BotActivityDTO, 0, len(activities))
	for _, a := range activities {
		out = append(out, ToBotActivityDTO(a))
	}
	return out
}
