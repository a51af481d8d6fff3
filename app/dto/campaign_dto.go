package dto

import (
	"time"
)

// CreateCampaignRequest represents the request to create a new campaign
type CreateCampaignRequest struct {
	Name        string     `json:"name" validate:"required,min=1,max=200" example:"Promo de otoño"`
	Message     string     `json:"message" validate:"required,min=1" example:"Hola {nombre}, tenemos novedades"`
	Status      *string    `json:"status,omitempty" validate:"omitempty,oneof=draft scheduled"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	ContactIDs  []uint     `json:"contact_ids,omitempty"`
}

// UpdateCampaignRequest patches a campaign; ContactIDs, when present,
// replaces the whole recipient set
type UpdateCampaignRequest struct {
	Name        *string    `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Message     *string    `json:"message,omitempty" validate:"omitempty,min=1"`
	Status      *string    `json:"status,omitempty" validate:"omitempty,oneof=draft scheduled"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	ContactIDs  *[]uint    `json:"contact_ids,omitempty"`
}

// ListCampaignsRequest holds the list query string
type ListCampaignsRequest struct {
	Page    int    `query:"page" json:"page" validate:"omitempty,min=1"`
	PerPage int    `query:"per_page" json:"per_page" validate:"omitempty,min=1"`
	Status  string `query:"status" json:"status" validate:"omitempty,oneof=draft scheduled active completed paused"`
}

// CampaignDTO is the API view of a campaign
type CampaignDTO struct {
	ID              uint           `json:"id" example:"1"`
	Name            string         `json:"name"`
	Message         string         `json:"message"`
	Status          string         `json:"status" example:"draft"`
	SentCount       int64          `json:"sent_count"`
	OpenedCount     int64          `json:"opened_count"`
	ClickedCount    int64          `json:"clicked_count"`
	TotalRecipients int64          `json:"total_recipients"`
	ScheduledAt     *string        `json:"scheduled_at,omitempty"`
	MediaPath       *string        `json:"media_path,omitempty"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
	SentAt          *string        `json:"sent_at,omitempty"`
	MediaFiles      []MediaFileDTO `json:"media_files"`
	Contacts        []ContactDTO   `json:"contacts,omitempty"`
}

// ListCampaignsResponse is one page of campaigns
type ListCampaignsResponse struct {
	Campaigns  []CampaignDTO `json:"campaigns"`
	Pagination Pagination    `json:"pagination"`
}

// CampaignResponse wraps a single campaign with a confirmation
type CampaignResponse struct {
	Message  string      `json:"message,omitempty"`
	Campaign CampaignDTO `json:"campaign"`
}

// SendCampaignResponse reports the outcome of a dispatch
type SendCampaignResponse struct {
	Message   string      `json:"message"`
	Campaign  CampaignDTO `json:"campaign"`
	Accepted  int         `json:"accepted"`
	Failed    int         `json:"failed"`
	Pending   int         `json:"pending"`
	Completed bool        `json:"completed"`
}

// CampaignStatsResponse aggregates campaign counters of the user
type CampaignStatsResponse struct {
	TotalCampaigns     int64   `json:"total_campaigns"`
	DraftCampaigns     int64   `json:"draft_campaigns"`
	ActiveCampaigns    int64   `json:"active_campaigns"`
	CompletedCampaigns int64   `json:"completed_campaigns"`
	TotalSent          int64   `json:"total_sent"`
	TotalOpened        int64   `json:"total_opened"`
	OpenRate           float64 `json:"open_rate"`
}

// MediaFileDTO is the API view of a campaign attachment
type MediaFileDTO struct {
	ID               uint   `json:"id"`
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename"`
	Mimetype         string `json:"mimetype"`
	FileSize         int64  `json:"file_size"`
	IsImage          bool   `json:"is_image"`
	CreatedAt        string `json:"created_at"`
}

// MediaUploadResponse is returned after attaching a file
type MediaUploadResponse struct {
	Message   string       `json:"message"`
	MediaFile MediaFileDTO `json:"media_file"`
}

// CampaignPreviewResponse shows the template rendered for the first recipient
type CampaignPreviewResponse struct {
	PreviewMessage  string         `json:"preview_message"`
	SampleContact   *ContactDTO    `json:"sample_contact,omitempty"`
	TotalRecipients int64          `json:"total_recipients"`
	MediaFiles      []MediaFileDTO `json:"media_files"`
}

// GenerateMessageRequest asks for an AI drafted template
type GenerateMessageRequest struct {
	Prompt string `json:"prompt" validate:"required,min=1,max=1000"`
	Tone   string `json:"tone,omitempty" validate:"omitempty,max=50"`
}

// GenerateMessageResponse carries the drafted template
type GenerateMessageResponse struct {
	GeneratedMessage string `json:"generated_message"`
	Tone             string `json:"tone"`
	Prompt           string `json:"prompt_used"`
}
