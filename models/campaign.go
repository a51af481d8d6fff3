package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// CampaignStatus represents the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusPaused    CampaignStatus = "paused"
)

// AllCampaignStatuses lists statuses in display order
var AllCampaignStatuses = []CampaignStatus{
	CampaignStatusDraft,
	CampaignStatusScheduled,
	CampaignStatusActive,
	CampaignStatusCompleted,
	CampaignStatusPaused,
}

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusActive,
		CampaignStatusCompleted, CampaignStatusPaused:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// IsEditable reports whether content, schedule or recipients may still change
func (s CampaignStatus) IsEditable() bool {
	return s != CampaignStatusActive && s != CampaignStatusCompleted
}

// IsDeletable reports whether the campaign may be removed
func (s CampaignStatus) IsDeletable() bool {
	return s != CampaignStatusActive
}

// IsDispatchable reports whether Send may start from this state
func (s CampaignStatus) IsDispatchable() bool {
	return s == CampaignStatusDraft || s == CampaignStatusScheduled
}

// CanTransitionTo encodes the dispatcher state machine
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	switch s {
	case CampaignStatusDraft:
		return next == CampaignStatusScheduled || next == CampaignStatusActive
	case CampaignStatusScheduled:
		return next == CampaignStatusDraft || next == CampaignStatusActive
	case CampaignStatusActive:
		return next == CampaignStatusCompleted || next == CampaignStatusPaused
	case CampaignStatusPaused:
		// Deliveries already exist, so only Resume leaves paused
		return next == CampaignStatusActive
	default:
		return false
	}
}

// Campaign is a message template bound to a recipient set and a lifecycle status
type Campaign struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UserID          uint           `gorm:"not null;index:idx_campaigns_user_id" json:"user_id"`
	Name            string         `gorm:"size:200;not null" json:"name"`
	Message         string         `gorm:"type:text;not null" json:"message"`
	Status          CampaignStatus `gorm:"size:20;not null;default:'draft';index:idx_campaigns_status" json:"status"`
	SentCount       int64          `gorm:"not null;default:0" json:"sent_count"`
	OpenedCount     int64          `gorm:"not null;default:0" json:"opened_count"`
	ClickedCount    int64          `gorm:"not null;default:0" json:"clicked_count"`
	TotalRecipients int64          `gorm:"not null;default:0" json:"total_recipients"`
	ScheduledAt     *time.Time     `json:"scheduled_at,omitempty"`
	MediaPath       *string        `gorm:"size:500" json:"media_path,omitempty"`
	CreatedAt       time.Time      `gorm:"index:idx_campaigns_created_at" json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	SentAt          *time.Time     `gorm:"index:idx_campaigns_sent_at" json:"sent_at,omitempty"`

	// Relations
	MediaFiles []MediaFile `gorm:"foreignKey:CampaignID" json:"media_files,omitempty"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// CampaignContact is the explicit recipient-set join row
type CampaignContact struct {
	CampaignID uint      `gorm:"primaryKey;autoIncrement:false" json:"campaign_id"`
	ContactID  uint      `gorm:"primaryKey;autoIncrement:false;index:idx_campaign_contacts_contact_id" json:"contact_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (CampaignContact) TableName() string {
	return "campaign_contacts"
}

// CampaignFilter represents filter criteria for campaign queries
type CampaignFilter struct {
	ID            *uint
	UserID        *uint
	Status        *CampaignStatus
	CreatedAfter  *time.Time
	SentAfter     *time.Time
	UpdatedAfter  *time.Time
	UpdatedBefore *time.Time
	// DueBefore matches campaigns whose scheduled_at is set and not later than the bound
	DueBefore *time.Time
}

// CampaignStatusCount is one row of a per-status rollup
type CampaignStatusCount struct {
	Status CampaignStatus
	Count  int64
}
