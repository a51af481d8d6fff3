package models

import "time"

// DeliveryStatus tracks one recipient inside one campaign dispatch
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusRead      DeliveryStatus = "read"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// Rank orders the forward-only progression; failed sits outside it.
func (s DeliveryStatus) Rank() int {
	switch s {
	case DeliveryStatusPending:
		return 0
	case DeliveryStatusSent:
		return 1
	case DeliveryStatusDelivered:
		return 2
	case DeliveryStatusRead:
		return 3
	default:
		return -1
	}
}

// Valid checks if the status is known
func (s DeliveryStatus) Valid() bool {
	return s == DeliveryStatusFailed || s.Rank() >= 0
}

// IsTerminal reports whether no further provider updates are expected
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusRead || s == DeliveryStatusFailed
}

// CanAdvanceTo reports whether a provider update moves the delivery forward.
// Failed is reachable only before delivery; regressions are rejected.
func (s DeliveryStatus) CanAdvanceTo(next DeliveryStatus) bool {
	if s == DeliveryStatusFailed || !next.Valid() {
		return false
	}
	if next == DeliveryStatusFailed {
		return s == DeliveryStatusPending || s == DeliveryStatusSent
	}
	return next.Rank() > s.Rank()
}

// CampaignDelivery is the per-recipient dispatch record of a campaign
type CampaignDelivery struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	CampaignID        uint           `gorm:"not null;uniqueIndex:uk_deliveries_campaign_contact,priority:1;index:idx_deliveries_campaign_id" json:"campaign_id"`
	ContactID         uint           `gorm:"not null;uniqueIndex:uk_deliveries_campaign_contact,priority:2" json:"contact_id"`
	Phone             string         `gorm:"size:20;not null" json:"phone"`
	Status            DeliveryStatus `gorm:"size:20;not null;default:'pending';index:idx_deliveries_status" json:"status"`
	ProviderMessageID *string        `gorm:"size:255;index:idx_deliveries_provider_message_id" json:"provider_message_id,omitempty"`
	ErrorMessage      *string        `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	SentAt            *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time     `json:"delivered_at,omitempty"`
	ReadAt            *time.Time     `json:"read_at,omitempty"`
}

func (CampaignDelivery) TableName() string {
	return "campaign_deliveries"
}

// CampaignDeliveryFilter represents filter criteria for delivery queries
type CampaignDeliveryFilter struct {
	ID                *uint
	CampaignID        *uint
	ContactID         *uint
	Status            *DeliveryStatus
	ProviderMessageID *string
}
