package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ContactStatus is the lifecycle flag of a contact
type ContactStatus string

const (
	ContactStatusActive   ContactStatus = "active"
	ContactStatusInactive ContactStatus = "inactive"
)

// Valid checks if the status is valid
func (s ContactStatus) Valid() bool {
	return s == ContactStatusActive || s == ContactStatusInactive
}

// Contact belongs to exactly one user; (user_id, phone) is unique
type Contact struct {
	ID            uint                        `gorm:"primaryKey" json:"id"`
	UserID        uint                        `gorm:"not null;uniqueIndex:uk_contacts_user_phone,priority:1;index:idx_contacts_user_id" json:"user_id"`
	Name          string                      `gorm:"size:100;not null" json:"name"`
	Phone         string                      `gorm:"size:20;not null;uniqueIndex:uk_contacts_user_phone,priority:2" json:"phone"`
	Email         *string                     `gorm:"size:120" json:"email,omitempty"`
	Status        ContactStatus               `gorm:"size:20;not null;default:'active';index:idx_contacts_status" json:"status"`
	Tags          datatypes.JSONSlice[string] `gorm:"not null" json:"tags"`
	Notes         *string                     `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt     time.Time                   `gorm:"index:idx_contacts_created_at" json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
	LastMessageAt *time.Time                  `json:"last_message_at,omitempty"`
}

func (Contact) TableName() string {
	return "contacts"
}

// BeforeSave keeps the tags column non-null
func (c *Contact) BeforeSave(tx *gorm.DB) error {
	if c.Tags == nil {
		c.Tags = datatypes.JSONSlice[string]{}
	}
	if c.Status == "" {
		c.Status = ContactStatusActive
	}
	return nil
}

// NormalizePhone is the comparison form of a phone number
func NormalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}

// SplitTags splits a comma separated tag list, dropping blanks
func SplitTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// ContactFilter represents filter criteria for contact queries
type ContactFilter struct {
	ID           *uint
	IDs          []uint
	UserID       *uint
	Phone        *string
	Status       *ContactStatus
	Search       *string
	Tag          *string
	CreatedAfter *time.Time
}
