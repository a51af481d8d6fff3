// Package models contains domain entities and filter types for the messaging platform
package models

import (
	"strings"
	"time"
)

// User is the tenant root: it owns contacts, campaigns, imports and bot activity
type User struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	Email        string  `gorm:"size:120;not null;uniqueIndex:uk_users_email" json:"email"`
	PasswordHash string  `gorm:"size:255;not null" json:"-"`
	Name         string  `gorm:"size:100;not null" json:"name"`
	Phone        *string `gorm:"size:20" json:"phone,omitempty"`
	Company      *string `gorm:"size:100" json:"company,omitempty"`

	// Credential slots for external services
	WhatsAppAPIKey *string `gorm:"column:whatsapp_api_key;size:255" json:"-"`
	GmailAPIKey    *string `gorm:"column:gmail_api_key;size:255" json:"-"`
	GeminiAPIKey   *string `gorm:"column:gemini_api_key;size:255" json:"-"`

	// Automation
	GeminiAutoReplyEnabled bool    `gorm:"column:gemini_auto_reply_enabled;not null;default:false" json:"gemini_auto_reply_enabled"`
	GeminiKnowledgeBase    *string `gorm:"column:gemini_knowledge_base;type:text" json:"gemini_knowledge_base,omitempty"`

	// Notification preferences
	EmailNotifications bool `gorm:"not null;default:true" json:"email_notifications"`
	PushNotifications  bool `gorm:"not null;default:true" json:"push_notifications"`
	SMSNotifications   bool `gorm:"column:sms_notifications;not null;default:false" json:"sms_notifications"`

	// Privacy preferences
	ProfileVisible bool `gorm:"not null;default:true" json:"profile_visible"`
	DataSharing    bool `gorm:"not null;default:false" json:"data_sharing"`
	Analytics      bool `gorm:"not null;default:true" json:"analytics"`

	// System preferences
	Language string `gorm:"size:10;not null;default:'es'" json:"language"`
	Timezone string `gorm:"size:50;not null;default:'Europe/Madrid'" json:"timezone"`
	Theme    string `gorm:"size:20;not null;default:'light'" json:"theme"`

	CreatedAt time.Time  `gorm:"index:idx_users_created_at" json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// Default preference values applied at registration
const (
	DefaultLanguage = "es"
	DefaultTimezone = "Europe/Madrid"
	DefaultTheme    = "light"
)

// HasMessagingCredential reports whether a WhatsApp credential is configured
func (u *User) HasMessagingCredential() bool {
	return hasValue(u.WhatsAppAPIKey)
}

// HasAICredential reports whether a Gemini credential is configured
func (u *User) HasAICredential() bool {
	return hasValue(u.GeminiAPIKey)
}

// HasKnowledgeBase reports whether a non-empty knowledge base is stored
func (u *User) HasKnowledgeBase() bool {
	return hasValue(u.GeminiKnowledgeBase)
}

func hasValue(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserFilter represents filter criteria for user queries
type UserFilter struct {
	ID    *uint
	Email *string
}
