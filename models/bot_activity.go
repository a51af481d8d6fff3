package models

import "time"

// Known activity kinds; the column itself is free-form
const (
	ActivityAutomationToggled    = "automation_toggled"
	ActivityKnowledgeBaseUpdated = "knowledge_base_updated"
	ActivityTestResponse         = "test_response"
	ActivityMessageReceived      = "message_received"
	ActivityAutoReplySent        = "auto_reply_sent"
)

// ActivityStatus is the outcome recorded on a bot activity
type ActivityStatus string

const (
	ActivityStatusSuccess ActivityStatus = "success"
	ActivityStatusFailed  ActivityStatus = "failed"
)

// BotActivity is an append-only log entry of the auto-reply assistant
type BotActivity struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UserID          uint           `gorm:"not null;index:idx_bot_activities_user_id" json:"user_id"`
	ActivityType    string         `gorm:"size:50;not null;index:idx_bot_activities_type" json:"activity_type"`
	ContactPhone    *string        `gorm:"size:20" json:"contact_phone,omitempty"`
	ContactName     *string        `gorm:"size:100" json:"contact_name,omitempty"`
	MessageContent  *string        `gorm:"type:text" json:"message_content,omitempty"`
	ResponseContent *string        `gorm:"type:text" json:"response_content,omitempty"`
	Status          ActivityStatus `gorm:"size:20;not null;default:'success';index:idx_bot_activities_status" json:"status"`
	CreatedAt       time.Time      `gorm:"index:idx_bot_activities_created_at" json:"created_at"`
}

func (BotActivity) TableName() string {
	return "bot_activities"
}

// BotActivityFilter represents filter criteria for activity queries
type BotActivityFilter struct {
	ID           *uint
	UserID       *uint
	ActivityType *string
	Status       *ActivityStatus
	CreatedAfter *time.Time
}
