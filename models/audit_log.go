package models

import (
	"time"

	"gorm.io/datatypes"
)

type AuditLog struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UserID       *uint          `gorm:"index:idx_audit_user_id" json:"user_id,omitempty"`
	Action       string         `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Description  *string        `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string        `gorm:"size:64;index:idx_audit_ip_address" json:"ip_address,omitempty"`
	UserAgent    *string        `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string        `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`
	Success      *bool          `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string        `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time      `gorm:"index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionSignupCompleted      = "signup_completed"
	AuditActionLoginSuccess         = "login_success"
	AuditActionLoginFailed          = "login_failed"
	AuditActionLogout               = "logout"
	AuditActionTokenRefreshed       = "token_refreshed"
	AuditActionPasswordChanged      = "password_changed"
	AuditActionProfileUpdated       = "profile_updated"
	AuditActionSettingsUpdated      = "settings_updated"
	AuditActionAPIKeysUpdated       = "api_keys_updated"
	AuditActionAccountDeleted       = "account_deleted"
	AuditActionContactsImported     = "contacts_imported"
	AuditActionContactsBulkDeleted  = "contacts_bulk_deleted"
	AuditActionCampaignCreated      = "campaign_created"
	AuditActionCampaignUpdated      = "campaign_updated"
	AuditActionCampaignDeleted      = "campaign_deleted"
	AuditActionCampaignSent         = "campaign_sent"
	AuditActionCampaignPaused       = "campaign_paused"
	AuditActionCampaignResumed      = "campaign_resumed"
	AuditActionCampaignCompleted    = "campaign_completed"
	AuditActionCampaignDuplicated   = "campaign_duplicated"
	AuditActionMediaUploaded        = "media_uploaded"
	AuditActionMediaDeleted         = "media_deleted"
	AuditActionAutomationToggled    = "automation_toggled"
	AuditActionKnowledgeBaseUpdated = "knowledge_base_updated"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	UserID        *uint
	Action        *string
	Success       *bool
	IPAddress     *string
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}

func (a *AuditLog) IsSecurityEvent() bool {
	securityActions := map[string]bool{
		AuditActionLoginSuccess:    true,
		AuditActionLoginFailed:     true,
		AuditActionPasswordChanged: true,
		AuditActionAPIKeysUpdated:  true,
		AuditActionAccountDeleted:  true,
	}
	return securityActions[a.Action]
}
