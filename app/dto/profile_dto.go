package dto

// UpdateProfileRequest patches the profile; nil fields are left untouched
type UpdateProfileRequest struct {
	Name    *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Company *string `json:"company,omitempty" validate:"omitempty,max=100"`

	WhatsAppAPIKey *string `json:"whatsapp_api_key,omitempty" validate:"omitempty,max=255"`
	GmailAPIKey    *string `json:"gmail_api_key,omitempty" validate:"omitempty,max=255"`
	GeminiAPIKey   *string `json:"gemini_api_key,omitempty" validate:"omitempty,max=255"`

	GeminiAutoReplyEnabled *bool   `json:"gemini_auto_reply_enabled,omitempty"`
	GeminiKnowledgeBase    *string `json:"gemini_knowledge_base,omitempty"`

	EmailNotifications *bool `json:"email_notifications,omitempty"`
	PushNotifications  *bool `json:"push_notifications,omitempty"`
	SMSNotifications   *bool `json:"sms_notifications,omitempty"`

	ProfileVisible *bool `json:"profile_visible,omitempty"`
	DataSharing    *bool `json:"data_sharing,omitempty"`
	Analytics      *bool `json:"analytics,omitempty"`

	Language *string `json:"language,omitempty" validate:"omitempty,min=2,max=10"`
	Timezone *string `json:"timezone,omitempty" validate:"omitempty,max=50"`
	Theme    *string `json:"theme,omitempty" validate:"omitempty,oneof=light dark auto"`
}

// ChangePasswordRequest rotates the account password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=100"`
}

// DeleteAccountRequest confirms account removal with the password
type DeleteAccountRequest struct {
	Password string `json:"password" validate:"required"`
}

// APIKeysResponse reports credential slots without exposing them
type APIKeysResponse struct {
	WhatsAppConfigured bool   `json:"whatsapp_configured"`
	GmailConfigured    bool   `json:"gmail_configured"`
	GeminiConfigured   bool   `json:"gemini_configured"`
	WhatsAppAPIKey     string `json:"whatsapp_api_key,omitempty" example:"EAAB****************x9Zq"`
	GmailAPIKey        string `json:"gmail_api_key,omitempty"`
	GeminiAPIKey       string `json:"gemini_api_key,omitempty"`
}

// DeleteAccountResponse summarises a completed account removal
type DeleteAccountResponse struct {
	Message            string `json:"message"`
	MediaFilesRemoved  int    `json:"media_files_removed"`
	MediaFilesOrphaned int    `json:"media_files_orphaned"`
}
