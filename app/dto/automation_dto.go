package dto

// AutomationStatusResponse summarises the auto-reply configuration
type AutomationStatusResponse struct {
	Enabled                 bool    `json:"enabled"`
	GeminiConfigured        bool    `json:"gemini_configured"`
	KnowledgeBaseConfigured bool    `json:"knowledge_base_configured"`
	LastActivity            *string `json:"last_activity,omitempty"`
}

// ToggleAutomationRequest switches the auto-reply flag
type ToggleAutomationRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// ToggleAutomationResponse confirms the new flag value
type ToggleAutomationResponse struct {
	Message string `json:"message"`
	Enabled bool   `json:"enabled"`
}

// KnowledgeBaseRequest replaces the knowledge base text
type KnowledgeBaseRequest struct {
	KnowledgeBase *string `json:"knowledge_base" validate:"required"`
}

// KnowledgeBaseResponse returns the stored knowledge base
type KnowledgeBaseResponse struct {
	Message       string  `json:"message,omitempty"`
	KnowledgeBase string  `json:"knowledge_base"`
	LastUpdated   *string `json:"last_updated,omitempty"`
}

// TestResponseRequest carries a sample incoming message
type TestResponseRequest struct {
	TestMessage string `json:"test_message" validate:"required,min=1,max=2000"`
}

// TestResponseResponse shows the generated assistant answer
type TestResponseResponse struct {
	TestMessage       string  `json:"test_message"`
	GeneratedResponse string  `json:"generated_response"`
	ResponseTime      string  `json:"response_time"`
	Confidence        float64 `json:"confidence"`
}

// ListActivityRequest holds the activity list query string
type ListActivityRequest struct {
	Page    int    `query:"page" json:"page" validate:"omitempty,min=1"`
	PerPage int    `query:"per_page" json:"per_page" validate:"omitempty,min=1"`
	Type    string `query:"type" json:"type" validate:"omitempty,max=50"`
}

// BotActivityDTO is the API view of one activity entry
type BotActivityDTO struct {
	ID              uint    `json:"id"`
	ActivityType    string  `json:"activity_type"`
	ContactPhone    *string `json:"contact_phone,omitempty"`
	ContactName     *string `json:"contact_name,omitempty"`
	MessageContent  *string `json:"message_content,omitempty"`
	ResponseContent *string `json:"response_content,omitempty"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
}

// ListActivityResponse is one page of activity
type ListActivityResponse struct {
	Activities []BotActivityDTO `json:"activities"`
	Pagination Pagination       `json:"pagination"`
}

// ActivityStatsResponse aggregates the activity log
type ActivityStatsResponse struct {
	TotalActivities      int64   `json:"total_activities"`
	RecentActivities     int64   `json:"recent_activities"`
	TodayActivities      int64   `json:"today_activities"`
	MessageReceived      int64   `json:"message_received"`
	AutoReplies          int64   `json:"auto_replies"`
	SuccessfulActivities int64   `json:"successful_activities"`
	FailedActivities     int64   `json:"failed_activities"`
	SuccessRate          float64 `json:"success_rate"`
}

// AutomationSettingsResponse is the full automation configuration
type AutomationSettingsResponse struct {
	AutoReplyEnabled        bool    `json:"auto_reply_enabled"`
	GeminiAPIConfigured     bool    `json:"gemini_api_configured"`
	KnowledgeBaseConfigured bool    `json:"knowledge_base_configured"`
	KnowledgeBaseLength     int     `json:"knowledge_base_length"`
	LastUpdated             *string `json:"last_updated,omitempty"`
}

// ClearActivityResponse reports how many entries were removed
type ClearActivityResponse struct {
	Message      string `json:"message"`
	DeletedCount int64  `json:"deleted_count"`
}

// WhatsAppWebhookPayload is the Cloud API notification envelope
type WhatsAppWebhookPayload struct {
	Object string                 `json:"object"`
	Entry  []WhatsAppWebhookEntry `json:"entry"`
}

type WhatsAppWebhookEntry struct {
	ID      string                  `json:"id"`
	Changes []WhatsAppWebhookChange `json:"changes"`
}

type WhatsAppWebhookChange struct {
	Field string               `json:"field"`
	Value WhatsAppWebhookValue `json:"value"`
}

type WhatsAppWebhookValue struct {
	MessagingProduct string                   `json:"messaging_product"`
	Statuses         []WhatsAppWebhookStatus  `json:"statuses,omitempty"`
	Messages         []WhatsAppWebhookMessage `json:"messages,omitempty"`
}

// WhatsAppWebhookStatus is a delivery receipt for an outbound message
type WhatsAppWebhookStatus struct {
	ID          string                 `json:"id"`
	Status      string                 `json:"status"`
	Timestamp   string                 `json:"timestamp"`
	RecipientID string                 `json:"recipient_id"`
	Errors      []WhatsAppWebhookError `json:"errors,omitempty"`
}

type WhatsAppWebhookError struct {
	Code  int    `json:"code"`
	Title string `json:"title"`
}

// WhatsAppWebhookMessage is an inbound message from a contact
type WhatsAppWebhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
}

// WebhookResult summarises a processed notification
type WebhookResult struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	StatusesApplied   int    `json:"statuses_applied"`
	StatusesIgnored   int    `json:"statuses_ignored"`
	MessagesReceived  int    `json:"messages_received"`
	CampaignsFinished int    `json:"campaigns_finished"`
}
