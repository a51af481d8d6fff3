package dto

// DashboardStatsResponse carries the headline numbers of the dashboard
type DashboardStatsResponse struct {
	TotalContacts      int64 `json:"total_contacts"`
	TotalCampaigns     int64 `json:"total_campaigns"`
	ActiveCampaigns    int64 `json:"active_campaigns"`
	TotalMessagesSent  int64 `json:"total_messages_sent"`
	BotActivities      int64 `json:"bot_activities"`
	NewContacts        int64 `json:"new_contacts"`
	CompletedCampaigns int64 `json:"completed_campaigns"`
	AutomationEnabled  bool  `json:"automation_enabled"`
}

// ContactsChartPoint is the number of contacts created in one month
type ContactsChartPoint struct {
	Month    string `json:"month" example:"Jan 2024"`
	Contacts int64  `json:"contacts"`
}

// CampaignsChartPoint is the number of campaigns in one status
type CampaignsChartPoint struct {
	Status string `json:"status" example:"Borradores"`
	Key    string `json:"key" example:"draft"`
	Count  int64  `json:"count"`
}

// MessagesChartPoint is the number of messages sent on one day
type MessagesChartPoint struct {
	Date     string `json:"date" example:"2024-01-15"`
	Messages int64  `json:"messages"`
}

// ChartResponse wraps any chart series
type ChartResponse[T any] struct {
	ChartData []T `json:"chart_data"`
}

// RecentActivityResponse lists the latest entities of each kind
type RecentActivityResponse struct {
	BotActivities []BotActivityDTO `json:"bot_activities"`
	Contacts      []ContactDTO     `json:"contacts"`
	Campaigns     []CampaignDTO    `json:"campaigns"`
}

// PerformanceResponse carries 30 day rates
type PerformanceResponse struct {
	OpenRate            float64 `json:"open_rate"`
	BotSuccessRate      float64 `json:"bot_success_rate"`
	ContactGrowth       float64 `json:"contact_growth"`
	TotalSent30Days     int64   `json:"total_sent_30_days"`
	TotalOpened30Days   int64   `json:"total_opened_30_days"`
	BotActivities30Days int64   `json:"bot_activities_30_days"`
	NewContacts30Days   int64   `json:"new_contacts_30_days"`
}

// QuickAction is one suggested next step
type QuickAction struct {
	Type        string `json:"type" example:"config"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Action      string `json:"action" example:"configure_whatsapp"`
	Priority    string `json:"priority" example:"high"`
}

// QuickActionsResponse lists suggestions for the user
type QuickActionsResponse struct {
	Suggestions []QuickAction `json:"suggestions"`
}
