package handlers

import (
	"context"

	businessflow "github.com/amirphl/nexus-communicator/business_flow"
	"github.com/gofiber/fiber/v3"
)

// DashboardHandlerInterface defines the contract for dashboard handlers
type DashboardHandlerInterface interface {
	GetStats(c fiber.Ctx) error
	ContactsChart(c fiber.Ctx) error
	CampaignsChart(c fiber.Ctx) error
	MessagesChart(c fiber.Ctx) error
	RecentActivity(c fiber.Ctx) error
	Performance(c fiber.Ctx) error
	QuickActions(c fiber.Ctx) error
}

// DashboardHandler serves the read-only dashboard aggregates
type DashboardHandler struct {
	baseHandler
	dashboardFlow businessflow.DashboardFlow
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboardFlow businessflow.DashboardFlow) *DashboardHandler {
	return &DashboardHandler{
		baseHandler:   newBaseHandler(),
		dashboardFlow: dashboardFlow,
	}
}

// serve runs one aggregate query for the authenticated caller
func serve[T any](h *DashboardHandler, c fiber.Ctx, endpoint, failure, code string, load func(context.Context, businessflow.UserContext) (T, error)) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	ctx, cancel := h.createRequestContext(c, endpoint)
	defer cancel()

	result, err := load(ctx, uc)
	if err != nil {
		return h.handleError(c, err, failure, code)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", result)
}

// GetStats returns the headline counters
// @Summary Dashboard stats
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.DashboardStatsResponse}
// @Router /api/v1/dashboard/stats [get]
func (h *DashboardHandler) GetStats(c fiber.Ctx) error {
	return serve(h, c, "/api/v1/dashboard/stats", "Failed to load dashboard stats", "DASHBOARD_STATS_FAILED", h.dashboardFlow.GetStats)
}

// ContactsChart returns contacts created per month over the last year
// @Summary Contacts chart
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.ChartResponse[dto.ContactsChartPoint]}
// @Router /api/v1/dashboard/charts/contacts [get]
func (h *DashboardHandler) ContactsChart(c fiber.Ctx) error {
	return serve(h, c, "/api/v1/dashboard/charts/contacts", "Failed to load contacts chart", "CHART_FAILED", h.dashboardFlow.ContactsChart)
}

// CampaignsChart returns campaigns grouped by status
// @Summary Campaigns chart
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.ChartResponse[dto.CampaignsChartPoint]}
// @Router /api/v1/dashboard/charts/campaigns [get]
func (h *DashboardHandler) CampaignsChart(c fiber.Ctx) error {
	return serve(h, c, "/api/v1/dashboard/charts/campaigns", "Failed to load campaigns chart", "CHART_FAILED", h.dashboardFlow.CampaignsChart)
}

// MessagesChart returns daily message activity over the last 30 days
// @Summary Messages chart
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.ChartResponse[dto.MessagesChartPoint]}
// @Router /api/v1/dashboard/charts/messages [get]
func (h *DashboardHandler) MessagesChart(c fiber.Ctx) error {
	return serve(h, c, "/api/v1/dashboard/charts/messages", "Failed to load messages chart", "CHART_FAILED", h.dashboardFlow.MessagesChart)
}

// RecentActivity returns the latest contacts, campaigns and bot events
// @Summary Recent activity
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.RecentActivityResponse}
// @Router /api/v1/dashboard/recent-activity [get]
func (h *DashboardHandler) RecentActivity(c fiber.Ctx) error {
	return serve(h, c, "/api/v1/dashboard/recent-activity", "Failed to load recent activity", "RECENT_ACTIVITY_FAILED", h.dashboardFlow.RecentActivity)
}

// Performance returns rates derived from campaigns, bot activity and contacts
// @Summary Performance metrics
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.PerformanceResponse}
// @Router /api/v1/dashboard/performance [get]
func (h *DashboardHandler) Performance(c fiber.Ctx) error {
	return serve(h, c, "/api/v1/dashboard/performance", "Failed to load performance metrics", "PERFORMANCE_FAILED", h.dashboardFlow.Performance)
}

// QuickActions returns the shortcuts shown on the dashboard
// @Summary Quick actions
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.QuickActionsResponse}
// @Router /api/v1/dashboard/quick-actions [get]
func (h *DashboardHandler) QuickActions(c fiber.Ctx) error {
	return serve(h, c, "/api/v1/dashboard/quick-actions", "Failed to load quick actions", "QUICK_ACTIONS_FAILED", h.dashboardFlow.QuickActions)
}
