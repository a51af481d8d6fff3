package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirphl/nexus-communicator/app/dto"
	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/repository"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	newContactsDays      = 7
	dashboardWindowDays  = 30
	contactsChartMonths  = 12
	recentActivityLimit  = 10
	recentContactsLimit  = 5
	recentCampaignsLimit = 5

	monthLabelLayout = "Jan 2006"
	dayLabelLayout   = "2006-01-02"
)

// campaignStatusLabels are the chart labels shown to users
var campaignStatusLabels = map[models.CampaignStatus]string{
	models.CampaignStatusDraft:     "Borradores",
	models.CampaignStatusScheduled: "Programadas",
	models.CampaignStatusActive:    "Activas",
	models.CampaignStatusCompleted: "Completadas",
	models.CampaignStatusPaused:    "Pausadas",
}

// DashboardFlow serves the read-only rollups of the dashboard
type DashboardFlow interface {
	GetStats(ctx context.Context, uc UserContext) (*dto.DashboardStatsResponse, error)
	ContactsChart(ctx context.Context, uc UserContext) (*dto.ChartResponse[dto.ContactsChartPoint], error)
	CampaignsChart(ctx context.Context, uc UserContext) (*dto.ChartResponse[dto.CampaignsChartPoint], error)
	MessagesChart(ctx context.Context, uc UserContext) (*dto.ChartResponse[dto.MessagesChartPoint], error)
	RecentActivity(ctx context.Context, uc UserContext) (*dto.RecentActivityResponse, error)
	Performance(ctx context.Context, uc UserContext) (*dto.PerformanceResponse, error)
	QuickActions(ctx context.Context, uc UserContext) (*dto.QuickActionsResponse, error)
}

// DashboardFlowImpl implements the dashboard business flow
type DashboardFlowImpl struct {
	userRepo     repository.UserRepository
	contactRepo  repository.ContactRepository
	campaignRepo repository.CampaignRepository
	activityRepo repository.BotActivityRepository
	rc           *redis.Client
	cacheTTL     time.Duration
}

// NewDashboardFlow creates a new dashboard flow instance; a nil rc disables caching
func NewDashboardFlow(
	userRepo repository.UserRepository,
	contactRepo repository.ContactRepository,
	campaignRepo repository.CampaignRepository,
	activityRepo repository.BotActivityRepository,
	rc *redis.Client,
	cacheTTL time.Duration,
) DashboardFlow {
	return &DashboardFlowImpl{
		userRepo:     userRepo,
		contactRepo:  contactRepo,
		campaignRepo: campaignRepo,
		activityRepo: activityRepo,
		rc:           rc,
		cacheTTL:     cacheTTL,
	}
}

func dashboardError(err error) error {
	return NewBusinessError("DASHBOARD_QUERY_FAILED", "Failed to load dashboard data", err)
}

// GetStats returns the headline counters, cached briefly in Redis
func (f *DashboardFlowImpl) GetStats(ctx context.Context, uc UserContext) (*dto.DashboardStatsResponse, error) {
	key := fmt.Sprintf("%s%d", utils.DashboardStatsKeyPrefix, uc.UserID)
	if cached := f.cachedStats(ctx, key); cached != nil {
		return cached, nil
	}

	user, err := loadUser(ctx, f.userRepo, uc.UserID)
	if err != nil {
		return nil, err
	}

	stats := &dto.DashboardStatsResponse{AutomationEnabled: user.GeminiAutoReplyEnabled}

	if stats.TotalContacts, err = f.contactRepo.Count(ctx, models.ContactFilter{UserID: &uc.UserID}); err != nil {
		return nil, dashboardError(err)
	}
	weekAgo := utils.UTCDaysAgo(newContactsDays)
	if stats.NewContacts, err = f.contactRepo.Count(ctx, models.ContactFilter{UserID: &uc.UserID, CreatedAfter: &weekAgo}); err != nil {
		return nil, dashboardError(err)
	}
	if stats.TotalCampaigns, err = f.campaignRepo.Count(ctx, models.CampaignFilter{UserID: &uc.UserID}); err != nil {
		return nil, dashboardError(err)
	}
	active := models.CampaignStatusActive
	if stats.ActiveCampaigns, err = f.campaignRepo.Count(ctx, models.CampaignFilter{UserID: &uc.UserID, Status: &active}); err != nil {
		return nil, dashboardError(err)
	}
	monthAgo := utils.UTCDaysAgo(dashboardWindowDays)
	completed := models.CampaignStatusCompleted
	if stats.CompletedCampaigns, err = f.campaignRepo.Count(ctx, models.CampaignFilter{UserID: &uc.UserID, Status: &completed, SentAfter: &monthAgo}); err != nil {
		return nil, dashboardError(err)
	}
	if stats.TotalMessagesSent, _, err = f.campaignRepo.SumCounters(ctx, uc.UserID); err != nil {
		return nil, dashboardError(err)
	}
	if stats.BotActivities, err = f.activityRepo.Count(ctx, models.BotActivityFilter{UserID: &uc.UserID, CreatedAfter: &monthAgo}); err != nil {
		return nil, dashboardError(err)
	}

	f.storeStats(ctx, key, stats)
	return stats, nil
}

func (f *DashboardFlowImpl) cachedStats(ctx context.Context, key string) *dto.DashboardStatsResponse {
	if f.rc == nil || f.cacheTTL <= 0 {
		return nil
	}
	raw, err := f.rc.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logrus.WithError(err).Warn("dashboard cache read failed")
		}
		return nil
	}
	var stats dto.DashboardStatsResponse
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil
	}
	return &stats
}

func (f *DashboardFlowImpl) storeStats(ctx context.Context, key string, stats *dto.DashboardStatsResponse) {
	if f.rc == nil || f.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := f.rc.Set(ctx, key, raw, f.cacheTTL).Err(); err != nil {
		logrus.WithError(err).Warn("dashboard cache write failed")
	}
}

// ContactsChart counts new contacts per month over the last twelve months,
// oldest first, including empty months
func (f *DashboardFlowImpl) ContactsChart(ctx context.Context, uc UserContext) (*dto.ChartResponse[dto.ContactsChartPoint], error) {
	now := utils.UTCNow()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(contactsChartMonths - 1), 0)

	times, err := f.contactRepo.CreatedTimesSince(ctx, uc.UserID, first)
	if err != nil {
		return nil, dashboardError(err)
	}

	counts := make(map[string]int64, contactsChartMonths)
	for _, t := range times {
		counts[t.UTC().Format(monthLabelLayout)]++
	}

	points := make([]dto.ContactsChartPoint, 0, contactsChartMonths)
	for i := 0; i < contactsChartMonths; i++ {
		label := first.AddDate(0, i, 0).Format(monthLabelLayout)
		points = append(points, dto.ContactsChartPoint{Month: label, Contacts: counts[label]})
	}
	return &dto.ChartResponse[dto.ContactsChartPoint]{ChartData: points}, nil
}

// CampaignsChart counts campaigns per status in display order
func (f *DashboardFlowImpl) CampaignsChart(ctx context.Context, uc UserContext) (*dto.ChartResponse[dto.CampaignsChartPoint], error) {
	rows, err := f.campaignRepo.CountByStatus(ctx, uc.UserID)
	if err != nil {
		return nil, dashboardError(err)
	}

	counts := make(map[models.CampaignStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}

	points := make([]dto.CampaignsChartPoint, 0, len(models.AllCampaignStatuses))
	for _, status := range models.AllCampaignStatuses {
		points = append(points, dto.CampaignsChartPoint{
			Status: campaignStatusLabels[status],
			Key:    string(status),
			Count:  counts[status],
		})
	}
	return &dto.ChartResponse[dto.CampaignsChartPoint]{ChartData: points}, nil
}

// MessagesChart sums sent counters by dispatch day over the last 30 days
func (f *DashboardFlowImpl) MessagesChart(ctx context.Context, uc UserContext) (*dto.ChartResponse[dto.MessagesChartPoint], error) {
	first := utils.StartOfUTCDay(utils.UTCDaysAgo(dashboardWindowDays - 1))

	campaigns, err := f.campaignRepo.SentSince(ctx, uc.UserID, first)
	if err != nil {
		return nil, dashboardError(err)
	}

	counts := make(map[string]int64, dashboardWindowDays)
	for _, c := range campaigns {
		if c.SentAt == nil || c.SentCount <= 0 {
			continue
		}
		counts[c.SentAt.UTC().Format(dayLabelLayout)] += c.SentCount
	}

	points := make([]dto.MessagesChartPoint, 0, dashboardWindowDays)
	for i := 0; i < dashboardWindowDays; i++ {
		label := first.AddDate(0, 0, i).Format(dayLabelLayout)
		points = append(points, dto.MessagesChartPoint{Date: label, Messages: counts[label]})
	}
	return &dto.ChartResponse[dto.MessagesChartPoint]{ChartData: points}, nil
}

// RecentActivity returns the latest bot activity, contacts and campaigns
func (f *DashboardFlowImpl) RecentActivity(ctx context.Context, uc UserContext) (*dto.RecentActivityResponse, error) {
	const newestFirst = "created_at DESC, id DESC"

	activities, err := f.activityRepo.ByFilter(ctx, models.BotActivityFilter{UserID: &uc.UserID}, newestFirst, recentActivityLimit, 0)
	if err != nil {
		return nil, dashboardError(err)
	}
	contacts, err := f.contactRepo.ByFilter(ctx, models.ContactFilter{UserID: &uc.UserID}, newestFirst, recentContactsLimit, 0)
	if err != nil {
		return nil, dashboardError(err)
	}
	campaigns, err := f.campaignRepo.ByFilter(ctx, models.CampaignFilter{UserID: &uc.UserID}, newestFirst, recentCampaignsLimit, 0)
	if err != nil {
		return nil, dashboardError(err)
	}

	campaignDTOs := make([]dto.CampaignDTO, 0, len(campaigns))
	for _, c := range campaigns {
		campaignDTOs = append(campaignDTOs, ToCampaignDTO(c))
	}

	return &dto.RecentActivityResponse{
		BotActivities: toBotActivityDTOs(activities),
		Contacts:      toContactDTOs(contacts),
		Campaigns:     campaignDTOs,
	}, nil
}

// Performance computes 30 day rates; contact growth compares against the
// previous 30 days and is 0 when that window is empty
func (f *DashboardFlowImpl) Performance(ctx context.Context, uc UserContext) (*dto.PerformanceResponse, error) {
	monthAgo := utils.UTCDaysAgo(dashboardWindowDays)
	twoMonthsAgo := utils.UTCDaysAgo(2 * dashboardWindowDays)

	campaigns, err := f.campaignRepo.SentSince(ctx, uc.UserID, monthAgo)
	if err != nil {
		return nil, dashboardError(err)
	}
	resp := &dto.PerformanceResponse{}
	for _, c := range campaigns {
		if c.SentCount <= 0 {
			continue
		}
		resp.TotalSent30Days += c.SentCount
		resp.TotalOpened30Days += c.OpenedCount
	}
	resp.OpenRate = utils.Percent(resp.TotalOpened30Days, resp.TotalSent30Days)

	if resp.BotActivities30Days, err = f.activityRepo.Count(ctx, models.BotActivityFilter{UserID: &uc.UserID, CreatedAfter: &monthAgo}); err != nil {
		return nil, dashboardError(err)
	}
	success := models.ActivityStatusSuccess
	successful, err := f.activityRepo.Count(ctx, models.BotActivityFilter{UserID: &uc.UserID, Status: &success, CreatedAfter: &monthAgo})
	if err != nil {
		return nil, dashboardError(err)
	}
	resp.BotSuccessRate = utils.Percent(successful, resp.BotActivities30Days)

	if resp.NewContacts30Days, err = f.contactRepo.Count(ctx, models.ContactFilter{UserID: &uc.UserID, CreatedAfter: &monthAgo}); err != nil {
		return nil, dashboardError(err)
	}
	lastTwoMonths, err := f.contactRepo.Count(ctx, models.ContactFilter{UserID: &uc.UserID, CreatedAfter: &twoMonthsAgo})
	if err != nil {
		return nil, dashboardError(err)
	}
	previous := lastTwoMonths - resp.NewContacts30Days
	if previous > 0 {
		resp.ContactGrowth = utils.Round2(float64(resp.NewContacts30Days-previous) / float64(previous) * 100)
	}

	return resp, nil
}

// QuickActions suggests the next configuration or content steps
func (f *DashboardFlowImpl) QuickActions(ctx context.Context, uc UserContext) (*dto.QuickActionsResponse, error) {
	user, err := loadUser(ctx, f.userRepo, uc.UserID)
	if err != nil {
		return nil, err
	}

	suggestions := make([]dto.QuickAction, 0)
	if !user.HasMessagingCredential() {
		suggestions = append(suggestions, dto.QuickAction{
			Type:        "config",
			Title:       "Configurar WhatsApp API",
			Description: "Conecta tu cuenta de WhatsApp Business para enviar mensajes",
			Action:      "configure_whatsapp",
			Priority:    "high",
		})
	}
	if !user.HasAICredential() {
		suggestions = append(suggestions, dto.QuickAction{
			Type:        "config",
			Title:       "Configurar Gemini IA",
			Description: "Activa respuestas automáticas inteligentes",
			Action:      "configure_gemini",
			Priority:    "medium",
		})
	}

	contacts, err := f.contactRepo.Count(ctx, models.ContactFilter{UserID: &uc.UserID})
	if err != nil {
		return nil, dashboardError(err)
	}
	if contacts == 0 {
		suggestions = append(suggestions, dto.QuickAction{
			Type:        "action",
			Title:       "Agregar Contactos",
			Description: "Importa o agrega tus primeros contactos",
			Action:      "add_contacts",
			Priority:    "high",
		})
	}

	draft := models.CampaignStatusDraft
	drafts, err := f.campaignRepo.Count(ctx, models.CampaignFilter{UserID: &uc.UserID, Status: &draft})
	if err != nil {
		return nil, dashboardError(err)
	}
	if drafts > 0 {
		suggestions = append(suggestions, dto.QuickAction{
			Type:        "action",
			Title:       fmt.Sprintf("Completar %d Campaña(s)", drafts),
			Description: "Tienes campañas en borrador listas para enviar",
			Action:      "complete_campaigns",
			Priority:    "medium",
		})
	}

	if user.GeminiAutoReplyEnabled && !user.HasKnowledgeBase() {
		suggestions = append(suggestions, dto.QuickAction{
			Type:        "config",
			Title:       "Configurar Base de Conocimiento",
			Description: "Mejora las respuestas automáticas con información de tu negocio",
			Action:      "configure_knowledge_base",
			Priority:    "high",
		})
	}

	return &dto.QuickActionsResponse{Suggestions: suggestions}, nil
}
