package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/utils"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements the CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db),
	}
}

// ByUserAndID retrieves a campaign with its media only when the user owns it
func (r *CampaignRepositoryImpl) ByUserAndID(ctx context.Context, userID, campaignID uint) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.getDB(ctx).
		Preload("MediaFiles", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ? AND user_id = ?", campaignID, userID).
		First(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find campaign %d: %w", campaignID, err)
	}
	return &campaign, nil
}

// UpdateFields applies a partial update and bumps updated_at
func (r *CampaignRepositoryImpl) UpdateFields(ctx context.Context, campaignID uint, values map[string]any) error {
	values["updated_at"] = utils.UTCNow()
	return r.updateColumns(ctx, campaignID, values)
}

// ReplaceRecipients swaps the recipient set and the counter in one transaction
func (r *CampaignRepositoryImpl) ReplaceRecipients(ctx context.Context, campaignID uint, contactIDs []uint) (total int64, err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { err = finish(db, shouldCommit, err) }()

	if err = db.Where("campaign_id = ?", campaignID).Delete(&models.CampaignContact{}).Error; err != nil {
		return 0, fmt.Errorf("failed to clear recipients: %w", err)
	}

	now := utils.UTCNow()
	links := make([]*models.CampaignContact, 0, len(contactIDs))
	seen := make(map[uint]bool, len(contactIDs))
	for _, id := range contactIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		links = append(links, &models.CampaignContact{CampaignID: campaignID, ContactID: id, CreatedAt: now})
	}

	if len(links) > 0 {
		if err = db.CreateInBatches(links, 100).Error; err != nil {
			return 0, fmt.Errorf("failed to link recipients: %w", err)
		}
	}

	total = int64(len(links))
	if err = db.Model(&models.Campaign{}).Where("id = ?", campaignID).Updates(map[string]any{
		"total_recipients": total,
		"updated_at":       now,
	}).Error; err != nil {
		return 0, fmt.Errorf("failed to update recipient count: %w", err)
	}

	return total, nil
}

// Recipients lists the bound contacts in binding order; limit <= 0 means all
func (r *CampaignRepositoryImpl) Recipients(ctx context.Context, campaignID uint, limit int) ([]*models.Contact, error) {
	query := r.getDB(ctx).Model(&models.Contact{}).
		Joins("JOIN campaign_contacts ON campaign_contacts.contact_id = contacts.id").
		Where("campaign_contacts.campaign_id = ?", campaignID).
		Order("campaign_contacts.created_at ASC, contacts.id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var contacts []*models.Contact
	if err := query.Find(&contacts).Error; err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	return contacts, nil
}

// IncrementCounters adds to the engagement counters; they never go down
func (r *CampaignRepositoryImpl) IncrementCounters(ctx context.Context, campaignID uint, sent, opened int64) (err error) {
	if sent <= 0 && opened <= 0 {
		return nil
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	defer func() { err = finish(db, shouldCommit, err) }()

	values := map[string]any{"updated_at": utils.UTCNow()}
	if sent > 0 {
		values["sent_count"] = gorm.Expr("sent_count + ?", sent)
	}
	if opened > 0 {
		values["opened_count"] = gorm.Expr("opened_count + ?", opened)
	}

	if err = db.Model(&models.Campaign{}).Where("id = ?", campaignID).Updates(values).Error; err != nil {
		return fmt.Errorf("failed to increment counters: %w", err)
	}
	return nil
}

// TransitionStatus is a compare-and-set on the status column
func (r *CampaignRepositoryImpl) TransitionStatus(ctx context.Context, campaignID uint, from, to models.CampaignStatus, values map[string]any) (changed bool, err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return false, err
	}
	defer func() { err = finish(db, shouldCommit, err) }()

	updates := map[string]any{}
	for k, v := range values {
		updates[k] = v
	}
	updates["status"] = to
	updates["updated_at"] = utils.UTCNow()

	res := db.Model(&models.Campaign{}).
		Where("id = ? AND status = ?", campaignID, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to move campaign %d to %s: %w", campaignID, to, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Delete removes the campaign with its deliveries, media rows and recipient links
func (r *CampaignRepositoryImpl) Delete(ctx context.Context, campaignID uint) (err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	defer func() { err = finish(db, shouldCommit, err) }()

	for _, model := range []any{&models.CampaignDelivery{}, &models.MediaFile{}, &models.CampaignContact{}} {
		if err = db.Where("campaign_id = ?", campaignID).Delete(model).Error; err != nil {
			return fmt.Errorf("failed to delete campaign %d dependents: %w", campaignID, err)
		}
	}
	if err = db.Delete(&models.Campaign{}, campaignID).Error; err != nil {
		return fmt.Errorf("failed to delete campaign %d: %w", campaignID, err)
	}
	return nil
}

// CountByStatus returns one row per status the user has campaigns in
func (r *CampaignRepositoryImpl) CountByStatus(ctx context.Context, userID uint) ([]models.CampaignStatusCount, error) {
	var rows []models.CampaignStatusCount
	if err := r.getDB(ctx).Model(&models.Campaign{}).
		Select("status, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count campaigns by status: %w", err)
	}
	return rows, nil
}

// SumCounters totals sent and opened counters over the user's campaigns
func (r *CampaignRepositoryImpl) SumCounters(ctx context.Context, userID uint) (int64, int64, error) {
	var totals struct {
		Sent   int64
		Opened int64
	}
	if err := r.getDB(ctx).Model(&models.Campaign{}).
		Select("COALESCE(SUM(sent_count), 0) AS sent, COALESCE(SUM(opened_count), 0) AS opened").
		Where("user_id = ?", userID).
		Scan(&totals).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to sum campaign counters: %w", err)
	}
	return totals.Sent, totals.Opened, nil
}

// SentSince lists the user's campaigns dispatched since a point in time
func (r *CampaignRepositoryImpl) SentSince(ctx context.Context, userID uint, since time.Time) ([]*models.Campaign, error) {
	return r.ByFilter(ctx, models.CampaignFilter{UserID: &userID, SentAfter: &since}, "sent_at ASC", 0, 0)
}

// ByFilter retrieves campaigns based on filter criteria
func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	return r.find(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) }, orderBy, limit, offset)
}

// Count returns the number of campaigns matching the filter
func (r *CampaignRepositoryImpl) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	return r.count(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) })
}

// Exists checks if any campaign matching the filter exists
func (r *CampaignRepositoryImpl) Exists(ctx context.Context, filter models.CampaignFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *CampaignRepositoryImpl) applyFilter(db *gorm.DB, filter models.CampaignFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UserID != nil {
		db = db.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.SentAfter != nil {
		db = db.Where("sent_at IS NOT NULL AND sent_at >= ?", *filter.SentAfter)
	}
	if filter.UpdatedAfter != nil {
		db = db.Where("updated_at > ?", *filter.UpdatedAfter)
	}
	if filter.UpdatedBefore != nil {
		db = db.Where("updated_at < ?", *filter.UpdatedBefore)
	}
	if filter.DueBefore != nil {
		db = db.Where("scheduled_at IS NOT NULL AND scheduled_at <= ?", *filter.DueBefore)
	}
	return db
}
