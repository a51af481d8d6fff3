package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/nexus-communicator/models"
	"gorm.io/gorm"
)

// BotActivityRepositoryImpl implements BotActivityRepository interface
type BotActivityRepositoryImpl struct {
	*BaseRepository[models.BotActivity, models.BotActivityFilter]
}

// NewBotActivityRepository creates a new bot activity repository
func NewBotActivityRepository(db *gorm.DB) BotActivityRepository {
	return &BotActivityRepositoryImpl{
		BaseRepository: NewBaseRepository[models.BotActivity, models.BotActivityFilter](db),
	}
}

// DeleteByUser clears the user's activity log
func (r *BotActivityRepositoryImpl) DeleteByUser(ctx context.Context, userID uint) (int64, error) {
	return r.deleteWhere(ctx, "user_id = ?", userID)
}

// CountByStatus returns activity counts keyed by outcome
func (r *BotActivityRepositoryImpl) CountByStatus(ctx context.Context, userID uint) (map[models.ActivityStatus]int64, error) {
	type row struct {
		Status models.ActivityStatus
		Count  int64
	}
	var rows []row
	if err := r.getDB(ctx).Model(&models.BotActivity{}).
		Select("status, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count activities by status: %w", err)
	}

	out := make(map[models.ActivityStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

// CountByType returns activity counts keyed by activity type
func (r *BotActivityRepositoryImpl) CountByType(ctx context.Context, userID uint) (map[string]int64, error) {
	type row struct {
		ActivityType string
		Count        int64
	}
	var rows []row
	if err := r.getDB(ctx).Model(&models.BotActivity{}).
		Select("activity_type, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("activity_type").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count activities by type: %w", err)
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.ActivityType] = r.Count
	}
	return out, nil
}

// ByFilter retrieves activities based on filter criteria
func (r *BotActivityRepositoryImpl) ByFilter(ctx context.Context, filter models.BotActivityFilter, orderBy string, limit, offset int) ([]*models.BotActivity, error) {
	return r.find(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) }, orderBy, limit, offset)
}

// Count returns the number of activities matching the filter
func (r *BotActivityRepositoryImpl) Count(ctx context.Context, filter models.BotActivityFilter) (int64, error) {
	return r.count(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) })
}

// Exists checks if any activity matching the filter exists
func (r *BotActivityRepositoryImpl) Exists(ctx context.Context, filter models.BotActivityFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *BotActivityRepositoryImpl) applyFilter(db *gorm.DB, filter models.BotActivityFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UserID != nil {
		db = db.Where("user_id = ?", *filter.UserID)
	}
	if filter.ActivityType != nil {
		db = db.Where("activity_type = ?", *filter.ActivityType)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	return db
}
