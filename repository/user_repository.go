package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/utils"
	"gorm.io/gorm"
)

// UserRepositoryImpl implements UserRepository interface
type UserRepositoryImpl struct {
	*BaseRepository[models.User, models.UserFilter]
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &UserRepositoryImpl{
		BaseRepository: NewBaseRepository[models.User, models.UserFilter](db),
	}
}

// ByEmail retrieves a user by normalized email
func (r *UserRepositoryImpl) ByEmail(ctx context.Context, email string) (*models.User, error) {
	normalized := models.NormalizeEmail(email)
	users, err := r.ByFilter(ctx, models.UserFilter{Email: &normalized}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return users[0], nil
}

// UpdateFields applies a partial update and bumps updated_at
func (r *UserRepositoryImpl) UpdateFields(ctx context.Context, userID uint, values map[string]any) error {
	values["updated_at"] = utils.UTCNow()
	return r.updateColumns(ctx, userID, values)
}

// UpdatePassword replaces the stored password hash
func (r *UserRepositoryImpl) UpdatePassword(ctx context.Context, userID uint, passwordHash string) error {
	return r.UpdateFields(ctx, userID, map[string]any{"password_hash": passwordHash})
}

// UpdateLastLogin records a successful login
func (r *UserRepositoryImpl) UpdateLastLogin(ctx context.Context, userID uint, at time.Time) error {
	return r.updateColumns(ctx, userID, map[string]any{"last_login": at})
}

// DeleteCascade removes the user and everything it owns in dependency order
func (r *UserRepositoryImpl) DeleteCascade(ctx context.Context, userID uint) (paths []string, err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { err = finish(db, shouldCommit, err) }()

	var campaignIDs []uint
	if err = db.Model(&models.Campaign{}).Where("user_id = ?", userID).Pluck("id", &campaignIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to collect campaigns: %w", err)
	}

	if err = db.Model(&models.MediaFile{}).
		Where("campaign_id IN ?", campaignIDs).
		Pluck("filepath", &paths).Error; err != nil {
		return nil, fmt.Errorf("failed to collect media paths: %w", err)
	}

	steps := []struct {
		name  string
		model any
		where string
		arg   any
	}{
		{"bot activities", &models.BotActivity{}, "user_id = ?", userID},
		{"imported files", &models.ImportedFile{}, "user_id = ?", userID},
		{"deliveries", &models.CampaignDelivery{}, "campaign_id IN ?", campaignIDs},
		{"media files", &models.MediaFile{}, "campaign_id IN ?", campaignIDs},
		{"campaign contacts", &models.CampaignContact{}, "campaign_id IN ?", campaignIDs},
		{"campaigns", &models.Campaign{}, "user_id = ?", userID},
		{"contacts", &models.Contact{}, "user_id = ?", userID},
		{"user", &models.User{}, "id = ?", userID},
	}
	for _, step := range steps {
		if err = db.Where(step.where, step.arg).Delete(step.model).Error; err != nil {
			return nil, fmt.Errorf("failed to delete %s: %w", step.name, err)
		}
	}

	return paths, nil
}

// ByFilter retrieves users based on filter criteria
func (r *UserRepositoryImpl) ByFilter(ctx context.Context, filter models.UserFilter, orderBy string, limit, offset int) ([]*models.User, error) {
	return r.find(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) }, orderBy, limit, offset)
}

// Count returns the number of users matching the filter
func (r *UserRepositoryImpl) Count(ctx context.Context, filter models.UserFilter) (int64, error) {
	return r.count(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) })
}

// Exists checks if any user matching the filter exists
func (r *UserRepositoryImpl) Exists(ctx context.Context, filter models.UserFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *UserRepositoryImpl) applyFilter(db *gorm.DB, filter models.UserFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.Email != nil {
		db = db.Where("email = ?", *filter.Email)
	}
	return db
}
