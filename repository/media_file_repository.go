package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/nexus-communicator/models"
	"gorm.io/gorm"
)

// MediaFileRepositoryImpl implements MediaFileRepository interface
type MediaFileRepositoryImpl struct {
	*BaseRepository[models.MediaFile, models.MediaFileFilter]
}

// NewMediaFileRepository creates a new media file repository
func NewMediaFileRepository(db *gorm.DB) MediaFileRepository {
	return &MediaFileRepositoryImpl{
		BaseRepository: NewBaseRepository[models.MediaFile, models.MediaFileFilter](db),
	}
}

// ByCampaign lists a campaign's attachments in upload order
func (r *MediaFileRepositoryImpl) ByCampaign(ctx context.Context, campaignID uint) ([]*models.MediaFile, error) {
	return r.ByFilter(ctx, models.MediaFileFilter{CampaignID: &campaignID}, "created_at ASC, id ASC", 0, 0)
}

// ByCampaignAndID retrieves an attachment only when it belongs to the campaign
func (r *MediaFileRepositoryImpl) ByCampaignAndID(ctx context.Context, campaignID, mediaID uint) (*models.MediaFile, error) {
	var media models.MediaFile
	err := r.getDB(ctx).Where("id = ? AND campaign_id = ?", mediaID, campaignID).First(&media).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find media %d: %w", mediaID, err)
	}
	return &media, nil
}

// Delete removes the media record
func (r *MediaFileRepositoryImpl) Delete(ctx context.Context, mediaID uint) error {
	_, err := r.deleteWhere(ctx, "id = ?", mediaID)
	return err
}

// ByFilter retrieves media files based on filter criteria
func (r *MediaFileRepositoryImpl) ByFilter(ctx context.Context, filter models.MediaFileFilter, orderBy string, limit, offset int) ([]*models.MediaFile, error) {
	return r.find(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) }, orderBy, limit, offset)
}

// Count returns the number of media files matching the filter
func (r *MediaFileRepositoryImpl) Count(ctx context.Context, filter models.MediaFileFilter) (int64, error) {
	return r.count(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) })
}

// Exists checks if any media file matching the filter exists
func (r *MediaFileRepositoryImpl) Exists(ctx context.Context, filter models.MediaFileFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *MediaFileRepositoryImpl) applyFilter(db *gorm.DB, filter models.MediaFileFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	return db
}
