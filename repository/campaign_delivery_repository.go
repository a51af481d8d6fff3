package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/utils"
	"gorm.io/gorm"
)

// CampaignDeliveryRepositoryImpl implements CampaignDeliveryRepository interface
type CampaignDeliveryRepositoryImpl struct {
	*BaseRepository[models.CampaignDelivery, models.CampaignDeliveryFilter]
}

// NewCampaignDeliveryRepository creates a new delivery repository
func NewCampaignDeliveryRepository(db *gorm.DB) CampaignDeliveryRepository {
	return &CampaignDeliveryRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CampaignDelivery, models.CampaignDeliveryFilter](db),
	}
}

// ByCampaign lists deliveries of a campaign, optionally narrowed to one status
func (r *CampaignDeliveryRepositoryImpl) ByCampaign(ctx context.Context, campaignID uint, status *models.DeliveryStatus) ([]*models.CampaignDelivery, error) {
	return r.ByFilter(ctx, models.CampaignDeliveryFilter{CampaignID: &campaignID, Status: status}, "id ASC", 0, 0)
}

// ByProviderMessageID resolves the delivery a provider status update refers to
func (r *CampaignDeliveryRepositoryImpl) ByProviderMessageID(ctx context.Context, providerMessageID string) (*models.CampaignDelivery, error) {
	deliveries, err := r.ByFilter(ctx, models.CampaignDeliveryFilter{ProviderMessageID: &providerMessageID}, "id DESC", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(deliveries) == 0 {
		return nil, nil
	}
	return deliveries[0], nil
}

// UpdateFields applies a partial update and bumps updated_at
func (r *CampaignDeliveryRepositoryImpl) UpdateFields(ctx context.Context, deliveryID uint, values map[string]any) error {
	values["updated_at"] = utils.UTCNow()
	return r.updateColumns(ctx, deliveryID, values)
}

// AdvanceStatus moves a delivery out of status from; it reports false when
// another update got there first
func (r *CampaignDeliveryRepositoryImpl) AdvanceStatus(ctx context.Context, deliveryID uint, from models.DeliveryStatus, values map[string]any) (changed bool, err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return false, err
	}
	defer func() { err = finish(db, shouldCommit, err) }()

	values["updated_at"] = utils.UTCNow()
	res := db.Model(&models.CampaignDelivery{}).
		Where("id = ? AND status = ?", deliveryID, from).
		Updates(values)
	if res.Error != nil {
		return false, fmt.Errorf("failed to advance delivery %d: %w", deliveryID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CountOpen counts deliveries that still expect a provider outcome
func (r *CampaignDeliveryRepositoryImpl) CountOpen(ctx context.Context, campaignID uint) (int64, error) {
	count, err := r.count(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("campaign_id = ? AND status IN ?", campaignID,
			[]models.DeliveryStatus{models.DeliveryStatusPending, models.DeliveryStatusSent})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count open deliveries: %w", err)
	}
	return count, nil
}

// DeletePendingExcept removes deliveries still pending for contacts that are
// no longer in the recipient set
func (r *CampaignDeliveryRepositoryImpl) DeletePendingExcept(ctx context.Context, campaignID uint, keep []uint) (int64, error) {
	if len(keep) == 0 {
		return r.deleteWhere(ctx, "campaign_id = ? AND status = ?", campaignID, models.DeliveryStatusPending)
	}
	return r.deleteWhere(ctx, "campaign_id = ? AND status = ? AND contact_id NOT IN ?", campaignID, models.DeliveryStatusPending, keep)
}

// ByFilter retrieves deliveries based on filter criteria
func (r *CampaignDeliveryRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignDeliveryFilter, orderBy string, limit, offset int) ([]*models.CampaignDelivery, error) {
	return r.find(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) }, orderBy, limit, offset)
}

// Count returns the number of deliveries matching the filter
func (r *CampaignDeliveryRepositoryImpl) Count(ctx context.Context, filter models.CampaignDeliveryFilter) (int64, error) {
	return r.count(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) })
}

// Exists checks if any delivery matching the filter exists
func (r *CampaignDeliveryRepositoryImpl) Exists(ctx context.Context, filter models.CampaignDeliveryFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *CampaignDeliveryRepositoryImpl) applyFilter(db *gorm.DB, filter models.CampaignDeliveryFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.ContactID != nil {
		db = db.Where("contact_id = ?", *filter.ContactID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.ProviderMessageID != nil {
		db = db.Where("provider_message_id = ?", *filter.ProviderMessageID)
	}
	return db
}
