package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/nexus-communicator/models"
	"gorm.io/gorm"
)

// ContactRepositoryImpl implements ContactRepository interface
type ContactRepositoryImpl struct {
	*BaseRepository[models.Contact, models.ContactFilter]
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *gorm.DB) ContactRepository {
	return &ContactRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Contact, models.ContactFilter](db),
	}
}

// ByUserAndID retrieves a contact only when the user owns it
func (r *ContactRepositoryImpl) ByUserAndID(ctx context.Context, userID, contactID uint) (*models.Contact, error) {
	var contact models.Contact
	err := r.getDB(ctx).Where("id = ? AND user_id = ?", contactID, userID).First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find contact %d: %w", contactID, err)
	}
	return &contact, nil
}

// ByUserAndPhone retrieves the user's contact with the given phone
func (r *ContactRepositoryImpl) ByUserAndPhone(ctx context.Context, userID uint, phone string) (*models.Contact, error) {
	phone = models.NormalizePhone(phone)
	contacts, err := r.ByFilter(ctx, models.ContactFilter{UserID: &userID, Phone: &phone}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, nil
	}
	return contacts[0], nil
}

// DeleteOwned removes the given contacts that belong to the user.
// Campaign links of the removed contacts go with them.
func (r *ContactRepositoryImpl) DeleteOwned(ctx context.Context, userID uint, ids []uint) (affected int64, err error) {
	if len(ids) == 0 {
		return 0, nil
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { err = finish(db, shouldCommit, err) }()

	var owned []uint
	if err = db.Model(&models.Contact{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Pluck("id", &owned).Error; err != nil {
		return 0, fmt.Errorf("failed to resolve owned contacts: %w", err)
	}
	if len(owned) == 0 {
		return 0, nil
	}

	if err = db.Where("contact_id IN ?", owned).Delete(&models.CampaignContact{}).Error; err != nil {
		return 0, fmt.Errorf("failed to unlink contacts: %w", err)
	}

	res := db.Where("user_id = ? AND id IN ?", userID, owned).Delete(&models.Contact{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete contacts: %w", res.Error)
	}

	return res.RowsAffected, nil
}

// OwnedIDs filters ids down to the ones owned by the user, keeping input order
func (r *ContactRepositoryImpl) OwnedIDs(ctx context.Context, userID uint, ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var found []uint
	if err := r.getDB(ctx).Model(&models.Contact{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Pluck("id", &found).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve owned contacts: %w", err)
	}

	owned := make(map[uint]bool, len(found))
	for _, id := range found {
		owned[id] = true
	}

	out := make([]uint, 0, len(found))
	for _, id := range ids {
		if owned[id] {
			out = append(out, id)
			delete(owned, id)
		}
	}
	return out, nil
}

// CountByStatus returns contact counts keyed by status
func (r *ContactRepositoryImpl) CountByStatus(ctx context.Context, userID uint) (map[models.ContactStatus]int64, error) {
	type row struct {
		Status models.ContactStatus
		Count  int64
	}
	var rows []row
	if err := r.getDB(ctx).Model(&models.Contact{}).
		Select("status, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count contacts by status: %w", err)
	}

	out := make(map[models.ContactStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

// CreatedTimesSince returns creation times of the user's contacts since a point in time
func (r *ContactRepositoryImpl) CreatedTimesSince(ctx context.Context, userID uint, since time.Time) ([]time.Time, error) {
	var times []time.Time
	if err := r.getDB(ctx).Model(&models.Contact{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at ASC").
		Pluck("created_at", &times).Error; err != nil {
		return nil, fmt.Errorf("failed to list contact creation times: %w", err)
	}
	return times, nil
}

// ByFilter retrieves contacts based on filter criteria
func (r *ContactRepositoryImpl) ByFilter(ctx context.Context, filter models.ContactFilter, orderBy string, limit, offset int) ([]*models.Contact, error) {
	return r.find(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) }, orderBy, limit, offset)
}

// Count returns the number of contacts matching the filter
func (r *ContactRepositoryImpl) Count(ctx context.Context, filter models.ContactFilter) (int64, error) {
	return r.count(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) })
}

// Exists checks if any contact matching the filter exists
func (r *ContactRepositoryImpl) Exists(ctx context.Context, filter models.ContactFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query.
// Text matching lower-cases both sides so it behaves the same on every dialect.
func (r *ContactRepositoryImpl) applyFilter(db *gorm.DB, filter models.ContactFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if len(filter.IDs) > 0 {
		db = db.Where("id IN ?", filter.IDs)
	}
	if filter.UserID != nil {
		db = db.Where("user_id = ?", *filter.UserID)
	}
	if filter.Phone != nil {
		db = db.Where("phone = ?", *filter.Phone)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
		like := likePattern(*filter.Search)
		db = db.Where("(LOWER(name) LIKE ? OR LOWER(phone) LIKE ? OR LOWER(COALESCE(email, '')) LIKE ?)", like, like, like)
	}
	if filter.Tag != nil && strings.TrimSpace(*filter.Tag) != "" {
		db = db.Where("LOWER(CAST(tags AS TEXT)) LIKE ?", likePattern(*filter.Tag))
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	return db
}

func likePattern(term string) string {
	return "%" + strings.ToLower(strings.TrimSpace(term)) + "%"
}
