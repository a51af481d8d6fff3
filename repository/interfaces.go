// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/nexus-communicator/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// UserRepository defines operations for users
type UserRepository interface {
	Repository[models.User, models.UserFilter]
	ByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdateFields(ctx context.Context, userID uint, values map[string]any) error
	UpdatePassword(ctx context.Context, userID uint, passwordHash string) error
	UpdateLastLogin(ctx context.Context, userID uint, at time.Time) error
	// DeleteCascade removes the user and everything it owns, returning the
	// storage paths of media files that were attached to its campaigns.
	DeleteCascade(ctx context.Context, userID uint) ([]string, error)
}

// ContactRepository defines operations for contacts
type ContactRepository interface {
	Repository[models.Contact, models.ContactFilter]
	ByUserAndID(ctx context.Context, userID, contactID uint) (*models.Contact, error)
	ByUserAndPhone(ctx context.Context, userID uint, phone string) (*models.Contact, error)
	Update(ctx context.Context, contact *models.Contact) error
	DeleteOwned(ctx context.Context, userID uint, ids []uint) (int64, error)
	OwnedIDs(ctx context.Context, userID uint, ids []uint) ([]uint, error)
	CountByStatus(ctx context.Context, userID uint) (map[models.ContactStatus]int64, error)
	CreatedTimesSince(ctx context.Context, userID uint, since time.Time) ([]time.Time, error)
}

// CampaignRepository defines operations for campaigns and their recipient sets
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUserAndID(ctx context.Context, userID, campaignID uint) (*models.Campaign, error)
	UpdateFields(ctx context.Context, campaignID uint, values map[string]any) error
	// ReplaceRecipients swaps the whole recipient set and rewrites total_recipients.
	ReplaceRecipients(ctx context.Context, campaignID uint, contactIDs []uint) (int64, error)
	Recipients(ctx context.Context, campaignID uint, limit int) ([]*models.Contact, error)
	IncrementCounters(ctx context.Context, campaignID uint, sent, opened int64) error
	// TransitionStatus moves the campaign only if it is still in from; it
	// reports whether the row changed.
	TransitionStatus(ctx context.Context, campaignID uint, from, to models.CampaignStatus, values map[string]any) (bool, error)
	Delete(ctx context.Context, campaignID uint) error
	CountByStatus(ctx context.Context, userID uint) ([]models.CampaignStatusCount, error)
	SumCounters(ctx context.Context, userID uint) (sent int64, opened int64, err error)
	SentSince(ctx context.Context, userID uint, since time.Time) ([]*models.Campaign, error)
}

// CampaignDeliveryRepository defines operations for per-recipient dispatch records
type CampaignDeliveryRepository interface {
	Repository[models.CampaignDelivery, models.CampaignDeliveryFilter]
	ByCampaign(ctx context.Context, campaignID uint, status *models.DeliveryStatus) ([]*models.CampaignDelivery, error)
	ByProviderMessageID(ctx context.Context, providerMessageID string) (*models.CampaignDelivery, error)
	UpdateFields(ctx context.Context, deliveryID uint, values map[string]any) error
	AdvanceStatus(ctx context.Context, deliveryID uint, from models.DeliveryStatus, values map[string]any) (bool, error)
	CountOpen(ctx context.Context, campaignID uint) (int64, error)
	// DeletePendingExcept drops pending deliveries whose contact is not in keep.
	DeletePendingExcept(ctx context.Context, campaignID uint, keep []uint) (int64, error)
}

// MediaFileRepository defines operations for campaign attachments
type MediaFileRepository interface {
	Repository[models.MediaFile, models.MediaFileFilter]
	ByCampaign(ctx context.Context, campaignID uint) ([]*models.MediaFile, error)
	ByCampaignAndID(ctx context.Context, campaignID, mediaID uint) (*models.MediaFile, error)
	Delete(ctx context.Context, mediaID uint) error
}

// ImportedFileRepository defines operations for import history
type ImportedFileRepository interface {
	Repository[models.ImportedFile, models.ImportedFileFilter]
	Update(ctx context.Context, file *models.ImportedFile) error
	ProcessingByReference(ctx context.Context, userID uint, fileType models.ImportFileType, url string) (*models.ImportedFile, error)
	ListRecent(ctx context.Context, userID uint, limit int) ([]*models.ImportedFile, error)
}

// BotActivityRepository defines operations for the automation activity log
type BotActivityRepository interface {
	Repository[models.BotActivity, models.BotActivityFilter]
	DeleteByUser(ctx context.Context, userID uint) (int64, error)
	CountByStatus(ctx context.Context, userID uint) (map[models.ActivityStatus]int64, error)
	CountByType(ctx context.Context, userID uint) (map[string]int64, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.AuditLog, error)
	ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
	ListFailedActions(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}
