package repository

import (
	"context"

	"github.com/amirphl/nexus-communicator/models"
	"gorm.io/gorm"
)

// ImportedFileRepositoryImpl implements ImportedFileRepository interface
type ImportedFileRepositoryImpl struct {
	*BaseRepository[models.ImportedFile, models.ImportedFileFilter]
}

// NewImportedFileRepository creates a new import history repository
func NewImportedFileRepository(db *gorm.DB) ImportedFileRepository {
	return &ImportedFileRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ImportedFile, models.ImportedFileFilter](db),
	}
}

// ProcessingByReference finds an in-flight external import of the same reference
func (r *ImportedFileRepositoryImpl) ProcessingByReference(ctx context.Context, userID uint, fileType models.ImportFileType, url string) (*models.ImportedFile, error) {
	status := models.ImportStatusProcessing
	files, err := r.ByFilter(ctx, models.ImportedFileFilter{
		UserID:   &userID,
		FileType: &fileType,
		FileURL:  &url,
		Status:   &status,
	}, "id DESC", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	return files[0], nil
}

// ListRecent returns the user's latest import attempts
func (r *ImportedFileRepositoryImpl) ListRecent(ctx context.Context, userID uint, limit int) ([]*models.ImportedFile, error) {
	return r.ByFilter(ctx, models.ImportedFileFilter{UserID: &userID}, "created_at DESC, id DESC", limit, 0)
}

// ByFilter retrieves import records based on filter criteria
func (r *ImportedFileRepositoryImpl) ByFilter(ctx context.Context, filter models.ImportedFileFilter, orderBy string, limit, offset int) ([]*models.ImportedFile, error) {
	return r.find(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) }, orderBy, limit, offset)
}

// Count returns the number of import records matching the filter
func (r *ImportedFileRepositoryImpl) Count(ctx context.Context, filter models.ImportedFileFilter) (int64, error) {
	return r.count(ctx, func(db *gorm.DB) *gorm.DB { return r.applyFilter(db, filter) })
}

// Exists checks if any import record matching the filter exists
func (r *ImportedFileRepositoryImpl) Exists(ctx context.Context, filter models.ImportedFileFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *ImportedFileRepositoryImpl) applyFilter(db *gorm.DB, filter models.ImportedFileFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UserID != nil {
		db = db.Where("user_id = ?", *filter.UserID)
	}
	if filter.FileType != nil {
		db = db.Where("file_type = ?", *filter.FileType)
	}
	if filter.FileURL != nil {
		db = db.Where("file_url = ?", *filter.FileURL)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	return db
}
