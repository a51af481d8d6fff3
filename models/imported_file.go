package models

import "time"

// ImportFileType is the source kind of an import attempt
type ImportFileType string

const (
	ImportFileTypeCSV          ImportFileType = "csv"
	ImportFileTypeExcel        ImportFileType = "excel"
	ImportFileTypeGoogleSheets ImportFileType = "google_sheets"
	ImportFileTypeGoogleDrive  ImportFileType = "google_drive"
)

// IsExternal reports whether the source is fetched by an external collaborator
func (t ImportFileType) IsExternal() bool {
	return t == ImportFileTypeGoogleSheets || t == ImportFileTypeGoogleDrive
}

// ImportStatus is the outcome of an import attempt
type ImportStatus string

const (
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
)

// ImportedFile is the audit record of one import attempt
type ImportedFile struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	UserID           uint           `gorm:"not null;index:idx_imported_files_user_id" json:"user_id"`
	Filename         string         `gorm:"size:255;not null" json:"filename"`
	FileType         ImportFileType `gorm:"size:20;not null" json:"file_type"`
	FileURL          *string        `gorm:"size:500" json:"file_url,omitempty"`
	ContactsImported int            `gorm:"not null;default:0" json:"contacts_imported"`
	Status           ImportStatus   `gorm:"size:20;not null;default:'processing';index:idx_imported_files_status" json:"status"`
	ErrorMessage     *string        `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt        time.Time      `gorm:"index:idx_imported_files_created_at" json:"created_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

func (ImportedFile) TableName() string {
	return "imported_files"
}

// ImportedFileFilter represents filter criteria for import history queries
type ImportedFileFilter struct {
	ID       *uint
	UserID   *uint
	FileType *ImportFileType
	FileURL  *string
	Status   *ImportStatus
}
