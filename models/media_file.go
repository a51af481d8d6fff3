package models

import (
	"path/filepath"
	"strings"
	"time"
)

// MediaFile is an attachment owned by a campaign
type MediaFile struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	CampaignID       uint      `gorm:"not null;index:idx_media_files_campaign_id" json:"campaign_id"`
	Filename         string    `gorm:"size:255;not null;uniqueIndex:uk_media_files_filename" json:"filename"`
	OriginalFilename string    `gorm:"size:255;not null" json:"original_filename"`
	Filepath         string    `gorm:"size:500;not null" json:"filepath"`
	Mimetype         string    `gorm:"size:100" json:"mimetype"`
	FileSize         int64     `gorm:"not null;default:0" json:"file_size"`
	CreatedAt        time.Time `json:"created_at"`
}

func (MediaFile) TableName() string {
	return "media_files"
}

// IsImage reports whether the stored extension is a raster image
func (m *MediaFile) IsImage() bool {
	switch strings.ToLower(filepath.Ext(m.Filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return strings.HasPrefix(m.Mimetype, "image/")
}

// MediaFileFilter represents filter criteria for media queries
type MediaFileFilter struct {
	ID         *uint
	CampaignID *uint
}
