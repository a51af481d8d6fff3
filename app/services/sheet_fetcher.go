package services

import (
	"context"

	"github.com/sirupsen/logrus"
)

// SheetFetchRequest identifies an external spreadsheet to pull contacts from
type SheetFetchRequest struct {
	UserID         uint
	ImportedFileID uint
	Source         string
	URL            string
}

// SheetFetcher hands an external import off to whatever retrieves the sheet
type SheetFetcher interface {
	Enqueue(ctx context.Context, req SheetFetchRequest) error
}

// LoggingSheetFetcher records the request; the import stays in processing
type LoggingSheetFetcher struct{}

func NewLoggingSheetFetcher() *LoggingSheetFetcher {
	return &LoggingSheetFetcher{}
}

func (f *LoggingSheetFetcher) Enqueue(ctx context.Context, req SheetFetchRequest) error {
	logrus.WithFields(logrus.Fields{
		"user_id":          req.UserID,
		"imported_file_id": req.ImportedFileID,
		"source":           req.Source,
		"url":              req.URL,
	}).Info("External import registered")
	return nil
}
