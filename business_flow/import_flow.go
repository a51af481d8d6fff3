package businessflow

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/amirphl/nexus-communicator/app/dto"
	"github.com/amirphl/nexus-communicator/app/services"
	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/repository"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const driveFileURLFormat = "https://drive.google.com/file/d/%s"

// headerAliases maps accepted column titles to the canonical field
var headerAliases = map[string]string{
	"name":      "name",
	"nombre":    "name",
	"phone":     "phone",
	"telefono":  "phone",
	"teléfono":  "phone",
	"email":     "email",
	"correo":    "email",
	"tags":      "tags",
	"etiquetas": "tags",
}

// allowedImportExtensions lists the file extensions accepted per tabular kind
var allowedImportExtensions = map[models.ImportFileType][]string{
	models.ImportFileTypeCSV:   {".csv"},
	models.ImportFileTypeExcel: {".xlsx"},
}

// ImportFlow handles contact imports
type ImportFlow interface {
	ImportTabular(ctx context.Context, uc UserContext, kind models.ImportFileType, filename string, r io.Reader) (*dto.ImportResultResponse, error)
	ImportExternal(ctx context.Context, uc UserContext, source models.ImportFileType, req *dto.ExternalImportRequest) (*dto.ExternalImportResponse, error)
}

// ImportFlowImpl implements the import business flow
type ImportFlowImpl struct {
	contactRepo      repository.ContactRepository
	importedFileRepo repository.ImportedFileRepository
	fetcher          services.SheetFetcher
	audit            auditor
	maxRows          int
}

// NewImportFlow creates a new import flow instance; maxRows <= 0 disables the row cap
func NewImportFlow(
	contactRepo repository.ContactRepository,
	importedFileRepo repository.ImportedFileRepository,
	auditRepo repository.AuditLogRepository,
	fetcher services.SheetFetcher,
	maxRows int,
) ImportFlow {
	return &ImportFlowImpl{
		contactRepo:      contactRepo,
		importedFileRepo: importedFileRepo,
		fetcher:          fetcher,
		audit:            auditor{repo: auditRepo},
		maxRows:          maxRows,
	}
}

// importRow is one data row keyed by canonical field name
type importRow map[string]string

// ImportTabular parses a CSV or XLSX file and creates one contact per valid row.
// Row problems are collected, never fatal; only an unreadable file fails the call.
func (f *ImportFlowImpl) ImportTabular(ctx context.Context, uc UserContext, kind models.ImportFileType, filename string, r io.Reader) (*dto.ImportResultResponse, error) {
	if err := checkImportExtension(kind, filename); err != nil {
		return nil, err
	}

	var (
		rows []importRow
		err  error
	)
	switch kind {
	case models.ImportFileTypeCSV:
		rows, err = parseCSV(r)
	case models.ImportFileTypeExcel:
		rows, err = parseXLSX(r)
	}
	if err != nil {
		return nil, NewBusinessError("INVALID_FORMAT", "File could not be parsed", errors.Join(ErrInvalidFormat, err))
	}
	if f.maxRows > 0 && len(rows) > f.maxRows {
		return nil, NewBusinessErrorf("TOO_MANY_ROWS", "File has %d rows, the limit is %d", ErrTooManyRows, len(rows), f.maxRows)
	}

	imported := 0
	rowErrors := make([]string, 0)
	for i, row := range rows {
		n := i + 1
		if row == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, NewBusinessError("IMPORT_ABORTED", "Import aborted", err)
		}

		name := strings.TrimSpace(row["name"])
		phone := models.NormalizePhone(row["phone"])
		if name == "" || phone == "" {
			rowErrors = append(rowErrors, fmt.Sprintf("row %d: name and phone required", n))
			continue
		}

		contact := &models.Contact{
			UserID: uc.UserID,
			Name:   name,
			Phone:  phone,
			Email:  trimmedOrNil(utils.ToPtr(row["email"])),
			Status: models.ContactStatusActive,
			Tags:   models.SplitTags(row["tags"]),
		}

		if err := insertContact(ctx, f.contactRepo, contact); err != nil {
			if IsDuplicatePhone(err) {
				rowErrors = append(rowErrors, fmt.Sprintf("row %d: contact with phone %s already exists", n, phone))
				continue
			}
			rowErrors = append(rowErrors, fmt.Sprintf("row %d: %s", n, err.Error()))
			logrus.WithFields(logrus.Fields{
				"user_id": uc.UserID,
				"row":     n,
				"error":   err,
			}).Warn("import row failed")
			continue
		}
		imported++
	}

	contactsImportedTotal.WithLabelValues(string(kind)).Add(float64(imported))
	importRowErrorsTotal.WithLabelValues(string(kind)).Add(float64(len(rowErrors)))

	record := &models.ImportedFile{
		UserID:           uc.UserID,
		Filename:         services.SecureFilename(filename),
		FileType:         kind,
		ContactsImported: imported,
		Status:           models.ImportStatusFailed,
		CompletedAt:      utils.UTCNowPtr(),
	}
	if imported > 0 {
		record.Status = models.ImportStatusCompleted
	}
	if len(rowErrors) > 0 {
		record.ErrorMessage = utils.ToPtr(strings.Join(rowErrors, "; "))
	}
	if err := f.importedFileRepo.Save(ctx, record); err != nil {
		return nil, NewBusinessError("IMPORT_RECORD_FAILED", "Failed to record import", err)
	}

	f.audit.record(ctx, uc, models.AuditActionContactsImported,
		fmt.Sprintf("Imported %d contacts from %s (%d rows rejected)", imported, kind, len(rowErrors)), true, nil)

	return &dto.ImportResultResponse{
		Message:       fmt.Sprintf("Importación completada: %d contactos importados", imported),
		ImportID:      record.ID,
		ImportedCount: imported,
		Errors:        rowErrors,
	}, nil
}

// ImportExternal records a processing import for a Google source and hands the
// fetch to the SheetFetcher. A reference that is still processing is reused.
func (f *ImportFlowImpl) ImportExternal(ctx context.Context, uc UserContext, source models.ImportFileType, req *dto.ExternalImportRequest) (*dto.ExternalImportResponse, error) {
	var reference, filename, message string
	switch source {
	case models.ImportFileTypeGoogleSheets:
		reference = strings.TrimSpace(req.SheetURL)
		filename = "Google Sheets Import"
		message = "Importación de Google Sheets iniciada"
	case models.ImportFileTypeGoogleDrive:
		if id := strings.TrimSpace(req.FileID); id != "" {
			reference = fmt.Sprintf(driveFileURLFormat, id)
		}
		filename = "Google Drive Import"
		message = "Importación de Google Drive iniciada"
	default:
		return nil, NewBusinessError("UNSUPPORTED_SOURCE", "Unsupported import source", ErrInvalidFormat)
	}
	if reference == "" {
		return nil, NewBusinessError("REFERENCE_REQUIRED", "External reference is required", ErrReferenceMissing)
	}

	existing, err := f.importedFileRepo.ProcessingByReference(ctx, uc.UserID, source, reference)
	if err != nil {
		return nil, NewBusinessError("IMPORT_LOOKUP_FAILED", "Failed to check pending imports", err)
	}
	if existing != nil {
		return &dto.ExternalImportResponse{
			Message:  message,
			ImportID: existing.ID,
			Status:   string(existing.Status),
		}, nil
	}

	record := &models.ImportedFile{
		UserID:   uc.UserID,
		Filename: filename,
		FileType: source,
		FileURL:  &reference,
		Status:   models.ImportStatusProcessing,
	}
	if err := f.importedFileRepo.Save(ctx, record); err != nil {
		return nil, NewBusinessError("IMPORT_RECORD_FAILED", "Failed to record import", err)
	}

	if f.fetcher != nil {
		if err := f.fetcher.Enqueue(ctx, services.SheetFetchRequest{
			UserID:         uc.UserID,
			ImportedFileID: record.ID,
			Source:         string(source),
			URL:            reference,
		}); err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id":   uc.UserID,
				"import_id": record.ID,
				"error":     err,
			}).Error("failed to enqueue external import")
		}
	}

	return &dto.ExternalImportResponse{
		Message:  message,
		ImportID: record.ID,
		Status:   string(record.Status),
	}, nil
}

func checkImportExtension(kind models.ImportFileType, filename string) error {
	allowed, ok := allowedImportExtensions[kind]
	if !ok {
		return NewBusinessError("INVALID_FORMAT", "Unsupported import kind", ErrInvalidFormat)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range allowed {
		if ext == a {
			return nil
		}
	}
	return NewBusinessErrorf("INVALID_FORMAT", "Only %s files are accepted", ErrInvalidFormat, strings.Join(allowed, ", "))
}

// mapRows converts raw records into canonical rows using the header line.
// Blank records become nil so row numbers keep matching the file.
func mapRows(header []string, records [][]string) []importRow {
	index := make(map[int]string, len(header))
	seen := make(map[string]bool, len(headerAliases))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if field, ok := headerAliases[h]; ok && !seen[field] {
			index[i] = field
			seen[field] = true
		}
	}

	rows := make([]importRow, 0, len(records))
	for _, rec := range records {
		if isBlankRecord(rec) {
			rows = append(rows, nil)
			continue
		}
		row := importRow{}
		for i, field := range index {
			if i < len(rec) {
				row[field] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseCSV(r io.Reader) ([]importRow, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.New("file is empty")
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV rows: %w", err)
	}
	return mapRows(header, records), nil
}

func parseXLSX(r io.Reader) ([]importRow, error) {
	xl, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = xl.Close() }()

	sheets := xl.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	all, err := xl.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(all) == 0 {
		return nil, errors.New("sheet is empty")
	}
	return mapRows(all[0], all[1:]), nil
}
