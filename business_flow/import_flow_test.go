package businessflow_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/amirphl/nexus-communicator/app/dto"
	businessflow "github.com/amirphl/nexus-communicator/business_flow"
	"github.com/amirphl/nexus-communicator/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestImportFlow_CSV(t *testing.T) {
	env := newFlowEnv(t)
	user, uc := env.user(t)
	env.contact(t, user.ID, "Existente", "+500")

	csvData := strings.Join([]string{
		"Nombre,Teléfono,Correo,Etiquetas",
		"Ana,+100,ana@example.com,\"vip, madrid\"",
		",,,",
		"Bea,+200,,",
		"SinTelefono,,,",
		"Duplicado,+500,,",
	}, "\n")

	resp, err := env.imports.ImportTabular(env.ctx, uc, models.ImportFileTypeCSV, "contactos.csv", strings.NewReader(csvData))
	require.NoError(t, err)

	assert.Equal(t, 2, resp.ImportedCount)
	assert.Equal(t, "Importación completada: 2 contactos importados", resp.Message)
	assert.Equal(t, []string{
		"row 4: name and phone required",
		"row 5: contact with phone +500 already exists",
	}, resp.Errors)

	ana, err := env.contactRepo.ByUserAndPhone(env.ctx, user.ID, "+100")
	require.NoError(t, err)
	require.NotNil(t, ana)
	assert.Equal(t, []string{"vip", "madrid"}, []string(ana.Tags))
	require.NotNil(t, ana.Email)
	assert.Equal(t, "ana@example.com", *ana.Email)

	record, err := env.importRepo.ByID(env.ctx, resp.ImportID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.ImportStatusCompleted, record.Status)
	assert.Equal(t, 2, record.ContactsImported)
	require.NotNil(t, record.ErrorMessage)
	assert.Contains(t, *record.ErrorMessage, "row 4")
}

func TestImportFlow_CSVEnglishHeadersAndNothingImported(t *testing.T) {
	env := newFlowEnv(t)
	_, uc := env.user(t)

	resp, err := env.imports.ImportTabular(env.ctx, uc, models.ImportFileTypeCSV, "only-bad.CSV",
		strings.NewReader("name,phone\nfoo,\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, resp.ImportedCount)
	assert.Len(t, resp.Errors, 1)

	record, err := env.importRepo.ByID(env.ctx, resp.ImportID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusFailed, record.Status)
}

func TestImportFlow_Rejections(t *testing.T) {
	env := newFlowEnv(t)
	_, uc := env.user(t)

	t.Run("wrong extension", func(t *testing.T) {
		_, err := env.imports.ImportTabular(env.ctx, uc, models.ImportFileTypeCSV, "contacts.txt", strings.NewReader("name,phone\n"))
		require.Error(t, err)
		assert.True(t, businessflow.IsInvalidFormat(err))
	})

	t.Run("xlsx kind requires xlsx file", func(t *testing.T) {
		_, err := env.imports.ImportTabular(env.ctx, uc, models.ImportFileTypeExcel, "contacts.csv", strings.NewReader(""))
		assert.True(t, businessflow.IsInvalidFormat(err))
	})

	t.Run("empty csv", func(t *testing.T) {
		_, err := env.imports.ImportTabular(env.ctx, uc, models.ImportFileTypeCSV, "empty.csv", strings.NewReader(""))
		assert.True(t, businessflow.IsInvalidFormat(err))
	})

	t.Run("corrupt workbook", func(t *testing.T) {
		_, err := env.imports.ImportTabular(env.ctx, uc, models.ImportFileTypeExcel, "broken.xlsx", strings.NewReader("not a zip"))
		assert.True(t, businessflow.IsInvalidFormat(err))
	})

	t.Run("too many rows", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("name,phone\n")
		for i := 0; i < 101; i++ {
			b.WriteString("x,+1\n")
		}
		_, err := env.imports.ImportTabular(env.ctx, uc, models.ImportFileTypeCSV, "big.csv", strings.NewReader(b.String()))
		require.Error(t, err)
		assert.Equal(t, "TOO_MANY_ROWS", businessflow.ErrorCode(err))
	})
}

func TestImportFlow_XLSX(t *testing.T) {
	env := newFlowEnv(t)
	user, uc := env.user(t)

	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	require.NoError(t, book.SetSheetRow(sheet, "A1", &[]any{"Name", "Phone", "Tags"}))
	require.NoError(t, book.SetSheetRow(sheet, "A2", &[]any{"Carla", "+300", "cliente"}))
	require.NoError(t, book.SetSheetRow(sheet, "A3", &[]any{"Dora", "+400", ""}))
	buf, err := book.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, book.Close())

	resp, err := env.imports.ImportTabular(env.ctx, uc, models.ImportFileTypeExcel, "libro.xlsx", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, resp.ImportedCount)
	assert.Empty(t, resp.Errors)

	carla, err := env.contactRepo.ByUserAndPhone(env.ctx, user.ID, "+300")
	require.NoError(t, err)
	require.NotNil(t, carla)
	assert.Equal(t, []string{"cliente"}, []string(carla.Tags))
}

func TestImportFlow_External(t *testing.T) {
	env := newFlowEnv(t)
	user, uc := env.user(t)

	t.Run("sheets import is recorded and enqueued", func(t *testing.T) {
		req := &dto.ExternalImportRequest{SheetURL: "https://docs.google.com/spreadsheets/d/abc"}
		resp, err := env.imports.ImportExternal(env.ctx, uc, models.ImportFileTypeGoogleSheets, req)
		require.NoError(t, err)
		assert.Equal(t, "processing", resp.Status)
		assert.Equal(t, "Importación de Google Sheets iniciada", resp.Message)

		require.Len(t, env.fetcher.requests, 1)
		assert.Equal(t, user.ID, env.fetcher.requests[0].UserID)
		assert.Equal(t, resp.ImportID, env.fetcher.requests[0].ImportedFileID)

		again, err := env.imports.ImportExternal(env.ctx, uc, models.ImportFileTypeGoogleSheets, req)
		require.NoError(t, err)
		assert.Equal(t, resp.ImportID, again.ImportID)
		assert.Len(t, env.fetcher.requests, 1)
	})

	t.Run("drive file id becomes a file url", func(t *testing.T) {
		resp, err := env.imports.ImportExternal(env.ctx, uc, models.ImportFileTypeGoogleDrive, &dto.ExternalImportRequest{FileID: "xyz"})
		require.NoError(t, err)

		record, err := env.importRepo.ByID(env.ctx, resp.ImportID)
		require.NoError(t, err)
		require.NotNil(t, record.FileURL)
		assert.Equal(t, "https://drive.google.com/file/d/xyz", *record.FileURL)
		assert.Equal(t, "Google Drive Import", record.Filename)
	})

	t.Run("missing reference", func(t *testing.T) {
		_, err := env.imports.ImportExternal(env.ctx, uc, models.ImportFileTypeGoogleDrive, &dto.ExternalImportRequest{})
		require.Error(t, err)
		assert.Equal(t, "REFERENCE_REQUIRED", businessflow.ErrorCode(err))
	})

	t.Run("history lists newest first", func(t *testing.T) {
		history, err := env.contacts.GetImportHistory(env.ctx, uc)
		require.NoError(t, err)
		require.Len(t, history.Imports, 2)
		assert.Equal(t, "google_drive", history.Imports[0].FileType)
	})
}
