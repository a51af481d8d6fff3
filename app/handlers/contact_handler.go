package handlers

import (
	"fmt"

	"github.com/amirphl/nexus-communicator/app/dto"
	businessflow "github.com/amirphl/nexus-communicator/business_flow"
	"github.com/amirphl/nexus-communicator/models"
	"github.com/gofiber/fiber/v3"
)

// ContactHandlerInterface defines the contract for contact and import handlers
type ContactHandlerInterface interface {
	ListContacts(c fiber.Ctx) error
	CreateContact(c fiber.Ctx) error
	GetContact(c fiber.Ctx) error
	UpdateContact(c fiber.Ctx) error
	DeleteContact(c fiber.Ctx) error
	BulkDeleteContacts(c fiber.Ctx) error
	GetContactStats(c fiber.Ctx) error
	ImportCSV(c fiber.Ctx) error
	ImportExcel(c fiber.Ctx) error
	ImportGoogleSheets(c fiber.Ctx) error
	ImportGoogleDrive(c fiber.Ctx) error
	GetImportHistory(c fiber.Ctx) error
}

// ContactHandler handles contact-related HTTP requests
type ContactHandler struct {
	baseHandler
	contactFlow businessflow.ContactFlow
	importFlow  businessflow.ImportFlow
}

// NewContactHandler creates a new contact handler
func NewContactHandler(contactFlow businessflow.ContactFlow, importFlow businessflow.ImportFlow) *ContactHandler {
	return &ContactHandler{
		baseHandler: newBaseHandler(),
		contactFlow: contactFlow,
		importFlow:  importFlow,
	}
}

// ListContacts returns one page of the caller's contacts
// @Summary List contacts
// @Tags Contacts
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Page size (max 100)" default(20)
// @Param search query string false "Search over name, phone and email"
// @Param status query string false "active or inactive"
// @Param tag query string false "Tag substring"
// @Success 200 {object} dto.APIResponse{data=dto.ListContactsResponse}
// @Router /api/v1/contacts [get]
func (h *ContactHandler) ListContacts(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	var req dto.ListContactsRequest
	if ok, err := h.bindQuery(c, &req); !ok {
		return err
	}
	// the original clients send ?tags=
	if req.Tag == "" {
		req.Tag = c.Query("tags")
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/contacts")
	defer cancel()

	result, err := h.contactFlow.ListContacts(ctx, uc, &req)
	if err != nil {
		return h.handleError(c, err, "Failed to list contacts", "CONTACT_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", result)
}

// CreateContact stores a new contact
// @Summary Create contact
// @Tags Contacts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateContactRequest true "Contact"
// @Success 201 {object} dto.APIResponse{data=dto.ContactDTO}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 409 {object} dto.APIResponse "Phone already exists"
// @Router /api/v1/contacts [post]
func (h *ContactHandler) CreateContact(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	var req dto.CreateContactRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/contacts")
	defer cancel()

	contact, err := h.contactFlow.CreateContact(ctx, uc, &req)
	if err != nil {
		return h.handleError(c, err, "Failed to create contact", "CONTACT_CREATION_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Contacto creado exitosamente", fiber.Map{"contact": contact})
}

// GetContact returns one contact
// @Summary Get contact
// @Tags Contacts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contact ID"
// @Success 200 {object} dto.APIResponse{data=dto.ContactDTO}
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/contacts/{id} [get]
func (h *ContactHandler) GetContact(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return h.invalidID(c, "contact id")
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/contacts/:id")
	defer cancel()

	contact, err := h.contactFlow.GetContact(ctx, uc, id)
	if err != nil {
		return h.handleError(c, err, "Failed to load contact", "CONTACT_FETCH_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", fiber.Map{"contact": contact})
}

// UpdateContact patches a contact
// @Summary Update contact
// @Tags Contacts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contact ID"
// @Param request body dto.UpdateContactRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.ContactDTO}
// @Failure 404 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse
// @Router /api/v1/contacts/{id} [put]
func (h *ContactHandler) UpdateContact(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return h.invalidID(c, "contact id")
	}

	var req dto.UpdateContactRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/contacts/:id")
	defer cancel()

	contact, err := h.contactFlow.UpdateContact(ctx, uc, id, &req)
	if err != nil {
		return h.handleError(c, err, "Failed to update contact", "CONTACT_UPDATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Contacto actualizado exitosamente", fiber.Map{"contact": contact})
}

// DeleteContact removes one contact; an id the caller does not own is a 404
// @Summary Delete contact
// @Tags Contacts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contact ID"
// @Success 200 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/contacts/{id} [delete]
func (h *ContactHandler) DeleteContact(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return h.invalidID(c, "contact id")
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/contacts/:id")
	defer cancel()

	deleted, err := h.contactFlow.DeleteContact(ctx, uc, id)
	if err != nil {
		return h.handleError(c, err, "Failed to delete contact", "CONTACT_DELETE_FAILED")
	}
	if deleted == 0 {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Contacto no encontrado", "CONTACT_NOT_FOUND", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Contacto eliminado exitosamente", nil)
}

// BulkDeleteContacts removes the owned subset of the given ids
// @Summary Bulk delete contacts
// @Tags Contacts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.BulkDeleteContactsRequest true "Contact ids"
// @Success 200 {object} dto.APIResponse{data=dto.BulkDeleteContactsResponse}
// @Router /api/v1/contacts/bulk-delete [post]
func (h *ContactHandler) BulkDeleteContacts(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	var req dto.BulkDeleteContactsRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/contacts/bulk-delete")
	defer cancel()

	deleted, err := h.contactFlow.BulkDeleteContacts(ctx, uc, req.ContactIDs)
	if err != nil {
		return h.handleError(c, err, "Failed to delete contacts", "CONTACT_BULK_DELETE_FAILED")
	}

	message := fmt.Sprintf("%d contactos eliminados exitosamente", deleted)
	return h.SuccessResponse(c, fiber.StatusOK, message, dto.BulkDeleteContactsResponse{
		Message:      message,
		DeletedCount: deleted,
	})
}

// GetContactStats returns contact counters of the caller
// @Summary Contact stats
// @Tags Contacts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.ContactStatsResponse}
// @Router /api/v1/contacts/stats [get]
func (h *ContactHandler) GetContactStats(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/contacts/stats")
	defer cancel()

	stats, err := h.contactFlow.GetContactStats(ctx, uc)
	if err != nil {
		return h.handleError(c, err, "Failed to load contact stats", "CONTACT_STATS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", stats)
}

// ImportCSV imports contacts from an uploaded CSV file
// @Summary Import CSV
// @Tags Contacts
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "CSV file"
// @Success 200 {object} dto.APIResponse{data=dto.ImportResultResponse}
// @Failure 400 {object} dto.APIResponse "Missing or unparseable file"
// @Router /api/v1/contacts/import/csv [post]
func (h *ContactHandler) ImportCSV(c fiber.Ctx) error {
	return h.importUpload(c, models.ImportFileTypeCSV, "/api/v1/contacts/import/csv")
}

// ImportExcel imports contacts from an uploaded xlsx workbook
// @Summary Import Excel
// @Tags Contacts
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Excel file"
// @Success 200 {object} dto.APIResponse{data=dto.ImportResultResponse}
// @Failure 400 {object} dto.APIResponse "Missing or unparseable file"
// @Router /api/v1/contacts/import/excel [post]
func (h *ContactHandler) ImportExcel(c fiber.Ctx) error {
	return h.importUpload(c, models.ImportFileTypeExcel, "/api/v1/contacts/import/excel")
}

func (h *ContactHandler) importUpload(c fiber.Ctx, kind models.ImportFileType, endpoint string) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	header, err := c.FormFile("file")
	if err != nil || header == nil || header.Filename == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "No se proporcionó archivo", "FILE_REQUIRED", nil)
	}
	file, err := header.Open()
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Could not read uploaded file", "INVALID_FILE", nil)
	}
	defer file.Close()

	ctx, cancel := h.createRequestContext(c, endpoint)
	defer cancel()

	result, err := h.importFlow.ImportTabular(ctx, uc, kind, header.Filename, file)
	if err != nil {
		return h.handleError(c, err, "Import failed", "IMPORT_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// ImportGoogleSheets records a Google Sheets import for background processing
// @Summary Import Google Sheets
// @Tags Contacts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.ExternalImportRequest true "Sheet URL"
// @Success 202 {object} dto.APIResponse{data=dto.ExternalImportResponse}
// @Router /api/v1/contacts/import/sheets [post]
func (h *ContactHandler) ImportGoogleSheets(c fiber.Ctx) error {
	return h.importExternal(c, models.ImportFileTypeGoogleSheets, "/api/v1/contacts/import/sheets")
}

// ImportGoogleDrive records a Google Drive import for background processing
// @Summary Import Google Drive
// @Tags Contacts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.ExternalImportRequest true "Drive file id"
// @Success 202 {object} dto.APIResponse{data=dto.ExternalImportResponse}
// @Router /api/v1/contacts/import/drive [post]
func (h *ContactHandler) ImportGoogleDrive(c fiber.Ctx) error {
	return h.importExternal(c, models.ImportFileTypeGoogleDrive, "/api/v1/contacts/import/drive")
}

func (h *ContactHandler) importExternal(c fiber.Ctx, source models.ImportFileType, endpoint string) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	var req dto.ExternalImportRequest
	if ok, err := h.bindJSON(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, endpoint)
	defer cancel()

	result, err := h.importFlow.ImportExternal(ctx, uc, source, &req)
	if err != nil {
		return h.handleError(c, err, "Import failed", "IMPORT_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusAccepted, result.Message, result)
}

// GetImportHistory lists the latest import attempts
// @Summary Import history
// @Tags Contacts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.ImportHistoryResponse}
// @Router /api/v1/contacts/import/history [get]
func (h *ContactHandler) GetImportHistory(c fiber.Ctx) error {
	uc, ok := h.userContext(c)
	if !ok {
		return h.unauthenticated(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/contacts/import/history")
	defer cancel()

	history, err := h.contactFlow.GetImportHistory(ctx, uc)
	if err != nil {
		return h.handleError(c, err, "Failed to load import history", "IMPORT_HISTORY_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "", history)
}
