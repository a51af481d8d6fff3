package businessflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/amirphl/nexus-communicator/app/dto"
	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/repository"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/sirupsen/logrus"
)

const (
	recentContactsDays = 30
	importHistoryLimit = 20
)

// ContactFlow handles the contact book of a user
type ContactFlow interface {
	CreateContact(ctx context.Context, uc UserContext, req *dto.CreateContactRequest) (*dto.ContactDTO, error)
	GetContact(ctx context.Context, uc UserContext, contactID uint) (*dto.ContactDTO, error)
	UpdateContact(ctx context.Context, uc UserContext, contactID uint, req *dto.UpdateContactRequest) (*dto.ContactDTO, error)
	DeleteContact(ctx context.Context, uc UserContext, contactID uint) (int64, error)
	BulkDeleteContacts(ctx context.Context, uc UserContext, ids []uint) (int64, error)
	ListContacts(ctx context.Context, uc UserContext, req *dto.ListContactsRequest) (*dto.ListContactsResponse, error)
	GetContactStats(ctx context.Context, uc UserContext) (*dto.ContactStatsResponse, error)
	GetImportHistory(ctx context.Context, uc UserContext) (*dto.ImportHistoryResponse, error)
}

// ContactFlowImpl implements the contact business flow
type ContactFlowImpl struct {
	contactRepo      repository.ContactRepository
	importedFileRepo repository.ImportedFileRepository
	audit            auditor
}

// NewContactFlow creates a new contact flow instance
func NewContactFlow(
	contactRepo repository.ContactRepository,
	importedFileRepo repository.ImportedFileRepository,
	auditRepo repository.AuditLogRepository,
) ContactFlow {
	return &ContactFlowImpl{
		contactRepo:      contactRepo,
		importedFileRepo: importedFileRepo,
		audit:            auditor{repo: auditRepo},
	}
}

// CreateContact inserts a contact; the (user, phone) pair must be new
func (f *ContactFlowImpl) CreateContact(ctx context.Context, uc UserContext, req *dto.CreateContactRequest) (*dto.ContactDTO, error) {
	name := strings.TrimSpace(req.Name)
	phone := models.NormalizePhone(req.Phone)
	if name == "" || phone == "" {
		return nil, NewBusinessError("CONTACT_VALIDATION_FAILED", "Name and phone are required", ErrValidation)
	}

	status := models.ContactStatusActive
	if req.Status != nil {
		status = models.ContactStatus(*req.Status)
		if !status.Valid() {
			return nil, NewBusinessError("INVALID_CONTACT_STATUS", "Contact status must be active or inactive", ErrInvalidStatus)
		}
	}

	contact := &models.Contact{
		UserID: uc.UserID,
		Name:   name,
		Phone:  phone,
		Email:  trimmedOrNil(req.Email),
		Status: status,
		Tags:   cleanTags(req.Tags),
		Notes:  req.Notes,
	}

	if err := insertContact(ctx, f.contactRepo, contact); err != nil {
		return nil, err
	}

	resp := ToContactDTO(contact)
	return &resp, nil
}

// insertContact runs the advisory duplicate check and translates a unique
// violation from the store into ErrDuplicatePhone.
func insertContact(ctx context.Context, contactRepo repository.ContactRepository, contact *models.Contact) error {
	existing, err := contactRepo.ByUserAndPhone(ctx, contact.UserID, contact.Phone)
	if err != nil {
		return NewBusinessError("CONTACT_LOOKUP_FAILED", "Failed to check existing contacts", err)
	}
	if existing != nil {
		return NewBusinessError("DUPLICATE_PHONE", "A contact with this phone already exists", ErrDuplicatePhone)
	}

	if err := contactRepo.Save(ctx, contact); err != nil {
		if repository.IsUniqueViolation(err) {
			return NewBusinessError("DUPLICATE_PHONE", "A contact with this phone already exists", ErrDuplicatePhone)
		}
		return NewBusinessError("CONTACT_CREATION_FAILED", "Failed to create contact", err)
	}
	return nil
}

// GetContact returns one contact of the user
func (f *ContactFlowImpl) GetContact(ctx context.Context, uc UserContext, contactID uint) (*dto.ContactDTO, error) {
	contact, err := f.ownedContact(ctx, uc, contactID)
	if err != nil {
		return nil, err
	}
	resp := ToContactDTO(contact)
	return &resp, nil
}

func (f *ContactFlowImpl) ownedContact(ctx context.Context, uc UserContext, contactID uint) (*models.Contact, error) {
	contact, err := f.contactRepo.ByUserAndID(ctx, uc.UserID, contactID)
	if err != nil {
		return nil, NewBusinessError("CONTACT_LOOKUP_FAILED", "Failed to lookup contact", err)
	}
	if contact == nil {
		return nil, NewBusinessError("CONTACT_NOT_FOUND", "Contact not found", ErrContactNotFound)
	}
	return contact, nil
}

// UpdateContact applies a patch; a changed phone is re-checked for duplicates
func (f *ContactFlowImpl) UpdateContact(ctx context.Context, uc UserContext, contactID uint, req *dto.UpdateContactRequest) (*dto.ContactDTO, error) {
	contact, err := f.ownedContact(ctx, uc, contactID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, NewBusinessError("CONTACT_VALIDATION_FAILED", "Name cannot be empty", ErrValidation)
		}
		contact.Name = name
	}

	if req.Phone != nil {
		phone := models.NormalizePhone(*req.Phone)
		if phone == "" {
			return nil, NewBusinessError("CONTACT_VALIDATION_FAILED", "Phone cannot be empty", ErrValidation)
		}
		if phone != contact.Phone {
			existing, err := f.contactRepo.ByUserAndPhone(ctx, uc.UserID, phone)
			if err != nil {
				return nil, NewBusinessError("CONTACT_LOOKUP_FAILED", "Failed to check existing contacts", err)
			}
			if existing != nil && existing.ID != contact.ID {
				return nil, NewBusinessError("DUPLICATE_PHONE", "A contact with this phone already exists", ErrDuplicatePhone)
			}
			contact.Phone = phone
		}
	}

	if req.Email != nil {
		contact.Email = trimmedOrNil(req.Email)
	}
	if req.Tags != nil {
		contact.Tags = cleanTags(req.Tags)
	}
	if req.Notes != nil {
		contact.Notes = req.Notes
	}
	if req.Status != nil {
		status := models.ContactStatus(*req.Status)
		if !status.Valid() {
			return nil, NewBusinessError("INVALID_CONTACT_STATUS", "Contact status must be active or inactive", ErrInvalidStatus)
		}
		contact.Status = status
	}

	if err := f.contactRepo.Update(ctx, contact); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, NewBusinessError("DUPLICATE_PHONE", "A contact with this phone already exists", ErrDuplicatePhone)
		}
		return nil, NewBusinessError("CONTACT_UPDATE_FAILED", "Failed to update contact", err)
	}

	resp := ToContactDTO(contact)
	return &resp, nil
}

// DeleteContact removes one contact; an id the user does not own removes nothing
func (f *ContactFlowImpl) DeleteContact(ctx context.Context, uc UserContext, contactID uint) (int64, error) {
	return f.deleteOwned(ctx, uc, []uint{contactID})
}

// BulkDeleteContacts removes the owned subset of ids and returns its size
func (f *ContactFlowImpl) BulkDeleteContacts(ctx context.Context, uc UserContext, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, NewBusinessError("CONTACT_IDS_REQUIRED", "Contact ids are required", ErrValidation)
	}
	deleted, err := f.deleteOwned(ctx, uc, ids)
	if err != nil {
		return 0, err
	}

	f.audit.record(ctx, uc, models.AuditActionContactsBulkDeleted,
		fmt.Sprintf("Bulk deleted %d of %d requested contacts", deleted, len(ids)), true, nil)
	return deleted, nil
}

func (f *ContactFlowImpl) deleteOwned(ctx context.Context, uc UserContext, ids []uint) (int64, error) {
	deleted, err := f.contactRepo.DeleteOwned(ctx, uc.UserID, ids)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": uc.UserID,
			"ids":     len(ids),
			"error":   err,
		}).Error("contact deletion failed")
		return 0, NewBusinessError("CONTACT_DELETION_FAILED", "Failed to delete contacts", err)
	}
	return deleted, nil
}

// ListContacts returns one page ordered by created_at desc
func (f *ContactFlowImpl) ListContacts(ctx context.Context, uc UserContext, req *dto.ListContactsRequest) (*dto.ListContactsResponse, error) {
	page, perPage := normalizePage(req.Page, req.PerPage)

	filter := models.ContactFilter{UserID: &uc.UserID}
	if s := strings.TrimSpace(req.Search); s != "" {
		filter.Search = &s
	}
	if s := strings.TrimSpace(req.Status); s != "" {
		status := models.ContactStatus(s)
		if !status.Valid() {
			return nil, NewBusinessError("INVALID_CONTACT_STATUS", "Contact status must be active or inactive", ErrInvalidStatus)
		}
		filter.Status = &status
	}
	if s := strings.TrimSpace(req.Tag); s != "" {
		filter.Tag = &s
	}

	total, err := f.contactRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("CONTACT_LIST_FAILED", "Failed to count contacts", err)
	}

	contacts, err := f.contactRepo.ByFilter(ctx, filter, "created_at DESC, id DESC", perPage, (page-1)*perPage)
	if err != nil {
		return nil, NewBusinessError("CONTACT_LIST_FAILED", "Failed to list contacts", err)
	}

	return &dto.ListContactsResponse{
		Contacts:   toContactDTOs(contacts),
		Pagination: buildPagination(page, perPage, total),
	}, nil
}

// GetContactStats counts contacts per status plus the last 30 days
func (f *ContactFlowImpl) GetContactStats(ctx context.Context, uc UserContext) (*dto.ContactStatsResponse, error) {
	byStatus, err := f.contactRepo.CountByStatus(ctx, uc.UserID)
	if err != nil {
		return nil, NewBusinessError("CONTACT_STATS_FAILED", "Failed to compute contact stats", err)
	}

	since := utils.UTCDaysAgo(recentContactsDays)
	recent, err := f.contactRepo.Count(ctx, models.ContactFilter{UserID: &uc.UserID, CreatedAfter: &since})
	if err != nil {
		return nil, NewBusinessError("CONTACT_STATS_FAILED", "Failed to compute contact stats", err)
	}

	var total int64
	for _, n := range byStatus {
		total += n
	}

	return &dto.ContactStatsResponse{
		TotalContacts:    total,
		ActiveContacts:   byStatus[models.ContactStatusActive],
		InactiveContacts: byStatus[models.ContactStatusInactive],
		RecentContacts:   recent,
	}, nil
}

// GetImportHistory lists the latest imports of the user
func (f *ContactFlowImpl) GetImportHistory(ctx context.Context, uc UserContext) (*dto.ImportHistoryResponse, error) {
	files, err := f.importedFileRepo.ListRecent(ctx, uc.UserID, importHistoryLimit)
	if err != nil {
		return nil, NewBusinessError("IMPORT_HISTORY_FAILED", "Failed to load import history", err)
	}

	out := make([]dto.ImportedFileDTO, 0, len(files))
	for _, file := range files {
		out = append(out, ToImportedFileDTO(file))
	}
	return &dto.ImportHistoryResponse{Imports: out}, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
