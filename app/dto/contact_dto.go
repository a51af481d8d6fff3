package dto

// CreateContactRequest represents the request to create a contact
type CreateContactRequest struct {
	Name   string   `json:"name" validate:"required,min=1,max=100" example:"Luis Pérez"`
	Phone  string   `json:"phone" validate:"required,min=3,max=20" example:"+34600111222"`
	Email  *string  `json:"email,omitempty" validate:"omitempty,email,max=120"`
	Tags   []string `json:"tags,omitempty" validate:"omitempty,dive,max=50"`
	Notes  *string  `json:"notes,omitempty"`
	Status *string  `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
}

// UpdateContactRequest patches a contact; nil fields are left untouched
type UpdateContactRequest struct {
	Name   *string  `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Phone  *string  `json:"phone,omitempty" validate:"omitempty,min=3,max=20"`
	Email  *string  `json:"email,omitempty" validate:"omitempty,max=120"`
	Tags   []string `json:"tags,omitempty" validate:"omitempty,dive,max=50"`
	Notes  *string  `json:"notes,omitempty"`
	Status *string  `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
}

// ListContactsRequest holds the list query string
type ListContactsRequest struct {
	Page    int    `query:"page" json:"page" validate:"omitempty,min=1"`
	PerPage int    `query:"per_page" json:"per_page" validate:"omitempty,min=1"`
	Search  string `query:"search" json:"search"`
	Status  string `query:"status" json:"status" validate:"omitempty,oneof=active inactive"`
	Tag     string `query:"tag" json:"tag"`
}

// ContactDTO is the API view of a contact
type ContactDTO struct {
	ID            uint     `json:"id" example:"1"`
	Name          string   `json:"name" example:"Luis Pérez"`
	Phone         string   `json:"phone" example:"+34600111222"`
	Email         *string  `json:"email,omitempty"`
	Status        string   `json:"status" example:"active"`
	Tags          []string `json:"tags"`
	Notes         *string  `json:"notes,omitempty"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
	LastMessageAt *string  `json:"last_message_at,omitempty"`
}

// ListContactsResponse is one page of contacts
type ListContactsResponse struct {
	Contacts   []ContactDTO `json:"contacts"`
	Pagination Pagination   `json:"pagination"`
}

// BulkDeleteContactsRequest lists contact ids to remove
type BulkDeleteContactsRequest struct {
	ContactIDs []uint `json:"contact_ids" validate:"required,min=1,dive,min=1"`
}

// BulkDeleteContactsResponse reports how many contacts were actually removed
type BulkDeleteContactsResponse struct {
	Message      string `json:"message"`
	DeletedCount int64  `json:"deleted_count"`
}

// ContactStatsResponse summarises the contact book
type ContactStatsResponse struct {
	TotalContacts    int64 `json:"total_contacts"`
	ActiveContacts   int64 `json:"active_contacts"`
	InactiveContacts int64 `json:"inactive_contacts"`
	RecentContacts   int64 `json:"recent_contacts"`
}

// ImportResultResponse is the outcome of a tabular import
type ImportResultResponse struct {
	Message       string   `json:"message"`
	ImportID      uint     `json:"import_id"`
	ImportedCount int      `json:"imported_count"`
	Errors        []string `json:"errors"`
}

// ExternalImportRequest names a Google Sheets URL or a Drive file id
type ExternalImportRequest struct {
	SheetURL string `json:"sheet_url,omitempty" validate:"omitempty,url,max=500"`
	FileID   string `json:"file_id,omitempty" validate:"omitempty,max=200"`
}

// ExternalImportResponse acknowledges an external import
type ExternalImportResponse struct {
	Message  string `json:"message"`
	ImportID uint   `json:"import_id"`
	Status   string `json:"status"`
}

// ImportedFileDTO is one entry of the import history
type ImportedFileDTO struct {
	ID               uint    `json:"id"`
	Filename         string  `json:"filename"`
	FileType         string  `json:"file_type"`
	FileURL          *string `json:"file_url,omitempty"`
	ContactsImported int     `json:"contacts_imported"`
	Status           string  `json:"status"`
	ErrorMessage     *string `json:"error_message,omitempty"`
	CreatedAt        string  `json:"created_at"`
	CompletedAt      *string `json:"completed_at,omitempty"`
}

// ImportHistoryResponse lists the most recent imports
type ImportHistoryResponse struct {
	Imports []ImportedFileDTO `json:"imports"`
}
