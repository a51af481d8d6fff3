// Package dto contains Data Transfer Objects for API request and response structures
package dto

// APIResponse represents the standard API response structure
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty" validate:"omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty" validate:"omitempty"`
}

// Pagination describes one page of a list response
type Pagination struct {
	Page    int   `json:"page" example:"1"`
	PerPage int   `json:"per_page" example:"20"`
	Total   int64 `json:"total" example:"57"`
	Pages   int   `json:"pages" example:"3"`
	HasNext bool  `json:"has_next" example:"true"`
	HasPrev bool  `json:"has_prev" example:"false"`
}

// MessageResponse carries only a human readable confirmation
type MessageResponse struct {
	Message string `json:"message"`
}
