package dto

import (
	"catreg/internal/domain/masterdata"
	"catreg/internal/metadata"
)

// PageRequest holds the listing query string.
type PageRequest struct {
	Page    int    `form:"page" binding:"omitempty,min=1"`
	PerPage int    `form:"perPage" binding:"omitempty,min=1"`
	Search  string `form:"search"`
}

// ActiveOnlyRequest is the query string of full listings and dropdowns.
type ActiveOnlyRequest struct {
	ActiveOnly bool `form:"activeOnly"`
}

// ExportRequest selects the exported columns as a comma list.
type ExportRequest struct {
	Columns string `form:"columns"`
}

// ReorderRequest maps record id to its new position.
type ReorderRequest struct {
	Order map[int64]int `json:"order" binding:"required"`
}

// QuickAddRequest creates a record from its label only.
type QuickAddRequest struct {
	Name     string `json:"name" binding:"required"`
	ParentID *int64 `json:"parentId"`
}

// QuickAddResponse is returned by quick-add.
type QuickAddResponse struct {
	Success bool   `json:"success"`
	ID      int64  `json:"id"`
	Label   string `json:"label"`
}

// PageResponse is one page of records.
type PageResponse struct {
	Data       []masterdata.Record `json:"data"`
	Pagination PaginationResponse  `json:"pagination"`
	Search     string              `json:"search,omitempty"`
}

// NewPageResponse maps a store page.
func NewPageResponse(p masterdata.Page, search string) PageResponse {
	return PageResponse{
		Data: p.Records,
		Pagination: PaginationResponse{
			Page:       p.Page,
			PageSize:   p.PageSize,
			TotalItems: p.Total,
			TotalPages: p.TotalPages,
		},
		Search: search,
	}
}

// FormResponse describes a create or edit form. Record is empty for create.
type FormResponse struct {
	Definition metadata.EntityDef          `json:"definition"`
	Options    map[string]metadata.Options `json:"options"`
	Record     masterdata.Record           `json:"record,omitempty"`
	Parent     *masterdata.ParentRef       `json:"parent,omitempty"`
}

// MutationResponse acknowledges a create, update or delete.
type MutationResponse struct {
	Success  bool                  `json:"success"`
	Message  string                `json:"message"`
	ID       int64                 `json:"id,omitempty"`
	Redirect *masterdata.ParentRef `json:"redirect,omitempty"`
}

// ToggleResponse acknowledges a toggle and carries the new state.
type ToggleResponse struct {
	Success  bool                  `json:"success"`
	Message  string                `json:"message"`
	Active   bool                  `json:"active"`
	Redirect *masterdata.ParentRef `json:"redirect,omitempty"`
}
