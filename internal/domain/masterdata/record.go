// Package masterdata implements the generic lookup-record engine: every
// operation is a function of an entity-type definition and its arguments.
package masterdata

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// System columns present on every lookup collection.
const (
	ColID        = "id"
	ColActive    = "active"
	ColSortOrder = "sort_order"
	ColCode      = "code"
	ColCreatedAt = "created_at"
	ColUpdatedAt = "updated_at"
	ColDeletedAt = "deleted_at"
)

// SystemColumns lists the non-field columns that may be exported.
var SystemColumns = []string{ColID, ColActive, ColSortOrder, ColCreatedAt, ColUpdatedAt}

// Record is one row of a lookup collection keyed by column name.
type Record map[string]any

// ID returns the surrogate key.
func (r Record) ID() int64 {
	id, _ := ToInt64(r[ColID])
	return id
}

// Active returns the active flag.
func (r Record) Active() bool {
	b, _ := r[ColActive].(bool)
	return b
}

// String returns a column rendered as text, empty for NULL.
func (r Record) String(col string) string {
	v, ok := r[col]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case decimal.Decimal:
		return t.String()
	}
	return fmt.Sprint(v)
}

// Page is one page of a filtered listing.
type Page struct {
	Records    []Record `json:"records"`
	Total      int64    `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
	TotalPages int      `json:"totalPages"`
}

// NewPage computes totalPages from the total and page size.
func NewPage(records []Record, total int64, page, pageSize int) Page {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	if records == nil {
		records = []Record{}
	}
	return Page{
		Records:    records,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

// PageQuery parameterizes a paginated listing.
type PageQuery struct {
	Page         int
	PageSize     int
	Search       string
	SearchFields []string
}

// Offset returns the row offset of the requested page.
func (q PageQuery) Offset() uint64 {
	if q.Page < 1 {
		return 0
	}
	return uint64((q.Page - 1) * q.PageSize)
}

// ListOptions narrows a full listing.
type ListOptions struct {
	ActiveOnly bool
	// Where holds exact-match column filters, used to scope children to a parent.
	Where map[string]any
}

// DropdownOption is one id → label pair for select inputs.
type DropdownOption struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// ParentRef points back to the parent record of a child mutation.
type ParentRef struct {
	ParentType string `json:"parentType"`
	ParentID   int64  `json:"parentId"`
}

// Input is raw form input: field name → submitted string.
// A checkbox is checked iff its key is present.
type Input map[string]string

// InputFromJSON converts a decoded JSON object into form input.
// true becomes "1", false and null drop the key.
func InputFromJSON(body map[string]any) Input {
	in := make(Input, len(body))
	for k, v := range body {
		switch t := v.(type) {
		case nil:
		case bool:
			if t {
				in[k] = "1"
			}
		case string:
			in[k] = t
		case float64:
			in[k] = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			in[k] = fmt.Sprint(t)
		}
	}
	return in
}

// ToInt64 converts the integer-ish values produced by drivers, JSON and the
// validator into int64.
func ToInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int32:
		return int64(t), true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case decimal.Decimal:
		return t.IntPart(), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// NormalizeValue maps driver-specific scan results onto plain Go values.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		if !t.Valid || t.NaN || t.Int == nil {
			return nil
		}
		return decimal.NewFromBigInt(new(big.Int).Set(t.Int), t.Exp)
	case []byte:
		return string(t)
	}
	return v
}
