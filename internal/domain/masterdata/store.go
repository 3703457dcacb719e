package masterdata

import (
	"context"
	"io"

	"catreg/internal/metadata"
)

// Store is the generic repository over any collection described by a definition.
// Every listing, count and uniqueness check ignores soft-deleted rows.
type Store interface {
	List(ctx context.Context, def metadata.EntityDef, opts ListOptions) ([]Record, error)
	Paginate(ctx context.Context, def metadata.EntityDef, q PageQuery) (Page, error)
	Count(ctx context.Context, def metadata.EntityDef, opts ListOptions) (int64, error)
	Get(ctx context.Context, def metadata.EntityDef, id int64) (Record, error)
	FindByCode(ctx context.Context, def metadata.EntityDef, code string) (Record, error)
	IsUnique(ctx context.Context, def metadata.EntityDef, field string, value any, excludeID *int64) (bool, error)

	Create(ctx context.Context, def metadata.EntityDef, values map[string]any) (int64, error)
	Update(ctx context.Context, def metadata.EntityDef, id int64, values map[string]any) error
	SoftDelete(ctx context.Context, def metadata.EntityDef, id int64) error
	HardDelete(ctx context.Context, def metadata.EntityDef, id int64) error
	Restore(ctx context.Context, def metadata.EntityDef, id int64) error
	ToggleActive(ctx context.Context, def metadata.EntityDef, id int64) (bool, error)

	// Reorder applies every id → position pair or none of them.
	Reorder(ctx context.Context, def metadata.EntityDef, order map[int64]int) error
	ExportCSV(ctx context.Context, def metadata.EntityDef, columns []string, w io.Writer) error
	DropdownOptions(ctx context.Context, def metadata.EntityDef, activeOnly bool) ([]DropdownOption, error)
}

// Audit actions recorded for master-data changes.
const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionHardDelete = "hard_delete"
	ActionRestore    = "restore"
	ActionToggle     = "toggle"
	ActionReorder    = "reorder"
)

// Auditor records changes. It runs inside the mutation's transaction.
type Auditor interface {
	LogChange(ctx context.Context, entityType string, entityID int64, action string, changes map[string]any) error
}
