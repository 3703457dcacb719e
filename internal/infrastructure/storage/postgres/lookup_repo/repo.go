// Package lookup_repo is the generic PostgreSQL store behind every lookup
// entity type. Queries are built from the entity definition at call time;
// there is no per-entity repository code.
package lookup_repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"

	"catreg/internal/core/apperror"
	"catreg/internal/domain/masterdata"
	"catreg/internal/infrastructure/cache"
	"catreg/internal/infrastructure/storage/postgres"
	"catreg/internal/metadata"
)

var tracer = otel.Tracer("catreg/lookup_repo")

var _ masterdata.Store = (*Repo)(nil)

// Repo implements masterdata.Store for any collection described by a definition.
type Repo struct {
	txManager *postgres.TxManager

	// collection → set of column names, filled lazily from information_schema
	columns *cache.ColumnCache
}

// NewRepo creates a new lookup repository with a private column cache.
func NewRepo(txManager *postgres.TxManager) *Repo {
	return &Repo{txManager: txManager, columns: cache.NewColumnCache()}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *Repo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *Repo) querier(ctx context.Context) postgres.Querier {
	return r.txManager.GetQuerier(ctx)
}

// selectColumns returns id, declared fields, then system columns. sort_order
// is included only when the table has it.
func (r *Repo) selectColumns(ctx context.Context, def metadata.EntityDef) ([]string, error) {
	hasSort, err := r.HasColumn(ctx, def, masterdata.ColSortOrder)
	if err != nil {
		return nil, err
	}

	cols := make([]string, 0, len(def.Fields)+6)
	cols = append(cols, masterdata.ColID)
	for _, f := range def.Fields {
		cols = append(cols, f.Name)
	}
	cols = append(cols, masterdata.ColActive)
	if hasSort {
		cols = append(cols, masterdata.ColSortOrder)
	}
	return append(cols, masterdata.ColCreatedAt, masterdata.ColUpdatedAt, masterdata.ColDeletedAt), nil
}

// live is the predicate shared by every listing, count and uniqueness check.
func live() squirrel.Sqlizer {
	return squirrel.Eq{masterdata.ColDeletedAt: nil}
}

// listPredicate combines the live filter with ListOptions.
func listPredicate(def metadata.EntityDef, opts masterdata.ListOptions) (squirrel.And, error) {
	pred := squirrel.And{live()}
	if opts.ActiveOnly {
		pred = append(pred, squirrel.Eq{masterdata.ColActive: true})
	}
	cols := make([]string, 0, len(opts.Where))
	for col := range opts.Where {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		if _, ok := def.Field(col); !ok && col != masterdata.ColID {
			return nil, fmt.Errorf("invalid filter column: %s", col)
		}
		pred = append(pred, squirrel.Eq{col: opts.Where[col]})
	}
	return pred, nil
}

// orderBy sorts by sort_order then label when the collection is sortable,
// by label alone otherwise.
func (r *Repo) orderBy(ctx context.Context, def metadata.EntityDef) ([]string, error) {
	label := def.LabelFieldName() + " ASC"
	ok, err := r.sortable(ctx, def)
	if err != nil {
		return nil, err
	}
	if ok {
		return []string{masterdata.ColSortOrder + " ASC", label}, nil
	}
	return []string{label}, nil
}

// sortable requires both the declared flag and a sort_order column.
func (r *Repo) sortable(ctx context.Context, def metadata.EntityDef) (bool, error) {
	if !def.Sortable {
		return false, nil
	}
	return r.HasColumn(ctx, def, masterdata.ColSortOrder)
}

// translate maps driver errors onto the master-data error taxonomy.
// An undefined column means the table changed under us; the cached column
// set is dropped so the next request introspects again.
func (r *Repo) translate(def metadata.EntityDef, id any, err error) error {
	if err == nil {
		return nil
	}
	if apperror.IsAppError(err) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			field := constraintField(def, pgErr.ConstraintName)
			return apperror.NewDuplicate(def.Key, field, def.FieldLabel(field)).WithCause(err)
		case "23503":
			return apperror.NewParentHasChildren(def.Key, id).WithCause(err)
		case "42703":
			r.columns.Invalidate(def.Collection)
		}
	}
	return apperror.NewDatabase(err)
}

// translateWrite handles inserts and updates, where a foreign key violation
// means the submitted reference does not exist rather than that the row is
// still referenced.
func (r *Repo) translateWrite(def metadata.EntityDef, id any, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		field := foreignField(def, pgErr.ConstraintName)
		label := def.FieldLabel(field)
		return apperror.NewValidation("Validation failed", apperror.FieldError{
			Field:   field,
			Message: label + " has an invalid selection",
		}).WithCause(err)
	}
	return r.translate(def, id, err)
}

// foreignField picks the reference field named in an FK constraint such as
// surgeries_specialty_id_fkey, falling back to the first reference field.
func foreignField(def metadata.EntityDef, constraint string) string {
	first := ""
	for _, f := range def.Fields {
		if !f.IsForeign() {
			continue
		}
		if first == "" {
			first = f.Name
		}
		if strings.Contains("_"+constraint+"_", "_"+f.Name+"_") {
			return f.Name
		}
	}
	return first
}

// constraintField guesses the violated field from a constraint name such as
// drugs_name_key or uq_drugs_name, falling back to the label field.
func constraintField(def metadata.EntityDef, constraint string) string {
	best := ""
	for _, f := range def.Fields {
		if !f.Unique {
			continue
		}
		if strings.Contains("_"+constraint+"_", "_"+f.Name+"_") && len(f.Name) > len(best) {
			best = f.Name
		}
	}
	if best == "" {
		return def.LabelFieldName()
	}
	return best
}
