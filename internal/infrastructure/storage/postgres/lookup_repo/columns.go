package lookup_repo

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"catreg/internal/core/apperror"
	"catreg/internal/metadata"
)

// Columns returns the physical columns of the definition's collection.
// The result is cached until a query fails with an undefined column, at
// which point translate drops the entry.
func (r *Repo) Columns(ctx context.Context, def metadata.EntityDef) (map[string]bool, error) {
	if cols, ok := r.columns.Get(def.Collection); ok {
		return cols, nil
	}

	q := r.Builder().
		Select("column_name").
		From("information_schema.columns").
		Where("table_schema = current_schema()").
		Where("table_name = ?", def.Collection)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build columns query: %w", err)
	}

	var names []string
	if err := pgxscan.Select(ctx, r.querier(ctx), &names, sql, args...); err != nil {
		return nil, apperror.NewDatabase(fmt.Errorf("introspect %s: %w", def.Collection, err))
	}
	if len(names) == 0 {
		return nil, apperror.NewDatabase(fmt.Errorf("collection %q does not exist", def.Collection))
	}

	cols := make(map[string]bool, len(names))
	for _, n := range names {
		cols[n] = true
	}
	r.columns.Store(def.Collection, cols)
	return cols, nil
}

// HasColumn reports whether the collection has the named column.
func (r *Repo) HasColumn(ctx context.Context, def metadata.EntityDef, column string) (bool, error) {
	cols, err := r.Columns(ctx, def)
	if err != nil {
		return false, err
	}
	return cols[column], nil
}
