package lookup_repo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"catreg/internal/core/apperror"
	"catreg/internal/domain/masterdata"
	"catreg/internal/infrastructure/storage/postgres"
	"catreg/internal/metadata"
	"catreg/pkg/logger"
)

// fieldValues keeps only declared fields, so callers cannot write system columns.
func fieldValues(def metadata.EntityDef, values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for _, f := range def.Fields {
		if v, ok := values[f.Name]; ok {
			out[f.Name] = v
		}
	}
	return out
}

// Create inserts a record and returns its id.
func (r *Repo) Create(ctx context.Context, def metadata.EntityDef, values map[string]any) (int64, error) {
	data := fieldValues(def, values)
	if len(data) == 0 {
		return 0, apperror.NewInvalidInput("no values to insert")
	}

	sql, args, err := r.Builder().
		Insert(def.Collection).
		SetMap(data).
		Suffix("RETURNING " + masterdata.ColID).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	if err := r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, r.translateWrite(def, nil, err)
	}
	return id, nil
}

// Update overwrites the given fields and stamps updated_at.
func (r *Repo) Update(ctx context.Context, def metadata.EntityDef, id int64, values map[string]any) error {
	sql, args, err := r.Builder().
		Update(def.Collection).
		SetMap(fieldValues(def, values)).
		Set(masterdata.ColUpdatedAt, squirrel.Expr("NOW()")).
		Where(squirrel.Eq{masterdata.ColID: id}).
		Where(live()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return r.translateWrite(def, id, err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(def.Key, id)
	}
	return nil
}

// SoftDelete stamps deleted_at on a live record.
func (r *Repo) SoftDelete(ctx context.Context, def metadata.EntityDef, id int64) error {
	sql, args, err := r.Builder().
		Update(def.Collection).
		Set(masterdata.ColDeletedAt, squirrel.Expr("NOW()")).
		Set(masterdata.ColUpdatedAt, squirrel.Expr("NOW()")).
		Where(squirrel.Eq{masterdata.ColID: id}).
		Where(live()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build soft delete: %w", err)
	}
	return r.execOne(ctx, def, id, sql, args)
}

// Restore clears deleted_at on a soft-deleted record.
func (r *Repo) Restore(ctx context.Context, def metadata.EntityDef, id int64) error {
	sql, args, err := r.Builder().
		Update(def.Collection).
		Set(masterdata.ColDeletedAt, nil).
		Set(masterdata.ColUpdatedAt, squirrel.Expr("NOW()")).
		Where(squirrel.Eq{masterdata.ColID: id}).
		Where(squirrel.NotEq{masterdata.ColDeletedAt: nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build restore: %w", err)
	}
	return r.execOne(ctx, def, id, sql, args)
}

// HardDelete physically removes a record. Rows still referenced elsewhere
// are refused by the foreign key and reported as having related data.
func (r *Repo) HardDelete(ctx context.Context, def metadata.EntityDef, id int64) error {
	sql, args, err := r.Builder().
		Delete(def.Collection).
		Where(squirrel.Eq{masterdata.ColID: id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	return r.execOne(ctx, def, id, sql, args)
}

func (r *Repo) execOne(ctx context.Context, def metadata.EntityDef, id int64, sql string, args []any) error {
	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return r.translate(def, id, err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(def.Key, id)
	}
	return nil
}

// ToggleActive flips active on a live record and returns the new value.
func (r *Repo) ToggleActive(ctx context.Context, def metadata.EntityDef, id int64) (bool, error) {
	sql, args, err := r.Builder().
		Update(def.Collection).
		Set(masterdata.ColActive, squirrel.Expr("NOT "+masterdata.ColActive)).
		Set(masterdata.ColUpdatedAt, squirrel.Expr("NOW()")).
		Where(squirrel.Eq{masterdata.ColID: id}).
		Where(live()).
		Suffix("RETURNING " + masterdata.ColActive).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build toggle: %w", err)
	}

	var active bool
	err = r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, apperror.NewNotFound(def.Key, id)
	}
	if err != nil {
		return false, r.translate(def, id, err)
	}
	return active, nil
}

// Reorder writes every position inside one transaction, or under a savepoint
// when the caller already holds one. Any failing row, including a missing or
// deleted id, rolls back the whole batch.
func (r *Repo) Reorder(ctx context.Context, def metadata.EntityDef, order map[int64]int) error {
	ctx, span := tracer.Start(ctx, "lookup.Reorder",
		trace.WithAttributes(
			attribute.String("collection", def.Collection),
			attribute.Int("rows", len(order)),
		))
	defer span.End()

	ok, err := r.sortable(ctx, def)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.NewNotSortable(def.Key)
	}

	ids := make([]int64, 0, len(order))
	for id := range order {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	opts := postgres.DefaultTxOptions()
	opts.UseSavepoint = true
	err = r.txManager.RunInTransactionWithOptions(ctx, opts, func(ctx context.Context) error {
		for _, id := range ids {
			sql, args, err := r.Builder().
				Update(def.Collection).
				Set(masterdata.ColSortOrder, order[id]).
				Set(masterdata.ColUpdatedAt, squirrel.Expr("NOW()")).
				Where(squirrel.Eq{masterdata.ColID: id}).
				Where(live()).
				ToSql()
			if err != nil {
				return fmt.Errorf("build reorder: %w", err)
			}
			result, err := r.querier(ctx).Exec(ctx, sql, args...)
			if err != nil {
				return fmt.Errorf("reorder %s id %d: %w", def.Collection, id, err)
			}
			if result.RowsAffected() == 0 {
				return fmt.Errorf("reorder %s: id %d not found", def.Collection, id)
			}
		}
		return nil
	})
	if err != nil {
		logger.Warn(ctx, "reorder rolled back", "collection", def.Collection, "error", err)
		return apperror.NewReorderFailed(def.Key).WithCause(err)
	}

	logger.Debug(ctx, "reorder applied", "collection", def.Collection, "rows", len(ids))
	return nil
}
