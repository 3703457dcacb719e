package lookup_repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"catreg/internal/core/apperror"
	"catreg/internal/domain/masterdata"
	"catreg/internal/metadata"
)

// baseSelect creates a SELECT builder over the full record shape.
func (r *Repo) baseSelect(ctx context.Context, def metadata.EntityDef) (squirrel.SelectBuilder, error) {
	cols, err := r.selectColumns(ctx, def)
	if err != nil {
		return squirrel.SelectBuilder{}, err
	}
	return r.Builder().Select(cols...).From(def.Collection), nil
}

// selectRecords runs q and returns rows keyed by column name.
func (r *Repo) selectRecords(ctx context.Context, def metadata.EntityDef, q squirrel.SelectBuilder) ([]masterdata.Record, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.querier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, r.translate(def, nil, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := make([]masterdata.Record, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, r.translate(def, nil, err)
		}
		rec := make(masterdata.Record, len(fields))
		for i, fd := range fields {
			rec[fd.Name] = masterdata.NormalizeValue(values[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, r.translate(def, nil, err)
	}
	return out, nil
}

// List returns every live record in display order.
func (r *Repo) List(ctx context.Context, def metadata.EntityDef, opts masterdata.ListOptions) ([]masterdata.Record, error) {
	pred, err := listPredicate(def, opts)
	if err != nil {
		return nil, err
	}
	q, err := r.baseSelect(ctx, def)
	if err != nil {
		return nil, err
	}
	order, err := r.orderBy(ctx, def)
	if err != nil {
		return nil, err
	}
	return r.selectRecords(ctx, def, q.Where(pred).OrderBy(order...))
}

// searchPredicate matches term as a case-insensitive substring of any of
// fields. LIKE wildcards in term are matched literally.
func searchPredicate(def metadata.EntityDef, term string, fields []string) (squirrel.Sqlizer, error) {
	term = strings.TrimSpace(term)
	if term == "" || len(fields) == 0 {
		return nil, nil
	}
	pattern := "%" + escapeLike(term) + "%"
	or := make(squirrel.Or, 0, len(fields))
	for _, f := range fields {
		if _, ok := def.Field(f); !ok {
			return nil, fmt.Errorf("invalid search column: %s", f)
		}
		or = append(or, squirrel.ILike{f: pattern})
	}
	return or, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// pagePredicate is used by both the count and the page query of Paginate.
func pagePredicate(def metadata.EntityDef, pq masterdata.PageQuery) (squirrel.And, error) {
	pred := squirrel.And{live()}
	search, err := searchPredicate(def, pq.Search, pq.SearchFields)
	if err != nil {
		return nil, err
	}
	if search != nil {
		pred = append(pred, search)
	}
	return pred, nil
}

// Paginate returns one page of live records plus the total under the same filter.
func (r *Repo) Paginate(ctx context.Context, def metadata.EntityDef, pq masterdata.PageQuery) (masterdata.Page, error) {
	ctx, span := tracer.Start(ctx, "lookup.Paginate",
		trace.WithAttributes(attribute.String("collection", def.Collection)))
	defer span.End()

	pred, err := pagePredicate(def, pq)
	if err != nil {
		return masterdata.Page{}, err
	}
	q, err := r.baseSelect(ctx, def)
	if err != nil {
		return masterdata.Page{}, err
	}
	order, err := r.orderBy(ctx, def)
	if err != nil {
		return masterdata.Page{}, err
	}

	q = q.Where(pred).OrderBy(order...).Limit(uint64(pq.PageSize))
	if off := pq.Offset(); off > 0 {
		q = q.Offset(off)
	}

	// Count and page share one snapshot so the total matches the rows.
	var (
		total int64
		recs  []masterdata.Record
	)
	err = r.txManager.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		if total, err = r.count(ctx, def, pred); err != nil {
			return err
		}
		recs, err = r.selectRecords(ctx, def, q)
		return err
	})
	if err != nil {
		return masterdata.Page{}, err
	}
	return masterdata.NewPage(recs, total, pq.Page, pq.PageSize), nil
}

// Count returns the number of live records matching opts.
func (r *Repo) Count(ctx context.Context, def metadata.EntityDef, opts masterdata.ListOptions) (int64, error) {
	pred, err := listPredicate(def, opts)
	if err != nil {
		return 0, err
	}
	return r.count(ctx, def, pred)
}

func (r *Repo) count(ctx context.Context, def metadata.EntityDef, pred squirrel.Sqlizer) (int64, error) {
	sql, args, err := r.Builder().
		Select("COUNT(*)").
		From(def.Collection).
		Where(pred).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}

	var total int64
	if err := r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, r.translate(def, nil, err)
	}
	return total, nil
}

// Get retrieves a live record by id.
func (r *Repo) Get(ctx context.Context, def metadata.EntityDef, id int64) (masterdata.Record, error) {
	return r.getBy(ctx, def, squirrel.Eq{masterdata.ColID: id}, id)
}

// FindByCode retrieves a live record by its code column. Collections
// without a code column never match.
func (r *Repo) FindByCode(ctx context.Context, def metadata.EntityDef, code string) (masterdata.Record, error) {
	ok, err := r.HasColumn(ctx, def, masterdata.ColCode)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NewNotFound(def.Key, code).WithDetail("reason", "no code column")
	}
	return r.getBy(ctx, def, squirrel.Eq{masterdata.ColCode: code}, code)
}

func (r *Repo) getBy(ctx context.Context, def metadata.EntityDef, cond squirrel.Eq, key any) (masterdata.Record, error) {
	q, err := r.baseSelect(ctx, def)
	if err != nil {
		return nil, err
	}
	recs, err := r.selectRecords(ctx, def, q.Where(cond).Where(live()).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, apperror.NewNotFound(def.Key, key)
	}
	return recs[0], nil
}

// IsUnique reports whether no live record other than excludeID holds value in field.
func (r *Repo) IsUnique(ctx context.Context, def metadata.EntityDef, field string, value any, excludeID *int64) (bool, error) {
	if _, ok := def.Field(field); !ok {
		return false, fmt.Errorf("invalid unique column: %s", field)
	}

	q := r.Builder().
		Select("1").
		From(def.Collection).
		Where(squirrel.Eq{field: value}).
		Where(live())
	if excludeID != nil {
		q = q.Where(squirrel.NotEq{masterdata.ColID: *excludeID})
	}

	sql, args, err := q.Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	err = r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, r.translate(def, nil, err)
	}
	return false, nil
}

// DropdownOptions returns id → label pairs in display order.
func (r *Repo) DropdownOptions(ctx context.Context, def metadata.EntityDef, activeOnly bool) ([]masterdata.DropdownOption, error) {
	pred, err := listPredicate(def, masterdata.ListOptions{ActiveOnly: activeOnly})
	if err != nil {
		return nil, err
	}
	order, err := r.orderBy(ctx, def)
	if err != nil {
		return nil, err
	}

	sql, args, err := r.Builder().
		Select(masterdata.ColID, def.LabelFieldName()+" AS label").
		From(def.Collection).
		Where(pred).
		OrderBy(order...).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	opts := []masterdata.DropdownOption{}
	if err := pgxscan.Select(ctx, r.querier(ctx), &opts, sql, args...); err != nil {
		return nil, r.translate(def, nil, err)
	}
	return opts, nil
}
