package masterdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"catreg/internal/core/apperror"
	"catreg/internal/metadata"
)

// memStore is an in-memory Store used by the service and validator tests.
type memStore struct {
	tables map[string]*memTable
	failOn string // collection whose writes fail with a database error
}

type memTable struct {
	nextID int64
	rows   map[int64]Record
}

func newMemStore() *memStore {
	return &memStore{tables: make(map[string]*memTable)}
}

func (m *memStore) table(def metadata.EntityDef) *memTable {
	t, ok := m.tables[def.Collection]
	if !ok {
		t = &memTable{rows: make(map[int64]Record)}
		m.tables[def.Collection] = t
	}
	return t
}

func deleted(r Record) bool {
	return r[ColDeletedAt] != nil
}

func (m *memStore) live(def metadata.EntityDef, opts ListOptions) []Record {
	var out []Record
	for _, r := range m.table(def).rows {
		if deleted(r) || (opts.ActiveOnly && !r.Active()) {
			continue
		}
		match := true
		for col, want := range opts.Where {
			if fmt.Sprint(r[col]) != fmt.Sprint(want) {
				match = false
			}
		}
		if match {
			out = append(out, r)
		}
	}
	label := def.LabelFieldName()
	sort.Slice(out, func(i, j int) bool {
		if def.Sortable {
			si, _ := ToInt64(out[i][ColSortOrder])
			sj, _ := ToInt64(out[j][ColSortOrder])
			if si != sj {
				return si < sj
			}
		}
		return out[i].String(label) < out[j].String(label)
	})
	return out
}

func (m *memStore) List(_ context.Context, def metadata.EntityDef, opts ListOptions) ([]Record, error) {
	return m.live(def, opts), nil
}

func (m *memStore) Paginate(_ context.Context, def metadata.EntityDef, q PageQuery) (Page, error) {
	var hits []Record
	needle := strings.ToLower(q.Search)
	for _, r := range m.live(def, ListOptions{}) {
		if needle == "" {
			hits = append(hits, r)
			continue
		}
		for _, f := range q.SearchFields {
			if strings.Contains(strings.ToLower(r.String(f)), needle) {
				hits = append(hits, r)
				break
			}
		}
	}
	total := int64(len(hits))
	start := int(q.Offset())
	if start > len(hits) {
		start = len(hits)
	}
	end := start + q.PageSize
	if end > len(hits) {
		end = len(hits)
	}
	return NewPage(hits[start:end], total, q.Page, q.PageSize), nil
}

func (m *memStore) Count(_ context.Context, def metadata.EntityDef, opts ListOptions) (int64, error) {
	return int64(len(m.live(def, opts))), nil
}

func (m *memStore) Get(_ context.Context, def metadata.EntityDef, id int64) (Record, error) {
	r, ok := m.table(def).rows[id]
	if !ok || deleted(r) {
		return nil, apperror.NewNotFound(def.Key, id)
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) FindByCode(_ context.Context, def metadata.EntityDef, code string) (Record, error) {
	for _, r := range m.live(def, ListOptions{}) {
		if r.String(ColCode) == code {
			return r, nil
		}
	}
	return nil, apperror.NewNotFound(def.Key, code)
}

func (m *memStore) IsUnique(_ context.Context, def metadata.EntityDef, field string, value any, excludeID *int64) (bool, error) {
	for _, r := range m.live(def, ListOptions{}) {
		if excludeID != nil && r.ID() == *excludeID {
			continue
		}
		if fmt.Sprint(r[field]) == fmt.Sprint(value) {
			return false, nil
		}
	}
	return true, nil
}

func (m *memStore) Create(_ context.Context, def metadata.EntityDef, values map[string]any) (int64, error) {
	if m.failOn == def.Collection {
		return 0, apperror.NewDatabase(fmt.Errorf("connection reset"))
	}
	t := m.table(def)
	t.nextID++
	now := time.Now()
	r := Record{ColID: t.nextID, ColActive: true, ColSortOrder: int64(0), ColCreatedAt: now, ColUpdatedAt: now, ColDeletedAt: nil}
	for k, v := range values {
		r[k] = v
	}
	t.rows[t.nextID] = r
	return t.nextID, nil
}

func (m *memStore) Update(_ context.Context, def metadata.EntityDef, id int64, values map[string]any) error {
	r, ok := m.table(def).rows[id]
	if !ok || deleted(r) {
		return apperror.NewNotFound(def.Key, id)
	}
	for k, v := range values {
		r[k] = v
	}
	r[ColUpdatedAt] = time.Now()
	return nil
}

func (m *memStore) SoftDelete(_ context.Context, def metadata.EntityDef, id int64) error {
	r, ok := m.table(def).rows[id]
	if !ok || deleted(r) {
		return apperror.NewNotFound(def.Key, id)
	}
	r[ColDeletedAt] = time.Now()
	return nil
}

func (m *memStore) HardDelete(_ context.Context, def metadata.EntityDef, id int64) error {
	if _, ok := m.table(def).rows[id]; !ok {
		return apperror.NewNotFound(def.Key, id)
	}
	delete(m.table(def).rows, id)
	return nil
}

func (m *memStore) Restore(_ context.Context, def metadata.EntityDef, id int64) error {
	r, ok := m.table(def).rows[id]
	if !ok || !deleted(r) {
		return apperror.NewNotFound(def.Key, id)
	}
	r[ColDeletedAt] = nil
	return nil
}

func (m *memStore) ToggleActive(_ context.Context, def metadata.EntityDef, id int64) (bool, error) {
	r, ok := m.table(def).rows[id]
	if !ok || deleted(r) {
		return false, apperror.NewNotFound(def.Key, id)
	}
	r[ColActive] = !r.Active()
	return r.Active(), nil
}

func (m *memStore) Reorder(_ context.Context, def metadata.EntityDef, order map[int64]int) error {
	t := m.table(def)
	for id := range order {
		if r, ok := t.rows[id]; !ok || deleted(r) {
			return apperror.NewReorderFailed(def.Key)
		}
	}
	for id, pos := range order {
		t.rows[id][ColSortOrder] = int64(pos)
	}
	return nil
}

func (m *memStore) ExportCSV(_ context.Context, def metadata.EntityDef, columns []string, w io.Writer) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = def.FieldLabel(c)
	}
	_ = cw.Write(header)
	for _, r := range m.live(def, ListOptions{}) {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = exportCell(r, c)
		}
		_ = cw.Write(row)
	}
	cw.Flush()
	return cw.Error()
}

// exportCell mirrors the Yes/No rendering of the CSV export.
func exportCell(r Record, col string) string {
	if b, ok := r[col].(bool); ok {
		if b {
			return "Yes"
		}
		return "No"
	}
	return r.String(col)
}

func (m *memStore) DropdownOptions(_ context.Context, def metadata.EntityDef, activeOnly bool) ([]DropdownOption, error) {
	var out []DropdownOption
	for _, r := range m.live(def, ListOptions{ActiveOnly: activeOnly}) {
		out = append(out, DropdownOption{ID: r.ID(), Label: r.String(def.LabelFieldName())})
	}
	return out, nil
}

// inlineTx runs fn directly; the memory store has no transactions.
type inlineTx struct{}

func (inlineTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type auditCall struct {
	entityType string
	id         int64
	action     string
}

type recordingAuditor struct {
	calls []auditCall
}

func (a *recordingAuditor) LogChange(_ context.Context, entityType string, id int64, action string, _ map[string]any) error {
	a.calls = append(a.calls, auditCall{entityType, id, action})
	return nil
}
