package v1

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"catreg/internal/core/apperror"
	appctx "catreg/internal/core/context"
	"catreg/internal/domain/masterdata"
	"catreg/internal/metadata"
)

// fakeStore keeps rows per collection in memory, ordered by id.
type fakeStore struct {
	rows   map[string]map[int64]masterdata.Record
	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]map[int64]masterdata.Record)}
}

func (s *fakeStore) table(def metadata.EntityDef) map[int64]masterdata.Record {
	t, ok := s.rows[def.Collection]
	if !ok {
		t = make(map[int64]masterdata.Record)
		s.rows[def.Collection] = t
	}
	return t
}

func (s *fakeStore) live(def metadata.EntityDef, opts masterdata.ListOptions) []masterdata.Record {
	var out []masterdata.Record
	for _, r := range s.table(def) {
		if r[masterdata.ColDeletedAt] != nil || (opts.ActiveOnly && !r.Active()) {
			continue
		}
		keep := true
		for col, want := range opts.Where {
			if fmt.Sprint(r[col]) != fmt.Sprint(want) {
				keep = false
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (s *fakeStore) get(def metadata.EntityDef, id int64) (masterdata.Record, error) {
	r, ok := s.table(def)[id]
	if !ok || r[masterdata.ColDeletedAt] != nil {
		return nil, apperror.NewNotFound(def.Key, id)
	}
	return r, nil
}

func (s *fakeStore) List(_ context.Context, def metadata.EntityDef, opts masterdata.ListOptions) ([]masterdata.Record, error) {
	return s.live(def, opts), nil
}

func (s *fakeStore) Paginate(_ context.Context, def metadata.EntityDef, q masterdata.PageQuery) (masterdata.Page, error) {
	recs := s.live(def, masterdata.ListOptions{})
	return masterdata.NewPage(recs, int64(len(recs)), q.Page, q.PageSize), nil
}

func (s *fakeStore) Count(_ context.Context, def metadata.EntityDef, opts masterdata.ListOptions) (int64, error) {
	return int64(len(s.live(def, opts))), nil
}

func (s *fakeStore) Get(_ context.Context, def metadata.EntityDef, id int64) (masterdata.Record, error) {
	return s.get(def, id)
}

func (s *fakeStore) FindByCode(_ context.Context, def metadata.EntityDef, code string) (masterdata.Record, error) {
	return nil, apperror.NewNotFound(def.Key, code)
}

func (s *fakeStore) IsUnique(_ context.Context, def metadata.EntityDef, field string, value any, excludeID *int64) (bool, error) {
	for _, r := range s.live(def, masterdata.ListOptions{}) {
		if excludeID != nil && r.ID() == *excludeID {
			continue
		}
		if fmt.Sprint(r[field]) == fmt.Sprint(value) {
			return false, nil
		}
	}
	return true, nil
}

func (s *fakeStore) Create(_ context.Context, def metadata.EntityDef, values map[string]any) (int64, error) {
	s.nextID++
	r := masterdata.Record{masterdata.ColID: s.nextID, masterdata.ColActive: true, masterdata.ColDeletedAt: nil}
	for k, v := range values {
		r[k] = v
	}
	s.table(def)[s.nextID] = r
	return s.nextID, nil
}

func (s *fakeStore) Update(_ context.Context, def metadata.EntityDef, id int64, values map[string]any) error {
	r, err := s.get(def, id)
	if err != nil {
		return err
	}
	for k, v := range values {
		r[k] = v
	}
	return nil
}

func (s *fakeStore) SoftDelete(_ context.Context, def metadata.EntityDef, id int64) error {
	r, err := s.get(def, id)
	if err != nil {
		return err
	}
	r[masterdata.ColDeletedAt] = "now"
	return nil
}

func (s *fakeStore) HardDelete(_ context.Context, def metadata.EntityDef, id int64) error {
	delete(s.table(def), id)
	return nil
}

func (s *fakeStore) Restore(_ context.Context, def metadata.EntityDef, id int64) error {
	r, ok := s.table(def)[id]
	if !ok || r[masterdata.ColDeletedAt] == nil {
		return apperror.NewNotFound(def.Key, id)
	}
	r[masterdata.ColDeletedAt] = nil
	return nil
}

func (s *fakeStore) ToggleActive(_ context.Context, def metadata.EntityDef, id int64) (bool, error) {
	r, err := s.get(def, id)
	if err != nil {
		return false, err
	}
	r[masterdata.ColActive] = !r.Active()
	return r.Active(), nil
}

func (s *fakeStore) Reorder(_ context.Context, def metadata.EntityDef, order map[int64]int) error {
	for id := range order {
		if _, err := s.get(def, id); err != nil {
			return apperror.NewReorderFailed(def.Key)
		}
	}
	for id, pos := range order {
		s.table(def)[id][masterdata.ColSortOrder] = int64(pos)
	}
	return nil
}

func (s *fakeStore) ExportCSV(_ context.Context, def metadata.EntityDef, columns []string, w io.Writer) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = def.FieldLabel(c)
	}
	_ = cw.Write(header)
	for _, r := range s.live(def, masterdata.ListOptions{}) {
		row := make([]string, len(columns))
		for i, c := range columns {
			if b, ok := r[c].(bool); ok {
				row[i] = map[bool]string{true: "Yes", false: "No"}[b]
				continue
			}
			row[i] = r.String(c)
		}
		_ = cw.Write(row)
	}
	cw.Flush()
	return cw.Error()
}

func (s *fakeStore) DropdownOptions(_ context.Context, def metadata.EntityDef, activeOnly bool) ([]masterdata.DropdownOption, error) {
	var out []masterdata.DropdownOption
	for _, r := range s.live(def, masterdata.ListOptions{ActiveOnly: activeOnly}) {
		out = append(out, masterdata.DropdownOption{ID: r.ID(), Label: r.String(def.LabelFieldName())})
	}
	return out, nil
}

type inlineTx struct{}

func (inlineTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// staticTokens maps bearer tokens straight to users.
type staticTokens map[string]*appctx.UserContext

func (s staticTokens) ValidateToken(token string) (*appctx.UserContext, error) {
	if u, ok := s[token]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("unknown token")
}
