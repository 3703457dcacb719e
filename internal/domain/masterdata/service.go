package masterdata

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"

	"catreg/internal/core/apperror"
	"catreg/internal/core/tx"
	"catreg/internal/metadata"
	"catreg/pkg/logger"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// ServiceConfig configures the master-data service.
type ServiceConfig struct {
	Registry  *metadata.Registry
	Store     Store
	TxManager tx.Manager
	Auditor   Auditor // Optional

	DefaultPageSize int
	MaxPageSize     int
}

// Service routes entity-type keyed operations to the store, validating input
// and enforcing hierarchy rules on the way.
type Service struct {
	registry  *metadata.Registry
	store     Store
	txManager tx.Manager
	auditor   Auditor
	validator *Validator

	defaultPageSize int
	maxPageSize     int
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		registry:        cfg.Registry,
		store:           cfg.Store,
		txManager:       cfg.TxManager,
		auditor:         cfg.Auditor,
		validator:       NewValidator(cfg.Store),
		defaultPageSize: cfg.DefaultPageSize,
		maxPageSize:     cfg.MaxPageSize,
	}
	if s.defaultPageSize <= 0 {
		s.defaultPageSize = DefaultPageSize
	}
	if s.maxPageSize <= 0 {
		s.maxPageSize = MaxPageSize
	}
	return s
}

// Registry exposes the schema registry to the orchestrator.
func (s *Service) Registry() *metadata.Registry {
	return s.registry
}

// Resolve returns the definition for key or UNKNOWN_ENTITY_TYPE.
func (s *Service) Resolve(key string) (metadata.EntityDef, error) {
	return s.registry.Resolve(key)
}

func (s *Service) List(ctx context.Context, key string, activeOnly bool) ([]Record, error) {
	def, err := s.Resolve(key)
	if err != nil {
		return nil, err
	}
	return s.store.List(ctx, def, ListOptions{ActiveOnly: activeOnly})
}

// Paginate returns one page of records matching search across the
// entity's searchable fields. Page size is clamped to the configured max.
func (s *Service) Paginate(ctx context.Context, key string, page, pageSize int, search string) (Page, error) {
	def, err := s.Resolve(key)
	if err != nil {
		return Page{}, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.defaultPageSize
	}
	if pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}
	return s.store.Paginate(ctx, def, PageQuery{
		Page:         page,
		PageSize:     pageSize,
		Search:       search,
		SearchFields: def.SearchFields(),
	})
}

func (s *Service) Count(ctx context.Context, key string, activeOnly bool) (int64, error) {
	def, err := s.Resolve(key)
	if err != nil {
		return 0, err
	}
	return s.store.Count(ctx, def, ListOptions{ActiveOnly: activeOnly})
}

func (s *Service) Get(ctx context.Context, key string, id int64) (Record, error) {
	def, err := s.Resolve(key)
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, def, id)
}

func (s *Service) FindByCode(ctx context.Context, key, code string) (Record, error) {
	def, err := s.Resolve(key)
	if err != nil {
		return nil, err
	}
	return s.store.FindByCode(ctx, def, code)
}

// Validate runs the field validator without persisting anything.
func (s *Service) Validate(ctx context.Context, key string, input Input, excludeID *int64) (Result, error) {
	def, err := s.Resolve(key)
	if err != nil {
		return Result{}, err
	}
	return s.validator.Validate(ctx, def, input, excludeID)
}

// Create validates input and inserts a new record.
func (s *Service) Create(ctx context.Context, key string, input Input) (int64, error) {
	def, err := s.Resolve(key)
	if err != nil {
		return 0, err
	}
	return s.create(ctx, def, input)
}

func (s *Service) create(ctx context.Context, def metadata.EntityDef, input Input) (int64, error) {
	values, err := s.validated(ctx, def, input, nil)
	if err != nil {
		return 0, err
	}

	newID, err := s.createValues(ctx, def, values)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", def.Key, err)
	}

	logger.Debug(ctx, "masterdata record created", "type", def.Key, "id", newID)
	return newID, nil
}

// Update validates input and overwrites the record's fields.
func (s *Service) Update(ctx context.Context, key string, id int64, input Input) error {
	def, err := s.Resolve(key)
	if err != nil {
		return err
	}
	return s.update(ctx, def, id, input)
}

func (s *Service) update(ctx context.Context, def metadata.EntityDef, id int64, input Input) error {
	before, err := s.store.Get(ctx, def, id)
	if err != nil {
		return err
	}

	values, err := s.validated(ctx, def, input, &id)
	if err != nil {
		return err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Update(ctx, def, id, values); err != nil {
			return fmt.Errorf("update %s: %w", def.Key, err)
		}
		return s.audit(ctx, def, id, ActionUpdate, diff(before, values))
	})
	if err != nil {
		return err
	}

	logger.Debug(ctx, "masterdata record updated", "type", def.Key, "id", id)
	return nil
}

// Delete soft-deletes a record. Parents with live children are refused.
func (s *Service) Delete(ctx context.Context, key string, id int64) error {
	def, err := s.Resolve(key)
	if err != nil {
		return err
	}
	if _, err := s.store.Get(ctx, def, id); err != nil {
		return err
	}
	if err := s.ensureNoChildren(ctx, def, id); err != nil {
		return err
	}
	return s.mutate(ctx, def, id, ActionDelete, func(ctx context.Context) error {
		return s.store.SoftDelete(ctx, def, id)
	})
}

// Restore clears the soft-delete marker.
func (s *Service) Restore(ctx context.Context, key string, id int64) error {
	def, err := s.Resolve(key)
	if err != nil {
		return err
	}
	return s.mutate(ctx, def, id, ActionRestore, func(ctx context.Context) error {
		return s.store.Restore(ctx, def, id)
	})
}

// ToggleActive flips the active flag and returns the new value.
func (s *Service) ToggleActive(ctx context.Context, key string, id int64) (bool, error) {
	def, err := s.Resolve(key)
	if err != nil {
		return false, err
	}
	return s.toggle(ctx, def, id)
}

func (s *Service) toggle(ctx context.Context, def metadata.EntityDef, id int64) (bool, error) {
	var active bool
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		v, err := s.store.ToggleActive(ctx, def, id)
		if err != nil {
			return err
		}
		active = v
		return s.audit(ctx, def, id, ActionToggle, map[string]any{ColActive: v})
	})
	return active, err
}

// Reorder applies a batch of id → position pairs atomically.
func (s *Service) Reorder(ctx context.Context, key string, order map[int64]int) error {
	def, err := s.Resolve(key)
	if err != nil {
		return err
	}
	return s.reorder(ctx, def, order)
}

func (s *Service) reorder(ctx context.Context, def metadata.EntityDef, order map[int64]int) error {
	if !def.Sortable {
		return apperror.NewNotSortable(def.Key)
	}
	if len(order) == 0 {
		return apperror.NewInvalidInput("order must not be empty")
	}
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.Reorder(ctx, def, order); err != nil {
			return err
		}
		changes := make(map[string]any, len(order))
		for id, pos := range order {
			changes[strconv.FormatInt(id, 10)] = pos
		}
		return s.audit(ctx, def, 0, ActionReorder, changes)
	})
}

// Export writes the requested columns as CSV. With no columns the label
// field and the active flag are exported.
func (s *Service) Export(ctx context.Context, key string, columns []string, w io.Writer) error {
	def, err := s.Resolve(key)
	if err != nil {
		return err
	}
	if !def.Exportable {
		return apperror.NewExportNotSupported(def.Key)
	}
	if len(columns) == 0 {
		columns = []string{def.LabelFieldName(), ColActive}
	}
	for _, col := range columns {
		if _, ok := def.Field(col); !ok && !slices.Contains(SystemColumns, col) {
			return apperror.NewInvalidInput(fmt.Sprintf("unknown export column %q", col))
		}
	}
	return s.store.ExportCSV(ctx, def, columns, w)
}

func (s *Service) DropdownOptions(ctx context.Context, key string, activeOnly bool) ([]DropdownOption, error) {
	def, err := s.Resolve(key)
	if err != nil {
		return nil, err
	}
	return s.store.DropdownOptions(ctx, def, activeOnly)
}

// FormOptions resolves the choices of every select field: static options
// as declared, foreign ones from the referenced entity's active records.
func (s *Service) FormOptions(ctx context.Context, key string) (map[string]metadata.Options, error) {
	def, err := s.Resolve(key)
	if err != nil {
		return nil, err
	}

	out := make(map[string]metadata.Options)
	for _, f := range def.Fields {
		if f.Type != metadata.TypeSelect {
			continue
		}
		if !f.IsForeign() {
			out[f.Name] = f.Options
			continue
		}
		ref, ok := s.registry.ByCollection(f.Foreign)
		if !ok {
			return nil, apperror.NewInternal(fmt.Errorf("field %s.%s: foreign collection %q not registered", def.Key, f.Name, f.Foreign))
		}
		opts, err := s.store.DropdownOptions(ctx, ref, true)
		if err != nil {
			return nil, err
		}
		list := make(metadata.Options, 0, len(opts))
		for _, o := range opts {
			list = append(list, metadata.Option{Value: strconv.FormatInt(o.ID, 10), Label: o.Label})
		}
		out[f.Name] = list
	}
	return out, nil
}

// QuickAddResult is returned by QuickAdd.
type QuickAddResult struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// QuickAdd creates a record from its label alone plus, for child entity
// types, the parent reference. Other fields take their defaults.
func (s *Service) QuickAdd(ctx context.Context, key, name string, parentID *int64) (QuickAddResult, error) {
	def, err := s.Resolve(key)
	if err != nil {
		return QuickAddResult{}, err
	}

	labelField := def.LabelFieldName()
	input := Input{labelField: name}
	if fk, ok := s.registry.FindParentForeignKey(key); ok {
		if parentID == nil {
			return QuickAddResult{}, apperror.NewValidation("Validation failed",
				apperror.FieldError{Field: fk, Message: def.FieldLabel(fk) + " is required"})
		}
		input[fk] = strconv.FormatInt(*parentID, 10)
	}

	res, err := s.validator.Validate(ctx, def, input, nil)
	if err != nil {
		return QuickAddResult{}, err
	}
	if !res.OK() {
		for _, fe := range res.Errors {
			if fe.Field == labelField && fe.Message == apperror.DuplicateMessage(def.FieldLabel(labelField)) {
				return QuickAddResult{}, apperror.NewDuplicate(def.Key, labelField, def.FieldLabel(labelField))
			}
		}
		return QuickAddResult{}, apperror.NewValidation("Validation failed", res.Errors...)
	}

	id, err := s.createValues(ctx, def, res.Values)
	if err != nil {
		return QuickAddResult{}, err
	}
	label, _ := res.Values[labelField].(string)
	return QuickAddResult{ID: id, Label: label}, nil
}

func (s *Service) createValues(ctx context.Context, def metadata.EntityDef, values map[string]any) (int64, error) {
	var newID int64
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		id, err := s.store.Create(ctx, def, values)
		if err != nil {
			return err
		}
		newID = id
		return s.audit(ctx, def, id, ActionCreate, values)
	})
	return newID, err
}

// validated runs the validator and turns field errors into VALIDATION_ERROR.
func (s *Service) validated(ctx context.Context, def metadata.EntityDef, input Input, excludeID *int64) (map[string]any, error) {
	res, err := s.validator.Validate(ctx, def, input, excludeID)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, apperror.NewValidation("Validation failed", res.Errors...).WithDetail("entity", def.Key)
	}
	return res.Values, nil
}

func (s *Service) ensureNoChildren(ctx context.Context, def metadata.EntityDef, id int64) error {
	child, fk, ok := s.registry.ChildrenOf(def.Key)
	if !ok {
		return nil
	}
	n, err := s.store.Count(ctx, child, ListOptions{Where: map[string]any{fk: id}})
	if err != nil {
		return err
	}
	if n > 0 {
		return apperror.NewParentHasChildren(def.Key, id).WithDetail("children", n)
	}
	return nil
}

func (s *Service) mutate(ctx context.Context, def metadata.EntityDef, id int64, action string, fn func(ctx context.Context) error) error {
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return err
		}
		return s.audit(ctx, def, id, action, nil)
	})
	if err != nil {
		return err
	}
	logger.Debug(ctx, "masterdata record changed", "type", def.Key, "id", id, "action", action)
	return nil
}

func (s *Service) audit(ctx context.Context, def metadata.EntityDef, id int64, action string, changes map[string]any) error {
	if s.auditor == nil {
		return nil
	}
	if err := s.auditor.LogChange(ctx, def.Key, id, action, changes); err != nil {
		return fmt.Errorf("audit %s %s: %w", action, def.Key, err)
	}
	return nil
}

// diff keeps only the submitted values that differ from the stored record.
func diff(before Record, after map[string]any) map[string]any {
	changes := make(map[string]any)
	for k, v := range after {
		old := before[k]
		if fmt.Sprint(old) != fmt.Sprint(v) {
			changes[k] = map[string]any{"old": old, "new": v}
		}
	}
	return changes
}
