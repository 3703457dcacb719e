package masterdata

import (
	"context"
	"fmt"
	"strconv"

	"catreg/internal/core/apperror"
	"catreg/internal/metadata"
)

// ChildList is the "manage children of parent X" view.
type ChildList struct {
	ParentType string             `json:"parentType"`
	Parent     Record             `json:"parent"`
	ChildType  string             `json:"childType"`
	ForeignKey string             `json:"foreignKey"`
	Records    []Record           `json:"records"`
	Definition metadata.EntityDef `json:"definition"`
}

// childScope is a resolved parent record plus its child entity type.
type childScope struct {
	parent   metadata.EntityDef
	parentID int64
	child    metadata.EntityDef
	fk       string
}

func (c childScope) ref() ParentRef {
	return ParentRef{ParentType: c.parent.Key, ParentID: c.parentID}
}

func (s *Service) scope(ctx context.Context, parentKey string, parentID int64) (childScope, Record, error) {
	parent, err := s.Resolve(parentKey)
	if err != nil {
		return childScope{}, nil, err
	}
	child, fk, ok := s.registry.ChildrenOf(parentKey)
	if !ok {
		return childScope{}, nil, apperror.NewInvalidInput(fmt.Sprintf("%s has no child records", parentKey))
	}
	rec, err := s.store.Get(ctx, parent, parentID)
	if err != nil {
		return childScope{}, nil, err
	}
	return childScope{parent: parent, parentID: parentID, child: child, fk: fk}, rec, nil
}

// belongs loads a child and checks that it hangs off the scoped parent.
// A child of another parent is reported as not found.
func (s *Service) belongs(ctx context.Context, sc childScope, childID int64) (Record, error) {
	rec, err := s.store.Get(ctx, sc.child, childID)
	if err != nil {
		return nil, err
	}
	if pid, ok := ToInt64(rec[sc.fk]); !ok || pid != sc.parentID {
		return nil, apperror.NewNotFound(sc.child.Key, childID)
	}
	return rec, nil
}

// ListChildren returns the children of one parent record.
func (s *Service) ListChildren(ctx context.Context, parentKey string, parentID int64, activeOnly bool) (ChildList, error) {
	sc, parent, err := s.scope(ctx, parentKey, parentID)
	if err != nil {
		return ChildList{}, err
	}
	recs, err := s.store.List(ctx, sc.child, ListOptions{
		ActiveOnly: activeOnly,
		Where:      map[string]any{sc.fk: parentID},
	})
	if err != nil {
		return ChildList{}, err
	}
	return ChildList{
		ParentType: sc.parent.Key,
		Parent:     parent,
		ChildType:  sc.child.Key,
		ForeignKey: sc.fk,
		Records:    recs,
		Definition: sc.child,
	}, nil
}

// CreateChild creates a child with its foreign key forced to the parent.
func (s *Service) CreateChild(ctx context.Context, parentKey string, parentID int64, input Input) (int64, ParentRef, error) {
	sc, _, err := s.scope(ctx, parentKey, parentID)
	if err != nil {
		return 0, ParentRef{}, err
	}
	id, err := s.create(ctx, sc.child, withParent(input, sc))
	if err != nil {
		return 0, ParentRef{}, err
	}
	return id, sc.ref(), nil
}

func (s *Service) UpdateChild(ctx context.Context, parentKey string, parentID, childID int64, input Input) (ParentRef, error) {
	sc, _, err := s.scope(ctx, parentKey, parentID)
	if err != nil {
		return ParentRef{}, err
	}
	if _, err := s.belongs(ctx, sc, childID); err != nil {
		return ParentRef{}, err
	}
	if err := s.update(ctx, sc.child, childID, withParent(input, sc)); err != nil {
		return ParentRef{}, err
	}
	return sc.ref(), nil
}

// DeleteChild soft-deletes a child, or removes the row when hard is set.
func (s *Service) DeleteChild(ctx context.Context, parentKey string, parentID, childID int64, hard bool) (ParentRef, error) {
	sc, _, err := s.scope(ctx, parentKey, parentID)
	if err != nil {
		return ParentRef{}, err
	}
	if _, err := s.belongs(ctx, sc, childID); err != nil {
		return ParentRef{}, err
	}
	if err := s.ensureNoChildren(ctx, sc.child, childID); err != nil {
		return ParentRef{}, err
	}

	action, op := ActionDelete, s.store.SoftDelete
	if hard {
		action, op = ActionHardDelete, s.store.HardDelete
	}
	err = s.mutate(ctx, sc.child, childID, action, func(ctx context.Context) error {
		return op(ctx, sc.child, childID)
	})
	if err != nil {
		return ParentRef{}, err
	}
	return sc.ref(), nil
}

func (s *Service) ToggleChild(ctx context.Context, parentKey string, parentID, childID int64) (bool, ParentRef, error) {
	sc, _, err := s.scope(ctx, parentKey, parentID)
	if err != nil {
		return false, ParentRef{}, err
	}
	if _, err := s.belongs(ctx, sc, childID); err != nil {
		return false, ParentRef{}, err
	}
	active, err := s.toggle(ctx, sc.child, childID)
	if err != nil {
		return false, ParentRef{}, err
	}
	return active, sc.ref(), nil
}

// ReorderChildren reorders children of one parent. Ids outside the parent
// fail the whole batch.
func (s *Service) ReorderChildren(ctx context.Context, parentKey string, parentID int64, order map[int64]int) (ParentRef, error) {
	sc, _, err := s.scope(ctx, parentKey, parentID)
	if err != nil {
		return ParentRef{}, err
	}
	if !sc.child.Sortable {
		return ParentRef{}, apperror.NewNotSortable(sc.child.Key)
	}

	recs, err := s.store.List(ctx, sc.child, ListOptions{Where: map[string]any{sc.fk: parentID}})
	if err != nil {
		return ParentRef{}, err
	}
	owned := make(map[int64]bool, len(recs))
	for _, r := range recs {
		owned[r.ID()] = true
	}
	for id := range order {
		if !owned[id] {
			return ParentRef{}, apperror.NewReorderFailed(sc.child.Key).WithDetail("id", id)
		}
	}

	if err := s.reorder(ctx, sc.child, order); err != nil {
		return ParentRef{}, err
	}
	return sc.ref(), nil
}

// ParentOf resolves where to send the user after touching a child record.
func (s *Service) ParentOf(ctx context.Context, childKey string, childID int64) (ParentRef, bool, error) {
	parentKey, ok := s.registry.FindParentType(childKey)
	if !ok {
		return ParentRef{}, false, nil
	}
	fk, _ := s.registry.FindParentForeignKey(childKey)

	def, err := s.Resolve(childKey)
	if err != nil {
		return ParentRef{}, false, err
	}
	rec, err := s.store.Get(ctx, def, childID)
	if err != nil {
		return ParentRef{}, false, err
	}
	pid, ok := ToInt64(rec[fk])
	if !ok {
		return ParentRef{}, false, nil
	}
	return ParentRef{ParentType: parentKey, ParentID: pid}, true, nil
}

func withParent(input Input, sc childScope) Input {
	out := make(Input, len(input)+1)
	for k, v := range input {
		out[k] = v
	}
	out[sc.fk] = strconv.FormatInt(sc.parentID, 10)
	return out
}
