package metadata

// Parent/child links are declared only on the parent (hasChildren). The
// child side is recovered by scanning definitions, so there is no reverse
// table to keep in sync.

// findParent returns the first definition whose hasChildren collection is
// the child's backing collection.
func (r *Registry) findParent(child EntityDef) (EntityDef, bool) {
	for _, key := range r.order {
		def := r.entities[key]
		if def.HasChildren != nil && def.HasChildren.Collection == child.Collection {
			return def, true
		}
	}
	return EntityDef{}, false
}

// FindParentType returns the entity-type key that declares childKey as its children.
func (r *Registry) FindParentType(childKey string) (string, bool) {
	child, ok := r.entities[childKey]
	if !ok {
		return "", false
	}
	parent, ok := r.findParent(child)
	if !ok {
		return "", false
	}
	return parent.Key, true
}

// FindParentForeignKey returns the child field that points at the parent.
func (r *Registry) FindParentForeignKey(childKey string) (string, bool) {
	child, ok := r.entities[childKey]
	if !ok {
		return "", false
	}
	parent, ok := r.findParent(child)
	if !ok {
		return "", false
	}
	return parent.HasChildren.ForeignKey, true
}

// ChildrenOf returns the child definition and the connecting foreign key
// for a parent entity type.
func (r *Registry) ChildrenOf(parentKey string) (EntityDef, string, bool) {
	parent, ok := r.entities[parentKey]
	if !ok || parent.HasChildren == nil {
		return EntityDef{}, "", false
	}
	child, ok := r.ByCollection(parent.HasChildren.Collection)
	if !ok {
		return EntityDef{}, "", false
	}
	return child, parent.HasChildren.ForeignKey, true
}
