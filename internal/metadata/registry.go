// Package metadata holds the entity-type definitions that drive the
// master-data engine. Definitions are loaded once at startup and are
// read-only afterwards, so a Registry is safe for concurrent readers.
package metadata

import (
	"regexp"
	"strings"

	"catreg/internal/core/apperror"
)

// FieldType defines the input type of a field.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeTextarea FieldType = "textarea"
	TypeNumber   FieldType = "number"
	TypeSelect   FieldType = "select"
	TypeCheckbox FieldType = "checkbox"
)

// DefaultLabelField is used when a definition does not name its label field.
const DefaultLabelField = "name"

// Option is one entry of a static enumeration.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Options is an ordered value → label enumeration.
type Options []Option

// Has reports whether value is one of the declared keys.
func (o Options) Has(value string) bool {
	for _, opt := range o {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// FieldDef describes a field.
type FieldDef struct {
	Name     string    `yaml:"name" json:"name" validate:"required"`
	Label    string    `yaml:"label" json:"label"`
	Type     FieldType `yaml:"type" json:"type" validate:"required,oneof=text textarea number select checkbox"`
	Required bool      `yaml:"required" json:"required,omitempty"`
	Unique   bool      `yaml:"unique" json:"unique,omitempty"`
	Pattern  string    `yaml:"pattern" json:"pattern,omitempty"`
	Default  *string   `yaml:"default" json:"default,omitempty"`
	// Foreign names the backing collection whose active records populate this select.
	Foreign string  `yaml:"foreign" json:"foreign,omitempty"`
	Options Options `yaml:"options" json:"options,omitempty"`

	pattern *regexp.Regexp
}

// DisplayLabel returns Label, falling back to a humanized field name.
func (f FieldDef) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return humanize(f.Name)
}

// Regexp returns the compiled pattern, or nil if none was declared.
func (f FieldDef) Regexp() *regexp.Regexp {
	return f.pattern
}

func (f FieldDef) isText() bool {
	return f.Type == TypeText || f.Type == TypeTextarea
}

// IsForeign reports whether the field references another entity type.
func (f FieldDef) IsForeign() bool {
	return f.Foreign != ""
}

// ChildLink describes a parent → child relationship.
type ChildLink struct {
	Collection string `yaml:"collection" json:"collection" validate:"required"`
	ForeignKey string `yaml:"foreignKey" json:"foreignKey" validate:"required"`
}

// EntityDef describes one lookup entity type.
type EntityDef struct {
	Key         string     `yaml:"-" json:"key"`
	Collection  string     `yaml:"collection" json:"collection" validate:"required"`
	Label       string     `yaml:"label" json:"label"`
	LabelField  string     `yaml:"labelField" json:"labelField"`
	Fields      []FieldDef `yaml:"fields" json:"fields" validate:"required,min=1,dive"`
	Searchable  []string   `yaml:"searchable" json:"searchable,omitempty"`
	Sortable    bool       `yaml:"sortable" json:"sortable"`
	Exportable  bool       `yaml:"exportable" json:"exportable"`
	HasChildren *ChildLink `yaml:"hasChildren" json:"hasChildren,omitempty"`
}

// Field returns the field definition by name.
func (d EntityDef) Field(name string) (FieldDef, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// LabelFieldName returns the field used for display and secondary ordering.
func (d EntityDef) LabelFieldName() string {
	if d.LabelField != "" {
		return d.LabelField
	}
	return DefaultLabelField
}

// SearchFields returns the searchable fields, defaulting to the label field.
func (d EntityDef) SearchFields() []string {
	if len(d.Searchable) > 0 {
		return d.Searchable
	}
	return []string{d.LabelFieldName()}
}

// FieldLabel returns the display label of a field, or a humanized name for
// system columns that are not declared fields.
func (d EntityDef) FieldLabel(name string) string {
	if f, ok := d.Field(name); ok {
		return f.DisplayLabel()
	}
	return humanize(name)
}

// Registry stores entity definitions keyed by entity-type key.
type Registry struct {
	entities     map[string]EntityDef
	byCollection map[string]string
	order        []string
}

func NewRegistry() *Registry {
	return &Registry{
		entities:     make(map[string]EntityDef),
		byCollection: make(map[string]string),
	}
}

// Register adds a definition. Later registrations of the same key replace
// the earlier one but keep its position.
func (r *Registry) Register(def EntityDef) {
	if old, ok := r.entities[def.Key]; ok {
		delete(r.byCollection, old.Collection)
	} else {
		r.order = append(r.order, def.Key)
	}
	r.entities[def.Key] = def
	r.byCollection[def.Collection] = def.Key
}

// Resolve returns the definition for key or an UNKNOWN_ENTITY_TYPE error.
func (r *Registry) Resolve(key string) (EntityDef, error) {
	if def, ok := r.entities[key]; ok {
		return def, nil
	}
	return EntityDef{}, apperror.NewUnknownEntityType(key)
}

func (r *Registry) Get(key string) (EntityDef, bool) {
	d, ok := r.entities[key]
	return d, ok
}

// ByCollection finds the definition backed by the given collection.
func (r *Registry) ByCollection(collection string) (EntityDef, bool) {
	key, ok := r.byCollection[collection]
	if !ok {
		return EntityDef{}, false
	}
	return r.entities[key], true
}

// List returns definitions in registration order.
func (r *Registry) List() []EntityDef {
	list := make([]EntityDef, 0, len(r.order))
	for _, key := range r.order {
		list = append(list, r.entities[key])
	}
	return list
}

// Len returns the number of registered entity types.
func (r *Registry) Len() int {
	return len(r.order)
}

func humanize(name string) string {
	s := strings.ReplaceAll(name, "_", " ")
	s = strings.TrimSuffix(s, " id")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
