package metadata

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/entity_types.yaml
var defaultEntityTypes []byte

var validate = validator.New(validator.WithRequiredStructEnabled())

// Collection and field names end up in SQL as identifiers.
var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// UnmarshalYAML decodes a YAML mapping into Options, keeping declaration order.
func (o *Options) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: options must be a mapping of value to label", node.Line)
	}
	opts := make(Options, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		opts = append(opts, Option{
			Value: node.Content[i].Value,
			Label: node.Content[i+1].Value,
		})
	}
	*o = opts
	return nil
}

// LoadDefault builds the registry from the embedded entity-type file.
func LoadDefault() (*Registry, error) {
	return Load(defaultEntityTypes)
}

// LoadFile builds the registry from a YAML file on disk.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entity types: %w", err)
	}
	return Load(data)
}

// Load parses a YAML mapping of entity-type key to definition and validates
// every definition along with the links between them.
func Load(data []byte) (*Registry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse entity types: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, errors.New("entity types: empty document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("entity types: line %d: expected a mapping of key to definition", root.Line)
	}

	reg := NewRegistry()
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		if _, dup := reg.Get(key); dup {
			return nil, fmt.Errorf("entity type %q declared twice", key)
		}

		var def EntityDef
		if err := root.Content[i+1].Decode(&def); err != nil {
			return nil, fmt.Errorf("entity type %q: %w", key, err)
		}
		def.Key = key

		if err := compile(&def); err != nil {
			return nil, err
		}
		if _, taken := reg.ByCollection(def.Collection); taken {
			return nil, fmt.Errorf("entity type %q: collection %q already registered", key, def.Collection)
		}
		reg.Register(def)
	}

	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// compile checks a single definition and prepares its field patterns.
func compile(def *EntityDef) error {
	if err := validate.Struct(def); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("entity type %q: field %s failed rule %q", def.Key, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("entity type %q: %w", def.Key, err)
	}

	if !identRe.MatchString(def.Collection) {
		return fmt.Errorf("entity type %q: collection %q is not a valid identifier", def.Key, def.Collection)
	}

	seen := make(map[string]bool, len(def.Fields))
	for i := range def.Fields {
		f := &def.Fields[i]
		if !identRe.MatchString(f.Name) {
			return fmt.Errorf("entity type %q: field %q is not a valid identifier", def.Key, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("entity type %q: field %q declared twice", def.Key, f.Name)
		}
		seen[f.Name] = true

		if f.Pattern != "" {
			re, err := regexp.Compile(f.Pattern)
			if err != nil {
				return fmt.Errorf("entity type %q: field %q: bad pattern: %w", def.Key, f.Name, err)
			}
			f.pattern = re
		}
		if f.Type == TypeSelect && len(f.Options) == 0 && f.Foreign == "" {
			return fmt.Errorf("entity type %q: select field %q needs options or foreign", def.Key, f.Name)
		}
		if f.Type != TypeSelect && (len(f.Options) > 0 || f.Foreign != "") {
			return fmt.Errorf("entity type %q: only select fields may declare options or foreign (%q)", def.Key, f.Name)
		}
	}

	label, ok := def.Field(def.LabelFieldName())
	if !ok {
		return fmt.Errorf("entity type %q: label field %q is not declared", def.Key, def.LabelFieldName())
	}
	if !label.isText() {
		return fmt.Errorf("entity type %q: label field %q must be text", def.Key, label.Name)
	}
	for _, name := range def.Searchable {
		f, ok := def.Field(name)
		if !ok {
			return fmt.Errorf("entity type %q: searchable field %q is not declared", def.Key, name)
		}
		if !f.isText() && !(f.Type == TypeSelect && !f.IsForeign()) {
			return fmt.Errorf("entity type %q: searchable field %q must hold text", def.Key, name)
		}
	}
	return nil
}

// Validate checks references between definitions: foreign collections must
// be registered and every hasChildren link must name a child entity type
// that declares the foreign key.
func (r *Registry) Validate() error {
	for _, def := range r.List() {
		for _, f := range def.Fields {
			if f.Foreign == "" {
				continue
			}
			if _, ok := r.ByCollection(f.Foreign); !ok {
				return fmt.Errorf("entity type %q: field %q references unknown collection %q", def.Key, f.Name, f.Foreign)
			}
		}

		if def.HasChildren == nil {
			continue
		}
		child, ok := r.ByCollection(def.HasChildren.Collection)
		if !ok {
			return fmt.Errorf("entity type %q: child collection %q is not registered", def.Key, def.HasChildren.Collection)
		}
		if child.Key == def.Key {
			return fmt.Errorf("entity type %q: cannot be its own child", def.Key)
		}
		if _, ok := child.Field(def.HasChildren.ForeignKey); !ok {
			return fmt.Errorf("entity type %q: foreign key %q is not a field of %q", def.Key, def.HasChildren.ForeignKey, child.Key)
		}
		if parent, dup := r.findParent(child); dup && parent.Key != def.Key {
			return fmt.Errorf("entity type %q: already a child of %q", child.Key, parent.Key)
		}
	}
	return nil
}
