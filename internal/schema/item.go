package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/schemasync/internal/ir"
)

// Kind distinguishes models (record types) from blocks (modular content).
type Kind string

const (
	KindModel Kind = "model"
	KindBlock Kind = "block"
)

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindModel, KindBlock:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown item kind %q: must be %q or %q", s, KindModel, KindBlock)
}

// Key returns the cache and task key "<kind>:<name>".
func Key(kind Kind, name string) string {
	return string(kind) + ":" + name
}

// ItemDefinition is the immutable desired state of one item type.
type ItemDefinition struct {
	Kind   Kind
	Name   string
	APIKey string
	Config ir.IRObject
	Fields []FieldDefinition
}

// Key returns Key(d.Kind, d.Name).
func (d *ItemDefinition) Key() string {
	return Key(d.Kind, d.Name)
}

// Body is the item type payload for create/update.
func (d *ItemDefinition) Body() ir.IRObject {
	body := d.Config.Clone()
	if body == nil {
		body = ir.IRObject{}
	}
	body["name"] = ir.IRString(d.Name)
	body["api_key"] = ir.IRString(d.APIKey)
	body["modular_block"] = ir.IRBool(d.Kind == KindBlock)
	return body
}

// Field returns the field with apiKey.
func (d *ItemDefinition) Field(apiKey string) (FieldDefinition, bool) {
	for _, f := range d.Fields {
		if f.APIKey == apiKey {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// Document is the canonical desired state hashed for change detection.
// Fields are sorted by api key so declaration order never matters, and
// naming is included because it alters remote api keys.
func (d *ItemDefinition) Document(naming Naming) ir.IRObject {
	sorted := slices.Clone(d.Fields)
	slices.SortFunc(sorted, func(a, b FieldDefinition) int {
		return strings.Compare(a.APIKey, b.APIKey)
	})

	fields := make(ir.IRArray, len(sorted))
	for i, f := range sorted {
		fields[i] = f.Document()
	}

	return ir.IRObject{
		"version": ir.IRString(ir.DocumentVersion),
		"kind":    ir.IRString(string(d.Kind)),
		"body":    d.Body(),
		"fields":  fields,
		"naming": ir.IRObject{
			"api_key_suffix": ir.IRString(naming.APIKeySuffix),
			"block_suffix":   ir.IRString(naming.blockSuffix()),
		},
	}
}

// Fingerprint hashes Document(naming).
func (d *ItemDefinition) Fingerprint(naming Naming) (string, error) {
	fp, err := ir.Fingerprint(d.Document(naming))
	if err != nil {
		return "", fmt.Errorf("item %s: %w", d.Key(), err)
	}
	return fp, nil
}

// ItemBuilder assembles an ItemDefinition.
type ItemBuilder struct {
	def    ItemDefinition
	naming Naming
	errs   []error
}

// ItemOption configures an ItemBuilder.
type ItemOption func(*ItemBuilder)

// WithAPIKey overrides the derived item api key.
func WithAPIKey(key string) ItemOption {
	return func(b *ItemBuilder) {
		b.def.APIKey = key
	}
}

// WithNaming sets the naming policy used to derive the api key.
func WithNaming(n Naming) ItemOption {
	return func(b *ItemBuilder) {
		b.naming = n
	}
}

// WithConfig sets extra item type attributes (hint, sortable, ...).
// name, api_key and modular_block are owned by the builder and ignored.
func WithConfig(cfg ir.IRObject) ItemOption {
	return func(b *ItemBuilder) {
		c := cfg.Clone()
		delete(c, "name")
		delete(c, "api_key")
		delete(c, "modular_block")
		b.def.Config = c
	}
}

// NewItem starts an item of kind named name.
func NewItem(kind Kind, name string, opts ...ItemOption) *ItemBuilder {
	b := &ItemBuilder{def: ItemDefinition{Kind: kind, Name: name, Config: ir.IRObject{}}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewModel is NewItem(KindModel, ...).
func NewModel(name string, opts ...ItemOption) *ItemBuilder {
	return NewItem(KindModel, name, opts...)
}

// NewBlock is NewItem(KindBlock, ...).
func NewBlock(name string, opts ...ItemOption) *ItemBuilder {
	return NewItem(KindBlock, name, opts...)
}

// AddField appends f; its position is its declaration index.
func (b *ItemBuilder) AddField(f Field) *ItemBuilder {
	for _, err := range f.errs {
		b.errs = append(b.errs, scoped(err, b.def.Name, f.def.APIKey))
	}
	def := f.def
	def.Position = len(b.def.Fields) + 1
	b.def.Fields = append(b.def.Fields, def)
	return b
}

// AddFields appends each field in order.
func (b *ItemBuilder) AddFields(fs ...Field) *ItemBuilder {
	for _, f := range fs {
		b.AddField(f)
	}
	return b
}

// Build validates and returns the definition. All collected validation
// errors are joined.
func (b *ItemBuilder) Build() (*ItemDefinition, error) {
	errs := slices.Clone(b.errs)

	if _, err := ParseKind(string(b.def.Kind)); err != nil {
		errs = append(errs, &ValidationError{Item: b.def.Name, Message: err.Error()})
	}
	if strings.TrimSpace(b.def.Name) == "" {
		errs = append(errs, &ValidationError{Message: "item name is required"})
	}

	def := b.def
	if def.APIKey == "" && strings.TrimSpace(def.Name) != "" {
		key, err := b.naming.ItemAPIKey(def.Kind, def.Name)
		if err != nil {
			errs = append(errs, scoped(err, def.Name, ""))
		}
		def.APIKey = key
	} else if def.APIKey != "" && !ValidAPIKey(def.APIKey) {
		errs = append(errs, &ValidationError{Item: def.Name, Message: fmt.Sprintf("api key %q must be lowercase snake_case starting with a letter", def.APIKey)})
	}

	seen := make(map[string]bool, len(def.Fields))
	for _, f := range def.Fields {
		if seen[f.APIKey] {
			errs = append(errs, &ValidationError{Item: def.Name, Field: f.APIKey, Message: "duplicate field api key"})
		}
		seen[f.APIKey] = true
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	def.Config = def.Config.Clone()
	fields := make([]FieldDefinition, len(def.Fields))
	for i, f := range def.Fields {
		f.Validators = f.Validators.Clone()
		f.Appearance = f.Appearance.Clone()
		fields[i] = f
	}
	def.Fields = fields
	return &def, nil
}
