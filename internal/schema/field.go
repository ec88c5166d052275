package schema

import (
	"github.com/roach88/schemasync/internal/ir"
)

// Field types understood by the remote schema service.
const (
	TypeString         = "string"
	TypeText           = "text"
	TypeBoolean        = "boolean"
	TypeInteger        = "integer"
	TypeDate           = "date"
	TypeSlug           = "slug"
	TypeLink           = "link"
	TypeLinks          = "links"
	TypeFile           = "file"
	TypeRichText       = "rich_text"
	TypeStructuredText = "structured_text"
	TypeJSON           = "json"
)

// FieldDefinition is one desired field of an item type.
type FieldDefinition struct {
	APIKey     string
	Label      string
	FieldType  string
	Hint       string
	Localized  bool
	Validators ir.IRObject
	Appearance ir.IRObject

	// Position is the 1-based declaration index. It orders creation and is
	// sent to the remote service, but is not part of the fingerprint.
	Position int
}

// Body is the wire payload for create/update. It may still hold references.
func (f FieldDefinition) Body() ir.IRObject {
	body := f.Document()
	body["position"] = ir.IRInt(f.Position)
	return body
}

// Document is the position-independent form used for fingerprints.
func (f FieldDefinition) Document() ir.IRObject {
	doc := ir.IRObject{
		"api_key":    ir.IRString(f.APIKey),
		"label":      ir.IRString(f.Label),
		"field_type": ir.IRString(f.FieldType),
		"localized":  ir.IRBool(f.Localized),
		"validators": orEmpty(f.Validators),
		"appearance": orEmpty(f.Appearance),
	}
	if f.Hint != "" {
		doc["hint"] = ir.IRString(f.Hint)
	}
	return doc
}

// References returns the api keys this field's validators depend on, in a
// stable order without duplicates.
func (f FieldDefinition) References() []string {
	seen := map[string]bool{}
	var out []string
	var walk func(v ir.IRValue)
	walk = func(v ir.IRValue) {
		switch val := v.(type) {
		case ir.Reference:
			for _, t := range val.Targets {
				if !seen[t] {
					seen[t] = true
					out = append(out, t)
				}
			}
		case ir.IRArray:
			for _, elem := range val {
				walk(elem)
			}
		case ir.IRObject:
			for _, k := range val.SortedKeys() {
				walk(val[k])
			}
		}
	}
	walk(f.Validators)
	walk(f.Appearance)
	return out
}

func orEmpty(obj ir.IRObject) ir.IRObject {
	if obj == nil {
		return ir.IRObject{}
	}
	return obj
}

// Field is a field under construction. Create one with NewField or a typed
// helper and pass it to ItemBuilder.AddField.
type Field struct {
	def  FieldDefinition
	errs []error
}

// FieldOption configures a Field.
type FieldOption func(*Field)

// NewField starts a field of fieldType labelled label. The api key is
// derived from the label unless WithFieldAPIKey is given.
func NewField(fieldType, label string, opts ...FieldOption) Field {
	f := Field{def: FieldDefinition{
		Label:      label,
		FieldType:  fieldType,
		Validators: ir.IRObject{},
		Appearance: ir.IRObject{},
	}}
	for _, opt := range opts {
		opt(&f)
	}
	if f.def.APIKey == "" {
		key, err := DeriveAPIKey(label)
		if err != nil {
			f.errs = append(f.errs, err)
		}
		f.def.APIKey = key
	}
	return f
}

// WithFieldAPIKey overrides the derived api key.
func WithFieldAPIKey(key string) FieldOption {
	return func(f *Field) {
		if !ValidAPIKey(key) {
			f.errs = append(f.errs, &ValidationError{Field: key, Message: "api key must be lowercase snake_case starting with a letter"})
		}
		f.def.APIKey = key
	}
}

// WithValidators attaches validators. A later validator with the same name
// replaces an earlier one.
func WithValidators(vs ...Validator) FieldOption {
	return func(f *Field) {
		for _, v := range vs {
			if v.Err() != nil {
				f.errs = append(f.errs, v.Err())
				continue
			}
			f.def.Validators[v.Name] = v.Params
		}
	}
}

// WithAppearance sets the editor appearance object.
func WithAppearance(appearance ir.IRObject) FieldOption {
	return func(f *Field) {
		f.def.Appearance = appearance.Clone()
	}
}

// WithHint sets the editor hint.
func WithHint(hint string) FieldOption {
	return func(f *Field) {
		f.def.Hint = hint
	}
}

// Localized marks the field as localized.
func Localized() FieldOption {
	return func(f *Field) {
		f.def.Localized = true
	}
}

// SingleLineString is a string field with the single_line editor.
func SingleLineString(label string, opts ...FieldOption) Field {
	opts = append([]FieldOption{WithAppearance(editor("single_line"))}, opts...)
	return NewField(TypeString, label, opts...)
}

// Boolean is a checkbox field.
func Boolean(label string, opts ...FieldOption) Field {
	return NewField(TypeBoolean, label, opts...)
}

// Integer is an integer field.
func Integer(label string, opts ...FieldOption) Field {
	return NewField(TypeInteger, label, opts...)
}

// Slug is a slug field bound to the title field with titleAPIKey.
func Slug(label, titleAPIKey string, opts ...FieldOption) Field {
	opts = append([]FieldOption{
		WithAppearance(editor("slug")),
		WithValidators(SlugTitleField(titleAPIKey)),
	}, opts...)
	return NewField(TypeSlug, label, opts...)
}

// Link is a single link to records of itemTypeIDs.
func Link(label string, itemTypeIDs []string, opts ...FieldOption) Field {
	opts = append([]FieldOption{WithValidators(ItemItemType(IDs(itemTypeIDs...)...))}, opts...)
	return NewField(TypeLink, label, opts...)
}

// Links is a multiple link to records of itemTypeIDs.
func Links(label string, itemTypeIDs []string, opts ...FieldOption) Field {
	opts = append([]FieldOption{WithValidators(ItemsItemType(IDs(itemTypeIDs...)...))}, opts...)
	return NewField(TypeLinks, label, opts...)
}

// ModularContent is a rich text field accepting blockIDs.
func ModularContent(label string, blockIDs []string, opts ...FieldOption) Field {
	opts = append([]FieldOption{WithValidators(RichTextBlocks(IDs(blockIDs...)...))}, opts...)
	return NewField(TypeRichText, label, opts...)
}

func editor(name string) ir.IRObject {
	return ir.IRObject{
		"editor":     ir.IRString(name),
		"parameters": ir.IRObject{},
		"addons":     ir.IRArray{},
	}
}
