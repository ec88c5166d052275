package schema

import (
	"github.com/roach88/schemasync/internal/ir"
)

// Validator is a named constraint attached to a field. Constructors never
// panic; an invalid combination is carried in err and surfaced by Build.
type Validator struct {
	Name   string
	Params ir.IRObject
	err    error
}

// Err returns the construction error, if any.
func (v Validator) Err() error {
	return v.err
}

func invalid(name, msg string) Validator {
	return Validator{Name: name, err: &ValidationError{Validator: name, Message: msg}}
}

// Bounds describes an inclusive numeric range. At least one of Min, Max or
// Eq must be set, and Eq excludes the other two.
type Bounds struct {
	Min *int64
	Max *int64
	Eq  *int64
}

// Int returns a pointer to n, for Bounds literals.
func Int(n int64) *int64 {
	return &n
}

func (b Bounds) params(name, minKey, maxKey, eqKey string) (ir.IRObject, error) {
	if b.Min == nil && b.Max == nil && b.Eq == nil {
		return nil, &ValidationError{Validator: name, Message: "at least one of min, max or eq is required"}
	}
	if b.Eq != nil && (b.Min != nil || b.Max != nil) {
		return nil, &ValidationError{Validator: name, Message: "eq cannot be combined with min or max"}
	}
	if b.Min != nil && b.Max != nil && *b.Min > *b.Max {
		return nil, &ValidationError{Validator: name, Message: "min is greater than max"}
	}

	p := ir.IRObject{}
	if b.Min != nil {
		p[minKey] = ir.IRInt(*b.Min)
	}
	if b.Max != nil {
		p[maxKey] = ir.IRInt(*b.Max)
	}
	if b.Eq != nil && eqKey != "" {
		p[eqKey] = ir.IRInt(*b.Eq)
	}
	if b.Eq != nil && eqKey == "" {
		p[minKey] = ir.IRInt(*b.Eq)
		p[maxKey] = ir.IRInt(*b.Eq)
	}
	return p, nil
}

func bounded(name string, b Bounds, minKey, maxKey, eqKey string) Validator {
	p, err := b.params(name, minKey, maxKey, eqKey)
	if err != nil {
		return Validator{Name: name, err: err}
	}
	return Validator{Name: name, Params: p}
}

// Required marks the field as mandatory.
func Required() Validator {
	return Validator{Name: "required", Params: ir.IRObject{}}
}

// Unique requires the value to be unique across records.
func Unique() Validator {
	return Validator{Name: "unique", Params: ir.IRObject{}}
}

// Length constrains string length.
func Length(b Bounds) Validator {
	return bounded("length", b, "min", "max", "eq")
}

// NumberRange constrains numeric values.
func NumberRange(b Bounds) Validator {
	return bounded("number_range", b, "min", "max", "")
}

// Size constrains the number of linked records or blocks.
func Size(b Bounds) Validator {
	return bounded("size", b, "min", "max", "eq")
}

// Format constrains a string to a predefined pattern ("email", "url") or a
// custom regular expression. Exactly one must be given.
func Format(predefined, custom string) Validator {
	switch {
	case predefined == "" && custom == "":
		return invalid("format", "either a predefined pattern or a custom pattern is required")
	case predefined != "" && custom != "":
		return invalid("format", "predefined and custom patterns are mutually exclusive")
	case predefined != "":
		return Validator{Name: "format", Params: ir.O("predefined_pattern", ir.IRString(predefined))}
	}
	return Validator{Name: "format", Params: ir.O("custom_pattern", ir.IRString(custom))}
}

// Enum restricts a string to a fixed set of values.
func Enum(values ...string) Validator {
	if len(values) == 0 {
		return invalid("enum", "at least one value is required")
	}
	arr := make(ir.IRArray, len(values))
	for i, v := range values {
		arr[i] = ir.IRString(v)
	}
	return Validator{Name: "enum", Params: ir.O("values", arr)}
}

func idList(name, key string, ids []ir.IRValue) Validator {
	if len(ids) == 0 {
		return invalid(name, "at least one item type is required")
	}
	return Validator{Name: name, Params: ir.O(key, ir.IRArray(ids))}
}

// ItemItemType restricts a single link to records of the given item types.
// Each id is either an ir.IRString or an ir.Reference.
func ItemItemType(ids ...ir.IRValue) Validator {
	return idList("item_item_type", "item_types", ids)
}

// ItemsItemType restricts a multiple link to records of the given item types.
func ItemsItemType(ids ...ir.IRValue) Validator {
	return idList("items_item_type", "item_types", ids)
}

// RichTextBlocks lists the blocks allowed in a modular content field.
func RichTextBlocks(ids ...ir.IRValue) Validator {
	return idList("rich_text_blocks", "item_types", ids)
}

// SlugTitleField binds a slug to the title field with apiKey. The field id
// is not known until the title exists remotely, so it is a reference.
func SlugTitleField(apiKey string) Validator {
	if apiKey == "" {
		return invalid("slug_title_field", "title field api key is required")
	}
	return Validator{Name: "slug_title_field", Params: ir.O("title_field_id", ir.FieldRef(apiKey))}
}

// IDs converts plain remote ids to validator arguments.
func IDs(ids ...string) []ir.IRValue {
	out := make([]ir.IRValue, len(ids))
	for i, id := range ids {
		out[i] = ir.IRString(id)
	}
	return out
}
