package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/schemasync/internal/build"
	"github.com/roach88/schemasync/internal/schema"
)

// Item is one decoded item declaration:
//
//	item: Article: {
//		kind: "model"
//		fields: [
//			{type: "string", label: "Title"},
//			{type: "slug", label: "Slug", validators: slug_title_field: title_field_id: {ref: "title"}},
//			{type: "rich_text", label: "Body", validators: rich_text_blocks: item_types: [{block: "Hero"}]},
//		]
//	}
type Item struct {
	Kind   schema.Kind
	Name   string
	APIKey string
	Fields []FieldSpec
	Pos    token.Pos

	config node
}

// FieldSpec is one decoded field of an Item.
type FieldSpec struct {
	Type      string
	Label     string
	APIKey    string
	Hint      string
	Localized bool

	validators map[string]node
	appearance node
}

// Key returns the task key of the item.
func (it *Item) Key() string {
	return schema.Key(it.Kind, it.Name)
}

// Source returns "file:line" of the declaration.
func (it *Item) Source() string {
	if !it.Pos.IsValid() {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(it.Pos.Filename()), it.Pos.Line())
}

// Dependencies returns the keys of items the declaration references, sorted.
func (it *Item) Dependencies() []string {
	deps := map[string]bool{}
	itemRefs(it.config, deps)
	for _, f := range it.Fields {
		itemRefs(f.appearance, deps)
		for _, v := range f.validators {
			itemRefs(v, deps)
		}
	}
	out := make([]string, 0, len(deps))
	for k := range deps {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Task returns the build task of the item with its statically known
// dependencies.
func (it *Item) Task() build.Task {
	deps := map[string]bool{}
	for _, d := range it.Dependencies() {
		deps[d] = true
	}
	return build.Task{Kind: it.Kind, Name: it.Name, Source: it.Source(), Dependencies: deps}
}

// Declaration returns the build declaration of the item. Item references
// are requested from deps when it runs.
func (it *Item) Declaration() build.Declaration {
	return func(ctx context.Context, deps *build.DependencyContext) (*schema.ItemDefinition, error) {
		opts := []schema.ItemOption{schema.WithNaming(deps.Naming())}
		if it.APIKey != "" {
			opts = append(opts, schema.WithAPIKey(it.APIKey))
		}
		if it.config != nil {
			cfg, err := materializeObject(ctx, deps, it.config)
			if err != nil {
				return nil, fmt.Errorf("config: %w", err)
			}
			opts = append(opts, schema.WithConfig(cfg))
		}

		b := schema.NewItem(it.Kind, it.Name, opts...)
		for _, spec := range it.Fields {
			f, err := spec.field(ctx, deps)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", spec.Label, err)
			}
			b.AddField(f)
		}
		return b.Build()
	}
}

func (fs FieldSpec) field(ctx context.Context, deps *build.DependencyContext) (schema.Field, error) {
	var opts []schema.FieldOption
	if fs.APIKey != "" {
		opts = append(opts, schema.WithFieldAPIKey(fs.APIKey))
	}
	if fs.Hint != "" {
		opts = append(opts, schema.WithHint(fs.Hint))
	}
	if fs.Localized {
		opts = append(opts, schema.Localized())
	}
	if fs.appearance != nil {
		app, err := materializeObject(ctx, deps, fs.appearance)
		if err != nil {
			return schema.Field{}, fmt.Errorf("appearance: %w", err)
		}
		opts = append(opts, schema.WithAppearance(app))
	}

	names := make([]string, 0, len(fs.validators))
	for name := range fs.validators {
		names = append(names, name)
	}
	slices.Sort(names)
	validators := make([]schema.Validator, 0, len(names))
	for _, name := range names {
		params, err := materializeObject(ctx, deps, fs.validators[name])
		if err != nil {
			return schema.Field{}, fmt.Errorf("validator %s: %w", name, err)
		}
		validators = append(validators, schema.Validator{Name: name, Params: params})
	}
	if len(validators) > 0 {
		opts = append(opts, schema.WithValidators(validators...))
	}

	return schema.NewField(fs.Type, fs.Label, opts...), nil
}

// compileItem decodes the declaration at item.<name>.
func compileItem(name string, v cue.Value) (*Item, error) {
	if err := v.Err(); err != nil {
		return nil, fromCUE(ErrCodeBuildFailed, err)
	}
	it := &Item{Name: name, Pos: v.Pos()}

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return nil, errorf(ErrCodeInvalidKind, v.Pos(), "item %s: kind is required", name)
	}
	ks, err := kindVal.String()
	if err != nil {
		return nil, fromCUE(ErrCodeInvalidKind, err)
	}
	if it.Kind, err = schema.ParseKind(ks); err != nil {
		return nil, errorf(ErrCodeInvalidKind, kindVal.Pos(), "item %s: %v", name, err)
	}

	if it.APIKey, err = optionalString(v, "api_key"); err != nil {
		return nil, err
	}

	if cfg := v.LookupPath(cue.ParsePath("config")); cfg.Exists() {
		n, err := decode(cfg)
		if err != nil {
			return nil, err
		}
		if _, ok := n.(map[string]node); !ok {
			return nil, errorf(ErrCodeInvalidType, cfg.Pos(), "item %s: config must be a struct", name)
		}
		it.config = n
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return it, nil
	}
	iter, err := fieldsVal.List()
	if err != nil {
		return nil, fromCUE(ErrCodeInvalidField, err)
	}
	for iter.Next() {
		f, err := compileField(name, iter.Value())
		if err != nil {
			return nil, err
		}
		it.Fields = append(it.Fields, f)
	}
	return it, nil
}

func compileField(item string, v cue.Value) (FieldSpec, error) {
	var fs FieldSpec
	var err error

	if fs.Type, err = optionalString(v, "type"); err != nil {
		return fs, err
	}
	if fs.Label, err = optionalString(v, "label"); err != nil {
		return fs, err
	}
	if fs.Type == "" || fs.Label == "" {
		return fs, errorf(ErrCodeInvalidField, v.Pos(), "item %s: every field needs a type and a label", item)
	}
	if fs.APIKey, err = optionalString(v, "api_key"); err != nil {
		return fs, err
	}
	if fs.Hint, err = optionalString(v, "hint"); err != nil {
		return fs, err
	}
	if loc := v.LookupPath(cue.ParsePath("localized")); loc.Exists() {
		if fs.Localized, err = loc.Bool(); err != nil {
			return fs, fromCUE(ErrCodeInvalidField, err)
		}
	}

	if app := v.LookupPath(cue.ParsePath("appearance")); app.Exists() {
		n, err := decode(app)
		if err != nil {
			return fs, err
		}
		if _, ok := n.(map[string]node); !ok {
			return fs, errorf(ErrCodeInvalidField, app.Pos(), "item %s field %s: appearance must be a struct", item, fs.Label)
		}
		fs.appearance = n
	}

	if vals := v.LookupPath(cue.ParsePath("validators")); vals.Exists() {
		n, err := decode(vals)
		if err != nil {
			return fs, err
		}
		obj, ok := n.(map[string]node)
		if !ok {
			return fs, errorf(ErrCodeInvalidField, vals.Pos(), "item %s field %s: validators must be a struct", item, fs.Label)
		}
		for name, params := range obj {
			if _, ok := params.(map[string]node); !ok {
				return fs, errorf(ErrCodeInvalidField, vals.Pos(), "item %s field %s: validator %s must be a struct", item, fs.Label, name)
			}
		}
		fs.validators = obj
	}
	return fs, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return "", nil
	}
	s, err := val.String()
	if err != nil {
		return "", fromCUE(ErrCodeInvalidField, err)
	}
	return s, nil
}
