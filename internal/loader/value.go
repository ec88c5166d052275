package loader

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"cuelang.org/go/cue"

	"github.com/roach88/schemasync/internal/build"
	"github.com/roach88/schemasync/internal/ir"
	"github.com/roach88/schemasync/internal/schema"
)

// node is a decoded CUE value. It is one of nil, string, int64, bool,
// []node, map[string]node, fieldRef or itemRef.
type node any

// fieldRef is {ref: "<apiKey>"}: the remote id of a sibling field.
type fieldRef string

// itemRef is {block: "<Name>"} or {model: "<Name>"}: the remote id of
// another item type.
type itemRef struct {
	kind schema.Kind
	name string
}

func (r itemRef) key() string {
	return schema.Key(r.kind, r.name)
}

// decode converts a concrete CUE value into a node. Floats are rejected;
// the remote schema has no use for them and they do not hash stably.
func decode(v cue.Value) (node, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fromCUE(ErrCodeBuildFailed, err)
	}

	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		b, err := v.Bool()
		return b, fromCUE(ErrCodeInvalidType, err)
	case cue.IntKind:
		n, err := v.Int64()
		return n, fromCUE(ErrCodeInvalidType, err)
	case cue.StringKind:
		s, err := v.String()
		return s, fromCUE(ErrCodeInvalidType, err)
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, fromCUE(ErrCodeInvalidType, err)
		}
		list := []node{}
		for iter.Next() {
			elem, err := decode(iter.Value())
			if err != nil {
				return nil, err
			}
			list = append(list, elem)
		}
		return list, nil
	case cue.StructKind:
		return decodeStruct(v)
	case cue.FloatKind, cue.NumberKind:
		return nil, errorf(ErrCodeInvalidType, v.Pos(), "floating-point values are not supported")
	}
	return nil, errorf(ErrCodeInvalidType, v.Pos(), "unsupported value of kind %s", v.Kind())
}

func decodeStruct(v cue.Value) (node, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, fromCUE(ErrCodeInvalidType, err)
	}
	obj := map[string]node{}
	for iter.Next() {
		if iter.Selector().Unquoted() == ir.ReferenceKey {
			return nil, errorf(ErrCodeInvalidRef, iter.Value().Pos(), "%q is reserved; use {ref: \"<api_key>\"}", ir.ReferenceKey)
		}
		val, err := decode(iter.Value())
		if err != nil {
			return nil, err
		}
		obj[iter.Selector().Unquoted()] = val
	}

	if len(obj) != 1 {
		return obj, nil
	}
	for label, val := range obj {
		var kind schema.Kind
		switch label {
		case "ref":
		case "block":
			kind = schema.KindBlock
		case "model":
			kind = schema.KindModel
		default:
			return obj, nil
		}
		s, ok := val.(string)
		if !ok || s == "" {
			return nil, errorf(ErrCodeInvalidRef, v.Pos(), "%s reference must be a non-empty string", label)
		}
		if kind == "" {
			return fieldRef(s), nil
		}
		return itemRef{kind: kind, name: s}, nil
	}
	return obj, nil
}

// itemRefs adds the keys of every item referenced under n to deps.
func itemRefs(n node, deps map[string]bool) {
	switch val := n.(type) {
	case itemRef:
		deps[val.key()] = true
	case []node:
		for _, elem := range val {
			itemRefs(elem, deps)
		}
	case map[string]node:
		for _, elem := range val {
			itemRefs(elem, deps)
		}
	}
}

// materialize converts n into an IR value. Item references are resolved
// through deps; field references stay lazy.
func materialize(ctx context.Context, deps *build.DependencyContext, n node) (ir.IRValue, error) {
	switch val := n.(type) {
	case nil:
		return ir.IRNull{}, nil
	case bool:
		return ir.IRBool(val), nil
	case int64:
		return ir.IRInt(val), nil
	case string:
		return ir.IRString(val), nil
	case fieldRef:
		return ir.FieldRef(string(val)), nil
	case itemRef:
		var (
			id  string
			err error
		)
		if val.kind == schema.KindBlock {
			id, err = deps.GetBlock(ctx, val.name)
		} else {
			id, err = deps.GetModel(ctx, val.name)
		}
		if err != nil {
			return nil, err
		}
		return ir.IRString(id), nil
	case []node:
		arr := make(ir.IRArray, 0, len(val))
		for _, elem := range val {
			v, err := materialize(ctx, deps, elem)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case map[string]node:
		obj := make(ir.IRObject, len(val))
		// Sorted so dependencies are requested in a stable order.
		for _, k := range slices.Sorted(maps.Keys(val)) {
			v, err := materialize(ctx, deps, val[k])
			if err != nil {
				return nil, err
			}
			obj[k] = v
		}
		return obj, nil
	}
	return nil, fmt.Errorf("unexpected node %T", n)
}

func materializeObject(ctx context.Context, deps *build.DependencyContext, n node) (ir.IRObject, error) {
	v, err := materialize(ctx, deps, n)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", v)
	}
	return obj, nil
}
