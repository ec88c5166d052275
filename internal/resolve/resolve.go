// Package resolve replaces deferred references in payloads with concrete
// remote ids and detects reference cycles among fields that are still
// waiting to be created.
//
// Resolution is a pure function of the payload and an explicit
// ir.Snapshot; the Resolver only adds a per-sync memo on top.
package resolve

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/schemasync/internal/ir"
)

// UnresolvedReferenceError reports a reference whose target is not in the
// snapshot it was resolved against.
type UnresolvedReferenceError struct {
	// Path is the structural location of the reference, e.g.
	// "slug.validators.slug_title_field.title_field_id".
	Path        string
	Description string
	Cause       error
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved reference %s at %s: %v", e.Description, e.Path, e.Cause)
}

func (e *UnresolvedReferenceError) Unwrap() error {
	return e.Cause
}

// Resolver resolves references for the duration of one sync.
// Not safe for concurrent use; each goroutine resolving in parallel should
// use Fork.
type Resolver struct {
	memo map[string]string
}

// New creates a Resolver with an empty memo.
func New() *Resolver {
	return &Resolver{memo: make(map[string]string)}
}

// Fork returns a Resolver seeded with a copy of r's memo.
func (r *Resolver) Fork() *Resolver {
	memo := make(map[string]string, len(r.memo))
	for k, v := range r.memo {
		memo[k] = v
	}
	return &Resolver{memo: memo}
}

// Resolve walks v and returns a copy in which every ir.Reference is
// replaced by the ir.IRString it resolves to against snap. Other leaves are
// returned unchanged. path names the root for error messages and memo keys.
func (r *Resolver) Resolve(path string, v ir.IRValue, snap ir.Snapshot) (ir.IRValue, error) {
	switch val := v.(type) {
	case ir.Reference:
		key := path + "\x00" + val.Description + "\x00" + snap.Key()
		if id, ok := r.memo[key]; ok {
			return ir.IRString(id), nil
		}
		id, err := val.Resolve(snap)
		if err != nil {
			return nil, &UnresolvedReferenceError{Path: path, Description: val.Description, Cause: err}
		}
		r.memo[key] = id
		return ir.IRString(id), nil
	case ir.IRArray:
		out := make(ir.IRArray, len(val))
		for i, elem := range val {
			resolved, err := r.Resolve(path+"["+strconv.Itoa(i)+"]", elem, snap)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case ir.IRObject:
		out := make(ir.IRObject, len(val))
		for _, k := range val.SortedKeys() {
			resolved, err := r.Resolve(path+"."+k, val[k], snap)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// ResolveObject is Resolve for an object root.
func (r *Resolver) ResolveObject(path string, obj ir.IRObject, snap ir.Snapshot) (ir.IRObject, error) {
	resolved, err := r.Resolve(path, obj, snap)
	if err != nil {
		return nil, err
	}
	return resolved.(ir.IRObject), nil
}

// MemoSize returns the number of memoized resolutions.
func (r *Resolver) MemoSize() int {
	return len(r.memo)
}

// CircularReferenceError reports a chain of pending fields whose references
// lead back into the chain.
type CircularReferenceError struct {
	// Path lists api keys from the field being processed to the repeated
	// key, e.g. ["p", "q", "p"].
	Path []string
}

func (e *CircularReferenceError) Error() string {
	return "circular field reference: " + strings.Join(e.Path, " -> ")
}

// IsCircularReference reports whether err wraps a CircularReferenceError.
func IsCircularReference(err error) bool {
	var ce *CircularReferenceError
	return errors.As(err, &ce)
}

// DetectCycle walks the references of apiKey through fields that are
// still pending creation. pending maps a pending api key to the api keys
// its references target. A target already in snap is materialized and
// terminates that branch; a target neither pending nor materialized is left
// for resolution to report.
//
// The walk is a depth-first search with an explicit path stack: re-entering
// any key on the stack is a cycle.
func DetectCycle(apiKey string, pending map[string][]string, snap ir.Snapshot) error {
	var stack []string
	onStack := map[string]bool{}
	done := map[string]bool{}

	var visit func(key string) error
	visit = func(key string) error {
		if onStack[key] {
			cycle := append(append([]string{}, stack...), key)
			return &CircularReferenceError{Path: cycle}
		}
		if done[key] {
			return nil
		}

		stack = append(stack, key)
		onStack[key] = true
		for _, target := range pending[key] {
			if snap.Has(target) {
				continue
			}
			if _, isPending := pending[target]; !isPending {
				continue
			}
			if err := visit(target); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		onStack[key] = false
		done[key] = true
		return nil
	}

	return visit(apiKey)
}
