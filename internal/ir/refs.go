package ir

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrTargetMissing is returned by a Reference whose target is not present in
// the snapshot it was resolved against.
var ErrTargetMissing = errors.New("reference target not materialized")

// Reference is a deferred payload value. It stands in for a remote
// identifier that may not exist when the declaration is built and is
// replaced by a concrete IRString during sync.
//
// Description is the static identity used for fingerprints. Targets lists
// the field api keys the reference depends on; cycle detection walks them.
type Reference struct {
	Description string
	Targets     []string
	Lookup      func(Snapshot) (string, error)
}

func (Reference) irValue() {}

// Resolve invokes the reference against snap.
func (r Reference) Resolve(snap Snapshot) (string, error) {
	if r.Lookup == nil {
		return "", fmt.Errorf("reference %s has no lookup", r.Description)
	}
	return r.Lookup(snap)
}

// FieldRef returns a reference to the remote id of the field with apiKey.
func FieldRef(apiKey string) Reference {
	return Reference{
		Description: "field:" + apiKey,
		Targets:     []string{apiKey},
		Lookup: func(snap Snapshot) (string, error) {
			id, ok := snap.Lookup(apiKey)
			if !ok {
				return "", fmt.Errorf("field %q: %w", apiKey, ErrTargetMissing)
			}
			return id, nil
		},
	}
}

// Snapshot is a read-only view of fields known to exist remotely, either
// listed at the start of a sync or created earlier in the same sync.
type Snapshot struct {
	order []string
	ids   map[string]string
}

// NewSnapshot builds a snapshot from (apiKey, id) pairs in order.
func NewSnapshot(pairs ...[2]string) Snapshot {
	s := Snapshot{ids: make(map[string]string, len(pairs))}
	for _, p := range pairs {
		s = s.With(p[0], p[1])
	}
	return s
}

// With returns a snapshot that additionally contains apiKey -> id.
// The receiver is left unchanged.
func (s Snapshot) With(apiKey, id string) Snapshot {
	ids := make(map[string]string, len(s.ids)+1)
	for k, v := range s.ids {
		ids[k] = v
	}
	order := slices.Clone(s.order)
	if _, exists := ids[apiKey]; !exists {
		order = append(order, apiKey)
	}
	ids[apiKey] = id
	return Snapshot{order: order, ids: ids}
}

// Lookup returns the remote id of apiKey.
func (s Snapshot) Lookup(apiKey string) (string, bool) {
	id, ok := s.ids[apiKey]
	return id, ok
}

// Has reports whether apiKey is materialized.
func (s Snapshot) Has(apiKey string) bool {
	_, ok := s.ids[apiKey]
	return ok
}

// Len returns the number of fields in the snapshot.
func (s Snapshot) Len() int {
	return len(s.order)
}

// APIKeys returns api keys in the order they entered the snapshot.
func (s Snapshot) APIKeys() []string {
	return slices.Clone(s.order)
}

// IDs returns the sorted remote ids. Used as a cache key component.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.ids))
	for _, id := range s.ids {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Key returns a stable string form of IDs().
func (s Snapshot) Key() string {
	return strings.Join(s.IDs(), ",")
}
