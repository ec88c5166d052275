package build

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Status classifies a planned item.
type Status string

const (
	// StatusUnchanged items match their cache entry and would be skipped.
	StatusUnchanged Status = "unchanged"

	// StatusChanged items have a cache entry that no longer matches.
	StatusChanged Status = "changed"

	// StatusNew items have no cache entry.
	StatusNew Status = "new"
)

// PlanEntry is the predicted outcome of building one task.
type PlanEntry struct {
	Key               string `json:"key"`
	Status            Status `json:"status,omitempty"`
	Fingerprint       string `json:"fingerprint,omitempty"`
	CachedFingerprint string `json:"cached_fingerprint,omitempty"`
	RemoteID          string `json:"remote_id,omitempty"`

	// Pending lists dependencies with no cache entry. Their ids are not
	// known until they are built, so a dependent cannot be unchanged.
	Pending []string `json:"pending,omitempty"`

	Err error `json:"-"`
}

// pendingID stands in for the id of a dependency that has never been built.
func pendingID(dep string) string {
	return "pending:" + dep
}

// Plan predicts what BuildAll would do for tasks without calling the
// remote service. Dependencies resolve to their cached ids.
func (r *Run) Plan(ctx context.Context, tasks []Task) ([]PlanEntry, error) {
	out := make([]PlanEntry, 0, len(tasks))
	var result *multierror.Error

	for _, t := range tasks {
		entry := r.planOne(ctx, t)
		if entry.Err != nil {
			result = multierror.Append(result, entry.Err)
		}
		out = append(out, entry)
	}
	return out, result.ErrorOrNil()
}

func (r *Run) planOne(ctx context.Context, t Task) PlanEntry {
	key := t.Key()
	entry := PlanEntry{Key: key}
	fail := func(err error) PlanEntry {
		entry.Status = ""
		entry.Err = &ItemBuildError{ItemType: string(t.Kind), ItemName: t.Name, Cause: err}
		return entry
	}

	if err := r.learn(t); err != nil {
		return fail(err)
	}
	_, decl, ok := r.o.registry.Lookup(key)
	if !ok {
		return fail(fmt.Errorf("%s: %w", key, ErrUnknownItem))
	}

	cached, hit, err := r.o.cache.Get(ctx, key)
	if err != nil {
		return fail(fmt.Errorf("read cache: %w", err))
	}
	if hit {
		entry.CachedFingerprint = cached.Fingerprint
		entry.RemoteID = cached.RemoteID
	}

	deps := &DependencyContext{
		task:   key,
		naming: r.o.policy.Naming,
		record: r.recordDependency,
		lookup: func(ctx context.Context, _, dep string) (string, error) {
			e, ok, err := r.o.cache.Get(ctx, dep)
			if err != nil {
				return "", fmt.Errorf("read cache: %w", err)
			}
			if !ok {
				entry.Pending = append(entry.Pending, dep)
				return pendingID(dep), nil
			}
			return e.RemoteID, nil
		},
	}

	def, err := decl(ctx, deps)
	if err != nil {
		return fail(fmt.Errorf("declaration: %w", err))
	}
	if def == nil {
		return fail(fmt.Errorf("declaration: returned no definition"))
	}
	entry.Fingerprint, err = def.Fingerprint(r.o.policy.Naming)
	if err != nil {
		return fail(err)
	}

	switch {
	case !hit:
		entry.Status = StatusNew
	case len(entry.Pending) > 0 || cached.Fingerprint != entry.Fingerprint:
		entry.Status = StatusChanged
	default:
		entry.Status = StatusUnchanged
	}
	return entry
}
