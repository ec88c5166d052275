package build

import (
	"context"
	"fmt"

	"github.com/roach88/schemasync/internal/schema"
)

// DependencyContext is handed to each Declaration. It resolves other items'
// remote ids by name; during a build this builds them on demand.
type DependencyContext struct {
	task   string
	naming schema.Naming
	lookup func(ctx context.Context, parent, dep string) (string, error)
	record func(parent, dep string)
}

// GetBlock returns the remote id of the block named name.
func (d *DependencyContext) GetBlock(ctx context.Context, name string) (string, error) {
	return d.get(ctx, schema.KindBlock, name)
}

// GetModel returns the remote id of the model named name.
func (d *DependencyContext) GetModel(ctx context.Context, name string) (string, error) {
	return d.get(ctx, schema.KindModel, name)
}

// Naming returns the naming policy items are built under. Declarations
// pass it to schema.WithNaming so api keys match the fingerprinted policy.
func (d *DependencyContext) Naming() schema.Naming {
	return d.naming
}

// Task returns the key of the item being declared.
func (d *DependencyContext) Task() string {
	return d.task
}

func (d *DependencyContext) get(ctx context.Context, kind schema.Kind, name string) (string, error) {
	dep := schema.Key(kind, name)
	if d.record != nil {
		d.record(d.task, dep)
	}
	return d.lookup(ctx, d.task, dep)
}

// StaticDependencies returns a DependencyContext for task that resolves
// dependencies from ids, keyed by task key. Unknown keys are an error.
// Used to evaluate declarations outside a run.
func StaticDependencies(task string, naming schema.Naming, ids map[string]string) *DependencyContext {
	return &DependencyContext{
		task:   task,
		naming: naming,
		lookup: func(_ context.Context, _, dep string) (string, error) {
			id, ok := ids[dep]
			if !ok {
				return "", fmt.Errorf("%s: %w", dep, ErrUnknownItem)
			}
			return id, nil
		},
	}
}
