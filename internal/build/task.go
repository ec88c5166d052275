package build

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/schemasync/internal/schema"
)

// Task is the unit the orchestrator schedules.
type Task struct {
	Kind schema.Kind
	Name string

	// Source locates the declaration, e.g. "items/article.cue:3:1".
	Source string

	// Dependencies holds the keys of items this one requests through its
	// DependencyContext, found by a static pre-scan or on first request.
	Dependencies map[string]bool
}

// Key returns "<kind>:<name>".
func (t Task) Key() string {
	return schema.Key(t.Kind, t.Name)
}

// DependencyKeys returns Dependencies sorted.
func (t Task) DependencyKeys() []string {
	return slices.Sorted(maps.Keys(t.Dependencies))
}

func (t Task) clone() Task {
	t.Dependencies = maps.Clone(t.Dependencies)
	if t.Dependencies == nil {
		t.Dependencies = make(map[string]bool)
	}
	return t
}

// Declaration produces an item's definition. It may request other items'
// remote ids through deps, which builds them on demand.
type Declaration func(ctx context.Context, deps *DependencyContext) (*schema.ItemDefinition, error)

type registration struct {
	task Task
	decl Declaration
}

// Registry maps task keys to declarations. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
	order   []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Register adds decl under task.Key(). Registering a key twice is an error.
func (r *Registry) Register(task Task, decl Declaration) error {
	if task.Name == "" {
		return fmt.Errorf("register: task name is required")
	}
	if _, err := schema.ParseKind(string(task.Kind)); err != nil {
		return fmt.Errorf("register %s: %w", task.Name, err)
	}
	if decl == nil {
		return fmt.Errorf("register %s: nil declaration", task.Key())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := task.Key()
	if existing, ok := r.entries[key]; ok {
		return fmt.Errorf("register %s: already declared at %s", key, existing.task.Source)
	}
	r.entries[key] = registration{task: task.clone(), decl: decl}
	r.order = append(r.order, key)
	return nil
}

// Lookup returns the task and declaration registered under key.
func (r *Registry) Lookup(key string) (Task, Declaration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[key]
	if !ok {
		return Task{}, nil, false
	}
	return reg.task.clone(), reg.decl, true
}

// Tasks returns every registered task in registration order.
func (r *Registry) Tasks() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Task, len(r.order))
	for i, key := range r.order {
		out[i] = r.entries[key].task.clone()
	}
	return out
}

// Len returns the number of registered declarations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
