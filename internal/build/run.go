package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/schemasync/internal/remote"
	"github.com/roach88/schemasync/internal/schema"
	"github.com/roach88/schemasync/internal/store"
)

// ErrRunClosed is returned by a Run after Close.
var ErrRunClosed = errors.New("run closed")

// Result is the outcome of building one item.
type Result struct {
	RemoteID string

	// FromCache is true when the fingerprint matched the cache and no
	// remote call was made.
	FromCache bool
}

// Outcome pairs a task with its build result.
type Outcome struct {
	Task   Task
	Result Result
	Err    error
}

type outcome struct {
	result Result
	err    error
}

// Run holds the state of one build run: completed results, in-flight
// builds, discovered dependencies and the wait-for graph. Every item is
// loaded, fingerprinted and synced at most once per run, however many
// times and from however many goroutines it is requested.
//
// Thread-safety: all methods may be called concurrently.
type Run struct {
	o      *Orchestrator
	id     string
	logger *slog.Logger
	flight singleflight.Group
	waits  *waitGraph

	mu      sync.Mutex
	closed  bool
	results map[string]outcome
	tasks   map[string]Task
	apiKeys map[string]string // item api key -> task key
}

// ID returns the run id attached to every log line of the run.
func (r *Run) ID() string {
	return r.id
}

// BuildItem builds task, or returns its result if this run already built
// it. Failures are *ItemBuildError.
func (r *Run) BuildItem(ctx context.Context, task Task) (Result, error) {
	if err := r.learn(task); err != nil {
		return Result{}, &ItemBuildError{ItemType: string(task.Kind), ItemName: task.Name, Cause: err}
	}
	return r.build(ctx, task.Key())
}

// BuildAll builds tasks concurrently, bounded by Policy.Concurrency. A
// failed item never stops the others; every failure is returned.
func (r *Run) BuildAll(ctx context.Context, tasks []Task) ([]Outcome, error) {
	out := make([]Outcome, len(tasks))

	var g errgroup.Group
	if r.o.policy.Concurrency > 0 {
		g.SetLimit(r.o.policy.Concurrency)
	}
	for i, t := range tasks {
		g.Go(func() error {
			res, err := r.BuildItem(ctx, t)
			out[i] = Outcome{Task: t, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var result *multierror.Error
	for _, o := range out {
		if o.Err != nil {
			result = multierror.Append(result, o.Err)
		}
	}
	return out, result.ErrorOrNil()
}

// Task returns task key as known to this run, including dependencies
// discovered while building.
func (r *Run) Task(key string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[key]
	if !ok {
		return Task{}, false
	}
	return t.clone(), true
}

// Close flushes the cache and releases the run's state. Later calls on
// the run return ErrRunClosed.
func (r *Run) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.results = nil
	r.tasks = nil
	r.apiKeys = nil
	r.mu.Unlock()

	if err := r.o.cache.Flush(ctx); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	r.logger.Debug("run closed")
	return nil
}

// learn merges task into the run's task table.
func (r *Run) learn(task Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunClosed
	}
	key := task.Key()
	known, ok := r.tasks[key]
	if !ok {
		r.tasks[key] = task.clone()
		return nil
	}
	for dep := range task.Dependencies {
		known.Dependencies[dep] = true
	}
	return nil
}

func (r *Run) recordDependency(parent, dep string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	t, ok := r.tasks[parent]
	if !ok {
		return
	}
	if !t.Dependencies[dep] {
		r.logger.Debug("dependency discovered", "item", parent, "dependency", dep)
	}
	t.Dependencies[dep] = true
}

func (r *Run) completed(key string) (outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, ok := r.results[key]
	return out, ok
}

// build returns the memoized result for key or builds it. Concurrent
// callers for the same key share one build.
func (r *Run) build(ctx context.Context, key string) (Result, error) {
	if out, ok := r.completed(key); ok {
		return out.result, out.err
	}

	v, err, _ := r.flight.Do(key, func() (any, error) {
		if out, ok := r.completed(key); ok {
			return out.result, out.err
		}
		res, err := r.buildOnce(ctx, key)

		r.mu.Lock()
		if !r.closed {
			r.results[key] = outcome{result: res, err: err}
		}
		r.mu.Unlock()
		return res, err
	})
	return v.(Result), err
}

func (r *Run) buildOnce(ctx context.Context, key string) (Result, error) {
	kind, name, _ := strings.Cut(key, ":")
	fail := func(err error) (Result, error) {
		r.logger.Error("item build failed", "item", key, "error", err)
		return Result{}, &ItemBuildError{ItemType: kind, ItemName: name, Cause: err}
	}

	task, decl, ok := r.o.registry.Lookup(key)
	if !ok {
		return fail(fmt.Errorf("%s: %w", key, ErrUnknownItem))
	}
	if err := r.learn(task); err != nil {
		return fail(err)
	}

	cached, hit, err := r.o.cache.Get(ctx, key)
	if err != nil {
		return fail(fmt.Errorf("read cache: %w", err))
	}

	def, fingerprint, err := r.load(ctx, key, decl)
	if err != nil {
		return fail(err)
	}

	if hit && cached.Fingerprint == fingerprint {
		r.logger.Info("cache hit", "item", key, "remote_id", cached.RemoteID)
		return Result{RemoteID: cached.RemoteID, FromCache: true}, nil
	}
	r.logger.Info("cache miss", "item", key, "cached", hit)

	id, err := r.upsert(ctx, def, cached.RemoteID)
	if err != nil {
		return fail(err)
	}

	if err := r.o.cache.Set(ctx, key, store.Entry{RemoteID: id, Fingerprint: fingerprint}); err != nil {
		return fail(fmt.Errorf("write cache: %w", err))
	}
	if r.o.policy.FlushEachItem {
		if err := r.o.cache.Flush(ctx); err != nil {
			return fail(fmt.Errorf("flush cache: %w", err))
		}
	}

	r.logger.Info("item built", "item", key, "remote_id", id)
	return Result{RemoteID: id}, nil
}

// load runs the declaration and fingerprints its definition.
func (r *Run) load(ctx context.Context, key string, decl Declaration) (*schema.ItemDefinition, string, error) {
	deps := &DependencyContext{
		task:   key,
		naming: r.o.policy.Naming,
		lookup: r.dependency,
		record: r.recordDependency,
	}

	def, err := decl(ctx, deps)
	if err != nil {
		return nil, "", fmt.Errorf("declaration: %w", err)
	}
	if def == nil {
		return nil, "", fmt.Errorf("declaration: returned no definition")
	}
	if def.Key() != key {
		return nil, "", fmt.Errorf("declaration: produced %s", def.Key())
	}
	if err := r.claimAPIKey(key, def); err != nil {
		return nil, "", err
	}

	fingerprint, err := def.Fingerprint(r.o.policy.Naming)
	if err != nil {
		return nil, "", err
	}
	return def, fingerprint, nil
}

// claimAPIKey rejects two items of one run sharing an api key.
func (r *Run) claimAPIKey(key string, def *schema.ItemDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunClosed
	}
	if owner, ok := r.apiKeys[def.APIKey]; ok && owner != key {
		return &schema.ValidationError{
			Item:    def.Name,
			Message: fmt.Sprintf("api key %q is already used by %s", def.APIKey, owner),
		}
	}
	r.apiKeys[def.APIKey] = key
	return nil
}

// dependency is the build-mode lookup behind DependencyContext.
func (r *Run) dependency(ctx context.Context, parent, dep string) (string, error) {
	if cycle := r.waits.add(parent, dep); cycle != nil {
		r.logger.Error("dependency cycle", "item", parent, "path", strings.Join(cycle.Path, " -> "))
		return "", cycle
	}
	defer r.waits.remove(parent, dep)

	res, err := r.build(ctx, dep)
	if err != nil {
		return "", err
	}
	return res.RemoteID, nil
}

// upsert creates the item type if absent, updates it otherwise, then
// syncs its fields.
func (r *Run) upsert(ctx context.Context, def *schema.ItemDefinition, cachedID string) (string, error) {
	current, found, err := r.findItemType(ctx, def.APIKey, cachedID)
	if err != nil {
		return "", err
	}

	body := def.Body()
	var id string
	if found {
		if _, err := r.o.remote.UpdateItemType(ctx, current.ID, body); err != nil {
			return "", fmt.Errorf("update item type %s: %w", current.ID, err)
		}
		id = current.ID
		r.logger.Debug("item type updated", "item", def.Key(), "remote_id", id)
	} else {
		created, err := r.o.remote.CreateItemType(ctx, body)
		if err != nil {
			return "", fmt.Errorf("create item type: %w", err)
		}
		id = created.ID
		r.logger.Debug("item type created", "item", def.Key(), "remote_id", id)
	}

	return r.o.engine.Sync(ctx, def.Name, id, def.Fields)
}

// findItemType looks the item type up by its cached id, falling back to
// matching api keys when there is no cached id or it no longer exists.
func (r *Run) findItemType(ctx context.Context, apiKey, cachedID string) (remote.ItemType, bool, error) {
	if cachedID != "" {
		it, err := r.o.remote.FindItemType(ctx, cachedID)
		if err == nil {
			return it, true, nil
		}
		if !remote.IsNotFound(err) {
			return remote.ItemType{}, false, fmt.Errorf("find item type %s: %w", cachedID, err)
		}
		r.logger.Debug("cached item type not found", "remote_id", cachedID, "api_key", apiKey)
	}

	types, err := r.o.remote.ListItemTypes(ctx)
	if err != nil {
		return remote.ItemType{}, false, fmt.Errorf("list item types: %w", err)
	}
	for _, it := range types {
		if it.APIKey == apiKey {
			return it, true, nil
		}
	}
	return remote.ItemType{}, false, nil
}
