package build

import (
	"log/slog"

	"github.com/roach88/schemasync/internal/engine"
	"github.com/roach88/schemasync/internal/remote"
	"github.com/roach88/schemasync/internal/schema"
	"github.com/roach88/schemasync/internal/store"
)

// Policy configures builds.
type Policy struct {
	// Sync is passed to the field sync engine.
	Sync engine.Policy

	// Naming is the naming policy. It is part of every fingerprint.
	Naming schema.Naming

	// Concurrency bounds BuildAll. Zero or less means unbounded.
	Concurrency int

	// FlushEachItem flushes the cache after every successful item
	// instead of only when the run is closed.
	FlushEachItem bool
}

// Orchestrator builds registered items against a remote service, skipping
// items whose fingerprint matches the cache. Per-run state lives in Run.
type Orchestrator struct {
	remote   remote.Service
	cache    store.Cache
	registry *Registry
	engine   *engine.Engine
	policy   Policy
	logger   *slog.Logger
	runIDs   IDGenerator
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPolicy sets the build policy.
func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithRunIDGenerator replaces the UUIDv7 run ids.
func WithRunIDGenerator(g IDGenerator) Option {
	return func(o *Orchestrator) {
		o.runIDs = g
	}
}

// New creates an Orchestrator.
func New(svc remote.Service, cache store.Cache, registry *Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		remote:   svc,
		cache:    cache,
		registry: registry,
		logger:   slog.Default(),
		runIDs:   UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.engine = engine.New(svc, engine.WithPolicy(o.policy.Sync), engine.WithLogger(o.logger))
	return o
}

// Policy returns the orchestrator's policy.
func (o *Orchestrator) Policy() Policy {
	return o.policy
}

// NewRun starts a run. All memoization is scoped to the returned Run.
func (o *Orchestrator) NewRun() *Run {
	id := o.runIDs.Generate()
	return &Run{
		o:       o,
		id:      id,
		logger:  o.logger.With("run_id", id),
		results: make(map[string]outcome),
		tasks:   make(map[string]Task),
		apiKeys: make(map[string]string),
		waits:   newWaitGraph(),
	}
}
