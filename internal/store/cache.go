package store

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Entry is the cached outcome of one successful item build.
type Entry struct {
	RemoteID    string `json:"remote_id"`
	Fingerprint string `json:"fingerprint"`
}

// Record is an Entry with its key.
type Record struct {
	Key string `json:"key"`
	Entry
}

// Cache is the build cache. Implementations are safe for concurrent use.
//
// Get and Set never block on each other across keys; no lock is held
// between a Get and a later Set.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, key string) error

	// List returns all entries ordered by key.
	List(ctx context.Context) ([]Record, error)

	// Flush makes every Set and Delete so far durable.
	Flush(ctx context.Context) error

	Close() error
}

// Memory is an in-process Cache.
type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry
	flushes int
}

var _ Cache = (*Memory)(nil)

// NewMemory creates an empty Memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

// Get implements Cache.
func (m *Memory) Get(ctx context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

// Set implements Cache.
func (m *Memory) Set(ctx context.Context, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

// Delete implements Cache.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// List implements Cache.
func (m *Memory) List(ctx context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedRecords(m.entries), nil
}

// Flush implements Cache. It only counts calls.
func (m *Memory) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

// Flushes returns how many times Flush was called.
func (m *Memory) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// Close implements Cache.
func (m *Memory) Close() error {
	return nil
}

func sortedRecords(entries map[string]Entry) []Record {
	out := make([]Record, 0, len(entries))
	for k, e := range entries {
		out = append(out, Record{Key: k, Entry: e})
	}
	slices.SortFunc(out, func(a, b Record) int {
		return strings.Compare(a.Key, b.Key)
	})
	return out
}
