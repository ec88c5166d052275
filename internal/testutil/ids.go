package testutil

import (
	"strconv"
	"sync"
)

// SequentialIDs hands out ids "<prefix>-1", "<prefix>-2", ... in call order.
//
// Used in place of random UUIDs so remote ids in tests are predictable.
// Safe for concurrent use; concurrent callers still get distinct ids, but
// which caller gets which id depends on scheduling.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequentialIDs creates a generator whose first id is "<prefix>-1".
func NewSequentialIDs(prefix string) *SequentialIDs {
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return g.prefix + "-" + strconv.FormatInt(g.seq, 10)
}

// Issued returns how many ids have been generated.
func (g *SequentialIDs) Issued() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset starts the sequence over.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
