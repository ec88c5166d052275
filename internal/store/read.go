package store

import (
	"context"
	"fmt"

	"github.com/roach88/schemasync/internal/ir"
)

// load replaces the in-memory entries with the rows of the store's target
// in the current fingerprint domain.
func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, remote_id, fingerprint
		FROM build_cache
		WHERE target = ? AND domain = ?
		ORDER BY key COLLATE BINARY ASC
	`, s.target, ir.DomainItem)
	if err != nil {
		return fmt.Errorf("load cache: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]Entry)
	for rows.Next() {
		var key string
		var e Entry
		if err := rows.Scan(&key, &e.RemoteID, &e.Fingerprint); err != nil {
			return fmt.Errorf("scan cache entry: %w", err)
		}
		entries[key] = e
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate cache entries: %w", err)
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

// Stale returns the number of rows, in any target, written under another
// fingerprint domain. They are never loaded and are removed by Prune.
func (s *Store) Stale(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM build_cache WHERE domain != ?`, ir.DomainItem).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale entries: %w", err)
	}
	return n, nil
}
