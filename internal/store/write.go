package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/schemasync/internal/ir"
)

// errReadOnly is returned by writes to a Store from OpenReadOnly.
var errReadOnly = errors.New("cache is open read-only")

// Flush implements Cache. Staged sets and deletes are written in one
// transaction; on failure they stay staged and the next Flush retries them.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.dirty) == 0 && len(s.deleted) == 0 {
		return nil
	}
	if s.readOnly {
		return fmt.Errorf("flush cache: %w", errReadOnly)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM build_cache`).Scan(&seq); err != nil {
		return fmt.Errorf("flush cache: next seq: %w", err)
	}

	// Sorted for a deterministic write order.
	for _, key := range sortedKeys(s.deleted) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM build_cache WHERE target = ? AND key = ?`, s.target, key); err != nil {
			return fmt.Errorf("flush cache: delete %s: %w", key, err)
		}
	}
	for _, key := range sortedKeys(s.dirty) {
		e := s.entries[key]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO build_cache (target, key, remote_id, fingerprint, domain, seq)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(target, key) DO UPDATE SET
				remote_id = excluded.remote_id,
				fingerprint = excluded.fingerprint,
				domain = excluded.domain,
				seq = excluded.seq
		`, s.target, key, e.RemoteID, e.Fingerprint, ir.DomainItem, seq)
		if err != nil {
			return fmt.Errorf("flush cache: write %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("flush cache: commit: %w", err)
	}

	s.dirty = make(map[string]bool)
	s.deleted = make(map[string]bool)
	return nil
}

// Clear deletes every row of the store's target, staged or durable, in
// every domain. Other targets are untouched.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readOnly {
		return fmt.Errorf("clear cache: %w", errReadOnly)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM build_cache WHERE target = ?`, s.target); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	s.entries = make(map[string]Entry)
	s.dirty = make(map[string]bool)
	s.deleted = make(map[string]bool)
	return nil
}

// Prune deletes rows from other fingerprint domains, in every target, and
// returns how many were removed.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	if s.readOnly {
		return 0, fmt.Errorf("prune cache: %w", errReadOnly)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM build_cache WHERE domain != ?`, ir.DomainItem)
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	return n, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
