package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemasync/internal/ir"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	_, path := createTestStore(t)

	_, err := os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s, _ := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "2"))
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	s, path := createTestStore(t)
	_, err := s.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestStore_SetIsStagedUntilFlush(t *testing.T) {
	ctx := context.Background()
	s, path := createTestStore(t)

	require.NoError(t, s.Set(ctx, "model:Article", Entry{RemoteID: "it-1", Fingerprint: "fp-1"}))

	got, ok, err := s.Get(ctx, "model:Article")
	require.NoError(t, err)
	require.True(t, ok, "staged entries are visible within the run")
	assert.Equal(t, Entry{RemoteID: "it-1", Fingerprint: "fp-1"}, got)
	assert.Equal(t, 1, s.Pending())

	// Not flushed: lost on reopen.
	s = reopen(t, s, path)
	_, ok, err = s.Get(ctx, "model:Article")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "model:Article", Entry{RemoteID: "it-1", Fingerprint: "fp-1"}))
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 0, s.Pending())

	s = reopen(t, s, path)
	got, ok, err = s.Get(ctx, "model:Article")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "it-1", got.RemoteID)
}

func TestStore_FlushOverwritesAndDeletes(t *testing.T) {
	ctx := context.Background()
	s, path := createTestStore(t)

	require.NoError(t, s.Set(ctx, "block:Hero", Entry{RemoteID: "it-1", Fingerprint: "a"}))
	require.NoError(t, s.Set(ctx, "model:Page", Entry{RemoteID: "it-2", Fingerprint: "b"}))
	require.NoError(t, s.Flush(ctx))

	require.NoError(t, s.Set(ctx, "block:Hero", Entry{RemoteID: "it-1", Fingerprint: "c"}))
	require.NoError(t, s.Delete(ctx, "model:Page"))
	require.NoError(t, s.Flush(ctx))

	s = reopen(t, s, path)
	records, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Record{{Key: "block:Hero", Entry: Entry{RemoteID: "it-1", Fingerprint: "c"}}}, records)
}

func TestStore_FlushWithoutChangesIsNoop(t *testing.T) {
	s, _ := createTestStore(t)
	assert.NoError(t, s.Flush(context.Background()))
}

func TestStore_SetRejectsIncompleteEntries(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)

	assert.Error(t, s.Set(ctx, "", Entry{RemoteID: "x", Fingerprint: "y"}))
	assert.Error(t, s.Set(ctx, "model:A", Entry{RemoteID: "x"}))
	assert.Equal(t, 0, s.Pending())
}

func TestStore_IgnoresOtherFingerprintDomains(t *testing.T) {
	ctx := context.Background()
	s, path := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO build_cache (target, key, remote_id, fingerprint, domain, seq) VALUES ('', ?, ?, ?, ?, 1)`,
		"model:Old", "it-9", "fp", "schemasync/item/v0")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "model:New", Entry{RemoteID: "it-1", Fingerprint: "fp"}))
	require.NoError(t, s.Flush(ctx))

	s = reopen(t, s, path)
	_, ok, err := s.Get(ctx, "model:Old")
	require.NoError(t, err)
	assert.False(t, ok)

	stale, err := s.Stale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stale)

	n, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var domain string
	require.NoError(t, s.db.QueryRow(`SELECT domain FROM build_cache WHERE key = ?`, "model:New").Scan(&domain))
	assert.Equal(t, ir.DomainItem, domain)
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	s, path := createTestStore(t)
	require.NoError(t, s.Set(ctx, "model:A", Entry{RemoteID: "1", Fingerprint: "f"}))
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Set(ctx, "model:B", Entry{RemoteID: "2", Fingerprint: "f"}))

	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Pending())

	s = reopen(t, s, path)
	records, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_TargetsAreIndependent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	staging, err := Open(path, WithTarget("https://api.example.com#staging"))
	require.NoError(t, err)
	require.NoError(t, staging.Set(ctx, "model:Article", Entry{RemoteID: "stg-1", Fingerprint: "fp"}))
	require.NoError(t, staging.Flush(ctx))
	require.NoError(t, staging.Close())

	prod, err := Open(path, WithTarget("https://api.example.com#main"))
	require.NoError(t, err)
	defer prod.Close()
	_, ok, err := prod.Get(ctx, "model:Article")
	require.NoError(t, err)
	assert.False(t, ok, "entries of another target must not be visible")

	require.NoError(t, prod.Set(ctx, "model:Article", Entry{RemoteID: "main-1", Fingerprint: "fp"}))
	require.NoError(t, prod.Flush(ctx))
	require.NoError(t, prod.Clear(ctx))

	staging, err = Open(path, WithTarget("https://api.example.com#staging"))
	require.NoError(t, err)
	defer staging.Close()
	got, ok, err := staging.Get(ctx, "model:Article")
	require.NoError(t, err)
	require.True(t, ok, "clear is scoped to its target")
	assert.Equal(t, "stg-1", got.RemoteID)
}

// writeVersion1 creates a database in the layout of schema version 1.
func writeVersion1(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range []string{
		`CREATE TABLE build_cache (key TEXT PRIMARY KEY, remote_id TEXT NOT NULL, fingerprint TEXT NOT NULL, domain TEXT NOT NULL, seq INTEGER NOT NULL)`,
		`INSERT INTO build_cache VALUES ('model:Article', 'it-1', 'fp', '` + ir.DomainItem + `', 1)`,
		`PRAGMA user_version = 1`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func TestOpen_MigratesVersion1(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	writeVersion1(t, path)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.verifyPragma("user_version", "2"))
	records, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records, "unscoped rows cannot be attributed to a target")

	require.NoError(t, s.Set(ctx, "model:Article", Entry{RemoteID: "it-2", Fingerprint: "fp"}))
	require.NoError(t, s.Flush(ctx))
}

func TestOpenReadOnly_LeavesFileUnchanged(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := Open(path, WithTarget("t"))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "model:Article", Entry{RemoteID: "it-1", Fingerprint: "fp"}))
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Close())
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	ro, err := OpenReadOnly(path, WithTarget("t"))
	require.NoError(t, err)
	got, ok, err := ro.Get(ctx, "model:Article")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "it-1", got.RemoteID)

	require.NoError(t, ro.Set(ctx, "model:Page", Entry{RemoteID: "it-2", Fingerprint: "fp"}))
	assert.ErrorIs(t, ro.Flush(ctx), errReadOnly)
	assert.ErrorIs(t, ro.Clear(ctx), errReadOnly)
	_, err = ro.Prune(ctx)
	assert.ErrorIs(t, err, errReadOnly)
	require.NoError(t, ro.Close())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestOpenReadOnly_OlderSchemaLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	writeVersion1(t, path)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	ro, err := OpenReadOnly(path)
	require.NoError(t, err)
	records, err := ro.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, ro.verifyPragma("user_version", "1"))
	require.NoError(t, ro.Close())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "read-only open must not migrate")
}

func TestOpenReadOnly_Errors(t *testing.T) {
	_, err := OpenReadOnly(filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)

	s, path := createTestStore(t)
	_, err = s.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	_, err = OpenReadOnly(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "model:" + string(rune('A'+i))
			assert.NoError(t, s.Set(ctx, key, Entry{RemoteID: "id", Fingerprint: "fp"}))
			_, _, err := s.Get(ctx, key)
			assert.NoError(t, err)
			if i%5 == 0 {
				assert.NoError(t, s.Flush(ctx))
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, s.Flush(ctx))

	records, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 20)
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok, err := m.Get(ctx, "model:A")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "model:B", Entry{RemoteID: "2", Fingerprint: "b"}))
	require.NoError(t, m.Set(ctx, "model:A", Entry{RemoteID: "1", Fingerprint: "a"}))
	require.NoError(t, m.Flush(ctx))
	require.NoError(t, m.Delete(ctx, "model:B"))

	records, err := m.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Record{{Key: "model:A", Entry: Entry{RemoteID: "1", Fingerprint: "a"}}}, records)
	assert.Equal(t, 1, m.Flushes())
	assert.NoError(t, m.Close())
}
