package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/schemasync/internal/config"
	"github.com/roach88/schemasync/internal/loader"
	"github.com/roach88/schemasync/internal/store"
)

// loadConfig loads the config file named by --config, if any.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// loadDeclarations loads and statically checks the declarations in dir.
// Every problem is reported through formatter before the error is returned.
func loadDeclarations(formatter *OutputFormatter, dir string) (*loader.Result, error) {
	res, errs := loader.Load(dir, loader.CollectAll)
	if res == nil {
		var le *loader.LoadError
		if errors.As(errs[0], &le) {
			_ = formatter.Error(le.Code, le.Message, nil)
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", le.Code, le.Message))
		}
		_ = formatter.Error(loader.ErrCodeGeneric, errs[0].Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to load declarations", errs[0])
	}

	errs = append(errs, loader.Check(res.Items)...)
	if len(errs) > 0 {
		issues := toIssues(errs)
		_ = formatter.Error(issues[0].Code, issues[0].Message, issues)
		return nil, NewExitError(ExitFailure, fmt.Sprintf("invalid declarations: %d error(s)", len(errs)))
	}
	formatter.VerboseLog("Loaded %d item(s) from %d CUE file(s) in %s", len(res.Items), res.FileCount, dir)
	return res, nil
}

// openCache opens the SQLite cache at path, creating it and its directory.
// Only the entries of target are visible.
func openCache(path, target string) (*store.Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create cache directory", err)
		}
	}
	st, err := store.Open(path, store.WithTarget(target))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open cache", err)
	}
	return st, nil
}

// snapshotCache copies the target's entries of the cache at path into
// memory. The file is opened read-only and never created or migrated.
// Changes to the copy are never written back.
func snapshotCache(ctx context.Context, path, target string) (*store.Memory, error) {
	mem := store.NewMemory()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return mem, nil
	}

	st, err := store.OpenReadOnly(path, store.WithTarget(target))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open cache", err)
	}
	defer st.Close()

	records, err := st.List(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read cache", err)
	}
	for _, r := range records {
		if err := mem.Set(ctx, r.Key, r.Entry); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read cache", err)
		}
	}
	return mem, nil
}
