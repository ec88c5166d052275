package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemasync/internal/config"
	"github.com/roach88/schemasync/internal/remote"
	"github.com/roach88/schemasync/internal/remote/memory"
	"github.com/roach88/schemasync/internal/testutil"
)

func buildCommand(svc remote.Service, format string) *BuildOptions {
	return &BuildOptions{
		RootOptions: &RootOptions{Format: format},
		Remote:      svc,
		RunIDs:      testutil.NewFixedRunID("run-1"),
	}
}

func TestBuild_SecondRunIsCached(t *testing.T) {
	isolateEnv(t)
	dir := writeDecl(t, articleDecl)
	db := filepath.Join(t.TempDir(), "cache", "cache.db")
	svc := memory.New(memory.WithIDGenerator(testutil.NewSequentialIDs("id")))

	out, err := execute(newBuildCommand(buildCommand(svc, "text")), "--db", db, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 built, 0 cached, 0 failed")
	assert.FileExists(t, db)

	svc.ResetCounts()
	out, err = execute(newBuildCommand(buildCommand(svc, "text")), "--db", db, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "0 built, 2 cached, 0 failed")
	assert.Zero(t, svc.Mutations())
}

func TestBuild_JSONReport(t *testing.T) {
	isolateEnv(t)
	svc := memory.New(memory.WithIDGenerator(testutil.NewSequentialIDs("id")))

	out, err := execute(newBuildCommand(buildCommand(svc, "json")), "--db", filepath.Join(t.TempDir(), "c.db"), writeDecl(t, articleDecl))
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		RunID  string      `json:"run_id"`
		Data   BuildReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
	require.Len(t, resp.Data.Items, 2)
	assert.Equal(t, "block:Hero", resp.Data.Items[0].Key)
	assert.Equal(t, ItemBuilt, resp.Data.Items[0].Status)
	assert.NotEmpty(t, resp.Data.Items[1].RemoteID)
}

func TestBuild_FailedItemExitsWithFailure(t *testing.T) {
	isolateEnv(t)
	svc := memory.New(memory.WithFault(func(op memory.Op, key string) error {
		if op == memory.OpCreateField && key == "slug" {
			return &remote.Error{Status: 422, Message: "rejected"}
		}
		return nil
	}))

	out, err := execute(newBuildCommand(buildCommand(svc, "json")), "--db", filepath.Join(t.TempDir(), "c.db"), writeDecl(t, articleDecl))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string      `json:"status"`
		Data   BuildReport `json:"data"`
		Error  *CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeBuildFailed, resp.Error.Code)

	cached, built, failed := resp.Data.Counts()
	assert.Equal(t, 0, cached)
	assert.Equal(t, 1, built)
	assert.Equal(t, 1, failed)
	assert.Contains(t, resp.Data.Items[1].Error, "rejected")
}

func TestBuild_DryRunLeavesNoCache(t *testing.T) {
	isolateEnv(t)
	db := filepath.Join(t.TempDir(), "cache.db")
	opts := &BuildOptions{RootOptions: &RootOptions{Format: "text"}}

	out, err := execute(newBuildCommand(opts), "--dry-run", "--db", db, writeDecl(t, articleDecl))
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run")
	assert.Contains(t, out, "would call item_types.create hero_block")
	assert.Contains(t, out, "would call fields.create slug")

	_, statErr := os.Stat(db)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuild_CacheIsScopedToEnvironment(t *testing.T) {
	isolateEnv(t)
	dir := writeDecl(t, articleDecl)
	db := filepath.Join(t.TempDir(), "cache.db")

	t.Setenv(config.EnvEnvironment, "staging")
	staging := memory.New(memory.WithIDGenerator(testutil.NewSequentialIDs("stg")))
	out, err := execute(newBuildCommand(buildCommand(staging, "text")), "--db", db, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 built, 0 cached, 0 failed")

	t.Setenv(config.EnvEnvironment, "main")
	prod := memory.New(memory.WithIDGenerator(testutil.NewSequentialIDs("main")))
	out, err = execute(newBuildCommand(buildCommand(prod, "text")), "--db", db, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 built, 0 cached, 0 failed", "ids from staging must not be reused")

	t.Setenv(config.EnvEnvironment, "staging")
	staging.ResetCounts()
	out, err = execute(newBuildCommand(buildCommand(staging, "text")), "--db", db, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "0 built, 2 cached, 0 failed")
	assert.Zero(t, staging.Mutations())
}

func TestBuild_DryRunDoesNotWriteExistingCache(t *testing.T) {
	isolateEnv(t)
	dir := writeDecl(t, articleDecl)
	db := filepath.Join(t.TempDir(), "cache.db")
	svc := memory.New(memory.WithIDGenerator(testutil.NewSequentialIDs("id")))
	_, err := execute(newBuildCommand(buildCommand(svc, "text")), "--db", db, dir)
	require.NoError(t, err)
	before, err := os.ReadFile(db)
	require.NoError(t, err)

	opts := &BuildOptions{RootOptions: &RootOptions{Format: "text"}}
	out, err := execute(newBuildCommand(opts), "--dry-run", "--db", db, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "0 built, 2 cached, 0 failed")

	after, err := os.ReadFile(db)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestBuild_RequiresRemoteConfig(t *testing.T) {
	isolateEnv(t)
	opts := &BuildOptions{RootOptions: &RootOptions{Format: "text"}}

	out, err := execute(newBuildCommand(opts), writeDecl(t, articleDecl))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "remote.base_url is required")
}

func TestBuild_InvalidDeclarations(t *testing.T) {
	isolateEnv(t)
	svc := memory.New()
	dir := writeDecl(t, "package test\n\nitem: A: {kind: \"model\", fields: [{type: \"link\", label: \"B\", validators: {item_item_type: {item_types: [{model: \"Missing\"}]}}}]}\n")

	out, err := execute(newBuildCommand(buildCommand(svc, "text")), "--db", filepath.Join(t.TempDir(), "c.db"), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, loaderCode("E201"))
	assert.Zero(t, svc.Mutations())
}

func loaderCode(code string) string {
	return "Error [" + code + "]"
}
