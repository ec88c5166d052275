package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemasync/internal/config"
)

const articleDecl = `
package test

item: Hero: {
	kind: "block"
	fields: [{type: "string", label: "Headline"}]
}

item: Article: {
	kind: "model"
	fields: [
		{type: "string", label: "Title"},
		{type: "slug", label: "Slug", validators: {slug_title_field: {title_field_id: {ref: "title"}}}},
		{type: "rich_text", label: "Body", validators: {rich_text_blocks: {item_types: [{block: "Hero"}]}}},
	]
}
`

// writeDecl writes src as schema.cue in a new directory.
func writeDecl(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.cue"), []byte(src), 0644))
	return dir
}

// isolateEnv clears the environment variables config reads.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{config.EnvAPIToken, config.EnvEnvironment, config.EnvBaseURL, config.EnvCachePath, config.EnvConcurrency} {
		t.Setenv(k, "")
	}
}

// execute runs cmd with args, returning stdout and the error.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
