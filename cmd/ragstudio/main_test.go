package main

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/poiesic/ragstudio/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"ragstudio"}, args...))
	return out.String(), err
}

func findCommand(t *testing.T, name string) *cli.Command {
	t.Helper()
	for _, cmd := range newApp().Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func TestGlobalFlags(t *testing.T) {
	t.Run("invalid log level", func(t *testing.T) {
		_, err := runApp(t, "--log-level", "loud", "collections")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("invalid log format", func(t *testing.T) {
		_, err := runApp(t, "--log-format", "xml", "collections")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log format")
	})

	t.Run("qdrant url reads QDRANT_URL", func(t *testing.T) {
		for _, flag := range newApp().Flags {
			if f, ok := flag.(*cli.StringFlag); ok && f.Name == "qdrant-url" {
				assert.Equal(t, []string{"QDRANT_URL"}, f.EnvVars)
				return
			}
		}
		t.Fatal("qdrant-url flag not found")
	})
}

func TestInitAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ragstudio.yaml")

	out, err := runApp(t, "--config", path, "--collection", "kb", "--index-backend", "qdrant", "--qdrant-url", "http://q:6333", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "kb", cfg.Index.Collection)
	assert.Equal(t, config.BackendQdrant, cfg.Index.Backend)
	assert.Equal(t, "http://q:6333", cfg.Index.Qdrant.URL)

	_, err = runApp(t, "--config", path, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	_, err := runApp(t, "--config", filepath.Join(dir, "none.yaml"), "--index-backend", "sqlite", "collections")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestCollectionsOnEmptyIndex(t *testing.T) {
	dir := t.TempDir()
	out, err := runApp(t,
		"--config", filepath.Join(dir, "none.yaml"),
		"--index-path", filepath.Join(dir, "index"),
		"collections",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "DIMENSION")
}

func TestCommandArgumentValidation(t *testing.T) {
	dir := t.TempDir()
	base := []string{"--config", filepath.Join(dir, "none.yaml"), "--index-path", filepath.Join(dir, "index")}

	_, err := runApp(t, append(base, "ingest")...)
	assert.ErrorIs(t, err, errNothingToIngest)

	_, err = runApp(t, append(base, "query")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "question is required")

	_, err = runApp(t, append(base, "watch")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory to watch")

	_, err = runApp(t, append(base, "reindex")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target")

	_, err = runApp(t, append(base, "reindex", "--target", "v2", "--batch-size", "0")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch-size")
}

func TestQueryFlagDefaults(t *testing.T) {
	cmd := findCommand(t, "query")
	for _, flag := range cmd.Flags {
		if f, ok := flag.(*cli.StringFlag); ok && f.Name == "mode" {
			assert.Equal(t, "vector", f.Value)
			return
		}
	}
	t.Fatal("mode flag not found")
}

func TestJoinPattern(t *testing.T) {
	assert.Equal(t, filepath.Join("docs", "**", "*.md"), joinPattern("docs", filepath.Join("**", "*.md")))
	assert.Equal(t, filepath.Join("docs", "**"), joinPattern("docs"+string(filepath.Separator), "**"))
}
