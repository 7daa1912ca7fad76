package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 20*time.Millisecond, cfg.Stream.Speed)
	assert.Equal(t, 4, cfg.Stream.ChunkSize)
	assert.Equal(t, "auto", cfg.Render.Format)
	assert.Equal(t, "dark", cfg.Render.Theme)
	assert.Equal(t, 120, cfg.Render.Wrap)
	assert.Equal(t, "github", cfg.Render.CodeStyle)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
stream:
  speed: 0s
  chunk_size: 16
render:
  format: html
  sanitize: true
  macros:
    '\NN': '\mathbb{N}'
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	// An explicit zero selects frame pacing and must survive defaults.
	assert.Zero(t, cfg.Stream.Speed)
	assert.Equal(t, 16, cfg.Stream.ChunkSize)
	assert.Equal(t, "html", cfg.Render.Format)
	assert.True(t, cfg.Render.Sanitize)
	assert.Equal(t, `\mathbb{N}`, cfg.Render.Macros[`\NN`])
	assert.Equal(t, "dark", cfg.Render.Theme)
}

func TestLoadFile_TOML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", `
[stream]
speed = "50ms"

[render]
format = "terminal"
emoji = true

[log]
level = "debug"
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 50*time.Millisecond, cfg.Stream.Speed)
	assert.Equal(t, 4, cfg.Stream.ChunkSize)
	assert.Equal(t, "terminal", cfg.Render.Format)
	assert.True(t, cfg.Render.Emoji)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(writeFile(t, dir, "bad.yaml", "stream: [1, 2"))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = LoadFile(writeFile(t, dir, "format.yaml", "render:\n  format: pdf\n"))
	assert.ErrorContains(t, err, `unknown render.format "pdf"`)

	_, err = LoadFile(writeFile(t, dir, "chunk.yaml", "stream:\n  chunk_size: -1\n"))
	assert.ErrorContains(t, err, "chunk_size")

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing directory yields defaults", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())

		cfg, err := LoadConfig(context.Background())
		require.NoError(t, err)
		assert.Equal(t, NewDefaultConfig(), cfg)
	})

	t.Run("first file wins", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", home)
		dir := filepath.Join(home, configDirName)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		writeFile(t, dir, "config.yml", "stream:\n  chunk_size: 9\n")
		writeFile(t, dir, "config.toml", "[stream]\nchunk_size = 3\n")

		cfg, err := LoadConfig(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 9, cfg.Stream.ChunkSize)
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := LoadConfig(ctx)
		assert.Error(t, err)
	})
}
