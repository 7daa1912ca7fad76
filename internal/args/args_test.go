package args

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markis/streammd/internal/config"
	"github.com/markis/streammd/internal/stream"
)

func TestParseArgs_Defaults(t *testing.T) {
	cfg := config.NewDefaultConfig()

	args, err := ParseArgs(context.Background(), *cfg, []string{"notes.md"})
	require.NoError(t, err)

	assert.Equal(t, "notes.md", args.Input)
	assert.Equal(t, 20*time.Millisecond, args.Speed)
	assert.Equal(t, 4, args.ChunkSize)
	assert.Equal(t, "auto", args.Format)
	assert.Equal(t, stream.FramingRaw, args.Framing)
	assert.Equal(t, "warn", args.LogLevel)
	assert.False(t, args.Page)
}

func TestParseArgs_Flags(t *testing.T) {
	cfg := config.NewDefaultConfig()

	args, err := ParseArgs(context.Background(), *cfg, []string{
		"--speed", "0", "--chunk-size", "12", "--format", "html",
		"--framing", "sse", "--page", "--preview", "--log-level", "debug",
	})
	require.NoError(t, err)

	assert.Empty(t, args.Input)
	assert.Zero(t, args.Speed)
	assert.Equal(t, 12, args.ChunkSize)
	assert.Equal(t, "html", args.Format)
	assert.Equal(t, stream.FramingSSE, args.Framing)
	assert.True(t, args.Page)
	assert.True(t, args.Preview)
	assert.Equal(t, "debug", args.LogLevel)
}

func TestParseArgs_ConfigValuesAreDefaults(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Stream.ChunkSize = 32
	cfg.Render.Format = "terminal"

	args, err := ParseArgs(context.Background(), *cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 32, args.ChunkSize)
	assert.Equal(t, "terminal", args.Format)
}

func TestParseArgs_Errors(t *testing.T) {
	cfg := config.NewDefaultConfig()

	tests := []struct {
		name string
		argv []string
		want string
	}{
		{"bad framing", []string{"--framing", "xml"}, `unknown framing "xml"`},
		{"bad format", []string{"--format", "pdf"}, `unknown format "pdf"`},
		{"bad chunk size", []string{"--chunk-size", "0"}, "--chunk-size"},
		{"negative speed", []string{"--speed", "-1s"}, "--speed"},
		{"watch without file", []string{"--watch"}, "--watch needs a file"},
		{"watch with sse", []string{"--watch", "--framing", "sse", "a.md"}, "raw markdown"},
		{"too many files", []string{"a.md", "b.md"}, "accepts at most 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArgs(context.Background(), *cfg, tt.argv)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParseArgs_Help(t *testing.T) {
	cfg := config.NewDefaultConfig()

	_, err := ParseArgs(context.Background(), *cfg, []string{"--help"})
	assert.ErrorIs(t, err, ErrHelp)
}

func TestResolveFormat(t *testing.T) {
	assert.Equal(t, "html", ResolveFormat("html", nil))
	assert.Equal(t, "terminal", ResolveFormat("terminal", nil))
	assert.Equal(t, "html", ResolveFormat("auto", nil))

	f, err := os.Create(filepath.Join(t.TempDir(), "out.html"))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "html", ResolveFormat("auto", f))
}
