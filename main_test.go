package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markis/streammd/internal/args"
	"github.com/markis/streammd/internal/config"
)

func runApp(t *testing.T, stdin string, argv ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := &app{
		stdin:  strings.NewReader(stdin),
		stdout: &stdout,
		stderr: &stderr,
		cfg:    config.NewDefaultConfig(),
	}
	err := a.run(context.Background(), argv)
	return stdout.String(), stderr.String(), err
}

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_File(t *testing.T) {
	path := writeInput(t, "notes.md", "# Title\n\nSome **bold** text.\n\n$$\nx^2\n$$\n\nDone.\n")

	out, _, err := runApp(t, "", "--format", "html", "--speed", "1ms", "--chunk-size", "8", path)
	require.NoError(t, err)

	assert.Contains(t, out, "<h1>Title</h1>")
	assert.Contains(t, out, "<strong>bold</strong>")
	assert.Contains(t, out, `<div class="math display"><math`)
	assert.Contains(t, out, "<p>Done.</p>")
	assert.Less(t, strings.Index(out, "<h1>"), strings.Index(out, "<p>Done.</p>"))
}

func TestRun_Stdin(t *testing.T) {
	out, _, err := runApp(t, "Hello from stdin, $x$.\n", "--format", "html", "--speed", "1ms")
	require.NoError(t, err)
	assert.Contains(t, out, `<span class="math inline"><math`)
	assert.Contains(t, out, `<annotation encoding="application/x-tex">x</annotation>`)
}

func TestRun_EmptyInput(t *testing.T) {
	out, _, err := runApp(t, "", "--format", "html", "--speed", "1ms")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRun_SSE(t *testing.T) {
	input := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"## Answer\n\n"}}]}`,
		`data: {"choices":[{"delta":{"content":"It is *fine*."}}]}`,
		`data: [DONE]`,
		"",
	}, "\n")

	out, _, err := runApp(t, input, "--format", "html", "--framing", "sse", "--speed", "1ms")
	require.NoError(t, err)
	assert.Contains(t, out, "<h2>Answer</h2>")
	assert.Contains(t, out, "<em>fine</em>")
	assert.NotContains(t, out, "data:")
}

func TestRun_Page(t *testing.T) {
	path := writeInput(t, "page.md", "```go\nfunc main() {}\n```\n")

	out, _, err := runApp(t, "", "--format", "html", "--page", "--speed", "1ms", path)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<title>page.md</title>")
	assert.Contains(t, out, "katex.min.js")
	assert.Contains(t, out, ".chroma")
	assert.Contains(t, out, `<code class="language-go">`)
	assert.True(t, strings.HasSuffix(out, "</html>\n"))
}

func TestRun_Preview(t *testing.T) {
	_, stderr, err := runApp(t, "Pending paragraph that never breaks", "--format", "html", "--speed", "1ms", "--preview")
	require.NoError(t, err)
	assert.Contains(t, stderr, "--- preview ---")
}

func TestRun_Errors(t *testing.T) {
	_, _, err := runApp(t, "", "--help")
	assert.ErrorIs(t, err, args.ErrHelp)

	_, _, err = runApp(t, "", "--log-level", "loud")
	assert.ErrorContains(t, err, "invalid log level")

	_, _, err = runApp(t, "", "--format", "html", filepath.Join(t.TempDir(), "missing.md"))
	assert.ErrorContains(t, err, "failed to open input")

	_, _, err = runApp(t, "data: {broken\n", "--format", "html", "--framing", "sse")
	assert.ErrorContains(t, err, "stream error")
}
