package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	content string
	reset   bool
}

type fakeFeeder struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeFeeder) Add(content string, full bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !full {
		panic("watcher must send full contents")
	}
	f.calls = append(f.calls, call{content: content})
}

func (f *fakeFeeder) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{reset: true})
}

func (f *fakeFeeder) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeFeeder) lastAdd() string {
	calls := f.snapshot()
	for i := len(calls) - 1; i >= 0; i-- {
		if !calls[i].reset {
			return calls[i].content
		}
	}
	return ""
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWatcher_FeedAppendAndRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# One\n\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeFeeder{}
	errc := make(chan error, 1)
	go func() { errc <- New(quiet()).Run(ctx, path, f) }()

	require.Eventually(t, func() bool { return f.lastAdd() == "# One\n\n" }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("# One\n\nmore"), 0o644))
	require.Eventually(t, func() bool { return f.lastAdd() == "# One\n\nmore" }, 5*time.Second, 10*time.Millisecond)
	for _, c := range f.snapshot() {
		assert.False(t, c.reset, "append must not reset")
	}

	require.NoError(t, os.WriteFile(path, []byte("# Two\n\n"), 0o644))
	require.Eventually(t, func() bool { return f.lastAdd() == "# Two\n\n" }, 5*time.Second, 10*time.Millisecond)

	calls := f.snapshot()
	var sawReset bool
	for _, c := range calls {
		if c.reset {
			sawReset = true
		}
	}
	assert.True(t, sawReset)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	err := New(quiet()).Run(context.Background(), filepath.Join(t.TempDir(), "nope", "x.md"), &fakeFeeder{})
	assert.ErrorContains(t, err, "failed to watch")
}
