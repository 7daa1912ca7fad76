// Package stream incrementally renders a growing markdown document.
//
// Text is fed to a Streamer as it arrives. A scheduler ticks the Streamer,
// which consumes a few characters per tick, commits rendered output only up
// to a point where no code fence or math block is left open, and renders
// the remainder separately as a disposable preview.
package stream

import (
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/markis/streammd/internal/render"
)

const (
	DefaultSpeed     = 20 * time.Millisecond
	DefaultChunkSize = 4
)

// Options configures a Streamer.
type Options struct {
	// Speed is the tick interval. Zero ticks once per frame instead.
	Speed time.Duration
	// ChunkSize is the number of characters consumed per tick.
	ChunkSize int
	// Scheduler overrides the scheduler chosen from Speed.
	Scheduler Scheduler
	Logger    *slog.Logger
}

// DefaultOptions returns a 20ms tick consuming 4 characters.
func DefaultOptions() Options {
	return Options{Speed: DefaultSpeed, ChunkSize: DefaultChunkSize}
}

type state int

const (
	stateIdle state = iota
	stateRunning
	// stateDraining is running with a finish requested; the flush happens
	// once all source text has been consumed.
	stateDraining
)

var closed = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Streamer owns one streaming session at a time. Use a separate Streamer for
// each concurrent session; only the renderer may be shared.
type Streamer struct {
	renderer  render.Renderer
	listener  Listener
	scheduler Scheduler
	chunkSize int
	log       *slog.Logger

	// tickMu serializes ticks and finish flushes, and with them deliveries.
	tickMu sync.Mutex

	mu sync.Mutex
	// delivering counts listener calls in progress. It is raised under mu in
	// the same critical section that checks the session is still current.
	delivering  int
	source      strings.Builder
	cursor      int
	pending     string
	committed   strings.Builder
	speculative string
	state       state
	gen         uint64
	session     string
	done        chan struct{}
}

func New(r render.Renderer, l Listener, opts Options) *Streamer {
	if l == nil {
		l = discard{}
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	sched := opts.Scheduler
	if sched == nil {
		if opts.Speed > 0 {
			sched = NewIntervalScheduler(opts.Speed)
		} else {
			sched = NewFrameScheduler()
		}
	}
	return &Streamer{
		renderer:  r,
		listener:  l,
		scheduler: sched,
		chunkSize: opts.ChunkSize,
		log:       opts.Logger,
	}
}

// Add appends content to the source text, or replaces the source text when
// full is set (for producers that always send everything received so far).
// Empty content is ignored.
func (s *Streamer) Add(content string, full bool) {
	if content == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		s.done = make(chan struct{})
		s.session = uuid.NewString()
		s.log.Debug("stream session started", "session", s.session)
	}

	if full {
		s.source.Reset()
		s.source.WriteString(content)
		s.clampCursor()
	} else {
		s.source.WriteString(content)
	}

	if s.state == stateIdle {
		s.start()
	}
}

// clampCursor keeps the cursor inside a replaced source and on a rune boundary.
func (s *Streamer) clampCursor() {
	src := s.source.String()
	if s.cursor > len(src) {
		s.cursor = len(src)
	}
	for s.cursor > 0 && s.cursor < len(src) && !utf8.RuneStart(src[s.cursor]) {
		s.cursor--
	}
}

func (s *Streamer) start() {
	s.scheduler.Cancel()
	s.gen++
	s.state = stateRunning
	s.arm()
}

func (s *Streamer) arm() {
	gen := s.gen
	s.scheduler.ScheduleNext(func() { s.tick(gen) })
}

// Reset discards the session without flushing. It is safe to call at any
// time, including from a listener. Once it returns no delivery from the
// discarded session starts; one already handed to the listener completes
// before the next session's first delivery.
func (s *Streamer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler.Cancel()
	if s.session != "" {
		s.log.Debug("stream session reset", "session", s.session)
	}
	closeDone(s.resetLocked())
}

// resetLocked zeroes the session and returns its done channel, which the
// caller closes once any final delivery has been made.
func (s *Streamer) resetLocked() chan struct{} {
	s.gen++
	s.source.Reset()
	s.cursor = 0
	s.pending = ""
	s.committed.Reset()
	s.speculative = ""
	s.state = stateIdle
	s.session = ""
	done := s.done
	s.done = nil
	return done
}

func closeDone(done chan struct{}) {
	if done != nil {
		close(done)
	}
}

// Finish ends the session. If ticks are still running the remaining source
// is consumed first; the flush then happens on the scheduler. Otherwise the
// pending tail is committed now, delivered with Final set, and all state is
// cleared.
func (s *Streamer) Finish() {
	// A listener finishing from inside a delivery already runs under tickMu.
	if !s.inDelivery() {
		s.tickMu.Lock()
		defer s.tickMu.Unlock()
	}

	s.mu.Lock()
	if s.state != stateIdle {
		s.state = stateDraining
		s.mu.Unlock()
		return
	}
	d, ok, done := s.flushLocked()
	s.deliverLocked(d, ok)
	closeDone(done)
}

func (s *Streamer) inDelivery() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivering > 0
}

// deliverLocked releases mu and hands d to the listener when ok is set. The
// caller holds tickMu unless it is itself running inside a delivery.
func (s *Streamer) deliverLocked(d Delivery, ok bool) {
	if !ok {
		s.mu.Unlock()
		return
	}
	s.delivering++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.delivering--
		s.mu.Unlock()
	}()
	s.listener.Deliver(d)
}

// flushLocked commits the pending tail regardless of safety and resets.
func (s *Streamer) flushLocked() (Delivery, bool, chan struct{}) {
	var d Delivery
	ok := false
	if s.pending != "" {
		out := s.render(s.pending)
		s.committed.WriteString(out)
		d = Delivery{Committed: out, Cumulative: s.committed.String(), Final: true}
		ok = true
	}
	if s.session != "" {
		s.log.Debug("stream session finished", "session", s.session, "bytes", s.source.Len())
	}
	return d, ok, s.resetLocked()
}

func (s *Streamer) tick(gen uint64) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.Lock()
	if gen != s.gen || s.state == stateIdle {
		s.mu.Unlock()
		return
	}

	src := s.source.String()
	if s.cursor >= len(src) {
		s.scheduler.Cancel()
		if s.state != stateDraining {
			s.state = stateIdle
			s.mu.Unlock()
			return
		}
		d, ok, done := s.flushLocked()
		s.deliverLocked(d, ok)
		closeDone(done)
		return
	}

	end := advanceRunes(src, s.cursor, s.chunkSize)
	candidate := s.pending + src[s.cursor:end]
	s.cursor = end

	var d Delivery
	if idx := FindSafeSplitIndex(candidate); idx > 0 {
		d.Committed = s.render(candidate[:idx])
		s.committed.WriteString(d.Committed)
		s.pending = candidate[idx:]
	} else {
		s.pending = candidate
	}
	if s.pending != "" {
		d.Speculative = s.render(s.pending)
	}
	s.speculative = d.Speculative
	d.Cumulative = s.committed.String()
	d.Preview = d.Speculative

	s.arm()
	s.deliverLocked(d, true)
}

// render falls back to the raw text so a renderer failure never stalls the stream.
func (s *Streamer) render(src string) string {
	out, err := s.renderer.Render(src)
	if err != nil {
		s.log.Warn("render failed, emitting source text", "session", s.session, "error", err)
		return src
	}
	return out
}

func advanceRunes(s string, from, n int) int {
	i := from
	for k := 0; k < n && i < len(s); k++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i
}

// Done returns a channel closed when the current session finishes or is
// reset. With no session in progress the channel is already closed.
func (s *Streamer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return closed
	}
	return s.done
}

// HTML returns the committed output followed by the current preview.
func (s *Streamer) HTML() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed.String() + s.speculative
}

// SessionID identifies the session in progress, or is empty when idle and unused.
func (s *Streamer) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}
