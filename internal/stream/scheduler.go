package stream

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// FrameRate is the cadence of a FrameScheduler.
const FrameRate = 60

// Scheduler drives the emitter's ticks. Implementations keep at most one
// outstanding timer or frame request; Cancel must not block on a running tick.
type Scheduler interface {
	// ScheduleNext arranges for tick to run. A recurring scheduler that is
	// already armed ignores the call.
	ScheduleNext(tick func())
	// Cancel drops any outstanding request. It is idempotent.
	Cancel()
}

// IntervalScheduler fires tick every interval until canceled.
type IntervalScheduler struct {
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

func NewIntervalScheduler(interval time.Duration) *IntervalScheduler {
	return &IntervalScheduler{interval: interval}
}

func (s *IntervalScheduler) ScheduleNext(tick func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	stop := make(chan struct{})
	s.stop = stop
	go s.run(stop, tick)
}

func (s *IntervalScheduler) run(stop <-chan struct{}, tick func()) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			tick()
		}
	}
}

func (s *IntervalScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

// FrameScheduler runs tick once per frame. Each call to ScheduleNext requests
// a single frame, so the emitter re-arms it after every tick that did work.
type FrameScheduler struct {
	limiter *rate.Limiter

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	pending bool
}

func NewFrameScheduler() *FrameScheduler {
	return &FrameScheduler{
		limiter: rate.NewLimiter(rate.Every(time.Second/FrameRate), 1),
	}
}

func (s *FrameScheduler) ScheduleNext(tick func()) {
	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return
	}
	if s.ctx == nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	ctx := s.ctx
	s.pending = true
	s.mu.Unlock()

	go func() {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		s.mu.Lock()
		if ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		s.pending = false
		s.mu.Unlock()
		tick()
	}()
}

func (s *FrameScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = nil, nil
	s.pending = false
}
