// Package clock provides the timer/clock substrate the scanner's
// re-announce scheduler, the responder's duplicate-suppression window, and
// CASE's exchange timeouts all build on (§4.5). It wraps
// github.com/benbjohnson/clock so tests can advance time deterministically
// instead of sleeping real wall-clock milliseconds, the same pattern the
// teacher's core/connection_pool.go reaper would use a real time.Ticker
// for in production but which this module makes swappable for tests.
package clock

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Service is a monotonic clock plus timer factory. The zero value is not
// usable; construct with New or NewWithClock.
type Service struct {
	clock clock.Clock
}

// New returns a Service backed by the real wall clock.
func New() *Service {
	return &Service{clock: clock.New()}
}

// NewWithClock returns a Service backed by c, typically a *clock.Mock in
// tests.
func NewWithClock(c clock.Clock) *Service {
	return &Service{clock: c}
}

// Now returns the current time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// NowMs returns the current time as milliseconds since the Unix epoch, the
// monotonic counter the scanner's scheduling math (§4.6) and the
// responder's duplicate-suppression window (§4.7) are specified against.
func (s *Service) NowMs() uint64 {
	return uint64(s.clock.Now().UnixMilli())
}

// After returns a channel that fires once after d elapses on this Service's
// clock, for call sites that prefer select-based waiting over a callback
// (e.g. a waiter's timeout branch).
func (s *Service) After(d time.Duration) <-chan time.Time {
	return s.clock.After(d)
}

// Sleep blocks the calling goroutine for d on this Service's clock.
func (s *Service) Sleep(d time.Duration) {
	s.clock.Sleep(d)
}

// Timer is a one-shot, cancellable, restartable timer handle. Start/Stop
// are idempotent, and Stop is safe to call from within the timer's own
// callback (§4.5).
type Timer struct {
	mu      sync.Mutex
	svc     *Service
	d       time.Duration
	cb      func()
	timer   *clock.Timer
	running bool
}

// GetTimer returns a one-shot timer that, once Start is called, invokes cb
// after d elapses. The timer does not start automatically.
func (s *Service) GetTimer(d time.Duration, cb func()) *Timer {
	return &Timer{svc: s, d: d, cb: cb}
}

// Start arms the timer if it is not already running.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.timer = t.svc.clock.AfterFunc(t.d, func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		t.cb()
	})
}

// Stop disarms the timer. Calling Stop when the timer is not running,
// including from inside its own callback, is a safe no-op.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Reset stops the timer if running and rearms it with a new duration.
func (t *Timer) Reset(d time.Duration) {
	t.Stop()
	t.mu.Lock()
	t.d = d
	t.mu.Unlock()
	t.Start()
}

// PeriodicTimer fires cb approximately every interval until Stop is called
// (§4.5). Start/Stop are idempotent.
type PeriodicTimer struct {
	mu       sync.Mutex
	svc      *Service
	interval time.Duration
	cb       func()
	running  bool
	stopCh   chan struct{}
}

// GetPeriodicTimer returns a periodic timer; it does not start automatically.
func (s *Service) GetPeriodicTimer(interval time.Duration, cb func()) *PeriodicTimer {
	return &PeriodicTimer{svc: s, interval: interval, cb: cb}
}

// Start begins the periodic firing loop if not already running.
func (t *PeriodicTimer) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	stopCh := make(chan struct{})
	t.stopCh = stopCh
	ticker := t.svc.clock.Ticker(t.interval)
	t.mu.Unlock()

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.cb()
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop ends the periodic firing loop. Safe to call multiple times or from
// within the callback.
func (t *PeriodicTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)
}
