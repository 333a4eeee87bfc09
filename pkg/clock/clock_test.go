package clock

import (
	"sync/atomic"
	"testing"
	"time"

	bjclock "github.com/benbjohnson/clock"
)

func TestTimerFiresOnce(t *testing.T) {
	mock := bjclock.NewMock()
	svc := NewWithClock(mock)

	var fired int32
	timer := svc.GetTimer(100*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})
	timer.Start()

	mock.Add(50 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatalf("timer fired early")
	}
	mock.Add(60 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 1 {
		t.Fatalf("expected timer to fire once, got %d", fired)
	}
}

func TestTimerStopIsIdempotent(t *testing.T) {
	mock := bjclock.NewMock()
	svc := NewWithClock(mock)

	timer := svc.GetTimer(10*time.Millisecond, func() {})
	timer.Stop()
	timer.Stop()

	timer.Start()
	timer.Stop()
	timer.Stop()
}

func TestPeriodicTimerFiresRepeatedly(t *testing.T) {
	mock := bjclock.NewMock()
	svc := NewWithClock(mock)

	var count int32
	pt := svc.GetPeriodicTimer(10*time.Millisecond, func() {
		atomic.AddInt32(&count, 1)
	})
	pt.Start()
	defer pt.Stop()

	for i := 0; i < 3; i++ {
		mock.Add(10 * time.Millisecond)
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&count) < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if atomic.LoadInt32(&count) < 3 {
		t.Fatalf("expected at least 3 firings, got %d", count)
	}
}

func TestNowMsMonotonic(t *testing.T) {
	mock := bjclock.NewMock()
	svc := NewWithClock(mock)

	first := svc.NowMs()
	mock.Add(time.Second)
	second := svc.NowMs()
	if second <= first {
		t.Fatalf("expected NowMs to advance, got %d -> %d", first, second)
	}
}
