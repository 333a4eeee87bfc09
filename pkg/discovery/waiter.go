package discovery

import "sync"

// Waiter resolves exactly once: either the scanner satisfied its query, its
// timeout fired, or it was cancelled (§3 Waiter, §5 "Cancellation &
// timeouts"). Exactly one Waiter exists per queryId at a time.
type Waiter struct {
	queryID  string
	done     chan struct{}
	once     sync.Once
	timedOut bool
}

func newWaiter(queryID string) *Waiter {
	return &Waiter{queryID: queryID, done: make(chan struct{})}
}

// resolve wakes Wait because the underlying query was satisfied or
// cancelled (§5: "cancel*Discovery... resolves the corresponding waiter
// immediately (as if satisfied)").
func (w *Waiter) resolve() {
	w.once.Do(func() { close(w.done) })
}

// resolveTimeout wakes Wait because the timeout timer fired; per §5 this is
// not an error, the caller re-checks the cache and gets whatever is there.
func (w *Waiter) resolveTimeout() {
	w.once.Do(func() {
		w.timedOut = true
		close(w.done)
	})
}

// Wait blocks until the waiter resolves, returning whether it resolved via
// timeout rather than satisfaction or cancellation.
func (w *Waiter) Wait() (timedOut bool) {
	<-w.done
	return w.timedOut
}

// Watcher invokes cb exactly once per distinct device identifier observed
// during a long discovery window (§4.6
// findCommissionableDevicesContinuously).
type Watcher struct {
	queryID string
	cb      func(*CommissionableRecord)

	mu   sync.Mutex
	seen map[string]bool

	done chan struct{}
	once sync.Once
}

func newWatcher(queryID string, cb func(*CommissionableRecord)) *Watcher {
	return &Watcher{queryID: queryID, cb: cb, seen: make(map[string]bool), done: make(chan struct{})}
}

// notify invokes cb for rec unless its DeviceIdentifier was already reported
// on this watcher.
func (w *Watcher) notify(rec *CommissionableRecord) {
	w.mu.Lock()
	if w.seen[rec.DeviceIdentifier] {
		w.mu.Unlock()
		return
	}
	w.seen[rec.DeviceIdentifier] = true
	w.mu.Unlock()
	w.cb(rec)
}

func (w *Watcher) stop() {
	w.once.Do(func() { close(w.done) })
}
