package session

import (
	"errors"
	"sync"
	"time"
)

// ErrSessionIDsExhausted is returned by GetNextAvailableSessionID (and by
// Create and Reserve) when all
// 65535 non-zero IDs are held by active sessions. In practice this requires
// an implementation bug (session leak); a well-behaved node closes sessions
// long before exhaustion.
var ErrSessionIDsExhausted = errors.New("session: no available local session id")

// ErrNotFound is returned when a lookup by local session id misses.
var ErrNotFound = errors.New("session: not found")

// Manager owns the active secure-session table and allocates local session
// IDs. CASE acquires IDs through GetNextAvailableSessionID, which must not
// re-issue an ID belonging to any currently active session (§5 "Shared-
// resource policy"); allocation is serialized through the same mutex that
// protects the table, so the two can never race.
type Manager struct {
	mu      sync.Mutex
	next    uint16
	bySess  map[uint16]*SecureSession
	nowFunc func() time.Time
}

// NewManager constructs an empty session table. The first allocated ID is
// always non-zero, satisfying the localSessionId≠0 invariant (§3).
func NewManager() *Manager {
	return &Manager{
		next:    0,
		bySess:  make(map[uint16]*SecureSession),
		nowFunc: time.Now,
	}
}

// GetNextAvailableSessionID returns an id not currently held by any active
// session. It scans forward from the last-issued id, wrapping at 65535 and
// skipping 0, so unrelated allocations round-robin rather than clustering at
// the bottom of the space.
func (m *Manager) GetNextAvailableSessionID() (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextLocked()
}

func (m *Manager) nextLocked() (uint16, error) {
	start := m.next
	for {
		m.next++
		if m.next == 0 {
			m.next = 1
		}
		if _, taken := m.bySess[m.next]; !taken {
			return m.next, nil
		}
		if m.next == start {
			return 0, ErrSessionIDsExhausted
		}
	}
}

// Create allocates a fresh local session id, builds a SecureSession from
// cfg, and registers it in the table. cfg.LocalSessionID is overwritten by
// the allocated id.
func (m *Manager) Create(cfg Config) (*SecureSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.nextLocked()
	if err != nil {
		return nil, err
	}
	cfg.LocalSessionID = id

	s := newSecureSession(cfg, m.nowFunc())
	m.bySess[id] = s
	return s, nil
}

// Get looks up an active session by local session id. A reserved-but-not-
// yet-finalized id (see Reserve) is not found.
func (m *Manager) Get(localSessionID uint16) (*SecureSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bySess[localSessionID]
	if !ok || s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

// Reserve allocates a local session id and marks it taken without yet
// building a SecureSession. CASE's full branch needs this: the id is
// advertised in the outgoing Σ2 before the session's key material exists
// (it is only known once Σ3 is verified), and the id must not be handed to
// a concurrent handshake in the meantime.
func (m *Manager) Reserve() (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := m.nextLocked()
	if err != nil {
		return 0, err
	}
	m.bySess[id] = nil
	return id, nil
}

// Finalize completes a reservation made by Reserve, building the
// SecureSession and making it visible to Get.
func (m *Manager) Finalize(id uint16, cfg Config) *SecureSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg.LocalSessionID = id
	s := newSecureSession(cfg, m.nowFunc())
	m.bySess[id] = s
	return s
}

// CancelReservation releases an id reserved by Reserve without finalizing
// it, used when a handshake aborts before Σ3 (§4.8 "Errors": destroy the
// temporary session on exit).
func (m *Manager) CancelReservation(id uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bySess, id)
}

// Remove evicts a session, freeing its local id for reissue.
func (m *Manager) Remove(localSessionID uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bySess, localSessionID)
}

// Count reports the number of local session ids held, counting reserved
// ids that are not yet finalized; used by tests and metrics.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bySess)
}
