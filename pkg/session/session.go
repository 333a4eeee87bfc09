// Package session holds the secure-session table and resumption store
// shared between the CASE handshake (pkg/casesession, the session's
// creator) and whatever long-lived secure-channel dispatcher later carries
// traffic over it. The field layout on SecureSession mirrors the 15-field
// SecureContext struct in the CASE reference this repo is grounded on
// (other_examples' backkem-matter pkg/session/secure.go), trimmed to the
// fields this implementation's CASE machine actually populates.
package session

import (
	"sync"
	"time"

	"matter-core/pkg/fabric"
)

// Default MRP parameters (Matter Core Spec 4.11.2.1), used whenever a peer's
// Σ1/Σ2 session parameters are absent.
const (
	DefaultIdleIntervalMs     uint32 = 5000
	DefaultActiveIntervalMs   uint32 = 300
	DefaultActiveThresholdMs  uint32 = 4000
	ResumptionIDSize                 = 16
)

// SessionParameters carries the negotiated MRP timing values (§3).
type SessionParameters struct {
	IdleIntervalMs    uint32
	ActiveIntervalMs  uint32
	ActiveThresholdMs uint32
}

// WithDefaults fills any zero field with the well-known default.
func (p SessionParameters) WithDefaults() SessionParameters {
	if p.IdleIntervalMs == 0 {
		p.IdleIntervalMs = DefaultIdleIntervalMs
	}
	if p.ActiveIntervalMs == 0 {
		p.ActiveIntervalMs = DefaultActiveIntervalMs
	}
	if p.ActiveThresholdMs == 0 {
		p.ActiveThresholdMs = DefaultActiveThresholdMs
	}
	return p
}

// SecureSession is one established CASE secure channel (§3 SecureSession).
// localSessionId is unique among the sessions held by a single Manager; the
// Manager, not this struct, enforces that invariant.
type SecureSession struct {
	mu sync.RWMutex

	localSessionID uint16
	peerSessionID  uint16

	fabric     *fabric.Fabric
	peerNodeID fabric.NodeID

	sharedSecret         [32]byte
	encryptionKey        [16]byte
	decryptionKey        [16]byte
	attestationChallenge [16]byte

	isInitiator  bool
	isResumption bool

	params SessionParameters

	createdAt    time.Time
	lastActivity time.Time
}

// Config groups the fields supplied by the CASE machine when it creates a
// session, after key derivation, at the end of §4.8's resumption or full
// branch.
type Config struct {
	LocalSessionID uint16
	PeerSessionID  uint16

	Fabric     *fabric.Fabric
	PeerNodeID fabric.NodeID

	SharedSecret         [32]byte
	EncryptionKey        [16]byte
	DecryptionKey        [16]byte
	AttestationChallenge [16]byte

	IsInitiator  bool
	IsResumption bool

	Params SessionParameters
}

func newSecureSession(cfg Config, now time.Time) *SecureSession {
	return &SecureSession{
		localSessionID:       cfg.LocalSessionID,
		peerSessionID:        cfg.PeerSessionID,
		fabric:               cfg.Fabric,
		peerNodeID:           cfg.PeerNodeID,
		sharedSecret:         cfg.SharedSecret,
		encryptionKey:        cfg.EncryptionKey,
		decryptionKey:        cfg.DecryptionKey,
		attestationChallenge: cfg.AttestationChallenge,
		isInitiator:          cfg.IsInitiator,
		isResumption:         cfg.IsResumption,
		params:               cfg.Params.WithDefaults(),
		createdAt:            now,
		lastActivity:         now,
	}
}

func (s *SecureSession) LocalSessionID() uint16 { return s.localSessionID }
func (s *SecureSession) PeerSessionID() uint16  { return s.peerSessionID }

func (s *SecureSession) Fabric() *fabric.Fabric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fabric
}

func (s *SecureSession) PeerNodeID() fabric.NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerNodeID
}

func (s *SecureSession) IsInitiator() bool  { return s.isInitiator }
func (s *SecureSession) IsResumption() bool { return s.isResumption }

// SharedSecret returns a copy of the CASE shared secret, retained only to
// support future resumption; never sent on the wire.
func (s *SecureSession) SharedSecret() [32]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sharedSecret
}

func (s *SecureSession) EncryptionKey() [16]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.encryptionKey
}

func (s *SecureSession) DecryptionKey() [16]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.decryptionKey
}

func (s *SecureSession) AttestationChallenge() [16]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attestationChallenge
}

func (s *SecureSession) Params() SessionParameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

func (s *SecureSession) CreatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.createdAt
}

func (s *SecureSession) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Touch records send/receive activity, used by a future secure-channel
// dispatcher for MRP's PeerActiveMode computation.
func (s *SecureSession) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
}

// ResumptionRecord is the durable row consulted on a future Σ1 carrying a
// resumptionId (§3 ResumptionRecord, §4.8 resumption branch).
type ResumptionRecord struct {
	ResumptionID [ResumptionIDSize]byte
	SharedSecret [32]byte
	FabricIndex  fabric.FabricIndex
	PeerNodeID   fabric.NodeID
	Params       SessionParameters
}
