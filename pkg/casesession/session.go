package casesession

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"matter-core/pkg/fabric"
	"matter-core/pkg/mcrypto"
	"matter-core/pkg/session"
)

// Role distinguishes which side of the handshake a Session drives.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

// State is the CASE handshake's position (§4.8: IDLE → AWAIT_Σ1 →
// (RESUMPTION | FULL) → DONE | ERROR). Initiator and responder share the
// same state set since the flow is symmetric.
type State int

const (
	StateInit State = iota
	StateAwaitingSigma2
	StateAwaitingSigma2Resume
	StateAwaitingSigma3
	StateAwaitingStatusReport
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateAwaitingSigma2:
		return "AwaitingSigma2"
	case StateAwaitingSigma2Resume:
		return "AwaitingSigma2Resume"
	case StateAwaitingSigma3:
		return "AwaitingSigma3"
	case StateAwaitingStatusReport:
		return "AwaitingStatusReport"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ErrInvalidState is returned when a method is called out of turn for the
// session's role or current state.
var ErrInvalidState = errors.New("casesession: invalid state for operation")

// ErrRejected is returned by HandleStatusReport when the peer reported
// failure.
var ErrRejected = errors.New("casesession: peer rejected handshake")

// Session drives one CASE handshake (§4.8) to completion, ending in a fully
// keyed session.SecureSession registered with the Manager it was built
// with. One Session handles exactly one handshake; a responder listening
// for concurrent Σ1s constructs a fresh Session per inbound exchange (§5
// "Concurrency").
type Session struct {
	mu sync.Mutex

	role  Role
	state State

	fabricStore fabric.Store
	sessions    *session.Manager
	resumptions session.Store

	localFabric  *fabric.Fabric
	targetNodeID fabric.NodeID // initiator only

	localSessionID uint16
	peerSessionID  uint16
	reservedID     uint16 // non-zero while an id is held via sessions.Reserve and not yet finalized

	localRandom [RandomSize]byte
	peerRandom  [RandomSize]byte

	ephemeral  *mcrypto.EphemeralKeyPair
	ourEphPub  [EphPubKeySize]byte
	peerEphPub [EphPubKeySize]byte

	sharedSecret []byte

	sigma1Bytes []byte
	sigma2Bytes []byte
	sigma3Bytes []byte

	localParams *SessionParams
	peerParams  *SessionParams

	resumeAttempt *session.ResumptionRecord // initiator: the record it's trying to resume
	matchedRecord *session.ResumptionRecord // responder: the record matched on Σ1
	newResumptionID [ResumptionIDSize]byte

	peerIdentity *fabric.PeerIdentity

	secureSession *session.SecureSession
}

// NewResponder constructs a Session that answers one inbound Σ1.
// resumptions may be nil, in which case the resumption branch is never
// taken (every Σ1 falls through to the full branch).
func NewResponder(fabricStore fabric.Store, sessions *session.Manager, resumptions session.Store) *Session {
	return &Session{
		role:        RoleResponder,
		state:       StateInit,
		fabricStore: fabricStore,
		sessions:    sessions,
		resumptions: resumptions,
	}
}

// NewInitiator constructs a Session that opens a handshake toward
// targetNodeID over localFabric.
func NewInitiator(sessions *session.Manager, localFabric *fabric.Fabric, targetNodeID fabric.NodeID) *Session {
	return &Session{
		role:         RoleInitiator,
		state:        StateInit,
		sessions:     sessions,
		localFabric:  localFabric,
		targetNodeID: targetNodeID,
	}
}

// WithResumption attempts to resume rec rather than running the full
// handshake. Initiator only.
func (s *Session) WithResumption(rec *session.ResumptionRecord) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumeAttempt = rec
	return s
}

// WithSessionParams sets the MRP parameters this side advertises.
func (s *Session) WithSessionParams(p SessionParams) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localParams = &p
	return s
}

// State reports the handshake's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SecureSession returns the session established by a completed handshake,
// or nil before StateDone.
func (s *Session) SecureSession() *session.SecureSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secureSession
}

// PeerIdentity returns the peer's verified NOC identity, populated once the
// full branch has processed Σ2 (initiator) or Σ3 (responder). Nil on the
// resumption branch, which re-trusts the identity bound at the original
// full handshake instead of re-verifying certificates.
func (s *Session) PeerIdentity() *fabric.PeerIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerIdentity
}

// Abort releases any reserved-but-unfinalized local session id and marks
// the handshake failed, per §7's "always destroy the temporary unsecured
// session on exit." Callers must invoke it after any method below returns
// a non-nil error, since a reservation made earlier in the same branch may
// still be outstanding.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reservedID != 0 {
		s.sessions.CancelReservation(s.reservedID)
		s.reservedID = 0
	}
	s.state = StateFailed
}

// Start begins the handshake (initiator only), returning the encoded Σ1 to
// send.
func (s *Session) Start() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleInitiator {
		return nil, fmt.Errorf("%w: Start only valid for initiator", ErrInvalidState)
	}
	if s.state != StateInit {
		return nil, fmt.Errorf("%w: expected Init, got %s", ErrInvalidState, s.state)
	}

	random, err := mcrypto.RandomBytes(RandomSize)
	if err != nil {
		return nil, err
	}
	copy(s.localRandom[:], random)

	s.ephemeral, err = mcrypto.GenerateEphemeralKeyPair()
	if err != nil {
		return nil, err
	}
	copy(s.ourEphPub[:], s.ephemeral.PublicKeyBytes())

	id, err := s.sessions.Reserve()
	if err != nil {
		return nil, err
	}
	s.reservedID = id
	s.localSessionID = id

	destinationID := fabric.ComputeDestinationID(s.localFabric.IPK, s.localRandom, s.localFabric.RootPublicKey, s.localFabric.FabricID, s.targetNodeID)

	sigma1 := &Sigma1{
		SessionID:     id,
		Random:        s.localRandom,
		EphPubKey:     s.ourEphPub,
		DestinationID: destinationID,
		SessionParams: s.localParams,
	}

	if s.resumeAttempt != nil {
		sigma1.ResumptionID = &s.resumeAttempt.ResumptionID
		key, err := deriveSigma1ResumeKey(s.resumeAttempt.SharedSecret[:], s.localRandom[:], s.resumeAttempt.ResumptionID)
		if err != nil {
			return nil, err
		}
		mic, err := computeResumeMIC(key, nonceSigmaS1)
		if err != nil {
			return nil, err
		}
		sigma1.ResumeMIC = &mic
	}

	data, err := sigma1.Encode()
	if err != nil {
		return nil, err
	}
	s.sigma1Bytes = data

	if s.resumeAttempt != nil {
		s.state = StateAwaitingSigma2Resume
	} else {
		s.state = StateAwaitingSigma2
	}
	return data, nil
}

// HandleSigma1 processes an inbound Σ1 (responder only), returning the
// encoded response (Σ2 or Σ2-resume) and whether the resumption branch was
// taken.
func (s *Session) HandleSigma1(data []byte) (response []byte, isResumption bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleResponder {
		return nil, false, fmt.Errorf("%w: HandleSigma1 only valid for responder", ErrInvalidState)
	}
	if s.state != StateInit {
		return nil, false, fmt.Errorf("%w: expected Init, got %s", ErrInvalidState, s.state)
	}

	sigma1, err := DecodeSigma1(data)
	if err != nil {
		return nil, false, err
	}
	s.sigma1Bytes = data
	s.peerSessionID = sigma1.SessionID
	s.peerRandom = sigma1.Random
	s.peerEphPub = sigma1.EphPubKey
	s.peerParams = sigma1.SessionParams

	if sigma1.HasResumption() {
		if s.resumptions != nil {
			rec, lookupErr := s.resumptions.Get(*sigma1.ResumptionID)
			if lookupErr == nil {
				key, kerr := deriveSigma1ResumeKey(rec.SharedSecret[:], sigma1.Random[:], *sigma1.ResumptionID)
				if kerr == nil && verifyResumeMIC(key, *sigma1.ResumeMIC, nonceSigmaS1) == nil {
					return s.resumeBranch(sigma1, rec)
				}
			}
		}
		// No resumption store, record missing, or resumeMIC invalid: fall
		// through to the full branch, treating Σ1 as if no resumption was
		// attempted.
	} else if sigma1.ResumptionID != nil || sigma1.ResumeMIC != nil {
		s.state = StateFailed
		return nil, false, UnexpectedDataError{"invalid resumption id or resume MIC"}
	}

	return s.fullBranch(sigma1)
}

func (s *Session) resumeBranch(sigma1 *Sigma1, rec *session.ResumptionRecord) ([]byte, bool, error) {
	id, err := s.sessions.Reserve()
	if err != nil {
		s.state = StateFailed
		return nil, true, err
	}

	salt := append(append([]byte(nil), sigma1.Random[:]...), sigma1.ResumptionID[:]...)
	keys, err := deriveSessionKeys(rec.SharedSecret[:], salt)
	if err != nil {
		s.sessions.CancelReservation(id)
		s.state = StateFailed
		return nil, true, err
	}

	cfg := session.Config{
		PeerSessionID:        sigma1.SessionID,
		PeerNodeID:           rec.PeerNodeID,
		SharedSecret:         rec.SharedSecret,
		EncryptionKey:        keys.R2IKey,
		DecryptionKey:        keys.I2RKey,
		AttestationChallenge: keys.AttestationChallenge,
		IsResumption:         true,
		Params:               toSessionParameters(sigma1.SessionParams),
	}
	s.secureSession = s.sessions.Finalize(id, cfg)

	random, err := mcrypto.RandomBytes(ResumptionIDSize)
	if err != nil {
		s.sessions.Remove(id)
		s.state = StateFailed
		return nil, true, err
	}
	copy(s.newResumptionID[:], random)

	resumeKey2, err := deriveSigma2ResumeKey(rec.SharedSecret[:], sigma1.Random[:], s.newResumptionID)
	if err != nil {
		s.sessions.Remove(id)
		s.state = StateFailed
		return nil, true, err
	}
	mic2, err := computeResumeMIC(resumeKey2, nonceSigmaS2)
	if err != nil {
		s.sessions.Remove(id)
		s.state = StateFailed
		return nil, true, err
	}

	s.matchedRecord = rec
	sigma2r := &Sigma2Resume{
		ResumptionID:  s.newResumptionID,
		ResumeMIC:     mic2,
		SessionID:     id,
		SessionParams: s.localParams,
	}
	out, err := sigma2r.Encode()
	if err != nil {
		s.sessions.Remove(id)
		s.state = StateFailed
		return nil, true, err
	}
	s.sigma2Bytes = out
	s.state = StateAwaitingStatusReport
	return out, true, nil
}

func (s *Session) fullBranch(sigma1 *Sigma1) ([]byte, bool, error) {
	fab, err := s.fabricStore.FindByDestinationID(sigma1.DestinationID, sigma1.Random)
	if err != nil {
		s.state = StateFailed
		return nil, false, FabricNotFoundError{err.Error()}
	}
	s.localFabric = fab

	random, err := mcrypto.RandomBytes(RandomSize)
	if err != nil {
		return nil, false, err
	}
	copy(s.localRandom[:], random)

	s.ephemeral, err = mcrypto.GenerateEphemeralKeyPair()
	if err != nil {
		return nil, false, err
	}
	copy(s.ourEphPub[:], s.ephemeral.PublicKeyBytes())

	s.sharedSecret, err = s.ephemeral.ECDH(sigma1.EphPubKey[:])
	if err != nil {
		s.state = StateFailed
		return nil, false, TrustError{err.Error()}
	}

	id, err := s.sessions.Reserve()
	if err != nil {
		return nil, false, err
	}
	s.reservedID = id
	s.localSessionID = id

	sigma1Hash := sha256.Sum256(s.sigma1Bytes)
	sigma2Salt := concatBytes(s.localFabric.IPK[:], s.localRandom[:], s.ourEphPub[:], sigma1Hash[:])
	sigma2Key, err := deriveSigma2Key(s.sharedSecret, sigma2Salt)
	if err != nil {
		return nil, false, err
	}

	tbs2 := &TBSData2{NOC: s.localFabric.NOC, ICAC: s.localFabric.ICAC, OurEphPub: s.ourEphPub, PeerEphPub: sigma1.EphPubKey}
	tbs2Bytes, err := tbs2.Encode()
	if err != nil {
		return nil, false, err
	}
	sig, err := s.localFabric.Sign(tbs2Bytes)
	if err != nil {
		return nil, false, err
	}

	random, err = mcrypto.RandomBytes(ResumptionIDSize)
	if err != nil {
		return nil, false, err
	}
	copy(s.newResumptionID[:], random)

	tbe2 := &TBEData2{NOC: s.localFabric.NOC, ICAC: s.localFabric.ICAC, ResumptionID: s.newResumptionID}
	copy(tbe2.Signature[:], sig)
	tbe2Bytes, err := tbe2.Encode()
	if err != nil {
		return nil, false, err
	}

	ciphertext, err := mcrypto.Encrypt(sigma2Key, tbe2Bytes, []byte(nonceSigma2N), nil)
	if err != nil {
		return nil, false, err
	}

	sigma2 := &Sigma2{
		Random:        s.localRandom,
		SessionID:     id,
		EphPubKey:     s.ourEphPub,
		Encrypted2:    ciphertext,
		SessionParams: s.localParams,
	}
	out, err := sigma2.Encode()
	if err != nil {
		return nil, false, err
	}
	s.sigma2Bytes = out
	s.state = StateAwaitingSigma3
	return out, false, nil
}

// HandleSigma3 processes an inbound Σ3 (responder, full branch only),
// returning the StatusReport to send back. On success the SecureSession is
// already registered and the new ResumptionRecord already persisted.
func (s *Session) HandleSigma3(data []byte) (*StatusReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleResponder {
		return nil, fmt.Errorf("%w: HandleSigma3 only valid for responder", ErrInvalidState)
	}
	if s.state != StateAwaitingSigma3 {
		return nil, fmt.Errorf("%w: expected AwaitingSigma3, got %s", ErrInvalidState, s.state)
	}

	sigma3, err := DecodeSigma3(data)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}
	s.sigma3Bytes = data

	transcript := sha256.Sum256(concatBytes(s.sigma1Bytes, s.sigma2Bytes))
	sigma3Salt := concatBytes(s.localFabric.IPK[:], transcript[:])
	sigma3Key, err := deriveSigma3Key(s.sharedSecret, sigma3Salt)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	plaintext, err := mcrypto.Decrypt(sigma3Key, sigma3.Encrypted3, []byte(nonceSigma3N), nil)
	if err != nil {
		s.state = StateFailed
		return nil, TrustError{err.Error()}
	}
	tbe3, err := DecodeTBEData3(plaintext)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	identity, err := s.localFabric.VerifyCredentials(tbe3.NOC, tbe3.ICAC)
	if err != nil {
		s.state = StateFailed
		return nil, TrustError{err.Error()}
	}

	// PeerEphPub is the signer's (initiator's) own key, OurEphPub this
	// responder's — see the matching comment in HandleSigma2.
	tbs3 := &TBSData3{NOC: tbe3.NOC, ICAC: tbe3.ICAC, PeerEphPub: s.peerEphPub, OurEphPub: s.ourEphPub}
	tbs3Bytes, err := tbs3.Encode()
	if err != nil {
		s.state = StateFailed
		return nil, err
	}
	peerPub, err := mcrypto.UnmarshalP256PublicKey(identity.PublicKeyBytes[:])
	if err != nil {
		s.state = StateFailed
		return nil, TrustError{err.Error()}
	}
	if err := mcrypto.VerifyP256(peerPub, tbs3Bytes, tbe3.Signature[:]); err != nil {
		s.state = StateFailed
		return nil, TrustError{err.Error()}
	}
	s.peerIdentity = identity

	secureTranscript := sha256.Sum256(concatBytes(s.sigma1Bytes, s.sigma2Bytes, s.sigma3Bytes))
	secureSalt := concatBytes(s.localFabric.IPK[:], secureTranscript[:])
	keys, err := deriveSessionKeys(s.sharedSecret, secureSalt)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	cfg := session.Config{
		PeerSessionID:        s.peerSessionID,
		Fabric:               s.localFabric,
		PeerNodeID:           identity.NodeID,
		SharedSecret:         toArray32(s.sharedSecret),
		EncryptionKey:        keys.R2IKey,
		DecryptionKey:        keys.I2RKey,
		AttestationChallenge: keys.AttestationChallenge,
		Params:               toSessionParameters(s.peerParams),
	}
	s.secureSession = s.sessions.Finalize(s.reservedID, cfg)
	s.reservedID = 0
	s.state = StateDone

	// The secure session is already valid at this point; a failure to
	// persist the new resumption record doesn't invalidate it, only the
	// ability to resume this fabric/node pair in a future handshake.
	if s.resumptions != nil {
		rec := &session.ResumptionRecord{
			ResumptionID: s.newResumptionID,
			SharedSecret: toArray32(s.sharedSecret),
			FabricIndex:  s.localFabric.Index,
			PeerNodeID:   identity.NodeID,
			Params:       toSessionParameters(s.peerParams),
		}
		if err := s.resumptions.Put(rec); err != nil {
			return &StatusReport{Code: StatusSuccess}, err
		}
	}

	return &StatusReport{Code: StatusSuccess}, nil
}

// HandleStatusReport completes a responder's resumption branch once the
// initiator's ack arrives, or a failed full-branch/resumption handshake
// seen from either role.
func (s *Session) HandleStatusReport(success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingStatusReport {
		return fmt.Errorf("%w: expected AwaitingStatusReport, got %s", ErrInvalidState, s.state)
	}

	if !success {
		if s.reservedID != 0 {
			s.sessions.CancelReservation(s.reservedID)
			s.reservedID = 0
		}
		if s.secureSession != nil {
			s.sessions.Remove(s.secureSession.LocalSessionID())
			s.secureSession = nil
		}
		s.state = StateFailed
		return ErrRejected
	}

	if s.role == RoleResponder && s.resumptions != nil && s.matchedRecord != nil {
		rec := &session.ResumptionRecord{
			ResumptionID: s.newResumptionID,
			SharedSecret: s.matchedRecord.SharedSecret,
			FabricIndex:  s.matchedRecord.FabricIndex,
			PeerNodeID:   s.matchedRecord.PeerNodeID,
			Params:       toSessionParameters(s.peerParams),
		}
		if err := s.resumptions.Put(rec); err != nil {
			s.state = StateFailed
			return err
		}
		if s.matchedRecord.ResumptionID != s.newResumptionID {
			_ = s.resumptions.Delete(s.matchedRecord.ResumptionID)
		}
	}

	s.state = StateDone
	return nil
}

// HandleSigma2 processes an inbound Σ2 (initiator, full branch), returning
// the encoded Σ3 to send.
func (s *Session) HandleSigma2(data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleInitiator {
		return nil, fmt.Errorf("%w: HandleSigma2 only valid for initiator", ErrInvalidState)
	}
	if s.state != StateAwaitingSigma2 && s.state != StateAwaitingSigma2Resume {
		return nil, fmt.Errorf("%w: expected AwaitingSigma2, got %s", ErrInvalidState, s.state)
	}

	sigma2, err := DecodeSigma2(data)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}
	s.sigma2Bytes = data
	s.peerSessionID = sigma2.SessionID
	s.peerEphPub = sigma2.EphPubKey
	s.peerParams = sigma2.SessionParams

	s.sharedSecret, err = s.ephemeral.ECDH(sigma2.EphPubKey[:])
	if err != nil {
		s.state = StateFailed
		return nil, TrustError{err.Error()}
	}

	sigma1Hash := sha256.Sum256(s.sigma1Bytes)
	sigma2Salt := concatBytes(s.localFabric.IPK[:], sigma2.Random[:], sigma2.EphPubKey[:], sigma1Hash[:])
	sigma2Key, err := deriveSigma2Key(s.sharedSecret, sigma2Salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := mcrypto.Decrypt(sigma2Key, sigma2.Encrypted2, []byte(nonceSigma2N), nil)
	if err != nil {
		s.state = StateFailed
		return nil, TrustError{err.Error()}
	}
	tbe2, err := DecodeTBEData2(plaintext)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	identity, err := s.localFabric.VerifyCredentials(tbe2.NOC, tbe2.ICAC)
	if err != nil {
		s.state = StateFailed
		return nil, TrustError{err.Error()}
	}
	if identity.NodeID != s.targetNodeID {
		s.state = StateFailed
		return nil, UnexpectedDataError{"responder node id does not match target"}
	}

	tbs2 := &TBSData2{NOC: tbe2.NOC, ICAC: tbe2.ICAC, OurEphPub: sigma2.EphPubKey, PeerEphPub: s.ourEphPub}
	tbs2Bytes, err := tbs2.Encode()
	if err != nil {
		return nil, err
	}
	peerPub, err := mcrypto.UnmarshalP256PublicKey(identity.PublicKeyBytes[:])
	if err != nil {
		s.state = StateFailed
		return nil, TrustError{err.Error()}
	}
	if err := mcrypto.VerifyP256(peerPub, tbs2Bytes, tbe2.Signature[:]); err != nil {
		s.state = StateFailed
		return nil, TrustError{err.Error()}
	}
	s.peerIdentity = identity
	s.newResumptionID = tbe2.ResumptionID

	// TBSData3's field names are fixed to the verifier's point of view
	// (§4.8: "peerSigTbs = TLV{peerNOC, peerICA?, peerEcdhPub, ourEcdhPub}"):
	// PeerEphPub always carries the signer's own key, OurEphPub the other
	// side's — the opposite of TBSData2, whose fields follow the signer.
	tbs3 := &TBSData3{NOC: s.localFabric.NOC, ICAC: s.localFabric.ICAC, PeerEphPub: s.ourEphPub, OurEphPub: sigma2.EphPubKey}
	tbs3Bytes, err := tbs3.Encode()
	if err != nil {
		return nil, err
	}
	sig, err := s.localFabric.Sign(tbs3Bytes)
	if err != nil {
		return nil, err
	}
	tbe3 := &TBEData3{NOC: s.localFabric.NOC, ICAC: s.localFabric.ICAC}
	copy(tbe3.Signature[:], sig)
	tbe3Bytes, err := tbe3.Encode()
	if err != nil {
		return nil, err
	}

	transcript := sha256.Sum256(concatBytes(s.sigma1Bytes, s.sigma2Bytes))
	sigma3Salt := concatBytes(s.localFabric.IPK[:], transcript[:])
	sigma3Key, err := deriveSigma3Key(s.sharedSecret, sigma3Salt)
	if err != nil {
		return nil, err
	}
	ciphertext, err := mcrypto.Encrypt(sigma3Key, tbe3Bytes, []byte(nonceSigma3N), nil)
	if err != nil {
		return nil, err
	}

	sigma3 := &Sigma3{Encrypted3: ciphertext}
	out, err := sigma3.Encode()
	if err != nil {
		return nil, err
	}
	s.sigma3Bytes = out
	s.state = StateAwaitingStatusReport
	return out, nil
}

// HandleSigma2Resume processes an inbound Σ2-resume (initiator, resumption
// branch), returning the StatusReport to send back. On success the
// SecureSession is already registered and the rotated ResumptionRecord
// already persisted (when resumptions is non-nil).
func (s *Session) HandleSigma2Resume(data []byte, resumptions session.Store) (*StatusReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleInitiator {
		return nil, fmt.Errorf("%w: HandleSigma2Resume only valid for initiator", ErrInvalidState)
	}
	if s.state != StateAwaitingSigma2Resume {
		return nil, fmt.Errorf("%w: expected AwaitingSigma2Resume, got %s", ErrInvalidState, s.state)
	}
	if s.resumeAttempt == nil {
		return nil, fmt.Errorf("%w: no resumption attempt in progress", ErrInvalidState)
	}

	sigma2r, err := DecodeSigma2Resume(data)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}
	s.sigma2Bytes = data
	s.peerSessionID = sigma2r.SessionID
	s.peerParams = sigma2r.SessionParams

	key, err := deriveSigma2ResumeKey(s.resumeAttempt.SharedSecret[:], s.localRandom[:], sigma2r.ResumptionID)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}
	if err := verifyResumeMIC(key, sigma2r.ResumeMIC, nonceSigmaS2); err != nil {
		s.state = StateFailed
		return nil, TrustError{"resume MIC verification failed"}
	}

	salt := append(append([]byte(nil), s.localRandom[:]...), s.resumeAttempt.ResumptionID[:]...)
	keys, err := deriveSessionKeys(s.resumeAttempt.SharedSecret[:], salt)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	cfg := session.Config{
		PeerSessionID:        sigma2r.SessionID,
		PeerNodeID:           s.resumeAttempt.PeerNodeID,
		SharedSecret:         s.resumeAttempt.SharedSecret,
		EncryptionKey:        keys.I2RKey,
		DecryptionKey:        keys.R2IKey,
		AttestationChallenge: keys.AttestationChallenge,
		IsInitiator:          true,
		IsResumption:         true,
		Params:               toSessionParameters(s.peerParams),
	}
	s.secureSession = s.sessions.Finalize(s.reservedID, cfg)
	s.reservedID = 0
	s.state = StateDone

	// As in HandleSigma3, the secure session is already valid here; a
	// failure to persist the rotated resumption record only costs a future
	// resumption attempt, not this session.
	if resumptions != nil {
		rec := &session.ResumptionRecord{
			ResumptionID: sigma2r.ResumptionID,
			SharedSecret: s.resumeAttempt.SharedSecret,
			FabricIndex:  s.resumeAttempt.FabricIndex,
			PeerNodeID:   s.resumeAttempt.PeerNodeID,
			Params:       toSessionParameters(s.peerParams),
		}
		if err := resumptions.Put(rec); err != nil {
			return &StatusReport{Code: StatusSuccess}, err
		}
		if s.resumeAttempt.ResumptionID != sigma2r.ResumptionID {
			_ = resumptions.Delete(s.resumeAttempt.ResumptionID)
		}
	}

	return &StatusReport{Code: StatusSuccess}, nil
}

// StatusForError maps an error returned by this package to the secure
// channel status code a responder should send back (§7's "Errors").
func StatusForError(err error) StatusCode {
	var fnf FabricNotFoundError
	if errors.As(err, &fnf) {
		return StatusNoSharedTrustRoots
	}
	return StatusInvalidParam
}

func concatBytes(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func toArray32(b []byte) [32]byte {
	var a [32]byte
	copy(a[:], b)
	return a
}

func toSessionParameters(p *SessionParams) session.SessionParameters {
	var out session.SessionParameters
	if p == nil {
		return out
	}
	if p.IdleIntervalMs != nil {
		out.IdleIntervalMs = *p.IdleIntervalMs
	}
	if p.ActiveIntervalMs != nil {
		out.ActiveIntervalMs = *p.ActiveIntervalMs
	}
	if p.ActiveThresholdMs != nil {
		out.ActiveThresholdMs = *p.ActiveThresholdMs
	}
	return out
}
