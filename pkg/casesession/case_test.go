package casesession

import (
	"bytes"
	"crypto/ecdsa"
	"testing"

	"matter-core/pkg/fabric"
	"matter-core/pkg/mcrypto"
	"matter-core/pkg/session"
	"matter-core/pkg/tlv"
)

// Matter Certificate TLV tag numbers, mirrored from pkg/fabric/cert.go so
// tests can mint NOCs without reaching into that package's unexported
// helpers.
const (
	tagCertSubject           = 6
	tagCertEllipticPublicKey = 9
	tagCertSignature         = 11
	dnAttrNodeID             = 17
	dnAttrFabricID           = 21
)

func ecdsaPublicKeyBytes(priv *ecdsa.PrivateKey) [fabric.RootPublicKeySize]byte {
	var out [fabric.RootPublicKeySize]byte
	x := priv.PublicKey.X.FillBytes(make([]byte, 32))
	y := priv.PublicKey.Y.FillBytes(make([]byte, 32))
	out[0] = 0x04
	copy(out[1:33], x)
	copy(out[33:65], y)
	return out
}

func mintNOC(t *testing.T, nodeID fabric.NodeID, fabricID fabric.FabricID, subjectPub [fabric.RootPublicKeySize]byte, signer *ecdsa.PrivateKey) []byte {
	t.Helper()

	var tbsBuf bytes.Buffer
	tbsW := tlv.NewWriter(&tbsBuf)
	if err := tbsW.StartStructure(tlv.Anonymous()); err != nil {
		t.Fatal(err)
	}
	if err := writeSubjectDN(tbsW, nodeID, fabricID); err != nil {
		t.Fatal(err)
	}
	if err := tbsW.PutBytes(tlv.ContextTag(tagCertEllipticPublicKey), subjectPub[:]); err != nil {
		t.Fatal(err)
	}
	if err := tbsW.EndContainer(); err != nil {
		t.Fatal(err)
	}

	sig, err := mcrypto.SignP256(signer, tbsBuf.Bytes())
	if err != nil {
		t.Fatal(err)
	}

	var certBuf bytes.Buffer
	w := tlv.NewWriter(&certBuf)
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		t.Fatal(err)
	}
	if err := writeSubjectDN(w, nodeID, fabricID); err != nil {
		t.Fatal(err)
	}
	if err := w.PutBytes(tlv.ContextTag(tagCertEllipticPublicKey), subjectPub[:]); err != nil {
		t.Fatal(err)
	}
	if err := w.PutBytes(tlv.ContextTag(tagCertSignature), sig); err != nil {
		t.Fatal(err)
	}
	if err := w.EndContainer(); err != nil {
		t.Fatal(err)
	}
	return certBuf.Bytes()
}

func writeSubjectDN(w *tlv.Writer, nodeID fabric.NodeID, fabricID fabric.FabricID) error {
	if err := w.StartList(tlv.ContextTag(tagCertSubject)); err != nil {
		return err
	}
	if err := w.PutUint(tlv.ContextTag(dnAttrNodeID), uint64(nodeID)); err != nil {
		return err
	}
	if err := w.PutUint(tlv.ContextTag(dnAttrFabricID), uint64(fabricID)); err != nil {
		return err
	}
	return w.EndContainer()
}

// testFabricPair mints a single-root fabric shared by an initiator and a
// responder node, each with its own root-signed NOC and signing key, as
// CASE's destination-id/NOC-chain checks require.
type testFabricPair struct {
	fabricID  fabric.FabricID
	ipk       [fabric.IPKSize]byte
	rootPub   [fabric.RootPublicKeySize]byte
	initiator *fabric.Fabric
	responder *fabric.Fabric
}

func newTestFabricPair(t *testing.T, initiatorNodeID, responderNodeID fabric.NodeID) *testFabricPair {
	t.Helper()

	rootKey, err := mcrypto.GenerateP256KeyPair()
	if err != nil {
		t.Fatal(err)
	}
	rootPub := ecdsaPublicKeyBytes(rootKey)

	const fabricID = fabric.FabricID(7)
	ipk := [fabric.IPKSize]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

	initKey, err := mcrypto.GenerateP256KeyPair()
	if err != nil {
		t.Fatal(err)
	}
	initPub := ecdsaPublicKeyBytes(initKey)
	initNOC := mintNOC(t, initiatorNodeID, fabricID, initPub, rootKey)

	respKey, err := mcrypto.GenerateP256KeyPair()
	if err != nil {
		t.Fatal(err)
	}
	respPub := ecdsaPublicKeyBytes(respKey)
	respNOC := mintNOC(t, responderNodeID, fabricID, respPub, rootKey)

	var initOpID, respOpID [fabric.OperationalIDSize]byte
	initOpID[0], respOpID[0] = 1, 2

	return &testFabricPair{
		fabricID: fabricID,
		ipk:      ipk,
		rootPub:  rootPub,
		initiator: fabric.NewFabric(1, fabricID, initiatorNodeID, initOpID, rootPub, initNOC, nil, ipk, initKey),
		responder: fabric.NewFabric(1, fabricID, responderNodeID, respOpID, rootPub, respNOC, nil, ipk, respKey),
	}
}

// singleFabricStore answers FindByDestinationID for exactly one fabric,
// standing in for the responder's commissioned-fabric table.
type singleFabricStore struct {
	fab *fabric.Fabric
}

func (s *singleFabricStore) FindByDestinationID(destinationID [32]byte, peerRandom [32]byte) (*fabric.Fabric, error) {
	candidate := fabric.ComputeDestinationID(s.fab.IPK, peerRandom, s.fab.RootPublicKey, s.fab.FabricID, s.fab.NodeID)
	if candidate != destinationID {
		return nil, fabric.ErrNotFound
	}
	return s.fab, nil
}

func TestFullHandshakeEstablishesMatchingSecureSessions(t *testing.T) {
	initiatorNodeID := fabric.NodeID(0x1111111111111111)
	responderNodeID := fabric.NodeID(0x2222222222222222)
	pair := newTestFabricPair(t, initiatorNodeID, responderNodeID)

	sessions := session.NewManager()
	store := &singleFabricStore{fab: pair.responder}

	initiator := NewInitiator(sessions, pair.initiator, responderNodeID)
	sigma1, err := initiator.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if initiator.State() != StateAwaitingSigma2 {
		t.Fatalf("expected AwaitingSigma2, got %s", initiator.State())
	}

	responder := NewResponder(store, sessions, nil)
	sigma2, isResumption, err := responder.HandleSigma1(sigma1)
	if err != nil {
		t.Fatalf("HandleSigma1: %v", err)
	}
	if isResumption {
		t.Fatal("expected the full branch, not resumption, on a first contact")
	}
	if responder.State() != StateAwaitingSigma3 {
		t.Fatalf("expected AwaitingSigma3, got %s", responder.State())
	}

	sigma3, err := initiator.HandleSigma2(sigma2)
	if err != nil {
		t.Fatalf("HandleSigma2: %v", err)
	}
	if initiator.State() != StateAwaitingStatusReport {
		t.Fatalf("expected AwaitingStatusReport, got %s", initiator.State())
	}

	statusReport, err := responder.HandleSigma3(sigma3)
	if err != nil {
		t.Fatalf("HandleSigma3: %v", err)
	}
	if statusReport.Code != StatusSuccess {
		t.Fatalf("expected success status, got %v", statusReport.Code)
	}
	if responder.State() != StateDone {
		t.Fatalf("expected responder Done, got %s", responder.State())
	}

	if err := initiator.HandleStatusReport(true); err != nil {
		t.Fatalf("HandleStatusReport: %v", err)
	}
	if initiator.State() != StateDone {
		t.Fatalf("expected initiator Done, got %s", initiator.State())
	}

	initSecure := initiator.SecureSession()
	respSecure := responder.SecureSession()
	if initSecure == nil || respSecure == nil {
		t.Fatal("expected both sides to hold a secure session")
	}
	if initSecure.LocalSessionID() != respSecure.PeerSessionID() {
		t.Fatalf("session id mismatch: initiator local %d, responder peer %d", initSecure.LocalSessionID(), respSecure.PeerSessionID())
	}
	if initSecure.EncryptionKey() != respSecure.DecryptionKey() || initSecure.DecryptionKey() != respSecure.EncryptionKey() {
		t.Fatal("expected cross-wired I2R/R2I keys to match between initiator and responder")
	}
	if initSecure.AttestationChallenge() != respSecure.AttestationChallenge() {
		t.Fatal("expected matching attestation challenge")
	}

	if initiator.PeerIdentity() == nil || initiator.PeerIdentity().NodeID != responderNodeID {
		t.Fatalf("expected initiator to verify responder node id, got %+v", initiator.PeerIdentity())
	}
	if responder.PeerIdentity() == nil || responder.PeerIdentity().NodeID != initiatorNodeID {
		t.Fatalf("expected responder to verify initiator node id, got %+v", responder.PeerIdentity())
	}
}

func TestResumptionHandshakeReusesSharedSecretAndRotatesResumptionID(t *testing.T) {
	initiatorNodeID := fabric.NodeID(0x3333333333333333)
	responderNodeID := fabric.NodeID(0x4444444444444444)
	pair := newTestFabricPair(t, initiatorNodeID, responderNodeID)

	sessions := session.NewManager()
	store := &singleFabricStore{fab: pair.responder}
	responderResumptions := session.NewMemStore()

	initiator := NewInitiator(sessions, pair.initiator, responderNodeID)
	sigma1, err := initiator.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	responder := NewResponder(store, sessions, responderResumptions)
	sigma2, _, err := responder.HandleSigma1(sigma1)
	if err != nil {
		t.Fatalf("HandleSigma1: %v", err)
	}
	sigma3, err := initiator.HandleSigma2(sigma2)
	if err != nil {
		t.Fatalf("HandleSigma2: %v", err)
	}
	if _, err := responder.HandleSigma3(sigma3); err != nil {
		t.Fatalf("HandleSigma3: %v", err)
	}
	if err := initiator.HandleStatusReport(true); err != nil {
		t.Fatalf("HandleStatusReport: %v", err)
	}

	// The initiator's own copy of the rotated resumption record is the
	// caller's responsibility to persist; build it the way a commissioner
	// would from the session's internal state.
	firstResumptionID := initiator.newResumptionID
	initiatorRec := &session.ResumptionRecord{
		ResumptionID: firstResumptionID,
		SharedSecret: toArray32(initiator.sharedSecret),
		FabricIndex:  pair.initiator.Index,
		PeerNodeID:   responderNodeID,
	}

	storedResponderRec, err := responderResumptions.Get(firstResumptionID)
	if err != nil {
		t.Fatalf("expected responder to have persisted the new resumption record: %v", err)
	}
	if storedResponderRec.SharedSecret != initiatorRec.SharedSecret {
		t.Fatal("expected responder's persisted shared secret to match the initiator's")
	}

	// Second handshake: resume using the record from the first.
	initiator2 := NewInitiator(sessions, pair.initiator, responderNodeID).WithResumption(initiatorRec)
	sigma1b, err := initiator2.Start()
	if err != nil {
		t.Fatalf("Start (resume): %v", err)
	}
	if initiator2.State() != StateAwaitingSigma2Resume {
		t.Fatalf("expected AwaitingSigma2Resume, got %s", initiator2.State())
	}

	responder2 := NewResponder(store, sessions, responderResumptions)
	sigma2r, isResumption, err := responder2.HandleSigma1(sigma1b)
	if err != nil {
		t.Fatalf("HandleSigma1 (resume): %v", err)
	}
	if !isResumption {
		t.Fatal("expected the resumption branch to be taken")
	}
	if responder2.State() != StateAwaitingStatusReport {
		t.Fatalf("expected responder AwaitingStatusReport, got %s", responder2.State())
	}

	initiatorResumptions := session.NewMemStore()
	if err := initiatorResumptions.Put(initiatorRec); err != nil {
		t.Fatal(err)
	}
	statusReport, err := initiator2.HandleSigma2Resume(sigma2r, initiatorResumptions)
	if err != nil {
		t.Fatalf("HandleSigma2Resume: %v", err)
	}
	if statusReport.Code != StatusSuccess {
		t.Fatalf("expected success, got %v", statusReport.Code)
	}
	if initiator2.State() != StateDone {
		t.Fatalf("expected initiator2 Done, got %s", initiator2.State())
	}

	if err := responder2.HandleStatusReport(true); err != nil {
		t.Fatalf("HandleStatusReport (responder resume ack): %v", err)
	}
	if responder2.State() != StateDone {
		t.Fatalf("expected responder2 Done, got %s", responder2.State())
	}

	initSecure := initiator2.SecureSession()
	respSecure := responder2.SecureSession()
	if initSecure == nil || respSecure == nil {
		t.Fatal("expected both sides to hold a secure session after resumption")
	}
	if initSecure.SharedSecret() != toArray32(initiator.sharedSecret) {
		t.Fatal("expected the resumed session to reuse the original shared secret")
	}
	if !initSecure.IsResumption() || !respSecure.IsResumption() {
		t.Fatal("expected both sides to mark the session as a resumption")
	}

	decodedSigma2r, err := DecodeSigma2Resume(sigma2r)
	if err != nil {
		t.Fatalf("DecodeSigma2Resume: %v", err)
	}
	rotatedID := decodedSigma2r.ResumptionID
	if rotatedID == firstResumptionID {
		t.Fatal("expected the resumption id to rotate on every successful resumption")
	}
	if _, err := responderResumptions.Get(firstResumptionID); err == nil {
		t.Fatal("expected the old resumption record to be deleted once rotated")
	}
	if _, err := responderResumptions.Get(rotatedID); err != nil {
		t.Fatalf("expected the rotated record to be persisted: %v", err)
	}
	if _, err := initiatorResumptions.Get(firstResumptionID); err == nil {
		t.Fatal("expected the initiator's old resumption record to be deleted once rotated")
	}
}
