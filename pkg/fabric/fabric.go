package fabric

import (
	"crypto/ecdsa"
	"errors"
)

// ErrNotFound is returned by a Store when no fabric matches a lookup.
var ErrNotFound = errors.New("fabric: not found")

// Fabric is an immutable record of one commissioned administrative domain,
// as consulted by the CASE session machine. Creation (commissioning) and
// persistence live outside this package's scope; Store is the read-only
// facade CASE depends on.
type Fabric struct {
	Index FabricIndex

	FabricID FabricID
	NodeID   NodeID

	// OperationalID is the per-fabric-per-node identifier used to build the
	// mDNS operational instance name (<operationalId>-<nodeId>._matter._tcp.local).
	OperationalID [OperationalIDSize]byte

	// RootPublicKey is the uncompressed SEC1 P-256 public key of the fabric's
	// root CA (RCAC), used for destination-id candidate generation.
	RootPublicKey [RootPublicKeySize]byte

	// NOC / ICAC are this node's own operational and (optional) intermediate
	// CA certificates, TLV-encoded, sent during Sigma2/Sigma3.
	NOC  []byte
	ICAC []byte

	// IPK is the fabric's Identity Protection Key, stable for the fabric's
	// lifetime.
	IPK [IPKSize]byte

	// signer holds this node's NOC private key, used only through Sign.
	signer *ecdsa.PrivateKey
}

// NewFabric constructs a Fabric record. Intended for use by the (out of
// scope) commissioning/storage layer when hydrating the fabric table; CASE
// itself never constructs one.
func NewFabric(index FabricIndex, fabricID FabricID, nodeID NodeID, operationalID [OperationalIDSize]byte, rootPub [RootPublicKeySize]byte, noc, icac []byte, ipk [IPKSize]byte, signer *ecdsa.PrivateKey) *Fabric {
	return &Fabric{
		Index:         index,
		FabricID:      fabricID,
		NodeID:        nodeID,
		OperationalID: operationalID,
		RootPublicKey: rootPub,
		NOC:           noc,
		ICAC:          icac,
		IPK:           ipk,
		signer:        signer,
	}
}

// Sign produces a 64-byte r||s ECDSA-P256-SHA256 signature over data using
// this fabric's NOC private key, per §4.2.
func (f *Fabric) Sign(data []byte) ([]byte, error) {
	return signP256(f.signer, data)
}

// VerifyCredentials validates that a peer's NOC (and optional ICAC) chains
// to this fabric's root. Chain construction lives in certchain.go; no
// NotBefore/NotAfter check against the current time is made. This is the
// interface CASE calls at Σ2/Σ3 verification time (§4.8, §4.9).
func (f *Fabric) VerifyCredentials(peerNOC, peerICAC []byte) (*PeerIdentity, error) {
	return verifyNOCChain(f.RootPublicKey, peerNOC, peerICAC)
}

// Store is the read-only facade the CASE machine consumes (§4.9). A real
// implementation backs this with the commissioned fabric table; tests back
// it with a map.
type Store interface {
	// FindByDestinationID locates the fabric whose destination-id candidate,
	// computed from peerRandom, matches destinationID. Returns ErrNotFound
	// (wrapped) if none match.
	FindByDestinationID(destinationID [32]byte, peerRandom [32]byte) (*Fabric, error)
}
