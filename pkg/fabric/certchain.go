package fabric

import (
	"crypto/ecdsa"
	"fmt"

	"matter-core/pkg/mcrypto"
)

// PeerIdentity is what CASE extracts from a verified peer NOC chain: the
// operational identifiers the session binds to, and any CASE Authenticated
// Tags the access-control layer (out of scope here) consumes.
type PeerIdentity struct {
	NodeID   NodeID
	FabricID FabricID
	CATs     []uint32

	// PublicKeyBytes is the peer's uncompressed SEC1 NOC public key, kept
	// alongside the parsed form for callers that need the wire encoding.
	PublicKeyBytes [RootPublicKeySize]byte
}

// signP256 wraps mcrypto.SignP256; pkg/fabric never duplicates signing
// logic, it only holds the *ecdsa.PrivateKey a Fabric was constructed with.
func signP256(priv *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	return mcrypto.SignP256(priv, data)
}

// verifyNOCChain validates that peerNOC (optionally issued by peerICAC)
// chains to rootPub, and returns the identity it asserts. Mirrors the
// "verify up to root, trust the leaf's claimed subject" shape CASE's
// Σ2/Σ3 processing needs (§4.8, §4.9): no revocation checking, no NotBefore
// /NotAfter clock comparison — Matter devices frequently lack reliable
// wall-clock time at commissioning, and the CASE spec defers expiry policy
// to the commissioner, not the session establishment path.
func verifyNOCChain(rootPub [RootPublicKeySize]byte, peerNOC, peerICAC []byte) (*PeerIdentity, error) {
	noc, err := DecodeMatterCertificate(peerNOC)
	if err != nil {
		return nil, fmt.Errorf("%w: noc: %v", ErrCertChainInvalid, err)
	}

	issuerPub := rootPub
	if len(peerICAC) > 0 {
		icac, err := DecodeMatterCertificate(peerICAC)
		if err != nil {
			return nil, fmt.Errorf("%w: icac: %v", ErrCertChainInvalid, err)
		}
		if err := verifyCertSignature(icac, rootPub); err != nil {
			return nil, fmt.Errorf("%w: icac not signed by fabric root: %v", ErrCertChainInvalid, err)
		}
		issuerPub = icac.PublicKey
	}

	if err := verifyCertSignature(noc, issuerPub); err != nil {
		return nil, fmt.Errorf("%w: noc signature: %v", ErrCertChainInvalid, err)
	}

	if err := noc.SubjectNodeID.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCertChainInvalid, err)
	}
	if err := noc.SubjectFabricID.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCertChainInvalid, err)
	}

	return &PeerIdentity{
		NodeID:         noc.SubjectNodeID,
		FabricID:       noc.SubjectFabricID,
		CATs:           noc.CATs,
		PublicKeyBytes: noc.PublicKey,
	}, nil
}

func verifyCertSignature(cert *MatterCertificate, issuerPub [RootPublicKeySize]byte) error {
	pub, err := mcrypto.UnmarshalP256PublicKey(issuerPub[:])
	if err != nil {
		return err
	}
	return mcrypto.VerifyP256(pub, cert.tbs, cert.Signature[:])
}
