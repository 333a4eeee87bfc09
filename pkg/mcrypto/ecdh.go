package mcrypto

import (
	"crypto/ecdh"
	"fmt"
)

// EphemeralKeyPair is a single-use P-256 ECDH key pair, as generated fresh
// for each Sigma1/Sigma2 exchange (§4.8).
type EphemeralKeyPair struct {
	priv *ecdh.PrivateKey
}

// GenerateEphemeralKeyPair creates a fresh P-256 ECDH key pair.
func GenerateEphemeralKeyPair() (*EphemeralKeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(Rand)
	if err != nil {
		return nil, fmt.Errorf("mcrypto: generate ephemeral key: %w", err)
	}
	return &EphemeralKeyPair{priv: priv}, nil
}

// PublicKeyBytes returns the uncompressed SEC1 encoding of the public key
// (65 bytes: 0x04 || X || Y), the wire format used in Sigma1/Sigma2/Sigma3.
func (kp *EphemeralKeyPair) PublicKeyBytes() []byte {
	return kp.priv.PublicKey().Bytes()
}

// ECDH computes the shared secret with a peer's uncompressed SEC1 public key
// bytes. Returns ErrCrypto if peerPubBytes does not decode to a valid P-256
// point.
func (kp *EphemeralKeyPair) ECDH(peerPubBytes []byte) ([]byte, error) {
	peerPub, err := ecdh.P256().NewPublicKey(peerPubBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid peer public key: %v", ErrCrypto, err)
	}
	secret, err := kp.priv.ECDH(peerPub)
	if err != nil {
		return nil, fmt.Errorf("%w: ecdh: %v", ErrCrypto, err)
	}
	return secret, nil
}
