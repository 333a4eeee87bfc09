package mcrypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"math/big"
)

// SignP256 signs the SHA-256 digest of data with priv and returns the
// signature in Matter's raw r||s form (64 bytes, each coordinate left-padded
// to 32 bytes), not ASN.1 DER — the encoding the teacher's own
// state_channel.go avoids by using encoding/asn1 for a *different* (Ethereum
// style) chain; Matter's TLV signature field is fixed-width raw r||s.
func SignP256(priv *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	r, s, err := ecdsa.Sign(Rand, priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("mcrypto: sign: %w", err)
	}
	out := make([]byte, P256SignatureSize)
	r.FillBytes(out[:32])
	s.FillBytes(out[32:])
	return out, nil
}

// signP256 is an unexported alias of SignP256. pkg/fabric does not use it;
// it has its own wrapper around SignP256 in certchain.go.
func signP256(priv *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	return SignP256(priv, data)
}

// VerifyP256 verifies a raw r||s signature produced by SignP256 against pub
// and data. Returns ErrCrypto (never the underlying math/big detail) on any
// failure, per §7's "never surface crypto internals" policy.
func VerifyP256(pub *ecdsa.PublicKey, data, sig []byte) error {
	if len(sig) != P256SignatureSize {
		return fmt.Errorf("%w: signature wrong size", ErrCrypto)
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	digest := sha256.Sum256(data)
	if !ecdsa.Verify(pub, digest[:], r, s) {
		return fmt.Errorf("%w: signature verification failed", ErrCrypto)
	}
	return nil
}

// UnmarshalP256PublicKey decodes an uncompressed SEC1 point into an
// *ecdsa.PublicKey, the shape fabric certificate parsing needs when
// extracting a peer's NOC public key for VerifyP256.
func UnmarshalP256PublicKey(b []byte) (*ecdsa.PublicKey, error) {
	x, y := unmarshalPoint(b)
	if x == nil {
		return nil, fmt.Errorf("%w: invalid P-256 public key encoding", ErrCrypto)
	}
	return &ecdsa.PublicKey{Curve: p256Curve(), X: x, Y: y}, nil
}

func unmarshalPoint(b []byte) (x, y *big.Int) {
	if len(b) != P256PublicKeySize || b[0] != 0x04 {
		return nil, nil
	}
	x = new(big.Int).SetBytes(b[1:33])
	y = new(big.Int).SetBytes(b[33:65])
	if !p256Curve().IsOnCurve(x, y) {
		return nil, nil
	}
	return x, y
}
