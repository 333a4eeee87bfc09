// Package mcrypto implements the cryptographic primitive surface required by
// CASE session establishment (§4.2): SHA-256, HKDF, P-256 ECDH, AES-128-CCM,
// and ECDSA-P256 sign/verify. It is a capability surface, not a single type
// — callers obtain randomness, hashes, and key material through package
// functions rather than an instantiated object, mirroring the teacher's
// core/security.go shape (package-level Sign/Verify helpers over an
// algorithm tag) but narrowed to the single suite Matter mandates.
//
// AES-CCM has no maintained third-party Go implementation among the
// retrieved examples or go.mod (only AES-GCM and ChaCha20-Poly1305 AEAD
// constructions appear in the corpus, e.g. orbas1-Synnergy/core/security.go's
// XChaCha20-Poly1305 use). Matter mandates CCM specifically (RFC 3610,
// 16-byte tag, 13-byte nonce), so aesccm.go builds it directly on
// crypto/aes's block cipher, recorded in DESIGN.md. HKDF is the only
// primitive here taken from a library outside the standard library.
package mcrypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrCrypto wraps any verification/decryption failure. Per §7, callers must
// not surface more detail than "crypto operation failed" externally.
var ErrCrypto = errors.New("mcrypto: operation failed")

// Sizes fixed by the Matter Core Specification's CASE/mDNS cryptosuite.
const (
	HashSize             = sha256.Size // 32
	SymmetricKeySize     = 16          // AES-128 key
	P256PublicKeySize    = 65          // uncompressed SEC1 point
	P256SignatureSize    = 64          // r||s, 32 bytes each
	AESCCMTagSize        = 16
	AESCCMNonceSize      = 13
)

// Rand is the source of randomness used by this package. Tests may replace
// it with a deterministic reader; production code leaves it as
// crypto/rand.Reader.
var Rand io.Reader = rand.Reader

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(Rand, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Hash returns the SHA-256 digest of the concatenation of parts.
func Hash(parts ...[]byte) [HashSize]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HKDF derives outLen bytes of key material from secret using HKDF-SHA256
// with the given salt and info, per RFC 5869. Matter's CASE key schedule
// calls this with the ASCII info constants from §6 (e.g. "Sigma2",
// "Sigma1_Resume").
func HKDF(secret, salt, info []byte, outLen int) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, info)
	out := make([]byte, outLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// HMACSHA256 computes the HMAC-SHA256 of the concatenation of parts under
// key, used for destination-identifier candidate generation (§4.13.2). No
// corpus library wraps HMAC beyond crypto/hmac itself, so this uses
// crypto/hmac directly.
func HMACSHA256(key []byte, parts ...[]byte) [HashSize]byte {
	mac := hmac.New(sha256.New, key)
	for _, p := range parts {
		mac.Write(p)
	}
	var out [HashSize]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// p256Curve is the curve used throughout: NIST P-256 (secp256r1), matching
// the teacher's own crypto/elliptic.P256() use in core/state_channel.go.
func p256Curve() elliptic.Curve { return elliptic.P256() }

// GenerateP256KeyPair creates a new ephemeral (or long-lived) NIST P-256 key
// pair.
func GenerateP256KeyPair() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(p256Curve(), Rand)
}
