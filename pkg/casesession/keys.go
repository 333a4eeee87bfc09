package casesession

import "matter-core/pkg/mcrypto"

// Info strings and nonces are exact ASCII constants per §6. The four
// "NCASE_..." nonce constants are each exactly AESCCMNonceSize (13) ASCII
// bytes — the distilled spec's "(16 bytes, fixed)" note for these does not
// match the mandated AES-CCM nonce width (RFC 3610, and mcrypto.go's own
// 13-byte AESCCMNonceSize); this package follows the literal ASCII byte
// length of the named constants, which is the value the Matter Core
// Specification actually uses, and records the correction in DESIGN.md.
const (
	infoSigma1Resume = "Sigma1_Resume"
	infoSigma2Resume = "Sigma2_Resume"
	infoSigma2       = "Sigma2"
	infoSigma3       = "Sigma3"
	infoSessionKeys  = "SessionKeys"

	nonceSigma2N  = "NCASE_Sigma2N"
	nonceSigma3N  = "NCASE_Sigma3N"
	nonceSigmaS1  = "NCASE_SigmaS1"
	nonceSigmaS2  = "NCASE_SigmaS2"
)

// resumeKeySize is the AES-128 key size HKDF derives for Σ1-resume/Σ2-resume
// key material.
const resumeKeySize = mcrypto.SymmetricKeySize

// deriveSigma1ResumeKey computes the key used to verify a Σ1's resumeMIC
// (§4.8 resumption branch, step 1).
func deriveSigma1ResumeKey(sharedSecret, peerRandom []byte, resumptionID [ResumptionIDSize]byte) ([]byte, error) {
	salt := append(append([]byte(nil), peerRandom...), resumptionID[:]...)
	return mcrypto.HKDF(sharedSecret, salt, []byte(infoSigma1Resume), resumeKeySize)
}

// deriveSigma2ResumeKey computes the key used to produce the outgoing
// Σ2-resume's resumeMIC, under the freshly-generated resumptionId.
func deriveSigma2ResumeKey(sharedSecret, peerRandom []byte, resumptionID [ResumptionIDSize]byte) ([]byte, error) {
	salt := append(append([]byte(nil), peerRandom...), resumptionID[:]...)
	return mcrypto.HKDF(sharedSecret, salt, []byte(infoSigma2Resume), resumeKeySize)
}

// verifyResumeMIC checks a 16-byte tag-only AEAD value against key under the
// given fixed nonce, treating it as an AES-CCM seal of the empty plaintext.
func verifyResumeMIC(key []byte, mic [MICSize]byte, nonce string) error {
	_, err := mcrypto.Decrypt(key, mic[:], []byte(nonce), nil)
	return err
}

// computeResumeMIC produces a 16-byte tag-only AEAD value: an AES-CCM seal
// of the empty plaintext under key and the given fixed nonce.
func computeResumeMIC(key []byte, nonce string) ([MICSize]byte, error) {
	sealed, err := mcrypto.Encrypt(key, nil, []byte(nonce), nil)
	if err != nil {
		return [MICSize]byte{}, err
	}
	var out [MICSize]byte
	copy(out[:], sealed)
	return out, nil
}

// deriveSigma2Key computes S2K, the key TBEData2 is encrypted under
// (§4.8 full branch).
func deriveSigma2Key(sharedSecret, salt []byte) ([]byte, error) {
	return mcrypto.HKDF(sharedSecret, salt, []byte(infoSigma2), resumeKeySize)
}

// deriveSigma3Key computes S3K, the key TBEData3 is decrypted under.
func deriveSigma3Key(sharedSecret, salt []byte) ([]byte, error) {
	return mcrypto.HKDF(sharedSecret, salt, []byte(infoSigma3), resumeKeySize)
}

// SessionKeys holds the three 16-byte values split out of the final
// 48-byte SessionKeys HKDF output (§4.8: "output = 48 bytes split 16/16/16
// into i2rKey, r2iKey, attestationChallenge").
type SessionKeys struct {
	I2RKey               [16]byte
	R2IKey               [16]byte
	AttestationChallenge [16]byte
}

// deriveSessionKeys computes the final secure-session key material from the
// CASE shared secret and the accumulated transcript salt.
func deriveSessionKeys(sharedSecret, salt []byte) (SessionKeys, error) {
	out, err := mcrypto.HKDF(sharedSecret, salt, []byte(infoSessionKeys), 48)
	if err != nil {
		return SessionKeys{}, err
	}
	var keys SessionKeys
	copy(keys.I2RKey[:], out[0:16])
	copy(keys.R2IKey[:], out[16:32])
	copy(keys.AttestationChallenge[:], out[32:48])
	return keys, nil
}
