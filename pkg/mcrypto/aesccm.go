package mcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
)

// AES-128-CCM with a 13-byte nonce and 16-byte tag, per the Matter Core
// Specification's secure unicast message and CASE resumption MIC framing
// (RFC 3610 / NIST SP 800-38C). The message-length field width (q=2 bytes)
// matches the 13-byte nonce and bounds plaintext to 65535 bytes, well above
// any CASE message.

const (
	ccmBlockSize = aes.BlockSize // 16
	ccmQ         = 15 - AESCCMNonceSize // length-field width in bytes = 2
)

// Encrypt seals plaintext (which may be empty, as in the Σ1/Σ2 resume MIC
// computation) under key with the given 13-byte nonce and optional
// additional authenticated data. Returns ciphertext with the 16-byte tag
// appended.
func Encrypt(key, plaintext, nonce, aad []byte) ([]byte, error) {
	block, err := newCCMBlock(key, nonce)
	if err != nil {
		return nil, err
	}
	mac, err := ccmMAC(block, nonce, plaintext, aad)
	if err != nil {
		return nil, err
	}
	s0 := ccmCounterBlock(block, nonce, 0)
	tag := make([]byte, AESCCMTagSize)
	xorBytes(tag, mac[:AESCCMTagSize], s0[:AESCCMTagSize])

	ct := ccmCryptStream(block, nonce, plaintext)
	out := make([]byte, 0, len(ct)+AESCCMTagSize)
	out = append(out, ct...)
	out = append(out, tag...)
	return out, nil
}

// Decrypt opens a ciphertext produced by Encrypt. Returns ErrCrypto if the
// tag does not verify, never distinguishing further (§7).
func Decrypt(key, ciphertext, nonce, aad []byte) ([]byte, error) {
	if len(ciphertext) < AESCCMTagSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrCrypto)
	}
	ctBody := ciphertext[:len(ciphertext)-AESCCMTagSize]
	gotTag := ciphertext[len(ciphertext)-AESCCMTagSize:]

	block, err := newCCMBlock(key, nonce)
	if err != nil {
		return nil, err
	}

	plaintext := ccmCryptStream(block, nonce, ctBody)

	mac, err := ccmMAC(block, nonce, plaintext, aad)
	if err != nil {
		return nil, err
	}
	s0 := ccmCounterBlock(block, nonce, 0)
	wantTag := make([]byte, AESCCMTagSize)
	xorBytes(wantTag, mac[:AESCCMTagSize], s0[:AESCCMTagSize])

	if subtle.ConstantTimeCompare(wantTag, gotTag) != 1 {
		return nil, fmt.Errorf("%w: tag mismatch", ErrCrypto)
	}
	return plaintext, nil
}

func newCCMBlock(key, nonce []byte) (cipher.Block, error) {
	if len(key) != SymmetricKeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes", ErrCrypto, SymmetricKeySize)
	}
	if len(nonce) != AESCCMNonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes", ErrCrypto, AESCCMNonceSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return block, nil
}

// ccmFlagsB0 builds the flags byte for the B0 authentication block.
func ccmFlagsB0(hasAAD bool, tagSize int) byte {
	var flags byte
	if hasAAD {
		flags |= 1 << 6
	}
	flags |= byte(((tagSize - 2) / 2) & 0x7) << 3
	flags |= byte((ccmQ - 1) & 0x7)
	return flags
}

// ccmFlagsCtr builds the flags byte for CTR-mode counter blocks (no Adata
// bit, same tag/length encoding shape for symmetry with RFC 3610).
func ccmFlagsCtr() byte {
	return byte((ccmQ - 1) & 0x7)
}

func ccmB0(nonce []byte, msgLen int, hasAAD bool) []byte {
	b0 := make([]byte, ccmBlockSize)
	b0[0] = ccmFlagsB0(hasAAD, AESCCMTagSize)
	copy(b0[1:1+AESCCMNonceSize], nonce)
	putBE(b0[1+AESCCMNonceSize:], uint64(msgLen), ccmQ)
	return b0
}

func ccmCounterBlock(block cipher.Block, nonce []byte, counter uint16) []byte {
	ctr := make([]byte, ccmBlockSize)
	ctr[0] = ccmFlagsCtr()
	copy(ctr[1:1+AESCCMNonceSize], nonce)
	binary.BigEndian.PutUint16(ctr[1+AESCCMNonceSize:], counter)
	out := make([]byte, ccmBlockSize)
	block.Encrypt(out, ctr)
	return out
}

// ccmMAC computes the raw (unencrypted) CBC-MAC over B0, the length-prefixed
// AAD block(s), and the zero-padded plaintext.
func ccmMAC(block cipher.Block, nonce, plaintext, aad []byte) ([]byte, error) {
	mac := make([]byte, ccmBlockSize)

	b0 := ccmB0(nonce, len(plaintext), len(aad) > 0)
	cbcStep(block, mac, b0)

	if len(aad) > 0 {
		aadHeader := encodeAADLength(len(aad))
		buf := append(aadHeader, aad...)
		for len(buf)%ccmBlockSize != 0 {
			buf = append(buf, 0)
		}
		for i := 0; i < len(buf); i += ccmBlockSize {
			cbcStep(block, mac, buf[i:i+ccmBlockSize])
		}
	}

	padded := make([]byte, len(plaintext))
	copy(padded, plaintext)
	for len(padded)%ccmBlockSize != 0 {
		padded = append(padded, 0)
	}
	for i := 0; i < len(padded); i += ccmBlockSize {
		cbcStep(block, mac, padded[i:i+ccmBlockSize])
	}

	return mac, nil
}

func cbcStep(block cipher.Block, mac, in []byte) {
	x := make([]byte, ccmBlockSize)
	xorBytes(x, mac, in)
	block.Encrypt(mac, x)
}

// ccmCryptStream XORs data against the CTR keystream generated starting at
// counter 1 (counter 0 is reserved for encrypting the MAC).
func ccmCryptStream(block cipher.Block, nonce, data []byte) []byte {
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += ccmBlockSize {
		end := i + ccmBlockSize
		if end > len(data) {
			end = len(data)
		}
		counter := uint16(i/ccmBlockSize + 1)
		keystream := ccmCounterBlock(block, nonce, counter)
		xorBytes(out[i:end], data[i:end], keystream[:end-i])
	}
	return out
}

// encodeAADLength encodes the AAD length per RFC 3610 §2.2. Matter's AAD
// (the unencrypted message header) is always well under 0xFF00 bytes.
func encodeAADLength(n int) []byte {
	if n < 0xFF00 {
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(n))
		return b
	}
	b := make([]byte, 6)
	b[0], b[1] = 0xFF, 0xFE
	binary.BigEndian.PutUint32(b[2:], uint32(n))
	return b
}

func putBE(dst []byte, v uint64, width int) {
	for i := width - 1; i >= 0; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}

func xorBytes(dst, a, b []byte) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dst[i] = a[i] ^ b[i]
	}
}
