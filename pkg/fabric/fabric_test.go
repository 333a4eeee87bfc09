package fabric

import (
	"bytes"
	"crypto/ecdsa"
	"testing"

	"matter-core/pkg/mcrypto"
	"matter-core/pkg/tlv"
)

func encodeTestCert(t *testing.T, nodeID NodeID, fabricID FabricID, pub [RootPublicKeySize]byte, signer *ecdsa.PrivateKey) []byte {
	t.Helper()

	var tbsBuf bytes.Buffer
	w := tlv.NewWriter(&tbsBuf)
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		t.Fatal(err)
	}
	if err := reencodeDNIntoTBS(w, tagCertSubject, nodeID, fabricID, nil); err != nil {
		t.Fatal(err)
	}
	if err := w.PutBytes(tlv.ContextTag(tagCertEllipticPublicKey), pub[:]); err != nil {
		t.Fatal(err)
	}
	if err := w.EndContainer(); err != nil {
		t.Fatal(err)
	}

	sig, err := mcrypto.SignP256(signer, tbsBuf.Bytes())
	if err != nil {
		t.Fatal(err)
	}

	var fullBuf bytes.Buffer
	fw := tlv.NewWriter(&fullBuf)
	if err := fw.StartStructure(tlv.Anonymous()); err != nil {
		t.Fatal(err)
	}
	if err := reencodeDNIntoTBS(fw, tagCertSubject, nodeID, fabricID, nil); err != nil {
		t.Fatal(err)
	}
	if err := fw.PutBytes(tlv.ContextTag(tagCertEllipticPublicKey), pub[:]); err != nil {
		t.Fatal(err)
	}
	if err := fw.PutBytes(tlv.ContextTag(tagCertSignature), sig); err != nil {
		t.Fatal(err)
	}
	if err := fw.EndContainer(); err != nil {
		t.Fatal(err)
	}
	return fullBuf.Bytes()
}

func TestVerifyNOCChainRootSigned(t *testing.T) {
	rootKey, err := mcrypto.GenerateP256KeyPair()
	if err != nil {
		t.Fatal(err)
	}
	var rootPub [RootPublicKeySize]byte
	copy(rootPub[:], elliptic256Bytes(rootKey))

	nocKey, err := mcrypto.GenerateP256KeyPair()
	if err != nil {
		t.Fatal(err)
	}
	var nocPub [RootPublicKeySize]byte
	copy(nocPub[:], elliptic256Bytes(nocKey))

	nocBytes := encodeTestCert(t, NodeID(42), FabricID(7), nocPub, rootKey)

	identity, err := verifyNOCChain(rootPub, nocBytes, nil)
	if err != nil {
		t.Fatalf("verifyNOCChain: %v", err)
	}
	if identity.NodeID != 42 || identity.FabricID != 7 {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestVerifyNOCChainRejectsTamperedSignature(t *testing.T) {
	rootKey, err := mcrypto.GenerateP256KeyPair()
	if err != nil {
		t.Fatal(err)
	}
	var rootPub [RootPublicKeySize]byte
	copy(rootPub[:], elliptic256Bytes(rootKey))

	otherKey, err := mcrypto.GenerateP256KeyPair()
	if err != nil {
		t.Fatal(err)
	}
	var nocPub [RootPublicKeySize]byte
	copy(nocPub[:], elliptic256Bytes(otherKey))

	// Signed by a key that is not the fabric root.
	nocBytes := encodeTestCert(t, NodeID(1), FabricID(1), nocPub, otherKey)

	if _, err := verifyNOCChain(rootPub, nocBytes, nil); err == nil {
		t.Fatal("expected verification failure for wrong signer")
	}
}

func elliptic256Bytes(priv *ecdsa.PrivateKey) []byte {
	return ecdsaPublicKeyBytes(priv)
}

func ecdsaPublicKeyBytes(priv *ecdsa.PrivateKey) []byte {
	x := priv.PublicKey.X.FillBytes(make([]byte, 32))
	y := priv.PublicKey.Y.FillBytes(make([]byte, 32))
	out := make([]byte, 0, 65)
	out = append(out, 0x04)
	out = append(out, x...)
	out = append(out, y...)
	return out
}
