package fabric

import (
	"bytes"
	"fmt"

	"matter-core/pkg/tlv"
)

// TLV context tags for the Matter Certificate structure (Matter Core
// Specification §6.5.2), reduced to the fields CASE verification needs:
// the subject's node/fabric identifiers and CASE Authenticated Tags, the
// EC public key, and the issuer's signature.
const (
	tagCertSerialNumber      = 1
	tagCertSignatureAlgo     = 2
	tagCertIssuer            = 3
	tagCertNotBefore         = 4
	tagCertNotAfter          = 5
	tagCertSubject           = 6
	tagCertPublicKeyAlgo     = 7
	tagCertEllipticCurveID   = 8
	tagCertEllipticPublicKey = 9
	tagCertExtensions        = 10
	tagCertSignature         = 11
)

// Distinguished-name attribute tags used inside the Subject/Issuer lists.
const (
	dnAttrNodeID                 = 17 // 0x11
	dnAttrICACID                 = 19 // 0x13
	dnAttrRCACID                 = 20 // 0x14
	dnAttrFabricID               = 21 // 0x15
	dnAttrCASEAuthenticatedTag   = 22 // 0x16
)

// MatterCertificate is a decoded NOC, ICAC, or RCAC. Only the fields CASE's
// chain verification consults are retained; unrecognized subject/issuer
// attributes and the extensions list are skipped on decode.
type MatterCertificate struct {
	SubjectNodeID   NodeID
	SubjectFabricID FabricID
	CATs            []uint32

	PublicKey [RootPublicKeySize]byte
	Signature [64]byte

	// tbs holds the bytes the issuer's signature covers: a re-encoding of
	// the integer and byte-string fields, the subject reduced to its node
	// ID, fabric ID and CATs, and the public key. The issuer DN, the
	// extensions list and any other container are not part of it.
	tbs []byte
}

// DecodeMatterCertificate parses a Matter Certificate from TLV bytes.
func DecodeMatterCertificate(data []byte) (*MatterCertificate, error) {
	r := tlv.NewReader(bytes.NewReader(data))
	if err := r.Next(); err != nil {
		return nil, fmt.Errorf("fabric: cert: %w", err)
	}
	if r.Type() != tlv.ElementTypeStruct {
		return nil, fmt.Errorf("fabric: cert: expected structure, got %v", r.Type())
	}
	if err := r.EnterContainer(); err != nil {
		return nil, err
	}

	cert := &MatterCertificate{}
	var tbsBuf bytes.Buffer
	tbsW := tlv.NewWriter(&tbsBuf)
	if err := tbsW.StartStructure(tlv.Anonymous()); err != nil {
		return nil, err
	}

	for {
		if err := r.Next(); err != nil {
			return nil, err
		}
		if r.IsEndOfContainer() {
			break
		}
		tag := r.Tag()
		if !tag.IsContext() {
			if err := r.Skip(); err != nil {
				return nil, err
			}
			continue
		}

		switch tag.TagNumber() {
		case tagCertSubject:
			nodeID, fabricID, cats, err := decodeDistinguishedName(r)
			if err != nil {
				return nil, fmt.Errorf("fabric: cert: subject: %w", err)
			}
			cert.SubjectNodeID = nodeID
			cert.SubjectFabricID = fabricID
			cert.CATs = cats
			if err := reencodeDNIntoTBS(tbsW, tagCertSubject, nodeID, fabricID, cats); err != nil {
				return nil, err
			}

		case tagCertEllipticPublicKey:
			b, err := r.Bytes()
			if err != nil {
				return nil, fmt.Errorf("fabric: cert: public key: %w", err)
			}
			if len(b) != RootPublicKeySize {
				return nil, fmt.Errorf("fabric: cert: public key wrong size %d", len(b))
			}
			copy(cert.PublicKey[:], b)
			if err := tbsW.PutBytes(tlv.ContextTag(tagCertEllipticPublicKey), b); err != nil {
				return nil, err
			}

		case tagCertSignature:
			b, err := r.Bytes()
			if err != nil {
				return nil, fmt.Errorf("fabric: cert: signature: %w", err)
			}
			if len(b) != 64 {
				return nil, fmt.Errorf("fabric: cert: signature wrong size %d", len(b))
			}
			copy(cert.Signature[:], b)
			// Signature itself is excluded from tbs; every prior field has
			// already been re-encoded above.

		case tagCertIssuer:
			// Issuer DN is skipped and left out of tbs; it is not re-verified
			// against the parent's subject. Chain linkage here is positional
			// (NOC -> ICAC -> root), matching verifyNOCChain's contract.
			if err := r.Skip(); err != nil {
				return nil, err
			}

		default:
			if err := copyScalarIntoTBS(r, tbsW, tag); err != nil {
				return nil, err
			}
		}
	}

	if err := tbsW.EndContainer(); err != nil {
		return nil, err
	}
	cert.tbs = tbsBuf.Bytes()

	return cert, nil
}

// decodeDistinguishedName parses the Subject (or Issuer) attribute list,
// the reader positioned on its ElementTypeList element.
func decodeDistinguishedName(r *tlv.Reader) (NodeID, FabricID, []uint32, error) {
	if r.Type() != tlv.ElementTypeList {
		return 0, 0, nil, fmt.Errorf("expected list, got %v", r.Type())
	}
	if err := r.EnterContainer(); err != nil {
		return 0, 0, nil, err
	}

	var nodeID NodeID
	var fabricID FabricID
	var cats []uint32

	for {
		if err := r.Next(); err != nil {
			return 0, 0, nil, err
		}
		if r.IsEndOfContainer() {
			break
		}
		tag := r.Tag()
		if !tag.IsContext() {
			if err := r.Skip(); err != nil {
				return 0, 0, nil, err
			}
			continue
		}
		switch tag.TagNumber() {
		case dnAttrNodeID:
			v, err := r.Uint()
			if err != nil {
				return 0, 0, nil, err
			}
			nodeID = NodeID(v)
		case dnAttrFabricID:
			v, err := r.Uint()
			if err != nil {
				return 0, 0, nil, err
			}
			fabricID = FabricID(v)
		case dnAttrCASEAuthenticatedTag:
			v, err := r.Uint()
			if err != nil {
				return 0, 0, nil, err
			}
			cats = append(cats, uint32(v))
		default:
			if err := r.Skip(); err != nil {
				return 0, 0, nil, err
			}
		}
	}

	return nodeID, fabricID, cats, nil
}

func reencodeDNIntoTBS(w *tlv.Writer, tag uint8, nodeID NodeID, fabricID FabricID, cats []uint32) error {
	if err := w.StartList(tlv.ContextTag(tag)); err != nil {
		return err
	}
	if nodeID != 0 {
		if err := w.PutUint(tlv.ContextTag(dnAttrNodeID), uint64(nodeID)); err != nil {
			return err
		}
	}
	if fabricID != 0 {
		if err := w.PutUint(tlv.ContextTag(dnAttrFabricID), uint64(fabricID)); err != nil {
			return err
		}
	}
	for _, cat := range cats {
		if err := w.PutUint(tlv.ContextTag(dnAttrCASEAuthenticatedTag), uint64(cat)); err != nil {
			return err
		}
	}
	return w.EndContainer()
}

// copyScalarIntoTBS re-emits a scalar field this package does not interpret
// (serial number, signature algorithm, validity window, public key
// algorithm, curve ID) into the TBS reconstruction so the signature covers
// it. Elements of any other type, containers included, are skipped and left
// out of the TBS.
func copyScalarIntoTBS(r *tlv.Reader, w *tlv.Writer, tag tlv.Tag) error {
	switch r.Type() {
	case tlv.ElementTypeUInt8, tlv.ElementTypeUInt16, tlv.ElementTypeUInt32, tlv.ElementTypeUInt64,
		tlv.ElementTypeInt8, tlv.ElementTypeInt16, tlv.ElementTypeInt32, tlv.ElementTypeInt64:
		v, err := r.Uint()
		if err != nil {
			return err
		}
		return w.PutUint(tag, v)
	case tlv.ElementTypeByteString1, tlv.ElementTypeByteString2, tlv.ElementTypeByteString4, tlv.ElementTypeByteString8:
		b, err := r.Bytes()
		if err != nil {
			return err
		}
		return w.PutBytes(tag, b)
	default:
		return r.Skip()
	}
}
