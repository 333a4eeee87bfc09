// Package casesession implements the Matter CASE handshake (§4.8): the
// Σ1/Σ2/Σ3 certificate-authenticated key exchange, including the
// Σ1-resume/Σ2-resume shortcut, between two already-commissioned nodes.
// Message shapes and the TLV tag layout follow other_examples'
// backkem-matter pkg/securechannel/messages.go almost field-for-field,
// adapted to this module's pkg/tlv and pkg/fabric.
package casesession

import (
	"bytes"
	"io"

	"matter-core/pkg/mcrypto"
	"matter-core/pkg/tlv"
)

// Fixed sizes referenced throughout Sigma message encode/decode.
const (
	RandomSize        = 32
	DestinationIDSize = 32
	ResumptionIDSize  = 16
	MICSize           = 16
	EphPubKeySize     = mcrypto.P256PublicKeySize
	SignatureSize     = mcrypto.P256SignatureSize
)

// TLV context tags, one block per message, matching the grounding file's
// layout.
const (
	tagSigma1Random           = 1
	tagSigma1SessionID        = 2
	tagSigma1DestinationID    = 3
	tagSigma1EphPubKey        = 4
	tagSigma1SessionParams    = 5
	tagSigma1ResumptionID     = 6
	tagSigma1ResumeMIC        = 7

	tagSigma2Random        = 1
	tagSigma2SessionID     = 2
	tagSigma2EphPubKey     = 3
	tagSigma2Encrypted2    = 4
	tagSigma2SessionParams = 5

	tagSigma3Encrypted3 = 1

	tagSigma2ResumeResumptionID  = 1
	tagSigma2ResumeMIC           = 2
	tagSigma2ResumeSessionID     = 3
	tagSigma2ResumeSessionParams = 4

	tagTBEData2NOC          = 1
	tagTBEData2ICAC         = 2
	tagTBEData2Signature    = 3
	tagTBEData2ResumptionID = 4

	tagTBSData2NOC          = 1
	tagTBSData2ICAC         = 2
	tagTBSData2OurEphPub    = 3
	tagTBSData2PeerEphPub   = 4

	tagTBEData3NOC       = 1
	tagTBEData3ICAC      = 2
	tagTBEData3Signature = 3

	tagTBSData3NOC        = 1
	tagTBSData3ICAC       = 2
	tagTBSData3PeerEphPub = 3
	tagTBSData3OurEphPub  = 4

	tagSessionParamIdle   = 1
	tagSessionParamActive = 2
	tagSessionParamThresh = 4
)

// SessionParams is the wire form of §3's SessionParameters: every field is
// optional, absent fields fall back to the well-known defaults on the
// receiving side (pkg/session.SessionParameters.WithDefaults).
type SessionParams struct {
	IdleIntervalMs    *uint32
	ActiveIntervalMs  *uint32
	ActiveThresholdMs *uint32
}

func encodeSessionParams(w *tlv.Writer, tag uint8, p *SessionParams) error {
	if err := w.StartStructure(tlv.ContextTag(tag)); err != nil {
		return err
	}
	if p.IdleIntervalMs != nil {
		if err := w.PutUint(tlv.ContextTag(tagSessionParamIdle), uint64(*p.IdleIntervalMs)); err != nil {
			return err
		}
	}
	if p.ActiveIntervalMs != nil {
		if err := w.PutUint(tlv.ContextTag(tagSessionParamActive), uint64(*p.ActiveIntervalMs)); err != nil {
			return err
		}
	}
	if p.ActiveThresholdMs != nil {
		if err := w.PutUint(tlv.ContextTag(tagSessionParamThresh), uint64(*p.ActiveThresholdMs)); err != nil {
			return err
		}
	}
	return w.EndContainer()
}

func decodeSessionParams(r *tlv.Reader) (*SessionParams, error) {
	if err := r.EnterContainer(); err != nil {
		return nil, err
	}
	p := &SessionParams{}
	for {
		if err := r.Next(); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if r.IsEndOfContainer() {
			break
		}
		tag := r.Tag()
		if !tag.IsContext() {
			continue
		}
		switch tag.TagNumber() {
		case tagSessionParamIdle:
			v, err := r.Uint()
			if err != nil {
				return nil, err
			}
			u := uint32(v)
			p.IdleIntervalMs = &u
		case tagSessionParamActive:
			v, err := r.Uint()
			if err != nil {
				return nil, err
			}
			u := uint32(v)
			p.ActiveIntervalMs = &u
		case tagSessionParamThresh:
			v, err := r.Uint()
			if err != nil {
				return nil, err
			}
			u := uint32(v)
			p.ActiveThresholdMs = &u
		}
	}
	return p, nil
}

// Sigma1 is the initiator's opening message (§4.8 "Read Σ1").
type Sigma1 struct {
	SessionID     uint16
	Random        [RandomSize]byte
	EphPubKey     [EphPubKeySize]byte
	DestinationID [DestinationIDSize]byte
	SessionParams *SessionParams

	ResumptionID *[ResumptionIDSize]byte
	ResumeMIC    *[MICSize]byte
}

// HasResumption reports whether both resumption fields are present, per
// §4.8's resumption-branch trigger.
func (s *Sigma1) HasResumption() bool {
	return s.ResumptionID != nil && s.ResumeMIC != nil
}

func (s *Sigma1) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := tlv.NewWriter(&buf)
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return nil, err
	}
	if err := w.PutBytes(tlv.ContextTag(tagSigma1Random), s.Random[:]); err != nil {
		return nil, err
	}
	if err := w.PutUint(tlv.ContextTag(tagSigma1SessionID), uint64(s.SessionID)); err != nil {
		return nil, err
	}
	if err := w.PutBytes(tlv.ContextTag(tagSigma1DestinationID), s.DestinationID[:]); err != nil {
		return nil, err
	}
	if err := w.PutBytes(tlv.ContextTag(tagSigma1EphPubKey), s.EphPubKey[:]); err != nil {
		return nil, err
	}
	if s.SessionParams != nil {
		if err := encodeSessionParams(w, tagSigma1SessionParams, s.SessionParams); err != nil {
			return nil, err
		}
	}
	if s.ResumptionID != nil {
		if err := w.PutBytes(tlv.ContextTag(tagSigma1ResumptionID), s.ResumptionID[:]); err != nil {
			return nil, err
		}
	}
	if s.ResumeMIC != nil {
		if err := w.PutBytes(tlv.ContextTag(tagSigma1ResumeMIC), s.ResumeMIC[:]); err != nil {
			return nil, err
		}
	}
	if err := w.EndContainer(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeSigma1(data []byte) (*Sigma1, error) {
	r := tlv.NewReader(bytes.NewReader(data))
	s := &Sigma1{}

	if err := r.Next(); err != nil {
		return nil, err
	}
	if r.Type() != tlv.ElementTypeStruct {
		return nil, ErrInvalidMessage
	}
	if err := r.EnterContainer(); err != nil {
		return nil, err
	}

	var hasRandom, hasSessionID, hasDestination, hasEphPub bool
	for {
		err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if r.IsEndOfContainer() {
			break
		}
		tag := r.Tag()
		if !tag.IsContext() {
			continue
		}
		switch tag.TagNumber() {
		case tagSigma1Random:
			b, err := r.Bytes()
			if err != nil || len(b) != RandomSize {
				return nil, ErrInvalidMessage
			}
			copy(s.Random[:], b)
			hasRandom = true
		case tagSigma1SessionID:
			v, err := r.Uint()
			if err != nil {
				return nil, err
			}
			s.SessionID = uint16(v)
			hasSessionID = true
		case tagSigma1DestinationID:
			b, err := r.Bytes()
			if err != nil || len(b) != DestinationIDSize {
				return nil, ErrInvalidMessage
			}
			copy(s.DestinationID[:], b)
			hasDestination = true
		case tagSigma1EphPubKey:
			b, err := r.Bytes()
			if err != nil || len(b) != EphPubKeySize {
				return nil, ErrInvalidMessage
			}
			copy(s.EphPubKey[:], b)
			hasEphPub = true
		case tagSigma1SessionParams:
			p, err := decodeSessionParams(r)
			if err != nil {
				return nil, err
			}
			s.SessionParams = p
		case tagSigma1ResumptionID:
			b, err := r.Bytes()
			if err != nil || len(b) != ResumptionIDSize {
				return nil, ErrInvalidMessage
			}
			s.ResumptionID = new([ResumptionIDSize]byte)
			copy(s.ResumptionID[:], b)
		case tagSigma1ResumeMIC:
			b, err := r.Bytes()
			if err != nil || len(b) != MICSize {
				return nil, ErrInvalidMessage
			}
			s.ResumeMIC = new([MICSize]byte)
			copy(s.ResumeMIC[:], b)
		}
	}

	if !hasRandom || !hasSessionID || !hasDestination || !hasEphPub {
		return nil, ErrInvalidMessage
	}
	if (s.ResumptionID == nil) != (s.ResumeMIC == nil) {
		return nil, UnexpectedDataError{"resumptionId and resumeMIC must both be present or both absent"}
	}
	return s, nil
}

// Sigma2 is the responder's reply on the full branch (§4.8).
type Sigma2 struct {
	Random        [RandomSize]byte
	SessionID     uint16
	EphPubKey     [EphPubKeySize]byte
	Encrypted2    []byte
	SessionParams *SessionParams
}

func (s *Sigma2) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := tlv.NewWriter(&buf)
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return nil, err
	}
	if err := w.PutBytes(tlv.ContextTag(tagSigma2Random), s.Random[:]); err != nil {
		return nil, err
	}
	if err := w.PutUint(tlv.ContextTag(tagSigma2SessionID), uint64(s.SessionID)); err != nil {
		return nil, err
	}
	if err := w.PutBytes(tlv.ContextTag(tagSigma2EphPubKey), s.EphPubKey[:]); err != nil {
		return nil, err
	}
	if err := w.PutBytes(tlv.ContextTag(tagSigma2Encrypted2), s.Encrypted2); err != nil {
		return nil, err
	}
	if s.SessionParams != nil {
		if err := encodeSessionParams(w, tagSigma2SessionParams, s.SessionParams); err != nil {
			return nil, err
		}
	}
	if err := w.EndContainer(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeSigma2(data []byte) (*Sigma2, error) {
	r := tlv.NewReader(bytes.NewReader(data))
	s := &Sigma2{}
	if err := r.Next(); err != nil {
		return nil, err
	}
	if r.Type() != tlv.ElementTypeStruct {
		return nil, ErrInvalidMessage
	}
	if err := r.EnterContainer(); err != nil {
		return nil, err
	}

	var hasRandom, hasSessionID, hasEphPub, hasEncrypted bool
	for {
		err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if r.IsEndOfContainer() {
			break
		}
		tag := r.Tag()
		if !tag.IsContext() {
			continue
		}
		switch tag.TagNumber() {
		case tagSigma2Random:
			b, err := r.Bytes()
			if err != nil || len(b) != RandomSize {
				return nil, ErrInvalidMessage
			}
			copy(s.Random[:], b)
			hasRandom = true
		case tagSigma2SessionID:
			v, err := r.Uint()
			if err != nil {
				return nil, err
			}
			s.SessionID = uint16(v)
			hasSessionID = true
		case tagSigma2EphPubKey:
			b, err := r.Bytes()
			if err != nil || len(b) != EphPubKeySize {
				return nil, ErrInvalidMessage
			}
			copy(s.EphPubKey[:], b)
			hasEphPub = true
		case tagSigma2Encrypted2:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}
			s.Encrypted2 = b
			hasEncrypted = true
		case tagSigma2SessionParams:
			p, err := decodeSessionParams(r)
			if err != nil {
				return nil, err
			}
			s.SessionParams = p
		}
	}
	if !hasRandom || !hasSessionID || !hasEphPub || !hasEncrypted {
		return nil, ErrInvalidMessage
	}
	return s, nil
}

// Sigma2Resume is the responder's reply on the resumption branch (§4.8).
type Sigma2Resume struct {
	ResumptionID  [ResumptionIDSize]byte
	ResumeMIC     [MICSize]byte
	SessionID     uint16
	SessionParams *SessionParams
}

func (s *Sigma2Resume) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := tlv.NewWriter(&buf)
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return nil, err
	}
	if err := w.PutBytes(tlv.ContextTag(tagSigma2ResumeResumptionID), s.ResumptionID[:]); err != nil {
		return nil, err
	}
	if err := w.PutBytes(tlv.ContextTag(tagSigma2ResumeMIC), s.ResumeMIC[:]); err != nil {
		return nil, err
	}
	if err := w.PutUint(tlv.ContextTag(tagSigma2ResumeSessionID), uint64(s.SessionID)); err != nil {
		return nil, err
	}
	if s.SessionParams != nil {
		if err := encodeSessionParams(w, tagSigma2ResumeSessionParams, s.SessionParams); err != nil {
			return nil, err
		}
	}
	if err := w.EndContainer(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeSigma2Resume(data []byte) (*Sigma2Resume, error) {
	r := tlv.NewReader(bytes.NewReader(data))
	s := &Sigma2Resume{}
	if err := r.Next(); err != nil {
		return nil, err
	}
	if r.Type() != tlv.ElementTypeStruct {
		return nil, ErrInvalidMessage
	}
	if err := r.EnterContainer(); err != nil {
		return nil, err
	}

	var hasResumptionID, hasMIC, hasSessionID bool
	for {
		err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if r.IsEndOfContainer() {
			break
		}
		tag := r.Tag()
		if !tag.IsContext() {
			continue
		}
		switch tag.TagNumber() {
		case tagSigma2ResumeResumptionID:
			b, err := r.Bytes()
			if err != nil || len(b) != ResumptionIDSize {
				return nil, ErrInvalidMessage
			}
			copy(s.ResumptionID[:], b)
			hasResumptionID = true
		case tagSigma2ResumeMIC:
			b, err := r.Bytes()
			if err != nil || len(b) != MICSize {
				return nil, ErrInvalidMessage
			}
			copy(s.ResumeMIC[:], b)
			hasMIC = true
		case tagSigma2ResumeSessionID:
			v, err := r.Uint()
			if err != nil {
				return nil, err
			}
			s.SessionID = uint16(v)
			hasSessionID = true
		case tagSigma2ResumeSessionParams:
			p, err := decodeSessionParams(r)
			if err != nil {
				return nil, err
			}
			s.SessionParams = p
		}
	}
	if !hasResumptionID || !hasMIC || !hasSessionID {
		return nil, ErrInvalidMessage
	}
	return s, nil
}

// Sigma3 carries the initiator's own credentials, encrypted (§4.8).
type Sigma3 struct {
	Encrypted3 []byte
}

func (s *Sigma3) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := tlv.NewWriter(&buf)
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return nil, err
	}
	if err := w.PutBytes(tlv.ContextTag(tagSigma3Encrypted3), s.Encrypted3); err != nil {
		return nil, err
	}
	if err := w.EndContainer(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeSigma3(data []byte) (*Sigma3, error) {
	r := tlv.NewReader(bytes.NewReader(data))
	s := &Sigma3{}
	if err := r.Next(); err != nil {
		return nil, err
	}
	if r.Type() != tlv.ElementTypeStruct {
		return nil, ErrInvalidMessage
	}
	if err := r.EnterContainer(); err != nil {
		return nil, err
	}
	var has bool
	for {
		err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if r.IsEndOfContainer() {
			break
		}
		tag := r.Tag()
		if tag.IsContext() && tag.TagNumber() == tagSigma3Encrypted3 {
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}
			s.Encrypted3 = b
			has = true
		}
	}
	if !has {
		return nil, ErrInvalidMessage
	}
	return s, nil
}

// TBEData2 is the plaintext of Sigma2.Encrypted2 (§4.8's
// "Plaintext = TLV{nodeOpCert, icaCert?, signature, resumptionId}").
type TBEData2 struct {
	NOC          []byte
	ICAC         []byte
	Signature    [SignatureSize]byte
	ResumptionID [ResumptionIDSize]byte
}

func (t *TBEData2) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := tlv.NewWriter(&buf)
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return nil, err
	}
	if err := w.PutBytes(tlv.ContextTag(tagTBEData2NOC), t.NOC); err != nil {
		return nil, err
	}
	if len(t.ICAC) > 0 {
		if err := w.PutBytes(tlv.ContextTag(tagTBEData2ICAC), t.ICAC); err != nil {
			return nil, err
		}
	}
	if err := w.PutBytes(tlv.ContextTag(tagTBEData2Signature), t.Signature[:]); err != nil {
		return nil, err
	}
	if err := w.PutBytes(tlv.ContextTag(tagTBEData2ResumptionID), t.ResumptionID[:]); err != nil {
		return nil, err
	}
	if err := w.EndContainer(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeTBEData2(data []byte) (*TBEData2, error) {
	r := tlv.NewReader(bytes.NewReader(data))
	t := &TBEData2{}
	if err := r.Next(); err != nil {
		return nil, err
	}
	if r.Type() != tlv.ElementTypeStruct {
		return nil, ErrInvalidMessage
	}
	if err := r.EnterContainer(); err != nil {
		return nil, err
	}
	var hasNOC, hasSig, hasResumption bool
	for {
		err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if r.IsEndOfContainer() {
			break
		}
		tag := r.Tag()
		if !tag.IsContext() {
			continue
		}
		switch tag.TagNumber() {
		case tagTBEData2NOC:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}
			t.NOC = b
			hasNOC = true
		case tagTBEData2ICAC:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}
			t.ICAC = b
		case tagTBEData2Signature:
			b, err := r.Bytes()
			if err != nil || len(b) != SignatureSize {
				return nil, ErrInvalidMessage
			}
			copy(t.Signature[:], b)
			hasSig = true
		case tagTBEData2ResumptionID:
			b, err := r.Bytes()
			if err != nil || len(b) != ResumptionIDSize {
				return nil, ErrInvalidMessage
			}
			copy(t.ResumptionID[:], b)
			hasResumption = true
		}
	}
	if !hasNOC || !hasSig || !hasResumption {
		return nil, ErrInvalidMessage
	}
	return t, nil
}

// TBSData2 is signed (not transmitted) to produce TBEData2.Signature.
type TBSData2 struct {
	NOC        []byte
	ICAC       []byte
	OurEphPub  [EphPubKeySize]byte
	PeerEphPub [EphPubKeySize]byte
}

func (t *TBSData2) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := tlv.NewWriter(&buf)
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return nil, err
	}
	if err := w.PutBytes(tlv.ContextTag(tagTBSData2NOC), t.NOC); err != nil {
		return nil, err
	}
	if len(t.ICAC) > 0 {
		if err := w.PutBytes(tlv.ContextTag(tagTBSData2ICAC), t.ICAC); err != nil {
			return nil, err
		}
	}
	if err := w.PutBytes(tlv.ContextTag(tagTBSData2OurEphPub), t.OurEphPub[:]); err != nil {
		return nil, err
	}
	if err := w.PutBytes(tlv.ContextTag(tagTBSData2PeerEphPub), t.PeerEphPub[:]); err != nil {
		return nil, err
	}
	if err := w.EndContainer(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TBEData3 is the plaintext of Sigma3.Encrypted3
// (§4.8: "Decoded contains {peerNOC, peerICA?, peerSig}").
type TBEData3 struct {
	NOC       []byte
	ICAC      []byte
	Signature [SignatureSize]byte
}

func (t *TBEData3) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := tlv.NewWriter(&buf)
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return nil, err
	}
	if err := w.PutBytes(tlv.ContextTag(tagTBEData3NOC), t.NOC); err != nil {
		return nil, err
	}
	if len(t.ICAC) > 0 {
		if err := w.PutBytes(tlv.ContextTag(tagTBEData3ICAC), t.ICAC); err != nil {
			return nil, err
		}
	}
	if err := w.PutBytes(tlv.ContextTag(tagTBEData3Signature), t.Signature[:]); err != nil {
		return nil, err
	}
	if err := w.EndContainer(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeTBEData3(data []byte) (*TBEData3, error) {
	r := tlv.NewReader(bytes.NewReader(data))
	t := &TBEData3{}
	if err := r.Next(); err != nil {
		return nil, err
	}
	if r.Type() != tlv.ElementTypeStruct {
		return nil, ErrInvalidMessage
	}
	if err := r.EnterContainer(); err != nil {
		return nil, err
	}
	var hasNOC, hasSig bool
	for {
		err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if r.IsEndOfContainer() {
			break
		}
		tag := r.Tag()
		if !tag.IsContext() {
			continue
		}
		switch tag.TagNumber() {
		case tagTBEData3NOC:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}
			t.NOC = b
			hasNOC = true
		case tagTBEData3ICAC:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}
			t.ICAC = b
		case tagTBEData3Signature:
			b, err := r.Bytes()
			if err != nil || len(b) != SignatureSize {
				return nil, ErrInvalidMessage
			}
			copy(t.Signature[:], b)
			hasSig = true
		}
	}
	if !hasNOC || !hasSig {
		return nil, ErrInvalidMessage
	}
	return t, nil
}

// TBSData3 is signed (not transmitted) to produce TBEData3.Signature.
type TBSData3 struct {
	NOC        []byte
	ICAC       []byte
	PeerEphPub [EphPubKeySize]byte
	OurEphPub  [EphPubKeySize]byte
}

func (t *TBSData3) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := tlv.NewWriter(&buf)
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return nil, err
	}
	if err := w.PutBytes(tlv.ContextTag(tagTBSData3NOC), t.NOC); err != nil {
		return nil, err
	}
	if len(t.ICAC) > 0 {
		if err := w.PutBytes(tlv.ContextTag(tagTBSData3ICAC), t.ICAC); err != nil {
			return nil, err
		}
	}
	if err := w.PutBytes(tlv.ContextTag(tagTBSData3PeerEphPub), t.PeerEphPub[:]); err != nil {
		return nil, err
	}
	if err := w.PutBytes(tlv.ContextTag(tagTBSData3OurEphPub), t.OurEphPub[:]); err != nil {
		return nil, err
	}
	if err := w.EndContainer(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
