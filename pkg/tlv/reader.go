package tlv

import (
	"encoding/binary"
	"io"
)

// Reader parses a stream of TLV elements, mirroring the backkem-matter
// reference Reader: Next advances to the next element, Type/Tag describe
// it, and the typed accessors (Bytes, String, Uint, Int, Bool) consume its
// value. EnterContainer/ExitContainer walk into and back out of nested
// structures and arrays.
type Reader struct {
	r     io.Reader
	typ   ElementType
	tag   Tag
	value []byte
	depth int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) readByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, ErrMalformed
		}
		return nil, err
	}
	return buf, nil
}

// Next advances to the next element at the current nesting depth. It
// returns io.EOF when the underlying stream is exhausted at a container's
// top level (the expected way DecodeSigmaN loops terminate).
func (r *Reader) Next() error {
	cb, err := r.readByte()
	if err != nil {
		return err
	}

	control := TagControl(cb & 0xE0)
	elem := ElementType(cb & 0x1F)

	var tag Tag
	switch control {
	case tagControlAnonymous:
		tag = Anonymous()
	case tagControlContext:
		n, err := r.readByte()
		if err != nil {
			return ErrMalformed
		}
		tag = ContextTag(n)
	default:
		return ErrUnsupportedTag
	}

	r.tag = tag
	r.typ = elem
	r.value = nil

	switch {
	case elem == ElementTypeEnd:
		return nil
	case elem.isContainer():
		return nil
	case elem == ElementTypeNull, elem == ElementTypeBoolFalse, elem == ElementTypeBoolTrue:
		return nil
	case elem == ElementTypeUInt8, elem == ElementTypeInt8:
		r.value, err = r.readN(1)
	case elem == ElementTypeUInt16, elem == ElementTypeInt16:
		r.value, err = r.readN(2)
	case elem == ElementTypeUInt32, elem == ElementTypeInt32, elem == ElementTypeFloat:
		r.value, err = r.readN(4)
	case elem == ElementTypeUInt64, elem == ElementTypeInt64, elem == ElementTypeDouble:
		r.value, err = r.readN(8)
	case elem.isString():
		lenSize := elem.lengthFieldSize()
		lenBytes, e := r.readN(lenSize)
		if e != nil {
			return e
		}
		n := decodeLength(lenBytes)
		r.value, err = r.readN(int(n))
	default:
		return ErrMalformed
	}
	return err
}

func decodeLength(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

// Type returns the element type Next most recently positioned on.
func (r *Reader) Type() ElementType { return r.typ }

// Tag returns the tag of the current element.
func (r *Reader) Tag() Tag { return r.tag }

// IsEndOfContainer reports whether the current element closes a container.
func (r *Reader) IsEndOfContainer() bool { return r.typ == ElementTypeEnd }

// EnterContainer descends into the structure/array/list the reader is
// currently positioned on. Subsequent Next calls yield its members.
func (r *Reader) EnterContainer() error {
	if !r.typ.isContainer() {
		return ErrWrongType
	}
	r.depth++
	return nil
}

// ExitContainer consumes elements (via Next) until the matching End marker
// for the current container is reached, leaving the reader positioned just
// past it.
func (r *Reader) ExitContainer() error {
	if r.depth == 0 {
		return ErrNoContainer
	}
	r.depth--
	nested := 0
	for {
		if r.typ == ElementTypeEnd {
			if nested == 0 {
				return nil
			}
			nested--
		} else if r.typ.isContainer() {
			nested++
		}
		if err := r.Next(); err != nil {
			if err == io.EOF {
				return ErrMalformed
			}
			return err
		}
	}
}

// Skip discards the current element, descending into and exiting any
// container so the reader ends up positioned on the next sibling.
func (r *Reader) Skip() error {
	if r.typ.isContainer() {
		if err := r.EnterContainer(); err != nil {
			return err
		}
		if err := r.Next(); err != nil {
			return err
		}
		return r.ExitContainer()
	}
	return nil
}

// Bytes returns the current element's byte-string value.
func (r *Reader) Bytes() ([]byte, error) {
	if !r.typ.isByteString() {
		return nil, ErrWrongType
	}
	return r.value, nil
}

// String returns the current element's UTF-8 string value.
func (r *Reader) String() (string, error) {
	switch r.typ {
	case ElementTypeUTF8String1, ElementTypeUTF8String2, ElementTypeUTF8String4, ElementTypeUTF8String8:
		return string(r.value), nil
	}
	return "", ErrWrongType
}

// Uint returns the current element's value as an unsigned integer. It
// accepts any of the signed or unsigned integer element types, matching the
// backkem-matter reader's permissiveness for MRP/session-id fields that
// other implementations may encode as signed.
func (r *Reader) Uint() (uint64, error) {
	switch r.typ {
	case ElementTypeUInt8, ElementTypeInt8:
		return uint64(r.value[0]), nil
	case ElementTypeUInt16, ElementTypeInt16:
		return uint64(binary.LittleEndian.Uint16(r.value)), nil
	case ElementTypeUInt32, ElementTypeInt32:
		return uint64(binary.LittleEndian.Uint32(r.value)), nil
	case ElementTypeUInt64, ElementTypeInt64:
		return binary.LittleEndian.Uint64(r.value), nil
	}
	return 0, ErrWrongType
}

// Int returns the current element's value as a signed integer.
func (r *Reader) Int() (int64, error) {
	switch r.typ {
	case ElementTypeInt8:
		return int64(int8(r.value[0])), nil
	case ElementTypeInt16:
		return int64(int16(binary.LittleEndian.Uint16(r.value))), nil
	case ElementTypeInt32:
		return int64(int32(binary.LittleEndian.Uint32(r.value))), nil
	case ElementTypeInt64:
		return int64(binary.LittleEndian.Uint64(r.value)), nil
	}
	return 0, ErrWrongType
}

// Bool returns the current element's boolean value.
func (r *Reader) Bool() (bool, error) {
	switch r.typ {
	case ElementTypeBoolFalse:
		return false, nil
	case ElementTypeBoolTrue:
		return true, nil
	}
	return false, ErrWrongType
}
