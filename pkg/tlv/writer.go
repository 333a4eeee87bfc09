package tlv

import (
	"encoding/binary"
	"io"
)

// Writer serializes TLV elements to an underlying io.Writer, tracking open
// container depth so EndContainer always closes the innermost one.
type Writer struct {
	w     io.Writer
	depth int
	err   error
}

// NewWriter returns a Writer that appends encoded elements to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) write(b []byte) error {
	if w.err != nil {
		return w.err
	}
	_, err := w.w.Write(b)
	if err != nil {
		w.err = err
	}
	return err
}

func (w *Writer) writeControlAndTag(control TagControl, tag Tag, elem ElementType) error {
	if !tag.IsAnonymous() && !tag.IsContext() {
		return ErrUnsupportedTag
	}
	cb := byte(control) | byte(elem)
	if err := w.write([]byte{cb}); err != nil {
		return err
	}
	if tag.IsContext() {
		return w.write([]byte{tag.TagNumber()})
	}
	return nil
}

func tagControlFor(tag Tag) TagControl {
	if tag.IsContext() {
		return tagControlContext
	}
	return tagControlAnonymous
}

// StartStructure opens a structure container under tag. Every following
// Put* call until the matching EndContainer is a member of this structure.
func (w *Writer) StartStructure(tag Tag) error {
	w.depth++
	return w.writeControlAndTag(tagControlFor(tag), tag, ElementTypeStruct)
}

// StartArray opens an array container. Elements of an array are always
// anonymous.
func (w *Writer) StartArray(tag Tag) error {
	w.depth++
	return w.writeControlAndTag(tagControlFor(tag), tag, ElementTypeArray)
}

// StartList opens a list container (an ordered structure whose members may
// repeat tags); Matter does not use this for CASE but it is part of the
// encoding per §A.7.
func (w *Writer) StartList(tag Tag) error {
	w.depth++
	return w.writeControlAndTag(tagControlFor(tag), tag, ElementTypeList)
}

// EndContainer closes the innermost open container.
func (w *Writer) EndContainer() error {
	if w.depth == 0 {
		return ErrNoContainer
	}
	w.depth--
	return w.write([]byte{byte(ElementTypeEnd)})
}

// PutBytes writes a byte-string element, choosing the smallest length-field
// width that fits len(v).
func (w *Writer) PutBytes(tag Tag, v []byte) error {
	elem := byteStringTypeFor(len(v))
	if err := w.writeControlAndTag(tagControlFor(tag), tag, elem); err != nil {
		return err
	}
	if err := w.writeLength(elem.lengthFieldSize(), uint64(len(v))); err != nil {
		return err
	}
	return w.write(v)
}

// PutString writes a UTF-8 string element.
func (w *Writer) PutString(tag Tag, v string) error {
	elem := utf8StringTypeFor(len(v))
	if err := w.writeControlAndTag(tagControlFor(tag), tag, elem); err != nil {
		return err
	}
	if err := w.writeLength(elem.lengthFieldSize(), uint64(len(v))); err != nil {
		return err
	}
	return w.write([]byte(v))
}

// PutUint writes an unsigned integer element, choosing the smallest of
// uint8/16/32/64 that represents v.
func (w *Writer) PutUint(tag Tag, v uint64) error {
	elem, size := uintTypeFor(v)
	if err := w.writeControlAndTag(tagControlFor(tag), tag, elem); err != nil {
		return err
	}
	buf := make([]byte, size)
	switch size {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(buf, v)
	}
	return w.write(buf)
}

// PutInt writes a signed integer element, choosing the smallest of
// int8/16/32/64 that represents v.
func (w *Writer) PutInt(tag Tag, v int64) error {
	elem, size := intTypeFor(v)
	if err := w.writeControlAndTag(tagControlFor(tag), tag, elem); err != nil {
		return err
	}
	buf := make([]byte, size)
	uv := uint64(v)
	switch size {
	case 1:
		buf[0] = byte(uv)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(uv))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(uv))
	case 8:
		binary.LittleEndian.PutUint64(buf, uv)
	}
	return w.write(buf)
}

// PutBool writes a boolean element.
func (w *Writer) PutBool(tag Tag, v bool) error {
	elem := ElementTypeBoolFalse
	if v {
		elem = ElementTypeBoolTrue
	}
	return w.writeControlAndTag(tagControlFor(tag), tag, elem)
}

// PutNull writes a null element, used by Matter for "absent optional"
// fields that must still occupy a tag slot.
func (w *Writer) PutNull(tag Tag) error {
	return w.writeControlAndTag(tagControlFor(tag), tag, ElementTypeNull)
}

func (w *Writer) writeLength(size int, n uint64) error {
	buf := make([]byte, size)
	switch size {
	case 1:
		buf[0] = byte(n)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(n))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(n))
	case 8:
		binary.LittleEndian.PutUint64(buf, n)
	}
	return w.write(buf)
}

func byteStringTypeFor(n int) ElementType {
	switch {
	case n <= 0xFF:
		return ElementTypeByteString1
	case n <= 0xFFFF:
		return ElementTypeByteString2
	case n <= 0xFFFFFFFF:
		return ElementTypeByteString4
	default:
		return ElementTypeByteString8
	}
}

func utf8StringTypeFor(n int) ElementType {
	switch {
	case n <= 0xFF:
		return ElementTypeUTF8String1
	case n <= 0xFFFF:
		return ElementTypeUTF8String2
	case n <= 0xFFFFFFFF:
		return ElementTypeUTF8String4
	default:
		return ElementTypeUTF8String8
	}
}

func uintTypeFor(v uint64) (ElementType, int) {
	switch {
	case v <= 0xFF:
		return ElementTypeUInt8, 1
	case v <= 0xFFFF:
		return ElementTypeUInt16, 2
	case v <= 0xFFFFFFFF:
		return ElementTypeUInt32, 4
	default:
		return ElementTypeUInt64, 8
	}
}

func intTypeFor(v int64) (ElementType, int) {
	switch {
	case v >= -0x80 && v <= 0x7F:
		return ElementTypeInt8, 1
	case v >= -0x8000 && v <= 0x7FFF:
		return ElementTypeInt16, 2
	case v >= -0x80000000 && v <= 0x7FFFFFFF:
		return ElementTypeInt32, 4
	default:
		return ElementTypeInt64, 8
	}
}
