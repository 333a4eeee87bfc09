// Package tlv implements the Matter TLV (Tag-Length-Value) binary encoding
// (Matter Core Specification §A.7) used to frame every Sigma message and
// certificate structure exchanged during CASE. It follows the
// Writer/Reader streaming shape the backkem-matter reference implementation
// exposes (tlv.NewWriter/tlv.NewReader over an io.Writer/io.Reader), adapted
// to this module's naming.
package tlv

import "fmt"

// ElementType identifies the control-byte element type of a TLV value.
type ElementType uint8

const (
	ElementTypeInt8   ElementType = 0x00
	ElementTypeInt16  ElementType = 0x01
	ElementTypeInt32  ElementType = 0x02
	ElementTypeInt64  ElementType = 0x03
	ElementTypeUInt8  ElementType = 0x04
	ElementTypeUInt16 ElementType = 0x05
	ElementTypeUInt32 ElementType = 0x06
	ElementTypeUInt64 ElementType = 0x07
	ElementTypeBoolFalse ElementType = 0x08
	ElementTypeBoolTrue  ElementType = 0x09
	ElementTypeFloat  ElementType = 0x0A
	ElementTypeDouble ElementType = 0x0B
	ElementTypeUTF8String1   ElementType = 0x0C
	ElementTypeUTF8String2   ElementType = 0x0D
	ElementTypeUTF8String4   ElementType = 0x0E
	ElementTypeUTF8String8   ElementType = 0x0F
	ElementTypeByteString1   ElementType = 0x10
	ElementTypeByteString2   ElementType = 0x11
	ElementTypeByteString4   ElementType = 0x12
	ElementTypeByteString8   ElementType = 0x13
	ElementTypeNull   ElementType = 0x14
	ElementTypeStruct ElementType = 0x15
	ElementTypeArray  ElementType = 0x16
	ElementTypeList   ElementType = 0x17
	ElementTypeEnd    ElementType = 0x18
)

func (t ElementType) isContainer() bool {
	return t == ElementTypeStruct || t == ElementTypeArray || t == ElementTypeList
}

func (t ElementType) isString() bool {
	switch t {
	case ElementTypeUTF8String1, ElementTypeUTF8String2, ElementTypeUTF8String4, ElementTypeUTF8String8,
		ElementTypeByteString1, ElementTypeByteString2, ElementTypeByteString4, ElementTypeByteString8:
		return true
	}
	return false
}

func (t ElementType) isByteString() bool {
	switch t {
	case ElementTypeByteString1, ElementTypeByteString2, ElementTypeByteString4, ElementTypeByteString8:
		return true
	}
	return false
}

func (t ElementType) lengthFieldSize() int {
	switch t {
	case ElementTypeUTF8String1, ElementTypeByteString1:
		return 1
	case ElementTypeUTF8String2, ElementTypeByteString2:
		return 2
	case ElementTypeUTF8String4, ElementTypeByteString4:
		return 4
	case ElementTypeUTF8String8, ElementTypeByteString8:
		return 8
	}
	return 0
}

// TagControl identifies which of the four tag forms a control byte encodes.
type TagControl uint8

const (
	tagControlAnonymous       TagControl = 0x00
	tagControlContext         TagControl = 0x20
	tagControlCommonProfile2  TagControl = 0x40
	tagControlCommonProfile4  TagControl = 0x60
	tagControlFullyQualified6 TagControl = 0xC0
)

// Tag is a decoded TLV tag: either anonymous, a context tag (0..255, scoped
// to the enclosing container), or an implicit/common-profile tag. Only
// anonymous and context tags are needed to round-trip Matter's certificate
// and Sigma message structures, which this package restricts itself to.
type Tag struct {
	control TagControl
	number  uint32
}

// Anonymous returns the tag used for every element directly inside an array,
// and for the outermost structure of a standalone message.
func Anonymous() Tag { return Tag{control: tagControlAnonymous} }

// ContextTag returns a context-specific tag, valid only for elements nested
// directly inside a structure or list.
func ContextTag(n uint8) Tag { return Tag{control: tagControlContext, number: uint32(n)} }

// IsAnonymous reports whether t carries no tag.
func (t Tag) IsAnonymous() bool { return t.control == tagControlAnonymous }

// IsContext reports whether t is a context-specific tag.
func (t Tag) IsContext() bool { return t.control == tagControlContext }

// TagNumber returns the context tag number. Only meaningful when IsContext
// is true.
func (t Tag) TagNumber() uint8 { return uint8(t.number) }

func (t Tag) String() string {
	if t.IsAnonymous() {
		return "anonymous"
	}
	return fmt.Sprintf("context(%d)", t.number)
}
