package tlv

import "errors"

var (
	// ErrUnsupportedTag is returned when encoding or decoding encounters a
	// tag form this package does not implement (only anonymous and
	// context-specific tags are supported, see tlv.go).
	ErrUnsupportedTag = errors.New("tlv: unsupported tag form")

	// ErrMalformed is returned when the byte stream does not parse as valid
	// TLV: a truncated length field, a length field exceeding the supplied
	// reader's remaining bytes, or an unknown element type.
	ErrMalformed = errors.New("tlv: malformed encoding")

	// ErrWrongType is returned when a typed accessor (Bytes, Uint, String,
	// Bool) is called on an element whose control byte does not match.
	ErrWrongType = errors.New("tlv: element has wrong type")

	// ErrNoContainer is returned by ExitContainer when called without a
	// matching EnterContainer.
	ErrNoContainer = errors.New("tlv: not inside a container")

	// ErrContainerOpen reports an unclosed container. No function in this
	// package returns it; Writer does not check that every container was
	// closed.
	ErrContainerOpen = errors.New("tlv: unclosed container")
)
