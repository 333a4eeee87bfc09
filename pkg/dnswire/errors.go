package dnswire

import "errors"

var (
	// ErrInvalidName is returned by ValidateName and the encoder for names
	// or labels that exceed RFC-1035 size limits.
	ErrInvalidName = errors.New("dnswire: invalid name")

	// ErrUnsupportedRecord is returned for a Record whose Type does not
	// match the payload field it carries (e.g. Type=SRV with SRV==nil).
	ErrUnsupportedRecord = errors.New("dnswire: unsupported or malformed record")
)
