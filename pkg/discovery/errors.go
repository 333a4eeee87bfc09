package discovery

import "errors"

// ErrClosing is returned by every discovery method once the scanner has
// begun shutting down (§5 "after close, all discovery methods fail with
// ImplementationError(\"scanner is closing\")").
var ErrClosing = errors.New("discovery: scanner is closing")

// ErrMissingRequiredField is returned when a commissionable TXT record is
// missing D or CM and must be dropped (§3 CommissionableDeviceRecord).
var ErrMissingRequiredField = errors.New("discovery: missing required TXT field")
