package casesession

import "errors"

// ErrInvalidMessage is returned when a Sigma message is missing a mandatory
// field or a fixed-size field has the wrong length.
var ErrInvalidMessage = errors.New("casesession: invalid message")

// UnexpectedDataError corresponds to §7's ProtocolError("UnexpectedData"):
// the peer sent a combination of fields the spec forbids.
type UnexpectedDataError struct {
	Reason string
}

func (e UnexpectedDataError) Error() string {
	return "casesession: unexpected data: " + e.Reason
}

// FabricNotFoundError corresponds to §7's TrustError("FabricNotFound"),
// raised when no local fabric matches a Σ1's destinationId.
type FabricNotFoundError struct {
	Reason string
}

func (e FabricNotFoundError) Error() string {
	return "casesession: fabric not found: " + e.Reason
}

// TrustError corresponds to §7's TrustError("CertChainInvalid" /
// "SignatureInvalid"), raised by certificate chain or signature failures
// during Σ2/Σ3 verification.
type TrustError struct {
	Reason string
}

func (e TrustError) Error() string {
	return "casesession: trust error: " + e.Reason
}

// StatusCode mirrors the subset of Matter's secure-channel StatusReport
// codes this package emits (§4.8 "Errors").
type StatusCode int

const (
	StatusSuccess           StatusCode = 0
	StatusNoSharedTrustRoots StatusCode = 1
	StatusInvalidParam      StatusCode = 2
)

// StatusReport is the minimal message sent back to a peer on success or
// failure; framing it onto the underlying MessageExchange is the caller's
// responsibility (out of scope for this package, per §1's exclusion of the
// cluster/behavior transport layer).
type StatusReport struct {
	Code StatusCode
}
