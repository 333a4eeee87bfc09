package fabric

import "errors"

// ErrCertChainInvalid is returned by VerifyCredentials when a peer's NOC
// (and optional ICAC) does not chain to the fabric's root, or asserts an
// invalid subject identifier. Per §7, CASE treats this identically to any
// other Σ2/Σ3 processing failure and tears the exchange down without
// revealing which check failed.
var ErrCertChainInvalid = errors.New("fabric: certificate chain invalid")
