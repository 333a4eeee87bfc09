// Package discovery implements Matter's mDNS scanner and responder (§4.6,
// §4.7): operational and commissionable service discovery over DNS-SD,
// built on pkg/dnswire for wire encoding, pkg/mnet for the multicast
// transport, and pkg/clock for scheduling. It follows the teacher's
// core/connection_pool.go shape for its mutex-guarded map plus background
// reaper goroutine, generalized here to a two-map record cache with
// per-address TTLs instead of a single idle-connection list.
package discovery

import (
	"encoding/hex"
	"fmt"
	"strings"

	"matter-core/pkg/fabric"
)

// Matter mDNS service names (§6, exact, case-insensitive on the wire).
const (
	OperationalService    = "_matter._tcp.local"
	CommissionableService = "_matterc._udp.local"
	CommissionService     = "_matterd._udp.local" // out of scope (PASE)
)

// OperationalQName builds the instance name for an operational service
// record: "<operationalIdHex>-<nodeIdHex>._matter._tcp.local", both 16 hex
// digits, uppercase (§6).
func OperationalQName(operationalID [fabric.OperationalIDSize]byte, nodeID fabric.NodeID) string {
	return fmt.Sprintf("%s-%016X.%s", strings.ToUpper(hex.EncodeToString(operationalID[:])), uint64(nodeID), OperationalService)
}

// LongDiscriminatorSubtype builds the "_L<n>._sub._matterc._udp.local"
// subtype name for d in 0..4095.
func LongDiscriminatorSubtype(d uint16) string {
	return fmt.Sprintf("_L%d._sub.%s", d, CommissionableService)
}

// ShortDiscriminatorSubtype builds the "_S<n>._sub._matterc._udp.local"
// subtype name for d in 0..15.
func ShortDiscriminatorSubtype(d uint8) string {
	return fmt.Sprintf("_S%d._sub.%s", d, CommissionableService)
}

// VendorSubtype builds the "_V<n>._sub._matterc._udp.local" subtype name.
func VendorSubtype(v fabric.VendorID) string {
	return fmt.Sprintf("_V%d._sub.%s", v, CommissionableService)
}

// DeviceTypeSubtype builds the "_T<n>._sub._matterc._udp.local" subtype name.
func DeviceTypeSubtype(t uint16) string {
	return fmt.Sprintf("_T%d._sub.%s", t, CommissionableService)
}

// ProductSubtype builds the "_P<n>._sub._matterc._udp.local" subtype name.
// Not in §6's enumerated list, but matterQname resolution priority (§4.6)
// names productId as a distinct matching tier, which requires a distinct
// subtype name to query by.
func ProductSubtype(p fabric.ProductID) string {
	return fmt.Sprintf("_P%d._sub.%s", p, CommissionableService)
}

// CommissioningModeSubtype is the "commissioning-mode-open" wildcard
// subtype, "_CM._sub._matterc._udp.local".
const CommissioningModeSubtype = "_CM._sub." + CommissionableService

// ShortFromLong derives SD from D when the TXT record omits it (§3, §6):
// SD = (D>>8)&0x0f.
func ShortFromLong(d uint16) uint8 {
	return uint8((d >> 8) & 0x0f)
}
