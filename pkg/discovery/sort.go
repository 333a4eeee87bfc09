package discovery

import (
	"net"
	"sort"
)

// Address is one (ip, port, interface) tuple returned to a discovery caller
// (§4.6 "Address scoping"). Interface is the interface name, which String
// appends as a "%<interface>" suffix on link-local addresses.
type Address struct {
	IP        net.IP
	Port      uint16
	Interface string
}

// String renders the address the way a caller would dial it: link-local
// addresses carry their zone-id suffix (§4.6).
func (a Address) String() string {
	if a.IP.IsLinkLocalUnicast() && a.Interface != "" {
		return a.IP.String() + "%" + a.Interface
	}
	return a.IP.String()
}

// addressRank implements the §4.6 sort priority: IPv6 before IPv4; within
// IPv6, ULA (fd00::/8) before other global IPv6; within non-ULA IPv6,
// link-local (fe80::/10) before other IPv6.
func addressRank(ip net.IP) int {
	if ip.To4() != nil {
		return 3
	}
	if isULA(ip) {
		return 0
	}
	if ip.IsLinkLocalUnicast() {
		return 1
	}
	return 2
}

// isULA reports whether ip falls in the fd00::/8 unique local prefix.
func isULA(ip net.IP) bool {
	ip16 := ip.To16()
	if ip16 == nil {
		return false
	}
	return ip16[0] == 0xfd
}

// SortAddresses stably orders addrs per §4.6 / §8 property 4.
func SortAddresses(addrs []Address) []Address {
	out := make([]Address, len(addrs))
	copy(out, addrs)
	sort.SliceStable(out, func(i, j int) bool {
		return addressRank(out[i].IP) < addressRank(out[j].IP)
	})
	return out
}
