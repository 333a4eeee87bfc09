package discovery

import (
	"net"
	"testing"
)

func TestSortAddressesPriority(t *testing.T) {
	addrs := []Address{
		{IP: net.ParseIP("192.168.1.5")},
		{IP: net.ParseIP("2001:db8::1")},    // other global IPv6
		{IP: net.ParseIP("fe80::1"), Interface: "eth0"},
		{IP: net.ParseIP("fd12:3456::1")},   // ULA
	}
	sorted := SortAddresses(addrs)

	if !isULA(sorted[0].IP) {
		t.Fatalf("expected ULA address first, got %v", sorted[0].IP)
	}
	if !sorted[1].IP.IsLinkLocalUnicast() {
		t.Fatalf("expected link-local address second, got %v", sorted[1].IP)
	}
	if sorted[2].IP.To4() != nil || isULA(sorted[2].IP) || sorted[2].IP.IsLinkLocalUnicast() {
		t.Fatalf("expected other global IPv6 third, got %v", sorted[2].IP)
	}
	if sorted[3].IP.To4() == nil {
		t.Fatalf("expected IPv4 address last, got %v", sorted[3].IP)
	}
}

func TestAddressStringAppendsZoneOnLinkLocal(t *testing.T) {
	a := Address{IP: net.ParseIP("fe80::1"), Interface: "eth0"}
	if got, want := a.String(), "fe80::1%eth0"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	b := Address{IP: net.ParseIP("2001:db8::1"), Interface: "eth0"}
	if got, want := b.String(), "2001:db8::1"; got != want {
		t.Fatalf("non-link-local address must not carry a zone: got %q, want %q", got, want)
	}
}
