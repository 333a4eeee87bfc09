package discovery

import (
	"net"
	"testing"
	"time"

	benclock "github.com/benbjohnson/clock"

	"matter-core/pkg/clock"
)

func TestCacheOperationalBecomesReadyOnlyWithAddress(t *testing.T) {
	mock := benclock.NewMock()
	c := NewCache(clock.NewWithClock(mock))

	qname := "ABCD-EF01." + OperationalService
	c.UpsertOperationalTXT(qname, OperationalTXT{}, 120)
	if c.GetOperational(qname).Ready() {
		t.Fatal("record with no address must not be Ready")
	}

	c.UpsertOperationalAddress(qname, net.ParseIP("fe80::1"), 5540, "eth0", 120)
	rec := c.GetOperational(qname)
	if !rec.Ready() {
		t.Fatal("record with an address must be Ready")
	}
	if len(rec.Addresses) != 1 {
		t.Fatalf("expected 1 address, got %d", len(rec.Addresses))
	}
}

func TestCacheSweepExpiresStaleAddressesAndRecords(t *testing.T) {
	mock := benclock.NewMock()
	c := NewCache(clock.NewWithClock(mock))

	qname := "ABCD-EF01." + OperationalService
	c.UpsertOperationalTXT(qname, OperationalTXT{}, 1000)
	c.UpsertOperationalAddress(qname, net.ParseIP("fe80::1"), 5540, "eth0", 10)

	mock.Add(20 * time.Second)
	c.Sweep()
	rec := c.GetOperational(qname)
	if rec.Ready() {
		t.Fatal("address should have expired, record must no longer be Ready")
	}
}

func TestCacheRemoveAddressEverywhere(t *testing.T) {
	mock := benclock.NewMock()
	c := NewCache(clock.NewWithClock(mock))
	ip := net.ParseIP("fe80::2")

	c.UpsertOperationalAddress("op.local", ip, 5540, "eth0", 120)
	c.UpsertCommissionableAddress("comm.local", ip, 5540, "eth0", 120)

	c.RemoveAddressEverywhere(ip)

	if c.GetOperational("op.local") != nil {
		t.Fatal("operational record should be gone once its only address is removed")
	}
	if c.GetCommissionable("comm.local") != nil {
		t.Fatal("commissionable record should be gone once its only address is removed")
	}
}
