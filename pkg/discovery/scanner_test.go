package discovery

import (
	"net"
	"testing"
	"time"

	benclock "github.com/benbjohnson/clock"

	"matter-core/pkg/clock"
	"matter-core/pkg/dnswire"
	"matter-core/pkg/fabric"
	"matter-core/pkg/mnet"
)

func mustParseIP(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		panic("invalid test IP " + s)
	}
	return ip
}

func newTestScanner() (*Scanner, *benclock.Mock) {
	mock := benclock.NewMock()
	svc := clock.NewWithClock(mock)
	return NewScanner(nil, svc), mock
}

func encode(t *testing.T, msg dnswire.Message) []byte {
	t.Helper()
	msg.Response = true
	data, err := dnswire.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	return data
}

func TestFindOperationalDeviceReturnsImmediatelyWhenCached(t *testing.T) {
	s, _ := newTestScanner()
	var opID [fabric.OperationalIDSize]byte
	copy(opID[:], []byte{0xAB, 0xCD, 0xEF, 0x01, 0x02, 0x03, 0x04, 0x05})
	nodeID := fabric.NodeID(0x1122334455667788)
	qname := OperationalQName(opID, nodeID)

	s.cache.UpsertOperationalAddress(qname, mustParseIP("fe80::1"), 5540, "eth0", 120)

	dev, err := s.FindOperationalDevice(opID, nodeID, 0)
	if err != nil {
		t.Fatalf("FindOperationalDevice: %v", err)
	}
	if dev == nil || dev.DeviceIdentifier != qname {
		t.Fatalf("expected cached device %q, got %+v", qname, dev)
	}
}

func TestFindOperationalDeviceResolvesOnSRVAndAddressIngestion(t *testing.T) {
	s, _ := newTestScanner()
	var opID [fabric.OperationalIDSize]byte
	copy(opID[:], []byte{0xAB, 0xCD, 0xEF, 0x01, 0x02, 0x03, 0x04, 0x05})
	nodeID := fabric.NodeID(0x1122334455667788)
	qname := OperationalQName(opID, nodeID)

	done := make(chan *DiscoveredDevice, 1)
	go func() {
		dev, err := s.FindOperationalDevice(opID, nodeID, 0)
		if err != nil {
			t.Errorf("FindOperationalDevice: %v", err)
		}
		done <- dev
	}()

	// Give the goroutine a chance to register its waiter before we deliver
	// the matching datagram.
	waitUntil(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, ok := s.waiters["op:"+qname]
		return ok
	})

	msg := dnswire.Message{Answers: []dnswire.Record{
		{Name: qname, Type: dnswire.TypeSRV, TTL: 120, SRV: &dnswire.SRVValue{Port: 5540, Target: "node.local"}},
		{Name: "node.local", Type: dnswire.TypeAAAA, TTL: 120, AAAA: "fe80::1"},
	}}
	s.handleDatagram(mnet.Received{Data: encode(t, msg), Interface: "eth0"})

	select {
	case dev := <-done:
		if dev == nil || dev.DeviceIdentifier != qname {
			t.Fatalf("expected resolved device %q, got %+v", qname, dev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("FindOperationalDevice did not resolve in time")
	}
}

func TestFindCommissionableDevicesMatchesByLongDiscriminator(t *testing.T) {
	s, _ := newTestScanner()
	longDisc := uint16(3840)
	ident := Identifier{LongDiscriminator: &longDisc}

	done := make(chan *DiscoveredDevice, 1)
	go func() {
		dev, err := s.FindCommissionableDevices(ident, 0)
		if err != nil {
			t.Errorf("FindCommissionableDevices: %v", err)
		}
		done <- dev
	}()

	queryID := ident.queryID()
	waitUntil(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, ok := s.waiters[queryID]
		return ok
	})

	instance := "DEADBEEF00000001._matterc._udp.local"
	msg := dnswire.Message{Answers: []dnswire.Record{
		{Name: instance, Type: dnswire.TypeTXT, TTL: 120, TXT: []string{"D=3840", "CM=1"}},
		{Name: instance, Type: dnswire.TypeSRV, TTL: 120, SRV: &dnswire.SRVValue{Port: 5540, Target: "node2.local"}},
		{Name: "node2.local", Type: dnswire.TypeAAAA, TTL: 120, AAAA: "fe80::2"},
	}}
	s.handleDatagram(mnet.Received{Data: encode(t, msg), Interface: "eth0"})

	select {
	case dev := <-done:
		if dev == nil || dev.DeviceIdentifier != instance {
			t.Fatalf("expected resolved device %q, got %+v", instance, dev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("FindCommissionableDevices did not resolve in time")
	}
}

func TestGoodbyeRemovesOperationalRecord(t *testing.T) {
	s, _ := newTestScanner()
	qname := "ABCD." + OperationalService
	s.cache.UpsertOperationalAddress(qname, mustParseIP("fe80::1"), 5540, "eth0", 120)

	msg := dnswire.Message{Answers: []dnswire.Record{{Name: qname, Type: dnswire.TypeTXT, TTL: 0}}}
	s.handleDatagram(mnet.Received{Data: encode(t, msg)})

	if s.cache.GetOperational(qname) != nil {
		t.Fatal("expected operational record removed on goodbye")
	}
}

func TestCloseResolvesOutstandingWaiters(t *testing.T) {
	s, _ := newTestScanner()
	done := make(chan struct{})
	go func() {
		_, err := s.FindCommissionableDevices(Identifier{CommissioningModeOnly: true}, 0)
		if err != nil {
			t.Errorf("FindCommissionableDevices: %v", err)
		}
		close(done)
	}()

	waitUntil(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.waiters) == 1
	})
	s.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not unblock outstanding discovery call")
	}

	if _, err := s.FindCommissionableDevices(Identifier{CommissioningModeOnly: true}, 0); err != ErrClosing {
		t.Fatalf("expected ErrClosing after Close, got %v", err)
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
