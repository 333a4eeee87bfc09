package mnet

import "testing"

// TestEnqueueDropsOldestUnderBackpressure exercises the bounded queue
// policy directly, without opening real multicast sockets (unavailable in
// most sandboxed test environments).
func TestEnqueueDropsOldestUnderBackpressure(t *testing.T) {
	tr := &Transport{queue: make(chan Received, 2)}

	tr.enqueue(Received{Data: []byte("a")})
	tr.enqueue(Received{Data: []byte("b")})
	tr.enqueue(Received{Data: []byte("c")})

	if got := tr.DroppedCount(); got != 1 {
		t.Fatalf("expected 1 drop, got %d", got)
	}

	first := <-tr.queue
	second := <-tr.queue
	if string(first.Data) != "b" || string(second.Data) != "c" {
		t.Fatalf("expected oldest dropped, queue held %q, %q", first.Data, second.Data)
	}
}

func TestSelectInterfacesFiltersByName(t *testing.T) {
	ifaces, err := selectInterfaces("a-name-that-should-never-exist-xyz")
	if err != nil {
		t.Fatalf("selectInterfaces: %v", err)
	}
	if len(ifaces) != 0 {
		t.Fatalf("expected no matching interfaces, got %d", len(ifaces))
	}
}
