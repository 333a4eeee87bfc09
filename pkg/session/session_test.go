package session

import (
	"testing"

	"matter-core/internal/testutil"
	"matter-core/pkg/fabric"
)

func TestManagerAllocatesUniqueIDs(t *testing.T) {
	m := NewManager()

	first, err := m.Create(Config{PeerNodeID: fabric.NodeID(1)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := m.Create(Config{PeerNodeID: fabric.NodeID(2)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.LocalSessionID() == 0 || second.LocalSessionID() == 0 {
		t.Fatal("localSessionId must never be 0")
	}
	if first.LocalSessionID() == second.LocalSessionID() {
		t.Fatal("expected distinct local session ids")
	}
}

func TestManagerDoesNotReissueActiveID(t *testing.T) {
	m := NewManager()
	seen := make(map[uint16]bool)
	for i := 0; i < 50; i++ {
		s, err := m.Create(Config{})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if seen[s.LocalSessionID()] {
			t.Fatalf("reissued active local session id %d", s.LocalSessionID())
		}
		seen[s.LocalSessionID()] = true
	}
	if m.Count() != 50 {
		t.Fatalf("expected 50 active sessions, got %d", m.Count())
	}
}

func TestManagerRemoveDropsSession(t *testing.T) {
	m := NewManager()
	s, _ := m.Create(Config{})
	id := s.LocalSessionID()
	m.Remove(id)

	if _, err := m.Get(id); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after Remove, got %v", err)
	}
	if m.Count() != 0 {
		t.Fatalf("expected 0 active sessions, got %d", m.Count())
	}
}

func TestReserveThenFinalizeMakesSessionVisible(t *testing.T) {
	m := NewManager()
	id, err := m.Reserve()
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := m.Get(id); err != ErrNotFound {
		t.Fatalf("expected reserved-but-unfinalized id to miss Get, got %v", err)
	}

	s := m.Finalize(id, Config{PeerNodeID: fabric.NodeID(3)})
	if s.LocalSessionID() != id {
		t.Fatalf("finalized session id mismatch: got %d, want %d", s.LocalSessionID(), id)
	}
	got, err := m.Get(id)
	if err != nil {
		t.Fatalf("Get after Finalize: %v", err)
	}
	if got.LocalSessionID() != id {
		t.Fatalf("got wrong session for id %d", id)
	}
}

func TestReserveDoesNotReissueToConcurrentHandshake(t *testing.T) {
	m := NewManager()
	id, err := m.Reserve()
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	second, err := m.Reserve()
	if err != nil {
		t.Fatalf("second Reserve: %v", err)
	}
	if id == second {
		t.Fatal("Reserve must not hand out an id already reserved")
	}
}

func TestCancelReservationFreesID(t *testing.T) {
	m := NewManager()
	id, err := m.Reserve()
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	m.CancelReservation(id)
	if m.Count() != 0 {
		t.Fatalf("expected 0 active sessions after CancelReservation, got %d", m.Count())
	}

	s, err := m.Create(Config{})
	if err != nil {
		t.Fatalf("Create after cancel: %v", err)
	}
	if s.LocalSessionID() == 0 {
		t.Fatal("localSessionId must never be 0")
	}
}

func TestMemStoreRoundTrip(t *testing.T) {
	s := NewMemStore()
	rec := &ResumptionRecord{FabricIndex: 1, PeerNodeID: fabric.NodeID(7)}
	rec.ResumptionID[0] = 0xAB

	if err := s.Put(rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(rec.ResumptionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PeerNodeID != fabric.NodeID(7) {
		t.Fatalf("peer node id mismatch: %v", got.PeerNodeID)
	}

	if err := s.Delete(rec.ResumptionID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(rec.ResumptionID); err != ErrResumptionNotFound {
		t.Fatalf("expected ErrResumptionNotFound, got %v", err)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	sandbox, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sandbox.Cleanup()

	store, err := NewFileStore(sandbox.Path("resumption"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	rec := &ResumptionRecord{FabricIndex: 2, PeerNodeID: fabric.NodeID(99)}
	rec.ResumptionID[0] = 0xCD
	rec.SharedSecret[0] = 0x11
	if err := store.Put(rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reopened, err := NewFileStore(sandbox.Path("resumption"))
	if err != nil {
		t.Fatalf("NewFileStore (reopen): %v", err)
	}
	got, err := reopened.Get(rec.ResumptionID)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.SharedSecret != rec.SharedSecret {
		t.Fatal("shared secret did not survive reopen")
	}

	if err := reopened.DeleteByFabric(fabric.FabricIndex(2)); err != nil {
		t.Fatalf("DeleteByFabric: %v", err)
	}
	if _, err := reopened.Get(rec.ResumptionID); err != ErrResumptionNotFound {
		t.Fatalf("expected ErrResumptionNotFound after DeleteByFabric, got %v", err)
	}
}
