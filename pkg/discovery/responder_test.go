package discovery

import (
	"net"
	"testing"
	"time"

	"matter-core/pkg/dnswire"
)

func testResponder(hostname string, addrs []net.IP) *Responder {
	return &Responder{
		log:           noopLogger{},
		hostname:      hostname,
		addresses:     func(string) []net.IP { return addrs },
		registrations: make(map[string]*Registration),
		lastSent:      make(map[answerKey]time.Time),
	}
}

func testRegistration() *Registration {
	return &Registration{
		InstanceName: "ABCD0001._matter._tcp.local",
		ServiceName:  OperationalService,
		Subtypes:     []string{"_S15._sub._matter._tcp.local"},
		Port:         5540,
		TXT:          []string{"SII=500"},
		ServiceTTL:   4500,
		AddressTTL:   120,
	}
}

func TestMatchQuestionInstanceNameReturnsSRVAndTXT(t *testing.T) {
	r := testResponder("node.local", nil)
	reg := testRegistration()
	r.registrations[reg.InstanceName] = reg

	res := r.matchQuestionLocked(dnswire.DnsQuery{Name: reg.InstanceName, Type: dnswire.TypeANY})
	if len(res.direct) != 2 {
		t.Fatalf("expected SRV and TXT direct answers, got %d", len(res.direct))
	}
	var sawSRV, sawTXT bool
	for _, rec := range res.direct {
		switch rec.Type {
		case dnswire.TypeSRV:
			sawSRV = true
		case dnswire.TypeTXT:
			sawTXT = true
		}
	}
	if !sawSRV || !sawTXT {
		t.Fatalf("expected both SRV and TXT, got %+v", res.direct)
	}
}

func TestMatchQuestionPTRIncludesAdditionalRecords(t *testing.T) {
	addr := net.ParseIP("fe80::1")
	r := testResponder("node.local", []net.IP{addr})
	reg := testRegistration()
	r.registrations[reg.InstanceName] = reg

	res := r.matchQuestionLocked(dnswire.DnsQuery{Name: reg.ServiceName, Type: dnswire.TypePTR})
	if len(res.direct) != 1 || res.direct[0].Type != dnswire.TypePTR || res.direct[0].PTR != reg.InstanceName {
		t.Fatalf("expected one PTR answer naming the instance, got %+v", res.direct)
	}
	var sawSRV, sawTXT, sawAddr bool
	for _, rec := range res.additional {
		switch rec.Type {
		case dnswire.TypeSRV:
			sawSRV = true
		case dnswire.TypeTXT:
			sawTXT = true
		case dnswire.TypeAAAA:
			sawAddr = true
		}
	}
	if !sawSRV || !sawTXT || !sawAddr {
		t.Fatalf("expected SRV+TXT+AAAA additionals, got %+v", res.additional)
	}
}

func TestMatchQuestionSubtypePTR(t *testing.T) {
	r := testResponder("node.local", nil)
	reg := testRegistration()
	r.registrations[reg.InstanceName] = reg

	res := r.matchQuestionLocked(dnswire.DnsQuery{Name: "_S15._sub._matter._tcp.local", Type: dnswire.TypePTR})
	if len(res.direct) != 1 || res.direct[0].PTR != reg.InstanceName {
		t.Fatalf("expected subtype PTR query to match, got %+v", res.direct)
	}
}

func TestMatchQuestionHostnameAddressQuery(t *testing.T) {
	addr := net.ParseIP("fe80::1")
	r := testResponder("node.local", []net.IP{addr})
	reg := testRegistration()
	r.registrations[reg.InstanceName] = reg

	res := r.matchQuestionLocked(dnswire.DnsQuery{Name: "node.local", Type: dnswire.TypeAAAA})
	if len(res.direct) != 1 || res.direct[0].AAAA != addr.String() {
		t.Fatalf("expected hostname AAAA query to return the address record, got %+v", res.direct)
	}
}

func TestMatchQuestionUnrelatedNameMatchesNothing(t *testing.T) {
	r := testResponder("node.local", nil)
	reg := testRegistration()
	r.registrations[reg.InstanceName] = reg

	res := r.matchQuestionLocked(dnswire.DnsQuery{Name: "something.else.local", Type: dnswire.TypeANY})
	if len(res.direct) != 0 || len(res.additional) != 0 {
		t.Fatalf("expected no match for unrelated name, got %+v", res)
	}
}

func TestSuppressedLocatedKnownAnswerAtOrAboveHalfTTL(t *testing.T) {
	r := testResponder("node.local", nil)
	rec := dnswire.Record{Name: "x.local", Type: dnswire.TypeTXT, TTL: 4500, TXT: []string{"a=1"}}

	known := []dnswire.Record{{Name: "x.local", Type: dnswire.TypeTXT, TTL: 2300, TXT: []string{"a=1"}}}
	if !r.suppressedLocked(rec, known) {
		t.Fatal("expected suppression when known answer TTL is at least half of rec's TTL")
	}
}

func TestSuppressedLocatedKnownAnswerBelowHalfTTLNotSuppressed(t *testing.T) {
	r := testResponder("node.local", nil)
	rec := dnswire.Record{Name: "x.local", Type: dnswire.TypeTXT, TTL: 4500, TXT: []string{"a=1"}}

	known := []dnswire.Record{{Name: "x.local", Type: dnswire.TypeTXT, TTL: 100, TXT: []string{"a=1"}}}
	if r.suppressedLocked(rec, known) {
		t.Fatal("expected no suppression when known answer TTL is under half of rec's TTL")
	}
}

func TestSuppressedLocatedDifferentRdataNotSuppressed(t *testing.T) {
	r := testResponder("node.local", nil)
	rec := dnswire.Record{Name: "x.local", Type: dnswire.TypeTXT, TTL: 4500, TXT: []string{"a=1"}}

	known := []dnswire.Record{{Name: "x.local", Type: dnswire.TypeTXT, TTL: 4500, TXT: []string{"a=2"}}}
	if r.suppressedLocked(rec, known) {
		t.Fatal("expected no suppression when rdata differs")
	}
}

func TestKeyOfDistinguishesRecordTypeAndData(t *testing.T) {
	srv := dnswire.Record{Name: "x.local", Type: dnswire.TypeSRV, SRV: &dnswire.SRVValue{Target: "node.local"}}
	txt := dnswire.Record{Name: "x.local", Type: dnswire.TypeTXT, TXT: []string{"a=1"}}
	if keyOf(srv) == keyOf(txt) {
		t.Fatal("expected different record types to produce different keys")
	}

	txtOther := dnswire.Record{Name: "x.local", Type: dnswire.TypeTXT, TXT: []string{"a=2"}}
	if keyOf(txt) == keyOf(txtOther) {
		t.Fatal("expected different TXT payloads to produce different keys")
	}
}

func TestRecordsForIncludesServicePTRSubtypesSRVTXTAndAddresses(t *testing.T) {
	addr := net.ParseIP("fe80::1")
	r := testResponder("node.local", []net.IP{addr})
	reg := testRegistration()

	recs := r.recordsFor(reg, "")
	var ptrCount int
	var sawSRV, sawTXT, sawAddr bool
	for _, rec := range recs {
		switch rec.Type {
		case dnswire.TypePTR:
			ptrCount++
		case dnswire.TypeSRV:
			sawSRV = true
		case dnswire.TypeTXT:
			sawTXT = true
		case dnswire.TypeAAAA:
			sawAddr = true
		}
	}
	if ptrCount != 1+len(reg.Subtypes) {
		t.Fatalf("expected %d PTR records (service + subtypes), got %d", 1+len(reg.Subtypes), ptrCount)
	}
	if !sawSRV || !sawTXT || !sawAddr {
		t.Fatalf("expected SRV, TXT, and address records, got %+v", recs)
	}
}
