package dnswire

import "testing"

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		ID:       0,
		Response: true,
		Questions: []DnsQuery{
			{Name: "_matter._tcp.local", Type: TypePTR, Class: ClassIN},
		},
		Answers: []Record{
			{Name: "_matter._tcp.local", Type: TypePTR, Class: ClassIN, TTL: 120, PTR: "A1B2C3D4E5F60708-00000000DEADBEEF._matter._tcp.local"},
			{Name: "A1B2C3D4E5F60708-00000000DEADBEEF._matter._tcp.local", Type: TypeTXT, Class: ClassIN, TTL: 120, TXT: []string{"SII=500", "SAI=300"}},
			{Name: "A1B2C3D4E5F60708-00000000DEADBEEF._matter._tcp.local", Type: TypeSRV, Class: ClassIN, TTL: 120, SRV: &SRVValue{Priority: 0, Weight: 0, Port: 5540, Target: "node.local"}},
			{Name: "node.local", Type: TypeAAAA, Class: ClassIN, TTL: 120, AAAA: "fe80::1"},
		},
	}

	encoded, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	if len(encoded) > MaxNameLength*20 {
		t.Fatalf("encoded message implausibly large: %d", len(encoded))
	}

	decoded, err := DecodeMessage(encoded)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}

	if len(decoded.Answers) != len(msg.Answers) {
		t.Fatalf("answer count mismatch: got %d want %d", len(decoded.Answers), len(msg.Answers))
	}
	if decoded.Answers[2].SRV == nil || decoded.Answers[2].SRV.Port != 5540 {
		t.Fatalf("SRV round-trip mismatch: %+v", decoded.Answers[2].SRV)
	}
	if decoded.Answers[3].AAAA != "fe80::1" {
		t.Fatalf("AAAA round-trip mismatch: %q", decoded.Answers[3].AAAA)
	}
	if len(decoded.Questions) != 1 || decoded.Questions[0].Name != "_matter._tcp.local" {
		t.Fatalf("question round-trip mismatch: %+v", decoded.Questions)
	}
}

func TestValidateNameRejectsOversizedLabel(t *testing.T) {
	label := make([]byte, 64)
	for i := range label {
		label[i] = 'a'
	}
	name := string(label) + ".local"
	if err := ValidateName(name); err == nil {
		t.Fatal("expected oversized label to be rejected")
	}
}

func TestTruncatedResponseDecodesWithoutError(t *testing.T) {
	msg := Message{Response: true, Truncated: true}
	encoded, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	decoded, err := DecodeMessage(encoded)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if !decoded.Truncated {
		t.Fatal("expected Truncated to survive round-trip")
	}
}

func TestRecordWireSizeIsPlausibleForOneRecord(t *testing.T) {
	rec := Record{Name: "node.local", Type: TypeAAAA, Class: ClassIN, TTL: 120, AAAA: "fe80::1"}
	size, err := RecordWireSize(rec)
	if err != nil {
		t.Fatalf("RecordWireSize: %v", err)
	}
	if size <= 0 || size > MaxNameLength {
		t.Fatalf("implausible record size: %d", size)
	}
}
