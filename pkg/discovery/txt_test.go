package discovery

import "testing"

func TestParseOperationalTXTRetainsUnknownKeys(t *testing.T) {
	txt := ParseOperationalTXT([]string{"SII=500", "VP=65521+32769", "FUTURE=xyz"})
	if txt.SII == nil || *txt.SII != 500 {
		t.Fatalf("expected SII=500, got %v", txt.SII)
	}
	if txt.VP != "65521+32769" {
		t.Fatalf("expected VP passthrough, got %q", txt.VP)
	}
	if txt.Unknown["FUTURE"] != "xyz" {
		t.Fatalf("expected unknown key retained, got %v", txt.Unknown)
	}
}

func TestParseCommissionableTXTRequiresDAndCM(t *testing.T) {
	if _, err := ParseCommissionableTXT([]string{"VP=1+2"}); err != ErrMissingRequiredField {
		t.Fatalf("expected ErrMissingRequiredField, got %v", err)
	}
}

func TestParseCommissionableTXTDerivesShortDiscriminator(t *testing.T) {
	txt, err := ParseCommissionableTXT([]string{"D=3840", "CM=1"})
	if err != nil {
		t.Fatalf("ParseCommissionableTXT: %v", err)
	}
	if txt.SD != ShortFromLong(3840) {
		t.Fatalf("expected derived SD %d, got %d", ShortFromLong(3840), txt.SD)
	}
}

func TestParseCommissionableTXTSplitsVP(t *testing.T) {
	txt, err := ParseCommissionableTXT([]string{"D=10", "CM=2", "VP=65521+32769"})
	if err != nil {
		t.Fatalf("ParseCommissionableTXT: %v", err)
	}
	if txt.V != 65521 || txt.P != 32769 {
		t.Fatalf("expected V=65521 P=32769, got V=%d P=%d", txt.V, txt.P)
	}
}
