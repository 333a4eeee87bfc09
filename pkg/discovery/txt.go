package discovery

import (
	"strconv"
	"strings"
)

// parseTXT splits a list of raw "key=value" TXT entries into a map,
// preserving only the first occurrence of a duplicate key. Entries without
// "=" are ignored (malformed, not a recognized Matter key).
func parseTXT(entries []string) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		k, v, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if _, exists := out[k]; exists {
			continue
		}
		out[k] = v
	}
	return out
}

// OperationalTXT holds the decoded keys of an operational instance's TXT
// record (§4.6 "Operational path"). SII/SAI/SAT/T/DT/PH/ICD are ints;
// VP/DN/RI/PI are strings. Unrecognized keys are retained verbatim per §9's
// "do not guess types; retain unknowns as strings."
type OperationalTXT struct {
	SII, SAI, SAT, T, DT, PH, ICD *int
	VP, DN, RI, PI                string
	Unknown                       map[string]string
}

// ParseOperationalTXT decodes entries per §4.6's operational TXT key list.
func ParseOperationalTXT(entries []string) OperationalTXT {
	kv := parseTXT(entries)
	out := OperationalTXT{Unknown: map[string]string{}}
	intFields := map[string]**int{
		"SII": &out.SII, "SAI": &out.SAI, "SAT": &out.SAT,
		"T": &out.T, "DT": &out.DT, "PH": &out.PH, "ICD": &out.ICD,
	}
	strFields := map[string]*string{
		"VP": &out.VP, "DN": &out.DN, "RI": &out.RI, "PI": &out.PI,
	}
	for k, v := range kv {
		if dst, ok := intFields[k]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = &n
			}
			continue
		}
		if dst, ok := strFields[k]; ok {
			*dst = v
			continue
		}
		out.Unknown[k] = v
	}
	return out
}

// CommissionableTXT holds the decoded keys of a commissionable instance's
// TXT record (§3 CommissionableDeviceRecord, §6). D and CM are mandatory;
// ParseCommissionableTXT returns ErrMissingRequiredField if either is
// absent, per "Missing D or CM ⇒ drop."
type CommissionableTXT struct {
	D  uint16 // long discriminator
	CM int    // commissioning mode: 0/1/2
	SD uint8  // short discriminator, derived from D if absent

	V, P int // split out of VP = "V+P"
	VP   string

	DT                             int
	DN, RI, PI                     string
	SII, SAI, SAT, T, PH, ICD      *int
	Unknown                        map[string]string
}

// ParseCommissionableTXT decodes entries per §4.6's commissionable path.
func ParseCommissionableTXT(entries []string) (*CommissionableTXT, error) {
	kv := parseTXT(entries)
	out := &CommissionableTXT{Unknown: map[string]string{}}

	dStr, hasD := kv["D"]
	cmStr, hasCM := kv["CM"]
	if !hasD || !hasCM {
		return nil, ErrMissingRequiredField
	}
	d, err := strconv.Atoi(dStr)
	if err != nil {
		return nil, ErrMissingRequiredField
	}
	cm, err := strconv.Atoi(cmStr)
	if err != nil {
		return nil, ErrMissingRequiredField
	}
	out.D = uint16(d)
	out.CM = cm

	if sdStr, ok := kv["SD"]; ok {
		if sd, err := strconv.Atoi(sdStr); err == nil {
			out.SD = uint8(sd)
		}
	} else {
		out.SD = ShortFromLong(out.D)
	}

	if vp, ok := kv["VP"]; ok {
		out.VP = vp
		if v, p, ok := strings.Cut(vp, "+"); ok {
			out.V, _ = strconv.Atoi(v)
			out.P, _ = strconv.Atoi(p)
		}
	}
	if dt, ok := kv["DT"]; ok {
		out.DT, _ = strconv.Atoi(dt)
	}
	out.DN = kv["DN"]
	out.RI = kv["RI"]
	out.PI = kv["PI"]

	intFields := map[string]**int{
		"SII": &out.SII, "SAI": &out.SAI, "SAT": &out.SAT,
		"T": &out.T, "PH": &out.PH, "ICD": &out.ICD,
	}
	handled := map[string]bool{"D": true, "CM": true, "SD": true, "VP": true, "DT": true, "DN": true, "RI": true, "PI": true}
	for k, v := range kv {
		if handled[k] {
			continue
		}
		if dst, ok := intFields[k]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = &n
			}
			continue
		}
		out.Unknown[k] = v
	}
	return out, nil
}
