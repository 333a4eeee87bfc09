package dnswire

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// DecodeMessage parses a DNS/mDNS message. A truncated response (header
// TC=1) decodes normally per §4.3's "tolerate truncated-response as a
// normal outcome" policy; callers inspect Message.Truncated. Answers of a
// type this package does not model are skipped rather than failing the
// whole decode, matching TLV's "unknown fields are skipped" forward
// compatibility stance (§4.1) applied to DNS resource records.
func DecodeMessage(data []byte) (*Message, error) {
	m := new(dns.Msg)
	if err := m.Unpack(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedRecord, err)
	}

	msg := &Message{
		ID:        m.Id,
		Response:  m.Response,
		Truncated: m.Truncated,
	}

	for _, q := range m.Question {
		msg.Questions = append(msg.Questions, DnsQuery{
			Name:            trimFqdn(q.Name),
			Type:            RecordType(q.Qtype),
			Class:           q.Qclass &^ 0x8000,
			UnicastResponse: q.Qclass&0x8000 != 0,
		})
	}

	for _, rr := range m.Answer {
		if rec, err := fromRR(rr); err == nil {
			msg.Answers = append(msg.Answers, rec)
		}
	}
	for _, rr := range m.Extra {
		if rec, err := fromRR(rr); err == nil {
			msg.Additional = append(msg.Additional, rec)
		}
	}

	return msg, nil
}

func trimFqdn(name string) string {
	return strings.TrimSuffix(name, ".")
}

func fromRR(rr dns.RR) (Record, error) {
	hdr := rr.Header()
	rec := Record{
		Name:       trimFqdn(hdr.Name),
		Type:       RecordType(hdr.Rrtype),
		Class:      hdr.Class &^ 0x8000,
		TTL:        hdr.Ttl,
		CacheFlush: hdr.Class&0x8000 != 0,
	}

	switch v := rr.(type) {
	case *dns.A:
		rec.A = v.A.String()
	case *dns.AAAA:
		rec.AAAA = v.AAAA.String()
	case *dns.SRV:
		rec.SRV = &SRVValue{Priority: v.Priority, Weight: v.Weight, Port: v.Port, Target: trimFqdn(v.Target)}
	case *dns.TXT:
		rec.TXT = v.Txt
	case *dns.PTR:
		rec.PTR = trimFqdn(v.Ptr)
	default:
		return Record{}, fmt.Errorf("%w: record type %v", ErrUnsupportedRecord, rec.Type)
	}

	return rec, nil
}
