package dnswire

import (
	"fmt"
	"net"

	"github.com/miekg/dns"
)

func classWithFlag(class uint16, flag bool) uint16 {
	if flag {
		return class | 0x8000
	}
	return class
}

func toRR(r Record) (dns.RR, error) {
	if err := ValidateName(r.Name); err != nil {
		return nil, err
	}
	hdr := dns.RR_Header{
		Name:   fqdn(r.Name),
		Rrtype: uint16(r.Type),
		Class:  classWithFlag(r.Class, r.CacheFlush),
		Ttl:    r.TTL,
	}
	if hdr.Class == 0 {
		hdr.Class = classWithFlag(ClassIN, r.CacheFlush)
	}

	switch r.Type {
	case TypeA:
		ip := net.ParseIP(r.A).To4()
		if ip == nil {
			return nil, fmt.Errorf("%w: invalid A address %q", ErrUnsupportedRecord, r.A)
		}
		return &dns.A{Hdr: hdr, A: ip}, nil

	case TypeAAAA:
		ip := net.ParseIP(r.AAAA)
		if ip == nil {
			return nil, fmt.Errorf("%w: invalid AAAA address %q", ErrUnsupportedRecord, r.AAAA)
		}
		return &dns.AAAA{Hdr: hdr, AAAA: ip}, nil

	case TypeSRV:
		if r.SRV == nil {
			return nil, fmt.Errorf("%w: SRV record missing payload", ErrUnsupportedRecord)
		}
		if err := ValidateName(r.SRV.Target); err != nil {
			return nil, err
		}
		return &dns.SRV{
			Hdr:      hdr,
			Priority: r.SRV.Priority,
			Weight:   r.SRV.Weight,
			Port:     r.SRV.Port,
			Target:   fqdn(r.SRV.Target),
		}, nil

	case TypeTXT:
		txt := r.TXT
		if txt == nil {
			txt = []string{}
		}
		return &dns.TXT{Hdr: hdr, Txt: txt}, nil

	case TypePTR:
		if err := ValidateName(r.PTR); err != nil {
			return nil, err
		}
		return &dns.PTR{Hdr: hdr, Ptr: fqdn(r.PTR)}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported record type %v", ErrUnsupportedRecord, r.Type)
	}
}

// EncodeRecord encodes a single record as a standalone one-answer message,
// so the scanner and responder can compute its wire size for MTU budgeting
// (§4.3) without assembling a full outbound message. The returned bytes
// include the 12-byte DNS header; use RecordWireSize to get the record's
// own contribution to a budget.
func EncodeRecord(r Record) ([]byte, error) {
	rr, err := toRR(r)
	if err != nil {
		return nil, err
	}
	m := new(dns.Msg)
	m.Answer = []dns.RR{rr}
	buf, err := m.Pack()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedRecord, err)
	}
	return buf, nil
}

// RecordWireSize returns the number of bytes r contributes to a message,
// excluding the fixed 12-byte header shared by the whole message.
func RecordWireSize(r Record) (int, error) {
	buf, err := EncodeRecord(r)
	if err != nil {
		return 0, err
	}
	const headerSize = 12
	return len(buf) - headerSize, nil
}

// EncodeMessage serializes msg with RFC-1035 §4.1.4 name compression
// enabled.
func EncodeMessage(msg Message) ([]byte, error) {
	m := new(dns.Msg)
	m.Id = msg.ID
	m.Response = msg.Response
	m.Truncated = msg.Truncated
	m.Compress = true
	m.Opcode = dns.OpcodeQuery

	for _, q := range msg.Questions {
		if err := ValidateName(q.Name); err != nil {
			return nil, err
		}
		class := q.Class
		if class == 0 {
			class = ClassIN
		}
		m.Question = append(m.Question, dns.Question{
			Name:   fqdn(q.Name),
			Qtype:  uint16(q.Type),
			Qclass: classWithFlag(class, q.UnicastResponse),
		})
	}

	for _, a := range msg.Answers {
		rr, err := toRR(a)
		if err != nil {
			return nil, err
		}
		m.Answer = append(m.Answer, rr)
	}

	for _, a := range msg.Additional {
		rr, err := toRR(a)
		if err != nil {
			return nil, err
		}
		m.Extra = append(m.Extra, rr)
	}

	buf, err := m.Pack()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedRecord, err)
	}
	return buf, nil
}
