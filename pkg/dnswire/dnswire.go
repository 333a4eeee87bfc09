// Package dnswire encodes and decodes the RFC-1035 / RFC-6762 messages the
// mDNS scanner and responder exchange (§4.3): queries, A/AAAA/SRV/TXT/PTR
// records, and RFC-1035 §4.1.4 name compression. It is built on
// github.com/miekg/dns, the DNS wire-format library already reachable
// through the teacher's go.mod (pulled in transitively by its libp2p mDNS
// discovery stack) and the obvious corpus-grounded choice over hand-rolling
// RFC 1035 parsing from scratch.
package dnswire

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// RecordType mirrors the DNS RR types Matter mDNS uses.
type RecordType uint16

const (
	TypeA    RecordType = dns.TypeA
	TypeAAAA RecordType = dns.TypeAAAA
	TypeSRV  RecordType = dns.TypeSRV
	TypeTXT  RecordType = dns.TypeTXT
	TypePTR  RecordType = dns.TypePTR
	TypeANY  RecordType = dns.TypeANY
)

func (t RecordType) String() string {
	return dns.TypeToString[uint16(t)]
}

// ClassIN is the only record class Matter mDNS uses.
const ClassIN = dns.ClassINET

// MaxNameLength and MaxLabelLength are the RFC-1035 limits the codec
// enforces on encode (§4.3 edge policies).
const (
	MaxNameLength  = 255
	MaxLabelLength = 63
)

// SRVValue is the typed payload of an SRV record.
type SRVValue struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

// Record is a fully-typed DNS resource record (§3 DnsRecord).
type Record struct {
	Name  string
	Type  RecordType
	Class uint16 // always ClassIN for Matter mDNS
	TTL   uint32

	// CacheFlush is RFC-6762 §10.2's "cache-flush" bit, encoded as the top
	// bit of the class field on answers.
	CacheFlush bool

	A    string // dotted-quad
	AAAA string // colon-hex
	SRV  *SRVValue
	TXT  []string // raw "key=value" entries, insertion order preserved
	PTR  string
}

// DnsQuery is one question in a query message.
type DnsQuery struct {
	Name  string
	Type  RecordType
	Class uint16
	// UnicastResponse is RFC-6762 §5.4's "QU" bit, encoded as the top bit
	// of the class field on questions.
	UnicastResponse bool
}

// Message is a full DNS/mDNS message (§3 / §4.3).
type Message struct {
	ID         uint16
	Response   bool
	Truncated  bool // header TC bit
	Questions  []DnsQuery
	Answers    []Record
	Additional []Record
}

// ValidateName rejects names exceeding RFC-1035's 255-octet total / 63-octet
// label limits (§4.3 edge policies).
func ValidateName(name string) error {
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name %q exceeds %d octets", ErrInvalidName, name, MaxNameLength)
	}
	for _, label := range strings.Split(strings.Trim(name, "."), ".") {
		if len(label) > MaxLabelLength {
			return fmt.Errorf("%w: label %q exceeds %d octets", ErrInvalidName, label, MaxLabelLength)
		}
	}
	return nil
}

func fqdn(name string) string {
	return dns.Fqdn(name)
}
