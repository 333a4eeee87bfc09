package discovery

import (
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pion/logging"

	"matter-core/pkg/clock"
	"matter-core/pkg/dnswire"
	"matter-core/pkg/mnet"
)

// jitterMin and jitterMax are RFC-6762 §6's 20-120ms randomized response
// delay, carried over to Matter mDNS responses (§4.7).
const (
	jitterMin = 20 * time.Millisecond
	jitterMax = 120 * time.Millisecond
)

// Registration is one published service instance (§4.7 "announce/goodbye"):
// an operational or commissionable PTR/SRV/TXT/A/AAAA record set advertised
// on every joined interface.
type Registration struct {
	InstanceName string   // e.g. OperationalQName(...) or "<id>._matterc._udp.local"
	ServiceName  string   // OperationalService or CommissionableService
	Subtypes     []string // PTR subtype names this instance also answers under
	Port         uint16
	TXT          []string
	ServiceTTL   uint32 // TTL for PTR/SRV/TXT records, typically 4500s (RFC-6762 §10)
	AddressTTL   uint32 // TTL for A/AAAA records, typically 120s
}

func (r *Registration) ptrRecord(target string) dnswire.Record {
	return dnswire.Record{Name: target, Type: dnswire.TypePTR, Class: uint16(dnswire.ClassIN), TTL: r.ServiceTTL, PTR: r.InstanceName}
}

func (r *Registration) srvRecord(hostname string) dnswire.Record {
	return dnswire.Record{
		Name: r.InstanceName, Type: dnswire.TypeSRV, Class: uint16(dnswire.ClassIN), TTL: r.ServiceTTL, CacheFlush: true,
		SRV: &dnswire.SRVValue{Priority: 0, Weight: 0, Port: r.Port, Target: hostname},
	}
}

func (r *Registration) txtRecord() dnswire.Record {
	return dnswire.Record{Name: r.InstanceName, Type: dnswire.TypeTXT, Class: uint16(dnswire.ClassIN), TTL: r.ServiceTTL, CacheFlush: true, TXT: r.TXT}
}

// answerKey identifies one (name, type, rdata) tuple for suppression
// bookkeeping (§4.7 "known-answer" / "duplicate-answer" suppression).
type answerKey struct {
	name string
	typ  dnswire.RecordType
	data string
}

func keyOf(rec dnswire.Record) answerKey {
	data := rec.A + rec.AAAA + rec.PTR
	if rec.SRV != nil {
		data = rec.SRV.Target
	}
	if rec.TXT != nil {
		data = strings.Join(rec.TXT, "\x00")
	}
	return answerKey{name: rec.Name, typ: rec.Type, data: data}
}

// Responder is the mDNS advertiser (§4.7): it answers queries matching its
// registrations, applying known-answer suppression, duplicate-answer
// suppression, QU handling, and jittered responses.
type Responder struct {
	transport *mnet.Transport
	clk       *clock.Service
	log       logging.LeveledLogger
	metrics   *Metrics
	hostname  string
	addresses func(iface string) []net.IP

	mu            sync.Mutex
	registrations map[string]*Registration
	lastSent      map[answerKey]time.Time
	closing       bool
}

// ResponderOption configures NewResponder.
type ResponderOption func(*Responder)

func WithResponderLogger(log logging.LeveledLogger) ResponderOption {
	return func(r *Responder) { r.log = log }
}

func WithResponderMetrics(m *Metrics) ResponderOption {
	return func(r *Responder) { r.metrics = m }
}

// NewResponder constructs a Responder. hostname is this node's SRV target
// (e.g. "0123456789ABCDEF.local"); addresses resolves the A/AAAA records to
// advertise for a given interface, letting callers plug in
// net.InterfaceByName-based lookups or, in tests, fixed stand-ins.
func NewResponder(transport *mnet.Transport, clk *clock.Service, hostname string, addresses func(iface string) []net.IP, opts ...ResponderOption) *Responder {
	r := &Responder{
		transport:     transport,
		clk:           clk,
		log:           noopLogger{},
		hostname:      hostname,
		addresses:     addresses,
		registrations: make(map[string]*Registration),
		lastSent:      make(map[answerKey]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	if transport != nil {
		transport.OnMessage(r.handleDatagram)
	}
	return r
}

// Register publishes reg, sending two announcement bursts a second apart
// (RFC-6762 §8.3, carried into §4.7's "announce on registration").
func (r *Responder) Register(reg *Registration) {
	r.mu.Lock()
	r.registrations[reg.InstanceName] = reg
	r.mu.Unlock()

	r.announce(reg)
	timer := r.clk.GetTimer(1*time.Second, func() { r.announce(reg) })
	timer.Start()
}

func (r *Responder) announce(reg *Registration) {
	records := r.recordsFor(reg, "")
	msg := dnswire.Message{Response: true, Answers: records}
	data, err := dnswire.EncodeMessage(msg)
	if err != nil {
		r.log.Errorf("discovery: encode announcement: %v", err)
		return
	}
	if err := r.transport.Send(data, "", nil); err != nil {
		r.log.Warnf("discovery: send announcement: %v", err)
	}
}

// Unregister sends ttl=0 goodbye records and stops answering for name
// (§4.7 "goodbye on expireAnnouncements").
func (r *Responder) Unregister(instanceName string) {
	r.mu.Lock()
	reg, ok := r.registrations[instanceName]
	delete(r.registrations, instanceName)
	r.mu.Unlock()
	if !ok {
		return
	}
	goodbye := r.recordsFor(reg, "")
	for i := range goodbye {
		goodbye[i].TTL = 0
	}
	msg := dnswire.Message{Response: true, Answers: goodbye}
	data, err := dnswire.EncodeMessage(msg)
	if err != nil {
		return
	}
	_ = r.transport.Send(data, "", nil)
}

// recordsFor builds the full record set for reg: its own PTR (under its
// service and every subtype), SRV, TXT, and the A/AAAA records for iface's
// addresses (every interface's addresses when iface is empty).
func (r *Responder) recordsFor(reg *Registration, iface string) []dnswire.Record {
	out := []dnswire.Record{reg.ptrRecord(reg.ServiceName)}
	for _, sub := range reg.Subtypes {
		out = append(out, reg.ptrRecord(sub))
	}
	out = append(out, reg.srvRecord(r.hostname), reg.txtRecord())
	for _, ip := range r.addressesFor(iface) {
		out = append(out, r.addressRecord(ip, reg.AddressTTL))
	}
	return out
}

func (r *Responder) addressesFor(iface string) []net.IP {
	if r.addresses == nil {
		return nil
	}
	return r.addresses(iface)
}

func (r *Responder) addressRecord(ip net.IP, ttl uint32) dnswire.Record {
	if v4 := ip.To4(); v4 != nil {
		return dnswire.Record{Name: r.hostname, Type: dnswire.TypeA, Class: uint16(dnswire.ClassIN), TTL: ttl, CacheFlush: true, A: v4.String()}
	}
	return dnswire.Record{Name: r.hostname, Type: dnswire.TypeAAAA, Class: uint16(dnswire.ClassIN), TTL: ttl, CacheFlush: true, AAAA: ip.String()}
}

// handleDatagram is the transport's receive callback for inbound queries
// (§4.7 "Message ingestion"). Non-query (response) datagrams are ignored;
// the scanner half of this node handles those.
func (r *Responder) handleDatagram(inbound mnet.Received) {
	msg, err := dnswire.DecodeMessage(inbound.Data)
	if err != nil || msg.Response {
		return
	}

	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return
	}
	var answers []dnswire.Record
	var additional []dnswire.Record
	unicastOnly := true
	for _, q := range msg.Questions {
		matched := r.matchQuestionLocked(q)
		for _, rec := range matched.direct {
			if r.suppressedLocked(rec, msg.Answers) {
				if r.metrics != nil {
					r.metrics.AnswersSuppressed.Inc()
				}
				continue
			}
			answers = append(answers, rec)
			if !q.UnicastResponse {
				unicastOnly = false
			}
		}
		additional = append(additional, matched.additional...)
	}
	r.mu.Unlock()

	if len(answers) == 0 {
		return
	}

	respond := func() {
		r.mu.Lock()
		final := make([]dnswire.Record, 0, len(answers))
		now := r.clk.Now()
		for _, rec := range answers {
			k := keyOf(rec)
			window := time.Second
			if ttlWindow := time.Duration(rec.TTL/4) * time.Second; ttlWindow > window {
				window = ttlWindow
			}
			if last, ok := r.lastSent[k]; ok && now.Sub(last) < window {
				if r.metrics != nil {
					r.metrics.AnswersSuppressed.Inc()
				}
				continue
			}
			r.lastSent[k] = now
			final = append(final, rec)
		}
		r.mu.Unlock()
		if len(final) == 0 {
			return
		}
		r.send(final, additional, inbound, unicastOnly)
	}

	delay := jitterMin + time.Duration(rand.Int63n(int64(jitterMax-jitterMin)))
	timer := r.clk.GetTimer(delay, respond)
	timer.Start()
}

type matchResult struct {
	direct     []dnswire.Record
	additional []dnswire.Record
}

// matchQuestionLocked finds the registrations answering q, building its
// direct answers and, per §4.7 "additionalRecords for non-A/AAAA queries",
// the SRV/TXT/address records a PTR question's follow-up would need.
func (r *Responder) matchQuestionLocked(q dnswire.DnsQuery) matchResult {
	var res matchResult
	var anyReg *Registration
	for _, reg := range r.registrations {
		anyReg = reg
		if q.Name == reg.InstanceName {
			if q.Type == dnswire.TypeSRV || q.Type == dnswire.TypeANY {
				res.direct = append(res.direct, reg.srvRecord(r.hostname))
			}
			if q.Type == dnswire.TypeTXT || q.Type == dnswire.TypeANY {
				res.direct = append(res.direct, reg.txtRecord())
			}
		}
		if q.Type == dnswire.TypePTR && (q.Name == reg.ServiceName || containsSubtype(reg.Subtypes, q.Name)) {
			res.direct = append(res.direct, reg.ptrRecord(q.Name))
			res.additional = append(res.additional, reg.srvRecord(r.hostname), reg.txtRecord())
			res.additional = append(res.additional, addressRecordsFor(r, reg)...)
		}
	}
	if q.Name == r.hostname && anyReg != nil && (q.Type == dnswire.TypeA || q.Type == dnswire.TypeAAAA || q.Type == dnswire.TypeANY) {
		res.direct = append(res.direct, addressRecordsFor(r, anyReg)...)
	}
	return res
}

func addressRecordsFor(r *Responder, reg *Registration) []dnswire.Record {
	var out []dnswire.Record
	for _, ip := range r.addressesFor("") {
		out = append(out, r.addressRecord(ip, reg.AddressTTL))
	}
	return out
}

func containsSubtype(subtypes []string, name string) bool {
	for _, s := range subtypes {
		if s == name {
			return true
		}
	}
	return false
}

// suppressedLocked implements §4.7 known-answer suppression: drop rec if
// the querier already listed it among its own known answers with a TTL of
// at least half of rec's TTL.
func (r *Responder) suppressedLocked(rec dnswire.Record, known []dnswire.Record) bool {
	want := keyOf(rec)
	for _, k := range known {
		if keyOf(k) == want && k.TTL >= rec.TTL/2 {
			return true
		}
	}
	return false
}

// send transmits answers (and, for multicast responses, any additional
// records) unicast back to the querier when unicastOnly is set (every
// answer came from a QU question), and multicast otherwise.
func (r *Responder) send(answers, additional []dnswire.Record, inbound mnet.Received, unicastOnly bool) {
	msg := dnswire.Message{Response: true, Answers: answers}
	if !unicastOnly {
		msg.Additional = additional
	}
	data, err := dnswire.EncodeMessage(msg)
	if err != nil {
		r.log.Errorf("discovery: encode response: %v", err)
		return
	}

	var target *net.UDPAddr
	if unicastOnly && inbound.RemoteIP != nil {
		target = &net.UDPAddr{IP: inbound.RemoteIP, Port: mnet.Port}
	}
	if err := r.transport.Send(data, inbound.Interface, target); err != nil {
		r.log.Warnf("discovery: send response: %v", err)
		return
	}
	if r.metrics != nil {
		for range answers {
			r.metrics.AnswersSent.Inc()
		}
	}
}

// Close stops answering new queries; in-flight jittered responses already
// scheduled still fire.
func (r *Responder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closing = true
}
