package discovery

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pion/logging"

	"matter-core/pkg/clock"
	"matter-core/pkg/dnswire"
	"matter-core/pkg/fabric"
	"matter-core/pkg/mnet"
)

// noopLogger is the Scanner's default logger.LeveledLogger when none is
// supplied via WithLogger.
type noopLogger struct{}

func (noopLogger) Trace(string)          {}
func (noopLogger) Tracef(string, ...any) {}
func (noopLogger) Debug(string)          {}
func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Info(string)           {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warn(string)           {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Error(string)          {}
func (noopLogger) Errorf(string, ...any) {}

// sweepInterval is the cache's periodic-expiry cadence (§4.6 "Cache").
const sweepInterval = 60 * time.Second

// Identifier names a commissionable device to search for
// (findCommissionableDevices*), trying fields in the §4.6 "Query-identifier
// resolution" priority order: instanceId, longDiscriminator,
// shortDiscriminator, vendorId, deviceType, productId, bare
// commissioning-mode. The first non-nil field (in that order) selects both
// the outbound subtype query and the matching rule for incoming records.
type Identifier struct {
	InstanceID            *string
	LongDiscriminator     *uint16
	ShortDiscriminator    *uint8
	VendorID              *fabric.VendorID
	DeviceType            *uint16
	ProductID             *fabric.ProductID
	CommissioningModeOnly bool
}

func (ident Identifier) queryID() string {
	switch {
	case ident.InstanceID != nil:
		return "instance:" + *ident.InstanceID
	case ident.LongDiscriminator != nil:
		return fmt.Sprintf("long:%d", *ident.LongDiscriminator)
	case ident.ShortDiscriminator != nil:
		return fmt.Sprintf("short:%d", *ident.ShortDiscriminator)
	case ident.VendorID != nil:
		return fmt.Sprintf("vendor:%d", *ident.VendorID)
	case ident.DeviceType != nil:
		return fmt.Sprintf("devtype:%d", *ident.DeviceType)
	case ident.ProductID != nil:
		return fmt.Sprintf("product:%d", *ident.ProductID)
	default:
		return "cm"
	}
}

func (ident Identifier) queryTuple() QueryTuple {
	name := CommissionableService
	typ := dnswire.TypePTR
	switch {
	case ident.InstanceID != nil:
		name = *ident.InstanceID + "." + CommissionableService
		typ = dnswire.TypeSRV
	case ident.LongDiscriminator != nil:
		name = LongDiscriminatorSubtype(*ident.LongDiscriminator)
	case ident.ShortDiscriminator != nil:
		name = ShortDiscriminatorSubtype(*ident.ShortDiscriminator)
	case ident.VendorID != nil:
		name = VendorSubtype(*ident.VendorID)
	case ident.DeviceType != nil:
		name = DeviceTypeSubtype(*ident.DeviceType)
	case ident.ProductID != nil:
		name = ProductSubtype(*ident.ProductID)
	case ident.CommissioningModeOnly:
		name = CommissioningModeSubtype
	}
	return QueryTuple{Name: name, Class: uint16(dnswire.ClassIN), Type: typ}
}

func (ident Identifier) matches(rec *CommissionableRecord) bool {
	switch {
	case ident.InstanceID != nil:
		return rec.DeviceIdentifier == *ident.InstanceID+"."+CommissionableService
	case ident.LongDiscriminator != nil:
		return rec.TXT.D == *ident.LongDiscriminator
	case ident.ShortDiscriminator != nil:
		return rec.TXT.SD == *ident.ShortDiscriminator
	case ident.VendorID != nil:
		return int(*ident.VendorID) == rec.TXT.V
	case ident.DeviceType != nil:
		return int(*ident.DeviceType) == rec.TXT.DT
	case ident.ProductID != nil:
		return int(*ident.ProductID) == rec.TXT.P
	case ident.CommissioningModeOnly:
		return rec.TXT.CM != 0
	default:
		return false
	}
}

// DiscoveredDevice is a ready record handed back to a caller, with its
// addresses sorted per §4.6 / §8 property 4.
type DiscoveredDevice struct {
	DeviceIdentifier string
	Addresses        []Address
}

func toDiscoveredOperational(r *OperationalRecord) *DiscoveredDevice {
	return &DiscoveredDevice{DeviceIdentifier: r.DeviceIdentifier, Addresses: addressesOf(r.Addresses)}
}

func toDiscoveredCommissionable(r *CommissionableRecord) *DiscoveredDevice {
	return &DiscoveredDevice{DeviceIdentifier: r.DeviceIdentifier, Addresses: addressesOf(r.Addresses)}
}

func addressesOf(m map[string]AddressEntry) []Address {
	out := make([]Address, 0, len(m))
	for ipStr, a := range m {
		out = append(out, Address{IP: net.ParseIP(ipStr), Port: a.Port, Interface: a.Interface})
	}
	return SortAddresses(out)
}

// Scanner is the mDNS discovery client (§4.6): it sends queries over a
// mnet.Transport, ingests responses into a Cache, and coordinates waiters
// for findOperationalDevice/findCommissionableDevices*. One logical
// executor owns all scanner state (§5 "Scheduling model"): handleDatagram,
// the send loop's timer callback and the exported methods all take mu
// before reading or changing the query, waiter and watcher tables.
type Scanner struct {
	transport  *mnet.Transport
	clk        *clock.Service
	cache      *Cache
	log        logging.LeveledLogger
	enableIPv4 bool
	metrics    *Metrics

	mu             sync.Mutex
	activeQueries  map[string]*ActiveQuery
	waiters        map[string]*Waiter
	watchers       map[string]*Watcher
	pendingTargets map[string][]pendingTarget

	interval time.Duration
	timer    *clock.Timer
	sweep    *clock.PeriodicTimer

	closing bool
}

// ScannerOption configures NewScanner.
type ScannerOption func(*Scanner)

// WithIPv4 enables issuing A queries alongside AAAA ones (§9 "Optional
// IPv4").
func WithIPv4(enable bool) ScannerOption {
	return func(s *Scanner) { s.enableIPv4 = enable }
}

// WithLogger attaches a LeveledLogger; the zero value is a no-op logger.
func WithLogger(log logging.LeveledLogger) ScannerOption {
	return func(s *Scanner) { s.log = log }
}

// WithMetrics attaches a Metrics set; nil (the default) disables metrics.
func WithMetrics(m *Metrics) ScannerOption {
	return func(s *Scanner) { s.metrics = m }
}

// NewScanner constructs a Scanner bound to transport and clk, and starts
// its cache sweep. The send loop's timer starts lazily on the first
// SetQueryRecords call.
func NewScanner(transport *mnet.Transport, clk *clock.Service, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		transport:     transport,
		clk:           clk,
		cache:         NewCache(clk),
		log:           noopLogger{},
		activeQueries:  make(map[string]*ActiveQuery),
		waiters:        make(map[string]*Waiter),
		watchers:       make(map[string]*Watcher),
		pendingTargets: make(map[string][]pendingTarget),
		interval:       InitialInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sweep = clk.GetPeriodicTimer(sweepInterval, s.cache.Sweep)
	s.sweep.Start()
	if transport != nil {
		transport.OnMessage(s.handleDatagram)
	}
	return s
}

// SetQueryRecords implements §4.6 "Queries": unions tuples/knownAnswers
// into the named ActiveQuery (creating it if new), and on any change resets
// the scanner's announce interval to 1.5s and fires an immediate send.
func (s *Scanner) SetQueryRecords(queryID string, tuples []QueryTuple, knownAnswers []dnswire.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return ErrClosing
	}

	q, ok := s.activeQueries[queryID]
	isNew := !ok
	if !ok {
		q = newActiveQuery(queryID)
		s.activeQueries[queryID] = q
	}
	changed := q.union(tuples, knownAnswers)

	if isNew || changed {
		s.interval = InitialInterval
		s.scheduleLocked(0)
	}
	return nil
}

// removeActiveQueryLocked drops an ActiveQuery once its waiter (if any) has
// resolved, per §4.6 "remove the ActiveQuery, return result."
func (s *Scanner) removeActiveQueryLocked(queryID string) {
	delete(s.activeQueries, queryID)
}

func (s *Scanner) scheduleLocked(delay time.Duration) {
	if s.timer == nil {
		s.timer = s.clk.GetTimer(delay, s.sendCycle)
	} else {
		s.timer.Reset(delay)
	}
	s.timer.Start()
}

// sendCycle implements §4.6's "Send loop": flatten every ActiveQuery into
// one or more MTU-budgeted messages, emit them, then reschedule with the
// doubled (capped) interval.
func (s *Scanner) sendCycle() {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	var questions []dnswire.DnsQuery
	var answers []dnswire.Record
	seenQ := make(map[QueryTuple]bool)
	for _, q := range s.activeQueries {
		for _, t := range q.Queries {
			if seenQ[t] {
				continue
			}
			seenQ[t] = true
			questions = append(questions, dnswire.DnsQuery{Name: t.Name, Type: t.Type, Class: t.Class})
		}
		answers = append(answers, q.KnownAnswers...)
	}
	s.interval *= 2
	if s.interval > MaxInterval {
		s.interval = MaxInterval
	}
	nextDelay := s.interval
	s.mu.Unlock()

	s.emit(questions, answers)
	s.mu.Lock()
	if !s.closing {
		s.scheduleLocked(nextDelay)
	}
	s.mu.Unlock()
}

// emit budgets questions+answers into MAX_MDNS_MESSAGE_SIZE-sized
// datagrams (§4.6 "Send loop" step 2, §8 properties 5-6): while the next
// answer still fits, append it; otherwise flush as a TruncatedQuery and
// start a new message. The last message is flushed as a normal Query.
func (s *Scanner) emit(questions []dnswire.DnsQuery, answers []dnswire.Record) {
	msg := dnswire.Message{Questions: questions}
	flush := func(truncated bool) {
		msg.Truncated = truncated
		data, err := dnswire.EncodeMessage(msg)
		if err != nil {
			s.log.Errorf("discovery: encode query: %v", err)
			return
		}
		if err := s.transport.Send(data, "", nil); err != nil {
			s.log.Warnf("discovery: send query: %v", err)
		}
		if s.metrics != nil {
			s.metrics.QueriesSent.Inc()
		}
		msg = dnswire.Message{}
	}

	for _, a := range answers {
		candidate := dnswire.Message{Questions: msg.Questions, Answers: append(append([]dnswire.Record(nil), msg.Answers...), a)}
		encoded, err := dnswire.EncodeMessage(candidate)
		if err != nil || len(encoded) > mnet.MaxMessageSize {
			if len(msg.Answers) == 0 {
				// A single answer alone exceeds the budget: emit it anyway (§4.6).
				if s.metrics != nil {
					s.metrics.OversizedAnswers.Inc()
				}
				msg.Answers = []dnswire.Record{a}
				flush(true)
				continue
			}
			flush(true)
			msg.Answers = []dnswire.Record{a}
			continue
		}
		msg.Answers = append(msg.Answers, a)
	}
	flush(false)
}

// handleDatagram is the UDP transport's receive callback (§4.6 "Message
// ingestion"). It decodes the datagram and merges answers/additional
// records into the cache, following the operational/commissionable paths.
func (s *Scanner) handleDatagram(r mnet.Received) {
	msg, err := dnswire.DecodeMessage(r.Data)
	if err != nil {
		s.log.Debugf("discovery: decode inbound datagram: %v", err)
		return
	}
	if !msg.Response && !msg.Truncated {
		return
	}

	all := append(append([]dnswire.Record(nil), msg.Answers...), msg.Additional...)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}
	for _, rec := range all {
		s.ingestRecordLocked(rec, all, r.Interface)
	}
}

func (s *Scanner) ingestRecordLocked(rec dnswire.Record, context []dnswire.Record, iface string) {
	switch {
	case strings.HasSuffix(rec.Name, OperationalService) && rec.Type == dnswire.TypeTXT:
		s.ingestOperationalTXTLocked(rec)
	case rec.Type == dnswire.TypeSRV && strings.HasSuffix(rec.Name, OperationalService):
		s.ingestOperationalSRVLocked(rec, context, iface)
	case strings.HasSuffix(rec.Name, CommissionableService) && rec.Type == dnswire.TypeTXT:
		s.ingestCommissionableTXTLocked(rec)
	case rec.Type == dnswire.TypeSRV && strings.HasSuffix(rec.Name, CommissionableService):
		s.ingestCommissionableSRVLocked(rec, context, iface)
	case (rec.Type == dnswire.TypeA || rec.Type == dnswire.TypeAAAA) && rec.TTL == 0:
		s.ingestAddressGoodbyeLocked(rec)
	case rec.Type == dnswire.TypeA || rec.Type == dnswire.TypeAAAA:
		s.ingestStandaloneAddressLocked(rec)
	}
}

// pendingTarget records that ownerName's address resolution is still
// waiting on an A/AAAA for a given SRV target, because the target didn't
// resolve within the same message (§9 "truncated-response correlation":
// a later standalone A/AAAA answer still needs to reach the right owner).
type pendingTarget struct {
	ownerName      string
	port           uint16
	commissionable bool
}

func (s *Scanner) registerPendingTargetLocked(target, ownerName string, port uint16, commissionable bool) {
	s.pendingTargets[target] = append(s.pendingTargets[target], pendingTarget{ownerName: ownerName, port: port, commissionable: commissionable})
}

// ingestStandaloneAddressLocked handles an A/AAAA answer that arrived
// without its owning SRV record in the same message, resolving it against
// any owners registered via registerPendingTargetLocked.
func (s *Scanner) ingestStandaloneAddressLocked(rec dnswire.Record) {
	owners, ok := s.pendingTargets[rec.Name]
	if !ok {
		return
	}
	var ip net.IP
	if rec.Type == dnswire.TypeA {
		ip = net.ParseIP(rec.A)
	} else {
		ip = net.ParseIP(rec.AAAA)
	}
	if ip == nil {
		return
	}
	for _, owner := range owners {
		if owner.commissionable {
			s.cache.UpsertCommissionableAddress(owner.ownerName, ip, owner.port, "", rec.TTL)
			s.completeCommissionableLocked(owner.ownerName)
		} else {
			s.cache.UpsertOperationalAddress(owner.ownerName, ip, owner.port, "", rec.TTL)
			s.completeOperationalLocked(owner.ownerName)
		}
	}
}

func (s *Scanner) ingestOperationalTXTLocked(rec dnswire.Record) {
	if rec.TTL == 0 {
		s.cache.RemoveOperational(rec.Name)
		if s.metrics != nil {
			s.metrics.GoodbyesProcessed.Inc()
		}
		return
	}
	txt := ParseOperationalTXT(rec.TXT)
	s.cache.UpsertOperationalTXT(rec.Name, txt, rec.TTL)
}

func (s *Scanner) ingestOperationalSRVLocked(rec dnswire.Record, context []dnswire.Record, iface string) {
	if rec.SRV == nil {
		return
	}
	if rec.TTL == 0 {
		s.cache.RemoveOperational(rec.Name)
		if s.metrics != nil {
			s.metrics.GoodbyesProcessed.Inc()
		}
		return
	}
	added := s.resolveTargetAddressesLocked(rec.Name, rec.SRV.Target, rec.SRV.Port, context, iface, false)
	if added {
		s.completeOperationalLocked(rec.Name)
		return
	}
	s.registerPendingTargetLocked(rec.SRV.Target, rec.Name, rec.SRV.Port, false)
	queryID := "op:" + rec.Name
	if _, hasWaiter := s.waiters[queryID]; hasWaiter {
		s.requestAddressesLocked(rec.SRV.Target)
	}
}

// completeOperationalLocked resolves the waiter for qname once its record
// has at least one address (§4.6 findOperationalDevice: "resolves once the
// record is ready").
func (s *Scanner) completeOperationalLocked(qname string) {
	rec := s.cache.GetOperational(qname)
	if !rec.Ready() {
		return
	}
	if w, ok := s.waiters["op:"+qname]; ok {
		w.resolve()
	}
}

func (s *Scanner) ingestCommissionableTXTLocked(rec dnswire.Record) {
	if rec.TTL == 0 {
		s.cache.RemoveCommissionable(rec.Name)
		if s.metrics != nil {
			s.metrics.GoodbyesProcessed.Inc()
		}
		return
	}
	txt, err := ParseCommissionableTXT(rec.TXT)
	if err != nil {
		return
	}
	s.cache.UpsertCommissionableTXT(rec.Name, *txt, rec.TTL)
}

func (s *Scanner) ingestCommissionableSRVLocked(rec dnswire.Record, context []dnswire.Record, iface string) {
	if rec.SRV == nil {
		return
	}
	if rec.TTL == 0 {
		s.cache.RemoveCommissionable(rec.Name)
		if s.metrics != nil {
			s.metrics.GoodbyesProcessed.Inc()
		}
		return
	}
	if !s.resolveTargetAddressesLocked(rec.Name, rec.SRV.Target, rec.SRV.Port, context, iface, true) {
		s.registerPendingTargetLocked(rec.SRV.Target, rec.Name, rec.SRV.Port, true)
	}
	s.completeCommissionableLocked(rec.Name)
}

// resolveTargetAddressesLocked looks up A/AAAA records for target in the
// given message context and upserts any found into the owning record's
// address map (§4.6 "Look up A/AAAA records... for each IP with non-zero
// TTL, upsert addresses"). Returns whether any address was added.
func (s *Scanner) resolveTargetAddressesLocked(ownerName, target string, port uint16, context []dnswire.Record, iface string, commissionable bool) bool {
	added := false
	for _, rec := range context {
		if rec.Name != target || rec.TTL == 0 {
			continue
		}
		var ip net.IP
		switch rec.Type {
		case dnswire.TypeA:
			ip = net.ParseIP(rec.A)
		case dnswire.TypeAAAA:
			ip = net.ParseIP(rec.AAAA)
		default:
			continue
		}
		if ip == nil {
			continue
		}
		if commissionable {
			s.cache.UpsertCommissionableAddress(ownerName, ip, port, iface, rec.TTL)
		} else {
			s.cache.UpsertOperationalAddress(ownerName, ip, port, iface, rec.TTL)
		}
		added = true
	}
	return added
}

// requestAddressesLocked issues an immediate AAAA (and A, if enabled) query
// for target (§4.6: "immediately issue an AAAA (and A...) query for
// target").
func (s *Scanner) requestAddressesLocked(target string) {
	tuples := []QueryTuple{{Name: target, Class: uint16(dnswire.ClassIN), Type: dnswire.TypeAAAA}}
	if s.enableIPv4 {
		tuples = append(tuples, QueryTuple{Name: target, Class: uint16(dnswire.ClassIN), Type: dnswire.TypeA})
	}
	queryID := "addr:" + target
	q, ok := s.activeQueries[queryID]
	if !ok {
		q = newActiveQuery(queryID)
		s.activeQueries[queryID] = q
	}
	if q.union(tuples, nil) {
		s.interval = InitialInterval
		s.scheduleLocked(0)
	}
}

func (s *Scanner) ingestAddressGoodbyeLocked(rec dnswire.Record) {
	var ip net.IP
	if rec.Type == dnswire.TypeA {
		ip = net.ParseIP(rec.A)
	} else {
		ip = net.ParseIP(rec.AAAA)
	}
	if ip == nil {
		return
	}
	s.cache.RemoveAddressEverywhere(ip)
	if s.metrics != nil {
		s.metrics.GoodbyesProcessed.Inc()
	}
}

// completeCommissionableLocked resolves the waiter matching rec, if any,
// per §4.6 "on completion the matching waiter is finished" and notifies any
// continuous watcher.
func (s *Scanner) completeCommissionableLocked(qname string) {
	rec := s.cache.GetCommissionable(qname)
	if !rec.Ready() {
		return
	}
	if queryID, ok := s.resolveCommissionableQueryIDLocked(rec); ok {
		if w, ok := s.waiters[queryID]; ok {
			w.resolve()
		}
		if watcher, ok := s.watchers[queryID]; ok {
			watcher.notify(rec)
		}
	}
}

// resolveCommissionableQueryIDLocked implements §4.6 "Query-identifier
// resolution": instanceId, longDiscriminator, shortDiscriminator, vendorId,
// deviceType, productId, bare commissioning-mode, in that order; the first
// ActiveQuery present wins.
func (s *Scanner) resolveCommissionableQueryIDLocked(rec *CommissionableRecord) (string, bool) {
	candidates := []string{
		"instance:" + strings.TrimSuffix(rec.DeviceIdentifier, "."+CommissionableService),
		fmt.Sprintf("long:%d", rec.TXT.D),
		fmt.Sprintf("short:%d", rec.TXT.SD),
		fmt.Sprintf("vendor:%d", rec.TXT.V),
		fmt.Sprintf("devtype:%d", rec.TXT.DT),
		fmt.Sprintf("product:%d", rec.TXT.P),
		"cm",
	}
	for _, c := range candidates {
		if _, ok := s.activeQueries[c]; ok {
			return c, true
		}
	}
	return "", false
}

// FindOperationalDevice implements §4.6 findOperationalDevice: returns the
// cached record if already ready, else registers a Waiter, issues an SRV
// query for the target's matterQname, and awaits resolution or timeout.
func (s *Scanner) FindOperationalDevice(operationalID [fabric.OperationalIDSize]byte, nodeID fabric.NodeID, timeout time.Duration) (*DiscoveredDevice, error) {
	qname := OperationalQName(operationalID, nodeID)
	queryID := "op:" + qname

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil, ErrClosing
	}
	if rec := s.cache.GetOperational(qname); rec.Ready() {
		s.mu.Unlock()
		return toDiscoveredOperational(rec), nil
	}
	w := newWaiter(queryID)
	s.waiters[queryID] = w
	var timer *clock.Timer
	if timeout > 0 {
		timer = s.clk.GetTimer(timeout, w.resolveTimeout)
		timer.Start()
	}
	s.mu.Unlock()

	if err := s.SetQueryRecords(queryID, []QueryTuple{{Name: qname, Class: uint16(dnswire.ClassIN), Type: dnswire.TypeSRV}}, nil); err != nil {
		return nil, err
	}

	w.Wait()
	if timer != nil {
		timer.Stop()
	}

	s.mu.Lock()
	delete(s.waiters, queryID)
	s.removeActiveQueryLocked(queryID)
	s.mu.Unlock()

	rec := s.cache.GetOperational(qname)
	if !rec.Ready() {
		return nil, nil
	}
	return toDiscoveredOperational(rec), nil
}

// FindCommissionableDevices implements §4.6 findCommissionableDevices:
// analogous to FindOperationalDevice, resolving on the first matching
// discovery.
func (s *Scanner) FindCommissionableDevices(ident Identifier, timeout time.Duration) (*DiscoveredDevice, error) {
	queryID := ident.queryID()

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil, ErrClosing
	}
	for _, rec := range s.cache.AllCommissionable() {
		if ident.matches(rec) && rec.Ready() {
			s.mu.Unlock()
			return toDiscoveredCommissionable(rec), nil
		}
	}
	w := newWaiter(queryID)
	s.waiters[queryID] = w
	var timer *clock.Timer
	if timeout > 0 {
		timer = s.clk.GetTimer(timeout, w.resolveTimeout)
		timer.Start()
	}
	s.mu.Unlock()

	if err := s.SetQueryRecords(queryID, []QueryTuple{ident.queryTuple()}, nil); err != nil {
		return nil, err
	}

	w.Wait()
	if timer != nil {
		timer.Stop()
	}

	s.mu.Lock()
	delete(s.waiters, queryID)
	s.removeActiveQueryLocked(queryID)
	s.mu.Unlock()

	for _, rec := range s.cache.AllCommissionable() {
		if ident.matches(rec) && rec.Ready() {
			return toDiscoveredCommissionable(rec), nil
		}
	}
	return nil, nil
}

// FindCommissionableDevicesContinuously implements §4.6
// findCommissionableDevicesContinuously: runs a long discovery window,
// invoking cb once per distinct device identifier, until timeout elapses.
// It blocks for the whole window; callers typically run it in a goroutine.
func (s *Scanner) FindCommissionableDevicesContinuously(ident Identifier, cb func(*DiscoveredDevice), timeout time.Duration) error {
	queryID := ident.queryID()

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ErrClosing
	}
	watcher := newWatcher(queryID, func(rec *CommissionableRecord) {
		cb(toDiscoveredCommissionable(rec))
	})
	s.watchers[queryID] = watcher
	timer := s.clk.GetTimer(timeout, watcher.stop)
	timer.Start()
	s.mu.Unlock()

	if err := s.SetQueryRecords(queryID, []QueryTuple{ident.queryTuple()}, nil); err != nil {
		return err
	}

	<-watcher.done
	timer.Stop()

	s.mu.Lock()
	delete(s.watchers, queryID)
	s.removeActiveQueryLocked(queryID)
	s.mu.Unlock()
	return nil
}

// CancelOperationalDeviceDiscovery implements §5's cancel*Discovery:
// resolves the waiter immediately, as if satisfied.
func (s *Scanner) CancelOperationalDeviceDiscovery(operationalID [fabric.OperationalIDSize]byte, nodeID fabric.NodeID) {
	queryID := "op:" + OperationalQName(operationalID, nodeID)
	s.mu.Lock()
	w, ok := s.waiters[queryID]
	s.mu.Unlock()
	if ok {
		w.resolve()
	}
}

// CancelCommissionableDeviceDiscovery implements §5's cancel*Discovery for
// the commissionable path.
func (s *Scanner) CancelCommissionableDeviceDiscovery(ident Identifier) {
	queryID := ident.queryID()
	s.mu.Lock()
	w, ok := s.waiters[queryID]
	s.mu.Unlock()
	if ok {
		w.resolve()
	}
}

// Close implements §5 "close()": sets closing, stops all timers, resolves
// every outstanding waiter and stops every continuous watcher. Waiters
// without a timeout timer are resolved too; none is dropped. After Close,
// every discovery method fails with ErrClosing.
func (s *Scanner) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}
	s.closing = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.sweep.Stop()
	for _, w := range s.waiters {
		w.resolveTimeout()
	}
	for _, watcher := range s.watchers {
		watcher.stop()
	}
}
