package discovery

import (
	"net"
	"sync"
	"time"

	"matter-core/pkg/clock"
)

// AddressEntry is one cached (ip, port) pair for a record, with its own
// expiry and the interface it was observed on (§4.6 "Cache", "Address
// scoping").
type AddressEntry struct {
	Port      uint16
	Interface string
	ExpiresAt time.Time
}

// OperationalRecord is a cached operational device (§3
// OperationalDeviceRecord), keyed by its matterQname.
type OperationalRecord struct {
	DeviceIdentifier string
	TXT              OperationalTXT
	Addresses        map[string]AddressEntry // keyed by ip.String()
	ExpiresAt        time.Time
}

// Ready reports whether the record has at least one address, the §3
// invariant "addresses.size == 0 ⇒ not returned to callers."
func (r *OperationalRecord) Ready() bool {
	return r != nil && len(r.Addresses) > 0
}

// CommissionableRecord is a cached commissionable device (§3
// CommissionableDeviceRecord), keyed by its full instance qname.
type CommissionableRecord struct {
	DeviceIdentifier string
	TXT              CommissionableTXT
	Addresses        map[string]AddressEntry
	ExpiresAt        time.Time
}

// Ready reports whether the record has at least one address.
func (r *CommissionableRecord) Ready() bool {
	return r != nil && len(r.Addresses) > 0
}

// Cache holds the scanner's two record tables (§4.6 "Cache"): operational,
// keyed by matter qname, and commissionable, keyed by instance qname. A
// background sweep, grounded on core/connection_pool.go's reaper, removes
// expired addresses every 60s, then any record whose own TTL elapsed or
// whose address set became empty.
type Cache struct {
	mu             sync.Mutex
	operational    map[string]*OperationalRecord
	commissionable map[string]*CommissionableRecord
	clock          *clock.Service
}

// NewCache constructs an empty cache driven by clk.
func NewCache(clk *clock.Service) *Cache {
	return &Cache{
		operational:    make(map[string]*OperationalRecord),
		commissionable: make(map[string]*CommissionableRecord),
		clock:          clk,
	}
}

// UpsertOperationalTXT records or refreshes an operational record's TXT
// fields and top-level expiry (§4.6 "TXT under _matter._tcp.local").
func (c *Cache) UpsertOperationalTXT(qname string, txt OperationalTXT, ttl uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.operational[qname]
	if !ok {
		r = &OperationalRecord{DeviceIdentifier: qname, Addresses: make(map[string]AddressEntry)}
		c.operational[qname] = r
	}
	r.TXT = txt
	r.ExpiresAt = c.clock.Now().Add(time.Duration(ttl) * time.Second)
}

// UpsertOperationalAddress adds or refreshes one address under an
// operational record, creating the record if absent (an SRV answer may
// arrive before any TXT, or without one at all).
func (c *Cache) UpsertOperationalAddress(qname string, ip net.IP, port uint16, iface string, ttl uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.operational[qname]
	if !ok {
		r = &OperationalRecord{DeviceIdentifier: qname, Addresses: make(map[string]AddressEntry)}
		c.operational[qname] = r
	}
	now := c.clock.Now()
	r.Addresses[ip.String()] = AddressEntry{Port: port, Interface: iface, ExpiresAt: now.Add(time.Duration(ttl) * time.Second)}
	if r.ExpiresAt.Before(now) {
		r.ExpiresAt = now.Add(time.Duration(ttl) * time.Second)
	}
}

// RemoveOperationalAddress drops one address from a record (goodbye on a
// single IP), removing the whole record if it becomes addressless.
func (c *Cache) RemoveOperationalAddress(qname string, ip net.IP) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.operational[qname]
	if !ok {
		return
	}
	delete(r.Addresses, ip.String())
	if len(r.Addresses) == 0 {
		delete(c.operational, qname)
	}
}

// RemoveOperational drops a whole operational record (goodbye on the
// record itself).
func (c *Cache) RemoveOperational(qname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.operational, qname)
}

// GetOperational returns a snapshot of the named record, or nil if absent.
func (c *Cache) GetOperational(qname string) *OperationalRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.operational[qname]
	if !ok {
		return nil
	}
	return cloneOperational(r)
}

func cloneOperational(r *OperationalRecord) *OperationalRecord {
	out := &OperationalRecord{DeviceIdentifier: r.DeviceIdentifier, TXT: r.TXT, ExpiresAt: r.ExpiresAt, Addresses: make(map[string]AddressEntry, len(r.Addresses))}
	for k, v := range r.Addresses {
		out.Addresses[k] = v
	}
	return out
}

// UpsertCommissionableTXT records or refreshes a commissionable record's
// TXT fields (§4.6 "TXT under _matterc._udp.local").
func (c *Cache) UpsertCommissionableTXT(qname string, txt CommissionableTXT, ttl uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.commissionable[qname]
	if !ok {
		r = &CommissionableRecord{DeviceIdentifier: qname, Addresses: make(map[string]AddressEntry)}
		c.commissionable[qname] = r
	}
	r.TXT = txt
	r.ExpiresAt = c.clock.Now().Add(time.Duration(ttl) * time.Second)
}

// UpsertCommissionableAddress adds or refreshes one address under a
// commissionable record.
func (c *Cache) UpsertCommissionableAddress(qname string, ip net.IP, port uint16, iface string, ttl uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.commissionable[qname]
	if !ok {
		r = &CommissionableRecord{DeviceIdentifier: qname, Addresses: make(map[string]AddressEntry)}
		c.commissionable[qname] = r
	}
	now := c.clock.Now()
	r.Addresses[ip.String()] = AddressEntry{Port: port, Interface: iface, ExpiresAt: now.Add(time.Duration(ttl) * time.Second)}
	if r.ExpiresAt.Before(now) {
		r.ExpiresAt = now.Add(time.Duration(ttl) * time.Second)
	}
}

// RemoveCommissionableAddress drops one address from a commissionable
// record, removing the record if it becomes addressless.
func (c *Cache) RemoveCommissionableAddress(qname string, ip net.IP) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.commissionable[qname]
	if !ok {
		return
	}
	delete(r.Addresses, ip.String())
	if len(r.Addresses) == 0 {
		delete(c.commissionable, qname)
	}
}

// RemoveCommissionable drops a whole commissionable record.
func (c *Cache) RemoveCommissionable(qname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.commissionable, qname)
}

// GetCommissionable returns a snapshot of the named record, or nil if absent.
func (c *Cache) GetCommissionable(qname string) *CommissionableRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.commissionable[qname]
	if !ok {
		return nil
	}
	return cloneCommissionable(r)
}

func cloneCommissionable(r *CommissionableRecord) *CommissionableRecord {
	out := &CommissionableRecord{DeviceIdentifier: r.DeviceIdentifier, TXT: r.TXT, ExpiresAt: r.ExpiresAt, Addresses: make(map[string]AddressEntry, len(r.Addresses))}
	for k, v := range r.Addresses {
		out.Addresses[k] = v
	}
	return out
}

// AllCommissionable returns a snapshot of every cached commissionable
// record, used by query-identifier resolution and continuous discovery.
func (c *Cache) AllCommissionable() []*CommissionableRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*CommissionableRecord, 0, len(c.commissionable))
	for _, r := range c.commissionable {
		out = append(out, cloneCommissionable(r))
	}
	return out
}

// RemoveAddressEverywhere drops ip from every operational and
// commissionable record that carries it (§4.6: an A/AAAA goodbye is keyed
// by the target hostname, not by owning record, so every record that
// resolved to it is affected).
func (c *Cache) RemoveAddressEverywhere(ip net.IP) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := ip.String()
	for qname, r := range c.operational {
		if _, ok := r.Addresses[key]; ok {
			delete(r.Addresses, key)
			if len(r.Addresses) == 0 {
				delete(c.operational, qname)
			}
		}
	}
	for qname, r := range c.commissionable {
		if _, ok := r.Addresses[key]; ok {
			delete(r.Addresses, key)
			if len(r.Addresses) == 0 {
				delete(c.commissionable, qname)
			}
		}
	}
}

// Sweep implements the periodic TTL sweep (§4.6 "A periodic sweep every
// 60s removes addresses whose TTL elapsed, then removes any record whose
// top-level TTL elapsed or whose address set became empty").
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	for qname, r := range c.operational {
		for ip, a := range r.Addresses {
			if now.After(a.ExpiresAt) {
				delete(r.Addresses, ip)
			}
		}
		if now.After(r.ExpiresAt) || len(r.Addresses) == 0 {
			delete(c.operational, qname)
		}
	}
	for qname, r := range c.commissionable {
		for ip, a := range r.Addresses {
			if now.After(a.ExpiresAt) {
				delete(r.Addresses, ip)
			}
		}
		if now.After(r.ExpiresAt) || len(r.Addresses) == 0 {
			delete(c.commissionable, qname)
		}
	}
}
