// Package mnet implements the UDP multicast/unicast transport mDNS
// discovery runs over (§4.4): joining the Matter mDNS multicast groups on
// one or more interfaces, sending multicast or unicast datagrams, and
// delivering received datagrams with their source address and receiving
// interface to a registered callback. It follows the teacher's
// core/network.go and core/connection_pool.go shape — a constructor
// returning (*Transport, error), a context/cancel pair, a mutex-guarded
// callback, and a background goroutine loop — built here on
// golang.org/x/net/ipv6 and golang.org/x/net/ipv4's PacketConn, the
// standard way Go code joins per-interface multicast groups and recovers
// the receiving interface on each datagram (net.ListenMulticastUDP alone
// cannot do either).
package mnet

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Matter's mDNS transport parameters (§6).
const (
	Port              = 5353
	MaxMessageSize    = 1500
	defaultQueueDepth = 256
)

// IPv6Group is the required Matter mDNS multicast group.
var IPv6Group = net.ParseIP("ff02::fb")

// IPv4Group is the optional Matter mDNS multicast group.
var IPv4Group = net.ParseIP("224.0.0.251")

// Config configures Create.
type Config struct {
	// Interface restricts the transport to a single named interface; if
	// empty, every up, multicast-capable interface is joined.
	Interface string
	// EnableIPv4 additionally joins IPv4Group on udp4. IPv6 is always
	// joined, per §6.
	EnableIPv4 bool
	// Port overrides Port, mainly for tests that cannot bind 5353.
	Port int
	// QueueDepth overrides defaultQueueDepth.
	QueueDepth int
	Logger     logrus.FieldLogger
}

// Received is one inbound datagram delivered to a Transport's callback.
type Received struct {
	Data      []byte
	RemoteIP  net.IP
	Interface string
}

// Transport is a joined multicast UDP socket pair (IPv6 required, IPv4
// optional) with a bounded, drop-oldest receive queue.
type Transport struct {
	port int

	pc6   *ipv6.PacketConn
	conn6 net.PacketConn
	pc4   *ipv4.PacketConn
	conn4 net.PacketConn

	ifaces []net.Interface

	mu sync.Mutex
	cb func(Received)

	queue   chan Received
	dropped uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	log       logrus.FieldLogger
}

// Create binds the transport and joins the configured multicast groups.
func Create(cfg Config) (*Transport, error) {
	port := cfg.Port
	if port == 0 {
		port = Port
	}
	depth := cfg.QueueDepth
	if depth == 0 {
		depth = defaultQueueDepth
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	ifaces, err := selectInterfaces(cfg.Interface)
	if err != nil {
		return nil, err
	}
	if len(ifaces) == 0 {
		return nil, fmt.Errorf("mnet: no usable multicast interface found")
	}

	conn6, err := net.ListenPacket("udp6", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("mnet: listen udp6: %w", err)
	}
	pc6 := ipv6.NewPacketConn(conn6)
	if err := pc6.SetControlMessage(ipv6.FlagInterface, true); err != nil {
		conn6.Close()
		return nil, fmt.Errorf("mnet: set control message: %w", err)
	}
	for i := range ifaces {
		if err := pc6.JoinGroup(&ifaces[i], &net.UDPAddr{IP: IPv6Group}); err != nil {
			log.WithError(err).Warnf("mnet: join ipv6 group on %s failed", ifaces[i].Name)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		port:   port,
		pc6:    pc6,
		conn6:  conn6,
		ifaces: ifaces,
		queue:  make(chan Received, depth),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}

	if cfg.EnableIPv4 {
		conn4, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", port))
		if err != nil {
			log.WithError(err).Warn("mnet: listen udp4 failed, continuing ipv6-only")
		} else {
			pc4 := ipv4.NewPacketConn(conn4)
			if err := pc4.SetControlMessage(ipv4.FlagInterface, true); err != nil {
				conn4.Close()
				log.WithError(err).Warn("mnet: set ipv4 control message failed")
			} else {
				for i := range ifaces {
					if err := pc4.JoinGroup(&ifaces[i], &net.UDPAddr{IP: IPv4Group}); err != nil {
						log.WithError(err).Warnf("mnet: join ipv4 group on %s failed", ifaces[i].Name)
					}
				}
				t.pc4 = pc4
				t.conn4 = conn4
			}
		}
	}

	t.wg.Add(1)
	go t.readLoop6()
	if t.pc4 != nil {
		t.wg.Add(1)
		go t.readLoop4()
	}
	t.wg.Add(1)
	go t.dispatchLoop()

	return t, nil
}

func selectInterfaces(name string) ([]net.Interface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("mnet: list interfaces: %w", err)
	}
	var out []net.Interface
	for _, iface := range all {
		if name != "" && iface.Name != name {
			continue
		}
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		out = append(out, iface)
	}
	return out, nil
}

func (t *Transport) ifaceName(index int) string {
	for _, iface := range t.ifaces {
		if iface.Index == index {
			return iface.Name
		}
	}
	return ""
}

func (t *Transport) readLoop6() {
	defer t.wg.Done()
	buf := make([]byte, MaxMessageSize)
	for {
		n, cm, src, err := t.pc6.ReadFrom(buf)
		select {
		case <-t.ctx.Done():
			return
		default:
		}
		if err != nil {
			return
		}
		udp, _ := src.(*net.UDPAddr)
		ifaceName := ""
		if cm != nil {
			ifaceName = t.ifaceName(cm.IfIndex)
		}
		t.enqueue(Received{Data: append([]byte(nil), buf[:n]...), RemoteIP: udp.IP, Interface: ifaceName})
	}
}

func (t *Transport) readLoop4() {
	defer t.wg.Done()
	buf := make([]byte, MaxMessageSize)
	for {
		n, cm, src, err := t.pc4.ReadFrom(buf)
		select {
		case <-t.ctx.Done():
			return
		default:
		}
		if err != nil {
			return
		}
		udp, _ := src.(*net.UDPAddr)
		ifaceName := ""
		if cm != nil {
			ifaceName = t.ifaceName(cm.IfIndex)
		}
		t.enqueue(Received{Data: append([]byte(nil), buf[:n]...), RemoteIP: udp.IP, Interface: ifaceName})
	}
}

// enqueue implements the fixed receive queue with a drop-oldest policy
// under backpressure (§4.4), tracking drops in an observable counter.
func (t *Transport) enqueue(r Received) {
	select {
	case t.queue <- r:
		return
	default:
	}
	select {
	case <-t.queue:
		atomic.AddUint64(&t.dropped, 1)
	default:
	}
	select {
	case t.queue <- r:
	default:
		atomic.AddUint64(&t.dropped, 1)
	}
}

func (t *Transport) dispatchLoop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.ctx.Done():
			return
		case r := <-t.queue:
			t.mu.Lock()
			cb := t.cb
			t.mu.Unlock()
			if cb != nil {
				cb(r)
			}
		}
	}
}

// DroppedCount returns how many datagrams were discarded by the
// drop-oldest receive queue policy since creation.
func (t *Transport) DroppedCount() uint64 {
	return atomic.LoadUint64(&t.dropped)
}

// OnMessage registers the callback invoked for each received datagram,
// replacing any previous registration. Passing nil unregisters.
func (t *Transport) OnMessage(cb func(Received)) {
	t.mu.Lock()
	t.cb = cb
	t.mu.Unlock()
}

// Send multicasts data on the named interface (or every joined interface,
// if ifaceName is empty), unless unicastTarget is set, in which case it
// sends directly to that address.
func (t *Transport) Send(data []byte, ifaceName string, unicastTarget *net.UDPAddr) error {
	if unicastTarget != nil {
		return t.sendUnicast(data, unicastTarget)
	}
	var lastErr error
	sent := false
	for _, iface := range t.ifaces {
		if ifaceName != "" && iface.Name != ifaceName {
			continue
		}
		if err := t.sendMulticast6(data, iface); err != nil {
			lastErr = err
			continue
		}
		sent = true
		if t.pc4 != nil {
			if err := t.sendMulticast4(data, iface); err != nil {
				t.log.WithError(err).Debug("mnet: ipv4 multicast send failed")
			}
		}
	}
	if !sent {
		if lastErr != nil {
			return lastErr
		}
		return fmt.Errorf("mnet: no matching interface %q to send on", ifaceName)
	}
	return nil
}

func (t *Transport) sendMulticast6(data []byte, iface net.Interface) error {
	cm := &ipv6.ControlMessage{IfIndex: iface.Index}
	_, err := t.pc6.WriteTo(data, cm, &net.UDPAddr{IP: IPv6Group, Port: t.port})
	return err
}

func (t *Transport) sendMulticast4(data []byte, iface net.Interface) error {
	cm := &ipv4.ControlMessage{IfIndex: iface.Index}
	_, err := t.pc4.WriteTo(data, cm, &net.UDPAddr{IP: IPv4Group, Port: t.port})
	return err
}

func (t *Transport) sendUnicast(data []byte, target *net.UDPAddr) error {
	if target.IP.To4() != nil && t.pc4 != nil {
		_, err := t.pc4.WriteTo(data, nil, target)
		return err
	}
	_, err := t.pc6.WriteTo(data, nil, target)
	return err
}

// Close leaves all joined groups, stops the receive loops, and unblocks
// any goroutine blocked reading from the transport.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.OnMessage(nil)
		t.cancel()
		err = t.conn6.Close()
		if t.conn4 != nil {
			_ = t.conn4.Close()
		}
		t.wg.Wait()
	})
	return err
}
