// Package udp is a party transport over UDP multicast on the local network.
// Every peer joins the same group; a payload written to the group reaches
// every listener, the sender included.
package udp

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"github.com/ryandielhenn/lanparty/pkg/gossip"
)

const (
	DefaultGroup = "239.0.0.1:53552"
	defaultPort  = "53552"
	// MaxPayload keeps datagrams below a typical Ethernet MTU.
	MaxPayload = 1400
)

type Config struct {
	Group     string // multicast host[:port], DefaultGroup when empty
	Interface string // interface name, system default when empty
	TTL       int    // multicast hops, 1 when zero
	Logger    *zap.Logger
}

type Transport struct {
	recv  *net.UDPConn
	send  *net.UDPConn
	group *net.UDPAddr
	log   *zap.Logger

	mu      sync.RWMutex
	handler func([]byte)
	closed  bool

	wg sync.WaitGroup
}

func New(cfg Config) (*Transport, error) {
	groupAddr := cfg.Group
	if groupAddr == "" {
		groupAddr = DefaultGroup
	}
	group, err := net.ResolveUDPAddr("udp4", normalizeHostPort(groupAddr, defaultPort))
	if err != nil {
		return nil, fmt.Errorf("resolve group %q: %w", groupAddr, err)
	}
	if !group.IP.IsMulticast() {
		return nil, fmt.Errorf("group %s is not a multicast address", group.IP)
	}

	var ifi *net.Interface
	if cfg.Interface != "" {
		if ifi, err = net.InterfaceByName(cfg.Interface); err != nil {
			return nil, fmt.Errorf("interface %q: %w", cfg.Interface, err)
		}
	}

	recv, err := net.ListenMulticastUDP("udp4", ifi, group)
	if err != nil {
		return nil, fmt.Errorf("join group %s: %w", group, err)
	}
	send, err := net.DialUDP("udp4", nil, group)
	if err != nil {
		recv.Close()
		return nil, fmt.Errorf("dial group %s: %w", group, err)
	}

	pc := ipv4.NewPacketConn(send)
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 1
	}
	err = errors.Join(pc.SetMulticastLoopback(true), pc.SetMulticastTTL(ttl))
	if ifi != nil {
		err = errors.Join(err, pc.SetMulticastInterface(ifi))
	}
	if err != nil {
		recv.Close()
		send.Close()
		return nil, fmt.Errorf("multicast options: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	t := &Transport{recv: recv, send: send, group: group, log: log.With(zap.Stringer("group", group))}
	t.wg.Add(1)
	go t.listen()
	return t, nil
}

func (t *Transport) Group() *net.UDPAddr { return t.group }

func (t *Transport) Send(payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("udp: payload of %d bytes exceeds %d", len(payload), MaxPayload)
	}
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return gossip.ErrClosed
	}
	_, err := t.send.Write(payload)
	return err
}

func (t *Transport) OnReceive(handler func(payload []byte)) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	err := errors.Join(t.recv.Close(), t.send.Close())
	t.wg.Wait()
	return err
}

func (t *Transport) listen() {
	defer t.wg.Done()
	buf := make([]byte, 2048)
	for {
		n, from, err := t.recv.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.log.Warn("reading multicast datagram", zap.Error(err))
			continue
		}

		t.mu.RLock()
		h := t.handler
		t.mu.RUnlock()
		if h == nil {
			continue
		}
		t.log.Debug("datagram", zap.Stringer("from", from), zap.Int("bytes", n))
		h(append([]byte(nil), buf[:n]...))
	}
}

// normalizeHostPort cuts a udp:// prefix from addr and adds defPort when
// addr has no port.
func normalizeHostPort(addr, defPort string) string {
	addr = strings.TrimPrefix(addr, "udp://")
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, defPort)
}
