package gossip

// Interface for sending/receiving party messages (UDP multicast, NATS, etcd,
// or an in-proc channel bus for testing and simulation).
// Swapping transports never touches membership logic.

import (
	"math/rand/v2"
	"sync"
)

// Transport broadcasts opaque payloads to every reachable peer, the sender
// included. Delivery is best-effort and unordered.
type Transport interface {
	// Send must not block on the network.
	Send(payload []byte) error
	// OnReceive registers the single inbound handler. Implementations call it
	// from one goroutine at a time.
	OnReceive(handler func(payload []byte))
	Close() error
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLoss drops each delivered copy with probability p.
func WithLoss(p float64) BusOption {
	return func(b *Bus) { b.loss = p }
}

// WithDuplication delivers a second copy with probability p.
func WithDuplication(p float64) BusOption {
	return func(b *Bus) { b.dup = p }
}

// WithInboxSize bounds each transport's pending deliveries. Extra copies are
// dropped.
func WithInboxSize(n int) BusOption {
	return func(b *Bus) { b.inbox = n }
}

// Bus is an in-process broadcast medium. Every ChannelTransport attached to
// it receives every payload sent on it, subject to the configured loss and
// duplication.
type Bus struct {
	mu      sync.RWMutex
	members map[*ChannelTransport]struct{}
	loss    float64
	dup     float64
	inbox   int
	rnd     *rand.Rand
	rndMu   sync.Mutex
}

func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		members: make(map[*ChannelTransport]struct{}),
		inbox:   256,
		rnd:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach returns a new transport connected to the bus.
func (b *Bus) Attach() *ChannelTransport {
	t := &ChannelTransport{
		bus:   b,
		inbox: make(chan []byte, b.inbox),
		done:  make(chan struct{}),
	}
	b.mu.Lock()
	b.members[t] = struct{}{}
	b.mu.Unlock()

	t.wg.Add(1)
	go t.loop()
	return t
}

func (b *Bus) chance(p float64) bool {
	if p <= 0 {
		return false
	}
	b.rndMu.Lock()
	defer b.rndMu.Unlock()
	return b.rnd.Float64() < p
}

func (b *Bus) broadcast(payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for t := range b.members {
		if b.chance(b.loss) {
			continue
		}
		t.deliver(payload)
		if b.chance(b.dup) {
			t.deliver(payload)
		}
	}
}

func (b *Bus) detach(t *ChannelTransport) {
	b.mu.Lock()
	delete(b.members, t)
	b.mu.Unlock()
}

// ChannelTransport is a Transport backed by a Bus. Inbound payloads are
// queued and handed to the handler by a single goroutine.
type ChannelTransport struct {
	bus   *Bus
	inbox chan []byte

	mu      sync.RWMutex
	handler func([]byte)
	closed  bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (t *ChannelTransport) Send(payload []byte) error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	t.bus.broadcast(append([]byte(nil), payload...))
	return nil
}

func (t *ChannelTransport) OnReceive(handler func(payload []byte)) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

func (t *ChannelTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		t.bus.detach(t)
		close(t.done)
	})
	t.wg.Wait()
	return nil
}

func (t *ChannelTransport) deliver(payload []byte) {
	select {
	case t.inbox <- payload:
	default:
		// at-most-once: a full inbox loses the copy
	}
}

func (t *ChannelTransport) loop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case p := <-t.inbox:
			t.mu.RLock()
			h := t.handler
			t.mu.RUnlock()
			if h != nil {
				h(p)
			}
		}
	}
}
