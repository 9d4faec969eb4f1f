package node

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ryandielhenn/lanparty/pkg/gossip"
)

const DefaultDiscoveryInterval = time.Second

// Node drives a Gossiper the way an application would: it re-broadcasts
// Discovery on every tick and, once the countdown is over or a member
// skipped it, asks the engine whether this peer hosts the match.
type Node struct {
	g        *gossip.Gossiper
	clock    clockwork.Clock
	interval time.Duration
	log      *zap.Logger

	mu         sync.Mutex
	skip       bool
	lastServer gossip.PeerID
	hostedAt   time.Time

	removeListener func()
}

type Option func(*Node)

func WithClock(c clockwork.Clock) Option {
	return func(n *Node) { n.clock = c }
}

func WithInterval(d time.Duration) Option {
	return func(n *Node) { n.interval = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(n *Node) { n.log = l }
}

func New(g *gossip.Gossiper, opts ...Option) *Node {
	n := &Node{
		g:        g,
		clock:    clockwork.NewRealClock(),
		interval: DefaultDiscoveryInterval,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.removeListener = g.AddListener(gossip.ListenerFuncs{
		SkipCountdown: n.onSkip,
		ServerReady:   n.onServerReady,
		PartyReset:    n.onReset,
	})
	return n
}

// Status is the node's view for the /info endpoint.
type Status struct {
	gossip.Snapshot
	LastServer gossip.PeerID `json:"last_server,omitempty"`
	Hosted     bool          `json:"hosted"`
	HostedAt   time.Time     `json:"hosted_at"`
}

func (n *Node) Gossiper() *gossip.Gossiper { return n.g }

func (n *Node) Status() Status {
	s := Status{Snapshot: n.g.Snapshot()}
	n.mu.Lock()
	s.LastServer = n.lastServer
	s.Hosted = !n.hostedAt.IsZero()
	s.HostedAt = n.hostedAt
	n.mu.Unlock()
	return s
}

// Skip asks every member, this one included, to end the countdown now.
func (n *Node) Skip() {
	if !n.g.IsInParty() {
		return
	}
	n.g.SkipCountdown()
	n.onSkip()
}

// Run ticks until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	ticker := n.clock.NewTicker(n.interval)
	defer ticker.Stop()
	defer n.removeListener()

	n.tick()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			n.tick()
		}
	}
}

func (n *Node) tick() {
	n.g.BroadcastDiscoveryMessage()
	n.checkCountdown()
}

func (n *Node) checkCountdown() {
	// a pending skip never outlives a tick, in or out of a party
	inParty := n.g.IsInParty()
	n.mu.Lock()
	skip := n.skip
	n.skip = false
	n.mu.Unlock()
	if !inParty {
		return
	}

	start, active := n.g.MatchStart()
	now := n.clock.Now()
	if !skip && (!active || now.Before(start)) {
		return
	}
	if n.g.CheckIsGameHost() {
		n.mu.Lock()
		n.hostedAt = now
		n.mu.Unlock()
		n.log.Info("countdown over, hosting match", zap.Bool("skipped", skip))
		return
	}
	n.log.Debug("countdown over, waiting for host")
}

// Skips heard outside a party are ignored.
func (n *Node) onSkip() {
	if !n.g.IsInParty() {
		return
	}
	n.mu.Lock()
	n.skip = true
	n.mu.Unlock()
}

func (n *Node) onServerReady(addr gossip.PeerID) {
	n.mu.Lock()
	n.lastServer = addr
	n.mu.Unlock()
	n.log.Info("joining match", zap.String("server", string(addr)))
}

func (n *Node) onReset() {
	n.mu.Lock()
	n.skip = false
	n.mu.Unlock()
}
