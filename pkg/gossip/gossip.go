package gossip

// Entry point for the gossip subsystem.
// Defines the Gossiper engine: the single writer of Party state and the
// single source of outbound messages and listener events.

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ryandielhenn/lanparty/internal/telemetry"
)

const DefaultMatchmakingDuration = 30 * time.Second

// IdentitySource returns this process's own peer identity. It is consulted
// once, when the Gossiper is built.
type IdentitySource interface {
	LocalIdentity() (PeerID, error)
}

type Option func(*Gossiper)

// WithIndex sets the local positional slot announced in every message.
func WithIndex(index uint8) Option {
	return func(g *Gossiper) { g.index = index }
}

func WithMatchmakingDuration(d time.Duration) Option {
	return func(g *Gossiper) { g.matchmaking = d }
}

func WithClock(c clockwork.Clock) Option {
	return func(g *Gossiper) { g.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gossiper) { g.log = l }
}

type Gossiper struct {
	self        PeerID
	index       uint8
	matchmaking time.Duration
	clock       clockwork.Clock
	log         *zap.Logger
	tr          Transport

	mu      sync.Mutex
	party   *Party
	pending []event

	// emitMu is taken before mu is released so listeners observe events in
	// the same order the state changed.
	emitMu    sync.Mutex
	listeners []*listenerSlot
}

type listenerSlot struct{ l Listener }

// Snapshot is a point-in-time copy of the engine state for inspection.
type Snapshot struct {
	Self         PeerID    `json:"self"`
	Index        uint8     `json:"index"`
	InParty      bool      `json:"in_party"`
	Participants []PeerID  `json:"participants"`
	KnownPeers   []PeerID  `json:"known_peers"`
	MatchStart   time.Time `json:"match_start"`
	Countdown    bool      `json:"countdown"`
	Host         PeerID    `json:"host,omitempty"`
}

// New builds a Gossiper bound to tr and registers it as the transport's
// receive handler.
func New(tr Transport, id IdentitySource, opts ...Option) (*Gossiper, error) {
	self, err := id.LocalIdentity()
	if err != nil {
		return nil, fmt.Errorf("local identity: %w", err)
	}
	if self == "" {
		return nil, errors.New("local identity: empty address")
	}

	g := &Gossiper{
		self:        self,
		index:       1,
		matchmaking: DefaultMatchmakingDuration,
		clock:       clockwork.NewRealClock(),
		log:         zap.NewNop(),
		tr:          tr,
		party:       NewParty(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With(zap.String("self", string(self)))

	tr.OnReceive(func(payload []byte) {
		// errors are logged and counted inside Receive
		_ = g.Receive(payload)
	})
	return g, nil
}

func (g *Gossiper) Self() PeerID { return g.self }

func (g *Gossiper) Index() uint8 { return g.index }

// AddListener registers l and returns a func that removes it.
func (g *Gossiper) AddListener(l Listener) (remove func()) {
	slot := &listenerSlot{l: l}
	g.emitMu.Lock()
	g.listeners = append(g.listeners, slot)
	g.emitMu.Unlock()

	return func() {
		g.emitMu.Lock()
		defer g.emitMu.Unlock()
		for i, s := range g.listeners {
			if s == slot {
				g.listeners = append(g.listeners[:i:i], g.listeners[i+1:]...)
				return
			}
		}
	}
}

// ---- Control surface ----

// IsInParty is derived from membership on every call.
func (g *Gossiper) IsInParty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.party.Has(g.self)
}

// Participants returns the current members sorted by address.
func (g *Gossiper) Participants() []PeerID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.party.Members()
}

func (g *Gossiper) MatchStart() (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.party.MatchStart()
}

// Host returns the elected host of the current party.
func (g *Gossiper) Host() (PeerID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ElectHost(g.party.Members())
}

func (g *Gossiper) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	members := g.party.Members()
	start, active := g.party.MatchStart()
	s := Snapshot{
		Self:         g.self,
		Index:        g.index,
		InParty:      g.party.Has(g.self),
		Participants: members,
		KnownPeers:   g.party.KnownPeers(),
		Countdown:    active,
	}
	if active {
		s.MatchStart = start
	}
	if host, err := ElectHost(members); err == nil {
		s.Host = host
	}
	return s
}

// BroadcastDiscoveryMessage announces this peer and its view of the party.
// Callers re-issue it periodically; that is the loss-recovery mechanism.
func (g *Gossiper) BroadcastDiscoveryMessage() {
	g.mu.Lock()
	msg := g.messageLocked(MsgDiscovery)
	g.commit(&msg)
}

func (g *Gossiper) JoinParty() {
	g.mu.Lock()
	if g.party.Has(g.self) {
		g.mu.Unlock()
		return
	}
	g.party.Add(g.self)
	g.queue(event{kind: evPlayerJoined, index: g.index})
	g.party.SetMatchStart(g.clock.Now().Add(g.matchmaking))

	msg := g.messageLocked(MsgJoinParty)
	msg.MatchStartOffset = g.matchmaking.Seconds()
	g.log.Info("joined party", zap.Time("match_start", g.party.matchStart))
	g.commit(&msg)
}

func (g *Gossiper) LeaveParty() {
	g.mu.Lock()
	if !g.party.Remove(g.self) {
		g.mu.Unlock()
		return
	}
	g.queue(event{kind: evPlayerLeft, index: g.index})
	msg := g.messageLocked(MsgLeaveParty)
	if g.party.Len() == 0 {
		g.resetLocked()
	}
	g.log.Info("left party")
	g.commit(&msg)
}

func (g *Gossiper) SkipCountdown() {
	g.mu.Lock()
	if !g.party.Has(g.self) {
		g.mu.Unlock()
		return
	}
	msg := g.messageLocked(MsgSkipCountdown)
	g.commit(&msg)
}

// CheckIsGameHost is called once the countdown is over. The elected host
// clears its party and announces ServerReady; everyone else keeps waiting
// for that announcement.
func (g *Gossiper) CheckIsGameHost() bool {
	g.mu.Lock()
	if !g.party.Has(g.self) {
		g.mu.Unlock()
		return false
	}
	host, err := ElectHost(g.party.Members())
	if err != nil || host != g.self {
		g.mu.Unlock()
		return false
	}

	g.resetLocked()
	msg := g.messageLocked(MsgServerReady)
	g.log.Info("hosting match")
	g.commit(&msg)
	return true
}

// ---- Inbound ----

// Receive decodes and applies one inbound payload. It is the transport's
// receive handler. Errors are logged and counted here; the returned error
// only tells callers why a payload was dropped.
func (g *Gossiper) Receive(payload []byte) error {
	msg, err := Decode(payload)
	if err != nil {
		telemetry.MessagesDropped.WithLabelValues("decode").Inc()
		g.log.Warn("dropping party message", zap.Error(err))
		return err
	}
	return g.Handle(msg)
}

// Handle applies one decoded message.
func (g *Gossiper) Handle(msg Message) error {
	if msg.SenderAddress == g.self {
		telemetry.MessagesDropped.WithLabelValues("self").Inc()
		return nil
	}
	if !msg.Type.Valid() {
		telemetry.MessagesDropped.WithLabelValues("protocol").Inc()
		g.log.Error("received party message with invalid type",
			zap.String("peer", string(msg.SenderAddress)), zap.Uint8("type", uint8(msg.Type)))
		return fmt.Errorf("%w: type %d from %s", ErrProtocolViolation, msg.Type, msg.SenderAddress)
	}
	telemetry.MessagesReceived.WithLabelValues(msg.Type.String()).Inc()

	g.mu.Lock()
	switch msg.Type {
	case MsgDiscovery:
		g.onDiscoveryLocked(msg)
	case MsgJoinParty:
		g.onJoinLocked(msg)
	case MsgLeaveParty:
		g.onLeaveLocked(msg)
	case MsgSkipCountdown:
		g.queue(event{kind: evSkipCountdown})
	case MsgServerReady:
		g.onServerReadyLocked(msg)
	}
	g.commit(nil)
	return nil
}

func (g *Gossiper) onDiscoveryLocked(msg Message) {
	now := g.clock.Now()
	g.party.Observe(msg.SenderAddress, now)
	g.adoptLocked(now, msg)

	// replays players who joined before this peer was listening
	if msg.SenderInParty {
		g.onJoinLocked(msg)
	}
}

func (g *Gossiper) onJoinLocked(msg Message) {
	g.adoptLocked(g.clock.Now(), msg)
	if g.party.Add(msg.SenderAddress) {
		g.log.Debug("player joined", zap.String("peer", string(msg.SenderAddress)), zap.Uint8("index", msg.SenderIndex))
	}
	// fires on redundant joins too
	g.queue(event{kind: evPlayerJoined, index: msg.SenderIndex})
}

func (g *Gossiper) onLeaveLocked(msg Message) {
	if g.party.Remove(msg.SenderAddress) {
		g.log.Debug("player left", zap.String("peer", string(msg.SenderAddress)), zap.Uint8("index", msg.SenderIndex))
	}
	g.queue(event{kind: evPlayerLeft, index: msg.SenderIndex})

	// spectators reset too once the last member is gone
	if g.party.Len() == 0 {
		g.resetLocked()
	}
}

func (g *Gossiper) onServerReadyLocked(msg Message) {
	wasInParty := g.party.Has(g.self)
	g.resetLocked()
	if wasInParty {
		g.log.Info("server ready", zap.String("peer", string(msg.SenderAddress)))
		g.queue(event{kind: evServerReady, addr: msg.SenderAddress})
	}
}

func (g *Gossiper) adoptLocked(now time.Time, msg Message) {
	theirs := now.Add(offsetDuration(msg.MatchStartOffset))
	if g.party.AdoptMatchStart(theirs) {
		g.log.Debug("adopted match start", zap.String("peer", string(msg.SenderAddress)), zap.Time("match_start", theirs))
	}
}

// offsetDuration converts a decoded offset, saturating where a Duration
// would overflow.
func offsetDuration(seconds float64) time.Duration {
	if seconds >= math.MaxInt64/float64(time.Second) {
		return math.MaxInt64
	}
	return time.Duration(seconds * float64(time.Second))
}

func (g *Gossiper) resetLocked() {
	g.party.Reset()
	g.queue(event{kind: evPartyReset})
}

// ---- Outbound ----

func (g *Gossiper) messageLocked(t MsgType) Message {
	return Message{
		SenderIndex:      g.index,
		SenderAddress:    g.self,
		Type:             t,
		SenderInParty:    g.party.Has(g.self),
		MatchStartOffset: g.party.Offset(g.clock.Now()),
	}
}

func (g *Gossiper) queue(e event) {
	g.pending = append(g.pending, e)
}

// commit must be called with mu held. It releases mu, dispatches the queued
// events and sends out, if any.
func (g *Gossiper) commit(out *Message) {
	events := g.pending
	g.pending = nil
	telemetry.PartySize.Set(float64(g.party.Len()))

	g.emitMu.Lock()
	g.mu.Unlock()
	for _, e := range events {
		telemetry.Events.WithLabelValues(e.kind.String()).Inc()
		for _, s := range g.listeners {
			e.deliver(s.l)
		}
	}
	g.emitMu.Unlock()

	if out != nil {
		g.send(*out)
	}
}

func (g *Gossiper) send(msg Message) {
	payload, err := Encode(msg)
	if err != nil {
		g.log.Error("encoding party message", zap.Stringer("type", msg.Type), zap.Error(err))
		return
	}
	if err := g.tr.Send(payload); err != nil {
		telemetry.SendErrors.Inc()
		g.log.Warn("sending party message", zap.Stringer("type", msg.Type), zap.Error(err))
		return
	}
	telemetry.MessagesSent.WithLabelValues(msg.Type.String()).Inc()
}
