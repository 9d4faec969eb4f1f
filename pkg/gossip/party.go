package gossip

import (
	"slices"
	"time"
)

// Party tracks one peer's view of the current party: the participant set,
// the agreed match start time and every peer ever heard from.
// It is not safe for concurrent use; the Gossiper serializes access.
type Party struct {
	participants map[PeerID]struct{}
	known        map[PeerID]time.Time // peer -> last Discovery seen
	matchStart   time.Time            // zero when no countdown is active
}

func NewParty() *Party {
	return &Party{
		participants: make(map[PeerID]struct{}),
		known:        make(map[PeerID]time.Time),
	}
}

// Add inserts id and reports whether it was absent.
func (p *Party) Add(id PeerID) bool {
	if _, ok := p.participants[id]; ok {
		return false
	}
	p.participants[id] = struct{}{}
	return true
}

// Remove deletes id and reports whether it was present.
func (p *Party) Remove(id PeerID) bool {
	if _, ok := p.participants[id]; !ok {
		return false
	}
	delete(p.participants, id)
	return true
}

func (p *Party) Has(id PeerID) bool {
	_, ok := p.participants[id]
	return ok
}

func (p *Party) Len() int {
	return len(p.participants)
}

// Members returns the participants sorted by address.
func (p *Party) Members() []PeerID {
	out := make([]PeerID, 0, len(p.participants))
	for id := range p.participants {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Observe records a Discovery from id. Known peers never influence protocol
// decisions.
func (p *Party) Observe(id PeerID, at time.Time) {
	p.known[id] = at
}

// KnownPeers returns every peer observed so far, sorted by address.
func (p *Party) KnownPeers() []PeerID {
	out := make([]PeerID, 0, len(p.known))
	for id := range p.known {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// LastSeen returns when id last sent a Discovery.
func (p *Party) LastSeen(id PeerID) (time.Time, bool) {
	t, ok := p.known[id]
	return t, ok
}

// MatchStart returns the match start time and whether a countdown is active.
func (p *Party) MatchStart() (time.Time, bool) {
	return p.matchStart, !p.matchStart.IsZero()
}

// SetMatchStart replaces the match start time unconditionally.
func (p *Party) SetMatchStart(t time.Time) {
	p.matchStart = t
}

// AdoptMatchStart moves the match start time forward to t if t is later.
// It never moves it back.
func (p *Party) AdoptMatchStart(t time.Time) bool {
	if !t.After(p.matchStart) {
		return false
	}
	p.matchStart = t
	return true
}

// Offset returns the seconds left until match start, never negative.
func (p *Party) Offset(now time.Time) float64 {
	if p.matchStart.IsZero() {
		return 0
	}
	return max(0, p.matchStart.Sub(now).Seconds())
}

// Reset clears the participants and the countdown. Known peers are kept.
func (p *Party) Reset() {
	clear(p.participants)
	p.matchStart = time.Time{}
}
