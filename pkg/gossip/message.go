package gossip

// Definitions of the wire protocol: the party message and its type enum.
// Encoding/decoding lives in codec.go.

// PeerID is a peer's network address in string form. It is the only peer
// identifier used by the protocol.
type PeerID string

type MsgType uint8

const (
	// MsgNone guards against zero-valued messages. It is never sent.
	MsgNone MsgType = iota
	MsgDiscovery
	MsgJoinParty
	MsgLeaveParty
	MsgSkipCountdown
	MsgServerReady
)

func (t MsgType) String() string {
	switch t {
	case MsgNone:
		return "none"
	case MsgDiscovery:
		return "discovery"
	case MsgJoinParty:
		return "join_party"
	case MsgLeaveParty:
		return "leave_party"
	case MsgSkipCountdown:
		return "skip_countdown"
	case MsgServerReady:
		return "server_ready"
	default:
		return "unknown"
	}
}

// Valid reports whether t may appear on the wire.
func (t MsgType) Valid() bool {
	return t > MsgNone && t <= MsgServerReady
}

// Message is the unit of gossip. It carries no sequence number or timestamp;
// staleness is only ever inferred from its content.
type Message struct {
	SenderIndex   uint8   // positional slot, starting from 1
	SenderAddress PeerID  // identity of the sender
	Type          MsgType // what happened
	SenderInParty bool    // sender considers itself a party member
	// MatchStartOffset is the number of seconds until match start as seen by
	// the sender when the message was built. Zero when no countdown is active.
	MatchStartOffset float64
}
