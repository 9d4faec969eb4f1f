package gossip

// Listener receives party notifications. Callbacks run synchronously on the
// goroutine that caused the change, in registration order. They may read the
// Gossiper's state but must not call its control methods.
type Listener interface {
	OnPlayerJoined(index uint8)
	OnPlayerLeft(index uint8)
	OnServerReady(addr PeerID)
	OnSkipCountdown()
	OnPartyReset()
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are ignored.
type ListenerFuncs struct {
	PlayerJoined  func(index uint8)
	PlayerLeft    func(index uint8)
	ServerReady   func(addr PeerID)
	SkipCountdown func()
	PartyReset    func()
}

func (f ListenerFuncs) OnPlayerJoined(index uint8) {
	if f.PlayerJoined != nil {
		f.PlayerJoined(index)
	}
}

func (f ListenerFuncs) OnPlayerLeft(index uint8) {
	if f.PlayerLeft != nil {
		f.PlayerLeft(index)
	}
}

func (f ListenerFuncs) OnServerReady(addr PeerID) {
	if f.ServerReady != nil {
		f.ServerReady(addr)
	}
}

func (f ListenerFuncs) OnSkipCountdown() {
	if f.SkipCountdown != nil {
		f.SkipCountdown()
	}
}

func (f ListenerFuncs) OnPartyReset() {
	if f.PartyReset != nil {
		f.PartyReset()
	}
}

type eventKind uint8

const (
	evPlayerJoined eventKind = iota
	evPlayerLeft
	evServerReady
	evSkipCountdown
	evPartyReset
)

func (k eventKind) String() string {
	switch k {
	case evPlayerJoined:
		return "player_joined"
	case evPlayerLeft:
		return "player_left"
	case evServerReady:
		return "server_ready"
	case evSkipCountdown:
		return "skip_countdown"
	case evPartyReset:
		return "party_reset"
	}
	return "unknown"
}

// event is queued while the state lock is held and dispatched after.
type event struct {
	kind  eventKind
	index uint8
	addr  PeerID
}

func (e event) deliver(l Listener) {
	switch e.kind {
	case evPlayerJoined:
		l.OnPlayerJoined(e.index)
	case evPlayerLeft:
		l.OnPlayerLeft(e.index)
	case evServerReady:
		l.OnServerReady(e.addr)
	case evSkipCountdown:
		l.OnSkipCountdown()
	case evPartyReset:
		l.OnPartyReset()
	}
}
