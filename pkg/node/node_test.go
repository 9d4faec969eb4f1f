package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/lanparty/discovery"
	"github.com/ryandielhenn/lanparty/pkg/gossip"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type wire struct {
	mu   sync.Mutex
	msgs []gossip.Message
}

func (w *wire) record(payload []byte) {
	msg, err := gossip.Decode(payload)
	if err != nil {
		return
	}
	w.mu.Lock()
	w.msgs = append(w.msgs, msg)
	w.mu.Unlock()
}

func (w *wire) saw(from gossip.PeerID, t gossip.MsgType) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range w.msgs {
		if m.SenderAddress == from && m.Type == t {
			return true
		}
	}
	return false
}

func tap(t *testing.T, bus *gossip.Bus) *wire {
	t.Helper()
	tr := bus.Attach()
	t.Cleanup(func() { tr.Close() })
	w := &wire{}
	tr.OnReceive(w.record)
	return w
}

func newPeer(t *testing.T, bus *gossip.Bus, fc clockwork.Clock, addr string) *gossip.Gossiper {
	t.Helper()
	tr := bus.Attach()
	t.Cleanup(func() { tr.Close() })
	g, err := gossip.New(tr, discovery.Static(addr),
		gossip.WithClock(fc), gossip.WithMatchmakingDuration(5*time.Second))
	require.NoError(t, err)
	return g
}

func start(t *testing.T, fc *clockwork.FakeClock, n *Node) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.ErrorIs(t, <-done, context.Canceled)
	})

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, fc.BlockUntilContext(waitCtx, 1))
}

func TestRunBroadcastsDiscovery(t *testing.T) {
	bus := gossip.NewBus()
	fc := clockwork.NewFakeClockAt(epoch)
	w := tap(t, bus)
	g := newPeer(t, bus, fc, "10.0.0.9")
	n := New(g, WithClock(fc), WithInterval(time.Second))

	start(t, fc, n)
	require.Eventually(t, func() bool { return w.saw("10.0.0.9", gossip.MsgDiscovery) },
		time.Second, 5*time.Millisecond)
}

func TestHostsWhenCountdownElapses(t *testing.T) {
	bus := gossip.NewBus()
	fc := clockwork.NewFakeClockAt(epoch)
	w := tap(t, bus)
	g := newPeer(t, bus, fc, "10.0.0.9")
	n := New(g, WithClock(fc), WithInterval(time.Second))
	start(t, fc, n)

	g.JoinParty()
	fc.Advance(2 * time.Second)
	require.Never(t, func() bool { return n.Status().Hosted }, 50*time.Millisecond, 5*time.Millisecond)

	fc.Advance(4 * time.Second)
	require.Eventually(t, func() bool { return n.Status().Hosted }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return w.saw("10.0.0.9", gossip.MsgServerReady) },
		time.Second, 5*time.Millisecond)
	require.False(t, g.IsInParty())
}

func TestSkipHostsBeforeDeadline(t *testing.T) {
	bus := gossip.NewBus()
	fc := clockwork.NewFakeClockAt(epoch)
	host := newPeer(t, bus, fc, "10.0.0.9")
	other := newPeer(t, bus, fc, "10.0.0.2")
	n := New(host, WithClock(fc), WithInterval(time.Second))
	start(t, fc, n)

	host.JoinParty()
	other.JoinParty()
	require.Eventually(t, func() bool { return len(host.Participants()) == 2 && len(other.Participants()) == 2 },
		time.Second, 5*time.Millisecond)

	other.SkipCountdown()
	require.Eventually(t, n.skipPending, time.Second, 5*time.Millisecond)

	fc.Advance(time.Second)
	require.Eventually(t, func() bool { return n.Status().Hosted }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(other.Participants()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestNonHostRecordsServer(t *testing.T) {
	bus := gossip.NewBus()
	fc := clockwork.NewFakeClockAt(epoch)
	self := newPeer(t, bus, fc, "10.0.0.2")
	host := newPeer(t, bus, fc, "10.0.0.9")
	n := New(self, WithClock(fc), WithInterval(time.Second))
	start(t, fc, n)

	self.JoinParty()
	host.JoinParty()
	require.Eventually(t, func() bool { return len(self.Participants()) == 2 }, time.Second, 5*time.Millisecond)

	fc.Advance(6 * time.Second)
	require.Never(t, func() bool { return n.Status().Hosted }, 50*time.Millisecond, 5*time.Millisecond)
	require.True(t, self.IsInParty())

	require.True(t, host.CheckIsGameHost())
	require.Eventually(t, func() bool { return n.Status().LastServer == "10.0.0.9" }, time.Second, 5*time.Millisecond)
	require.False(t, self.IsInParty())
}

func TestLocalSkipOutsidePartyIsIgnored(t *testing.T) {
	bus := gossip.NewBus()
	fc := clockwork.NewFakeClockAt(epoch)
	g := newPeer(t, bus, fc, "10.0.0.9")
	n := New(g, WithClock(fc))

	n.Skip()
	require.False(t, n.skipPending())
}

func memberMsg(t gossip.MsgType) gossip.Message {
	return gossip.Message{SenderIndex: 2, SenderAddress: "10.0.0.2", Type: t, SenderInParty: true, MatchStartOffset: 5}
}

func TestSkipHeardOutsidePartyIsIgnored(t *testing.T) {
	bus := gossip.NewBus()
	fc := clockwork.NewFakeClockAt(epoch)
	g := newPeer(t, bus, fc, "10.0.0.9")
	n := New(g, WithClock(fc), WithInterval(time.Second))
	start(t, fc, n)

	// another party skips and its ServerReady never reaches us
	require.NoError(t, g.Handle(memberMsg(gossip.MsgSkipCountdown)))
	require.False(t, n.skipPending())

	g.JoinParty()
	fc.Advance(time.Second)
	require.Never(t, func() bool { return n.Status().Hosted }, 50*time.Millisecond, 5*time.Millisecond)
	require.True(t, g.IsInParty())
}

func TestPendingSkipClearedOnReset(t *testing.T) {
	bus := gossip.NewBus()
	fc := clockwork.NewFakeClockAt(epoch)
	g := newPeer(t, bus, fc, "10.0.0.9")
	n := New(g, WithClock(fc))

	g.JoinParty()
	require.NoError(t, g.Handle(memberMsg(gossip.MsgJoinParty)))
	require.NoError(t, g.Handle(memberMsg(gossip.MsgSkipCountdown)))
	require.True(t, n.skipPending())

	require.NoError(t, g.Handle(memberMsg(gossip.MsgServerReady)))
	require.False(t, n.skipPending())
}

func TestPendingSkipDroppedAfterLeaving(t *testing.T) {
	bus := gossip.NewBus()
	fc := clockwork.NewFakeClockAt(epoch)
	g := newPeer(t, bus, fc, "10.0.0.9")
	n := New(g, WithClock(fc), WithInterval(time.Second))
	start(t, fc, n)

	g.JoinParty()
	require.NoError(t, g.Handle(memberMsg(gossip.MsgJoinParty)))
	require.NoError(t, g.Handle(memberMsg(gossip.MsgSkipCountdown)))
	require.True(t, n.skipPending())

	// the other member stays, so there is no reset
	g.LeaveParty()
	require.Equal(t, []gossip.PeerID{"10.0.0.2"}, g.Participants())
	fc.Advance(time.Second)
	require.Eventually(t, func() bool { return !n.skipPending() }, time.Second, 5*time.Millisecond)

	g.JoinParty()
	fc.Advance(time.Second)
	require.Never(t, func() bool { return n.Status().Hosted }, 50*time.Millisecond, 5*time.Millisecond)
	require.True(t, g.IsInParty())
}
