package udp

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/lanparty/pkg/gossip"
)

func TestNormalizeHostPort(t *testing.T) {
	cases := map[string]string{
		"239.0.0.1":           "239.0.0.1:53552",
		"239.0.0.1:9000":      "239.0.0.1:9000",
		"udp://239.1.2.3":     "239.1.2.3:53552",
		"udp://239.1.2.3:700": "239.1.2.3:700",
	}
	for in, want := range cases {
		if got := normalizeHostPort(in, defaultPort); got != want {
			t.Fatalf("normalizeHostPort(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewRejectsUnicastGroup(t *testing.T) {
	_, err := New(Config{Group: "10.0.0.1:9000"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a multicast address")
}

func TestSendRejectsOversizedPayload(t *testing.T) {
	tr := &Transport{}
	err := tr.Send([]byte(strings.Repeat("x", MaxPayload+1)))
	require.Error(t, err)
}

func TestMulticastLoopback(t *testing.T) {
	tr, err := New(Config{Group: "239.0.0.1:53561"})
	if err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}

	got := make(chan []byte, 1)
	tr.OnReceive(func(p []byte) {
		select {
		case got <- p:
		default:
		}
	})

	payload, err := gossip.Encode(gossip.Message{SenderIndex: 1, SenderAddress: "10.0.0.1", Type: gossip.MsgDiscovery})
	require.NoError(t, err)
	if err := tr.Send(payload); err != nil {
		tr.Close()
		t.Skipf("multicast send unavailable: %v", err)
	}

	select {
	case p := <-got:
		require.Equal(t, payload, p)
	case <-time.After(2 * time.Second):
		tr.Close()
		t.Skip("multicast loopback not delivered on this host")
	}

	require.NoError(t, tr.Close())
	require.True(t, errors.Is(tr.Send(payload), gossip.ErrClosed))
	require.NoError(t, tr.Close())
}
