package etcdbus

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ryandielhenn/lanparty/pkg/gossip"
)

func TestKeysStayUnderWatchPrefix(t *testing.T) {
	for _, prefix := range []string{"/lanparty/bus", "/lanparty/bus/"} {
		key := senderKey(prefix, "abc")
		require.Equal(t, "/lanparty/bus/abc", key)
		require.Equal(t, "/lanparty/bus/", watchPrefix(prefix))
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	require.Equal(t, DefaultPrefix, cfg.Prefix)
	require.EqualValues(t, defaultTTL, cfg.TTL)
	require.Equal(t, defaultQueue, cfg.QueueSize)
	require.NotNil(t, cfg.Logger)
}

func TestDeliverOnlyPuts(t *testing.T) {
	tr := &Transport{}
	var got []string
	tr.OnReceive(func(p []byte) { got = append(got, string(p)) })

	tr.deliver([]*clientv3.Event{
		{Type: mvccpb.PUT, Kv: &mvccpb.KeyValue{Key: []byte("/lanparty/bus/a"), Value: []byte("one")}},
		{Type: mvccpb.DELETE, Kv: &mvccpb.KeyValue{Key: []byte("/lanparty/bus/a")}},
		{Type: mvccpb.PUT, Kv: &mvccpb.KeyValue{Key: []byte("/lanparty/bus/b"), Value: []byte("two")}},
	})
	require.Equal(t, []string{"one", "two"}, got)
}

func TestSendQueue(t *testing.T) {
	tr := &Transport{out: make(chan []byte, 1)}
	require.NoError(t, tr.Send([]byte("a")))
	require.ErrorIs(t, tr.Send([]byte("b")), gossip.ErrQueueFull)

	tr.closed = true
	require.ErrorIs(t, tr.Send([]byte("c")), gossip.ErrClosed)
}
