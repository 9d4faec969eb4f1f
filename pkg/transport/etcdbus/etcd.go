// Package etcdbus is a party transport relayed through etcd. Each peer owns
// one lease-bound key under a shared prefix and overwrites it on every send;
// every peer watches the prefix and receives each write.
package etcdbus

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/ryandielhenn/lanparty/pkg/gossip"
)

const (
	DefaultPrefix = "/lanparty/bus"
	defaultTTL    = 10
	defaultQueue  = 64
)

type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	Prefix      string // DefaultPrefix when empty
	TTL         int64  // lease seconds, 10 when zero
	QueueSize   int    // pending sends, 64 when zero
	Logger      *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueue
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

type Transport struct {
	cli   *clientv3.Client
	owned bool
	key   string
	lease clientv3.LeaseID
	log   *zap.Logger

	out    chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	handler func([]byte)
	closed  bool
}

func NewClient(endpoints []string, dialTimeout time.Duration) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
}

// New dials etcd and starts relaying. Close also closes the client.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	cfg = cfg.withDefaults()
	cli, err := NewClient(cfg.Endpoints, cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("etcd client: %w", err)
	}
	t, err := NewWithClient(ctx, cli, cfg)
	if err != nil {
		cli.Close()
		return nil, err
	}
	t.owned = true
	return t, nil
}

// NewWithClient grants the sender lease and starts the watch and send loops
// on an existing client.
func NewWithClient(ctx context.Context, cli *clientv3.Client, cfg Config) (*Transport, error) {
	cfg = cfg.withDefaults()

	lease, err := cli.Grant(ctx, cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("etcd grant lease: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ka, err := cli.KeepAlive(runCtx, lease.ID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("etcd keepalive: %w", err)
	}

	t := &Transport{
		cli:    cli,
		key:    senderKey(cfg.Prefix, uuid.NewString()),
		lease:  lease.ID,
		log:    cfg.Logger.With(zap.String("prefix", cfg.Prefix)),
		out:    make(chan []byte, cfg.QueueSize),
		ctx:    runCtx,
		cancel: cancel,
	}
	watch := cli.Watch(runCtx, watchPrefix(cfg.Prefix), clientv3.WithPrefix())

	t.wg.Add(3)
	go t.drainKeepAlive(ka)
	go t.watchLoop(watch)
	go t.sendLoop()
	return t, nil
}

// Key is the etcd key this transport writes to.
func (t *Transport) Key() string { return t.key }

func (t *Transport) Send(payload []byte) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return gossip.ErrClosed
	}
	select {
	case t.out <- append([]byte(nil), payload...):
		return nil
	default:
		return gossip.ErrQueueFull
	}
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

	t.cancel()
	t.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := t.cli.Revoke(ctx, t.lease)
	if t.owned {
		if cerr := t.cli.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (t *Transport) drainKeepAlive(ka <-chan *clientv3.LeaseKeepAliveResponse) {
	defer t.wg.Done()
	for range ka {
	}
}

func (t *Transport) sendLoop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.ctx.Done():
			return
		case p := <-t.out:
			if _, err := t.cli.Put(t.ctx, t.key, string(p), clientv3.WithLease(t.lease)); err != nil && t.ctx.Err() == nil {
				t.log.Warn("etcd put", zap.String("key", t.key), zap.Error(err))
			}
		}
	}
}

func (t *Transport) watchLoop(watch clientv3.WatchChan) {
	defer t.wg.Done()
	for resp := range watch {
		if err := resp.Err(); err != nil {
			t.log.Warn("etcd watch", zap.Error(err))
			continue
		}
		t.deliver(resp.Events)
	}
}

// deliver hands every PUT to the handler. Deletes come from lease expiry or
// revocation and carry no payload.
func (t *Transport) deliver(events []*clientv3.Event) {
	t.mu.RLock()
	h := t.handler
	t.mu.RUnlock()
	if h == nil {
		return
	}
	for _, ev := range events {
		if ev.Type != mvccpb.PUT || ev.Kv == nil {
			continue
		}
		h(ev.Kv.Value)
	}
}

func senderKey(prefix, id string) string {
	return path.Join(prefix, id)
}

func watchPrefix(prefix string) string {
	return path.Clean(prefix) + "/"
}
