// Package natsbus is a party transport over a NATS subject. Every peer
// subscribes to the same subject, so a publish reaches all of them, the
// publisher included.
package natsbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ryandielhenn/lanparty/pkg/gossip"
)

const DefaultSubject = "lanparty.party"

type Config struct {
	URL     string // nats.DefaultURL when empty
	Subject string // DefaultSubject when empty
	Logger  *zap.Logger
}

type Transport struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	owned   bool
	log     *zap.Logger

	mu      sync.RWMutex
	handler func([]byte)
}

// New connects to the server at cfg.URL and subscribes to the party subject.
func New(cfg Config) (*Transport, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	log := logger(cfg.Logger)

	nc, err := nats.Connect(url,
		nats.Name("lanparty"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Warn("nats error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}

	t, err := newTransport(nc, cfg.Subject, log)
	if err != nil {
		nc.Close()
		return nil, err
	}
	t.owned = true
	return t, nil
}

// NewWithConn uses an existing connection. Close leaves nc open.
func NewWithConn(nc *nats.Conn, subject string, log *zap.Logger) (*Transport, error) {
	return newTransport(nc, subject, logger(log))
}

func newTransport(nc *nats.Conn, subject string, log *zap.Logger) (*Transport, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	t := &Transport{nc: nc, subject: subject, log: log.With(zap.String("subject", subject))}

	// NATS invokes a subscription's callback from one goroutine at a time.
	sub, err := nc.Subscribe(subject, t.dispatch)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	t.sub = sub
	return t, nil
}

func (t *Transport) Send(payload []byte) error {
	err := t.nc.Publish(t.subject, payload)
	if errors.Is(err, nats.ErrConnectionClosed) {
		return gossip.ErrClosed
	}
	return err
}

func (t *Transport) OnReceive(handler func(payload []byte)) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

func (t *Transport) Close() error {
	var err error
	if t.sub != nil && t.sub.IsValid() {
		err = t.sub.Unsubscribe()
	}
	if t.owned && !t.nc.IsClosed() {
		t.nc.Close()
	}
	return err
}

func (t *Transport) dispatch(m *nats.Msg) {
	t.mu.RLock()
	h := t.handler
	t.mu.RUnlock()
	if h != nil {
		h(m.Data)
	}
}

func logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
