package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ryandielhenn/lanparty/internal/config"
	"github.com/ryandielhenn/lanparty/pkg/gossip"
	"github.com/ryandielhenn/lanparty/pkg/transport/etcdbus"
	"github.com/ryandielhenn/lanparty/pkg/transport/natsbus"
	"github.com/ryandielhenn/lanparty/pkg/transport/udp"
)

func openTransport(ctx context.Context, cfg *config.Config, log *zap.Logger) (gossip.Transport, error) {
	t := cfg.Transport
	switch t.Kind {
	case config.TransportUDP:
		tr, err := udp.New(udp.Config{
			Group:     t.UDP.Group,
			Interface: cfg.Node.Interface,
			TTL:       t.UDP.TTL,
			Logger:    log.Named("udp"),
		})
		if err != nil {
			return nil, err
		}
		return tr, nil
	case config.TransportNATS:
		tr, err := natsbus.New(natsbus.Config{
			URL:     t.NATS.URL,
			Subject: t.NATS.Subject,
			Logger:  log.Named("nats"),
		})
		if err != nil {
			return nil, err
		}
		return tr, nil
	case config.TransportEtcd:
		tr, err := etcdbus.New(ctx, etcdbus.Config{
			Endpoints:   t.Etcd.Endpoints,
			DialTimeout: t.Etcd.DialTimeout,
			Prefix:      t.Etcd.Prefix,
			TTL:         t.Etcd.TTL,
			Logger:      log.Named("etcd"),
		})
		if err != nil {
			return nil, err
		}
		return tr, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", t.Kind)
	}
}
