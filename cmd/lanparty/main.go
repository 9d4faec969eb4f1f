package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/lanparty/discovery"
	"github.com/ryandielhenn/lanparty/internal/config"
	"github.com/ryandielhenn/lanparty/internal/telemetry"
	"github.com/ryandielhenn/lanparty/pkg/gossip"
	"github.com/ryandielhenn/lanparty/pkg/node"
)

var (
	version = "dev"
	gitSHA  = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	join := flag.Bool("join", false, "join the party on startup")
	quiet := flag.Bool("quiet", false, "do not print party events to the terminal")
	flag.Parse()

	if err := run(*configPath, *join, *quiet); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, join, quiet bool) error {
	// 1. Config and logging
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer log.Sync()
	telemetry.SetBuildInfo(version, gitSHA)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Identity and transport
	var id gossip.IdentitySource = discovery.LocalAddr{Interface: cfg.Node.Interface}
	if cfg.Node.Address != "" {
		id = discovery.Static(cfg.Node.Address)
	}
	tr, err := openTransport(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open %s transport: %w", cfg.Transport.Kind, err)
	}
	defer tr.Close()

	// 3. Party engine and its driver
	g, err := gossip.New(tr, id,
		gossip.WithIndex(cfg.Node.Index),
		gossip.WithMatchmakingDuration(cfg.Party.MatchmakingDuration),
		gossip.WithLogger(log.Named("gossip")),
	)
	if err != nil {
		return err
	}
	log.Info("peer ready",
		zap.String("self", string(g.Self())),
		zap.Uint8("index", g.Index()),
		zap.String("transport", cfg.Transport.Kind))

	if !quiet {
		defer g.AddListener(newConsole(g))()
	}
	n := node.New(g,
		node.WithInterval(cfg.Party.DiscoveryInterval),
		node.WithLogger(log.Named("node")),
	)
	if join {
		g.JoinParty()
	}

	// 4. HTTP control API
	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           n.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTP.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
		close(httpErr)
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- n.Run(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-httpErr:
		if err != nil {
			log.Error("http server", zap.Error(err))
		}
		stop()
	}
	<-runErr

	// say goodbye so the others do not wait on us
	g.LeaveParty()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	log.Info("bye")
	return nil
}
