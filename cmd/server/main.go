package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/internal/gateway"
	"chat-relay/internal/history"
	"chat-relay/internal/registry"
	"chat-relay/internal/relay"
	"chat-relay/internal/server"
	"chat-relay/internal/storage"

	"github.com/caarlos0/env/v6"
	"go.uber.org/zap"
)

// store is what both storage backends offer to the relay and history
type store interface {
	relay.Store
	history.Store
	history.Importer
	Close()
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("LOG_FORMAT") == "json" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func openStore(ctx context.Context, logger *zap.SugaredLogger, cfg storage.Config) (store, error) {
	switch cfg.Driver {
	case storage.DriverMemory:
		logger.Warn("Using in-memory store, messages are lost on restart")
		return storage.NewMemory(), nil
	case storage.DriverPostgres:
		var opts []storage.Option
		if cfg.MaxConns > 0 {
			opts = append(opts, storage.MaxConns(cfg.MaxConns))
		}
		s, err := storage.New(ctx, logger, cfg, opts...)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Driver)
	}
}

func main() {
	logger, err := newLogger()
	if err != nil {
		log.Fatalf("Cannot create logger: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("Application is starting")

	sugar.Info("Current time:", time.Now())

	var (
		serverCfg   server.EnvConfig
		storeCfg    storage.Config
		historyCfg  history.Config
		gatewayCfg  gateway.Config
		evictionCfg registry.EvictionConfig
	)
	for _, cfg := range []interface{}{&serverCfg, &storeCfg, &historyCfg, &gatewayCfg, &evictionCfg} {
		if err := env.Parse(cfg); err != nil {
			sugar.Fatalf("Cannot parse env config: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, sugar, storeCfg)
	if err != nil {
		sugar.Fatalf("Cannot create Store instance: %v", err)
	}

	if historyCfg.ImportPath != "" {
		if _, err := history.ImportFile(ctx, sugar, st, historyCfg.ImportPath); err != nil {
			st.Close()
			sugar.Fatalf("Cannot import history: %v", err)
		}
	}

	conns := registry.NewConnections()
	rooms := registry.NewRooms(sugar)
	r := relay.New(sugar, st, conns, rooms)
	hist := history.New(sugar, st, historyCfg)
	gw := gateway.New(sugar, gatewayCfg, conns, rooms, r)

	serverOpts := []server.Option{
		server.WithEnvConfig(serverCfg),
		server.WithWebsocket("/ws", gw),
		server.RegisterAfterShutdown(gw.Close),
		server.RegisterAfterShutdown(func() {
			sugar.Info("Closing store")
			st.Close()
			sugar.Info("Store is closed")
		}),
	}
	if evictionCfg.Enabled() {
		serverOpts = append(serverOpts, server.RunWhileServing(func(ctx context.Context) error {
			rooms.RunEviction(ctx, evictionCfg.Interval, evictionCfg.IdleTTL)
			return nil
		}))
	}

	srv, err := server.NewServer(sugar, r, hist, serverOpts...)
	if err != nil {
		sugar.Fatalf("Cannot create Server instance: %v", err)
	}

	if err := srv.Start(ctx); err != nil {
		sugar.Fatalf("Cannot start http srv: %v", err)
	}
}
