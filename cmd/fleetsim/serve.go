package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fleetsim/internal/admin"
	"fleetsim/internal/backbone"
	"fleetsim/internal/command"
	"fleetsim/internal/config"
	"fleetsim/internal/engine"
	"fleetsim/internal/logging"
	"fleetsim/internal/manager"
	"fleetsim/internal/metrics"
	"fleetsim/internal/record"
	"fleetsim/internal/store"
	"fleetsim/internal/topics"
)

var serveEmbeddedBroker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulation server",
	Long:  "serve runs the simulation manager, the MQTT control plane and the HTTP admin API until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(logging.NewContext(ctx, log), cfg)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveEmbeddedBroker, "embedded-broker", false, "Run an in-process MQTT broker on the backbone port")
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logging.FromContext(ctx)
	if serveEmbeddedBroker {
		broker, err := backbone.StartEmbeddedBroker(fmt.Sprintf(":%d", cfg.Backbone.Port), log)
		if err != nil {
			return err
		}
		defer broker.Close()
		log.Info("embedded broker listening", "addr", broker.Addr())
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	rec, err := newRecorder(cfg.Recorder)
	if err != nil {
		return fmt.Errorf("recorder: %w", err)
	}
	if rec != nil {
		defer record.Close(rec)
	}

	m := metrics.New()
	ns := topics.New(cfg.TopicPrefix)
	bb := backbone.New(backbone.Config{
		Host:              cfg.Backbone.Host,
		Port:              cfg.Backbone.Port,
		TLS:               cfg.Backbone.TLS,
		Username:          cfg.Backbone.Username,
		Password:          cfg.Backbone.Password,
		HeartbeatInterval: cfg.Backbone.HeartbeatInterval,
		Topics:            ns,
		Logger:            log,
	})
	mgr := manager.New(manager.Config{
		Store:        st,
		ControlPlane: bb,
		Metrics:      m,
		Logger:       log,
		EngineOptions: []engine.Option{
			engine.WithMetrics(m),
			engine.WithRecorder(rec),
			engine.WithConnectTimeout(cfg.Engine.ConnectTimeout),
			engine.WithReconnect(cfg.Engine.ReconnectDelay, cfg.Engine.MaxReconnectAttempts),
			engine.WithLocalhostOverride(engine.LocalhostOverride{
				Host: cfg.Engine.LocalhostOverride.Host,
				Port: cfg.Engine.LocalhostOverride.Port,
			}),
		},
	})
	disp := command.New(ns, mgr, st, bb, log)
	bb.SetCommandHandler(disp.Handle)
	bb.SetHealthSources(st.Ping, mgr.ActiveIDs)

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = bb.Connect(connectCtx)
	cancel()
	if err != nil {
		return err
	}
	bb.PublishActiveIndex(nil)
	bb.PublishSystemEvent("server-started", "fleetsim server started")

	srv := admin.NewServer(mgr, st, bb, m.Handler(), log)
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Start(cfg.Admin.Addr) }()

	select {
	case <-ctx.Done():
	case err = <-srvErr:
		if err != nil {
			log.Error("admin server failed", "err", err)
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("admin shutdown", "err", err)
	}
	if err := mgr.StopAll(shutdownCtx); err != nil {
		log.Warn("stop simulations", "err", err)
	}
	bb.PublishSystemEvent("server-stopping", "fleetsim server stopping")
	bb.Close()
	return err
}

// openStore opens the configured persistence driver.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	log := logging.FromContext(ctx)
	switch cfg.Store.Driver {
	case config.DriverRedis:
		rs := store.NewRedisStore(cfg.Store.RedisAddr, cfg.Store.RedisPrefix)
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.Store.RedisAddr, err)
		}
		return rs, func() { rs.Close() }, nil
	case config.DriverFile:
		fs, err := store.OpenFile(cfg.Store.Path, log)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Store.Watch {
			go func() {
				if err := fs.Watch(ctx); err != nil {
					log.Error("profiles watcher stopped", "err", err)
				}
			}()
		}
		return fs, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
