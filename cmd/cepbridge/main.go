package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/fastdata/cepbridge/common/logging"
	"github.com/fastdata/cepbridge/common/messaging"
	natsclient "github.com/fastdata/cepbridge/common/messaging/nats"
	"github.com/fastdata/cepbridge/internal/config"
	"github.com/fastdata/cepbridge/internal/dispatcher"
	"github.com/fastdata/cepbridge/internal/engine"
	"github.com/fastdata/cepbridge/internal/feed"
	"github.com/fastdata/cepbridge/internal/handlers"
	"github.com/fastdata/cepbridge/internal/notice"
	"github.com/fastdata/cepbridge/internal/registry"
	"github.com/fastdata/cepbridge/internal/server"
	"github.com/fastdata/cepbridge/internal/store"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("cepbridge"))
	logging.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("cepbridge exited with error", logging.Error(err))
		os.Exit(1)
	}
	logger.Info("cepbridge stopped gracefully")
}

func run(cfg *config.Config, logger *logging.Logger) error {
	log := logger.Logger

	// Registries, optionally mirrored into Redis
	sinkOpts := []registry.Option{registry.WithLogger(log)}
	attrOpts := []registry.Option{registry.WithLogger(log)}

	var redisClient *redis.Client
	var redisStore *store.RedisStore
	if cfg.Redis.Enabled {
		var err error
		redisClient, err = store.NewRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		redisStore = store.NewRedisStore(redisClient, log)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = redisStore.Ping(pingCtx)
		cancel()
		if err != nil {
			return err
		}
		sinkOpts = append(sinkOpts, registry.WithSinkPersister(redisStore))
		attrOpts = append(attrOpts, registry.WithAttributePersister(redisStore))
	}

	sinks := registry.NewEventSinkRegistry(sinkOpts...)
	attrs := registry.NewAttributeRegistry(attrOpts...)

	if redisStore != nil {
		replayCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := redisStore.Replay(replayCtx, sinks, attrs)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to replay registry state: %w", err)
		}
	}

	// Rule engine
	statements := make([]engine.Statement, 0, len(cfg.Statements))
	for _, st := range cfg.Statements {
		statements = append(statements, engine.Statement{ID: st.ID, Window: st.Window, Threshold: st.Threshold})
	}
	windows, err := engine.NewWindowEngine(statements)
	if err != nil {
		return err
	}
	adapter := engine.NewAdapter(attrs, windows, cfg.Dispatcher.QueueSize, log)
	log.Info("rule engine ready", slog.Any("statements", windows.Statements()))

	// NATS
	var broker *natsclient.Client
	if cfg.NATS.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.MaxReconnects = cfg.NATS.MaxReconnects
		natsCfg.ReconnectWait = cfg.NATS.ReconnectWait
		natsCfg.Logger = log
		broker, err = natsclient.NewClient(natsCfg)
		if err != nil {
			return err
		}
		defer broker.Close()
	}

	// Dispatcher and failure notices
	reporters := []notice.Reporter{notice.NewLogReporter(log), notice.MetricsReporter{}}
	if broker != nil {
		reporters = append(reporters, notice.NewPublishReporter(broker, messaging.SubjectDeliveryFailed))
	}
	disp := dispatcher.New(dispatcher.Config{
		QueueSize:       cfg.Dispatcher.QueueSize,
		MaxAttempts:     cfg.Dispatcher.MaxAttempts,
		InitialInterval: cfg.Dispatcher.InitialInterval,
		Multiplier:      cfg.Dispatcher.Multiplier,
		MaxInterval:     cfg.Dispatcher.MaxInterval,
		Jitter:          cfg.Dispatcher.Jitter,
		RequestTimeout:  cfg.Dispatcher.RequestTimeout,
		ShutdownGrace:   cfg.Dispatcher.ShutdownGrace,
		SinkRateLimit:   cfg.Dispatcher.SinkRateLimit,
		SinkRateBurst:   cfg.Dispatcher.SinkRateBurst,
	}, sinks, notice.NewMultiReporter(reporters...), dispatcher.WithLogger(log))

	// Admin API
	var changes feed.ChangeHandler
	if cfg.Feed.NGSINotify {
		changes = adapter
	}
	var health messaging.Client
	if broker != nil {
		health = broker
	}
	handler := handlers.NewHandler(sinks, attrs, changes, health, log)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Context feed
	var feedHandler *feed.Handler
	if broker != nil {
		feedHandler = feed.NewHandler(broker, adapter, cfg.Feed.Subject, cfg.Feed.QueueGroup, log)
		if err := feedHandler.Start(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	// Run and Consume end through Shutdown and Close below, not through
	// the signal context, so queued work drains in order.
	g.Go(func() error { return disp.Run(context.Background()) })
	g.Go(func() error { return disp.Consume(context.Background(), adapter.Events()) })

	g.Go(func() error {
		log.Info("cepbridge listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		if feedHandler != nil {
			feedHandler.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server forced to shutdown", logging.Error(err))
		}

		adapter.Close()

		dispCtx, dispCancel := context.WithTimeout(context.Background(), cfg.Dispatcher.ShutdownGrace+5*time.Second)
		defer dispCancel()
		if err := disp.Shutdown(dispCtx); err != nil {
			log.Warn("dispatcher shutdown incomplete", logging.Error(err))
		}

		if broker != nil {
			if err := broker.Drain(); err != nil {
				log.Warn("failed to drain nats connection", logging.Error(err))
			}
		}
		return nil
	})

	return g.Wait()
}
