// Package main is the entrypoint for the stockwatch daemon.
//
// stockwatchd is a single long-running process hosting two surfaces: the
// availability monitor loop (internal/monitor) and the management API
// (internal/core + internal/api/handlers). This file handles dependency
// wiring only; all behavior lives in the internal packages.
//
// Persistence and telemetry are optional. Without STOCKWATCH_DATABASE_URL
// the monitor runs purely in memory; without STOCKWATCH_METRICS_ENABLED the
// metrics recorder is a no-op.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"stockwatch/internal/api/handlers"
	"stockwatch/internal/config"
	"stockwatch/internal/core"
	"stockwatch/internal/db"
	"stockwatch/internal/external"
	"stockwatch/internal/monitor"
	"stockwatch/internal/notify"
	"stockwatch/internal/telemetry"
	"stockwatch/internal/types"
)

// archivePruneInterval is how often the snapshot archive is trimmed to its
// configured retention window.
const archivePruneInterval = time.Hour

func main() {
	logger := types.SlogAdapter{L: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(os.Getenv("STOCKWATCH_LOG_LEVEL")),
	}))}

	logger.Info("stockwatchd initializing")

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clients, err := external.NewClientRegistry(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize external clients", "error", err)
		os.Exit(1)
	}

	clock := types.RealClock{}

	// Optional CloudWatch telemetry.
	var metrics types.MetricsRecorder = types.NopMetricsRecorder{}
	var recorder *telemetry.CloudWatchRecorder
	if cfg.Telemetry.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Telemetry.Region))
		if err != nil {
			logger.Error("failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		recorder = telemetry.NewCloudWatchRecorder(cloudwatch.NewFromConfig(awsCfg), cfg.Telemetry.Namespace, logger)
		metrics = recorder
	}

	// Optional PostgreSQL persistence.
	var (
		store   monitor.SubscriptionStore
		archive monitor.SnapshotArchive
		subRepo *db.SubscriptionRepo
		arcRepo *db.ArchiveRepo
		probes  []core.HealthProbe
	)
	if cfg.Database.URL.IsSet() {
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		subRepo = db.NewSubscriptionRepo(pool, logger)
		store = subRepo
		probes = append(probes, db.NewProbe(pool))
		if cfg.Database.ArchiveEnabled {
			arcRepo, err = db.NewArchiveRepo(pool, logger)
			if err != nil {
				logger.Error("failed to initialize snapshot archive", "error", err)
				os.Exit(1)
			}
			archive = arcRepo
		}
	} else {
		logger.Info("no database configured, subscriptions are in-memory only")
	}

	registry := monitor.NewRegistry(clock, logger)
	tokens := monitor.NewTokenCache(cfg.Monitor.TokenTTL, clock, logger)
	prices := monitor.NewPriceResolver(clients.Catalog, clock, logger, metrics)
	dispatcher := notify.New(notify.Config{
		Sender:  clients.Telegram,
		Tokens:  tokens,
		Clock:   clock,
		Logger:  logger,
		Metrics: metrics,
	})

	mon := monitor.New(monitor.Config{
		Registry:   registry,
		Tokens:     tokens,
		Catalog:    clients.Catalog,
		Orders:     clients.Orders,
		Dispatcher: dispatcher,
		Prices:     prices,
		Store:      store,
		Archive:    archive,
		Clock:      clock,
		Logger:     logger,
		Metrics:    metrics,
	})

	if subRepo != nil {
		if err := restoreSubscriptions(ctx, registry, subRepo, logger); err != nil {
			logger.Error("failed to restore persisted subscriptions", "error", err)
			os.Exit(1)
		}
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize server", "error", err)
		os.Exit(1)
	}
	srv.V1RouteRegistrars = []func(chi.Router){
		handlers.NewSubscriptionHandler(mon, logger).RegisterRoutes,
		handlers.NewMonitorHandler(mon, clients.Catalog, logger).RegisterRoutes,
		handlers.NewTelegramHandler(handlers.TelegramHandlerConfig{
			Tokens:   tokens,
			Orders:   clients.Orders,
			Answerer: clients.Telegram,
			Notifier: dispatcher,
			Logger:   logger,
			Metrics:  metrics,
		}).RegisterRoutes,
	}
	srv.HealthProbes = probes
	srv.MountRoutes()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.Monitor.AutoStart {
		mon.Start()
	} else {
		logger.Info("auto-start disabled, monitor idle until started via API")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("management API listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if arcRepo != nil {
		g.Go(func() error {
			pruneArchive(gctx, arcRepo, cfg.Database.ArchiveRetention, logger)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("daemon terminated with error", "error", err)
	}

	mon.Stop()
	if recorder != nil {
		recorder.Close()
	}
	logger.Info("stockwatchd shut down")
}

// subscriptionLoader is the slice of the subscription repository needed to
// seed the registry at startup.
type subscriptionLoader interface {
	Load(ctx context.Context) ([]*types.Subscription, error)
}

// restoreSubscriptions seeds the registry with persisted records, carrying
// their observed LastStatus and History so a restart does not replay
// notifications for transitions seen before it.
func restoreSubscriptions(ctx context.Context, registry *monitor.Registry, loader subscriptionLoader, logger types.Logger) error {
	subs, err := loader.Load(ctx)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		registry.Add(monitor.AddParams{
			PlanCode:          sub.PlanCode,
			Datacenters:       sub.Datacenters,
			NotifyAvailable:   sub.NotifyAvailable,
			NotifyUnavailable: sub.NotifyUnavailable,
			AutoOrder:         sub.AutoOrder,
			ServerName:        sub.ServerName,
			LastStatus:        sub.LastStatus,
			History:           sub.History,
		})
	}
	logger.Info("subscriptions restored from database", "count", len(subs))
	return nil
}

// archivePruner is the slice of the archive repository the prune loop needs.
type archivePruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// pruneArchive trims the snapshot archive to its retention window on a fixed
// interval until the context is cancelled. Prune failures are logged and
// retried on the next tick.
func pruneArchive(ctx context.Context, pruner archivePruner, retention time.Duration, logger types.Logger) {
	ticker := time.NewTicker(archivePruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := pruner.Prune(ctx, retention)
			if err != nil {
				logger.Warn("archive prune failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("archive pruned", "removed", removed)
			}
		}
	}
}

// parseLogLevel maps the configured level name onto a slog level, defaulting
// to info for unknown values.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
