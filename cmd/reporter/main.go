package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fleet-lab/fleet-reporter/internal/broker"
	corecfg "github.com/fleet-lab/fleet-reporter/internal/core/config"
	"github.com/fleet-lab/fleet-reporter/internal/core/storage/postgres"
	"github.com/fleet-lab/fleet-reporter/internal/migrations"
	"github.com/fleet-lab/fleet-reporter/internal/pipeline"
	"github.com/fleet-lab/fleet-reporter/internal/processor"
	"github.com/fleet-lab/fleet-reporter/internal/query"
	"github.com/fleet-lab/fleet-reporter/internal/retention"
	"github.com/fleet-lab/fleet-reporter/internal/server"
)

func main() {
	configPath := flag.String("config", "reporter.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"window", cfg.Pipeline.Window(),
		"vehicle_topic", cfg.Broker.VehicleTopic,
		"retention_ttl", cfg.Retention.TTL(),
	)

	sweepInterval, err := time.ParseDuration(cfg.Retention.SweepInterval)
	if err != nil {
		slog.Error("Invalid retention sweep interval", "value", cfg.Retention.SweepInterval, "error", err)
		os.Exit(1)
	}

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	statsStore := postgres.NewStatsAdapter(dbAdapter.DB())
	processedStore := postgres.NewProcessedAdapter(dbAdapter.DB())

	// 3. Connect to the Message Bus
	bus, err := broker.Connect(broker.Options{
		URL:      cfg.Broker.URL,
		ClientID: cfg.Broker.ClientID,
		Username: cfg.Broker.Username,
		Password: cfg.Broker.Password,
	})
	if err != nil {
		slog.Error("Failed to connect to message bus", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	// 4. Assemble the Streaming Pipeline
	batcher := pipeline.NewBatcher(
		cfg.Pipeline.Window(),
		cfg.Pipeline.InputBufferSize,
		cfg.Pipeline.BatchBufferSize,
	)
	notifier := query.NewUpdateNotifier(bus, cfg.Broker.UpdatesTopic)
	committer := processor.New(statsStore, processedStore, notifier)
	sweeper := retention.NewSweeper(processedStore, cfg.Retention.TTL(), sweepInterval)

	// 5. Initialize Query API
	querySvc := query.NewService(statsStore)
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode)
	querySvc.RegisterRoutes(srv.Engine)

	// 6. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler → triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	if err := bus.Subscribe(cfg.Broker.VehicleTopic, batcher.Ingest); err != nil {
		slog.Error("Failed to subscribe to vehicle events", "error", err)
		os.Exit(1)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return batcher.Run(groupCtx)
	})
	group.Go(func() error {
		// Consumes until the batcher closes the channel, so buffered batches
		// still commit during shutdown.
		return committer.Run(groupCtx, batcher.Batches())
	})
	group.Go(func() error {
		return sweeper.Start(groupCtx)
	})
	group.Go(func() error {
		return srv.Run(groupCtx)
	})

	if err := group.Wait(); err != nil {
		slog.Error("Service stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
