// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

// matrix-loadtest drives simulated Matrix users against a homeserver.
//
// The identity population is sharded across in-process workers; each
// worker drains its shard into virtual users running the configured
// scenario. Session tokens and sync cursors are persisted to the token
// ledger at shutdown so the next run resumes warm.
//
// Usage:
//
//	matrix-loadtest --config loadtest.yaml
//	matrix-loadtest --config loadtest.yaml --scenario register
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
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pangeachat/matrix-locust/coordinator"
	"github.com/pangeachat/matrix-locust/lib/clock"
	"github.com/pangeachat/matrix-locust/lib/config"
	"github.com/pangeachat/matrix-locust/lib/metrics"
	"github.com/pangeachat/matrix-locust/loadgen"
	"github.com/pangeachat/matrix-locust/matrix"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the YAML configuration file (required)")
		scenario   = flag.String("scenario", "", "override the configured scenario")
		verbose    = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "matrix-loadtest: --config is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *scenario != "" {
		cfg.Scenario = *scenario
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	recorder := metrics.New(registry)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, registry, logger)
	}

	// One pooled transport for the whole run. Sync long-polls hold a
	// connection per live user, so the per-host idle pool must scale
	// with the slot count; request deadlines come from contexts, never
	// from a client timeout that would sever long-polls.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 0
	transport.MaxIdleConnsPerHost = cfg.Workers * cfg.SlotsPerWorker

	client, err := matrix.NewClient(matrix.ClientConfig{
		HomeserverURL: cfg.Homeserver,
		HTTPClient:    &http.Client{Transport: transport},
		Logger:        logger,
		Metrics:       recorder,
	})
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	users, err := coordinator.LoadUsers(cfg.UsersFile)
	if err != nil {
		return err
	}
	passwords := coordinator.PasswordLookup(users)

	var topology coordinator.Topology
	if cfg.RoomsFile != "" {
		topology, err = coordinator.LoadTopology(cfg.RoomsFile)
		if err != nil {
			return err
		}
	}

	coord, runCtx, err := coordinator.New(ctx, cfg.TokensFile, logger)
	if err != nil {
		return err
	}

	shards, err := coordinator.ComputeShards(coordinator.Usernames(users), cfg.Workers)
	if err != nil {
		return err
	}
	logger.Info("starting run",
		"scenario", cfg.Scenario,
		"identities", len(users),
		"workers", cfg.Workers,
		"slots_per_worker", cfg.SlotsPerWorker)

	var wg sync.WaitGroup
	for worker := range shards {
		workerLink, coordLink := coordinator.Pair(256)
		assignment := coordinator.ShardAssignment{
			Worker:    worker,
			Workers:   cfg.Workers,
			Usernames: shards[worker],
		}
		if err := coord.AttachWorker(runCtx, coordLink, assignment); err != nil {
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker(runCtx, cfg, client, coord, workerLink, passwords, topology, logger.With("worker", worker))
		}()
	}

	wg.Wait()
	stop()

	if err := coord.Flush(); err != nil {
		return err
	}
	if cause := context.Cause(runCtx); errors.Is(cause, coordinator.ErrRunStopped) {
		return cause
	}
	return nil
}

// runWorker waits for its shard assignment, then drives the scenario
// over it. A fatal scenario error is reported back to the coordinator,
// which halts the whole run.
func runWorker(
	ctx context.Context,
	cfg *config.Config,
	client *matrix.Client,
	coord *coordinator.Coordinator,
	link *coordinator.ChannelMessenger,
	passwords func(string) string,
	topology coordinator.Topology,
	logger *slog.Logger,
) {
	var assignment coordinator.ShardAssignment
	select {
	case envelope, ok := <-link.Receive():
		if !ok {
			return
		}
		if err := coordinator.Open(envelope, coordinator.EnvelopeShardAssignment, &assignment); err != nil {
			logger.Error("unreadable shard assignment", "error", err)
			return
		}
	case <-ctx.Done():
		return
	}
	logger.Info("received shard", "identities", len(assignment.Usernames))

	scenarioConfig := loadgen.ScenarioConfig{
		Driver: loadgen.DriverConfig{
			Client:            client,
			Queue:             loadgen.NewShardQueue(assignment.Usernames),
			Ledger:            coord.Ledger(),
			Reporter:          coordinator.NewTokenReporter(link, logger),
			Credentials:       passwords,
			Clock:             clock.Real(),
			Logger:            logger,
			DeviceName:        "matrix-loadtest",
			SyncTimeout:       cfg.SyncTimeout,
			RegistrationToken: cfg.RegistrationToken,
			RegisterMissing:   true,
		},
		Topology: topology,
		Slots:    cfg.SlotsPerWorker,
	}

	err := loadgen.RunScenario(ctx, cfg.Scenario, scenarioConfig)
	if err == nil || ctx.Err() != nil {
		return
	}
	logger.Error("scenario failed", "scenario", cfg.Scenario, "error", err)
	if coordinator.ClassifyWorkerError(err) {
		coord.FatalStop(err)
	}
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("serving metrics", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics listener failed", "error", err)
	}
}
