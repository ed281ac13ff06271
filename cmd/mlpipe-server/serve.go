package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/mlpipe/internal/api"
	"github.com/shaiso/mlpipe/internal/config"
	"github.com/shaiso/mlpipe/internal/container"
	"github.com/shaiso/mlpipe/internal/health"
	"github.com/shaiso/mlpipe/internal/inference"
	"github.com/shaiso/mlpipe/internal/mq"
	"github.com/shaiso/mlpipe/internal/orchestrator"
	"github.com/shaiso/mlpipe/internal/repo"
	"github.com/shaiso/mlpipe/internal/telemetry"
	"github.com/shaiso/mlpipe/internal/tracker"
)

// historyCapacity — размер in-memory истории без PostgreSQL.
const historyCapacity = 100

func serve(parent context.Context) error {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting mlpipe-server", "version", version)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfg.EnsureDirs(); err != nil {
		return err
	}
	logger.Info("environment",
		"data_path", cfg.DataPath,
		"host_data_path", cfg.HostDataPath,
		"worker_data_path", cfg.WorkerDataPath,
		"backend", cfg.Backend,
	)

	// graceful shutdown
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Runtime worker'ов
	var engine container.Engine
	switch cfg.Backend {
	case config.BackendProcess:
		pe := container.NewProcessEngine(cfg.StageCommands, logger)
		defer pe.Close()
		engine = pe
	default:
		engine = container.NewDockerEngine("", logger)
	}
	if err := engine.Ping(ctx); err != nil {
		logger.Warn("container engine not reachable, runs will fail until it is", "backend", cfg.Backend, "error", err)
	}

	// История runs: PostgreSQL, если настроен
	var history orchestrator.RunStore
	if cfg.DBURL != "" {
		pool, err := repo.NewPool(ctx, cfg.DBURL)
		if err != nil {
			logger.Warn("database not available, keeping run history in memory", "error", err)
		} else {
			defer pool.Close()
			if err := repo.EnsureSchema(ctx, pool); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
			history = repo.NewRunRepo(pool)
			logger.Info("database connected")
		}
	}
	if history == nil {
		history = repo.NewMemoryRunRepo(historyCapacity)
	}

	tr := tracker.New(logger)

	// RabbitMQ: очередь trigger'ов и ретрансляция статуса
	var mqConn *mq.Connection
	if cfg.RabbitMQURL != "" {
		mqConn, err = mq.NewConnection(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running without trigger queue", "error", err)
			mqConn = nil
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			// Создаём топологию
			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
		}
	}

	client := inference.NewClient(cfg.InferenceURL, cfg.Timeouts.Probe, cfg.Timeouts.Predict)

	orch, err := orchestrator.New(orchestrator.Config{
		Settings: cfg,
		Tracker:  tr,
		Engine:   engine,
		Prober:   client,
		History:  history,
		Conn:     mqConn,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	defer orch.Stop()

	handler := api.NewHandler(api.Config{
		Pipeline:  orch,
		Tracker:   tr,
		Predictor: client,
		Settings:  cfg,
		Logger:    logger,
	})

	checks := health.NewHandler(cfg, engine)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", checks.LiveEndpoint)
	mux.HandleFunc("/readyz", checks.ReadyEndpoint)
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if mqConn != nil {
		relay := mq.NewRelay(tr, mq.NewPublisher(mqConn, logger), logger)
		g.Go(func() error {
			if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("status relay stopped", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownWait)
		defer shutdownCancel()
		// WebSocket соединения hijacked, Shutdown их не ждёт.
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logShutdown(logger, err)
	return err
}

func logShutdown(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("mlpipe-server stopped with error", "error", err)
		return
	}
	logger.Info("mlpipe-server stopped")
}
