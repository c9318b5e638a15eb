// snapclone-server — сервис клонирования и восстановления томов.
//
// Сервер:
//   - Принимает задачи через HTTP API и очередь snapclone.requests
//   - Выполняет их в ограниченном пуле Task Manager
//   - После рестарта подхватывает незавершённые задачи
//   - Периодически пересканирует хранилище (cron)
//   - Отдаёт /healthz и /metrics
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/snapclone/internal/api"
	"github.com/shaiso/snapclone/internal/config"
	"github.com/shaiso/snapclone/internal/mq"
	"github.com/shaiso/snapclone/internal/orchestrator"
	"github.com/shaiso/snapclone/internal/repo"
	"github.com/shaiso/snapclone/internal/scheduler"
	"github.com/shaiso/snapclone/internal/steps"
	"github.com/shaiso/snapclone/internal/storage/memfleet"
	"github.com/shaiso/snapclone/internal/telemetry"
)

var startTime = time.Now()

func main() {
	if err := run(); err != nil {
		slog.Error("snapclone-server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return err
	}

	logger := telemetry.SetupLogger(cfg.Logging())
	logger.Info("starting snapclone-server", "fleet", cfg.Fleet.Driver)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	// Хранилище записей задач
	var store repo.TaskStore
	if cfg.Database.URL != "" {
		pool, err := repo.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()

		if err := repo.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		store = repo.NewCloneTaskRepo(pool)
		logger.Info("database connected")
	} else {
		store = repo.NewMemoryTaskStore()
		logger.Warn("database url not set, task records are kept in memory")
	}

	// Кластер хранения. Поддерживается только in-memory драйвер.
	fleet := memfleet.New()

	deps := steps.NewDeps(fleet, fleet, fleet, cfg.StepOptions())
	deps.Observer = metrics
	deps.Logger = logger

	// RabbitMQ
	var publisher *mq.Publisher
	var mqConn *mq.Connection
	if cfg.AMQP.URL != "" {
		mqConn, err = mq.Dial(mq.ConnectionConfig{URL: cfg.AMQP.URL, Logger: logger})
		if err != nil {
			logger.Warn("RabbitMQ not available, running with HTTP intake only", "error", err)
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			publisher = mq.NewPublisher(mqConn, logger)
		}
	}

	manager := orchestrator.New(orchestrator.Config{
		Store:     store,
		Registry:  steps.DefaultRegistry(deps),
		Workers:   cfg.Clone.PoolThreadNum,
		QueueSize: cfg.Clone.QueueSize,
		Publisher: eventPublisher(publisher),
		Conn:      mqConn,
		Metrics:   metrics,
		Logger:    logger,
	})

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("start task manager: %w", err)
	}
	defer manager.Stop()

	n, err := manager.RecoverOnStartup(ctx)
	if err != nil {
		logger.Error("recover on startup failed", "error", err)
	} else {
		logger.Info("unfinished tasks resubmitted", "count", n)
	}

	sched, err := scheduler.New(scheduler.Config{
		Target: manager,
		Spec:   cfg.Rescan.Cron,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	// HTTP: API + /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s active=%d", time.Since(startTime).Round(time.Second), manager.ActiveCount())
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	handler := api.NewHandler(api.Config{
		Tasks:  manager,
		Logger: logger,
	})
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Ожидаем сигнал завершения
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("snapclone-server stopped")
	return nil
}

// eventPublisher не даёт nil *mq.Publisher превратиться в ненулевой интерфейс.
func eventPublisher(p *mq.Publisher) orchestrator.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}
