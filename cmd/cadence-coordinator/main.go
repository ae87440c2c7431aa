// Cadence Coordinator — процесс координации scheduled jobs.
//
// Объединяет в одном процессе цикл тиков (распределённая блокировка,
// журнал идемпотентности, очередь выполнения, circuit breaker)
// и Health Facade (HTTP API + Prometheus метрики).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Cadence/internal/api"
	"github.com/shaiso/Cadence/internal/breaker"
	"github.com/shaiso/Cadence/internal/config"
	"github.com/shaiso/Cadence/internal/coordinator"
	"github.com/shaiso/Cadence/internal/jobbody"
	"github.com/shaiso/Cadence/internal/ledger"
	"github.com/shaiso/Cadence/internal/lock"
	"github.com/shaiso/Cadence/internal/mq"
	"github.com/shaiso/Cadence/internal/queue"
	"github.com/shaiso/Cadence/internal/repo"
	"github.com/shaiso/Cadence/internal/telemetry"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting cadence-coordinator")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных и применяем схему
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Хранилища
	leaseRepo := repo.NewLeaseRepo(pool)
	executionRepo := repo.NewExecutionRepo(pool)

	// Компоненты координатора
	holderID := lock.NewHolderID()
	coordLock := lock.New(lock.Config{
		Store:    leaseRepo,
		HolderID: holderID,
		TTL:      cfg.Lock.TTL,
		Interval: cfg.Lock.HeartbeatInterval,
		Logger:   telemetry.WithHolderID(logger, holderID),
	})

	coordLedger := ledger.New(ledger.Config{
		Store:      executionRepo,
		StaleAfter: cfg.Ledger.StaleAfter,
		Retention:  cfg.Ledger.Retention,
		Logger:     logger,
	})

	coordBreaker := breaker.New(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
		CallTimeout:      cfg.Breaker.CallTimeout,
		Logger:           logger,
	})

	coordQueue := queue.New(queue.Config{
		Concurrency: cfg.Queue.Concurrency,
		MaxRetries:  cfg.Queue.MaxRetries,
		Runner:      coordBreaker.Do,
		Logger:      logger,
	})
	coordQueue.Start(ctx)
	defer coordQueue.Stop()

	// Job body: HTTP-вызов downstream пайплайна
	periodFn, err := coordinator.NewPeriodFunc(cfg.Schedule.PeriodKind, cfg.Schedule.Timezone)
	if err != nil {
		logger.Error("invalid period configuration", "error", err)
		os.Exit(1)
	}

	registry := jobbody.NewRegistry()
	if cfg.Pipeline.URL == "" {
		logger.Error("PIPELINE_URL is required")
		os.Exit(1)
	}
	registry.Register(cfg.Schedule.JobID, jobbody.NewHTTPBody(
		cfg.Pipeline.URL,
		cfg.Schedule.JobID,
		func() string { return periodFn(time.Now()) },
	))

	// Публикация событий (опциональна)
	var publisher *mq.Publisher
	if cfg.AMQP.URL != "" {
		conn, err := mq.NewConnection(cfg.AMQP.URL, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer conn.Close()

		if err := mq.DeclareTopology(ctx, conn); err != nil {
			logger.Error("failed to declare rabbitmq topology", "error", err)
			os.Exit(1)
		}
		publisher = mq.NewPublisher(conn, logger)
		logger.Info("connected to rabbitmq")
	}

	coord, err := coordinator.New(coordinator.Config{
		Lock:      coordLock,
		Ledger:    coordLedger,
		Queue:     coordQueue,
		Breaker:   coordBreaker,
		Registry:  registry,
		Subjects:  coordinator.StaticSubjects(cfg.Schedule.Subjects),
		Publisher: publisher,
		JobID:     cfg.Schedule.JobID,
		TickCron:  cfg.Schedule.TickCron,
		PeriodFn:  periodFn,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to build coordinator", "error", err)
		os.Exit(1)
	}

	coord.Start(ctx)
	defer coord.Stop()

	// Health Facade
	handler := api.NewHandler(api.Config{
		Ledger:     coordLedger,
		Lock:       coordLock,
		Breaker:    coordBreaker,
		Queue:      coordQueue,
		AdminToken: cfg.Server.AdminToken,
		Logger:     logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
