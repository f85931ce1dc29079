package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cleanops_backend/internal/api"
	"cleanops_backend/internal/cleaners"
	"cleanops_backend/internal/emergency"
	"cleanops_backend/internal/incidents"
	"cleanops_backend/internal/ledger"
	"cleanops_backend/internal/metrics"
	"cleanops_backend/internal/outbox"
	"cleanops_backend/internal/payments"
	"cleanops_backend/internal/reconciler"
	"cleanops_backend/internal/tasks/repository"
	"cleanops_backend/internal/tasks/service"
	"cleanops_backend/migrations"
	"cleanops_backend/platform/config"
	"cleanops_backend/platform/db"
	"cleanops_backend/platform/events"
	"cleanops_backend/platform/logger"
	"cleanops_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting api", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	collector := metrics.New(registry)
	collector.Register(eventBus)

	taskRepo := repository.New(pool)
	outboxRepo := outbox.New(pool)
	ledgerRepo := ledger.New(pool)
	recorder := ledger.NewRecorder(ledgerRepo, log)
	cleanerDir := cleaners.New(pool)
	incidentSink := incidents.New(pool)

	pay := payments.New(taskRepo, outboxRepo, recorder)
	tasks := service.New(taskRepo, cleanerDir, outboxRepo, recorder, pay, eventBus, log)
	rec := reconciler.New(taskRepo, outboxRepo, recorder, eventBus, cfg.GetDefaultCleaningDuration(), log)
	emg := emergency.New(taskRepo, incidentSink, outboxRepo, recorder, cfg.GetDefaultCleaningDuration())

	handler := api.NewHandler(tasks, taskRepo, rec, emg, val)
	router := api.NewRouter(cfg, handler,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), log)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", "error", err)
		panic("server stopped: " + err.Error())
	}
	log.Info("server stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
