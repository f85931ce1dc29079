package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"cleanops_backend/internal/cleaners"
	"cleanops_backend/internal/emergency"
	"cleanops_backend/internal/incidents"
	"cleanops_backend/internal/ledger"
	"cleanops_backend/internal/notify"
	"cleanops_backend/internal/outbox"
	"cleanops_backend/internal/payments"
	"cleanops_backend/internal/scheduler"
	"cleanops_backend/internal/sweep"
	"cleanops_backend/internal/tasks/repository"
	"cleanops_backend/internal/tasks/service"
	"cleanops_backend/migrations"
	"cleanops_backend/platform/config"
	"cleanops_backend/platform/db"
	"cleanops_backend/platform/events"
	"cleanops_backend/platform/logger"
	"cleanops_backend/platform/redislock"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting sweeper", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}

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

	taskRepo := repository.New(pool)
	outboxRepo := outbox.New(pool)
	ledgerRepo := ledger.New(pool)
	recorder := ledger.NewRecorder(ledgerRepo, log)
	cleanerDir := cleaners.New(pool)
	incidentSink := incidents.New(pool)

	pay := payments.New(taskRepo, outboxRepo, recorder)
	tasks := service.New(taskRepo, cleanerDir, outboxRepo, recorder, pay, eventBus, log)
	emg := emergency.New(taskRepo, incidentSink, outboxRepo, recorder, cfg.GetDefaultCleaningDuration())

	locker := redislock.NewFromURL(cfg.GetRedisURL())
	if locker == nil {
		log.Warn("redis lock unavailable, sweeps run unguarded")
	}

	detector := sweep.NewDetector(taskRepo, cleanerDir, incidentSink, outboxRepo,
		tasks, ledgerRepo, recorder, eventBus, cfg, locker, log)
	ladder := sweep.NewLadder(taskRepo, cleanerDir, incidentSink, outboxRepo,
		tasks, emg, ledgerRepo, recorder, eventBus, cfg, locker, log)

	var notifier notify.Notifier
	if cfg.GetEmailEnabled() {
		notifier = notify.NewEmailNotifier(cfg)
		log.Info("email delivery enabled", "smtp_host", cfg.GetSMTPHost())
	} else {
		notifier = notify.NewLogNotifier(log)
		log.Info("email delivery disabled, logging notifications")
	}

	dispatcher, err := scheduler.NewOutboxDispatcher(cfg, pool, log)
	if err != nil {
		log.Error("failed to build outbox dispatcher", "error", err)
		panic("failed to build outbox dispatcher: " + err.Error())
	}
	defer dispatcher.Close()

	worker, err := scheduler.NewWorker(cfg, outboxRepo, notifier, log)
	if err != nil {
		log.Error("failed to build delivery worker", "error", err)
		panic("failed to build delivery worker: " + err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		detector.Run(gctx)
		return nil
	})
	g.Go(func() error {
		ladder.Run(gctx)
		return nil
	})
	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("sweeper stopped", "error", err)
		return
	}
	log.Info("sweeper stopped")
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
