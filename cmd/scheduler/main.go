package main

import (
	"context"
	"errors"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"followup_backend/internal/composer"
	"followup_backend/internal/events"
	"followup_backend/internal/followups"
	"followup_backend/internal/followups/dedup"
	"followup_backend/internal/metrics"
	"followup_backend/internal/scheduler"
	"followup_backend/internal/whatsapp"
	"followup_backend/platform/config"
	"followup_backend/platform/db"
	"followup_backend/platform/logger"
	"followup_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "cycle", cfg.GetFollowupCycleSpec())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	redisClient, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = redisClient.Close() }()
	tracker := dedup.ForBackend(cfg.GetFollowupTracker(), cfg.GetFollowupCounterRetention(), redisClient, pool)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	recorder := metrics.NewRecorder(registry)
	recorder.RegisterHandlers(eventBus)
	if addr := cfg.GetMetricsAddr(); addr != "" {
		go serveMetrics(ctx, addr, metrics.Handler(registry), log)
	}

	followupsModule := followups.NewModule(followups.Deps{
		Pool:       pool,
		Tracker:    tracker,
		Composer:   composer.NewFromConfig(cfg, log),
		Dispatcher: client,
		Enqueuer:   client,
		Observer:   recorder,
		Bus:        eventBus,
		Validator:  validator.New(),
		Log:        log,
		Tick:       cfg.GetFollowupTick(),
		Workers:    cfg.GetFollowupWorkers(),
	})
	followupsModule.RegisterHandlers(eventBus)

	if pruner, ok := tracker.(dedup.Pruner); ok {
		go scheduler.NewCounterCleanup(pruner, log, 0, cfg.GetFollowupCounterRetention()).Run(ctx)
	}

	cycles, err := scheduler.NewCycleScheduler(cfg, cfg, log)
	if err != nil {
		log.Error("failed to initialize cycle scheduler", "error", err)
		panic("failed to initialize cycle scheduler: " + err.Error())
	}
	go cycles.Run(ctx)

	var sender scheduler.MessageSender
	if wa := whatsapp.NewClient(cfg, cfg.GetPhoneDefaultRegion(), log); wa != nil {
		sender = wa
	} else {
		log.Warn("WHATSAPP_URL not configured; due follow-ups will be dropped")
	}

	worker, err := scheduler.NewWorker(cfg, followupsModule.Engine(), followupsModule.Leads(), sender, eventBus, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func serveMetrics(ctx context.Context, addr string, handler nethttp.Handler, log *logger.Logger) {
	mux := nethttp.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &nethttp.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("scheduler metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		log.Error("metrics server stopped", "error", err)
	}
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
