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

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-quiz/internal/ai"
	"github.com/p-n-ai/pai-quiz/internal/content"
	"github.com/p-n-ai/pai-quiz/internal/grading"
	"github.com/p-n-ai/pai-quiz/internal/platform/cache"
	"github.com/p-n-ai/pai-quiz/internal/platform/config"
	"github.com/p-n-ai/pai-quiz/internal/platform/database"
	"github.com/p-n-ai/pai-quiz/internal/platform/logging"
	"github.com/p-n-ai/pai-quiz/internal/platform/metrics"
	"github.com/p-n-ai/pai-quiz/internal/platform/tracing"
)

const serviceName = "pai-quiz"

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, logCloser := logging.New(cfg.Log)
	defer logCloser.Close()
	slog.SetDefault(logger)

	shutdownTracing, err := tracing.Setup(cfg.Tracing.Enabled, serviceName)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	m := metrics.New()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var throttle content.Throttle = content.NewMemoryThrottle()
	if st.cache != nil {
		throttle = st.cache
	}
	syncer := content.NewThrottledSynchronizer(
		content.NewSynchronizer(cfg.Sync.Root, st.topics, content.WithMetrics(m)),
		throttle, cfg.Sync.Throttle)

	runSync(ctx, syncer, true)

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if cfg.Sync.Schedule != "" {
		if _, err := scheduler.AddFunc(cfg.Sync.Schedule, func() { runSync(ctx, syncer, false) }); err != nil {
			return fmt.Errorf("scheduling sync: %w", err)
		}
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	client, err := grading.NewClient(grading.ClientConfig{
		Provider:          cfg.AI.Provider,
		Enabled:           cfg.AI.Enabled,
		APIKey:            cfg.AI.APIKey,
		BaseURL:           cfg.AI.BaseURL,
		Model:             cfg.AI.Model,
		Timeout:           cfg.AI.Timeout,
		RequestsPerMinute: cfg.AI.RequestsPerMinute,
	}, grading.WithClientMetrics(m))
	if err != nil {
		return err
	}
	if !client.Ready() {
		slog.Warn("grader not configured; pending open attempts will fail",
			"provider", cfg.AI.Provider,
			"enabled", cfg.AI.Enabled,
			"api_key", ai.MaskAPIKey(cfg.AI.APIKey),
		)
	}

	orchestrator := grading.NewOrchestrator(st.attempts, client,
		grading.WithBatchSize(cfg.Grading.BatchSize),
		grading.WithPollInterval(cfg.Grading.PollInterval),
		grading.WithMetrics(m),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(newMux(m, st.checks(), syncer), "http.server"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "addr", srv.Addr, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return runWorker(gctx, orchestrator, cfg.AI.Timeout+stopGrace)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// stores bundles the persistence chosen by config.
type stores struct {
	topics   content.Repository
	attempts grading.AttemptStore
	db       *database.DB
	cache    *cache.Cache
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}

	switch cfg.Storage {
	case "postgres":
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, err
		}
		st.db = db
		if err := db.EnsureSchema(ctx); err != nil {
			st.Close()
			return nil, err
		}
		topics, err := content.NewPostgresStore(db.Pool)
		if err != nil {
			st.Close()
			return nil, err
		}
		attempts, err := grading.NewPostgresAttemptStore(db.Pool)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.topics, st.attempts = topics, attempts
	default:
		topics := content.NewMemoryStore()
		st.topics, st.attempts = topics, grading.NewMemoryAttemptStore(topics)
	}

	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.cache = c
	}
	return st, nil
}

func (s *stores) checks() map[string]healthChecker {
	checks := make(map[string]healthChecker)
	if s.db != nil {
		checks["database"] = s.db
	}
	if s.cache != nil {
		checks["cache"] = s.cache
	}
	return checks
}

func (s *stores) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

func runSync(ctx context.Context, s *content.ThrottledSynchronizer, force bool) {
	report, ran, err := s.Sync(ctx, force)
	switch {
	case err != nil:
		slog.Error("topic sync failed", "error", err)
	case !ran:
		slog.Debug("topic sync throttled")
	default:
		slog.Info("topic sync finished",
			"forced", force,
			"added", report.Added,
			"modified", report.Modified,
			"restored", report.Restored,
			"deleted", report.Deleted,
			"failed", report.Failed,
		)
	}
}
