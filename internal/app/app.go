// Package app assembles the process from configuration: storage, Redis,
// the AI provider, background jobs and the HTTP router. Both the server and
// the admin CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/ayupilot/internal/accounts"
	"github.com/kiranshivaraju/ayupilot/internal/ai"
	"github.com/kiranshivaraju/ayupilot/internal/analysis"
	"github.com/kiranshivaraju/ayupilot/internal/api"
	"github.com/kiranshivaraju/ayupilot/internal/api/handler"
	mw "github.com/kiranshivaraju/ayupilot/internal/api/middleware"
	"github.com/kiranshivaraju/ayupilot/internal/cache"
	"github.com/kiranshivaraju/ayupilot/internal/chat"
	"github.com/kiranshivaraju/ayupilot/internal/clinic"
	"github.com/kiranshivaraju/ayupilot/internal/config"
	"github.com/kiranshivaraju/ayupilot/internal/jobs"
	"github.com/kiranshivaraju/ayupilot/internal/metrics"
	"github.com/kiranshivaraju/ayupilot/internal/queue"
	"github.com/kiranshivaraju/ayupilot/internal/reconciler"
	"github.com/kiranshivaraju/ayupilot/internal/remote"
	"github.com/kiranshivaraju/ayupilot/internal/store"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
	"github.com/redis/go-redis/v9"
)

// App holds every long-lived component. Close releases them in reverse order.
type App struct {
	Config     *config.Config
	Store      store.Store
	Cache      *cache.RedisCache
	Queue      *queue.RedisQueue
	Metrics    *metrics.Metrics
	Provider   models.AIProvider
	Runner     *jobs.Runner
	Dispatcher *jobs.Dispatcher
	Accounts   *accounts.Service
	Reconciler *reconciler.Reconciler
	Router     http.Handler

	closers []func() error
}

// Build connects to the configured backends and wires the services. On
// error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New()}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config
	st, closeStore, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	a.Store = st
	a.closers = append(a.closers, closeStore)

	if err := a.openRedis(ctx); err != nil {
		return err
	}

	provider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	a.Provider = provider
	slog.Info("AI provider initialized", "provider", provider.Name())

	a.Runner = jobs.NewRunner(a.Store, a.Cache, provider, a.Metrics, cfg.Worker.StatusTTL)
	a.Runner.UseFetcher(remote.NewHTTPClient(cfg.Upload.FetchTimeout, cfg.Upload.MaxBytes))
	a.Dispatcher = jobs.NewDispatcher(a.Queue, a.Runner, a.Metrics)
	a.Accounts = accounts.New(a.Store)
	a.Reconciler = reconciler.New(a.Store, cfg.Reconciler.Location, cfg.Reconciler.NoShowGrace, a.Metrics)
	a.Router = a.router()
	return nil
}

// OpenStore returns the configured store and a func that releases it. The
// postgres driver applies pending migrations before returning.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func() error, error) {
	switch cfg.Driver {
	case "memory":
		slog.Warn("using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), func() error { return nil }, nil
	case "postgres":
		pool, err := store.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		slog.Info("database connected")

		if err := store.RunMigrations(cfg.URL, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")
		return store.NewPostgresStore(pool), func() error { pool.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// openRedis creates one client shared by the cache and the work queue.
func (a *App) openRedis(ctx context.Context) error {
	opts, err := redis.ParseURL(a.Config.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	a.closers = append(a.closers, client.Close)

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	a.Cache = cache.New(client, a.Config.Redis.KeyPrefix)
	a.Queue = queue.New(client, a.Config.Redis.KeyPrefix, queue.WithVisibilityTimeout(a.Config.Worker.VisibilityTimeout))
	return nil
}

func (a *App) router() http.Handler {
	cfg := a.Config
	policy := clinic.Policy{EnforceOwnership: cfg.Auth.EnforceOwnership}

	svc := analysis.New(a.Store, a.Cache, a.Dispatcher, policy, analysis.Config{
		MaxUploadBytes: cfg.Upload.MaxBytes,
		StatusTTL:      cfg.Worker.StatusTTL,
	})
	orchestrator := chat.New(a.Store, a.Dispatcher, policy, a.Metrics, cfg.Chat.PollInterval, cfg.Chat.Timeout)
	loc := cfg.Reconciler.Location

	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(a.Store),
		RateLimit: mw.NewRateLimit(a.Cache, cfg.Server.RequestsPerMinute),
		Metrics:   a.Metrics,

		HealthHandler: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": a.Store,
			"cache":    a.Cache,
		}),

		Patients:     handler.NewPatients(clinic.NewPatientService(a.Store, policy, cfg.Upload.PhoneRegion)),
		Appointments: handler.NewAppointments(clinic.NewAppointmentService(a.Store, policy, loc)),
		Uploads:      handler.NewUploads(svc, cfg.Upload.MaxBytes),
		Chat:         handler.NewChat(orchestrator),
		Keys:         handler.NewKeys(a.Accounts),

		ImageAnalyses:       handler.NewRecords(svc.Images),
		DocumentAnalyses:    handler.NewRecords(svc.Documents),
		ClinicalReports:     handler.NewRecords(svc.Reports),
		SNLPrescriptions:    handler.NewRecords(svc.SNL),
		KnowledgeReferences: handler.NewRecords(svc.Knowledge),

		GenerateReport:    handler.NewGenerateHandler(svc, models.JobClinicalReport),
		GenerateSNL:       handler.NewGenerateHandler(svc, models.JobSNLPrescription),
		GenerateKnowledge: handler.NewGenerateHandler(svc, models.JobKnowledgeReference),
		JobStatusHandler:  handler.NewJobStatusHandler(svc),
		DashboardHandler:  handler.NewDashboardHandler(clinic.NewDashboardService(a.Store, a.Cache, policy, loc)),
	})
}

// Pool returns a worker pool draining the app's queue.
func (a *App) Pool() *jobs.Pool {
	w := a.Config.Worker
	return jobs.NewPool(a.Queue, a.Runner, jobs.PoolConfig{
		Concurrency:     w.Concurrency,
		MaxAttempts:     w.MaxAttempts,
		RetryBackoff:    w.RetryBackoff,
		DequeueTimeout:  w.DequeueTimeout,
		PromoteInterval: w.PromoteInterval,
	}, a.Metrics)
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
