// Package main is the entrypoint for the AyuPilot API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kiranshivaraju/ayupilot/internal/app"
	"github.com/kiranshivaraju/ayupilot/internal/config"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger, closeLog := config.SetupLogger(cfg.Logging)
	slog.SetDefault(logger)
	defer closeLog()

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"store", cfg.Database.Driver,
		"ai_provider", cfg.AI.Provider,
		"embedded_worker", cfg.Worker.Embedded,
		"reconciler", cfg.Reconciler.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var background []func(context.Context)
	if cfg.Worker.Embedded {
		background = append(background, a.Pool().Run)
	}
	if cfg.Reconciler.Enabled {
		background = append(background, func(ctx context.Context) {
			a.Reconciler.Start(ctx, cfg.Reconciler.Interval)
		})
	}

	return serve(ctx, newServer(cfg.Server, a.Router), background...)
}

func newServer(cfg config.ServerConfig, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// serve runs srv and the background loops until ctx is cancelled or the
// listener fails, then drains connections and waits for the loops to exit.
func serve(ctx context.Context, srv *http.Server, background ...func(context.Context)) error {
	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, fn := range background {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(bgCtx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		serveErr = fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("server shutdown: %w", err)
	}

	cancel()
	wg.Wait()

	if serveErr == nil {
		slog.Info("server stopped gracefully")
	}
	return serveErr
}
