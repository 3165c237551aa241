package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"jobmail-engine/internal/config"
	"jobmail-engine/internal/httpapi"
	"jobmail-engine/internal/runlock"
	"jobmail-engine/internal/scheduler"
)

func main() {
	os.Exit(run())
}

func run() int {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("environment", "err", err)
		return 1
	}

	cfg, cfgPath, err := env.LoadConfig()
	if err != nil {
		slog.Error("config", "err", err)
		return 1
	}

	cfg, res := config.NormalizeAndValidate(cfg)
	logger := newLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	slog.SetDefault(logger)
	for _, w := range res.Warnings {
		logger.Warn("config warning", "path", cfgPath, "warning", w)
	}
	if err := config.Validate(cfg); err != nil {
		logger.Error("invalid config", "path", cfgPath, "err", err)
		return 1
	}

	lock, err := runlock.Acquire(cfg.DataPath("engine.lock"))
	if errors.Is(err, runlock.ErrHeld) {
		logger.Info("another engine is running; nothing to do", "lock", cfg.DataPath("engine.lock"))
		return 0
	}
	if err != nil {
		logger.Error("run lock", "err", err)
		return 1
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Error("engine setup failed", "err", err)
		return 1
	}
	defer eng.Close()

	g, gctx := errgroup.WithContext(ctx)

	var srv *http.Server
	if addr := strings.TrimSpace(cfg.App.StatusAddr); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Error("status listen", "addr", addr, "err", err)
			return 1
		}
		srv = &http.Server{
			Handler: httpapi.NewHandler(httpapi.Deps{
				Hub:        eng.hub,
				Snapshot:   eng.orchestrator.Snapshot,
				LastSample: eng.monitor.Last,
				Postings:   eng.db,
				Logger:     logger,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		logger.Info("status server listening", "addr", ln.Addr().String())
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		if srv != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		if every := cfg.PollInterval(); every > 0 {
			scheduler.Every(gctx, every, "process-emails", func(ctx context.Context) error {
				_, err := eng.orchestrator.Run(ctx)
				return err
			}, logger)
			return nil
		}

		stats, err := eng.orchestrator.Run(gctx)
		logger.Info("run finished",
			"run_id", stats.RunID,
			"emails_processed", stats.EmailsProcessed,
			"emails_failed", stats.EmailsFailed,
			"postings_saved", stats.PostingsSaved,
		)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("engine stopped", "err", err)
		return 1
	}
	return 0
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
