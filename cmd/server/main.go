package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"petregistry/internal/platform/config"
	"petregistry/internal/platform/httpserver"
	"petregistry/internal/platform/logger"
)

const defaultConfigPath = "config/config.yaml"

func main() {
	if err := run(); err != nil {
		slog.Error("petregistry exited with error", "error", err)
		os.Exit(1)
	}
}

// run loads configuration, wires the application and serves HTTP alongside
// the background workers until a signal arrives.
func run() error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	path := os.Getenv("PETREGISTRY_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := httpserver.New(cfg.Server, app.Router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting petregistry", "addr", cfg.Server.Addr, "env", cfg.Env, "postgres", cfg.UsesPostgres())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	for _, w := range app.Workers {
		g.Go(func() error {
			log.Info("starting worker", "worker", w.Name)
			if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
