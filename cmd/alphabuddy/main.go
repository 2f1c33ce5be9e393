package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"alphabuddy/internal/api"
	"alphabuddy/internal/config"
	"alphabuddy/internal/logger"
	"alphabuddy/internal/runner"
	"alphabuddy/internal/scheduler"
	"alphabuddy/internal/store"
	"alphabuddy/internal/telemetry"
)

const version = "1.0.2"

func main() {
	root := &cobra.Command{
		Use:     "alphabuddy <dir>",
		Short:   "Watches a directory for prediction job files and runs them one at a time",
		Args:    cobra.ExactArgs(1),
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(args[0])
		},
	}
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(dir string) error {
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	settings, err := config.LoadSettings(filepath.Join(dir, "settings.yaml"))
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	log.Info("settings loaded", "versions", len(settings.Versions))

	st, err := store.New(dir, log)
	if err != nil {
		return err
	}
	if err := st.Recover(); err != nil {
		return fmt.Errorf("recover interrupted jobs: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		log.Info("shutting down")
		cancel()
	}()

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Warn("metrics server stopped", "error", err)
		}
	}()

	srv := api.New(st, log)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Router()}
	go func() {
		log.Info("api listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("api server stopped", "error", err)
		}
	}()

	drv := runner.New(settings.Alphaplots, log)
	sched := scheduler.New(cfg, settings, st, drv, log)
	err = sched.Run(ctx)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)

	if err == context.Canceled {
		return nil
	}
	return err
}
