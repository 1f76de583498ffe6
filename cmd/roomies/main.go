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

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"roomies/internal/infra/bootstrap"
	"roomies/internal/infra/config"
	ginserver "roomies/internal/infra/http/gin"
	"roomies/internal/infra/obs"
)

func main() {
	_ = godotenv.Load()
	logger := obs.NewLogger(getenv("APP_ENV", "dev"))
	if err := run(logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	rt, err := bootstrap.Builder{Config: cfg, Logger: logger}.Build(ctx)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		rt.Close(closeCtx)
	}()

	if cfg.FixturesPath != "" {
		if _, err := rt.Seed(ctx, cfg.FixturesPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Info("fixtures file not found, skipping", "path", cfg.FixturesPath)
			} else {
				return fmt.Errorf("fixtures %s: %w", cfg.FixturesPath, err)
			}
		}
	}

	obsMW := obs.Middleware{Logger: logger}
	server := ginserver.NewServer(cfg, obsMW, rt.Health, ginserver.HandlersFor(rt.Service, cfg.Currency, obsMW))

	group, groupCtx := errgroup.WithContext(ctx)
	for _, runner := range rt.Runners {
		group.Go(func() error {
			logger.Info("background job starting", "job", runner.Name)
			if err := runner.Run(groupCtx); err != nil {
				logger.Error("background job failed", "job", runner.Name, "error", err)
				return err
			}
			return nil
		})
	}
	group.Go(func() error {
		logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", cfg.Storage)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
