package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"platelog/pkg/app"
	"platelog/pkg/config"
	"platelog/process/retention"
	"platelog/process/watch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := config.NewLogger(cfg.LogLevel, os.Stderr)

	// `platelog migrate` creates the readings table and exits.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := initDB(cfg.Database, logger); err != nil {
			logger.Error("migration failed", "error", err)
			os.Exit(1)
		}
		fmt.Println("migration completed")
		return
	}

	a, err := app.Build(cfg, logger)
	if err != nil {
		logger.Error("setup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Watch.Dir != "" {
		w := watch.New(cfg.Watch.Dir, a.Receiver, a.Pipeline, logger)
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("watch folder stopped", "dir", cfg.Watch.Dir, "error", err)
			}
		}()
	}
	if cfg.Retention.MaxAge > 0 {
		c, err := retention.Start(cfg.Retention.Schedule, cfg.Upload.Dir, cfg.Retention.MaxAge, logger)
		if err != nil {
			logger.Error("retention disabled", "error", err)
		} else {
			defer c.Stop()
		}
	}

	r := gin.Default()
	setupRoutes(r, newServer(a))

	logger.Info("listening", "port", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Error("server stopped", "error", err)
	}
}
