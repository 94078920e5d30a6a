package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"platelog/pkg/app"
	"platelog/pkg/config"
	"platelog/process/watch"
)

func main() {
	dir := flag.String("dir", "", "folder to watch (default WATCH_DIR)")
	workers := flag.Int("workers", 2, "concurrent uploads")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *dir != "" {
		cfg.Watch.Dir = *dir
	}
	if cfg.Watch.Dir == "" {
		fmt.Fprintln(os.Stderr, "no folder to watch; pass -dir or set WATCH_DIR")
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := config.NewLogger(cfg.LogLevel, os.Stderr)

	a, err := app.Build(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup failed: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := watch.New(cfg.Watch.Dir, a.Receiver, a.Pipeline, logger)
	w.Workers = *workers
	if err := w.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "watch failed: %v\n", err)
		os.Exit(1)
	}
}
