package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"platelog/pkg/app"
	"platelog/pkg/config"
	"platelog/pkg/store"
	"platelog/process/retry"
)

func main() {
	limit := flag.Int("limit", 100, "maximum readings to retry")
	dry := flag.Bool("dry-run", true, "dry-run: don't write to DB")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if cfg.Database.DSN == "" {
		fmt.Fprintln(os.Stderr, "DB_DSN not set; export and retry")
		os.Exit(2)
	}
	logger := config.NewLogger(cfg.LogLevel, os.Stderr)

	db, err := store.Open(cfg.Database.DSN, false, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}

	r := retry.New(cfg.Upload.Dir, store.NewReadings(db), app.NewRecognizer(cfg.OCR, logger), logger)
	r.DryRun = *dry
	rep, err := r.Run(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("scanned=%d updated=%d failed=%d\n", rep.Scanned, rep.Updated, rep.Failed)
}
