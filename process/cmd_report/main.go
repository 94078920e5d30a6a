package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"platelog/pkg/config"
	"platelog/pkg/store"
	"platelog/process/report"
)

func main() {
	month := flag.String("month", time.Now().UTC().Format("2006-01"), "month to report (YYYY-MM)")
	list := flag.Bool("list", false, "list matching rows")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if cfg.Database.DSN == "" {
		fmt.Fprintln(os.Stderr, "DB_DSN not set; export DB_DSN and retry")
		os.Exit(2)
	}
	logger := config.NewLogger(cfg.LogLevel, os.Stderr)
	db, err := store.Open(cfg.Database.DSN, false, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	if _, err := report.Run(context.Background(), store.NewReadings(db), *month, *list, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "report failed: %v\n", err)
		os.Exit(1)
	}
}
