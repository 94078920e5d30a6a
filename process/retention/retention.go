// Package retention deletes stored uploads once they are older than a
// configured age.
package retention

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweep removes regular files in dir last modified before now-maxAge and
// returns how many were removed. Subdirectories are left alone.
func Sweep(dir string, maxAge time.Duration, now time.Time, logger *slog.Logger) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read dir: %w", err)
	}
	cutoff := now.Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			logger.Warn("retention: remove failed", "file", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("retention sweep", "dir", dir, "removed", removed, "max_age", maxAge)
	}
	return removed, nil
}

// Start schedules Sweep on schedule (cron syntax or "@every 1h") and starts
// the scheduler. Stop the returned Cron to end it.
func Start(schedule, dir string, maxAge time.Duration, logger *slog.Logger) (*cron.Cron, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention max age must be positive, got %s", maxAge)
	}
	c := cron.New()
	var job cron.Job = cron.FuncJob(func() {
		if _, err := Sweep(dir, maxAge, time.Now(), logger); err != nil {
			logger.Error("retention sweep failed", "error", err)
		}
	})
	job = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(job)
	if _, err := c.AddJob(schedule, job); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	c.Start()
	logger.Info("retention scheduled", "schedule", schedule, "dir", dir, "max_age", maxAge)
	return c, nil
}
