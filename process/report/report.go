// Package report summarizes stored plate readings for one calendar month.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"platelog/models"
)

// Source lists readings by creation time. *store.Readings satisfies it.
type Source interface {
	Between(ctx context.Context, start, end time.Time) ([]models.Reading, error)
}

// Summary counts the readings of a month.
type Summary struct {
	Month     string
	Total     int
	Detected  int
	Published int
	Failed    int
}

// MonthBounds parses YYYY-MM and returns the UTC start of that month and the next.
func MonthBounds(month string) (time.Time, time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month format, expected YYYY-MM: %w", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// Run writes the summary for month to w and, when list is set, one line per reading.
func Run(ctx context.Context, src Source, month string, list bool, w io.Writer) (Summary, error) {
	start, end, err := MonthBounds(month)
	if err != nil {
		return Summary{}, err
	}
	rows, err := src.Between(ctx, start, end)
	if err != nil {
		return Summary{}, fmt.Errorf("query failed: %w", err)
	}

	sum := Summary{Month: month, Total: len(rows)}
	for _, r := range rows {
		if r.Detected {
			sum.Detected++
		}
		if r.RemoteURL != "" {
			sum.Published++
		}
		if r.Error != "" {
			sum.Failed++
		}
	}

	fmt.Fprintf(w, "Report for month=%s (UTC):\n", month)
	fmt.Fprintf(w, "  readings=%d detected=%d published=%d with_errors=%d\n", sum.Total, sum.Detected, sum.Published, sum.Failed)
	if list {
		for _, r := range rows {
			fmt.Fprintf(w, "%d|%s|%s|%t|%s\n", r.ID, r.FileName, r.PlateNumber, r.Detected, r.CreatedAt.Format(time.RFC3339))
		}
	}
	return sum, nil
}
