// Package retry re-runs recognition for stored readings whose plate was not
// detected the first time.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"platelog/models"
	"platelog/pkg/ocr"
)

// Store is the part of the reading repository retry needs. *store.Readings satisfies it.
type Store interface {
	Undetected(ctx context.Context, limit int) ([]models.Reading, error)
	UpdatePlate(ctx context.Context, id uint, plate string, detected bool) error
}

// Report counts what a run did.
type Report struct {
	Scanned int
	Updated int
	Failed  int
}

// Runner retries recognition on images stored in Dir.
type Runner struct {
	Dir    string
	DryRun bool
	store  Store
	ocr    ocr.Recognizer
	logger *slog.Logger
}

func New(dir string, st Store, rec ocr.Recognizer, logger *slog.Logger) *Runner {
	return &Runner{Dir: dir, store: st, ocr: rec, logger: logger}
}

// Run processes up to limit undetected readings, oldest first.
func (r *Runner) Run(ctx context.Context, limit int) (Report, error) {
	var rep Report
	readings, err := r.store.Undetected(ctx, limit)
	if err != nil {
		return rep, fmt.Errorf("query undetected readings: %w", err)
	}
	for _, rd := range readings {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Scanned++
		path := filepath.Join(r.Dir, filepath.Base(rd.FileName))
		text, err := r.recognize(ctx, path)
		if err != nil {
			rep.Failed++
			r.logger.Warn("retry ocr failed", "id", rd.ID, "file", rd.FileName, "error", err)
			continue
		}
		if text == "" {
			r.logger.Info("still no plate", "id", rd.ID, "file", rd.FileName)
			continue
		}
		if r.DryRun {
			fmt.Printf("DRY: would update reading id=%d file=%s plate=%q\n", rd.ID, rd.FileName, text)
			continue
		}
		if err := r.store.UpdatePlate(ctx, rd.ID, text, true); err != nil {
			rep.Failed++
			r.logger.Error("failed to update reading", "id", rd.ID, "error", err)
			continue
		}
		rep.Updated++
		r.logger.Info("reading updated", "id", rd.ID, "file", rd.FileName, "plate", text)
	}
	return rep, nil
}

// recognize sharpens and boosts contrast into a temporary copy before OCR.
func (r *Runner) recognize(ctx context.Context, path string) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", err
	}
	proc := imaging.Sharpen(img, 2.0)
	proc = imaging.AdjustContrast(proc, 30)
	tmp := strings.TrimSuffix(path, filepath.Ext(path)) + ".retry.png"
	if err := imaging.Save(proc, tmp); err != nil {
		return "", fmt.Errorf("save %s: %w", tmp, err)
	}
	defer os.Remove(tmp)

	text, err := r.ocr.Recognize(ctx, tmp)
	if err != nil {
		return "", err
	}
	return ocr.NormalizeText(text), nil
}
