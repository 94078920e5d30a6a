// Package pipeline runs one received image through recognition, remote
// storage and bookkeeping, and reports what happened.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"platelog/models"
	"platelog/pkg/events"
	"platelog/pkg/ocr"
	"platelog/pkg/publish"
	"platelog/pkg/upload"
)

// NotDetected replaces the plate text when recognition fails or finds nothing.
const NotDetected = "Not Detected"

// Recorder persists a reading. *store.Readings satisfies it.
type Recorder interface {
	Record(ctx context.Context, r *models.Reading) error
}

// Notifier announces a reading. *events.AMQP and events.Discard satisfy it.
type Notifier interface {
	Notify(ctx context.Context, ev events.Event) error
}

// Stage is how far an upload got through the pipeline.
type Stage int

const (
	StageFileReceived Stage = iota
	StageOCRAttempted
	StageStorageAttempted
	StageRendered
)

func (s Stage) String() string {
	switch s {
	case StageFileReceived:
		return "file_received"
	case StageOCRAttempted:
		return "ocr_attempted"
	case StageStorageAttempted:
		return "storage_attempted"
	case StageRendered:
		return "rendered"
	}
	return "unknown"
}

// Outcome is the result rendered back to the client.
type Outcome struct {
	Stage       Stage
	Image       *upload.Image
	PlateNumber string
	Detected    bool
	ImageURL    string
	RemoteURL   string
	Error       string
}

type Pipeline struct {
	ocr       ocr.Recognizer
	publisher publish.Publisher
	recorder  Recorder
	notifier  Notifier
	logger    *slog.Logger
}

// New builds a pipeline. recorder and notifier may be nil.
func New(rec ocr.Recognizer, pub publish.Publisher, recorder Recorder, notifier Notifier, logger *slog.Logger) *Pipeline {
	if pub == nil {
		pub = publish.Disabled{}
	}
	if notifier == nil {
		notifier = events.Discard{}
	}
	return &Pipeline{ocr: rec, publisher: pub, recorder: recorder, notifier: notifier, logger: logger}
}

// Process recognizes the plate in img and forwards it to the publisher.
// Remote storage is attempted even when recognition fails; failures are
// collected into Outcome.Error rather than aborting.
func (p *Pipeline) Process(ctx context.Context, img *upload.Image) *Outcome {
	out := &Outcome{Stage: StageFileReceived, Image: img, ImageURL: img.URL, PlateNumber: NotDetected}
	var problems []string

	text, err := p.recognize(ctx, img.Path)
	out.Stage = StageOCRAttempted
	switch {
	case err != nil:
		problems = append(problems, fmt.Sprintf("OCR failed: %v", err))
		p.logger.Warn("ocr failed", "upload", img.ID, "error", err)
	case text == "":
		p.logger.Info("no plate text found", "upload", img.ID)
	default:
		out.PlateNumber = text
		out.Detected = true
		p.logger.Debug("plate recognized", "upload", img.ID, "plate", text)
	}

	res, err := p.publisher.Publish(ctx, publish.Submission{
		Text:     out.PlateNumber,
		FilePath: img.Path,
		FileName: img.FileName,
	})
	out.Stage = StageStorageAttempted
	switch {
	case errors.Is(err, publish.ErrDisabled):
	case err != nil:
		problems = append(problems, fmt.Sprintf("Drive upload failed: %v", err))
		p.logger.Warn("remote storage failed", "upload", img.ID, "error", err)
	case res != nil:
		out.RemoteURL = res.URL
		p.logger.Debug("remote storage done", "upload", img.ID, "url", res.URL)
	}

	out.Error = strings.Join(problems, " | ")
	p.logger.Info("upload processed",
		"upload", img.ID, "plate", out.PlateNumber, "detected", out.Detected,
		"remote_url", out.RemoteURL, "error", out.Error)

	p.record(ctx, out)
	p.notify(ctx, out)
	return out
}

func (p *Pipeline) recognize(ctx context.Context, path string) (string, error) {
	if p.ocr == nil {
		return "", ocr.ErrNotConfigured
	}
	text, err := p.ocr.Recognize(ctx, path)
	if err != nil {
		return "", err
	}
	return ocr.NormalizeText(text), nil
}

func (p *Pipeline) record(ctx context.Context, out *Outcome) {
	if p.recorder == nil {
		return
	}
	r := &models.Reading{
		UploadID:     out.Image.ID,
		OriginalName: out.Image.OriginalName,
		FileName:     out.Image.FileName,
		ImageURL:     out.ImageURL,
		PlateNumber:  out.PlateNumber,
		Detected:     out.Detected,
		RemoteURL:    out.RemoteURL,
		Error:        out.Error,
	}
	r.Fit()
	if err := p.recorder.Record(ctx, r); err != nil {
		p.logger.Error("failed to record reading", "upload", out.Image.ID, "error", err)
		return
	}
	p.logger.Debug("reading recorded", "upload", out.Image.ID, "id", r.ID)
}

func (p *Pipeline) notify(ctx context.Context, out *Outcome) {
	ev := events.Event{
		UploadID:    out.Image.ID,
		PlateNumber: out.PlateNumber,
		Detected:    out.Detected,
		ImageURL:    out.ImageURL,
		RemoteURL:   out.RemoteURL,
		Error:       out.Error,
		At:          time.Now().UTC(),
	}
	if err := p.notifier.Notify(ctx, ev); err != nil {
		p.logger.Error("failed to publish event", "upload", out.Image.ID, "error", err)
		return
	}
	p.logger.Debug("event published", "upload", out.Image.ID)
}
