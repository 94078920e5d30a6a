// Package app assembles the configured components shared by the server and
// the background commands.
package app

import (
	"fmt"
	"log/slog"

	"platelog/pkg/config"
	"platelog/pkg/events"
	"platelog/pkg/ocr"
	"platelog/pkg/ocr/tesseract"
	"platelog/pkg/pipeline"
	"platelog/pkg/publish"
	"platelog/pkg/store"
	"platelog/pkg/upload"
)

// App holds every component built from a Config.
type App struct {
	Config     config.Config
	Logger     *slog.Logger
	Receiver   *upload.Receiver
	Recognizer ocr.Recognizer
	Publisher  publish.Publisher
	Readings   *store.Readings // nil without DB_DSN
	Pipeline   *pipeline.Pipeline

	closers []func() error
}

// Build wires the components. A missing database or broker is not fatal:
// the service keeps working without history or events and says so in the log.
func Build(cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	recv, err := upload.NewReceiver(upload.Options{
		Dir:          cfg.Upload.Dir,
		URLPrefix:    cfg.Upload.URLPrefix,
		MaxBytes:     cfg.Upload.MaxBytes,
		Quality:      cfg.Upload.Quality,
		MaxDimension: cfg.Upload.MaxDimension,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.Receiver = recv

	a.Recognizer = NewRecognizer(cfg.OCR, logger)
	if a.Publisher, err = NewPublisher(cfg.Publish, logger); err != nil {
		return nil, err
	}

	var recorder pipeline.Recorder
	if cfg.Database.DSN != "" {
		db, err := store.Open(cfg.Database.DSN, cfg.Database.AutoMigrate, logger)
		if err != nil {
			logger.Error("database unavailable, history disabled", "error", err)
		} else {
			a.Readings = store.NewReadings(db)
			recorder = a.Readings
			if sqlDB, err := db.DB(); err == nil {
				a.closers = append(a.closers, sqlDB.Close)
			}
		}
	}

	var notifier pipeline.Notifier = events.Discard{}
	if cfg.Events.AMQPURL != "" {
		mq, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Queue)
		if err != nil {
			logger.Error("message broker unavailable, events disabled", "error", err)
		} else {
			notifier = mq
			a.closers = append(a.closers, mq.Close)
		}
	}

	a.Pipeline = pipeline.New(a.Recognizer, a.Publisher, recorder, notifier, logger)
	logger.Info("components ready",
		"ocr_engine", cfg.OCR.Engine, "publish_backend", cfg.Publish.Backend,
		"history", a.Readings != nil, "events", cfg.Events.AMQPURL != "")
	return a, nil
}

// Close releases database and broker connections.
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.Logger.Warn("close failed", "error", err)
		}
	}
}

// NewRecognizer returns the OCR engine named by cfg.Engine.
func NewRecognizer(cfg config.OCR, logger *slog.Logger) ocr.Recognizer {
	if cfg.Engine == "tesseract" {
		return tesseract.New(cfg.Language, logger)
	}
	return ocr.NewClient(ocr.Options{
		APIKey:        cfg.APIKey,
		Endpoint:      cfg.Endpoint,
		Language:      cfg.Language,
		EngineVersion: cfg.EngineVersion,
		Timeout:       cfg.Timeout,
	}, logger)
}

// NewPublisher returns the remote storage backend named by cfg.Backend.
func NewPublisher(cfg config.Publish, logger *slog.Logger) (publish.Publisher, error) {
	switch cfg.Backend {
	case "none":
		return publish.Disabled{}, nil
	case "s3":
		return publish.NewBucket(publish.BucketOptions{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
			URLExpiry: cfg.S3.URLExpiry,
		}, logger)
	case "webhook":
		schema, err := publish.ParseSchema(cfg.Schema)
		if err != nil {
			return nil, err
		}
		return publish.NewWebhook(publish.WebhookOptions{
			URL:     cfg.URL,
			Schema:  schema,
			Timeout: cfg.Timeout,
			Destination: publish.Destination{
				FolderID:      cfg.DriveFolderID,
				SpreadsheetID: cfg.SpreadsheetID,
				SheetName:     cfg.SheetName,
			},
		}, logger), nil
	}
	return nil, fmt.Errorf("unknown publish backend %q", cfg.Backend)
}
