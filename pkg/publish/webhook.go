package publish

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"platelog/pkg/textutil"
)

// WebhookOptions configures a Webhook publisher.
type WebhookOptions struct {
	URL         string
	Schema      Schema
	Timeout     time.Duration
	Destination Destination
}

// Webhook posts the image and plate text to an automation endpoint such as a
// Google Apps Script web app that files the image in Drive and appends a
// Sheet row.
type Webhook struct {
	opts       WebhookOptions
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebhook returns a Webhook publisher; the default timeout is 60 seconds.
func NewWebhook(opts WebhookOptions, logger *slog.Logger) *Webhook {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Schema == "" {
		opts.Schema = SchemaFormV1
	}
	return &Webhook{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger,
	}
}

// Publish reads the file, base64-encodes it and posts it with the text.
func (w *Webhook) Publish(ctx context.Context, sub Submission) (*Result, error) {
	if strings.TrimSpace(w.opts.URL) == "" {
		return nil, ErrNotConfigured
	}
	data, err := os.ReadFile(sub.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	name := sub.FileName
	if name == "" {
		name = filepath.Base(sub.FilePath)
	}
	body, contentType, err := w.opts.Schema.encode(payload{
		ImageBase64: base64.StdEncoding.EncodeToString(data),
		FileName:    name,
		PlateNumber: sub.Text,
	}, w.opts.Destination)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.opts.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Result{StatusCode: resp.StatusCode, Raw: string(respBody)},
			&TransportError{StatusCode: resp.StatusCode, Body: textutil.Snippet(strings.TrimSpace(string(respBody)), 300)}
	}
	res, err := interpret(resp.StatusCode, respBody)
	w.logger.Debug("webhook response", "schema", w.opts.Schema, "status", resp.StatusCode, "elapsed", time.Since(start), "success", err == nil)
	return res, err
}
