package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"platelog/pkg/textutil"
)

// DefaultEndpoint is the public OCR.Space parse endpoint.
const DefaultEndpoint = "https://api.ocr.space/parse/image"

// Recognizer extracts text from an image stored on disk.
type Recognizer interface {
	Recognize(ctx context.Context, path string) (string, error)
}

// Options configures the OCR.Space client.
type Options struct {
	APIKey        string
	Endpoint      string
	Language      string
	EngineVersion int
	Timeout       time.Duration
}

// Client talks to the OCR.Space HTTP API.
type Client struct {
	opts       Options
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an OCR.Space client. Zero option values fall back to the
// service defaults (english, engine 2, 30 second timeout).
func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Language == "" {
		opts.Language = "eng"
	}
	if opts.EngineVersion == 0 {
		opts.EngineVersion = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger,
	}
}

// parseResponse mirrors the subset of the OCR.Space response we rely on.
type parseResponse struct {
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
	ErrorDetails          json.RawMessage `json:"ErrorDetails"`
	ParsedResults         []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
}

// Recognize uploads the image at path and returns the first parsed text,
// trimmed. An empty string means the service found no text.
func (c *Client) Recognize(ctx context.Context, path string) (string, error) {
	if c.opts.APIKey == "" {
		return "", ErrNotConfigured
	}
	body, contentType, err := c.buildForm(path)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, body)
	if err != nil {
		return "", fmt.Errorf("create ocr request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &TransportError{StatusCode: resp.StatusCode, Body: textutil.Snippet(strings.TrimSpace(string(raw)), 300)}
	}

	var parsed parseResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &ServiceError{Message: fmt.Sprintf("unreadable response: %s", textutil.Snippet(string(raw), 200))}
	}
	if parsed.IsErroredOnProcessing {
		msg := flattenMessage(parsed.ErrorMessage)
		if msg == "" {
			msg = flattenMessage(parsed.ErrorDetails)
		}
		if msg == "" {
			msg = "unknown error"
		}
		return "", &ServiceError{Message: msg}
	}

	text := ""
	if len(parsed.ParsedResults) > 0 {
		text = strings.TrimSpace(parsed.ParsedResults[0].ParsedText)
	}
	c.logger.Debug("ocr.space response", "file", filepath.Base(path), "elapsed", time.Since(start), "text", textutil.Snippet(text, 80))
	return text, nil
}

func (c *Client) buildForm(path string) (*bytes.Buffer, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("failed to copy file data: %w", err)
	}
	fields := [][2]string{
		{"apikey", c.opts.APIKey},
		{"language", c.opts.Language},
		{"isOverlayRequired", "false"},
		{"OCREngine", strconv.Itoa(c.opts.EngineVersion)},
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}
