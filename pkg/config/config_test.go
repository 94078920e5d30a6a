package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "5000" {
		t.Errorf("Port = %q, expected 5000", cfg.Port)
	}
	if cfg.Upload.MaxBytes != 10<<20 {
		t.Errorf("MaxBytes = %d, expected %d", cfg.Upload.MaxBytes, 10<<20)
	}
	if cfg.OCR.Endpoint != "https://api.ocr.space/parse/image" {
		t.Errorf("unexpected OCR endpoint %q", cfg.OCR.Endpoint)
	}
	if cfg.OCR.Timeout != 30*time.Second {
		t.Errorf("OCR timeout = %v", cfg.OCR.Timeout)
	}
	if cfg.OCR.APIKey != "" || cfg.Publish.URL != "" || cfg.Auth.JWTSecret != "" {
		t.Errorf("credentials must not have defaults: %+v", cfg)
	}
	if cfg.HistoryEnabled() {
		t.Errorf("history should be disabled without DB_DSN and JWT_SECRET")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("OCR_API_KEY", "k-123")
	t.Setenv("OCR_ENGINE", "Tesseract")
	t.Setenv("MAX_IMAGE_SIZE_MB", "2")
	t.Setenv("PUBLISH_TIMEOUT", "5s")
	t.Setenv("UPLOAD_URL_PREFIX", "/files/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8081" || cfg.OCR.APIKey != "k-123" {
		t.Errorf("env not applied: port=%q key=%q", cfg.Port, cfg.OCR.APIKey)
	}
	if cfg.OCR.Engine != "tesseract" {
		t.Errorf("engine should be lower-cased, got %q", cfg.OCR.Engine)
	}
	if cfg.Upload.MaxBytes != 2<<20 {
		t.Errorf("MaxBytes = %d", cfg.Upload.MaxBytes)
	}
	if cfg.Publish.Timeout != 5*time.Second {
		t.Errorf("publish timeout = %v", cfg.Publish.Timeout)
	}
	if cfg.Upload.URLPrefix != "/files" {
		t.Errorf("URLPrefix = %q", cfg.Upload.URLPrefix)
	}
}

func TestLoadDisabledGoogleIntegration(t *testing.T) {
	t.Setenv("ENABLE_GOOGLE_INTEGRATION", "false")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Publish.Backend != "none" {
		t.Errorf("Backend = %q, expected none", cfg.Publish.Backend)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platelog.yaml")
	content := "port: \"9090\"\nsheet_name: Gate A\npublish_schema: json-v3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SHEET_NAME", "Gate B")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, expected value from file", cfg.Port)
	}
	if cfg.Publish.Schema != "json-v3" {
		t.Errorf("Schema = %q", cfg.Publish.Schema)
	}
	if cfg.Publish.SheetName != "Gate B" {
		t.Errorf("environment should win over file, got %q", cfg.Publish.SheetName)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"OCR_ENGINE", "paddle"},
		{"PUBLISH_BACKEND", "ftp"},
		{"IMAGE_QUALITY", "0"},
		{"MAX_IMAGE_SIZE_MB", "-1"},
		{"UPLOAD_URL_PREFIX", "/"},
		{"UPLOAD_URL_PREFIX", "uploads"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestValidateRejectsWatchInsideUploads(t *testing.T) {
	base := t.TempDir()
	uploads := filepath.Join(base, "uploads")
	tests := []struct {
		watch string
		ok    bool
	}{
		{uploads, false},
		{uploads + "/", false},
		{filepath.Join(uploads, "incoming"), false},
		{base, false},
		{filepath.Join(base, "incoming"), true},
		{filepath.Join(base, "uploads-inbox"), true},
	}
	for _, tt := range tests {
		t.Run(tt.watch, func(t *testing.T) {
			t.Setenv("UPLOAD_DIR", uploads)
			t.Setenv("WATCH_DIR", tt.watch)
			_, err := Load()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Errorf("expected WATCH_DIR=%s to be rejected", tt.watch)
			}
		})
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "key=value") {
		t.Errorf("warn line missing: %s", out)
	}
}
