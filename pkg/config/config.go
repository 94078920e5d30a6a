package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting the server and the background processes need.
// It is built once by Load and passed down explicitly.
type Config struct {
	Port     string
	LogLevel string

	Upload    Upload
	OCR       OCR
	Publish   Publish
	Events    Events
	Database  Database
	Auth      Auth
	Watch     Watch
	Retention Retention
}

type Upload struct {
	Dir          string
	URLPrefix    string
	MaxBytes     int64
	Quality      int
	MaxDimension int
}

type OCR struct {
	Engine        string // "ocrspace" or "tesseract"
	APIKey        string `json:"-"`
	Endpoint      string
	Language      string
	EngineVersion int
	Timeout       time.Duration
}

type Publish struct {
	Backend       string // "webhook", "s3" or "none"
	URL           string
	Schema        string
	Timeout       time.Duration
	DriveFolderID string
	SpreadsheetID string
	SheetName     string
	S3            S3
}

type S3 struct {
	Endpoint  string
	AccessKey string `json:"-"`
	SecretKey string `json:"-"`
	Bucket    string
	Region    string
	UseSSL    bool
	URLExpiry time.Duration
}

type Events struct {
	AMQPURL string `json:"-"`
	Queue   string
}

type Database struct {
	DSN         string `json:"-"`
	AutoMigrate bool
}

type Auth struct {
	JWTSecret         string `json:"-"`
	AdminUser         string
	AdminPasswordHash string `json:"-"`
}

type Watch struct {
	Dir string
}

type Retention struct {
	MaxAge   time.Duration
	Schedule string
}

// HistoryEnabled reports whether the reading history API can be served.
func (c Config) HistoryEnabled() bool {
	return c.Database.DSN != "" && c.Auth.JWTSecret != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "5000")
	v.SetDefault("log_level", "info")

	v.SetDefault("upload_dir", "static/uploads")
	v.SetDefault("upload_url_prefix", "/static/uploads")
	v.SetDefault("max_image_size_mb", 10)
	v.SetDefault("image_quality", 85)
	v.SetDefault("image_max_dimension", 0)

	v.SetDefault("ocr_engine", "ocrspace")
	v.SetDefault("ocr_api_key", "")
	v.SetDefault("ocr_endpoint", "https://api.ocr.space/parse/image")
	v.SetDefault("ocr_language", "eng")
	v.SetDefault("ocr_engine_version", 2)
	v.SetDefault("ocr_timeout", "30s")

	v.SetDefault("publish_backend", "webhook")
	v.SetDefault("google_apps_script_url", "")
	v.SetDefault("publish_schema", "form-v1")
	v.SetDefault("publish_timeout", "60s")
	v.SetDefault("enable_google_integration", true)
	v.SetDefault("drive_folder_id", "")
	v.SetDefault("spreadsheet_id", "")
	v.SetDefault("sheet_name", "License Plates")

	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_access_key", "")
	v.SetDefault("s3_secret_key", "")
	v.SetDefault("s3_bucket", "")
	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("s3_use_ssl", true)
	v.SetDefault("s3_url_expiry", "24h")

	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_queue", "plate_readings")

	v.SetDefault("db_dsn", "")
	v.SetDefault("db_auto_migrate", true)

	v.SetDefault("jwt_secret", "")
	v.SetDefault("admin_user", "admin")
	v.SetDefault("admin_password_hash", "")

	v.SetDefault("watch_dir", "")
	v.SetDefault("retention_max_age", "0s")
	v.SetDefault("retention_schedule", "@every 1h")
}

// Load reads .env (if present), an optional YAML file named by CONFIG_FILE and
// the environment, in that order of increasing priority.
func Load() (Config, error) {
	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", file, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:     v.GetString("port"),
		LogLevel: strings.ToLower(v.GetString("log_level")),
		Upload: Upload{
			Dir:          v.GetString("upload_dir"),
			URLPrefix:    strings.TrimRight(v.GetString("upload_url_prefix"), "/"),
			MaxBytes:     v.GetInt64("max_image_size_mb") << 20,
			Quality:      v.GetInt("image_quality"),
			MaxDimension: v.GetInt("image_max_dimension"),
		},
		OCR: OCR{
			Engine:        strings.ToLower(v.GetString("ocr_engine")),
			APIKey:        v.GetString("ocr_api_key"),
			Endpoint:      v.GetString("ocr_endpoint"),
			Language:      v.GetString("ocr_language"),
			EngineVersion: v.GetInt("ocr_engine_version"),
			Timeout:       v.GetDuration("ocr_timeout"),
		},
		Publish: Publish{
			Backend:       strings.ToLower(v.GetString("publish_backend")),
			URL:           v.GetString("google_apps_script_url"),
			Schema:        strings.ToLower(v.GetString("publish_schema")),
			Timeout:       v.GetDuration("publish_timeout"),
			DriveFolderID: v.GetString("drive_folder_id"),
			SpreadsheetID: v.GetString("spreadsheet_id"),
			SheetName:     v.GetString("sheet_name"),
			S3: S3{
				Endpoint:  v.GetString("s3_endpoint"),
				AccessKey: v.GetString("s3_access_key"),
				SecretKey: v.GetString("s3_secret_key"),
				Bucket:    v.GetString("s3_bucket"),
				Region:    v.GetString("s3_region"),
				UseSSL:    v.GetBool("s3_use_ssl"),
				URLExpiry: v.GetDuration("s3_url_expiry"),
			},
		},
		Events: Events{
			AMQPURL: v.GetString("amqp_url"),
			Queue:   v.GetString("amqp_queue"),
		},
		Database: Database{
			DSN:         v.GetString("db_dsn"),
			AutoMigrate: v.GetBool("db_auto_migrate"),
		},
		Auth: Auth{
			JWTSecret:         v.GetString("jwt_secret"),
			AdminUser:         v.GetString("admin_user"),
			AdminPasswordHash: v.GetString("admin_password_hash"),
		},
		Watch: Watch{
			Dir: v.GetString("watch_dir"),
		},
		Retention: Retention{
			MaxAge:   v.GetDuration("retention_max_age"),
			Schedule: v.GetString("retention_schedule"),
		},
	}
	if !v.GetBool("enable_google_integration") && cfg.Publish.Backend == "webhook" {
		cfg.Publish.Backend = "none"
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings that cannot work at all. Missing credentials are
// not an error here; the clients report them when they are used.
func (c Config) Validate() error {
	switch c.OCR.Engine {
	case "ocrspace", "tesseract":
	default:
		return fmt.Errorf("unknown OCR_ENGINE %q", c.OCR.Engine)
	}
	switch c.Publish.Backend {
	case "webhook", "s3", "none":
	default:
		return fmt.Errorf("unknown PUBLISH_BACKEND %q", c.Publish.Backend)
	}
	if c.Upload.Dir == "" {
		return fmt.Errorf("UPLOAD_DIR must not be empty")
	}
	if !strings.HasPrefix(c.Upload.URLPrefix, "/") || c.Upload.URLPrefix == "/static" {
		return fmt.Errorf("UPLOAD_URL_PREFIX must be a path below / other than /static, got %q", c.Upload.URLPrefix)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("MAX_IMAGE_SIZE_MB must be positive")
	}
	if c.Upload.Quality < 1 || c.Upload.Quality > 100 {
		return fmt.Errorf("IMAGE_QUALITY must be between 1 and 100, got %d", c.Upload.Quality)
	}
	if c.Watch.Dir != "" && overlaps(c.Watch.Dir, c.Upload.Dir) {
		// imported copies would land in the watched folder and be picked up again
		return fmt.Errorf("WATCH_DIR %q must not overlap UPLOAD_DIR %q", c.Watch.Dir, c.Upload.Dir)
	}
	return nil
}

// overlaps reports whether one directory is the other or lies inside it.
func overlaps(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return within(absA, absB) || within(absB, absA)
}

func within(dir, parent string) bool {
	rel, err := filepath.Rel(parent, dir)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// NewLogger returns a text slog logger writing to w at the configured level.
func NewLogger(level string, w io.Writer) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}
