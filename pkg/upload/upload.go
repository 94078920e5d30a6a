package upload

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrNoFileProvided is returned when the request carries no file or an empty filename.
	ErrNoFileProvided = errors.New("no file provided")
	// ErrTooLarge is returned when the upload exceeds the configured size limit.
	ErrTooLarge = errors.New("file too large")
	// ErrUnsupportedType is returned when the content is not an image.
	ErrUnsupportedType = errors.New("unsupported file type")
)

// FormOverhead is the room left for multipart headers and other fields on top
// of the file size limit.
const FormOverhead = 1 << 20

// DefaultFields are the multipart field names accepted for the image, in order.
var DefaultFields = []string{"image", "file"}

// Image describes one stored upload.
type Image struct {
	ID           string
	OriginalName string
	FileName     string
	Path         string
	URL          string
	Size         int64
	ContentType  string
}

// Options configures a Receiver.
type Options struct {
	Dir          string
	URLPrefix    string
	MaxBytes     int64
	Quality      int
	MaxDimension int
}

// Receiver stores uploaded images in a single flat directory.
type Receiver struct {
	opts   Options
	logger *slog.Logger
}

// NewReceiver creates the upload directory and returns a Receiver writing into it.
func NewReceiver(opts Options, logger *slog.Logger) (*Receiver, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", opts.Dir, err)
	}
	if opts.Quality <= 0 {
		opts.Quality = 85
	}
	return &Receiver{opts: opts, logger: logger}, nil
}

// Dir returns the directory uploads are written to.
func (r *Receiver) Dir() string { return r.opts.Dir }

// LimitBody caps the request body at MaxBytes plus FormOverhead so an
// oversized upload fails while parsing instead of being spooled to disk.
func (r *Receiver) LimitBody(w http.ResponseWriter, req *http.Request) {
	if r.opts.MaxBytes > 0 {
		req.Body = http.MaxBytesReader(w, req.Body, r.opts.MaxBytes+FormOverhead)
	}
}

// FormFile returns the first non-empty file found under one of fields
// (DefaultFields when none are given).
func FormFile(req *http.Request, fields ...string) (*multipart.FileHeader, error) {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	if req.MultipartForm == nil {
		if err := req.ParseMultipartForm(32 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, fmt.Errorf("%w: request body over %d bytes", ErrTooLarge, tooLarge.Limit)
			}
			return nil, ErrNoFileProvided
		}
	}
	for _, f := range fields {
		headers := req.MultipartForm.File[f]
		if len(headers) > 0 && headers[0].Filename != "" {
			return headers[0], nil
		}
	}
	return nil, ErrNoFileProvided
}

// Save stores the uploaded file under a unique, sanitized name.
func (r *Receiver) Save(fh *multipart.FileHeader) (*Image, error) {
	if fh == nil || fh.Filename == "" {
		return nil, ErrNoFileProvided
	}
	if fh.Size > r.opts.MaxBytes && r.opts.MaxBytes > 0 {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, fh.Size, r.opts.MaxBytes)
	}
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()
	return r.store(src, fh.Filename)
}

// Import copies an existing file (e.g. from a watch folder) into the upload directory.
func (r *Receiver) Import(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() > r.opts.MaxBytes && r.opts.MaxBytes > 0 {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, info.Size(), r.opts.MaxBytes)
	}
	return r.store(f, filepath.Base(path))
}

func (r *Receiver) store(src io.Reader, original string) (*Image, error) {
	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return nil, fmt.Errorf("detect content type: %w", err)
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
	}
	// DetectReader consumed the header; rewind when possible.
	seeker, ok := src.(io.Seeker)
	if !ok {
		return nil, fmt.Errorf("upload source is not seekable")
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind upload: %w", err)
	}

	id := ulid.Make().String()
	name := id + "_" + SanitizeFilename(original)
	full := filepath.Join(r.opts.Dir, name)

	dst, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", full, err)
	}
	// MaxBytes <= 0 means no limit.
	limit := r.opts.MaxBytes
	body := src
	if limit > 0 {
		body = io.LimitReader(src, limit+1)
	}
	n, err := io.Copy(dst, body)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(full)
		return nil, fmt.Errorf("write %s: %w", full, err)
	}
	if limit > 0 && n > limit {
		_ = os.Remove(full)
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}

	if r.opts.MaxDimension > 0 {
		if size, err := Normalize(full, r.opts.MaxDimension, r.opts.Quality); err != nil {
			r.logger.Warn("image normalization skipped", "file", name, "error", err)
		} else {
			n = size
		}
	}

	img := &Image{
		ID:           id,
		OriginalName: original,
		FileName:     name,
		Path:         full,
		URL:          r.opts.URLPrefix + "/" + name,
		Size:         n,
		ContentType:  mtype.String(),
	}
	r.logger.Info("upload stored", "id", id, "original", original, "path", full, "bytes", n)
	return img, nil
}

// SanitizeFilename reduces a client supplied name to a safe base name made of
// letters, digits, '.', '-' and '_'. It never returns separators or "..".
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	for strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, "..", ".")
	}
	out = strings.TrimLeft(out, ".")
	if len(out) > 100 {
		ext := filepath.Ext(out)
		if len(ext) > 10 {
			ext = ""
		}
		out = out[:100-len(ext)] + ext
	}
	if strings.Trim(out, "_.") == "" {
		return "upload"
	}
	return out
}
