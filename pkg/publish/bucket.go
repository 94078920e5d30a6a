package publish

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BucketOptions configures a Bucket publisher.
type BucketOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	URLExpiry time.Duration
}

// Bucket stores images in an S3 compatible bucket and returns a presigned
// download URL. The plate text travels as object metadata.
type Bucket struct {
	client *minio.Client
	opts   BucketOptions
	logger *slog.Logger
}

// NewBucket connects lazily; no request is made until Publish.
func NewBucket(opts BucketOptions, logger *slog.Logger) (*Bucket, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, ErrNotConfigured
	}
	if opts.URLExpiry <= 0 {
		opts.URLExpiry = 24 * time.Hour
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}
	return &Bucket{client: client, opts: opts, logger: logger}, nil
}

// Publish uploads the file under its stored name.
func (b *Bucket) Publish(ctx context.Context, sub Submission) (*Result, error) {
	key := objectKey(sub)
	info, err := b.client.FPutObject(ctx, b.opts.Bucket, key, sub.FilePath, minio.PutObjectOptions{
		ContentType:  contentTypeFor(key),
		UserMetadata: map[string]string{"plate-number": sub.Text},
	})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.StatusCode != 0 {
			return nil, &TransportError{StatusCode: resp.StatusCode, Body: resp.Message, Err: err}
		}
		return nil, &TransportError{Err: err}
	}
	u, err := b.client.PresignedGetObject(ctx, b.opts.Bucket, key, b.opts.URLExpiry, nil)
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}
	b.logger.Debug("object stored", "bucket", b.opts.Bucket, "key", key, "size", info.Size)
	return &Result{Success: true, URL: u.String(), StatusCode: 200}, nil
}

func objectKey(sub Submission) string {
	name := sub.FileName
	if name == "" {
		name = filepath.Base(sub.FilePath)
	}
	return "plates/" + strings.TrimLeft(name, "/")
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
