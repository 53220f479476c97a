// Package publish mirrors report artifacts to Google Cloud Storage.
package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

// GCSSink uploads files to a bucket under a fixed prefix.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSSink creates a sink for cfg. It returns nil, nil when no bucket
// is configured.
func NewGCSSink(ctx context.Context, cfg domain.PublishConfig) (*GCSSink, error) {
	if cfg.GCSBucket == "" {
		return nil, nil
	}

	var opts []option.ClientOption
	if cfg.GCSCredentialsFile != "" {
		creds, err := os.ReadFile(cfg.GCSCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("reading gcs credentials: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(creds))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}

	return &GCSSink{
		client: client,
		bucket: cfg.GCSBucket,
		prefix: cfg.GCSPrefix,
	}, nil
}

// ObjectName is the object key a local file is uploaded to.
func ObjectName(prefix, localPath string) string {
	name := filepath.Base(localPath)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Upload copies the file at localPath to gs://<bucket>/<prefix>/<name>.
func (s *GCSSink) Upload(ctx context.Context, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	object := ObjectName(s.prefix, localPath)
	wc := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	wc.ContentType = contentType(localPath)

	if _, err := io.Copy(wc, f); err != nil {
		wc.Close()
		return fmt.Errorf("uploading %s: %w", object, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("finalizing %s: %w", object, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSSink) Close() error {
	return s.client.Close()
}

func contentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
