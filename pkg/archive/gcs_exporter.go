//go:build gcp

package archive

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSExporter implements Exporter using Google Cloud Storage.
type GCSExporter struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSExporterConfig holds configuration for GCSExporter.
type GCSExporterConfig struct {
	Bucket string
	Prefix string
}

// NewGCSExporter creates a new GCS-backed archive exporter.
// The client uses Application Default Credentials.
func NewGCSExporter(ctx context.Context, cfg GCSExporterConfig) (*GCSExporter, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSExporter{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Export uploads the serialized output. Writes are idempotent: an
// existing object under the same key is left in place.
func (e *GCSExporter) Export(ctx context.Context, key string, data []byte) error {
	obj := e.client.Bucket(e.bucket).Object(e.prefix + key)

	if _, err := obj.Attrs(ctx); err == nil {
		return nil
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close failed: %w", err)
	}
	return nil
}
