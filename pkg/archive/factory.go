package archive

import (
	"context"
	"fmt"
)

// BackendConfig selects and configures an archive backend.
type BackendConfig struct {
	Backend string // "s3" | "gcs" | "none"
	Bucket  string
	Region  string
	Prefix  string
}

// NewExporter creates an exporter for the configured backend.
// Backend "none" returns a discard exporter.
func NewExporter(ctx context.Context, cfg BackendConfig) (Exporter, error) {
	switch cfg.Backend {
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("archive: s3 backend requires a bucket")
		}
		return NewS3Exporter(ctx, S3ExporterConfig{
			Bucket: cfg.Bucket,
			Region: cfg.Region,
			Prefix: cfg.Prefix,
		})
	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("archive: gcs backend requires a bucket")
		}
		return newGCSExporter(ctx, cfg)
	case "", "none":
		return Discard(), nil
	default:
		return nil, fmt.Errorf("archive: unknown backend %q", cfg.Backend)
	}
}

// Discard returns an exporter that drops all outputs.
func Discard() Exporter {
	return discardExporter{}
}

type discardExporter struct{}

func (discardExporter) Export(context.Context, string, []byte) error { return nil }
