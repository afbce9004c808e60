//go:build gcp

package archive

import "context"

func newGCSExporter(ctx context.Context, cfg BackendConfig) (Exporter, error) {
	return NewGCSExporter(ctx, GCSExporterConfig{
		Bucket: cfg.Bucket,
		Prefix: cfg.Prefix,
	})
}
