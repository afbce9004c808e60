//go:build !gcp

package archive

import (
	"context"
	"fmt"
)

func newGCSExporter(ctx context.Context, cfg BackendConfig) (Exporter, error) {
	return nil, fmt.Errorf("GCS archive is not enabled in this build (use -tags gcp)")
}
