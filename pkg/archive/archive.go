// Package archive exports finalized execution outputs to durable
// object storage for offline review and retention.
package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aegisflow/trustplane/pkg/span"
)

// Exporter persists a serialized execution output under a storage key.
type Exporter interface {
	Export(ctx context.Context, key string, data []byte) error
}

// Key returns the canonical object key for an execution output.
func Key(prefix, executionID string) string {
	return prefix + "executions/" + executionID + ".json"
}

// Output serializes a finalized execution output and exports it.
func Output(ctx context.Context, exporter Exporter, out *span.Output) error {
	if out == nil || out.RepoSpan == nil {
		return fmt.Errorf("archive: output has no repo span")
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("archive: marshal output: %w", err)
	}

	key := Key("", out.ExecutionID)
	if err := exporter.Export(ctx, key, data); err != nil {
		return fmt.Errorf("archive: export %s: %w", key, err)
	}
	return nil
}
