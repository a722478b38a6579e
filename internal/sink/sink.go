// Package sink defines the pluggable document-store contract and batches
// records for bulk delivery.
package sink

import (
	"context"

	"ctsentinel.dev/internal/ctrecord"
)

// Sink is the abstract document store the batcher flushes into. Per
// spec.md §9's design note, keeping this as a narrow interface makes the
// Monitor trivially testable against an in-memory implementation.
type Sink interface {
	BulkIndex(ctx context.Context, records []ctrecord.Certificate) (success, failed int, err error)
}
