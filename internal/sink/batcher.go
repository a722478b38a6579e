package sink

import (
	"context"
	"log"
	"sync"

	"ctsentinel.dev/internal/ctrecord"
)

// Batcher accumulates records up to batchSize and flushes them to a Sink
// as a single bulk call. Safe for concurrent use: a Monitor's own
// goroutine calls Add, while Flush may be invoked from a shutdown path.
type Batcher struct {
	sink      Sink
	batchSize int

	mu      sync.Mutex
	pending []ctrecord.Certificate
}

// NewBatcher returns a Batcher that flushes automatically once pending
// reaches batchSize records.
func NewBatcher(s Sink, batchSize int) *Batcher {
	return &Batcher{sink: s, batchSize: batchSize}
}

// Add appends a record, flushing immediately if the batch is now full.
func (b *Batcher) Add(ctx context.Context, rec ctrecord.Certificate) {
	b.mu.Lock()
	b.pending = append(b.pending, rec)
	full := len(b.pending) >= b.batchSize
	b.mu.Unlock()

	if full {
		b.Flush(ctx)
	}
}

// Flush submits whatever is pending as one bulk call. On transport error
// the whole batch is discarded with a warning; on partial failure the
// failed count is logged but never retried, per spec.md §4.G.
func (b *Batcher) Flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	success, failed, err := b.sink.BulkIndex(ctx, batch)
	if err != nil {
		log.Printf("sink: bulk index of %d records failed, dropping batch: %v", len(batch), err)
		return
	}
	if failed > 0 {
		log.Printf("sink: bulk index partial failure: %d succeeded, %d failed", success, failed)
	}
}
