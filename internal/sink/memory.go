package sink

import (
	"context"
	"sync"

	"ctsentinel.dev/internal/ctrecord"
)

// MemorySink accumulates every indexed record in process memory. Used for
// local smoke-testing (SINK_KIND=memory) and by the Monitor's own tests.
type MemorySink struct {
	mu      sync.Mutex
	records []ctrecord.Certificate
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) BulkIndex(ctx context.Context, records []ctrecord.Certificate) (success, failed int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return len(records), 0, nil
}

// Records returns a snapshot of every record indexed so far.
func (m *MemorySink) Records() []ctrecord.Certificate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ctrecord.Certificate, len(m.records))
	copy(out, m.records)
	return out
}
