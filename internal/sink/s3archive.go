package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ctsentinel.dev/internal/ctrecord"
	"ctsentinel.dev/internal/objectstore"
)

// S3ArchiveSink writes each flushed batch as one newline-delimited-JSON
// object, an alternative to the document store per spec.md §9's "message
// bus tomorrow" design note.
type S3ArchiveSink struct {
	storage objectstore.Storage
	prefix  string
}

// NewS3ArchiveSink returns a sink that writes batches under prefix.
func NewS3ArchiveSink(storage objectstore.Storage, prefix string) *S3ArchiveSink {
	return &S3ArchiveSink{storage: storage, prefix: prefix}
}

func (s *S3ArchiveSink) BulkIndex(ctx context.Context, records []ctrecord.Certificate) (success, failed int, err error) {
	if len(records) == 0 {
		return 0, 0, nil
	}

	var buf bytes.Buffer
	logName := records[0].Source.Name
	for _, rec := range records {
		if err := json.NewEncoder(&buf).Encode(rec); err != nil {
			return 0, len(records), fmt.Errorf("sink: encode record: %w", err)
		}
	}

	key := objectstore.ArchiveKey(s.prefix, logName, time.Now())
	if err := s.storage.Set(ctx, key, buf.Bytes()); err != nil {
		return 0, len(records), fmt.Errorf("sink: write archive object: %w", err)
	}
	return len(records), 0, nil
}
