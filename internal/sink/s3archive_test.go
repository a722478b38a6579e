package sink

import (
	"context"
	"testing"

	"ctsentinel.dev/internal/ctrecord"
	"ctsentinel.dev/internal/objectstore"
)

func TestS3ArchiveSinkWritesOneObjectPerBatch(t *testing.T) {
	storage := objectstore.NewFsStorage(t.TempDir())
	s := NewS3ArchiveSink(&storage, "ct-archive")

	success, failed, err := s.BulkIndex(context.Background(), []ctrecord.Certificate{
		{Fingerprint: "a"}, {Fingerprint: "b"},
	})
	if err != nil {
		t.Fatalf("BulkIndex: %v", err)
	}
	if success != 2 || failed != 0 {
		t.Errorf("success=%d failed=%d, want 2/0", success, failed)
	}
}

func TestS3ArchiveSinkEmptyIsNoop(t *testing.T) {
	storage := objectstore.NewFsStorage(t.TempDir())
	s := NewS3ArchiveSink(&storage, "ct-archive")

	success, failed, err := s.BulkIndex(context.Background(), nil)
	if err != nil || success != 0 || failed != 0 {
		t.Fatalf("BulkIndex(nil) = (%d, %d, %v), want (0, 0, nil)", success, failed, err)
	}
}
