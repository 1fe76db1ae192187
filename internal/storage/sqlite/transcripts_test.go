package sqlite

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/callscribe/server/internal/transcript"
	"github.com/callscribe/server/pkg/logger"
)

func newTestStorage(t *testing.T) *TranscriptStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	storage, err := NewTranscriptStorage(dbPath, logger.NewNop())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	return storage
}

func sampleSegments() []transcript.Segment {
	return []transcript.Segment{
		{Start: 0, End: 2.5, Text: "hello there", Language: "en"},
		{Start: 2.5, End: 5, Text: "how are you", Language: "en"},
	}
}

func TestSaveAndGetTranscript(t *testing.T) {
	storage := newTestStorage(t)

	id, err := storage.SaveTranscript("transcript_20260901_120000", "en", sampleSegments())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	record, segments, err := storage.GetTranscript(id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if record.Key != "transcript_20260901_120000" {
		t.Errorf("key = %q", record.Key)
	}
	if record.Language != "en" {
		t.Errorf("language = %q", record.Language)
	}
	if record.SegmentCount != 2 {
		t.Errorf("segment count = %d, want 2", record.SegmentCount)
	}
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(segments))
	}
	if segments[0].Text != "hello there" || segments[1].Text != "how are you" {
		t.Errorf("segments out of order: %+v", segments)
	}
	if segments[1].Start != 2.5 || segments[1].End != 5 {
		t.Errorf("segment timing lost: %+v", segments[1])
	}
}

func TestGetTranscriptByKey(t *testing.T) {
	storage := newTestStorage(t)

	if _, err := storage.SaveTranscript("transcript_20260901_130000", "uk", sampleSegments()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	record, segments, err := storage.GetTranscriptByKey("transcript_20260901_130000")
	if err != nil {
		t.Fatalf("get by key failed: %v", err)
	}
	if record.Language != "uk" {
		t.Errorf("language = %q", record.Language)
	}
	if len(segments) != 2 {
		t.Errorf("got %d segments, want 2", len(segments))
	}
}

func TestGetTranscriptNotFound(t *testing.T) {
	storage := newTestStorage(t)

	if _, _, err := storage.GetTranscript(42); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if _, _, err := storage.GetTranscriptByKey("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestDuplicateKeyRejected(t *testing.T) {
	storage := newTestStorage(t)

	if _, err := storage.SaveTranscript("transcript_dup", "en", sampleSegments()); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if _, err := storage.SaveTranscript("transcript_dup", "en", sampleSegments()); err == nil {
		t.Fatal("duplicate key save succeeded")
	}
}

func TestDeleteTranscript(t *testing.T) {
	storage := newTestStorage(t)

	id, err := storage.SaveTranscript("transcript_del", "en", sampleSegments())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := storage.DeleteTranscript(id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, _, err := storage.GetTranscript(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete error = %v, want ErrNotFound", err)
	}
	if err := storage.DeleteTranscript(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestListTranscripts(t *testing.T) {
	storage := newTestStorage(t)

	for _, key := range []string{"transcript_a", "transcript_b", "transcript_c"} {
		if _, err := storage.SaveTranscript(key, "en", sampleSegments()); err != nil {
			t.Fatalf("save %s failed: %v", key, err)
		}
	}

	records, err := storage.ListTranscripts(2, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2 (limit)", len(records))
	}

	records, err = storage.ListTranscripts(10, 2)
	if err != nil {
		t.Fatalf("list with offset failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1 (offset)", len(records))
	}
}

func TestSummaryLifecycle(t *testing.T) {
	storage := newTestStorage(t)

	id, err := storage.SaveTranscript("transcript_sum", "en", sampleSegments())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	pending, err := storage.GetUnsummarizedTranscripts(10)
	if err != nil {
		t.Fatalf("unsummarized query failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("pending = %+v, want the saved transcript", pending)
	}

	if err := storage.UpdateSummary(id, "a short chat"); err != nil {
		t.Fatalf("update summary failed: %v", err)
	}

	pending, err = storage.GetUnsummarizedTranscripts(10)
	if err != nil {
		t.Fatalf("unsummarized query failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("still %d pending after summarizing", len(pending))
	}

	record, _, err := storage.GetTranscript(id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if record.Summary != "a short chat" {
		t.Errorf("summary = %q", record.Summary)
	}
}

func TestSaveEmptyTranscript(t *testing.T) {
	storage := newTestStorage(t)

	id, err := storage.SaveTranscript("transcript_empty", "en", nil)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	record, segments, err := storage.GetTranscript(id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if record.SegmentCount != 0 || len(segments) != 0 {
		t.Errorf("expected empty transcript, got count=%d segments=%d", record.SegmentCount, len(segments))
	}
}
