//go:build !whisper_cpp

package recognition

import (
	"context"

	"github.com/callscribe/server/internal/audio"
	"github.com/callscribe/server/internal/transcript"
	"github.com/callscribe/server/pkg/logger"
)

// Config contains settings for the whisper engine.
type Config struct {
	ModelPath string
	Threads   int
}

// Stub engine so the server builds without cgo; produces no segments.
// Build with -tags whisper_cpp for real inference.
type stubEngine struct {
	ready chan struct{}
}

// NewEngine creates the no-op recognizer used when the whisper_cpp build tag
// is absent.
func NewEngine(cfg Config, log *logger.Logger) Recognizer {
	log.Named("whisper").Warn("Built without whisper_cpp tag, transcription is disabled")
	return &stubEngine{ready: make(chan struct{})}
}

func (e *stubEngine) Load(ctx context.Context) error {
	close(e.ready)
	return nil
}

func (e *stubEngine) Ready() <-chan struct{} { return e.ready }

func (e *stubEngine) IsReady() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

func (e *stubEngine) Transcribe(ctx context.Context, chunk *audio.Chunk, language string) ([]transcript.Segment, error) {
	return nil, nil
}

func (e *stubEngine) Close() error { return nil }
