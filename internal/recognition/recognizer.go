package recognition

import (
	"context"
	"errors"
	"fmt"

	"github.com/callscribe/server/internal/audio"
	"github.com/callscribe/server/internal/transcript"
)

// ErrModelNotReady is returned when transcription is requested before the
// model has finished loading. Callers poll readiness and retry.
var ErrModelNotReady = errors.New("recognition model not loaded")

// RecognitionError reports an engine failure on a specific chunk. Live
// sessions skip the chunk and continue; file sessions treat it as fatal.
type RecognitionError struct {
	Sequence int64
	Err      error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition failed on chunk %d: %v", e.Sequence, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// Recognizer converts audio chunks into ordered, timed transcript segments.
// Transcribe must not mutate or retain the chunk, must be deterministic for
// identical input and model state, and returns segment times relative to the
// start of the chunk. Empty recognition results are dropped, not returned.
type Recognizer interface {
	// Load loads the model. It blocks until loading completes and is meant
	// to run in its own goroutine at startup.
	Load(ctx context.Context) error

	// Ready is closed once Load has completed successfully.
	Ready() <-chan struct{}

	// IsReady reports whether the model is loaded.
	IsReady() bool

	Transcribe(ctx context.Context, chunk *audio.Chunk, language string) ([]transcript.Segment, error)

	Close() error
}
