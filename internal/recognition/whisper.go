//go:build whisper_cpp

package recognition

import (
	"context"
	"io"
	"runtime"
	"strings"
	"sync"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/callscribe/server/internal/audio"
	"github.com/callscribe/server/internal/transcript"
	"github.com/callscribe/server/pkg/logger"
)

// whisper.cpp expects 16 kHz mono float32 input.
const whisperSampleRate = 16000

// Config contains settings for the whisper engine.
type Config struct {
	ModelPath string
	Threads   int
}

// WhisperEngine runs local inference through the whisper.cpp Go bindings.
// Model access is serialized; the bindings are not safe for concurrent
// processing on one model.
type WhisperEngine struct {
	cfg    Config
	logger *logger.Logger

	mu    sync.Mutex
	model whisperpkg.Model
	ready chan struct{}
}

// NewEngine creates a whisper.cpp backed recognizer. The model is not loaded
// until Load is called.
func NewEngine(cfg Config, log *logger.Logger) Recognizer {
	if cfg.Threads <= 0 {
		cfg.Threads = runtime.NumCPU()
	}
	return &WhisperEngine{
		cfg:    cfg,
		logger: log.Named("whisper"),
		ready:  make(chan struct{}),
	}
}

// Load loads the model from disk. Safe to call once.
func (e *WhisperEngine) Load(ctx context.Context) error {
	e.logger.Info("Loading whisper model",
		logger.String("path", e.cfg.ModelPath),
		logger.Int("threads", e.cfg.Threads))

	model, err := whisperpkg.New(e.cfg.ModelPath)
	if err != nil {
		e.logger.Error("Failed to load whisper model", logger.Error(err))
		return err
	}

	e.mu.Lock()
	e.model = model
	e.mu.Unlock()
	close(e.ready)

	e.logger.Info("Whisper model loaded", logger.String("path", e.cfg.ModelPath))
	return nil
}

// Ready is closed once the model is loaded.
func (e *WhisperEngine) Ready() <-chan struct{} { return e.ready }

// IsReady reports whether the model is loaded.
func (e *WhisperEngine) IsReady() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

// Transcribe runs one inference pass over the chunk and returns timed
// segments relative to the chunk start. Empty segments are dropped.
func (e *WhisperEngine) Transcribe(ctx context.Context, chunk *audio.Chunk, language string) ([]transcript.Segment, error) {
	if !e.IsReady() {
		return nil, ErrModelNotReady
	}

	samples, err := audio.PCM16ToFloat32Mono(chunk.PCM, chunk.Channels)
	if err != nil {
		return nil, &RecognitionError{Sequence: chunk.Sequence, Err: err}
	}
	if chunk.SampleRate != whisperSampleRate {
		samples = audio.ResampleLinear(samples, chunk.SampleRate, whisperSampleRate)
	}

	// Anything under 100ms produces nothing useful.
	if len(samples) < whisperSampleRate/10 {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	wctx, err := e.model.NewContext()
	if err != nil {
		return nil, &RecognitionError{Sequence: chunk.Sequence, Err: err}
	}

	wctx.SetThreads(uint(e.cfg.Threads))
	if language == "" {
		language = "auto"
	}
	_ = wctx.SetLanguage(language)
	wctx.SetTokenTimestamps(true)
	wctx.SetMaxSegmentLength(0)
	wctx.SetMaxTokensPerSegment(0)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, &RecognitionError{Sequence: chunk.Sequence, Err: err}
	}

	detected := wctx.Language()
	if detected == "" || detected == "auto" {
		detected = wctx.DetectedLanguage()
	}

	var segments []transcript.Segment
	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			if err == io.EOF {
				break
			}
			e.logger.Warn("Error reading whisper segment", logger.Error(err))
			break
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, transcript.Segment{
			Start:    seg.Start.Seconds(),
			End:      seg.End.Seconds(),
			Text:     text,
			Language: detected,
		})
	}

	return segments, nil
}

// Close releases the model.
func (e *WhisperEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		e.model.Close()
		e.model = nil
	}
	return nil
}
