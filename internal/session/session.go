package session

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"time"

	"github.com/callscribe/server/internal/audio"
	"github.com/callscribe/server/internal/recognition"
	"github.com/callscribe/server/internal/transcript"
	"github.com/callscribe/server/internal/websocket"
	"github.com/callscribe/server/pkg/logger"
)

// State is the lifecycle phase of a transcription session.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateProcessing
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Mode distinguishes live capture from file jobs.
type Mode int

const (
	ModeLive Mode = iota
	ModeFile
)

// Broadcaster pushes events to connected websocket clients.
type Broadcaster interface {
	Broadcast(msg *websocket.Message)
}

// Config carries per-session tunables.
type Config struct {
	// Language passed to the recognizer ("en", "uk", ...).
	Language string
	// OverlapTrimMinChars is the minimum overlap length worth trimming
	// between consecutive segments.
	OverlapTrimMinChars int
}

// Session runs one transcription job: a producer goroutine pulls chunks from
// the audio source into the queue, a consumer goroutine feeds them to the
// recognizer and assembles the ordered transcript. All cancellation is
// cooperative at chunk boundaries; an in-flight recognition call always
// finishes and its segments are kept.
type Session struct {
	mode     Mode
	language string
	trimMin  int

	source audio.Source
	rec    recognition.Recognizer
	bc     Broadcaster
	logger *logger.Logger
	queue  *chunkQueue

	mu        sync.Mutex
	state     State
	segments  []transcript.Segment
	lastStart float64
	current   int
	total     int
	cancelled bool
	srcErr    error
	err       error
	startedAt time.Time

	done chan struct{}
}

func newSession(mode Mode, src audio.Source, rec recognition.Recognizer, bc Broadcaster, cfg Config, log *logger.Logger) *Session {
	s := &Session{
		mode:     mode,
		language: cfg.Language,
		trimMin:  cfg.OverlapTrimMinChars,
		source:   src,
		rec:      rec,
		bc:       bc,
		logger:   log,
		queue:    newChunkQueue(),
		done:     make(chan struct{}),
	}
	if s.trimMin <= 0 {
		s.trimMin = 4
	}
	return s
}

func (s *Session) start() {
	s.mu.Lock()
	s.startedAt = time.Now()
	if s.mode == ModeFile {
		s.state = StateProcessing
		if sized, ok := s.source.(audio.Sized); ok {
			s.total = sized.TotalChunks()
		}
	} else {
		s.state = StateRecording
	}
	st := s.state
	s.mu.Unlock()

	s.publishStatus(st, -1)
	s.logger.Info("Session started",
		logger.String("state", st.String()),
		logger.String("language", s.language))

	go s.produce()
	go s.consume()
}

// produce pulls chunks from the source until EOF, failure or cancellation.
func (s *Session) produce() {
	defer s.queue.Close()
	ctx := context.Background()
	for {
		if s.isCancelled() {
			return
		}
		chunk, err := s.source.NextChunk(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			s.mu.Lock()
			s.srcErr = err
			s.mu.Unlock()
			return
		}
		if chunk == nil || len(chunk.PCM) == 0 {
			continue
		}
		s.queue.Push(chunk)
	}
}

// consume drains the queue through the recognizer in capture order.
func (s *Session) consume() {
	defer close(s.done)
	defer s.source.Close()

	ctx := context.Background()
	for {
		chunk, ok := s.queue.Pop()
		if !ok {
			break
		}
		if s.isCancelled() {
			s.finish(StateCancelled, nil)
			return
		}

		segs, err := s.rec.Transcribe(ctx, chunk, s.language)
		if err != nil {
			if s.mode == ModeLive {
				// A live stream keeps going; a bad chunk is logged
				// and skipped rather than killing the session.
				var recErr *recognition.RecognitionError
				if errors.As(err, &recErr) {
					s.logger.Warn("Skipping chunk after recognition failure",
						logger.Int64("sequence", recErr.Sequence),
						logger.Error(err))
					continue
				}
			}
			s.finish(StateFailed, err)
			return
		}

		s.appendSegments(chunk, segs)

		if s.mode == ModeFile {
			s.advanceProgress()
		}
	}

	if s.isCancelled() {
		s.finish(StateCancelled, nil)
		return
	}
	s.mu.Lock()
	srcErr := s.srcErr
	s.mu.Unlock()
	if srcErr != nil {
		s.finish(StateFailed, srcErr)
		return
	}
	s.finish(StateCompleted, nil)
}

// appendSegments shifts chunk-relative times to the stream timeline, trims
// text overlap against the previous segment and publishes each kept segment.
func (s *Session) appendSegments(chunk *audio.Chunk, segs []transcript.Segment) {
	for _, seg := range segs {
		if seg.Text == "" {
			continue
		}
		seg.Start += chunk.Offset
		seg.End += chunk.Offset
		if seg.End < seg.Start {
			seg.End = seg.Start
		}

		s.mu.Lock()
		if n := len(s.segments); n > 0 {
			trimmed, ok := transcript.TrimOverlap(s.segments[n-1], seg, s.trimMin)
			if !ok {
				s.mu.Unlock()
				continue
			}
			seg = trimmed
		}
		// Start times never go backwards across chunk boundaries.
		if seg.Start < s.lastStart {
			seg.Start = s.lastStart
			if seg.End < seg.Start {
				seg.End = seg.Start
			}
		}
		s.lastStart = seg.Start
		s.segments = append(s.segments, seg)
		s.mu.Unlock()

		s.bc.Broadcast(&websocket.Message{
			Type: websocket.EventSegment,
			Data: map[string]any{
				"start":    seg.Start,
				"end":      seg.End,
				"text":     seg.Text,
				"language": seg.Language,
			},
		})
	}
}

func (s *Session) advanceProgress() {
	s.mu.Lock()
	s.current++
	current, total := s.current, s.total
	s.mu.Unlock()
	if total <= 0 {
		return
	}
	percent := int(math.Round(100 * float64(current) / float64(total)))
	s.bc.Broadcast(&websocket.Message{
		Type: websocket.EventProgress,
		Data: map[string]any{
			"current": current,
			"total":   total,
			"percent": percent,
		},
	})
}

// Stop ends live capture and lets queued chunks drain through recognition.
// It is a no-op unless the session is recording.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	s.state = StateProcessing
	s.mu.Unlock()

	if st, ok := s.source.(audio.Stoppable); ok {
		st.Stop()
	}
	s.publishStatus(StateProcessing, -1)
	s.logger.Info("Capture stopped, draining queue",
		logger.Int("queued", s.queue.Len()))
}

// Cancel discards pending work and moves the session toward Cancelled.
// Segments already produced are retained. Returns false if the session is
// not running.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if s.state != StateRecording && s.state != StateProcessing {
		s.mu.Unlock()
		return false
	}
	s.cancelled = true
	s.mu.Unlock()

	if st, ok := s.source.(audio.Stoppable); ok {
		st.Stop()
	}
	s.queue.Cancel()
	return true
}

// Wait blocks until the session reaches a terminal state or ctx expires.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) finish(st State, err error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.err = err
	count := len(s.segments)
	s.mu.Unlock()

	s.publishStatus(st, count)
	if err != nil {
		s.logger.Error("Session ended",
			logger.String("state", st.String()),
			logger.Int("segments", count),
			logger.Error(err))
		return
	}
	s.logger.Info("Session ended",
		logger.String("state", st.String()),
		logger.Int("segments", count))
}

func (s *Session) publishStatus(st State, count int) {
	data := map[string]any{"state": st.String()}
	if count >= 0 {
		data["segments_count"] = count
	}
	s.bc.Broadcast(&websocket.Message{Type: websocket.EventStatus, Data: data})
}

func (s *Session) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Segments returns a copy of the transcript so far.
func (s *Session) Segments() []transcript.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transcript.Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

// SegmentCount returns the number of segments produced so far.
func (s *Session) SegmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}

// Progress returns processed and total chunk counts. Total is zero for
// live sessions.
func (s *Session) Progress() (current, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.total
}

// StartedAt returns the session start time.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Err returns the error that moved the session to Failed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Language returns the language requested for this session.
func (s *Session) Language() string { return s.language }

// Mode returns whether this is a live or file session.
func (s *Session) Mode() Mode { return s.mode }
