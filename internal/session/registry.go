package session

import (
	"context"
	"sync"
	"time"

	"github.com/callscribe/server/internal/audio"
	"github.com/callscribe/server/internal/recognition"
	"github.com/callscribe/server/internal/transcript"
	"github.com/callscribe/server/pkg/logger"
)

// TranscriptStore persists finished transcripts.
type TranscriptStore interface {
	SaveTranscript(key, language string, segments []transcript.Segment) (int64, error)
}

// SourceFactory builds audio sources from a request spec.
type SourceFactory interface {
	NewSource(spec audio.SourceSpec) (audio.Source, error)
}

// Registry owns the single active session slot. Starting a session while
// another is still running yields a ConflictError.
type Registry struct {
	factory SourceFactory
	rec     recognition.Recognizer
	store   TranscriptStore
	bc      Broadcaster
	cfg     Config
	logger  *logger.Logger

	mu       sync.Mutex
	active   *Session
	savedKey string
}

// NewRegistry wires the session registry. store may be nil when persistence
// is disabled.
func NewRegistry(factory SourceFactory, rec recognition.Recognizer, store TranscriptStore, bc Broadcaster, cfg Config, log *logger.Logger) *Registry {
	return &Registry{
		factory: factory,
		rec:     rec,
		store:   store,
		bc:      bc,
		cfg:     cfg,
		logger:  log.Named("session"),
	}
}

// Start launches a new session for the given source. The recognizer must
// have finished loading and no other session may be running.
func (r *Registry) Start(spec audio.SourceSpec, language string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil && !r.active.State().Terminal() {
		return nil, &ConflictError{State: r.active.State()}
	}
	if !r.rec.IsReady() {
		return nil, recognition.ErrModelNotReady
	}

	src, err := r.factory.NewSource(spec)
	if err != nil {
		return nil, err
	}

	mode := ModeLive
	if spec.FilePath != "" {
		mode = ModeFile
	}

	cfg := r.cfg
	if language != "" {
		cfg.Language = language
	}

	s := newSession(mode, src, r.rec, r.bc, cfg, r.logger)
	s.start()
	r.active = s
	r.savedKey = ""
	return s, nil
}

// StopResult summarizes a finished session.
type StopResult struct {
	State         State
	SegmentsCount int
	Duration      time.Duration
	SavedKey      string
}

// Stop ends live capture on the active session, waits for it to finish and
// optionally persists the transcript. File sessions and sessions that
// already reached a terminal state are accepted too, so a file job's output
// can be saved after it completes on its own and an interrupted stop can be
// retried. The session error, if any, is returned alongside the partial
// result.
func (r *Registry) Stop(ctx context.Context, save bool) (*StopResult, error) {
	r.mu.Lock()
	s := r.active
	r.mu.Unlock()

	if s == nil {
		return nil, ErrNoActiveSession
	}

	s.Stop()
	if err := s.Wait(ctx); err != nil {
		return nil, err
	}

	res := &StopResult{
		State:         s.State(),
		SegmentsCount: s.SegmentCount(),
		Duration:      time.Since(s.StartedAt()),
	}

	if save && r.store != nil && res.SegmentsCount > 0 {
		res.SavedKey = r.saveTranscript(s)
	}

	return res, s.Err()
}

// saveTranscript persists the session's segments once. A repeated stop on
// the same session returns the key from the first save.
func (r *Registry) saveTranscript(s *Session) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s != r.active {
		return ""
	}
	if r.savedKey != "" {
		return r.savedKey
	}

	key := "transcript_" + s.StartedAt().Format("20060102_150405")
	if _, err := r.store.SaveTranscript(key, s.Language(), s.Segments()); err != nil {
		r.logger.Error("Failed to save transcript",
			logger.String("key", key),
			logger.Error(err))
		return ""
	}
	r.savedKey = key
	return key
}

// Cancel aborts the active session. Returns false when nothing is running.
func (r *Registry) Cancel() bool {
	r.mu.Lock()
	s := r.active
	r.mu.Unlock()
	if s == nil {
		return false
	}
	return s.Cancel()
}

// Active returns the current session, which may be terminal, or nil.
func (r *Registry) Active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Status describes the registry for the status endpoint.
type Status struct {
	ModelReady    bool      `json:"is_model_ready"`
	State         string    `json:"state"`
	SegmentsCount int       `json:"segments_count"`
	StartedAt     time.Time `json:"session_start,omitzero"`
}

// Status reports model readiness and the active session state.
func (r *Registry) Status() Status {
	st := Status{
		ModelReady: r.rec.IsReady(),
		State:      StateIdle.String(),
	}
	r.mu.Lock()
	s := r.active
	r.mu.Unlock()
	if s != nil {
		st.State = s.State().String()
		st.SegmentsCount = s.SegmentCount()
		st.StartedAt = s.StartedAt()
	}
	return st
}
