package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/callscribe/server/internal/audio"
	"github.com/callscribe/server/internal/config"
	"github.com/callscribe/server/internal/recognition"
	"github.com/callscribe/server/internal/session"
	"github.com/callscribe/server/internal/storage/sqlite"
	"github.com/callscribe/server/internal/transcript"
	"github.com/callscribe/server/internal/websocket"
	"github.com/callscribe/server/pkg/logger"
)

// Handler contains the API handlers
type Handler struct {
	registry *session.Registry
	factory  *audio.Factory
	storage  *sqlite.TranscriptStorage
	config   *config.Config
	logger   *logger.Logger
	wsServer *websocket.Server
}

// NewHandler creates a new API handler
func NewHandler(registry *session.Registry, factory *audio.Factory, storage *sqlite.TranscriptStorage, config *config.Config, logger *logger.Logger, wsServer *websocket.Server) *Handler {
	return &Handler{
		registry: registry,
		factory:  factory,
		storage:  storage,
		config:   config,
		logger:   logger.Named("api-handler"),
		wsServer: wsServer,
	}
}

type startRequest struct {
	DeviceID string `json:"device_id,omitempty"`
	FilePath string `json:"file_path,omitempty"`
	Language string `json:"language,omitempty"`
}

// StartSession starts a live or file transcription session
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.DeviceID == "" && req.FilePath == "" {
		http.Error(w, "Either device_id or file_path is required", http.StatusBadRequest)
		return
	}
	if req.DeviceID != "" && req.FilePath != "" {
		http.Error(w, "device_id and file_path are mutually exclusive", http.StatusBadRequest)
		return
	}
	if req.Language != "" && !h.languageSupported(req.Language) {
		http.Error(w, fmt.Sprintf("Unsupported language: %s", req.Language), http.StatusBadRequest)
		return
	}

	s, err := h.registry.Start(audio.SourceSpec{
		DeviceID: req.DeviceID,
		FilePath: req.FilePath,
	}, req.Language)
	if err != nil {
		var conflict *session.ConflictError
		switch {
		case errors.As(err, &conflict):
			http.Error(w, conflict.Error(), http.StatusConflict)
		case errors.Is(err, recognition.ErrModelNotReady):
			http.Error(w, "Recognition model is still loading", http.StatusServiceUnavailable)
		default:
			h.logger.Error("Failed to start session", logger.Error(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{
		"state":         s.State().String(),
		"language":      s.Language(),
		"session_start": s.StartedAt(),
	})
}

// StopSession ends live capture, waits for the session to finish and
// optionally saves the transcript. For file sessions it waits for processing
// to complete. save defaults to true.
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	save := true
	if v := r.URL.Query().Get("save"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "Invalid save parameter", http.StatusBadRequest)
			return
		}
		save = parsed
	}

	result, err := h.registry.Stop(r.Context(), save)
	if err != nil && result == nil {
		if errors.Is(err, session.ErrNoActiveSession) {
			http.Error(w, "Not recording", http.StatusBadRequest)
			return
		}
		h.logger.Error("Failed to stop session", logger.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := map[string]any{
		"status":           result.State.String(),
		"segments_count":   result.SegmentsCount,
		"duration_seconds": result.Duration.Seconds(),
	}
	if result.SavedKey != "" {
		response["key"] = result.SavedKey
	}
	if err != nil {
		// The session failed mid-drain; report the partial result with the error.
		response["error"] = err.Error()
		WriteJSON(w, http.StatusInternalServerError, response)
		return
	}
	WriteJSON(w, http.StatusOK, response)
}

// CancelSession aborts the active session, discarding pending work
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	cancelled := h.registry.Cancel()
	WriteJSON(w, http.StatusOK, map[string]any{
		"cancelled": cancelled,
	})
}

// GetStatus returns model readiness and the active session state
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.registry.Status())
}

// GetTranscript returns the segments of the current (or last) session
func (h *Handler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	s := h.registry.Active()
	if s == nil {
		WriteJSON(w, http.StatusOK, map[string]any{
			"state":    session.StateIdle.String(),
			"segments": []transcript.Segment{},
			"text":     "",
		})
		return
	}
	segments := s.Segments()
	if segments == nil {
		segments = []transcript.Segment{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"state":    s.State().String(),
		"language": s.Language(),
		"segments": segments,
		"text":     transcript.FullText(segments),
	})
}

// GetDevices lists the configured capture devices
func (h *Handler) GetDevices(w http.ResponseWriter, r *http.Request) {
	devices := h.factory.Devices()
	if devices == nil {
		devices = []audio.Device{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
	})
}

// GetLanguages lists the supported recognition languages
func (h *Handler) GetLanguages(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"languages": h.config.Recognition.Languages,
		"default":   h.config.Recognition.DefaultLanguage,
	})
}

// ListTranscripts returns saved transcripts with pagination
func (h *Handler) ListTranscripts(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)

	records, err := h.storage.ListTranscripts(limit, offset)
	if err != nil {
		h.logger.Error("Failed to retrieve transcripts", logger.Error(err))
		http.Error(w, "Failed to retrieve transcripts", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*sqlite.TranscriptRecord{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"timestamp":   time.Now(),
		"count":       len(records),
		"transcripts": records,
	})
}

// GetStoredTranscript returns one saved transcript with its segments
func (h *Handler) GetStoredTranscript(w http.ResponseWriter, r *http.Request) {
	record, segments, ok := h.lookupTranscript(w, r)
	if !ok {
		return
	}
	if segments == nil {
		segments = []transcript.Segment{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"transcript": record,
		"segments":   segments,
	})
}

// ExportTranscript returns a saved transcript as plain text or SRT
func (h *Handler) ExportTranscript(w http.ResponseWriter, r *http.Request) {
	record, segments, ok := h.lookupTranscript(w, r)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "txt"
	}

	var body, contentType string
	switch format {
	case "txt":
		body = transcript.FullText(segments)
		contentType = "text/plain; charset=utf-8"
	case "srt":
		body = transcript.SRT(segments)
		contentType = "application/x-subrip"
	default:
		http.Error(w, fmt.Sprintf("Unsupported format: %s", format), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.Key+"."+format))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// DeleteStoredTranscript removes a saved transcript
func (h *Handler) DeleteStoredTranscript(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid transcript ID", http.StatusBadRequest)
		return
	}

	if err := h.storage.DeleteTranscript(id); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			http.Error(w, "Transcript not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to delete transcript",
			logger.Int64("id", id),
			logger.Error(err))
		http.Error(w, "Failed to delete transcript", http.StatusInternalServerError)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (h *Handler) lookupTranscript(w http.ResponseWriter, r *http.Request) (*sqlite.TranscriptRecord, []transcript.Segment, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid transcript ID", http.StatusBadRequest)
		return nil, nil, false
	}

	record, segments, err := h.storage.GetTranscript(id)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			http.Error(w, "Transcript not found", http.StatusNotFound)
			return nil, nil, false
		}
		h.logger.Error("Failed to retrieve transcript",
			logger.Int64("id", id),
			logger.Error(err))
		http.Error(w, "Failed to retrieve transcript", http.StatusInternalServerError)
		return nil, nil, false
	}
	return record, segments, true
}

func (h *Handler) languageSupported(lang string) bool {
	for _, l := range h.config.Recognition.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

func parsePaginationParams(r *http.Request) (int, int) {
	limit := 100 // Default limit
	offset := 0  // Default offset

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	return limit, offset
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
