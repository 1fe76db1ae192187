package postproc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/callscribe/server/internal/storage/sqlite"
	"github.com/callscribe/server/internal/transcript"
	"github.com/callscribe/server/internal/websocket"
	"github.com/callscribe/server/pkg/logger"
)

const systemPrompt = "You summarize call transcripts. Produce a short plain-text summary " +
	"of the conversation in at most three sentences, in the language of the transcript. " +
	"Do not add commentary or headings."

// Config holds summarizer settings.
type Config struct {
	Enabled         bool
	APIKey          string
	Model           string
	IntervalSeconds int
	BatchSize       int
	TimeoutSeconds  int
}

// Store is the subset of transcript storage the summarizer needs.
type Store interface {
	GetUnsummarizedTranscripts(batchSize int) ([]*sqlite.TranscriptRecord, error)
	GetTranscript(id int64) (*sqlite.TranscriptRecord, []transcript.Segment, error)
	UpdateSummary(id int64, summary string) error
}

// Broadcaster pushes summary events to websocket clients.
type Broadcaster interface {
	Broadcast(msg *websocket.Message)
}

// Summarizer periodically generates summaries for saved transcripts that
// do not have one yet.
type Summarizer struct {
	ctx      context.Context
	cancel   context.CancelFunc
	store    Store
	bc       Broadcaster
	client   *genai.Client
	logger   *logger.Logger
	config   Config
	interval time.Duration
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewSummarizer creates a summarizer. The Gemini client is created eagerly
// so a bad API key surfaces at startup.
func NewSummarizer(ctx context.Context, store Store, bc Broadcaster, config Config, log *logger.Logger) (*Summarizer, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("api key is required for summarization")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	procCtx, procCancel := context.WithCancel(ctx)

	if config.IntervalSeconds <= 0 {
		config.IntervalSeconds = 60
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 5
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = 30
	}

	return &Summarizer{
		ctx:      procCtx,
		cancel:   procCancel,
		store:    store,
		bc:       bc,
		client:   client,
		logger:   log.Named("summarizer"),
		config:   config,
		interval: time.Duration(config.IntervalSeconds) * time.Second,
		timeout:  time.Duration(config.TimeoutSeconds) * time.Second,
	}, nil
}

// Start launches the summarization loop.
func (s *Summarizer) Start() error {
	if !s.config.Enabled {
		s.logger.Info("Summarization is disabled, not starting")
		return nil
	}

	s.logger.Info("Starting summarization loop",
		logger.Int("interval_seconds", s.config.IntervalSeconds),
		logger.Int("batch_size", s.config.BatchSize),
		logger.String("model", s.config.Model))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				s.logger.Info("Summarization loop stopped")
				return
			case <-ticker.C:
				if err := s.processNextBatch(); err != nil {
					s.logger.Error("Error processing batch", logger.Error(err))
				}
			}
		}
	}()
	return nil
}

// Stop stops the summarization loop and waits for it to exit.
func (s *Summarizer) Stop() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Summarizer) processNextBatch() error {
	records, err := s.store.GetUnsummarizedTranscripts(s.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch unsummarized transcripts: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	for _, record := range records {
		if s.ctx.Err() != nil {
			return nil
		}
		if err := s.summarizeOne(record); err != nil {
			s.logger.Error("Failed to summarize transcript",
				logger.Int64("id", record.ID),
				logger.String("key", record.Key),
				logger.Error(err))
		}
	}
	return nil
}

func (s *Summarizer) summarizeOne(record *sqlite.TranscriptRecord) error {
	_, segments, err := s.store.GetTranscript(record.ID)
	if err != nil {
		return err
	}
	text := transcript.FullText(segments)
	if text == "" {
		// Nothing to summarize; mark it so it stops coming back.
		return s.store.UpdateSummary(record.ID, "(empty transcript)")
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Models.GenerateContent(ctx, s.config.Model,
		genai.Text(text),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0.3),
		})
	if err != nil {
		return fmt.Errorf("generate content: %w", err)
	}

	summary := resp.Text()
	if summary == "" {
		return fmt.Errorf("empty summary from model")
	}

	if err := s.store.UpdateSummary(record.ID, summary); err != nil {
		return err
	}

	s.logger.Info("Summarized transcript",
		logger.Int64("id", record.ID),
		logger.String("key", record.Key))

	s.bc.Broadcast(&websocket.Message{
		Type: websocket.EventSummary,
		Data: map[string]any{
			"id":      record.ID,
			"key":     record.Key,
			"summary": summary,
		},
	})
	return nil
}
