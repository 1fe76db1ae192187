package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/callscribe/server/internal/transcript"
	"github.com/callscribe/server/pkg/logger"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a transcript does not exist.
var ErrNotFound = errors.New("transcript not found")

// TranscriptRecord is a saved transcript's metadata row.
type TranscriptRecord struct {
	ID           int64     `json:"id"`
	Key          string    `json:"key"`
	Language     string    `json:"language"`
	CreatedAt    time.Time `json:"created_at"`
	SegmentCount int       `json:"segment_count"`
	Summary      string    `json:"summary,omitempty"`
}

// TranscriptStorage is a SQLite-based store for finished transcripts.
type TranscriptStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewTranscriptStorage opens (or creates) the database at dbPath.
func NewTranscriptStorage(dbPath string, log *logger.Logger) (*TranscriptStorage, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	storage := &TranscriptStorage{
		db:     db,
		logger: storageLogger,
	}

	if err := storage.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// Close closes the database connection.
func (s *TranscriptStorage) Close() error {
	return s.db.Close()
}

func (s *TranscriptStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL UNIQUE,
			language TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			segment_count INTEGER NOT NULL,
			summary TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transcripts table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcript_segments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			transcript_id INTEGER NOT NULL REFERENCES transcripts(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			start_sec REAL NOT NULL,
			end_sec REAL NOT NULL,
			content TEXT NOT NULL,
			language TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transcript_segments table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_segments_transcript ON transcript_segments(transcript_id, seq)`)
	if err != nil {
		return fmt.Errorf("failed to create segments index: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create created_at index: %w", err)
	}

	return nil
}

// SaveTranscript stores a transcript and its segments in one transaction.
func (s *TranscriptStorage) SaveTranscript(key, language string, segments []transcript.Segment) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO transcripts (key, language, created_at, segment_count)
		VALUES (?, ?, ?, ?)`,
		key,
		language,
		time.Now().UTC().Format(time.RFC3339),
		len(segments),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transcript: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO transcript_segments (transcript_id, seq, start_sec, end_sec, content, language)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare segment insert: %w", err)
	}
	defer stmt.Close()

	for i, seg := range segments {
		if _, err := stmt.Exec(id, i, seg.Start, seg.End, seg.Text, seg.Language); err != nil {
			return 0, fmt.Errorf("failed to insert segment %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transcript: %w", err)
	}

	s.logger.Info("Saved transcript",
		logger.String("key", key),
		logger.Int("segments", len(segments)))

	return id, nil
}

// GetTranscript returns a transcript and its segments by ID.
func (s *TranscriptStorage) GetTranscript(id int64) (*TranscriptRecord, []transcript.Segment, error) {
	return s.getTranscript(`WHERE id = ?`, id)
}

// GetTranscriptByKey returns a transcript and its segments by save key.
func (s *TranscriptStorage) GetTranscriptByKey(key string) (*TranscriptRecord, []transcript.Segment, error) {
	return s.getTranscript(`WHERE key = ?`, key)
}

func (s *TranscriptStorage) getTranscript(where string, arg any) (*TranscriptRecord, []transcript.Segment, error) {
	row := s.db.QueryRow(
		`SELECT id, key, language, created_at, segment_count, summary FROM transcripts `+where, arg)

	record, err := scanTranscript(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	segments, err := s.getSegments(record.ID)
	if err != nil {
		return nil, nil, err
	}
	return record, segments, nil
}

func (s *TranscriptStorage) getSegments(transcriptID int64) ([]transcript.Segment, error) {
	rows, err := s.db.Query(
		`SELECT start_sec, end_sec, content, language
		FROM transcript_segments
		WHERE transcript_id = ?
		ORDER BY seq ASC`,
		transcriptID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var segments []transcript.Segment
	for rows.Next() {
		var seg transcript.Segment
		var language sql.NullString
		if err := rows.Scan(&seg.Start, &seg.End, &seg.Text, &language); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		if language.Valid {
			seg.Language = language.String
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// ListTranscripts returns saved transcripts, newest first, with pagination.
func (s *TranscriptStorage) ListTranscripts(limit, offset int) ([]*TranscriptRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, key, language, created_at, segment_count, summary
		FROM transcripts
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	var records []*TranscriptRecord
	for rows.Next() {
		record, err := scanTranscript(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GetUnsummarizedTranscripts retrieves a batch of transcripts without a
// summary, oldest first.
func (s *TranscriptStorage) GetUnsummarizedTranscripts(batchSize int) ([]*TranscriptRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, key, language, created_at, segment_count, summary
		FROM transcripts
		WHERE summary IS NULL OR summary = ''
		ORDER BY created_at ASC
		LIMIT ?`,
		batchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsummarized transcripts: %w", err)
	}
	defer rows.Close()

	var records []*TranscriptRecord
	for rows.Next() {
		record, err := scanTranscript(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// DeleteTranscript removes a transcript and its segments.
func (s *TranscriptStorage) DeleteTranscript(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM transcript_segments WHERE transcript_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete segments: %w", err)
	}
	result, err := tx.Exec(`DELETE FROM transcripts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deletion: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// UpdateSummary stores the generated summary for a transcript.
func (s *TranscriptStorage) UpdateSummary(id int64, summary string) error {
	_, err := s.db.Exec(
		`UPDATE transcripts SET summary = ? WHERE id = ?`,
		summary, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update summary: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTranscript(row rowScanner) (*TranscriptRecord, error) {
	var record TranscriptRecord
	var createdAt string
	var summary sql.NullString

	if err := row.Scan(
		&record.ID,
		&record.Key,
		&record.Language,
		&createdAt,
		&record.SegmentCount,
		&summary,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transcript: %w", err)
	}

	parsed, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	record.CreatedAt = parsed

	if summary.Valid {
		record.Summary = summary.String
	}
	return &record, nil
}
