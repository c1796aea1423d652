package extraction

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sources an extraction record can come from.
const (
	SourceText  = "text"
	SourceOCR   = "ocr"
	SourceImage = "image"
	SourceInbox = "inbox"
)

// ErrRecordNotFound is returned when an extraction record does not exist.
var ErrRecordNotFound = errors.New("extraction record not found")

// Record is a persisted extraction run.
type Record struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id,omitempty"`
	FlyerID       string             `json:"flyer_id,omitempty"`
	Source        string             `json:"source"`
	OCREngine     string             `json:"ocr_engine,omitempty"`
	OCRConfidence float64            `json:"ocr_confidence,omitempty"`
	RawText       string             `json:"raw_text,omitempty"`
	Method        string             `json:"method"`
	Artists       []ReconciledArtist `json:"artists"`
	PatternCount  int                `json:"pattern_results"`
	AICount       int                `json:"ai_results"`
	Duration      time.Duration      `json:"-"`
	CreatedAt     time.Time          `json:"created_at"`
}

// NewRecord builds a record from a report.
func NewRecord(source string, rep Report) *Record {
	return &Record{
		Source:       source,
		Method:       rep.Method,
		Artists:      rep.Artists,
		PatternCount: rep.PatternResults,
		AICount:      rep.AIResults,
		Duration:     rep.Duration,
	}
}

// Store persists extraction records.
type Store struct {
	db *sql.DB
}

// NewStore creates an extraction record store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save inserts rec, assigning an ID and timestamp when unset.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	artists := rec.Artists
	if artists == nil {
		artists = []ReconciledArtist{}
	}
	data, err := json.Marshal(artists)
	if err != nil {
		return fmt.Errorf("encoding artists: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO extractions (
			id, user_id, flyer_id, source, ocr_engine, ocr_confidence, raw_text,
			method, artists, pattern_results, ai_results, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, nullString(rec.UserID), nullString(rec.FlyerID), rec.Source,
		rec.OCREngine, rec.OCRConfidence, rec.RawText,
		rec.Method, string(data), rec.PatternCount, rec.AICount,
		rec.Duration.Milliseconds(), rec.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving extraction: %w", err)
	}
	return nil
}

const recordColumns = `id, user_id, flyer_id, source, ocr_engine, ocr_confidence, raw_text,
	method, artists, pattern_results, ai_results, duration_ms, created_at`

// Get returns the record with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM extractions WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting extraction %s: %w", id, err)
	}
	return rec, nil
}

// ListByUser returns the user's most recent records, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM extractions WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing extractions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning extraction: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// CountByUser returns the number of extractions a user has run.
func (s *Store) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM extractions WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting extractions: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec              Record
		userID, flyerID  sql.NullString
		artists, created string
		durationMS       int64
	)
	err := row.Scan(&rec.ID, &userID, &flyerID, &rec.Source, &rec.OCREngine, &rec.OCRConfidence,
		&rec.RawText, &rec.Method, &artists, &rec.PatternCount, &rec.AICount, &durationMS, &created)
	if err != nil {
		return nil, err
	}
	rec.UserID = userID.String
	rec.FlyerID = flyerID.String
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	rec.CreatedAt, _ = time.Parse(time.RFC3339, created)
	if err := json.Unmarshal([]byte(artists), &rec.Artists); err != nil {
		return nil, fmt.Errorf("decoding artists: %w", err)
	}
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
