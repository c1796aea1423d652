package playlist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record is a created playlist as remembered by festlist.
type Record struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	SpotifyPlaylistID string    `json:"spotify_playlist_id"`
	Name              string    `json:"playlist_name"`
	Description       string    `json:"description,omitempty"`
	URL               string    `json:"url,omitempty"`
	Public            bool      `json:"public"`
	TrackCount        int       `json:"total_tracks"`
	Artists           []string  `json:"artists"`
	FailedArtists     []string  `json:"failed_artists"`
	CreatedAt         time.Time `json:"created_at"`
}

// Store persists playlist records.
type Store struct {
	db *sql.DB
}

// NewStore creates a playlist record store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save inserts rec, assigning its ID and creation time.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New().String()
	rec.CreatedAt = time.Now().UTC()

	artists, err := marshalNames(rec.Artists)
	if err != nil {
		return err
	}
	failed, err := marshalNames(rec.FailedArtists)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO playlists (id, user_id, spotify_playlist_id, name, description, url, public,
			track_count, artists, failed_artists, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.SpotifyPlaylistID, rec.Name, rec.Description, rec.URL,
		boolToInt(rec.Public), rec.TrackCount, artists, failed, rec.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving playlist: %w", err)
	}
	return nil
}

// ListByUser returns the user's playlists, newest first. A limit <= 0
// means 10.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, spotify_playlist_id, name, description, url, public,
			track_count, artists, failed_artists, created_at
		FROM playlists WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing playlists: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := []Record{}
	for rows.Next() {
		var (
			r                        Record
			public                   int
			artists, failed, created string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.SpotifyPlaylistID, &r.Name, &r.Description, &r.URL,
			&public, &r.TrackCount, &artists, &failed, &created); err != nil {
			return nil, fmt.Errorf("scanning playlist: %w", err)
		}
		r.Public = public != 0
		_ = json.Unmarshal([]byte(artists), &r.Artists)
		_ = json.Unmarshal([]byte(failed), &r.FailedArtists)
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func marshalNames(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	b, err := json.Marshal(names)
	if err != nil {
		return "", fmt.Errorf("encoding names: %w", err)
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
