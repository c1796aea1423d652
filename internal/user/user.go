// Package user manages festlist accounts, sessions, stored Spotify tokens
// and the daily analysis quota.
package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/festlist/festlist/internal/encryption"
)

// DefaultTracksPerArtist is used until a user picks their own.
const DefaultTracksPerArtist = 5

// MaxTracksPerArtist is the most top tracks Spotify returns for an artist.
const MaxTracksPerArtist = 10

var (
	ErrNotFound     = errors.New("user not found")
	ErrInvalidInput = errors.New("invalid input")
)

// User is a festlist account, identified by its Spotify account.
type User struct {
	ID              string    `json:"user_id"`
	SpotifyID       string    `json:"spotify_id"`
	DisplayName     string    `json:"display_name"`
	Email           string    `json:"email,omitempty"`
	Country         string    `json:"country,omitempty"`
	TracksPerArtist int       `json:"tracks_per_artist"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Profile is the identity reported by Spotify at login.
type Profile struct {
	SpotifyID   string
	DisplayName string
	Email       string
	Country     string
}

// Update holds the editable profile fields. Nil fields are left unchanged.
type Update struct {
	DisplayName     *string `json:"display_name"`
	TracksPerArtist *int    `json:"tracks_per_artist"`
}

// Service provides user operations backed by SQLite.
type Service struct {
	db     *sql.DB
	enc    *encryption.Encryptor
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a user service. enc seals stored OAuth tokens.
func NewService(db *sql.DB, enc *encryption.Encryptor, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		enc:    enc,
		logger: logger.With(slog.String("component", "user")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Upsert creates the user for a Spotify account or refreshes its profile
// fields. The user's own settings are kept.
func (s *Service) Upsert(ctx context.Context, p Profile) (*User, error) {
	if p.SpotifyID == "" {
		return nil, fmt.Errorf("%w: spotify id is required", ErrInvalidInput)
	}
	now := s.now().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, spotify_id, display_name, email, country, tracks_per_artist, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(spotify_id) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email,
			country = excluded.country,
			updated_at = excluded.updated_at
	`, uuid.New().String(), p.SpotifyID, p.DisplayName, p.Email, p.Country, DefaultTracksPerArtist, now, now)
	if err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}

	u, err := s.getBy(ctx, "spotify_id", p.SpotifyID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user signed in", slog.String("user_id", u.ID), slog.String("spotify_id", u.SpotifyID))
	return u, nil
}

// Get returns the user with id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.getBy(ctx, "id", id)
}

// Update applies the non-nil fields of upd and returns the updated user.
func (s *Service) Update(ctx context.Context, id string, upd Update) (*User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.DisplayName != nil {
		u.DisplayName = *upd.DisplayName
	}
	if upd.TracksPerArtist != nil {
		n := *upd.TracksPerArtist
		if n < 1 || n > MaxTracksPerArtist {
			return nil, fmt.Errorf("%w: tracks_per_artist must be between 1 and %d", ErrInvalidInput, MaxTracksPerArtist)
		}
		u.TracksPerArtist = n
	}
	u.UpdatedAt = s.now()

	_, err = s.db.ExecContext(ctx, `
		UPDATE users SET display_name = ?, tracks_per_artist = ?, updated_at = ? WHERE id = ?
	`, u.DisplayName, u.TracksPerArtist, u.UpdatedAt.Format(time.RFC3339), id)
	if err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	return u, nil
}

// column is one of the two fixed lookup columns, never user input.
func (s *Service) getBy(ctx context.Context, column, value string) (*User, error) {
	var (
		u                User
		created, updated string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, spotify_id, display_name, email, country, tracks_per_artist, created_at, updated_at
		FROM users WHERE `+column+` = ?`, value, //nolint:gosec // G202: column is a constant
	).Scan(&u.ID, &u.SpotifyID, &u.DisplayName, &u.Email, &u.Country, &u.TracksPerArtist, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, created)
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &u, nil
}

// Stats summarises a user's activity.
type Stats struct {
	TotalAnalyses  int       `json:"total_analyses"`
	TotalPlaylists int       `json:"total_playlists"`
	DailyAnalyses  int       `json:"daily_analyses"`
	RateLimit      QuotaInfo `json:"rate_limit"`
}

// Stats returns usage counters for the user, including quota state from q.
func (s *Service) Stats(ctx context.Context, id string, q *Quota) (*Stats, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	var st Stats
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM extractions WHERE user_id = ?`, id,
	).Scan(&st.TotalAnalyses); err != nil {
		return nil, fmt.Errorf("counting analyses: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM playlists WHERE user_id = ?`, id,
	).Scan(&st.TotalPlaylists); err != nil {
		return nil, fmt.Errorf("counting playlists: %w", err)
	}

	info, err := q.Info(ctx, id)
	if err != nil {
		return nil, err
	}
	st.DailyAnalyses = info.Limit - info.Remaining
	st.RateLimit = info
	return &st, nil
}
