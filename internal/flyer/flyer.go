// Package flyer stores uploaded flyer images.
package flyer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/festlist/festlist/internal/filesystem"
	"github.com/festlist/festlist/internal/image"
)

// MaxSize is the largest accepted upload.
const MaxSize = 10 << 20

// DefaultMaxAge is how long uploaded files are kept before cleanup.
const DefaultMaxAge = 24 * time.Hour

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
	ErrEmpty           = errors.New("empty file")
	ErrInvalidImage    = errors.New("invalid image")
	ErrNotFound        = errors.New("flyer not found")
)

// allowedTypes maps accepted extensions to the MIME types they may arrive as.
var allowedTypes = map[string][]string{
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".png":  {"image/png"},
	".tif":  {"image/tiff"},
	".tiff": {"image/tiff"},
	".bmp":  {"image/bmp", "image/x-ms-bmp"},
	".webp": {"image/webp"},
}

// Flyer is the metadata of one stored upload.
type Flyer struct {
	ID           string    `json:"file_id"`
	UserID       string    `json:"-"`
	OriginalName string    `json:"filename"`
	StoredName   string    `json:"-"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"file_size"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	CreatedAt    time.Time `json:"created_at"`
}

// Upload describes an incoming file.
type Upload struct {
	UserID      string
	Filename    string
	ContentType string
	Body        io.Reader
}

// Allowed reports whether a file with this name and content type may be
// uploaded. An empty content type is judged by the extension alone.
func Allowed(filename, contentType string) bool {
	types, ok := allowedTypes[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return false
	}
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, t := range types {
		if mt == t {
			return true
		}
	}
	return false
}

// Store saves flyer files under a directory and their metadata in the
// flyers table.
type Store struct {
	db     *sql.DB
	dir    string
	logger *slog.Logger
}

// NewStore creates a store rooted at dir.
func NewStore(db *sql.DB, dir string, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		dir:    dir,
		logger: logger.With(slog.String("component", "flyer")),
	}
}

// Dir returns the upload directory.
func (s *Store) Dir() string { return s.dir }

// Save validates and stores an upload. The file is written atomically as
// <id><ext> and its metadata recorded.
func (s *Store) Save(ctx context.Context, up Upload) (*Flyer, error) {
	if !Allowed(up.Filename, up.ContentType) {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, up.Filename, up.ContentType)
	}

	data, err := io.ReadAll(io.LimitReader(up.Body, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	switch {
	case len(data) == 0:
		return nil, ErrEmpty
	case len(data) > MaxSize:
		return nil, fmt.Errorf("%w: maximum is %d bytes", ErrTooLarge, MaxSize)
	}

	info, err := image.Inspect(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if err := info.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	f := &Flyer{
		ID:           uuid.New().String(),
		UserID:       up.UserID,
		OriginalName: filepath.Base(up.Filename),
		ContentType:  info.MIMEType(),
		Size:         int64(len(data)),
		Width:        info.Width,
		Height:       info.Height,
		CreatedAt:    time.Now().UTC(),
	}
	f.StoredName = f.ID + strings.ToLower(filepath.Ext(up.Filename))

	if err := filesystem.WriteFileAtomic(filepath.Join(s.dir, f.StoredName), data, 0o600); err != nil {
		return nil, fmt.Errorf("writing upload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flyers (id, user_id, original_name, stored_name, content_type, size_bytes, width, height, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, nullString(f.UserID), f.OriginalName, f.StoredName, f.ContentType,
		f.Size, f.Width, f.Height, f.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		_ = os.Remove(filepath.Join(s.dir, f.StoredName))
		return nil, fmt.Errorf("recording flyer: %w", err)
	}

	s.logger.Info("flyer uploaded",
		slog.String("file_id", f.ID),
		slog.String("filename", f.OriginalName),
		slog.Int64("size", f.Size),
		slog.Int("width", f.Width),
		slog.Int("height", f.Height))

	return f, nil
}

// Get returns the metadata for id.
func (s *Store) Get(ctx context.Context, id string) (*Flyer, error) {
	var (
		f       Flyer
		userID  sql.NullString
		created string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, original_name, stored_name, content_type, size_bytes, width, height, created_at
		FROM flyers WHERE id = ?`, id,
	).Scan(&f.ID, &userID, &f.OriginalName, &f.StoredName, &f.ContentType, &f.Size, &f.Width, &f.Height, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting flyer: %w", err)
	}
	f.UserID = userID.String
	f.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &f, nil
}

// Resolve returns the metadata and on-disk path of a stored flyer. A flyer
// whose file has been cleaned up is reported as not found.
func (s *Store) Resolve(ctx context.Context, id string) (*Flyer, string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, "", ErrNotFound
	}
	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	path := filepath.Join(s.dir, f.StoredName)
	if _, err := os.Stat(path); err != nil {
		return nil, "", ErrNotFound
	}
	return f, path, nil
}

// Read returns the metadata and bytes of a stored flyer.
func (s *Store) Read(ctx context.Context, id string) (*Flyer, []byte, error) {
	f, path, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path built from a stored uuid name
	if err != nil {
		return nil, nil, fmt.Errorf("reading flyer: %w", err)
	}
	return f, data, nil
}

// Cleanup removes files and rows older than maxAge. It returns how many
// files were removed.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	now := time.Now().UTC()
	removed, err := filesystem.RemoveOlderThan(s.dir, maxAge, now)
	if err != nil {
		return len(removed), err
	}

	cutoff := now.Add(-maxAge).Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM flyers WHERE created_at < ?`, cutoff); err != nil {
		return len(removed), fmt.Errorf("deleting flyer rows: %w", err)
	}

	if len(removed) > 0 {
		s.logger.Info("cleaned up old uploads", slog.Int("files_removed", len(removed)))
	}
	return len(removed), nil
}

// StartCleanup runs Cleanup on a fixed interval until the context is canceled.
func (s *Store) StartCleanup(ctx context.Context, interval, maxAge time.Duration) {
	s.logger.Info("upload cleanup started",
		slog.String("interval", interval.String()),
		slog.String("max_age", maxAge.String()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("upload cleanup stopped")
			return
		case <-ticker.C:
			if _, err := s.Cleanup(ctx, maxAge); err != nil {
				s.logger.Error("scheduled upload cleanup failed", slog.Any("error", err))
			}
		}
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
