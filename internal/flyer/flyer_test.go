package flyer

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/festlist/festlist/internal/database"
)

func setupStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewStore(db, t.TempDir(), logger), db
}

func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 251)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

func TestAllowed(t *testing.T) {
	tests := []struct {
		name, ct string
		want     bool
	}{
		{"flyer.jpg", "image/jpeg", true},
		{"FLYER.JPEG", "image/jpeg", true},
		{"flyer.png", "image/png", true},
		{"flyer.tif", "image/tiff", true},
		{"flyer.bmp", "image/bmp", true},
		{"flyer.webp", "image/webp", true},
		{"flyer.png", "", true},
		{"flyer.png", "image/jpeg", false},
		{"flyer.gif", "image/gif", false},
		{"flyer.pdf", "application/pdf", false},
		{"flyer", "image/png", false},
		{"flyer.png", "image/png; charset=binary", true},
	}
	for _, tt := range tests {
		if got := Allowed(tt.name, tt.ct); got != tt.want {
			t.Errorf("Allowed(%q, %q) = %v, want %v", tt.name, tt.ct, got, tt.want)
		}
	}
}

func TestStore_SaveAndResolve(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	data := makePNG(t, 400, 600)

	f, err := store.Save(ctx, Upload{Filename: "lineup.PNG", ContentType: "image/png", Body: bytes.NewReader(data)})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if f.StoredName != f.ID+".png" {
		t.Errorf("stored name = %q", f.StoredName)
	}
	if f.Width != 400 || f.Height != 600 || f.Size != int64(len(data)) {
		t.Errorf("unexpected metadata: %+v", f)
	}

	got, path, err := store.Resolve(ctx, f.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.OriginalName != "lineup.PNG" || got.ContentType != "image/png" {
		t.Errorf("unexpected flyer: %+v", got)
	}
	if filepath.Dir(path) != store.Dir() {
		t.Errorf("path %q outside upload dir", path)
	}

	_, read, err := store.Read(ctx, f.ID)
	if err != nil || !bytes.Equal(read, data) {
		t.Errorf("Read returned %d bytes, err %v", len(read), err)
	}
}

func TestStore_SaveRejects(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		up   Upload
		want error
	}{
		{"type", Upload{Filename: "a.gif", ContentType: "image/gif", Body: strings.NewReader("GIF89a")}, ErrUnsupportedType},
		{"empty", Upload{Filename: "a.png", ContentType: "image/png", Body: strings.NewReader("")}, ErrEmpty},
		{"too large", Upload{Filename: "a.png", ContentType: "image/png", Body: bytes.NewReader(make([]byte, MaxSize+1))}, ErrTooLarge},
		{"not an image", Upload{Filename: "a.png", ContentType: "image/png", Body: strings.NewReader("hello")}, ErrInvalidImage},
		{"too small", Upload{Filename: "a.png", ContentType: "image/png", Body: bytes.NewReader(makePNG(t, 50, 50))}, ErrInvalidImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Save(ctx, tt.up); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	entries, _ := os.ReadDir(store.Dir())
	if len(entries) != 0 {
		t.Errorf("rejected uploads should not be written, found %d files", len(entries))
	}
}

func TestStore_ResolveMissing(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	for _, id := range []string{"../etc/passwd", "00000000-0000-0000-0000-000000000000"} {
		if _, _, err := store.Resolve(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Resolve(%q): expected ErrNotFound, got %v", id, err)
		}
	}

	f, err := store.Save(ctx, Upload{Filename: "a.png", Body: bytes.NewReader(makePNG(t, 200, 200))})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.Remove(filepath.Join(store.Dir(), f.StoredName)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Resolve(ctx, f.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for a deleted file, got %v", err)
	}
}

func TestStore_Cleanup(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()

	oldF, err := store.Save(ctx, Upload{Filename: "old.png", Body: bytes.NewReader(makePNG(t, 200, 200))})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	newF, err := store.Save(ctx, Upload{Filename: "new.png", Body: bytes.NewReader(makePNG(t, 200, 200))})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(filepath.Join(store.Dir(), oldF.StoredName), past, past); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE flyers SET created_at = ? WHERE id = ?`,
		past.UTC().Format(time.RFC3339), oldF.ID); err != nil {
		t.Fatal(err)
	}

	n, err := store.Cleanup(ctx, DefaultMaxAge)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d files, want 1", n)
	}
	if _, err := store.Get(ctx, oldF.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("old flyer row should be gone, got %v", err)
	}
	if _, _, err := store.Resolve(ctx, newF.ID); err != nil {
		t.Errorf("new flyer should survive: %v", err)
	}
}

func TestStore_StartCleanupStops(t *testing.T) {
	store, _ := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.StartCleanup(ctx, 10*time.Millisecond, time.Hour)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StartCleanup did not stop after cancel")
	}
}
