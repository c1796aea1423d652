package inbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/festlist/festlist/internal/extraction"
)

// fakeImporter records imported file names and fails for names in fail.
type fakeImporter struct {
	mu    sync.Mutex
	names []string
	fail  map[string]bool
}

func (f *fakeImporter) Import(_ context.Context, path string) (*extraction.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := filepath.Base(path)
	f.names = append(f.names, name)
	if f.fail[name] {
		return nil, errors.New("unreadable flyer")
	}
	return &extraction.Record{ID: "r-" + name}, nil
}

func (f *fakeImporter) imported() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.names)
}

func startWatcher(t *testing.T, dir string, imp FileImporter, pollOnly bool) {
	t.Helper()
	svc := NewService(dir, imp, nil, testLogger())
	svc.SetDebounce(50 * time.Millisecond)
	svc.SetPollInterval(50 * time.Millisecond)
	svc.SetPollOnly(pollOnly)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := svc.Start(ctx); err != nil {
			t.Errorf("Start: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestWatcher_ImportsNewFile(t *testing.T) {
	dir := t.TempDir()
	imp := &fakeImporter{}
	startWatcher(t, dir, imp, false)
	waitFor(t, "processed dir", func() bool { return exists(filepath.Join(dir, ProcessedDir)) })
	time.Sleep(100 * time.Millisecond)

	writeFile(t, dir, "flyer.png", []byte("data"))
	writeFile(t, dir, "notes.pdf", []byte("ignored"))

	waitFor(t, "file moved to processed", func() bool {
		return exists(filepath.Join(dir, ProcessedDir, "flyer.png"))
	})
	if got := imp.imported(); len(got) != 1 || got[0] != "flyer.png" {
		t.Errorf("imported = %v, want [flyer.png]", got)
	}
	if !exists(filepath.Join(dir, "notes.pdf")) {
		t.Error("non-image file should be left alone")
	}
}

func TestWatcher_RapidWritesCoalesce(t *testing.T) {
	dir := t.TempDir()
	imp := &fakeImporter{}
	startWatcher(t, dir, imp, false)
	waitFor(t, "processed dir", func() bool { return exists(filepath.Join(dir, ProcessedDir)) })
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "big.jpg")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for range 5 {
		f.Write([]byte("chunk")) //nolint:errcheck
		time.Sleep(10 * time.Millisecond)
	}
	f.Close() //nolint:errcheck

	waitFor(t, "file processed", func() bool { return exists(filepath.Join(dir, ProcessedDir, "big.jpg")) })
	time.Sleep(150 * time.Millisecond)
	if got := imp.imported(); len(got) != 1 {
		t.Errorf("imported %d times, want 1: %v", len(got), got)
	}
}

func TestWatcher_Backlog(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.png", []byte("b"))
	writeFile(t, dir, "a.txt", []byte("a"))
	imp := &fakeImporter{}
	startWatcher(t, dir, imp, true)

	waitFor(t, "backlog imported", func() bool { return len(imp.imported()) == 2 })
	if got := imp.imported(); got[0] != "a.txt" || got[1] != "b.png" {
		t.Errorf("import order = %v, want name order", got)
	}
}

func TestWatcher_FailedImportMovesToFailed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.png", []byte("x"))
	imp := &fakeImporter{fail: map[string]bool{"broken.png": true}}
	startWatcher(t, dir, imp, true)

	waitFor(t, "file moved to failed", func() bool {
		return exists(filepath.Join(dir, FailedDir, "broken.png"))
	})
}

func TestWatcher_PollDetectsNewFile(t *testing.T) {
	dir := t.TempDir()
	imp := &fakeImporter{}
	startWatcher(t, dir, imp, true)
	waitFor(t, "processed dir", func() bool { return exists(filepath.Join(dir, ProcessedDir)) })

	writeFile(t, dir, "late.webp", []byte("w"))

	waitFor(t, "polled file processed", func() bool {
		return exists(filepath.Join(dir, ProcessedDir, "late.webp"))
	})
}

func TestWatcher_NameCollision(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ProcessedDir), 0o750); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, ProcessedDir), "flyer.png", []byte("old"))
	writeFile(t, dir, "flyer.png", []byte("new"))

	imp := &fakeImporter{}
	startWatcher(t, dir, imp, true)

	waitFor(t, "inbox emptied", func() bool { return !exists(filepath.Join(dir, "flyer.png")) })
	entries, err := os.ReadDir(filepath.Join(dir, ProcessedDir))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected both files kept in processed, got %d", len(entries))
	}
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(dir, &fakeImporter{}, nil, testLogger())
	svc.SetPollOnly(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}
