// Package inbox imports flyers dropped into a watched directory.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/festlist/festlist/internal/event"
	"github.com/festlist/festlist/internal/extraction"
)

// Subdirectories files are moved to once handled.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// FileImporter handles one settled inbox file. *Importer implements it.
type FileImporter interface {
	Import(ctx context.Context, path string) (*extraction.Record, error)
}

// Service watches the inbox directory. New or modified files are imported
// once no further events arrived for the debounce interval, then moved to
// processed/ or failed/. When fsnotify does not deliver events for the
// directory, it is polled instead.
type Service struct {
	dir          string
	importer     FileImporter
	bus          *event.Bus
	logger       *slog.Logger
	debounce     time.Duration
	pollInterval time.Duration
	pollOnly     bool

	mu       sync.Mutex
	pending  map[string]struct{}
	snapshot map[string]struct{}
}

// NewService creates an inbox watcher for dir. bus may be nil.
func NewService(dir string, importer FileImporter, bus *event.Bus, logger *slog.Logger) *Service {
	return &Service{
		dir:          dir,
		importer:     importer,
		bus:          bus,
		logger:       logger.With("component", "inbox-watcher"),
		debounce:     2 * time.Second,
		pollInterval: 30 * time.Second,
		pending:      make(map[string]struct{}),
	}
}

// SetDebounce overrides the default debounce interval.
func (s *Service) SetDebounce(d time.Duration) {
	if d > 0 {
		s.debounce = d
	}
}

// SetPollInterval overrides how often the directory is polled in
// poll-only mode.
func (s *Service) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.pollInterval = d
	}
}

// SetPollOnly disables fsnotify.
func (s *Service) SetPollOnly(v bool) {
	s.pollOnly = v
}

// Start blocks until ctx is canceled. Files already waiting in the inbox
// are imported first.
func (s *Service) Start(ctx context.Context) error {
	for _, sub := range []string{ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(s.dir, sub), 0o750); err != nil {
			return fmt.Errorf("creating inbox directory: %w", err)
		}
	}

	var eventCh <-chan fsnotify.Event
	var errCh <-chan error
	if w := s.openWatcher(); w != nil {
		defer w.Close() //nolint:errcheck
		eventCh = w.Events
		errCh = w.Errors
	}

	// Poll ticker only runs when fsnotify is unavailable.
	var pollCh <-chan time.Time
	if eventCh == nil {
		t := time.NewTicker(s.pollInterval)
		defer t.Stop()
		pollCh = t.C
	}

	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	reset := func() {
		if !debounceTimer.Stop() {
			select {
			case <-debounceTimer.C:
			default:
			}
		}
		debounceTimer.Reset(s.debounce)
	}

	s.mu.Lock()
	s.snapshot = readFileSnapshot(s.dir)
	for name := range s.snapshot {
		s.pending[filepath.Join(s.dir, name)] = struct{}{}
	}
	backlog := len(s.pending)
	s.mu.Unlock()
	if backlog > 0 {
		s.logger.Info("importing inbox backlog", "files", backlog)
		reset()
	}

	s.logger.Info("inbox watcher starting", "dir", s.dir, "poll_only", eventCh == nil)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("inbox watcher stopping")
			return nil

		case ev, ok := <-eventCh:
			if !ok {
				return nil
			}
			if s.handleFSEvent(ev) {
				reset()
			}

		case err, ok := <-errCh:
			if !ok {
				return nil
			}
			s.logger.Error("fsnotify error", "error", err)

		case <-debounceTimer.C:
			s.flush(ctx)

		case <-pollCh:
			if s.poll() {
				reset()
			}
		}
	}
}

func (s *Service) openWatcher() *fsnotify.Watcher {
	if s.pollOnly {
		return nil
	}
	if !ProbeFSNotify(s.dir, 2*time.Second) {
		s.logger.Warn("fsnotify does not deliver events for inbox, polling instead", "dir", s.dir)
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("fsnotify unavailable, polling instead", "error", err)
		return nil
	}
	if err := w.Add(s.dir); err != nil {
		s.logger.Warn("failed to watch inbox, polling instead", "dir", s.dir, "error", err)
		w.Close() //nolint:errcheck
		return nil
	}
	return w
}

// handleFSEvent queues importable files and reports whether the debounce
// timer should restart.
func (s *Service) handleFSEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if filepath.Dir(ev.Name) != filepath.Clean(s.dir) || !Importable(ev.Name) {
		return false
	}

	s.mu.Lock()
	s.pending[ev.Name] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("inbox file changed", "path", ev.Name, "op", ev.Op.String())
	return true
}

// poll compares the directory with the last snapshot and queues new files.
func (s *Service) poll() bool {
	snap := readFileSnapshot(s.dir)
	if snap == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for name := range snap {
		if _, known := s.snapshot[name]; !known {
			s.pending[filepath.Join(s.dir, name)] = struct{}{}
			changed = true
		}
	}
	s.snapshot = snap
	return changed
}

// flush imports every queued file that still exists, in name order.
func (s *Service) flush(ctx context.Context) {
	s.mu.Lock()
	paths := make([]string, 0, len(s.pending))
	for p := range s.pending {
		paths = append(paths, p)
	}
	clear(s.pending)
	s.mu.Unlock()
	slices.Sort(paths)

	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		dest := ProcessedDir
		if _, err := s.importer.Import(ctx, path); err != nil {
			dest = FailedDir
			s.logger.Error("inbox import failed", "path", path, "error", err)
			s.bus.Publish(event.Event{
				Type: event.ImportFailed,
				Data: map[string]any{"path": path, "error": err.Error()},
			})
		}
		if err := s.move(path, dest); err != nil {
			s.logger.Error("moving inbox file", "path", path, "error", err)
		}
	}
}

// move files path into the named subdirectory, prefixing a timestamp when
// a file with the same name is already there.
func (s *Service) move(path, sub string) error {
	name := filepath.Base(path)
	target := filepath.Join(s.dir, sub, name)
	if _, err := os.Stat(target); err == nil {
		target = filepath.Join(s.dir, sub, time.Now().UTC().Format("20060102T150405.000")+"_"+name)
	}
	if err := os.Rename(path, target); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.snapshot, name)
	s.mu.Unlock()
	return nil
}

// readFileSnapshot returns the names of importable files directly in dir.
func readFileSnapshot(dir string) map[string]struct{} {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	snap := make(map[string]struct{})
	for _, e := range entries {
		if e.Type().IsRegular() && Importable(e.Name()) {
			snap[e.Name()] = struct{}{}
		}
	}
	return snap
}
