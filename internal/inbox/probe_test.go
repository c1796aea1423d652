package inbox

import (
	"os"
	"testing"
	"time"
)

func TestProbeFSNotify_LocalDir(t *testing.T) {
	dir := t.TempDir()
	if !ProbeFSNotify(dir, 2*time.Second) {
		t.Error("expected fsnotify to be supported on local temp dir")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}
}

func TestProbeFSNotify_NonexistentDir(t *testing.T) {
	if ProbeFSNotify("/nonexistent/path/that/does/not/exist", 500*time.Millisecond) {
		t.Error("expected fsnotify to report unsupported for nonexistent dir")
	}
}

func TestProbeFSNotify_Timeout(t *testing.T) {
	// Only verifies the probe returns without hanging.
	_ = ProbeFSNotify(t.TempDir(), time.Nanosecond)
}
