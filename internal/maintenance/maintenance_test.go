package maintenance

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/festlist/festlist/internal/database"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fakeSessions struct {
	n   int64
	err error
}

func (f *fakeSessions) CleanExpiredSessions(context.Context) (int64, error) { return f.n, f.err }

type fakeUsage struct {
	keep int
	n    int64
}

func (f *fakeUsage) Prune(_ context.Context, keep int) (int64, error) {
	f.keep = keep
	return f.n, nil
}

func TestOptimize_RecordsTimestamp(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, nil, nil, testLogger())
	ctx := context.Background()

	if !svc.LastOptimize(ctx).IsZero() {
		t.Fatal("expected no optimize timestamp before first run")
	}
	at, err := svc.Optimize(ctx)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if got := svc.LastOptimize(ctx); !got.Equal(at) {
		t.Errorf("LastOptimize = %v, want %v", got, at)
	}
}

func TestSweep(t *testing.T) {
	db := setupTestDB(t)
	usage := &fakeUsage{n: 4}
	svc := NewService(db, &fakeSessions{n: 2}, usage, testLogger())

	rep, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if rep.SessionsRemoved != 2 || rep.UsageRowsPruned != 4 {
		t.Errorf("unexpected report: %+v", rep)
	}
	if usage.keep != DefaultUsageRetentionDays {
		t.Errorf("prune keep = %d", usage.keep)
	}
	if rep.OptimizedAt.IsZero() {
		t.Error("expected optimize to run")
	}
}

func TestSweep_ContinuesAfterFailure(t *testing.T) {
	db := setupTestDB(t)
	boom := errors.New("boom")
	usage := &fakeUsage{n: 1}
	svc := NewService(db, &fakeSessions{err: boom}, usage, testLogger())

	rep, err := svc.Sweep(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected session error, got %v", err)
	}
	if rep.UsageRowsPruned != 1 || rep.OptimizedAt.IsZero() {
		t.Errorf("later steps should still run: %+v", rep)
	}
}

func TestStartScheduler_StopsOnCancel(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, nil, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.StartScheduler(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
