package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/festlist/festlist/internal/database"
	"github.com/festlist/festlist/internal/user"
)

type fakeQuota struct {
	mu          sync.Mutex
	limit, used int
}

func (f *fakeQuota) Limit() int { return f.limit }

func (f *fakeQuota) Reserve(context.Context, string) (bool, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.used >= f.limit {
		return false, 0, nil
	}
	f.used++
	return true, f.limit - f.used, nil
}

func (f *fakeQuota) Release(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used--
	return nil
}

func quotaHandler(q QuotaCounter, status int) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return Quota(q, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
}

func quotaRequest(h http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ocr", nil)
	req = req.WithContext(WithTestUserID(req.Context(), "u1"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestQuota_ConsumesOnSuccess(t *testing.T) {
	q := &fakeQuota{limit: 3}
	h := quotaHandler(q, http.StatusOK)

	for i, wantRemaining := range []string{"2", "1", "0"} {
		w := quotaRequest(h)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Remaining"); got != wantRemaining {
			t.Errorf("request %d: remaining = %q, want %q", i+1, got, wantRemaining)
		}
		if got := w.Header().Get("X-RateLimit-Limit"); got != "3" {
			t.Errorf("limit header = %q", got)
		}
	}

	w := quotaRequest(h)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if q.used != 3 {
		t.Errorf("used = %d, want 3", q.used)
	}
}

func TestQuota_FailedRequestsAreFree(t *testing.T) {
	q := &fakeQuota{limit: 3}
	w := quotaRequest(quotaHandler(q, http.StatusBadRequest))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if q.used != 0 {
		t.Errorf("failed request consumed quota")
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "3" {
		t.Errorf("remaining = %q, want 3", got)
	}
}

func TestQuota_ConcurrentRequestsRespectLimit(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Exec(`INSERT INTO users (id, spotify_id, created_at, updated_at) VALUES ('u1', 's1', '', '')`); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Quota(user.NewQuota(db, 3), logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code := quotaRequest(h).Code
			mu.Lock()
			statuses[code]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if statuses[http.StatusOK] != 3 || statuses[http.StatusTooManyRequests] != 5 {
		t.Errorf("statuses = %v, want 3 OK and 5 Too Many Requests", statuses)
	}
}

func TestQuota_FailedRequestReleasesUnit(t *testing.T) {
	q := &fakeQuota{limit: 1}
	if w := quotaRequest(quotaHandler(q, http.StatusBadGateway)); w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", w.Code)
	}
	if w := quotaRequest(quotaHandler(q, http.StatusOK)); w.Code != http.StatusOK {
		t.Errorf("released unit should allow a later request, got %d", w.Code)
	}
	if w := quotaRequest(quotaHandler(q, http.StatusOK)); w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

func TestQuota_RequiresUser(t *testing.T) {
	h := quotaHandler(&fakeQuota{limit: 3}, http.StatusOK)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ocr", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSecondsUntilMidnightUTC(t *testing.T) {
	now := time.Date(2026, 10, 19, 23, 59, 0, 0, time.UTC)
	if got := secondsUntilMidnightUTC(now); got != 60 {
		t.Errorf("got %d, want 60", got)
	}
}
