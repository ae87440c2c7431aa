package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Cadence/internal/breaker"
	"github.com/shaiso/Cadence/internal/domain"
	"github.com/shaiso/Cadence/internal/ledger"
	"github.com/shaiso/Cadence/internal/lock"
	"github.com/shaiso/Cadence/internal/queue"
	"github.com/shaiso/Cadence/internal/repo"
)

const testToken = "test-admin-token"

// fakeLeaseStore holds a single optional lease.
type fakeLeaseStore struct {
	lease *domain.Lease
}

func (s *fakeLeaseStore) Acquire(ctx context.Context, resourceName, holderID string, ttl time.Duration) (*domain.Lease, bool, error) {
	now := time.Now()
	s.lease = &domain.Lease{
		ResourceName: resourceName,
		HolderID:     holderID,
		AcquiredAt:   now,
		ExpiresAt:    now.Add(ttl),
	}
	return s.lease, true, nil
}

func (s *fakeLeaseStore) Extend(ctx context.Context, resourceName, holderID string, ttl time.Duration) (*domain.Lease, bool, error) {
	return s.lease, s.lease != nil, nil
}

func (s *fakeLeaseStore) Delete(ctx context.Context, resourceName, holderID string) (bool, error) {
	if s.lease == nil || s.lease.HolderID != holderID {
		return false, nil
	}
	s.lease = nil
	return true, nil
}

func (s *fakeLeaseStore) Get(ctx context.Context, resourceName string) (*domain.Lease, error) {
	if s.lease == nil {
		return nil, repo.ErrNotFound
	}
	return s.lease, nil
}

// fakeExecutionStore serves canned records and stats.
type fakeExecutionStore struct {
	records []domain.ExecutionRecord
	stats   domain.ExecutionStats
}

func (s *fakeExecutionStore) TryCreate(ctx context.Context, subjectID, jobID, period string) (*domain.ExecutionRecord, bool, error) {
	return nil, false, errors.New("not implemented")
}

func (s *fakeExecutionStore) TryReset(ctx context.Context, executionID string, staleAfter time.Duration) (*domain.ExecutionRecord, bool, error) {
	return nil, false, errors.New("not implemented")
}

func (s *fakeExecutionStore) Get(ctx context.Context, executionID string) (*domain.ExecutionRecord, error) {
	return nil, repo.ErrNotFound
}

func (s *fakeExecutionStore) MarkStarted(ctx context.Context, executionID string) (bool, error) {
	return false, nil
}

func (s *fakeExecutionStore) MarkCompleted(ctx context.Context, executionID string) (bool, error) {
	return false, nil
}

func (s *fakeExecutionStore) MarkFailed(ctx context.Context, executionID, errorSummary string) (bool, error) {
	return false, nil
}

func (s *fakeExecutionStore) Recent(ctx context.Context, limit int, status domain.ExecutionStatus) ([]domain.ExecutionRecord, error) {
	var out []domain.ExecutionRecord
	for _, record := range s.records {
		if status != "" && record.Status != status {
			continue
		}
		out = append(out, record)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeExecutionStore) Stats(ctx context.Context, window time.Duration) (*domain.ExecutionStats, error) {
	stats := s.stats
	stats.Window = window
	return &stats, nil
}

func (s *fakeExecutionStore) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	return 0, nil
}

type testServer struct {
	mux     *http.ServeMux
	leases  *fakeLeaseStore
	breaker *breaker.Breaker
	queue   *queue.Queue
}

func newTestServer(t *testing.T, executions *fakeExecutionStore) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if executions == nil {
		executions = &fakeExecutionStore{stats: domain.ExecutionStats{SuccessRate: 1.0}}
	}
	leases := &fakeLeaseStore{}

	brk := breaker.New(breaker.Config{Logger: logger})
	q := queue.New(queue.Config{Logger: logger})

	handler := NewHandler(Config{
		Ledger:     ledger.New(ledger.Config{Store: executions, Logger: logger}),
		Lock:       lock.New(lock.Config{Store: leases, HolderID: "api-test", Logger: logger}),
		Breaker:    brk,
		Queue:      q,
		AdminToken: testToken,
		Logger:     logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	return &testServer{mux: mux, leases: leases, breaker: brk, queue: q}
}

func (s *testServer) do(method, path, body string, authorized bool) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if authorized {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func TestGetHealth_AllQuiet(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/api/v1/health", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Data HealthResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.Data.Status != "ok" || resp.Data.Score != 100 {
		t.Errorf("health = %s/%d, want ok/100", resp.Data.Status, resp.Data.Score)
	}
	if len(resp.Data.Issues) != 0 {
		t.Errorf("issues = %v, want none", resp.Data.Issues)
	}
}

func TestComputeHealth_Scoring(t *testing.T) {
	tests := []struct {
		name       string
		in         healthInput
		wantScore  int
		wantStatus string
	}{
		{
			name: "all quiet",
			in: healthInput{
				stats: &domain.ExecutionStats{SuccessRate: 1.0},
			},
			wantScore:  100,
			wantStatus: "ok",
		},
		{
			name: "half-open breaker only",
			in: healthInput{
				breaker: breaker.Status{State: domain.BreakerHalfOpen},
				stats:   &domain.ExecutionStats{SuccessRate: 1.0},
			},
			wantScore:  90,
			wantStatus: "ok",
		},
		{
			name: "open breaker with bad success rate",
			in: healthInput{
				breaker: breaker.Status{State: domain.BreakerOpen},
				stats:   &domain.ExecutionStats{SuccessRate: 0.5, Completed: 1, Failed: 1},
			},
			wantScore:  30,
			wantStatus: "unhealthy",
		},
		{
			name: "backlog only",
			in: healthInput{
				queue: queue.Counters{Queued: 25},
				stats: &domain.ExecutionStats{SuccessRate: 1.0},
			},
			wantScore:  80,
			wantStatus: "ok",
		},
		{
			name: "backlog with bad success rate",
			in: healthInput{
				queue: queue.Counters{Queued: 25},
				stats: &domain.ExecutionStats{SuccessRate: 0.8, Completed: 4, Failed: 1},
			},
			wantScore:  50,
			wantStatus: "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, status, _ := computeHealth(tt.in)
			if score != tt.wantScore || status != tt.wantStatus {
				t.Errorf("computeHealth() = %d/%s, want %d/%s",
					score, status, tt.wantScore, tt.wantStatus)
			}
		})
	}
}

func TestAllEndpoints_RequireToken(t *testing.T) {
	srv := newTestServer(t, nil)

	// The whole facade is an operator surface: reads leak holder ids
	// and failure details, so they are gated the same as remediation.
	endpoints := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/health"},
		{http.MethodGet, "/api/v1/executions"},
		{http.MethodGet, "/api/v1/stats"},
		{http.MethodGet, "/api/v1/circuit-breaker"},
		{http.MethodGet, "/api/v1/queue"},
		{http.MethodGet, "/api/v1/lock"},
		{http.MethodPost, "/api/v1/circuit-breaker/reset"},
		{http.MethodPost, "/api/v1/queue/clear"},
		{http.MethodPost, "/api/v1/lock/release"},
	}
	for _, e := range endpoints {
		rec := srv.do(e.method, e.path, "", false)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status = %d, want 401", e.method, e.path, rec.Code)
		}
	}
}

func TestResetBreaker(t *testing.T) {
	srv := newTestServer(t, nil)

	// Trip the breaker: defaults open it after 5 consecutive failures.
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = srv.breaker.Do(ctx, func(ctx context.Context) error {
			return errors.New("boom")
		})
	}
	if srv.breaker.State() != domain.BreakerOpen {
		t.Fatalf("breaker state = %s, want OPEN", srv.breaker.State())
	}

	rec := srv.do(http.MethodPost, "/api/v1/circuit-breaker/reset", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if srv.breaker.State() != domain.BreakerClosed {
		t.Errorf("breaker state after reset = %s, want CLOSED", srv.breaker.State())
	}
}

func TestClearQueue(t *testing.T) {
	srv := newTestServer(t, nil)

	// Jobs queued but never started: the queue has no workers here.
	for i := 0; i < 3; i++ {
		srv.queue.Add(&queue.Job{ID: "job", Execute: func(ctx context.Context) error { return nil }})
	}

	rec := srv.do(http.MethodPost, "/api/v1/queue/clear", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Data ClearQueueResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Cleared != 3 {
		t.Errorf("cleared = %d, want 3", resp.Data.Cleared)
	}
}

func TestReleaseLock(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	if _, _, err := srv.leases.Acquire(ctx, domain.LeaseResourceScheduler, "stuck-instance", time.Hour); err != nil {
		t.Fatalf("seeding lease: %v", err)
	}

	// Wrong holder id must not release anything.
	rec := srv.do(http.MethodPost, "/api/v1/lock/release", `{"holder_id":"other"}`, true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("wrong holder: status = %d, want 404", rec.Code)
	}

	// Missing holder id is a bad request.
	rec = srv.do(http.MethodPost, "/api/v1/lock/release", `{}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty holder: status = %d, want 400", rec.Code)
	}

	rec = srv.do(http.MethodPost, "/api/v1/lock/release", `{"holder_id":"stuck-instance"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = srv.do(http.MethodGet, "/api/v1/lock", "", true)
	var resp struct {
		Data LockResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Held {
		t.Error("lock still reported as held after release")
	}
}

func TestListExecutions_FilterAndLimit(t *testing.T) {
	now := time.Now()
	executions := &fakeExecutionStore{
		stats: domain.ExecutionStats{SuccessRate: 1.0},
		records: []domain.ExecutionRecord{
			{ExecutionID: "U1_daily-digest_2026-01-03", Status: domain.ExecutionStatusCompleted, CreatedAt: now},
			{ExecutionID: "U2_daily-digest_2026-01-03", Status: domain.ExecutionStatusFailed, CreatedAt: now},
			{ExecutionID: "U3_daily-digest_2026-01-03", Status: domain.ExecutionStatusCompleted, CreatedAt: now},
		},
	}
	srv := newTestServer(t, executions)

	rec := srv.do(http.MethodGet, "/api/v1/executions?status=FAILED", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Data []ExecutionResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ExecutionID != "U2_daily-digest_2026-01-03" {
		t.Errorf("filtered executions = %+v, want only the failed one", resp.Data)
	}

	rec = srv.do(http.MethodGet, "/api/v1/executions?status=BOGUS", "", true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus status filter: status = %d, want 400", rec.Code)
	}

	// Non-positive limits would reach SQL LIMIT otherwise.
	for _, limit := range []string{"-1", "0", "bogus"} {
		rec = srv.do(http.MethodGet, "/api/v1/executions?limit="+limit, "", true)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", limit, rec.Code)
		}
	}
}

func TestGetStats_HoursParam(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(http.MethodGet, "/api/v1/stats?hours=1", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Data StatsResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Window != "1h0m0s" {
		t.Errorf("window = %q, want 1h0m0s", resp.Data.Window)
	}

	// Unparseable and non-positive values must not be silently
	// replaced with the default window.
	for _, hours := range []string{"bogus", "0", "-3"} {
		rec = srv.do(http.MethodGet, "/api/v1/stats?hours="+hours, "", true)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("hours=%s: status = %d, want 400", hours, rec.Code)
		}
	}

	// window= stays usable as an alias.
	rec = srv.do(http.MethodGet, "/api/v1/stats?window=30m", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("window alias: status = %d, want 200", rec.Code)
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Window != "30m0s" {
		t.Errorf("window = %q, want 30m0s", resp.Data.Window)
	}
}
