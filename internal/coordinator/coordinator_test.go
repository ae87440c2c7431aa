package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Cadence/internal/breaker"
	"github.com/shaiso/Cadence/internal/domain"
	"github.com/shaiso/Cadence/internal/jobbody"
	"github.com/shaiso/Cadence/internal/ledger"
	"github.com/shaiso/Cadence/internal/lock"
	"github.com/shaiso/Cadence/internal/queue"
	"github.com/shaiso/Cadence/internal/repo"
)

// --- In-memory lease store ---

type memLeaseStore struct {
	mu         sync.Mutex
	leases     map[string]*domain.Lease
	denyExtend bool
}

func newMemLeaseStore() *memLeaseStore {
	return &memLeaseStore{leases: make(map[string]*domain.Lease)}
}

func (s *memLeaseStore) Acquire(ctx context.Context, resourceName, holderID string, ttl time.Duration) (*domain.Lease, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	existing, ok := s.leases[resourceName]
	if ok && existing.ExpiresAt.After(now) && existing.HolderID != holderID {
		return nil, false, nil
	}

	lease := &domain.Lease{
		ResourceName: resourceName,
		HolderID:     holderID,
		AcquiredAt:   now,
		ExpiresAt:    now.Add(ttl),
	}
	if ok && existing.HolderID == holderID {
		lease.AcquiredAt = existing.AcquiredAt
	}
	s.leases[resourceName] = lease
	return lease, true, nil
}

func (s *memLeaseStore) Extend(ctx context.Context, resourceName, holderID string, ttl time.Duration) (*domain.Lease, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.leases[resourceName]
	if !ok || existing.HolderID != holderID || s.denyExtend {
		return nil, false, nil
	}
	existing.ExpiresAt = time.Now().Add(ttl)
	return existing, true, nil
}

func (s *memLeaseStore) Delete(ctx context.Context, resourceName, holderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.leases[resourceName]
	if !ok || existing.HolderID != holderID {
		return false, nil
	}
	delete(s.leases, resourceName)
	return true, nil
}

func (s *memLeaseStore) Get(ctx context.Context, resourceName string) (*domain.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.leases[resourceName]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *existing
	return &copied, nil
}

// --- In-memory execution store ---

type memExecutionStore struct {
	mu      sync.Mutex
	records map[string]*domain.ExecutionRecord
}

func newMemExecutionStore() *memExecutionStore {
	return &memExecutionStore{records: make(map[string]*domain.ExecutionRecord)}
}

func (s *memExecutionStore) TryCreate(ctx context.Context, subjectID, jobID, period string) (*domain.ExecutionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := domain.ExecutionID(subjectID, jobID, period)
	if _, ok := s.records[id]; ok {
		return nil, false, nil
	}

	now := time.Now()
	record := &domain.ExecutionRecord{
		ExecutionID: id,
		SubjectID:   subjectID,
		JobID:       jobID,
		Period:      period,
		Status:      domain.ExecutionStatusPending,
		Attempt:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.records[id] = record
	copied := *record
	return &copied, true, nil
}

func (s *memExecutionStore) TryReset(ctx context.Context, executionID string, staleAfter time.Duration) (*domain.ExecutionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[executionID]
	if !ok {
		return nil, false, nil
	}

	resettable := record.Status == domain.ExecutionStatusFailed ||
		record.IsStaleRunning(time.Now(), staleAfter)
	if !resettable {
		return nil, false, nil
	}

	record.Status = domain.ExecutionStatusPending
	record.Attempt++
	record.StartedAt = nil
	record.FinishedAt = nil
	record.ErrorSummary = ""
	record.UpdatedAt = time.Now()
	copied := *record
	return &copied, true, nil
}

func (s *memExecutionStore) Get(ctx context.Context, executionID string) (*domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[executionID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *memExecutionStore) MarkStarted(ctx context.Context, executionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[executionID]
	if !ok || record.Status != domain.ExecutionStatusPending {
		return false, nil
	}
	now := time.Now()
	record.Status = domain.ExecutionStatusRunning
	record.StartedAt = &now
	record.UpdatedAt = now
	return true, nil
}

func (s *memExecutionStore) MarkCompleted(ctx context.Context, executionID string) (bool, error) {
	return s.finish(executionID, domain.ExecutionStatusCompleted, "")
}

func (s *memExecutionStore) MarkFailed(ctx context.Context, executionID, errorSummary string) (bool, error) {
	return s.finish(executionID, domain.ExecutionStatusFailed, errorSummary)
}

func (s *memExecutionStore) finish(executionID string, status domain.ExecutionStatus, errorSummary string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[executionID]
	if !ok || record.Status.IsTerminal() {
		return false, nil
	}
	now := time.Now()
	record.Status = status
	record.FinishedAt = &now
	record.ErrorSummary = errorSummary
	record.UpdatedAt = now
	return true, nil
}

func (s *memExecutionStore) Recent(ctx context.Context, limit int, status domain.ExecutionStatus) ([]domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ExecutionRecord
	for _, record := range s.records {
		if status != "" && record.Status != status {
			continue
		}
		out = append(out, *record)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memExecutionStore) Stats(ctx context.Context, window time.Duration) (*domain.ExecutionStats, error) {
	return &domain.ExecutionStats{Window: window, SuccessRate: 1.0}, nil
}

func (s *memExecutionStore) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	return 0, nil
}

// --- Test harness ---

type testEnv struct {
	leases     *memLeaseStore
	executions *memExecutionStore
	queue      *queue.Queue
	breaker    *breaker.Breaker
	coord      *Coordinator
}

type envOptions struct {
	holderID          string
	maxRetries        int
	failureThreshold  int
	subjects          []string
	heartbeatInterval time.Duration
}

func newTestEnv(t *testing.T, body jobbody.Body, opts envOptions) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if opts.holderID == "" {
		opts.holderID = "test-holder"
	}
	if opts.maxRetries == 0 {
		opts.maxRetries = -1 // no in-tick retries unless the test asks
	}
	if len(opts.subjects) == 0 {
		opts.subjects = []string{"U1"}
	}
	if opts.heartbeatInterval == 0 {
		opts.heartbeatInterval = time.Minute
	}

	return newTestEnvShared(t, body, opts, nil, nil, logger)
}

func newTestEnvShared(t *testing.T, body jobbody.Body, opts envOptions, leases *memLeaseStore, executions *memExecutionStore, logger *slog.Logger) *testEnv {
	t.Helper()

	if leases == nil {
		leases = newMemLeaseStore()
	}
	if executions == nil {
		executions = newMemExecutionStore()
	}

	lk := lock.New(lock.Config{
		Store:    leases,
		HolderID: opts.holderID,
		TTL:      time.Minute,
		Interval: opts.heartbeatInterval,
		Logger:   logger,
	})

	ldg := ledger.New(ledger.Config{
		Store:      executions,
		StaleAfter: 30 * time.Minute,
		Logger:     logger,
	})

	brk := breaker.New(breaker.Config{
		FailureThreshold: opts.failureThreshold,
		CallTimeout:      5 * time.Second,
		Logger:           logger,
	})

	q := queue.New(queue.Config{
		Concurrency: 1,
		MaxRetries:  opts.maxRetries,
		Runner:      brk.Do,
		Logger:      logger,
	})
	q.Start(context.Background())
	t.Cleanup(q.Stop)

	registry := jobbody.NewRegistry()
	registry.Register("daily-digest", body)

	periodFn, err := NewPeriodFunc(PeriodDaily, "")
	if err != nil {
		t.Fatalf("NewPeriodFunc() error = %v", err)
	}

	coord, err := New(Config{
		Lock:     lk,
		Ledger:   ldg,
		Queue:    q,
		Breaker:  brk,
		Registry: registry,
		Subjects: StaticSubjects(opts.subjects),
		JobID:    "daily-digest",
		PeriodFn: periodFn,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return &testEnv{
		leases:     leases,
		executions: executions,
		queue:      q,
		breaker:    brk,
		coord:      coord,
	}
}

func (e *testEnv) record(t *testing.T, subjectID string) *domain.ExecutionRecord {
	t.Helper()

	id := domain.ExecutionID(subjectID, "daily-digest", time.Now().UTC().Format("2006-01-02"))
	record, err := e.executions.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	return record
}

// --- Tests ---

func TestTick_ExecutesEachSubjectOnce(t *testing.T) {
	var calls atomic.Int64
	body := jobbody.BodyFunc(func(ctx context.Context, subjectID string) error {
		calls.Add(1)
		return nil
	})

	env := newTestEnv(t, body, envOptions{subjects: []string{"U1", "U2"}})
	ctx := context.Background()

	if err := env.coord.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if got := calls.Load(); got != 2 {
		t.Fatalf("body calls = %d, want 2", got)
	}
	for _, subjectID := range []string{"U1", "U2"} {
		record := env.record(t, subjectID)
		if record.Status != domain.ExecutionStatusCompleted {
			t.Errorf("%s status = %s, want COMPLETED", subjectID, record.Status)
		}
	}

	// Second tick in the same period must be a no-op: the ledger
	// already has COMPLETED records.
	if err := env.coord.Tick(ctx); err != nil {
		t.Fatalf("second Tick() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("body calls after second tick = %d, want 2", got)
	}
}

func TestTick_SkipsWhenLockHeldElsewhere(t *testing.T) {
	var calls atomic.Int64
	body := jobbody.BodyFunc(func(ctx context.Context, subjectID string) error {
		calls.Add(1)
		return nil
	})

	env := newTestEnv(t, body, envOptions{})
	ctx := context.Background()

	// Another instance holds an unexpired lease.
	if _, acquired, err := env.leases.Acquire(ctx, domain.LeaseResourceScheduler, "other-instance", time.Hour); err != nil || !acquired {
		t.Fatalf("seeding lease: acquired=%v err=%v", acquired, err)
	}

	if err := env.coord.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v, want nil skip", err)
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("body calls = %d, want 0", got)
	}
}

func TestTick_TwoInstances_AtMostOneCompletion(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	leases := newMemLeaseStore()
	executions := newMemExecutionStore()

	var calls atomic.Int64
	body := jobbody.BodyFunc(func(ctx context.Context, subjectID string) error {
		calls.Add(1)
		return nil
	})

	opts := envOptions{maxRetries: -1, subjects: []string{"U1"}, heartbeatInterval: time.Minute}
	opts.holderID = "instance-a"
	envA := newTestEnvShared(t, body, opts, leases, executions, logger)
	opts.holderID = "instance-b"
	envB := newTestEnvShared(t, body, opts, leases, executions, logger)

	ctx := context.Background()
	if err := envA.coord.Tick(ctx); err != nil {
		t.Fatalf("instance A Tick() error = %v", err)
	}

	// A released the lock after its tick; B wins the lock but finds
	// the COMPLETED record and must not execute again.
	if err := envB.coord.Tick(ctx); err != nil {
		t.Fatalf("instance B Tick() error = %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("body calls = %d, want exactly 1", got)
	}
	if record := envA.record(t, "U1"); record.Status != domain.ExecutionStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", record.Status)
	}
}

func TestTick_FailedJobRetriedNextTick(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	body := jobbody.BodyFunc(func(ctx context.Context, subjectID string) error {
		if failing.Load() {
			return errors.New("pipeline unavailable")
		}
		return nil
	})

	env := newTestEnv(t, body, envOptions{})
	ctx := context.Background()

	if err := env.coord.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	record := env.record(t, "U1")
	if record.Status != domain.ExecutionStatusFailed {
		t.Fatalf("status = %s, want FAILED", record.Status)
	}
	if record.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", record.Attempt)
	}
	if !strings.Contains(record.ErrorSummary, "pipeline unavailable") {
		t.Errorf("error summary = %q, want pipeline error", record.ErrorSummary)
	}

	// Next tick resets the FAILED record for a fresh attempt.
	failing.Store(false)
	if err := env.coord.Tick(ctx); err != nil {
		t.Fatalf("second Tick() error = %v", err)
	}
	record = env.record(t, "U1")
	if record.Status != domain.ExecutionStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", record.Status)
	}
	if record.Attempt != 2 {
		t.Errorf("attempt = %d, want 2", record.Attempt)
	}
}

func TestTick_BreakerShortCircuitsAfterThreshold(t *testing.T) {
	var calls atomic.Int64
	body := jobbody.BodyFunc(func(ctx context.Context, subjectID string) error {
		calls.Add(1)
		return errors.New("downstream down")
	})

	env := newTestEnv(t, body, envOptions{
		subjects:         []string{"U1", "U2"},
		failureThreshold: 1,
	})
	ctx := context.Background()

	if err := env.coord.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	// U1's failure opens the breaker, U2's attempt is rejected
	// without ever reaching the body.
	if got := calls.Load(); got != 1 {
		t.Fatalf("body calls = %d, want 1", got)
	}

	u1 := env.record(t, "U1")
	if u1.Status != domain.ExecutionStatusFailed {
		t.Errorf("U1 status = %s, want FAILED", u1.Status)
	}
	u2 := env.record(t, "U2")
	if u2.Status != domain.ExecutionStatusFailed {
		t.Errorf("U2 status = %s, want FAILED", u2.Status)
	}
	if !strings.Contains(u2.ErrorSummary, "circuit breaker is open") {
		t.Errorf("U2 error summary = %q, want short-circuit", u2.ErrorSummary)
	}
	if env.breaker.State() != domain.BreakerOpen {
		t.Errorf("breaker state = %s, want OPEN", env.breaker.State())
	}
}

func TestTick_HeartbeatLossAbortsDispatch(t *testing.T) {
	release := make(chan struct{})
	body := jobbody.BodyFunc(func(ctx context.Context, subjectID string) error {
		<-release
		return nil
	})

	env := newTestEnv(t, body, envOptions{
		heartbeatInterval: 10 * time.Millisecond,
	})
	defer close(release)
	ctx := context.Background()

	// Every heartbeat is denied: the lease looks taken over.
	env.leases.mu.Lock()
	env.leases.denyExtend = true
	env.leases.mu.Unlock()

	err := env.coord.Tick(ctx)
	if err == nil {
		t.Fatal("Tick() = nil, want abort error after lock loss")
	}
	if !strings.Contains(err.Error(), "aborted") {
		t.Errorf("Tick() error = %v, want abort", err)
	}

	// The record was never finalized by this instance; the next
	// holder settles it through the staleness mechanism.
	record := env.record(t, "U1")
	if record.Status.IsTerminal() {
		t.Errorf("status = %s, want non-terminal after abort", record.Status)
	}
}

func TestNewPeriodFunc_Kinds(t *testing.T) {
	// 2026-01-03 23:30 UTC is already 2026-01-04 in Tokyo.
	moment := time.Date(2026, 1, 3, 23, 30, 0, 0, time.UTC)

	tests := []struct {
		kind     string
		timezone string
		want     string
	}{
		{PeriodDaily, "", "2026-01-03"},
		{PeriodDaily, "Asia/Tokyo", "2026-01-04"},
		{PeriodWeekly, "", "2026-W01"},
		{PeriodHourly, "", "2026-01-03T23"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s", tt.kind, tt.timezone), func(t *testing.T) {
			fn, err := NewPeriodFunc(tt.kind, tt.timezone)
			if err != nil {
				t.Fatalf("NewPeriodFunc() error = %v", err)
			}
			if got := fn(moment); got != tt.want {
				t.Errorf("period = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewPeriodFunc_Invalid(t *testing.T) {
	if _, err := NewPeriodFunc("monthly", ""); err == nil {
		t.Error("expected error for unsupported kind")
	}
}

func TestNewPeriodFunc_UnknownTimezoneFallsBackToUTC(t *testing.T) {
	fn, err := NewPeriodFunc(PeriodDaily, "Not/AZone")
	if err != nil {
		t.Fatalf("NewPeriodFunc() error = %v, want UTC fallback", err)
	}

	moment := time.Date(2026, 1, 3, 23, 30, 0, 0, time.UTC)
	if got := fn(moment); got != "2026-01-03" {
		t.Errorf("period = %q, want UTC key 2026-01-03", got)
	}
}
