package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Cadence/internal/domain"
	"github.com/shaiso/Cadence/internal/repo"
)

// memLeaseStore — in-memory реализация LeaseStore с управляемыми часами.
// Повторяет семантику условных SQL statements из repo.LeaseRepo.
type memLeaseStore struct {
	mu     sync.Mutex
	leases map[string]*domain.Lease
	now    time.Time

	extendErr error // если задана, Extend возвращает эту ошибку
}

func newMemLeaseStore() *memLeaseStore {
	return &memLeaseStore{
		leases: make(map[string]*domain.Lease),
		now:    time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC),
	}
}

func (s *memLeaseStore) advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
}

func (s *memLeaseStore) Acquire(_ context.Context, resourceName, holderID string, ttl time.Duration) (*domain.Lease, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.leases[resourceName]
	if ok && existing.HolderID != holderID && s.now.Before(existing.ExpiresAt) {
		return nil, false, nil
	}

	acquiredAt := s.now
	if ok && existing.HolderID == holderID && s.now.Before(existing.ExpiresAt) {
		acquiredAt = existing.AcquiredAt
	}

	lease := &domain.Lease{
		ResourceName:    resourceName,
		HolderID:        holderID,
		AcquiredAt:      acquiredAt,
		ExpiresAt:       s.now.Add(ttl),
		LastHeartbeatAt: s.now,
	}
	s.leases[resourceName] = lease
	copied := *lease
	return &copied, true, nil
}

func (s *memLeaseStore) Extend(_ context.Context, resourceName, holderID string, ttl time.Duration) (*domain.Lease, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.extendErr != nil {
		return nil, false, s.extendErr
	}

	existing, ok := s.leases[resourceName]
	if !ok || existing.HolderID != holderID || !s.now.Before(existing.ExpiresAt) {
		return nil, false, nil
	}

	existing.ExpiresAt = s.now.Add(ttl)
	existing.LastHeartbeatAt = s.now
	copied := *existing
	return &copied, true, nil
}

func (s *memLeaseStore) Delete(_ context.Context, resourceName, holderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.leases[resourceName]
	if !ok || existing.HolderID != holderID {
		return false, nil
	}
	delete(s.leases, resourceName)
	return true, nil
}

func (s *memLeaseStore) Get(_ context.Context, resourceName string) (*domain.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.leases[resourceName]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *existing
	return &copied, nil
}

func newTestLock(store LeaseStore, holderID string) *Lock {
	return New(Config{
		Store:    store,
		HolderID: holderID,
		TTL:      5 * time.Minute,
		Interval: 2 * time.Minute,
	})
}

func TestLock_Exclusivity(t *testing.T) {
	store := newMemLeaseStore()
	ctx := context.Background()

	a := newTestLock(store, "instance-a")
	b := newTestLock(store, "instance-b")

	ok, err := a.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("instance-a should acquire: ok=%v err=%v", ok, err)
	}

	ok, err = b.Acquire(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("instance-b must not acquire while instance-a holds an unexpired lease")
	}
}

func TestLock_ConcurrentAcquire_SingleWinner(t *testing.T) {
	store := newMemLeaseStore()
	ctx := context.Background()

	const instances = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < instances; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			l := New(Config{Store: store, TTL: time.Minute})
			ok, err := l.Acquire(ctx)
			if err != nil {
				t.Errorf("acquire error: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly 1 winner, got %d", winners)
	}
}

func TestLock_Reentrant(t *testing.T) {
	store := newMemLeaseStore()
	ctx := context.Background()

	a := newTestLock(store, "instance-a")

	for i := 0; i < 2; i++ {
		ok, err := a.Acquire(ctx)
		if err != nil || !ok {
			t.Fatalf("acquire %d: ok=%v err=%v", i, ok, err)
		}
	}
}

func TestLock_SelfHealing(t *testing.T) {
	store := newMemLeaseStore()
	ctx := context.Background()

	a := newTestLock(store, "instance-a")
	b := newTestLock(store, "instance-b")

	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("instance-a should acquire")
	}

	// Before expiry the lease is still held
	store.advance(4 * time.Minute)
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatal("instance-b must not acquire before the lease expires")
	}

	// instance-a stops heartbeating; past the TTL the lease is up for grabs
	store.advance(2 * time.Minute)
	ok, err := b.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("instance-b should acquire after expiry: ok=%v err=%v", ok, err)
	}
}

func TestLock_HeartbeatAfterTakeover(t *testing.T) {
	store := newMemLeaseStore()
	ctx := context.Background()

	a := newTestLock(store, "instance-a")
	b := newTestLock(store, "instance-b")

	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("instance-a should acquire")
	}

	store.advance(6 * time.Minute)
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatal("instance-b should acquire after expiry")
	}

	// instance-a silently lost the lease; its heartbeat must fail
	ok, err := a.Heartbeat(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("heartbeat must fail after another holder took over")
	}
}

func TestLock_HeartbeatExtendsExpiry(t *testing.T) {
	store := newMemLeaseStore()
	ctx := context.Background()

	a := newTestLock(store, "instance-a")
	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("instance-a should acquire")
	}

	store.advance(4 * time.Minute)
	if ok, _ := a.Heartbeat(ctx); !ok {
		t.Fatal("heartbeat should succeed before expiry")
	}

	// The heartbeat pushed expiry forward: 4 more minutes is still inside TTL
	store.advance(4 * time.Minute)
	b := newTestLock(store, "instance-b")
	if ok, _ := b.Acquire(ctx); ok {
		t.Error("instance-b must not acquire a renewed lease")
	}
}

func TestLock_ReleaseAndForceRelease(t *testing.T) {
	store := newMemLeaseStore()
	ctx := context.Background()

	a := newTestLock(store, "instance-a")
	b := newTestLock(store, "instance-b")

	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("instance-a should acquire")
	}

	// Force release with a wrong holder id is a no-op
	released, err := b.ForceRelease(ctx, "instance-x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if released {
		t.Error("force release with wrong holder id must not release")
	}

	// Matching holder id releases the lease
	released, err = b.ForceRelease(ctx, "instance-a")
	if err != nil || !released {
		t.Fatalf("force release should succeed: released=%v err=%v", released, err)
	}

	if ok, _ := b.Acquire(ctx); !ok {
		t.Error("instance-b should acquire after force release")
	}

	if released, _ := b.Release(ctx); !released {
		t.Error("holder should release its own lease")
	}

	if _, err := b.Inspect(ctx); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound after release, got %v", err)
	}
}

func TestLock_HeartbeatLoopSignalsLoss(t *testing.T) {
	store := newMemLeaseStore()
	ctx := context.Background()

	a := New(Config{
		Store:    store,
		HolderID: "instance-a",
		TTL:      5 * time.Minute,
		Interval: 10 * time.Millisecond,
	})

	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("instance-a should acquire")
	}

	// Simulate store failure on the next heartbeat
	store.mu.Lock()
	store.extendErr = errors.New("connection refused")
	store.mu.Unlock()

	lost := make(chan error, 1)
	go a.HeartbeatLoop(ctx, func(err error) { lost <- err })

	select {
	case err := <-lost:
		if err == nil {
			t.Error("expected loss with error")
		}
	case <-time.After(time.Second):
		t.Fatal("heartbeat loop did not signal loss")
	}
}

func TestNewHolderID_Distinct(t *testing.T) {
	if NewHolderID() == NewHolderID() {
		t.Error("holder ids must be distinct across instances")
	}
}
