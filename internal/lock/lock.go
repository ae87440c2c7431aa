package lock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Cadence/internal/domain"
)

// LeaseStore — атомарный примитив хранения аренд.
// Production-реализация — repo.LeaseRepo (PostgreSQL).
type LeaseStore interface {
	// Acquire захватывает аренду, если она отсутствует, просрочена
	// или уже принадлежит holder'у.
	Acquire(ctx context.Context, resourceName, holderID string, ttl time.Duration) (*domain.Lease, bool, error)

	// Extend продлевает аренду, если она всё ещё принадлежит holder'у.
	Extend(ctx context.Context, resourceName, holderID string, ttl time.Duration) (*domain.Lease, bool, error)

	// Delete удаляет аренду, если holder совпадает.
	Delete(ctx context.Context, resourceName, holderID string) (bool, error)

	// Get возвращает текущую аренду (repo.ErrNotFound, если её нет).
	Get(ctx context.Context, resourceName string) (*domain.Lease, error)
}

// Lock — распределённая блокировка роли координатора поверх LeaseStore.
//
// Экземпляр, захвативший блокировку, становится единственным активным
// координатором на текущий тик. Упавший владелец освобождает блокировку
// автоматически: аренда истекает по TTL без heartbeat'а.
type Lock struct {
	store        LeaseStore
	resourceName string
	holderID     string
	ttl          time.Duration
	interval     time.Duration
	logger       *slog.Logger
}

// Config — конфигурация Lock.
type Config struct {
	Store        LeaseStore
	ResourceName string        // имя ресурса (default: domain.LeaseResourceScheduler)
	HolderID     string        // идентификатор процесса (default: NewHolderID())
	TTL          time.Duration // время жизни аренды (default: 5m)
	Interval     time.Duration // интервал heartbeat (default: 2m)
	Logger       *slog.Logger
}

// New создаёт новый Lock.
func New(cfg Config) *Lock {
	resourceName := cfg.ResourceName
	if resourceName == "" {
		resourceName = domain.LeaseResourceScheduler
	}

	holderID := cfg.HolderID
	if holderID == "" {
		holderID = NewHolderID()
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Minute
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Lock{
		store:        cfg.Store,
		resourceName: resourceName,
		holderID:     holderID,
		ttl:          ttl,
		interval:     interval,
		logger:       logger,
	}
}

// NewHolderID генерирует идентификатор процесса-владельца.
// Hostname для читаемости, uuid — для различения экземпляров на одном хосте.
func NewHolderID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "cadence"
	}
	return fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])
}

// HolderID возвращает идентификатор этого процесса.
func (l *Lock) HolderID() string {
	return l.holderID
}

// Acquire пытается захватить блокировку на текущий тик.
//
// Неудача — не ошибка: другой экземпляр активен, этот тик пропускается.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	lease, acquired, err := l.store.Acquire(ctx, l.resourceName, l.holderID, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %q: %w", l.resourceName, err)
	}
	if !acquired {
		l.logger.Debug("lock held by another instance", "resource", l.resourceName)
		return false, nil
	}

	l.logger.Info("lock acquired",
		"resource", l.resourceName,
		"holder_id", l.holderID,
		"expires_at", lease.ExpiresAt,
	)
	return true, nil
}

// Heartbeat продлевает аренду.
//
// false означает потерю владения (аренда истекла или перехвачена) —
// вызывающий обязан немедленно прекратить диспетчеризацию.
func (l *Lock) Heartbeat(ctx context.Context) (bool, error) {
	lease, extended, err := l.store.Extend(ctx, l.resourceName, l.holderID, l.ttl)
	if err != nil {
		return false, fmt.Errorf("heartbeat %q: %w", l.resourceName, err)
	}
	if !extended {
		l.logger.Warn("lock lost", "resource", l.resourceName, "holder_id", l.holderID)
		return false, nil
	}

	l.logger.Debug("lock renewed",
		"resource", l.resourceName,
		"holder_id", l.holderID,
		"expires_at", lease.ExpiresAt,
	)
	return true, nil
}

// Release освобождает блокировку, если она принадлежит этому процессу.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	released, err := l.store.Delete(ctx, l.resourceName, l.holderID)
	if err != nil {
		return false, fmt.Errorf("release %q: %w", l.resourceName, err)
	}
	if released {
		l.logger.Info("lock released", "resource", l.resourceName, "holder_id", l.holderID)
	}
	return released, nil
}

// ForceRelease принудительно снимает аренду с указанного holder'а.
//
// Операторский механизм восстановления. Требует точного совпадения
// holder id, чтобы случайно не снять аренду с живого экземпляра.
func (l *Lock) ForceRelease(ctx context.Context, expectedHolderID string) (bool, error) {
	released, err := l.store.Delete(ctx, l.resourceName, expectedHolderID)
	if err != nil {
		return false, fmt.Errorf("force release %q: %w", l.resourceName, err)
	}
	if released {
		l.logger.Warn("lock force-released",
			"resource", l.resourceName,
			"expected_holder_id", expectedHolderID,
		)
	}
	return released, nil
}

// Inspect возвращает текущую аренду (repo.ErrNotFound, если её нет).
func (l *Lock) Inspect(ctx context.Context) (*domain.Lease, error) {
	return l.store.Get(ctx, l.resourceName)
}

// HeartbeatLoop продлевает аренду каждые interval до отмены ctx.
//
// При потере владения или ошибке store вызывает onLost ровно один раз
// и завершается. Запускается горутиной на время тика.
func (l *Lock) HeartbeatLoop(ctx context.Context, onLost func(error)) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := l.Heartbeat(ctx)
			if err != nil {
				onLost(err)
				return
			}
			if !ok {
				onLost(nil)
				return
			}
		}
	}
}
