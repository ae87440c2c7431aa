package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Cadence/internal/domain"
)

// LeaseRepo — хранилище аренд.
//
// Все мутации — одиночные условные SQL statements: гонка между
// конкурирующими экземплярами разрешается на уровне БД, и ровно
// один из них получает строку обратно.
type LeaseRepo struct {
	pool *pgxpool.Pool
}

// NewLeaseRepo создаёт новый LeaseRepo.
func NewLeaseRepo(pool *pgxpool.Pool) *LeaseRepo {
	return &LeaseRepo{pool: pool}
}

// Acquire атомарно захватывает аренду.
//
// Успех, если аренды нет, она просрочена, либо уже принадлежит этому
// holder'у (повторный захват тем же процессом продлевает аренду).
// Возвращает (lease, true) при захвате и (nil, false), если аренду
// держит другой живой holder.
func (r *LeaseRepo) Acquire(ctx context.Context, resourceName, holderID string, ttl time.Duration) (*domain.Lease, bool, error) {
	query := `
		INSERT INTO leases (resource_name, holder_id, acquired_at, expires_at, last_heartbeat_at)
		VALUES ($1, $2, now(), now() + ($3 * interval '1 millisecond'), now())
		ON CONFLICT (resource_name) DO UPDATE
		SET holder_id         = EXCLUDED.holder_id,
		    acquired_at       = CASE
		        WHEN leases.holder_id = EXCLUDED.holder_id AND leases.expires_at > now()
		        THEN leases.acquired_at
		        ELSE now()
		    END,
		    expires_at        = EXCLUDED.expires_at,
		    last_heartbeat_at = now()
		WHERE leases.expires_at <= now() OR leases.holder_id = EXCLUDED.holder_id
		RETURNING resource_name, holder_id, acquired_at, expires_at, last_heartbeat_at
	`
	lease, err := scanLease(r.pool.QueryRow(ctx, query, resourceName, holderID, ttl.Milliseconds()))
	if errors.Is(err, ErrNotFound) {
		// Условие WHERE не выполнилось — аренду держит другой holder
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease: %w", err)
	}
	return lease, true, nil
}

// Extend атомарно продлевает аренду (heartbeat).
//
// Успех только если непросроченная аренда всё ещё принадлежит holder'у.
// false означает, что аренда истекла или перехвачена другим экземпляром —
// вызывающий обязан немедленно прекратить диспетчеризацию.
func (r *LeaseRepo) Extend(ctx context.Context, resourceName, holderID string, ttl time.Duration) (*domain.Lease, bool, error) {
	query := `
		UPDATE leases
		SET expires_at        = now() + ($3 * interval '1 millisecond'),
		    last_heartbeat_at = now()
		WHERE resource_name = $1
		  AND holder_id = $2
		  AND expires_at > now()
		RETURNING resource_name, holder_id, acquired_at, expires_at, last_heartbeat_at
	`
	lease, err := scanLease(r.pool.QueryRow(ctx, query, resourceName, holderID, ttl.Milliseconds()))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("extend lease: %w", err)
	}
	return lease, true, nil
}

// Delete удаляет аренду, если она принадлежит holder'у.
// Используется и для обычного release, и для операторского force-release
// (с ожидаемым holder id вместо собственного).
func (r *LeaseRepo) Delete(ctx context.Context, resourceName, holderID string) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM leases WHERE resource_name = $1 AND holder_id = $2
	`, resourceName, holderID)
	if err != nil {
		return false, fmt.Errorf("delete lease: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// Get возвращает текущую аренду ресурса.
func (r *LeaseRepo) Get(ctx context.Context, resourceName string) (*domain.Lease, error) {
	query := `
		SELECT resource_name, holder_id, acquired_at, expires_at, last_heartbeat_at
		FROM leases
		WHERE resource_name = $1
	`
	return scanLease(r.pool.QueryRow(ctx, query, resourceName))
}

func scanLease(row pgx.Row) (*domain.Lease, error) {
	var l domain.Lease
	err := row.Scan(
		&l.ResourceName,
		&l.HolderID,
		&l.AcquiredAt,
		&l.ExpiresAt,
		&l.LastHeartbeatAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan lease: %w", err)
	}
	return &l, nil
}
