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

// ExecutionRepo — хранилище записей идемпотентности.
//
// Каждая операция — одиночный условный SQL statement. Переходы статусов
// монотонны: условие WHERE повторяет предусловие перехода, поэтому
// запоздавший writer не может испортить уже финализированную запись.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

// TryCreate атомарно создаёт запись со статусом PENDING.
// Возвращает (record, true) при создании и (nil, false), если запись
// с таким execution_id уже существует.
func (r *ExecutionRepo) TryCreate(ctx context.Context, subjectID, jobID, period string) (*domain.ExecutionRecord, bool, error) {
	query := `
		INSERT INTO executions (execution_id, subject_id, job_id, period, status, attempt, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, now(), now())
		ON CONFLICT (execution_id) DO NOTHING
		RETURNING execution_id, subject_id, job_id, period, status, attempt,
		          started_at, finished_at, error_summary, created_at, updated_at
	`
	executionID := domain.ExecutionID(subjectID, jobID, period)
	record, err := scanExecution(r.pool.QueryRow(ctx, query,
		executionID, subjectID, jobID, period, domain.ExecutionStatusPending))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create execution: %w", err)
	}
	return record, true, nil
}

// TryReset атомарно сбрасывает FAILED или брошенную RUNNING запись
// на свежую попытку: статус PENDING, attempt+1, времена и ошибка очищены.
// Возвращает (nil, false), если запись не подлежит сбросу
// (COMPLETED, PENDING или ещё не протухший RUNNING).
func (r *ExecutionRepo) TryReset(ctx context.Context, executionID string, staleAfter time.Duration) (*domain.ExecutionRecord, bool, error) {
	query := `
		UPDATE executions
		SET status        = $2,
		    attempt       = attempt + 1,
		    started_at    = NULL,
		    finished_at   = NULL,
		    error_summary = NULL,
		    updated_at    = now()
		WHERE execution_id = $1
		  AND (status = $3
		       OR (status = $4 AND COALESCE(started_at, updated_at) < now() - ($5 * interval '1 millisecond')))
		RETURNING execution_id, subject_id, job_id, period, status, attempt,
		          started_at, finished_at, error_summary, created_at, updated_at
	`
	record, err := scanExecution(r.pool.QueryRow(ctx, query,
		executionID,
		domain.ExecutionStatusPending,
		domain.ExecutionStatusFailed,
		domain.ExecutionStatusRunning,
		staleAfter.Milliseconds(),
	))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reset execution: %w", err)
	}
	return record, true, nil
}

// MarkStarted переводит запись PENDING → RUNNING.
// No-op (false), если запись уже не в PENDING.
func (r *ExecutionRepo) MarkStarted(ctx context.Context, executionID string) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE executions
		SET status = $2, started_at = now(), updated_at = now()
		WHERE execution_id = $1 AND status = $3
	`, executionID, domain.ExecutionStatusRunning, domain.ExecutionStatusPending)
	if err != nil {
		return false, fmt.Errorf("mark started: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// MarkCompleted переводит запись PENDING/RUNNING → COMPLETED.
// No-op (false) для уже финализированных записей: запоздавший writer
// не может перебить COMPLETED и не может воскресить FAILED после сброса.
func (r *ExecutionRepo) MarkCompleted(ctx context.Context, executionID string) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE executions
		SET status = $2, finished_at = now(), updated_at = now()
		WHERE execution_id = $1 AND status IN ($3, $4)
	`, executionID, domain.ExecutionStatusCompleted,
		domain.ExecutionStatusPending, domain.ExecutionStatusRunning)
	if err != nil {
		return false, fmt.Errorf("mark completed: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// MarkFailed переводит запись PENDING/RUNNING → FAILED с описанием ошибки.
// No-op (false), если запись уже финализирована.
func (r *ExecutionRepo) MarkFailed(ctx context.Context, executionID, errorSummary string) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE executions
		SET status = $2, finished_at = now(), error_summary = $3, updated_at = now()
		WHERE execution_id = $1 AND status IN ($4, $5)
	`, executionID, domain.ExecutionStatusFailed, errorSummary,
		domain.ExecutionStatusPending, domain.ExecutionStatusRunning)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// Get возвращает запись по execution_id.
func (r *ExecutionRepo) Get(ctx context.Context, executionID string) (*domain.ExecutionRecord, error) {
	query := `
		SELECT execution_id, subject_id, job_id, period, status, attempt,
		       started_at, finished_at, error_summary, created_at, updated_at
		FROM executions
		WHERE execution_id = $1
	`
	return scanExecution(r.pool.QueryRow(ctx, query, executionID))
}

// Recent возвращает последние записи, опционально фильтруя по статусу.
func (r *ExecutionRepo) Recent(ctx context.Context, limit int, status domain.ExecutionStatus) ([]domain.ExecutionRecord, error) {
	query := `
		SELECT execution_id, subject_id, job_id, period, status, attempt,
		       started_at, finished_at, error_summary, created_at, updated_at
		FROM executions
		WHERE ($2::text IS NULL OR status = $2)
		ORDER BY updated_at DESC
		LIMIT $1
	`
	var statusFilter *string
	if status != "" {
		s := string(status)
		statusFilter = &s
	}

	rows, err := r.pool.Query(ctx, query, limit, statusFilter)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var records []domain.ExecutionRecord
	for rows.Next() {
		record, err := scanExecutionFromRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// Stats агрегирует статистику за скользящее окно.
func (r *ExecutionRepo) Stats(ctx context.Context, window time.Duration) (*domain.ExecutionStats, error) {
	query := `
		SELECT count(*),
		       count(*) FILTER (WHERE status = $2),
		       count(*) FILTER (WHERE status = $3),
		       count(*) FILTER (WHERE status = $4),
		       COALESCE(avg(extract(epoch FROM finished_at - started_at))
		           FILTER (WHERE status = $2 AND started_at IS NOT NULL AND finished_at IS NOT NULL), 0)
		FROM executions
		WHERE created_at >= now() - ($1 * interval '1 millisecond')
	`
	stats := &domain.ExecutionStats{Window: window}
	var avgSeconds float64
	err := r.pool.QueryRow(ctx, query,
		window.Milliseconds(),
		domain.ExecutionStatusCompleted,
		domain.ExecutionStatusFailed,
		domain.ExecutionStatusRunning,
	).Scan(&stats.Total, &stats.Completed, &stats.Failed, &stats.Running, &avgSeconds)
	if err != nil {
		return nil, fmt.Errorf("execution stats: %w", err)
	}

	stats.AvgDuration = time.Duration(avgSeconds * float64(time.Second))
	finished := stats.Completed + stats.Failed
	if finished > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(finished)
	} else {
		stats.SuccessRate = 1.0
	}
	return stats, nil
}

// PurgeOlderThan удаляет записи старше окна retention.
// Возвращает количество удалённых строк.
func (r *ExecutionRepo) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM executions
		WHERE created_at < now() - ($1 * interval '1 millisecond')
	`, retention.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("purge executions: %w", err)
	}
	return result.RowsAffected(), nil
}

func scanExecution(row pgx.Row) (*domain.ExecutionRecord, error) {
	var e domain.ExecutionRecord
	var errorSummary *string

	err := row.Scan(
		&e.ExecutionID,
		&e.SubjectID,
		&e.JobID,
		&e.Period,
		&e.Status,
		&e.Attempt,
		&e.StartedAt,
		&e.FinishedAt,
		&errorSummary,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	if errorSummary != nil {
		e.ErrorSummary = *errorSummary
	}
	return &e, nil
}

func scanExecutionFromRows(rows pgx.Rows) (*domain.ExecutionRecord, error) {
	var e domain.ExecutionRecord
	var errorSummary *string

	err := rows.Scan(
		&e.ExecutionID,
		&e.SubjectID,
		&e.JobID,
		&e.Period,
		&e.Status,
		&e.Attempt,
		&e.StartedAt,
		&e.FinishedAt,
		&errorSummary,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	if errorSummary != nil {
		e.ErrorSummary = *errorSummary
	}
	return &e, nil
}
