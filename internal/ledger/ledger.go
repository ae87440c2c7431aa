package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Cadence/internal/domain"
)

// Значения по умолчанию.
const (
	// defaultStaleAfter — порог, после которого RUNNING считается брошенным.
	// Заметно больше ожидаемого времени выполнения job body, заметно
	// меньше длины периода планирования.
	defaultStaleAfter = 10 * time.Minute

	// defaultRetention — окно хранения записей для аудита и статистики.
	defaultRetention = 7 * 24 * time.Hour

	// maxErrorSummaryLen — предел длины error_summary в записи.
	maxErrorSummaryLen = 500
)

// ExecutionStore — атомарное хранилище записей идемпотентности.
// Production-реализация — repo.ExecutionRepo (PostgreSQL).
type ExecutionStore interface {
	TryCreate(ctx context.Context, subjectID, jobID, period string) (*domain.ExecutionRecord, bool, error)
	TryReset(ctx context.Context, executionID string, staleAfter time.Duration) (*domain.ExecutionRecord, bool, error)
	Get(ctx context.Context, executionID string) (*domain.ExecutionRecord, error)
	MarkStarted(ctx context.Context, executionID string) (bool, error)
	MarkCompleted(ctx context.Context, executionID string) (bool, error)
	MarkFailed(ctx context.Context, executionID, errorSummary string) (bool, error)
	Recent(ctx context.Context, limit int, status domain.ExecutionStatus) ([]domain.ExecutionRecord, error)
	Stats(ctx context.Context, window time.Duration) (*domain.ExecutionStats, error)
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}

// Decision — результат проверки идемпотентности.
type Decision struct {
	// Record — актуальная запись для этого execution id.
	Record *domain.ExecutionRecord

	// IsNew — запись создана этим вызовом.
	IsNew bool

	// ShouldExecute — можно ли запускать job body.
	// false: запись COMPLETED либо RUNNING и ещё не протухла.
	ShouldExecute bool
}

// Ledger — единственный авторитет решения "выполнять или нет".
//
// Гарантирует не более одного COMPLETED на (subject, job, period):
// все решения опираются на атомарные условные операции хранилища,
// поэтому конкурирующие экземпляры не могут создать дубликат.
type Ledger struct {
	store      ExecutionStore
	staleAfter time.Duration
	retention  time.Duration
	logger     *slog.Logger
}

// Config — конфигурация Ledger.
type Config struct {
	Store      ExecutionStore
	StaleAfter time.Duration // порог staleness для RUNNING (default: 10m)
	Retention  time.Duration // окно хранения записей (default: 7 суток)
	Logger     *slog.Logger
}

// New создаёт новый Ledger.
func New(cfg Config) *Ledger {
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}

	retention := cfg.Retention
	if retention <= 0 {
		retention = defaultRetention
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Ledger{
		store:      cfg.Store,
		staleAfter: staleAfter,
		retention:  retention,
		logger:     logger,
	}
}

// GetOrCreate решает, выполнять ли job для (subject, job, period).
//
// Решения:
//   - записи нет          → создать PENDING, выполнять
//   - COMPLETED           → не выполнять (навсегда для этого периода)
//   - RUNNING, свежая     → не выполнять (другая попытка ещё идёт)
//   - RUNNING, протухшая  → сбросить на новую попытку, выполнять
//   - FAILED              → сбросить на новую попытку, выполнять
//   - PENDING             → выполнять (попытка так и не стартовала)
func (l *Ledger) GetOrCreate(ctx context.Context, subjectID, jobID, period string) (*Decision, error) {
	record, created, err := l.store.TryCreate(ctx, subjectID, jobID, period)
	if err != nil {
		return nil, fmt.Errorf("get or create: %w", err)
	}
	if created {
		return &Decision{Record: record, IsNew: true, ShouldExecute: true}, nil
	}

	executionID := domain.ExecutionID(subjectID, jobID, period)

	existing, err := l.store.Get(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", executionID, err)
	}

	switch existing.Status {
	case domain.ExecutionStatusCompleted:
		return &Decision{Record: existing}, nil

	case domain.ExecutionStatusPending:
		// Предыдущая попытка не стартовала (crash до markStarted
		// или потеря очереди) — выполняем без сброса.
		return &Decision{Record: existing, ShouldExecute: true}, nil

	case domain.ExecutionStatusRunning:
		if !existing.IsStaleRunning(time.Now(), l.staleAfter) {
			return &Decision{Record: existing}, nil
		}
		l.logger.Warn("stale running execution, resetting for a fresh attempt",
			"execution_id", executionID,
			"attempt", existing.Attempt,
			"started_at", existing.StartedAt,
		)

	case domain.ExecutionStatusFailed:
		// FAILED не блокирует новую попытку
	}

	// Атомарный сброс: условие повторяется на уровне хранилища,
	// проигравший в гонке получает reset=false.
	record, reset, err := l.store.TryReset(ctx, executionID, l.staleAfter)
	if err != nil {
		return nil, fmt.Errorf("reset execution %s: %w", executionID, err)
	}
	if !reset {
		// Кто-то успел изменить запись между Get и TryReset —
		// перечитываем и не выполняем
		existing, err = l.store.Get(ctx, executionID)
		if err != nil {
			return nil, fmt.Errorf("reread execution %s: %w", executionID, err)
		}
		return &Decision{Record: existing}, nil
	}

	return &Decision{Record: record, ShouldExecute: true}, nil
}

// MarkStarted переводит запись в RUNNING.
func (l *Ledger) MarkStarted(ctx context.Context, executionID string) error {
	applied, err := l.store.MarkStarted(ctx, executionID)
	if err != nil {
		return fmt.Errorf("mark started %s: %w", executionID, err)
	}
	if !applied {
		l.logger.Debug("mark started was a no-op", "execution_id", executionID)
	}
	return nil
}

// MarkCompleted финализирует запись как COMPLETED.
// Повторный вызов и вызов для уже финализированной записи — no-op.
func (l *Ledger) MarkCompleted(ctx context.Context, executionID string) error {
	applied, err := l.store.MarkCompleted(ctx, executionID)
	if err != nil {
		return fmt.Errorf("mark completed %s: %w", executionID, err)
	}
	if !applied {
		l.logger.Debug("mark completed was a no-op", "execution_id", executionID)
	}
	return nil
}

// MarkFailed финализирует запись как FAILED с описанием ошибки.
func (l *Ledger) MarkFailed(ctx context.Context, executionID string, cause error) error {
	summary := ""
	if cause != nil {
		summary = cause.Error()
	}
	if len(summary) > maxErrorSummaryLen {
		summary = summary[:maxErrorSummaryLen]
	}

	applied, err := l.store.MarkFailed(ctx, executionID, summary)
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", executionID, err)
	}
	if !applied {
		l.logger.Debug("mark failed was a no-op", "execution_id", executionID)
	}
	return nil
}

// Recent возвращает последние записи для Health Facade.
func (l *Ledger) Recent(ctx context.Context, limit int, status domain.ExecutionStatus) ([]domain.ExecutionRecord, error) {
	return l.store.Recent(ctx, limit, status)
}

// Stats возвращает агрегированную статистику за окно.
func (l *Ledger) Stats(ctx context.Context, window time.Duration) (*domain.ExecutionStats, error) {
	return l.store.Stats(ctx, window)
}

// Purge удаляет записи старше окна retention.
func (l *Ledger) Purge(ctx context.Context) (int64, error) {
	purged, err := l.store.PurgeOlderThan(ctx, l.retention)
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	if purged > 0 {
		l.logger.Info("purged old executions", "count", purged, "retention", l.retention)
	}
	return purged, nil
}

// StaleAfter возвращает порог staleness.
func (l *Ledger) StaleAfter() time.Duration {
	return l.staleAfter
}
