package domain

import (
	"fmt"
	"time"
)

// ExecutionRecord — единица идемпотентности scheduled job.
//
// Запись создаётся лениво при первой проверке планирования в периоде
// и гарантирует не более одного COMPLETED на execution_id. Запись,
// зависшая в RUNNING дольше порога staleness, считается брошенной
// (процесс упал) и допускает новую попытку с тем же id.
type ExecutionRecord struct {
	// ExecutionID — детерминированный ключ: "{subject}_{job}_{period}".
	ExecutionID string `json:"execution_id"`

	// SubjectID — субъект (например, пользователь), для которого выполняется job.
	SubjectID string `json:"subject_id"`

	// JobID — идентификатор job (например, "daily-digest").
	JobID string `json:"job_id"`

	// Period — период планирования (например, календарная дата "2026-01-03").
	Period string `json:"period"`

	// Status — текущий статус выполнения.
	Status ExecutionStatus `json:"status"`

	// Attempt — номер попытки. Увеличивается при сбросе
	// failed/stale записи, никогда не уменьшается.
	Attempt int `json:"attempt"`

	// StartedAt — время начала выполнения (статус стал RUNNING).
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения (COMPLETED или FAILED).
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// ErrorSummary — краткое описание ошибки при FAILED.
	ErrorSummary string `json:"error_summary,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// ExecutionID строит детерминированный ключ идемпотентности.
// Один и тот же (subject, job, period) всегда даёт один и тот же id.
func ExecutionID(subjectID, jobID, period string) string {
	return fmt.Sprintf("%s_%s_%s", subjectID, jobID, period)
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если execution ещё не завершён.
func (r *ExecutionRecord) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsStaleRunning проверяет, завис ли RUNNING execution дольше порога.
// Такая запись считается брошенной и допускает новую попытку.
func (r *ExecutionRecord) IsStaleRunning(now time.Time, staleAfter time.Duration) bool {
	if r.Status != ExecutionStatusRunning {
		return false
	}
	since := r.UpdatedAt
	if r.StartedAt != nil {
		since = *r.StartedAt
	}
	return now.Sub(since) > staleAfter
}

// ExecutionStats — агрегированная статистика по executions
// за скользящее окно. Используется Health Facade.
type ExecutionStats struct {
	// Window — размер окна агрегации.
	Window time.Duration `json:"window"`

	// Total — всего записей в окне.
	Total int `json:"total"`

	// Completed — успешно завершённых.
	Completed int `json:"completed"`

	// Failed — завершённых с ошибкой.
	Failed int `json:"failed"`

	// Running — выполняющихся сейчас.
	Running int `json:"running"`

	// SuccessRate — доля успешных среди завершённых (0..1).
	// 1.0, если завершённых нет (отсутствие работы — не деградация).
	SuccessRate float64 `json:"success_rate"`

	// AvgDuration — средняя продолжительность COMPLETED executions.
	AvgDuration time.Duration `json:"avg_duration"`
}
