package api

import (
	"time"

	"github.com/shaiso/Cadence/internal/breaker"
	"github.com/shaiso/Cadence/internal/domain"
	"github.com/shaiso/Cadence/internal/queue"
)

// Execution DTOs

// ExecutionResponse — ответ с записью журнала идемпотентности.
type ExecutionResponse struct {
	ExecutionID  string                 `json:"execution_id"`
	SubjectID    string                 `json:"subject_id"`
	JobID        string                 `json:"job_id"`
	Period       string                 `json:"period"`
	Status       domain.ExecutionStatus `json:"status"`
	Attempt      int                    `json:"attempt"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	FinishedAt   *time.Time             `json:"finished_at,omitempty"`
	ErrorSummary string                 `json:"error_summary,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// ExecutionFromDomain конвертирует domain.ExecutionRecord в ExecutionResponse.
func ExecutionFromDomain(r *domain.ExecutionRecord) ExecutionResponse {
	return ExecutionResponse{
		ExecutionID:  r.ExecutionID,
		SubjectID:    r.SubjectID,
		JobID:        r.JobID,
		Period:       r.Period,
		Status:       r.Status,
		Attempt:      r.Attempt,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		ErrorSummary: r.ErrorSummary,
		CreatedAt:    r.CreatedAt,
	}
}

// Stats DTOs

// StatsResponse — ответ с агрегированной статистикой.
type StatsResponse struct {
	Window      string  `json:"window"`
	Total       int     `json:"total"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	Running     int     `json:"running"`
	SuccessRate float64 `json:"success_rate"`
	AvgDuration string  `json:"avg_duration"`
}

// StatsFromDomain конвертирует domain.ExecutionStats в StatsResponse.
func StatsFromDomain(s *domain.ExecutionStats) StatsResponse {
	return StatsResponse{
		Window:      s.Window.String(),
		Total:       s.Total,
		Completed:   s.Completed,
		Failed:      s.Failed,
		Running:     s.Running,
		SuccessRate: s.SuccessRate,
		AvgDuration: s.AvgDuration.String(),
	}
}

// Lock DTOs

// LockResponse — ответ с состоянием распределённой блокировки.
type LockResponse struct {
	Held         bool       `json:"held"`
	ResourceName string     `json:"resource_name,omitempty"`
	HolderID     string     `json:"holder_id,omitempty"`
	AcquiredAt   *time.Time `json:"acquired_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// LockFromDomain конвертирует domain.Lease в LockResponse.
func LockFromDomain(l *domain.Lease) LockResponse {
	acquiredAt := l.AcquiredAt
	expiresAt := l.ExpiresAt
	return LockResponse{
		Held:         true,
		ResourceName: l.ResourceName,
		HolderID:     l.HolderID,
		AcquiredAt:   &acquiredAt,
		ExpiresAt:    &expiresAt,
	}
}

// ReleaseLockRequest — запрос на принудительное снятие блокировки.
// HolderID обязателен: оператор подтверждает, ЧЬЮ аренду снимает.
type ReleaseLockRequest struct {
	HolderID string `json:"holder_id"`
}

// ReleaseLockResponse — результат снятия блокировки.
type ReleaseLockResponse struct {
	Released bool `json:"released"`
}

// ClearQueueResponse — результат очистки очереди.
type ClearQueueResponse struct {
	Cleared int `json:"cleared"`
}

// Health DTO

// HealthResponse — сводное состояние координатора.
type HealthResponse struct {
	Status  string         `json:"status"`
	Score   int            `json:"score"`
	Issues  []string       `json:"issues"`
	Breaker breaker.Status `json:"circuit_breaker"`
	Queue   queue.Counters `json:"queue"`
	Lock    LockResponse   `json:"lock"`
	Stats   StatsResponse  `json:"stats"`
}
