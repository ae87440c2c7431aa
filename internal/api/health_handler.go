package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shaiso/Cadence/internal/breaker"
	"github.com/shaiso/Cadence/internal/domain"
	"github.com/shaiso/Cadence/internal/queue"
	"github.com/shaiso/Cadence/internal/repo"
)

// Штрафы и пороги health score.
const (
	penaltyBreakerOpen     = 40
	penaltyBreakerHalfOpen = 10
	penaltySuccessRate     = 30
	penaltyQueueBacklog    = 20

	successRateFloor = 0.9
	backlogThreshold = 10

	scoreOK       = 80
	scoreDegraded = 50

	defaultStatsWindow = 24 * time.Hour
)

type healthInput struct {
	breaker breaker.Status
	queue   queue.Counters
	stats   *domain.ExecutionStats
}

// computeHealth сводит состояние подсистем в один score (0..100).
//
// Открытый breaker — самый тяжёлый симптом: он означает, что jobs
// вообще не доходят до пайплайна. Низкая доля успехов и backlog
// очереди — деградация, но работа ещё идёт.
func computeHealth(in healthInput) (score int, status string, issues []string) {
	score = 100

	switch in.breaker.State {
	case domain.BreakerOpen:
		score -= penaltyBreakerOpen
		issues = append(issues, "circuit breaker is open: job bodies are being rejected")
	case domain.BreakerHalfOpen:
		score -= penaltyBreakerHalfOpen
		issues = append(issues, "circuit breaker is half-open: probing downstream recovery")
	}

	if in.stats != nil && in.stats.SuccessRate < successRateFloor {
		score -= penaltySuccessRate
		issues = append(issues, fmt.Sprintf("success rate %.0f%% over the last %s",
			in.stats.SuccessRate*100, in.stats.Window))
	}

	if in.queue.Queued > backlogThreshold {
		score -= penaltyQueueBacklog
		issues = append(issues, fmt.Sprintf("queue backlog: %d jobs waiting", in.queue.Queued))
	}

	switch {
	case score >= scoreOK:
		status = "ok"
	case score >= scoreDegraded:
		status = "degraded"
	default:
		status = "unhealthy"
	}
	return score, status, issues
}

// GetHealth возвращает сводное состояние координатора.
// GET /api/v1/health
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Stats(r.Context(), defaultStatsWindow)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	breakerStatus := h.breaker.Status()
	counters := h.queue.Counters()

	score, status, issues := computeHealth(healthInput{
		breaker: breakerStatus,
		queue:   counters,
		stats:   stats,
	})
	if issues == nil {
		issues = []string{}
	}

	lockResp := LockResponse{}
	lease, err := h.lock.Inspect(r.Context())
	switch {
	case err == nil:
		lockResp = LockFromDomain(lease)
	case errors.Is(err, repo.ErrNotFound):
		// Между тиками блокировка штатно свободна
	default:
		InternalError(w, h.logger, err)
		return
	}

	Success(w, HealthResponse{
		Status:  status,
		Score:   score,
		Issues:  issues,
		Breaker: breakerStatus,
		Queue:   counters,
		Lock:    lockResp,
		Stats:   StatsFromDomain(stats),
	})
}
