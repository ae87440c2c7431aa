package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/Cadence/internal/repo"
)

// GetBreaker возвращает состояние circuit breaker'а.
// GET /api/v1/circuit-breaker
func (h *Handler) GetBreaker(w http.ResponseWriter, r *http.Request) {
	Success(w, h.breaker.Status())
}

// ResetBreaker принудительно закрывает circuit breaker.
// POST /api/v1/circuit-breaker/reset
func (h *Handler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	h.breaker.Reset()
	Success(w, h.breaker.Status())
}

// GetQueue возвращает счётчики очереди выполнения.
// GET /api/v1/queue
func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	Success(w, h.queue.Counters())
}

// ClearQueue удаляет все поставленные, но не начатые jobs.
// POST /api/v1/queue/clear
func (h *Handler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	cleared := h.queue.Clear()
	Success(w, ClearQueueResponse{Cleared: cleared})
}

// GetLock возвращает текущую аренду блокировки координатора.
// GET /api/v1/lock
func (h *Handler) GetLock(w http.ResponseWriter, r *http.Request) {
	lease, err := h.lock.Inspect(r.Context())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			Success(w, LockResponse{Held: false})
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	Success(w, LockFromDomain(lease))
}

// ReleaseLock принудительно снимает аренду с указанного holder'а.
// POST /api/v1/lock/release
func (h *Handler) ReleaseLock(w http.ResponseWriter, r *http.Request) {
	var req ReleaseLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.HolderID == "" {
		BadRequest(w, "holder_id is required")
		return
	}

	released, err := h.lock.ForceRelease(r.Context(), req.HolderID)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	if !released {
		NotFound(w, "no lease held by that holder")
		return
	}

	Success(w, ReleaseLockResponse{Released: true})
}
