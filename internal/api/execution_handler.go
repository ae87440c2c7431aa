package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shaiso/Cadence/internal/domain"
)

// ListExecutions возвращает последние записи журнала идемпотентности.
// GET /api/v1/executions?status=...&limit=...
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	var status domain.ExecutionStatus
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		status = domain.ExecutionStatus(statusStr)
		if !status.IsValid() {
			BadRequest(w, "invalid status")
			return
		}
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := h.ledger.Recent(r.Context(), limit, status)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ExecutionResponse, len(records))
	for i := range records {
		result[i] = ExecutionFromDomain(&records[i])
	}

	List(w, result, len(result))
}

// GetStats возвращает агрегированную статистику executions.
// GET /api/v1/stats?hours=n (window=... принимается как алиас)
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	window := defaultStatsWindow
	if hoursStr := r.URL.Query().Get("hours"); hoursStr != "" {
		hours, err := strconv.Atoi(hoursStr)
		if err != nil || hours <= 0 {
			BadRequest(w, "hours must be a positive integer")
			return
		}
		window = time.Duration(hours) * time.Hour
	} else if windowStr := r.URL.Query().Get("window"); windowStr != "" {
		parsed, err := time.ParseDuration(windowStr)
		if err != nil || parsed <= 0 {
			BadRequest(w, "invalid window")
			return
		}
		window = parsed
	}

	stats, err := h.ledger.Stats(r.Context(), window)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	Success(w, StatsFromDomain(stats))
}
