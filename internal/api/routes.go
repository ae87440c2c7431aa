package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты Health Facade.
//
// Весь /api/v1 — операторский интерфейс: и чтение, и remediation
// требуют bearer token.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		Auth(h.adminToken, h.logger),
	)

	// Health
	mux.Handle("GET /api/v1/health", chain(http.HandlerFunc(h.GetHealth)))

	// Executions
	mux.Handle("GET /api/v1/executions", chain(http.HandlerFunc(h.ListExecutions)))
	mux.Handle("GET /api/v1/stats", chain(http.HandlerFunc(h.GetStats)))

	// Circuit breaker
	mux.Handle("GET /api/v1/circuit-breaker", chain(http.HandlerFunc(h.GetBreaker)))
	mux.Handle("POST /api/v1/circuit-breaker/reset", chain(http.HandlerFunc(h.ResetBreaker)))

	// Queue
	mux.Handle("GET /api/v1/queue", chain(http.HandlerFunc(h.GetQueue)))
	mux.Handle("POST /api/v1/queue/clear", chain(http.HandlerFunc(h.ClearQueue)))

	// Lock
	mux.Handle("GET /api/v1/lock", chain(http.HandlerFunc(h.GetLock)))
	mux.Handle("POST /api/v1/lock/release", chain(http.HandlerFunc(h.ReleaseLock)))
}
