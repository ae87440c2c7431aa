// Package api содержит Health Facade — HTTP API координатора.
//
// Структура:
//   - handler.go           — Handler с DI (ledger, lock, breaker, queue)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (logging, recovery, auth)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - health_handler.go    — сводный health score и список проблем
//   - execution_handler.go — чтение журнала идемпотентности и статистики
//   - admin_handler.go     — remediation-операции (reset breaker'а,
//     очистка очереди, снятие блокировки)
//
// Весь /api/v1 — операторский интерфейс: чтение и remediation
// требуют bearer token.
package api
