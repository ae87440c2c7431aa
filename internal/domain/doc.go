// Package domain содержит основные типы координатора.
//
// Структура:
//   - lease.go     — Lease (аренда роли координатора)
//   - execution.go — ExecutionRecord (запись идемпотентности)
//   - status.go    — статусы execution'ов и circuit breaker'а
//
// Типы domain не зависят от инфраструктуры (БД, MQ, HTTP).
package domain
