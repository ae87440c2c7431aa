// Package breaker реализует in-process circuit breaker для job body.
//
// Состояния и переходы:
//
//	CLOSED    — вызовы проходят; failureThreshold ошибок подряд → OPEN
//	OPEN      — вызовы отклоняются (ErrOpen); спустя resetTimeout → HALF_OPEN
//	HALF_OPEN — один пробный вызов; successThreshold успехов → CLOSED,
//	            любая ошибка → OPEN со свежим openedAt
//
// Каждый вызов обёрнут жёстким таймаутом: таймаут считается ошибкой.
// Reset() — операторский сброс в CLOSED, доступный через Health Facade.
package breaker
