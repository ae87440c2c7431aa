package domain

// ExecutionStatus — статус выполнения scheduled job.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ FAILED
//
// COMPLETED — терминальный статус для execution_id: повторный запуск
// в том же периоде невозможен. FAILED не блокирует новую попытку
// (getOrCreate сбросит запись с новым номером попытки).
type ExecutionStatus string

const (
	// ExecutionStatusPending — запись создана, выполнение ещё не началось.
	ExecutionStatusPending ExecutionStatus = "PENDING"

	// ExecutionStatusRunning — job выполняется.
	ExecutionStatusRunning ExecutionStatus = "RUNNING"

	// ExecutionStatusCompleted — job успешно завершён.
	// Единственный статус, навсегда блокирующий повторное выполнение.
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED"

	// ExecutionStatusFailed — job завершился с ошибкой (после retry).
	ExecutionStatusFailed ExecutionStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что статус известен.
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecutionStatusPending, ExecutionStatusRunning,
		ExecutionStatusCompleted, ExecutionStatusFailed:
		return true
	default:
		return false
	}
}

// BreakerState — состояние circuit breaker'а.
//
// Жизненный цикл:
//
//	CLOSED → OPEN → HALF_OPEN → CLOSED
//	                          ↘ OPEN
type BreakerState string

const (
	// BreakerClosed — вызовы проходят, ошибки считаются.
	BreakerClosed BreakerState = "CLOSED"

	// BreakerOpen — вызовы отклоняются без обращения к job body.
	BreakerOpen BreakerState = "OPEN"

	// BreakerHalfOpen — разрешён один пробный вызов.
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)
