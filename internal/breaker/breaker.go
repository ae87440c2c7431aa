package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Cadence/internal/domain"
)

// Значения по умолчанию.
const (
	defaultFailureThreshold = 5
	defaultSuccessThreshold = 2
	defaultResetTimeout     = 5 * time.Minute
	defaultCallTimeout      = 2 * time.Minute
)

// ErrOpen — вызов отклонён: breaker открыт.
// Это не ошибка job body, а намеренное решение admission control.
var ErrOpen = errors.New("circuit breaker is open")

// Breaker — классический трёхпозиционный circuit breaker.
//
// Breaker локален для процесса: он защищает путь вызова одного
// экземпляра и не разделяется между экземплярами. Этого достаточно,
// потому что распределённая блокировка гарантирует единственного
// активного диспетчера в каждый момент.
type Breaker struct {
	failureThreshold int
	successThreshold int
	resetTimeout     time.Duration
	callTimeout      time.Duration
	logger           *slog.Logger
	now              func() time.Time

	mu                   sync.Mutex
	state                domain.BreakerState
	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
	trialInFlight        bool

	// lifetime счётчики для Health Facade
	totalCalls         int64
	totalFailures      int64
	totalShortCircuits int64
}

// Config — конфигурация Breaker.
type Config struct {
	FailureThreshold int           // подряд идущих ошибок до OPEN (default: 5)
	SuccessThreshold int           // успехов в HALF_OPEN до CLOSED (default: 2)
	ResetTimeout     time.Duration // пауза в OPEN до пробного вызова (default: 5m)
	CallTimeout      time.Duration // жёсткий таймаут одного вызова (default: 2m)
	Logger           *slog.Logger

	// Now — источник времени (для тестов). По умолчанию time.Now.
	Now func() time.Time
}

// New создаёт новый Breaker в состоянии CLOSED.
func New(cfg Config) *Breaker {
	failureThreshold := cfg.FailureThreshold
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}

	successThreshold := cfg.SuccessThreshold
	if successThreshold <= 0 {
		successThreshold = defaultSuccessThreshold
	}

	resetTimeout := cfg.ResetTimeout
	if resetTimeout <= 0 {
		resetTimeout = defaultResetTimeout
	}

	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		resetTimeout:     resetTimeout,
		callTimeout:      callTimeout,
		logger:           logger,
		now:              now,
		state:            domain.BreakerClosed,
	}
}

// Do выполняет fn через breaker с жёстким таймаутом.
//
// В OPEN вызов отклоняется с ErrOpen без обращения к fn.
// Таймаут считается ошибкой наравне с ошибкой fn.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := b.invoke(ctx, fn)
	b.record(err)
	return err
}

// allow решает, пропускать ли вызов, и выполняет переход OPEN → HALF_OPEN.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case domain.BreakerClosed:
		b.totalCalls++
		return nil

	case domain.BreakerOpen:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			b.totalShortCircuits++
			return ErrOpen
		}
		// Пауза прошла — разрешаем один пробный вызов
		b.state = domain.BreakerHalfOpen
		b.trialInFlight = true
		b.totalCalls++
		b.logger.Info("circuit breaker half-open, allowing trial call")
		return nil

	case domain.BreakerHalfOpen:
		if b.trialInFlight {
			b.totalShortCircuits++
			return ErrOpen
		}
		b.trialInFlight = true
		b.totalCalls++
		return nil

	default:
		return fmt.Errorf("unknown breaker state %q", b.state)
	}
}

// invoke выполняет fn с жёстким таймаутом.
// Зависший fn не блокирует вызывающего дольше callTimeout.
func (b *Breaker) invoke(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		return fmt.Errorf("call exceeded %s: %w", b.callTimeout, callCtx.Err())
	}
}

// record учитывает результат вызова и выполняет переходы состояний.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.consecutiveFailures = 0

		if b.state == domain.BreakerHalfOpen {
			b.trialInFlight = false
			b.consecutiveSuccesses++
			if b.consecutiveSuccesses >= b.successThreshold {
				b.state = domain.BreakerClosed
				b.consecutiveSuccesses = 0
				b.logger.Info("circuit breaker closed after recovery")
			}
		}
		return
	}

	b.totalFailures++
	b.consecutiveSuccesses = 0

	switch b.state {
	case domain.BreakerHalfOpen:
		// Пробный вызов провалился — обратно в OPEN со свежим openedAt
		b.trialInFlight = false
		b.state = domain.BreakerOpen
		b.openedAt = b.now()
		b.logger.Warn("circuit breaker re-opened after failed trial call", "error", err)

	case domain.BreakerClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.state = domain.BreakerOpen
			b.openedAt = b.now()
			b.logger.Warn("circuit breaker opened",
				"consecutive_failures", b.consecutiveFailures,
				"reset_timeout", b.resetTimeout,
			)
		}
	}
}

// Reset принудительно закрывает breaker независимо от счётчиков.
// Операторский механизм восстановления, доступен через Health Facade.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = domain.BreakerClosed
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.trialInFlight = false
	b.logger.Warn("circuit breaker reset by operator")
}

// Status — снимок состояния breaker'а.
type Status struct {
	State                domain.BreakerState `json:"state"`
	ConsecutiveFailures  int                 `json:"consecutive_failures"`
	ConsecutiveSuccesses int                 `json:"consecutive_successes"`
	OpenedAt             *time.Time          `json:"opened_at,omitempty"`
	TotalCalls           int64               `json:"total_calls"`
	TotalFailures        int64               `json:"total_failures"`
	TotalShortCircuits   int64               `json:"total_short_circuits"`
}

// Status возвращает снимок текущего состояния.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	status := Status{
		State:                b.state,
		ConsecutiveFailures:  b.consecutiveFailures,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		TotalCalls:           b.totalCalls,
		TotalFailures:        b.totalFailures,
		TotalShortCircuits:   b.totalShortCircuits,
	}
	if b.state == domain.BreakerOpen || b.state == domain.BreakerHalfOpen {
		openedAt := b.openedAt
		status.OpenedAt = &openedAt
	}
	return status
}

// State возвращает текущее состояние.
func (b *Breaker) State() domain.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
