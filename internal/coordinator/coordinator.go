package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Cadence/internal/breaker"
	"github.com/shaiso/Cadence/internal/domain"
	"github.com/shaiso/Cadence/internal/jobbody"
	"github.com/shaiso/Cadence/internal/ledger"
	"github.com/shaiso/Cadence/internal/lock"
	"github.com/shaiso/Cadence/internal/mq"
	"github.com/shaiso/Cadence/internal/queue"
	"github.com/shaiso/Cadence/internal/telemetry"
)

// defaultTickCron — тик каждые 10 минут.
const defaultTickCron = "*/10 * * * *"

// SubjectSource перечисляет субъектов, для которых job должен
// выполниться в данном периоде.
type SubjectSource interface {
	ListDue(ctx context.Context, period string) ([]string, error)
}

// StaticSubjects — фиксированный список субъектов из конфигурации.
type StaticSubjects []string

// ListDue возвращает копию списка.
func (s StaticSubjects) ListDue(ctx context.Context, period string) ([]string, error) {
	return append([]string(nil), s...), nil
}

// Coordinator связывает блокировку, журнал идемпотентности, очередь
// и breaker в цикл тиков.
//
// Каждый тик: захват блокировки → вычисление периода → проверка
// идемпотентности по каждому субъекту → диспетчеризация через очередь
// (каждая попытка проходит через breaker) → финализация записей →
// GC журнала → освобождение блокировки. Экземпляр, не захвативший
// блокировку, пропускает тик целиком.
type Coordinator struct {
	lock      *lock.Lock
	ledger    *ledger.Ledger
	queue     *queue.Queue
	breaker   *breaker.Breaker
	registry  *jobbody.Registry
	subjects  SubjectSource
	publisher *mq.Publisher
	jobID     string
	periodFn  PeriodFunc
	schedule  cron.Schedule
	logger    *slog.Logger
	now       func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config — конфигурация Coordinator.
type Config struct {
	Lock     *lock.Lock
	Ledger   *ledger.Ledger
	Queue    *queue.Queue
	Breaker  *breaker.Breaker
	Registry *jobbody.Registry
	Subjects SubjectSource

	// Publisher — публикация событий жизненного цикла (nil — отключена).
	Publisher *mq.Publisher

	// JobID — идентификатор диспетчеризуемого job.
	JobID string

	// TickCron — cron-выражение тика (default: каждые 10 минут).
	TickCron string

	// PeriodFn — вычисление ключа периода (default: daily в UTC).
	PeriodFn PeriodFunc

	Logger *slog.Logger

	// Now — источник времени (для тестов). По умолчанию time.Now.
	Now func() time.Time
}

// New создаёт новый Coordinator.
func New(cfg Config) (*Coordinator, error) {
	tickCron := cfg.TickCron
	if tickCron == "" {
		tickCron = defaultTickCron
	}
	schedule, err := cron.ParseStandard(tickCron)
	if err != nil {
		return nil, fmt.Errorf("parse tick cron %q: %w", tickCron, err)
	}

	periodFn := cfg.PeriodFn
	if periodFn == nil {
		periodFn, err = NewPeriodFunc(PeriodDaily, "")
		if err != nil {
			return nil, err
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	if cfg.JobID == "" {
		return nil, fmt.Errorf("job id is required")
	}

	return &Coordinator{
		lock:      cfg.Lock,
		ledger:    cfg.Ledger,
		queue:     cfg.Queue,
		breaker:   cfg.Breaker,
		registry:  cfg.Registry,
		subjects:  cfg.Subjects,
		publisher: cfg.Publisher,
		jobID:     cfg.JobID,
		periodFn:  periodFn,
		schedule:  schedule,
		logger:    logger,
		now:       now,
	}, nil
}

// Start запускает цикл тиков по cron-расписанию.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.loop(ctx)
	}()

	c.logger.Info("coordinator started",
		"job_id", c.jobID,
		"holder_id", c.lock.HolderID(),
	)
}

// Stop останавливает цикл тиков и дожидается текущего тика.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info("coordinator stopped")
}

func (c *Coordinator) loop(ctx context.Context) {
	for {
		next := c.schedule.Next(c.now())
		timer := time.NewTimer(next.Sub(c.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := c.Tick(ctx); err != nil {
				c.logger.Error("tick failed", "error", err)
			}
		}
	}
}

// Tick выполняет один тик координатора.
//
// Возвращает nil и при пропуске (блокировку держит другой экземпляр):
// пропуск — штатный исход, а не ошибка.
func (c *Coordinator) Tick(ctx context.Context) error {
	acquired, err := c.lock.Acquire(ctx)
	if err != nil {
		telemetry.TicksTotal.WithLabelValues("failed").Inc()
		return err
	}
	if !acquired {
		telemetry.TicksTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	telemetry.LockHeld.Set(1)
	defer telemetry.LockHeld.Set(0)

	// Heartbeat живёт только на время тика. Потеря владения отменяет
	// tickCtx — диспетчеризация обязана немедленно прекратиться.
	tickCtx, cancelTick := context.WithCancel(ctx)
	defer cancelTick()

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()

	var lockLost atomic.Bool
	go c.lock.HeartbeatLoop(hbCtx, func(err error) {
		lockLost.Store(true)
		c.logger.Error("coordinator lock lost mid-tick, aborting dispatch", "error", err)
		cancelTick()
	})

	dispatchErr := c.dispatch(tickCtx)

	stopHeartbeat()
	if !lockLost.Load() {
		if _, relErr := c.lock.Release(ctx); relErr != nil {
			c.logger.Warn("failed to release coordinator lock", "error", relErr)
		}
	}

	if dispatchErr != nil {
		telemetry.TicksTotal.WithLabelValues("failed").Inc()
		return dispatchErr
	}
	telemetry.TicksTotal.WithLabelValues("won").Inc()
	return nil
}

// dispatch выполняет полезную часть тика под защитой блокировки.
func (c *Coordinator) dispatch(ctx context.Context) error {
	period := c.periodFn(c.now())
	logger := c.logger.With("period", period, "job_id", c.jobID)

	body, err := c.registry.Get(c.jobID)
	if err != nil {
		return err
	}

	subjectIDs, err := c.subjects.ListDue(ctx, period)
	if err != nil {
		return fmt.Errorf("list due subjects: %w", err)
	}

	logger.Info("tick started", "subjects", len(subjectIDs))

	type dispatched struct {
		record *domain.ExecutionRecord
		result <-chan error
	}
	var inFlight []dispatched

	for _, subjectID := range subjectIDs {
		if ctx.Err() != nil {
			break
		}

		decision, err := c.ledger.GetOrCreate(ctx, subjectID, c.jobID, period)
		if err != nil {
			// Ошибка одного субъекта не срывает тик целиком
			logger.Error("idempotency check failed",
				"subject_id", subjectID,
				"error", err,
			)
			continue
		}
		if !decision.ShouldExecute {
			logger.Debug("subject already settled for this period",
				"subject_id", subjectID,
				"status", decision.Record.Status,
			)
			continue
		}

		record := decision.Record
		result := c.queue.Add(&queue.Job{
			ID:        record.ExecutionID,
			SubjectID: subjectID,
			Execute:   c.makeExecute(record.ExecutionID, subjectID, body),
		})
		inFlight = append(inFlight, dispatched{record: record, result: result})
	}

	c.updateGauges()

	var aborted error
	for _, d := range inFlight {
		select {
		case execErr := <-d.result:
			c.finalize(ctx, d.record, execErr)
			c.updateGauges()
		case <-ctx.Done():
			aborted = fmt.Errorf("tick aborted: %w", ctx.Err())
		}
		if aborted != nil {
			break
		}
	}
	if aborted != nil {
		if cleared := c.queue.Clear(); cleared > 0 {
			logger.Warn("dropped queued jobs after abort", "count", cleared)
		}
		return aborted
	}

	if _, err := c.ledger.Purge(ctx); err != nil {
		logger.Warn("ledger purge failed", "error", err)
	}

	logger.Info("tick finished", "dispatched", len(inFlight))
	return nil
}

// makeExecute оборачивает job body: RUNNING перед запуском, метрика
// длительности после. При повторной попытке mark started — no-op.
func (c *Coordinator) makeExecute(executionID, subjectID string, body jobbody.Body) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := c.ledger.MarkStarted(ctx, executionID); err != nil {
			return err
		}

		start := time.Now()
		err := body.Execute(ctx, subjectID)
		telemetry.ExecutionDuration.Observe(time.Since(start).Seconds())
		return err
	}
}

// finalize записывает терминальный статус и публикует событие.
// Публикация best-effort: запись в журнале уже финализирована.
func (c *Coordinator) finalize(ctx context.Context, record *domain.ExecutionRecord, execErr error) {
	executionID := record.ExecutionID
	payload := mq.ExecutionEventPayload{
		ExecutionID: executionID,
		SubjectID:   record.SubjectID,
		JobID:       record.JobID,
		Period:      record.Period,
		Attempt:     record.Attempt,
	}

	if execErr == nil {
		if err := c.ledger.MarkCompleted(ctx, executionID); err != nil {
			c.logger.Error("failed to finalize execution",
				"execution_id", executionID,
				"error", err,
			)
			return
		}
		telemetry.ExecutionsTotal.WithLabelValues(string(domain.ExecutionStatusCompleted)).Inc()

		if c.publisher != nil {
			if err := c.publisher.PublishExecutionCompleted(ctx, payload); err != nil {
				c.logger.Warn("failed to publish completion event",
					"execution_id", executionID,
					"error", err,
				)
			}
		}
		return
	}

	// Срабатывание breaker'а — не ошибка job body, а решение
	// admission control; в логе они различаются
	if errors.Is(execErr, breaker.ErrOpen) {
		c.logger.Warn("execution short-circuited by open circuit breaker",
			"execution_id", executionID,
			"subject_id", record.SubjectID,
		)
	}

	if err := c.ledger.MarkFailed(ctx, executionID, execErr); err != nil {
		c.logger.Error("failed to finalize execution",
			"execution_id", executionID,
			"error", err,
		)
		return
	}
	telemetry.ExecutionsTotal.WithLabelValues(string(domain.ExecutionStatusFailed)).Inc()

	if c.publisher != nil {
		payload.Error = execErr.Error()
		if err := c.publisher.PublishExecutionFailed(ctx, payload); err != nil {
			c.logger.Warn("failed to publish failure event",
				"execution_id", executionID,
				"error", err,
			)
		}
	}
}

// updateGauges обновляет метрики очереди и breaker'а.
func (c *Coordinator) updateGauges() {
	counters := c.queue.Counters()
	telemetry.QueueDepth.Set(float64(counters.Queued))
	telemetry.QueueActive.Set(float64(counters.Active))
	telemetry.BreakerState.Set(breakerStateValue(c.breaker.State()))
}

func breakerStateValue(state domain.BreakerState) float64 {
	switch state {
	case domain.BreakerOpen:
		return 2
	case domain.BreakerHalfOpen:
		return 1
	default:
		return 0
	}
}
