package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Значения по умолчанию.
const (
	// defaultConcurrency — один слот: downstream API (fetch, summarization,
	// TTS) не переживают параллельную нагрузку от одного экземпляра.
	defaultConcurrency = 1

	// defaultMaxRetries — одна повторная попытка на job.
	defaultMaxRetries = 1
)

// Ошибки очереди.
var (
	// ErrCleared — job удалён оператором через queue clear.
	ErrCleared = errors.New("job cleared from queue")

	// ErrStopped — очередь остановлена до выполнения job.
	ErrStopped = errors.New("queue stopped")
)

// Runner выполняет job body. Координатор передаёт сюда breaker.Do,
// чтобы каждый запуск проходил через circuit breaker.
type Runner func(ctx context.Context, fn func(context.Context) error) error

// Job — единица диспетчеризации. Живёт только в памяти: при падении
// процесса поставленные, но не начатые jobs теряются — это допустимо,
// журнал идемпотентности переперечислит их на следующем тике.
type Job struct {
	// ID — идентификатор job (обычно execution id).
	ID string

	// SubjectID — субъект, для которого выполняется job.
	SubjectID string

	// Execute — непрозрачный job body.
	Execute func(ctx context.Context) error

	attemptsRemaining int
	result            chan error
}

// Queue — FIFO диспетчер с ограниченной конкурентностью.
//
// Jobs выполняются строго в порядке постановки. Упавший job повторяется
// до maxRetries раз, возвращаясь в НАЧАЛО очереди (повтор без задержки),
// и только затем ошибка отдаётся вызывающему. Срабатывание breaker'а
// расходует бюджет повторов наравне с обычной ошибкой.
type Queue struct {
	concurrency int
	maxRetries  int
	runner      Runner
	logger      *slog.Logger

	mu      sync.Mutex
	jobs    []*Job
	active  int
	stopped bool

	totalSucceeded int64
	totalFailed    int64

	notify     chan struct{}
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Queue.
type Config struct {
	Concurrency int    // число одновременных слотов (default: 1)
	MaxRetries  int    // повторов на job (default: 1); 0 допустим, -1 — без повторов
	Runner      Runner // обёртка выполнения (обычно breaker.Do)
	Logger      *slog.Logger
}

// New создаёт новую Queue.
func New(cfg Config) *Queue {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	} else if maxRetries < 0 {
		maxRetries = 0
	}

	runner := cfg.Runner
	if runner == nil {
		runner = func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		concurrency: concurrency,
		maxRetries:  maxRetries,
		runner:      runner,
		logger:      logger,
		notify:      make(chan struct{}, 1),
	}
}

// Start запускает воркеров очереди.
func (q *Queue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.cancelFunc = cancel

	for i := 0; i < q.concurrency; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.dispatchLoop(ctx)
		}()
	}

	q.logger.Info("queue started",
		"concurrency", q.concurrency,
		"max_retries", q.maxRetries,
	)
}

// Stop останавливает очередь и дожидается активных jobs.
// Оставшиеся в очереди jobs получают ErrStopped.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()

	if q.cancelFunc != nil {
		q.cancelFunc()
	}
	q.wg.Wait()

	q.drain(ErrStopped)
	q.logger.Info("queue stopped")
}

// Add ставит job в конец очереди.
//
// Возвращает канал с единственным результатом: nil при успехе либо
// терминальная ошибка после исчерпания повторов. Канал буферизован —
// результат не теряется, даже если вызывающий читает позже.
func (q *Queue) Add(job *Job) <-chan error {
	result := make(chan error, 1)
	job.result = result
	job.attemptsRemaining = q.maxRetries

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		result <- ErrStopped
		return result
	}
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	q.wake()
	return result
}

// Clear удаляет все поставленные, но не начатые jobs.
// Каждый удалённый job получает ErrCleared. Активные jobs дорабатывают.
// Операторский механизм, доступен через Health Facade.
func (q *Queue) Clear() int {
	cleared := q.drain(ErrCleared)
	if cleared > 0 {
		q.logger.Warn("queue cleared by operator", "dropped", cleared)
	}
	return cleared
}

// Counters — живые счётчики очереди для Health Facade.
type Counters struct {
	Queued         int   `json:"queued"`
	Active         int   `json:"active"`
	TotalSucceeded int64 `json:"total_succeeded"`
	TotalFailed    int64 `json:"total_failed"`
}

// Counters возвращает снимок счётчиков.
func (q *Queue) Counters() Counters {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Counters{
		Queued:         len(q.jobs),
		Active:         q.active,
		TotalSucceeded: q.totalSucceeded,
		TotalFailed:    q.totalFailed,
	}
}

// dispatchLoop — цикл воркера: берёт следующий job, когда слот свободен.
func (q *Queue) dispatchLoop(ctx context.Context) {
	for {
		job := q.pop()
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.notify:
				continue
			}
		}

		q.run(ctx, job)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// run выполняет job через runner и решает судьбу результата.
func (q *Queue) run(ctx context.Context, job *Job) {
	err := q.runner(ctx, job.Execute)

	q.mu.Lock()
	q.active--

	if err == nil {
		q.totalSucceeded++
		q.mu.Unlock()
		job.result <- nil
		return
	}

	if job.attemptsRemaining > 0 && ctx.Err() == nil {
		// Явное, тестируемое уменьшение счётчика попыток:
		// бюджет повторов не может течь или зависнуть
		job.attemptsRemaining--
		// Повтор в начало очереди — без ожидания хвоста
		q.jobs = append([]*Job{job}, q.jobs...)
		q.mu.Unlock()

		q.logger.Warn("job failed, retrying at queue front",
			"job_id", job.ID,
			"subject_id", job.SubjectID,
			"attempts_remaining", job.attemptsRemaining,
			"error", err,
		)
		q.wake()
		return
	}

	q.totalFailed++
	q.mu.Unlock()

	q.logger.Error("job failed terminally",
		"job_id", job.ID,
		"subject_id", job.SubjectID,
		"error", err,
	)
	job.result <- fmt.Errorf("job %s: %w", job.ID, err)
}

// pop забирает job из начала очереди и занимает слот.
func (q *Queue) pop() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.active++
	return job
}

// drain удаляет все поставленные jobs, отдавая каждому err.
func (q *Queue) drain(err error) int {
	q.mu.Lock()
	dropped := q.jobs
	q.jobs = nil
	q.mu.Unlock()

	for _, job := range dropped {
		job.result <- err
	}
	return len(dropped)
}

// wake будит один спящий воркер.
func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
