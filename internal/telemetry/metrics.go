package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики координатора.
//
// Breaker и очередь локальны для процесса, поэтому их метрики
// репрезентативны только для экземпляра, держащего блокировку.
var (
	// TicksTotal — счётчик тиков по результату:
	// won (блокировка взята), skipped (держит другой экземпляр),
	// failed (тик прерван ошибкой store).
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_ticks_total",
		Help: "Scheduler ticks by outcome",
	}, []string{"outcome"})

	// ExecutionsTotal — счётчик завершённых executions по статусу.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadence_executions_total",
		Help: "Finished executions by status",
	}, []string{"status"})

	// ExecutionDuration — гистограмма длительности job body.
	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cadence_execution_duration_seconds",
		Help:    "Job body execution duration",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms .. ~3.4m
	})

	// BreakerState — текущее состояние circuit breaker'а:
	// 0 = CLOSED, 1 = HALF_OPEN, 2 = OPEN.
	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cadence_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	})

	// QueueDepth — длина очереди выполнения.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cadence_queue_depth",
		Help: "Jobs waiting in the execution queue",
	})

	// QueueActive — число выполняющихся jobs.
	QueueActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cadence_queue_active",
		Help: "Jobs currently executing",
	})

	// LockHeld — 1, если этот экземпляр держит блокировку координатора.
	LockHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cadence_lock_held",
		Help: "Whether this instance currently holds the coordinator lock",
	})
)
