package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config — конфигурация процесса координатора.
type Config struct {
	Server   ServerConfig
	Lock     LockConfig
	Ledger   LedgerConfig
	Breaker  BreakerConfig
	Queue    QueueConfig
	Schedule ScheduleConfig
	Pipeline PipelineConfig
	AMQP     AMQPConfig
}

// ServerConfig — настройки HTTP сервера (facade + metrics).
type ServerConfig struct {
	Port       string
	AdminToken string // bearer token для /api/v1; пустой запрещён
}

// LockConfig — настройки распределённой блокировки.
type LockConfig struct {
	TTL               time.Duration // время жизни аренды
	HeartbeatInterval time.Duration // интервал продления
}

// LedgerConfig — настройки журнала идемпотентности.
type LedgerConfig struct {
	StaleAfter time.Duration // порог staleness для RUNNING
	Retention  time.Duration // окно хранения записей
}

// BreakerConfig — настройки circuit breaker'а.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
	CallTimeout      time.Duration
}

// QueueConfig — настройки очереди выполнения.
type QueueConfig struct {
	Concurrency int
	MaxRetries  int
}

// ScheduleConfig — настройки планирования.
type ScheduleConfig struct {
	TickCron   string // cron-выражение тика (например, "*/10 * * * *")
	JobID      string // идентификатор job (например, "daily-digest")
	PeriodKind string // daily | weekly | hourly
	Timezone   string // IANA timezone для вычисления периода
	Subjects   []string
}

// PipelineConfig — настройки downstream пайплайна.
type PipelineConfig struct {
	URL string // endpoint пайплайна; пустой — job body не сконфигурирован
}

// AMQPConfig — настройки публикации событий.
type AMQPConfig struct {
	URL string // пустой — публикация отключена
}

// Load читает конфигурацию из переменных окружения с дефолтами.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:       getEnv("API_PORT", "8080"),
			AdminToken: getEnv("ADMIN_TOKEN", ""),
		},
		Lock: LockConfig{
			TTL:               getDurationEnv("LOCK_TTL", 5*time.Minute),
			HeartbeatInterval: getDurationEnv("LOCK_HEARTBEAT_INTERVAL", 2*time.Minute),
		},
		Ledger: LedgerConfig{
			StaleAfter: getDurationEnv("LEDGER_STALE_AFTER", 10*time.Minute),
			Retention:  getDurationEnv("LEDGER_RETENTION", 7*24*time.Hour),
		},
		Breaker: BreakerConfig{
			FailureThreshold: getIntEnv("BREAKER_FAILURE_THRESHOLD", 5),
			SuccessThreshold: getIntEnv("BREAKER_SUCCESS_THRESHOLD", 2),
			ResetTimeout:     getDurationEnv("BREAKER_RESET_TIMEOUT", 5*time.Minute),
			CallTimeout:      getDurationEnv("BREAKER_CALL_TIMEOUT", 2*time.Minute),
		},
		Queue: QueueConfig{
			Concurrency: getIntEnv("QUEUE_CONCURRENCY", 1),
			MaxRetries:  getIntEnv("QUEUE_MAX_RETRIES", 1),
		},
		Schedule: ScheduleConfig{
			TickCron:   getEnv("TICK_CRON", "*/10 * * * *"),
			JobID:      getEnv("JOB_ID", "daily-digest"),
			PeriodKind: getEnv("PERIOD_KIND", "daily"),
			Timezone:   getEnv("PERIOD_TIMEZONE", "UTC"),
			Subjects:   getSliceEnv("SUBJECTS", nil),
		},
		Pipeline: PipelineConfig{
			URL: getEnv("PIPELINE_URL", ""),
		},
		AMQP: AMQPConfig{
			URL: getEnv("AMQP_URL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность конфигурации.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("API_PORT must not be empty")
	}
	if c.Server.AdminToken == "" {
		return fmt.Errorf("ADMIN_TOKEN is required: admin endpoints must be privilege-gated")
	}

	// Один пропущенный heartbeat не должен приводить к ложной потере аренды
	if c.Lock.TTL < 2*c.Lock.HeartbeatInterval {
		return fmt.Errorf("LOCK_TTL (%s) must be at least twice LOCK_HEARTBEAT_INTERVAL (%s)",
			c.Lock.TTL, c.Lock.HeartbeatInterval)
	}

	// Порог staleness обязан покрывать весь бюджет повторов плюс
	// паузу breaker'а: иначе запись может быть объявлена брошенной,
	// пока её владелец легально пережидает cooldown (двойной запуск)
	attempts := time.Duration(c.Queue.MaxRetries + 1)
	retryWindow := c.Breaker.CallTimeout*attempts + c.Breaker.ResetTimeout
	if c.Ledger.StaleAfter <= retryWindow {
		return fmt.Errorf("LEDGER_STALE_AFTER (%s) must exceed the worst-case retry window (%s = call timeout x attempts + breaker reset timeout)",
			c.Ledger.StaleAfter, retryWindow)
	}

	switch c.Schedule.PeriodKind {
	case "daily", "weekly", "hourly":
	default:
		return fmt.Errorf("PERIOD_KIND must be daily, weekly or hourly, got %q", c.Schedule.PeriodKind)
	}

	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("QUEUE_CONCURRENCY must be at least 1")
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("QUEUE_MAX_RETRIES must not be negative")
	}

	return nil
}

// --- Env helpers ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getSliceEnv(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
