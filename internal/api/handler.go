package api

import (
	"log/slog"

	"github.com/shaiso/Cadence/internal/breaker"
	"github.com/shaiso/Cadence/internal/ledger"
	"github.com/shaiso/Cadence/internal/lock"
	"github.com/shaiso/Cadence/internal/queue"
)

// Handler — главный обработчик Health Facade с зависимостями.
type Handler struct {
	ledger     *ledger.Ledger
	lock       *lock.Lock
	breaker    *breaker.Breaker
	queue      *queue.Queue
	adminToken string
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Ledger     *ledger.Ledger
	Lock       *lock.Lock
	Breaker    *breaker.Breaker
	Queue      *queue.Queue
	AdminToken string
	Logger     *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		ledger:     cfg.Ledger,
		lock:       cfg.Lock,
		breaker:    cfg.Breaker,
		queue:      cfg.Queue,
		adminToken: cfg.AdminToken,
		logger:     cfg.Logger,
	}
}
