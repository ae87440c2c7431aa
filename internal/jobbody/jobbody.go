package jobbody

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownJob — для job id не зарегистрирован body.
var ErrUnknownJob = errors.New("unknown job")

// Body — непрозрачный job body, поставляемый вызывающим
// (например, пайплайном fetch → summarize → synthesize → push).
//
// Контракт: Execute может быть вызван повторно для той же пары
// (subject, period), если предыдущая попытка была брошена. Координатор
// гарантирует не более одного COMPLETED, но не отсутствие повторных
// побочных эффектов body — этот риск принят осознанно.
type Body interface {
	Execute(ctx context.Context, subjectID string) error
}

// BodyFunc — адаптер функции к интерфейсу Body.
type BodyFunc func(ctx context.Context, subjectID string) error

// Execute вызывает функцию.
func (f BodyFunc) Execute(ctx context.Context, subjectID string) error {
	return f(ctx, subjectID)
}

// Registry — реестр job bodies по идентификатору job.
type Registry struct {
	bodies map[string]Body
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{bodies: make(map[string]Body)}
}

// Register добавляет body для job id.
func (r *Registry) Register(jobID string, body Body) {
	r.bodies[jobID] = body
}

// Get возвращает body для job id.
func (r *Registry) Get(jobID string) (Body, error) {
	body, ok := r.bodies[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	return body, nil
}
