package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/snapclone/internal/domain"
	"github.com/shaiso/snapclone/internal/engine"
	"github.com/shaiso/snapclone/internal/storage"
)

// Ошибки шагов.
var (
	// ErrStepNotFound — шаг не зарегистрирован в реестре.
	ErrStepNotFound = errors.New("step not registered")

	// ErrPermanent — ошибка, которую повтор не исправит.
	ErrPermanent = errors.New("permanent step failure")

	// ErrDestinationExists — целевой путь clone уже занят.
	ErrDestinationExists = errors.New("clone destination already exists")
)

// permanentErrors — ошибки, переводящие задачу в error.
var permanentErrors = []error{
	ErrPermanent,
	engine.ErrInvalidTask,
	domain.ErrInvalidRequest,
	storage.ErrSnapshotNotFound,
	storage.ErrFileNotFound,
	storage.ErrSegmentNotAllocated,
	storage.ErrChunkNotFound,
}

// IsPermanent возвращает true для постоянных ошибок.
// Всё остальное (сеть, таймауты, отмена ctx) считается временным.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range permanentErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Permanent помечает ошибку как постоянную.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Step — одна идемпотентная процедура автомата.
type Step interface {
	// Name возвращает шаг, который реализует процедура.
	Name() domain.Step

	// Execute выполняет шаг. Может дописать id файлов в req.Task,
	// но не продвигает Step/Status.
	Execute(ctx context.Context, req *Request) error
}

// Request — входные данные шага.
type Request struct {
	// Task — запись задачи.
	Task *domain.CloneTask

	// Progress — необязательный приёмник прогресса шага в процентах.
	Progress func(percent int)
}

// NewRequest создаёт Request.
func NewRequest(task *domain.CloneTask, progress func(percent int)) *Request {
	return &Request{Task: task, Progress: progress}
}

func (r *Request) report(done, total int) {
	if r.Progress == nil || total <= 0 {
		return
	}
	r.Progress(done * 100 / total)
}
