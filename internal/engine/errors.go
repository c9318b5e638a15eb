package engine

import (
	"errors"

	"github.com/shaiso/snapclone/internal/domain"
)

// Ошибки валидации записи задачи.
var (
	// ErrInvalidTask — запись несовместима с автоматом.
	ErrInvalidTask = errors.New("invalid task record")

	// ErrStepNotInPlan — шаг не входит в порядок задачи.
	ErrStepNotInPlan = errors.New("step is not part of the task plan")

	// ErrStatusMismatch — статус не согласован с шагом.
	ErrStatusMismatch = errors.New("status does not match step")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	Step    domain.Step // шаг записи на момент проверки
	Field   string      // поле, вызвавшее ошибку
	Message string      // описание ошибки
	Err     error       // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "task " + e.Field + " at step " + e.Step.String() + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку и ErrInvalidTask.
func (e *ValidationError) Unwrap() []error {
	return []error{e.Err, ErrInvalidTask}
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(step domain.Step, field, message string, err error) *ValidationError {
	return &ValidationError{
		Step:    step,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
