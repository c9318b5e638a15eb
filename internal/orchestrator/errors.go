package orchestrator

import (
	"errors"

	"github.com/shaiso/snapclone/internal/worker"
)

// Ошибки менеджера задач.
var (
	// ErrTaskNotFound — задачи нет в хранилище.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskAlreadyActive — задача уже в очереди или выполняется.
	ErrTaskAlreadyActive = errors.New("task already active")

	// ErrNotFlattenable — задача не припаркована на ленивой вехе.
	ErrNotFlattenable = errors.New("task is not a lazy recover waiting for flatten")

	// ErrManagerStopped — менеджер остановлен.
	ErrManagerStopped = errors.New("task manager stopped")

	// ErrQueueFull — очередь пула заполнена.
	ErrQueueFull = worker.ErrQueueFull
)
