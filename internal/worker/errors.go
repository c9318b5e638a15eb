package worker

import "errors"

// Ошибки пула.
var (
	// ErrQueueFull — очередь заданий заполнена.
	ErrQueueFull = errors.New("worker queue is full")

	// ErrPoolStopped — пул остановлен или ещё не запущен.
	ErrPoolStopped = errors.New("worker pool stopped")

	// ErrAlreadyStarted — повторный Start.
	ErrAlreadyStarted = errors.New("worker pool already started")
)
