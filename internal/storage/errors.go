package storage

import "errors"

// Ошибки участников.
var (
	// ErrFileExists — файл по пути уже создан.
	ErrFileExists = errors.New("file already exists")

	// ErrFileNotFound — файл по пути не найден.
	ErrFileNotFound = errors.New("file not found")

	// ErrSegmentNotAllocated — сегмент не выделен, а выделение не запрошено.
	ErrSegmentNotAllocated = errors.New("segment not allocated")

	// ErrSnapshotNotFound — снапшот не найден или не завершён.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrChunkNotFound — чанк не создан на флоте.
	ErrChunkNotFound = errors.New("chunk not found")

	// ErrUnavailable — временная недоступность (сеть, таймаут).
	ErrUnavailable = errors.New("service unavailable")
)
