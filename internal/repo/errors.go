package repo

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrRevisionConflict — запись изменена другим владельцем
	// (compare-and-set по revision не прошёл).
	ErrRevisionConflict = errors.New("revision conflict")
)

// ErrCorruptRecord — запись в БД не читается в domain.CloneTask.
var ErrCorruptRecord = errors.New("corrupt record")

// CorruptRecordError — строка с неразбираемыми полями.
// ID и Revision прочитаны, поэтому запись можно пометить ошибочной.
type CorruptRecordError struct {
	ID       uuid.UUID
	Revision int64
	Err      error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("%s: clone task %s: %v", ErrCorruptRecord, e.ID, e.Err)
}

func (e *CorruptRecordError) Unwrap() []error {
	return []error{ErrCorruptRecord, e.Err}
}
