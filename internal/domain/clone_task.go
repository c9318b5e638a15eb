package domain

import (
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
)

// DefaultTempDir — каталог, в котором создаются временные файлы клонов.
const DefaultTempDir = "/clone"

// ErrInvalidRequest — запрос на создание задачи не прошёл валидацию.
var ErrInvalidRequest = errors.New("invalid clone request")

// CloneRequest — входные данные для создания задачи.
type CloneRequest struct {
	Owner       string   `json:"owner"`
	Mode        TaskMode `json:"mode"`
	Source      string   `json:"source"`
	Destination string   `json:"destination"`
	PoolSet     string   `json:"pool_set,omitempty"`
	FileType    FileType `json:"file_type"`
	IsLazy      bool     `json:"is_lazy,omitempty"`
}

// Validate проверяет обязательные поля запроса.
func (r CloneRequest) Validate() error {
	switch {
	case r.Owner == "":
		return fmt.Errorf("%w: owner is required", ErrInvalidRequest)
	case r.Source == "":
		return fmt.Errorf("%w: source is required", ErrInvalidRequest)
	case r.Destination == "":
		return fmt.Errorf("%w: destination is required", ErrInvalidRequest)
	case !r.Mode.IsValid():
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	case !r.FileType.IsValid():
		return fmt.Errorf("%w: unknown file type %q", ErrInvalidRequest, r.FileType)
	}
	return nil
}

// CloneTask — персистентная запись задачи клонирования/восстановления.
//
// Запись — единственная контрольная точка задачи: после рестарта
// выполнение продолжается с шага Step. Меняет запись только core,
// строго после подтверждения шага.
type CloneTask struct {
	// ID — уникальный идентификатор задачи.
	ID uuid.UUID `json:"id"`

	// Owner — пользователь, от имени которого создаётся том.
	Owner string `json:"owner"`

	// Mode — clone или recover.
	Mode TaskMode `json:"mode"`

	// Source — снапшот (uuid) или путь исходного тома.
	Source string `json:"source"`

	// Destination — путь целевого тома.
	Destination string `json:"destination"`

	// PoolSet — подсказка размещения для выделения сегментов.
	PoolSet string `json:"pool_set,omitempty"`

	// SourceFileID — id файла, созданного шагом CreateCloneFile
	// (временный файл, позже переименованный в Destination).
	SourceFileID uint64 `json:"source_file_id"`

	// DestinationFileID — id целевого файла. Для clone совпадает
	// с SourceFileID, для recover — id существующего тома.
	DestinationFileID uint64 `json:"destination_file_id"`

	// FileType — тип источника.
	FileType FileType `json:"file_type"`

	// IsLazy — ленивый режим (имеет смысл только для recover).
	IsLazy bool `json:"is_lazy"`

	// Step — следующий шаг для выполнения.
	Step Step `json:"step"`

	// Status — текущий статус.
	Status TaskStatus `json:"status"`

	// Progress — прогресс текущего шага в процентах.
	Progress int `json:"progress"`

	// Error — текст ошибки при статусе error.
	Error string `json:"error,omitempty"`

	// Revision — версия записи для compare-and-set.
	Revision int64 `json:"revision"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewCloneTask создаёт запись задачи в начальном состоянии.
func NewCloneTask(req CloneRequest) (*CloneTask, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	status := TaskStatusCloning
	if req.Mode == TaskModeRecover {
		status = TaskStatusRecovering
	}

	now := time.Now()
	return &CloneTask{
		ID:          uuid.New(),
		Owner:       req.Owner,
		Mode:        req.Mode,
		Source:      req.Source,
		Destination: req.Destination,
		PoolSet:     req.PoolSet,
		FileType:    req.FileType,
		IsLazy:      req.IsLazy,
		Step:        StepCreateCloneFile,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsTerminal возвращает true, если задача завершена.
func (t *CloneTask) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// IsParked возвращает true для ленивой задачи, ожидающей Flatten.
func (t *CloneTask) IsParked() bool {
	return t.Status == TaskStatusMetaInstalled
}

// TempPath возвращает путь временного файла задачи в каталоге dir.
func (t *CloneTask) TempPath(dir string) string {
	if dir == "" {
		dir = DefaultTempDir
	}
	return path.Join(dir, t.ID.String())
}

// MarkStep переводит задачу на следующий шаг и сбрасывает прогресс.
func (t *CloneTask) MarkStep(next Step) {
	t.Step = next
	t.Progress = 0
	t.UpdatedAt = time.Now()
}

// MarkMetaInstalled фиксирует ленивую веху: том доступен, данные не скопированы.
func (t *CloneTask) MarkMetaInstalled() {
	t.Status = TaskStatusMetaInstalled
	t.UpdatedAt = time.Now()
}

// MarkFlattening возвращает припаркованную задачу в recovering.
func (t *CloneTask) MarkFlattening() {
	t.Status = TaskStatusRecovering
	t.UpdatedAt = time.Now()
}

// MarkDone переводит задачу в done. Step остаётся последним выполненным.
func (t *CloneTask) MarkDone() {
	now := time.Now()
	t.Status = TaskStatusDone
	t.Progress = 100
	t.Error = ""
	t.UpdatedAt = now
	t.FinishedAt = &now
}

// MarkError переводит задачу в error.
func (t *CloneTask) MarkError(err error) {
	now := time.Now()
	t.Status = TaskStatusError
	if err != nil {
		t.Error = err.Error()
	}
	t.UpdatedAt = now
	t.FinishedAt = &now
}

// SetProgress обновляет прогресс шага. Прогресс внутри шага не убывает.
func (t *CloneTask) SetProgress(p int) {
	p = min(max(p, 0), 100)
	if p > t.Progress {
		t.Progress = p
	}
}

// Clone возвращает копию записи.
func (t *CloneTask) Clone() *CloneTask {
	c := *t
	if t.FinishedAt != nil {
		fin := *t.FinishedAt
		c.FinishedAt = &fin
	}
	return &c
}
