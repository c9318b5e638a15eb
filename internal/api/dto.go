package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/snapclone/internal/domain"
)

// CreateCloneRequest — запрос на клонирование.
type CreateCloneRequest struct {
	Owner       string          `json:"owner"`
	Source      string          `json:"source"`
	Destination string          `json:"destination"`
	PoolSet     string          `json:"pool_set,omitempty"`
	FileType    domain.FileType `json:"file_type,omitempty"`
	IsLazy      bool            `json:"is_lazy,omitempty"`
}

// ToDomain собирает CloneRequest для заданного режима.
// Пустой file_type означает снапшот.
func (r CreateCloneRequest) ToDomain(mode domain.TaskMode) domain.CloneRequest {
	fileType := r.FileType
	if fileType == "" {
		fileType = domain.FileTypeSnapshot
	}
	return domain.CloneRequest{
		Owner:       r.Owner,
		Mode:        mode,
		Source:      r.Source,
		Destination: r.Destination,
		PoolSet:     r.PoolSet,
		FileType:    fileType,
		IsLazy:      r.IsLazy,
	}
}

// TaskResponse — ответ с задачей.
type TaskResponse struct {
	ID                uuid.UUID         `json:"id"`
	Owner             string            `json:"owner"`
	Mode              domain.TaskMode   `json:"mode"`
	Source            string            `json:"source"`
	Destination       string            `json:"destination"`
	PoolSet           string            `json:"pool_set,omitempty"`
	SourceFileID      uint64            `json:"source_file_id"`
	DestinationFileID uint64            `json:"destination_file_id"`
	FileType          domain.FileType   `json:"file_type"`
	IsLazy            bool              `json:"is_lazy"`
	Step              domain.Step       `json:"step"`
	Status            domain.TaskStatus `json:"status"`
	Progress          int               `json:"progress"`
	Error             string            `json:"error,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	FinishedAt        *time.Time        `json:"finished_at,omitempty"`
}

// TaskFromDomain конвертирует domain.CloneTask в TaskResponse.
func TaskFromDomain(t domain.CloneTask) TaskResponse {
	return TaskResponse{
		ID:                t.ID,
		Owner:             t.Owner,
		Mode:              t.Mode,
		Source:            t.Source,
		Destination:       t.Destination,
		PoolSet:           t.PoolSet,
		SourceFileID:      t.SourceFileID,
		DestinationFileID: t.DestinationFileID,
		FileType:          t.FileType,
		IsLazy:            t.IsLazy,
		Step:              t.Step,
		Status:            t.Status,
		Progress:          t.Progress,
		Error:             t.Error,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		FinishedAt:        t.FinishedAt,
	}
}
