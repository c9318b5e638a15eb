package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/shaiso/snapclone/internal/domain"
)

// TaskStore — хранилище записей задач.
//
// Update атомарен на запись: он проходит только если Revision в
// хранилище совпадает с task.Revision, и увеличивает её.
type TaskStore interface {
	Create(ctx context.Context, task *domain.CloneTask) error
	Get(ctx context.Context, id uuid.UUID) (*domain.CloneTask, error)
	Update(ctx context.Context, task *domain.CloneTask) error
	ListNonTerminal(ctx context.Context) ([]domain.CloneTask, error)
	List(ctx context.Context, filter TaskFilter) ([]domain.CloneTask, error)
}

// TaskFilter — фильтр списка задач.
type TaskFilter struct {
	Status domain.TaskStatus
	Mode   domain.TaskMode
	Limit  int
	Offset int
}

func (f TaskFilter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}
