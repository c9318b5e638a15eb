package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/snapclone/internal/domain"
)

// MemoryTaskStore — TaskStore в памяти процесса.
//
// Используется в тестах и в режиме без БД. Хранит копии записей,
// поэтому изменения вызывающего не видны до Update.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.CloneTask

	// history — все сохранённые версии записей по порядку.
	history map[uuid.UUID][]domain.CloneTask
}

// NewMemoryTaskStore создаёт пустое хранилище.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks:   make(map[uuid.UUID]*domain.CloneTask),
		history: make(map[uuid.UUID][]domain.CloneTask),
	}
}

var _ TaskStore = (*MemoryTaskStore)(nil)

// Create реализует TaskStore.
func (s *MemoryTaskStore) Create(_ context.Context, task *domain.CloneTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("%w: task %s", ErrAlreadyExists, task.ID)
	}

	task.Revision = 1
	s.tasks[task.ID] = task.Clone()
	s.history[task.ID] = append(s.history[task.ID], *task.Clone())
	return nil
}

// Get реализует TaskStore.
func (s *MemoryTaskStore) Get(_ context.Context, id uuid.UUID) (*domain.CloneTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return task.Clone(), nil
}

// Update реализует TaskStore (compare-and-set по Revision).
func (s *MemoryTaskStore) Update(_ context.Context, task *domain.CloneTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tasks[task.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Revision != task.Revision {
		return fmt.Errorf("%w: task %s revision %d, stored %d",
			ErrRevisionConflict, task.ID, task.Revision, stored.Revision)
	}

	task.Revision++
	task.UpdatedAt = time.Now()
	s.tasks[task.ID] = task.Clone()
	s.history[task.ID] = append(s.history[task.ID], *task.Clone())
	return nil
}

// ListNonTerminal реализует TaskStore.
func (s *MemoryTaskStore) ListNonTerminal(_ context.Context) ([]domain.CloneTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []domain.CloneTask
	for _, t := range s.tasks {
		if !t.IsTerminal() {
			tasks = append(tasks, *t.Clone())
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	return tasks, nil
}

// List реализует TaskStore.
func (s *MemoryTaskStore) List(_ context.Context, filter TaskFilter) ([]domain.CloneTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []domain.CloneTask
	for _, t := range s.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Mode != "" && t.Mode != filter.Mode {
			continue
		}
		tasks = append(tasks, *t.Clone())
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })

	if filter.Offset >= len(tasks) {
		return nil, nil
	}
	tasks = tasks[filter.Offset:]
	if len(tasks) > filter.limit() {
		tasks = tasks[:filter.limit()]
	}
	return tasks, nil
}

// History возвращает все сохранённые версии записи по порядку.
func (s *MemoryTaskStore) History(id uuid.UUID) []domain.CloneTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CloneTask(nil), s.history[id]...)
}

// Put кладёт запись как есть, минуя compare-and-set.
// Нужен для подготовки состояния «после падения» в тестах.
func (s *MemoryTaskStore) Put(task *domain.CloneTask) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.Revision == 0 {
		task.Revision = 1
	}
	s.tasks[task.ID] = task.Clone()
	s.history[task.ID] = append(s.history[task.ID], *task.Clone())
}
