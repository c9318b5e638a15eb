package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/snapclone/internal/domain"
)

// TaskState — состояние активной задачи в памяти.
//
// Создаётся при постановке в очередь и удаляется после возврата Run.
// Прогресс шага живёт только здесь: в хранилище он пишется на переходах.
type TaskState struct {
	ID       uuid.UUID
	Step     domain.Step
	Progress int
	Running  bool
	QueuedAt time.Time
	// StartedAt — нулевое, пока задача ждёт в очереди.
	StartedAt time.Time
}

// activeSet — множество активных задач: не больше одной записи на id.
type activeSet struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*TaskState
}

func newActiveSet() *activeSet {
	return &activeSet{tasks: make(map[uuid.UUID]*TaskState)}
}

// add занимает id. false — id уже активен.
func (s *activeSet) add(task *domain.CloneTask) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return false
	}
	s.tasks[task.ID] = &TaskState{
		ID:       task.ID,
		Step:     task.Step,
		Progress: task.Progress,
		QueuedAt: time.Now(),
	}
	return true
}

func (s *activeSet) remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}

func (s *activeSet) has(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.tasks[id]
	return exists
}

func (s *activeSet) started(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.tasks[id]; ok {
		st.Running = true
		st.StartedAt = time.Now()
	}
}

// report обновляет прогресс. Смена шага сбрасывает прогресс,
// внутри шага он не убывает.
func (s *activeSet) report(id uuid.UUID, step domain.Step, percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tasks[id]
	if !ok {
		return
	}
	percent = min(max(percent, 0), 100)
	if st.Step != step {
		st.Step = step
		st.Progress = percent
		return
	}
	if percent > st.Progress {
		st.Progress = percent
	}
}

func (s *activeSet) get(id uuid.UUID) (TaskState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.tasks[id]
	if !ok {
		return TaskState{}, false
	}
	return *st, true
}

func (s *activeSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// merge подставляет живой прогресс в запись, если задача выполняет
// тот же шаг, что записан в хранилище.
func (s *activeSet) merge(task *domain.CloneTask) {
	st, ok := s.get(task.ID)
	if !ok || st.Step != task.Step {
		return
	}
	task.SetProgress(st.Progress)
}
