package steps

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/snapclone/internal/domain"
)

// Registry — реестр процедур шагов.
//
// Потокобезопасен.
type Registry struct {
	mu    sync.RWMutex
	steps map[domain.Step]Step
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[domain.Step]Step),
	}
}

// DefaultRegistry создаёт реестр со всеми восемью шагами.
func DefaultRegistry(deps *Deps) *Registry {
	r := NewRegistry()

	r.Register(NewCreateCloneFileStep(deps))
	r.Register(NewCreateCloneMetaStep(deps))
	r.Register(NewCreateCloneChunkStep(deps))
	r.Register(NewCompleteCloneMetaStep(deps))
	r.Register(NewRecoverChunkStep(deps))
	r.Register(NewCompleteCloneFileStep(deps))
	r.Register(NewChangeOwnerStep(deps))
	r.Register(NewRenameCloneFileStep(deps))

	return r
}

// Register регистрирует шаг. Существующий шаг перезаписывается.
func (r *Registry) Register(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[step.Name()] = step
}

// Get возвращает процедуру шага или ErrStepNotFound.
func (r *Registry) Get(name domain.Step) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, exists := r.steps[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, name)
	}
	return step, nil
}

// Has проверяет, зарегистрирован ли шаг.
func (r *Registry) Has(name domain.Step) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.steps[name]
	return exists
}

// Names возвращает зарегистрированные шаги по порядку объявления.
func (r *Registry) Names() []domain.Step {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]domain.Step, 0, len(r.steps))
	for n := range r.steps {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Missing возвращает шаги из списка, для которых нет процедуры.
func (r *Registry) Missing(required []domain.Step) []domain.Step {
	var missing []domain.Step
	for _, s := range required {
		if !r.Has(s) {
			missing = append(missing, s)
		}
	}
	return missing
}

// Count возвращает количество зарегистрированных шагов.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}

// Unregister удаляет шаг из реестра.
func (r *Registry) Unregister(name domain.Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.steps, name)
}
