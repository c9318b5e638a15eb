package engine

import (
	"slices"

	"github.com/shaiso/snapclone/internal/domain"
)

// Порядки шагов. Переходы строго последовательные, ветвлений нет.
var (
	eagerOrder = []domain.Step{
		domain.StepCreateCloneFile,
		domain.StepCreateCloneMeta,
		domain.StepCreateCloneChunk,
		domain.StepCompleteCloneMeta,
		domain.StepRecoverChunk,
		domain.StepCompleteCloneFile,
		domain.StepChangeOwner,
		domain.StepRenameCloneFile,
	}

	lazyOrder = []domain.Step{
		domain.StepCreateCloneFile,
		domain.StepCreateCloneMeta,
		domain.StepCreateCloneChunk,
		domain.StepCompleteCloneMeta,
		domain.StepChangeOwner,
		domain.StepRenameCloneFile,
		domain.StepRecoverChunk,
		domain.StepCompleteCloneFile,
	}
)

// planKey — вход таблицы порядков.
type planKey struct {
	mode domain.TaskMode
	lazy bool
}

// plans — таблица (mode × lazy) → порядок. Clone всегда eager.
var plans = map[planKey]Plan{
	{domain.TaskModeClone, false}:   {name: "eager", steps: eagerOrder},
	{domain.TaskModeClone, true}:    {name: "eager", steps: eagerOrder},
	{domain.TaskModeRecover, false}: {name: "eager", steps: eagerOrder},
	{domain.TaskModeRecover, true}: {
		name:       "lazy",
		steps:      lazyOrder,
		pauseAfter: domain.StepRenameCloneFile,
		hasPause:   true,
	},
}

// Plan — упорядоченный список шагов задачи и точка ленивой паузы.
type Plan struct {
	name       string
	steps      []domain.Step
	pauseAfter domain.Step
	hasPause   bool
}

// PlanFor возвращает порядок для режима. Неизвестный режим даёт пустой Plan.
func PlanFor(mode domain.TaskMode, lazy bool) Plan {
	return plans[planKey{mode: mode, lazy: lazy}]
}

// PlanOf возвращает порядок для задачи.
func PlanOf(task *domain.CloneTask) Plan {
	return PlanFor(task.Mode, task.IsLazy)
}

// Name возвращает "eager" или "lazy".
func (p Plan) Name() string {
	return p.name
}

// IsZero возвращает true для пустого порядка.
func (p Plan) IsZero() bool {
	return len(p.steps) == 0
}

// Steps возвращает копию списка шагов.
func (p Plan) Steps() []domain.Step {
	return slices.Clone(p.steps)
}

// First возвращает первый шаг порядка.
func (p Plan) First() domain.Step {
	return p.steps[0]
}

// Index возвращает позицию шага в порядке или -1.
func (p Plan) Index(step domain.Step) int {
	return slices.Index(p.steps, step)
}

// Contains проверяет, входит ли шаг в порядок.
func (p Plan) Contains(step domain.Step) bool {
	return p.Index(step) >= 0
}

// Next возвращает шаг, следующий за step. false означает, что step
// последний и после него задача завершена.
func (p Plan) Next(step domain.Step) (domain.Step, bool) {
	i := p.Index(step)
	if i < 0 || i+1 >= len(p.steps) {
		return 0, false
	}
	return p.steps[i+1], true
}

// PausesAfter возвращает true, если после step наступает ленивая веха
// (status = metaInstalled) и выполнение останавливается до Flatten.
func (p Plan) PausesAfter(step domain.Step) bool {
	return p.hasPause && step == p.pauseAfter
}

// PauseStep возвращает шаг, после которого наступает пауза.
func (p Plan) PauseStep() (domain.Step, bool) {
	return p.pauseAfter, p.hasPause
}

// Renamed возвращает true, если к моменту выполнения step файл уже
// переименован в целевой путь.
func (p Plan) Renamed(step domain.Step) bool {
	rename := p.Index(domain.StepRenameCloneFile)
	i := p.Index(step)
	return rename >= 0 && i > rename
}

// Before возвращает true, если a стоит в порядке раньше b.
func (p Plan) Before(a, b domain.Step) bool {
	ia, ib := p.Index(a), p.Index(b)
	return ia >= 0 && ib >= 0 && ia < ib
}
