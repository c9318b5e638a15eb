package domain

import "fmt"

// Step — следующий шаг задачи, который нужно (пере)выполнить.
//
// Значения упорядочены как в eager-порядке, но фактическая
// последовательность задаётся таблицей в пакете engine.
type Step int

const (
	StepCreateCloneFile Step = iota
	StepCreateCloneMeta
	StepCreateCloneChunk
	StepCompleteCloneMeta
	StepRecoverChunk
	StepCompleteCloneFile
	StepChangeOwner
	StepRenameCloneFile
)

var stepNames = [...]string{
	StepCreateCloneFile:   "CreateCloneFile",
	StepCreateCloneMeta:   "CreateCloneMeta",
	StepCreateCloneChunk:  "CreateCloneChunk",
	StepCompleteCloneMeta: "CompleteCloneMeta",
	StepRecoverChunk:      "RecoverChunk",
	StepCompleteCloneFile: "CompleteCloneFile",
	StepChangeOwner:       "ChangeOwner",
	StepRenameCloneFile:   "RenameCloneFile",
}

// AllSteps возвращает все шаги в порядке объявления.
func AllSteps() []Step {
	steps := make([]Step, len(stepNames))
	for i := range stepNames {
		steps[i] = Step(i)
	}
	return steps
}

// IsValid проверяет, что шаг известен.
func (s Step) IsValid() bool {
	return s >= StepCreateCloneFile && s <= StepRenameCloneFile
}

// String возвращает имя шага.
func (s Step) String() string {
	if !s.IsValid() {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return stepNames[s]
}

// ParseStep парсит имя шага.
func ParseStep(name string) (Step, error) {
	for i, n := range stepNames {
		if n == name {
			return Step(i), nil
		}
	}
	return 0, fmt.Errorf("unknown step %q", name)
}

// MarshalText сохраняет шаг по имени (JSON, БД).
func (s Step) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("unknown step %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText парсит шаг по имени.
func (s *Step) UnmarshalText(text []byte) error {
	step, err := ParseStep(string(text))
	if err != nil {
		return err
	}
	*s = step
	return nil
}
