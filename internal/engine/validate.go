package engine

import (
	"fmt"

	"github.com/shaiso/snapclone/internal/domain"
)

// Validate проверяет, что запись можно вести по её порядку.
//
// Ошибки Validate — постоянные: повтор не исправит запись.
func Validate(task *domain.CloneTask) error {
	if !task.Mode.IsValid() {
		return NewValidationError(task.Step, "mode", fmt.Sprintf("unknown mode %q", task.Mode), ErrInvalidTask)
	}
	if !task.FileType.IsValid() {
		return NewValidationError(task.Step, "file_type", fmt.Sprintf("unknown file type %q", task.FileType), ErrInvalidTask)
	}
	if !task.Status.IsValid() {
		return NewValidationError(task.Step, "status", fmt.Sprintf("unknown status %q", task.Status), ErrInvalidTask)
	}
	if task.Destination == "" || task.Source == "" {
		return NewValidationError(task.Step, "path", "source and destination are required", ErrInvalidTask)
	}

	plan := PlanOf(task)
	if !plan.Contains(task.Step) {
		return NewValidationError(task.Step, "step", "step is not in the "+plan.Name()+" plan", ErrStepNotInPlan)
	}

	if task.Status == domain.TaskStatusMetaInstalled {
		pause, ok := plan.PauseStep()
		next, _ := plan.Next(pause)
		if !ok || task.Step != next {
			return NewValidationError(task.Step, "status", "metaInstalled is only valid right after the lazy pause", ErrStatusMismatch)
		}
	}

	// После CreateCloneFile id файлов обязаны быть известны.
	if plan.Before(domain.StepCreateCloneFile, task.Step) && (task.SourceFileID == 0 || task.DestinationFileID == 0) {
		return NewValidationError(task.Step, "file_id", "file ids are not set past CreateCloneFile", ErrInvalidTask)
	}

	return nil
}
