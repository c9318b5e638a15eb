package steps

import (
	"context"
	"fmt"

	"github.com/shaiso/snapclone/internal/domain"
)

// CompleteCloneFileStep отмечает файл клона полностью скопированным.
type CompleteCloneFileStep struct {
	deps *Deps
}

// NewCompleteCloneFileStep создаёт шаг CompleteCloneFile.
func NewCompleteCloneFileStep(deps *Deps) *CompleteCloneFileStep {
	return &CompleteCloneFileStep{deps: deps}
}

// Name возвращает шаг.
func (s *CompleteCloneFileStep) Name() domain.Step {
	return domain.StepCompleteCloneFile
}

// Execute выполняет шаг.
func (s *CompleteCloneFileStep) Execute(ctx context.Context, req *Request) error {
	path := s.deps.workingPath(req.Task)
	if err := s.deps.Meta.CompleteCloneFile(ctx, path, s.deps.user(req.Task)); err != nil {
		return fmt.Errorf("complete clone file %s: %w", path, err)
	}
	return nil
}

// ChangeOwnerStep передаёт файл клона владельцу задачи.
type ChangeOwnerStep struct {
	deps *Deps
}

// NewChangeOwnerStep создаёт шаг ChangeOwner.
func NewChangeOwnerStep(deps *Deps) *ChangeOwnerStep {
	return &ChangeOwnerStep{deps: deps}
}

// Name возвращает шаг.
func (s *ChangeOwnerStep) Name() domain.Step {
	return domain.StepChangeOwner
}

// Execute выполняет шаг.
func (s *ChangeOwnerStep) Execute(ctx context.Context, req *Request) error {
	task := req.Task
	path := s.deps.workingPath(task)
	if err := s.deps.Meta.ChangeOwner(ctx, path, task.Owner, s.deps.user(task)); err != nil {
		return fmt.Errorf("change owner %s: %w", path, err)
	}
	return nil
}

// RenameCloneFileStep переименовывает временный файл в целевой путь.
// После этого шага том виден пользователю.
type RenameCloneFileStep struct {
	deps *Deps
}

// NewRenameCloneFileStep создаёт шаг RenameCloneFile.
func NewRenameCloneFileStep(deps *Deps) *RenameCloneFileStep {
	return &RenameCloneFileStep{deps: deps}
}

// Name возвращает шаг.
func (s *RenameCloneFileStep) Name() domain.Step {
	return domain.StepRenameCloneFile
}

// Execute выполняет шаг.
func (s *RenameCloneFileStep) Execute(ctx context.Context, req *Request) error {
	task := req.Task
	tempPath := task.TempPath(s.deps.Options.TempDir)

	err := s.deps.Meta.RenameCloneFile(ctx, s.deps.user(task),
		task.SourceFileID, task.DestinationFileID, tempPath, task.Destination)
	if err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tempPath, task.Destination, err)
	}

	s.deps.logger().Info("clone file renamed",
		"task_id", task.ID,
		"from", tempPath,
		"to", task.Destination,
	)
	return nil
}
