package steps

import (
	"context"
	"fmt"

	"github.com/shaiso/snapclone/internal/domain"
)

// CreateCloneMetaStep выделяет сегменты файла клона под все выбранные чанки.
type CreateCloneMetaStep struct {
	deps *Deps
}

// NewCreateCloneMetaStep создаёт шаг CreateCloneMeta.
func NewCreateCloneMetaStep(deps *Deps) *CreateCloneMetaStep {
	return &CreateCloneMetaStep{deps: deps}
}

// Name возвращает шаг.
func (s *CreateCloneMetaStep) Name() domain.Step {
	return domain.StepCreateCloneMeta
}

// Execute выполняет шаг.
func (s *CreateCloneMetaStep) Execute(ctx context.Context, req *Request) error {
	task := req.Task
	user := s.deps.user(task)
	path := s.deps.workingPath(task)

	src, err := s.deps.resolveSource(ctx, task)
	if err != nil {
		return err
	}
	chunks, err := s.deps.selectChunks(ctx, task, src, 0)
	if err != nil {
		return err
	}

	cache := s.deps.newSegmentCache(path, user, true)
	for i, c := range chunks {
		if _, err := cache.locate(ctx, c.Offset, src.segmentSize); err != nil {
			return fmt.Errorf("allocate clone meta: %w", err)
		}
		req.report(i+1, len(chunks))
	}

	s.deps.logger().Debug("clone meta created",
		"task_id", task.ID,
		"segments", len(cache.segments),
		"chunks", len(chunks),
	)
	return nil
}

// CompleteCloneMetaStep отмечает метаданные клона завершёнными.
type CompleteCloneMetaStep struct {
	deps *Deps
}

// NewCompleteCloneMetaStep создаёт шаг CompleteCloneMeta.
func NewCompleteCloneMetaStep(deps *Deps) *CompleteCloneMetaStep {
	return &CompleteCloneMetaStep{deps: deps}
}

// Name возвращает шаг.
func (s *CompleteCloneMetaStep) Name() domain.Step {
	return domain.StepCompleteCloneMeta
}

// Execute выполняет шаг.
func (s *CompleteCloneMetaStep) Execute(ctx context.Context, req *Request) error {
	path := s.deps.workingPath(req.Task)
	if err := s.deps.Meta.CompleteCloneMeta(ctx, path, s.deps.user(req.Task)); err != nil {
		return fmt.Errorf("complete clone meta %s: %w", path, err)
	}
	return nil
}
