package steps

import (
	"context"
	"fmt"

	"github.com/shaiso/snapclone/internal/domain"
	"github.com/shaiso/snapclone/internal/storage"
	"github.com/shaiso/snapclone/internal/tracker"
)

// Имена подопераций для Observer.
const (
	subOpCreateChunk  = "create_clone_chunk"
	subOpRecoverChunk = "recover_chunk"
)

// CreateCloneChunkStep создаёт на флоте чанки клона, ссылающиеся на источник.
type CreateCloneChunkStep struct {
	deps *Deps
}

// NewCreateCloneChunkStep создаёт шаг CreateCloneChunk.
func NewCreateCloneChunkStep(deps *Deps) *CreateCloneChunkStep {
	return &CreateCloneChunkStep{deps: deps}
}

// Name возвращает шаг.
func (s *CreateCloneChunkStep) Name() domain.Step {
	return domain.StepCreateCloneChunk
}

// Execute выполняет шаг.
func (s *CreateCloneChunkStep) Execute(ctx context.Context, req *Request) error {
	task := req.Task
	user := s.deps.user(task)
	path := s.deps.workingPath(task)

	src, err := s.deps.resolveSource(ctx, task)
	if err != nil {
		return err
	}
	file, err := s.deps.Meta.GetFileInfo(ctx, path, user)
	if err != nil {
		return fmt.Errorf("get clone file %s: %w", path, err)
	}
	chunks, err := s.deps.selectChunks(ctx, task, src, file.SeqNum)
	if err != nil {
		return err
	}

	cache := s.deps.newSegmentCache(path, user, false)
	total := len(chunks)
	d := tracker.NewDispatcher(s.deps.Options.CreateChunkConcurrency,
		tracker.WithOnDone(func(completed, _ int) { req.report(completed, total) }))

	for _, c := range chunks {
		loc, err := cache.locate(ctx, c.Offset, src.segmentSize)
		if err != nil {
			// Уже запущенные подоперации дожидаемся, но шаг провален.
			_ = d.Wait()
			return fmt.Errorf("create clone chunk: %w", err)
		}

		creq := storage.CreateChunkRequest{
			Location:     c.Location,
			Chunk:        loc,
			SourceSeq:    c.SourceSeq,
			CorrectedSeq: c.CorrectedSeq,
			ChunkSize:    src.chunkSize,
		}
		if !d.Go(ctx, func(ctx context.Context) error {
			err := s.deps.Chunks.CreateCloneChunk(ctx, creq)
			s.deps.observe(subOpCreateChunk, err)
			if err != nil {
				return fmt.Errorf("chunk %d (%s): %w", creq.Chunk.ChunkID, creq.Location, err)
			}
			return nil
		}) {
			break
		}
	}

	if err := d.Wait(); err != nil {
		return fmt.Errorf("create clone chunk: %w", err)
	}

	s.deps.logger().Debug("clone chunks created", "task_id", task.ID, "chunks", total)
	return nil
}

// RecoverChunkStep копирует данные всех выбранных чанков диапазонами
// по ChunkSplitSize.
type RecoverChunkStep struct {
	deps *Deps
}

// NewRecoverChunkStep создаёт шаг RecoverChunk.
func NewRecoverChunkStep(deps *Deps) *RecoverChunkStep {
	return &RecoverChunkStep{deps: deps}
}

// Name возвращает шаг.
func (s *RecoverChunkStep) Name() domain.Step {
	return domain.StepRecoverChunk
}

// Execute выполняет шаг.
func (s *RecoverChunkStep) Execute(ctx context.Context, req *Request) error {
	task := req.Task
	user := s.deps.user(task)
	path := s.deps.workingPath(task)
	split := s.deps.Options.ChunkSplitSize

	src, err := s.deps.resolveSource(ctx, task)
	if err != nil {
		return err
	}
	chunks, err := s.deps.selectChunks(ctx, task, src, 0)
	if err != nil {
		return err
	}

	rangesPerChunk := int((src.chunkSize + split - 1) / split)
	total := len(chunks) * rangesPerChunk

	cache := s.deps.newSegmentCache(path, user, false)
	d := tracker.NewDispatcher(s.deps.Options.RecoverChunkConcurrency,
		tracker.WithOnDone(func(completed, _ int) { req.report(completed, total) }))

dispatch:
	for _, c := range chunks {
		loc, err := cache.locate(ctx, c.Offset, src.segmentSize)
		if err != nil {
			_ = d.Wait()
			return fmt.Errorf("recover chunk: %w", err)
		}

		for off := uint64(0); off < src.chunkSize; off += split {
			length := min(split, src.chunkSize-off)
			if !d.Go(ctx, func(ctx context.Context) error {
				err := s.deps.Chunks.RecoverChunk(ctx, loc, off, length)
				s.deps.observe(subOpRecoverChunk, err)
				if err != nil {
					return fmt.Errorf("chunk %d range %d+%d: %w", loc.ChunkID, off, length, err)
				}
				return nil
			}) {
				break dispatch
			}
		}
	}

	if err := d.Wait(); err != nil {
		return fmt.Errorf("recover chunk: %w", err)
	}

	s.deps.logger().Debug("chunks recovered", "task_id", task.ID, "chunks", len(chunks), "ranges", total)
	return nil
}
