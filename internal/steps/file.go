package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/snapclone/internal/domain"
	"github.com/shaiso/snapclone/internal/storage"
)

// CreateCloneFileStep создаёт временный файл клона.
//
// Повтор после падения получает ErrFileExists и перечитывает id по
// временному пути, поэтому DestinationFileID становится ненулевым
// только после подтверждённого создания.
type CreateCloneFileStep struct {
	deps *Deps
}

// NewCreateCloneFileStep создаёт шаг CreateCloneFile.
func NewCreateCloneFileStep(deps *Deps) *CreateCloneFileStep {
	return &CreateCloneFileStep{deps: deps}
}

// Name возвращает шаг.
func (s *CreateCloneFileStep) Name() domain.Step {
	return domain.StepCreateCloneFile
}

// Execute выполняет шаг.
func (s *CreateCloneFileStep) Execute(ctx context.Context, req *Request) error {
	task := req.Task
	user := s.deps.user(task)
	tempPath := task.TempPath(s.deps.Options.TempDir)

	src, err := s.deps.resolveSource(ctx, task)
	if err != nil {
		return err
	}

	seqNum := domain.CloneSeqNum
	var destination domain.FileInfo

	switch task.Mode {
	case domain.TaskModeRecover:
		destination, err = s.deps.Meta.GetFileInfo(ctx, task.Destination, user)
		if err != nil {
			return fmt.Errorf("get recover destination %s: %w", task.Destination, err)
		}
		seqNum = domain.RecoverSeqNum(destination.SeqNum)

	case domain.TaskModeClone:
		_, err = s.deps.Meta.GetFileInfo(ctx, task.Destination, user)
		switch {
		case err == nil:
			return Permanent(fmt.Errorf("%w: %s", ErrDestinationExists, task.Destination))
		case !errors.Is(err, storage.ErrFileNotFound):
			return fmt.Errorf("check clone destination %s: %w", task.Destination, err)
		}
	}

	info, err := s.deps.Meta.CreateCloneFile(ctx, storage.CreateFileRequest{
		Path:        tempPath,
		User:        user,
		Length:      src.length,
		SeqNum:      seqNum,
		ChunkSize:   src.chunkSize,
		SegmentSize: src.segmentSize,
		PoolSet:     task.PoolSet,
	})
	if errors.Is(err, storage.ErrFileExists) {
		info, err = s.deps.Meta.GetFileInfo(ctx, tempPath, user)
	}
	if err != nil {
		return fmt.Errorf("create clone file %s: %w", tempPath, err)
	}

	task.SourceFileID = info.ID
	if task.Mode == domain.TaskModeRecover {
		task.DestinationFileID = destination.ID
	} else {
		task.DestinationFileID = info.ID
	}

	s.deps.logger().Debug("clone file created",
		"task_id", task.ID,
		"path", tempPath,
		"file_id", info.ID,
		"seq_num", info.SeqNum,
	)
	return nil
}
