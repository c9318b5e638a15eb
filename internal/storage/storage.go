package storage

import (
	"context"

	"github.com/shaiso/snapclone/internal/domain"
)

// CreateFileRequest — параметры файла клона.
type CreateFileRequest struct {
	Path        string
	User        string
	Length      uint64
	SeqNum      uint64
	ChunkSize   uint64
	SegmentSize uint64
	PoolSet     string
}

// CreateChunkRequest — параметры чанка-заглушки, ссылающегося на источник.
type CreateChunkRequest struct {
	// Location — где лежат исходные данные чанка.
	Location string
	Chunk    domain.ChunkLocator
	// SourceSeq — seq данных источника (sn).
	SourceSeq uint64
	// CorrectedSeq — seq нового файла (csn).
	CorrectedSeq uint64
	ChunkSize    uint64
}

// MetaClient — сервис метаданных.
type MetaClient interface {
	// CreateCloneFile создаёт файл клона. Повтор возвращает ErrFileExists.
	CreateCloneFile(ctx context.Context, req CreateFileRequest) (domain.FileInfo, error)

	// GetFileInfo возвращает метаданные файла или ErrFileNotFound.
	GetFileInfo(ctx context.Context, path, user string) (domain.FileInfo, error)

	// GetOrAllocateSegment возвращает сегмент по смещению. При allocate=false
	// невыделенный сегмент даёт ErrSegmentNotAllocated.
	GetOrAllocateSegment(ctx context.Context, path, user string, offset uint64, allocate bool) (domain.SegmentInfo, error)

	CompleteCloneMeta(ctx context.Context, path, user string) error
	CompleteCloneFile(ctx context.Context, path, user string) error
	ChangeOwner(ctx context.Context, path, newOwner, user string) error

	// RenameCloneFile переименовывает originPath в destinationPath.
	// destinationID — id файла, который заменяется (для clone равен originID).
	RenameCloneFile(ctx context.Context, user string, originID, destinationID uint64, originPath, destinationPath string) error
}

// ChunkClient — флот чанк-серверов.
type ChunkClient interface {
	CreateCloneChunk(ctx context.Context, req CreateChunkRequest) error
	RecoverChunk(ctx context.Context, chunk domain.ChunkLocator, offset, length uint64) error
}

// SnapshotCatalog — каталог завершённых снапшотов.
type SnapshotCatalog interface {
	GetSnapshot(ctx context.Context, id string) (domain.SnapshotInfo, error)
}
