package steps

import (
	"fmt"
	"log/slog"

	"github.com/shaiso/snapclone/internal/domain"
	"github.com/shaiso/snapclone/internal/engine"
	"github.com/shaiso/snapclone/internal/storage"
)

// Значения по умолчанию.
const (
	DefaultCreateChunkConcurrency  = 64
	DefaultRecoverChunkConcurrency = 64
)

// ChunkSelection — правило выбора чанков, которые копируются в клон.
type ChunkSelection string

const (
	// ChunkSelectionAuto — по типу источника: у снапшота только чанки
	// с данными, у файла все чанки выделенных сегментов.
	ChunkSelectionAuto ChunkSelection = "auto"

	// ChunkSelectionAll — все чанки по длине файла.
	ChunkSelectionAll ChunkSelection = "all"

	// ChunkSelectionWritten — только записанные чанки (для снапшота —
	// его набор, для файла — выделенные сегменты).
	ChunkSelectionWritten ChunkSelection = "written"
)

// ParseChunkSelection парсит правило; пустая строка даёт auto.
func ParseChunkSelection(s string) (ChunkSelection, error) {
	switch ChunkSelection(s) {
	case "", ChunkSelectionAuto:
		return ChunkSelectionAuto, nil
	case ChunkSelectionAll, ChunkSelectionWritten:
		return ChunkSelection(s), nil
	default:
		return "", fmt.Errorf("unknown chunk selection %q", s)
	}
}

// Options — настройки шагов.
type Options struct {
	// TempDir — каталог временных файлов (default: /clone).
	TempDir string

	// RootUser — служебный пользователь для вызовов сервиса метаданных.
	// Пустой — вызовы идут от имени владельца задачи.
	RootUser string

	CreateChunkConcurrency  int
	RecoverChunkConcurrency int

	// ChunkSplitSize — размер диапазона одного RecoverChunk.
	ChunkSplitSize uint64

	ChunkSelection ChunkSelection
}

// Observer получает результат каждой подоперации fan-out.
type Observer interface {
	ObserveSubOp(op string, err error)
}

// Deps — участники, которыми пользуются шаги.
type Deps struct {
	Meta      storage.MetaClient
	Chunks    storage.ChunkClient
	Snapshots storage.SnapshotCatalog

	Options  Options
	Observer Observer
	Logger   *slog.Logger
}

// NewDeps создаёт Deps с заполненными значениями по умолчанию.
func NewDeps(meta storage.MetaClient, chunks storage.ChunkClient, snapshots storage.SnapshotCatalog, opts Options) *Deps {
	if opts.TempDir == "" {
		opts.TempDir = domain.DefaultTempDir
	}
	if opts.CreateChunkConcurrency <= 0 {
		opts.CreateChunkConcurrency = DefaultCreateChunkConcurrency
	}
	if opts.RecoverChunkConcurrency <= 0 {
		opts.RecoverChunkConcurrency = DefaultRecoverChunkConcurrency
	}
	if opts.ChunkSplitSize == 0 {
		opts.ChunkSplitSize = domain.DefaultChunkSplitSize
	}
	if opts.ChunkSelection == "" {
		opts.ChunkSelection = ChunkSelectionAuto
	}

	return &Deps{
		Meta:      meta,
		Chunks:    chunks,
		Snapshots: snapshots,
		Options:   opts,
		Logger:    slog.Default(),
	}
}

// user возвращает пользователя для вызовов сервиса метаданных.
func (d *Deps) user(task *domain.CloneTask) string {
	if d.Options.RootUser != "" {
		return d.Options.RootUser
	}
	return task.Owner
}

// workingPath возвращает путь, по которому шаг адресует файл клона:
// временный до RenameCloneFile и целевой после.
func (d *Deps) workingPath(task *domain.CloneTask) string {
	if engine.PlanOf(task).Renamed(task.Step) {
		return task.Destination
	}
	return task.TempPath(d.Options.TempDir)
}

func (d *Deps) observe(op string, err error) {
	if d.Observer != nil {
		d.Observer.ObserveSubOp(op, err)
	}
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
