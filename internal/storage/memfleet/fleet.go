package memfleet

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/snapclone/internal/domain"
	"github.com/shaiso/snapclone/internal/storage"
)

// Op — имя операции для счётчиков и инъекции ошибок.
type Op string

const (
	OpCreateCloneFile      Op = "CreateCloneFile"
	OpGetFileInfo          Op = "GetFileInfo"
	OpGetOrAllocateSegment Op = "GetOrAllocateSegment"
	OpCompleteCloneMeta    Op = "CompleteCloneMeta"
	OpCompleteCloneFile    Op = "CompleteCloneFile"
	OpChangeOwner          Op = "ChangeOwner"
	OpRenameCloneFile      Op = "RenameCloneFile"
	OpCreateCloneChunk     Op = "CreateCloneChunk"
	OpRecoverChunk         Op = "RecoverChunk"
	OpGetSnapshot          Op = "GetSnapshot"
)

// FileStatus — стадия файла клона.
type FileStatus string

const (
	FileStatusCreated       FileStatus = "created"
	FileStatusMetaInstalled FileStatus = "metaInstalled"
	FileStatusCloned        FileStatus = "cloned"
)

type file struct {
	info   domain.FileInfo
	status FileStatus
}

type segKey struct {
	fileID uint64
	offset uint64
}

// Chunk — состояние чанка на флоте.
type Chunk struct {
	Locator      domain.ChunkLocator
	Location     string
	SourceSeq    uint64
	CorrectedSeq uint64
	Size         uint64

	// Recovered — восстановленные диапазоны: offset → length.
	Recovered map[uint64]uint64
}

type fault struct {
	remaining int
	err       error
	// after — ошибка возвращается после применения эффекта.
	after bool
}

// Fleet — in-memory участники. Безопасен для конкурентного использования.
type Fleet struct {
	mu sync.Mutex

	nextFileID  uint64
	nextChunkID uint64

	files     map[string]*file
	segments  map[segKey]domain.SegmentInfo
	chunks    map[uint64]*Chunk
	snapshots map[string]domain.SnapshotInfo

	calls  map[Op]int
	faults map[Op]*fault
}

// New создаёт пустой Fleet.
func New() *Fleet {
	return &Fleet{
		nextFileID:  1,
		nextChunkID: 1,
		files:       make(map[string]*file),
		segments:    make(map[segKey]domain.SegmentInfo),
		chunks:      make(map[uint64]*Chunk),
		snapshots:   make(map[string]domain.SnapshotInfo),
		calls:       make(map[Op]int),
		faults:      make(map[Op]*fault),
	}
}

var (
	_ storage.MetaClient      = (*Fleet)(nil)
	_ storage.ChunkClient     = (*Fleet)(nil)
	_ storage.SnapshotCatalog = (*Fleet)(nil)
)

// FailNext заставляет следующие n вызовов op вернуть err без эффекта.
func (f *Fleet) FailNext(op Op, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op] = &fault{remaining: n, err: err}
}

// FailAfter заставляет следующие n вызовов op применить эффект и
// вернуть err, как если бы ответ RPC потерялся.
func (f *Fleet) FailAfter(op Op, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op] = &fault{remaining: n, err: err, after: true}
}

// Calls возвращает число вызовов op.
func (f *Fleet) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// ResetCalls обнуляет счётчики вызовов.
func (f *Fleet) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[Op]int)
}

// enter учитывает вызов и возвращает ошибку "до эффекта" либо
// функцию, отдающую ошибку "после эффекта". Вызывается под f.mu.
func (f *Fleet) enter(op Op) (before error, after func(error) error) {
	f.calls[op]++

	flt, ok := f.faults[op]
	if !ok || flt.remaining <= 0 {
		return nil, func(err error) error { return err }
	}
	flt.remaining--
	if !flt.after {
		return flt.err, nil
	}
	return nil, func(err error) error {
		if err != nil {
			return err
		}
		return flt.err
	}
}

// AddFile регистрирует существующий файл (источник или целевой том).
func (f *Fleet) AddFile(path, owner string, length, seqNum uint64) domain.FileInfo {
	f.mu.Lock()
	defer f.mu.Unlock()

	info := domain.FileInfo{
		ID:          f.nextFileID,
		Path:        path,
		Owner:       owner,
		Length:      length,
		SeqNum:      seqNum,
		ChunkSize:   domain.DefaultChunkSize,
		SegmentSize: domain.DefaultSegmentSize,
	}
	f.nextFileID++
	f.files[path] = &file{info: info, status: FileStatusCloned}
	return info
}

// AllocateSegments выделяет сегменты файла по смещениям.
func (f *Fleet) AllocateSegments(path string, offsets ...uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl, ok := f.files[path]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrFileNotFound, path)
	}
	for _, off := range offsets {
		f.allocate(fl.info, off)
	}
	return nil
}

// AddSnapshot регистрирует завершённый снапшот.
func (f *Fleet) AddSnapshot(snap domain.SnapshotInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if snap.ChunkSize == 0 {
		snap.ChunkSize = domain.DefaultChunkSize
	}
	if snap.SegmentSize == 0 {
		snap.SegmentSize = domain.DefaultSegmentSize
	}
	f.snapshots[snap.ID] = snap
}

// allocate выделяет сегмент, содержащий offset. Вызывается под f.mu.
func (f *Fleet) allocate(info domain.FileInfo, offset uint64) domain.SegmentInfo {
	start := offset - offset%info.SegmentSize
	key := segKey{fileID: info.ID, offset: start}
	if seg, ok := f.segments[key]; ok {
		return seg
	}

	n := info.SegmentSize / info.ChunkSize
	seg := domain.SegmentInfo{
		FileID:      info.ID,
		StartOffset: start,
		SegmentSize: info.SegmentSize,
		ChunkSize:   info.ChunkSize,
		Chunks:      make([]domain.ChunkLocator, n),
	}
	for i := range seg.Chunks {
		id := f.nextChunkID
		f.nextChunkID++
		seg.Chunks[i] = domain.ChunkLocator{
			LogicalPoolID: 1,
			CopysetID:     uint32(id%64) + 1,
			ChunkID:       id,
		}
	}
	f.segments[key] = seg
	return seg
}

// CreateCloneFile реализует storage.MetaClient.
func (f *Fleet) CreateCloneFile(_ context.Context, req storage.CreateFileRequest) (domain.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	before, after := f.enter(OpCreateCloneFile)
	if before != nil {
		return domain.FileInfo{}, before
	}

	if fl, ok := f.files[req.Path]; ok {
		return fl.info, after(fmt.Errorf("%w: %s", storage.ErrFileExists, req.Path))
	}

	chunkSize, segmentSize := req.ChunkSize, req.SegmentSize
	if chunkSize == 0 {
		chunkSize = domain.DefaultChunkSize
	}
	if segmentSize == 0 {
		segmentSize = domain.DefaultSegmentSize
	}

	info := domain.FileInfo{
		ID:          f.nextFileID,
		Path:        req.Path,
		Owner:       req.User,
		Length:      req.Length,
		SeqNum:      req.SeqNum,
		ChunkSize:   chunkSize,
		SegmentSize: segmentSize,
	}
	f.nextFileID++
	f.files[req.Path] = &file{info: info, status: FileStatusCreated}
	return info, after(nil)
}

// GetFileInfo реализует storage.MetaClient.
func (f *Fleet) GetFileInfo(_ context.Context, path, _ string) (domain.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	before, after := f.enter(OpGetFileInfo)
	if before != nil {
		return domain.FileInfo{}, before
	}

	fl, ok := f.files[path]
	if !ok {
		return domain.FileInfo{}, after(fmt.Errorf("%w: %s", storage.ErrFileNotFound, path))
	}
	return fl.info, after(nil)
}

// GetOrAllocateSegment реализует storage.MetaClient.
func (f *Fleet) GetOrAllocateSegment(_ context.Context, path, _ string, offset uint64, allocate bool) (domain.SegmentInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	before, after := f.enter(OpGetOrAllocateSegment)
	if before != nil {
		return domain.SegmentInfo{}, before
	}

	fl, ok := f.files[path]
	if !ok {
		return domain.SegmentInfo{}, after(fmt.Errorf("%w: %s", storage.ErrFileNotFound, path))
	}

	start := offset - offset%fl.info.SegmentSize
	if seg, ok := f.segments[segKey{fileID: fl.info.ID, offset: start}]; ok {
		return seg, after(nil)
	}
	if !allocate {
		return domain.SegmentInfo{}, after(fmt.Errorf("%w: %s@%d", storage.ErrSegmentNotAllocated, path, start))
	}
	return f.allocate(fl.info, offset), after(nil)
}

func (f *Fleet) setStatus(op Op, path string, status FileStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	before, after := f.enter(op)
	if before != nil {
		return before
	}

	fl, ok := f.files[path]
	if !ok {
		return after(fmt.Errorf("%w: %s", storage.ErrFileNotFound, path))
	}
	fl.status = status
	return after(nil)
}

// CompleteCloneMeta реализует storage.MetaClient.
func (f *Fleet) CompleteCloneMeta(_ context.Context, path, _ string) error {
	return f.setStatus(OpCompleteCloneMeta, path, FileStatusMetaInstalled)
}

// CompleteCloneFile реализует storage.MetaClient.
func (f *Fleet) CompleteCloneFile(_ context.Context, path, _ string) error {
	return f.setStatus(OpCompleteCloneFile, path, FileStatusCloned)
}

// ChangeOwner реализует storage.MetaClient.
func (f *Fleet) ChangeOwner(_ context.Context, path, newOwner, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	before, after := f.enter(OpChangeOwner)
	if before != nil {
		return before
	}

	fl, ok := f.files[path]
	if !ok {
		return after(fmt.Errorf("%w: %s", storage.ErrFileNotFound, path))
	}
	fl.info.Owner = newOwner
	return after(nil)
}

// RenameCloneFile реализует storage.MetaClient.
//
// Повтор после успешного переименования — no-op: файл originID уже
// лежит по destinationPath.
func (f *Fleet) RenameCloneFile(_ context.Context, _ string, originID, destinationID uint64, originPath, destinationPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	before, after := f.enter(OpRenameCloneFile)
	if before != nil {
		return before
	}

	src, ok := f.files[originPath]
	if !ok || src.info.ID != originID {
		if dst, ok := f.files[destinationPath]; ok && dst.info.ID == originID {
			return after(nil)
		}
		return after(fmt.Errorf("%w: %s (id %d)", storage.ErrFileNotFound, originPath, originID))
	}

	if dst, ok := f.files[destinationPath]; ok && dst.info.ID != destinationID {
		return after(fmt.Errorf("rename %s: destination %s has id %d, expected %d",
			originPath, destinationPath, dst.info.ID, destinationID))
	}

	delete(f.files, originPath)
	src.info.Path = destinationPath
	f.files[destinationPath] = src
	return after(nil)
}

// CreateCloneChunk реализует storage.ChunkClient.
func (f *Fleet) CreateCloneChunk(_ context.Context, req storage.CreateChunkRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	before, after := f.enter(OpCreateCloneChunk)
	if before != nil {
		return before
	}

	if c, ok := f.chunks[req.Chunk.ChunkID]; ok {
		if c.Location != req.Location || c.SourceSeq != req.SourceSeq || c.CorrectedSeq != req.CorrectedSeq {
			return after(fmt.Errorf("chunk %d already exists with source %s", req.Chunk.ChunkID, c.Location))
		}
		return after(nil)
	}

	f.chunks[req.Chunk.ChunkID] = &Chunk{
		Locator:      req.Chunk,
		Location:     req.Location,
		SourceSeq:    req.SourceSeq,
		CorrectedSeq: req.CorrectedSeq,
		Size:         req.ChunkSize,
		Recovered:    make(map[uint64]uint64),
	}
	return after(nil)
}

// RecoverChunk реализует storage.ChunkClient.
func (f *Fleet) RecoverChunk(_ context.Context, chunk domain.ChunkLocator, offset, length uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	before, after := f.enter(OpRecoverChunk)
	if before != nil {
		return before
	}

	c, ok := f.chunks[chunk.ChunkID]
	if !ok {
		return after(fmt.Errorf("%w: %d", storage.ErrChunkNotFound, chunk.ChunkID))
	}
	if offset+length > c.Size {
		return after(fmt.Errorf("recover chunk %d: range %d+%d exceeds size %d", chunk.ChunkID, offset, length, c.Size))
	}
	c.Recovered[offset] = length
	return after(nil)
}

// GetSnapshot реализует storage.SnapshotCatalog.
func (f *Fleet) GetSnapshot(_ context.Context, id string) (domain.SnapshotInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	before, after := f.enter(OpGetSnapshot)
	if before != nil {
		return domain.SnapshotInfo{}, before
	}

	snap, ok := f.snapshots[id]
	if !ok {
		return domain.SnapshotInfo{}, after(fmt.Errorf("%w: %s", storage.ErrSnapshotNotFound, id))
	}
	return snap, after(nil)
}

// ChunkState — состояние чанка файла, адресованное индексом.
type ChunkState struct {
	Index        uint64
	Location     string
	SourceSeq    uint64
	CorrectedSeq uint64
	Recovered    uint64 // байт восстановлено
}

// FileState — состояние файла без привязки к выданным id.
type FileState struct {
	Path     string
	Owner    string
	Length   uint64
	SeqNum   uint64
	Status   FileStatus
	Segments int
	Chunks   []ChunkState
}

// Inspect возвращает состояние файла по пути, пригодное для сравнения
// результатов двух прогонов.
func (f *Fleet) Inspect(path string) (FileState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl, ok := f.files[path]
	if !ok {
		return FileState{}, fmt.Errorf("%w: %s", storage.ErrFileNotFound, path)
	}

	state := FileState{
		Path:   path,
		Owner:  fl.info.Owner,
		Length: fl.info.Length,
		SeqNum: fl.info.SeqNum,
		Status: fl.status,
	}

	for key, seg := range f.segments {
		if key.fileID != fl.info.ID {
			continue
		}
		state.Segments++
		for i, loc := range seg.Chunks {
			c, ok := f.chunks[loc.ChunkID]
			if !ok {
				continue
			}
			var recovered uint64
			for _, l := range c.Recovered {
				recovered += l
			}
			state.Chunks = append(state.Chunks, ChunkState{
				Index:        (seg.StartOffset / seg.ChunkSize) + uint64(i),
				Location:     c.Location,
				SourceSeq:    c.SourceSeq,
				CorrectedSeq: c.CorrectedSeq,
				Recovered:    recovered,
			})
		}
	}

	sort.Slice(state.Chunks, func(i, j int) bool {
		return state.Chunks[i].Index < state.Chunks[j].Index
	})
	return state, nil
}

// ChunkCount возвращает число созданных чанков на флоте.
func (f *Fleet) ChunkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks)
}
