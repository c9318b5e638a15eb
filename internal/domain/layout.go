package domain

// Размеры по умолчанию для томов, создаваемых клонированием.
const (
	DefaultChunkSize      uint64 = 16 << 20
	DefaultSegmentSize    uint64 = 32 << 20
	DefaultChunkSplitSize uint64 = 64 << 10
)

// Номера версий, с которыми создаётся файл клона.
const (
	// CloneSeqNum — seq нового тома при clone.
	CloneSeqNum uint64 = 1
)

// RecoverSeqNum возвращает seq файла, создаваемого для recover:
// на единицу больше текущего seq целевого тома.
func RecoverSeqNum(destinationSeq uint64) uint64 {
	return destinationSeq + 1
}

// ChunkLocator адресует чанк во флоте хранения.
type ChunkLocator struct {
	LogicalPoolID uint32 `json:"logical_pool_id"`
	CopysetID     uint32 `json:"copyset_id"`
	ChunkID       uint64 `json:"chunk_id"`
}

// SegmentInfo — выделенный сегмент файла и его чанки по порядку.
type SegmentInfo struct {
	FileID      uint64         `json:"file_id"`
	StartOffset uint64         `json:"start_offset"`
	SegmentSize uint64         `json:"segment_size"`
	ChunkSize   uint64         `json:"chunk_size"`
	Chunks      []ChunkLocator `json:"chunks"`
}

// ChunkAt возвращает чанк сегмента, покрывающий смещение файла.
func (s SegmentInfo) ChunkAt(offset uint64) (ChunkLocator, bool) {
	if s.ChunkSize == 0 || offset < s.StartOffset {
		return ChunkLocator{}, false
	}
	idx := (offset - s.StartOffset) / s.ChunkSize
	if idx >= uint64(len(s.Chunks)) {
		return ChunkLocator{}, false
	}
	return s.Chunks[idx], true
}

// FileInfo — метаданные файла в сервисе метаданных.
type FileInfo struct {
	ID          uint64 `json:"id"`
	Path        string `json:"path"`
	Owner       string `json:"owner"`
	Length      uint64 `json:"length"`
	SeqNum      uint64 `json:"seq_num"`
	ChunkSize   uint64 `json:"chunk_size"`
	SegmentSize uint64 `json:"segment_size"`
}

// SnapshotInfo — завершённый снапшот, из которого можно клонировать.
type SnapshotInfo struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	SeqNum      uint64 `json:"seq_num"`
	Length      uint64 `json:"length"`
	ChunkSize   uint64 `json:"chunk_size"`
	SegmentSize uint64 `json:"segment_size"`

	// Chunks — индексы чанков, содержащих данные, и их seq.
	Chunks map[uint64]uint64 `json:"chunks"`
}
