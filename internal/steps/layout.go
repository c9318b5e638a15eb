package steps

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shaiso/snapclone/internal/domain"
	"github.com/shaiso/snapclone/internal/storage"
)

// cloneSource — источник клона, приведённый к общему виду.
type cloneSource struct {
	name        string
	length      uint64
	seqNum      uint64
	chunkSize   uint64
	segmentSize uint64

	// snapshot — nil для живого файла.
	snapshot *domain.SnapshotInfo
}

// chunkCount возвращает число чанков по длине источника.
func (s cloneSource) chunkCount() uint64 {
	return (s.length + s.chunkSize - 1) / s.chunkSize
}

// chunkPlan — один чанк клона: откуда брать данные и с какими seq.
type chunkPlan struct {
	Index        uint64
	Offset       uint64
	Location     string
	SourceSeq    uint64
	CorrectedSeq uint64
}

// resolveSource читает описание источника из каталога снапшотов или
// сервиса метаданных.
func (d *Deps) resolveSource(ctx context.Context, task *domain.CloneTask) (cloneSource, error) {
	if task.FileType == domain.FileTypeSnapshot {
		snap, err := d.Snapshots.GetSnapshot(ctx, task.Source)
		if err != nil {
			return cloneSource{}, fmt.Errorf("get snapshot %s: %w", task.Source, err)
		}
		return cloneSource{
			name:        snap.FileName,
			length:      snap.Length,
			seqNum:      snap.SeqNum,
			chunkSize:   orDefault(snap.ChunkSize, domain.DefaultChunkSize),
			segmentSize: orDefault(snap.SegmentSize, domain.DefaultSegmentSize),
			snapshot:    &snap,
		}, nil
	}

	info, err := d.Meta.GetFileInfo(ctx, task.Source, d.user(task))
	if err != nil {
		return cloneSource{}, fmt.Errorf("get source file %s: %w", task.Source, err)
	}
	return cloneSource{
		name:        info.Path,
		length:      info.Length,
		seqNum:      info.SeqNum,
		chunkSize:   orDefault(info.ChunkSize, domain.DefaultChunkSize),
		segmentSize: orDefault(info.SegmentSize, domain.DefaultSegmentSize),
	}, nil
}

// selectChunks возвращает чанки, которые нужно создать/восстановить,
// по правилу ChunkSelection. fileSeq — seq созданного файла клона.
func (d *Deps) selectChunks(ctx context.Context, task *domain.CloneTask, src cloneSource, fileSeq uint64) ([]chunkPlan, error) {
	indexes, err := d.chunkIndexes(ctx, task, src)
	if err != nil {
		return nil, err
	}

	plans := make([]chunkPlan, 0, len(indexes))
	for _, idx := range indexes {
		offset := idx * src.chunkSize
		p := chunkPlan{Index: idx, Offset: offset}

		if src.snapshot != nil {
			seq, ok := src.snapshot.Chunks[idx]
			if !ok {
				seq = src.seqNum
			}
			p.Location = fmt.Sprintf("%s-%d-%d@s3", src.name, idx, seq)
			p.SourceSeq = seq
			p.CorrectedSeq = fileSeq
		} else {
			p.Location = fmt.Sprintf("%s:%d@cs", src.name, offset)
			p.SourceSeq = 1
			p.CorrectedSeq = 0
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func (d *Deps) chunkIndexes(ctx context.Context, task *domain.CloneTask, src cloneSource) ([]uint64, error) {
	total := src.chunkCount()

	if d.Options.ChunkSelection == ChunkSelectionAll {
		indexes := make([]uint64, total)
		for i := range indexes {
			indexes[i] = uint64(i)
		}
		return indexes, nil
	}

	if src.snapshot != nil {
		indexes := make([]uint64, 0, len(src.snapshot.Chunks))
		for idx := range src.snapshot.Chunks {
			if idx < total {
				indexes = append(indexes, idx)
			}
		}
		sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
		return indexes, nil
	}

	// Живой файл: все чанки выделенных сегментов источника.
	var indexes []uint64
	user := d.user(task)
	for off := uint64(0); off < src.length; off += src.segmentSize {
		seg, err := d.Meta.GetOrAllocateSegment(ctx, src.name, user, off, false)
		if errors.Is(err, storage.ErrSegmentNotAllocated) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get source segment %s@%d: %w", src.name, off, err)
		}
		first := off / src.chunkSize
		for i := range seg.Chunks {
			if idx := first + uint64(i); idx < total {
				indexes = append(indexes, idx)
			}
		}
	}
	return indexes, nil
}

// segmentCache адресует чанки файла клона, запрашивая каждый сегмент
// у сервиса метаданных не больше одного раза за вызов шага.
type segmentCache struct {
	deps     *Deps
	path     string
	user     string
	allocate bool
	segments map[uint64]domain.SegmentInfo
}

func (d *Deps) newSegmentCache(path, user string, allocate bool) *segmentCache {
	return &segmentCache{
		deps:     d,
		path:     path,
		user:     user,
		allocate: allocate,
		segments: make(map[uint64]domain.SegmentInfo),
	}
}

// locate возвращает чанк файла клона по смещению.
func (c *segmentCache) locate(ctx context.Context, offset, segmentSize uint64) (domain.ChunkLocator, error) {
	start := offset - offset%segmentSize
	seg, ok := c.segments[start]
	if !ok {
		var err error
		seg, err = c.deps.Meta.GetOrAllocateSegment(ctx, c.path, c.user, start, c.allocate)
		if err != nil {
			return domain.ChunkLocator{}, fmt.Errorf("segment %s@%d: %w", c.path, start, err)
		}
		c.segments[start] = seg
	}

	loc, ok := seg.ChunkAt(offset)
	if !ok {
		return domain.ChunkLocator{}, fmt.Errorf("%w: no chunk at %s@%d", ErrPermanent, c.path, offset)
	}
	return loc, nil
}

func orDefault(v, def uint64) uint64 {
	if v == 0 {
		return def
	}
	return v
}
