package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shaiso/snapclone/internal/domain"
	"github.com/shaiso/snapclone/internal/engine"
	"github.com/shaiso/snapclone/internal/repo"
	"github.com/shaiso/snapclone/internal/steps"
	"github.com/shaiso/snapclone/internal/storage"
	"github.com/shaiso/snapclone/internal/storage/memfleet"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	mib      = uint64(1 << 20)
	snapID   = "snap-1"
	destPath = "/vol/dst"
)

type fixture struct {
	fleet  *memfleet.Fleet
	store  *repo.MemoryTaskStore
	runner *Runner

	mu       sync.Mutex
	progress map[domain.Step][]int
}

func newFixture(t *testing.T, mode domain.TaskMode) *fixture {
	t.Helper()

	fleet := memfleet.New()
	fleet.AddSnapshot(domain.SnapshotInfo{
		ID:       snapID,
		FileName: "/vol/src",
		SeqNum:   2,
		Length:   64 * mib,
		Chunks:   map[uint64]uint64{0: 1, 2: 1, 3: 2},
	})
	if mode == domain.TaskModeRecover {
		fleet.AddFile(destPath, "alice", 64*mib, 3)
	}

	deps := steps.NewDeps(fleet, fleet, fleet, steps.Options{
		RootUser:       "root",
		ChunkSplitSize: 4 * mib,
	})

	f := &fixture{
		fleet:    fleet,
		store:    repo.NewMemoryTaskStore(),
		progress: make(map[domain.Step][]int),
	}
	f.runner = New(Config{
		Registry: steps.DefaultRegistry(deps),
		Store:    f.store,
		OnProgress: func(_ uuid.UUID, step domain.Step, p int) {
			f.mu.Lock()
			f.progress[step] = append(f.progress[step], p)
			f.mu.Unlock()
		},
	})
	return f
}

func (f *fixture) progressOf(step domain.Step) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.progress[step]...)
}

func (f *fixture) createTask(t *testing.T, mode domain.TaskMode, lazy bool) *domain.CloneTask {
	t.Helper()
	task, err := domain.NewCloneTask(domain.CloneRequest{
		Owner:       "alice",
		Mode:        mode,
		Source:      snapID,
		Destination: destPath,
		FileType:    domain.FileTypeSnapshot,
		IsLazy:      lazy,
	})
	require.NoError(t, err)
	require.NoError(t, f.store.Create(context.Background(), task))
	return task
}

// runToEnd гоняет задачу как это делал бы менеджер: каждый прогон
// начинается с записи из хранилища, припаркованная задача получает
// flatten, прерванная — повторную отправку.
func (f *fixture) runToEnd(t *testing.T, id uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	for attempt := 0; attempt < 20; attempt++ {
		task, err := f.store.Get(ctx, id)
		require.NoError(t, err)

		outcome, err := f.runner.Run(ctx, task)
		switch outcome {
		case OutcomeDone:
			require.NoError(t, err)
			return
		case OutcomePaused:
			task.MarkFlattening()
			require.NoError(t, f.store.Update(ctx, task))
		case OutcomeInterrupted:
			require.Error(t, err)
		case OutcomeFailed:
			t.Fatalf("task failed: %v", err)
		}
	}
	t.Fatal("task did not finish in 20 attempts")
}

func assertMonotonic(t *testing.T, history []domain.CloneTask) {
	t.Helper()
	require.NotEmpty(t, history)
	plan := engine.PlanOf(&history[0])

	prev := -1
	for _, h := range history {
		idx := plan.Index(h.Step)
		require.GreaterOrEqual(t, idx, 0, "step %s not in plan", h.Step)
		assert.GreaterOrEqual(t, idx, prev, "step regressed to %s", h.Step)
		prev = idx
	}
}

type scenario struct {
	name string
	mode domain.TaskMode
	lazy bool
}

var scenarios = []scenario{
	{"clone", domain.TaskModeClone, false},
	{"recover eager", domain.TaskModeRecover, false},
	{"recover lazy", domain.TaskModeRecover, true},
}

func baseline(t *testing.T, sc scenario) (memfleet.FileState, int) {
	t.Helper()
	f := newFixture(t, sc.mode)
	task := f.createTask(t, sc.mode, sc.lazy)
	f.runToEnd(t, task.ID)

	state, err := f.fleet.Inspect(destPath)
	require.NoError(t, err)
	return state, f.fleet.ChunkCount()
}

func TestRun_EagerCloneToDone(t *testing.T) {
	f := newFixture(t, domain.TaskModeClone)
	task := f.createTask(t, domain.TaskModeClone, false)

	outcome, err := f.runner.Run(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, outcome)

	stored, err := f.store.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusDone, stored.Status)
	assert.Equal(t, domain.StepRenameCloneFile, stored.Step)
	assert.Equal(t, 100, stored.Progress)
	assert.Equal(t, stored.SourceFileID, stored.DestinationFileID)

	state, err := f.fleet.Inspect(destPath)
	require.NoError(t, err)
	assert.Equal(t, memfleet.FileStatusCloned, state.Status)
	assert.Equal(t, "alice", state.Owner)
	assert.Len(t, state.Chunks, 3)
	for _, c := range state.Chunks {
		assert.Equal(t, 16*mib, c.Recovered)
	}

	history := f.store.History(task.ID)
	assert.Len(t, history, 9, "create + one write per step")
	assertMonotonic(t, history)
	assert.Contains(t, f.progressOf(domain.StepRecoverChunk), 100)
}

func TestRun_NoProgressAfterReturn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.TaskModeClone)

	var running, calls atomic.Int32
	f.runner = New(Config{
		Registry: f.runner.registry,
		Store:    f.store,
		OnProgress: func(uuid.UUID, domain.Step, int) {
			running.Add(1)
			time.Sleep(time.Millisecond)
			calls.Add(1)
			running.Add(-1)
		},
	})

	task := f.createTask(t, domain.TaskModeClone, false)
	outcome, err := f.runner.Run(ctx, task)
	require.NoError(t, err)
	require.Equal(t, OutcomeDone, outcome)

	assert.Zero(t, running.Load(), "progress callback still running after Run")
	seen := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, seen, calls.Load(), "progress reported after Run returned")
	assert.NotZero(t, seen)
}

func TestRun_LazyMilestone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.TaskModeRecover)
	task := f.createTask(t, domain.TaskModeRecover, true)

	outcome, err := f.runner.Run(ctx, task)
	require.NoError(t, err)
	require.Equal(t, OutcomePaused, outcome)

	stored, _ := f.store.Get(ctx, task.ID)
	assert.Equal(t, domain.TaskStatusMetaInstalled, stored.Status)
	assert.Equal(t, domain.StepRecoverChunk, stored.Step)
	assert.Zero(t, f.fleet.Calls(memfleet.OpRecoverChunk), "no data copy before the milestone")

	// Том уже переименован и принадлежит владельцу.
	state, err := f.fleet.Inspect(destPath)
	require.NoError(t, err)
	assert.Equal(t, stored.SourceFileID, mustFileID(t, f.fleet, destPath))
	assert.Equal(t, "alice", state.Owner)
	assert.Equal(t, memfleet.FileStatusMetaInstalled, state.Status)

	// Повторный Run без flatten ничего не делает.
	f.fleet.ResetCalls()
	outcome, err = f.runner.Run(ctx, stored)
	require.NoError(t, err)
	assert.Equal(t, OutcomePaused, outcome)
	assert.Zero(t, f.fleet.Calls(memfleet.OpRecoverChunk))

	// Flatten: данные копируются, ChangeOwner/Rename не повторяются.
	stored.MarkFlattening()
	require.NoError(t, f.store.Update(ctx, stored))
	outcome, err = f.runner.Run(ctx, stored)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, outcome)

	assert.Zero(t, f.fleet.Calls(memfleet.OpChangeOwner))
	assert.Zero(t, f.fleet.Calls(memfleet.OpRenameCloneFile))
	assert.Equal(t, 12, f.fleet.Calls(memfleet.OpRecoverChunk))

	history := f.store.History(task.ID)
	assertMonotonic(t, history)

	// metaInstalled записан строго до первого выполнения RecoverChunk.
	var sawMilestone bool
	for _, h := range history {
		if h.Status == domain.TaskStatusMetaInstalled {
			sawMilestone = true
			assert.Equal(t, domain.StepRecoverChunk, h.Step)
		}
		if h.Step == domain.StepCompleteCloneFile {
			assert.True(t, sawMilestone, "RecoverChunk completed before the milestone was recorded")
		}
	}
}

func mustFileID(t *testing.T, fleet *memfleet.Fleet, path string) uint64 {
	t.Helper()
	info, err := fleet.GetFileInfo(context.Background(), path, "root")
	require.NoError(t, err)
	return info.ID
}

// Для каждого шага имитируем падение до и после вызова участника и
// проверяем, что результат совпадает с непрерывным прогоном.
func TestRun_IdempotentResume(t *testing.T) {
	crashPoints := []memfleet.Op{
		memfleet.OpCreateCloneFile,
		memfleet.OpGetOrAllocateSegment,
		memfleet.OpCreateCloneChunk,
		memfleet.OpCompleteCloneMeta,
		memfleet.OpRecoverChunk,
		memfleet.OpCompleteCloneFile,
		memfleet.OpChangeOwner,
		memfleet.OpRenameCloneFile,
	}

	for _, sc := range scenarios {
		want, wantChunks := baseline(t, sc)

		for _, op := range crashPoints {
			for _, after := range []bool{false, true} {
				name := fmt.Sprintf("%s/%s/after=%v", sc.name, op, after)
				t.Run(name, func(t *testing.T) {
					f := newFixture(t, sc.mode)
					task := f.createTask(t, sc.mode, sc.lazy)

					crash := fmt.Errorf("simulated crash at %s", op)
					if after {
						f.fleet.FailAfter(op, 1, crash)
					} else {
						f.fleet.FailNext(op, 1, crash)
					}

					f.runToEnd(t, task.ID)

					got, err := f.fleet.Inspect(destPath)
					require.NoError(t, err)
					assert.Equal(t, want, got)
					assert.Equal(t, wantChunks, f.fleet.ChunkCount(), "duplicate chunks created")
					assertMonotonic(t, f.store.History(task.ID))
				})
			}
		}
	}
}

func TestRun_ResumeAtCreateCloneChunk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.TaskModeClone)
	task := f.createTask(t, domain.TaskModeClone, false)

	// Первый процесс падает на CreateCloneChunk.
	f.fleet.FailNext(memfleet.OpCreateCloneChunk, 1, storage.ErrUnavailable)
	outcome, err := f.runner.Run(ctx, task)
	require.ErrorIs(t, err, storage.ErrUnavailable)
	require.Equal(t, OutcomeInterrupted, outcome)

	stored, _ := f.store.Get(ctx, task.ID)
	require.Equal(t, domain.StepCreateCloneChunk, stored.Step)
	require.NotZero(t, stored.DestinationFileID)

	// Новый процесс: новый Runner, состояние только из хранилища.
	f.fleet.ResetCalls()
	restarted := New(Config{Registry: f.runner.registry, Store: f.store})
	outcome, err = restarted.Run(ctx, stored)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, outcome)

	assert.Zero(t, f.fleet.Calls(memfleet.OpCreateCloneFile), "destination must not be recreated")
	assert.Positive(t, f.fleet.Calls(memfleet.OpGetOrAllocateSegment), "locators are re-derived from metadata")
	assert.Positive(t, f.fleet.Calls(memfleet.OpRenameCloneFile))
	assert.Equal(t, 3, f.fleet.ChunkCount())
}

func TestRun_TransientFailureLeavesRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.TaskModeClone)
	task := f.createTask(t, domain.TaskModeClone, false)
	before, _ := f.store.Get(ctx, task.ID)

	f.fleet.FailNext(memfleet.OpCreateCloneFile, 1, storage.ErrUnavailable)
	outcome, err := f.runner.Run(ctx, task)
	assert.Equal(t, OutcomeInterrupted, outcome)
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	after, _ := f.store.Get(ctx, task.ID)
	assert.Equal(t, before, after)
	assert.Len(t, f.store.History(task.ID), 1)
	assert.Equal(t, before, task, "in-memory record must match the stored one")
}

func TestRun_PermanentFailureMarksError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.TaskModeClone)
	task := f.createTask(t, domain.TaskModeClone, false)
	task.Source = "missing-snapshot"
	f.store.Put(task)

	outcome, err := f.runner.Run(ctx, task)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorIs(t, err, storage.ErrSnapshotNotFound)

	stored, _ := f.store.Get(ctx, task.ID)
	assert.Equal(t, domain.TaskStatusError, stored.Status)
	assert.Equal(t, domain.StepCreateCloneFile, stored.Step)
	assert.NotEmpty(t, stored.Error)

	// Финальная задача больше не выполняется.
	f.fleet.ResetCalls()
	outcome, err = f.runner.Run(ctx, stored)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.NoError(t, err)
	assert.Zero(t, f.fleet.Calls(memfleet.OpGetSnapshot))
}

func TestRun_InvalidRecordMarksError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.TaskModeClone)
	task := f.createTask(t, domain.TaskModeClone, false)
	task.Step = domain.StepCreateCloneChunk // id файлов не заданы
	f.store.Put(task)

	outcome, err := f.runner.Run(ctx, task)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorIs(t, err, engine.ErrInvalidTask)
	assert.Zero(t, f.fleet.Calls(memfleet.OpCreateCloneChunk))
}

func TestRun_RevisionConflictStopsStaleWriter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.TaskModeClone)
	task := f.createTask(t, domain.TaskModeClone, false)

	// Другой экземпляр успел записать свою версию.
	other, _ := f.store.Get(ctx, task.ID)
	other.MarkStep(domain.StepCreateCloneFile)
	require.NoError(t, f.store.Update(ctx, other))

	outcome, err := f.runner.Run(ctx, task)
	assert.Equal(t, OutcomeInterrupted, outcome)
	assert.True(t, errors.Is(err, repo.ErrRevisionConflict))

	stored, _ := f.store.Get(ctx, task.ID)
	assert.Equal(t, other.Revision, stored.Revision)
	assert.Zero(t, stored.DestinationFileID)
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t, domain.TaskModeClone)
	task := f.createTask(t, domain.TaskModeClone, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := f.runner.Run(ctx, task)
	assert.Equal(t, OutcomeInterrupted, outcome)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "done", OutcomeDone.String())
	assert.Equal(t, "interrupted", OutcomeInterrupted.String())
	assert.Equal(t, "Outcome(9)", Outcome(9).String())
}
