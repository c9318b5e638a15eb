package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/snapclone/internal/domain"
)

func newCloneTask(t *testing.T, mode domain.TaskMode) *domain.CloneTask {
	t.Helper()
	task, err := domain.NewCloneTask(domain.CloneRequest{
		Owner:       "alice",
		Mode:        mode,
		Source:      "snap-1",
		Destination: "/vol/" + time.Now().Format("150405.000000000"),
		FileType:    domain.FileTypeSnapshot,
	})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	// Postgres хранит микросекунды.
	task.CreatedAt = task.CreatedAt.Truncate(time.Microsecond)
	task.UpdatedAt = task.CreatedAt
	return task
}

// testTaskStore проверяет контракт TaskStore на любой реализации.
func testTaskStore(t *testing.T, store TaskStore) {
	ctx := context.Background()

	task := newCloneTask(t, domain.TaskModeClone)
	if err := store.Create(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Revision != 1 {
		t.Errorf("expected revision 1 after create, got %d", task.Revision)
	}
	if err := store.Create(ctx, task); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := store.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Step != domain.StepCreateCloneFile || got.Status != domain.TaskStatusCloning {
		t.Errorf("unexpected stored state: %s/%s", got.Step, got.Status)
	}

	// Два читателя одной версии: второй Update должен проиграть.
	stale, _ := store.Get(ctx, task.ID)

	got.SourceFileID, got.DestinationFileID = 7, 7
	got.MarkStep(domain.StepCreateCloneMeta)
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Revision != 2 {
		t.Errorf("expected revision 2, got %d", got.Revision)
	}

	stale.MarkError(errors.New("stale writer"))
	if err := store.Update(ctx, stale); !errors.Is(err, ErrRevisionConflict) {
		t.Fatalf("expected ErrRevisionConflict, got %v", err)
	}

	reread, _ := store.Get(ctx, task.ID)
	if reread.Step != domain.StepCreateCloneMeta || reread.Status != domain.TaskStatusCloning || reread.SourceFileID != 7 {
		t.Errorf("stale write leaked: %+v", reread)
	}

	missing := newCloneTask(t, domain.TaskModeClone)
	if err := store.Update(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Get(ctx, missing.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Финальная запись не попадает в ListNonTerminal.
	done := newCloneTask(t, domain.TaskModeRecover)
	if err := store.Create(ctx, done); err != nil {
		t.Fatalf("create: %v", err)
	}
	done.MarkDone()
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("update: %v", err)
	}

	active, err := store.ListNonTerminal(ctx)
	if err != nil {
		t.Fatalf("list non-terminal: %v", err)
	}
	for _, a := range active {
		if a.ID == done.ID {
			t.Error("terminal task returned by ListNonTerminal")
		}
	}
	if !containsTask(active, task.ID) {
		t.Error("active task missing from ListNonTerminal")
	}

	recovers, err := store.List(ctx, TaskFilter{Mode: domain.TaskModeRecover, Status: domain.TaskStatusDone})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !containsTask(recovers, done.ID) || containsTask(recovers, task.ID) {
		t.Errorf("filter mismatch: %+v", recovers)
	}
}

func containsTask(tasks []domain.CloneTask, id uuid.UUID) bool {
	for _, t := range tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}

func TestMemoryTaskStore(t *testing.T) {
	testTaskStore(t, NewMemoryTaskStore())
}

func TestMemoryTaskStore_History(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTaskStore()
	task := newCloneTask(t, domain.TaskModeClone)

	store.Create(ctx, task)
	task.MarkStep(domain.StepCreateCloneMeta)
	store.Update(ctx, task)

	// Изменения вызывающего не видны без Update.
	task.MarkStep(domain.StepCreateCloneChunk)

	history := store.History(task.ID)
	if len(history) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(history))
	}
	if history[1].Step != domain.StepCreateCloneMeta {
		t.Errorf("unexpected history tail %s", history[1].Step)
	}
	got, _ := store.Get(ctx, task.ID)
	if got.Step != domain.StepCreateCloneMeta {
		t.Errorf("store must hold a copy, got %s", got.Step)
	}
}

func TestCloneTaskRepo(t *testing.T) {
	dsn := os.Getenv("SNAPCLONE_TEST_DB_URL")
	if dsn == "" {
		t.Skip("SNAPCLONE_TEST_DB_URL not set")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("schema: %v", err)
	}
	testTaskStore(t, NewCloneTaskRepo(pool))
}

// fakeRows отдаёт заранее заданные строки clone_tasks.
type fakeRows struct {
	rows   [][]any
	pos    int
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d columns, %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *uuid.UUID:
			*d = v.(uuid.UUID)
		case *string:
			*d = v.(string)
		case *int64:
			*d = v.(int64)
		case *int:
			*d = v.(int)
		case *bool:
			*d = v.(bool)
		case **string:
			*d, _ = v.(*string)
		case *time.Time:
			*d = v.(time.Time)
		case **time.Time:
			*d, _ = v.(*time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Close()     { r.closed = true }

func cloneTaskRow(id uuid.UUID, step string, revision int64) []any {
	now := time.Now()
	return []any{
		id, "alice", "clone", "snap-1", "/vol/" + id.String(), "",
		int64(0), int64(0), "snapshot", false,
		step, "cloning", 0, (*string)(nil), revision, now, now, (*time.Time)(nil),
	}
}

func TestCollectCloneTasks_SkipsCorruptRow(t *testing.T) {
	healthy, broken := uuid.New(), uuid.New()
	rows := &fakeRows{rows: [][]any{
		cloneTaskRow(broken, "CopyEverything", 3),
		cloneTaskRow(healthy, "CreateCloneMeta", 2),
	}}

	tasks, corrupt, err := collectCloneTasks(rows)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !rows.closed {
		t.Error("rows must be closed")
	}

	if len(tasks) != 1 || tasks[0].ID != healthy {
		t.Fatalf("expected only the healthy task, got %+v", tasks)
	}
	if tasks[0].Step != domain.StepCreateCloneMeta {
		t.Errorf("step = %s", tasks[0].Step)
	}

	if len(corrupt) != 1 {
		t.Fatalf("expected 1 corrupt row, got %d", len(corrupt))
	}
	if corrupt[0].ID != broken || corrupt[0].Revision != 3 {
		t.Errorf("corrupt row = %+v", corrupt[0])
	}
	if !errors.Is(corrupt[0], ErrCorruptRecord) {
		t.Errorf("expected ErrCorruptRecord, got %v", corrupt[0])
	}
}

func TestCloneTaskRepo_CorruptRowDoesNotBlockResume(t *testing.T) {
	dsn := os.Getenv("SNAPCLONE_TEST_DB_URL")
	if dsn == "" {
		t.Skip("SNAPCLONE_TEST_DB_URL not set")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()
	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("schema: %v", err)
	}
	store := NewCloneTaskRepo(pool)

	healthy := newCloneTask(t, domain.TaskModeClone)
	if err := store.Create(ctx, healthy); err != nil {
		t.Fatalf("create: %v", err)
	}
	broken := newCloneTask(t, domain.TaskModeClone)
	if err := store.Create(ctx, broken); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := pool.Exec(ctx, `UPDATE clone_tasks SET step = 'CopyEverything' WHERE id = $1`, broken.ID); err != nil {
		t.Fatalf("poison row: %v", err)
	}

	tasks, err := store.ListNonTerminal(ctx)
	if err != nil {
		t.Fatalf("list non-terminal: %v", err)
	}
	var found bool
	for _, task := range tasks {
		if task.ID == broken.ID {
			t.Fatal("corrupt task must not be returned")
		}
		found = found || task.ID == healthy.ID
	}
	if !found {
		t.Fatal("healthy task missing from ListNonTerminal")
	}

	var status string
	if err := pool.QueryRow(ctx, `SELECT status FROM clone_tasks WHERE id = $1`, broken.ID).Scan(&status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != string(domain.TaskStatusError) {
		t.Errorf("corrupt task status = %q, want error", status)
	}
}
