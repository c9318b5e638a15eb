package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/snapclone/internal/domain"
)

// pgUniqueViolation — код ошибки Postgres при нарушении уникальности.
const pgUniqueViolation = "23505"

const cloneTaskColumns = `
	id, owner, mode, source, destination, pool_set, source_file_id,
	destination_file_id, file_type, is_lazy, step, status, progress,
	error, revision, created_at, updated_at, finished_at`

// CloneTaskRepo — репозиторий задач клонирования в Postgres.
type CloneTaskRepo struct {
	pool *pgxpool.Pool
}

// NewCloneTaskRepo создаёт новый CloneTaskRepo.
func NewCloneTaskRepo(pool *pgxpool.Pool) *CloneTaskRepo {
	return &CloneTaskRepo{pool: pool}
}

var _ TaskStore = (*CloneTaskRepo)(nil)

// Create создаёт новую запись. Revision записи становится 1.
func (r *CloneTaskRepo) Create(ctx context.Context, task *domain.CloneTask) error {
	query := `
		INSERT INTO clone_tasks (` + cloneTaskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, $15, $16, $17)
	`
	_, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Owner,
		string(task.Mode),
		task.Source,
		task.Destination,
		task.PoolSet,
		int64(task.SourceFileID),
		int64(task.DestinationFileID),
		string(task.FileType),
		task.IsLazy,
		task.Step.String(),
		string(task.Status),
		task.Progress,
		nullString(task.Error),
		task.CreatedAt,
		task.UpdatedAt,
		task.FinishedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: task %s", ErrAlreadyExists, task.ID)
	}
	if err != nil {
		return fmt.Errorf("insert clone task: %w", err)
	}
	task.Revision = 1
	return nil
}

// Get возвращает запись по ID.
func (r *CloneTaskRepo) Get(ctx context.Context, id uuid.UUID) (*domain.CloneTask, error) {
	query := `SELECT ` + cloneTaskColumns + ` FROM clone_tasks WHERE id = $1`
	return scanCloneTask(r.pool.QueryRow(ctx, query, id))
}

// Update сохраняет запись, если её revision не изменилась с момента чтения.
func (r *CloneTaskRepo) Update(ctx context.Context, task *domain.CloneTask) error {
	updatedAt := time.Now()
	query := `
		UPDATE clone_tasks
		SET source_file_id = $3, destination_file_id = $4, step = $5, status = $6,
		    progress = $7, error = $8, finished_at = $9, updated_at = $10,
		    revision = revision + 1
		WHERE id = $1 AND revision = $2
	`
	result, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Revision,
		int64(task.SourceFileID),
		int64(task.DestinationFileID),
		task.Step.String(),
		string(task.Status),
		task.Progress,
		nullString(task.Error),
		task.FinishedAt,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("update clone task: %w", err)
	}

	if result.RowsAffected() == 0 {
		if _, err := r.Get(ctx, task.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: task %s revision %d", ErrRevisionConflict, task.ID, task.Revision)
	}

	task.Revision++
	task.UpdatedAt = updatedAt
	return nil
}

// ListNonTerminal возвращает все нефинальные записи (для восстановления после рестарта).
//
// Нечитаемые строки не мешают остальным: они переводятся в error
// и в результат не попадают.
func (r *CloneTaskRepo) ListNonTerminal(ctx context.Context) ([]domain.CloneTask, error) {
	query := `
		SELECT ` + cloneTaskColumns + `
		FROM clone_tasks
		WHERE status NOT IN ('done', 'error')
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list non-terminal clone tasks: %w", err)
	}
	tasks, corrupt, err := collectCloneTasks(rows)
	if err != nil {
		return nil, err
	}

	for _, c := range corrupt {
		if err := r.markCorrupt(ctx, c); err != nil {
			slog.Default().Warn("failed to mark corrupt clone task", "task_id", c.ID, "error", err)
			continue
		}
		slog.Default().Warn("corrupt clone task marked as error", "task_id", c.ID, "cause", c.Err)
	}
	return tasks, nil
}

// markCorrupt переводит нечитаемую запись в error (compare-and-set по revision).
func (r *CloneTaskRepo) markCorrupt(ctx context.Context, c *CorruptRecordError) error {
	query := `
		UPDATE clone_tasks
		SET status = $3, error = $4, finished_at = $5, updated_at = $5,
		    revision = revision + 1
		WHERE id = $1 AND revision = $2
	`
	_, err := r.pool.Exec(ctx, query,
		c.ID,
		c.Revision,
		string(domain.TaskStatusError),
		c.Error(),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("mark corrupt clone task: %w", err)
	}
	return nil
}

// List возвращает записи с фильтрацией, новые первыми.
func (r *CloneTaskRepo) List(ctx context.Context, filter TaskFilter) ([]domain.CloneTask, error) {
	query := `
		SELECT ` + cloneTaskColumns + `
		FROM clone_tasks
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR mode = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.Status)),
		nullString(string(filter.Mode)),
		filter.limit(),
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list clone tasks: %w", err)
	}
	tasks, _, err := collectCloneTasks(rows)
	return tasks, err
}

// --- Helpers ---

// cloneTaskRows — часть pgx.Rows, нужная для чтения списка.
type cloneTaskRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// collectCloneTasks читает все строки. Нечитаемые записи возвращаются
// отдельно и не прерывают чтение остальных.
func collectCloneTasks(rows cloneTaskRows) ([]domain.CloneTask, []*CorruptRecordError, error) {
	defer rows.Close()

	var tasks []domain.CloneTask
	var corrupt []*CorruptRecordError
	for rows.Next() {
		task, err := scanCloneTask(rows)
		var bad *CorruptRecordError
		if errors.As(err, &bad) {
			corrupt = append(corrupt, bad)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return tasks, corrupt, nil
}

func scanCloneTask(row pgx.Row) (*domain.CloneTask, error) {
	var task domain.CloneTask
	var mode, fileType, step, status string
	var sourceFileID, destinationFileID int64
	var taskError *string

	err := row.Scan(
		&task.ID,
		&task.Owner,
		&mode,
		&task.Source,
		&task.Destination,
		&task.PoolSet,
		&sourceFileID,
		&destinationFileID,
		&fileType,
		&task.IsLazy,
		&step,
		&status,
		&task.Progress,
		&taskError,
		&task.Revision,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan clone task: %w", err)
	}

	parsed, err := domain.ParseStep(step)
	if err != nil {
		return nil, &CorruptRecordError{ID: task.ID, Revision: task.Revision, Err: err}
	}

	task.Mode = domain.TaskMode(mode)
	task.FileType = domain.FileType(fileType)
	task.Step = parsed
	task.Status = domain.TaskStatus(status)
	task.SourceFileID = uint64(sourceFileID)
	task.DestinationFileID = uint64(destinationFileID)
	if taskError != nil {
		task.Error = *taskError
	}
	return &task, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
