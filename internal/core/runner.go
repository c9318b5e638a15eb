package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/snapclone/internal/domain"
	"github.com/shaiso/snapclone/internal/engine"
	"github.com/shaiso/snapclone/internal/repo"
	"github.com/shaiso/snapclone/internal/steps"
	"github.com/shaiso/snapclone/internal/telemetry"
)

// Outcome — итог одного вызова Run.
type Outcome int

const (
	// OutcomeDone — задача в статусе done.
	OutcomeDone Outcome = iota
	// OutcomePaused — ленивая задача дошла до metaInstalled и ждёт Flatten.
	OutcomePaused
	// OutcomeFailed — задача в статусе error.
	OutcomeFailed
	// OutcomeInterrupted — временная ошибка, запись не тронута.
	OutcomeInterrupted
)

// String возвращает имя исхода (используется как label метрик).
func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomePaused:
		return "paused"
	case OutcomeFailed:
		return "failed"
	case OutcomeInterrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ProgressFunc получает прогресс текущего шага задачи.
type ProgressFunc func(id uuid.UUID, step domain.Step, percent int)

// Runner — автомат задачи.
type Runner struct {
	registry   *steps.Registry
	store      repo.TaskStore
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	onProgress ProgressFunc
}

// Config — конфигурация Runner.
type Config struct {
	Registry   *steps.Registry
	Store      repo.TaskStore
	Metrics    *telemetry.Metrics // optional
	Logger     *slog.Logger
	OnProgress ProgressFunc // optional
}

// New создаёт новый Runner.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		registry:   cfg.Registry,
		store:      cfg.Store,
		metrics:    cfg.Metrics,
		logger:     logger,
		onProgress: cfg.OnProgress,
	}
}

// Run ведёт задачу до done, error или ленивой паузы.
//
// task обновляется только после успешного сохранения в хранилище,
// поэтому после OutcomeInterrupted он совпадает с сохранённой записью.
// Таймаут задаёт вызывающий через ctx.
func (r *Runner) Run(ctx context.Context, task *domain.CloneTask) (Outcome, error) {
	logger := r.logger.With("task_id", task.ID, "mode", task.Mode, "lazy", task.IsLazy)

	switch {
	case task.Status == domain.TaskStatusDone:
		return OutcomeDone, nil
	case task.Status == domain.TaskStatusError:
		return OutcomeFailed, nil
	case task.IsParked():
		return OutcomePaused, nil
	}

	if err := engine.Validate(task); err != nil {
		return r.fail(ctx, logger, task, err)
	}

	plan := engine.PlanOf(task)
	logger.Info("task run started", "plan", plan.Name(), "step", task.Step, "status", task.Status)

	for {
		if err := ctx.Err(); err != nil {
			return OutcomeInterrupted, err
		}

		current := task.Step
		step, err := r.registry.Get(current)
		if err != nil {
			return OutcomeInterrupted, err
		}

		// Шаг пишет в копию: при ошибке task остаётся равен записи.
		work := task.Clone()
		id := task.ID
		req := steps.NewRequest(work, func(p int) {
			if r.onProgress != nil {
				r.onProgress(id, current, p)
			}
		})

		start := time.Now()
		err = step.Execute(ctx, req)
		r.metrics.ObserveStep(current.String(), time.Since(start), err)

		if err != nil {
			if steps.IsPermanent(err) {
				return r.fail(ctx, logger, task, fmt.Errorf("step %s: %w", current, err))
			}
			logger.Warn("step failed, will retry on resubmission",
				"step", current,
				"error", err,
			)
			return OutcomeInterrupted, fmt.Errorf("step %s: %w", current, err)
		}

		next, ok := plan.Next(current)
		if ok {
			work.MarkStep(next)
			if plan.PausesAfter(current) {
				work.MarkMetaInstalled()
			}
		} else {
			work.MarkDone()
		}

		if err := r.store.Update(ctx, work); err != nil {
			logger.Error("failed to persist step transition",
				"step", current,
				"error", err,
			)
			return OutcomeInterrupted, fmt.Errorf("persist after %s: %w", current, err)
		}
		*task = *work

		logger.Info("step completed",
			"step", current,
			"next", task.Step,
			"status", task.Status,
			"duration", time.Since(start),
		)

		switch {
		case task.Status == domain.TaskStatusDone:
			logger.Info("task done")
			return OutcomeDone, nil
		case task.IsParked():
			logger.Info("task meta installed, waiting for flatten")
			return OutcomePaused, nil
		}
	}
}

// fail переводит задачу в error и сохраняет её.
func (r *Runner) fail(ctx context.Context, logger *slog.Logger, task *domain.CloneTask, cause error) (Outcome, error) {
	work := task.Clone()
	work.MarkError(cause)

	if err := r.store.Update(ctx, work); err != nil {
		logger.Error("failed to persist task error",
			"step", task.Step,
			"cause", cause,
			"error", err,
		)
		return OutcomeInterrupted, fmt.Errorf("persist error state: %w (cause: %w)", err, cause)
	}
	*task = *work

	logger.Error("task failed", "step", task.Step, "error", cause)
	return OutcomeFailed, cause
}
