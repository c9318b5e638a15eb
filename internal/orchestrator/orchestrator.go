package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/snapclone/internal/core"
	"github.com/shaiso/snapclone/internal/domain"
	"github.com/shaiso/snapclone/internal/engine"
	"github.com/shaiso/snapclone/internal/mq"
	"github.com/shaiso/snapclone/internal/repo"
	"github.com/shaiso/snapclone/internal/steps"
	"github.com/shaiso/snapclone/internal/telemetry"
	"github.com/shaiso/snapclone/internal/worker"
)

// Default configuration values.
const (
	defaultWorkers      = 8
	defaultQueueSize    = 1024
	defaultPublishAfter = 5 * time.Second
	defaultPrefetch     = 10
)

// TaskRunner ведёт одну задачу по автомату.
type TaskRunner interface {
	Run(ctx context.Context, task *domain.CloneTask) (core.Outcome, error)
}

// EventPublisher публикует события статуса задач.
type EventPublisher interface {
	PublishTaskEvent(ctx context.Context, event mq.TaskEvent) error
}

// Manager управляет выполнением задач clone/recover.
//
// Manager — центральный компонент сервиса, который:
//   - Создаёт задачи и ставит их в ограниченный пул
//   - Гарантирует не больше одного активного прогона на id
//   - Поднимает незавершённые задачи после рестарта
//   - Запускает Flatten для ленивых задач
//   - Публикует события статуса и принимает запросы из RabbitMQ
type Manager struct {
	store     repo.TaskStore
	runner    TaskRunner
	pool      *worker.Pool
	publisher EventPublisher
	metrics   *telemetry.Metrics

	active *activeSet

	// MQ intake
	conn     *mq.Connection
	consumer *mq.Consumer

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Manager.
type Config struct {
	Store repo.TaskStore

	// Runner — автомат задачи. Если nil, создаётся core.Runner
	// по Registry с прогрессом, направленным в Manager.
	Runner   TaskRunner
	Registry *steps.Registry

	// Пул
	Workers   int // число одновременно выполняемых задач (default: 8)
	QueueSize int // размер очереди (default: 1024)

	// Publisher — необязательный получатель событий task.status.
	Publisher EventPublisher

	// Conn — необязательное соединение для приёма запросов из snapclone.requests.
	Conn *mq.Connection

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// New создаёт новый Manager.
func New(cfg Config) *Manager {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		active:    newActiveSet(),
		conn:      cfg.Conn,
		logger:    logger,
	}

	m.pool = worker.New(worker.Config{
		Workers:      workers,
		QueueSize:    queueSize,
		OnQueueDepth: cfg.Metrics.SetQueueDepth,
		Logger:       logger,
	})

	m.runner = cfg.Runner
	if m.runner == nil {
		m.runner = core.New(core.Config{
			Registry:   cfg.Registry,
			Store:      cfg.Store,
			Metrics:    cfg.Metrics,
			Logger:     logger,
			OnProgress: m.ReportProgress,
		})
	}

	return m
}

// Start запускает пул и, если задано соединение, consumer запросов.
func (m *Manager) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel

	if err := m.pool.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("start worker pool: %w", err)
	}

	if m.conn != nil {
		m.consumer = mq.NewConsumer(m.conn, m.logger, mq.ConsumerConfig{
			Queue:    mq.QueueRequests,
			Handler:  m.HandleRequest,
			Prefetch: defaultPrefetch,
		})

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("request consumer error", "error", err)
			}
		}()
	}

	m.logger.Info("task manager started")
	return nil
}

// Stop останавливает приём задач и ждёт выполняемые прогоны.
// Прерванные и не взятые из очереди задачи остаются незавершёнными
// в хранилище, их id освобождаются.
func (m *Manager) Stop() {
	m.stoppedMu.Lock()
	if m.stopped {
		m.stoppedMu.Unlock()
		return
	}
	m.stopped = true
	m.stoppedMu.Unlock()

	m.logger.Info("stopping task manager...")

	if m.cancelFunc != nil {
		m.cancelFunc()
	}
	m.wg.Wait()
	m.pool.Stop()

	m.logger.Info("task manager stopped", "active_tasks", m.active.len())
}

// IsStopped проверяет, остановлен ли Manager.
func (m *Manager) IsStopped() bool {
	m.stoppedMu.RLock()
	defer m.stoppedMu.RUnlock()
	return m.stopped
}

// Submit ставит задачу в очередь без ожидания.
//
// ErrTaskAlreadyActive — id уже в очереди или выполняется;
// ErrQueueFull — очередь заполнена; ErrManagerStopped — после Stop.
func (m *Manager) Submit(task *domain.CloneTask) error {
	return m.submit(context.Background(), task, false)
}

// submit занимает id до постановки в очередь и освобождает его,
// если поставить не удалось. wait — ждать места в очереди до отмены ctx.
func (m *Manager) submit(ctx context.Context, task *domain.CloneTask, wait bool) error {
	if m.IsStopped() {
		return ErrManagerStopped
	}
	if !m.active.add(task) {
		m.metrics.ObserveSubmit("already_active")
		return fmt.Errorf("%w: %s", ErrTaskAlreadyActive, task.ID)
	}

	job := func(ctx context.Context) { m.execute(ctx, task) }

	var err error
	if wait {
		err = m.pool.Submit(ctx, job)
	} else {
		err = m.pool.TrySubmit(job)
	}
	if err != nil {
		m.active.remove(task.ID)
		switch {
		case errors.Is(err, worker.ErrQueueFull):
			m.metrics.ObserveSubmit("queue_full")
			return fmt.Errorf("submit %s: %w", task.ID, err)
		case errors.Is(err, worker.ErrPoolStopped):
			return ErrManagerStopped
		default:
			return fmt.Errorf("submit %s: %w", task.ID, err)
		}
	}

	m.metrics.ObserveSubmit("")
	m.metrics.SetActive(m.active.len())
	m.logger.Debug("task submitted", "task_id", task.ID, "step", task.Step, "status", task.Status)
	return nil
}

// execute выполняется в горутине пула.
func (m *Manager) execute(ctx context.Context, task *domain.CloneTask) {
	defer func() {
		m.active.remove(task.ID)
		m.metrics.SetActive(m.active.len())
	}()

	logger := telemetry.WithTaskID(m.logger, task.ID.String())
	if ctx.Err() != nil {
		// Снято с очереди при остановке: прогон возобновится после рестарта.
		logger.Debug("queued task dropped on shutdown", "step", task.Step)
		return
	}

	m.active.started(task.ID)
	ctx = telemetry.WithLogger(ctx, logger)

	outcome, err := m.runner.Run(ctx, task)
	m.metrics.ObserveRun(string(task.Mode), outcome.String())

	switch outcome {
	case core.OutcomeInterrupted:
		logger.Warn("task run interrupted", "step", task.Step, "error", err)
	case core.OutcomeFailed:
		logger.Error("task run failed", "step", task.Step, "error", err)
	default:
		logger.Info("task run finished", "outcome", outcome, "status", task.Status)
	}

	m.publish(task, outcome)
}

// publish отправляет событие статуса. Ошибка публикации не влияет на задачу.
func (m *Manager) publish(task *domain.CloneTask, outcome core.Outcome) {
	if m.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultPublishAfter)
	defer cancel()

	event := mq.TaskEvent{
		TaskID:   task.ID,
		Mode:     string(task.Mode),
		Step:     task.Step.String(),
		Status:   task.Status.String(),
		Progress: task.Progress,
		Error:    task.Error,
		Outcome:  outcome.String(),
	}
	if err := m.publisher.PublishTaskEvent(ctx, event); err != nil {
		m.logger.Warn("failed to publish task event", "task_id", task.ID, "error", err)
	}
}

// ReportProgress принимает прогресс шага от автомата.
func (m *Manager) ReportProgress(id uuid.UUID, step domain.Step, percent int) {
	m.active.report(id, step, percent)
}

// Create создаёт задачу, сохраняет её и ставит в очередь.
//
// Заполненная очередь не ошибка: запись уже в хранилище
// и будет подхвачена ближайшим Rescan.
func (m *Manager) Create(ctx context.Context, req domain.CloneRequest) (*domain.CloneTask, error) {
	task, err := domain.NewCloneTask(req)
	if err != nil {
		return nil, err
	}

	if err := m.store.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("store task: %w", err)
	}

	m.logger.Info("task created",
		"task_id", task.ID,
		"mode", task.Mode,
		"source", task.Source,
		"destination", task.Destination,
		"lazy", task.IsLazy,
	)

	if err := m.Submit(task.Clone()); err != nil {
		m.logger.Warn("task created but not submitted, left for rescan",
			"task_id", task.ID,
			"error", err,
		)
	}
	return task, nil
}

// RecoverOnStartup ставит в очередь все незавершённые задачи, кроме
// припаркованных на ленивой вехе. Ждёт места в очереди.
// Возвращает число поставленных задач.
func (m *Manager) RecoverOnStartup(ctx context.Context) (int, error) {
	n, err := m.resubmit(ctx, true)
	if err != nil {
		return n, err
	}
	m.logger.Info("startup recovery complete", "resubmitted", n)
	return n, nil
}

// Rescan — то же, что RecoverOnStartup, но без ожидания: на заполненной
// очереди проход останавливается до следующего запуска.
func (m *Manager) Rescan(ctx context.Context) (int, error) {
	n, err := m.resubmit(ctx, false)
	if err != nil {
		return n, err
	}
	if n > 0 {
		m.logger.Info("rescan resubmitted tasks", "count", n)
	}
	return n, nil
}

func (m *Manager) resubmit(ctx context.Context, wait bool) (int, error) {
	tasks, err := m.store.ListNonTerminal(ctx)
	if err != nil {
		return 0, fmt.Errorf("list non-terminal tasks: %w", err)
	}

	submitted := 0
	for i := range tasks {
		task := &tasks[i]

		if task.IsParked() || m.active.has(task.ID) {
			continue
		}

		err := m.submit(ctx, task, wait)
		switch {
		case err == nil:
			submitted++
		case errors.Is(err, ErrTaskAlreadyActive):
			// Успел стартовать из другого источника.
		case errors.Is(err, ErrQueueFull):
			m.logger.Warn("queue full, remaining tasks deferred", "deferred", len(tasks)-i)
			return submitted, nil
		default:
			return submitted, err
		}
	}
	return submitted, nil
}

// Flatten запускает копирование данных ленивой задачи recover,
// припаркованной на вехе metaInstalled. Задача, уже переведённая
// в recovering на шаге RecoverChunk, ставится в очередь повторно.
func (m *Manager) Flatten(ctx context.Context, id uuid.UUID) (*domain.CloneTask, error) {
	task, err := m.store.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	if !flattenable(task) {
		return nil, fmt.Errorf("%w: %s is %s at %s", ErrNotFlattenable, id, task.Status, task.Step)
	}

	if m.active.has(id) {
		return nil, fmt.Errorf("%w: %s", ErrTaskAlreadyActive, id)
	}

	marked := false
	if task.IsParked() {
		task.MarkFlattening()
		if err := m.store.Update(ctx, task); err != nil {
			return nil, fmt.Errorf("mark flattening: %w", err)
		}
		marked = true
	}

	if err := m.Submit(task.Clone()); err != nil {
		if marked && errors.Is(err, ErrTaskAlreadyActive) {
			// Задача уже в recovering, её подхватил Rescan.
			m.logger.Info("flatten started by concurrent resubmit", "task_id", id)
			return task, nil
		}
		return nil, err
	}

	m.logger.Info("flatten started", "task_id", id)
	return task, nil
}

// flattenable: ленивая задача recover на шаге копирования данных,
// припаркованная или уже запущенная.
func flattenable(task *domain.CloneTask) bool {
	if task.Mode != domain.TaskModeRecover || !task.IsLazy {
		return false
	}
	plan := engine.PlanOf(task)
	pause, ok := plan.PauseStep()
	if !ok {
		return false
	}
	if resume, ok := plan.Next(pause); !ok || resume != task.Step {
		return false
	}
	return task.Status == domain.TaskStatusMetaInstalled || task.Status == domain.TaskStatusRecovering
}

// Get возвращает задачу с живым прогрессом.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*domain.CloneTask, error) {
	task, err := m.store.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	m.active.merge(task)
	return task, nil
}

// List возвращает задачи по фильтру с живым прогрессом.
func (m *Manager) List(ctx context.Context, filter repo.TaskFilter) ([]domain.CloneTask, error) {
	tasks, err := m.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		m.active.merge(&tasks[i])
	}
	return tasks, nil
}

// IsActive проверяет, в очереди или выполняется ли задача.
func (m *Manager) IsActive(id uuid.UUID) bool {
	return m.active.has(id)
}

// ActiveState возвращает состояние активной задачи.
func (m *Manager) ActiveState(id uuid.UUID) (TaskState, bool) {
	return m.active.get(id)
}

// ActiveCount возвращает число активных задач.
func (m *Manager) ActiveCount() int {
	return m.active.len()
}
