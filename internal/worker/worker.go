package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Default configuration values.
const (
	defaultWorkers   = 4
	defaultQueueSize = 256
)

// Job — единица работы пула. ctx отменяется при Stop.
// Задания, оставшиеся в очереди к моменту Stop, вызываются
// синхронно с уже отменённым ctx, чтобы освободить свои ресурсы.
type Job func(ctx context.Context)

// Pool — ограниченный пул горутин с очередью.
type Pool struct {
	workers   int
	queueSize int

	jobs chan Job
	quit chan struct{}

	running atomic.Int64

	// Lifecycle
	logger     *slog.Logger
	poolCtx    context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	started    bool
	stopped    bool
	quitOnce   sync.Once

	onDepth func(depth int)
}

// Config — конфигурация Pool.
type Config struct {
	Workers   int // число горутин (default: 4)
	QueueSize int // размер очереди (default: 256)

	// OnQueueDepth вызывается при изменении длины очереди (опционально).
	OnQueueDepth func(depth int)

	Logger *slog.Logger
}

// New создаёт новый Pool.
func New(cfg Config) *Pool {
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

	return &Pool{
		workers:   workers,
		queueSize: queueSize,
		jobs:      make(chan Job, queueSize),
		quit:      make(chan struct{}),
		logger:    logger,
		onDepth:   cfg.OnQueueDepth,
	}
}

// Start запускает горутины пула.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}
	p.started = true

	ctx, cancel := context.WithCancel(ctx)
	p.poolCtx = ctx
	p.cancelFunc = cancel

	p.logger.Info("starting worker pool",
		"workers", p.workers,
		"queue_size", p.queueSize,
	)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.loop(ctx)
		}()
	}
	return nil
}

// TrySubmit ставит задание в очередь без ожидания.
func (p *Pool) TrySubmit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started || p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobs <- job:
		p.reportDepth()
		return nil
	default:
		return ErrQueueFull
	}
}

// Submit ставит задание в очередь, ожидая места до отмены ctx.
// Ожидание идёт под read-lock: после того как Stop взял lock,
// ни одно задание уже не попадёт в очередь.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started || p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobs <- job:
		p.reportDepth()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolStopped
	}
}

// Stop перестаёт принимать задания и ждёт завершения выполняемых.
// Задания из очереди выполняются с отменённым контекстом.
func (p *Pool) Stop() {
	// quit закрывается до p.mu.Lock, иначе ждущий Submit держит read-lock.
	p.quitOnce.Do(func() { close(p.quit) })

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel := p.cancelFunc
	ctx := p.poolCtx
	p.mu.Unlock()

	p.logger.Info("stopping worker pool...")

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()

	dropped := 0
drain:
	for {
		select {
		case job := <-p.jobs:
			dropped++
			p.run(ctx, job)
		default:
			break drain
		}
	}
	p.reportDepth()

	p.logger.Info("worker pool stopped", "dropped", dropped)
}

// IsStopped проверяет, остановлен ли пул.
func (p *Pool) IsStopped() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stopped
}

// QueueDepth возвращает число ожидающих заданий.
func (p *Pool) QueueDepth() int {
	return len(p.jobs)
}

// Running возвращает число выполняемых заданий.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

func (p *Pool) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			p.reportDepth()
			p.run(ctx, job)
		}
	}
}

func (p *Pool) run(ctx context.Context, job Job) {
	p.running.Add(1)
	defer p.running.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker job panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	job(ctx)
}

func (p *Pool) reportDepth() {
	if p.onDepth != nil {
		p.onDepth(len(p.jobs))
	}
}
