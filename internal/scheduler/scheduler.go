package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Rescanner повторно ставит в очередь незавершённые задачи.
type Rescanner interface {
	Rescan(ctx context.Context) (int, error)
}

// Scheduler по расписанию вызывает Rescan: так временные ошибки шагов
// повторяются без участия пользователя.
type Scheduler struct {
	target  Rescanner
	spec    string
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	lastRun time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Target Rescanner

	// Spec — расписание (default: "@every 1m").
	Spec string

	// Timeout — ограничение одного rescan (default: 30s).
	Timeout time.Duration

	Logger *slog.Logger
}

// New создаёт Scheduler и проверяет расписание.
func New(cfg Config) (*Scheduler, error) {
	spec := cfg.Spec
	if spec == "" {
		spec = DefaultSpec
	}
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		target:  cfg.Target,
		spec:    spec,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Tick выполняет один rescan.
func (s *Scheduler) Tick(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.target.Rescan(ctx)

	s.mu.Lock()
	s.lastRun = start
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("rescan: %w", err)
	}

	s.logger.Debug("rescan tick completed",
		"resubmitted", n,
		"duration", time.Since(start),
	)
	return nil
}

// Start запускает расписание. Пересекающиеся запуски пропускаются.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	logger := cronLogger{s.logger}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	_, err := c.AddFunc(s.spec, func() {
		if err := s.Tick(ctx); err != nil {
			s.logger.Error("rescan tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule rescan: %w", err)
	}

	s.cron = c
	c.Start()

	s.logger.Info("rescan scheduler started", "spec", s.spec)
	return nil
}

// Stop останавливает расписание и ждёт текущий rescan.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("rescan scheduler stopped")
}

// LastRun возвращает время начала последнего rescan.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// cronLogger направляет журнал cron в slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
