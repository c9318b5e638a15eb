package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_RunsJobs(t *testing.T) {
	p := New(Config{Workers: 3, QueueSize: 10})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	var wg sync.WaitGroup
	var count atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		if err := p.TrySubmit(func(ctx context.Context) {
			defer wg.Done()
			count.Add(1)
		}); err != nil {
			t.Fatalf("TrySubmit: %v", err)
		}
	}
	wg.Wait()

	if count.Load() != 10 {
		t.Errorf("expected 10 jobs, got %d", count.Load())
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := New(Config{Workers: 2, QueueSize: 10})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		_ = p.TrySubmit(func(ctx context.Context) {
			defer wg.Done()
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
		})
	}
	wg.Wait()

	if peak.Load() > 2 {
		t.Errorf("expected at most 2 concurrent jobs, got %d", peak.Load())
	}
}

func TestPool_QueueFull(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	_ = p.TrySubmit(func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started

	// Единственный слот очереди.
	if err := p.TrySubmit(func(ctx context.Context) {}); err != nil {
		t.Fatalf("expected queued job, got %v", err)
	}
	if err := p.TrySubmit(func(ctx context.Context) {}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if p.QueueDepth() != 1 {
		t.Errorf("expected depth 1, got %d", p.QueueDepth())
	}
	if p.Running() != 1 {
		t.Errorf("expected 1 running, got %d", p.Running())
	}
	close(release)
}

func TestPool_SubmitWaitsForSpace(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	_ = p.TrySubmit(func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started
	_ = p.TrySubmit(func(ctx context.Context) {})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Submit(ctx, func(ctx context.Context) {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Submit(context.Background(), func(ctx context.Context) {}); err != nil {
			t.Errorf("Submit: %v", err)
		}
	}()
	close(release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit did not return after space freed")
	}
}

func TestPool_NotStarted(t *testing.T) {
	p := New(Config{})
	if err := p.TrySubmit(func(ctx context.Context) {}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped, got %v", err)
	}
}

func TestPool_DoubleStart(t *testing.T) {
	p := New(Config{Workers: 1})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestPool_StopCancelsRunningJobs(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 4})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	started := make(chan struct{})
	var cancelled atomic.Bool
	_ = p.TrySubmit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	})
	<-started

	_ = p.TrySubmit(func(ctx context.Context) {})

	p.Stop()

	if !cancelled.Load() {
		t.Error("running job should observe cancellation")
	}
	if !p.IsStopped() {
		t.Error("pool should be stopped")
	}
	if p.QueueDepth() != 0 {
		t.Errorf("queue should be drained, depth %d", p.QueueDepth())
	}
	if err := p.TrySubmit(func(ctx context.Context) {}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped after Stop, got %v", err)
	}

	// Повторный Stop безопасен.
	p.Stop()
}

func TestPool_StopSettlesBlockedSubmits(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	started := make(chan struct{})
	_ = p.TrySubmit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started

	var ran atomic.Int32
	var cancelledRuns atomic.Int32
	job := func(ctx context.Context) {
		ran.Add(1)
		if ctx.Err() != nil {
			cancelledRuns.Add(1)
		}
	}
	if err := p.TrySubmit(job); err != nil {
		t.Fatalf("TrySubmit: %v", err)
	}

	const submitters = 20
	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Submit(context.Background(), job)
			switch {
			case err == nil:
				accepted.Add(1)
			case !errors.Is(err, ErrPoolStopped):
				t.Errorf("Submit: unexpected error %v", err)
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	p.Stop()
	wg.Wait()

	// Каждое принятое задание выполнено ровно один раз, очередь пуста.
	if got, want := ran.Load(), accepted.Load()+1; got != want {
		t.Errorf("expected %d runs, got %d", want, got)
	}
	if cancelledRuns.Load() == 0 {
		t.Error("queued job should run with cancelled context")
	}
	if p.QueueDepth() != 0 {
		t.Errorf("queue should be empty after Stop, depth %d", p.QueueDepth())
	}
}

func TestPool_RecoversPanics(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 2})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	_ = p.TrySubmit(func(ctx context.Context) { panic("boom") })

	done := make(chan struct{})
	_ = p.TrySubmit(func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not survive a panicking job")
	}
}

func TestPool_ReportsQueueDepth(t *testing.T) {
	var mu sync.Mutex
	var depths []int

	p := New(Config{
		Workers:   1,
		QueueSize: 4,
		OnQueueDepth: func(d int) {
			mu.Lock()
			depths = append(depths, d)
			mu.Unlock()
		},
	})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	_ = p.TrySubmit(func(ctx context.Context) { close(done) })
	<-done
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(depths) == 0 {
		t.Fatal("expected depth reports")
	}
	if depths[len(depths)-1] != 0 {
		t.Errorf("expected final depth 0, got %d", depths[len(depths)-1])
	}
}
