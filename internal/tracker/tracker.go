package tracker

import (
	"context"
	"sync"
)

// Tracker ждёт завершения N независимых подопераций и агрегирует результат.
//
// Expect вызывается до фактического запуска подоперации, Done — ровно
// один раз по её завершении. Первая ненулевая ошибка выигрывает,
// остальные только считаются.
type Tracker struct {
	mu          sync.Mutex
	outstanding int
	finishing   int // Done уже вызван, хук ещё работает
	completed   int
	failed      int
	err         error
	zero        chan struct{}

	onDone func(completed, failed int)
}

// Option настраивает Tracker.
type Option func(*Tracker)

// WithOnDone задаёт хук, вызываемый после каждого Done.
// Используется для отчёта о прогрессе.
func WithOnDone(fn func(completed, failed int)) Option {
	return func(t *Tracker) {
		t.onDone = fn
	}
}

// New создаёт пустой Tracker.
func New(opts ...Option) *Tracker {
	zero := make(chan struct{})
	close(zero)

	t := &Tracker{zero: zero}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Expect регистрирует ещё одну подоперацию в полёте.
func (t *Tracker) Expect() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.outstanding == 0 {
		t.zero = make(chan struct{})
	}
	t.outstanding++
}

// Done фиксирует завершение подоперации с результатом err.
//
// Хук onDone отрабатывает до того, как подоперация перестаёт считаться
// выполняющейся, поэтому Wait не вернётся, пока не завершены все хуки.
func (t *Tracker) Done(err error) {
	t.mu.Lock()
	if t.outstanding-t.finishing == 0 {
		t.mu.Unlock()
		panic("tracker: Done called without matching Expect")
	}

	t.finishing++
	t.completed++
	if err != nil {
		t.failed++
		if t.err == nil {
			t.err = err
		}
	}
	completed, failed := t.completed, t.failed
	hook := t.onDone
	t.mu.Unlock()

	if hook != nil {
		hook(completed, failed)
	}

	t.mu.Lock()
	t.finishing--
	t.outstanding--
	if t.outstanding == 0 {
		close(t.zero)
	}
	t.mu.Unlock()
}

// Wait блокируется, пока все зарегистрированные подоперации не завершатся.
func (t *Tracker) Wait() {
	t.mu.Lock()
	zero := t.zero
	t.mu.Unlock()

	<-zero
}

// WaitContext как Wait, но возвращается раньше при отмене ctx.
// Счётчик при этом не меняется: подоперации продолжают завершаться.
func (t *Tracker) WaitContext(ctx context.Context) error {
	t.mu.Lock()
	zero := t.zero
	t.mu.Unlock()

	select {
	case <-zero:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result возвращает первую зафиксированную ошибку или nil.
func (t *Tracker) Result() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Outstanding возвращает число подопераций в полёте.
func (t *Tracker) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outstanding
}

// Completed возвращает число завершённых подопераций.
func (t *Tracker) Completed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// Failed возвращает число подопераций, завершившихся ошибкой.
func (t *Tracker) Failed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}
