package tracker

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Dispatcher запускает подоперации шага с ограничением параллельности
// и собирает их результат через Tracker.
type Dispatcher struct {
	tracker *Tracker
	sem     *semaphore.Weighted
}

// NewDispatcher создаёт Dispatcher с потолком limit одновременных
// подопераций. limit <= 0 трактуется как 1.
func NewDispatcher(limit int, opts ...Option) *Dispatcher {
	if limit <= 0 {
		limit = 1
	}
	return &Dispatcher{
		tracker: New(opts...),
		sem:     semaphore.NewWeighted(int64(limit)),
	}
}

// Go запускает fn, дождавшись свободного слота.
//
// Возвращает false, если запуск не состоялся: уже есть ошибка у
// предыдущих подопераций или ctx отменён во время ожидания слота
// (ошибка ctx тогда фиксируется как результат).
func (d *Dispatcher) Go(ctx context.Context, fn func(ctx context.Context) error) bool {
	if d.Stopped() {
		return false
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.tracker.Expect()
		d.tracker.Done(err)
		return false
	}

	if d.Stopped() {
		d.sem.Release(1)
		return false
	}

	d.tracker.Expect()
	go func() {
		err := fn(ctx)
		d.sem.Release(1)
		d.tracker.Done(err)
	}()
	return true
}

// Stopped возвращает true, если какая-то подоперация уже провалилась.
func (d *Dispatcher) Stopped() bool {
	return d.tracker.Result() != nil
}

// Wait дожидается всех запущенных подопераций и возвращает первую ошибку.
func (d *Dispatcher) Wait() error {
	d.tracker.Wait()
	return d.tracker.Result()
}

// Tracker возвращает внутренний Tracker.
func (d *Dispatcher) Tracker() *Tracker {
	return d.tracker
}
