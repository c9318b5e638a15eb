// Package worker — ограниченный пул исполнителей задач.
//
// # Обзор
//
// Pool держит фиксированное число горутин и очередь заданий
// ограниченного размера. Менеджер задач отправляет в пул прогоны
// автомата, пул ограничивает число одновременно выполняемых задач.
//
//	pool := worker.New(worker.Config{
//	    Workers:   8,
//	    QueueSize: 1024,
//	    Logger:    logger,
//	})
//	if err := pool.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Stop()
//
//	if err := pool.TrySubmit(job); errors.Is(err, worker.ErrQueueFull) {
//	    // задача не принята, запись остаётся в хранилище
//	}
//
// # Отправка
//
//   - TrySubmit не блокируется: при полной очереди возвращает ErrQueueFull.
//   - Submit ждёт места в очереди до отмены ctx.
//
// # Остановка
//
// Stop перестаёт принимать задания, отменяет контекст выполняемых
// и ждёт их завершения. Задания, не успевшие начаться, отбрасываются:
// их записи остаются в хранилище и подхватываются при следующем старте.
//
// Паника в задании логируется и не роняет горутину пула.
package worker
