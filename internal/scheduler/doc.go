// Package scheduler периодически повторяет незавершённые задачи.
//
// Шаг с временной ошибкой не повторяется внутри прогона: запись
// остаётся на том же шаге. Scheduler по cron-расписанию вызывает
// Manager.Rescan, который ставит такие задачи в очередь снова.
// Припаркованные ленивые задачи не трогаются.
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Target: manager,
//	    Spec:   "@every 1m",
//	    Logger: logger,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sched.Start(ctx)
//	defer sched.Stop()
package scheduler
