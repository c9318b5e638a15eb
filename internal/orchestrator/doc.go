// Package orchestrator — менеджер задач clone/recover.
//
// Manager ставит задачи в ограниченный пул (internal/worker), держит
// не больше одного активного прогона на id и после рестарта поднимает
// незавершённые задачи из хранилища: запись задачи и есть точка
// восстановления. Ленивые задачи, дошедшие до metaInstalled, ждут
// явного Flatten.
//
// Запросы task.create и task.flatten принимаются из RabbitMQ,
// после каждого прогона публикуется событие task.status.
package orchestrator
