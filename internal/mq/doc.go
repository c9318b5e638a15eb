// Package mq — транспорт запросов и событий задач поверх RabbitMQ.
//
// Структура:
//   - connection.go — соединение с переподключением
//   - topology.go   — обменники, очереди, привязки
//   - publisher.go  — публикация запросов и событий
//   - consumer.go   — потребление запросов с ack/nack/DLQ
//
// Сообщения (обменник snapclone.tasks, topic):
//   - task.create  — создать задачу clone/recover
//   - task.flatten — запустить копирование данных ленивой задачи
//   - task.status  — задача завершила прогон (done, paused, failed, interrupted)
//
// Запросы, которые нельзя выполнить, уходят в snapclone.dlq.requests.
package mq
