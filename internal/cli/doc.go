// Package cli реализует инструмент командной строки snapclone.
//
// # Обзор
//
// CLI — клиентская утилита для snapclone API. Работает через HTTP
// и не импортирует внутренние пакеты сервера.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API. Инкапсулирует запросы, парсинг ответов
// (DataResponse, ListResponse, ErrorResponse) и ошибки (*APIError).
//
//	client := cli.NewClient("http://localhost:8080")
//	tasks, err := client.ListTasks(ctx, cli.ListTasksOpts{Mode: "recover"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, уведомления (Notice) — в stderr,
// поэтому работает pipe: snapclone task list --json | jq .
//
// ## Commands
//
//   - clone SOURCE DEST
//   - recover SOURCE DEST [--lazy]
//   - task: list, show, flatten
//
// Фабрики команд (NewCloneCmd и т.д.) принимают clientFn и outputFn —
// замыкания, создающие Client и Output после парсинга PersistentFlags.
package cli
