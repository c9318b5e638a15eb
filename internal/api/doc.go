// Package api содержит HTTP API сервера snapclone.
//
// Структура:
//   - handler.go      — Handler с DI (TaskService, logger)
//   - routes.go       — регистрация маршрутов
//   - middleware.go   — middleware (request id, logging, recovery)
//   - response.go     — унифицированные JSON-ответы и маппинг ошибок
//   - dto.go          — Data Transfer Objects (request/response)
//   - task_handler.go — обработчики /clones, /recovers и /tasks
//
// Ответы оборачиваются в {"data": ...}, ошибки — в {"error": {"code", "message"}}.
package api
