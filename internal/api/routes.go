package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		RequestID(h.logger),
		Recovery(),
		Logging(),
	)

	// Создание задач
	mux.Handle("POST /api/v1/clones", chain(http.HandlerFunc(h.CreateClone)))
	mux.Handle("POST /api/v1/recovers", chain(http.HandlerFunc(h.CreateRecover)))

	// Tasks
	mux.Handle("GET /api/v1/tasks", chain(http.HandlerFunc(h.ListTasks)))
	mux.Handle("GET /api/v1/tasks/{id}", chain(http.HandlerFunc(h.GetTask)))
	mux.Handle("POST /api/v1/tasks/{id}/flatten", chain(http.HandlerFunc(h.FlattenTask)))
}
