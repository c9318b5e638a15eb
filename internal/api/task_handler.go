package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/snapclone/internal/domain"
	"github.com/shaiso/snapclone/internal/repo"
	"github.com/shaiso/snapclone/internal/telemetry"
)

// CreateClone создаёт задачу клонирования.
// POST /api/v1/clones
func (h *Handler) CreateClone(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, domain.TaskModeClone)
}

// CreateRecover создаёт задачу восстановления.
// POST /api/v1/recovers
func (h *Handler) CreateRecover(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, domain.TaskModeRecover)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, mode domain.TaskMode) {
	var req CreateCloneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	task, err := h.tasks.Create(r.Context(), req.ToDomain(mode))
	if HandleTaskError(w, h.log(r), err) {
		return
	}

	Created(w, TaskFromDomain(*task))
}

// ListTasks возвращает список задач с фильтрацией.
// GET /api/v1/tasks?status=...&mode=...&limit=...&offset=...
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.TaskFilter{Limit: 50}

	if status := q.Get("status"); status != "" {
		filter.Status = domain.TaskStatus(status)
		if !filter.Status.IsValid() {
			BadRequest(w, "invalid status")
			return
		}
	}

	if mode := q.Get("mode"); mode != "" {
		filter.Mode = domain.TaskMode(mode)
		if !filter.Mode.IsValid() {
			BadRequest(w, "invalid mode")
			return
		}
	}

	var ok bool
	if filter.Limit, ok = queryInt(q.Get("limit"), filter.Limit); !ok {
		BadRequest(w, "invalid limit")
		return
	}
	if filter.Offset, ok = queryInt(q.Get("offset"), 0); !ok {
		BadRequest(w, "invalid offset")
		return
	}

	tasks, err := h.tasks.List(r.Context(), filter)
	if HandleTaskError(w, h.log(r), err) {
		return
	}

	result := make([]TaskResponse, len(tasks))
	for i, task := range tasks {
		result[i] = TaskFromDomain(task)
	}

	List(w, result, len(result))
}

// GetTask возвращает задачу с текущим прогрессом.
// GET /api/v1/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	task, err := h.tasks.Get(r.Context(), id)
	if HandleTaskError(w, telemetry.WithTaskID(h.log(r), id.String()), err) {
		return
	}

	Success(w, TaskFromDomain(*task))
}

// FlattenTask запускает копирование данных ленивой задачи.
// POST /api/v1/tasks/{id}/flatten
func (h *Handler) FlattenTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	task, err := h.tasks.Flatten(r.Context(), id)
	if HandleTaskError(w, telemetry.WithTaskID(h.log(r), id.String()), err) {
		return
	}

	Accepted(w, TaskFromDomain(*task))
}

// queryInt разбирает неотрицательное целое из query; пустая строка даёт def.
func queryInt(s string, def int) (int, bool) {
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
