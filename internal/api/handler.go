package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/snapclone/internal/domain"
	"github.com/shaiso/snapclone/internal/repo"
	"github.com/shaiso/snapclone/internal/telemetry"
)

// TaskService — операции Task Manager, доступные через HTTP.
type TaskService interface {
	Create(ctx context.Context, req domain.CloneRequest) (*domain.CloneTask, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.CloneTask, error)
	List(ctx context.Context, filter repo.TaskFilter) ([]domain.CloneTask, error)
	Flatten(ctx context.Context, id uuid.UUID) (*domain.CloneTask, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	tasks  TaskService
	logger *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Tasks  TaskService
	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		tasks:  cfg.Tasks,
		logger: logger,
	}
}

// log возвращает логгер запроса с request_id, без RequestID — логгер Handler.
func (h *Handler) log(r *http.Request) *slog.Logger {
	if logger, ok := r.Context().Value(telemetry.CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return h.logger
}
