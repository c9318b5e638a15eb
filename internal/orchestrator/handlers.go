package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/snapclone/internal/domain"
	"github.com/shaiso/snapclone/internal/mq"
)

// HandleRequest обрабатывает запрос из очереди snapclone.requests.
//
// Невыполнимые запросы (невалидные, неизвестная задача) отклоняются
// в DLQ; временные ошибки возвращают сообщение в очередь.
func (m *Manager) HandleRequest(ctx context.Context, msg *mq.Message) error {
	switch msg.Type {
	case mq.MessageTypeCreate:
		return m.handleCreate(ctx, msg)
	case mq.MessageTypeFlatten:
		return m.handleFlatten(ctx, msg)
	default:
		return mq.Reject(fmt.Errorf("unknown message type %q", msg.Type))
	}
}

func (m *Manager) handleCreate(ctx context.Context, msg *mq.Message) error {
	payload, err := mq.Decode[mq.CreatePayload](msg)
	if err != nil {
		return mq.Reject(err)
	}

	task, err := m.Create(ctx, domain.CloneRequest{
		Owner:       payload.Owner,
		Mode:        domain.TaskMode(payload.Mode),
		Source:      payload.Source,
		Destination: payload.Destination,
		PoolSet:     payload.PoolSet,
		FileType:    domain.FileType(payload.FileType),
		IsLazy:      payload.IsLazy,
	})
	if errors.Is(err, domain.ErrInvalidRequest) {
		return mq.Reject(err)
	}
	if err != nil {
		return err
	}

	m.logger.Debug("task created from queue", "task_id", task.ID, "message_id", msg.ID)
	return nil
}

func (m *Manager) handleFlatten(ctx context.Context, msg *mq.Message) error {
	payload, err := mq.Decode[mq.FlattenPayload](msg)
	if err != nil {
		return mq.Reject(err)
	}

	_, err = m.Flatten(ctx, payload.TaskID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTaskAlreadyActive):
		m.logger.Debug("flatten request for active task ignored", "task_id", payload.TaskID)
		return nil
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, ErrNotFlattenable):
		return mq.Reject(err)
	default:
		return err
	}
}
