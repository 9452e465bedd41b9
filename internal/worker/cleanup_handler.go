package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"jobboard/internal/tasks"
)

// ObjectDeleter 是清理任务依赖的对象存储能力。
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, objectKey string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// CleanupTaskHandler 消费 storage:cleanup 任务，删除孤儿照片对象。
type CleanupTaskHandler struct {
	storage ObjectDeleter
	logger  *slog.Logger
}

// NewCleanupTaskHandler 构造清理任务处理器。
func NewCleanupTaskHandler(storage ObjectDeleter, logger *slog.Logger) *CleanupTaskHandler {
	return &CleanupTaskHandler{
		storage: storage,
		logger:  logger,
	}
}

// ProcessTask 实现 asynq.Handler。失败返回错误以触发重试。
func (h *CleanupTaskHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload tasks.StorageCleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal cleanup payload: %w", err)
	}

	logger := h.logger.With(slog.String("correlation_id", payload.CorrelationID))

	for _, key := range payload.Keys {
		if err := h.storage.DeleteObject(ctx, key); err != nil {
			logger.Error("delete object failed", slog.String("key", key), slog.Any("error", err))
			return fmt.Errorf("delete object %q: %w", key, err)
		}
	}

	for _, prefix := range payload.Prefixes {
		if err := h.storage.DeletePrefix(ctx, prefix); err != nil {
			logger.Error("delete prefix failed", slog.String("prefix", prefix), slog.Any("error", err))
			return fmt.Errorf("delete prefix %q: %w", prefix, err)
		}
	}

	logger.Info("storage cleanup done",
		slog.Int("keys", len(payload.Keys)),
		slog.Int("prefixes", len(payload.Prefixes)),
	)
	return nil
}
