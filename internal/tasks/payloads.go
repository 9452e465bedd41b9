package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeStorageCleanup = "storage:cleanup"
)

// StorageCleanupPayload 描述需要从对象存储中清理的内容。
// 数据库级联删除后，照片对象由 worker 异步清理。
type StorageCleanupPayload struct {
	Keys          []string `json:"keys,omitempty"`
	Prefixes      []string `json:"prefixes,omitempty"`
	CorrelationID string   `json:"correlation_id"`
}

// NewStorageCleanupTask 构造一个对象存储清理任务。
func NewStorageCleanupTask(keys, prefixes []string, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(StorageCleanupPayload{
		Keys:          keys,
		Prefixes:      prefixes,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeStorageCleanup, payload), nil
}
