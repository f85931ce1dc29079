// Package scheduler moves outbox entries through asynq: a dispatcher claims
// due entries and enqueues delivery tasks, and a worker performs the actual
// deliveries with retry bookkeeping on the outbox rows.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskOutboxDeliver = "outbox.deliver"

type OutboxDeliverPayload struct {
	OutboxID string `json:"outboxId"`
	TenantID string `json:"tenantId"`
}

func NewOutboxDeliverTask(payload OutboxDeliverPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutboxDeliver, data), nil
}

func ParseOutboxDeliverPayload(task *asynq.Task) (OutboxDeliverPayload, error) {
	var payload OutboxDeliverPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OutboxDeliverPayload{}, err
	}
	return payload, nil
}
