package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRefdataWarmup reloads the shared reference data into the query cache.
	TaskRefdataWarmup = "refdata:warmup"
	// TaskSessionsPrune deletes expired session records and idempotency keys.
	TaskSessionsPrune = "sessions:prune"
)

// WarmupPayload describes why a warmup was requested.
type WarmupPayload struct {
	Reason string `json:"reason"`
}

// NewRefdataWarmupTask constructs a warmup task.
func NewRefdataWarmupTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(WarmupPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRefdataWarmup, data), nil
}

// NewSessionsPruneTask constructs a prune task.
func NewSessionsPruneTask() *asynq.Task {
	return asynq.NewTask(TaskSessionsPrune, nil)
}
