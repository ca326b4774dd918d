package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SyncQueue is the Redis list holding pending catalog sync jobs.
const SyncQueue = "channelfold:jobs:sync"

// SyncJobKey holds the last known status of a sync job.
func SyncJobKey(id string) string {
	return "channelfold:jobs:sync:" + id
}

// SyncJob asks the worker to push the selected channels of a source to a
// catalog channel profile.
type SyncJob struct {
	ID          string    `json:"id"`
	SourceID    int64     `json:"source_id"`
	ProfileID   int64     `json:"profile_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// Enqueue pushes a job onto the left of the queue.
func Enqueue(ctx context.Context, r *Redis, queue string, job SyncJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue marshal: %w", err)
	}
	return r.client.LPush(ctx, queue, data).Err()
}

// Dequeue blocks until a job is available or timeout expires. On timeout or
// context cancellation it returns (nil, nil) so the caller can loop.
func Dequeue(ctx context.Context, r *Redis, queue string, timeout time.Duration) (*SyncJob, error) {
	result, err := r.client.BRPop(ctx, timeout, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("queue dequeue: %w", err)
	}
	// BRPop returns [key, value].
	if len(result) < 2 {
		return nil, nil
	}
	var job SyncJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("queue unmarshal: %w", err)
	}
	return &job, nil
}

// QueueLen returns the number of pending jobs.
func QueueLen(ctx context.Context, r *Redis, queue string) (int64, error) {
	return r.client.LLen(ctx, queue).Result()
}
