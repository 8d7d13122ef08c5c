package scheduler

import (
	"context"

	redisclient "github.com/denialdesk/reclaim/internal/infra/redis"
)

// RedisQueue adapts the shared Redis client to the Queue interface so that
// multiple scheduler nodes can drain the same class queue.
type RedisQueue struct {
	client *redisclient.Client
	class  string
}

func NewRedisQueue(client *redisclient.Client, class string) *RedisQueue {
	return &RedisQueue{client: client, class: class}
}

func (q *RedisQueue) Enqueue(ctx context.Context, priority float64, claimID string) error {
	// Sorted sets pop the lowest score first, so negate the priority.
	return q.client.Push(ctx, q.class, claimID, -priority)
}

func (q *RedisQueue) Dequeue(ctx context.Context, _ string) (string, bool, error) {
	return q.client.Pop(ctx, q.class)
}

func (q *RedisQueue) Remove(ctx context.Context, claimID string) (bool, error) {
	return q.client.Remove(ctx, q.class, claimID)
}

func (q *RedisQueue) DeadLetter(ctx context.Context, claimID, reason string) error {
	return q.client.ParkDeadLetter(ctx, q.class, claimID, reason)
}

func (q *RedisQueue) Depth(ctx context.Context) (int, error) {
	n, err := q.client.Depth(ctx, q.class)
	return int(n), err
}
