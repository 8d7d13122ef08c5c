package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the resubmission pipeline: a priority
// queue per queue class and a dedupe cache keyed by idempotency key.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func queueKey(class string) string {
	return fmt.Sprintf("resubmit_queue:%s", class)
}

func dedupeKey(idempotencyKey string) string {
	return fmt.Sprintf("submitted:%s", idempotencyKey)
}

func deadLetterKey(class string) string {
	return fmt.Sprintf("dead_letter:%s", class)
}

// Push adds a claim to a class queue. Lower score dequeues first, so callers
// pass the negated priority score.
func (c *Client) Push(ctx context.Context, class, claimID string, score float64) error {
	if err := c.rdb.ZAdd(ctx, queueKey(class), redis.Z{Score: score, Member: claimID}).Err(); err != nil {
		return fmt.Errorf("zadd failed: %w", err)
	}
	return nil
}

// Pop removes and returns the highest-priority claim from a class queue.
func (c *Client) Pop(ctx context.Context, class string) (claimID string, found bool, err error) {
	results, err := c.rdb.ZPopMin(ctx, queueKey(class), 1).Result()
	if err != nil {
		return "", false, fmt.Errorf("zpopmin failed: %w", err)
	}
	if len(results) == 0 {
		return "", false, nil
	}
	return results[0].Member.(string), true, nil
}

// Remove withdraws a claim from a class queue (cancellation path).
func (c *Client) Remove(ctx context.Context, class, claimID string) (bool, error) {
	n, err := c.rdb.ZRem(ctx, queueKey(class), claimID).Result()
	if err != nil {
		return false, fmt.Errorf("zrem failed: %w", err)
	}
	return n > 0, nil
}

// Depth returns the number of queued claims in a class.
func (c *Client) Depth(ctx context.Context, class string) (int64, error) {
	n, err := c.rdb.ZCard(ctx, queueKey(class)).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return n, nil
}

// ParkDeadLetter moves a claim into the class dead-letter list. The list is
// diagnostic only; the record status is the source of truth.
func (c *Client) ParkDeadLetter(ctx context.Context, class, claimID, reason string) error {
	entry := fmt.Sprintf("%s|%s|%s", claimID, reason, time.Now().UTC().Format(time.RFC3339))
	if err := c.rdb.LPush(ctx, deadLetterKey(class), entry).Err(); err != nil {
		return fmt.Errorf("lpush failed: %w", err)
	}
	return nil
}

// MarkSubmitted records that an idempotency key reached the external
// endpoint. Returns false if the key was already recorded (replay).
func (c *Client) MarkSubmitted(ctx context.Context, idempotencyKey string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, dedupeKey(idempotencyKey), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// WasSubmitted checks whether an idempotency key was already delivered.
func (c *Client) WasSubmitted(ctx context.Context, idempotencyKey string) (bool, error) {
	n, err := c.rdb.Exists(ctx, dedupeKey(idempotencyKey)).Result()
	if err != nil {
		return false, fmt.Errorf("exists failed: %w", err)
	}
	return n > 0, nil
}
