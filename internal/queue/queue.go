// Package queue is the durable work queue behind the job dispatcher. Tasks
// live in a Redis list; retries wait in a sorted set scored by due time.
// A dequeued task moves to a processing list until it is acknowledged; if
// its lease expires first it goes back to the ready list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Task is one unit of background work: run the handler for Kind against the
// entity EntityID. RelatedID carries a secondary entity, such as the document
// an SNL prescription should quote.
type Task struct {
	ID         uuid.UUID      `json:"id"`
	Kind       models.JobKind `json:"kind"`
	EntityID   uuid.UUID      `json:"entity_id"`
	RelatedID  *uuid.UUID     `json:"related_id,omitempty"`
	Attempt    int            `json:"attempt"`
	EnqueuedAt time.Time      `json:"enqueued_at"`

	// receipt is the raw payload Dequeue took off the ready list.
	receipt string
}

// NewTask builds a first-attempt task.
func NewTask(kind models.JobKind, entityID uuid.UUID, related *uuid.UUID) Task {
	return Task{
		ID:         uuid.New(),
		Kind:       kind,
		EntityID:   entityID,
		RelatedID:  related,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Queue moves tasks between the API process and workers.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	// Dequeue blocks for up to timeout. It returns (nil, nil) when nothing arrived.
	// The task stays leased until Ack.
	Dequeue(ctx context.Context, timeout time.Duration) (*Task, error)
	// Ack releases a dequeued task once it has been handled.
	Ack(ctx context.Context, task Task) error
	// ReclaimExpired puts tasks whose lease ran out back on the ready list.
	ReclaimExpired(ctx context.Context, now time.Time) (int, error)
	// Schedule parks a task until at, after which PromoteDue makes it ready again.
	Schedule(ctx context.Context, task Task, at time.Time) error
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	Depth(ctx context.Context) (ready, delayed int64, err error)
}

// DefaultVisibilityTimeout is how long a dequeued task may run before it is
// handed to another worker.
const DefaultVisibilityTimeout = 10 * time.Minute

// RedisQueue implements Queue with LPUSH/BLMOVE, a processing list with
// lease scores, and a delayed ZSET.
type RedisQueue struct {
	client        *redis.Client
	readyKey      string
	delayedKey    string
	processingKey string
	leasesKey     string
	visibility    time.Duration
}

// Option configures a RedisQueue.
type Option func(*RedisQueue)

// WithVisibilityTimeout sets how long a task may stay unacknowledged.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(q *RedisQueue) {
		if d > 0 {
			q.visibility = d
		}
	}
}

// New returns a queue whose keys are namespaced with prefix.
func New(client *redis.Client, prefix string, opts ...Option) *RedisQueue {
	base := "queue"
	if prefix != "" {
		base = prefix + ":queue"
	}
	q := &RedisQueue{
		client:        client,
		readyKey:      base + ":ready",
		delayedKey:    base + ":delayed",
		processingKey: base + ":processing",
		leasesKey:     base + ":leases",
		visibility:    DefaultVisibilityTimeout,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RedisQueue) Enqueue(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := q.client.LPush(ctx, q.readyKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Kind, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	payload, err := q.client.BLMove(ctx, q.readyKey, q.processingKey, "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	lease := redis.Z{Score: float64(time.Now().Add(q.visibility).UnixMilli()), Member: payload}
	if err := q.client.ZAdd(ctx, q.leasesKey, lease).Err(); err != nil {
		// ReclaimExpired leases the task on its next pass.
		slog.Warn("failed to lease dequeued task", "error", err)
	}

	var task Task
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		// Drop it; it can never decode.
		_ = q.ack(ctx, payload)
		return nil, fmt.Errorf("decode task: %w", err)
	}
	task.receipt = payload
	return &task, nil
}

func (q *RedisQueue) Ack(ctx context.Context, task Task) error {
	if task.receipt == "" {
		return nil
	}
	if err := q.ack(ctx, task.receipt); err != nil {
		return fmt.Errorf("ack %s: %w", task.Kind, err)
	}
	return nil
}

func (q *RedisQueue) ack(ctx context.Context, payload string) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processingKey, 1, payload)
	pipe.ZRem(ctx, q.leasesKey, payload)
	_, err := pipe.Exec(ctx)
	return err
}

// reclaimScript leases processing members that have no lease yet and moves
// members whose lease is due back to the ready list.
var reclaimScript = redis.NewScript(`
local now = tonumber(ARGV[1])
for _, member in ipairs(redis.call('LRANGE', KEYS[1], 0, -1)) do
	if not redis.call('ZSCORE', KEYS[2], member) then
		redis.call('ZADD', KEYS[2], now + tonumber(ARGV[2]), member)
	end
end
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', now, 'LIMIT', 0, 100)
local moved = 0
for _, member in ipairs(due) do
	redis.call('ZREM', KEYS[2], member)
	if redis.call('LREM', KEYS[1], 1, member) > 0 then
		redis.call('LPUSH', KEYS[3], member)
		moved = moved + 1
	end
end
return moved
`)

func (q *RedisQueue) ReclaimExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := reclaimScript.Run(ctx, q.client,
		[]string{q.processingKey, q.leasesKey, q.readyKey},
		strconv.FormatInt(now.UnixMilli(), 10), strconv.FormatInt(q.visibility.Milliseconds(), 10)).Int()
	if err != nil {
		return 0, fmt.Errorf("reclaim expired tasks: %w", err)
	}
	return n, nil
}

func (q *RedisQueue) Schedule(ctx context.Context, task Task, at time.Time) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	err = q.client.ZAdd(ctx, q.delayedKey, redis.Z{Score: float64(at.UnixMilli()), Member: payload}).Err()
	if err != nil {
		return fmt.Errorf("schedule %s: %w", task.Kind, err)
	}
	return nil
}

// promoteScript moves due members from the delayed set to the ready list in
// one step, so two promoters never both push the same task.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, member in ipairs(due) do
	redis.call('ZREM', KEYS[1], member)
	redis.call('LPUSH', KEYS[2], member)
end
return #due
`)

func (q *RedisQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	n, err := promoteScript.Run(ctx, q.client,
		[]string{q.delayedKey, q.readyKey}, strconv.FormatInt(now.UnixMilli(), 10)).Int()
	if err != nil {
		return 0, fmt.Errorf("promote due tasks: %w", err)
	}
	return n, nil
}

func (q *RedisQueue) Depth(ctx context.Context) (ready, delayed int64, err error) {
	pipe := q.client.Pipeline()
	r := pipe.LLen(ctx, q.readyKey)
	d := pipe.ZCard(ctx, q.delayedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	return r.Val(), d.Val(), nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
