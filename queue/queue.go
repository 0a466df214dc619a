// Package queue implements the Redis-backed job/reply queues the worker
// gateway (package worker) dispatches external callouts through (spec
// §4.10). Grounded on the teacher's queue/redis/queue.go: same
// RPush/BLPop job queue shape, generalized from a workflow action queue
// to a worker-job/worker-reply pair keyed by a correlation id.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Job is one external worker callout: a login authentication request or
// an external rule function call (spec §4.10).
type Job struct {
	CorrelationID string    `json:"correlationID"`
	Kind          string    `json:"kind"` // "login" or "function"
	Payload       string    `json:"payload"`
	EnqueuedAt    time.Time `json:"enqueuedAt"`
}

// Reply is the worker's answer to a Job, matched back by CorrelationID.
type Reply struct {
	CorrelationID string `json:"correlationID"`
	Payload       string `json:"payload"`
	Err           string `json:"err,omitempty"`
}

// Config configures the Redis connection.
type Config struct {
	RedisURL  string
	KeyPrefix string // defaults to "molap:"
}

// Queue is a Redis-backed job queue plus a per-correlation reply queue.
type Queue struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and returns a ready Queue.
func New(ctx context.Context, cfg Config) (*Queue, error) {
	url := cfg.RedisURL
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "molap:"
	}
	return &Queue{client: client, prefix: prefix}, nil
}

// Close releases the Redis connection.
func (q *Queue) Close() error { return q.client.Close() }

func (q *Queue) jobKey(kind string) string   { return q.prefix + "jobs:" + kind }
func (q *Queue) replyKey(corr string) string { return q.prefix + "reply:" + corr }

// PushJob enqueues job onto its kind's job list.
func (q *Queue) PushJob(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.client.RPush(ctx, q.jobKey(job.Kind), string(body)).Err()
}

// PopJob blocks up to timeout for the next job of the given kind. A
// worker process calls this in a loop.
func (q *Queue) PopJob(ctx context.Context, kind string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, q.jobKey(kind)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop job: %w", err)
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// PushReply enqueues the worker's answer to job correlationID's
// dedicated reply list, which has exactly one waiter.
func (q *Queue) PushReply(ctx context.Context, reply Reply) error {
	body, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	key := q.replyKey(reply.CorrelationID)
	if err := q.client.RPush(ctx, key, string(body)).Err(); err != nil {
		return fmt.Errorf("push reply: %w", err)
	}
	return q.client.Expire(ctx, key, time.Minute).Err()
}

// WaitReply blocks up to timeout for correlationID's reply.
func (q *Queue) WaitReply(ctx context.Context, correlationID string, timeout time.Duration) (*Reply, error) {
	key := q.replyKey(correlationID)
	result, err := q.client.BLPop(ctx, timeout, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wait reply: %w", err)
	}
	if len(result) < 2 {
		return nil, nil
	}
	var reply Reply
	if err := json.Unmarshal([]byte(result[1]), &reply); err != nil {
		return nil, fmt.Errorf("unmarshal reply: %w", err)
	}
	return &reply, nil
}
