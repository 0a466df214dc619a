package worker

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"molap.evalgo.org/queue"
)

type fakeQueue struct {
	pushed []queue.Job
	reply  *queue.Reply
	err    error
}

func (f *fakeQueue) PushJob(ctx context.Context, job queue.Job) error {
	f.pushed = append(f.pushed, job)
	return nil
}

func (f *fakeQueue) WaitReply(ctx context.Context, correlationID string, timeout time.Duration) (*queue.Reply, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestCallReturnsWorkerPayload(t *testing.T) {
	fq := &fakeQueue{reply: &queue.Reply{CorrelationID: "x", Payload: "42"}}
	g := New(fq, discardLogger(), time.Second)

	got, err := g.Call(context.Background(), "function", "sum(1,2)")
	require.NoError(t, err)
	assert.Equal(t, "42", got)
	require.Len(t, fq.pushed, 1)
	assert.Equal(t, "function", fq.pushed[0].Kind)
}

func TestCallPropagatesWorkerReportedError(t *testing.T) {
	fq := &fakeQueue{reply: &queue.Reply{CorrelationID: "x", Err: "auth failed"}}
	g := New(fq, discardLogger(), time.Second)

	_, err := g.Call(context.Background(), "login", "alice\npw")
	assert.Error(t, err)
}

func TestCallTimesOutWithoutReply(t *testing.T) {
	fq := &fakeQueue{reply: nil}
	g := New(fq, discardLogger(), time.Second)

	_, err := g.Call(context.Background(), "login", "alice\npw")
	assert.Error(t, err)
}

func TestLoginAndFunctionWrapCallWithExpectedKind(t *testing.T) {
	fq := &fakeQueue{reply: &queue.Reply{Payload: "ok"}}
	g := New(fq, discardLogger(), time.Second)

	_, err := g.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "login", fq.pushed[0].Kind)

	_, err = g.Function(context.Background(), "max", "1,2,3")
	require.NoError(t, err)
	assert.Equal(t, "function", fq.pushed[1].Kind)
}
