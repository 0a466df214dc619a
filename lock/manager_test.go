package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginEventRejectsOtherSession(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.BeginEvent("s1", "alice", "reorg"))
	err := m.BeginEvent("s2", "bob", "other")
	assert.Error(t, err)
}

func TestBeginEventIdempotentForSameSession(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.BeginEvent("s1", "alice", "reorg"))
	require.NoError(t, m.BeginEvent("s1", "alice", "reorg"))
}

func TestEndEventRejectsNonHolder(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.BeginEvent("s1", "alice", "reorg"))
	err := m.EndEvent("s2")
	assert.Error(t, err)
}

func TestWaitForEventReturnsImmediatelyWhenFree(t *testing.T) {
	m := NewManager()
	done := make(chan struct{})
	go func() {
		m.WaitForEvent("anyone")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForEvent blocked with no active event")
	}
}

func TestWaitForEventReleasesOnEnd(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.BeginEvent("s1", "alice", "reorg"))

	done := make(chan struct{})
	go func() {
		m.WaitForEvent("s2")
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("WaitForEvent returned before the event ended")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, m.EndEvent("s1"))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForEvent did not wake up after EndEvent")
	}
}

func TestWaitForEventLetsHolderProceed(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.BeginEvent("s1", "alice", "reorg"))
	done := make(chan struct{})
	go func() {
		m.WaitForEvent("s1")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("the active session must never suspend on its own event")
	}
}

func TestCheckWriteRejectsOtherSessionLockedArea(t *testing.T) {
	m := NewManager()
	m.Lock(0, "s1", Area{{10}, nil})

	err := m.CheckWrite(0, "s2", "Sales", []int{10, 5})
	assert.Error(t, err)

	err = m.CheckWrite(0, "s1", "Sales", []int{10, 5})
	assert.NoError(t, err, "the lock holder must be able to write its own area")
}

func TestCommitDiscardsJournalWithoutRunningIt(t *testing.T) {
	m := NewManager()
	m.Lock(0, "s1", Area{{10}, nil})
	undone := false
	m.RecordUndo(0, "s1", func() { undone = true })

	m.Commit(0, "s1")
	assert.False(t, undone)

	err := m.CheckWrite(0, "s2", "Sales", []int{10, 5})
	assert.NoError(t, err, "commit must release the lock")
}

func TestRollbackReplaysJournalInReverse(t *testing.T) {
	m := NewManager()
	m.Lock(0, "s1", Area{{10}, nil})
	var order []int
	m.RecordUndo(0, "s1", func() { order = append(order, 1) })
	m.RecordUndo(0, "s1", func() { order = append(order, 2) })
	m.RecordUndo(0, "s1", func() { order = append(order, 3) })

	m.Rollback(0, "s1")
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestElementLockedAcrossCubes(t *testing.T) {
	m := NewManager()
	m.Lock(0, "s1", Area{{10}, nil})
	assert.True(t, m.ElementLocked(0, 10))
	assert.False(t, m.ElementLocked(0, 99))
	assert.True(t, m.ElementLocked(1, 10), "an empty element list is a wildcard covering every element at that position")
}

func TestCancelSessionReleasesEventAndRollsBackLocks(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.BeginEvent("s1", "alice", "reorg"))
	m.Lock(0, "s1", Area{{10}, nil})
	undone := false
	m.RecordUndo(0, "s1", func() { undone = true })

	m.CancelSession("s1")

	assert.True(t, undone)
	assert.False(t, m.EventState().Blocking)
	err := m.CheckWrite(0, "s2", "Sales", []int{10, 5})
	assert.NoError(t, err)
}
