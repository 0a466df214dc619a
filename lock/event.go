// Package lock implements the event lock and per-cube area locks (spec
// §4.6, component F): a cooperative event lock, one per Manager, behind
// which callers of Manager.WaitForEvent suspend until a channel broadcast
// releases them, and per-cube rollback journals for area locks. Grounded on the teacher's worker/pool.go
// stop-channel idiom, generalized from "stop the pool" to "suspend until
// released".
package lock

import (
	"sync"

	"molap.evalgo.org/molaperr"
)

// EventState is a snapshot of the server event lock.
type EventState struct {
	ActiveSession string
	Username      string
	EventName     string
	Blocking      bool
}

// eventLock is the event lock of spec §4.6.1, one per Manager. release is closed and
// replaced on every transition out of blocking, so waiters parked on it
// via Wait wake up exactly once per release.
type eventLock struct {
	mu      sync.Mutex
	state   EventState
	release chan struct{}
}

func newEventLock() *eventLock {
	return &eventLock{release: make(chan struct{})}
}

// Begin acquires the event lock for sessionID. Re-acquiring from the same
// session that already holds it succeeds and replaces the recorded
// username and event name; any other session while the lock is held
// fails with WithinEvent.
func (l *eventLock) Begin(sessionID, username, eventName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.Blocking && l.state.ActiveSession != sessionID {
		return molaperr.WithinEvent()
	}
	l.state = EventState{ActiveSession: sessionID, Username: username, EventName: eventName, Blocking: true}
	return nil
}

// End releases the event lock held by sessionID and wakes every waiter.
func (l *eventLock) End(sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.state.Blocking || l.state.ActiveSession != sessionID {
		return molaperr.NotWithinEvent()
	}
	l.state.Blocking = false
	close(l.release)
	l.release = make(chan struct{})
	return nil
}

// MustSuspend reports whether sessionID's mutating request must suspend:
// the lock is held and sessionID is not the holder.
func (l *eventLock) MustSuspend(sessionID string) (chan struct{}, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.Blocking && l.state.ActiveSession != sessionID {
		return l.release, true
	}
	return nil, false
}

// Snapshot returns the current event lock state.
func (l *eventLock) Snapshot() EventState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// forceRelease is used by session cancellation: it releases the lock
// regardless of who asks, if sessionID currently holds it.
func (l *eventLock) forceRelease(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.Blocking && l.state.ActiveSession == sessionID {
		l.state.Blocking = false
		close(l.release)
		l.release = make(chan struct{})
	}
}
