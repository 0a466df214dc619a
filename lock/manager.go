package lock

import (
	"sync"

	"molap.evalgo.org/molaperr"
)

// Manager owns one event lock plus every cube's area locks (spec §4.6).
// server.Database creates one Manager per database, so the event lock is
// per database: an event begun on one database does not block sessions
// working on another.
type Manager struct {
	event *eventLock

	mu    sync.Mutex
	cubes map[int]*cubeLocks
}

// NewManager creates an unlocked manager.
func NewManager() *Manager {
	return &Manager{event: newEventLock(), cubes: make(map[int]*cubeLocks)}
}

func (m *Manager) cubeLocksFor(cubeID int) *cubeLocks {
	m.mu.Lock()
	defer m.mu.Unlock()
	cl, ok := m.cubes[cubeID]
	if !ok {
		cl = &cubeLocks{}
		m.cubes[cubeID] = cl
	}
	return cl
}

// BeginEvent acquires this Manager's event lock (spec §4.6.1 "event/begin").
func (m *Manager) BeginEvent(sessionID, username, eventName string) error {
	return m.event.Begin(sessionID, username, eventName)
}

// EndEvent releases this Manager's event lock (spec §4.6.1 "event/end").
func (m *Manager) EndEvent(sessionID string) error {
	return m.event.End(sessionID)
}

// EventState reports the current event lock snapshot.
func (m *Manager) EventState() EventState {
	return m.event.Snapshot()
}

// WaitForEvent blocks the caller until sessionID's mutating request is no
// longer required to suspend: either the event lock is free, or sessionID
// itself holds it. Reads never call this (spec: "reads may proceed").
func (m *Manager) WaitForEvent(sessionID string) {
	for {
		release, must := m.event.MustSuspend(sessionID)
		if !must {
			return
		}
		<-release
	}
}

// Lock reserves area on cubeID for sessionID, opening its rollback
// journal (spec §4.6.2 "cube/lock"). Re-locking from the same session
// replaces its reserved area; the journal carries over.
func (m *Manager) Lock(cubeID int, sessionID string, area Area) {
	cl := m.cubeLocksFor(cubeID)
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if existing := cl.find(sessionID); existing != nil {
		existing.area = area
		return
	}
	cl.locks = append(cl.locks, &areaLock{sessionID: sessionID, area: area})
}

// RecordUndo appends an undo closure to sessionID's open journal on
// cubeID. Called by the value engine (via the owning database) right
// before each write so Rollback can reverse it later.
func (m *Manager) RecordUndo(cubeID int, sessionID string, undo func()) {
	cl := m.cubeLocksFor(cubeID)
	cl.mu.Lock()
	defer cl.mu.Unlock()
	l := cl.find(sessionID)
	if l == nil {
		return
	}
	l.journal = append(l.journal, undo)
}

// Commit discards sessionID's journal on cubeID and releases the lock
// (spec §4.6.2 "cube/commit").
func (m *Manager) Commit(cubeID int, sessionID string) {
	cl := m.cubeLocksFor(cubeID)
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.remove(sessionID)
}

// Rollback replays sessionID's journal on cubeID in reverse, then
// releases the lock (spec §4.6.2 "cube/rollback").
func (m *Manager) Rollback(cubeID int, sessionID string) {
	cl := m.cubeLocksFor(cubeID)
	cl.mu.Lock()
	l := cl.find(sessionID)
	if l == nil {
		cl.mu.Unlock()
		return
	}
	journal := l.journal
	cl.remove(sessionID)
	cl.mu.Unlock()

	for i := len(journal) - 1; i >= 0; i-- {
		journal[i]()
	}
}

// CheckWrite fails with LockedArea if coord on cubeID falls inside
// another session's locked area (spec §4.6.2).
func (m *Manager) CheckWrite(cubeID int, sessionID, cubeName string, coord []int) error {
	cl := m.cubeLocksFor(cubeID)
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for _, l := range cl.locks {
		if l.sessionID == sessionID {
			continue
		}
		if l.area.contains(coord) {
			return molaperr.LockedArea(cubeName)
		}
	}
	return nil
}

// ElementLocked reports whether any active lock on any cube references
// elementID at dimPos, blocking a would-be element delete (spec §4.6.2
// "Deleting an element referenced by any active lock's area... fails").
func (m *Manager) ElementLocked(dimPos, elementID int) bool {
	m.mu.Lock()
	cubes := make([]*cubeLocks, 0, len(m.cubes))
	for _, cl := range m.cubes {
		cubes = append(cubes, cl)
	}
	m.mu.Unlock()

	for _, cl := range cubes {
		cl.mu.Lock()
		for _, l := range cl.locks {
			if l.area.referencesElement(dimPos, elementID) {
				cl.mu.Unlock()
				return true
			}
		}
		cl.mu.Unlock()
	}
	return false
}

// CancelSession implicitly releases sessionID's event lock (if held) and
// rolls back every cube lock it holds (spec §4.6 "Cancellation").
func (m *Manager) CancelSession(sessionID string) {
	m.event.forceRelease(sessionID)

	m.mu.Lock()
	cubeIDs := make([]int, 0, len(m.cubes))
	for id := range m.cubes {
		cubeIDs = append(cubeIDs, id)
	}
	m.mu.Unlock()

	for _, id := range cubeIDs {
		m.Rollback(id, sessionID)
	}
}
