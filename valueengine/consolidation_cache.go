package valueengine

import (
	"sync"

	"molap.evalgo.org/cube"
)

type consolidationEntry struct {
	value float64
	deps  []string
}

// consolidationCache memoizes aggregated reads per (cube, coordinate),
// keyed loosely enough to invalidate by dependency rather than wholesale
// (spec §4.4 "consult the consolidation cache first; store result on
// computation", and the splash requirement to invalidate entries whose
// dependency set intersects the modified base cells).
type consolidationCache struct {
	mu      sync.Mutex
	entries map[int]map[string]consolidationEntry // cubeID -> coordKey -> entry
	byDep   map[int]map[string]map[string]struct{} // cubeID -> baseCoordKey -> set of dependent coordKeys
}

func newConsolidationCache() *consolidationCache {
	return &consolidationCache{
		entries: make(map[int]map[string]consolidationEntry),
		byDep:   make(map[int]map[string]map[string]struct{}),
	}
}

func (cc *consolidationCache) get(cubeID int, coord cube.Coord) (float64, bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	m, ok := cc.entries[cubeID]
	if !ok {
		return 0, false
	}
	e, ok := m[coord.Key()]
	return e.value, ok
}

func (cc *consolidationCache) put(cubeID int, coord cube.Coord, value float64, deps []string) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	key := coord.Key()
	if cc.entries[cubeID] == nil {
		cc.entries[cubeID] = make(map[string]consolidationEntry)
	}
	cc.entries[cubeID][key] = consolidationEntry{value: value, deps: deps}

	if cc.byDep[cubeID] == nil {
		cc.byDep[cubeID] = make(map[string]map[string]struct{})
	}
	for _, dep := range deps {
		if cc.byDep[cubeID][dep] == nil {
			cc.byDep[cubeID][dep] = make(map[string]struct{})
		}
		cc.byDep[cubeID][dep][key] = struct{}{}
	}
}

// invalidateDependents evicts every cached aggregate of cubeID that was
// computed from baseCoordKey.
func (cc *consolidationCache) invalidateDependents(cubeID int, baseCoordKey string) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	dependents, ok := cc.byDep[cubeID][baseCoordKey]
	if !ok {
		return
	}
	for key := range dependents {
		delete(cc.entries[cubeID], key)
	}
	delete(cc.byDep[cubeID], baseCoordKey)
}

// invalidateCube drops every cached aggregate for cubeID, e.g. on a
// structural dimension edit that could change expansions wholesale.
func (cc *consolidationCache) invalidateCube(cubeID int) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	delete(cc.entries, cubeID)
	delete(cc.byDep, cubeID)
}
