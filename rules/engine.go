package rules

import (
	"strconv"
	"sync"

	"molap.evalgo.org/cube"
	"molap.evalgo.org/molaperr"
	"molap.evalgo.org/valueengine"
)

type evalCtx struct {
	engine  *Engine
	target  cube.Coord
	history map[string]bool
}

// Engine is the rule and marker store of one database. It implements
// valueengine.RuleEvaluator and valueengine.MarkerNotifier so a
// valueengine.Engine can be wired directly to it.
type Engine struct {
	mu sync.RWMutex

	ve    *valueengine.Engine
	cubes map[int]*cube.Cube

	nextID int
	rules  map[int]*Rule
	byCube map[int][]*Rule // active+inactive rules of a cube, in ID order

	markersBySource map[int][]Marker // source cubeID -> markers
	dirty           map[int]bool     // target cubeID -> has pending marker changes

	cache map[int]map[string]Value // ruleID -> coordKey -> memoized result
}

// New creates an empty rule engine bound to the value engine it augments.
func New(ve *valueengine.Engine) *Engine {
	return &Engine{
		ve:              ve,
		cubes:           make(map[int]*cube.Cube),
		rules:           make(map[int]*Rule),
		byCube:          make(map[int][]*Rule),
		markersBySource: make(map[int][]Marker),
		dirty:           make(map[int]bool),
		cache:           make(map[int]map[string]Value),
	}
}

// RegisterCube lets the engine resolve cross-cube CellRef targets and
// fall back to base/aggregate lookups when no rule applies.
func (e *Engine) RegisterCube(c *cube.Cube) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cubes[c.ID] = c
}

// Create compiles and stores a new rule in the created state.
func (e *Engine) Create(cubeID int, area Area, expr Expr, definition string) *Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	r := &Rule{ID: id, CubeID: cubeID, Area: area, Expr: expr, State: StateCreated, Definition: definition}
	e.rules[id] = r
	e.byCube[cubeID] = append(e.byCube[cubeID], r)
	return r
}

// Activate moves a rule into the active state, installing its markers and
// invalidating its cache (spec §4.5 state machine).
func (e *Engine) Activate(ruleID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[ruleID]
	if !ok {
		return molaperr.NotFound("rule", "")
	}
	r.State = StateActive
	delete(e.cache, ruleID)
	for _, m := range deriveMarkers(r) {
		e.markersBySource[m.SourceCubeID] = append(e.markersBySource[m.SourceCubeID], m)
	}
	return nil
}

// Deactivate moves a rule to inactive, dropping its cache and markers.
func (e *Engine) Deactivate(ruleID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[ruleID]
	if !ok {
		return molaperr.NotFound("rule", "")
	}
	r.State = StateInactive
	delete(e.cache, ruleID)
	e.removeMarkers(ruleID)
	return nil
}

// Delete removes a rule entirely, dropping its cache and outgoing markers
// (spec §4.5 "Deletion triggers removal of outgoing markers").
func (e *Engine) Delete(ruleID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[ruleID]
	if !ok {
		return molaperr.NotFound("rule", "")
	}
	r.State = StateDeleted
	delete(e.rules, ruleID)
	delete(e.cache, ruleID)
	e.removeMarkers(ruleID)
	rules := e.byCube[r.CubeID]
	for i, rr := range rules {
		if rr.ID == ruleID {
			e.byCube[r.CubeID] = append(rules[:i], rules[i+1:]...)
			break
		}
	}
	return nil
}

func (e *Engine) removeMarkers(ruleID int) {
	for src, markers := range e.markersBySource {
		kept := markers[:0]
		for _, m := range markers {
			if m.RuleID != ruleID {
				kept = append(kept, m)
			}
		}
		e.markersBySource[src] = kept
	}
}

// Evaluate implements valueengine.RuleEvaluator: it is the single entry
// point the value engine calls on every read.
func (e *Engine) Evaluate(cubeID int, coord cube.Coord) (float64, string, bool, bool) {
	num, str, isString, ok := e.evalTop(cubeID, coord)
	return num, str, isString, ok
}

func (e *Engine) evalTop(cubeID int, coord cube.Coord) (float64, string, bool, bool) {
	v, err := e.readCell(cubeID, coord, map[string]bool{})
	if err != nil || !v.ruleApplied {
		return 0, "", false, false
	}
	return v.Numeric, v.String, v.IsString, true
}

// internalValue extends Value with whether a rule actually produced it, so
// callers can distinguish "a rule matched" from "fell through to base".
type internalValue struct {
	Value
	ruleApplied bool
}

func cellKey(cubeID int, coord cube.Coord) string {
	return coord.Key() + "@" + strconv.Itoa(cubeID)
}

// readCell is the shared path for the public Evaluate entrypoint and for
// CellRef's cross-cell references: it finds a matching active rule,
// evaluates and memoizes it, or reports that no rule applied so the
// caller falls back to a plain cell read. The history set is threaded
// through recursive evaluation to break self-referential cycles (spec
// §4.5 "ruleHistory").
func (e *Engine) readCell(cubeID int, coord cube.Coord, history map[string]bool) (internalValue, error) {
	key := cellKey(cubeID, coord)
	if history[key] {
		return e.bypassFallback(cubeID, coord)
	}

	e.mu.RLock()
	rule := e.findMatching(cubeID, coord)
	e.mu.RUnlock()
	if rule == nil {
		return e.fallback(cubeID, coord)
	}

	if cached, ok := e.cacheGet(rule.ID, coord); ok {
		return internalValue{Value: cached, ruleApplied: true}, nil
	}

	childHistory := make(map[string]bool, len(history)+1)
	for k := range history {
		childHistory[k] = true
	}
	childHistory[key] = true

	v, err := rule.Expr.Eval(&evalCtx{engine: e, target: coord, history: childHistory})
	if err != nil {
		return e.bypassFallback(cubeID, coord)
	}
	e.cachePut(rule.ID, coord, v)
	return internalValue{Value: v, ruleApplied: true}, nil
}

// fallback resolves a coordinate with no applicable rule through the full
// value engine chain (base lookup or consolidation aggregation). The
// value engine re-checks for a matching rule on its way in, but since the
// caller already established none applies to this exact coordinate that
// re-check returns immediately — there is no unbounded recursion, only
// one redundant match test.
func (e *Engine) fallback(cubeID int, coord cube.Coord) (internalValue, error) {
	e.mu.RLock()
	c, ok := e.cubes[cubeID]
	e.mu.RUnlock()
	if !ok {
		return internalValue{}, molaperr.Internal("rule engine has no cube registered for #%d", cubeID)
	}
	v, err := e.ve.Get(c, coord)
	if err != nil {
		return internalValue{}, err
	}
	return internalValue{Value: Value{Numeric: v.Numeric, String: v.String, IsString: v.IsString}}, nil
}

// bypassFallback resolves coord without consulting the rule engine at all,
// used only when a cycle has already been detected: re-entering Get would
// just match the same rule again and recurse forever (spec §4.5
// "ruleHistory...treating a re-entry as no value").
func (e *Engine) bypassFallback(cubeID int, coord cube.Coord) (internalValue, error) {
	e.mu.RLock()
	c, ok := e.cubes[cubeID]
	e.mu.RUnlock()
	if !ok {
		return internalValue{}, molaperr.Internal("rule engine has no cube registered for #%d", cubeID)
	}
	v, err := e.ve.GetWithoutRules(c, coord)
	if err != nil {
		return internalValue{}, err
	}
	return internalValue{Value: Value{Numeric: v.Numeric, String: v.String, IsString: v.IsString}}, nil
}

func (e *Engine) findMatching(cubeID int, coord cube.Coord) *Rule {
	for _, r := range e.byCube[cubeID] {
		if r.State == StateActive && r.Area.matches(coord) {
			return r
		}
	}
	return nil
}

func (e *Engine) cacheGet(ruleID int, coord cube.Coord) (Value, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.cache[ruleID]
	if !ok {
		return Value{}, false
	}
	v, ok := m[coord.Key()]
	return v, ok
}

func (e *Engine) cachePut(ruleID int, coord cube.Coord, v Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cache[ruleID] == nil {
		e.cache[ruleID] = make(map[string]Value)
	}
	e.cache[ruleID][coord.Key()] = v
}

// NotifyBaseWrite implements valueengine.MarkerNotifier: every base-cell
// write is checked against markers sourced from this cube, dirtying their
// target cubes and evicting the affected rule-cache entries.
func (e *Engine) NotifyBaseWrite(cubeID int, coord cube.Coord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range e.markersBySource[cubeID] {
		if !m.sourceMatches(coord) {
			continue
		}
		e.dirty[m.TargetCubeID] = true
		delete(e.cache, m.RuleID)
	}
}

// TriggerMarkerCalculation resolves pending marker changes for the given
// cubes, evicting every rule-cache entry of rules owned by each dirty
// cube so the next read recomputes from scratch (spec §4.5
// "Server::triggerMarkerCalculation").
func (e *Engine) TriggerMarkerCalculation(cubeIDs []int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cubeID := range cubeIDs {
		if !e.dirty[cubeID] {
			continue
		}
		for _, r := range e.byCube[cubeID] {
			delete(e.cache, r.ID)
		}
		delete(e.dirty, cubeID)
	}
}

// PendingCubes returns the set of cubes with unresolved marker changes,
// the set the server must drain before a read could observe stale values.
func (e *Engine) PendingCubes() []int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]int, 0, len(e.dirty))
	for id := range e.dirty {
		out = append(out, id)
	}
	return out
}
