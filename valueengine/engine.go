// Package valueengine implements the path & value engine (spec §4.4,
// component D): coordinate validation, path typing, single-cell read with
// the rule-check/base-lookup/aggregation fallback chain, bulk read over an
// enumerated area, and splash writes. Grounded on original_source's
// molap/server/Source/Olap/Cube.cpp cell-access chain, generalized onto
// the cube/dimension packages built for this repo.
package valueengine

import (
	"fmt"

	"molap.evalgo.org/cube"
	"molap.evalgo.org/dimension"
	"molap.evalgo.org/molaperr"
)

// RuleEvaluator is implemented by the rule engine (component E). It is
// injected rather than imported directly so cube/dimension evaluation
// never needs to know about the rule expression language.
type RuleEvaluator interface {
	// Evaluate returns a concrete value for coord in cubeID if some active
	// rule's area matches it. ok is false when no rule applies.
	Evaluate(cubeID int, coord cube.Coord) (numeric float64, str string, isString, ok bool)
}

// MarkerNotifier is implemented by the rule engine's marker half. It is
// told about every base-cell write so source-predicate matches can dirty
// dependent cubes (spec §4.5 write propagation).
type MarkerNotifier interface {
	NotifyBaseWrite(cubeID int, coord cube.Coord)
}

// DimensionSource resolves a dimension id to its element graph. The engine
// never mutates dimensions; it only reads element kind/weights.
type DimensionSource interface {
	Dimension(id int) (*dimension.Dimension, bool)
}

// Engine evaluates and writes cell values for every cube of one database,
// sharing one dimension registry, rule evaluator and marker notifier.
type Engine struct {
	dims    DimensionSource
	rules   RuleEvaluator
	markers MarkerNotifier
	cons    *consolidationCache
}

// New creates a value engine. rules and markers may be nil until the
// owning database has a rule engine to wire in; a nil RuleEvaluator simply
// means no rule ever matches, and a nil MarkerNotifier means base writes
// are not propagated.
func New(dims DimensionSource, rules RuleEvaluator, markers MarkerNotifier) *Engine {
	return &Engine{
		dims:    dims,
		rules:   rules,
		markers: markers,
		cons:    newConsolidationCache(),
	}
}

// RuleEngine is satisfied by the rule engine (component E), which plays
// both the RuleEvaluator and MarkerNotifier roles.
type RuleEngine interface {
	RuleEvaluator
	MarkerNotifier
}

// SetRuleEngine wires the rule engine in after construction. The value
// engine and rule engine each hold a reference to the other, so one side
// has to be completed post-construction; the owning database does this
// once at startup, right after creating both.
func (e *Engine) SetRuleEngine(r RuleEngine) {
	e.rules = r
	e.markers = r
}

func (e *Engine) dimsFor(c *cube.Cube) ([]*dimension.Dimension, error) {
	dims := make([]*dimension.Dimension, len(c.DimensionIDs))
	for i, id := range c.DimensionIDs {
		d, ok := e.dims.Dimension(id)
		if !ok {
			return nil, molaperr.Internal("cube %q references unknown dimension #%d", c.Name, id)
		}
		dims[i] = d
	}
	return dims, nil
}

// ValidateCoordinate checks coord has the right arity and that every
// element id exists in its dimension (spec §4.4).
func (e *Engine) ValidateCoordinate(c *cube.Cube, coord cube.Coord) error {
	if len(coord) != len(c.DimensionIDs) {
		return molaperr.InvalidCoordinates(fmt.Sprintf("cube %q expects %d dimensions, got %d", c.Name, len(c.DimensionIDs), len(coord)))
	}
	dims, err := e.dimsFor(c)
	if err != nil {
		return err
	}
	for i, d := range dims {
		if _, ok := d.Element(coord[i]); !ok {
			return molaperr.InvalidCoordinates(fmt.Sprintf("element #%d not found in dimension %q", coord[i], d.Name))
		}
	}
	return nil
}

// IsStringPath reports the path type of coord (spec §4.4 "Path type"): any
// string-typed or string-consolidated coordinate element makes the whole
// path string-valued.
func (e *Engine) IsStringPath(c *cube.Cube, coord cube.Coord) (bool, error) {
	dims, err := e.dimsFor(c)
	if err != nil {
		return false, err
	}
	for i, d := range dims {
		el, ok := d.Element(coord[i])
		if !ok {
			return false, molaperr.InvalidCoordinates(fmt.Sprintf("element #%d not found in dimension %q", coord[i], d.Name))
		}
		switch el.Kind {
		case dimension.KindString:
			return true, nil
		case dimension.KindConsolidated:
			if d.IsStringConsolidated(el.ID) {
				return true, nil
			}
		}
	}
	return false, nil
}

func isBaseCoord(dims []*dimension.Dimension, coord cube.Coord) bool {
	for i, d := range dims {
		el, ok := d.Element(coord[i])
		if !ok || el.Kind == dimension.KindConsolidated {
			return false
		}
	}
	return true
}

// Value is the typed result of a cell read.
type Value struct {
	Numeric  float64
	String   string
	IsString bool
	RuleID   int
	FromRule bool
}

// Get reads coord in c following the rule -> base -> aggregate chain of
// spec §4.4.
func (e *Engine) Get(c *cube.Cube, coord cube.Coord) (Value, error) {
	if err := e.ValidateCoordinate(c, coord); err != nil {
		return Value{}, err
	}
	if e.rules != nil {
		if num, str, isString, ok := e.rules.Evaluate(c.ID, coord); ok {
			return Value{Numeric: num, String: str, IsString: isString, FromRule: true}, nil
		}
	}
	return e.resolve(c, coord)
}

// GetWithoutRules resolves coord through the base/aggregate chain only,
// skipping the rule engine entirely. It exists for the rule engine's own
// cycle-breaking fallback (spec §4.5 "ruleHistory"): once a re-entrant
// rule evaluation has been detected, re-entering Get would simply match
// the same rule again and recurse forever, so the rule engine calls this
// instead to get the cell's plain value.
func (e *Engine) GetWithoutRules(c *cube.Cube, coord cube.Coord) (Value, error) {
	if err := e.ValidateCoordinate(c, coord); err != nil {
		return Value{}, err
	}
	return e.resolve(c, coord)
}

func (e *Engine) resolve(c *cube.Cube, coord cube.Coord) (Value, error) {
	dims, err := e.dimsFor(c)
	if err != nil {
		return Value{}, err
	}
	isString, err := e.IsStringPath(c, coord)
	if err != nil {
		return Value{}, err
	}

	if isBaseCoord(dims, coord) {
		if isString {
			s, _ := c.Store.GetString(coord)
			return Value{String: s, IsString: true}, nil
		}
		v, _ := c.Store.GetNumeric(coord)
		return Value{Numeric: v}, nil
	}

	if isString {
		// String paths never aggregate (spec §4.4): read the exact
		// coordinate's stored string, default "" if absent.
		s, _ := c.Store.GetString(coord)
		return Value{String: s, IsString: true}, nil
	}

	if v, ok := e.cons.get(c.ID, coord); ok {
		return Value{Numeric: v}, nil
	}
	sum, deps := e.aggregate(c, dims, coord)
	e.cons.put(c.ID, coord, sum, deps)
	return Value{Numeric: sum}, nil
}

// aggregate expands every consolidated coordinate element into its
// weighted base set and sums weight*value across the Cartesian product
// (spec §4.4 step 3, invariant I4). It also returns the set of base
// coordinate keys the result depends on, for consolidation-cache
// invalidation.
func (e *Engine) aggregate(c *cube.Cube, dims []*dimension.Dimension, coord cube.Coord) (float64, []string) {
	expansions := make([][]dimension.BaseWeight, len(coord))
	for i, id := range coord {
		expansions[i] = dims[i].BaseElements(id)
	}

	sum := 0.0
	deps := make(map[string]struct{})
	base := make(cube.Coord, len(coord))
	var walk func(pos int, weight float64)
	walk = func(pos int, weight float64) {
		if pos == len(coord) {
			v, _ := c.Store.GetNumeric(base)
			sum += weight * v
			deps[base.Key()] = struct{}{}
			return
		}
		for _, bw := range expansions[pos] {
			base[pos] = bw.ID
			walk(pos+1, weight*bw.Weight)
		}
	}
	walk(0, 1.0)

	out := make([]string, 0, len(deps))
	for k := range deps {
		out = append(out, k)
	}
	return sum, out
}

// InvalidateConsolidation drops any cached aggregate of c that depends on
// baseCoord (spec §4.4 splash requirement ii).
func (e *Engine) InvalidateConsolidation(cubeID int, baseCoord cube.Coord) {
	e.cons.invalidateDependents(cubeID, baseCoord.Key())
}

// InvalidateCube drops every cached aggregate for cubeID. Called by the
// owning database whenever a dimension structural edit could change the
// base-element expansion of any consolidated coordinate the cube uses.
func (e *Engine) InvalidateCube(cubeID int) {
	e.cons.invalidateCube(cubeID)
}
