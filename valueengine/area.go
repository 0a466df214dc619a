package valueengine

import (
	"molap.evalgo.org/cube"
	"molap.evalgo.org/molaperr"
)

// Area is an enumerated Cartesian-product region: one element-id list per
// cube dimension, in the per-dimension order the caller supplied (spec
// §4.4 "Bulk read" / §6 area encoding). An empty per-dimension list means
// "every element of that dimension", taken in the dimension's position
// order.
type Area [][]int

// CellResult is one tuple of a bulk read (spec §4.4).
type CellResult struct {
	Coord    cube.Coord
	Value    Value
	Found    bool
	Err      error
	RuleID   int
	FromRule bool
}

// BulkRead streams every coordinate in the Cartesian product of area, in
// the lexicographic order of the per-dimension lists supplied. When
// skipEmpty is set, cells whose resolved value is the type-appropriate
// zero/empty default are omitted.
func (e *Engine) BulkRead(c *cube.Cube, area Area, skipEmpty bool, fn func(CellResult) bool) error {
	if len(area) != len(c.DimensionIDs) {
		return molaperr.Internal("area has %d dimensions, cube %q expects %d", len(area), c.Name, len(c.DimensionIDs))
	}
	dims, err := e.dimsFor(c)
	if err != nil {
		return err
	}
	lists := make(Area, len(area))
	for i, ids := range area {
		if len(ids) == 0 {
			for _, el := range dims[i].Elements() {
				ids = append(ids, el.ID)
			}
		}
		lists[i] = ids
	}
	coord := make(cube.Coord, len(area))
	var walk func(pos int) bool
	walk = func(pos int) bool {
		if pos == len(area) {
			res := e.readForBulk(c, coord.Clone())
			if skipEmpty && res.Found && isEmptyValue(res.Value) {
				return true
			}
			return fn(res)
		}
		for _, id := range lists[pos] {
			coord[pos] = id
			if !walk(pos + 1) {
				return false
			}
		}
		return true
	}
	walk(0)
	return nil
}

func isEmptyValue(v Value) bool {
	if v.IsString {
		return v.String == ""
	}
	return v.Numeric == 0
}

func (e *Engine) readForBulk(c *cube.Cube, coord cube.Coord) CellResult {
	v, err := e.Get(c, coord)
	if err != nil {
		return CellResult{Coord: coord, Err: err}
	}
	return CellResult{Coord: coord, Value: v, Found: true, FromRule: v.FromRule}
}

// ClearArea removes every cell whose coordinate lies in area. Protected
// cells (e.g. the configuration cube's client-cache/hide-elements cells,
// guarded by the protect callback) fail the whole call with
// NotAuthorized and leave the store untouched (spec §4.4 "Clear").
func (e *Engine) ClearArea(c *cube.Cube, area Area, protect func(cube.Coord) bool) error {
	if len(area) != len(c.DimensionIDs) {
		return molaperr.Internal("area has %d dimensions, cube %q expects %d", len(area), c.Name, len(c.DimensionIDs))
	}

	dims, err := e.dimsFor(c)
	if err != nil {
		return err
	}
	lists := make(Area, len(area))
	for i, ids := range area {
		if len(ids) == 0 {
			for _, el := range dims[i].Elements() {
				ids = append(ids, el.ID)
			}
		}
		lists[i] = ids
	}
	var targets []cube.Coord
	coord := make(cube.Coord, len(area))
	var collect func(pos int) error
	collect = func(pos int) error {
		if pos == len(area) {
			cc := coord.Clone()
			if protect != nil && protect(cc) {
				return molaperr.NotAuthorized("clearing a protected cell")
			}
			targets = append(targets, cc)
			return nil
		}
		for _, id := range lists[pos] {
			coord[pos] = id
			if err := collect(pos + 1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := collect(0); err != nil {
		return err
	}

	for _, t := range targets {
		c.Store.Clear(t)
		e.afterBaseWrite(c, t)
	}
	return nil
}
