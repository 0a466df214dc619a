package valueengine

import (
	"molap.evalgo.org/cube"
	"molap.evalgo.org/dimension"
	"molap.evalgo.org/molaperr"
)

// SplashMode selects how a write at a non-base coordinate is distributed
// across base cells (spec §4.4 "Splash writes").
type SplashMode int

const (
	SplashDisabled SplashMode = iota
	SplashDefault
	SplashAddBase
	SplashSetBase
)

// weightedCoord pairs a base coordinate with its accumulated weight from
// one particular expansion walk.
type weightedCoord struct {
	coord  cube.Coord
	weight float64
}

func (e *Engine) baseExpansion(dims []*dimension.Dimension, coord cube.Coord) []weightedCoord {
	expansions := make([][]dimension.BaseWeight, len(coord))
	for i, id := range coord {
		expansions[i] = dims[i].BaseElements(id)
	}

	byKey := make(map[string]*weightedCoord)
	base := make(cube.Coord, len(coord))
	var walk func(pos int, weight float64)
	walk = func(pos int, weight float64) {
		if pos == len(coord) {
			k := base.Key()
			if wc, ok := byKey[k]; ok {
				wc.weight += weight
			} else {
				byKey[k] = &weightedCoord{coord: base.Clone(), weight: weight}
			}
			return
		}
		for _, bw := range expansions[pos] {
			base[pos] = bw.ID
			walk(pos+1, weight*bw.Weight)
		}
	}
	walk(0, 1.0)

	out := make([]weightedCoord, 0, len(byKey))
	for _, wc := range byKey {
		out = append(out, *wc)
	}
	return out
}

func (e *Engine) afterBaseWrite(c *cube.Cube, coord cube.Coord) {
	e.InvalidateConsolidation(c.ID, coord)
	if e.markers != nil {
		e.markers.NotifyBaseWrite(c.ID, coord)
	}
}

// SetNumeric writes v at coord using the given splash mode (spec §4.4).
func (e *Engine) SetNumeric(c *cube.Cube, coord cube.Coord, v float64, mode SplashMode, add bool) error {
	if err := e.ValidateCoordinate(c, coord); err != nil {
		return err
	}
	isString, err := e.IsStringPath(c, coord)
	if err != nil {
		return err
	}
	if isString {
		return molaperr.InvalidPathType("numeric", "string")
	}
	dims, err := e.dimsFor(c)
	if err != nil {
		return err
	}
	base := isBaseCoord(dims, coord)

	switch mode {
	case SplashDisabled:
		if !base {
			return molaperr.InvalidSplashMode(int(mode))
		}
		e.writeBase(c, coord, v, add)
		return nil

	case SplashDefault:
		if base {
			e.writeBase(c, coord, v, add)
			return nil
		}
		if add {
			return e.splashAddBase(c, dims, coord, v)
		}
		return e.splashSetBase(c, dims, coord, v)

	case SplashAddBase:
		if base {
			e.writeBase(c, coord, v, true)
			return nil
		}
		return e.splashAddBase(c, dims, coord, v)

	case SplashSetBase:
		if add {
			return molaperr.InvalidSplashMode(int(mode))
		}
		if base {
			e.writeBase(c, coord, v, false)
			return nil
		}
		return e.splashSetBase(c, dims, coord, v)

	default:
		return molaperr.InvalidSplashMode(int(mode))
	}
}

func (e *Engine) writeBase(c *cube.Cube, coord cube.Coord, v float64, add bool) {
	if add {
		c.Store.AddNumeric(coord, v)
	} else {
		c.Store.SetNumeric(coord, v)
	}
	e.afterBaseWrite(c, coord)
}

// splashAddBase distributes v as an additive delta across the base cells
// reachable from coord: cells already nonzero are left alone, the zero
// cells each receive v divided by the sum of their weights, so the
// aggregate grows by exactly v.
func (e *Engine) splashAddBase(c *cube.Cube, dims []*dimension.Dimension, coord cube.Coord, v float64) error {
	reachable := e.baseExpansion(dims, coord)
	if len(reachable) == 0 {
		return nil
	}
	var zero []weightedCoord
	for _, wc := range reachable {
		if cur, _ := c.Store.GetNumeric(wc.coord); cur == 0 {
			zero = append(zero, wc)
		}
	}
	targets := zero
	if len(targets) == 0 {
		// every reachable cell is already nonzero: fall back to spreading
		// across all of them so the write is not silently dropped.
		targets = reachable
	}
	sumWeights := 0.0
	for _, wc := range targets {
		sumWeights += wc.weight
	}
	if sumWeights == 0 {
		return nil
	}
	delta := v / sumWeights
	for _, wc := range targets {
		c.Store.AddNumeric(wc.coord, delta)
		e.afterBaseWrite(c, wc.coord)
	}
	return nil
}

// splashSetBase scales existing base cells so their aggregate equals v; if
// the current aggregate is zero, it distributes v uniformly weighted by
// each base cell's contribution weight.
func (e *Engine) splashSetBase(c *cube.Cube, dims []*dimension.Dimension, coord cube.Coord, v float64) error {
	reachable := e.baseExpansion(dims, coord)
	if len(reachable) == 0 {
		return nil
	}

	currentAgg := 0.0
	sumWeights := 0.0
	for _, wc := range reachable {
		cur, _ := c.Store.GetNumeric(wc.coord)
		currentAgg += wc.weight * cur
		sumWeights += wc.weight
	}

	if currentAgg != 0 {
		factor := v / currentAgg
		for _, wc := range reachable {
			cur, _ := c.Store.GetNumeric(wc.coord)
			c.Store.SetNumeric(wc.coord, cur*factor)
			e.afterBaseWrite(c, wc.coord)
		}
		return nil
	}

	if sumWeights == 0 {
		return nil
	}
	share := v / sumWeights
	for _, wc := range reachable {
		c.Store.SetNumeric(wc.coord, share)
		e.afterBaseWrite(c, wc.coord)
	}
	return nil
}

// SetString writes a literal string value at coord. String paths never
// aggregate (spec §4.4), so the value is stored exactly at coord
// regardless of whether coord is a base coordinate.
func (e *Engine) SetString(c *cube.Cube, coord cube.Coord, v string) error {
	if err := e.ValidateCoordinate(c, coord); err != nil {
		return err
	}
	isString, err := e.IsStringPath(c, coord)
	if err != nil {
		return err
	}
	if !isString {
		return molaperr.InvalidPathType("string", "numeric")
	}
	c.Store.SetString(coord, v)
	e.afterBaseWrite(c, coord)
	return nil
}
