// Package cube implements the sparse, per-cube cell store (spec §4.3,
// component C): independent numeric/string partitions keyed by a
// coordinate tuple, with insertion amortized O(1) and memory scaling with
// filled cells rather than the Cartesian product.
package cube

import "strconv"

// Coord is a cell coordinate: one element id per cube dimension, in the
// cube's fixed dimension order.
type Coord []int

// Key renders a coordinate to a comparable, exported map key for callers
// outside this package that need to track dependencies on a coordinate
// (e.g. the value engine's consolidation cache).
func (c Coord) Key() string {
	return c.key()
}

// key renders a coordinate to a comparable map key. Coordinates are
// small fixed-length int tuples, so a delimited decimal string is both
// cheap to build and collision-free (element ids are non-negative).
func (c Coord) key() string {
	if len(c) == 0 {
		return ""
	}
	// One byte buffer, sized for about seven bytes per element, serves
	// every width; append grows it for wider cubes or longer ids.
	buf := make([]byte, 0, len(c)*7)
	for i, id := range c {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, int64(id), 10)
	}
	return string(buf)
}

// Clone returns an independent copy of c.
func (c Coord) Clone() Coord {
	return c.clone()
}

func (c Coord) clone() Coord {
	out := make(Coord, len(c))
	copy(out, c)
	return out
}

// hasPrefix reports whether c's leading elements equal prefix, position
// by position (prefix[i] == -1 means "any element at that position").
func (c Coord) hasPrefix(prefix Coord) bool {
	if len(prefix) > len(c) {
		return false
	}
	for i, want := range prefix {
		if want == -1 {
			continue
		}
		if c[i] != want {
			return false
		}
	}
	return true
}
