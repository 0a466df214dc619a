package dimension

// derivedCaches holds everything recomputed lazily after a structural
// edit: level/indent/depth (spec §4.1 "Dimension"), the topological order
// of consolidated elements, the base-element expansion per consolidated
// element, and the string-consolidation flag.
type derivedCaches struct {
	valid    bool
	level    map[int]int
	indent   map[int]int
	depth    map[int]int
	maxLevel int
	maxIndent int
	maxDepth int
	topo     []int
	base     map[int][]BaseWeight
	strCons  map[int]bool
}

func (c *derivedCaches) invalidate() {
	c.valid = false
}

// ensure rebuilds every derived cache if the dimension changed since the
// last read. Implementers may compute topological order by repeated
// leaf-removal (Kahn); tie order is unspecified but stable within a run,
// which repeated-leaf-removal over the stable `order` slice gives us.
func (d *Dimension) ensure() {
	if d.caches.valid {
		return
	}
	c := &d.caches
	c.level = make(map[int]int)
	c.indent = make(map[int]int)
	c.depth = make(map[int]int)
	c.base = make(map[int][]BaseWeight)
	c.strCons = make(map[int]bool)
	c.maxLevel, c.maxIndent, c.maxDepth = 0, 0, 0

	for _, id := range d.order {
		c.level[id] = d.computeLevel(id, make(map[int]bool))
		if c.level[id] > c.maxLevel {
			c.maxLevel = c.level[id]
		}
	}
	for _, id := range d.order {
		c.indent[id] = d.computeIndent(id, make(map[int]bool))
		if c.indent[id] > c.maxIndent {
			c.maxIndent = c.indent[id]
		}
	}
	for _, id := range d.order {
		c.depth[id] = d.computeDepth(id, make(map[int]bool))
		if c.depth[id] > c.maxDepth {
			c.maxDepth = c.depth[id]
		}
	}
	c.topo = d.kahnOrder()
	for _, id := range d.order {
		if d.byID[id].Kind == KindConsolidated {
			weights := make(map[int]float64)
			strCons := d.expandBase(id, 1.0, weights, make(map[int]bool))
			out := make([]BaseWeight, 0, len(weights))
			for bid, w := range weights {
				out = append(out, BaseWeight{ID: bid, Weight: w})
			}
			c.base[id] = out
			c.strCons[id] = strCons
		}
	}
	c.valid = true
}

func (d *Dimension) computeLevel(id int, visiting map[int]bool) int {
	if visiting[id] {
		return 0
	}
	visiting[id] = true
	defer delete(visiting, id)
	el := d.byID[id]
	if len(el.Children) == 0 {
		return 0
	}
	max := 0
	for _, c := range el.Children {
		lvl := 1 + d.computeLevel(c.ID, visiting)
		if lvl > max {
			max = lvl
		}
	}
	return max
}

func (d *Dimension) computeIndent(id int, visiting map[int]bool) int {
	if visiting[id] {
		return 0
	}
	visiting[id] = true
	el := d.byID[id]
	parents := el.Parents()
	if len(parents) == 0 {
		return 0
	}
	return 1 + d.computeIndent(parents[0], visiting)
}

func (d *Dimension) computeDepth(id int, visiting map[int]bool) int {
	if visiting[id] {
		return 0
	}
	visiting[id] = true
	defer delete(visiting, id)
	el := d.byID[id]
	parents := el.Parents()
	if len(parents) == 0 {
		return 0
	}
	max := 0
	for _, p := range parents {
		dep := 1 + d.computeDepth(p, visiting)
		if dep > max {
			max = dep
		}
	}
	return max
}

// kahnOrder computes a topological order over consolidated elements only,
// by repeated removal of consolidated elements whose children are all
// already emitted (leaves of the consolidation DAG come first).
func (d *Dimension) kahnOrder() []int {
	remaining := make(map[int]bool)
	for _, id := range d.order {
		if d.byID[id].Kind == KindConsolidated {
			remaining[id] = true
		}
	}
	emitted := make(map[int]bool)
	var out []int
	for len(remaining) > 0 {
		progressed := false
		for _, id := range d.order {
			if !remaining[id] {
				continue
			}
			ready := true
			for _, c := range d.byID[id].Children {
				if remaining[c.ID] && !emitted[c.ID] {
					ready = false
					break
				}
			}
			if ready {
				out = append(out, id)
				emitted[id] = true
				delete(remaining, id)
				progressed = true
			}
		}
		if !progressed {
			// I1 guarantees no cycle; this is unreachable in practice.
			for id := range remaining {
				out = append(out, id)
				delete(remaining, id)
			}
		}
	}
	return out
}

// expandBase walks the consolidation tree from id, accumulating the
// multiplicative weight along each path and merging contributions to the
// same base element by summation. Returns whether any reached element is
// string-typed (making id string-consolidated).
func (d *Dimension) expandBase(id int, weight float64, acc map[int]float64, visiting map[int]bool) bool {
	if visiting[id] {
		return false
	}
	visiting[id] = true
	defer delete(visiting, id)
	el := d.byID[id]
	if el.Kind != KindConsolidated {
		acc[id] += weight
		return el.Kind == KindString
	}
	stringValued := false
	for _, c := range el.Children {
		if d.expandBase(c.ID, weight*c.Weight, acc, visiting) {
			stringValued = true
		}
	}
	return stringValued
}

// MaxLevel is the longest child chain from leaves, across the dimension.
func (d *Dimension) MaxLevel() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	return d.caches.maxLevel
}

// MaxIndent is the greatest depth via first-parent chains.
func (d *Dimension) MaxIndent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	return d.caches.maxIndent
}

// MaxDepth is the longest path to any root, across the dimension.
func (d *Dimension) MaxDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	return d.caches.maxDepth
}

// TopoOrder returns consolidated elements in dependency order (children
// before parents).
func (d *Dimension) TopoOrder() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure()
	out := make([]int, len(d.caches.topo))
	copy(out, d.caches.topo)
	return out
}

// BaseElements returns the weighted base-element expansion of id (I4). If
// id is already a base element, it expands to itself with weight 1.
func (d *Dimension) BaseElements(id int) []BaseWeight {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.byID[id]
	if !ok {
		return nil
	}
	if el.Kind != KindConsolidated {
		return []BaseWeight{{ID: id, Weight: 1}}
	}
	d.ensure()
	out := make([]BaseWeight, len(d.caches.base[id]))
	copy(out, d.caches.base[id])
	return out
}

// IsStringConsolidated reports whether any descendant through the
// consolidation tree of id is string-typed, making reads at coordinates
// that fix id "string" paths (spec §4.4).
func (d *Dimension) IsStringConsolidated(id int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.byID[id]
	if !ok || el.Kind != KindConsolidated {
		return false
	}
	d.ensure()
	return d.caches.strCons[id]
}
