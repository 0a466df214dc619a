package rules

import "molap.evalgo.org/cube"

// State is a rule's position in the created->active<->inactive->deleted
// lifecycle (spec §4.5).
type State int

const (
	StateCreated State = iota
	StateActive
	StateInactive
	StateDeleted
)

// Area restricts which coordinates a rule applies to: one element-id list
// per cube dimension; an empty list means "any element of that dimension".
type Area [][]int

func (a Area) matches(coord cube.Coord) bool {
	if len(a) != len(coord) {
		return false
	}
	for i, ids := range a {
		if len(ids) == 0 {
			continue
		}
		found := false
		for _, id := range ids {
			if id == coord[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Rule binds an Area of a cube to a compiled expression tree.
type Rule struct {
	ID     int
	CubeID int
	Area   Area
	Expr   Expr
	State  State

	// Definition is the rule's source text, kept only for display/replay;
	// evaluation never re-parses it.
	Definition string
}
