package rules

import "molap.evalgo.org/cube"

// Marker records that writes matching SourceArea in SourceCubeID should
// dirty TargetArea in TargetCubeID (spec §4.5 "Markers").
type Marker struct {
	RuleID       int
	SourceCubeID int
	SourceArea   Area
	TargetCubeID int
	TargetArea   Area
}

// deriveMarkers walks a rule's expression tree and builds one marker per
// distinct cube referenced by a CellRef, whose source predicate is the
// intersection of every CellRef's per-position constraint against that
// cube: a dimension position is fixed in the predicate only if every
// CellRef addressing that cube fixes the same element there; any Var
// reference (which tracks the rule's own varying target element) widens
// that position to "any", since a write to any base element the rule
// depends on could change the evaluated result.
func deriveMarkers(rule *Rule) []Marker {
	refs := make(map[int][]CellRef)
	collectRefs(rule.Expr, refs)

	markers := make([]Marker, 0, len(refs))
	for cubeID, crefs := range refs {
		width := len(crefs[0].Coord)
		area := make(Area, width)
		for pos := 0; pos < width; pos++ {
			fixedID, consistent := -1, true
			for _, cr := range crefs {
				er := cr.Coord[pos]
				if !er.Fixed {
					consistent = false
					break
				}
				if fixedID == -1 {
					fixedID = er.ID
				} else if fixedID != er.ID {
					consistent = false
					break
				}
			}
			if consistent && fixedID != -1 {
				area[pos] = []int{fixedID}
			} else {
				area[pos] = nil
			}
		}
		markers = append(markers, Marker{
			RuleID:       rule.ID,
			SourceCubeID: cubeID,
			SourceArea:   area,
			TargetCubeID: rule.CubeID,
			TargetArea:   rule.Area,
		})
	}
	return markers
}

func collectRefs(e Expr, out map[int][]CellRef) {
	switch n := e.(type) {
	case CellRef:
		out[n.CubeID] = append(out[n.CubeID], n)
	case BinOp:
		collectRefs(n.Left, out)
		collectRefs(n.Right, out)
	case If:
		collectRefs(n.Cond, out)
		collectRefs(n.Then, out)
		collectRefs(n.Else, out)
	case Func:
		for _, a := range n.Args {
			collectRefs(a, out)
		}
	}
}

func (m Marker) sourceMatches(coord cube.Coord) bool {
	return m.SourceArea.matches(coord)
}
