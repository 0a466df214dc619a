// Package rules implements the rule & marker engine (spec §4.5,
// component E): a small compiled expression language over cube cells,
// memoized per (rule, coordinate), plus marker derivation and write
// propagation across cubes. Grounded on the teacher's interface-driven
// service pattern (auth/auth.go's AuthService) for the Expr/evaluator
// split, and on valueengine for the underlying cell-access chain it sits
// above.
package rules

import (
	"molap.evalgo.org/cube"
	"molap.evalgo.org/molaperr"
)

// Value is the typed result of evaluating an expression or reading a cell.
type Value struct {
	Numeric  float64
	String   string
	IsString bool
}

func numVal(n float64) Value { return Value{Numeric: n} }
func strVal(s string) Value  { return Value{String: s, IsString: true} }

// Expr is one node of a compiled rule expression.
type Expr interface {
	Eval(ctx *evalCtx) (Value, error)
}

// NumberLit is a numeric constant.
type NumberLit struct{ Value float64 }

func (n NumberLit) Eval(*evalCtx) (Value, error) { return numVal(n.Value), nil }

// StringLit is a string constant.
type StringLit struct{ Value string }

func (s StringLit) Eval(*evalCtx) (Value, error) { return strVal(s.Value), nil }

// BinOp is a two-operand arithmetic or comparison operator.
type BinOp struct {
	Op    string // "+","-","*","/","<","<=",">",">=","==","!="
	Left  Expr
	Right Expr
}

func (b BinOp) Eval(ctx *evalCtx) (Value, error) {
	l, err := b.Left.Eval(ctx)
	if err != nil {
		return Value{}, err
	}
	r, err := b.Right.Eval(ctx)
	if err != nil {
		return Value{}, err
	}
	switch b.Op {
	case "+":
		return numVal(l.Numeric + r.Numeric), nil
	case "-":
		return numVal(l.Numeric - r.Numeric), nil
	case "*":
		return numVal(l.Numeric * r.Numeric), nil
	case "/":
		if r.Numeric == 0 {
			return numVal(0), nil
		}
		return numVal(l.Numeric / r.Numeric), nil
	case "<":
		return boolVal(l.Numeric < r.Numeric), nil
	case "<=":
		return boolVal(l.Numeric <= r.Numeric), nil
	case ">":
		return boolVal(l.Numeric > r.Numeric), nil
	case ">=":
		return boolVal(l.Numeric >= r.Numeric), nil
	case "==":
		if l.IsString || r.IsString {
			return boolVal(l.String == r.String), nil
		}
		return boolVal(l.Numeric == r.Numeric), nil
	case "!=":
		if l.IsString || r.IsString {
			return boolVal(l.String != r.String), nil
		}
		return boolVal(l.Numeric != r.Numeric), nil
	default:
		return Value{}, molaperr.Internal("unknown operator %q", b.Op)
	}
}

func boolVal(b bool) Value {
	if b {
		return numVal(1)
	}
	return numVal(0)
}

// If evaluates Cond; a nonzero numeric result selects Then, else Else.
type If struct {
	Cond Expr
	Then Expr
	Else Expr
}

func (f If) Eval(ctx *evalCtx) (Value, error) {
	c, err := f.Cond.Eval(ctx)
	if err != nil {
		return Value{}, err
	}
	if c.Numeric != 0 {
		return f.Then.Eval(ctx)
	}
	return f.Else.Eval(ctx)
}

// ElemRef selects one coordinate element for a CellRef: either a fixed
// element id, or a reference to the position in the rule's own target
// coordinate ("the element this rule is currently being evaluated for
// along dimension Pos").
type ElemRef struct {
	Fixed bool
	ID    int
	Pos   int
}

// Fixed builds an ElemRef that always resolves to id.
func Fixed(id int) ElemRef { return ElemRef{Fixed: true, ID: id} }

// Var builds an ElemRef that copies the target coordinate's element at pos.
func Var(pos int) ElemRef { return ElemRef{Fixed: false, Pos: pos} }

func (r ElemRef) resolve(target cube.Coord) (int, error) {
	if r.Fixed {
		return r.ID, nil
	}
	if r.Pos < 0 || r.Pos >= len(target) {
		return 0, molaperr.Internal("rule variable reference position %d out of range", r.Pos)
	}
	return target[r.Pos], nil
}

// CellRef reads another cell, denoted by a fixed-or-variable coordinate in
// some cube (possibly the rule's own cube).
type CellRef struct {
	CubeID int
	Coord  []ElemRef
}

func (c CellRef) resolveCoord(target cube.Coord) (cube.Coord, error) {
	out := make(cube.Coord, len(c.Coord))
	for i, r := range c.Coord {
		id, err := r.resolve(target)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

func (c CellRef) Eval(ctx *evalCtx) (Value, error) {
	coord, err := c.resolveCoord(ctx.target)
	if err != nil {
		return Value{}, err
	}
	v, err := ctx.engine.readCell(c.CubeID, coord, ctx.history)
	if err != nil {
		return Value{}, err
	}
	return v.Value, nil
}

// Func calls a named builtin over its evaluated arguments (e.g. "min",
// "max", "avg"). Unknown names fail at evaluation with an Internal error.
type Func struct {
	Name string
	Args []Expr
}

func (f Func) Eval(ctx *evalCtx) (Value, error) {
	fn, ok := builtins[f.Name]
	if !ok {
		return Value{}, molaperr.Internal("unknown rule function %q", f.Name)
	}
	args := make([]float64, len(f.Args))
	for i, a := range f.Args {
		v, err := a.Eval(ctx)
		if err != nil {
			return Value{}, err
		}
		args[i] = v.Numeric
	}
	return numVal(fn(args)), nil
}

var builtins = map[string]func([]float64) float64{
	"min": func(a []float64) float64 {
		if len(a) == 0 {
			return 0
		}
		m := a[0]
		for _, v := range a[1:] {
			if v < m {
				m = v
			}
		}
		return m
	},
	"max": func(a []float64) float64 {
		if len(a) == 0 {
			return 0
		}
		m := a[0]
		for _, v := range a[1:] {
			if v > m {
				m = v
			}
		}
		return m
	},
	"avg": func(a []float64) float64 {
		if len(a) == 0 {
			return 0
		}
		sum := 0.0
		for _, v := range a {
			sum += v
		}
		return sum / float64(len(a))
	},
	"sum": func(a []float64) float64 {
		sum := 0.0
		for _, v := range a {
			sum += v
		}
		return sum
	},
}
