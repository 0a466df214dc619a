package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"molap.evalgo.org/cube"
	"molap.evalgo.org/dimension"
	"molap.evalgo.org/valueengine"
)

type dimSource struct {
	dims map[int]*dimension.Dimension
}

func (d *dimSource) Dimension(id int) (*dimension.Dimension, bool) {
	v, ok := d.dims[id]
	return v, ok
}

func fixture(t *testing.T) (*valueengine.Engine, *Engine, *cube.Cube, int, int) {
	t.Helper()
	products := dimension.New(0, "Products", dimension.SubtypeNormal, nil)
	p1, _ := products.Add("p1", dimension.KindNumeric)
	p2, _ := products.Add("p2", dimension.KindNumeric)
	years := dimension.New(1, "Years", dimension.SubtypeNormal, nil)
	y1, _ := years.Add("y1", dimension.KindNumeric)
	_ = y1

	dims := &dimSource{dims: map[int]*dimension.Dimension{0: products, 1: years}}
	c := cube.New(0, "Sales", []int{0, 1})

	re := New(nil) // ve wired below once constructed
	ve := valueengine.New(dims, re, re)
	re.ve = ve
	re.RegisterCube(c)

	return ve, re, c, p1, p2
}

func TestRuleOverridesBaseValue(t *testing.T) {
	ve, re, c, p1, _ := fixture(t)
	require.NoError(t, ve.SetNumeric(c, cube.Coord{p1, 0}, 5, valueengine.SplashDisabled, false))

	rule := re.Create(c.ID, Area{{p1}, nil}, NumberLit{Value: 42}, "p1 := 42")
	require.NoError(t, re.Activate(rule.ID))

	v, err := ve.Get(c, cube.Coord{p1, 0})
	require.NoError(t, err)
	assert.Equal(t, 42.0, v.Numeric)
	assert.True(t, v.FromRule)
}

func TestInactiveRuleDoesNotApply(t *testing.T) {
	ve, re, c, p1, _ := fixture(t)
	rule := re.Create(c.ID, Area{{p1}, nil}, NumberLit{Value: 42}, "p1 := 42")
	v, err := ve.Get(c, cube.Coord{p1, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.Numeric)
	_ = rule
}

func TestRuleCellRefReadsAnotherCoordinate(t *testing.T) {
	ve, re, c, p1, p2 := fixture(t)
	require.NoError(t, ve.SetNumeric(c, cube.Coord{p1, 0}, 10, valueengine.SplashDisabled, false))

	expr := BinOp{
		Op:   "*",
		Left: CellRef{CubeID: c.ID, Coord: []ElemRef{Fixed(p1), Var(1)}},
		Right: NumberLit{Value: 2},
	}
	rule := re.Create(c.ID, Area{{p2}, nil}, expr, "p2 := p1 * 2")
	require.NoError(t, re.Activate(rule.ID))

	v, err := ve.Get(c, cube.Coord{p2, 0})
	require.NoError(t, err)
	assert.Equal(t, 20.0, v.Numeric)
}

func TestSelfReferenceCycleFallsBackInsteadOfHanging(t *testing.T) {
	ve, re, c, p1, _ := fixture(t)
	expr := CellRef{CubeID: c.ID, Coord: []ElemRef{Var(0), Var(1)}}
	rule := re.Create(c.ID, Area{{p1}, nil}, expr, "p1 := p1")
	require.NoError(t, re.Activate(rule.ID))

	v, err := ve.Get(c, cube.Coord{p1, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.Numeric, "a rule that references its own coordinate must break the cycle and fall back to the base cell")
}

func TestDeactivateClearsCacheAndMarkers(t *testing.T) {
	ve, re, c, p1, p2 := fixture(t)
	expr := CellRef{CubeID: c.ID, Coord: []ElemRef{Fixed(p1), Var(1)}}
	rule := re.Create(c.ID, Area{{p2}, nil}, expr, "p2 := p1")
	require.NoError(t, re.Activate(rule.ID))
	require.NoError(t, ve.SetNumeric(c, cube.Coord{p1, 0}, 1, valueengine.SplashDisabled, false))

	v1, _ := ve.Get(c, cube.Coord{p2, 0})
	assert.Equal(t, 1.0, v1.Numeric)

	require.NoError(t, re.Deactivate(rule.ID))
	v2, err := ve.Get(c, cube.Coord{p2, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, v2.Numeric, "deactivated rule must stop overriding the base cell")
}

func TestMarkerDirtiesTargetCubeOnSourceWrite(t *testing.T) {
	ve, re, c, p1, p2 := fixture(t)
	expr := CellRef{CubeID: c.ID, Coord: []ElemRef{Fixed(p1), Var(1)}}
	rule := re.Create(c.ID, Area{{p2}, nil}, expr, "p2 := p1")
	require.NoError(t, re.Activate(rule.ID))

	require.NoError(t, ve.SetNumeric(c, cube.Coord{p1, 0}, 7, valueengine.SplashDisabled, false))
	assert.Contains(t, re.PendingCubes(), c.ID)

	re.TriggerMarkerCalculation([]int{c.ID})
	assert.NotContains(t, re.PendingCubes(), c.ID)
}

func TestFuncBuiltinMax(t *testing.T) {
	ve, re, c, p1, p2 := fixture(t)
	require.NoError(t, ve.SetNumeric(c, cube.Coord{p1, 0}, 3, valueengine.SplashDisabled, false))
	require.NoError(t, ve.SetNumeric(c, cube.Coord{p2, 0}, 9, valueengine.SplashDisabled, false))

	expr := Func{Name: "max", Args: []Expr{
		CellRef{CubeID: c.ID, Coord: []ElemRef{Fixed(p1), Var(1)}},
		CellRef{CubeID: c.ID, Coord: []ElemRef{Fixed(p2), Var(1)}},
	}}
	rule := re.Create(c.ID, Area{{p1}, nil}, expr, "p1 := max(p1,p2)")
	require.NoError(t, re.Activate(rule.ID))

	v, err := ve.Get(c, cube.Coord{p1, 0})
	require.NoError(t, err)
	assert.Equal(t, 9.0, v.Numeric)
}
