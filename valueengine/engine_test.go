package valueengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"molap.evalgo.org/cube"
	"molap.evalgo.org/dimension"
)

type fakeDimSource struct {
	dims map[int]*dimension.Dimension
}

func (f *fakeDimSource) Dimension(id int) (*dimension.Dimension, bool) {
	d, ok := f.dims[id]
	return d, ok
}

// salesFixture builds a 2-dimensional cube: Products (p1, p2, pAll
// consolidating p1+p2 with weight 1 each) x Years (y1).
func salesFixture(t *testing.T) (*Engine, *cube.Cube, *dimension.Dimension, int, int, int) {
	t.Helper()
	products := dimension.New(0, "Products", dimension.SubtypeNormal, nil)
	p1, _ := products.Add("p1", dimension.KindNumeric)
	p2, _ := products.Add("p2", dimension.KindNumeric)
	pAll, _ := products.Add("pAll", dimension.KindNumeric)
	require.NoError(t, products.AddChildren(pAll, []dimension.Child{
		{ID: p1, Weight: 1},
		{ID: p2, Weight: 1},
	}))

	years := dimension.New(1, "Years", dimension.SubtypeNormal, nil)
	y1, _ := years.Add("y1", dimension.KindNumeric)

	dims := &fakeDimSource{dims: map[int]*dimension.Dimension{
		0: products,
		1: years,
	}}
	e := New(dims, nil, nil)
	c := cube.New(0, "Sales", []int{0, 1})
	return e, c, products, p1, p2, pAll
}

func TestGetBaseDefaultsToZero(t *testing.T) {
	e, c, _, p1, _, _ := salesFixture(t)
	v, err := e.Get(c, cube.Coord{p1, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.Numeric)
}

func TestSetDisabledThenGetBase(t *testing.T) {
	e, c, _, p1, _, _ := salesFixture(t)
	require.NoError(t, e.SetNumeric(c, cube.Coord{p1, 0}, 10, SplashDisabled, false))
	v, err := e.Get(c, cube.Coord{p1, 0})
	require.NoError(t, err)
	assert.Equal(t, 10.0, v.Numeric)
}

func TestSetDisabledRejectsConsolidatedCoordinate(t *testing.T) {
	e, c, _, _, _, pAll := salesFixture(t)
	err := e.SetNumeric(c, cube.Coord{pAll, 0}, 10, SplashDisabled, false)
	assert.Error(t, err)
}

func TestAggregationSumsBaseCells(t *testing.T) {
	e, c, _, p1, p2, pAll := salesFixture(t)
	require.NoError(t, e.SetNumeric(c, cube.Coord{p1, 0}, 3, SplashDisabled, false))
	require.NoError(t, e.SetNumeric(c, cube.Coord{p2, 0}, 4, SplashDisabled, false))

	v, err := e.Get(c, cube.Coord{pAll, 0})
	require.NoError(t, err)
	assert.Equal(t, 7.0, v.Numeric)
}

func TestSplashSetBaseConservesAggregate(t *testing.T) {
	e, c, _, p1, p2, pAll := salesFixture(t)
	require.NoError(t, e.SetNumeric(c, cube.Coord{pAll, 0}, 22, SplashSetBase, false))

	agg, err := e.Get(c, cube.Coord{pAll, 0})
	require.NoError(t, err)
	assert.InDelta(t, 22.0, agg.Numeric, 1e-9)

	v1, _ := e.Get(c, cube.Coord{p1, 0})
	v2, _ := e.Get(c, cube.Coord{p2, 0})
	assert.InDelta(t, 22.0, v1.Numeric+v2.Numeric, 1e-9)
}

func TestSplashAddBaseIncreasesAggregateByDelta(t *testing.T) {
	e, c, _, p1, p2, pAll := salesFixture(t)
	require.NoError(t, e.SetNumeric(c, cube.Coord{p1, 0}, 5, SplashDisabled, false))

	before, _ := e.Get(c, cube.Coord{pAll, 0})
	require.NoError(t, e.SetNumeric(c, cube.Coord{pAll, 0}, 10, SplashAddBase, false))
	after, err := e.Get(c, cube.Coord{pAll, 0})
	require.NoError(t, err)

	assert.InDelta(t, before.Numeric+10, after.Numeric, 1e-9)

	v1, _ := e.Get(c, cube.Coord{p1, 0})
	assert.Equal(t, 5.0, v1.Numeric, "nonzero base cell must be left unchanged")
	v2, _ := e.Get(c, cube.Coord{p2, 0})
	assert.Equal(t, 10.0, v2.Numeric, "the only zero base cell absorbs the whole delta")
}

func TestConsolidationCacheInvalidatedOnBaseWrite(t *testing.T) {
	e, c, _, p1, p2, pAll := salesFixture(t)
	require.NoError(t, e.SetNumeric(c, cube.Coord{p1, 0}, 1, SplashDisabled, false))
	require.NoError(t, e.SetNumeric(c, cube.Coord{p2, 0}, 1, SplashDisabled, false))

	first, _ := e.Get(c, cube.Coord{pAll, 0})
	assert.Equal(t, 2.0, first.Numeric)

	require.NoError(t, e.SetNumeric(c, cube.Coord{p1, 0}, 100, SplashDisabled, false))
	second, _ := e.Get(c, cube.Coord{pAll, 0})
	assert.Equal(t, 101.0, second.Numeric)
}

func TestBulkReadVisitsCartesianProduct(t *testing.T) {
	e, c, _, p1, p2, _ := salesFixture(t)
	require.NoError(t, e.SetNumeric(c, cube.Coord{p1, 0}, 1, SplashDisabled, false))
	require.NoError(t, e.SetNumeric(c, cube.Coord{p2, 0}, 2, SplashDisabled, false))

	var seen []cube.Coord
	err := e.BulkRead(c, Area{{p1, p2}, {0}}, false, func(r CellResult) bool {
		seen = append(seen, r.Coord)
		return true
	})
	require.NoError(t, err)
	assert.Len(t, seen, 2)
}

func TestClearAreaRespectsProtect(t *testing.T) {
	e, c, _, p1, _, _ := salesFixture(t)
	require.NoError(t, e.SetNumeric(c, cube.Coord{p1, 0}, 1, SplashDisabled, false))

	err := e.ClearArea(c, Area{{p1}, {0}}, func(cube.Coord) bool { return true })
	assert.Error(t, err)
	v, _ := e.Get(c, cube.Coord{p1, 0})
	assert.Equal(t, 1.0, v.Numeric, "protected clear must not mutate the store")
}

func TestClearAreaRemovesCells(t *testing.T) {
	e, c, _, p1, _, _ := salesFixture(t)
	require.NoError(t, e.SetNumeric(c, cube.Coord{p1, 0}, 1, SplashDisabled, false))

	require.NoError(t, e.ClearArea(c, Area{{p1}, {0}}, nil))
	v, _ := e.Get(c, cube.Coord{p1, 0})
	assert.Equal(t, 0.0, v.Numeric)
}

type fakeRuleEvaluator struct {
	numeric float64
}

func (f *fakeRuleEvaluator) Evaluate(cubeID int, coord cube.Coord) (float64, string, bool, bool) {
	return f.numeric, "", false, true
}

func TestRuleEvaluationShortCircuitsStoreLookup(t *testing.T) {
	products := dimension.New(0, "Products", dimension.SubtypeNormal, nil)
	p1, _ := products.Add("p1", dimension.KindNumeric)
	years := dimension.New(1, "Years", dimension.SubtypeNormal, nil)
	y1, _ := years.Add("y1", dimension.KindNumeric)
	_ = y1
	dims := &fakeDimSource{dims: map[int]*dimension.Dimension{0: products, 1: years}}

	e := New(dims, &fakeRuleEvaluator{numeric: 99}, nil)
	c := cube.New(0, "Sales", []int{0, 1})
	require.NoError(t, e.SetNumeric(c, cube.Coord{p1, 0}, 1, SplashDisabled, false))

	v, err := e.Get(c, cube.Coord{p1, 0})
	require.NoError(t, err)
	assert.Equal(t, 99.0, v.Numeric)
	assert.True(t, v.FromRule)
}
