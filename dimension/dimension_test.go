package dimension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndLookup(t *testing.T) {
	d := New(0, "X", SubtypeNormal, nil)
	x1, err := d.Add("x1", KindNumeric)
	require.NoError(t, err)
	x2, err := d.Add("x2", KindNumeric)
	require.NoError(t, err)

	el, ok := d.ElementByName("X1")
	require.True(t, ok)
	assert.Equal(t, x1, el.ID)
	assert.Equal(t, 0, el.Position)

	el2, _ := d.Element(x2)
	assert.Equal(t, 1, el2.Position)

	_, err = d.Add("x1", KindNumeric)
	assert.Error(t, err)
}

func TestConsolidationAndAggregationInputs(t *testing.T) {
	d := New(0, "X", SubtypeNormal, nil)
	x1, _ := d.Add("x1", KindNumeric)
	x2, _ := d.Add("x2", KindNumeric)
	xs, _ := d.Add("xs", KindNumeric)

	require.NoError(t, d.AddChildren(xs, []Child{{ID: x1, Weight: 1.0}, {ID: x2, Weight: 2.0}}))

	base := d.BaseElements(xs)
	sum := map[int]float64{}
	for _, bw := range base {
		sum[bw.ID] = bw.Weight
	}
	assert.Equal(t, 1.0, sum[x1])
	assert.Equal(t, 2.0, sum[x2])

	// parent/child symmetry (invariant)
	el, _ := d.Element(x1)
	assert.Contains(t, el.Parents(), xs)
}

func TestAddChildrenRejectsCycle(t *testing.T) {
	d := New(0, "X", SubtypeNormal, nil)
	a, _ := d.Add("a", KindNumeric)
	b, _ := d.Add("b", KindNumeric)
	require.NoError(t, d.AddChildren(a, []Child{{ID: b, Weight: 1}}))

	err := d.AddChildren(b, []Child{{ID: a, Weight: 1}})
	assert.Error(t, err)
}

func TestDeleteCascadesEdgesNotChildren(t *testing.T) {
	d := New(0, "X", SubtypeNormal, nil)
	a, _ := d.Add("a", KindNumeric)
	b, _ := d.Add("b", KindNumeric)
	require.NoError(t, d.AddChildren(a, []Child{{ID: b, Weight: 1}}))

	require.NoError(t, d.Delete(a))
	_, ok := d.Element(a)
	assert.False(t, ok)

	// b itself must survive; only the edge is gone.
	bel, ok := d.Element(b)
	require.True(t, ok)
	assert.Empty(t, bel.Parents())
}

func TestAddThenRemoveChildrenRestoresState(t *testing.T) {
	d := New(0, "X", SubtypeNormal, nil)
	a, _ := d.Add("a", KindNumeric)
	b, _ := d.Add("b", KindNumeric)
	require.NoError(t, d.AddChildren(a, []Child{{ID: b, Weight: 1}}))
	require.NoError(t, d.RemoveChildren(a))

	ael, _ := d.Element(a)
	assert.Empty(t, ael.Children)
	bel, _ := d.Element(b)
	assert.Empty(t, bel.Parents())
}

func TestPositionsStayDenseAfterDelete(t *testing.T) {
	d := New(0, "X", SubtypeNormal, nil)
	_, _ = d.Add("a", KindNumeric)
	b, _ := d.Add("b", KindNumeric)
	_, _ = d.Add("c", KindNumeric)

	require.NoError(t, d.Delete(b))

	seen := map[int]bool{}
	for _, el := range d.Elements() {
		assert.False(t, seen[el.Position], "duplicate position")
		seen[el.Position] = true
	}
	assert.Len(t, seen, 2)
}

func TestStringConsolidationFlag(t *testing.T) {
	d := New(0, "X", SubtypeNormal, nil)
	n1, _ := d.Add("n1", KindNumeric)
	s1, _ := d.Add("s1", KindString)
	xs, _ := d.Add("xs", KindNumeric)
	require.NoError(t, d.AddChildren(xs, []Child{{ID: n1, Weight: 1}}))
	assert.False(t, d.IsStringConsolidated(xs))

	require.NoError(t, d.AddChildren(xs, []Child{{ID: s1, Weight: 1}}))
	assert.True(t, d.IsStringConsolidated(xs))
}

func TestAttributeDimensionRejectsConsolidated(t *testing.T) {
	d := New(0, "#_ATTR_X", SubtypeAttribute, nil)
	_, err := d.Add("bad", KindConsolidated)
	assert.Error(t, err)
}

func TestRightsDimensionCoercesToString(t *testing.T) {
	d := New(0, "#_GROUP_", SubtypeRights, nil)
	id, err := d.Add("g1", KindNumeric)
	require.NoError(t, err)
	el, _ := d.Element(id)
	assert.Equal(t, KindString, el.Kind)
}
