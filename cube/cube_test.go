package cube

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSetGetNumeric(t *testing.T) {
	s := NewStore()
	s.SetNumeric(Coord{1, 2, 3}, 42)
	v, ok := s.GetNumeric(Coord{1, 2, 3})
	require.True(t, ok)
	assert.Equal(t, 42.0, v)
	assert.Equal(t, 1, s.SizeFilled())
}

func TestStoreSetNumericClearsString(t *testing.T) {
	s := NewStore()
	s.SetString(Coord{1, 1}, "hello")
	s.SetNumeric(Coord{1, 1}, 1.5)

	_, ok := s.GetString(Coord{1, 1})
	assert.False(t, ok)
	v, ok := s.GetNumeric(Coord{1, 1})
	require.True(t, ok)
	assert.Equal(t, 1.5, v)
}

func TestStoreAddNumericAccumulates(t *testing.T) {
	s := NewStore()
	assert.Equal(t, 5.0, s.AddNumeric(Coord{0, 0}, 5))
	assert.Equal(t, 8.0, s.AddNumeric(Coord{0, 0}, 3))
}

func TestStoreClear(t *testing.T) {
	s := NewStore()
	s.SetNumeric(Coord{1}, 1)
	s.Clear(Coord{1})
	_, ok := s.GetNumeric(Coord{1})
	assert.False(t, ok)
	assert.Equal(t, 0, s.SizeFilled())
}

func TestStorePurgeElementCascade(t *testing.T) {
	s := NewStore()
	s.SetNumeric(Coord{1, 10}, 1)
	s.SetNumeric(Coord{1, 20}, 2)
	s.SetNumeric(Coord{10, 2}, 3)

	s.PurgeElement(1, 10)

	_, ok := s.GetNumeric(Coord{1, 10})
	assert.False(t, ok)
	_, ok = s.GetNumeric(Coord{1, 20})
	assert.True(t, ok)
	_, ok = s.GetNumeric(Coord{10, 2})
	assert.True(t, ok, "purge only applies to the given dimension position")
}

func TestStoreIterFilledPrefix(t *testing.T) {
	s := NewStore()
	s.SetNumeric(Coord{1, 1}, 1)
	s.SetNumeric(Coord{1, 2}, 2)
	s.SetNumeric(Coord{2, 1}, 3)

	var got []Coord
	s.IterFilled(Coord{1}, func(fc FilledCell) bool {
		got = append(got, fc.Coord)
		return true
	})
	assert.Len(t, got, 2)
}

func TestStoreIterFilledEarlyExit(t *testing.T) {
	s := NewStore()
	for i := 0; i < 5; i++ {
		s.SetNumeric(Coord{i}, float64(i))
	}
	count := 0
	s.IterFilled(nil, func(FilledCell) bool {
		count++
		return count < 2
	})
	assert.Equal(t, 2, count)
}

func TestCubeDimPosition(t *testing.T) {
	c := New(0, "Sales", []int{7, 3, 9})
	assert.Equal(t, 0, c.DimPosition(7))
	assert.Equal(t, 2, c.DimPosition(9))
	assert.Equal(t, -1, c.DimPosition(99))
}

func TestCubeRename(t *testing.T) {
	c := New(0, "Sales", []int{1})
	c.Rename("Revenue")
	assert.Equal(t, "Revenue", c.Name)
}
