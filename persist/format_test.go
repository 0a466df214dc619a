package persist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fp := FilePair{DataPath: filepath.Join(dir, "database.csv")}

	snap := DatabaseSnapshot{
		Dimensions: []DimensionRecord{
			{
				ID: 0, Name: "Products", Subtype: 0, Flags: "111",
				Elements: []ElementRecord{
					{ID: 0, Name: "p1", Position: 0, Kind: 1},
					{ID: 1, Name: "p2", Position: 1, Kind: 1},
					{ID: 2, Name: "pAll", Position: 2, Kind: 4, Children: []ChildRecord{{ID: 0, Weight: 1}, {ID: 1, Weight: 1}}},
				},
			},
		},
		Cubes: []CubeRecord{
			{ID: 0, Name: "Sales", DimensionIDs: []int{0}, Deletable: true},
		},
	}

	require.NoError(t, WriteDatabase(fp, snap))

	got, ok, err := ReadDatabase(fp)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Dimensions, 1)
	assert.Equal(t, "Products", got.Dimensions[0].Name)
	require.Len(t, got.Dimensions[0].Elements, 3)
	assert.Equal(t, []ChildRecord{{ID: 0, Weight: 1}, {ID: 1, Weight: 1}}, got.Dimensions[0].Elements[2].Children)
	require.Len(t, got.Cubes, 1)
	assert.Equal(t, "Sales", got.Cubes[0].Name)
	assert.True(t, got.Cubes[0].Deletable)
}

func TestDatabaseSnapshotMultipleDimensions(t *testing.T) {
	dir := t.TempDir()
	fp := FilePair{DataPath: filepath.Join(dir, "database.csv")}

	snap := DatabaseSnapshot{
		Dimensions: []DimensionRecord{
			{ID: 0, Name: "Products", Flags: "111"},
			{ID: 1, Name: "Years", Flags: "111", Elements: []ElementRecord{{ID: 0, Name: "2024", Kind: 1}}},
		},
	}
	require.NoError(t, WriteDatabase(fp, snap))

	got, ok, err := ReadDatabase(fp)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Dimensions, 2)
	assert.Equal(t, "Years", got.Dimensions[1].Name)
	assert.Len(t, got.Dimensions[1].Elements, 1)
	assert.Empty(t, got.Dimensions[0].Elements)
}

func TestReadDatabaseOnMissingFileReportsNotFound(t *testing.T) {
	dir := t.TempDir()
	fp := FilePair{DataPath: filepath.Join(dir, "database.csv")}
	_, ok, err := ReadDatabase(fp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCubeDataRoundTripWithGroupRemap(t *testing.T) {
	dir := t.TempDir()
	fp := FilePair{DataPath: filepath.Join(dir, "database_CUBE_3.csv")}

	data := CubeData{
		ID: 3, Name: "#_GROUP_CUBE_DATA", DimensionIDs: []int{0, 1},
		Cells: []CellRecord{
			{Coord: []int{0, 0}, Numeric: 42},
			{Coord: []int{0, 1}, Text: "W", IsString: true},
		},
		GroupRemap: map[int]string{5: "admins"},
	}
	require.NoError(t, WriteCube(fp, data))

	got, ok, err := ReadCube(fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "#_GROUP_CUBE_DATA", got.Name)
	require.Len(t, got.Cells, 2)
	assert.Equal(t, "admins", got.GroupRemap[5])

	var numeric, str *CellRecord
	for i := range got.Cells {
		if got.Cells[i].IsString {
			str = &got.Cells[i]
		} else {
			numeric = &got.Cells[i]
		}
	}
	require.NotNil(t, numeric)
	require.NotNil(t, str)
	assert.Equal(t, float64(42), numeric.Numeric)
	assert.Equal(t, "W", str.Text)
}

func TestCubeDataWithoutRemapOmitsSection(t *testing.T) {
	dir := t.TempDir()
	fp := FilePair{DataPath: filepath.Join(dir, "database_CUBE_0.csv")}

	require.NoError(t, WriteCube(fp, CubeData{ID: 0, Name: "Sales", DimensionIDs: []int{0, 1}}))

	got, ok, err := ReadCube(fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, got.GroupRemap)
	assert.Empty(t, got.Cells)
}
