package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBumpElementEditPropagatesToDatabaseAndServer(t *testing.T) {
	srv := NewServerCounter()
	b := NewBus(srv)
	b.BumpElementEdit(5)

	assert.EqualValues(t, 1, b.Dimension(5))
	assert.EqualValues(t, 1, b.Database())
	assert.EqualValues(t, 1, b.Server())
	assert.EqualValues(t, 0, b.Cube(5))
}

func TestBumpCellEditPropagatesToDatabaseServerAndClientCache(t *testing.T) {
	srv := NewServerCounter()
	b := NewBus(srv)
	b.BumpCellEdit(7)

	assert.EqualValues(t, 1, b.Cube(7))
	assert.EqualValues(t, 1, b.Database())
	assert.EqualValues(t, 1, b.Server())
	assert.EqualValues(t, 1, b.ClientCache(7))
	assert.EqualValues(t, 0, b.Dimension(7))
}

func TestServerCounterSharedAcrossDatabases(t *testing.T) {
	srv := NewServerCounter()
	b1 := NewBus(srv)
	b2 := NewBus(srv)

	b1.BumpElementEdit(1)
	b2.BumpCellEdit(1)

	assert.EqualValues(t, 2, b1.Server())
	assert.EqualValues(t, 2, b2.Server())
	assert.EqualValues(t, 1, b1.Database())
	assert.EqualValues(t, 1, b2.Database(), "database counters are per-bus")
}

func TestCheckRejectsOnServerMismatch(t *testing.T) {
	srv := NewServerCounter()
	b := NewBus(srv)
	b.BumpElementEdit(1)

	stale := uint32(0)
	err := b.Check(Seen{Server: &stale})
	assert.Error(t, err)
}

func TestCheckPassesWithCurrentTokens(t *testing.T) {
	srv := NewServerCounter()
	b := NewBus(srv)
	b.BumpCellEdit(3)

	current := b.Server()
	require.NoError(t, b.Check(Seen{
		Server: &current,
		Cube:   map[int]uint32{3: b.Cube(3)},
	}))
}

func TestCheckIgnoresUnsetScopes(t *testing.T) {
	srv := NewServerCounter()
	b := NewBus(srv)
	b.BumpElementEdit(1)
	require.NoError(t, b.Check(Seen{}))
}
