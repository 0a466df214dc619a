// Package token implements the token/invalidation bus (spec §4.8,
// component H): a monotone u32 counter per scope, bumped along the
// explicit parent-propagation chains on every mutation, and compared
// against client-submitted values to reject stale requests.
package token

import (
	"sync"
	"sync/atomic"

	"molap.evalgo.org/molaperr"
)

// Bus holds the counters of one database. Dimension, cube and
// client-cache counters are keyed by id (client-cache by cube id) since a
// database hosts many of each; the database counter is a single value,
// and the server-scope counter is shared by every database's Bus.
type Bus struct {
	server *uint32 // shared across every database on the server

	database    uint32
	dimensions  sync.Map // int -> *uint32
	cubes       sync.Map // int -> *uint32
	clientCache sync.Map // int (cubeID) -> *uint32
}

// NewServerCounter creates the single server-scope counter to be shared
// by every database's Bus.
func NewServerCounter() *uint32 {
	var v uint32
	return &v
}

// NewBus creates a database's token bus, sharing serverCounter with every
// other database on the same server.
func NewBus(serverCounter *uint32) *Bus {
	return &Bus{server: serverCounter}
}

func counterFor(m *sync.Map, id int) *uint32 {
	if v, ok := m.Load(id); ok {
		return v.(*uint32)
	}
	v := new(uint32)
	actual, _ := m.LoadOrStore(id, v)
	return actual.(*uint32)
}

// BumpElementEdit increments dimension + database + server (spec §4.8
// "element edit -> dimension + database + server").
func (b *Bus) BumpElementEdit(dimensionID int) {
	atomic.AddUint32(counterFor(&b.dimensions, dimensionID), 1)
	atomic.AddUint32(&b.database, 1)
	atomic.AddUint32(b.server, 1)
}

// BumpCellEdit increments cube + database + server + cube-client-cache
// (spec §4.8 "cell edit -> cube + database + server + cube-client-cache").
func (b *Bus) BumpCellEdit(cubeID int) {
	atomic.AddUint32(counterFor(&b.cubes, cubeID), 1)
	atomic.AddUint32(&b.database, 1)
	atomic.AddUint32(b.server, 1)
	atomic.AddUint32(counterFor(&b.clientCache, cubeID), 1)
}

// Server returns the current server-scope token.
func (b *Bus) Server() uint32 { return atomic.LoadUint32(b.server) }

// Database returns the current database-scope token.
func (b *Bus) Database() uint32 { return atomic.LoadUint32(&b.database) }

// Dimension returns dimensionID's current token.
func (b *Bus) Dimension(dimensionID int) uint32 {
	return atomic.LoadUint32(counterFor(&b.dimensions, dimensionID))
}

// Cube returns cubeID's current token.
func (b *Bus) Cube(cubeID int) uint32 {
	return atomic.LoadUint32(counterFor(&b.cubes, cubeID))
}

// ClientCache returns cubeID's current client-cache token.
func (b *Bus) ClientCache(cubeID int) uint32 {
	return atomic.LoadUint32(counterFor(&b.clientCache, cubeID))
}

// Seen is the set of tokens a client last observed, submitted back on its
// next request. A nil field means "not included" for that scope; Check
// skips fields the caller didn't set.
type Seen struct {
	Server      *uint32
	Database    *uint32
	Dimension   map[int]uint32
	Cube        map[int]uint32
	ClientCache map[int]uint32
}

// Check rejects the request with the first mismatching <Scope>TokenOutdated
// error, in scope order server, database, dimension, cube, client-cache.
func (b *Bus) Check(seen Seen) error {
	if seen.Server != nil && *seen.Server != b.Server() {
		return molaperr.TokenOutdated("server")
	}
	if seen.Database != nil && *seen.Database != b.Database() {
		return molaperr.TokenOutdated("database")
	}
	for id, want := range seen.Dimension {
		if want != b.Dimension(id) {
			return molaperr.TokenOutdated("dimension")
		}
	}
	for id, want := range seen.Cube {
		if want != b.Cube(id) {
			return molaperr.TokenOutdated("cube")
		}
	}
	for id, want := range seen.ClientCache {
		if want != b.ClientCache(id) {
			return molaperr.TokenOutdated("clientcache")
		}
	}
	return nil
}
