package cube

import "sync"

// Cube is a database-local cube: an ordered list of dimension ids plus
// the sparse cell store (spec §3 "Cube"). Rule sets, markers, locks,
// tokens, and journals are owned by the rules/lock/token/persist
// packages and wired together by the server package — keeping them out
// of Cube avoids an import cycle and lets each concern be tested alone.
type Cube struct {
	mu sync.RWMutex

	ID           int
	Name         string
	DimensionIDs []int

	Store *Store

	Deletable bool
}

// New creates an empty cube over the given dimensions in fixed order.
func New(id int, name string, dimensionIDs []int) *Cube {
	return &Cube{
		ID:           id,
		Name:         name,
		DimensionIDs: append([]int(nil), dimensionIDs...),
		Store:        NewStore(),
		Deletable:    true,
	}
}

// Rename changes the cube's display name.
func (c *Cube) Rename(newName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Name = newName
}

// DimPosition returns the 0-based position of dimensionID in the cube's
// dimension list, or -1 if the cube does not use that dimension.
func (c *Cube) DimPosition(dimensionID int) int {
	for i, id := range c.DimensionIDs {
		if id == dimensionID {
			return i
		}
	}
	return -1
}
