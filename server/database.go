// Package server wires the per-concern packages (dimension, cube,
// valueengine, rules, lock, token, rights, session, persist, worker,
// security) into the two orchestration objects a running instance
// actually needs: Database, one per loaded database, and Server, the
// top-level registry of databases plus the shared login/session state.
// Grounded on the teacher's statemanager.Manager (owning-registry-plus-
// hooks shape) and on original_source/molap/server/Source/Olap/Server.cpp
// for which concerns live at the server level versus the database level.
package server

import (
	"fmt"
	"path/filepath"
	"sync"

	"molap.evalgo.org/cube"
	"molap.evalgo.org/dimension"
	"molap.evalgo.org/lock"
	"molap.evalgo.org/logging"
	"molap.evalgo.org/molaperr"
	"molap.evalgo.org/persist"
	"molap.evalgo.org/rights"
	"molap.evalgo.org/rules"
	"molap.evalgo.org/token"
	"molap.evalgo.org/valueengine"
)

var log = logging.For("server")

// elementKey is a (dimension, element) pair, used as a map key for
// per-database rights grants.
type elementKey struct {
	dimensionID, elementID int
}

// dbRights implements rights.DataSource for one Database: cube and
// dimension-element grants live here because they are database-local
// objects (spec §4.9 "per-database cube and dimension-element rights"),
// while group/role definitions are server-wide (see Security).
type dbRights struct {
	db *Database

	mu            sync.RWMutex
	cubeGrants    map[string]map[int]rights.Right
	elementGrants map[string]map[elementKey]rights.Right
}

func newDBRights(db *Database) *dbRights {
	return &dbRights{
		db:            db,
		cubeGrants:    make(map[string]map[int]rights.Right),
		elementGrants: make(map[string]map[elementKey]rights.Right),
	}
}

// GrantCube records group's right on cubeID.
func (r *dbRights) GrantCube(group string, cubeID int, right rights.Right) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cubeGrants[group] == nil {
		r.cubeGrants[group] = make(map[int]rights.Right)
	}
	r.cubeGrants[group][cubeID] = right
}

// GrantElement records group's right on a dimension element.
func (r *dbRights) GrantElement(group string, dimensionID, elementID int, right rights.Right) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.elementGrants[group] == nil {
		r.elementGrants[group] = make(map[elementKey]rights.Right)
	}
	r.elementGrants[group][elementKey{dimensionID, elementID}] = right
}

// CubeDataRight implements rights.DataSource.
func (r *dbRights) CubeDataRight(group string, cubeID int) (rights.Right, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.cubeGrants[group]
	if !ok {
		return rights.RightNone, false
	}
	right, ok := m[cubeID]
	return right, ok
}

// DimensionElementRight implements rights.DataSource.
func (r *dbRights) DimensionElementRight(group string, dimensionID, elementID int) (rights.Right, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.elementGrants[group]
	if !ok {
		return rights.RightNone, false
	}
	right, ok := m[elementKey{dimensionID, elementID}]
	return right, ok
}

// ElementParents implements rights.DataSource by delegating to the live
// dimension graph owned by this database.
func (r *dbRights) ElementParents(dimensionID, elementID int) []int {
	d, ok := r.db.Dims.Get(dimensionID)
	if !ok {
		return nil
	}
	el, ok := d.Element(elementID)
	if !ok {
		return nil
	}
	return el.Parents()
}

// tokenSource adapts token.Bus's Database() method to rights.TokenSource.
type tokenSource struct{ bus *token.Bus }

func (t tokenSource) DatabaseToken() uint32 { return t.bus.Database() }

// Database owns every component that exists once per loaded database:
// its dimensions, cubes, value/rule engines, lock manager, token bus and
// rights engine, plus the on-disk snapshot/journal pair for itself and
// each of its cubes (spec §4.7).
type Database struct {
	ID   int
	Name string

	Dims *dimension.Registry

	mu          sync.RWMutex
	cubes       map[int]*cube.Cube
	cubesByName map[string]*cube.Cube
	nextCubeID  int

	VE     *valueengine.Engine
	Rules  *rules.Engine
	Locks  *lock.Manager
	Tokens *token.Bus
	Rights *rights.Engine

	security *Security
	grants   *dbRights

	root     string
	dataFile persist.FilePair
	cubeFile map[int]persist.FilePair
}

// newDatabase wires every per-database component together. security is
// shared server-wide; serverCounter is the single server-scope token
// counter shared by every database (token.NewServerCounter).
func newDatabase(id int, name, rootDir string, security *Security, serverCounter *uint32) *Database {
	db := &Database{
		ID:          id,
		Name:        name,
		Dims:        dimension.NewRegistry(),
		cubes:       make(map[int]*cube.Cube),
		cubesByName: make(map[string]*cube.Cube),
		security:    security,
		root:        filepath.Join(rootDir, name),
		cubeFile:    make(map[int]persist.FilePair),
	}
	db.dataFile = persist.FilePair{DataPath: filepath.Join(db.root, "database.csv")}

	ve := valueengine.New(db, nil, nil)
	re := rules.New(ve)
	ve.SetRuleEngine(re)
	db.VE = ve
	db.Rules = re

	db.Tokens = token.NewBus(serverCounter)
	db.grants = newDBRights(db)
	db.Rights = rights.New(security, db.grants, tokenSource{db.Tokens})
	db.Locks = lock.NewManager()

	db.Dims.SetHooks(dimension.Hooks{
		OnDelete: db.onDimensionDelete,
	})
	return db
}

// Dimension implements valueengine.DimensionSource.
func (db *Database) Dimension(id int) (*dimension.Dimension, bool) {
	return db.Dims.Get(id)
}

// PurgeElement implements dimension.ValuePurger: every cube built on this
// dimension loses the cells that mention the deleted element, and any
// cached aggregate that might have depended on it is dropped.
func (db *Database) PurgeElement(dimensionID, elementID int) {
	db.mu.RLock()
	cubes := make([]*cube.Cube, 0, len(db.cubes))
	for _, c := range db.cubes {
		cubes = append(cubes, c)
	}
	db.mu.RUnlock()

	for _, c := range cubes {
		pos := c.DimPosition(dimensionID)
		if pos < 0 {
			continue
		}
		c.Store.PurgeElement(pos, elementID)
		db.VE.InvalidateCube(c.ID)
		db.Tokens.BumpCellEdit(c.ID)
	}
}

// onDimensionDelete cascades to every cube built on the deleted
// dimension: a cube cannot exist referencing a dimension that no longer
// does, so it is force-removed along with it (spec §4.2 "deleting a
// dimension deletes every cube built on it").
func (db *Database) onDimensionDelete(d *dimension.Dimension) {
	db.mu.Lock()
	var dead []int
	for id, c := range db.cubes {
		if c.DimPosition(d.ID) >= 0 {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		c := db.cubes[id]
		delete(db.cubes, id)
		delete(db.cubesByName, c.Name)
		delete(db.cubeFile, id)
	}
	db.mu.Unlock()
}

// CreateDimension registers a new dimension, wiring this database in as
// its value-purge target.
func (db *Database) CreateDimension(name string, subtype dimension.Subtype) (*dimension.Dimension, error) {
	d, err := db.Dims.Create(name, subtype, db)
	if err != nil {
		return nil, err
	}
	db.Tokens.BumpElementEdit(d.ID)
	return d, nil
}

// CreateCube allocates a new cube over the given dimension ids.
func (db *Database) CreateCube(name string, dimensionIDs []int) (*cube.Cube, error) {
	for _, id := range dimensionIDs {
		if _, ok := db.Dims.Get(id); !ok {
			return nil, molaperr.NotFound("dimension", fmt.Sprintf("#%d", id))
		}
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	key := name
	if _, exists := db.cubesByName[key]; exists {
		return nil, molaperr.NameInUse("cube", name)
	}
	id := db.nextCubeID
	db.nextCubeID++
	c := cube.New(id, name, dimensionIDs)
	db.cubes[id] = c
	db.cubesByName[key] = c
	db.cubeFile[id] = persist.FilePair{DataPath: filepath.Join(db.root, fmt.Sprintf("database_CUBE_%d.csv", id))}
	db.Rules.RegisterCube(c)
	return c, nil
}

// RenameCube renames a cube by id.
func (db *Database) RenameCube(id int, newName string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.cubes[id]
	if !ok {
		return molaperr.NotFound("cube", fmt.Sprintf("#%d", id))
	}
	if _, exists := db.cubesByName[newName]; exists {
		return molaperr.NameInUse("cube", newName)
	}
	delete(db.cubesByName, c.Name)
	c.Rename(newName)
	db.cubesByName[newName] = c
	return nil
}

// DeleteCube removes a deletable cube.
func (db *Database) DeleteCube(id int) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.cubes[id]
	if !ok {
		return molaperr.NotFound("cube", fmt.Sprintf("#%d", id))
	}
	if !c.Deletable {
		return molaperr.Undeletable("cube", c.Name)
	}
	delete(db.cubes, id)
	delete(db.cubesByName, c.Name)
	delete(db.cubeFile, id)
	return nil
}

// Cube looks up a cube by id.
func (db *Database) Cube(id int) (*cube.Cube, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.cubes[id]
	return c, ok
}

// CubeByName looks up a cube by name.
func (db *Database) CubeByName(name string) (*cube.Cube, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.cubesByName[name]
	return c, ok
}

// Cubes returns every cube in no particular order.
func (db *Database) Cubes() []*cube.Cube {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]*cube.Cube, 0, len(db.cubes))
	for _, c := range db.cubes {
		out = append(out, c)
	}
	return out
}

// cellRight requires user to hold at least min on coord of cubeID, per
// spec §4.9's enforcement rule (min of cube right and every dimension-
// element right along the path).
func (db *Database) cellRight(user string, c *cube.Cube, coord []int, min rights.Right) error {
	groups := db.security.GroupsForUser(user)
	right := db.Rights.EffectiveCellRight(user, groups, c.ID, c.DimensionIDs, coord)
	if !right.AtLeast(min) {
		return molaperr.NotAuthorized(fmt.Sprintf("cell %v of cube %q", coord, c.Name))
	}
	return nil
}

// CellValue reads one cell (spec §4.12 "/cell/value").
func (db *Database) CellValue(user string, cubeID int, coord []int) (valueengine.Value, error) {
	c, ok := db.Cube(cubeID)
	if !ok {
		return valueengine.Value{}, molaperr.NotFound("cube", fmt.Sprintf("#%d", cubeID))
	}
	if err := db.cellRight(user, c, coord, rights.RightRead); err != nil {
		return valueengine.Value{}, err
	}
	return db.VE.Get(c, coord)
}

// CellReplace writes one cell (spec §4.12 "/cell/replace"): checks the
// session's write lock, the user's effective right, applies the write
// through the splash-aware value engine, records an undo closure on the
// session's open cube lock (if any), appends a journal record, and bumps
// the cube's token.
func (db *Database) CellReplace(user, sessionID string, cubeID int, coord []int, numeric float64, str string, isString bool, mode valueengine.SplashMode) error {
	c, ok := db.Cube(cubeID)
	if !ok {
		return molaperr.NotFound("cube", fmt.Sprintf("#%d", cubeID))
	}
	if err := db.cellRight(user, c, coord, rights.RightWrite); err != nil {
		return err
	}
	if err := db.Locks.CheckWrite(cubeID, sessionID, c.Name, coord); err != nil {
		return err
	}

	prevNum, prevHadNum := c.Store.GetNumeric(coord)
	prevStr, prevHadStr := c.Store.GetString(coord)
	coordCopy := append([]int(nil), coord...)
	db.Locks.RecordUndo(cubeID, sessionID, func() {
		switch {
		case prevHadNum:
			c.Store.SetNumeric(coordCopy, prevNum)
		case prevHadStr:
			c.Store.SetString(coordCopy, prevStr)
		default:
			c.Store.Clear(coordCopy)
		}
	})

	var err error
	if isString {
		err = db.VE.SetString(c, coord, str)
	} else {
		err = db.VE.SetNumeric(c, coord, numeric, mode, false)
	}
	if err != nil {
		return err
	}
	db.appendCellJournal(cubeID, coord, numeric, str, isString)
	db.Tokens.BumpCellEdit(cubeID)
	return nil
}

// AreaRead streams every cell of a Cartesian-product area (spec §4.12
// "/cube/area"), skipping cells the caller cannot at least read.
func (db *Database) AreaRead(user string, cubeID int, area valueengine.Area, skipEmpty bool, fn func(valueengine.CellResult) bool) error {
	c, ok := db.Cube(cubeID)
	if !ok {
		return molaperr.NotFound("cube", fmt.Sprintf("#%d", cubeID))
	}
	groups := db.security.GroupsForUser(user)
	return db.VE.BulkRead(c, area, skipEmpty, func(res valueengine.CellResult) bool {
		right := db.Rights.EffectiveCellRight(user, groups, cubeID, c.DimensionIDs, res.Coord)
		if !right.AtLeast(rights.RightRead) {
			return true
		}
		return fn(res)
	})
}

// BeginEvent acquires this database's event lock (spec §4.6.1).
func (db *Database) BeginEvent(sessionID, username, eventName string) error {
	return db.Locks.BeginEvent(sessionID, username, eventName)
}

// EndEvent releases this database's event lock (spec §4.6.1).
func (db *Database) EndEvent(sessionID string) error {
	return db.Locks.EndEvent(sessionID)
}

// CancelSession releases every lock sessionID holds on this database,
// called by the owning Server's session-eviction hook.
func (db *Database) CancelSession(sessionID string) {
	db.Locks.CancelSession(sessionID)
}
