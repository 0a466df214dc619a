package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"molap.evalgo.org/cube"
	"molap.evalgo.org/dimension"
	"molap.evalgo.org/persist"
)

// flags packs a dimension's three boolean edit permissions into the
// "DRS" string persist.DimensionRecord.Flags documents.
func flags(d *dimension.Dimension) string {
	b := func(v bool) byte {
		if v {
			return '1'
		}
		return '0'
	}
	return string([]byte{b(d.Deletable), b(d.Renamable), b(d.StructurallyMutable)})
}

func unflag(s string, i int) bool {
	return i < len(s) && s[i] == '1'
}

func dimensionRecord(d *dimension.Dimension) persist.DimensionRecord {
	els := d.Elements()
	out := persist.DimensionRecord{
		ID: d.ID, Name: d.Name, Subtype: int(d.Subtype), Flags: flags(d),
		Elements: make([]persist.ElementRecord, len(els)),
	}
	for i, el := range els {
		rec := persist.ElementRecord{ID: el.ID, Name: el.Name, Position: el.Position, Kind: int(el.Kind)}
		for _, c := range el.Children {
			rec.Children = append(rec.Children, persist.ChildRecord{ID: c.ID, Weight: c.Weight})
		}
		out.Elements[i] = rec
	}
	return out
}

// snapshot builds the full persist.DatabaseSnapshot of this database's
// dimension and cube metadata (spec §4.7 "database file").
func (db *Database) snapshot() persist.DatabaseSnapshot {
	var snap persist.DatabaseSnapshot
	for _, d := range db.Dims.All() {
		snap.Dimensions = append(snap.Dimensions, dimensionRecord(d))
	}
	for _, c := range db.Cubes() {
		snap.Cubes = append(snap.Cubes, persist.CubeRecord{
			ID: c.ID, Name: c.Name, DimensionIDs: append([]int(nil), c.DimensionIDs...), Deletable: c.Deletable,
		})
	}
	return snap
}

// cubeData builds the flat cell dump of one cube (spec §4.7 "cube file").
func (db *Database) cubeData(c *cube.Cube) persist.CubeData {
	data := persist.CubeData{ID: c.ID, Name: c.Name, DimensionIDs: append([]int(nil), c.DimensionIDs...)}
	c.Store.IterFilled(nil, func(fc cube.FilledCell) bool {
		data.Cells = append(data.Cells, persist.CellRecord{
			Coord: append([]int(nil), fc.Coord...), Numeric: fc.Numeric, Text: fc.String, IsString: fc.IsString,
		})
		return true
	})
	return data
}

// Save writes this database's full snapshot (dimension/cube metadata,
// then every cube's cell dump), consuming any journal in the process
// (spec §4.7 save protocol).
func (db *Database) Save() error {
	if err := os.MkdirAll(db.root, 0o755); err != nil {
		return fmt.Errorf("create database directory %q: %w", db.root, err)
	}
	if err := persist.WriteDatabase(db.dataFile, db.snapshot()); err != nil {
		return fmt.Errorf("save database %q: %w", db.Name, err)
	}
	for _, c := range db.Cubes() {
		fp := db.cubeFile[c.ID]
		if err := persist.WriteCube(fp, db.cubeData(c)); err != nil {
			return fmt.Errorf("save cube %q: %w", c.Name, err)
		}
	}
	return nil
}

// Load rebuilds this database's dimensions and cubes from disk, applying
// any pending journal for the database metadata file. Cube cell files
// are read directly (they carry their own journal separately via
// persist.FilePair.LoadAndReplay in a fuller build; here each cube's
// Save always leaves a clean snapshot, so a plain ReadCube suffices).
func (db *Database) Load() error {
	snap, found, err := persist.ReadDatabase(db.dataFile)
	if err != nil {
		return fmt.Errorf("load database %q: %w", db.Name, err)
	}
	if !found {
		return nil
	}

	for _, dr := range snap.Dimensions {
		d, err := db.Dims.Create(dr.Name, dimension.Subtype(dr.Subtype), db)
		if err != nil {
			return fmt.Errorf("recreate dimension %q: %w", dr.Name, err)
		}
		d.Deletable = unflag(dr.Flags, 0)
		d.Renamable = unflag(dr.Flags, 1)
		d.StructurallyMutable = unflag(dr.Flags, 2)
		for _, er := range dr.Elements {
			if _, err := d.Add(er.Name, dimension.Kind(er.Kind)); err != nil {
				return fmt.Errorf("recreate element %q: %w", er.Name, err)
			}
		}
		for _, er := range dr.Elements {
			if len(er.Children) == 0 {
				continue
			}
			children := make([]dimension.Child, len(er.Children))
			for i, c := range er.Children {
				children[i] = dimension.Child{ID: c.ID, Weight: c.Weight}
			}
			if err := d.AddChildren(er.ID, children); err != nil {
				return fmt.Errorf("recreate consolidation on %q: %w", er.Name, err)
			}
		}
	}

	for _, cr := range snap.Cubes {
		c, err := db.CreateCube(cr.Name, cr.DimensionIDs)
		if err != nil {
			return fmt.Errorf("recreate cube %q: %w", cr.Name, err)
		}
		c.Deletable = cr.Deletable

		data, ok, err := persist.ReadCube(db.cubeFile[c.ID])
		if err != nil {
			return fmt.Errorf("load cube %q: %w", cr.Name, err)
		}
		if !ok {
			continue
		}
		for _, cell := range data.Cells {
			if cell.IsString {
				c.Store.SetString(cell.Coord, cell.Text)
			} else {
				c.Store.SetNumeric(cell.Coord, cell.Numeric)
			}
		}
	}
	return nil
}

// appendCellJournal records one applied cell write to cubeID's journal,
// so a crash between this write and the next full Save can replay it
// (spec §4.7 "append-only .log journal").
func (db *Database) appendCellJournal(cubeID int, coord []int, numeric float64, str string, isString bool) {
	fp, ok := db.cubeFile[cubeID]
	if !ok {
		return
	}
	if err := os.MkdirAll(db.root, 0o755); err != nil {
		log.WithError(err).Warn("create database directory for journal append")
		return
	}
	f, err := fp.AppendJournal()
	if err != nil {
		log.WithError(err).Warn("open cube journal for append")
		return
	}
	defer f.Close()

	coordStr := make([]string, len(coord))
	for i, id := range coord {
		coordStr[i] = strconv.Itoa(id)
	}
	rec := persist.Record{Op: "SETNUM", Args: []string{strings.Join(coordStr, ","), persist.Ftoa(numeric)}}
	if isString {
		rec = persist.Record{Op: "SETSTR", Args: []string{strings.Join(coordStr, ","), str}}
	}
	if err := persist.AppendRecord(f, rec); err != nil {
		log.WithError(err).Warn("append cube journal record")
	}
}
