package persist

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ChildRecord is one (child element, weight) consolidation edge.
type ChildRecord struct {
	ID     int
	Weight float64
}

// ElementRecord is one dimension element (spec §4.7 dimension section).
type ElementRecord struct {
	ID       int
	Name     string
	Position int
	Kind     int
	Children []ChildRecord
}

// DimensionRecord is one dimension: identity, subtype, the three
// structural flags packed as a 3-character string ("DRS" order:
// Deletable, Renamable, StructurallyMutable; '1'/'0' per flag), and its
// elements.
type DimensionRecord struct {
	ID       int
	Name     string
	Subtype  int
	Flags    string
	Elements []ElementRecord
}

// CubeRecord is one cube's identity (spec §4.7 cubes section).
type CubeRecord struct {
	ID           int
	Name         string
	DimensionIDs []int
	Deletable    bool
}

// DatabaseSnapshot is the full content of a database's snapshot file.
type DatabaseSnapshot struct {
	Dimensions []DimensionRecord
	Cubes      []CubeRecord
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func splitInts(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid int list %q: %w", s, err)
		}
		out[i] = n
	}
	return out, nil
}

func encodeChildren(children []ChildRecord) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = strconv.Itoa(c.ID) + ":" + Ftoa(c.Weight)
	}
	return strings.Join(parts, ",")
}

func decodeChildren(s string) ([]ChildRecord, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]ChildRecord, len(parts))
	for i, p := range parts {
		idStr, wStr, ok := strings.Cut(p, ":")
		if !ok {
			return nil, fmt.Errorf("invalid child entry %q", p)
		}
		id, err := strconv.Atoi(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid child id %q: %w", idStr, err)
		}
		w, err := strconv.ParseFloat(wStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid child weight %q: %w", wStr, err)
		}
		out[i] = ChildRecord{ID: id, Weight: w}
	}
	return out, nil
}

func boolFlag(b bool) byte {
	if b {
		return '1'
	}
	return '0'
}

// WriteDatabase serializes snap to fp using the save protocol (spec
// §4.7 "overview line... dimension section... cubes section").
func WriteDatabase(fp FilePair, snap DatabaseSnapshot) error {
	return fp.Save(func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		fmt.Fprintf(bw, "OVERVIEW\t%d\t%d\n", len(snap.Dimensions), len(snap.Cubes))
		for _, d := range snap.Dimensions {
			fmt.Fprintf(bw, "DIM\t%d\t%s\t%d\t%s\n", d.ID, d.Name, d.Subtype, d.Flags)
			for _, e := range d.Elements {
				fmt.Fprintf(bw, "ELEM\t%d\t%s\t%d\t%d\t%s\n", e.ID, e.Name, e.Position, e.Kind, encodeChildren(e.Children))
			}
		}
		fmt.Fprintf(bw, "CUBES\n")
		for _, c := range snap.Cubes {
			fmt.Fprintf(bw, "CUBE\t%d\t%s\t%s\t%c\n", c.ID, c.Name, joinInts(c.DimensionIDs), boolFlag(c.Deletable))
		}
		return bw.Flush()
	})
}

// ReadDatabase loads a database snapshot, replaying no journal itself
// (the caller does that with ReadJournal once it has applied the
// snapshot to live dimension/cube objects).
func ReadDatabase(fp FilePair) (DatabaseSnapshot, bool, error) {
	var snap DatabaseSnapshot
	var curDim *DimensionRecord

	ok, err := fp.Load(func(r io.Reader) error {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			fields := strings.Split(line, "\t")
			switch fields[0] {
			case "OVERVIEW":
				// counts are informational only; len(Dimensions)/len(Cubes) are authoritative.
			case "DIM":
				if curDim != nil {
					snap.Dimensions = append(snap.Dimensions, *curDim)
				}
				id, _ := strconv.Atoi(fields[1])
				subtype, _ := strconv.Atoi(fields[3])
				curDim = &DimensionRecord{ID: id, Name: fields[2], Subtype: subtype, Flags: fields[4]}
			case "ELEM":
				if curDim == nil {
					return fmt.Errorf("ELEM record with no preceding DIM")
				}
				id, _ := strconv.Atoi(fields[1])
				pos, _ := strconv.Atoi(fields[3])
				kind, _ := strconv.Atoi(fields[4])
				children, err := decodeChildren(fields[5])
				if err != nil {
					return err
				}
				curDim.Elements = append(curDim.Elements, ElementRecord{ID: id, Name: fields[2], Position: pos, Kind: kind, Children: children})
			case "CUBES":
				if curDim != nil {
					snap.Dimensions = append(snap.Dimensions, *curDim)
					curDim = nil
				}
			case "CUBE":
				dimIDs, err := splitInts(fields[3])
				if err != nil {
					return err
				}
				id, _ := strconv.Atoi(fields[1])
				snap.Cubes = append(snap.Cubes, CubeRecord{
					ID: id, Name: fields[2], DimensionIDs: dimIDs, Deletable: fields[4] == "1",
				})
			default:
				log.WithField("record", fields[0]).Warn("skipping unknown database snapshot record")
			}
		}
		return scanner.Err()
	})
	if curDim != nil {
		snap.Dimensions = append(snap.Dimensions, *curDim)
	}
	return snap, ok, err
}

// CellRecord is one filled cube cell.
type CellRecord struct {
	Coord    []int
	Numeric  float64
	Text     string
	IsString bool
}

// CubeData is the full content of one cube's data file (spec §4.7
// "Each cube file begins with its overview and dimension list, then a
// numeric section... and a string section... Rights cubes that include
// the group dimension additionally emit a group-name remap table").
type CubeData struct {
	ID           int
	Name         string
	DimensionIDs []int
	Cells        []CellRecord
	GroupRemap   map[int]string // groupID -> current name, only for group-keyed rights cubes
}

// WriteCube serializes data to fp.
func WriteCube(fp FilePair, data CubeData) error {
	return fp.Save(func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		fmt.Fprintf(bw, "OVERVIEW\t%d\t%s\t%s\n", data.ID, data.Name, joinInts(data.DimensionIDs))
		for _, c := range data.Cells {
			if c.IsString {
				fmt.Fprintf(bw, "STRING\t%s\t%s\n", joinInts(c.Coord), c.Text)
			} else {
				fmt.Fprintf(bw, "NUMERIC\t%s\t%s\n", joinInts(c.Coord), Ftoa(c.Numeric))
			}
		}
		for id, name := range data.GroupRemap {
			fmt.Fprintf(bw, "REMAP\t%d\t%s\n", id, name)
		}
		return bw.Flush()
	})
}

// ReadCube loads one cube's data file.
func ReadCube(fp FilePair) (CubeData, bool, error) {
	var data CubeData
	ok, err := fp.Load(func(r io.Reader) error {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			fields := strings.Split(line, "\t")
			switch fields[0] {
			case "OVERVIEW":
				id, _ := strconv.Atoi(fields[1])
				dimIDs, err := splitInts(fields[3])
				if err != nil {
					return err
				}
				data.ID, data.Name, data.DimensionIDs = id, fields[2], dimIDs
			case "NUMERIC":
				coord, err := splitInts(fields[1])
				if err != nil {
					return err
				}
				v, err := strconv.ParseFloat(fields[2], 64)
				if err != nil {
					return fmt.Errorf("invalid numeric cell value %q: %w", fields[2], err)
				}
				data.Cells = append(data.Cells, CellRecord{Coord: coord, Numeric: v})
			case "STRING":
				coord, err := splitInts(fields[1])
				if err != nil {
					return err
				}
				data.Cells = append(data.Cells, CellRecord{Coord: coord, Text: fields[2], IsString: true})
			case "REMAP":
				if data.GroupRemap == nil {
					data.GroupRemap = make(map[int]string)
				}
				id, err := strconv.Atoi(fields[1])
				if err != nil {
					return fmt.Errorf("invalid remap group id %q: %w", fields[1], err)
				}
				data.GroupRemap[id] = fields[2]
			default:
				log.WithField("record", fields[0]).Warn("skipping unknown cube data record")
			}
		}
		return scanner.Err()
	})
	return data, ok, err
}
