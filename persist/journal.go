package persist

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Record is one journaled command: a keyword plus its operand tuple,
// exactly as the operation was invoked (spec §4.7 "commands replayable
// are the structural dimension/element edits and cell writes exactly as
// invoked"). Fields are written unescaped; no caller checks operands for
// tab or newline characters before they reach this encoder.
type Record struct {
	Op   string
	Args []string
}

func (r Record) encode() string {
	var b strings.Builder
	b.WriteString(r.Op)
	for _, a := range r.Args {
		b.WriteByte('\t')
		b.WriteString(a)
	}
	return b.String()
}

func decodeRecord(line string) (Record, error) {
	parts := strings.Split(line, "\t")
	if len(parts) == 0 || parts[0] == "" {
		return Record{}, fmt.Errorf("empty journal record")
	}
	return Record{Op: parts[0], Args: parts[1:]}, nil
}

// AppendRecord writes one record to w, terminated with a newline, ready
// to be appended to a `.log` file opened via FilePair.AppendJournal.
func AppendRecord(w io.Writer, r Record) error {
	_, err := io.WriteString(w, r.encode()+"\n")
	return err
}

// ReadJournal streams every record in r in order, calling fn for each.
// Empty lines are skipped, and so is any line with an empty keyword (one
// starting with a tab), which is logged rather than failing the whole
// replay. A line cut short after its keyword, as a crash mid-write can
// leave, is not detected: it reaches fn with fewer operands.
func ReadJournal(r io.Reader, fn func(Record) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, err := decodeRecord(line)
		if err != nil {
			log.WithField("line", line).Warn("skipping malformed journal record")
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Arg helpers used by callers building/parsing records.
func Itoa(n int) string { return strconv.Itoa(n) }

func Atoi(s string) (int, error) { return strconv.Atoi(s) }

func Ftoa(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func Atof(s string) (float64, error) { return strconv.ParseFloat(s, 64) }
