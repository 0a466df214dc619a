// Package persist implements the text-format snapshot + append-only
// journal persistence layer (spec §4.7, component G): a save protocol
// that never leaves a half-written data file on disk, and a load
// protocol that recovers from every crash point in that protocol.
// Grounded on the teacher's db/bolt/bolt.go for the "never touch the
// live file directly" discipline, generalized from a single bbolt file
// to a snapshot-plus-journal file pair, and on common/logger.go for the
// structured logging used throughout (via the logging package).
package persist

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"molap.evalgo.org/logging"
)

var log = logging.For("persist")

// FilePair is one persisted object's on-disk identity: a data file plus
// its `.tmp`, `.log`, and `.log.bak` siblings (spec §4.7).
type FilePair struct {
	DataPath string
}

func (fp FilePair) tmpPath() string     { return fp.DataPath + ".tmp" }
func (fp FilePair) logPath() string     { return fp.DataPath + ".log" }
func (fp FilePair) archivePath() string { return fp.DataPath + ".log.bak" }

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Recover completes an interrupted save (spec §4.7 load protocol: "if
// .tmp exists and data file does not, rename .tmp up"). Call this before
// reading the data file.
func (fp FilePair) Recover() error {
	if exists(fp.tmpPath()) && !exists(fp.DataPath) {
		log.WithField("path", fp.DataPath).Warn("recovering snapshot left behind by an interrupted save")
		if err := os.Rename(fp.tmpPath(), fp.DataPath); err != nil {
			return fmt.Errorf("recover %s: %w", fp.DataPath, err)
		}
	}
	return nil
}

// Load recovers, then opens the data file and hands it to read. A
// missing data file (first run) is reported via io.EOF-free ok=false,
// not an error.
func (fp FilePair) Load(read func(r io.Reader) error) (ok bool, err error) {
	if err := fp.Recover(); err != nil {
		return false, err
	}
	f, err := os.Open(fp.DataPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open %s: %w", fp.DataPath, err)
	}
	defer f.Close()
	if err := read(bufio.NewReader(f)); err != nil {
		return false, fmt.Errorf("read %s: %w", fp.DataPath, err)
	}
	return true, nil
}

// HasJournal reports whether a `.log` journal is waiting to be replayed.
func (fp FilePair) HasJournal() bool {
	return exists(fp.logPath())
}

// OpenJournal opens the `.log` file for reading.
func (fp FilePair) OpenJournal() (*os.File, error) {
	return os.Open(fp.logPath())
}

// AppendJournal opens the `.log` file for appending, creating it if
// necessary, for recording one more replayable command.
func (fp FilePair) AppendJournal() (*os.File, error) {
	return os.OpenFile(fp.logPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// Save implements spec §4.7's save protocol: write a `.tmp` snapshot via
// write, fsync it, archive the current `.log`, delete the archived copy
// (the journal is now redundant: its effects are in the new snapshot),
// then rename `.tmp` over the data file. Any step failing after the
// `.tmp` write is a corruption risk per spec §7, so it is fatal rather
// than returned to let the caller limp on.
func (fp FilePair) Save(write func(w io.Writer) error) error {
	f, err := os.Create(fp.tmpPath())
	if err != nil {
		return fmt.Errorf("create %s: %w", fp.tmpPath(), err)
	}
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", fp.tmpPath(), err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		logging.Fatal("persist", "flush snapshot failed", map[string]interface{}{"path": fp.tmpPath(), "error": err.Error()})
	}
	if err := f.Sync(); err != nil {
		f.Close()
		logging.Fatal("persist", "fsync snapshot failed", map[string]interface{}{"path": fp.tmpPath(), "error": err.Error()})
	}
	if err := f.Close(); err != nil {
		logging.Fatal("persist", "close snapshot failed", map[string]interface{}{"path": fp.tmpPath(), "error": err.Error()})
	}

	if exists(fp.logPath()) {
		if err := os.Rename(fp.logPath(), fp.archivePath()); err != nil {
			logging.Fatal("persist", "archive journal failed", map[string]interface{}{"path": fp.logPath(), "error": err.Error()})
		}
	}
	if exists(fp.archivePath()) {
		if err := os.Remove(fp.archivePath()); err != nil {
			logging.Fatal("persist", "remove archived journal failed", map[string]interface{}{"path": fp.archivePath(), "error": err.Error()})
		}
	}
	if err := os.Rename(fp.tmpPath(), fp.DataPath); err != nil {
		logging.Fatal("persist", "rename snapshot failed", map[string]interface{}{"path": fp.DataPath, "error": err.Error()})
	}
	return nil
}
