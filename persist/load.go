package persist

import "fmt"

// LoadAndReplay implements spec §4.7's full load protocol for one
// object: recover an interrupted save, hand the recovered snapshot to
// readSnapshot, replay any pending `.log` journal through replay, then
// fully resave via resave to reach a clean state with the journal gone.
// Callers apply readSnapshot/replay to their own live dimension/cube
// objects; this function only sequences the steps.
func (fp FilePair) LoadAndReplay(
	readSnapshot func() (found bool, err error),
	replay func(Record) error,
	resave func() error,
) error {
	found, err := readSnapshot()
	if err != nil {
		return fmt.Errorf("load snapshot %s: %w", fp.DataPath, err)
	}

	if fp.HasJournal() {
		f, err := fp.OpenJournal()
		if err != nil {
			return fmt.Errorf("open journal %s: %w", fp.logPath(), err)
		}
		replayErr := ReadJournal(f, replay)
		f.Close()
		if replayErr != nil {
			return fmt.Errorf("replay journal %s: %w", fp.logPath(), replayErr)
		}
	}

	if !found && !fp.HasJournal() {
		// first run: nothing to resave yet, caller creates fresh state.
		return nil
	}
	if err := resave(); err != nil {
		return fmt.Errorf("resave %s after load: %w", fp.DataPath, err)
	}
	return nil
}
