package ingestion

import (
	"errors"
	"fmt"
)

// FileState represents the lifecycle state of a discovered input file.
//
// Lifecycle:
//
//	discovered → stabilizing → processing → {archived | retained | quarantined}
//
// Retained files stay in the input directory and are re-discovered on a later
// cycle; archived and quarantined are terminal. The poll watch strategy folds
// stabilization into its mtime-age check, so discovered → processing is also
// a legal transition.
type FileState string

const (
	// FileStateDiscovered indicates the watcher has seen the file.
	FileStateDiscovered FileState = "discovered"

	// FileStateStabilizing indicates the file is being held until writes settle.
	FileStateStabilizing FileState = "stabilizing"

	// FileStateProcessing indicates the pipeline is ingesting the file.
	FileStateProcessing FileState = "processing"

	// FileStateArchived indicates the file was ingested and moved to the
	// archive directory. Terminal.
	FileStateArchived FileState = "archived"

	// FileStateRetained indicates ingestion failed and the file stays in the
	// input directory for re-discovery on a later cycle.
	FileStateRetained FileState = "retained"

	// FileStateQuarantined indicates the file exhausted the configured attempt
	// limit and was moved aside. Terminal. Only reachable when the attempt
	// limit is enabled (it is off by default).
	FileStateQuarantined FileState = "quarantined"
)

// Sentinel errors for file state transition validation, matched with
// errors.Is by the coordinator.
var (
	// ErrInvalidFileTransition indicates an invalid file state transition.
	ErrInvalidFileTransition = errors.New("invalid file state transition")

	// ErrFileStateTerminal indicates an attempt to transition out of a
	// terminal file state.
	ErrFileStateTerminal = errors.New("terminal file state is immutable")
)

// ValidFileStates returns all valid file lifecycle states.
func ValidFileStates() []FileState {
	return []FileState{
		FileStateDiscovered,
		FileStateStabilizing,
		FileStateProcessing,
		FileStateArchived,
		FileStateRetained,
		FileStateQuarantined,
	}
}

// String returns the string representation of the FileState.
func (s FileState) String() string {
	return string(s)
}

// IsValid checks if the FileState is a known lifecycle state.
func (s FileState) IsValid() bool {
	for _, valid := range ValidFileStates() {
		if s == valid {
			return true
		}
	}

	return false
}

// IsTerminal returns true if the state ends the file's lifecycle.
// Terminal states (archived, quarantined) are immutable; retained is not
// terminal because the file is re-discovered on a later cycle.
func (s FileState) IsTerminal() bool {
	return s == FileStateArchived || s == FileStateQuarantined
}

// ValidateFileTransition validates a file lifecycle transition.
//
// The legal moves:
//   - discovered → {stabilizing, processing}
//   - stabilizing → {stabilizing, processing} (repeat while writes settle)
//   - processing → {archived, retained, quarantined}
//   - retained → discovered (re-discovery on a later cycle)
//
// Everything else is rejected, in particular:
//   - leaving archived or quarantined (terminal)
//   - skipping processing straight into an outcome state
func ValidateFileTransition(from, to FileState) error {
	if !from.IsValid() || !to.IsValid() {
		return fmt.Errorf("%w: %s → %s (unknown state)", ErrInvalidFileTransition, from, to)
	}

	if from.IsTerminal() {
		return fmt.Errorf("%w: %s → %s", ErrFileStateTerminal, from, to)
	}

	var valid map[FileState]bool

	switch from {
	case FileStateDiscovered:
		valid = map[FileState]bool{
			FileStateStabilizing: true,
			FileStateProcessing:  true,
		}
	case FileStateStabilizing:
		valid = map[FileState]bool{
			FileStateStabilizing: true,
			FileStateProcessing:  true,
		}
	case FileStateProcessing:
		valid = map[FileState]bool{
			FileStateArchived:    true,
			FileStateRetained:    true,
			FileStateQuarantined: true,
		}
	case FileStateRetained:
		valid = map[FileState]bool{
			FileStateDiscovered: true,
		}
	case FileStateArchived, FileStateQuarantined:
		// Unreachable: terminal states returned above.
		valid = nil
	}

	if !valid[to] {
		return fmt.Errorf("%w: %s → %s", ErrInvalidFileTransition, from, to)
	}

	return nil
}
