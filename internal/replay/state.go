package replay

import (
	"fmt"
	"slices"

	"github.com/roach88/provreplay/internal/store"
)

// State is one step of a replay run.
type State string

const (
	StateInit          State = "INIT"
	StateLookup        State = "LOOKUP"
	StateHit           State = "HIT"
	StateMiss          State = "MISS"
	StateRunning       State = "RUNNING"
	StateExported      State = "EXPORTED"
	StateSkippedExport State = "SKIPPED_EXPORT"
	StateDone          State = "DONE"
)

var transitions = map[State][]State{
	StateInit:          {StateLookup},
	StateLookup:        {StateHit, StateMiss},
	StateHit:           {StateRunning},
	StateMiss:          {StateRunning},
	StateRunning:       {StateExported, StateSkippedExport},
	StateExported:      {StateDone},
	StateSkippedExport: {StateDone},
}

// Outcome reports what a replay run did. A run that failed stops in the
// state it failed in.
type Outcome struct {
	// Fingerprint is the request fingerprint. Empty for with-block runs.
	Fingerprint string

	// Path is the absolute archive path used for import and export.
	Path string

	// States lists every visited state in order, starting with INIT.
	States []State

	// Imported counts what the HIT import merged into the store.
	Imported store.ImportResult
}

func newOutcome() Outcome {
	return Outcome{States: []State{StateInit}}
}

// State returns the current state.
func (o *Outcome) State() State {
	return o.States[len(o.States)-1]
}

// Hit reports whether an archive was found and imported.
func (o *Outcome) Hit() bool {
	return slices.Contains(o.States, StateHit)
}

// Exported reports whether a new archive was written.
func (o *Outcome) Exported() bool {
	return slices.Contains(o.States, StateExported)
}

// advance moves to the next state, rejecting transitions the state
// machine does not allow.
func (o *Outcome) advance(to State) error {
	from := o.State()
	if !slices.Contains(transitions[from], to) {
		return fmt.Errorf("invalid replay transition %s -> %s", from, to)
	}
	o.States = append(o.States, to)
	return nil
}
