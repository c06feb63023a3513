package scan

import "time"

// RunState is the Scanner Engine's state machine position, per spec
// §4.7.
type RunState string

const (
	Idle      RunState = "Idle"
	Running   RunState = "Running"
	Paused    RunState = "Paused"
	Stopping  RunState = "Stopping"
	Completed RunState = "Completed"
	Failed    RunState = "Failed"
)

// State is the in-memory (and, via Checkpoint, persisted) progress of a
// scan: where it is, how much is done, and what has gone wrong so far.
//
// Invariants (spec §3): Processed <= Total, Accessible <= Processed.
type State struct {
	CurrentAddress Address
	CurrentFC      FunctionCode

	Total      int
	Processed  int
	Accessible int

	StartTime  time.Time
	LastUpdate time.Time

	Running bool
	Paused  bool

	Errors []ReadError
}

// Valid reports whether the state's counters satisfy spec §3's
// invariants.
func (s State) Valid() bool {
	return s.Processed <= s.Total && s.Accessible <= s.Processed
}

// ProgressPercent is Processed/Total as a percentage, 100 when Total is
// zero (nothing to do is vacuously complete).
func (s State) ProgressPercent() float64 {
	if s.Total == 0 {
		return 100
	}
	return 100 * float64(s.Processed) / float64(s.Total)
}

// RecordError appends a classified error to the running error list.
func (s *State) RecordError(err ReadError) {
	s.Errors = append(s.Errors, err)
}

// Advance folds a single discovery record into the state: advances the
// processed/accessible counters and the current address/FC cursor.
func (s *State) Advance(rec DiscoveryRecord) {
	s.Processed++
	if rec.Accessible {
		s.Accessible++
	} else if rec.Err != nil {
		s.RecordError(*rec.Err)
	}
	s.CurrentAddress = rec.Address
	s.CurrentFC = rec.FunctionCode
	s.LastUpdate = time.Now()
}
