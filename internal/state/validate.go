package state

import (
	"fmt"
	"time"
)

// ValidationError is one structured problem found with a checkpoint
// (spec §4.6: "missing fields, wrong types, incompatible schema
// version").
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("state: %s: %s", e.Field, e.Message)
}

// ValidationWarning is a non-fatal observation about an otherwise valid
// checkpoint (spec §4.6: "checkpoint older than 24h, discovered-count
// disagreement with records-marked-accessible count").
type ValidationWarning struct {
	Field   string
	Message string
}

func (w ValidationWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Field, w.Message)
}

// ValidationResult is the outcome of Validate: either Valid (no errors,
// possibly some warnings) or a list of structured errors.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// Valid reports whether the checkpoint has no structural errors.
// Warnings do not affect validity.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// staleAfter is the age at which a checkpoint earns the "stale" warning
// (spec §4.6: "older than 24h").
const staleAfter = 24 * time.Hour

// Validate checks c against the structural invariants spec §3/§4.6
// require: non-empty schema version matching SchemaVersion exactly,
// valid options, a state whose counters satisfy Processed<=Total and
// Accessible<=Processed, and a non-zero SavedAt. It also raises
// warnings for staleness and for a discovered-count/records mismatch,
// without affecting validity.
func Validate(c Checkpoint) ValidationResult {
	var res ValidationResult

	if c.SchemaVersion == "" {
		res.Errors = append(res.Errors, ValidationError{"schema_version", "missing"})
	} else if c.SchemaVersion != SchemaVersion {
		res.Errors = append(res.Errors, ValidationError{
			"schema_version",
			fmt.Sprintf("incompatible: checkpoint is %q, this build reads %q", c.SchemaVersion, SchemaVersion),
		})
	}

	if err := c.Options.Validate(); err != nil {
		res.Errors = append(res.Errors, ValidationError{"options", err.Error()})
	}

	if err := c.Config.Validate(); err != nil {
		res.Errors = append(res.Errors, ValidationError{"config", err.Error()})
	}

	if !c.State.Valid() {
		res.Errors = append(res.Errors, ValidationError{
			"state",
			fmt.Sprintf("processed=%d total=%d accessible=%d violates invariants", c.State.Processed, c.State.Total, c.State.Accessible),
		})
	}

	if c.SavedAt.IsZero() {
		res.Errors = append(res.Errors, ValidationError{"saved_at", "missing"})
	} else if time.Since(c.SavedAt) > staleAfter {
		res.Warnings = append(res.Warnings, ValidationWarning{"saved_at", "checkpoint is older than 24h"})
	}

	accessibleInRecords := 0
	for _, r := range c.Records {
		if r.Accessible {
			accessibleInRecords++
		}
	}
	if accessibleInRecords != c.State.Accessible {
		res.Warnings = append(res.Warnings, ValidationWarning{
			"state.accessible",
			fmt.Sprintf("state reports %d accessible but %d records are marked accessible", c.State.Accessible, accessibleInRecords),
		})
	}

	return res
}
