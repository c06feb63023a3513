package scan

import (
	"fmt"
	"time"
)

// Options describes a single scan: the address range, which function
// codes to probe, and which of the optional subsystems (batching,
// streaming, the two optimizers) are engaged. It carries no callbacks —
// those are supplied separately to Start per spec §9's design note that
// callbacks are not persisted state.
type Options struct {
	Start, End    Address
	FunctionCodes []FunctionCode

	BatchingEnabled bool

	StreamingEnabled   bool
	StreamingThreshold int

	MemoryOptimizationEnabled  bool
	NetworkOptimizationEnabled bool

	RequestDelay     time.Duration
	AutoSaveInterval time.Duration
}

// DefaultOptions returns Options covering the full address space on all
// four function codes, with batching and both optimizers enabled and
// streaming engaged automatically once a scan exceeds 10,000 units.
func DefaultOptions() Options {
	return Options{
		Start:                      0,
		End:                        MaxAddress,
		FunctionCodes:              AllFunctionCodes(),
		BatchingEnabled:            true,
		StreamingEnabled:           false,
		StreamingThreshold:         10000,
		MemoryOptimizationEnabled:  true,
		NetworkOptimizationEnabled: true,
		RequestDelay:               0,
		AutoSaveInterval:           30 * time.Second,
	}
}

// Validate checks the structural invariants from spec §3: Start <= End,
// and FunctionCodes is a non-empty subset of {1,2,3,4} with no
// duplicates.
func (o Options) Validate() error {
	if o.Start > o.End {
		return fmt.Errorf("scan: start address %d exceeds end address %d", o.Start, o.End)
	}
	if len(o.FunctionCodes) == 0 {
		return fmt.Errorf("scan: function code set must not be empty")
	}
	seen := make(map[FunctionCode]bool, len(o.FunctionCodes))
	for _, fc := range o.FunctionCodes {
		switch fc {
		case Coils, DiscreteInputs, HoldingRegisters, InputRegisters:
		default:
			return fmt.Errorf("scan: unsupported function code %d", fc)
		}
		if seen[fc] {
			return fmt.Errorf("scan: function code %s repeated in option set", fc)
		}
		seen[fc] = true
	}
	if o.StreamingThreshold < 0 {
		return fmt.Errorf("scan: streaming threshold must not be negative")
	}
	return nil
}

// AddressCount is the number of addresses in [Start, End].
func (o Options) AddressCount() int {
	return AddressRange{Lo: o.Start, Hi: o.End}.Len()
}

// TotalUnits is the total number of (address, function code) pairs this
// scan will probe: |addresses| * |function codes|.
func (o Options) TotalUnits() int {
	return o.AddressCount() * len(o.FunctionCodes)
}

// ShouldStream reports whether the scan should run through the
// streaming scanner rather than the traditional sweep, per spec §4.7:
// explicit opt-in, or total units over the streaming threshold.
func (o Options) ShouldStream() bool {
	return o.StreamingEnabled || o.TotalUnits() > o.StreamingThreshold
}
