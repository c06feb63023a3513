package batch

import "github.com/oss-modbus/scanner"

// ReadBatchFunc reads count units at address for fc and always returns
// exactly count records (the Register Reader's contract, spec §4.1).
type ReadBatchFunc func(fc scan.FunctionCode, address scan.Address, count int) []scan.DiscoveryRecord

// Stats tracks the running batch-read statistics spec §4.2 asks for.
type Stats struct {
	Attempts  int
	Successes int
	Fallbacks int
	SizeHist  map[int]int // successful batch size -> count
}

// Efficiency is successful batch reads / attempted batch reads, or 1.0
// when nothing has been attempted yet.
func (s Stats) Efficiency() float64 {
	if s.Attempts == 0 {
		return 1
	}
	return float64(s.Successes) / float64(s.Attempts)
}

func newStats() *Stats {
	return &Stats{SizeHist: make(map[int]int)}
}

// Optimizer executes a batch plan against a Register Reader, applying
// the fallback policy from spec §4.2/§7. It is stateless between scans
// and holds no network resources of its own — Stats is owned by the
// caller of Run, one per scan.
type Optimizer struct{}

// New constructs an Optimizer. It has no configuration: the fallback
// policy is fixed by spec.
func New() *Optimizer {
	return &Optimizer{}
}

// Run executes plan in order, invoking read for each batch and applying
// the fallback policy on failure:
//
//   - Decode, Timeout, or SlaveDeviceBusy: split the batch into
//     single-address reads, each independently classified.
//   - IllegalDataAddress: mark the whole batch inaccessible with that
//     error, without per-address probing. This holds for every batch
//     size; there is no option to probe the addresses one by one.
//   - any other error: propagate it to every address in the batch.
//
// Records are returned in ascending address order within each batch and
// in batch order across batches, matching the ordering guarantee in
// spec §5.
func (o *Optimizer) Run(fc scan.FunctionCode, plan []scan.AddressRange, read ReadBatchFunc, stats *Stats) []scan.DiscoveryRecord {
	if stats == nil {
		stats = newStats()
	}
	out := make([]scan.DiscoveryRecord, 0, len(plan))
	for _, b := range plan {
		out = append(out, o.runBatch(fc, b, read, stats)...)
	}
	return out
}

func (o *Optimizer) runBatch(fc scan.FunctionCode, b scan.AddressRange, read ReadBatchFunc, stats *Stats) []scan.DiscoveryRecord {
	n := b.Len()
	stats.Attempts++
	recs := read(fc, b.Lo, n)

	if allAccessible(recs) {
		stats.Successes++
		stats.SizeHist[n]++
		return recs
	}

	kind := firstErrorKind(recs)

	if kind.IsRangeInaccessible() {
		return recs
	}

	if kind.IsBatchFallback() || n > 1 && hasMixedFailure(recs) {
		stats.Fallbacks++
		return o.fallbackToSingles(fc, b, read)
	}

	// propagate: the batch-level failure already marked every address
	// inaccessible with the same error, which is exactly "propagate the
	// error to all addresses in the batch" (spec §4.2 step 3).
	return recs
}

// fallbackToSingles reissues every address in the batch as its own
// single-unit read, independently classified.
func (o *Optimizer) fallbackToSingles(fc scan.FunctionCode, b scan.AddressRange, read ReadBatchFunc) []scan.DiscoveryRecord {
	out := make([]scan.DiscoveryRecord, 0, b.Len())
	for a := b.Lo; ; a++ {
		out = append(out, read(fc, a, 1)...)
		if a == b.Hi {
			break
		}
	}
	return out
}

func allAccessible(recs []scan.DiscoveryRecord) bool {
	for _, r := range recs {
		if !r.Accessible {
			return false
		}
	}
	return true
}

// hasMixedFailure is always false for a batch read through the Register
// Reader, which classifies a whole response as one failure (spec §4.1:
// "any non-boolean in the decoded slice makes the entire response
// invalid"). Kept as an explicit check rather than an assumption so the
// fallback decision stays correct if a future Reader implementation
// returns mixed per-address outcomes within one batch response.
func hasMixedFailure(recs []scan.DiscoveryRecord) bool {
	var sawAccessible, sawInaccessible bool
	for _, r := range recs {
		if r.Accessible {
			sawAccessible = true
		} else {
			sawInaccessible = true
		}
	}
	return sawAccessible && sawInaccessible
}

func firstErrorKind(recs []scan.DiscoveryRecord) scan.ReadErrorKind {
	for _, r := range recs {
		if !r.Accessible && r.Err != nil {
			return r.Err.Kind
		}
	}
	return scan.ErrUnknown
}
