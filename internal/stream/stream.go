/*
Package stream implements the Streaming Scanner (spec §4.5): the
chunked driver used when a planned scan exceeds the streaming
threshold. It splits each function code's address range into
fixed-size chunks, runs each chunk through the Batch Optimizer, and
hands the resulting records off to a consumer — either the caller's
stream callback or the Memory Optimizer's buffer — honoring pause and
stop between chunks (never mid-chunk, per spec §4.5).

Grounded on the Scanner Engine's traditional sweep (scanner/engine.go)
for the per-FC, ascending-order walk; this package is the chunked
cousin of that walk, reusing the same internal/batch.Optimizer to
execute each chunk's reads; the chunk's cap-bounded batch plan is built
locally by planChunk.
*/
package stream

import (
	"context"
	"time"

	"github.com/oss-modbus/scanner"
	"github.com/oss-modbus/scanner/internal/batch"
)

// pausePollInterval is how often a paused Scan rechecks ctrl.Paused/ctx
// while waiting to resume.
const pausePollInterval = 20 * time.Millisecond

// ReadBatchFunc reads count units at address for fc. Callers wire this
// through the Network Optimizer gate before handing it to Scan, per
// spec §4.5: "invoke the Batch Optimizer under the Network Optimizer
// gate".
type ReadBatchFunc func(fc scan.FunctionCode, address scan.Address, count int) []scan.DiscoveryRecord

// Control lets the driving engine observe stop/pause requests between
// chunks. A nil field is treated as "never".
type Control struct {
	Stopped func() bool
	Paused  func() bool
}

func (c Control) stopped() bool {
	return c.Stopped != nil && c.Stopped()
}

func (c Control) paused() bool {
	return c.Paused != nil && c.Paused()
}

// Deps bundles the Streaming Scanner's collaborators: the wired batch
// read function, a batch cap per function code, and a handoff that
// delivers each chunk's records onward (to the raw stream consumer, or
// to the Memory Optimizer's Add, which decides for itself whether to
// buffer or flush).
type Deps struct {
	Read      ReadBatchFunc
	BatchCap  func(scan.FunctionCode) int
	Handoff   func([]scan.DiscoveryRecord)
	ChunkSize int // 0 selects the spec default
}

// Result is what a streaming run produced.
type Result struct {
	Processed int
	Stopped   bool
}

// defaultChunkSize implements spec §4.5's "min(1000, threshold/10)".
func defaultChunkSize(threshold int) int {
	c := threshold / 10
	if c <= 0 || c > 1000 {
		c = 1000
	}
	return c
}

// Scan drives the chunked sweep over opts.FunctionCodes, in the order
// given, and within each function code over opts.Start..opts.End in
// strictly ascending chunks. For each chunk it splits the chunk into
// cap-bounded batches and executes them via internal/batch.Optimizer, hands the resulting records
// to deps.Handoff in emission order, and fires an OnRecord/OnProgress
// callback per record/chunk. It honors ctrl.Stopped/ctrl.Paused between
// chunks only, never mid-chunk.
func Scan(ctx context.Context, opts scan.Options, deps Deps, ctrl Control, cb scan.Callbacks) Result {
	chunkSize := deps.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize(opts.StreamingThreshold)
	}
	opt := batch.New()

	total := opts.TotalUnits()
	processed := 0

	for _, fc := range opts.FunctionCodes {
		cap := chunkSize
		if deps.BatchCap != nil {
			if bc := deps.BatchCap(fc); bc > 0 && bc < cap {
				cap = bc
			}
		}

		for lo := opts.Start; ; {
			if ctx.Err() != nil || ctrl.stopped() {
				return Result{Processed: processed, Stopped: true}
			}
			for ctrl.paused() {
				if ctx.Err() != nil {
					return Result{Processed: processed, Stopped: true}
				}
				pauseYield(ctx)
			}

			hi := lo + scan.Address(chunkSize-1)
			if hi > opts.End || hi < lo {
				hi = opts.End
			}
			chunkRange := scan.AddressRange{Lo: lo, Hi: hi}

			plan := planChunk(chunkRange, cap)
			records := opt.Run(fc, plan, batch.ReadBatchFunc(deps.Read), nil)

			processed += len(records)
			if cb.OnRecord != nil {
				for _, r := range records {
					cb.OnRecord(r)
				}
			}
			if deps.Handoff != nil {
				deps.Handoff(records)
			}
			if cb.OnStream != nil && len(records) > 0 {
				cb.OnStream(records)
			}
			if cb.OnProgress != nil {
				cb.OnProgress(scan.Progress{
					State:   scan.State{Total: total, Processed: processed},
					Percent: percent(processed, total),
				})
			}

			if hi == opts.End {
				break
			}
			lo = hi + 1
		}
	}

	return Result{Processed: processed, Stopped: false}
}

func planChunk(r scan.AddressRange, cap int) []scan.AddressRange {
	if cap < 1 {
		cap = r.Len()
	}
	out := make([]scan.AddressRange, 0, r.Len()/cap+1)
	for lo := r.Lo; ; {
		hi := lo + scan.Address(cap-1)
		if hi > r.Hi || hi < lo {
			hi = r.Hi
		}
		out = append(out, scan.AddressRange{Lo: lo, Hi: hi})
		if hi == r.Hi {
			break
		}
		lo = hi + 1
	}
	return out
}

func percent(processed, total int) float64 {
	if total == 0 {
		return 100
	}
	return 100 * float64(processed) / float64(total)
}

// pauseYield blocks briefly while paused, without busy-spinning. It
// returns early if ctx is canceled.
func pauseYield(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(pausePollInterval):
	}
}
