/*
Package scanner implements the Scanner Engine (spec §4.7): the
orchestration type that plans a sweep across scan.Options' address
range and function codes, drives either the traditional per-FC sweep or
the Streaming Scanner depending on size, paces reads through the
Network Optimizer, buffers/streams records through the Memory
Optimizer, checkpoints progress through the Scan State Manager, and
exposes the pause/stop/resume controls spec §4.7's state machine
describes.

Connection handling is grounded on rolfl-modbus/tcpClient.go's
single-connection-owns-the-round-trip discipline (spec §5: "at most one
outstanding Modbus request per scan"); the initial connect is retried
with exponential backoff from github.com/cenkalti/backoff/v4 rather than
a hand-rolled time.Sleep(2^n) loop, matching the backoff library the rest
of the retrieval pack (open-telemetry/otel-arrow, DataDog-datadog-agent)
already depends on transitively. Only the initial connect is retried: a
connection lost mid-scan is not re-established, and the reads that
follow fail and are classified per address like any other transport
error.
*/
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/oss-modbus/scanner"
	"github.com/oss-modbus/scanner/internal/batch"
	"github.com/oss-modbus/scanner/internal/memopt"
	"github.com/oss-modbus/scanner/internal/netopt"
	"github.com/oss-modbus/scanner/internal/reader"
	"github.com/oss-modbus/scanner/internal/state"
	"github.com/oss-modbus/scanner/internal/stream"
	"github.com/oss-modbus/scanner/internal/transport"
)

// ErrAlreadyRunning is returned by Start when the engine is not Idle;
// spec §5 prohibits concurrent sweeps against the same device.
var ErrAlreadyRunning = errors.New("scanner: engine is already running")

// reconnectBaseDelay and reconnectMaxDelay are spec §7's reconnection
// backoff constants: "base 2s, cap 60s".
const (
	reconnectBaseDelay = 2 * time.Second
	reconnectMaxDelay  = 60 * time.Second
)

// progressTickInterval is spec §4.7's independent progress ticker rate
// ("default 1 Hz").
const progressTickInterval = time.Second

// noOptimizerDelay is spec §4.7's fallback inter-request pacing when no
// Network Optimizer is installed: "apply a 1ms inter-request delay."
const noOptimizerDelay = time.Millisecond

// Result is what a scan produced: its terminal state, every emitted
// discovery record (including those also handed to a stream consumer),
// the accumulated errors, and whether a checkpoint remains for later
// resumption.
type Result struct {
	State     scan.RunState
	Records   []scan.DiscoveryRecord
	Errors    []scan.ReadError
	Resumable bool
}

// Deps are the Engine's external collaborators. Facade is required.
// StateDir selects the checkpoint directory (see internal/state.New).
// The Network and Memory Optimizers are not supplied here: the Engine
// builds its own from opts.NetworkOptimizationEnabled /
// opts.MemoryOptimizationEnabled, matching spec §3's "per scan"
// optimizer toggles.
type Deps struct {
	Facade   transport.Facade
	Logger   logrus.FieldLogger
	StateDir string
}

// Engine is the Scanner Engine: the single exported orchestration type
// spec §4.7 describes. The zero value is not usable; build one with
// New.
type Engine struct {
	cfg  scan.Config
	opts scan.Options

	facade transport.Facade
	reader *reader.Reader
	netopt *netopt.Optimizer
	memopt *memopt.Optimizer
	states *state.Manager
	logger logrus.FieldLogger

	mu       sync.Mutex
	runState scan.RunState
	scanState scan.State
	records  []scan.DiscoveryRecord

	stopping uint32
	paused   uint32

	cb scan.Callbacks
}

// New constructs an Engine over cfg/opts and deps, validating opts per
// spec §4.7 ("Validate scan options on construction"). It fails
// synchronously, before any device I/O, on invalid options — spec §7's
// "precondition violations... fail synchronously before any device
// I/O".
func New(cfg scan.Config, opts scan.Options, deps Deps) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Facade == nil {
		return nil, fmt.Errorf("scanner: Deps.Facade is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	e := &Engine{
		cfg:      cfg,
		opts:     opts,
		facade:   deps.Facade,
		reader:   reader.New(deps.Facade),
		states:   state.New(deps.StateDir),
		logger:   logger,
		runState: scan.Idle,
		scanState: scan.State{
			Total: opts.TotalUnits(),
		},
	}
	e.states.Logger = logger

	if opts.NetworkOptimizationEnabled {
		e.netopt = netopt.New(opts.RequestDelay)
	}
	if opts.MemoryOptimizationEnabled {
		e.memopt = memopt.New(memopt.DefaultConfig(opts.StreamingThreshold), e.flushToCallbacks)
	}
	return e, nil
}

// RunState returns the engine's current state-machine position.
func (e *Engine) RunState() scan.RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runState
}

// State returns a snapshot of the engine's progress.
func (e *Engine) State() scan.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scanState
}

// Stop requests the running (or paused) sweep halt at the next unit or
// chunk boundary. It is idempotent and safe to call from any goroutine.
func (e *Engine) Stop() {
	atomic.StoreUint32(&e.stopping, 1)
}

// Pause suspends further submissions without cancelling any in-flight
// request (spec §5). Resume lifts the suspension.
func (e *Engine) Pause() {
	e.setRunState(scan.Paused)
	atomic.StoreUint32(&e.paused, 1)
}

// Resume lifts a Pause. It is a no-op if the engine is not paused.
func (e *Engine) Resume() {
	atomic.StoreUint32(&e.paused, 0)
	e.mu.Lock()
	if e.runState == scan.Paused {
		e.runState = scan.Running
	}
	e.mu.Unlock()
}

func (e *Engine) isStopping() bool { return atomic.LoadUint32(&e.stopping) == 1 }
func (e *Engine) isPaused() bool   { return atomic.LoadUint32(&e.paused) == 1 }

func (e *Engine) setRunState(s scan.RunState) {
	e.mu.Lock()
	e.runState = s
	e.mu.Unlock()
}

// flushToCallbacks is the Memory Optimizer's stream consumer: it
// notifies the caller's OnStream callback, if any. handoff has already
// recorded every one of these records into e.records and the
// checkpoint-bound scanState by the time they reach here, so a slow or
// absent consumer affects only pacing (the engine blocks on this call
// before issuing further reads), never completeness of the terminal
// Result or a checkpoint taken mid-flush.
func (e *Engine) flushToCallbacks(records []scan.DiscoveryRecord) {
	e.cb.stream(records)
}

// Start runs a scan from scratch: Idle -> Running, connect (with
// reconnect backoff on failure), plan, sweep (traditional or streaming
// per opts.ShouldStream()), then settle into Completed, Stopped, or
// Failed. cb is bound fresh for this run, per spec §9's design note.
func (e *Engine) Start(ctx context.Context, cb scan.Callbacks) (Result, error) {
	e.mu.Lock()
	if e.runState != scan.Idle {
		e.mu.Unlock()
		return Result{}, ErrAlreadyRunning
	}
	e.runState = scan.Running
	e.scanState = scan.State{
		Total:     e.opts.TotalUnits(),
		StartTime: time.Now(),
		Running:   true,
	}
	e.records = nil
	e.mu.Unlock()

	atomic.StoreUint32(&e.stopping, 0)
	atomic.StoreUint32(&e.paused, 0)
	e.cb = cb

	return e.run(ctx)
}

// ResumeFromSaved loads the checkpoint, validates it, rebinds cb as the
// fresh callback set (checkpoints never carry callbacks, per spec §9),
// restores scan.State and the accumulated records, and continues with
// the current function code from its saved CurrentAddress, then the
// remaining function codes from their own start addresses (spec §4.7).
func (e *Engine) ResumeFromSaved(ctx context.Context, cb scan.Callbacks) (Result, error) {
	cp, ok, err := e.states.Load()
	if err != nil {
		return Result{}, fmt.Errorf("scanner: resume: %w", err)
	}
	if !ok {
		return Result{}, fmt.Errorf("scanner: resume: no checkpoint found")
	}
	res := state.Validate(cp)
	if !res.Valid() {
		return Result{}, fmt.Errorf("scanner: resume: invalid checkpoint: %v", res.Errors)
	}

	e.mu.Lock()
	if e.runState != scan.Idle {
		e.mu.Unlock()
		return Result{}, ErrAlreadyRunning
	}
	e.cfg = cp.Config
	e.opts = cp.Options
	e.scanState = cp.State
	e.scanState.Running = true
	e.scanState.Paused = false
	e.records = append([]scan.DiscoveryRecord(nil), cp.Records...)
	e.runState = scan.Running
	e.mu.Unlock()

	atomic.StoreUint32(&e.stopping, 0)
	atomic.StoreUint32(&e.paused, 0)
	e.cb = cb

	e.logger.WithFields(logrus.Fields{
		"current_fc":      e.scanState.CurrentFC,
		"current_address": e.scanState.CurrentAddress,
		"processed":       e.scanState.Processed,
	}).Info("resuming scan from checkpoint")

	return e.run(ctx)
}

// run is the shared body of Start and ResumeFromSaved: connect, sweep,
// settle.
func (e *Engine) run(ctx context.Context) (Result, error) {
	if err := e.connectWithRetry(ctx); err != nil {
		e.setRunState(scan.Failed)
		e.logger.WithError(err).Error("scan failed: could not connect")
		return e.settle(scan.Failed), err
	}
	defer e.facade.Close()

	autoSaveCtx, cancelAutoSave := context.WithCancel(ctx)
	defer cancelAutoSave()
	if e.opts.AutoSaveInterval > 0 {
		go e.states.AutoSave(autoSaveCtx, e.opts.AutoSaveInterval, e.saveCheckpoint, e.cb.err)
	}

	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()
	go e.runProgressTicker(progressCtx)

	var sweepErr error
	if e.opts.ShouldStream() {
		sweepErr = e.sweepStreaming(ctx)
	} else {
		sweepErr = e.sweepTraditional(ctx)
	}

	if e.memopt != nil {
		e.memopt.Flush()
	}

	final := scan.Completed
	switch {
	case sweepErr != nil:
		final = scan.Failed
	case e.isStopping():
		final = scan.Stopping
	}
	return e.settle(final), sweepErr
}

// settle finalizes the engine's state-machine position and produces a
// Result: Completed clears the checkpoint, Stopping (-> Idle) persists
// one if any unit was processed, Failed persists one unconditionally
// when progress was made (spec §7: "A Failed scan has a resumable
// checkpoint iff at least one unit had been processed").
func (e *Engine) settle(outcome scan.RunState) Result {
	e.mu.Lock()
	st := e.scanState
	st.Running = false
	e.scanState = st
	records := append([]scan.DiscoveryRecord(nil), e.records...)
	errs := append([]scan.ReadError(nil), st.Errors...)
	e.mu.Unlock()

	resumable := false
	switch outcome {
	case scan.Completed:
		if err := e.states.Clear(); err != nil {
			e.cb.err(err)
		}
		e.setRunState(scan.Completed)
	case scan.Stopping, scan.Failed:
		if st.Processed > 0 {
			if err := e.saveCheckpoint(); err != nil {
				e.cb.err(err)
			} else {
				resumable = true
			}
		}
		if outcome == scan.Stopping {
			e.setRunState(scan.Idle)
		} else {
			e.setRunState(scan.Failed)
		}
	}

	return Result{State: outcome, Records: records, Errors: errs, Resumable: resumable}
}

// saveCheckpoint takes a consistent snapshot of state and persists it.
// Called from both the auto-save ticker and settle, so it always reads
// under the lock (spec §5: "the engine serializes state mutation
// points such that the snapshot satisfies the invariants").
func (e *Engine) saveCheckpoint() error {
	e.mu.Lock()
	cfg, opts, st := e.cfg, e.opts, e.scanState
	records := append([]scan.DiscoveryRecord(nil), e.records...)
	e.mu.Unlock()
	return e.states.Save(cfg, opts, st, records)
}

// runProgressTicker emits OnProgress at progressTickInterval while the
// engine is running and not paused, independent of per-unit updates
// (spec §4.7).
func (e *Engine) runProgressTicker(ctx context.Context) {
	ticker := time.NewTicker(progressTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.isPaused() {
				continue
			}
			st := e.State()
			e.cb.progress(scan.Progress{State: st, Percent: st.ProgressPercent()})
		}
	}
}

// connectWithRetry dials the device, retrying with exponential backoff
// (base 2s, cap 60s) up to cfg.Retries times on failure, per spec §7.
func (e *Engine) connectWithRetry(ctx context.Context) error {
	attempt := func() error {
		if err := e.facade.Connect(e.cfg.Host, e.cfg.Port); err != nil {
			return err
		}
		e.facade.SetSlave(e.cfg.SlaveID)
		e.facade.SetTimeout(e.cfg.Timeout)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = reconnectBaseDelay
	b.MaxInterval = reconnectMaxDelay
	b.MaxElapsedTime = 0
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.cfg.Retries)), ctx)

	return backoff.Retry(func() error {
		err := attempt()
		if err != nil {
			e.logger.WithError(err).Warn("connect attempt failed, retrying")
		}
		return err
	}, bo)
}

// handoff routes a freshly produced chunk of records to the Memory
// Optimizer (if engaged) or directly to the caller's stream callback,
// and always fires OnRecord per record and folds each into scanState.
func (e *Engine) handoff(records []scan.DiscoveryRecord) {
	e.mu.Lock()
	for _, r := range records {
		e.scanState.Advance(r)
	}
	e.records = append(e.records, records...)
	e.mu.Unlock()

	for _, r := range records {
		e.cb.record(r)
	}

	if e.memopt != nil {
		e.memopt.Add(records)
	} else {
		e.cb.stream(records)
	}
}

// readBatch is the ReadBatchFunc wired through the Network Optimizer
// (if engaged) down to the Register Reader, matching spec §4.7's
// "submit batched reads through the Network Optimizer".
func (e *Engine) readBatch(fc scan.FunctionCode, address scan.Address, count int) []scan.DiscoveryRecord {
	if e.netopt == nil {
		if noOptimizerDelay > 0 {
			time.Sleep(noOptimizerDelay)
		}
		return e.reader.Read(fc, address, count)
	}
	result, _ := e.netopt.Submit(netopt.PriorityNormal, count*2, func() (interface{}, error) {
		return e.reader.Read(fc, address, count), nil
	})
	if result == nil {
		return nil
	}
	return result.([]scan.DiscoveryRecord)
}

func (e *Engine) batchCap(fc scan.FunctionCode) int {
	return e.cfg.BatchCap(fc)
}

// sweepTraditional implements spec §4.7's traditional per-FC sweep:
// batched reads with singles fallback when batching is enabled, plain
// per-address reads otherwise.
func (e *Engine) sweepTraditional(ctx context.Context) error {
	opt := batch.New()
	emitProgress := func() {
		if e.cb.OnProgress != nil {
			st := e.State()
			e.cb.OnProgress(scan.Progress{State: st, Percent: st.ProgressPercent()})
		}
	}

	for _, fc := range e.fcsFromResumePoint() {
		start, ok := e.startAddressFor(fc)
		if !ok {
			continue
		}
		addrRange := scan.AddressRange{Lo: start, Hi: e.opts.End}
		if !addrRange.Valid() {
			continue
		}

		if e.opts.BatchingEnabled {
			plan := batch.PlanRange(addrRange, e.batchCap(fc))
			for _, b := range plan {
				if ctx.Err() != nil || e.isStopping() {
					return nil
				}
				e.waitWhilePaused(ctx)
				recs := opt.Run(fc, []scan.AddressRange{b}, e.readBatch, nil)
				e.handoff(recs)
				emitProgress()
			}
		} else {
			for a := addrRange.Lo; ; a++ {
				if ctx.Err() != nil || e.isStopping() {
					return nil
				}
				e.waitWhilePaused(ctx)
				e.handoff(e.readBatch(fc, a, 1))
				emitProgress()
				if a == addrRange.Hi {
					break
				}
			}
		}
	}
	return nil
}

// sweepStreaming drives the scan through the Streaming Scanner (spec
// §4.5/§4.7) when the scan's total units exceed the streaming
// threshold or streaming was explicitly requested. It runs one function
// code at a time so that, on resume, only the in-progress function code
// restarts mid-range — every later function code still begins at its
// own configured start address (spec §4.7).
func (e *Engine) sweepStreaming(ctx context.Context) error {
	deps := stream.Deps{
		Read:     e.readBatch,
		BatchCap: e.batchCap,
		Handoff:  e.handoff,
	}
	ctrl := stream.Control{
		Stopped: e.isStopping,
		Paused:  e.isPaused,
	}
	cb := scan.Callbacks{OnProgress: func(scan.Progress) {
		st := e.State()
		e.cb.progress(scan.Progress{State: st, Percent: st.ProgressPercent()})
	}}

	for _, fc := range e.fcsFromResumePoint() {
		if ctx.Err() != nil || e.isStopping() {
			return nil
		}
		start, ok := e.startAddressFor(fc)
		if !ok {
			continue
		}
		fcOpts := e.opts
		fcOpts.FunctionCodes = []scan.FunctionCode{fc}
		fcOpts.Start = start

		if res := stream.Scan(ctx, fcOpts, deps, ctrl, cb); res.Stopped {
			return nil
		}
	}
	return nil
}

// fcsFromResumePoint returns the function codes still to be processed:
// on a fresh start, every configured code; on resume, the saved current
// code followed by whatever remains after it in the configured order.
func (e *Engine) fcsFromResumePoint() []scan.FunctionCode {
	e.mu.Lock()
	cur := e.scanState.CurrentFC
	processed := e.scanState.Processed > 0
	e.mu.Unlock()

	if !processed || cur == 0 {
		return e.opts.FunctionCodes
	}
	for i, fc := range e.opts.FunctionCodes {
		if fc == cur {
			return e.opts.FunctionCodes[i:]
		}
	}
	return e.opts.FunctionCodes
}

// startAddressFor is the address a sweep should resume from for fc: the
// saved CurrentAddress+1 for the in-progress function code (false if
// that code's range is already fully processed), opts.Start for every
// other function code (spec §4.7: "proceeds through the remaining FCs
// from each FC's start_address").
func (e *Engine) startAddressFor(fc scan.FunctionCode) (addr scan.Address, ok bool) {
	e.mu.Lock()
	cur, curFC := e.scanState.CurrentAddress, e.scanState.CurrentFC
	processed := e.scanState.Processed > 0
	e.mu.Unlock()

	if processed && fc == curFC {
		if cur >= e.opts.End {
			return 0, false
		}
		return cur + 1, true
	}
	return e.opts.Start, true
}

// waitWhilePaused blocks the traditional sweep while the engine is
// paused, without cancelling anything in flight (spec §5).
func (e *Engine) waitWhilePaused(ctx context.Context) {
	for e.isPaused() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
}
