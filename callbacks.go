package scan

// Progress is a lightweight snapshot of where a running scan currently
// stands, delivered through Callbacks.OnProgress.
type Progress struct {
	State   State
	Percent float64
}

// Callbacks is the small polymorphic capability set spec §9's design
// notes call for: progress, per-record discovery, errors, and the
// stream consumer, bundled so a caller supplies them once at Start
// rather than scattering them across configuration. None of these are
// part of persisted state — on resume, a fresh Callbacks is bound,
// matching spec §9: "callbacks are not part of persisted state".
type Callbacks struct {
	// OnProgress is invoked on the independent progress ticker and
	// after each unit, batch, or chunk completes.
	OnProgress func(Progress)

	// OnRecord is invoked once per emitted DiscoveryRecord, in the
	// order records are produced.
	OnRecord func(DiscoveryRecord)

	// OnError is invoked for faults that do not themselves appear on a
	// DiscoveryRecord: auto-save failures, and a failure to save or
	// clear the checkpoint when the scan settles.
	OnError func(error)

	// OnStream is invoked with each batch of records handed off by the
	// streaming scanner or the Memory Optimizer's flush, in emission
	// order.
	OnStream func([]DiscoveryRecord)
}

func (c Callbacks) progress(p Progress) {
	if c.OnProgress != nil {
		c.OnProgress(p)
	}
}

func (c Callbacks) record(r DiscoveryRecord) {
	if c.OnRecord != nil {
		c.OnRecord(r)
	}
}

func (c Callbacks) err(e error) {
	if c.OnError != nil {
		c.OnError(e)
	}
}

func (c Callbacks) stream(recs []DiscoveryRecord) {
	if c.OnStream != nil && len(recs) > 0 {
		c.OnStream(recs)
	}
}
