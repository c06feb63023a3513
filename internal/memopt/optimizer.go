/*
Package memopt implements the Memory Optimizer (spec §4.4): a bounded,
in-process buffer of discovery records with a pluggable stream
consumer, backed by periodic process-memory sampling and a hard heap
cap that triggers a GC hint.

The buffer's single-owner access discipline is grounded on
rolfl-modbus/serverCache.go's manageCache, which serializes every
mutation of shared server state through one owner; here a sync.Mutex
plays that role directly instead of a dedicated goroutine and command
channel, since the Memory Optimizer has no need for rolfl's atomic
multi-step transactions. Process memory sampling is grounded on
gopsutil/v3's process package, which the teacher pack already commits
to for cross-platform memory introspection.
*/
package memopt

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/oss-modbus/scanner"
)

// StreamConsumer receives flushed batches of discovery records. An
// implementation should treat the call as an acknowledgment boundary:
// once it returns, the Optimizer considers the batch handed off.
type StreamConsumer func(records []scan.DiscoveryRecord)

// MemorySample is one process-memory observation (spec §4.4: "a ring
// of <=100 samples").
type MemorySample struct {
	At         time.Time
	HeapInUse  uint64 // bytes, from runtime.MemStats
	ProcessRSS uint64 // bytes, from gopsutil; 0 if unavailable
}

// Config controls the Memory Optimizer's buffering and sampling
// thresholds. The zero value is not usable; build one with
// DefaultConfig.
type Config struct {
	StreamingThreshold int           // flush the buffer once it reaches this length
	SampleInterval     time.Duration // how often to sample process memory
	SampleRingSize     int           // max retained MemorySamples
	HeapCapBytes       uint64        // runtime.GC hint trigger
	HealthHeapCap      uint64        // Healthy() heap-in-use ceiling
}

// DefaultConfig returns spec §4.4's defaults: 5s sampling, a 100-entry
// sample ring, a 500MB GC-hint cap, and a 1GB health ceiling.
func DefaultConfig(streamingThreshold int) Config {
	return Config{
		StreamingThreshold: streamingThreshold,
		SampleInterval:     5 * time.Second,
		SampleRingSize:     100,
		HeapCapBytes:       500 * 1024 * 1024,
		HealthHeapCap:      1024 * 1024 * 1024,
	}
}

// Optimizer is the Memory Optimizer. The zero value is not usable;
// construct with New.
type Optimizer struct {
	cfg      Config
	consumer StreamConsumer

	mu      sync.Mutex
	buf     []scan.DiscoveryRecord
	total   int // running counter of records ever added
	samples []MemorySample

	pid int32
	now func() time.Time
}

// New builds an Optimizer. consumer may be nil, in which case Flush
// returns the buffered records to its caller instead of handing them
// off.
func New(cfg Config, consumer StreamConsumer) *Optimizer {
	return &Optimizer{
		cfg:      cfg,
		consumer: consumer,
		pid:      int32(processID()),
		now:      time.Now,
	}
}

// Add appends records to the buffer and updates the running total. If
// the buffer has reached the configured streaming threshold, it
// flushes immediately.
func (o *Optimizer) Add(records []scan.DiscoveryRecord) []scan.DiscoveryRecord {
	o.mu.Lock()
	o.buf = append(o.buf, records...)
	o.total += len(records)
	shouldFlush := len(o.buf) >= o.cfg.StreamingThreshold
	o.mu.Unlock()

	if shouldFlush {
		return o.Flush()
	}
	return nil
}

// Flush moves the buffer's contents to the stream consumer (if set)
// or returns them to the caller (if not). The buffer is empty after
// Flush returns. Per spec §4.4's invariant, every record is handed off
// exactly once: through the consumer, or as Flush's return value,
// never both.
func (o *Optimizer) Flush() []scan.DiscoveryRecord {
	o.mu.Lock()
	out := o.buf
	o.buf = nil
	o.mu.Unlock()

	if len(out) == 0 {
		return nil
	}
	if o.consumer != nil {
		o.consumer(out)
		return nil
	}
	return out
}

// Total returns the running count of records ever added.
func (o *Optimizer) Total() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.total
}

// Buffered returns the current unflushed buffer length.
func (o *Optimizer) Buffered() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.buf)
}

// Healthy reports whether the process is within its memory budget:
// heap-in-use below 1GB and the buffer within its configured maximum
// (spec §4.4).
func (o *Optimizer) Healthy() bool {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapInuse < o.cfg.HealthHeapCap && o.Buffered() <= o.cfg.StreamingThreshold
}

// CheckHeapCap reads current heap-in-use and calls runtime.GC if it
// exceeds the configured hard cap, returning the sample taken.
func (o *Optimizer) CheckHeapCap() MemorySample {
	sample := o.sample()
	if sample.HeapInUse > o.cfg.HeapCapBytes {
		runtime.GC()
	}
	return sample
}

// Samples returns every retained memory sample, oldest first.
func (o *Optimizer) Samples() []MemorySample {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]MemorySample, len(o.samples))
	copy(out, o.samples)
	return out
}

func (o *Optimizer) sample() MemorySample {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	s := MemorySample{At: o.now(), HeapInUse: m.HeapInuse}

	if o.pid != 0 {
		if proc, err := process.NewProcess(o.pid); err == nil {
			if mi, err := proc.MemoryInfo(); err == nil && mi != nil {
				s.ProcessRSS = mi.RSS
			}
		}
	}

	o.mu.Lock()
	o.samples = append(o.samples, s)
	if len(o.samples) > o.cfg.SampleRingSize {
		o.samples = o.samples[len(o.samples)-o.cfg.SampleRingSize:]
	}
	o.mu.Unlock()
	return s
}

// RunSampler samples memory every cfg.SampleInterval until ctx is
// canceled. It is meant to run in its own goroutine for the lifetime
// of a scan.
func (o *Optimizer) RunSampler(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.CheckHeapCap()
		}
	}
}
