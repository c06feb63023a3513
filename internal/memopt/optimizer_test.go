package memopt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oss-modbus/scanner"
)

func rec(addr scan.Address) scan.DiscoveryRecord {
	return scan.NewAccessibleWord(addr, scan.HoldingRegisters, 1, time.Unix(0, 0))
}

func Test_Add_belowThreshold_doesNotFlush(t *testing.T) {
	o := New(DefaultConfig(10), nil)
	out := o.Add([]scan.DiscoveryRecord{rec(0), rec(1)})
	assert.Nil(t, out)
	assert.Equal(t, 2, o.Buffered())
	assert.Equal(t, 2, o.Total())
}

func Test_Add_atThreshold_flushesToCaller(t *testing.T) {
	cfg := DefaultConfig(2)
	o := New(cfg, nil)
	out := o.Add([]scan.DiscoveryRecord{rec(0), rec(1)})
	require.Len(t, out, 2)
	assert.Equal(t, 0, o.Buffered())
}

func Test_Add_atThreshold_flushesToConsumer(t *testing.T) {
	var got []scan.DiscoveryRecord
	consumer := func(records []scan.DiscoveryRecord) { got = records }
	o := New(DefaultConfig(2), consumer)

	out := o.Add([]scan.DiscoveryRecord{rec(0), rec(1)})
	assert.Nil(t, out, "consumer handoff must not also return records")
	require.Len(t, got, 2)
	assert.Equal(t, 0, o.Buffered())
}

func Test_Flush_emptyBufferReturnsNil(t *testing.T) {
	o := New(DefaultConfig(10), nil)
	assert.Nil(t, o.Flush())
}

func Test_Flush_isExactlyOnceHandoff(t *testing.T) {
	calls := 0
	var lastBatch []scan.DiscoveryRecord
	o := New(DefaultConfig(100), func(records []scan.DiscoveryRecord) {
		calls++
		lastBatch = records
	})
	o.Add([]scan.DiscoveryRecord{rec(0), rec(1), rec(2)})
	flushed := o.Flush()
	assert.Nil(t, flushed)
	assert.Equal(t, 1, calls)
	assert.Len(t, lastBatch, 3)
	assert.Equal(t, 0, o.Buffered())
}

func Test_Healthy_trueUnderDefaultBudget(t *testing.T) {
	o := New(DefaultConfig(1000), nil)
	assert.True(t, o.Healthy())
}

func Test_Healthy_falseWhenBufferExceedsMax(t *testing.T) {
	o := New(DefaultConfig(1), nil)
	// streaming threshold of 1 means Add(2 records) triggers an
	// immediate flush to the caller, leaving the buffer empty again;
	// simulate an unflushed backlog directly instead.
	o.buf = []scan.DiscoveryRecord{rec(0), rec(1)}
	assert.False(t, o.Healthy())
}

func Test_CheckHeapCap_returnsLiveSample(t *testing.T) {
	o := New(DefaultConfig(10), nil)
	s := o.CheckHeapCap()
	assert.NotZero(t, s.At)
	assert.Len(t, o.Samples(), 1)
}

func Test_Samples_ringBoundedAtConfiguredSize(t *testing.T) {
	cfg := DefaultConfig(10)
	cfg.SampleRingSize = 3
	o := New(cfg, nil)
	for i := 0; i < 5; i++ {
		o.sample()
	}
	assert.Len(t, o.Samples(), 3)
}
