package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oss-modbus/scanner"
)

func now() time.Time { return time.Unix(0, 0) }

func ok(addr scan.Address, fc scan.FunctionCode) scan.DiscoveryRecord {
	return scan.NewAccessibleWord(addr, fc, 1, now())
}

func fail(addr scan.Address, fc scan.FunctionCode, kind scan.ReadErrorKind) scan.DiscoveryRecord {
	return scan.NewInaccessible(addr, fc, scan.NewReadError(kind, 0, kind.String()), now())
}

// scripted builds a ReadBatchFunc that returns the next canned response
// regardless of what's asked, recording every call it receives.
func scripted(t *testing.T, responses ...[]scan.DiscoveryRecord) (ReadBatchFunc, *[][3]int) {
	t.Helper()
	calls := &[][3]int{}
	i := 0
	return func(fc scan.FunctionCode, address scan.Address, count int) []scan.DiscoveryRecord {
		*calls = append(*calls, [3]int{int(fc), int(address), count})
		if i >= len(responses) {
			t.Fatalf("unexpected extra call: fc=%d addr=%d count=%d", fc, address, count)
		}
		r := responses[i]
		i++
		return r
	}, calls
}

func Test_Optimizer_Run_allAccessible(t *testing.T) {
	fc := scan.HoldingRegisters
	plan := []scan.AddressRange{{Lo: 0, Hi: 2}}
	read, calls := scripted(t, []scan.DiscoveryRecord{ok(0, fc), ok(1, fc), ok(2, fc)})
	stats := newStats()
	out := New().Run(fc, plan, read, stats)

	assert.Len(t, out, 3)
	assert.Len(t, *calls, 1)
	assert.Equal(t, 1, stats.Attempts)
	assert.Equal(t, 1, stats.Successes)
	assert.Equal(t, 0, stats.Fallbacks)
	assert.Equal(t, 1.0, stats.Efficiency())
}

func Test_Optimizer_Run_illegalAddress_marksRangeWithoutProbing(t *testing.T) {
	fc := scan.HoldingRegisters
	plan := []scan.AddressRange{{Lo: 10, Hi: 12}}
	batchFail := []scan.DiscoveryRecord{
		fail(10, fc, scan.ErrIllegalDataAddress),
		fail(11, fc, scan.ErrIllegalDataAddress),
		fail(12, fc, scan.ErrIllegalDataAddress),
	}
	read, calls := scripted(t, batchFail)
	stats := newStats()
	out := New().Run(fc, plan, read, stats)

	assert.Equal(t, batchFail, out)
	assert.Len(t, *calls, 1, "illegal address must not trigger per-address probing")
	assert.Equal(t, 0, stats.Fallbacks)
}

func Test_Optimizer_Run_timeoutFallsBackToSingles(t *testing.T) {
	fc := scan.HoldingRegisters
	plan := []scan.AddressRange{{Lo: 5, Hi: 6}}
	batchTimeout := []scan.DiscoveryRecord{
		fail(5, fc, scan.ErrTimeout),
		fail(6, fc, scan.ErrTimeout),
	}
	read, calls := scripted(t, batchTimeout, []scan.DiscoveryRecord{ok(5, fc)}, []scan.DiscoveryRecord{ok(6, fc)})
	stats := newStats()
	out := New().Run(fc, plan, read, stats)

	assert.Equal(t, []scan.DiscoveryRecord{ok(5, fc), ok(6, fc)}, out)
	assert.Len(t, *calls, 3, "one batch attempt plus one single-address read per address")
	assert.Equal(t, (*calls)[1], [3]int{int(fc), 5, 1})
	assert.Equal(t, (*calls)[2], [3]int{int(fc), 6, 1})
	assert.Equal(t, 1, stats.Fallbacks)
}

func Test_Optimizer_Run_otherErrorPropagatesToWholeBatch(t *testing.T) {
	fc := scan.HoldingRegisters
	plan := []scan.AddressRange{{Lo: 0, Hi: 1}}
	batchFail := []scan.DiscoveryRecord{
		fail(0, fc, scan.ErrGatewayPathUnavailable),
		fail(1, fc, scan.ErrGatewayPathUnavailable),
	}
	read, calls := scripted(t, batchFail)
	out := New().Run(fc, plan, read, newStats())

	assert.Equal(t, batchFail, out)
	assert.Len(t, *calls, 1)
}

func Test_Optimizer_Run_multipleBatchesPreserveOrder(t *testing.T) {
	fc := scan.Coils
	plan := []scan.AddressRange{{Lo: 0, Hi: 0}, {Lo: 5, Hi: 5}}
	read, _ := scripted(t, []scan.DiscoveryRecord{ok(0, fc)}, []scan.DiscoveryRecord{ok(5, fc)})
	out := New().Run(fc, plan, read, nil)
	assert.Equal(t, []scan.DiscoveryRecord{ok(0, fc), ok(5, fc)}, out)
}

func Test_Stats_Efficiency_noAttemptsIsOne(t *testing.T) {
	assert.Equal(t, 1.0, (&Stats{}).Efficiency())
}

func Test_hasMixedFailure(t *testing.T) {
	fc := scan.HoldingRegisters
	assert.False(t, hasMixedFailure([]scan.DiscoveryRecord{ok(0, fc), ok(1, fc)}))
	assert.False(t, hasMixedFailure([]scan.DiscoveryRecord{fail(0, fc, scan.ErrTimeout)}))
	assert.True(t, hasMixedFailure([]scan.DiscoveryRecord{ok(0, fc), fail(1, fc, scan.ErrTimeout)}))
}
