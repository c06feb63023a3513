package stream

import (
	"context"
	"testing"
	"time"

	"github.com/oss-modbus/scanner"
)

func fakeRead(t *testing.T) ReadBatchFunc {
	t.Helper()
	return func(fc scan.FunctionCode, address scan.Address, count int) []scan.DiscoveryRecord {
		out := make([]scan.DiscoveryRecord, count)
		for i := 0; i < count; i++ {
			addr := address + scan.Address(i)
			out[i] = scan.NewAccessibleWord(addr, fc, 1000+uint16(addr), time.Now())
		}
		return out
	}
}

func TestScan_chunksAndOrdersRecords(t *testing.T) {
	opts := scan.Options{
		Start:              0,
		End:                999,
		FunctionCodes:      []scan.FunctionCode{scan.HoldingRegisters},
		StreamingThreshold: 500,
	}

	var handoffs [][]scan.DiscoveryRecord
	var allRecords []scan.DiscoveryRecord
	deps := Deps{
		Read: fakeRead(t),
		Handoff: func(recs []scan.DiscoveryRecord) {
			handoffs = append(handoffs, recs)
			allRecords = append(allRecords, recs...)
		},
	}

	res := Scan(context.Background(), opts, deps, Control{}, scan.Callbacks{})

	if res.Processed != 1000 {
		t.Fatalf("Processed = %d, want 1000", res.Processed)
	}
	if len(handoffs) < 2 {
		t.Fatalf("handoffs = %d chunks, want at least 2 (chunked delivery)", len(handoffs))
	}
	if len(allRecords) != 1000 {
		t.Fatalf("allRecords len = %d, want 1000", len(allRecords))
	}
	for i, r := range allRecords {
		if int(r.Address) != i {
			t.Fatalf("allRecords[%d].Address = %d, want %d (strictly ascending)", i, r.Address, i)
		}
	}
}

func TestScan_stopsBetweenChunks(t *testing.T) {
	opts := scan.Options{
		Start:              0,
		End:                999,
		FunctionCodes:      []scan.FunctionCode{scan.HoldingRegisters},
		StreamingThreshold: 500,
	}

	chunks := 0
	deps := Deps{
		Read: fakeRead(t),
	}
	stop := false
	deps.Handoff = func(recs []scan.DiscoveryRecord) {
		chunks++
		if chunks == 1 {
			stop = true
		}
	}

	res := Scan(context.Background(), opts, deps, Control{Stopped: func() bool { return stop }}, scan.Callbacks{})

	if !res.Stopped {
		t.Fatalf("Result.Stopped = false, want true")
	}
	if chunks != 1 {
		t.Fatalf("chunks delivered before stop = %d, want exactly 1", chunks)
	}
}

func TestScan_respectsContextCancellation(t *testing.T) {
	opts := scan.Options{
		Start:              0,
		End:                9999,
		FunctionCodes:      []scan.FunctionCode{scan.HoldingRegisters},
		StreamingThreshold: 10,
		// small chunks so the context has a chance to be observed
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	deps := Deps{Read: fakeRead(t), ChunkSize: 10}
	res := Scan(ctx, opts, deps, Control{}, scan.Callbacks{})
	if !res.Stopped {
		t.Fatalf("Result.Stopped = false, want true for a pre-canceled context")
	}
}
