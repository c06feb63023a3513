package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oss-modbus/scanner"
)

func addrs(lo, hi scan.Address) []scan.Address {
	return scan.AddressRange{Lo: lo, Hi: hi}.Addresses()
}

func Test_Plan(t *testing.T) {
	tests := []struct {
		name string
		in   []scan.Address
		cap  int
		want []scan.AddressRange
	}{
		{
			"single contiguous run under cap",
			addrs(0, 9),
			125,
			[]scan.AddressRange{{Lo: 0, Hi: 9}},
		},
		{
			"exact cap boundary yields ceil(K/C) batches",
			addrs(0, 249),
			125,
			[]scan.AddressRange{{Lo: 0, Hi: 124}, {Lo: 125, Hi: 249}},
		},
		{
			"non-exact boundary still covers every address",
			addrs(0, 9),
			4,
			[]scan.AddressRange{{Lo: 0, Hi: 3}, {Lo: 4, Hi: 7}, {Lo: 8, Hi: 9}},
		},
		{
			"gap in addresses forces a new batch",
			[]scan.Address{0, 1, 2, 5, 6},
			125,
			[]scan.AddressRange{{Lo: 0, Hi: 2}, {Lo: 5, Hi: 6}},
		},
		{
			"empty input yields no batches",
			nil,
			125,
			nil,
		},
	}
	for _, tt := range tests {
		got := Plan(tt.in, tt.cap)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func Test_Plan_batchCountMatchesCeilDiv(t *testing.T) {
	// spec §8 property 4: ceil(K/C) batches for a contiguous run of K
	// addresses with cap C, before any fallback.
	cases := []struct{ k, c int }{
		{1, 125}, {125, 125}, {126, 125}, {250, 125}, {251, 125}, {2000, 125},
	}
	for _, tc := range cases {
		plan := PlanRange(scan.AddressRange{Lo: 0, Hi: scan.Address(tc.k - 1)}, tc.c)
		want := (tc.k + tc.c - 1) / tc.c
		assert.Equal(t, want, len(plan), "k=%d c=%d", tc.k, tc.c)
		total := 0
		for _, b := range plan {
			assert.LessOrEqual(t, b.Len(), tc.c)
			total += b.Len()
		}
		assert.Equal(t, tc.k, total)
	}
}

func Test_PlanRange_matchesPlan(t *testing.T) {
	r := scan.AddressRange{Lo: 10, Hi: 19}
	assert.Equal(t, Plan(r.Addresses(), 4), PlanRange(r, 4))
}
