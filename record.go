package scan

import (
	"fmt"
	"time"
)

// DiscoveryRecord is the result of probing a single (address, function
// code) pair. Accessible and Err are mutually exclusive: Accessible is
// true if and only if Err is nil.
//
// When Accessible, exactly one of BoolValue/WordValue is meaningful:
// BoolValue for the bit function codes (Coils, DiscreteInputs),
// WordValue for the register function codes (HoldingRegisters,
// InputRegisters). The other field holds its zero value. When not
// accessible, both value fields hold their type's zero value.
type DiscoveryRecord struct {
	Address      Address
	FunctionCode FunctionCode
	DataType     string

	BoolValue bool
	WordValue uint16

	Accessible bool
	Timestamp  time.Time

	Err *ReadError
}

// NewAccessibleBit builds an accessible record for a bit function code.
func NewAccessibleBit(addr Address, fc FunctionCode, value bool, at time.Time) DiscoveryRecord {
	return DiscoveryRecord{
		Address:      addr,
		FunctionCode: fc,
		DataType:     fc.Tag(),
		BoolValue:    value,
		Accessible:   true,
		Timestamp:    at,
	}
}

// NewAccessibleWord builds an accessible record for a register function
// code.
func NewAccessibleWord(addr Address, fc FunctionCode, value uint16, at time.Time) DiscoveryRecord {
	return DiscoveryRecord{
		Address:      addr,
		FunctionCode: fc,
		DataType:     fc.Tag(),
		WordValue:    value,
		Accessible:   true,
		Timestamp:    at,
	}
}

// NewInaccessible builds an inaccessible record carrying a classified
// error. The value fields are left at their type's zero value, matching
// the data-model invariant in spec §3.
func NewInaccessible(addr Address, fc FunctionCode, err *ReadError, at time.Time) DiscoveryRecord {
	return DiscoveryRecord{
		Address:      addr,
		FunctionCode: fc,
		DataType:     fc.Tag(),
		Accessible:   false,
		Timestamp:    at,
		Err:          err,
	}
}

// Valid reports whether the record satisfies the core invariants from
// spec §3/§8: accessible iff no error, and value type matches the
// function code.
func (r DiscoveryRecord) Valid() bool {
	if r.Accessible != (r.Err == nil) {
		return false
	}
	if !r.Accessible {
		return r.BoolValue == false && r.WordValue == 0
	}
	if r.FunctionCode.IsBit() {
		return r.WordValue == 0
	}
	return !r.BoolValue
}

func (r DiscoveryRecord) String() string {
	if r.Accessible {
		if r.FunctionCode.IsBit() {
			return fmt.Sprintf("%s[%d] = %t", r.FunctionCode, r.Address, r.BoolValue)
		}
		return fmt.Sprintf("%s[%d] = %d", r.FunctionCode, r.Address, r.WordValue)
	}
	return fmt.Sprintf("%s[%d] inaccessible: %v", r.FunctionCode, r.Address, r.Err)
}
