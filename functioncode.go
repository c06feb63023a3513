package scan

import "fmt"

// FunctionCode is one of the four standard Modbus read function codes.
// The set is closed: no other value is valid.
type FunctionCode uint8

const (
	// Coils reads read/write single-bit outputs (function code 1).
	Coils FunctionCode = 1
	// DiscreteInputs reads read-only single-bit inputs (function code 2).
	DiscreteInputs FunctionCode = 2
	// HoldingRegisters reads read/write 16-bit registers (function code 3).
	HoldingRegisters FunctionCode = 3
	// InputRegisters reads read-only 16-bit registers (function code 4).
	InputRegisters FunctionCode = 4
)

// AllFunctionCodes lists the four supported codes in ascending order.
func AllFunctionCodes() []FunctionCode {
	return []FunctionCode{Coils, DiscreteInputs, HoldingRegisters, InputRegisters}
}

// ParseFunctionCode maps a wire function code byte to a FunctionCode.
func ParseFunctionCode(code int) (FunctionCode, error) {
	switch FunctionCode(code) {
	case Coils, DiscreteInputs, HoldingRegisters, InputRegisters:
		return FunctionCode(code), nil
	default:
		return 0, fmt.Errorf("scan: unsupported function code %d", code)
	}
}

// IsBit reports whether this function code reads single-bit units (as
// opposed to 16-bit registers).
func (f FunctionCode) IsBit() bool {
	return f == Coils || f == DiscreteInputs
}

// UnitSize is the bit width of a single unit read by this function
// code: 1 for coils/discretes, 16 for registers.
func (f FunctionCode) UnitSize() int {
	if f.IsBit() {
		return 1
	}
	return 16
}

// MaxUnits is the protocol ceiling on units per request: 2000 for the
// bit function codes, 125 for the register function codes.
func (f FunctionCode) MaxUnits() int {
	if f.IsBit() {
		return 2000
	}
	return 125
}

// ReadOnly reports whether the function code addresses read-only
// memory: true for DiscreteInputs and InputRegisters. Coils and holding
// registers can also be written with other (unmodeled) function codes,
// but a read through one of these four never presumes the underlying
// memory is writable.
func (f FunctionCode) ReadOnly() bool {
	return f == DiscreteInputs || f == InputRegisters
}

// Tag is the semantic name used in DiscoveryRecord.DataType.
func (f FunctionCode) Tag() string {
	switch f {
	case Coils:
		return "coil"
	case DiscreteInputs:
		return "discrete"
	case HoldingRegisters:
		return "holding"
	case InputRegisters:
		return "input"
	default:
		return "unknown"
	}
}

// String implements fmt.Stringer for logging and error messages.
func (f FunctionCode) String() string {
	switch f {
	case Coils:
		return "Coils"
	case DiscreteInputs:
		return "DiscreteInputs"
	case HoldingRegisters:
		return "HoldingRegisters"
	case InputRegisters:
		return "InputRegisters"
	default:
		return fmt.Sprintf("FunctionCode(%d)", uint8(f))
	}
}
