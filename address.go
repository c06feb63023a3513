package scan

import "fmt"

// Address is a Modbus register/coil address in [0, 65535].
type Address = uint16

// MaxAddress is the highest representable Modbus address.
const MaxAddress Address = 65535

// AddressRange is a closed interval [Lo, Hi] of addresses, inclusive on
// both ends.
type AddressRange struct {
	Lo, Hi Address
}

// Valid reports whether Lo <= Hi.
func (r AddressRange) Valid() bool {
	return r.Lo <= r.Hi
}

// Len is the number of addresses covered by the range.
func (r AddressRange) Len() int {
	if !r.Valid() {
		return 0
	}
	return int(r.Hi) - int(r.Lo) + 1
}

// Contains reports whether addr falls within the range.
func (r AddressRange) Contains(addr Address) bool {
	return r.Valid() && addr >= r.Lo && addr <= r.Hi
}

// String renders the range as "lo..hi".
func (r AddressRange) String() string {
	return fmt.Sprintf("%d..%d", r.Lo, r.Hi)
}

// Addresses expands the range into the sequence of individual addresses
// it covers, ascending. Callers planning large ranges should prefer
// working with the range directly; this is a convenience for tests and
// for building the flat address sequence the Batch Optimizer consumes.
func (r AddressRange) Addresses() []Address {
	if !r.Valid() {
		return nil
	}
	out := make([]Address, 0, r.Len())
	for a := r.Lo; ; a++ {
		out = append(out, a)
		if a == r.Hi {
			break
		}
	}
	return out
}
