package reader

import (
	"encoding/binary"
	"fmt"
)

// decodeBits unpacks count bits from a packed-bit Modbus payload
// (LSB-first within each byte, as returned for coils/discrete inputs).
// It is an error if the payload does not carry exactly enough bytes for
// count bits.
func decodeBits(raw []byte, count int) ([]bool, error) {
	want := (count + 7) / 8
	if len(raw) != want {
		return nil, fmt.Errorf("reader: expected %d packed byte(s) for %d bit(s), got %d", want, count, len(raw))
	}
	out := make([]bool, count)
	for i := 0; i < count; i++ {
		byteIdx := i / 8
		bitIdx := uint(i % 8)
		out[i] = raw[byteIdx]&(1<<bitIdx) != 0
	}
	return out, nil
}

// decodeWords unpacks count big-endian 16-bit registers.
func decodeWords(raw []byte, count int) ([]uint16, error) {
	if len(raw) != count*2 {
		return nil, fmt.Errorf("reader: expected %d byte(s) for %d register(s), got %d", count*2, count, len(raw))
	}
	out := make([]uint16, count)
	for i := 0; i < count; i++ {
		out[i] = binary.BigEndian.Uint16(raw[i*2 : i*2+2])
	}
	return out, nil
}
