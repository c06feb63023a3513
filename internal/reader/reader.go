/*
Package reader implements the Register Reader (spec §4.1): it issues a
typed read of N units at address A for function code f through a
transport.Facade, decodes the payload, and classifies any failure into
a scan.ReadError. It is the single place that enforces the value-type
and length invariants spec §9's design notes call for — the facade
below it returns weakly-typed bytes, duck-typed no further than "here is
what came off the wire".

Decoding is grounded on rolfl-modbus/codec.go's dataReader.bits/.words,
adapted from a packed-frame cursor reader into a decode-only pair of
pure functions, since framing itself is now goburrow/modbus's job, not
this package's.
*/
package reader

import (
	"errors"
	"time"

	"github.com/goburrow/modbus"

	"github.com/oss-modbus/scanner"
	"github.com/oss-modbus/scanner/internal/transport"
)

// Reader issues typed reads against a transport.Facade and decodes their
// responses into DiscoveryRecords.
type Reader struct {
	facade transport.Facade
	now    func() time.Time
}

// New builds a Reader over the given facade. The facade must already be
// connected.
func New(facade transport.Facade) *Reader {
	return &Reader{facade: facade, now: time.Now}
}

// Read issues a read of count units at address for fc, and always
// returns exactly count records, addressed address..address+count-1,
// per spec §4.1. It never panics and never returns a partial record
// list: on any failure every record in the range carries the same
// classified error and its type's zero value.
func (r *Reader) Read(fc scan.FunctionCode, address scan.Address, count int) []scan.DiscoveryRecord {
	if count < 1 {
		return nil
	}
	raw, err := r.facade.Read(int(fc), int(address), count)
	at := r.now()
	if err != nil {
		return failAll(fc, address, count, classify(err), at)
	}

	if fc.IsBit() {
		bits, derr := decodeBits(raw, count)
		if derr != nil {
			return failAll(fc, address, count, scan.NewReadErrorf(scan.ErrDecode, 0, "%v", derr), at)
		}
		out := make([]scan.DiscoveryRecord, count)
		for i, v := range bits {
			out[i] = scan.NewAccessibleBit(address+scan.Address(i), fc, v, at)
		}
		return out
	}

	words, derr := decodeWords(raw, count)
	if derr != nil {
		return failAll(fc, address, count, scan.NewReadErrorf(scan.ErrDecode, 0, "%v", derr), at)
	}
	out := make([]scan.DiscoveryRecord, count)
	for i, v := range words {
		out[i] = scan.NewAccessibleWord(address+scan.Address(i), fc, v, at)
	}
	return out
}

// ReadOne is read_one(address, fc) from spec §4.1: read(address, 1, fc)
// returning the sole record.
func (r *Reader) ReadOne(fc scan.FunctionCode, address scan.Address) scan.DiscoveryRecord {
	return r.Read(fc, address, 1)[0]
}

func failAll(fc scan.FunctionCode, address scan.Address, count int, rerr *scan.ReadError, at time.Time) []scan.DiscoveryRecord {
	out := make([]scan.DiscoveryRecord, count)
	for i := 0; i < count; i++ {
		out[i] = scan.NewInaccessible(address+scan.Address(i), fc, rerr, at)
	}
	return out
}

// classify maps a transport-level error into a scan.ReadError, per the
// taxonomy in spec §4.1/§7.
func classify(err error) *scan.ReadError {
	var modbusErr *modbus.ModbusError
	if errors.As(err, &modbusErr) {
		code := uint8(modbusErr.ExceptionCode)
		if kind, ok := scan.KindForException(code); ok {
			return scan.NewReadError(kind, code, modbusErr.Error())
		}
		return scan.NewReadErrorf(scan.ErrUnknown, code, "unrecognized modbus exception: %v", modbusErr)
	}
	switch {
	case errors.Is(err, transport.ErrConnectionRefused):
		return scan.NewReadError(scan.ErrConnectionRefused, 0, err.Error())
	case errors.Is(err, transport.ErrTimeout):
		return scan.NewReadError(scan.ErrTimeout, 0, err.Error())
	default:
		return scan.NewReadErrorf(scan.ErrTransport, 0, "%v", err)
	}
}
