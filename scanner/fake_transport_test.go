package scanner

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/oss-modbus/scanner/internal/transport"
)

// readFunc simulates a device's response to a single request, matching
// internal/transport.Facade.Read's contract: raw bytes for a successful
// response, or an error for a failed one.
type readFunc func(fc, address, count int) ([]byte, error)

// fakeFacade is a hand-rolled fake transport.Facade, in the style of
// pascaldekloe-modbus/tcp_test.go's fake net.Conn: no mocking
// framework, just a struct recording calls and replaying a script.
type fakeFacade struct {
	mu       sync.Mutex
	read     readFunc
	connErr  error
	closed   bool
	callCount int
}

var _ transport.Facade = (*fakeFacade)(nil)

func (f *fakeFacade) Connect(host string, port int) error { return f.connErr }
func (f *fakeFacade) SetSlave(id int)                      {}
func (f *fakeFacade) SetTimeout(d time.Duration)            {}
func (f *fakeFacade) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeFacade) Read(fc, address, count int) ([]byte, error) {
	f.mu.Lock()
	f.callCount++
	f.mu.Unlock()
	return f.read(fc, address, count)
}

func (f *fakeFacade) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount
}

// encodeWords packs values as big-endian 16-bit registers, the payload
// shape internal/reader.decodeWords expects.
func encodeWords(values []uint16) []byte {
	out := make([]byte, len(values)*2)
	for i, v := range values {
		binary.BigEndian.PutUint16(out[i*2:i*2+2], v)
	}
	return out
}

// encodeBits packs values LSB-first per byte, the payload shape
// internal/reader.decodeBits expects.
func encodeBits(values []bool) []byte {
	out := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}
