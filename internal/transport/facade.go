/*
Package transport is a thin adapter over github.com/goburrow/modbus,
hiding the concrete client/handler pair behind the small Facade contract
spec §4.8 asks for: connect, set-slave, set-timeout, per-function-code
read, close.

Grounded on tdemin-opmodbus/client.go, which embeds the same
goburrow/modbus.Client behind a richer type; this Facade goes the
opposite direction — narrower than the library, not richer — since the
Register Reader above it, not the transport, is where decoding and
exception classification happen (spec §9 design note).
*/
package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/goburrow/modbus"
)

// ErrConnectionRefused is returned by Connect/Read when the remote end
// actively refused the TCP connection.
var ErrConnectionRefused = errors.New("transport: connection refused")

// ErrTimeout is returned by Read when the per-request timeout configured
// on the facade elapsed before a response arrived.
var ErrTimeout = errors.New("transport: request timed out")

// Facade is the contract the Register Reader depends on. Implementations
// must not buffer across requests and must not retry internally — retry
// is the engine's concern (spec §4.8).
type Facade interface {
	Connect(host string, port int) error
	SetSlave(id int)
	SetTimeout(d time.Duration)
	Read(fc, address, count int) ([]byte, error)
	Close() error
}

// goburrowFacade implements Facade over goburrow/modbus's TCP client.
//
// Not safe for concurrent use: the engine owns it exclusively and the
// Network Optimizer gate ensures at most one Read is in flight (spec
// §5).
type goburrowFacade struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// New constructs a Facade. The returned value is not yet connected;
// call Connect before issuing reads.
func New() Facade {
	return &goburrowFacade{}
}

func (f *goburrowFacade) Connect(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	handler := modbus.NewTCPClientHandler(addr)
	if err := handler.Connect(); err != nil {
		if isRefused(err) {
			return ErrConnectionRefused
		}
		return fmt.Errorf("transport: connect %s: %w", addr, err)
	}
	f.handler = handler
	f.client = modbus.NewClient(handler)
	return nil
}

func (f *goburrowFacade) SetSlave(id int) {
	if f.handler != nil {
		f.handler.SlaveId = byte(id)
	}
}

func (f *goburrowFacade) SetTimeout(d time.Duration) {
	if f.handler != nil {
		f.handler.Timeout = d
	}
}

func (f *goburrowFacade) Close() error {
	if f.handler == nil {
		return nil
	}
	return f.handler.Close()
}

// Read issues a single request for the given function code, address,
// and unit count, returning the raw (not yet decoded into bool/uint16)
// response payload goburrow/modbus hands back:
//
//   - bit function codes: packed bits, LSB-first within each byte
//   - register function codes: 2 bytes per register, big-endian
//
// Protocol exceptions surface as *modbus.ModbusError, passed through
// unchanged for the Register Reader to classify. Network-level faults
// are classified here since the facade, not the reader, owns the
// connection.
func (f *goburrowFacade) Read(fc, address, count int) ([]byte, error) {
	if f.client == nil {
		return nil, fmt.Errorf("transport: not connected")
	}
	var (
		data []byte
		err  error
	)
	switch fc {
	case 1:
		data, err = f.client.ReadCoils(uint16(address), uint16(count))
	case 2:
		data, err = f.client.ReadDiscreteInputs(uint16(address), uint16(count))
	case 3:
		data, err = f.client.ReadHoldingRegisters(uint16(address), uint16(count))
	case 4:
		data, err = f.client.ReadInputRegisters(uint16(address), uint16(count))
	default:
		return nil, fmt.Errorf("transport: unsupported function code %d", fc)
	}
	if err != nil {
		return nil, classify(err)
	}
	return data, nil
}

// classify narrows a goburrow/modbus or net error down to a sentinel the
// Register Reader can match with errors.Is, while leaving *modbus.ModbusError
// untouched so its exception code survives.
func classify(err error) error {
	var modbusErr *modbus.ModbusError
	if errors.As(err, &modbusErr) {
		return err
	}
	if isRefused(err) {
		return ErrConnectionRefused
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrTimeout
	}
	return fmt.Errorf("transport: %w", err)
}

func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
