package scan

import "fmt"

// ReadErrorKind is the closed set of ways a read of one address/function
// code pair can fail. Every DiscoveryRecord with Accessible == false
// carries exactly one of these.
type ReadErrorKind uint8

const (
	_ ReadErrorKind = iota

	// Protocol exceptions, reported by the remote device itself. The
	// exception code from the wire response is preserved on the
	// ReadError.
	ErrIllegalFunction
	ErrIllegalDataAddress
	ErrIllegalDataValue
	ErrSlaveDeviceFailure
	ErrAcknowledge
	ErrSlaveDeviceBusy
	ErrMemoryParityError
	ErrGatewayPathUnavailable
	ErrGatewayTargetFailed

	// Transport-level failures, classified from the transport facade's
	// indications rather than a protocol exception byte.
	ErrConnectionRefused
	ErrTimeout
	ErrTransport

	// ErrDecode covers a response that passed framing but violated the
	// value-type or length invariants the Register Reader enforces.
	ErrDecode

	// ErrUnknown is the catch-all for anything that does not fit the
	// above, carrying the original message.
	ErrUnknown
)

// exceptionKinds maps a Modbus protocol exception code to its
// ReadErrorKind. Exception codes not present here are not standard
// function-1-4 exceptions.
var exceptionKinds = map[uint8]ReadErrorKind{
	0x01: ErrIllegalFunction,
	0x02: ErrIllegalDataAddress,
	0x03: ErrIllegalDataValue,
	0x04: ErrSlaveDeviceFailure,
	0x05: ErrAcknowledge,
	0x06: ErrSlaveDeviceBusy,
	0x08: ErrMemoryParityError,
	0x0A: ErrGatewayPathUnavailable,
	0x0B: ErrGatewayTargetFailed,
}

// KindForException returns the ReadErrorKind for a standard Modbus
// exception code, and false if the code is not one of the nine standard
// exceptions for function codes 1-4.
func KindForException(code uint8) (ReadErrorKind, bool) {
	k, ok := exceptionKinds[code]
	return k, ok
}

func (k ReadErrorKind) String() string {
	switch k {
	case ErrIllegalFunction:
		return "IllegalFunction"
	case ErrIllegalDataAddress:
		return "IllegalDataAddress"
	case ErrIllegalDataValue:
		return "IllegalDataValue"
	case ErrSlaveDeviceFailure:
		return "SlaveDeviceFailure"
	case ErrAcknowledge:
		return "Acknowledge"
	case ErrSlaveDeviceBusy:
		return "SlaveDeviceBusy"
	case ErrMemoryParityError:
		return "MemoryParityError"
	case ErrGatewayPathUnavailable:
		return "GatewayPathUnavailable"
	case ErrGatewayTargetFailed:
		return "GatewayTargetFailed"
	case ErrConnectionRefused:
		return "ConnectionRefused"
	case ErrTimeout:
		return "Timeout"
	case ErrTransport:
		return "Transport"
	case ErrDecode:
		return "Decode"
	case ErrUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("ReadErrorKind(%d)", uint8(k))
	}
}

// descriptions gives a human-readable sentence for each kind, used by
// NewReadError to populate ReadError.Description.
var descriptions = map[ReadErrorKind]string{
	ErrIllegalFunction:        "the device does not support this function code",
	ErrIllegalDataAddress:     "the device does not expose data at this address",
	ErrIllegalDataValue:       "the device rejected the request's data value or quantity",
	ErrSlaveDeviceFailure:     "the device reported an unrecoverable internal failure",
	ErrAcknowledge:            "the device accepted the request but needs more time to complete it",
	ErrSlaveDeviceBusy:        "the device is processing a long-duration command",
	ErrMemoryParityError:      "the device detected a parity error reading its memory",
	ErrGatewayPathUnavailable: "the gateway has no configured path to the target device",
	ErrGatewayTargetFailed:    "the gateway's target device failed to respond",
	ErrConnectionRefused:      "the connection to the device was refused",
	ErrTimeout:                "the request timed out waiting for a response",
	ErrTransport:              "the transport returned a malformed or unexpected frame",
	ErrDecode:                 "the response violated the expected value type or length",
	ErrUnknown:                "an unclassified error occurred",
}

// ReadError is the classified failure attached to an inaccessible
// DiscoveryRecord.
type ReadError struct {
	Kind        ReadErrorKind
	Exception   uint8 // protocol exception code, 0 if not applicable
	Message     string
	Description string
}

// NewReadError builds a ReadError with msg as its Message; Description
// is always the kind's default sentence from descriptions.
func NewReadError(kind ReadErrorKind, exception uint8, msg string) *ReadError {
	return &ReadError{
		Kind:        kind,
		Exception:   exception,
		Message:     msg,
		Description: descriptions[kind],
	}
}

// NewReadErrorf is NewReadError with fmt.Sprintf-style message
// formatting.
func NewReadErrorf(kind ReadErrorKind, exception uint8, format string, args ...interface{}) *ReadError {
	return NewReadError(kind, exception, fmt.Sprintf(format, args...))
}

// Error implements the builtin error interface.
func (e *ReadError) Error() string {
	if e.Exception != 0 {
		return fmt.Sprintf("modbus: %s (exception 0x%02X): %s", e.Kind, e.Exception, e.Message)
	}
	return fmt.Sprintf("modbus: %s: %s", e.Kind, e.Message)
}

// IsBatchFallback reports whether this kind of failure should trigger
// the Batch Optimizer's batch-to-singles fallback (spec §4.2/§7):
// Decode, Timeout, and SlaveDeviceBusy.
func (k ReadErrorKind) IsBatchFallback() bool {
	return k == ErrDecode || k == ErrTimeout || k == ErrSlaveDeviceBusy
}

// IsRangeInaccessible reports whether this kind of failure should mark
// an entire batch inaccessible without per-address probing (spec
// §4.2): IllegalDataAddress.
func (k ReadErrorKind) IsRangeInaccessible() bool {
	return k == ErrIllegalDataAddress
}
