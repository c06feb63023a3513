package scan

import (
	"fmt"
	"net"
	"time"
)

// Config describes the Modbus/TCP slave being scanned and the
// connection-level parameters used to talk to it. It is the transport
// and engine parameter set from spec §3/§6; it carries no callbacks and
// is safe to persist in a checkpoint.
type Config struct {
	Host    string
	Port    int
	SlaveID int

	Timeout time.Duration
	Retries int

	// MaxUnitsPerRequest is the device-reported cap on units per
	// request, used as a batch cap alongside each function code's own
	// protocol limit (spec §3: "used as a batch cap"). Treated as
	// min(FC limit, configured cap), per spec §9's open question.
	MaxUnitsPerRequest int
}

// DefaultConfig returns a Config with the spec's minimum viable
// defaults: standard Modbus/TCP port, unit id 1, a 1s timeout, three
// connect retries, and the register function codes' protocol cap.
func DefaultConfig(host string) Config {
	return Config{
		Host:               host,
		Port:               502,
		SlaveID:            1,
		Timeout:            1000 * time.Millisecond,
		Retries:            3,
		MaxUnitsPerRequest: 125,
	}
}

// Validate checks the structural invariants from spec §3: host is an
// IPv4 literal, port in [1,65535], slave id in [1,247], timeout >= 1s.
func (c Config) Validate() error {
	if net.ParseIP(c.Host) == nil || net.ParseIP(c.Host).To4() == nil {
		return fmt.Errorf("scan: host %q is not an IPv4 literal", c.Host)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("scan: port %d out of range [1,65535]", c.Port)
	}
	if c.SlaveID < 1 || c.SlaveID > 247 {
		return fmt.Errorf("scan: slave id %d out of range [1,247]", c.SlaveID)
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("scan: timeout %s is below the 1000ms minimum", c.Timeout)
	}
	if c.Retries < 0 {
		return fmt.Errorf("scan: retries %d must not be negative", c.Retries)
	}
	if c.MaxUnitsPerRequest < 1 {
		return fmt.Errorf("scan: max units per request %d must be positive", c.MaxUnitsPerRequest)
	}
	return nil
}

// Address is the "host:port" string used to dial the device.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BatchCap returns the effective batch cap for a function code: the
// smaller of the function code's own protocol limit and the
// device-configured cap.
func (c Config) BatchCap(fc FunctionCode) int {
	cap := fc.MaxUnits()
	if fc.IsBit() {
		// the device cap in spec §3 is described for register FCs;
		// bit FCs are bounded purely by their own protocol limit.
		return cap
	}
	if c.MaxUnitsPerRequest > 0 && c.MaxUnitsPerRequest < cap {
		return c.MaxUnitsPerRequest
	}
	return cap
}
