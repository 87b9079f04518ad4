// Package transport owns the physical channel to the sensor board and
// exposes raw send/receive of CAN frames plus connection lifecycle events.
//
// Four interchangeable adapters implement the same contract: a byte-stream
// serial port (with its own framing codec), a vendor CAN driver that
// delivers already-framed messages, a software simulator, and a raw
// io.ReadWriteCloser pipe used for tests and TCP/pty bridges.
package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/CK6170/canbridge-go/can"
)

// Silence timeout bounds. A transport that receives nothing for the
// configured window emits one connection-lost notification and re-arms on
// the next received frame.
const (
	DefaultSilenceTimeout = 5 * time.Second
	MinSilenceTimeout     = 1 * time.Second
	MaxSilenceTimeout     = 300 * time.Second
)

// DefaultBaud is the legacy board bridge rate (8 data bits, no parity,
// 1 stop bit).
const DefaultBaud = 2_000_000

var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrClosed       = errors.New("transport: closed")
)

// Transport is the adapter contract the protocol dispatcher is written
// against. Implementations are safe for concurrent Send/Disconnect while a
// receive loop is in flight; Disconnect is idempotent.
type Transport interface {
	// Connect opens the channel and starts the receive loop.
	Connect() error

	// Disconnect releases the channel. Safe to call more than once and
	// concurrently with receives.
	Disconnect() error

	// Send transmits one frame. Payloads over 8 bytes and IDs over 0x7FF
	// are rejected as non-retryable caller errors.
	Send(id uint16, payload []byte) error

	// Frames returns the stream of received frames. The channel is closed
	// on disconnect.
	Frames() <-chan can.Frame

	// Lost delivers one timestamp per silence episode (no frame within the
	// silence timeout). The watchdog re-arms after the next frame.
	Lost() <-chan time.Time
}

// Kind discriminates the adapter configuration union.
type Kind int

const (
	KindSerial Kind = iota
	KindDriver
	KindSimulator
	KindPipe
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindDriver:
		return "driver"
	case KindSimulator:
		return "simulator"
	case KindPipe:
		return "pipe"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Config selects and parameterizes one adapter. Exactly the variant named
// by Kind must be non-nil.
type Config struct {
	Kind Kind

	Serial    *SerialConfig
	Driver    *DriverConfig
	Simulator *SimulatorConfig
	Pipe      *PipeConfig

	// SilenceTimeout is clamped to [1s, 300s]; zero means the default 5s.
	SilenceTimeout time.Duration
}

// Open constructs (but does not connect) the adapter named by cfg.Kind.
func Open(cfg Config) (Transport, error) {
	timeout := clampSilence(cfg.SilenceTimeout)
	switch cfg.Kind {
	case KindSerial:
		if cfg.Serial == nil {
			return nil, errors.New("transport: serial config missing")
		}
		return newSerialAdapter(*cfg.Serial, timeout), nil
	case KindDriver:
		if cfg.Driver == nil || cfg.Driver.Driver == nil {
			return nil, errors.New("transport: driver config missing")
		}
		return newDriverAdapter(*cfg.Driver, timeout), nil
	case KindSimulator:
		if cfg.Simulator == nil {
			return nil, errors.New("transport: simulator config missing")
		}
		return newSimulator(*cfg.Simulator, timeout), nil
	case KindPipe:
		if cfg.Pipe == nil || cfg.Pipe.RW == nil {
			return nil, errors.New("transport: pipe config missing")
		}
		return newPipeAdapter(*cfg.Pipe, timeout), nil
	default:
		return nil, fmt.Errorf("transport: unknown adapter kind %d", int(cfg.Kind))
	}
}

func clampSilence(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultSilenceTimeout
	}
	if d < MinSilenceTimeout {
		return MinSilenceTimeout
	}
	if d > MaxSilenceTimeout {
		return MaxSilenceTimeout
	}
	return d
}
