// Package can defines the classical CAN frame value type used throughout
// the bridge. Only standard 11-bit identifiers and 0..8 byte payloads are
// supported; that is all the sensor board family speaks.
package can

import (
	"errors"
	"fmt"
	"time"
)

// Validation limits for standard (11-bit) identifiers.
const MaxStdID = 0x7FF

var (
	ErrInvalidID  = errors.New("can: identifier exceeds 11 bits")
	ErrInvalidLen = errors.New("can: payload longer than 8 bytes")
)

// Direction records which way a frame crossed the transport.
type Direction int

const (
	Received Direction = iota
	Sent
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case Received:
		return "RX"
	case Sent:
		return "TX"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Frame is one CAN message. It is a value type: construct, copy, discard.
// Never share a Frame mutably across goroutines.
type Frame struct {
	ID        uint16 // 11-bit identifier
	Len       uint8  // 0..8
	Data      [8]byte
	At        time.Time
	Direction Direction
}

// New builds a validated frame from an id and payload, stamped now.
func New(id uint16, payload []byte) (Frame, error) {
	var f Frame
	if id > MaxStdID {
		return f, ErrInvalidID
	}
	if len(payload) > 8 {
		return f, ErrInvalidLen
	}
	f.ID = id
	f.Len = uint8(len(payload))
	copy(f.Data[:], payload)
	f.At = time.Now()
	return f, nil
}

// Validate returns an error if the frame violates classical CAN limits.
func (f Frame) Validate() error {
	if f.ID > MaxStdID {
		return ErrInvalidID
	}
	if f.Len > 8 {
		return ErrInvalidLen
	}
	return nil
}

// Payload returns the Len-sized slice of Data. The returned slice aliases
// the frame's array; callers must not retain it past the frame's lifetime.
func (f *Frame) Payload() []byte { return f.Data[:f.Len] }

// String implements fmt.Stringer for log lines.
func (f Frame) String() string {
	return fmt.Sprintf("%s 0x%03X [%d] % X", f.Direction, f.ID, f.Len, f.Data[:f.Len])
}
