// Package models defines the domain types shared between the transport,
// protocol, pipeline, and server layers.
//
// These types mirror what the sensor board actually reports: two weighing
// sides, two ADC sampling modes, raw ADC readings, and the processed
// (calibrated + tared) snapshots published by the pipeline.
package models

import (
	"fmt"
	"time"
)

// Side identifies one of the two weighing channels on the board.
type Side int

const (
	Left Side = iota
	Right
)

// Sides lists both channels in a stable order for range loops.
var Sides = [2]Side{Left, Right}

// String implements fmt.Stringer.
func (s Side) String() string {
	switch s {
	case Left:
		return "LEFT"
	case Right:
		return "RIGHT"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// Valid reports whether s names a real channel.
func (s Side) Valid() bool { return s == Left || s == Right }

// SamplingMode selects between the board's two physical ADC paths.
//
// Internal is the coarse/fast path (unsigned 16-bit readings); External is
// the fine/slow path whose secondary ADC produces signed 16-bit readings.
// Calibration curves and tare baselines are independent per mode.
type SamplingMode int

const (
	ModeInternal SamplingMode = iota
	ModeExternal
)

// Modes lists both sampling modes in a stable order.
var Modes = [2]SamplingMode{ModeInternal, ModeExternal}

// String implements fmt.Stringer.
func (m SamplingMode) String() string {
	switch m {
	case ModeInternal:
		return "INTERNAL"
	case ModeExternal:
		return "EXTERNAL"
	default:
		return fmt.Sprintf("SamplingMode(%d)", int(m))
	}
}

// Valid reports whether m names a real sampling mode.
func (m SamplingMode) Valid() bool { return m == ModeInternal || m == ModeExternal }

// RateCode is the single byte the board accepts as a sample-rate selector.
type RateCode byte

const (
	Rate100Hz RateCode = 0x01
	Rate500Hz RateCode = 0x02
	Rate1kHz  RateCode = 0x03
	Rate1Hz   RateCode = 0x04
)

// Valid reports whether r is one of the enumerated rate codes. Callers must
// reject unknown codes before encoding a stream-start command.
func (r RateCode) Valid() bool {
	switch r {
	case Rate100Hz, Rate500Hz, Rate1kHz, Rate1Hz:
		return true
	}
	return false
}

// Hz returns the nominal sample frequency for the code, or 0 if unknown.
func (r RateCode) Hz() int {
	switch r {
	case Rate100Hz:
		return 100
	case Rate500Hz:
		return 500
	case Rate1kHz:
		return 1000
	case Rate1Hz:
		return 1
	}
	return 0
}

// String implements fmt.Stringer.
func (r RateCode) String() string {
	if hz := r.Hz(); hz > 0 {
		return fmt.Sprintf("%dHz", hz)
	}
	return fmt.Sprintf("RateCode(0x%02X)", byte(r))
}

// RawSample is one undecoded ADC reading as produced by the protocol
// dispatcher and consumed exactly once by the sampling pipeline.
//
// Value is widened to int32 so the signed 16-bit readings of the external
// ADC survive without truncation.
type RawSample struct {
	Side  Side
	Value int32
	At    time.Time
}

// ProcessedSample is the calibrated and tared view of one raw reading.
//
// The pipeline publishes a fresh instance per side on every processed raw
// value; instances are never mutated after publication, so readers always
// observe a consistent (Raw, CalibratedKg, TaredKg) triple.
type ProcessedSample struct {
	Raw          int32
	CalibratedKg float64
	TaredKg      float64
	At           time.Time
}

// DeviceStatus is the decoded 3-byte status response.
type DeviceStatus struct {
	System     byte
	ErrorFlags byte
	Mode       SamplingMode
}

// FirmwareVersion is the decoded 4-byte version response.
type FirmwareVersion struct {
	Major byte
	Minor byte
	Patch byte
	Build byte
}

// String implements fmt.Stringer.
func (v FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d.%d+%d", v.Major, v.Minor, v.Patch, v.Build)
}
