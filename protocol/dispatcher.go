package protocol

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/CK6170/canbridge-go/can"
	"github.com/CK6170/canbridge-go/models"
)

// Dispatcher decodes received frames into typed events and encodes typed
// commands into frames. Every frame it sees, in either direction, is
// re-published on the hub's generic observed stream.
//
// Raw-sample decoding is mode-aware: the external ADC path produces signed
// 16-bit readings, the internal path unsigned 16-bit. The caller keeps the
// dispatcher's mode in sync with the device's actual sampling mode.
type Dispatcher struct {
	hub *Hub

	mode atomic.Int32

	// onRaw is the hot-path hook feeding the sampling pipeline. It must
	// never block; set it once before ingestion starts.
	onRaw func(models.RawSample)

	unknown atomic.Uint64
}

// NewDispatcher builds a dispatcher publishing on hub.
func NewDispatcher(hub *Hub) *Dispatcher {
	return &Dispatcher{hub: hub}
}

// SetOnRawSample installs the non-blocking raw-sample hook.
func (d *Dispatcher) SetOnRawSample(fn func(models.RawSample)) { d.onRaw = fn }

// SetSamplingMode selects how raw-sample payloads are sign-extended.
func (d *Dispatcher) SetSamplingMode(m models.SamplingMode) { d.mode.Store(int32(m)) }

// SamplingMode returns the current decode mode.
func (d *Dispatcher) SamplingMode() models.SamplingMode {
	return models.SamplingMode(d.mode.Load())
}

// UnknownFrames reports how many received frames carried an ID outside the
// semantic table. Unknown IDs are dropped silently; this is diagnostic.
func (d *Dispatcher) UnknownFrames() uint64 { return d.unknown.Load() }

// Dispatch decodes one received frame and publishes its typed event.
// Malformed payloads and unknown IDs are dropped, never surfaced as errors.
func (d *Dispatcher) Dispatch(f can.Frame) {
	f.Direction = can.Received
	if f.At.IsZero() {
		f.At = time.Now()
	}
	d.hub.Frames.publish(f)

	p := f.Payload()
	switch f.ID {
	case IDRawSampleLeft, IDRawSampleRight:
		if len(p) < 2 {
			return
		}
		side := models.Left
		if f.ID == IDRawSampleRight {
			side = models.Right
		}
		s := models.RawSample{Side: side, Value: d.decodeRaw(p), At: f.At}
		if d.onRaw != nil {
			d.onRaw(s)
		}
		d.hub.Raw.publish(s)
	case IDStatusResponse:
		if len(p) != 3 {
			return
		}
		st := models.DeviceStatus{
			System:     p[0],
			ErrorFlags: p[1],
			Mode:       models.SamplingMode(p[2]),
		}
		d.hub.Status.publish(st)
	case IDVersionResponse:
		if len(p) != 4 {
			return
		}
		d.hub.Version.publish(models.FirmwareVersion{
			Major: p[0], Minor: p[1], Patch: p[2], Build: p[3],
		})
	case IDBootStatus:
		if len(p) < 2 {
			return
		}
		d.hub.Boot.publish(BootStatus{State: p[0], Error: p[1]})
	default:
		d.unknown.Add(1)
	}
}

func (d *Dispatcher) decodeRaw(p []byte) int32 {
	le := binary.LittleEndian.Uint16(p[:2])
	if models.SamplingMode(d.mode.Load()) == models.ModeExternal {
		return int32(int16(le))
	}
	return int32(le)
}

// ObserveSent re-publishes an outgoing frame on the observed stream. Used
// for transmits that bypass the typed command encoders.
func (d *Dispatcher) ObserveSent(f can.Frame) {
	f.Direction = can.Sent
	if f.At.IsZero() {
		f.At = time.Now()
	}
	d.hub.Frames.publish(f)
}

// Encode builds the frame for cmd and re-publishes it on the observed
// stream with Direction=Sent, so passive monitors see both directions.
func (d *Dispatcher) Encode(cmd Command) (can.Frame, error) {
	f, err := EncodeCommand(cmd)
	if err != nil {
		return can.Frame{}, err
	}
	f.At = time.Now()
	d.hub.Frames.publish(f)
	return f, nil
}

// Per-command encode surface.

func (d *Dispatcher) EncodeStartStream(side models.Side, rate models.RateCode) (can.Frame, error) {
	return d.Encode(Command{Kind: CmdStartStream, Side: side, Rate: rate})
}

func (d *Dispatcher) EncodeStopAllStreams() (can.Frame, error) {
	return d.Encode(Command{Kind: CmdStopAllStreams})
}

func (d *Dispatcher) EncodeSwitchMode(mode models.SamplingMode) (can.Frame, error) {
	return d.Encode(Command{Kind: CmdSwitchMode, Mode: mode})
}

func (d *Dispatcher) EncodeRequestStatus() (can.Frame, error) {
	return d.Encode(Command{Kind: CmdRequestStatus})
}

func (d *Dispatcher) EncodeRequestVersion() (can.Frame, error) {
	return d.Encode(Command{Kind: CmdRequestVersion})
}

func (d *Dispatcher) EncodeBootEnter() (can.Frame, error) {
	return d.Encode(Command{Kind: CmdBootEnter})
}

func (d *Dispatcher) EncodeBootQuery() (can.Frame, error) {
	return d.Encode(Command{Kind: CmdBootQuery})
}
