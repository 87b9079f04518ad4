// Package device ties one transport, the protocol dispatcher, the sampling
// pipeline, and the calibration/tare state into a single service.
//
// All wiring is explicit: whoever needs to send commands holds a *Device
// reference; there is no ambient process-wide instance.
package device

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/CK6170/canbridge-go/calibration"
	"github.com/CK6170/canbridge-go/can"
	"github.com/CK6170/canbridge-go/models"
	"github.com/CK6170/canbridge-go/pipeline"
	"github.com/CK6170/canbridge-go/protocol"
	"github.com/CK6170/canbridge-go/tare"
	"github.com/CK6170/canbridge-go/transport"
)

var (
	ErrNotConnected     = errors.New("device: not connected")
	ErrAlreadyConnected = errors.New("device: already connected")
	ErrNoSample         = errors.New("device: no processed sample yet")
)

// Device is the host-side service for one sensor board.
type Device struct {
	hub   *protocol.Hub
	disp  *protocol.Dispatcher
	pipe  *pipeline.Pipeline
	tares *tare.Store

	mu        sync.Mutex
	tr        transport.Transport
	connected bool
	stop      chan struct{}
	done      chan struct{}

	// cals are the long-lived calibrations, loaded at startup by the
	// persistence collaborator and mutated only by explicit operations.
	cals [2]*calibration.Linear

	// calFault gates StartStream and Tare per side after a failed
	// calibration operation, until a calibration succeeds.
	calFault [2]error
}

// New builds a disconnected device service.
func New() *Device {
	hub := protocol.NewHub()
	tares := tare.NewStore()
	d := &Device{
		hub:   hub,
		disp:  protocol.NewDispatcher(hub),
		pipe:  pipeline.New(tares),
		tares: tares,
	}
	// Hot path: decoded raw samples go straight into the bounded queue.
	d.disp.SetOnRawSample(d.pipe.Offer)
	return d
}

// Hub exposes the observed-frame and typed event streams for monitors.
func (d *Device) Hub() *protocol.Hub { return d.hub }

// Tares exposes the tare store for the persistence collaborator.
func (d *Device) Tares() *tare.Store { return d.tares }

// Connect opens the configured transport, starts the pipeline worker, and
// begins ingesting frames.
func (d *Device) Connect(cfg transport.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connected {
		return ErrAlreadyConnected
	}
	tr, err := transport.Open(cfg)
	if err != nil {
		return err
	}
	if err := tr.Connect(); err != nil {
		return err
	}
	d.tr = tr
	d.connected = true
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	d.pipe.Start()
	go d.ingest(tr, d.stop, d.done)
	return nil
}

// Disconnect stops ingestion and the pipeline worker, then releases the
// channel. Idempotent.
func (d *Device) Disconnect() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}
	d.connected = false
	tr := d.tr
	d.tr = nil
	close(d.stop)
	done := d.done
	d.mu.Unlock()

	err := tr.Disconnect()
	<-done
	d.pipe.Stop()
	return err
}

// Connected reports whether a transport is attached.
func (d *Device) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// ingest is the per-connection receive task. Every per-iteration failure is
// contained and logged; the loop only exits on disconnect.
func (d *Device) ingest(tr transport.Transport, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	frames := tr.Frames()
	lost := tr.Lost()
	for {
		select {
		case <-stop:
			return
		case t := <-lost:
			log.Printf("[device] no frames for the silence window (as of %s)", t.Format("15:04:05"))
			d.hub.PublishLost(t)
		case f, ok := <-frames:
			if !ok {
				return
			}
			d.dispatch(f)
		}
	}
}

func (d *Device) dispatch(f can.Frame) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[device] dispatch fault on %s: %v", f, r)
		}
	}()
	d.disp.Dispatch(f)
}

// Send transmits a raw (id, payload) pair and mirrors it on the observed
// stream. Oversized payloads and out-of-range IDs are caller errors.
func (d *Device) Send(id uint16, payload []byte) error {
	tr, err := d.transport()
	if err != nil {
		return err
	}
	f, err := can.New(id, payload)
	if err != nil {
		return err
	}
	if err := tr.Send(id, payload); err != nil {
		return err
	}
	d.disp.ObserveSent(f)
	return nil
}

func (d *Device) transport() (transport.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected || d.tr == nil {
		return nil, ErrNotConnected
	}
	return d.tr, nil
}

func (d *Device) sendFrame(f can.Frame) error {
	tr, err := d.transport()
	if err != nil {
		return err
	}
	return tr.Send(f.ID, f.Payload())
}

// StartStream asks the board to stream raw samples for one side. Rejected
// while the side's calibration is faulted, and for unknown rate codes.
func (d *Device) StartStream(side models.Side, rate models.RateCode) error {
	if !rate.Valid() {
		return protocol.ErrBadRate
	}
	if err := d.faultFor(side); err != nil {
		return fmt.Errorf("device: %s calibration unresolved: %w", side, err)
	}
	f, err := d.disp.EncodeStartStream(side, rate)
	if err != nil {
		return err
	}
	return d.sendFrame(f)
}

// StopAllStreams halts raw-sample streaming on both sides.
func (d *Device) StopAllStreams() error {
	f, err := d.disp.EncodeStopAllStreams()
	if err != nil {
		return err
	}
	return d.sendFrame(f)
}

// SwitchMode commands the board into a sampling mode and keeps the
// dispatcher's decode mode and the pipeline's tare-lookup mode in step.
func (d *Device) SwitchMode(mode models.SamplingMode) error {
	f, err := d.disp.EncodeSwitchMode(mode)
	if err != nil {
		return err
	}
	if err := d.sendFrame(f); err != nil {
		return err
	}
	d.disp.SetSamplingMode(mode)
	d.pipe.SetMode(mode)
	return nil
}

// Mode returns the sampling mode the host currently assumes.
func (d *Device) Mode() models.SamplingMode { return d.pipe.Mode() }

// RequestStatus asks for the 3-byte status response.
func (d *Device) RequestStatus() error {
	f, err := d.disp.EncodeRequestStatus()
	if err != nil {
		return err
	}
	return d.sendFrame(f)
}

// RequestVersion asks for the 4-byte firmware version response.
func (d *Device) RequestVersion() error {
	f, err := d.disp.EncodeRequestVersion()
	if err != nil {
		return err
	}
	return d.sendFrame(f)
}

// EnterBootloader sends the bootloader-enter command. The flashing sequence
// itself belongs to the bootloader collaborator.
func (d *Device) EnterBootloader() error {
	f, err := d.disp.EncodeBootEnter()
	if err != nil {
		return err
	}
	return d.sendFrame(f)
}

// QueryBootloader sends the bootloader-query command.
func (d *Device) QueryBootloader() error {
	f, err := d.disp.EncodeBootQuery()
	if err != nil {
		return err
	}
	return d.sendFrame(f)
}

// Snapshot returns the latest processed sample for a side (nil until the
// first raw value is processed). Lock-free.
func (d *Device) Snapshot(side models.Side) *models.ProcessedSample {
	return d.pipe.Snapshot(side)
}

// Processed returns the pipeline's processed-sample counter.
func (d *Device) Processed() uint64 { return d.pipe.Processed() }

// Dropped returns the pipeline's dropped-sample counter.
func (d *Device) Dropped() uint64 { return d.pipe.Dropped() }

// Tare records the current calibrated weight for (side, current mode) as
// the zero baseline. Blocked while the side's calibration is faulted.
func (d *Device) Tare(side models.Side) error {
	if err := d.faultFor(side); err != nil {
		return fmt.Errorf("device: %s calibration unresolved: %w", side, err)
	}
	snap := d.pipe.Snapshot(side)
	if snap == nil {
		return ErrNoSample
	}
	return d.tares.Tare(side, d.pipe.Mode(), snap.CalibratedKg)
}

// ResetTare clears one (side, mode) baseline.
func (d *Device) ResetTare(side models.Side, mode models.SamplingMode) {
	d.tares.Reset(side, mode)
}

// ResetAllTares clears all four baselines.
func (d *Device) ResetAllTares() { d.tares.ResetAll() }

// SetCalibration installs a calibration (typically loaded by the
// persistence collaborator at startup) and clears any fault for the side.
func (d *Device) SetCalibration(side models.Side, cal *calibration.Linear) error {
	if !side.Valid() {
		return fmt.Errorf("device: invalid side %d", int(side))
	}
	d.mu.Lock()
	d.cals[side] = cal
	d.calFault[side] = nil
	d.mu.Unlock()
	d.pipe.SetCalibration(side, cal)
	return nil
}

// Calibration returns the side's calibration, or nil if none is set.
func (d *Device) Calibration(side models.Side) *calibration.Linear {
	if !side.Valid() {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cals[side]
}

// CalibrationFault returns the unresolved calibration error for a side.
func (d *Device) CalibrationFault(side models.Side) error { return d.faultFor(side) }

func (d *Device) faultFor(side models.Side) error {
	if !side.Valid() {
		return fmt.Errorf("device: invalid side %d", int(side))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calFault[side]
}

func (d *Device) setFault(side models.Side, err error) {
	d.mu.Lock()
	d.calFault[side] = err
	d.mu.Unlock()
}

// CapturePoint collects a denoised raw value from the live stream and adds
// it as a calibration point for the given known weight.
//
// A failed capture or a degenerate fit marks the side faulted, which blocks
// StartStream and Tare for that side until a later calibration succeeds.
func (d *Device) CapturePoint(ctx context.Context, side models.Side, knownKg float64, cfg calibration.CaptureConfig) (calibration.Result, error) {
	if !side.Valid() {
		return calibration.Result{}, fmt.Errorf("device: invalid side %d", int(side))
	}
	sub := d.hub.Raw.Subscribe(256)
	defer d.hub.Raw.Unsubscribe(sub)

	res, err := calibration.Capture(ctx, sub, side, cfg)
	if err != nil {
		d.setFault(side, err)
		return calibration.Result{}, err
	}

	d.mu.Lock()
	cal := d.cals[side]
	if cal == nil {
		cal = calibration.NewLinear()
		d.cals[side] = cal
	}
	d.mu.Unlock()

	if err := cal.AddPoint(calibration.Point{
		RawADC:  int32(math.Round(res.Value)),
		KnownKg: knownKg,
	}); err != nil {
		d.setFault(side, err)
		return calibration.Result{}, err
	}
	d.setFault(side, nil)
	d.pipe.SetCalibration(side, cal)
	return cal.Fit(), nil
}
