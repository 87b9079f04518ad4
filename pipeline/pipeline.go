// Package pipeline converts raw ADC samples into calibrated, tared weight
// snapshots on a dedicated worker, with a lock-free hand-off from the
// ingestion side and lock-free snapshot reads.
//
// The contract, in order of priority: the producer never blocks (samples
// are dropped, counted, when the queue is full), readers never take a lock
// (latest snapshot per side is an atomic pointer swap), and the worker is
// the only goroutine that applies calibration state.
package pipeline

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/CK6170/canbridge-go/calibration"
	"github.com/CK6170/canbridge-go/models"
	"github.com/CK6170/canbridge-go/tare"
)

// QueueCapacity bounds the ingestion queue. Momentary overload under a
// 1 kHz stream is expected; bounded memory and fresh data win over
// completeness.
const QueueCapacity = 100

// stopTimeout bounds the cooperative worker join so Stop cannot hang a
// disconnect path.
const stopTimeout = 2 * time.Second

// Pipeline owns the bounded queue, the worker, and the published snapshots.
type Pipeline struct {
	queue chan models.RawSample

	processed atomic.Uint64
	dropped   atomic.Uint64

	// Latest published snapshot per side. Never mutated in place.
	latest [2]atomic.Pointer[models.ProcessedSample]

	// Calibration per side, swapped in by explicit setter calls. The worker
	// only ever loads.
	cals [2]atomic.Pointer[calibration.Linear]

	// mode selects which tare baseline applies. The caller keeps it in sync
	// with the device's actual sampling mode.
	mode atomic.Int32

	tares *tare.Store

	stop    chan struct{}
	done    chan struct{}
	running atomic.Bool
}

// New builds a pipeline applying baselines from tares.
func New(tares *tare.Store) *Pipeline {
	return &Pipeline{
		queue: make(chan models.RawSample, QueueCapacity),
		tares: tares,
	}
}

// Start launches the worker. Calling Start on a running pipeline is a no-op.
func (p *Pipeline) Start() {
	if p.running.Swap(true) {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run()
}

// Stop signals the worker and waits for it with a bounded timeout, so a
// sample mid-processing finishes and no torn snapshot is ever published.
func (p *Pipeline) Stop() {
	if !p.running.Swap(false) {
		return
	}
	close(p.stop)
	select {
	case <-p.done:
	case <-time.After(stopTimeout):
		log.Printf("[pipeline] worker did not stop within %v", stopTimeout)
	}
}

// Offer enqueues one raw sample. It never blocks: when the queue is at
// capacity the newest sample is dropped and counted.
func (p *Pipeline) Offer(s models.RawSample) {
	select {
	case p.queue <- s:
	default:
		p.dropped.Add(1)
	}
}

// Snapshot returns the latest published sample for a side, or nil if none
// has been processed yet. The read is a single atomic pointer load.
func (p *Pipeline) Snapshot(side models.Side) *models.ProcessedSample {
	if !side.Valid() {
		return nil
	}
	return p.latest[side].Load()
}

// Processed returns the total number of samples the worker has published.
func (p *Pipeline) Processed() uint64 { return p.processed.Load() }

// Dropped returns the total number of samples rejected by a full queue.
func (p *Pipeline) Dropped() uint64 { return p.dropped.Load() }

// SetCalibration swaps in the calibration the worker applies for a side.
// Pass nil to clear (samples then pass through with 0.0 kg).
func (p *Pipeline) SetCalibration(side models.Side, cal *calibration.Linear) {
	if !side.Valid() {
		return
	}
	p.cals[side].Store(cal)
}

// Calibration returns the currently applied calibration for a side.
func (p *Pipeline) Calibration(side models.Side) *calibration.Linear {
	if !side.Valid() {
		return nil
	}
	return p.cals[side].Load()
}

// SetMode selects the sampling mode used for tare lookup.
func (p *Pipeline) SetMode(m models.SamplingMode) { p.mode.Store(int32(m)) }

// Mode returns the pipeline's current sampling mode.
func (p *Pipeline) Mode() models.SamplingMode { return models.SamplingMode(p.mode.Load()) }

func (p *Pipeline) run() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case s := <-p.queue:
			p.process(s)
		}
	}
}

// process applies calibration and tare and atomically publishes a fresh
// snapshot. Any per-sample fault is contained here; the loop never dies.
func (p *Pipeline) process(s models.RawSample) {
	if !s.Side.Valid() {
		return
	}
	calibrated := 0.0
	if cal := p.cals[s.Side].Load(); cal != nil && cal.Valid() {
		calibrated = cal.Convert(s.Value)
	}
	tared := p.tares.Apply(s.Side, p.Mode(), calibrated)

	snap := &models.ProcessedSample{
		Raw:          s.Value,
		CalibratedKg: calibrated,
		TaredKg:      tared,
		At:           s.At,
	}
	p.latest[s.Side].Store(snap)
	p.processed.Add(1)
}
