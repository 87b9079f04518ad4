package calibration

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/CK6170/canbridge-go/models"
)

// ErrNoSamples is returned when a capture window closes with zero usable
// samples. Callers must retry or abort, never proceed with a partial point.
var ErrNoSamples = errors.New("calibration: no samples captured")

// CaptureConfig bounds one calibration-point capture.
type CaptureConfig struct {
	// TargetSamples stops the capture early once this many readings have
	// been collected. Zero means 100.
	TargetSamples int

	// Window is the wall-clock bound on the capture. Zero means 3 seconds.
	Window time.Duration

	// OutlierSigma strips readings farther than this many standard
	// deviations from the mean before the representative value is taken.
	// Zero disables stripping.
	OutlierSigma float64

	// UseMean selects the mean instead of the default median as the
	// representative value.
	UseMean bool
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.TargetSamples <= 0 {
		c.TargetSamples = 100
	}
	if c.Window <= 0 {
		c.Window = 3 * time.Second
	}
	return c
}

// CaptureResult aggregates one raw-value burst into a single denoised
// reading for a calibration point.
type CaptureResult struct {
	// Value is the representative raw value (median by default).
	Value float64

	Mean   float64
	Median float64
	StdDev float64

	// Collected counts all readings in the window; Kept counts those that
	// survived outlier stripping.
	Collected int
	Kept      int
}

// Capture collects raw readings for one side from a live sample stream
// until the target count or the window elapses, whichever comes first, then
// aggregates them.
//
// The stream keeps flowing while the device streams live noisy data; this
// helper just windows and denoises it for a single point.
func Capture(ctx context.Context, samples <-chan models.RawSample, side models.Side, cfg CaptureConfig) (CaptureResult, error) {
	cfg = cfg.withDefaults()
	deadline := time.NewTimer(cfg.Window)
	defer deadline.Stop()

	values := make([]float64, 0, cfg.TargetSamples)
collect:
	for len(values) < cfg.TargetSamples {
		select {
		case <-ctx.Done():
			if len(values) == 0 {
				return CaptureResult{}, ctx.Err()
			}
			break collect
		case <-deadline.C:
			break collect
		case s, ok := <-samples:
			if !ok {
				break collect
			}
			if s.Side != side {
				continue
			}
			values = append(values, float64(s.Value))
		}
	}
	if len(values) == 0 {
		return CaptureResult{}, ErrNoSamples
	}
	return aggregate(values, cfg), nil
}

// Aggregate computes the capture statistics for an already collected burst.
func Aggregate(values []float64, cfg CaptureConfig) (CaptureResult, error) {
	if len(values) == 0 {
		return CaptureResult{}, ErrNoSamples
	}
	return aggregate(append([]float64(nil), values...), cfg.withDefaults()), nil
}

func aggregate(values []float64, cfg CaptureConfig) CaptureResult {
	collected := len(values)
	mean := stat.Mean(values, nil)
	sd := 0.0
	if len(values) > 1 {
		sd = stat.StdDev(values, nil)
	}

	kept := values
	if cfg.OutlierSigma > 0 && sd > 0 {
		kept = kept[:0:0]
		limit := cfg.OutlierSigma * sd
		for _, v := range values {
			if math.Abs(v-mean) <= limit {
				kept = append(kept, v)
			}
		}
		// A pathological strip that removes everything falls back to the
		// full burst rather than failing the capture.
		if len(kept) == 0 {
			kept = values
		}
	}

	keptMean := stat.Mean(kept, nil)
	sorted := append([]float64(nil), kept...)
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	value := median
	if cfg.UseMean {
		value = keptMean
	}
	return CaptureResult{
		Value:     value,
		Mean:      keptMean,
		Median:    median,
		StdDev:    sd,
		Collected: collected,
		Kept:      len(kept),
	}
}
