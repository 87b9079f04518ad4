// Package calibration fits linear raw-ADC-to-weight models from known-weight
// reference points and denoises the raw bursts captured for each point.
package calibration

import (
	"errors"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrNoPoints is returned when a fit is requested with no points at all.
	ErrNoPoints = errors.New("calibration: no points")

	// ErrDegenerate is returned when the points cannot support a line:
	// fewer than two distinct known weights, or no raw-value spread.
	ErrDegenerate = errors.New("calibration: degenerate points")
)

// Point pairs one denoised raw ADC value with the known reference weight
// that was on the scale when it was captured.
type Point struct {
	RawADC  int32   `json:"rawAdc"`
	KnownKg float64 `json:"knownKg"`
}

// Quality bands a fit by its R².
type Quality int

const (
	QualityPoor Quality = iota
	QualityAcceptable
	QualityGood
	QualityExcellent
)

// String implements fmt.Stringer.
func (q Quality) String() string {
	switch q {
	case QualityPoor:
		return "POOR"
	case QualityAcceptable:
		return "ACCEPTABLE"
	case QualityGood:
		return "GOOD"
	case QualityExcellent:
		return "EXCELLENT"
	default:
		return fmt.Sprintf("Quality(%d)", int(q))
	}
}

// QualityFor bands an R² value.
func QualityFor(r2 float64) Quality {
	switch {
	case r2 >= 0.98:
		return QualityExcellent
	case r2 >= 0.90:
		return QualityGood
	case r2 >= 0.75:
		return QualityAcceptable
	default:
		return QualityPoor
	}
}

// Result is one computed fit: weight = Slope*raw + Intercept.
type Result struct {
	Slope      float64 `json:"slope"`
	Intercept  float64 `json:"intercept"`
	RSquared   float64 `json:"rSquared"`
	MaxErrorKg float64 `json:"maxErrorKg"`

	// Valid requires at least two distinct-weight points and a successful
	// regression. A single-point intercept-only fit is usable for display
	// but not valid.
	Valid bool `json:"valid"`
}

// Quality bands the fit.
func (r Result) Quality() Quality { return QualityFor(r.RSquared) }

// Fit performs ordinary least-squares regression of known weight on raw ADC
// value.
//
// One point yields an intercept-only fit (slope zero, flagged not valid).
// Two or more points require at least two distinct known weights and some
// raw-value spread, otherwise ErrDegenerate.
func Fit(points []Point) (Result, error) {
	switch {
	case len(points) == 0:
		return Result{}, ErrNoPoints
	case len(points) == 1:
		return Result{Intercept: points[0].KnownKg}, nil
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	distinctW := false
	distinctX := false
	for i, p := range points {
		xs[i] = float64(p.RawADC)
		ys[i] = p.KnownKg
		if p.KnownKg != points[0].KnownKg {
			distinctW = true
		}
		if p.RawADC != points[0].RawADC {
			distinctX = true
		}
	}
	if !distinctW || !distinctX {
		return Result{}, ErrDegenerate
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	r2 := stat.RSquared(xs, ys, nil, intercept, slope)
	maxErr := 0.0
	for i := range xs {
		resid := ys[i] - (intercept + slope*xs[i])
		if resid < 0 {
			resid = -resid
		}
		if resid > maxErr {
			maxErr = resid
		}
	}
	return Result{
		Slope:      slope,
		Intercept:  intercept,
		RSquared:   r2,
		MaxErrorKg: maxErr,
		Valid:      true,
	}, nil
}

// Linear owns an ordered set of calibration points and the fit derived from
// them. The fit is recomputed on every point add or remove; all accessors
// see either the old or the new fit, never a half-updated one.
type Linear struct {
	mu     sync.RWMutex
	points []Point
	fit    Result
}

// NewLinear builds an empty (invalid) calibration.
func NewLinear() *Linear { return &Linear{} }

// NewLinearFromPoints builds a calibration from persisted points.
func NewLinearFromPoints(points []Point) (*Linear, error) {
	l := &Linear{points: append([]Point(nil), points...)}
	if err := l.refitLocked(); err != nil {
		return nil, err
	}
	return l, nil
}

// AddPoint appends a point and recomputes the fit.
func (l *Linear) AddPoint(p Point) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.points = append(l.points, p)
	if err := l.refitLocked(); err != nil {
		l.points = l.points[:len(l.points)-1]
		_ = l.refitLocked()
		return err
	}
	return nil
}

// RemovePoint deletes the point at index i and recomputes the fit.
func (l *Linear) RemovePoint(i int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.points) {
		return fmt.Errorf("calibration: point index %d out of range", i)
	}
	l.points = append(l.points[:i], l.points[i+1:]...)
	err := l.refitLocked()
	if errors.Is(err, ErrNoPoints) {
		// An empty set is a legal state; the fit is simply invalid.
		return nil
	}
	return err
}

func (l *Linear) refitLocked() error {
	fit, err := Fit(l.points)
	if err != nil {
		l.fit = Result{}
		return err
	}
	l.fit = fit
	return nil
}

// Points returns a copy of the point set in insertion order.
func (l *Linear) Points() []Point {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Point(nil), l.points...)
}

// Fit returns the current derived fit.
func (l *Linear) Fit() Result {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fit
}

// Valid reports whether the current fit can convert raw values.
func (l *Linear) Valid() bool { return l.Fit().Valid }

// Convert maps a raw ADC value to kilograms using the current fit.
func (l *Linear) Convert(raw int32) float64 {
	f := l.Fit()
	return f.Slope*float64(raw) + f.Intercept
}
