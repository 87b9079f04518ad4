package calibration

import (
	"errors"
	"math"
	"testing"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestFitLine(t *testing.T) {
	fit, err := Fit([]Point{
		{RawADC: 1000, KnownKg: 0.0},
		{RawADC: 2000, KnownKg: 10.0},
		{RawADC: 3000, KnownKg: 20.0},
	})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !fit.Valid {
		t.Error("fit not valid")
	}
	if !almost(fit.Slope, 0.01) {
		t.Errorf("Slope = %v, want 0.01", fit.Slope)
	}
	if !almost(fit.Intercept, -10.0) {
		t.Errorf("Intercept = %v, want -10.0", fit.Intercept)
	}
	if !almost(fit.RSquared, 1.0) {
		t.Errorf("RSquared = %v, want 1.0", fit.RSquared)
	}
	if !almost(fit.MaxErrorKg, 0.0) {
		t.Errorf("MaxErrorKg = %v, want 0", fit.MaxErrorKg)
	}
	if fit.Quality() != QualityExcellent {
		t.Errorf("Quality = %s, want EXCELLENT", fit.Quality())
	}
}

func TestFitNoisyLine(t *testing.T) {
	fit, err := Fit([]Point{
		{RawADC: 1000, KnownKg: 0.2},
		{RawADC: 2000, KnownKg: 9.7},
		{RawADC: 3000, KnownKg: 20.3},
		{RawADC: 4000, KnownKg: 29.8},
	})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !fit.Valid {
		t.Error("fit not valid")
	}
	if fit.RSquared < 0.99 {
		t.Errorf("RSquared = %v, want near 1", fit.RSquared)
	}
	if fit.MaxErrorKg <= 0 || fit.MaxErrorKg > 1 {
		t.Errorf("MaxErrorKg = %v, want small positive", fit.MaxErrorKg)
	}
}

func TestFitEdgeCases(t *testing.T) {
	if _, err := Fit(nil); !errors.Is(err, ErrNoPoints) {
		t.Errorf("empty: err = %v, want %v", err, ErrNoPoints)
	}

	fit, err := Fit([]Point{{RawADC: 1500, KnownKg: 5.0}})
	if err != nil {
		t.Fatalf("single point: %v", err)
	}
	if fit.Valid {
		t.Error("single-point fit marked valid")
	}
	if !almost(fit.Intercept, 5.0) || fit.Slope != 0 {
		t.Errorf("single point fit = %+v", fit)
	}

	// Same known weight on every point cannot support a line.
	if _, err := Fit([]Point{
		{RawADC: 1000, KnownKg: 5.0},
		{RawADC: 2000, KnownKg: 5.0},
	}); !errors.Is(err, ErrDegenerate) {
		t.Errorf("same weights: err = %v, want %v", err, ErrDegenerate)
	}

	// Same raw value on every point is equally degenerate.
	if _, err := Fit([]Point{
		{RawADC: 1000, KnownKg: 0.0},
		{RawADC: 1000, KnownKg: 10.0},
	}); !errors.Is(err, ErrDegenerate) {
		t.Errorf("same raw: err = %v, want %v", err, ErrDegenerate)
	}
}

func TestQualityBands(t *testing.T) {
	cases := []struct {
		r2   float64
		want Quality
	}{
		{1.0, QualityExcellent},
		{0.98, QualityExcellent},
		{0.95, QualityGood},
		{0.90, QualityGood},
		{0.80, QualityAcceptable},
		{0.75, QualityAcceptable},
		{0.50, QualityPoor},
		{0.0, QualityPoor},
	}
	for _, c := range cases {
		if got := QualityFor(c.r2); got != c.want {
			t.Errorf("QualityFor(%v) = %s, want %s", c.r2, got, c.want)
		}
	}
}

func TestLinearAddPointRollback(t *testing.T) {
	l := NewLinear()
	if err := l.AddPoint(Point{RawADC: 1000, KnownKg: 0.0}); err != nil {
		t.Fatalf("first point: %v", err)
	}
	// A second point at the same raw value makes the set degenerate; it must
	// be rolled back, leaving the single-point state intact.
	if err := l.AddPoint(Point{RawADC: 1000, KnownKg: 10.0}); !errors.Is(err, ErrDegenerate) {
		t.Fatalf("degenerate add: err = %v, want %v", err, ErrDegenerate)
	}
	if got := len(l.Points()); got != 1 {
		t.Errorf("points after rollback = %d, want 1", got)
	}

	if err := l.AddPoint(Point{RawADC: 2000, KnownKg: 10.0}); err != nil {
		t.Fatalf("good second point: %v", err)
	}
	if !l.Valid() {
		t.Error("two good points did not produce a valid fit")
	}
	if got := l.Convert(3000); !almost(got, 20.0) {
		t.Errorf("Convert(3000) = %v, want 20.0", got)
	}
}

func TestLinearRemovePoint(t *testing.T) {
	l, err := NewLinearFromPoints([]Point{
		{RawADC: 1000, KnownKg: 0.0},
		{RawADC: 2000, KnownKg: 10.0},
	})
	if err != nil {
		t.Fatalf("NewLinearFromPoints: %v", err)
	}

	if err := l.RemovePoint(5); err == nil {
		t.Error("out-of-range remove succeeded")
	}
	if err := l.RemovePoint(1); err != nil {
		t.Fatalf("RemovePoint: %v", err)
	}
	if l.Valid() {
		t.Error("single remaining point still reported valid")
	}
	// Removing the last point is legal; the fit is simply invalid.
	if err := l.RemovePoint(0); err != nil {
		t.Fatalf("remove last: %v", err)
	}
	if got := len(l.Points()); got != 0 {
		t.Errorf("points = %d, want 0", got)
	}
}

func TestNewLinearFromPointsRejectsDegenerate(t *testing.T) {
	if _, err := NewLinearFromPoints([]Point{
		{RawADC: 1000, KnownKg: 5.0},
		{RawADC: 2000, KnownKg: 5.0},
	}); !errors.Is(err, ErrDegenerate) {
		t.Errorf("err = %v, want %v", err, ErrDegenerate)
	}
}
