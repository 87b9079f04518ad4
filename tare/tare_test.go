package tare

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/CK6170/canbridge-go/models"
)

func TestTareAndApply(t *testing.T) {
	s := NewStore()
	if err := s.Tare(models.Left, models.ModeInternal, 12.5); err != nil {
		t.Fatalf("Tare: %v", err)
	}

	if got := s.Apply(models.Left, models.ModeInternal, 12.5); got != 0 {
		t.Errorf("Apply(12.5) = %v, want 0", got)
	}
	if got := s.Apply(models.Left, models.ModeInternal, 20.0); got != 7.5 {
		t.Errorf("Apply(20.0) = %v, want 7.5", got)
	}
	// Below the baseline floors at zero, never negative.
	if got := s.Apply(models.Left, models.ModeInternal, 5.0); got != 0 {
		t.Errorf("Apply(5.0) = %v, want 0", got)
	}
}

func TestApplyWithoutBaselinePassesThrough(t *testing.T) {
	s := NewStore()
	// No baseline: the calibrated value passes through, negatives included.
	if got := s.Apply(models.Right, models.ModeExternal, -3.25); got != -3.25 {
		t.Errorf("Apply = %v, want pass-through -3.25", got)
	}
}

func TestBaselinesAreKeyedBySideAndMode(t *testing.T) {
	s := NewStore()
	if err := s.Tare(models.Left, models.ModeInternal, 10.0); err != nil {
		t.Fatalf("Tare: %v", err)
	}

	// Same side, other mode: untouched.
	if got := s.Apply(models.Left, models.ModeExternal, 10.0); got != 10.0 {
		t.Errorf("other mode Apply = %v, want 10.0", got)
	}
	// Other side, same mode: untouched.
	if got := s.Apply(models.Right, models.ModeInternal, 10.0); got != 10.0 {
		t.Errorf("other side Apply = %v, want 10.0", got)
	}
	if got := s.Apply(models.Left, models.ModeInternal, 10.0); got != 0 {
		t.Errorf("keyed Apply = %v, want 0", got)
	}
}

func TestTareRejectsNonFinite(t *testing.T) {
	s := NewStore()
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := s.Tare(models.Left, models.ModeInternal, v); !errors.Is(err, ErrNotFinite) {
			t.Errorf("Tare(%v): err = %v, want %v", v, err, ErrNotFinite)
		}
	}
	if _, ok := s.Get(models.Left, models.ModeInternal); ok {
		t.Error("rejected tare left a baseline behind")
	}
}

func TestTareClampsNegativeBaseline(t *testing.T) {
	s := NewStore()
	if err := s.Tare(models.Left, models.ModeInternal, -4.2); err != nil {
		t.Fatalf("Tare: %v", err)
	}
	b, ok := s.Get(models.Left, models.ModeInternal)
	if !ok {
		t.Fatal("baseline missing")
	}
	if b.BaselineKg != 0 {
		t.Errorf("BaselineKg = %v, want clamped 0", b.BaselineKg)
	}
}

func TestTareRejectsBadKey(t *testing.T) {
	s := NewStore()
	if err := s.Tare(models.Side(5), models.ModeInternal, 1.0); !errors.Is(err, ErrBadKey) {
		t.Errorf("bad side: err = %v, want %v", err, ErrBadKey)
	}
	if err := s.Set(Baseline{Side: models.Left, Mode: models.SamplingMode(9)}); !errors.Is(err, ErrBadKey) {
		t.Errorf("bad mode: err = %v, want %v", err, ErrBadKey)
	}
}

func TestResetAndResetAll(t *testing.T) {
	s := NewStore()
	for _, side := range models.Sides {
		for _, mode := range models.Modes {
			if err := s.Tare(side, mode, 1.0); err != nil {
				t.Fatalf("Tare(%s,%s): %v", side, mode, err)
			}
		}
	}
	if got := len(s.All()); got != 4 {
		t.Fatalf("All = %d baselines, want 4", got)
	}

	s.Reset(models.Left, models.ModeInternal)
	if _, ok := s.Get(models.Left, models.ModeInternal); ok {
		t.Error("Reset did not clear the baseline")
	}
	if got := len(s.All()); got != 3 {
		t.Errorf("All = %d baselines after Reset, want 3", got)
	}

	s.ResetAll()
	if got := len(s.All()); got != 0 {
		t.Errorf("All = %d baselines after ResetAll, want 0", got)
	}
}

func TestSetRestoresPersistedBaseline(t *testing.T) {
	s := NewStore()
	want := Baseline{
		Side:       models.Right,
		Mode:       models.ModeExternal,
		BaselineKg: 2.75,
		TaredAt:    time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}
	if err := s.Set(want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := s.Get(models.Right, models.ModeExternal)
	if !ok {
		t.Fatal("baseline missing")
	}
	if got != want {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
}

func TestAllStableOrder(t *testing.T) {
	s := NewStore()
	_ = s.Tare(models.Right, models.ModeExternal, 4.0)
	_ = s.Tare(models.Left, models.ModeInternal, 1.0)
	_ = s.Tare(models.Right, models.ModeInternal, 3.0)
	_ = s.Tare(models.Left, models.ModeExternal, 2.0)

	all := s.All()
	if len(all) != 4 {
		t.Fatalf("All = %d baselines, want 4", len(all))
	}
	wantKg := []float64{1.0, 2.0, 3.0, 4.0}
	for i, b := range all {
		if b.BaselineKg != wantKg[i] {
			t.Errorf("All[%d].BaselineKg = %v, want %v", i, b.BaselineKg, wantKg[i])
		}
	}
}
