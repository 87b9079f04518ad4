package file

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/CK6170/canbridge-go/calibration"
	"github.com/CK6170/canbridge-go/models"
	"github.com/CK6170/canbridge-go/tare"
)

func TestCalibrationRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.json")
	want := CalibrationFile{
		Left: []calibration.Point{
			{RawADC: 1000, KnownKg: 0.0},
			{RawADC: 2000, KnownKg: 10.0},
		},
		Right: []calibration.Point{
			{RawADC: 1500, KnownKg: 5.0},
		},
	}
	if err := SaveCalibration(path, want, "1.2.3", "42"); err != nil {
		t.Fatalf("SaveCalibration: %v", err)
	}

	got, err := LoadCalibration(path)
	if err != nil {
		t.Fatalf("LoadCalibration: %v", err)
	}
	if len(got.Left) != 2 || len(got.Right) != 1 {
		t.Fatalf("loaded %d/%d points, want 2/1", len(got.Left), len(got.Right))
	}
	if got.Left[1] != want.Left[1] {
		t.Errorf("Left[1] = %+v, want %+v", got.Left[1], want.Left[1])
	}

	// The sibling version file records the build.
	verPath := strings.TrimSuffix(path, ".json") + ".version"
	data, err := os.ReadFile(verPath)
	if err != nil {
		t.Fatalf("read version file: %v", err)
	}
	if string(data) != "1.2.3 42\n" {
		t.Errorf("version file = %q", data)
	}
}

func TestLoadCalibrationMissingFile(t *testing.T) {
	got, err := LoadCalibration(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if len(got.Left) != 0 || len(got.Right) != 0 {
		t.Errorf("missing file yielded points: %+v", got)
	}
}

func TestPointsForSides(t *testing.T) {
	var cal CalibrationFile
	cal.SetPointsFor(models.Left, []calibration.Point{{RawADC: 1, KnownKg: 1}})
	cal.SetPointsFor(models.Right, []calibration.Point{{RawADC: 2, KnownKg: 2}})
	if got := cal.PointsFor(models.Left); len(got) != 1 || got[0].RawADC != 1 {
		t.Errorf("left points = %+v", got)
	}
	if got := cal.PointsFor(models.Right); len(got) != 1 || got[0].RawADC != 2 {
		t.Errorf("right points = %+v", got)
	}
}

func TestTaresRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tares.json")
	src := tare.NewStore()
	if err := src.Set(tare.Baseline{
		Side:       models.Left,
		Mode:       models.ModeInternal,
		BaselineKg: 3.5,
		TaredAt:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := SaveTares(path, src); err != nil {
		t.Fatalf("SaveTares: %v", err)
	}

	dst := tare.NewStore()
	if err := LoadTares(path, dst); err != nil {
		t.Fatalf("LoadTares: %v", err)
	}
	b, ok := dst.Get(models.Left, models.ModeInternal)
	if !ok {
		t.Fatal("baseline not restored")
	}
	if b.BaselineKg != 3.5 {
		t.Errorf("BaselineKg = %v, want 3.5", b.BaselineKg)
	}
}

func TestLoadTaresMissingFile(t *testing.T) {
	dst := tare.NewStore()
	if err := LoadTares(filepath.Join(t.TempDir(), "absent.json"), dst); err != nil {
		t.Errorf("missing file: %v", err)
	}
	if len(dst.All()) != 0 {
		t.Error("missing file populated the store")
	}
}

func TestLoadCalibrationRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCalibration(path); err == nil {
		t.Error("garbage file parsed")
	}
}
