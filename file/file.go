// Package file persists calibration points and tare baselines to disk so a
// restarted host picks up where it left off.
//
// The on-disk format is plain indented JSON. A sibling `.version` file is
// written next to the calibration JSON to record the app version/build
// without changing the JSON schema.
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/CK6170/canbridge-go/calibration"
	"github.com/CK6170/canbridge-go/models"
	"github.com/CK6170/canbridge-go/tare"
)

// CalibrationFile is the persisted shape: one point set per side, in
// insertion order.
type CalibrationFile struct {
	Left  []calibration.Point `json:"left"`
	Right []calibration.Point `json:"right"`
}

// PointsFor returns the stored point set for a side.
func (c *CalibrationFile) PointsFor(side models.Side) []calibration.Point {
	if side == models.Right {
		return c.Right
	}
	return c.Left
}

// SetPointsFor replaces the stored point set for a side.
func (c *CalibrationFile) SetPointsFor(side models.Side, points []calibration.Point) {
	if side == models.Right {
		c.Right = points
		return
	}
	c.Left = points
}

// SaveCalibration overwrites the JSON file at path with the point sets and
// writes the sibling `.version` file.
func SaveCalibration(path string, cal CalibrationFile, appVer, appBuild string) error {
	data, err := json.MarshalIndent(cal, "", "  ")
	if err != nil {
		return fmt.Errorf("file: marshal calibration: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("file: write calibration: %w", err)
	}

	verFile := strings.TrimSuffix(path, ".json") + ".version"
	verContent := fmt.Sprintf("%s %s\n", appVer, appBuild)
	if err := os.WriteFile(verFile, []byte(verContent), 0644); err != nil {
		return fmt.Errorf("file: write version file: %w", err)
	}
	return nil
}

// LoadCalibration reads the point sets from path. A missing file is not an
// error; it returns an empty CalibrationFile so first runs start clean.
func LoadCalibration(path string) (CalibrationFile, error) {
	var cal CalibrationFile
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cal, nil
	}
	if err != nil {
		return cal, fmt.Errorf("file: read calibration: %w", err)
	}
	if err := json.Unmarshal(data, &cal); err != nil {
		return cal, fmt.Errorf("file: parse calibration: %w", err)
	}
	return cal, nil
}

// SaveTares overwrites the JSON file at path with the store's baselines.
func SaveTares(path string, store *tare.Store) error {
	data, err := json.MarshalIndent(store.All(), "", "  ")
	if err != nil {
		return fmt.Errorf("file: marshal tares: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("file: write tares: %w", err)
	}
	return nil
}

// LoadTares reads baselines from path into the store. A missing file is not
// an error.
func LoadTares(path string, store *tare.Store) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("file: read tares: %w", err)
	}
	var baselines []tare.Baseline
	if err := json.Unmarshal(data, &baselines); err != nil {
		return fmt.Errorf("file: parse tares: %w", err)
	}
	for _, b := range baselines {
		if err := store.Set(b); err != nil {
			return err
		}
	}
	return nil
}
