// Package tare keeps the per-side, per-sampling-mode zero-offset baselines
// subtracted from calibrated weights.
//
// Four independent baselines exist (2 sides x 2 ADC modes) because the
// calibration curves differ per mode; a baseline captured in one mode is
// never substituted for the other.
package tare

import (
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"github.com/CK6170/canbridge-go/models"
)

var (
	ErrNotFinite = errors.New("tare: baseline is NaN or infinite")
	ErrBadKey    = errors.New("tare: invalid side or sampling mode")
)

// Baseline is one recorded zero offset.
type Baseline struct {
	Side       models.Side        `json:"side"`
	Mode       models.SamplingMode `json:"mode"`
	BaselineKg float64            `json:"baselineKg"`
	TaredAt    time.Time          `json:"taredAt"`
}

type key struct {
	side models.Side
	mode models.SamplingMode
}

// Store holds the four baselines. Safe for concurrent use; Apply is called
// by the pipeline worker at up to 1 kHz and takes only a read lock.
type Store struct {
	mu        sync.RWMutex
	baselines map[key]Baseline
}

// NewStore builds an empty store.
func NewStore() *Store {
	return &Store{baselines: make(map[key]Baseline)}
}

// Tare records the current calibrated weight as the zero baseline for
// (side, mode). NaN/Infinity are caller errors; a negative input is clamped
// to zero with a diagnostic, since a negative baseline is nonsensical but
// not fatal.
func (s *Store) Tare(side models.Side, mode models.SamplingMode, currentKg float64) error {
	if !side.Valid() || !mode.Valid() {
		return ErrBadKey
	}
	if math.IsNaN(currentKg) || math.IsInf(currentKg, 0) {
		return ErrNotFinite
	}
	if currentKg < 0 {
		log.Printf("[tare] %s/%s: clamping negative baseline %.3f kg to zero", side, mode, currentKg)
		currentKg = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines[key{side, mode}] = Baseline{
		Side:       side,
		Mode:       mode,
		BaselineKg: currentKg,
		TaredAt:    time.Now(),
	}
	return nil
}

// Set restores a persisted baseline verbatim (the persistence collaborator
// owns the file format; this store never touches disk).
func (s *Store) Set(b Baseline) error {
	if !b.Side.Valid() || !b.Mode.Valid() {
		return ErrBadKey
	}
	if math.IsNaN(b.BaselineKg) || math.IsInf(b.BaselineKg, 0) {
		return ErrNotFinite
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines[key{b.Side, b.Mode}] = b
	return nil
}

// Apply subtracts the (side, mode) baseline from a calibrated weight,
// flooring at zero. With no baseline recorded for that exact mode the
// calibrated value passes through untared.
func (s *Store) Apply(side models.Side, mode models.SamplingMode, calibratedKg float64) float64 {
	s.mu.RLock()
	b, ok := s.baselines[key{side, mode}]
	s.mu.RUnlock()
	if !ok {
		return calibratedKg
	}
	tared := calibratedKg - b.BaselineKg
	if tared < 0 {
		return 0
	}
	return tared
}

// Get returns the baseline for (side, mode) if one is recorded.
func (s *Store) Get(side models.Side, mode models.SamplingMode) (Baseline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.baselines[key{side, mode}]
	return b, ok
}

// Reset clears one baseline.
func (s *Store) Reset(side models.Side, mode models.SamplingMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.baselines, key{side, mode})
}

// ResetAll clears all four baselines.
func (s *Store) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.baselines)
}

// All returns the recorded baselines in a stable (side, mode) order, for
// the persistence collaborator to snapshot.
func (s *Store) All() []Baseline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Baseline, 0, len(s.baselines))
	for _, side := range models.Sides {
		for _, mode := range models.Modes {
			if b, ok := s.baselines[key{side, mode}]; ok {
				out = append(out, b)
			}
		}
	}
	return out
}
