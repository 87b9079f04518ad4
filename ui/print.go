package ui

import (
	"fmt"

	"github.com/CK6170/canbridge-go/calibration"
	"github.com/CK6170/canbridge-go/models"
)

func sideCell(p *models.ProcessedSample) string {
	if p == nil {
		return "raw ------  ---.---kg"
	}
	return fmt.Sprintf("raw %6d  %+8.3fkg", p.Raw, p.TaredKg)
}

// PrintLiveLine prints a single in-place (carriage-return) line showing the
// latest processed sample for both sides plus the pipeline counters.
func PrintLiveLine(left, right *models.ProcessedSample, mode models.SamplingMode, processed, dropped uint64) {
	fmt.Printf("\r[LIVE %s] L: %s | R: %s | ok %d drop %d        ",
		mode, sideCell(left), sideCell(right), processed, dropped)
}

// PrintCaptureLine prints the in-place line shown while a calibration point
// is being collected.
func PrintCaptureLine(side models.Side, knownKg float64, collected, target int) {
	// Light blue entire line (capture phase inside interactive calibration)
	fmt.Printf("\r\033[96m[CAP %s %.3fkg] %4d/%4d samples        \033[0m",
		side, knownKg, collected, target)
}

// PrintFitLine prints a completed calibration fit with its quality band.
func PrintFitLine(side models.Side, fit calibration.Result) {
	fmt.Printf("\n\033[34m[FIT %s] slope=%.6f intercept=%.3f R2=%.4f (%s)\033[0m\n",
		side, fit.Slope, fit.Intercept, fit.RSquared, fit.Quality())
}
