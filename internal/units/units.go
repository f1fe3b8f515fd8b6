package units

import (
	"fmt"
	"math"
)

// Converter translates between microsteps of the lead screw and the
// arcminute/arcsecond notation used at the console.
//
// The chain: motor steps -> screw travel in mm -> mount rotation in
// arcseconds, via the lead screw pitch and the mount gear ratio.
type Converter struct {
	stepsPerArcsec float64
}

// Mechanism holds the physical parameters of the mount.
type Mechanism struct {
	StepsPerRev       int     // full steps per motor revolution
	Microstepping     int     // microstep divisor
	DriveReduction    float64 // belt/efficiency factor between motor and screw
	LeadScrewTravelMm float64 // screw travel per screw revolution
	GearRatio         float64 // mount rotations per screw travel span
}

// NewConverter derives the steps-per-arcsecond ratio from the mechanism.
func NewConverter(m Mechanism) *Converter {
	stepsPerScrewRev := float64(m.StepsPerRev*m.Microstepping) * m.DriveReduction
	stepsPerMM := stepsPerScrewRev / m.LeadScrewTravelMm
	arcsecPerMM := (3600.0 * 360.0) / (m.LeadScrewTravelMm * m.GearRatio)
	return &Converter{
		stepsPerArcsec: stepsPerMM / arcsecPerMM,
	}
}

// StepsPerArcsecond exposes the derived ratio.
func (c *Converter) StepsPerArcsecond() float64 {
	return c.stepsPerArcsec
}

// ArcToSteps converts arcmin.arcsec notation to steps. The integer part is
// arcminutes and the fractional part times 100 is arcseconds: 1.30 means
// 1'30" (90 arcseconds), NOT 1.3 decimal arcminutes. Sign is preserved.
func (c *Converter) ArcToSteps(arcminSec float64) int64 {
	abs := math.Abs(arcminSec)
	arcmin := math.Floor(abs)
	arcsec := (abs - arcmin) * 100
	total := arcmin*60 + arcsec
	steps := int64(math.Round(total * c.stepsPerArcsec))
	if arcminSec < 0 {
		return -steps
	}
	return steps
}

// StepsToArc converts steps to (arcminutes, arcseconds). The sign is
// carried separately by the caller; both return values are non-negative.
func (c *Converter) StepsToArc(steps int64) (arcmin int, arcsec float64) {
	total := math.Abs(float64(steps)) / c.stepsPerArcsec
	arcmin = int(total / 60)
	arcsec = math.Mod(total, 60)
	return arcmin, arcsec
}

// FormatPosition renders a step count as a signed arc string, e.g. -1'30.00".
func (c *Converter) FormatPosition(steps int64) string {
	arcmin, arcsec := c.StepsToArc(steps)
	sign := ""
	if steps < 0 {
		sign = "-"
	}
	return fmt.Sprintf("%s%d'%05.2f\"", sign, arcmin, arcsec)
}
