// Package congestion converts vehicle counts and frame geometry into a
// 0-100 congestion score. Score is a pure function of its inputs and is
// monotonic non-decreasing in density.
package congestion

// Level classifies a congestion score.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// DensityScale normalises vehicles-per-pixel into the banded density range.
const DensityScale = 100000

// Density band boundaries (inclusive lower bound).
const (
	mediumDensity   = 2
	highDensity     = 5
	criticalDensity = 10
)

// Density returns the scaled vehicle density for a frame. A non-positive
// frame area yields zero density rather than a division blow-up.
func Density(vehicleCount int, frameArea int) float64 {
	if frameArea <= 0 {
		return 0
	}
	return float64(vehicleCount) / float64(frameArea) * DensityScale
}

// Score maps a vehicle count and frame area to a congestion score in [0,100]
// and its level. The piecewise-linear bands join continuously, which makes
// the mapping monotonic non-decreasing in density by construction; any
// future band change must preserve that.
func Score(vehicleCount int, frameArea int) (float64, Level) {
	return scoreDensity(Density(vehicleCount, frameArea))
}

func scoreDensity(density float64) (float64, Level) {
	switch {
	case density < mediumDensity:
		return density * 10, LevelLow
	case density < highDensity:
		return 20 + (density-mediumDensity)*10, LevelMedium
	case density < criticalDensity:
		return 50 + (density-highDensity)*10, LevelHigh
	default:
		return 100, LevelCritical
	}
}
