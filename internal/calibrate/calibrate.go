package calibrate

import "math"

// Normalize remaps a raw model confidence in [0,1] to a calibrated
// integer score in [0,100]. The 40-60% raw band is stretched so that
// borderline detections remain distinguishable, and anything above 60%
// is capped at 98 rather than claiming absolute certainty.
func Normalize(raw float64) int {
	if raw < 0 {
		raw = 0
	}
	actual := raw * 100

	var scaled float64
	switch {
	case actual <= 40:
		scaled = actual
	case actual <= 55:
		scaled = 40 + (actual-40)*(90-40)/(55-40)
	case actual <= 60:
		scaled = 90 + (actual-55)*(95-90)/(60-55)
	default:
		scaled = 98
	}

	return int(math.Round(scaled))
}
