package verdict

import (
	"minewatch-go/internal/types"
)

// Conclude runs the deterministic decision table over a seed analysis.
// Risk level and recommendations are recomputed from the calibrated
// confidence on every call; trajectory and rock size are only filled
// when Unknown, so advisory values survive. Applying Conclude to its
// own output returns an identical analysis.
func Conclude(seed types.Analysis) types.Analysis {
	out := seed
	conf := out.Confidence

	switch {
	case conf <= 40:
		out.RiskLevel = types.RiskLow
	case conf <= 60:
		out.RiskLevel = types.RiskMedium
	case conf <= 75:
		out.RiskLevel = types.RiskHigh
	default:
		out.RiskLevel = types.RiskVeryHigh
	}

	if out.Trajectory == "" {
		out.Trajectory = types.TrajectoryUnknown
	}
	if out.Trajectory == types.TrajectoryUnknown {
		switch {
		case conf > 70:
			out.Trajectory = types.TrajectoryUnstable
		case conf > 50:
			out.Trajectory = types.TrajectoryModerate
		default:
			out.Trajectory = types.TrajectoryStable
		}
	}

	if out.RockSize == "" {
		out.RockSize = types.RockUnknown
	}
	if out.RockSize == types.RockUnknown {
		switch {
		case conf > 75:
			out.RockSize = types.RockLarge
		case conf > 50:
			out.RockSize = types.RockMedium
		default:
			out.RockSize = types.RockSmall
		}
	}

	var recs []string
	switch out.RiskLevel {
	case types.RiskLow, types.RiskMedium:
		recs = append(recs, "Continue monitoring")
		if out.RockSize == types.RockMedium || out.RockSize == types.RockLarge {
			recs = append(recs, "Schedule inspection")
		}
	case types.RiskHigh, types.RiskVeryHigh:
		recs = append(recs, "Immediate inspection")
		recs = append(recs, "Evacuate personnel if necessary")
		if out.Trajectory == types.TrajectoryUnstable {
			recs = append(recs, "Reinforce support structures")
		}
	}
	out.Recommendations = dedupe(recs)

	return out
}

// dedupe drops repeated entries while preserving first-seen order.
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
