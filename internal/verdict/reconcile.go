package verdict

import (
	"encoding/json"
	"strings"

	"minewatch-go/internal/calibrate"
	"minewatch-go/internal/types"
)

// Advisory is the tagged result of parsing the text-generation
// collaborator's output. Unparsed advisories never reach the decision
// table; the reconciler substitutes the default seed instead.
type Advisory struct {
	Seed   types.Analysis
	Parsed bool
}

// ParseAdvisory parses an advisory summary best-effort. The collaborator
// tends to wrap its JSON in markdown code fences, so those are stripped
// first. Anything that does not decode, or decodes to unrecognized enum
// values, degrades to Unknown rather than failing.
func ParseAdvisory(text string) Advisory {
	cleaned := stripFences(text)
	if cleaned == "" {
		return Advisory{}
	}

	var raw struct {
		RiskLevel       string   `json:"riskLevel"`
		Confidence      any      `json:"confidence"`
		RockSize        string   `json:"rockSize"`
		Trajectory      string   `json:"trajectory"`
		Recommendations []string `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return Advisory{}
	}

	seed := types.Analysis{
		RockSize:        parseRockSize(raw.RockSize),
		Trajectory:      parseTrajectory(raw.Trajectory),
		Recommendations: raw.Recommendations,
	}
	return Advisory{Seed: seed, Parsed: true}
}

// Reconcile merges the advisory with the authoritative highest raw
// confidence. The advisory's own confidence claim is never trusted: the
// calibrated score always comes from the normalizer, and the decision
// table has the final word on every field.
func Reconcile(advisory Advisory, highestRawConfidence float64) types.Analysis {
	seed := defaultSeed()
	if advisory.Parsed {
		seed = advisory.Seed
	}
	seed.Confidence = calibrate.Normalize(highestRawConfidence)
	return Conclude(seed)
}

func defaultSeed() types.Analysis {
	return types.Analysis{
		RockSize:        types.RockUnknown,
		Trajectory:      types.TrajectoryUnknown,
		Recommendations: []string{},
	}
}

func stripFences(text string) string {
	cleaned := strings.TrimSpace(text)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	cleaned = strings.Trim(cleaned, "`")
	cleaned = strings.TrimSpace(cleaned)
	if len(cleaned) >= 4 && strings.EqualFold(cleaned[:4], "json") {
		cleaned = strings.TrimSpace(cleaned[4:])
	}
	return cleaned
}

func parseRockSize(s string) types.RockSize {
	switch types.RockSize(strings.TrimSpace(s)) {
	case types.RockSmall:
		return types.RockSmall
	case types.RockMedium:
		return types.RockMedium
	case types.RockLarge:
		return types.RockLarge
	default:
		return types.RockUnknown
	}
}

func parseTrajectory(s string) types.Trajectory {
	switch types.Trajectory(strings.TrimSpace(s)) {
	case types.TrajectoryStable:
		return types.TrajectoryStable
	case types.TrajectoryModerate:
		return types.TrajectoryModerate
	case types.TrajectoryUnstable:
		return types.TrajectoryUnstable
	default:
		return types.TrajectoryUnknown
	}
}
