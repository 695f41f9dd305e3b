package types

// Frame is one sampled image extracted from the video stream.
// The JPEG payload is consumed once by the dispatcher and not retained.
type Frame struct {
	Index      int
	SampleTime float64
	JPEG       []byte
}

// Detection is a single filtered prediction attached to a sampled frame.
type Detection struct {
	FrameIndex int     `json:"-"`
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskVeryHigh RiskLevel = "VeryHigh"
)

type RockSize string

const (
	RockSmall   RockSize = "Small"
	RockMedium  RockSize = "Medium"
	RockLarge   RockSize = "Large"
	RockUnknown RockSize = "Unknown"
)

type Trajectory string

const (
	TrajectoryStable   Trajectory = "Stable"
	TrajectoryModerate Trajectory = "Moderate"
	TrajectoryUnstable Trajectory = "Unstable"
	TrajectoryUnknown  Trajectory = "Unknown"
)

// Analysis is the final safety verdict. Confidence is always the
// calibrated score, never a raw model or advisory value.
type Analysis struct {
	RiskLevel       RiskLevel  `json:"riskLevel"`
	Confidence      int        `json:"confidence"`
	RockSize        RockSize   `json:"rockSize"`
	Trajectory      Trajectory `json:"trajectory"`
	Recommendations []string   `json:"recommendations"`
}
