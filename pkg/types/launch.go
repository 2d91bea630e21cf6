package types

// LaunchState is the activity manager's classification of a launch
type LaunchState string

const (
	LaunchStateHot  LaunchState = "HOT"
	LaunchStateCold LaunchState = "COLD"
	LaunchStateWarm LaunchState = "WARM"
)

// StatusOK is the `Status:` value reported for a successful launch
const StatusOK = "ok"

// Bucket names used by reports
const (
	BucketHot   = "hot"
	BucketCold  = "cold"
	BucketOther = "other"
)

// Bucket maps a launch state to its report bucket. WARM, empty and unknown
// states all land in "other".
func (s LaunchState) Bucket() string {
	switch s {
	case LaunchStateHot:
		return BucketHot
	case LaunchStateCold:
		return BucketCold
	default:
		return BucketOther
	}
}

// Known reports whether the state is one of HOT, COLD or WARM
func (s LaunchState) Known() bool {
	return s == LaunchStateHot || s == LaunchStateCold || s == LaunchStateWarm
}

// LaunchResult is one parsed `am start -W` report
type LaunchResult struct {
	Status      string      `json:"status"`
	LaunchState LaunchState `json:"launchState"`
	WaitTimeMs  int         `json:"waitTimeMs"`
	TotalTimeMs int         `json:"totalTimeMs,omitempty"`
	Activity    string      `json:"activity,omitempty"`
}

// OK reports whether the launch completed with `Status: ok`
func (r LaunchResult) OK() bool {
	return r.Status == StatusOK
}
