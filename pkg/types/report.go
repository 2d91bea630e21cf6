package types

import "time"

// Experiment modes
const (
	ModeLaunch     = "launch"
	ModeWorkingSet = "working-set"
	ModeCycle      = "cycle"
	ModeFrames     = "frames"
)

// AppReport holds the wait-time buckets of one package, in sample order
type AppReport struct {
	Package string `json:"package"`
	Hot     []int  `json:"hot"`
	Cold    []int  `json:"cold"`
	Other   []int  `json:"other"`
}

// Bucket returns the samples of the named bucket
func (a AppReport) Bucket(name string) []int {
	switch name {
	case BucketHot:
		return a.Hot
	case BucketCold:
		return a.Cold
	default:
		return a.Other
	}
}

// Samples returns the number of recorded launches across all buckets
func (a AppReport) Samples() int {
	return len(a.Hot) + len(a.Cold) + len(a.Other)
}

// Report is the final output of one experiment run
type Report struct {
	RunID        string      `json:"runId,omitempty"`
	Mode         string      `json:"mode"`
	DeviceSerial string      `json:"deviceSerial,omitempty"`
	StartedAt    time.Time   `json:"startedAt"`
	FinishedAt   time.Time   `json:"finishedAt,omitempty"`
	Apps         []AppReport `json:"apps"`
	CachedCounts []int       `json:"cachedCounts,omitempty"`
}

// App looks up the report of one package
func (r *Report) App(pkg string) (AppReport, bool) {
	for _, a := range r.Apps {
		if a.Package == pkg {
			return a, true
		}
	}
	return AppReport{}, false
}

// RunSummary is a row of the run listing
type RunSummary struct {
	ID           string    `json:"id"`
	Mode         string    `json:"mode"`
	DeviceSerial string    `json:"deviceSerial,omitempty"`
	Status       string    `json:"status"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt,omitempty"`
	Launches     int       `json:"launches"`
}
