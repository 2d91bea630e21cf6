package driver

import (
	"slices"

	"Fleetbench/pkg/types"
)

// Accumulator collects the wait-time buckets of one run. It is owned by a
// single Driver run and is not safe for concurrent use.
type Accumulator struct {
	order  []string
	apps   map[string]*types.AppReport
	cached []int
}

// NewAccumulator creates empty buckets for pkgs, keeping their order in reports
func NewAccumulator(pkgs []string) *Accumulator {
	a := &Accumulator{apps: make(map[string]*types.AppReport, len(pkgs))}
	for _, p := range pkgs {
		a.app(p)
	}
	return a
}

func (a *Accumulator) app(pkg string) *types.AppReport {
	r, ok := a.apps[pkg]
	if !ok {
		r = &types.AppReport{Package: pkg, Hot: []int{}, Cold: []int{}, Other: []int{}}
		a.apps[pkg] = r
		a.order = append(a.order, pkg)
	}
	return r
}

// Add appends a wait time to the bucket selected by state
func (a *Accumulator) Add(pkg string, state types.LaunchState, waitMs int) {
	r := a.app(pkg)
	switch state.Bucket() {
	case types.BucketHot:
		r.Hot = append(r.Hot, waitMs)
	case types.BucketCold:
		r.Cold = append(r.Cold, waitMs)
	default:
		r.Other = append(r.Other, waitMs)
	}
}

// AddCachedCount records the size of one cached-app snapshot
func (a *Accumulator) AddCachedCount(n int) {
	a.cached = append(a.cached, n)
}

// Report returns a deep copy of the buckets in configuration order
func (a *Accumulator) Report(mode string) types.Report {
	rep := types.Report{Mode: mode, Apps: make([]types.AppReport, 0, len(a.order))}
	for _, pkg := range a.order {
		r := a.apps[pkg]
		rep.Apps = append(rep.Apps, types.AppReport{
			Package: r.Package,
			Hot:     slices.Clone(r.Hot),
			Cold:    slices.Clone(r.Cold),
			Other:   slices.Clone(r.Other),
		})
	}
	if len(a.cached) > 0 {
		rep.CachedCounts = slices.Clone(a.cached)
	}
	return rep
}
