package parser

import (
	"iter"
	"math"
	"strconv"
	"strings"

	"Fleetbench/pkg/types"
)

// frameState is the state of the gfxinfo table scanner
type frameState int

const (
	stateScanning frameState = iota
	stateInTable
)

const drawHeader = "Draw"

// Frames 逐帧解析 dumpsys gfxinfo 的 profile 表
//
// Input looks like:
//
//	Profile data in ms:
//
//		com.twitter.android/com.twitter.app.main.MainActivity/android.view.ViewRootImpl@4b2c1a0 (visibility=0)
//		Draw	Prepare	Process	Execute
//		0.41	0.12	2.93	1.05
//		0.38	0.10	3.11	0.97
//
//	View hierarchy:
//
// A line starting with "Draw" opens a table; rows of exactly four numbers
// follow. Any other row closes the table without being recorded, and
// scanning resumes for the next header. The returned sequence is lazy and can
// be ranged over any number of times.
func Frames(output string) iter.Seq[types.FrameSample] {
	return func(yield func(types.FrameSample) bool) {
		state := stateScanning
		for _, line := range strings.Split(output, "\n") {
			line = strings.TrimSpace(line)

			switch state {
			case stateScanning:
				if strings.HasPrefix(line, drawHeader) {
					state = stateInTable
				}
			case stateInTable:
				sample, ok := parseFrameRow(line)
				if !ok {
					state = stateScanning
					// a closing line may itself be the next header
					if strings.HasPrefix(line, drawHeader) {
						state = stateInTable
					}
					continue
				}
				if !yield(sample) {
					return
				}
			}
		}
	}
}

// ParseFrames collects every frame in output
func ParseFrames(output string) []types.FrameSample {
	var res []types.FrameSample
	for f := range Frames(output) {
		res = append(res, f)
	}
	return res
}

// parseFrameRow parses one table row; ok is false when the row is not exactly
// four finite, non-negative numbers
func parseFrameRow(line string) (types.FrameSample, bool) {
	ts := strings.Fields(line)
	if len(ts) != 4 {
		return types.FrameSample{}, false
	}
	var vals [4]float64
	for i, t := range ts {
		v, err := strconv.ParseFloat(t, 64)
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return types.FrameSample{}, false
		}
		vals[i] = v
	}
	return types.FrameSample{
		DrawMs:    vals[0],
		PrepareMs: vals[1],
		ProcessMs: vals[2],
		ExecuteMs: vals[3],
	}, true
}
