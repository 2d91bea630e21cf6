// Package parser turns the text printed by `am start -W`, `dumpsys meminfo`
// and `dumpsys gfxinfo` into structured values. Every parser is a pure
// function of its input.
package parser

import (
	"strconv"
	"strings"

	"Fleetbench/pkg/types"
)

// Prefixes recognised in `am start -W` output
const (
	prefixStatus      = "Status:"
	prefixLaunchState = "LaunchState:"
	prefixWaitTime    = "WaitTime:"
	prefixTotalTime   = "TotalTime:"
	prefixActivity    = "Activity:"
)

// ParseLaunchResult 解析 am start -W 输出
//
// Example input:
//
//	Starting: Intent { act=android.intent.action.MAIN cmp=com.twitter.android/.StartActivity }
//	Status: ok
//	LaunchState: COLD
//	Activity: com.twitter.android/.StartActivity
//	TotalTime: 1432
//	WaitTime: 1440
//	Complete
//
// Missing lines leave their field at the zero value. A WaitTime that is not an
// integer returns a *ParseError together with the result (WaitTimeMs stays 0);
// the result is always usable.
func ParseLaunchResult(output string) (types.LaunchResult, error) {
	var res types.LaunchResult
	var firstErr error

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, prefixStatus):
			res.Status = fieldValue(line)
		case strings.HasPrefix(line, prefixLaunchState):
			res.LaunchState = types.LaunchState(fieldValue(line))
		case strings.HasPrefix(line, prefixWaitTime):
			v, err := parseMillis("WaitTime", fieldValue(line))
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			res.WaitTimeMs = v
		case strings.HasPrefix(line, prefixTotalTime):
			// TotalTime is informational; a bad value is not worth failing over
			if v, err := parseMillis("TotalTime", fieldValue(line)); err == nil {
				res.TotalTimeMs = v
			}
		case strings.HasPrefix(line, prefixActivity):
			res.Activity = fieldValue(line)
		}
	}
	return res, firstErr
}

// fieldValue returns the trimmed text after the first colon
func fieldValue(line string) string {
	_, v, _ := strings.Cut(line, ":")
	return strings.TrimSpace(v)
}

func parseMillis(field, raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ParseError{Field: field, Value: raw, Err: err}
	}
	if v < 0 {
		return 0, &ParseError{Field: field, Value: raw, Err: strconv.ErrRange}
	}
	return v, nil
}
