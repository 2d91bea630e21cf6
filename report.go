package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/tidwall/gjson"

	"Fleetbench/pkg/types"
)

// Report output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("244"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
)

// jankThresholdMs is one frame at 60Hz
const jankThresholdMs = 1000.0 / 60

// BucketStats summarizes one wait-time bucket
type BucketStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

func bucketStats(samples []int) BucketStats {
	s := BucketStats{Count: len(samples)}
	if s.Count == 0 {
		return s
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	sum := 0
	for _, v := range sorted {
		sum += v
	}
	s.Mean = float64(sum) / float64(s.Count)
	mid := s.Count / 2
	if s.Count%2 == 1 {
		s.Median = float64(sorted[mid])
	} else {
		s.Median = float64(sorted[mid-1]+sorted[mid]) / 2
	}
	return s
}

// formatList prints samples as [a, b, c]
func formatList(samples []int) string {
	parts := make([]string, len(samples))
	for i, v := range samples {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// RenderReport writes rep in the requested format
func RenderReport(w io.Writer, rep types.Report, format string) error {
	switch format {
	case FormatJSON:
		return RenderReportJSON(w, rep)
	case FormatText, "":
		return RenderReportText(w, rep)
	default:
		return fmt.Errorf("unknown format %q (want text or json)", format)
	}
}

// RenderReportText prints the raw buckets, one line per app and bucket, then
// a summary table
func RenderReportText(w io.Writer, rep types.Report) error {
	for _, bucket := range []string{types.BucketHot, types.BucketCold, types.BucketOther} {
		for _, app := range rep.Apps {
			fmt.Fprintf(w, "%s_launch_time_%s= %s\n", bucket, app.Package, formatList(app.Bucket(bucket)))
		}
	}
	if len(rep.CachedCounts) > 0 {
		fmt.Fprintf(w, "cached_app_counts= %s\n", formatList(rep.CachedCounts))
	}
	fmt.Fprintln(w)

	title := fmt.Sprintf("Run %s", rep.RunID)
	if rep.RunID == "" {
		title = "Run"
	}
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render(title), mutedStyle.Render(runSubtitle(rep)))

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-36s %-6s %5s %9s %9s", "Package", "Bucket", "Count", "Mean", "Median")))
	for _, app := range rep.Apps {
		for _, bucket := range []string{types.BucketHot, types.BucketCold, types.BucketOther} {
			st := bucketStats(app.Bucket(bucket))
			if st.Count == 0 {
				continue
			}
			fmt.Fprintf(&b, "\n%-36s %-6s %5d %9.1f %9.1f", app.Package, bucket, st.Count, st.Mean, st.Median)
		}
	}
	if len(rep.CachedCounts) > 0 {
		st := bucketStats(rep.CachedCounts)
		fmt.Fprintf(&b, "\n%-36s %-6s %5d %9.1f %9.1f", "cached apps", "-", st.Count, st.Mean, st.Median)
	}
	_, err := fmt.Fprintln(w, boxStyle.Render(b.String()))
	return err
}

func runSubtitle(rep types.Report) string {
	parts := []string{rep.Mode}
	if rep.DeviceSerial != "" {
		parts = append(parts, rep.DeviceSerial)
	}
	if !rep.StartedAt.IsZero() {
		parts = append(parts, rep.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if !rep.FinishedAt.IsZero() && !rep.StartedAt.IsZero() {
		parts = append(parts, rep.FinishedAt.Sub(rep.StartedAt).Round(time.Second).String())
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// RenderReportJSON writes rep as indented JSON
func RenderReportJSON(w io.Writer, rep types.Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rep)
}

// QueryReport evaluates a gjson path against the JSON form of rep, e.g.
// `apps.#(package=="com.twitter.android").hot`
func QueryReport(rep types.Report, path string) (string, error) {
	data, err := json.Marshal(rep)
	if err != nil {
		return "", err
	}
	res := gjson.GetBytes(data, path)
	if !res.Exists() {
		return "", fmt.Errorf("query %q matched nothing", path)
	}
	return res.String(), nil
}

// RenderRuns prints the run listing
func RenderRuns(w io.Writer, runs []types.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No runs stored"))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-36s  %-11s  %-18s  %-9s  %-19s  %s", "ID", "Mode", "Device", "Status", "Started", "Launches")))
	fmt.Fprintln(w, mutedStyle.Render(strings.Repeat("─", 112)))
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-11s  %-18s  %-9s  %-19s  %d\n",
			r.ID, r.Mode, r.DeviceSerial, r.Status, r.StartedAt.Format("2006-01-02 15:04:05"), r.Launches)
	}
}

// FrameStats summarizes the frames of a profiling run
type FrameStats struct {
	Count       int     `json:"count"`
	MeanTotal   float64 `json:"meanTotalMs"`
	MedianTotal float64 `json:"medianTotalMs"`
	MaxTotal    float64 `json:"maxTotalMs"`
	Slow        int     `json:"slow"` // frames above 16.67ms
}

func frameStats(frames []types.FrameSample) FrameStats {
	st := FrameStats{Count: len(frames)}
	if st.Count == 0 {
		return st
	}
	totals := make([]float64, 0, len(frames))
	sum := 0.0
	for _, f := range frames {
		t := f.Total()
		totals = append(totals, t)
		sum += t
		if t > jankThresholdMs {
			st.Slow++
		}
	}
	slices.Sort(totals)
	st.MeanTotal = sum / float64(st.Count)
	st.MaxTotal = totals[len(totals)-1]
	mid := st.Count / 2
	if st.Count%2 == 1 {
		st.MedianTotal = totals[mid]
	} else {
		st.MedianTotal = (totals[mid-1] + totals[mid]) / 2
	}
	return st
}

// RenderFrameSummary prints the frame statistics of a profiling run
func RenderFrameSummary(w io.Writer, runID string, frames []types.FrameSample) {
	st := frameStats(frames)
	body := fmt.Sprintf("%s %d\n%s %.2f ms\n%s %.2f ms\n%s %.2f ms\n%s %d",
		headerStyle.Render("frames:"), st.Count,
		headerStyle.Render("mean:  "), st.MeanTotal,
		headerStyle.Render("median:"), st.MedianTotal,
		headerStyle.Render("max:   "), st.MaxTotal,
		headerStyle.Render("slow:  "), st.Slow)
	fmt.Fprintf(w, "%s\n%s\n", titleStyle.Render("Frames "+runID), boxStyle.Render(body))
}
