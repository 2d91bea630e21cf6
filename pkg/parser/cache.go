package parser

import (
	"strings"

	"Fleetbench/pkg/types"
)

// CachedAppParser finds tracked packages in `dumpsys meminfo` output.
//
// Lines are split on single spaces, so runs of spaces produce empty tokens
// that never match. Some builds indent the process lines with tabs or leave
// trailing whitespace glued to the last token; TrimLines strips each line
// first to cope with that.
type CachedAppParser struct {
	allow     map[string]struct{}
	trimLines bool
}

// NewCachedAppParser builds a parser for a fixed allow-list of package names
func NewCachedAppParser(allowList []string, trimLines bool) *CachedAppParser {
	allow := make(map[string]struct{}, len(allowList))
	for _, p := range allowList {
		allow[p] = struct{}{}
	}
	return &CachedAppParser{allow: allow, trimLines: trimLines}
}

// AllowList returns the number of tracked packages
func (p *CachedAppParser) AllowList() int {
	return len(p.allow)
}

// TrimLines reports which variant the parser runs
func (p *CachedAppParser) TrimLines() bool {
	return p.trimLines
}

// Parse returns a fresh set of allow-listed packages present in output.
// Tokens are compared by exact equality, never by substring.
func (p *CachedAppParser) Parse(output string) types.CachedAppSet {
	set := types.NewCachedAppSet()
	for _, line := range strings.Split(output, "\n") {
		if p.trimLines {
			line = strings.TrimSpace(line)
		}
		for _, tok := range strings.Split(line, " ") {
			if _, ok := p.allow[tok]; ok {
				set.Add(tok)
			}
		}
	}
	return set
}
