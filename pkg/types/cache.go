package types

import "sort"

// CachedAppSet is the set of tracked packages found in one `dumpsys meminfo` snapshot
type CachedAppSet map[string]struct{}

// NewCachedAppSet creates a set holding the given packages
func NewCachedAppSet(pkgs ...string) CachedAppSet {
	s := make(CachedAppSet, len(pkgs))
	for _, p := range pkgs {
		s.Add(p)
	}
	return s
}

// Add inserts a package identifier
func (s CachedAppSet) Add(pkg string) {
	s[pkg] = struct{}{}
}

// Contains reports whether pkg is in the set
func (s CachedAppSet) Contains(pkg string) bool {
	_, ok := s[pkg]
	return ok
}

// Len returns the number of cached packages
func (s CachedAppSet) Len() int {
	return len(s)
}

// Sorted returns the members in lexical order, for stable output only
func (s CachedAppSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether both sets hold exactly the same packages
func (s CachedAppSet) Equal(other CachedAppSet) bool {
	if len(s) != len(other) {
		return false
	}
	for p := range s {
		if !other.Contains(p) {
			return false
		}
	}
	return true
}
