package pipeline

import (
	"github.com/roach88/datapipe/internal/data"
)

// Rename is a created path that moved from Old to New between two
// preflights of the same node.
type Rename struct {
	Old data.Path
	New data.Path
}

// DetectRenames matches the paths a node created last time (old) with the
// paths it creates now (created). Paths present in both are unchanged. A
// remaining pair of equal length differing in exactly one segment is a
// candidate; a path that takes part in more than one candidate is ambiguous
// and all of its candidates are dropped.
func DetectRenames(old, created []data.Path) []Rename {
	oldOnly := subtract(old, created)
	newOnly := subtract(created, old)

	var candidates []Rename
	for _, np := range newOnly {
		for _, op := range oldOnly {
			if np.DiffSegments(op) == 1 {
				candidates = append(candidates, Rename{Old: op, New: np})
			}
		}
	}

	oldCount := make(map[string]int)
	newCount := make(map[string]int)
	for _, c := range candidates {
		oldCount[c.Old.String()]++
		newCount[c.New.String()]++
	}

	var confirmed []Rename
	for _, c := range candidates {
		if oldCount[c.Old.String()] == 1 && newCount[c.New.String()] == 1 {
			confirmed = append(confirmed, c)
		}
	}
	return confirmed
}

// subtract returns the paths of a not present in b, keeping a's order.
func subtract(a, b []data.Path) []data.Path {
	seen := make(map[string]bool, len(b))
	for _, p := range b {
		seen[p.String()] = true
	}
	var out []data.Path
	for _, p := range a {
		if !seen[p.String()] {
			out = append(out, p)
		}
	}
	return out
}
