package edl

import (
	"fmt"
	"log/slog"
	"sort"
)

// Check returns every structural problem found in list. An empty result
// means the list is valid.
func Check(list List) []string {
	var problems []string

	if len(list.Entries) == 0 {
		return append(problems, "edl has no entries")
	}

	for i, e := range list.Entries {
		if e.OriginalEndMs <= e.OriginalStartMs {
			problems = append(problems, fmt.Sprintf("entry %d: original range [%d, %d) is empty or inverted",
				i, e.OriginalStartMs, e.OriginalEndMs))
		}
		if e.NewEndMs <= e.NewStartMs {
			problems = append(problems, fmt.Sprintf("entry %d: new range [%d, %d) is empty or inverted",
				i, e.NewStartMs, e.NewEndMs))
		}
		if !e.Operation.valid() {
			problems = append(problems, fmt.Sprintf("entry %d: unknown operation %q", i, e.Operation))
		}
	}

	sorted := make([]Entry, len(list.Entries))
	copy(sorted, list.Entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OriginalStartMs < sorted[j].OriginalStartMs
	})
	for i := 1; i < len(sorted); i++ {
		prev, next := sorted[i-1], sorted[i]
		if prev.OriginalEndMs > next.OriginalStartMs {
			problems = append(problems, fmt.Sprintf("original ranges [%d, %d) and [%d, %d) overlap",
				prev.OriginalStartMs, prev.OriginalEndMs, next.OriginalStartMs, next.OriginalEndMs))
		}
	}

	return problems
}

// Validate reports whether list is structurally sound. Problems are logged,
// never returned as errors. logger may be nil.
func Validate(list List, logger *slog.Logger) bool {
	problems := Check(list)
	if len(problems) == 0 {
		return true
	}
	if logger != nil {
		for _, p := range problems {
			logger.Warn("edl validation failed", "video_id", list.VideoID, "problem", p)
		}
	}
	return false
}
