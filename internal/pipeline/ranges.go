package pipeline

import (
	"slices"
	"time"

	"github.com/leapstack-labs/leapflow/pkg/core"
)

// RemainingRange returns the window an incremental adapter still has to
// load.
//
// It returns nil when either configured bound is missing (the adapter is
// always fully reloaded) or when the executed ranges already reach the
// configured end. Executed ranges are merged when they touch or overlap, and
// only the end of the last merged range matters: processing never restarts
// before it.
func RemainingRange(rc core.RangeConfig, executed []core.ExecutedRange) *core.TimeRange {
	if rc.Since == nil || rc.Until == nil {
		return nil
	}
	since, until := *rc.Since, *rc.Until

	if len(executed) == 0 {
		return &core.TimeRange{Since: &since, Until: &until}
	}

	merged := MergeRanges(executed)
	lastUntil := merged[len(merged)-1].Until
	if !lastUntil.Before(until) {
		return nil
	}

	start := since
	if !lastUntil.Before(since) {
		start = lastUntil
	}
	return &core.TimeRange{Since: &start, Until: &until}
}

// MergeRanges sorts ranges by start and merges those that overlap or touch.
// The input is not modified.
func MergeRanges(ranges []core.ExecutedRange) []core.ExecutedRange {
	if len(ranges) == 0 {
		return nil
	}

	sorted := slices.Clone(ranges)
	slices.SortStableFunc(sorted, func(a, b core.ExecutedRange) int {
		return a.Since.Compare(b.Since)
	})

	merged := []core.ExecutedRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !r.Since.After(last.Until) {
			last.Until = laterOf(last.Until, r.Until)
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
