package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapflow/pkg/core"
)

func executed(pairs ...string) []core.ExecutedRange {
	var out []core.ExecutedRange
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, core.ExecutedRange{Since: date(pairs[i]), Until: date(pairs[i+1])})
	}
	return out
}

func TestRemainingRange(t *testing.T) {
	year := core.RangeConfig{Since: datePtr("2024-01-01"), Until: datePtr("2024-12-31")}

	tests := []struct {
		name      string
		rc        core.RangeConfig
		executed  []core.ExecutedRange
		wantNil   bool
		wantSince string
	}{
		{name: "missing since", rc: core.RangeConfig{Until: datePtr("2024-12-31")}, wantNil: true},
		{name: "missing until", rc: core.RangeConfig{Since: datePtr("2024-01-01")}, wantNil: true},
		{name: "no history", rc: year, wantSince: "2024-01-01"},
		{name: "first half done", rc: year, executed: executed("2024-01-01", "2024-06-30"), wantSince: "2024-06-30"},
		{name: "exact end is covered", rc: year, executed: executed("2024-01-01", "2024-06-30", "2024-06-30", "2024-12-31"), wantNil: true},
		{name: "beyond end is covered", rc: year, executed: executed("2024-01-01", "2025-03-01"), wantNil: true},
		{
			name:      "unsorted overlapping ranges merge",
			rc:        year,
			executed:  executed("2024-03-01", "2024-05-01", "2024-01-01", "2024-02-01", "2024-02-01", "2024-04-01"),
			wantSince: "2024-05-01",
		},
		{
			name:      "only the last merged range counts",
			rc:        year,
			executed:  executed("2024-01-01", "2024-02-01", "2024-08-01", "2024-09-01"),
			wantSince: "2024-09-01",
		},
		{name: "history before the window", rc: year, executed: executed("2023-01-01", "2023-06-01"), wantSince: "2024-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RemainingRange(tt.rc, tt.executed)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, date(tt.wantSince), *got.Since)
			assert.Equal(t, *tt.rc.Until, *got.Until)
		})
	}
}

func TestRemainingRange_NeverMovesBackwards(t *testing.T) {
	rc := core.RangeConfig{Since: datePtr("2024-01-01"), Until: datePtr("2024-12-31")}

	var history []core.ExecutedRange
	var maxUntil time.Time
	for {
		window := RemainingRange(rc, history)
		if window == nil {
			break
		}
		assert.False(t, window.Since.Before(maxUntil), "window %s starts before %s", window, maxUntil)

		// Each run processes at most 45 days.
		end := window.Since.AddDate(0, 0, 45)
		if end.After(*window.Until) {
			end = *window.Until
		}
		history = append(history, core.ExecutedRange{Since: *window.Since, Until: end})
		maxUntil = end
		require.Less(t, len(history), 20)
	}

	assert.Equal(t, *rc.Until, maxUntil)
}

func TestMergeRanges(t *testing.T) {
	in := executed("2024-03-01", "2024-04-01", "2024-01-01", "2024-02-01", "2024-02-01", "2024-02-15")
	merged := MergeRanges(in)

	assert.Equal(t, executed("2024-01-01", "2024-02-15", "2024-03-01", "2024-04-01"), merged)
	assert.Equal(t, date("2024-03-01"), in[0].Since, "input must not be reordered")
	assert.Nil(t, MergeRanges(nil))
}
