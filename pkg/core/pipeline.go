package core

import (
	"fmt"
	"time"
)

// TimeRange is a half-open window [Since, Until). A nil bound is open.
type TimeRange struct {
	Since *time.Time
	Until *time.Time
}

// String renders the range for logs and CLI output.
func (r *TimeRange) String() string {
	if r == nil {
		return "full"
	}
	return fmt.Sprintf("[%s, %s)", formatBound(r.Since), formatBound(r.Until))
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// Action is one schedulable unit of work.
type Action struct {
	TableName string
	// TimeRange is nil for models and for adapters without an update strategy.
	TimeRange *TimeRange
}

// Pipeline groups actions into levels. Levels run strictly in order;
// actions inside a level are mutually independent.
type Pipeline struct {
	Levels [][]Action
}

// ActionCount returns the total number of actions across all levels.
func (p *Pipeline) ActionCount() int {
	n := 0
	for _, level := range p.Levels {
		n += len(level)
	}
	return n
}

// Find returns the level index and action for a table.
func (p *Pipeline) Find(table string) (int, Action, bool) {
	for i, level := range p.Levels {
		for _, a := range level {
			if a.TableName == table {
				return i, a, true
			}
		}
	}
	return -1, Action{}, false
}

// ExecutedRange records that [Since, Until) was already processed for a table.
type ExecutedRange struct {
	Since time.Time
	Until time.Time
}
