// Package pipeline turns a validated dependency graph into execution levels.
//
// A pipeline is a sequence of levels. Every action in a level depends only
// on actions in earlier levels, so a level may run in parallel once the
// previous level has finished. Incremental adapters additionally receive the
// time window that is still unprocessed.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/leapstack-labs/leapflow/internal/dag"
	"github.com/leapstack-labs/leapflow/pkg/core"
)

var (
	// ErrInvariant reports an internal inconsistency, such as a cycle in a
	// graph that was already validated. It is never a user error.
	ErrInvariant = errors.New("pipeline invariant violated")

	// ErrUnknownTarget is returned when a partial run names a table that is
	// not in the graph.
	ErrUnknownTarget = errors.New("unknown target table")
)

// RangeSource returns the executed ranges recorded for a table within a
// graph generation. core.Store satisfies it.
type RangeSource interface {
	ExecutedRanges(ctx context.Context, generationID int64, table string) ([]core.ExecutedRange, error)
}

// Levels computes the execution levels of a graph. A node without
// dependencies is at level 0; any other node is one level above its deepest
// dependency. Within a level, nodes keep their topological order.
func Levels(g *dag.Graph) ([][]string, error) {
	order := g.TopologicalSort()
	if len(order) != g.Len() {
		return nil, fmt.Errorf("%w: topological order covers %d of %d nodes", ErrInvariant, len(order), g.Len())
	}

	level := make(map[string]int, len(order))
	var levels [][]string
	for _, name := range order {
		lvl := 0
		for _, parent := range g.Parents(name) {
			pl, ok := level[parent]
			if !ok {
				return nil, fmt.Errorf("%w: %q ordered before its dependency %q", ErrInvariant, name, parent)
			}
			lvl = max(lvl, pl+1)
		}
		level[name] = lvl

		for len(levels) <= lvl {
			levels = append(levels, nil)
		}
		levels[lvl] = append(levels[lvl], name)
	}
	return levels, nil
}

// Build creates a pipeline without time ranges: every action is a full load.
func Build(g *dag.Graph) (*core.Pipeline, error) {
	levels, err := Levels(g)
	if err != nil {
		return nil, err
	}

	p := &core.Pipeline{Levels: make([][]core.Action, len(levels))}
	for i, names := range levels {
		p.Levels[i] = make([]core.Action, len(names))
		for j, name := range names {
			p.Levels[i][j] = core.Action{TableName: name}
		}
	}
	return p, nil
}

// BuildWithRanges creates a pipeline in which every incremental adapter
// receives the window it still has to load, based on the ranges recorded for
// the given generation. Incremental adapters whose configured window is fully
// processed are left out; levels that end up empty are dropped.
func BuildWithRanges(ctx context.Context, g *dag.Graph, cfg *core.ProjectConfig, src RangeSource, generationID int64) (*core.Pipeline, error) {
	levels, err := Levels(g)
	if err != nil {
		return nil, err
	}

	p := &core.Pipeline{}
	for _, names := range levels {
		var actions []core.Action
		for _, name := range names {
			action := core.Action{TableName: name}

			adapter, ok := cfg.Adapter(name)
			if ok && adapter.IsIncremental() {
				rc := adapter.UpdateStrategy.Range
				executed, err := src.ExecutedRanges(ctx, generationID, name)
				if err != nil {
					return nil, fmt.Errorf("failed to load executed ranges for %s: %w", name, err)
				}
				action.TimeRange = RemainingRange(rc, executed)
				if action.TimeRange == nil && rc.Since != nil && rc.Until != nil {
					continue
				}
			}
			actions = append(actions, action)
		}
		if len(actions) > 0 {
			p.Levels = append(p.Levels, actions)
		}
	}
	return p, nil
}

// Partial returns the subgraph needed to build the given targets: the
// targets plus every table they transitively read.
func Partial(g *dag.Graph, targets ...string) (*dag.Graph, error) {
	for _, target := range targets {
		if !g.Has(target) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, target)
		}
	}
	return g.Subgraph(g.Ancestors(targets...)), nil
}

// BuildFor creates a pipeline that runs only what the target needs.
func BuildFor(g *dag.Graph, target string) (*core.Pipeline, error) {
	sub, err := Partial(g, target)
	if err != nil {
		return nil, err
	}
	return Build(sub)
}
