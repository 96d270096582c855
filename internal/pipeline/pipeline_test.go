package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapflow/internal/dag"
	"github.com/leapstack-labs/leapflow/pkg/core"
)

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func datePtr(s string) *time.Time {
	t := date(s)
	return &t
}

func ordersProject() *core.ProjectConfig {
	return &core.ProjectConfig{
		Adapters: []core.AdapterConfig{
			{Name: "raw_users"},
			{Name: "order_items", UpdateStrategy: &core.UpdateStrategy{
				Detection:     "timestamp",
				TimestampFrom: "updated_at",
				Range:         core.RangeConfig{Since: datePtr("2024-01-01"), Until: datePtr("2024-12-31")},
			}},
		},
		Models: []core.ModelConfig{
			{Name: "users", SQL: "SELECT * FROM raw_users"},
			{Name: "orders", SQL: "SELECT o.*, u.name FROM order_items o JOIN users u ON o.user_id = u.id"},
		},
	}
}

func buildGraph(t *testing.T, cfg *core.ProjectConfig) *dag.Graph {
	t.Helper()
	g, err := dag.Build(cfg, nil)
	require.NoError(t, err)
	return g
}

func tableNames(p *core.Pipeline) [][]string {
	out := make([][]string, len(p.Levels))
	for i, level := range p.Levels {
		for _, a := range level {
			out[i] = append(out[i], a.TableName)
		}
	}
	return out
}

type fakeRanges map[string][]core.ExecutedRange

func (f fakeRanges) ExecutedRanges(_ context.Context, _ int64, table string) ([]core.ExecutedRange, error) {
	return f[table], nil
}

type failingRanges struct{}

func (failingRanges) ExecutedRanges(context.Context, int64, string) ([]core.ExecutedRange, error) {
	return nil, errors.New("database is locked")
}

func TestBuild_Example(t *testing.T) {
	p, err := Build(buildGraph(t, ordersProject()))
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"raw_users", "order_items"}, {"users"}, {"orders"}}, tableNames(p))
	assert.Equal(t, 4, p.ActionCount())
	for _, level := range p.Levels {
		for _, a := range level {
			assert.Nil(t, a.TimeRange, a.TableName)
		}
	}
}

func TestLevels_EdgesAlwaysGoUp(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 42))

	for round := 0; round < 25; round++ {
		n := 2 + rng.IntN(30)
		nodes := make([]dag.Node, n)
		for i := range nodes {
			nodes[i] = dag.Node{Name: fmt.Sprintf("n%02d", i)}
		}
		// Edges only point from lower to higher index, so the graph is acyclic.
		var edges []dag.Edge
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if rng.IntN(4) == 0 {
					edges = append(edges, dag.Edge{From: nodes[i].Name, To: nodes[j].Name})
				}
			}
		}
		// Shuffle insertion order so topological order differs from index order.
		rng.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })

		g, err := dag.New(nodes, edges)
		require.NoError(t, err)

		levels, err := Levels(g)
		require.NoError(t, err)

		levelOf := make(map[string]int)
		total := 0
		for i, names := range levels {
			require.NotEmpty(t, names, "level %d is empty", i)
			for _, name := range names {
				levelOf[name] = i
				total++
			}
		}
		require.Equal(t, n, total)
		for _, e := range g.Edges() {
			assert.Less(t, levelOf[e.From], levelOf[e.To], "edge %s", e)
		}
	}
}

func TestBuildWithRanges(t *testing.T) {
	cfg := ordersProject()
	g := buildGraph(t, cfg)
	ctx := context.Background()

	t.Run("no history loads the whole window", func(t *testing.T) {
		p, err := BuildWithRanges(ctx, g, cfg, fakeRanges{}, 1)
		require.NoError(t, err)

		_, action, ok := p.Find("order_items")
		require.True(t, ok)
		require.NotNil(t, action.TimeRange)
		assert.Equal(t, date("2024-01-01"), *action.TimeRange.Since)
		assert.Equal(t, date("2024-12-31"), *action.TimeRange.Until)

		_, action, ok = p.Find("raw_users")
		require.True(t, ok)
		assert.Nil(t, action.TimeRange)
	})

	t.Run("resumes after the last executed range", func(t *testing.T) {
		src := fakeRanges{"order_items": {{Since: date("2024-01-01"), Until: date("2024-06-30")}}}
		p, err := BuildWithRanges(ctx, g, cfg, src, 1)
		require.NoError(t, err)

		_, action, ok := p.Find("order_items")
		require.True(t, ok)
		assert.Equal(t, date("2024-06-30"), *action.TimeRange.Since)
	})

	t.Run("fully processed adapter is skipped", func(t *testing.T) {
		src := fakeRanges{"order_items": {{Since: date("2024-01-01"), Until: date("2024-12-31")}}}
		p, err := BuildWithRanges(ctx, g, cfg, src, 1)
		require.NoError(t, err)

		assert.Equal(t, [][]string{{"raw_users"}, {"users"}, {"orders"}}, tableNames(p))
	})

	t.Run("range source errors are returned", func(t *testing.T) {
		_, err := BuildWithRanges(ctx, g, cfg, failingRanges{}, 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "order_items")
	})
}

func TestBuildFor(t *testing.T) {
	cfg := ordersProject()
	cfg.Adapters = append(cfg.Adapters, core.AdapterConfig{Name: "events"})
	cfg.Models = append(cfg.Models, core.ModelConfig{Name: "daily_events", SQL: "SELECT * FROM events"})
	g := buildGraph(t, cfg)

	p, err := BuildFor(g, "users")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"raw_users"}, {"users"}}, tableNames(p))

	p, err = BuildFor(g, "orders")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"raw_users", "order_items"}, {"users"}, {"orders"}}, tableNames(p))

	p, err = BuildFor(g, "events")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"events"}}, tableNames(p))

	_, err = BuildFor(g, "nope")
	assert.ErrorIs(t, err, ErrUnknownTarget)
}
