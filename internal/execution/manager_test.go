package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapflow/internal/state"
	"github.com/leapstack-labs/leapflow/internal/testutil"
	"github.com/leapstack-labs/leapflow/pkg/core"
)

type fixture struct {
	store    *state.SQLStore
	manager  *Manager
	pipeline *core.PipelineRun
	actions  map[string]int64
}

// newFixture persists a pipeline for raw -> (clean, audit), clean -> report.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := state.Open(ctx, state.Options{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	gen, err := store.CreateGeneration(ctx, nil, nil)
	require.NoError(t, err)
	run, err := store.CreatePipeline(ctx, gen.ID, [][]core.Action{
		{{TableName: "raw"}},
		{{TableName: "clean"}, {TableName: "audit"}},
		{{TableName: "report"}},
	})
	require.NoError(t, err)

	actions, err := store.ListPipelineActions(ctx, run.ID)
	require.NoError(t, err)
	ids := make(map[string]int64)
	for _, a := range actions {
		ids[a.TableName] = a.ID
	}

	return &fixture{
		store:    store,
		manager:  NewManager(store, testutil.NewTestLogger(t)),
		pipeline: run,
		actions:  ids,
	}
}

func (f *fixture) action(t *testing.T, table string) *core.PipelineAction {
	t.Helper()
	a, err := f.store.GetPipelineAction(context.Background(), f.actions[table])
	require.NoError(t, err)
	return a
}

func TestManager_ActionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.StartAction(ctx, f.actions["raw"]))
	a := f.action(t, "raw")
	assert.Equal(t, core.StatusRunning, a.Status)
	assert.NotNil(t, a.StartedAt)

	require.NoError(t, f.manager.CompleteAction(ctx, f.actions["raw"]))
	a = f.action(t, "raw")
	assert.Equal(t, core.StatusCompleted, a.Status)
	assert.Empty(t, a.Error)
	assert.NotNil(t, a.CompletedAt)

	require.NoError(t, f.manager.StartAction(ctx, f.actions["clean"]))
	require.NoError(t, f.manager.FailAction(ctx, f.actions["clean"], "division by zero"))
	a = f.action(t, "clean")
	assert.Equal(t, core.StatusFailed, a.Status)
	assert.Equal(t, "division by zero", a.Error)
}

func TestManager_InvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
		from core.Status
		to   core.Status
	}{
		{
			name: "complete a pending action",
			run:  func() error { return f.manager.CompleteAction(ctx, f.actions["audit"]) },
			from: core.StatusPending,
			to:   core.StatusCompleted,
		},
		{
			name: "restart a completed action",
			run: func() error {
				require.NoError(t, f.manager.StartAction(ctx, f.actions["raw"]))
				require.NoError(t, f.manager.CompleteAction(ctx, f.actions["raw"]))
				return f.manager.StartAction(ctx, f.actions["raw"])
			},
			from: core.StatusCompleted,
			to:   core.StatusRunning,
		},
		{
			name: "complete a pending pipeline",
			run:  func() error { return f.manager.CompletePipeline(ctx, f.pipeline.ID) },
			from: core.StatusPending,
			to:   core.StatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()

			var terr *TransitionError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, tt.from, terr.From)
			assert.Equal(t, tt.to, terr.To)
		})
	}
}

func TestManager_PipelineLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.StartPipeline(ctx, f.pipeline.ID))
	require.NoError(t, f.manager.FailPipeline(ctx, f.pipeline.ID))

	p, err := f.store.GetPipeline(ctx, f.pipeline.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, p.Status)

	var terr *TransitionError
	require.ErrorAs(t, f.manager.StartPipeline(ctx, f.pipeline.ID), &terr)
	assert.Equal(t, "pipeline", terr.Entity)
}

func TestManager_MissingRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.manager.StartAction(ctx, 9999), core.ErrPipelineActionNotFound)
	assert.ErrorIs(t, f.manager.StartPipeline(ctx, 9999), core.ErrPipelineNotFound)
}

func TestManager_MarkDownstreamFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// audit already finished on its own and must keep its status.
	require.NoError(t, f.manager.StartAction(ctx, f.actions["audit"]))
	require.NoError(t, f.manager.CompleteAction(ctx, f.actions["audit"]))

	require.NoError(t, f.manager.StartAction(ctx, f.actions["raw"]))
	require.NoError(t, f.manager.FailAction(ctx, f.actions["raw"], "source unreachable"))

	marked, err := f.manager.MarkDownstreamFailed(ctx, f.pipeline.ID, "raw", []string{"raw", "clean", "audit", "report"})
	require.NoError(t, err)
	assert.Equal(t, []string{"clean", "report"}, marked)

	for _, table := range []string{"clean", "report"} {
		a := f.action(t, table)
		assert.Equal(t, core.StatusFailed, a.Status, table)
		assert.Equal(t, "Upstream task raw failed", a.Error, table)
		assert.Nil(t, a.StartedAt, table)
	}
	assert.Equal(t, core.StatusCompleted, f.action(t, "audit").Status)
	assert.Equal(t, "source unreachable", f.action(t, "raw").Error)

	marked, err = f.manager.MarkDownstreamFailed(ctx, f.pipeline.ID, "raw", []string{"raw"})
	require.NoError(t, err)
	assert.Empty(t, marked)
}
