package delta

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapflow/internal/state"
	"github.com/leapstack-labs/leapflow/internal/testutil"
	"github.com/leapstack-labs/leapflow/pkg/core"
)

func setupStore(t *testing.T) *state.SQLStore {
	t.Helper()
	ctx := context.Background()
	store, err := state.Open(ctx, state.Options{DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return store
}

func scheduleRun(t *testing.T, store *state.SQLStore, tables ...string) map[string]int64 {
	t.Helper()
	ctx := context.Background()

	gen, err := store.CreateGeneration(ctx, nil, nil)
	require.NoError(t, err)
	var level []core.Action
	for _, table := range tables {
		level = append(level, core.Action{TableName: table})
	}
	run, err := store.CreatePipeline(ctx, gen.ID, [][]core.Action{level})
	require.NoError(t, err)

	actions, err := store.ListPipelineActions(ctx, run.ID)
	require.NoError(t, err)
	ids := make(map[string]int64)
	for _, a := range actions {
		ids[a.TableName] = a.ID
	}
	return ids
}

func TestTracker_RecordAndLatest(t *testing.T) {
	store := setupStore(t)
	tracker := NewTracker(store, t.TempDir(), testutil.NewTestLogger(t))
	ctx := context.Background()

	d, err := tracker.Latest(ctx, "events")
	require.NoError(t, err)
	assert.Nil(t, d, "no action yet")

	first := scheduleRun(t, store, "events", "users")
	d, err = tracker.Latest(ctx, "events")
	require.NoError(t, err)
	assert.Nil(t, d, "action without delta")

	_, err = tracker.Record(ctx, first["events"], "/deltas/events/1.parquet")
	require.NoError(t, err)

	d, err = tracker.Latest(ctx, "events")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "/deltas/events/1.parquet", d.InsertPath)

	second := scheduleRun(t, store, "events")
	_, err = tracker.Record(ctx, second["events"], "/deltas/events/2.parquet")
	require.NoError(t, err)

	d, err = tracker.Latest(ctx, "events")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, second["events"], d.ActionID)
	assert.Equal(t, "/deltas/events/2.parquet", d.InsertPath)
}

func TestTracker_NewInsertPath(t *testing.T) {
	dir := t.TempDir()
	tracker := NewTracker(nil, dir, nil)

	a := tracker.NewInsertPath("orders")
	b := tracker.NewInsertPath("orders")

	assert.NotEqual(t, a, b)
	assert.Equal(t, filepath.Join(dir, "orders"), filepath.Dir(a))
	assert.True(t, strings.HasSuffix(a, ".parquet"))
	assert.NoDirExists(t, filepath.Join(dir, "orders"), "allocating a path writes nothing")

	require.NoError(t, PrepareInsertPath(a))
	assert.DirExists(t, filepath.Join(dir, "orders"))
}

func TestTracker_ForAction(t *testing.T) {
	store := setupStore(t)
	tracker := NewTracker(store, t.TempDir(), nil)
	ctx := context.Background()

	ids := scheduleRun(t, store, "events", "users")
	_, err := tracker.Record(ctx, ids["events"], "/deltas/events/1.parquet")
	require.NoError(t, err)

	d, err := tracker.ForAction(ctx, ids["events"])
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "/deltas/events/1.parquet", d.InsertPath)

	d, err = tracker.ForAction(ctx, ids["users"])
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestTracker_Cleanup(t *testing.T) {
	tracker := NewTracker(nil, t.TempDir(), nil)

	path := tracker.NewInsertPath("orders")
	require.NoError(t, PrepareInsertPath(path))
	require.NoError(t, os.WriteFile(path, []byte("PAR1"), 0o644))

	d := &core.DeltaMetadata{InsertPath: path}
	require.NoError(t, tracker.Cleanup(d))
	assert.NoFileExists(t, path)

	// Removing twice is fine.
	require.NoError(t, tracker.Cleanup(d))
	require.NoError(t, tracker.Cleanup(nil))
}

type brokenStore struct{ Store }

func (brokenStore) LatestActionForTable(context.Context, string) (*core.PipelineAction, error) {
	return nil, errors.New("connection refused")
}

func TestTracker_LatestPropagatesStoreErrors(t *testing.T) {
	tracker := NewTracker(brokenStore{}, t.TempDir(), nil)

	_, err := tracker.Latest(context.Background(), "events")
	assert.EqualError(t, err, "connection refused")
}
