package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapflow/internal/testutil"
	"github.com/leapstack-labs/leapflow/pkg/core"
)

func TestLoad(t *testing.T) {
	root := testutil.WriteProject(t, testutil.OrdersProject)

	cfg, err := Load(root, Options{})
	require.NoError(t, err)

	require.Len(t, cfg.Adapters, 2)
	assert.Equal(t, "order_items", cfg.Adapters[0].Name)
	assert.Equal(t, "raw_users", cfg.Adapters[1].Name)

	items, ok := cfg.Adapter("order_items")
	require.True(t, ok)
	assert.Equal(t, "warehouse", items.Connection)
	assert.Equal(t, core.DatabaseSource{Table: "public.order_items"}, items.Source)
	require.True(t, items.IsIncremental())
	assert.Equal(t, "updated_at", items.UpdateStrategy.TimestampFrom)
	require.NotNil(t, items.UpdateStrategy.Range.Since)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *items.UpdateStrategy.Range.Since)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), *items.UpdateStrategy.Range.Until)

	users, ok := cfg.Adapter("raw_users")
	require.True(t, ok)
	assert.Equal(t, core.FileSource{Path: "data/users.csv", Format: "csv"}, users.Source)
	assert.False(t, users.IsIncremental())

	require.Len(t, cfg.Models, 2)
	assert.Equal(t, "orders", cfg.Models[0].Name)
	assert.Equal(t, "users", cfg.Models[1].Name)
	assert.Contains(t, cfg.Models[1].SQL, "FROM raw_users")
	assert.Equal(t, filepath.Join(root, "models", "users.sql"), cfg.Models[1].FilePath)
}

func TestLoad_CustomDirectories(t *testing.T) {
	root := testutil.WriteProject(t, map[string]string{
		"src/tables/sales/daily.sql": "SELECT 1",
		"notes.txt":                  "ignored",
		"src/tables/.hidden/x.sql":   "SELECT 2",
	})

	cfg, err := Load(root, Options{AdaptersDir: "sources", ModelsDir: "src/tables"})
	require.NoError(t, err)
	assert.Empty(t, cfg.Adapters)
	require.Len(t, cfg.Models, 1)
	assert.Equal(t, "sales_daily", cfg.Models[0].Name)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		adapter string
		wantMsg string
	}{
		{"unknown field", "source:\n  type: file\n  file: {path: a.csv}\nschedule: daily\n", "field schedule not found"},
		{"missing source type", "source:\n  file: {path: a.csv}\n", "source.type is required"},
		{"unknown source type", "source:\n  type: kafka\n", "unknown source type"},
		{"file without path", "source:\n  type: file\n", "requires source.file.path"},
		{"database without table", "source:\n  type: database\n  database: {}\n", "requires source.database.table"},
		{"mixed variants", "source:\n  type: file\n  file: {path: a.csv}\n  database: {table: t}\n", "cannot have source.database"},
		{"bad timestamp", "source:\n  type: file\n  file: {path: a.csv}\nupdate_strategy:\n  range: {since: yesterday}\n", "invalid timestamp"},
		{"inverted range", "source:\n  type: file\n  file: {path: a.csv}\nupdate_strategy:\n  range: {since: 2024-02-01, until: 2024-01-01}\n", "must be before until"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := testutil.WriteProject(t, map[string]string{"adapters/bad.yml": tt.adapter})

			_, err := Load(root, Options{})

			var loadErr *LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Equal(t, filepath.Join(root, "adapters", "bad.yml"), loadErr.Path)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing"), Options{})
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTableName(t *testing.T) {
	name, err := TableName("/p/adapters", "/p/adapters/raw/users.yml")
	require.NoError(t, err)
	assert.Equal(t, "raw_users", name)

	name, err = TableName("/p/models", "/p/models/a/b/c.sql")
	require.NoError(t, err)
	assert.Equal(t, "a_b_c", name)

	_, err = TableName("/p/models", "/elsewhere/x.sql")
	assert.Error(t, err)
}

func TestFingerprints(t *testing.T) {
	root := testutil.WriteProject(t, testutil.OrdersProject)
	cfg, err := Load(root, Options{})
	require.NoError(t, err)

	prints, err := Fingerprints(cfg)
	require.NoError(t, err)
	assert.Len(t, prints, 4)
	assert.Len(t, prints["users"], 64)

	t.Run("formatting does not matter", func(t *testing.T) {
		testutil.WriteFile(t, root, "adapters/raw/users.yml",
			"# reformatted\nsource: {type: file, file: {format: csv, path: data/users.csv}}\nconnection: local\n")
		again, err := Load(root, Options{})
		require.NoError(t, err)
		reprints, err := Fingerprints(again)
		require.NoError(t, err)
		assert.Equal(t, prints, reprints)
	})

	t.Run("content does", func(t *testing.T) {
		cfg.Models[1].SQL = "SELECT id FROM raw_users"
		changed, err := Fingerprints(cfg)
		require.NoError(t, err)
		assert.NotEqual(t, prints["users"], changed["users"])
		assert.Equal(t, prints["orders"], changed["orders"])
	})
}

func TestWatcher(t *testing.T) {
	root := testutil.WriteProject(t, testutil.OrdersProject)
	w := NewWatcher(root, Options{}, 20*time.Millisecond, testutil.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan []string, 16)
	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, func(paths []string) { changes <- paths })
	}()

	target := filepath.Join(root, "models", "users.sql")
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	var got []string
	for got == nil {
		select {
		case paths := <-changes:
			got = paths
		case <-tick.C:
			// The watcher may not be registered yet, so keep touching the file.
			require.NoError(t, os.WriteFile(target, []byte("SELECT 2 FROM raw_users\n"), 0o644))
		case <-deadline:
			t.Fatal("timed out waiting for change notification")
		}
	}
	assert.Equal(t, []string{target}, got)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
