package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapflow/pkg/core"
)

func TestAdapterSource_Kind(t *testing.T) {
	tests := []struct {
		name   string
		source core.AdapterSource
		want   core.SourceKind
	}{
		{"file", core.FileSource{Path: "s3://bucket/users/*.parquet", Format: "parquet"}, core.SourceKindFile},
		{"database", core.DatabaseSource{Table: "public.users"}, core.SourceKindDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.source.Kind())
		})
	}
}

func TestProjectConfig_Lookup(t *testing.T) {
	cfg := &core.ProjectConfig{
		Adapters: []core.AdapterConfig{{Name: "raw_users"}},
		Models:   []core.ModelConfig{{Name: "users", SQL: "SELECT * FROM raw_users"}},
	}

	a, ok := cfg.Adapter("raw_users")
	require.True(t, ok)
	assert.False(t, a.IsIncremental())

	m, ok := cfg.Model("users")
	require.True(t, ok)
	assert.Equal(t, "SELECT * FROM raw_users", m.SQL)

	_, ok = cfg.Model("raw_users")
	assert.False(t, ok)
}

func TestPipeline_FindAndCount(t *testing.T) {
	p := &core.Pipeline{Levels: [][]core.Action{
		{{TableName: "a"}, {TableName: "b"}},
		{{TableName: "c"}},
	}}

	assert.Equal(t, 3, p.ActionCount())

	level, action, ok := p.Find("c")
	require.True(t, ok)
	assert.Equal(t, 1, level)
	assert.Equal(t, "c", action.TableName)

	_, _, ok = p.Find("missing")
	assert.False(t, ok)
}

func TestTimeRange_String(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var full *core.TimeRange
	assert.Equal(t, "full", full.String())
	assert.Equal(t, "[2024-01-01T00:00:00Z, -)", (&core.TimeRange{Since: &since}).String())
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, core.StatusPending.IsTerminal())
	assert.False(t, core.StatusRunning.IsTerminal())
	assert.True(t, core.StatusCompleted.IsTerminal())
	assert.True(t, core.StatusFailed.IsTerminal())
}

func TestPipelineAction_TimeRange(t *testing.T) {
	until := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	assert.Nil(t, (&core.PipelineAction{}).TimeRange())

	tr := (&core.PipelineAction{Until: &until}).TimeRange()
	require.NotNil(t, tr)
	assert.Nil(t, tr.Since)
	assert.Equal(t, until, *tr.Until)
}
