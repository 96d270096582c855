package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapflow/internal/cli/output"
	"github.com/leapstack-labs/leapflow/internal/testutil"
)

// run executes the CLI against a project and returns stdout.
func run(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--project-dir", root}, args...))
	err := cmd.ExecuteContext(context.Background())
	if errOut.Len() > 0 {
		t.Log(errOut.String())
	}
	return out.String(), err
}

func TestCLI_MigratePlanStatus(t *testing.T) {
	root := testutil.WriteProject(t, testutil.OrdersProject)

	out, err := run(t, root, "-o", "json", "migrate")
	require.NoError(t, err)
	var migrated output.MigrateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &migrated))
	assert.True(t, migrated.Created)
	assert.Equal(t, int64(1), migrated.GenerationID)
	assert.ElementsMatch(t, []string{"order_items", "raw_users", "orders", "users"}, migrated.Affected)
	assert.FileExists(t, filepath.Join(root, ".leapflow", "state.db"))

	out, err = run(t, root, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "- **Created**: false")

	out, err = run(t, root, "-o", "json", "plan", "--save")
	require.NoError(t, err)
	var plan output.PlanOutput
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Equal(t, int64(1), plan.PipelineID)
	require.Len(t, plan.Levels, 3)
	assert.Equal(t, "order_items", plan.Levels[0][0].Table)
	require.NotNil(t, plan.Levels[0][0].Since)
	assert.Equal(t, "2024-01-01", plan.Levels[0][0].Since.Format("2006-01-02"))

	out, err = run(t, root, "plan", "--target", "users")
	require.NoError(t, err)
	assert.Contains(t, out, "## Level 0\n- raw_users\n")
	assert.NotContains(t, out, "orders")

	out, err = run(t, root, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "| 1 | 1 | pending |")

	out, err = run(t, root, "-o", "json", "status", "1")
	require.NoError(t, err)
	var status output.PipelineStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "pending", status.Status)
	assert.Len(t, status.Actions, 4)

	_, err = run(t, root, "status", "99")
	assert.ErrorContains(t, err, "pipeline not found")
}

func TestCLI_Impact(t *testing.T) {
	root := testutil.WriteProject(t, testutil.OrdersProject)

	_, err := run(t, root, "migrate")
	require.NoError(t, err)

	out, err := run(t, root, "impact")
	require.NoError(t, err)
	assert.Contains(t, out, "No changes since generation 1")

	testutil.WriteFile(t, root, "models/users.sql", "SELECT id FROM raw_users\n")

	out, err = run(t, root, "-o", "json", "impact")
	require.NoError(t, err)
	var impact output.ImpactOutput
	require.NoError(t, json.Unmarshal([]byte(out), &impact))
	require.NotNil(t, impact.Changes)
	assert.Equal(t, []string{"users"}, impact.Changes.ConfigChangedNodes)
	assert.ElementsMatch(t, []string{"users", "orders"}, impact.Affected)

	_, err = run(t, root, "plan")
	assert.ErrorContains(t, err, "not migrated")
}

func TestCLI_Graph(t *testing.T) {
	root := testutil.WriteProject(t, testutil.OrdersProject)

	out, err := run(t, root, "graph")
	require.NoError(t, err)
	assert.Contains(t, out, "## Level 0 (Sources)")
	assert.Contains(t, out, "- orders (model)")
	assert.Contains(t, out, "  - depends on: order_items, users")
	assert.Contains(t, out, "- **Total Tables**: 4")

	out, err = run(t, root, "-o", "json", "graph")
	require.NoError(t, err)
	var graph output.GraphOutput
	require.NoError(t, json.Unmarshal([]byte(out), &graph))
	assert.Equal(t, 4, graph.TotalNodes)
	assert.Equal(t, 3, graph.TotalEdges)
	require.Len(t, graph.Levels, 3)
}

func TestCLI_GraphErrors(t *testing.T) {
	root := testutil.WriteProject(t, map[string]string{
		"models/a.sql": "SELECT * FROM missing_table",
	})

	_, err := run(t, root, "graph")
	assert.ErrorContains(t, err, "missing_table")

	_, err = run(t, filepath.Join(root, "nope"), "graph")
	assert.ErrorContains(t, err, "project directory does not exist")
}

func TestCLI_InvalidConfig(t *testing.T) {
	root := testutil.WriteProject(t, map[string]string{"leapflow.yaml": "output: html\n"})
	_, err := run(t, root, "graph")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestCLI_VersionAndCompletion(t *testing.T) {
	root := t.TempDir()

	out, err := run(t, root, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "LeapFlow v"+Version)

	out, err = run(t, root, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "leapflow")
}
