package commands

import (
	"fmt"

	"github.com/leapstack-labs/leapflow/internal/cli/output"
	"github.com/leapstack-labs/leapflow/internal/dag"
)

func edgeStrings(edges []dag.Edge) []string {
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.String()
	}
	return out
}

func changesOutput(c *dag.GraphChanges) *output.ChangesOutput {
	if c == nil {
		return nil
	}
	return &output.ChangesOutput{
		AddedNodes:         c.AddedNodes,
		RemovedNodes:       c.RemovedNodes,
		AddedEdges:         edgeStrings(c.AddedEdges),
		RemovedEdges:       edgeStrings(c.RemovedEdges),
		ConfigChangedNodes: c.ConfigChangedNodes,
	}
}

// renderChanges writes the change set and the affected tables.
func renderChanges(r *output.Renderer, c *dag.GraphChanges, affected []string) {
	rows := []struct {
		label string
		items []string
	}{
		{"Added tables", c.AddedNodes},
		{"Removed tables", c.RemovedNodes},
		{"Changed config", c.ConfigChangedNodes},
		{"Added dependencies", edgeStrings(c.AddedEdges)},
		{"Removed dependencies", edgeStrings(c.RemovedEdges)},
	}

	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatHeader(2, "Changes"))
		for _, row := range rows {
			if len(row.items) > 0 {
				r.Println(output.FormatKeyValue(row.label, output.FormatList(row.items)))
			}
		}
		r.Println("")
		r.Println(output.FormatHeader(2, "Affected"))
		r.Println(output.FormatKeyValue("Tables", output.FormatList(affected)))
		return
	}

	styles := r.Styles()
	for _, row := range rows {
		if len(row.items) > 0 {
			r.Printf("  %s %s\n", styles.Muted.Render(row.label+":"), output.FormatList(row.items))
		}
	}
	r.Printf("  %s %s\n", styles.Bold.Render(fmt.Sprintf("Affected (%d):", len(affected))), output.FormatList(affected))
}
