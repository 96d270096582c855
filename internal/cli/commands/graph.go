package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapflow/internal/cli/output"
	"github.com/leapstack-labs/leapflow/internal/dag"
	"github.com/leapstack-labs/leapflow/internal/pipeline"
)

// NewGraphCommand creates the graph command.
func NewGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show the dependency graph",
		Long: `Display the dependency graph of all adapters and models.

Tables are grouped by execution level, showing which tables can run
in parallel and their dependency relationships.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Show the graph
  leapflow graph

  # Output as JSON
  leapflow graph --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGraph(cmd)
		},
	}

	return cmd
}

func runGraph(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	eng := cmdCtx.Engine
	r := cmdCtx.Renderer

	cfg, err := eng.LoadProject()
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}
	g, err := eng.BuildGraph(cfg)
	if err != nil {
		return err
	}

	levels, err := pipeline.Levels(g)
	if err != nil {
		return fmt.Errorf("failed to get execution levels: %w", err)
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return graphJSON(r, g, levels)
	case output.ModeMarkdown:
		graphMarkdown(r, g, levels)
	default:
		graphText(r, g, levels)
	}
	return nil
}

func nodeKind(g *dag.Graph, name string) string {
	n, _ := g.Node(name)
	return string(n.Kind)
}

// graphText outputs the graph in styled text format.
func graphText(r *output.Renderer, g *dag.Graph, levels [][]string) {
	styles := r.Styles()

	r.Header(1, "Dependency Graph")

	for i, level := range levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, name := range level {
			r.Printf("  %s %s\n", styles.TableName.Render(name), styles.Muted.Render("("+nodeKind(g, name)+")"))
			if deps := g.Parents(name); len(deps) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("depends on:"), strings.Join(deps, ", "))
			}
			if children := g.Children(name); len(children) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("used by:"), strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Muted(fmt.Sprintf("Total: %d tables, %d dependencies", g.Len(), g.EdgeCount()))
}

// graphMarkdown outputs the graph in markdown format.
func graphMarkdown(r *output.Renderer, g *dag.Graph, levels [][]string) {
	r.Println(output.FormatHeader(1, "Dependency Graph"))
	r.Println("")

	for i, level := range levels {
		levelName := fmt.Sprintf("Level %d", i)
		if i == 0 {
			levelName = "Level 0 (Sources)"
		}
		r.Println(output.FormatHeader(2, levelName))

		for _, name := range level {
			r.Printf("- %s (%s)\n", name, nodeKind(g, name))
			if deps := g.Parents(name); len(deps) > 0 {
				r.Printf("  - depends on: %s\n", strings.Join(deps, ", "))
			}
			if children := g.Children(name); len(children) > 0 {
				r.Printf("  - used by: %s\n", strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Total Tables", fmt.Sprintf("%d", g.Len())))
	r.Println(output.FormatKeyValue("Total Dependencies", fmt.Sprintf("%d", g.EdgeCount())))
}

// graphJSON outputs the graph in JSON format.
func graphJSON(r *output.Renderer, g *dag.Graph, levels [][]string) error {
	out := output.GraphOutput{
		Levels:     make([]output.GraphLevel, 0, len(levels)),
		TotalNodes: g.Len(),
		TotalEdges: g.EdgeCount(),
	}

	for i, level := range levels {
		gl := output.GraphLevel{Level: i, Nodes: make([]output.GraphNode, 0, len(level))}
		for _, name := range level {
			gl.Nodes = append(gl.Nodes, output.GraphNode{
				Name:      name,
				Kind:      nodeKind(g, name),
				DependsOn: g.Parents(name),
				UsedBy:    g.Children(name),
			})
		}
		out.Levels = append(out.Levels, gl)
	}

	return r.JSON(out)
}
