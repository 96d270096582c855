package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapflow/internal/cli/output"
	"github.com/leapstack-labs/leapflow/internal/engine"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Persist the current dependency graph",
		Long: `Build the dependency graph from the project files and compare it with the
latest persisted generation. When anything changed (tables, dependencies or
configuration) a new generation is stored and the affected tables are listed.`,
		Example: `  # Record project changes
  leapflow migrate

  # Machine-readable result
  leapflow migrate --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := cmdCtx.Engine.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			return renderMigrate(cmdCtx.Renderer, res)
		},
	}
}

func renderMigrate(r *output.Renderer, res *engine.MigrateResult) error {
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(output.MigrateOutput{
			GenerationID: res.Generation.ID,
			Created:      res.Created,
			Changes:      changesOutput(res.Changes),
			Affected:     res.Affected,
		})
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Migrate"))
		r.Println("")
		r.Println(output.FormatKeyValue("Generation", fmt.Sprintf("%d", res.Generation.ID)))
		r.Println(output.FormatKeyValue("Created", fmt.Sprintf("%t", res.Created)))
		r.Println("")
		if res.Created {
			renderChanges(r, res.Changes, res.Affected)
		}
	default:
		if !res.Created {
			r.Success(fmt.Sprintf("Graph unchanged (generation %d)", res.Generation.ID))
			return nil
		}
		r.Success(fmt.Sprintf("Created generation %d", res.Generation.ID))
		renderChanges(r, res.Changes, res.Affected)
	}
	return nil
}
