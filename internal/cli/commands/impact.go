package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapflow/internal/cli/output"
	"github.com/leapstack-labs/leapflow/internal/project"
)

// NewImpactCommand creates the impact command.
func NewImpactCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "impact",
		Short: "Show tables affected by unmigrated changes",
		Long: `Compare the project files with the latest persisted generation without
storing anything, and list every table that would have to be recomputed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			fingerprints, err := project.Fingerprints(cfg)
			if err != nil {
				return err
			}

			changes, gen, err := eng.DetectChanges(cmd.Context(), g, fingerprints)
			if err != nil {
				return err
			}
			affected := eng.CalculateAffectedNodes(g, changes)

			var genID int64
			if gen != nil {
				genID = gen.ID
			}

			switch r.EffectiveMode() {
			case output.ModeJSON:
				return r.JSON(output.ImpactOutput{
					GenerationID: genID,
					Changes:      changesOutput(changes),
					Affected:     affected,
				})
			case output.ModeMarkdown:
				r.Println(output.FormatHeader(1, "Impact"))
				r.Println("")
			}

			if !changes.HasChanges() {
				r.Success(fmt.Sprintf("No changes since generation %d", genID))
				return nil
			}
			if gen == nil {
				r.Muted("No generation persisted yet; every table is new.")
			}
			renderChanges(r, changes, affected)
			return nil
		},
	}
}
