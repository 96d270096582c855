package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapflow/internal/cli/output"
	"github.com/leapstack-labs/leapflow/internal/engine"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	var opts engine.PlanOptions

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the execution plan",
		Long: `Compute the pipeline for the latest generation: tables grouped into levels
that run in order, with the remaining time range of every incremental adapter.
Incremental adapters whose configured range is fully processed are left out.

The project must be migrated first.`,
		Example: `  # Plan everything
  leapflow plan

  # Plan only what orders needs
  leapflow plan --target orders

  # Save the plan as a pending pipeline
  leapflow plan --save`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := cmdCtx.Engine.Plan(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return renderPlan(cmdCtx.Renderer, res)
		},
	}

	cmd.Flags().StringVar(&opts.Target, "target", "", "Plan only this table and its dependencies")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "Persist the plan as a pending pipeline")

	return cmd
}

func renderPlan(r *output.Renderer, res *engine.PlanResult) error {
	var pipelineID int64
	if res.Run != nil {
		pipelineID = res.Run.ID
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		out := output.PlanOutput{
			GenerationID: res.Generation.ID,
			PipelineID:   pipelineID,
			Levels:       make([][]output.PlanAction, len(res.Pipeline.Levels)),
		}
		for i, level := range res.Pipeline.Levels {
			out.Levels[i] = make([]output.PlanAction, len(level))
			for j, a := range level {
				out.Levels[i][j] = output.PlanAction{Table: a.TableName}
				if a.TimeRange != nil {
					out.Levels[i][j].Since = a.TimeRange.Since
					out.Levels[i][j].Until = a.TimeRange.Until
				}
			}
		}
		return r.JSON(out)

	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Plan"))
		r.Println("")
		r.Println(output.FormatKeyValue("Generation", fmt.Sprintf("%d", res.Generation.ID)))
		r.Println(output.FormatKeyValue("Actions", fmt.Sprintf("%d", res.Pipeline.ActionCount())))
		if pipelineID != 0 {
			r.Println(output.FormatKeyValue("Pipeline", fmt.Sprintf("%d", pipelineID)))
		}
		r.Println("")
		for i, level := range res.Pipeline.Levels {
			r.Println(output.FormatHeader(2, fmt.Sprintf("Level %d", i)))
			for _, a := range level {
				if a.TimeRange != nil {
					r.Printf("- %s %s\n", a.TableName, a.TimeRange)
				} else {
					r.Printf("- %s\n", a.TableName)
				}
			}
			r.Println("")
		}

	default:
		styles := r.Styles()
		r.Header(1, fmt.Sprintf("Plan (generation %d)", res.Generation.ID))
		for i, level := range res.Pipeline.Levels {
			r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
			for _, a := range level {
				line := "  " + styles.TableName.Render(a.TableName)
				if a.TimeRange != nil {
					line += " " + styles.Muted.Render(a.TimeRange.String())
				}
				r.Println(line)
			}
			r.Println("")
		}
		if res.Pipeline.ActionCount() == 0 {
			r.Muted("Nothing to do.")
		}
		if pipelineID != 0 {
			r.Success(fmt.Sprintf("Saved pipeline %d", pipelineID))
		}
	}
	return nil
}
