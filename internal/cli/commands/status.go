package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapflow/internal/cli/output"
	"github.com/leapstack-labs/leapflow/pkg/core"
)

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status [PIPELINE_ID]",
		Short: "Show pipeline status",
		Long: `Without arguments, list the most recent pipelines.
With a pipeline id, show the pipeline and the status of each of its actions.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			store := cmdCtx.Engine.Store()
			r := cmdCtx.Renderer

			if len(args) == 0 {
				runs, err := store.ListPipelines(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return renderPipelines(r, runs)
			}

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid pipeline id %q", args[0])
			}
			run, err := store.GetPipeline(cmd.Context(), id)
			if err != nil {
				return err
			}
			actions, err := store.ListPipelineActions(cmd.Context(), id)
			if err != nil {
				return err
			}
			return renderPipeline(r, run, actions)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of pipelines to list")

	return cmd
}

func pipelineStatus(run *core.PipelineRun) output.PipelineStatus {
	return output.PipelineStatus{
		ID:           run.ID,
		GenerationID: run.GenerationID,
		Status:       string(run.Status),
		CreatedAt:    run.CreatedAt,
		UpdatedAt:    run.UpdatedAt,
	}
}

func renderPipelines(r *output.Renderer, runs []*core.PipelineRun) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]output.PipelineStatus, len(runs))
		for i, run := range runs {
			out[i] = pipelineStatus(run)
		}
		return r.JSON(out)
	}

	if len(runs) == 0 {
		r.Muted("No pipelines yet. Run `leapflow plan --save` to create one.")
		return nil
	}

	rows := make([][]string, len(runs))
	for i, run := range runs {
		rows[i] = []string{
			strconv.FormatInt(run.ID, 10),
			strconv.FormatInt(run.GenerationID, 10),
			string(run.Status),
			run.CreatedAt.Local().Format(time.DateTime),
		}
	}
	r.Table([]string{"Pipeline", "Generation", "Status", "Created"}, rows)
	return nil
}

func renderPipeline(r *output.Renderer, run *core.PipelineRun, actions []*core.PipelineAction) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := pipelineStatus(run)
		out.Actions = make([]output.ActionStatus, len(actions))
		for i, a := range actions {
			out.Actions[i] = output.ActionStatus{
				ID:          a.ID,
				Table:       a.TableName,
				Level:       a.Level,
				Status:      string(a.Status),
				Error:       a.Error,
				Since:       a.Since,
				Until:       a.Until,
				StartedAt:   a.StartedAt,
				CompletedAt: a.CompletedAt,
			}
		}
		return r.JSON(out)
	}

	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatHeader(1, fmt.Sprintf("Pipeline %d", run.ID)))
		r.Println("")
		r.Println(output.FormatKeyValue("Generation", strconv.FormatInt(run.GenerationID, 10)))
		r.Println(output.FormatKeyValue("Status", string(run.Status)))
		r.Println("")
	} else {
		r.Header(1, fmt.Sprintf("Pipeline %d", run.ID))
		r.StatusLine(fmt.Sprintf("generation %d", run.GenerationID), string(run.Status), string(run.Status))
		r.Println("")
	}

	rows := make([][]string, len(actions))
	for i, a := range actions {
		rows[i] = []string{
			strconv.Itoa(a.Level),
			a.TableName,
			string(a.Status),
			a.TimeRange().String(),
			a.Error,
		}
	}
	r.Table([]string{"Level", "Table", "Status", "Range", "Error"}, rows)
	return nil
}
