package engine

// runner.go - Level-by-level execution of a saved pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapflow/internal/dag"
	"github.com/leapstack-labs/leapflow/internal/delta"
	"github.com/leapstack-labs/leapflow/internal/execution"
	"github.com/leapstack-labs/leapflow/pkg/core"
)

// Task is one action handed to an Executor.
type Task struct {
	ActionID  int64
	TableName string
	Level     int
	Kind      core.NodeKind
	// TimeRange is nil for a full load.
	TimeRange *core.TimeRange
	// Adapter is set for adapter actions, Model for model actions.
	Adapter *core.AdapterConfig
	Model   *core.ModelConfig
	// InsertPath is where the executor may write the rows it inserted. Its
	// directory is created by PrepareInsertPath.
	InsertPath string
	// UpstreamDeltas maps each parent table that wrote a delta earlier in the
	// same pipeline to that artifact. Parents not scheduled in this pipeline
	// have no entry.
	UpstreamDeltas map[string]string
}

// PrepareInsertPath creates the directory of InsertPath. Executors call it
// before writing a delta.
func (t Task) PrepareInsertPath() error {
	return delta.PrepareInsertPath(t.InsertPath)
}

// Result is what an Executor reports for a successful task.
type Result struct {
	// DeltaWritten is true when the executor wrote Task.InsertPath.
	DeltaWritten bool
}

// Executor performs the actual data work of a task.
type Executor interface {
	Execute(ctx context.Context, task Task) (Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, task Task) (Result, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, task Task) (Result, error) {
	return f(ctx, task)
}

// RunSummary reports the outcome of a pipeline run.
type RunSummary struct {
	PipelineID int64
	Status     core.Status
	Completed  []string
	// Failed lists tables whose executor returned an error.
	Failed []string
	// Skipped lists tables failed without running (upstream failure or cancellation).
	Skipped []string
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Store       core.Store
	DeltaDir    string
	MaxParallel int
	Logger      *slog.Logger
}

// Runner drives a saved pipeline through an Executor.
type Runner struct {
	store       core.Store
	manager     *execution.Manager
	tracker     *delta.Tracker
	maxParallel int
	logger      *slog.Logger
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		store:       cfg.Store,
		manager:     execution.NewManager(cfg.Store, logger),
		tracker:     delta.NewTracker(cfg.Store, cfg.DeltaDir, logger),
		maxParallel: cfg.MaxParallel,
		logger:      logger,
	}
}

// runState collects per-run results shared by the action goroutines.
type runState struct {
	mu      sync.Mutex
	summary RunSummary
}

func (s *runState) add(list *[]string, tables ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*list = append(*list, tables...)
}

// Run executes the pipeline level by level. Actions inside a level run
// concurrently. When an action fails, every pending action downstream of it is
// failed without running. The pipeline ends Completed only if every action
// completed.
//
// An error is returned only when the run could not be driven (state store
// failure, cancellation); executor failures are reported in the summary.
func (r *Runner) Run(ctx context.Context, g *dag.Graph, cfg *core.ProjectConfig, pipelineID int64, exec Executor) (*RunSummary, error) {
	// State writes must survive cancellation so the pipeline is left consistent.
	stateCtx := context.WithoutCancel(ctx)

	actions, err := r.store.ListPipelineActions(stateCtx, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to load actions of pipeline %d: %w", pipelineID, err)
	}
	if err := r.manager.StartPipeline(stateCtx, pipelineID); err != nil {
		return nil, err
	}

	r.logger.Info("pipeline started",
		slog.Int64("pipeline_id", pipelineID),
		slog.Int("actions", len(actions)))

	rs := &runState{summary: RunSummary{PipelineID: pipelineID}}

	for _, level := range levelsOf(actions) {
		if ctx.Err() != nil {
			break
		}
		if err := r.runLevel(ctx, stateCtx, g, cfg, pipelineID, level, exec, rs); err != nil {
			return nil, r.abort(stateCtx, pipelineID, err, rs)
		}
	}

	if ctx.Err() != nil {
		if err := r.failPending(stateCtx, pipelineID, fmt.Sprintf("pipeline cancelled: %v", ctx.Err()), rs); err != nil {
			return nil, err
		}
	}

	summary := &rs.summary
	if len(summary.Failed) == 0 && len(summary.Skipped) == 0 {
		summary.Status = core.StatusCompleted
		err = r.manager.CompletePipeline(stateCtx, pipelineID)
	} else {
		summary.Status = core.StatusFailed
		err = r.manager.FailPipeline(stateCtx, pipelineID)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Info("pipeline finished",
		slog.Int64("pipeline_id", pipelineID),
		slog.String("status", string(summary.Status)),
		slog.Int("completed", len(summary.Completed)),
		slog.Int("failed", len(summary.Failed)),
		slog.Int("skipped", len(summary.Skipped)))

	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, nil
}

// levelsOf returns the distinct action levels in ascending order.
func levelsOf(actions []*core.PipelineAction) []int {
	var levels []int
	for _, a := range actions {
		if !slices.Contains(levels, a.Level) {
			levels = append(levels, a.Level)
		}
	}
	slices.Sort(levels)
	return levels
}

func (r *Runner) runLevel(ctx, stateCtx context.Context, g *dag.Graph, cfg *core.ProjectConfig, pipelineID int64, level int, exec Executor, rs *runState) error {
	// Reload so that actions failed by an upstream cascade are not started.
	actions, err := r.store.ListPipelineActions(stateCtx, pipelineID)
	if err != nil {
		return fmt.Errorf("failed to load actions of pipeline %d: %w", pipelineID, err)
	}

	r.logger.Debug("running level", slog.Int64("pipeline_id", pipelineID), slog.Int("level", level))

	eg, egctx := errgroup.WithContext(ctx)
	if r.maxParallel > 0 {
		eg.SetLimit(r.maxParallel)
	}

	byTable := make(map[string]*core.PipelineAction, len(actions))
	for _, a := range actions {
		byTable[a.TableName] = a
	}

	var cascadeMu sync.Mutex
	for _, a := range actions {
		if a.Level != level || a.Status != core.StatusPending {
			continue
		}
		eg.Go(func() error {
			execErr, err := r.runAction(egctx, stateCtx, g, cfg, a, byTable, exec)
			if err != nil {
				return err
			}
			if execErr == nil {
				rs.add(&rs.summary.Completed, a.TableName)
				return nil
			}

			rs.add(&rs.summary.Failed, a.TableName)
			r.logger.Error("action failed",
				slog.Int64("pipeline_id", pipelineID),
				slog.String("table", a.TableName),
				slog.String("error", execErr.Error()))

			cascadeMu.Lock()
			defer cascadeMu.Unlock()
			var downstream []string
			if g.Has(a.TableName) {
				downstream = g.Downstream(a.TableName)
			}
			marked, err := r.manager.MarkDownstreamFailed(stateCtx, pipelineID, a.TableName, downstream)
			rs.add(&rs.summary.Skipped, marked...)
			return err
		})
	}
	return eg.Wait()
}

// runAction executes one action. execErr is the task failure recorded on the
// action; err is a failure to drive the action at all.
func (r *Runner) runAction(ctx, stateCtx context.Context, g *dag.Graph, cfg *core.ProjectConfig, a *core.PipelineAction, byTable map[string]*core.PipelineAction, exec Executor) (execErr, err error) {
	if err := r.manager.StartAction(stateCtx, a.ID); err != nil {
		return nil, err
	}

	task, execErr := r.task(stateCtx, g, cfg, a, byTable)
	var res Result
	if execErr == nil {
		res, execErr = exec.Execute(ctx, task)
	}
	if execErr != nil {
		return execErr, r.manager.FailAction(stateCtx, a.ID, execErr.Error())
	}

	if res.DeltaWritten {
		if _, err := r.tracker.Record(stateCtx, a.ID, task.InsertPath); err != nil {
			return nil, err
		}
	}
	return nil, r.manager.CompleteAction(stateCtx, a.ID)
}

// task resolves the configuration, artifact path and upstream deltas of an
// action. byTable holds the pipeline's actions as loaded at the start of the
// level; parents ran in earlier levels, so their status is final there.
func (r *Runner) task(ctx context.Context, g *dag.Graph, cfg *core.ProjectConfig, a *core.PipelineAction, byTable map[string]*core.PipelineAction) (Task, error) {
	node, ok := g.Node(a.TableName)
	if !ok {
		return Task{}, fmt.Errorf("table %s is no longer part of the project", a.TableName)
	}

	task := Task{
		ActionID:   a.ID,
		TableName:  a.TableName,
		Level:      a.Level,
		Kind:       node.Kind,
		TimeRange:  a.TimeRange(),
		InsertPath: r.tracker.NewInsertPath(a.TableName),
	}
	switch node.Kind {
	case core.NodeKindAdapter:
		task.Adapter, _ = cfg.Adapter(a.TableName)
	case core.NodeKindModel:
		task.Model, _ = cfg.Model(a.TableName)
	}

	for _, parent := range g.Parents(a.TableName) {
		pa, ok := byTable[parent]
		if !ok || pa.Status != core.StatusCompleted {
			continue
		}
		d, err := r.tracker.ForAction(ctx, pa.ID)
		if err != nil {
			return Task{}, fmt.Errorf("failed to resolve delta of %s: %w", parent, err)
		}
		if d == nil {
			continue
		}
		if task.UpstreamDeltas == nil {
			task.UpstreamDeltas = make(map[string]string)
		}
		task.UpstreamDeltas[parent] = d.InsertPath
	}
	return task, nil
}

// abort ends a run the runner could no longer drive: every action that is
// still pending or running is failed, then the pipeline. Errors met on the way
// are joined to cause.
func (r *Runner) abort(ctx context.Context, pipelineID int64, cause error, rs *runState) error {
	r.logger.Error("pipeline aborted",
		slog.Int64("pipeline_id", pipelineID),
		slog.String("error", cause.Error()))

	errs := []error{cause}
	msg := fmt.Sprintf("pipeline aborted: %v", cause)

	actions, err := r.store.ListPipelineActions(ctx, pipelineID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to load actions of pipeline %d: %w", pipelineID, err))
	}
	for _, a := range actions {
		if a.Status.IsTerminal() {
			continue
		}
		if err := r.manager.FailAction(ctx, a.ID, msg); err != nil {
			errs = append(errs, err)
			continue
		}
		rs.add(&rs.summary.Skipped, a.TableName)
	}

	if err := r.manager.FailPipeline(ctx, pipelineID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// failPending fails every action still pending, e.g. after cancellation.
func (r *Runner) failPending(ctx context.Context, pipelineID int64, msg string, rs *runState) error {
	actions, err := r.store.ListPipelineActions(ctx, pipelineID)
	if err != nil {
		return fmt.Errorf("failed to load actions of pipeline %d: %w", pipelineID, err)
	}
	for _, a := range actions {
		if a.Status != core.StatusPending {
			continue
		}
		if err := r.manager.FailAction(ctx, a.ID, msg); err != nil {
			return err
		}
		rs.add(&rs.summary.Skipped, a.TableName)
	}
	return nil
}
