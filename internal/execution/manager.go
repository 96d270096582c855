// Package execution tracks the lifecycle of pipelines and their actions.
//
// Both move through Pending -> Running -> {Completed, Failed}. A pending
// action may also fail directly when an upstream action failed and it is
// short-circuited without running. Terminal states are final.
package execution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapflow/pkg/core"
)

// TransitionError reports a status change the lifecycle does not allow.
type TransitionError struct {
	Entity string // "pipeline" or "action"
	ID     int64
	From   core.Status
	To     core.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %d: invalid status transition %s -> %s", e.Entity, e.ID, e.From, e.To)
}

var transitions = map[core.Status][]core.Status{
	core.StatusPending: {core.StatusRunning, core.StatusFailed},
	core.StatusRunning: {core.StatusCompleted, core.StatusFailed},
}

func allowed(from, to core.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UpstreamFailedMessage is recorded on actions skipped because a dependency failed.
func UpstreamFailedMessage(table string) string {
	return fmt.Sprintf("Upstream task %s failed", table)
}

// Manager applies lifecycle transitions and persists them through a store.
type Manager struct {
	store  core.Store
	logger *slog.Logger
}

// NewManager creates a manager. A nil logger discards output.
func NewManager(store core.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{store: store, logger: logger}
}

// StartPipeline moves a pipeline from pending to running.
func (m *Manager) StartPipeline(ctx context.Context, id int64) error {
	return m.setPipeline(ctx, id, core.StatusRunning)
}

// CompletePipeline moves a running pipeline to completed.
func (m *Manager) CompletePipeline(ctx context.Context, id int64) error {
	return m.setPipeline(ctx, id, core.StatusCompleted)
}

// FailPipeline moves a pipeline to failed.
func (m *Manager) FailPipeline(ctx context.Context, id int64) error {
	return m.setPipeline(ctx, id, core.StatusFailed)
}

func (m *Manager) setPipeline(ctx context.Context, id int64, to core.Status) error {
	p, err := m.store.GetPipeline(ctx, id)
	if err != nil {
		return err
	}
	if !allowed(p.Status, to) {
		return &TransitionError{Entity: "pipeline", ID: id, From: p.Status, To: to}
	}
	if err := m.store.UpdatePipelineStatus(ctx, id, to); err != nil {
		return err
	}
	m.logger.Debug("pipeline status changed",
		slog.Int64("pipeline_id", id),
		slog.String("from", string(p.Status)),
		slog.String("to", string(to)))
	return nil
}

// StartAction records the start time and moves an action to running.
func (m *Manager) StartAction(ctx context.Context, id int64) error {
	_, err := m.setAction(ctx, id, core.StatusRunning, "")
	return err
}

// CompleteAction moves a running action to completed and clears its error.
func (m *Manager) CompleteAction(ctx context.Context, id int64) error {
	_, err := m.setAction(ctx, id, core.StatusCompleted, "")
	return err
}

// FailAction moves an action to failed and records the error message.
func (m *Manager) FailAction(ctx context.Context, id int64, errMsg string) error {
	_, err := m.setAction(ctx, id, core.StatusFailed, errMsg)
	return err
}

func (m *Manager) setAction(ctx context.Context, id int64, to core.Status, errMsg string) (*core.PipelineAction, error) {
	a, err := m.store.GetPipelineAction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !allowed(a.Status, to) {
		return nil, &TransitionError{Entity: "action", ID: id, From: a.Status, To: to}
	}
	if err := m.store.UpdateActionStatus(ctx, id, to, errMsg); err != nil {
		return nil, err
	}
	m.logger.Debug("action status changed",
		slog.Int64("action_id", id),
		slog.String("table", a.TableName),
		slog.String("from", string(a.Status)),
		slog.String("to", string(to)))
	return a, nil
}

// MarkDownstreamFailed fails every action of the pipeline whose table is in
// downstream, without running it. Actions already in a terminal state and the
// failed table itself are left untouched. Returns the tables that were marked.
func (m *Manager) MarkDownstreamFailed(ctx context.Context, pipelineID int64, failedTable string, downstream []string) ([]string, error) {
	targets := make(map[string]bool, len(downstream))
	for _, t := range downstream {
		if t != failedTable {
			targets[t] = true
		}
	}
	if len(targets) == 0 {
		return nil, nil
	}

	actions, err := m.store.ListPipelineActions(ctx, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions of pipeline %d: %w", pipelineID, err)
	}

	msg := UpstreamFailedMessage(failedTable)
	var marked []string
	for _, a := range actions {
		if !targets[a.TableName] || a.Status.IsTerminal() {
			continue
		}
		if err := m.store.UpdateActionStatus(ctx, a.ID, core.StatusFailed, msg); err != nil {
			return marked, fmt.Errorf("failed to mark %s as failed: %w", a.TableName, err)
		}
		marked = append(marked, a.TableName)
	}

	if len(marked) > 0 {
		m.logger.Warn("downstream actions skipped after failure",
			slog.Int64("pipeline_id", pipelineID),
			slog.String("failed", failedTable),
			slog.Any("skipped", marked))
	}
	return marked, nil
}
