package core

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by Store implementations.
var (
	ErrGraphNotFound          = errors.New("graph not found")
	ErrPipelineNotFound       = errors.New("pipeline not found")
	ErrPipelineActionNotFound = errors.New("pipeline action not found")
	ErrDeltaNotFound          = errors.New("delta metadata not found")
	// ErrGenerationConflict means another writer persisted a generation since
	// the caller read the latest one.
	ErrGenerationConflict = errors.New("graph generation changed concurrently")
)

// Store defines the interface for state management operations.
type Store interface {
	Close() error

	// Graph generations
	LatestGeneration(ctx context.Context) (*Generation, error)
	GetGeneration(ctx context.Context, id int64) (*Generation, error)
	ListGenerationNodes(ctx context.Context, generationID int64) ([]PersistedNode, error)
	ListGenerationEdges(ctx context.Context, generationID int64) ([]PersistedEdge, error)
	CreateGeneration(ctx context.Context, nodes []PersistedNode, edges []PersistedEdge) (*Generation, error)
	CreateGenerationIfLatest(ctx context.Context, expectedLatestID *int64, nodes []PersistedNode, edges []PersistedEdge) (*Generation, error)

	// Pipelines
	CreatePipeline(ctx context.Context, generationID int64, levels [][]Action) (*PipelineRun, error)
	GetPipeline(ctx context.Context, id int64) (*PipelineRun, error)
	ListPipelines(ctx context.Context, limit int) ([]*PipelineRun, error)
	UpdatePipelineStatus(ctx context.Context, id int64, status Status) error

	// Pipeline actions
	ListPipelineActions(ctx context.Context, pipelineID int64) ([]*PipelineAction, error)
	GetPipelineAction(ctx context.Context, id int64) (*PipelineAction, error)
	UpdateActionStatus(ctx context.Context, id int64, status Status, errMsg string) error
	ExecutedRanges(ctx context.Context, generationID int64, table string) ([]ExecutedRange, error)
	LatestActionForTable(ctx context.Context, table string) (*PipelineAction, error)

	// Deltas
	CreateDeltaMetadata(ctx context.Context, actionID int64, insertPath string) (*DeltaMetadata, error)
	GetDeltaMetadata(ctx context.Context, actionID int64) (*DeltaMetadata, error)
}

// Status is the lifecycle state of a pipeline or a pipeline action.
type Status string

// Status constants.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Generation is one persisted snapshot of the dependency graph.
type Generation struct {
	ID        int64
	CreatedAt time.Time
}

// PersistedNode is a graph node as stored for a generation.
type PersistedNode struct {
	Name string
	Kind NodeKind
	// ConfigHash fingerprints the node configuration for change detection.
	ConfigHash string
}

// PersistedEdge is a directed dependency From -> To.
type PersistedEdge struct {
	From string
	To   string
}

// PipelineRun is a persisted pipeline.
type PipelineRun struct {
	ID           int64
	GenerationID int64
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PipelineAction is a persisted action belonging to a pipeline.
type PipelineAction struct {
	ID          int64
	PipelineID  int64
	TableName   string
	Level       int
	Since       *time.Time
	Until       *time.Time
	Status      Status
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// TimeRange returns the action window, or nil for a full load.
func (a *PipelineAction) TimeRange() *TimeRange {
	if a.Since == nil && a.Until == nil {
		return nil
	}
	return &TimeRange{Since: a.Since, Until: a.Until}
}

// DeltaMetadata links an action to the file holding its inserted rows.
type DeltaMetadata struct {
	ID         int64
	ActionID   int64
	InsertPath string
	CreatedAt  time.Time
}
