// Package delta records the incremental artifacts written by pipeline actions
// so that downstream models can read only the newly loaded rows.
package delta

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapflow/pkg/core"
)

// Store is the subset of core.Store the tracker needs.
type Store interface {
	LatestActionForTable(ctx context.Context, table string) (*core.PipelineAction, error)
	CreateDeltaMetadata(ctx context.Context, actionID int64, insertPath string) (*core.DeltaMetadata, error)
	GetDeltaMetadata(ctx context.Context, actionID int64) (*core.DeltaMetadata, error)
}

// Tracker records and resolves delta artifacts.
type Tracker struct {
	store  Store
	dir    string
	logger *slog.Logger
}

// NewTracker creates a tracker writing artifacts under dir.
func NewTracker(store Store, dir string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{store: store, dir: dir, logger: logger}
}

// NewInsertPath allocates a unique artifact path for a table:
// <dir>/<table>/<uuid>.parquet. Nothing is created on disk; a writer calls
// PrepareInsertPath first.
func (t *Tracker) NewInsertPath(table string) string {
	return filepath.Join(t.dir, table, uuid.NewString()+".parquet")
}

// PrepareInsertPath creates the directory an insert path lives in.
func PrepareInsertPath(insertPath string) error {
	if err := os.MkdirAll(filepath.Dir(insertPath), 0o755); err != nil {
		return fmt.Errorf("failed to create delta directory: %w", err)
	}
	return nil
}

// Record stores the artifact path written by an action.
func (t *Tracker) Record(ctx context.Context, actionID int64, insertPath string) (*core.DeltaMetadata, error) {
	d, err := t.store.CreateDeltaMetadata(ctx, actionID, insertPath)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("delta recorded",
		slog.Int64("action_id", actionID),
		slog.String("path", insertPath))
	return d, nil
}

// Latest returns the delta of the most recent action for a table.
// It returns nil without error when the table has no action or the latest
// action recorded no delta.
func (t *Tracker) Latest(ctx context.Context, table string) (*core.DeltaMetadata, error) {
	action, err := t.store.LatestActionForTable(ctx, table)
	if errors.Is(err, core.ErrPipelineActionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return t.ForAction(ctx, action.ID)
}

// ForAction returns the delta recorded by one action, or nil when the action
// recorded none.
func (t *Tracker) ForAction(ctx context.Context, actionID int64) (*core.DeltaMetadata, error) {
	d, err := t.store.GetDeltaMetadata(ctx, actionID)
	if errors.Is(err, core.ErrDeltaNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Cleanup deletes the artifact referenced by the metadata. A file that is
// already gone is not an error. No reference counting is done: the caller
// decides when no consumer needs the artifact any more.
func (t *Tracker) Cleanup(d *core.DeltaMetadata) error {
	if d == nil || d.InsertPath == "" {
		return nil
	}
	if err := os.Remove(d.InsertPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove delta %s: %w", d.InsertPath, err)
	}
	t.logger.Debug("delta removed", slog.String("path", d.InsertPath))
	return nil
}
