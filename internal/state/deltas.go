package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leapstack-labs/leapflow/pkg/core"
)

// CreateDeltaMetadata records the artifact written by an action.
func (s *SQLStore) CreateDeltaMetadata(ctx context.Context, actionID int64, insertPath string) (*core.DeltaMetadata, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	d := &core.DeltaMetadata{ActionID: actionID, InsertPath: insertPath, CreatedAt: now()}
	id, err := s.insertID(ctx, s.db,
		`INSERT INTO delta_metadata (action_id, insert_path, created_at) VALUES (?, ?, ?)`,
		actionID, insertPath, formatTime(d.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create delta metadata for action %d: %w", actionID, err)
	}
	d.ID = id
	return d, nil
}

// GetDeltaMetadata returns the latest delta recorded for an action.
func (s *SQLStore) GetDeltaMetadata(ctx context.Context, actionID int64) (*core.DeltaMetadata, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	var (
		d         core.DeltaMetadata
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, action_id, insert_path, created_at FROM delta_metadata WHERE action_id = ? ORDER BY id DESC LIMIT 1`),
		actionID).Scan(&d.ID, &d.ActionID, &d.InsertPath, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: action %d", core.ErrDeltaNotFound, actionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delta metadata: %w", err)
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &d, nil
}
