package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapflow/pkg/core"
)

const pipelineColumns = `id, generation_id, status, created_at, updated_at`

const actionColumns = `id, pipeline_id, table_name, level, since, until, status, error, started_at, completed_at`

// CreatePipeline persists a pipeline and one pending action per scheduled
// table. Returns core.ErrGraphNotFound if the generation does not exist.
func (s *SQLStore) CreatePipeline(ctx context.Context, generationID int64, levels [][]core.Action) (*core.PipelineRun, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	ts := now()
	run := &core.PipelineRun{
		GenerationID: generationID,
		Status:       core.StatusPending,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			s.rebind(`SELECT 1 FROM graph_generations WHERE id = ?`), generationID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", core.ErrGraphNotFound, generationID)
		}
		if err != nil {
			return fmt.Errorf("failed to check generation: %w", err)
		}

		id, err := s.insertID(ctx, tx,
			`INSERT INTO pipelines (generation_id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			generationID, string(run.Status), formatTime(ts), formatTime(ts))
		if err != nil {
			return fmt.Errorf("failed to insert pipeline: %w", err)
		}
		run.ID = id

		actionSQL := s.rebind(`INSERT INTO pipeline_actions (pipeline_id, table_name, level, since, until, status) VALUES (?, ?, ?, ?, ?, ?)`)
		for lvl, actions := range levels {
			for _, a := range actions {
				var since, until sql.NullString
				if a.TimeRange != nil {
					since = nullTime(a.TimeRange.Since)
					until = nullTime(a.TimeRange.Until)
				}
				if _, err := tx.ExecContext(ctx, actionSQL,
					id, a.TableName, lvl, since, until, string(core.StatusPending)); err != nil {
					return fmt.Errorf("failed to insert action %s: %w", a.TableName, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("pipeline created",
		slog.Int64("id", run.ID),
		slog.Int64("generation_id", generationID),
		slog.Int("levels", len(levels)))
	return run, nil
}

// GetPipeline returns a pipeline by id.
func (s *SQLStore) GetPipeline(ctx context.Context, id int64) (*core.PipelineRun, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+pipelineColumns+` FROM pipelines WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline: %w", err)
	}
	runs, err := scanPipelines(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: %d", core.ErrPipelineNotFound, id)
	}
	return runs[0], nil
}

// ListPipelines returns the most recent pipelines, newest first.
func (s *SQLStore) ListPipelines(ctx context.Context, limit int) ([]*core.PipelineRun, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+pipelineColumns+` FROM pipelines ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}
	return scanPipelines(rows)
}

func scanPipelines(rows *sql.Rows) ([]*core.PipelineRun, error) {
	defer func() { _ = rows.Close() }()

	var runs []*core.PipelineRun
	for rows.Next() {
		var (
			run                  core.PipelineRun
			status               string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&run.ID, &run.GenerationID, &status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline: %w", err)
		}
		run.Status = core.Status(status)

		var err error
		if run.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if run.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// UpdatePipelineStatus sets the status of a pipeline.
func (s *SQLStore) UpdatePipelineStatus(ctx context.Context, id int64, status core.Status) error {
	if s.db == nil {
		return errNotOpened
	}

	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE pipelines SET status = ?, updated_at = ? WHERE id = ?`),
		string(status), formatTime(now()), id)
	if err != nil {
		return fmt.Errorf("failed to update pipeline status: %w", err)
	}
	return expectOneRow(res, core.ErrPipelineNotFound, id)
}

// ListPipelineActions returns the actions of a pipeline ordered by level,
// then scheduling order.
func (s *SQLStore) ListPipelineActions(ctx context.Context, pipelineID int64) ([]*core.PipelineAction, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+actionColumns+` FROM pipeline_actions WHERE pipeline_id = ? ORDER BY level, id`),
		pipelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline actions: %w", err)
	}
	return scanActions(rows)
}

// GetPipelineAction returns a pipeline action by id.
func (s *SQLStore) GetPipelineAction(ctx context.Context, id int64) (*core.PipelineAction, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+actionColumns+` FROM pipeline_actions WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline action: %w", err)
	}
	actions, err := scanActions(rows)
	if err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("%w: %d", core.ErrPipelineActionNotFound, id)
	}
	return actions[0], nil
}

// LatestActionForTable returns the most recently scheduled action for a table.
func (s *SQLStore) LatestActionForTable(ctx context.Context, table string) (*core.PipelineAction, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+actionColumns+` FROM pipeline_actions WHERE table_name = ? ORDER BY id DESC LIMIT 1`),
		table)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest action: %w", err)
	}
	actions, err := scanActions(rows)
	if err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("%w: no action for table %s", core.ErrPipelineActionNotFound, table)
	}
	return actions[0], nil
}

func scanActions(rows *sql.Rows) ([]*core.PipelineAction, error) {
	defer func() { _ = rows.Close() }()

	var actions []*core.PipelineAction
	for rows.Next() {
		var (
			a                                core.PipelineAction
			status                           string
			since, until, started, completed sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.PipelineID, &a.TableName, &a.Level,
			&since, &until, &status, &a.Error, &started, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline action: %w", err)
		}
		a.Status = core.Status(status)

		var err error
		if a.Since, err = scanNullTime(since); err != nil {
			return nil, err
		}
		if a.Until, err = scanNullTime(until); err != nil {
			return nil, err
		}
		if a.StartedAt, err = scanNullTime(started); err != nil {
			return nil, err
		}
		if a.CompletedAt, err = scanNullTime(completed); err != nil {
			return nil, err
		}
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}

// UpdateActionStatus sets the status of an action. Moving to running stamps
// the start time; moving to a terminal state stamps the completion time.
// errMsg is stored as given, so completing with an empty message clears it.
func (s *SQLStore) UpdateActionStatus(ctx context.Context, id int64, status core.Status, errMsg string) error {
	if s.db == nil {
		return errNotOpened
	}

	ts := formatTime(now())
	var (
		query string
		args  []any
	)
	switch {
	case status == core.StatusRunning:
		query = `UPDATE pipeline_actions SET status = ?, error = ?, started_at = ? WHERE id = ?`
		args = []any{string(status), errMsg, ts, id}
	case status.IsTerminal():
		query = `UPDATE pipeline_actions SET status = ?, error = ?, completed_at = ? WHERE id = ?`
		args = []any{string(status), errMsg, ts, id}
	default:
		query = `UPDATE pipeline_actions SET status = ?, error = ? WHERE id = ?`
		args = []any{string(status), errMsg, id}
	}

	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update action status: %w", err)
	}
	return expectOneRow(res, core.ErrPipelineActionNotFound, id)
}

// ExecutedRanges returns the windows already loaded for a table within a
// generation. Only completed actions with both bounds count.
func (s *SQLStore) ExecutedRanges(ctx context.Context, generationID int64, table string) ([]core.ExecutedRange, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT a.since, a.until
		FROM pipeline_actions a
		JOIN pipelines p ON p.id = a.pipeline_id
		WHERE p.generation_id = ?
		  AND a.table_name = ?
		  AND a.status = ?
		  AND a.since IS NOT NULL
		  AND a.until IS NOT NULL
		ORDER BY a.since`),
		generationID, table, string(core.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("failed to list executed ranges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ranges []core.ExecutedRange
	for rows.Next() {
		var since, until string
		if err := rows.Scan(&since, &until); err != nil {
			return nil, fmt.Errorf("failed to scan executed range: %w", err)
		}
		var (
			r   core.ExecutedRange
			err error
		)
		if r.Since, err = parseTime(since); err != nil {
			return nil, err
		}
		if r.Until, err = parseTime(until); err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, rows.Err()
}

func expectOneRow(res sql.Result, notFound error, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", notFound, id)
	}
	return nil
}
