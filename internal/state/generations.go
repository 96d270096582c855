package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/leapstack-labs/leapflow/pkg/core"
)

// LatestGeneration returns the most recently persisted graph generation.
// Returns core.ErrGraphNotFound when none exists.
func (s *SQLStore) LatestGeneration(ctx context.Context) (*core.Generation, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM graph_generations ORDER BY id DESC LIMIT 1`)
	gen, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrGraphNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest generation: %w", err)
	}
	return gen, nil
}

// GetGeneration returns a graph generation by id.
func (s *SQLStore) GetGeneration(ctx context.Context, id int64) (*core.Generation, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, created_at FROM graph_generations WHERE id = ?`), id)
	gen, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", core.ErrGraphNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get generation %d: %w", id, err)
	}
	return gen, nil
}

func scanGeneration(row *sql.Row) (*core.Generation, error) {
	var (
		gen       core.Generation
		createdAt string
	)
	if err := row.Scan(&gen.ID, &createdAt); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	gen.CreatedAt = t
	return &gen, nil
}

// ListGenerationNodes returns the nodes of a generation in insertion order.
func (s *SQLStore) ListGenerationNodes(ctx context.Context, generationID int64) ([]core.PersistedNode, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT name, kind, config_hash FROM graph_nodes WHERE generation_id = ? ORDER BY position`),
		generationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list generation nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var nodes []core.PersistedNode
	for rows.Next() {
		var (
			n    core.PersistedNode
			kind string
		)
		if err := rows.Scan(&n.Name, &kind, &n.ConfigHash); err != nil {
			return nil, fmt.Errorf("failed to scan generation node: %w", err)
		}
		n.Kind = core.NodeKind(kind)
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// ListGenerationEdges returns the edges of a generation in insertion order.
func (s *SQLStore) ListGenerationEdges(ctx context.Context, generationID int64) ([]core.PersistedEdge, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT from_node, to_node FROM graph_edges WHERE generation_id = ? ORDER BY position`),
		generationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list generation edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []core.PersistedEdge
	for rows.Next() {
		var e core.PersistedEdge
		if err := rows.Scan(&e.From, &e.To); err != nil {
			return nil, fmt.Errorf("failed to scan generation edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// CreateGeneration persists a new graph generation with its nodes and edges
// in a single transaction.
func (s *SQLStore) CreateGeneration(ctx context.Context, nodes []core.PersistedNode, edges []core.PersistedEdge) (*core.Generation, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	var gen *core.Generation
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		gen, err = s.insertGeneration(ctx, tx, nodes, edges)
		return err
	})
	if err != nil {
		return nil, err
	}
	return gen, nil
}

// CreateGenerationIfLatest persists a new generation only if the latest
// generation is still expectedLatestID (nil meaning none). The check and the
// insert hold the store's write lock, so concurrent callers that diffed
// against the same generation cannot both persist. The loser gets
// core.ErrGenerationConflict and should diff again.
func (s *SQLStore) CreateGenerationIfLatest(ctx context.Context, expectedLatestID *int64, nodes []core.PersistedNode, edges []core.PersistedEdge) (*core.Generation, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	var gen *core.Generation
	err := s.withWriteLock(ctx, func(q queryer) error {
		var latest sql.NullInt64
		if err := q.QueryRowContext(ctx, `SELECT MAX(id) FROM graph_generations`).Scan(&latest); err != nil {
			return fmt.Errorf("failed to read latest generation: %w", err)
		}
		if !sameGeneration(latest, expectedLatestID) {
			return fmt.Errorf("%w: expected %s, found %s", core.ErrGenerationConflict,
				formatGenerationID(expectedLatestID), formatNullID(latest))
		}

		var err error
		gen, err = s.insertGeneration(ctx, q, nodes, edges)
		return err
	})
	if err != nil {
		return nil, err
	}
	return gen, nil
}

func sameGeneration(latest sql.NullInt64, expected *int64) bool {
	if expected == nil {
		return !latest.Valid
	}
	return latest.Valid && latest.Int64 == *expected
}

func formatGenerationID(id *int64) string {
	if id == nil {
		return "none"
	}
	return strconv.FormatInt(*id, 10)
}

func formatNullID(id sql.NullInt64) string {
	if !id.Valid {
		return "none"
	}
	return strconv.FormatInt(id.Int64, 10)
}

func (s *SQLStore) insertGeneration(ctx context.Context, q queryer, nodes []core.PersistedNode, edges []core.PersistedEdge) (*core.Generation, error) {
	gen := &core.Generation{CreatedAt: now()}
	id, err := s.insertID(ctx, q,
		`INSERT INTO graph_generations (created_at) VALUES (?)`, formatTime(gen.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert generation: %w", err)
	}
	gen.ID = id

	nodeSQL := s.rebind(`INSERT INTO graph_nodes (generation_id, position, name, kind, config_hash) VALUES (?, ?, ?, ?, ?)`)
	for i, n := range nodes {
		if _, err := q.ExecContext(ctx, nodeSQL, id, i, n.Name, string(n.Kind), n.ConfigHash); err != nil {
			return nil, fmt.Errorf("failed to insert node %s: %w", n.Name, err)
		}
	}

	edgeSQL := s.rebind(`INSERT INTO graph_edges (generation_id, position, from_node, to_node) VALUES (?, ?, ?, ?)`)
	for i, e := range edges {
		if _, err := q.ExecContext(ctx, edgeSQL, id, i, e.From, e.To); err != nil {
			return nil, fmt.Errorf("failed to insert edge %s -> %s: %w", e.From, e.To, err)
		}
	}

	s.logger.Debug("graph generation created",
		slog.Int64("id", gen.ID),
		slog.Int("nodes", len(nodes)),
		slog.Int("edges", len(edges)))
	return gen, nil
}
