// Package engine ties project loading, graph building, change detection,
// pipeline planning and execution together.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/leapstack-labs/leapflow/internal/dag"
	"github.com/leapstack-labs/leapflow/internal/pipeline"
	"github.com/leapstack-labs/leapflow/internal/project"
	"github.com/leapstack-labs/leapflow/internal/state"
	"github.com/leapstack-labs/leapflow/pkg/core"
)

// ErrPendingChanges is returned by Plan when the project differs from the
// latest persisted generation.
var ErrPendingChanges = errors.New("project has changes that are not migrated yet")

// Engine orchestrates a project against its state store.
type Engine struct {
	logger *slog.Logger

	store       core.Store
	ownsStore   bool
	projectDir  string
	projectOpts project.Options
	deltaDir    string
	maxParallel int
}

// Config holds engine configuration.
type Config struct {
	// ProjectDir is the project root containing adapters/ and models/
	ProjectDir string
	// AdaptersDir and ModelsDir override the default directory names
	AdaptersDir string
	ModelsDir   string
	// StateDialect selects the state backend (sqlite when empty)
	StateDialect state.Dialect
	// StateDSN is the SQLite path (":memory:" allowed) or the PostgreSQL URL
	StateDSN string
	// DeltaDir is where delta artifacts are written
	DeltaDir string
	// MaxParallel bounds concurrent actions inside a level (0 = unlimited)
	MaxParallel int
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New opens and migrates the state store and returns an engine owning it.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initializing engine",
		"project_dir", cfg.ProjectDir,
		"state_driver", string(cfg.StateDialect))

	if (cfg.StateDialect == "" || cfg.StateDialect == state.DialectSQLite) &&
		cfg.StateDSN != "" && cfg.StateDSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.StateDSN), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store, err := state.Open(ctx, state.Options{Dialect: cfg.StateDialect, DSN: cfg.StateDSN, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}

	e := NewWithStore(store, cfg)
	e.ownsStore = true
	return e, nil
}

// NewWithStore creates an engine on an existing store. Close does not close it.
func NewWithStore(store core.Store, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	projectDir := cfg.ProjectDir
	if projectDir == "" {
		projectDir = "."
	}
	return &Engine{
		logger:      logger,
		store:       store,
		projectDir:  projectDir,
		projectOpts: project.Options{AdaptersDir: cfg.AdaptersDir, ModelsDir: cfg.ModelsDir},
		deltaDir:    cfg.DeltaDir,
		maxParallel: cfg.MaxParallel,
	}
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	if e.ownsStore && e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("errors closing engine: %w", err)
	}
	return nil
}

// Store returns the state store.
func (e *Engine) Store() core.Store {
	return e.store
}

// ProjectDir returns the project root.
func (e *Engine) ProjectDir() string {
	return e.projectDir
}

// Watcher returns a file watcher over the project's adapter and model
// directories. A zero debounce uses project.DefaultDebounce.
func (e *Engine) Watcher(debounce time.Duration) *project.Watcher {
	return project.NewWatcher(e.projectDir, e.projectOpts, debounce, e.logger)
}

// LoadProject reads adapters and models from the project directory.
func (e *Engine) LoadProject() (*core.ProjectConfig, error) {
	cfg, err := project.Load(e.projectDir, e.projectOpts)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("project loaded",
		slog.Int("adapters", len(cfg.Adapters)),
		slog.Int("models", len(cfg.Models)))
	return cfg, nil
}

// BuildGraph builds and validates the dependency graph of a project.
func (e *Engine) BuildGraph(cfg *core.ProjectConfig) (*dag.Graph, error) {
	return dag.Build(cfg, e.logger)
}

// DetectChanges compares g with the latest persisted generation. The returned
// generation is nil when nothing was persisted yet; changes is nil when the
// graph matches the generation exactly.
func (e *Engine) DetectChanges(ctx context.Context, g *dag.Graph, fingerprints map[string]string) (*dag.GraphChanges, *core.Generation, error) {
	gen, prev, err := e.latestSnapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	return dag.DetectChanges(prev, g, fingerprints), gen, nil
}

func (e *Engine) latestSnapshot(ctx context.Context) (*core.Generation, *dag.Snapshot, error) {
	gen, err := e.store.LatestGeneration(ctx)
	if errors.Is(err, core.ErrGraphNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load latest generation: %w", err)
	}

	nodes, err := e.store.ListGenerationNodes(ctx, gen.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load nodes of generation %d: %w", gen.ID, err)
	}
	edges, err := e.store.ListGenerationEdges(ctx, gen.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load edges of generation %d: %w", gen.ID, err)
	}
	return gen, &dag.Snapshot{Nodes: nodes, Edges: edges}, nil
}

// PersistNewGeneration stores g as a new generation on top of base, the
// generation its changes were detected against (nil when none existed). It
// fails with core.ErrGenerationConflict when another generation was persisted
// in the meantime.
func (e *Engine) PersistNewGeneration(ctx context.Context, g *dag.Graph, fingerprints map[string]string, base *core.Generation) (*core.Generation, error) {
	var baseID *int64
	if base != nil {
		baseID = &base.ID
	}

	snap := g.Snapshot(fingerprints)
	gen, err := e.store.CreateGenerationIfLatest(ctx, baseID, snap.Nodes, snap.Edges)
	if err != nil {
		return nil, fmt.Errorf("failed to persist graph: %w", err)
	}
	e.logger.Info("graph generation created",
		slog.Int64("generation_id", gen.ID),
		slog.Int("nodes", len(snap.Nodes)),
		slog.Int("edges", len(snap.Edges)))
	return gen, nil
}

// BuildPipeline schedules every node of g.
func (e *Engine) BuildPipeline(g *dag.Graph) (*core.Pipeline, error) {
	return pipeline.Build(g)
}

// BuildPipelineWithRanges schedules g, narrowing incremental adapters to the
// range not yet processed under generationID.
func (e *Engine) BuildPipelineWithRanges(ctx context.Context, g *dag.Graph, cfg *core.ProjectConfig, generationID int64) (*core.Pipeline, error) {
	return pipeline.BuildWithRanges(ctx, g, cfg, e.store, generationID)
}

// CalculateAffectedNodes returns the nodes that must be recomputed after changes.
func (e *Engine) CalculateAffectedNodes(g *dag.Graph, changes *dag.GraphChanges) []string {
	return dag.AffectedNodes(g, changes)
}

// MigrateResult describes the outcome of Migrate.
type MigrateResult struct {
	Generation *core.Generation
	// Created is true when a new generation was persisted.
	Created  bool
	Changes  *dag.GraphChanges
	Affected []string
	Graph    *dag.Graph
}

// maxMigrateAttempts bounds how often Migrate re-diffs after losing a race
// with a concurrent migrate.
const maxMigrateAttempts = 5

// Migrate loads the project, builds its graph and persists a new generation
// when it differs from the latest one.
func (e *Engine) Migrate(ctx context.Context) (*MigrateResult, error) {
	cfg, err := e.LoadProject()
	if err != nil {
		return nil, err
	}
	g, err := e.BuildGraph(cfg)
	if err != nil {
		return nil, err
	}
	fingerprints, err := project.Fingerprints(cfg)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		changes, gen, err := e.DetectChanges(ctx, g, fingerprints)
		if err != nil {
			return nil, err
		}

		res := &MigrateResult{Generation: gen, Changes: changes, Graph: g}
		if gen != nil && !changes.HasChanges() {
			e.logger.Info("graph unchanged", slog.Int64("generation_id", gen.ID))
			return res, nil
		}

		res.Generation, err = e.PersistNewGeneration(ctx, g, fingerprints, gen)
		if errors.Is(err, core.ErrGenerationConflict) && attempt < maxMigrateAttempts {
			e.logger.Debug("generation changed concurrently, detecting changes again",
				slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}
		res.Created = true
		res.Affected = e.CalculateAffectedNodes(g, changes)
		return res, nil
	}
}

// PlanOptions configures Plan.
type PlanOptions struct {
	// Target restricts the plan to one table and its ancestors.
	Target string
	// Save persists the plan as a pending pipeline.
	Save bool
}

// PlanResult is a scheduled pipeline for the latest generation.
type PlanResult struct {
	Generation *core.Generation
	Pipeline   *core.Pipeline
	// Run is set when the plan was saved.
	Run     *core.PipelineRun
	Graph   *dag.Graph
	Project *core.ProjectConfig
}

// Plan schedules the project against the latest generation. The project must
// be migrated first.
func (e *Engine) Plan(ctx context.Context, opts PlanOptions) (*PlanResult, error) {
	cfg, err := e.LoadProject()
	if err != nil {
		return nil, err
	}
	g, err := e.BuildGraph(cfg)
	if err != nil {
		return nil, err
	}
	fingerprints, err := project.Fingerprints(cfg)
	if err != nil {
		return nil, err
	}

	changes, gen, err := e.DetectChanges(ctx, g, fingerprints)
	if err != nil {
		return nil, err
	}
	if gen == nil {
		return nil, fmt.Errorf("no graph generation persisted, run migrate first: %w", core.ErrGraphNotFound)
	}
	if changes.HasChanges() {
		return nil, ErrPendingChanges
	}

	scheduled := g
	if opts.Target != "" {
		if scheduled, err = pipeline.Partial(g, opts.Target); err != nil {
			return nil, err
		}
	}

	p, err := e.BuildPipelineWithRanges(ctx, scheduled, cfg, gen.ID)
	if err != nil {
		return nil, err
	}

	res := &PlanResult{Generation: gen, Pipeline: p, Graph: g, Project: cfg}
	if !opts.Save {
		return res, nil
	}

	res.Run, err = e.store.CreatePipeline(ctx, gen.ID, p.Levels)
	if err != nil {
		return nil, fmt.Errorf("failed to save pipeline: %w", err)
	}
	e.logger.Info("pipeline saved",
		slog.Int64("pipeline_id", res.Run.ID),
		slog.Int64("generation_id", gen.ID),
		slog.Int("actions", p.ActionCount()))
	return res, nil
}

// Run executes a saved pipeline with exec.
func (e *Engine) Run(ctx context.Context, pipelineID int64, exec Executor) (*RunSummary, error) {
	cfg, err := e.LoadProject()
	if err != nil {
		return nil, err
	}
	g, err := e.BuildGraph(cfg)
	if err != nil {
		return nil, err
	}
	return e.Runner().Run(ctx, g, cfg, pipelineID, exec)
}

// Runner returns a runner over the engine's store.
func (e *Engine) Runner() *Runner {
	return NewRunner(RunnerConfig{
		Store:       e.store,
		DeltaDir:    e.deltaDir,
		MaxParallel: e.maxParallel,
		Logger:      e.logger,
	})
}
