package dag

import (
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapflow/pkg/core"
	"github.com/leapstack-labs/leapflow/pkg/parser"
)

// Build constructs the dependency graph of a project.
//
// Adapters become source nodes and models become derived nodes, in
// configuration order. Each model's SQL is analysed for the tables it reads
// and every referenced table becomes an edge into the model. The graph is
// then validated: every reference must resolve to a node and the graph must
// be acyclic.
func Build(cfg *core.ProjectConfig, logger *slog.Logger) (*Graph, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	g := newGraph(len(cfg.Adapters) + len(cfg.Models))
	for _, a := range cfg.Adapters {
		if !g.addNode(Node{Name: a.Name, Kind: core.NodeKindAdapter}) {
			return nil, &DuplicateNodeError{Name: a.Name}
		}
	}
	for _, m := range cfg.Models {
		if !g.addNode(Node{Name: m.Name, Kind: core.NodeKindModel}) {
			return nil, &DuplicateNodeError{Name: m.Name}
		}
	}

	resolve := nameResolver(g.Names())

	var edges []Edge
	for _, m := range cfg.Models {
		deps, err := parser.Analyze(m.SQL)
		if err != nil {
			return nil, &SQLParseError{ModelName: m.Name, Message: err.Error(), Err: err}
		}
		if deps.NonQuery != "" {
			logger.Warn("model SQL is not a query, no dependencies extracted",
				slog.String("model", m.Name),
				slog.String("statement", deps.NonQuery))
			continue
		}

		seen := make(map[string]bool, len(deps.Tables))
		for _, ref := range deps.Tables {
			table := resolve(ref)
			if seen[table] {
				continue
			}
			seen[table] = true
			edges = append(edges, Edge{From: table, To: m.Name})
		}
		logger.Debug("extracted model dependencies",
			slog.String("model", m.Name),
			slog.Any("tables", deps.Tables))
	}

	if err := g.connect(edges); err != nil {
		return nil, err
	}
	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}

	logger.Debug("dependency graph built",
		slog.Int("nodes", g.Len()),
		slog.Int("edges", g.EdgeCount()))
	return g, nil
}

// nameResolver maps a table reference to the node it names. Table names are
// case-insensitive; an exact match wins, and a folded match is used only when
// a single node has that folded name.
func nameResolver(names []string) func(string) string {
	exact := make(map[string]bool, len(names))
	folded := make(map[string]string, len(names))
	ambiguous := make(map[string]bool)
	for _, name := range names {
		exact[name] = true
		key := strings.ToLower(name)
		if _, ok := folded[key]; ok {
			ambiguous[key] = true
		}
		folded[key] = name
	}
	return func(ref string) string {
		if exact[ref] {
			return ref
		}
		key := strings.ToLower(ref)
		if name, ok := folded[key]; ok && !ambiguous[key] {
			return name
		}
		return ref
	}
}
