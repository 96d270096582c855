package dag

import (
	"github.com/leapstack-labs/leapflow/pkg/core"
)

// Snapshot is a persisted graph generation as read back from the state store.
type Snapshot struct {
	Nodes []core.PersistedNode
	Edges []core.PersistedEdge
}

// GraphChanges is the difference between a persisted generation and the
// current graph. Edges are compared as (from, to) sets.
type GraphChanges struct {
	AddedNodes         []string
	RemovedNodes       []string
	AddedEdges         []Edge
	RemovedEdges       []Edge
	ConfigChangedNodes []string
}

// HasChanges reports whether anything differs.
func (c *GraphChanges) HasChanges() bool {
	if c == nil {
		return false
	}
	return len(c.AddedNodes) > 0 || len(c.RemovedNodes) > 0 ||
		len(c.AddedEdges) > 0 || len(c.RemovedEdges) > 0 ||
		len(c.ConfigChangedNodes) > 0
}

// DetectChanges diffs the current graph against the previous generation.
// A nil previous generation reports every node and edge as added.
// fingerprints maps node name to a digest of its configuration; nodes present
// in both generations whose digest differs are reported as config-changed.
// Returns nil when nothing changed.
func DetectChanges(prev *Snapshot, g *Graph, fingerprints map[string]string) *GraphChanges {
	changes := &GraphChanges{}

	if prev == nil {
		changes.AddedNodes = g.Names()
		changes.AddedEdges = g.Edges()
		if !changes.HasChanges() {
			return nil
		}
		return changes
	}

	prevNodes := make(map[string]core.PersistedNode, len(prev.Nodes))
	for _, n := range prev.Nodes {
		prevNodes[n.Name] = n
	}
	for _, name := range g.Names() {
		old, ok := prevNodes[name]
		switch {
		case !ok:
			changes.AddedNodes = append(changes.AddedNodes, name)
		case old.ConfigHash != fingerprints[name]:
			changes.ConfigChangedNodes = append(changes.ConfigChangedNodes, name)
		}
	}
	for _, n := range prev.Nodes {
		if !g.Has(n.Name) {
			changes.RemovedNodes = append(changes.RemovedNodes, n.Name)
		}
	}

	prevEdges := make(map[Edge]bool, len(prev.Edges))
	for _, e := range prev.Edges {
		prevEdges[Edge{From: e.From, To: e.To}] = true
	}
	curEdges := make(map[Edge]bool, g.EdgeCount())
	for _, e := range g.edges {
		curEdges[e] = true
		if !prevEdges[e] {
			changes.AddedEdges = append(changes.AddedEdges, e)
		}
	}
	for _, e := range prev.Edges {
		edge := Edge{From: e.From, To: e.To}
		if !curEdges[edge] {
			changes.RemovedEdges = append(changes.RemovedEdges, edge)
			// Guard against duplicate rows in the stored generation.
			curEdges[edge] = true
		}
	}

	if !changes.HasChanges() {
		return nil
	}
	return changes
}

// Snapshot converts the graph into its persisted form using the given
// configuration fingerprints.
func (g *Graph) Snapshot(fingerprints map[string]string) *Snapshot {
	s := &Snapshot{
		Nodes: make([]core.PersistedNode, 0, len(g.nodes)),
		Edges: make([]core.PersistedEdge, 0, len(g.edges)),
	}
	for _, n := range g.nodes {
		s.Nodes = append(s.Nodes, core.PersistedNode{
			Name:       n.Name,
			Kind:       n.Kind,
			ConfigHash: fingerprints[n.Name],
		})
	}
	for _, e := range g.edges {
		s.Edges = append(s.Edges, core.PersistedEdge{From: e.From, To: e.To})
	}
	return s
}
