package dag

import "sort"

// AffectedNodes returns the nodes that must be rerun for the given changes:
// every changed node, the target of every added or removed edge, and
// everything downstream of them in the current graph.
//
// Nodes still in the graph are returned in insertion order. Removed nodes
// are appended afterwards, sorted by name.
func AffectedNodes(g *Graph, changes *GraphChanges) []string {
	if !changes.HasChanges() {
		return nil
	}

	seed := make([]string, 0, len(changes.AddedNodes)+len(changes.ConfigChangedNodes)+
		len(changes.AddedEdges)+len(changes.RemovedEdges))
	seed = append(seed, changes.AddedNodes...)
	seed = append(seed, changes.ConfigChangedNodes...)
	for _, e := range changes.AddedEdges {
		seed = append(seed, e.To)
	}
	for _, e := range changes.RemovedEdges {
		seed = append(seed, e.To)
	}

	affected := g.Downstream(seed...)

	// Seeds outside the current graph have no downstream, but still count.
	var gone []string
	seen := make(map[string]bool)
	for _, name := range changes.RemovedNodes {
		if !g.Has(name) && !seen[name] {
			seen[name] = true
			gone = append(gone, name)
		}
	}
	for _, e := range changes.RemovedEdges {
		if !g.Has(e.To) && !seen[e.To] {
			seen[e.To] = true
			gone = append(gone, e.To)
		}
	}
	sort.Strings(gone)

	return append(affected, gone...)
}
