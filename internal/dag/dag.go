// Package dag provides the table dependency graph of a project.
// It builds and validates the graph from adapters and models, diffs it
// against a persisted generation, and answers upstream/downstream queries.
package dag

import (
	"fmt"
	"sort"

	"github.com/leapstack-labs/leapflow/pkg/core"
)

// Node represents a table-producing unit in the graph.
type Node struct {
	Name string
	Kind core.NodeKind
}

// Edge is a dependency: To reads the table produced by From.
type Edge struct {
	From string
	To   string
}

// String renders the edge as "from -> to".
func (e Edge) String() string {
	return e.From + " -> " + e.To
}

// Graph is an immutable, validated directed acyclic graph.
// Nodes are stored in insertion order and addressed by index internally.
type Graph struct {
	nodes    []Node
	index    map[string]int
	children [][]int // node -> dependents, in edge insertion order
	parents  [][]int // node -> dependencies, in edge insertion order
	edges    []Edge
}

func newGraph(capacity int) *Graph {
	return &Graph{
		nodes:    make([]Node, 0, capacity),
		index:    make(map[string]int, capacity),
		children: make([][]int, 0, capacity),
		parents:  make([][]int, 0, capacity),
	}
}

// addNode adds a node. Returns false if the name already exists.
func (g *Graph) addNode(n Node) bool {
	if _, exists := g.index[n.Name]; exists {
		return false
	}
	g.index[n.Name] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.children = append(g.children, nil)
	g.parents = append(g.parents, nil)
	return true
}

// addEdge adds a directed edge between existing nodes, ignoring duplicates.
func (g *Graph) addEdge(from, to int) {
	for _, c := range g.children[from] {
		if c == to {
			return
		}
	}
	g.children[from] = append(g.children[from], to)
	g.parents[to] = append(g.parents[to], from)
	g.edges = append(g.edges, Edge{From: g.nodes[from].Name, To: g.nodes[to].Name})
}

// New builds a graph from explicit nodes and edges. Edges must reference
// existing nodes and the result must be acyclic. Duplicate edges collapse.
func New(nodes []Node, edges []Edge) (*Graph, error) {
	g := newGraph(len(nodes))
	for _, n := range nodes {
		if !g.addNode(n) {
			return nil, &DuplicateNodeError{Name: n.Name}
		}
	}
	if err := g.connect(edges); err != nil {
		return nil, err
	}
	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// connect validates that every edge references known nodes, then adds them.
func (g *Graph) connect(edges []Edge) error {
	for _, e := range edges {
		if _, ok := g.index[e.From]; !ok {
			return &NonExistentTableReferenceError{ModelName: e.To, TableName: e.From}
		}
		if _, ok := g.index[e.To]; !ok {
			return fmt.Errorf("edge %s: target node %q does not exist", e, e.To)
		}
	}
	for _, e := range edges {
		g.addEdge(g.index[e.From], g.index[e.To])
	}
	return nil
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinct edges in the graph.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Names returns all node names in insertion order.
func (g *Graph) Names() []string {
	out := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.Name
	}
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Node returns a node by name.
func (g *Graph) Node(name string) (Node, bool) {
	i, ok := g.index[name]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Has reports whether a node exists.
func (g *Graph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Parents returns the direct dependencies of a node.
func (g *Graph) Parents(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.names(g.parents[i])
}

// Children returns the direct dependents of a node.
func (g *Graph) Children(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.names(g.children[i])
}

func (g *Graph) names(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = g.nodes[id].Name
	}
	return out
}

// kahn runs Kahn's algorithm. It returns the topological order and the
// residual in-degree of every node; nodes left with in-degree > 0 sit on
// or behind a cycle.
func (g *Graph) kahn() ([]int, []int) {
	indegree := make([]int, len(g.nodes))
	for i := range g.nodes {
		indegree[i] = len(g.parents[i])
	}

	queue := make([]int, 0, len(g.nodes))
	for i, d := range indegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]int, 0, len(g.nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, c := range g.children[n] {
			indegree[c]--
			if indegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}
	return order, indegree
}

// TopologicalSort returns node names so that every dependency precedes its
// dependents. Ties keep insertion order.
func (g *Graph) TopologicalSort() []string {
	order, _ := g.kahn()
	return g.names(order)
}

// validateAcyclic fails with CircularDependencyError when Kahn's algorithm
// cannot order every node.
func (g *Graph) validateAcyclic() error {
	order, indegree := g.kahn()
	if len(order) == len(g.nodes) {
		return nil
	}

	residual := make([]bool, len(g.nodes))
	for i, d := range indegree {
		residual[i] = d > 0
	}

	cyclic := g.cyclicNodes(residual)
	err := &CircularDependencyError{}
	for i := range g.nodes {
		switch {
		case cyclic[i]:
			err.Nodes = append(err.Nodes, g.nodes[i].Name)
		case residual[i]:
			err.Blocked = append(err.Blocked, g.nodes[i].Name)
		}
	}
	return err
}

// cyclicNodes marks the members of every cycle within the residual nodes
// using Tarjan's strongly connected components.
func (g *Graph) cyclicNodes(residual []bool) []bool {
	n := len(g.nodes)
	cyclic := make([]bool, n)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}

	var stack []int
	next := 0

	var strongConnect func(v int)
	strongConnect = func(v int) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		selfLoop := false
		for _, w := range g.children[v] {
			if !residual[w] {
				continue
			}
			if w == v {
				selfLoop = true
			}
			if index[w] == -1 {
				strongConnect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] != index[v] {
			return
		}
		var component []int
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			component = append(component, w)
			if w == v {
				break
			}
		}
		if len(component) > 1 || selfLoop {
			for _, w := range component {
				cyclic[w] = true
			}
		}
	}

	for v := 0; v < n; v++ {
		if residual[v] && index[v] == -1 {
			strongConnect(v)
		}
	}
	return cyclic
}

// Downstream returns every node reachable from the given names, including
// the names themselves that exist in the graph, in insertion order.
func (g *Graph) Downstream(names ...string) []string {
	return g.reach(names, g.children)
}

// Ancestors returns every node the given names transitively depend on,
// including the names themselves that exist in the graph, in insertion order.
func (g *Graph) Ancestors(names ...string) []string {
	return g.reach(names, g.parents)
}

// reach runs a worklist BFS over the given adjacency.
func (g *Graph) reach(names []string, adjacency [][]int) []string {
	visited := make([]bool, len(g.nodes))
	var queue []int
	for _, name := range names {
		if i, ok := g.index[name]; ok && !visited[i] {
			visited[i] = true
			queue = append(queue, i)
		}
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[n] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	var out []string
	for i, v := range visited {
		if v {
			out = append(out, g.nodes[i].Name)
		}
	}
	return out
}

// Subgraph returns the graph induced by the given names. Unknown names are
// ignored. Insertion order is preserved.
func (g *Graph) Subgraph(names []string) *Graph {
	keep := make([]bool, len(g.nodes))
	for _, name := range names {
		if i, ok := g.index[name]; ok {
			keep[i] = true
		}
	}

	sub := newGraph(len(names))
	for i, n := range g.nodes {
		if keep[i] {
			sub.addNode(n)
		}
	}
	for _, e := range g.edges {
		if keep[g.index[e.From]] && keep[g.index[e.To]] {
			sub.addEdge(sub.index[e.From], sub.index[e.To])
		}
	}
	return sub
}

// Roots returns nodes with no dependencies, sorted by name.
func (g *Graph) Roots() []string {
	var roots []string
	for i, n := range g.nodes {
		if len(g.parents[i]) == 0 {
			roots = append(roots, n.Name)
		}
	}
	sort.Strings(roots)
	return roots
}
