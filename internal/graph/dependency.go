// Package graph builds the import dependency graph of scanned binaries.
package graph

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dominikbraun/graph"

	"github.com/mvp-joe/symseek/internal/symbol"
)

// ErrUnknownNode is returned when a query target is neither a scanned binary
// nor an imported library.
var ErrUnknownNode = errors.New("unknown binary or library")

// NodeKind distinguishes scanned binaries from libraries only known by name.
type NodeKind string

const (
	NodeBinary  NodeKind = "binary"
	NodeLibrary NodeKind = "library"
)

// Node is a vertex of the dependency graph.
type Node struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Kind NodeKind `json:"kind"`
	Path string   `json:"path,omitempty"`
}

// Dependency is a query result.
type Dependency struct {
	Node    *Node `json:"node"`
	Depth   int   `json:"depth"`
	Symbols int   `json:"symbols,omitempty"` // Imported symbols on the edge, depth 1 only
}

// DependencyGraph links binaries to the libraries they import from. An
// import of a library that was itself scanned points at that binary.
type DependencyGraph struct {
	graph graph.Graph[string, *Node]
}

// nodeID identifies libraries case-insensitively, as the Windows loader does.
func nodeID(name string) string {
	return strings.ToLower(name)
}

// Build creates the graph from scan results. Only symbols carrying a Library
// contribute edges.
func Build(results []symbol.SymbolsInBinary) (*DependencyGraph, error) {
	g := graph.New(func(n *Node) string { return n.ID }, graph.Directed())

	byName := make(map[string]string, len(results))
	for _, r := range results {
		name := filepath.Base(r.BinaryPath)
		node := &Node{ID: r.BinaryPath, Name: name, Kind: NodeBinary, Path: r.BinaryPath}
		if err := g.AddVertex(node); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return nil, fmt.Errorf("failed to add binary %s: %w", r.BinaryPath, err)
		}
		byName[nodeID(name)] = r.BinaryPath
	}

	type edgeKey struct{ from, to string }
	weights := map[edgeKey]int{}
	var order []edgeKey

	for _, r := range results {
		for _, s := range r.Symbols {
			if s.Library == "" || s.Implements {
				continue
			}
			to, ok := byName[nodeID(s.Library)]
			if !ok {
				to = nodeID(s.Library)
				node := &Node{ID: to, Name: s.Library, Kind: NodeLibrary}
				if err := g.AddVertex(node); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
					return nil, fmt.Errorf("failed to add library %s: %w", s.Library, err)
				}
			}
			key := edgeKey{from: r.BinaryPath, to: to}
			if _, seen := weights[key]; !seen {
				order = append(order, key)
			}
			weights[key]++
		}
	}

	for _, key := range order {
		if err := g.AddEdge(key.from, key.to, graph.EdgeWeight(weights[key])); err != nil {
			return nil, fmt.Errorf("failed to add edge %s -> %s: %w", key.from, key.to, err)
		}
	}

	return &DependencyGraph{graph: g}, nil
}

// Nodes returns all vertices ordered by ID.
func (d *DependencyGraph) Nodes() ([]*Node, error) {
	adjacency, err := d.graph.AdjacencyMap()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(adjacency))
	for id := range adjacency {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	nodes := make([]*Node, 0, len(ids))
	for _, id := range ids {
		n, err := d.graph.Vertex(id)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// resolve accepts a node ID, a binary path or a file/library name.
func (d *DependencyGraph) resolve(target string) (string, error) {
	if _, err := d.graph.Vertex(target); err == nil {
		return target, nil
	}
	if _, err := d.graph.Vertex(nodeID(target)); err == nil {
		return nodeID(target), nil
	}

	nodes, err := d.Nodes()
	if err != nil {
		return "", err
	}
	for _, n := range nodes {
		if strings.EqualFold(n.Name, target) {
			return n.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownNode, target)
}

// Dependencies returns what target imports from, transitively up to depth
// levels (depth <= 0 means 1).
func (d *DependencyGraph) Dependencies(target string, depth int) ([]Dependency, error) {
	adjacency, err := d.graph.AdjacencyMap()
	if err != nil {
		return nil, err
	}
	return d.walk(target, depth, adjacency)
}

// Dependents returns the binaries importing from target, transitively up to
// depth levels.
func (d *DependencyGraph) Dependents(target string, depth int) ([]Dependency, error) {
	predecessors, err := d.graph.PredecessorMap()
	if err != nil {
		return nil, err
	}
	return d.walk(target, depth, predecessors)
}

func (d *DependencyGraph) walk(target string, depth int, edges map[string]map[string]graph.Edge[string]) ([]Dependency, error) {
	start, err := d.resolve(target)
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = 1
	}

	var out []Dependency
	seen := map[string]bool{start: true}
	frontier := []string{start}

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		var next []string
		for _, id := range frontier {
			neighbours := make([]string, 0, len(edges[id]))
			for n := range edges[id] {
				neighbours = append(neighbours, n)
			}
			slices.Sort(neighbours)

			for _, n := range neighbours {
				if seen[n] {
					continue
				}
				seen[n] = true
				node, err := d.graph.Vertex(n)
				if err != nil {
					return nil, err
				}
				dep := Dependency{Node: node, Depth: level}
				if level == 1 {
					dep.Symbols = edges[id][n].Properties.Weight
				}
				out = append(out, dep)
				next = append(next, n)
			}
		}
		frontier = next
	}
	return out, nil
}

// LoadOrder lists nodes so that every node comes after everything it
// imports from. It fails when imports form a cycle.
func (d *DependencyGraph) LoadOrder() ([]string, error) {
	order, err := graph.StableTopologicalSort(d.graph, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, fmt.Errorf("failed to order dependencies: %w", err)
	}
	slices.Reverse(order)
	return order, nil
}

// Cycles returns the groups of nodes that import from each other.
func (d *DependencyGraph) Cycles() ([][]string, error) {
	components, err := graph.StronglyConnectedComponents(d.graph)
	if err != nil {
		return nil, err
	}
	var cycles [][]string
	for _, c := range components {
		if len(c) > 1 {
			slices.Sort(c)
			cycles = append(cycles, c)
		}
	}
	slices.SortFunc(cycles, func(a, b []string) int { return strings.Compare(a[0], b[0]) })
	return cycles, nil
}
