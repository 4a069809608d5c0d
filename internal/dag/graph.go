package dag

import (
	"fmt"
	"sort"
)

// Graph is a directed graph keyed by node ID.
type Graph struct {
	nodes map[string]*node
}

// node is un-exported so callers work with string IDs only.
type node struct {
	id string
	// dependents holds the nodes that depend on this node (successors).
	dependents map[string]*node
}

// NewGraph creates an empty Graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// AddNode adds a node with the given ID. Adding an existing ID is a no-op.
func (g *Graph) AddNode(id string) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &node{
		id:         id,
		dependents: make(map[string]*node),
	}
}

// HasNode reports whether id is in the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// AddEdge records that toID depends on fromID. Both nodes must exist.
// A task listing itself as a dependency is a legal input, so self-edges are
// accepted and reported later as a one-node cycle.
func (g *Graph) AddEdge(fromID, toID string) error {
	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	fromNode.dependents[toID] = toNode
	return nil
}

// FindCycle returns the IDs along one cycle in the graph, starting and ending
// with the same ID, or nil if the graph is acyclic. Nodes are visited in
// sorted order so the result is deterministic.
func (g *Graph) FindCycle() []string {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(g.nodes))
	var path []string

	var visit func(n *node) []string
	visit = func(n *node) []string {
		state[n.id] = onStack
		path = append(path, n.id)

		for _, id := range sortedKeys(n.dependents) {
			switch state[id] {
			case onStack:
				// Trim the path to the start of the loop.
				for i, p := range path {
					if p == id {
						loop := append([]string{}, path[i:]...)
						return append(loop, id)
					}
				}
			case unvisited:
				if loop := visit(g.nodes[id]); loop != nil {
					return loop
				}
			}
		}

		path = path[:len(path)-1]
		state[n.id] = done
		return nil
	}

	for _, id := range sortedKeys(g.nodes) {
		if state[id] == unvisited {
			if loop := visit(g.nodes[id]); loop != nil {
				return loop
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]*node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
