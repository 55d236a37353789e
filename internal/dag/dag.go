// Package dag provides directed graph operations over model tables.
// Edges run from a relationship's lookup (one) side to its many side, so a
// topological order lists dimensions before the facts that reference them.
package dag

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/daxport/internal/model"
	"github.com/leapstack-labs/daxport/pkg/sqlgen"
)

// Node represents a node in the graph.
type Node struct {
	// ID is the table name.
	ID string
	// Table is nil for nodes not backed by a model table.
	Table *model.Table
}

// Graph represents a directed graph of tables.
type Graph struct {
	nodes   map[string]*Node
	order   []string            // insertion order
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
	rels    []model.Relationship
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// FromModel builds the relationship graph of a model. Every table becomes a
// node; every active relationship between known tables adds an edge from
// ToTable to FromTable. Relationships naming unknown tables are skipped.
func FromModel(m *model.Model) *Graph {
	g := NewGraph()
	for i := range m.Tables {
		g.AddNode(m.Tables[i].Name, &m.Tables[i])
	}

	for _, rel := range m.Relationships {
		from, okFrom := m.Table(rel.FromTable)
		to, okTo := m.Table(rel.ToTable)
		if !okFrom || !okTo {
			continue
		}
		g.rels = append(g.rels, rel)
		if !rel.Active || from.Name == to.Name {
			continue
		}
		_ = g.AddEdge(to.Name, from.Name)
	}
	return g
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(id string, table *model.Table) {
	if _, exists := g.nodes[id]; !exists {
		g.nodes[id] = &Node{ID: id, Table: table}
		g.order = append(g.order, id)
		g.edges[id] = []string{}
		g.parents[id] = []string{}
	} else {
		g.nodes[id].Table = table
	}
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// GetParents returns the tables a node depends on.
func (g *Graph) GetParents(id string) []string {
	return g.parents[id]
}

// GetChildren returns the tables that depend on a node.
func (g *Graph) GetChildren(id string) []string {
	return g.edges[id]
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// HasCycle returns true if the graph contains a cycle, along with the cycle path.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.edges[id] {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, id := range g.order {
		if !visited[id] && dfs(id) {
			return true, cyclePath
		}
	}
	return false, nil
}

// TopologicalSort returns nodes with dependencies before dependents. Ties keep
// insertion order. Returns an error if the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %s", strings.Join(cyclePath, " -> "))
	}

	visited := make(map[string]bool)
	result := make([]*Node, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, parentID := range g.parents[id] {
			visit(parentID)
		}
		result = append(result, g.nodes[id])
	}

	for _, id := range g.order {
		visit(id)
	}
	return result, nil
}

// Order returns table names in dependency order. On a cycle it falls back to
// insertion order and returns the cycle error alongside.
func (g *Graph) Order() ([]string, error) {
	nodes, err := g.TopologicalSort()
	if err != nil {
		return slices.Clone(g.order), err
	}
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids, nil
}

// JoinHint describes the relationship between two tables as a join condition,
// e.g. "JOIN Customers ON Sales.CustomerID = Customers.CustomerID". Active
// relationships win over inactive ones.
func (g *Graph) JoinHint(from, to string) (string, bool) {
	var best *model.Relationship
	for i := range g.rels {
		rel := &g.rels[i]
		forward := strings.EqualFold(rel.FromTable, from) && strings.EqualFold(rel.ToTable, to)
		backward := strings.EqualFold(rel.FromTable, to) && strings.EqualFold(rel.ToTable, from)
		if !forward && !backward {
			continue
		}
		if best == nil || (rel.Active && !best.Active) {
			best = rel
		}
	}
	if best == nil {
		return "", false
	}

	hint := fmt.Sprintf("JOIN %s ON %s = %s",
		sqlgen.QuoteIdent(to),
		sqlgen.QualifiedName(best.FromTable, best.FromColumn),
		sqlgen.QualifiedName(best.ToTable, best.ToColumn))
	if !best.Active {
		hint += " (inactive relationship)"
	}
	return hint, true
}
