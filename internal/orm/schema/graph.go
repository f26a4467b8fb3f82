package schema

import (
	"fmt"
	"strings"
)

// DependencyGraph represents the creation dependencies between entity types.
// A type depends on its parents and on the targets of the foreign keys it
// stores.
type DependencyGraph struct {
	nodes []*EntityType
	edges map[string][]string // type -> dependencies
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph(order []*EntityType, types map[string]*EntityType) *DependencyGraph {
	graph := &DependencyGraph{
		nodes: order,
		edges: make(map[string][]string),
	}

	for _, t := range order {
		for _, name := range t.ParentNames {
			graph.addEdge(t.Name, name)
		}
		for _, attr := range t.Declared {
			if attr.Relation == nil || !holdsForeignKey(t, attr.Relation) {
				continue
			}
			if _, ok := types[attr.Relation.Target]; ok && attr.Relation.Target != t.Name {
				graph.addEdge(t.Name, attr.Relation.Target)
			}
		}
	}

	return graph
}

// holdsForeignKey reports whether the declaring side certainly stores the key
func holdsForeignKey(t *EntityType, rel *Relation) bool {
	switch rel.Kind {
	case ManyToOne:
		return rel.IsMapper != MapperFalse
	case OneToOne:
		return rel.IsMapper == MapperTrue || rel.MappedBy == t.Name
	default:
		return false
	}
}

func (g *DependencyGraph) addEdge(from, to string) {
	for _, existing := range g.edges[from] {
		if existing == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
}

// Dependencies returns the direct dependencies of a type
func (g *DependencyGraph) Dependencies(name string) []string {
	return g.edges[name]
}

// DetectCycles detects circular dependencies in the graph
func (g *DependencyGraph) DetectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		visited[node] = true
		recursionStack[node] = true
		path = append(path, node)

		for _, neighbor := range g.edges[node] {
			if !visited[neighbor] {
				dfs(neighbor, path)
			} else if recursionStack[neighbor] {
				for i, n := range path {
					if n == neighbor {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}

		recursionStack[node] = false
	}

	for _, node := range g.nodes {
		if !visited[node.Name] {
			dfs(node.Name, nil)
		}
	}

	return cycles
}

// TopologicalSort returns the types with dependencies first. Types caught in
// a cycle are appended in registration order.
func (g *DependencyGraph) TopologicalSort() []*EntityType {
	byName := make(map[string]*EntityType, len(g.nodes))
	outDegree := make(map[string]int, len(g.nodes))
	reverseEdges := make(map[string][]string)
	for _, node := range g.nodes {
		byName[node.Name] = node
	}
	for _, node := range g.nodes {
		for _, dep := range g.edges[node.Name] {
			if _, ok := byName[dep]; !ok {
				continue
			}
			outDegree[node.Name]++
			reverseEdges[dep] = append(reverseEdges[dep], node.Name)
		}
	}

	var queue []string
	for _, node := range g.nodes {
		if outDegree[node.Name] == 0 {
			queue = append(queue, node.Name)
		}
	}

	done := make(map[string]bool, len(g.nodes))
	result := make([]*EntityType, 0, len(g.nodes))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		done[name] = true
		result = append(result, byName[name])

		for _, dependent := range reverseEdges[name] {
			outDegree[dependent]--
			if outDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	for _, node := range g.nodes {
		if !done[node.Name] {
			result = append(result, node)
		}
	}

	return result
}

// FormatCycles formats cycle information for messages
func FormatCycles(cycles [][]string) string {
	var b strings.Builder
	for i, cycle := range cycles {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("  Cycle %d: %s -> %s",
			i+1,
			strings.Join(cycle, " -> "),
			cycle[0]))
	}
	return b.String()
}
