package conveyor

import (
	"fmt"
	"sort"
)

// Graph is an adjacency index over a definition's activities and
// connections. Building one validates the structure: activity IDs must
// be unique and every connection endpoint must name a known activity.
// Cycles are permitted; workflows may loop.
type Graph struct {
	activities map[string]*ActivityDefinition
	children   map[string][]string
	parents    map[string][]string
}

// BuildGraph indexes and validates a definition's graph.
func BuildGraph(def *WorkflowDefinitionVersion) (*Graph, error) {
	g := &Graph{
		activities: make(map[string]*ActivityDefinition),
		children:   make(map[string][]string),
		parents:    make(map[string][]string),
	}

	for i := range def.Activities {
		a := &def.Activities[i]
		if a.ID == "" {
			return nil, fmt.Errorf("activity %d has no id", i)
		}
		if _, exists := g.activities[a.ID]; exists {
			return nil, fmt.Errorf("duplicate activity id: %s", a.ID)
		}
		g.activities[a.ID] = a
	}

	for _, c := range def.Connections {
		if _, ok := g.activities[c.Source]; !ok {
			return nil, fmt.Errorf("connection references unknown activity: %s", c.Source)
		}
		if _, ok := g.activities[c.Target]; !ok {
			return nil, fmt.Errorf("connection references unknown activity: %s", c.Target)
		}
		g.children[c.Source] = append(g.children[c.Source], c.Target)
		g.parents[c.Target] = append(g.parents[c.Target], c.Source)
	}
	return g, nil
}

func (g *Graph) Activity(id string) *ActivityDefinition { return g.activities[id] }
func (g *Graph) Children(id string) []string { return g.children[id] }
func (g *Graph) Parents(id string) []string { return g.parents[id] }

// Roots returns the activities with no inbound connections, sorted.
// These are the activities executed when an instance starts.
func (g *Graph) Roots() []string {
	var roots []string
	for id := range g.activities {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// Unreachable returns activities no path from any root can reach,
// sorted. An unreachable activity is not an error, but it will never
// execute and usually indicates a wiring mistake in the definition.
func (g *Graph) Unreachable() []string {
	seen := make(map[string]bool)
	queue := g.Roots()
	for _, r := range queue {
		seen[r] = true
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, c := range g.children[id] {
			if !seen[c] {
				seen[c] = true
				queue = append(queue, c)
			}
		}
	}
	var missing []string
	for id := range g.activities {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}

// ValidateGraph reports whether the definition's graph is structurally
// sound. Publishing rejects definitions that fail this check.
func ValidateGraph(def *WorkflowDefinitionVersion) error {
	_, err := BuildGraph(def)
	return err
}
