package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/qflow/internal/ir"
)

// dependencyGraph maps question id → ids of the questions its rules read.
// Order keeps declaration order so analysis output is deterministic.
type dependencyGraph struct {
	edges map[string][]string
	order []string
}

// buildDependencyGraph constructs the question dependency graph.
//
// For each question, add an edge to the trigger of each of its rules.
// Step and group rules are not part of the graph: a step's questions always
// depend on the step, so a step rule reading its own question is expected,
// not a cycle. A group question is one node whatever its instance count, and
// instance triggers ("cocuk_ad_soyad_2") point at it. Dangling triggers are
// skipped.
func buildDependencyGraph(tpl *ir.Template) dependencyGraph {
	g := dependencyGraph{edges: make(map[string][]string)}

	declared := make(map[string]bool)
	for _, step := range tpl.Steps {
		for _, q := range step.Questions {
			declared[q.ID] = true
		}
	}
	node := func(trigger string, group *ir.Group) (string, bool) {
		switch {
		case group != nil && group.HasQuestion(trigger):
			return trigger, true
		case declared[trigger]:
			return trigger, true
		}
		if _, _, ok := tpl.ParseInstanceID(trigger); ok {
			return trigger[:strings.LastIndexByte(trigger, '_')], true
		}
		return "", false
	}
	addQuestion := func(q ir.Question, group *ir.Group) {
		if _, seen := g.edges[q.ID]; seen {
			return
		}
		g.order = append(g.order, q.ID)
		g.edges[q.ID] = []string{}
		for _, rule := range q.Rules {
			if target, ok := node(rule.Trigger, group); ok {
				g.edges[q.ID] = append(g.edges[q.ID], target)
			}
		}
	}

	for _, step := range tpl.Steps {
		for _, q := range step.Questions {
			addQuestion(q, nil)
		}
		for gi := range step.Groups {
			group := &step.Groups[gi]
			for _, q := range group.Questions {
				addQuestion(q, group)
			}
		}
	}

	return g
}

// hasSelfLoop checks if a node has an edge to itself.
func (g dependencyGraph) hasSelfLoop(node string) bool {
	for _, neighbor := range g.edges[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of question IDs.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(g dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// findCycles returns one warning per dependency cycle. Cycles are reported,
// never resolved: rules are evaluated once per submission against the
// answers as they stand.
func findCycles(g dependencyGraph) []Warning {
	var warnings []Warning
	for _, scc := range tarjanSCC(g) {
		switch {
		case len(scc) == 1 && g.hasSelfLoop(scc[0]):
			// Reported separately as W202.
		case len(scc) > 1:
			path := reconstructCyclePath(g.sortByDeclaration(scc), g)
			warnings = append(warnings, Warning{
				Code:    WarnCycle,
				Field:   path[0],
				Message: fmt.Sprintf("rule dependency cycle: %s", strings.Join(path, " → ")),
				Path:    path,
			})
		}
	}
	return warnings
}

func (g dependencyGraph) sortByDeclaration(nodes []string) []string {
	member := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		member[n] = true
	}
	sorted := make([]string, 0, len(nodes))
	for _, n := range g.order {
		if member[n] {
			sorted = append(sorted, n)
		}
	}
	return sorted
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, g dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range g.edges[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			break
		}

		path = append(path, next)

		if next == start {
			break
		}

		current = next
	}

	return path
}

// longestChain returns the number of edges on the longest acyclic dependency
// chain starting at node. Back edges are ignored.
func (g dependencyGraph) longestChain(node string, memo map[string]int, active map[string]bool) int {
	if d, ok := memo[node]; ok {
		return d
	}
	active[node] = true
	best := 0
	for _, next := range g.edges[node] {
		if active[next] {
			continue
		}
		best = max(best, 1+g.longestChain(next, memo, active))
	}
	delete(active, node)
	memo[node] = best
	return best
}
