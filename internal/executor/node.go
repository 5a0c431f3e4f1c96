package executor

import "github.com/fluidbuild/fbx/internal/buildgraph"

// node is the scheduler's private bookkeeping for one graph vertex: how
// many of its dependencies are still outstanding, and who depends on
// it (so a completion can be fanned out without re-walking the graph).
type node struct {
	task        *buildgraph.Task
	pendingDeps int
	dependents  []string
}

// buildNodes indexes every real task in g by ID, filtering the
// synthetic root sentinel out of each task's dependency count (spec
// §4.3's root vertex is bookkeeping for the graph builder, not a task
// the executor waits on).
func buildNodes(g *buildgraph.Graph) map[string]*node {
	nodes := make(map[string]*node, len(g.Tasks))
	for id, task := range g.Tasks {
		nodes[id] = &node{task: task}
	}
	for id, n := range nodes {
		for _, dep := range g.DependenciesOf(id) {
			depNode, ok := nodes[dep]
			if !ok {
				continue // the root sentinel, not a real task
			}
			n.pendingDeps++
			depNode.dependents = append(depNode.dependents, id)
		}
	}
	return nodes
}
