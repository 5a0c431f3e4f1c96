package buildgraph

import (
	"sort"

	"github.com/pyr-sh/dag"
)

// Graph is the constructed task graph: every vertex is either a real
// task (script, target, or composite) or the reserved root sentinel.
type Graph struct {
	dag   dag.AcyclicGraph
	Tasks map[string]*Task
}

func newGraph() *Graph {
	return &Graph{Tasks: map[string]*Task{}}
}

func (g *Graph) addVertex(id string) {
	if !g.dag.HasVertex(id) {
		g.dag.Add(id)
	}
}

// connect records that `from` depends on `to` (from must run after to).
func (g *Graph) connect(from, to string) error {
	g.addVertex(from)
	g.addVertex(to)
	return g.dag.Connect(dag.BasicEdge(from, to))
}

// DependenciesOf returns the task IDs that the given task depends on
// directly.
func (g *Graph) DependenciesOf(id string) []string {
	names := vertexNames(g.dag.DownEdges(id))
	out := names[:0]
	for _, name := range names {
		if name != rootTaskVertex {
			out = append(out, name)
		}
	}
	return out
}

// DependentsOf returns the task IDs that directly depend on the given
// task.
func (g *Graph) DependentsOf(id string) []string {
	return vertexNames(g.dag.UpEdges(id))
}

// Vertices returns every task ID in the graph, including the reserved
// root sentinel.
func (g *Graph) Vertices() []string {
	vs := g.dag.Vertices()
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, dag.VertexName(v))
	}
	sort.Strings(out)
	return out
}

// Walk visits every real task (excluding the root sentinel) respecting
// dependency order, calling visit once per task ID. It does not itself
// bound concurrency; callers that want parallelism build their own
// scheduling on top of DependenciesOf/DependentsOf (see
// internal/executor), the same division of responsibility the teacher
// draws between core.Engine.Execute and its semaphore-bounded dag.Walk.
func (g *Graph) Walk(visit func(taskID string) error) []error {
	return g.dag.Walk(func(v dag.Vertex) error {
		id := dag.VertexName(v)
		if id == rootTaskVertex {
			return nil
		}
		return visit(id)
	})
}

// RenderDOT renders the graph as a Graphviz dot-format string, the same
// shape the teacher's graphvisualizer.GenerateDotString produces, for a
// caller to pipe through `dot` or paste into an online viewer.
func (g *Graph) RenderDOT() string {
	return string(g.dag.Dot(&dag.DotOpts{Verbose: true, DrawCycles: true}))
}

func vertexNames(s dag.Set) []string {
	out := make([]string, 0, len(s.List()))
	for _, v := range s.List() {
		out = append(out, dag.VertexName(v))
	}
	sort.Strings(out)
	return out
}
