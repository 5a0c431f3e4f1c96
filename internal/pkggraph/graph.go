package pkggraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver"
	mapset "github.com/deckarep/golang-set"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/pyr-sh/dag"
)

// CycleError is returned when the package dependency graph contains a
// cycle, making level assignment (and therefore task-graph construction)
// impossible.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic package dependency detected: %s", strings.Join(e.Cycle, " -> "))
}

// Graph is the cross-package dependency graph (spec §4.2). Vertices are
// package names; an edge from A to B means A declares a manifest
// dependency on B that resolved to a known workspace package with a
// satisfied version range.
type Graph struct {
	Packages      map[string]*Package
	ReleaseGroups map[string]*ReleaseGroup

	logger hclog.Logger

	dag    dag.AcyclicGraph
	levels map[string]int
}

const rootVertex = "___ROOT___"

// New builds the package graph from a flat package list, matching each
// package's declared dependencies against the known package set by name
// and semver range. A dependency whose range doesn't match the found
// package's version is logged and skipped rather than treated as an
// error: an out-of-range internal dependency is resolved externally
// instead, mirroring how a real package manager would behave.
func New(logger hclog.Logger, packages []*Package, releaseGroups []*ReleaseGroup) (*Graph, error) {
	g := &Graph{
		Packages:      make(map[string]*Package, len(packages)),
		ReleaseGroups: make(map[string]*ReleaseGroup, len(releaseGroups)),
		logger:        logger.Named("pkggraph"),
	}

	for _, pkg := range packages {
		g.Packages[pkg.Name] = pkg
		g.dag.Add(pkg.Name)
	}
	for _, rg := range releaseGroups {
		g.ReleaseGroups[rg.Name] = rg
	}

	var merr *multierror.Error
	for _, pkg := range packages {
		if err := g.connectPackage(pkg); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		return nil, err
	}

	levels, err := computeLevels(&g.dag)
	if err != nil {
		return nil, err
	}
	g.levels = levels

	return g, nil
}

func (g *Graph) connectPackage(pkg *Package) error {
	hasInternalDep := false
	for _, dep := range pkg.Dependencies {
		candidate, ok := g.Packages[dep.Name]
		if !ok {
			continue
		}
		if !versionSatisfies(dep.Range, candidate) {
			g.logger.Debug("internal dependency range not satisfied, treating as external",
				"pkg", pkg.Name, "dep", dep.Name, "range", dep.Range, "found", candidate.version())
			continue
		}
		hasInternalDep = true
		if err := g.dag.Connect(dag.BasicEdge(pkg.Name, dep.Name)); err != nil {
			return fmt.Errorf("package %s: %w", pkg.Name, err)
		}
	}
	if !hasInternalDep {
		// Leaf packages still connect to a synthetic root so that a Walk
		// over the whole graph sees every package exactly once.
		if !g.dag.HasVertex(rootVertex) {
			g.dag.Add(rootVertex)
		}
		if err := g.dag.Connect(dag.BasicEdge(pkg.Name, rootVertex)); err != nil {
			return fmt.Errorf("package %s: %w", pkg.Name, err)
		}
	}
	return nil
}

// versionSatisfies reports whether a declared dependency range is
// satisfied by the candidate package's version. A "workspace:" protocol
// range is always considered satisfied, matching the common package
// manager behavior of resolving such ranges to the local package
// unconditionally.
func versionSatisfies(rng string, candidate *Package) bool {
	if strings.HasPrefix(rng, "workspace:") {
		return true
	}
	version := candidate.version()
	if version == "" {
		return true
	}
	constraint, err := semver.NewConstraint(rng)
	if err != nil {
		// An unparseable range (e.g. a git URL or "*") is treated as
		// satisfied; we only want to catch genuine version mismatches.
		return true
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return true
	}
	return constraint.Check(v)
}

func (p *Package) version() string {
	return p.Version
}

// DependenciesOf returns the names of the packages that pkg directly
// depends on (the "dependent-package list" used when expanding a
// "^task" dependency string: spec §4.3 phase B instantiates the same
// task name in each of these packages before pkg's own task may run).
func (g *Graph) DependenciesOf(pkg string) []string {
	edges := g.dag.DownEdges(pkg)
	out := make([]string, 0, len(edges))
	for _, v := range edges.List() {
		name := dag.VertexName(v)
		if name == rootVertex {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DependentsOf returns the names of the packages that directly depend
// on pkg.
func (g *Graph) DependentsOf(pkg string) []string {
	edges := g.dag.UpEdges(pkg)
	out := make([]string, 0, len(edges))
	for _, v := range edges.List() {
		name := dag.VertexName(v)
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// MatchedPackages returns the set of package names with Matched set,
// expanded transitively to include every package any matched package
// depends on (spec §4.2's notion of the packages a run must consider,
// not just the ones the user named directly).
func (g *Graph) MatchedPackages() mapset.Set {
	result := mapset.NewSet()
	var include func(name string)
	include = func(name string) {
		if result.Contains(name) {
			return
		}
		result.Add(name)
		for _, dep := range g.DependenciesOf(name) {
			include(dep)
		}
	}
	for name, pkg := range g.Packages {
		if pkg.Matched {
			include(name)
		}
	}
	return result
}

// Level returns the package's depth in the dependency DAG: 0 for a leaf
// package (no internal dependencies), otherwise one more than the
// deepest dependency's level. The executor's work queue does not use it;
// it orders tasks by buildgraph Task.Weight.
func (g *Graph) Level(pkg string) int {
	return g.levels[pkg]
}

const inProgress = -2

// computeLevels assigns each vertex a level via memoized DFS. A vertex
// revisited while still in-progress indicates a cycle.
func computeLevels(g *dag.AcyclicGraph) (map[string]int, error) {
	levels := make(map[string]int)
	state := make(map[string]int)

	var path []string
	var visit func(name string) (int, error)
	visit = func(name string) (int, error) {
		if state[name] == inProgress {
			cycle := append(append([]string{}, path...), name)
			return 0, &CycleError{Cycle: cycle}
		}
		if lvl, done := levels[name]; done {
			return lvl, nil
		}

		state[name] = inProgress
		path = append(path, name)
		defer func() {
			path = path[:len(path)-1]
		}()

		best := -1
		for _, v := range g.DownEdges(name).List() {
			depName := dag.VertexName(v)
			if depName == name || depName == rootVertex {
				continue
			}
			depLevel, err := visit(depName)
			if err != nil {
				return 0, err
			}
			if depLevel > best {
				best = depLevel
			}
		}

		level := best + 1
		levels[name] = level
		state[name] = level
		return level, nil
	}

	for _, v := range g.Vertices() {
		name := dag.VertexName(v)
		if _, done := levels[name]; done {
			continue
		}
		if _, err := visit(name); err != nil {
			return nil, err
		}
	}
	return levels, nil
}
