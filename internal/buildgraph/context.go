package buildgraph

import (
	"github.com/hashicorp/go-hclog"

	"github.com/fluidbuild/fbx/internal/pkggraph"
	"github.com/fluidbuild/fbx/internal/taskconfig"
)

// rootTaskVertex is the synthetic entry point connected to any task
// that has no dependencies of its own, so that the underlying DAG
// always has a well-defined set of roots to walk from. Mirrors the
// teacher's core.ROOT_NODE_NAME.
const rootTaskVertex = "___ROOT___"

// Context bundles the collaborators a build-graph construction needs:
// the package dependency graph (for "^task" fan-out) and the resolved
// task-definition table. Earlier drafts of this package carried this
// information as two separate types threaded through the builder
// (mirroring the teacher's own Context/CompleteGraph split); they were
// collapsed into this single struct, passed explicitly by parameter and
// never held as a package global, once it became clear nothing here
// needs independent lifetimes.
type Context struct {
	Packages *pkggraph.Graph
	Tasks    *taskconfig.Table
	Logger   hclog.Logger
}

// NewContext constructs a Context ready to Build build graphs from.
func NewContext(packages *pkggraph.Graph, tasks *taskconfig.Table, logger hclog.Logger) *Context {
	return &Context{
		Packages: packages,
		Tasks:    tasks,
		Logger:   logger.Named("buildgraph"),
	}
}

// isReleaseGroupRoot reports whether pkg is the root package of its own
// release group (spec §4.1 step 4). Looked up per package rather than
// compared against one repo-wide name, so a repo with several release
// groups synthesizes the fan-out default correctly for each group's own
// root instead of just one.
func (c *Context) isReleaseGroupRoot(pkg string) bool {
	p, ok := c.Packages.Packages[pkg]
	return ok && p.IsReleaseGroupRoot
}
