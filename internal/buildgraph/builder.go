package buildgraph

import (
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/fluidbuild/fbx/internal/taskconfig"
	"github.com/fluidbuild/fbx/internal/util"
)

// pendingTask is a (package, task name) pair still waiting to be turned
// into graph vertices; it plays the role of the teacher's plain string
// traversalQueue entries, kept as a struct here since Phase B needs to
// track both halves independently while resolving dependsOn entries.
type pendingTask struct {
	pkg  string
	name string
}

// Build constructs the full task graph for the given matched packages
// and requested task names, following the five phases described in
// spec §4.3: seed, expand dependsOn transitively, create vertices
// (resolving lifecycle composites), resolve before/after as ordering
// hints, then finalize and weight.
func (c *Context) Build(matchedPackages []string, taskNames []string) (*Graph, error) {
	if len(matchedPackages) == 0 || len(taskNames) == 0 {
		return newGraph(), nil
	}

	g := newGraph()
	g.addVertex(rootTaskVertex)

	// Phase A: seed the traversal queue from (package, task) pairs,
	// tolerating a requested task name that simply doesn't exist in a
	// given package as long as it exists in at least one of them
	// (mirrors engine.go's Prepare: a MissingTaskError is swallowed here
	// and only turned into a hard error if nothing matched at all).
	queue := make([]pendingTask, 0, len(matchedPackages)*len(taskNames))
	missing := make(map[string]bool, len(taskNames))
	for _, name := range taskNames {
		missing[name] = true
	}
	for _, pkg := range matchedPackages {
		for _, name := range taskNames {
			if _, err := c.Tasks.Resolve(pkg, name); err != nil {
				var mte *taskconfig.MissingTaskError
				if isMissingTaskError(err, &mte) {
					continue
				}
				return nil, err
			}
			delete(missing, name)
			queue = append(queue, pendingTask{pkg: pkg, name: name})
		}
	}
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, graphErrorf("could not find the following tasks in any package: %s", strings.Join(names, ", "))
	}

	visited := map[string]bool{}

	// Phases B+C interleave in a single traversal-queue loop, exactly as
	// they do in engine.go's Prepare: each popped pending task is turned
	// into graph vertices (Phase C), and resolving its dependsOn entries
	// (Phase B) pushes new pending tasks onto the same queue.
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		visitKey := util.TaskID(next.pkg, next.name)
		if visited[visitKey] {
			continue
		}
		visited[visitKey] = true

		def, err := c.Tasks.Resolve(next.pkg, next.name)
		if err != nil {
			return nil, err
		}

		taskID, extra, err := c.createTask(g, next.pkg, next.name, def)
		if err != nil {
			return nil, err
		}
		if taskID == "" {
			// Phase C tie-break: the script body is the orchestrator's own
			// recursive-invocation sentinel. Per spec §4.3 this task is
			// simply not created; whoever reached it here (a direct
			// request or a dependsOn entry) sees "no such task" at this
			// name rather than a hard failure.
			continue
		}
		for _, e := range extra {
			if !visited[util.TaskID(e.pkg, e.name)] {
				queue = append(queue, e)
			}
		}
		if t := g.Tasks[taskID]; t.Definition != nil {
			// createTask may have rewritten the definition (the
			// release-group-root fan-out), so expand the stored one.
			def = t.Definition
		}

		deps, err := c.expandDependsOn(next.pkg, def.DependsOn)
		if err != nil {
			return nil, err
		}

		// A task's own dependsOn entries must gate the first thing that
		// actually runs -- for a lifecycle composite that's its pre
		// stage (or its run stage, if it has no pre hook), never the
		// composite handle itself, or the chain's later stages could
		// start running before the external dependency finished.
		gateID := taskID
		if task := g.Tasks[taskID]; task.Kind == KindComposite {
			if task.preStageID != "" {
				gateID = task.preStageID
			} else {
				gateID = task.runStageID
			}
		}

		for _, dep := range deps {
			if err := g.connect(gateID, dep.taskID); err != nil {
				return nil, err
			}
			if !visited[util.TaskID(dep.pkg, dep.name)] {
				queue = append(queue, pendingTask{pkg: dep.pkg, name: dep.name})
			}
		}
		if len(deps) == 0 && gateID == taskID {
			if err := g.connect(taskID, rootTaskVertex); err != nil {
				return nil, err
			}
		}
	}

	// Phase D: resolve before/after as weak ordering edges. Unlike
	// dependsOn, these never gate the hash or drive discovery of new
	// tasks -- they only reorder tasks already reachable from the
	// strict dependency graph, so this phase runs once over the
	// now-complete vertex set instead of feeding a queue.
	if err := c.resolveOrderingHints(g); err != nil {
		return nil, err
	}

	// Phase E: finalize -- validate acyclic, then assign weights.
	if err := computeWeights(g); err != nil {
		return nil, err
	}

	return g, nil
}

func isMissingTaskError(err error, target **taskconfig.MissingTaskError) bool {
	if mte, ok := err.(*taskconfig.MissingTaskError); ok {
		*target = mte
		return true
	}
	return false
}

// resolvedDep is a single concrete package-task a dependsOn entry
// expanded to.
type resolvedDep struct {
	taskID string
	pkg    string
	name   string
}

// expandDependsOn resolves the dependsOn entries of a task running in
// fromPkg into concrete (package, task) pairs, handling the "^task",
// "pkg#task", and bare "task" forms (spec §4.3 phase B). "^task" fans
// out to the same task name in every package fromPkg directly depends
// on; a bare name resolves within fromPkg itself.
func (c *Context) expandDependsOn(fromPkg string, entries []string) ([]resolvedDep, error) {
	var out []resolvedDep
	for _, entry := range entries {
		if entry == util.EllipsisSentinel {
			return nil, graphErrorf("package %q has an unresolved %q dependency entry; the config loader must substitute this before the build graph is constructed", fromPkg, util.EllipsisSentinel)
		}
		switch {
		case util.IsTopoRef(entry):
			name := util.StripTopoPrefix(entry)
			for _, depPkg := range c.Packages.DependenciesOf(fromPkg) {
				taskID, err := c.resolveOrSkip(depPkg, name)
				if err != nil {
					return nil, err
				}
				if taskID == "" {
					continue
				}
				out = append(out, resolvedDep{taskID: taskID, pkg: depPkg, name: name})
			}
		case util.IsPackageTask(entry):
			pkg, name := util.GetPackageTaskFromID(entry)
			if _, err := c.Tasks.Resolve(pkg, name); err != nil {
				return nil, graphErrorf("task %q depends on %q, which does not exist", util.TaskID(fromPkg, ""), entry)
			}
			out = append(out, resolvedDep{taskID: entry, pkg: pkg, name: name})
		default:
			taskID, err := c.resolveOrSkip(fromPkg, entry)
			if err != nil {
				return nil, err
			}
			if taskID == "" {
				return nil, graphErrorf("task %q depends on %q, which does not exist in package %q", entry, entry, fromPkg)
			}
			out = append(out, resolvedDep{taskID: taskID, pkg: fromPkg, name: entry})
		}
	}
	return out, nil
}

// resolveOrSkip returns the task ID for (pkg, name) if such a task is
// defined, or "" if it simply isn't -- used for "^task" fan-out, where
// a dependency package not participating in the named task is routine
// rather than an error (mirrors hasTopoDeps handling in engine.go,
// which silently omits dependency packages lacking the task).
func (c *Context) resolveOrSkip(pkg string, name string) (string, error) {
	if _, err := c.Tasks.Resolve(pkg, name); err != nil {
		var mte *taskconfig.MissingTaskError
		if isMissingTaskError(err, &mte) {
			return "", nil
		}
		return "", err
	}
	return util.TaskID(pkg, name), nil
}

// resolveCommand implements Phase C's tie-break #2/#3 (spec §4.3): an
// explicit `script: false` definition is a target/aggregator with no
// command; otherwise a declarative external-executable entry or the
// package's own scripts manifest supplies the command. Returns
// isTarget, the resolved command (empty for a target), a possibly
// rewritten definition (the release-group-root synthesis case), a
// "not created" flag for the recursive-invocation sentinel, and an
// error for a genuinely missing script.
func (c *Context) resolveCommand(pkg string, name string, def *taskconfig.TaskDefinition, declarative *taskconfig.DeclarativeTask) (isTarget bool, command string, resolved *taskconfig.TaskDefinition, notCreated bool, err error) {
	resolved = def

	if def.Script != nil && !*def.Script {
		return true, "", resolved, false, nil
	}
	if declarative != nil {
		// A declarative task's command is synthesized from its
		// executable + default args (spec §4.1 step 5); the package
		// manifest is not consulted.
		command = strings.TrimSpace(strings.Join(append([]string{declarative.Executable}, declarative.DefaultArgs...), " "))
		resolved = mergeDeclarative(def, declarative)
		return false, command, resolved, false, nil
	}

	var script string
	var hasScript bool
	if p, ok := c.Packages.Packages[pkg]; ok {
		script, hasScript = p.HasScript(name)
	}
	sentinel := hasScript && strings.HasPrefix(strings.TrimSpace(script), util.RecursiveInvocationSentinel)

	switch {
	case c.isReleaseGroupRoot(pkg) && (!hasScript || sentinel):
		// spec §4.1 step 4: a release-group root with no (or
		// self-recursive) script for this name gets a synthesized
		// fan-out default, unless the definition already carries its
		// own dependsOn (an explicit override wins).
		if len(def.DependsOn) == 0 {
			synthesized := *def
			synthesized.DependsOn = []string{util.TopoPrefix + name}
			resolved = &synthesized
		}
		return true, "", resolved, false, nil
	case sentinel:
		return false, "", resolved, true, nil
	case !hasScript:
		return false, "", resolved, false, graphErrorf("package %q has no script named %q", pkg, name)
	default:
		return false, script, resolved, false, nil
	}
}

// mergeDeclarative layers a matched DeclarativeTask's own
// inputs/outputs/caching configuration underneath the task table's
// definition (spec §4.4 point 1): a declarative executable knows its
// own glob shape ahead of time, since there's no package-local script
// body to derive one from, but an explicit entry in the task table
// still wins field-by-field so a repo can override a seeded tool's
// defaults without forking the whole definition.
func mergeDeclarative(def *taskconfig.TaskDefinition, declarative *taskconfig.DeclarativeTask) *taskconfig.TaskDefinition {
	merged := *def
	if len(merged.Inputs) == 0 {
		merged.Inputs = declarative.Inputs
	}
	if len(merged.Outputs) == 0 {
		merged.Outputs = declarative.Outputs
	}
	if len(merged.ExcludedOutputs) == 0 {
		merged.ExcludedOutputs = declarative.ExcludedOutputs
	}
	if len(merged.Env) == 0 {
		merged.Env = declarative.Env
	}
	if len(merged.PassthroughEnv) == 0 {
		merged.PassthroughEnv = declarative.PassthroughEnv
	}
	if !merged.Cache && declarative.Cache {
		merged.Cache = declarative.Cache
	}
	return &merged
}

// createTask materializes the graph vertex (or vertices, for a
// lifecycle composite) for (pkg, name) and registers it in g.Tasks,
// returning the externally-visible task ID dependents should connect
// to, plus any pre/post stages that still need their own dependsOn
// entries expanded by the caller's traversal queue (resolution decision
// recorded in DESIGN.md: the composite itself is the only dependable
// unit -- "^name" and direct "pkg#name" references always land on it,
// never on the pre/run/post stages -- but each stage's own dependsOn
// still participates in graph construction like any other task). A
// zero-value returned id (with a nil error) means the task was not
// created at all -- the recursive-invocation-sentinel case.
func (c *Context) createTask(g *Graph, pkg string, name string, def *taskconfig.TaskDefinition) (string, []pendingTask, error) {
	id := util.TaskID(pkg, name)
	if _, ok := g.Tasks[id]; ok {
		return id, nil, nil
	}

	declarative := c.Tasks.Declarative[name]
	isTarget, command, def, notCreated, err := c.resolveCommand(pkg, name, def, declarative)
	if err != nil {
		return "", nil, err
	}
	if notCreated {
		return "", nil, nil
	}

	hasPre, hasPost := false, false
	if !isTarget {
		_, hasPre = c.resolveLifecycleStage(pkg, "pre"+name)
		_, hasPost = c.resolveLifecycleStage(pkg, "post"+name)
	}

	if !hasPre && !hasPost {
		kind := KindScript
		if isTarget {
			kind = KindTarget
		}
		g.addVertex(id)
		g.Tasks[id] = &Task{
			ID:          id,
			Package:     pkg,
			Name:        name,
			Kind:        kind,
			Definition:  def,
			Declarative: declarative,
			Command:     command,
			State:       StateCreated,
		}
		return id, nil, nil
	}

	var extra []pendingTask

	runID := id + "::run"
	g.addVertex(runID)
	g.Tasks[runID] = &Task{
		ID:          runID,
		Package:     pkg,
		Name:        name,
		Kind:        KindScript,
		Definition:  def,
		Declarative: declarative,
		Command:     command,
		State:       StateCreated,
	}

	lastStage := runID
	composite := &Task{
		ID:         id,
		Package:    pkg,
		Name:       name,
		Kind:       KindComposite,
		State:      StateCreated,
		runStageID: runID,
	}

	if hasPre {
		preName := "pre" + name
		preID := util.TaskID(pkg, preName)
		if err := g.connect(runID, preID); err != nil {
			return "", nil, err
		}
		composite.preStageID = preID
		extra = append(extra, pendingTask{pkg: pkg, name: preName})
	}
	if hasPost {
		postName := "post" + name
		postID := util.TaskID(pkg, postName)
		if err := g.connect(postID, lastStage); err != nil {
			return "", nil, err
		}
		lastStage = postID
		composite.postStageID = postID
		extra = append(extra, pendingTask{pkg: pkg, name: postName})
	}

	g.addVertex(id)
	g.Tasks[id] = composite
	if err := g.connect(id, lastStage); err != nil {
		return "", nil, err
	}
	return id, extra, nil
}

// resolveLifecycleStage looks up a pre<name>/post<name> hook, treating
// "does not exist" as simply "no such hook" rather than an error.
func (c *Context) resolveLifecycleStage(pkg string, name string) (*taskconfig.TaskDefinition, bool) {
	def, err := c.Tasks.Resolve(pkg, name)
	if err != nil {
		return nil, false
	}
	return def, true
}

// resolveOrderingHints implements Phase D: before/after entries add
// weak edges purely to reorder already-discovered tasks. "*" fans out
// to every other task already created in the same package; "^*" fans
// out to every task already created in a directly-depended-on package.
// Both wildcard forms are legal only here, never in dependsOn.
func (c *Context) resolveOrderingHints(g *Graph) error {
	byPackage := map[string][]string{}
	runStageOwner := map[string]string{} // run-stage id -> owning composite id
	for id, t := range g.Tasks {
		if strings.Contains(id, "::") {
			continue // internal run-stage ids are not orderable targets
		}
		byPackage[t.Package] = append(byPackage[t.Package], id)
		if t.Kind == KindComposite && t.runStageID != "" {
			runStageOwner[t.runStageID] = id
		}
	}

	var merr *multierror.Error
	for id, t := range g.Tasks {
		if t.Definition == nil {
			continue
		}
		// Before/After always reorder the dependable handle (the
		// composite, if this task has pre/post hooks), never an
		// internal run stage directly.
		effectiveID := id
		if owner, ok := runStageOwner[id]; ok {
			effectiveID = owner
		}
		for _, entry := range t.Definition.After {
			if err := c.addOrderingEdge(g, effectiveID, t.Package, entry, byPackage, "after"); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
		for _, entry := range t.Definition.Before {
			if err := c.addReverseOrderingEdge(g, effectiveID, t.Package, entry, byPackage, "before"); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
	}
	return merr.ErrorOrNil()
}

// hasWildcardIn reports whether the task identified by id carries "*"
// in its own `field` ("before" or "after") list -- the mirrored-field
// test spec §4.3 Phase D uses to suppress "*" <-> "*" mutual edges.
func (g *Graph) hasWildcardIn(id string, field string) bool {
	t, ok := g.Tasks[id]
	if !ok || t.Definition == nil {
		return false
	}
	var list []string
	if field == "before" {
		list = t.Definition.Before
	} else {
		list = t.Definition.After
	}
	for _, entry := range list {
		if entry == util.WildcardTask {
			return true
		}
	}
	return false
}

// addOrderingEdge wires "after: [entry]" on task `id`: id must run
// after whatever entry resolves to.
func (c *Context) addOrderingEdge(g *Graph, id string, pkg string, entry string, byPackage map[string][]string, field string) error {
	targets, err := c.resolveOrderingTarget(pkg, entry, byPackage)
	if err != nil {
		return err
	}
	for _, target := range targets {
		if target == id {
			continue
		}
		if entry == util.WildcardTask && g.hasWildcardIn(target, field) {
			continue
		}
		if err := g.connect(id, target); err != nil {
			return err
		}
	}
	return nil
}

// addReverseOrderingEdge wires "before: [entry]" on task `id`: whatever
// entry resolves to must run after id.
func (c *Context) addReverseOrderingEdge(g *Graph, id string, pkg string, entry string, byPackage map[string][]string, field string) error {
	targets, err := c.resolveOrderingTarget(pkg, entry, byPackage)
	if err != nil {
		return err
	}
	for _, target := range targets {
		if target == id {
			continue
		}
		if entry == util.WildcardTask && g.hasWildcardIn(target, field) {
			continue
		}
		if err := g.connect(target, id); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) resolveOrderingTarget(pkg string, entry string, byPackage map[string][]string) ([]string, error) {
	switch {
	case entry == util.TopoWildcardTask:
		var out []string
		for _, depPkg := range c.Packages.DependenciesOf(pkg) {
			out = append(out, byPackage[depPkg]...)
		}
		return out, nil
	case entry == util.WildcardTask:
		return byPackage[pkg], nil
	case util.IsTopoRef(entry):
		name := util.StripTopoPrefix(entry)
		var out []string
		for _, depPkg := range c.Packages.DependenciesOf(pkg) {
			if id := util.TaskID(depPkg, name); contains(byPackage[depPkg], id) {
				out = append(out, id)
			}
		}
		return out, nil
	case util.IsPackageTask(entry):
		depPkg, _ := util.GetPackageTaskFromID(entry)
		if contains(byPackage[depPkg], entry) {
			return []string{entry}, nil
		}
		return nil, nil
	default:
		id := util.TaskID(pkg, entry)
		if contains(byPackage[pkg], id) {
			return []string{id}, nil
		}
		return nil, nil
	}
}

func contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}

const weightInProgress = -2

// computeWeights assigns each real task a weight (1 plus the sum of its
// dependents' weights, spec §4.6's priority key) via memoized DFS over
// the reversed (dependents) direction, detecting cycles with the same
// in-progress sentinel used in internal/pkggraph.
func computeWeights(g *Graph) error {
	state := map[string]int{}
	var path []string

	var visit func(id string) (int, error)
	visit = func(id string) (int, error) {
		if state[id] == weightInProgress {
			cycle := append(append([]string{}, path...), id)
			return 0, &CycleError{Cycle: cycle}
		}
		if t, ok := g.Tasks[id]; ok && t.Weight > 0 {
			return t.Weight, nil
		}

		state[id] = weightInProgress
		path = append(path, id)
		defer func() { path = path[:len(path)-1] }()

		sum := 0
		for _, dependent := range g.DependentsOf(id) {
			if dependent == id {
				continue
			}
			w, err := visit(dependent)
			if err != nil {
				return 0, err
			}
			sum += w
		}

		weight := 1 + sum
		if t, ok := g.Tasks[id]; ok {
			t.Weight = weight
		}
		state[id] = weight
		return weight, nil
	}

	for id := range g.Tasks {
		if _, err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
