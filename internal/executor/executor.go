package executor

import (
	"container/heap"
	"context"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/fluidbuild/fbx/internal/buildgraph"
	"github.com/fluidbuild/fbx/internal/colorcache"
	"github.com/fluidbuild/fbx/internal/donefile"
	"github.com/fluidbuild/fbx/internal/hashing"
	"github.com/fluidbuild/fbx/internal/incremental"
	"github.com/fluidbuild/fbx/internal/logstreamer"
	"github.com/fluidbuild/fbx/internal/process"
	"github.com/fluidbuild/fbx/internal/summary"
	"github.com/fluidbuild/fbx/internal/turbopath"
	"github.com/fluidbuild/fbx/internal/util"
)

// Options configures an Executor run.
type Options struct {
	// Concurrency bounds how many KindScript tasks run at once. Values
	// <= 0 are treated as 1 (sequential).
	Concurrency int

	Logger hclog.Logger

	RepoRoot turbopath.AbsoluteSystemPath

	// PackageDir resolves a package name to its directory on disk.
	PackageDir func(pkg string) turbopath.AbsoluteSystemPath

	// Env returns the extra fingerprint state (resolved env var
	// KEY=value pairs, already filtered through a task's
	// Env/PassthroughEnv lists) to mix into both the cache fingerprint
	// and the actual child process environment for one task.
	Env func(pkg, task string) []string

	// OutputTailLines bounds how many lines of a failed task's output
	// are kept for the failure summary. Defaults to 20.
	OutputTailLines int

	// Quiet suppresses the live, package-prefixed streaming of task
	// output; the failure summary's captured tail is unaffected.
	Quiet bool

	// DryRun runs the incremental check for every leaf task but never
	// spawns a subprocess and never writes a donefile -- it classifies
	// the whole graph as if a real run happened and reports what would
	// execute (mirrors the teacher's `run --dry` / internal/run/dry_run.go,
	// scoped here to "classify, don't execute" since there is no cache
	// task summary/JSON output format to replicate).
	DryRun bool

	// InProcessRunners maps a DeclarativeTask's Executable name to a
	// native implementation that runs without forking a subprocess. A
	// task whose Declarative.Executable has no registered runner, or
	// finds the in-process pool for that kind saturated, falls back to
	// a normal subprocess spawn.
	InProcessRunners map[string]InProcessRunner

	// InProcessPoolSize bounds how many concurrent in-process runs of
	// the same executable kind are allowed at once. Defaults to 2.
	InProcessPoolSize int
}

// Executor drives a buildgraph.Graph to completion: a weighted
// priority queue admits ready tasks in spec §4.6's scheduling order, a
// bounded pool runs them concurrently, and dependents of a failed task
// are cascaded to NotRun rather than started (spec §4.7).
type Executor struct {
	graph *buildgraph.Graph
	memo  *hashing.Memo
	opts  Options

	manager *process.Manager
	sem     *util.Semaphore
	colors  *colorcache.ColorCache
	workers *workerPool

	storeMu sync.Mutex
	stores  map[string]*donefile.Store

	mu        sync.Mutex
	cond      *sync.Cond
	queue     readyQueue
	nodes     map[string]*node
	completed int
	total     int
	cancelled bool
	seq       int64

	wg      sync.WaitGroup
	summary *summary.Summary
}

// New constructs an Executor for the given graph.
func New(g *buildgraph.Graph, memo *hashing.Memo, opts Options) *Executor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.OutputTailLines <= 0 {
		opts.OutputTailLines = 20
	}
	if opts.Env == nil {
		opts.Env = func(string, string) []string { return nil }
	}
	e := &Executor{
		graph:   g,
		memo:    memo,
		opts:    opts,
		manager: process.NewManager(opts.Logger),
		sem:     util.NewSemaphore(opts.Concurrency),
		colors:  colorcache.New(),
		workers: newWorkerPool(opts.InProcessPoolSize),
		stores:  map[string]*donefile.Store{},
		nodes:   buildNodes(g),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Run executes every task in the graph, respecting dependency order,
// and returns the completed run summary. A cancelled ctx stops new
// tasks from starting and kills any in-flight subprocesses; tasks that
// never got a chance to run are recorded as NotRun.
func (e *Executor) Run(ctx context.Context) (*summary.Summary, error) {
	e.summary = summary.New(time.Now())
	e.total = len(e.nodes)
	if e.total == 0 {
		e.summary.Close(time.Now())
		return e.summary, nil
	}

	ids := make([]string, 0, len(e.nodes))
	for id := range e.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	e.mu.Lock()
	for _, id := range ids {
		if e.nodes[id].pendingDeps == 0 {
			e.pushReadyLocked(e.nodes[id].task)
		}
	}
	e.mu.Unlock()

	watchDone := make(chan struct{})
	go e.watchCancellation(ctx, watchDone)

	e.dispatch(ctx)
	e.wg.Wait()
	close(watchDone)

	e.summary.Close(time.Now())
	if e.isCancelled() {
		return e.summary, ctx.Err()
	}
	return e.summary, nil
}

func (e *Executor) watchCancellation(ctx context.Context, done chan struct{}) {
	select {
	case <-ctx.Done():
		e.mu.Lock()
		e.cancelled = true
		e.mu.Unlock()
		e.cond.Broadcast()
		e.manager.Close()
	case <-done:
	}
}

func (e *Executor) isCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// dispatch is the single scheduling loop: pop the highest-priority
// ready task, hand it to a goroutine gated by the worker semaphore.
// Running this loop itself ungated (rather than inside the bounded
// pool) keeps priority order intact -- goroutines queue on the
// semaphore in the order dispatch launched them, which is the
// semaphore's actual FIFO admission order.
func (e *Executor) dispatch(ctx context.Context) {
	for {
		e.mu.Lock()
		for e.queue.Len() == 0 && e.completed < e.total {
			e.cond.Wait()
		}
		if e.completed >= e.total {
			e.mu.Unlock()
			return
		}
		item := heap.Pop(&e.queue).(*readyItem)
		cancelled := e.cancelled
		e.mu.Unlock()

		if cancelled {
			e.complete(item.task, summary.TaskOutcome{
				TaskID:  item.task.ID,
				Package: item.task.Package,
				Task:    item.task.Name,
				State:   buildgraph.StateNotRun,
			})
			continue
		}

		queuedAt := time.Now()
		e.wg.Add(1)
		go func(task *buildgraph.Task) {
			defer e.wg.Done()
			e.sem.Acquire()
			defer e.sem.Release()
			e.runNode(ctx, task, queuedAt)
		}(item.task)
	}
}

// pushReadyLocked enqueues task as ready to run. Caller holds e.mu.
func (e *Executor) pushReadyLocked(task *buildgraph.Task) {
	task.State = buildgraph.StateReady
	heap.Push(&e.queue, &readyItem{task: task, seq: e.seq})
	e.seq++
	e.cond.Broadcast()
}

func (e *Executor) runNode(ctx context.Context, task *buildgraph.Task, queuedAt time.Time) {
	task.State = buildgraph.StateRunning
	switch task.Kind {
	case buildgraph.KindTarget, buildgraph.KindComposite:
		e.complete(task, summary.TaskOutcome{
			TaskID:    task.ID,
			Package:   task.Package,
			Task:      task.Name,
			State:     buildgraph.StateSucceeded,
			QueueWait: time.Since(queuedAt),
		})
		return
	}
	e.runScript(ctx, task, queuedAt)
}

func (e *Executor) runScript(ctx context.Context, task *buildgraph.Task, queuedAt time.Time) {
	start := time.Now()
	pkgDir := e.opts.PackageDir(task.Package)
	extra := e.opts.Env(task.Package, task.Name)

	var classification incremental.Classification
	var files []hashing.FileHash
	var envHash string

	if task.Definition.Cache {
		store := e.storeFor(pkgDir)
		in := incremental.Inputs{
			PackageName:       task.Package,
			TaskName:          task.Name,
			Command:           task.Command,
			RepoRoot:          e.opts.RepoRoot,
			PackageDir:        pkgDir,
			InputGlobs:        task.Definition.Inputs,
			OutputGlobs:       task.Definition.Outputs,
			Extra:             extra,
			HasDeclaredInputs: task.Declarative != nil || len(task.Definition.Inputs) > 0,
		}
		result, err := incremental.Check(e.memo, store, task.ID, in)
		if err != nil {
			e.fail(task, queuedAt, start, err, nil)
			return
		}
		classification, files, envHash = result.Classification, result.Files, result.EnvHash

		if classification == incremental.ClassificationCacheHitInitial {
			e.complete(task, summary.TaskOutcome{
				TaskID:         task.ID,
				Package:        task.Package,
				Task:           task.Name,
				State:          buildgraph.StateUpToDate,
				Classification: classification,
				QueueWait:      start.Sub(queuedAt),
			})
			return
		}
	} else {
		classification = incremental.ClassificationNonIncremental
	}

	if e.opts.DryRun {
		e.complete(task, summary.TaskOutcome{
			TaskID:         task.ID,
			Package:        task.Package,
			Task:           task.Name,
			State:          buildgraph.StateSucceeded,
			Classification: classification,
			QueueWait:      start.Sub(queuedAt),
			DryRun:         true,
		})
		return
	}

	out := newTailBuffer(e.opts.OutputTailLines)
	err := e.runCommand(ctx, task, pkgDir, extra, out)
	duration := time.Since(start)
	if err != nil {
		e.fail(task, queuedAt, start, err, out.Lines())
		return
	}

	if task.Definition.Cache && classification != incremental.ClassificationNonIncremental {
		if werr := e.writeDonefile(pkgDir, task.ID, &donefile.Record{Command: task.Command, EnvHash: envHash, Files: files}); werr != nil {
			e.opts.Logger.Warn("failed to write donefile", "task", task.ID, "error", werr)
		}
	}

	e.complete(task, summary.TaskOutcome{
		TaskID:         task.ID,
		Package:        task.Package,
		Task:           task.Name,
		State:          buildgraph.StateSucceeded,
		Classification: classification,
		QueueWait:      start.Sub(queuedAt),
		Duration:       duration,
	})
}

// runCommand runs task's command, preferring a registered in-process
// runner for a declarative task's executable when one exists and the
// worker pool for that kind isn't saturated; otherwise (including every
// plain script task) it spawns a subprocess exactly as before.
func (e *Executor) runCommand(ctx context.Context, task *buildgraph.Task, dir turbopath.AbsoluteSystemPath, extraEnv []string, out *tailBuffer) error {
	var w io.Writer = out
	if !e.opts.Quiet {
		prefix := e.colors.PrefixWithColor(task.Package, task.Package+":"+task.Name)
		w = io.MultiWriter(out, logstreamer.NewPrettyStdoutWriter(prefix))
	}

	if task.Declarative != nil {
		if runner, ok := e.opts.InProcessRunners[task.Declarative.Executable]; ok {
			if e.workers.tryAcquire(task.Declarative.Executable) {
				defer e.workers.release(task.Declarative.Executable)
				return runner(ctx, dir, task.Declarative.DefaultArgs, extraEnv, w)
			}
		}
	}

	cmd := exec.Command("sh", "-c", task.Command)
	cmd.Dir = dir.ToString()
	cmd.Env = append(os.Environ(), extraEnv...)
	cmd.Stdout = w
	cmd.Stderr = w
	return e.manager.Exec(cmd)
}

func (e *Executor) fail(task *buildgraph.Task, queuedAt, start time.Time, err error, tail []string) {
	e.complete(task, summary.TaskOutcome{
		TaskID:     task.ID,
		Package:    task.Package,
		Task:       task.Name,
		State:      buildgraph.StateFailed,
		QueueWait:  start.Sub(queuedAt),
		Duration:   time.Since(start),
		Err:        err,
		OutputTail: tail,
	})
}

// complete records a task's terminal state, fans out to its
// dependents (cascading NotRun if this task failed, or admitting a
// dependent once its last pending dependency clears), and reports the
// outcome to the run summary.
func (e *Executor) complete(task *buildgraph.Task, outcome summary.TaskOutcome) {
	var cascaded []summary.TaskOutcome

	e.mu.Lock()
	task.State = outcome.State
	e.completed++
	poisoned := outcome.State == buildgraph.StateFailed || outcome.State == buildgraph.StateNotRun
	node := e.nodes[task.ID]
	for _, depID := range node.dependents {
		dep := e.nodes[depID]
		if poisoned {
			e.cascadeNotRunLocked(dep, &cascaded)
			continue
		}
		dep.pendingDeps--
		if dep.pendingDeps == 0 {
			if e.cancelled {
				e.cascadeNotRunLocked(dep, &cascaded)
			} else {
				e.pushReadyLocked(dep.task)
			}
		}
	}
	e.cond.Broadcast()
	e.mu.Unlock()

	e.summary.Record(outcome)
	for _, o := range cascaded {
		e.summary.Record(o)
	}
}

// cascadeNotRunLocked marks n and every task downstream of it NotRun,
// without running them, appending their outcomes to out for the
// caller to report once the lock is released. Caller holds e.mu.
// Idempotent: a diamond dependency graph can reach the same node from
// two poisoned parents.
func (e *Executor) cascadeNotRunLocked(n *node, out *[]summary.TaskOutcome) {
	if n.task.State.Terminal() {
		return
	}
	n.task.State = buildgraph.StateNotRun
	e.completed++
	*out = append(*out, summary.TaskOutcome{
		TaskID:  n.task.ID,
		Package: n.task.Package,
		Task:    n.task.Name,
		State:   buildgraph.StateNotRun,
	})
	for _, depID := range n.dependents {
		e.cascadeNotRunLocked(e.nodes[depID], out)
	}
}

// writeDonefile persists rec, retrying a transient write failure (a
// concurrent task in the same package racing the node_modules/
// directory into existence, a momentary EBUSY) a few times with
// backoff before giving up -- a successful build shouldn't be
// reported as stale just because one donefile write hit a hiccup.
func (e *Executor) writeDonefile(pkgDir turbopath.AbsoluteSystemPath, taskID string, rec *donefile.Record) error {
	store := e.storeFor(pkgDir)
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	return backoff.Retry(func() error {
		return store.Write(taskID, rec)
	}, policy)
}

func (e *Executor) storeFor(pkgDir turbopath.AbsoluteSystemPath) *donefile.Store {
	e.storeMu.Lock()
	defer e.storeMu.Unlock()
	key := pkgDir.ToString()
	if s, ok := e.stores[key]; ok {
		return s
	}
	s := donefile.NewStore(pkgDir)
	e.stores[key] = s
	return s
}
