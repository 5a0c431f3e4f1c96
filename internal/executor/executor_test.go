package executor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluidbuild/fbx/internal/buildgraph"
	"github.com/fluidbuild/fbx/internal/hashing"
	"github.com/fluidbuild/fbx/internal/pkggraph"
	"github.com/fluidbuild/fbx/internal/taskconfig"
	"github.com/fluidbuild/fbx/internal/turbopath"
)

func newPackageDir(t *testing.T, root string, name string) turbopath.AbsoluteSystemPath {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	return turbopath.AbsoluteSystemPathFromUpstream(dir)
}

func runGraph(t *testing.T, pkgs []*pkggraph.Package, dirs map[string]turbopath.AbsoluteSystemPath, table *taskconfig.Table, matched, tasks []string) *Executor {
	t.Helper()
	pg, err := pkggraph.New(hclog.NewNullLogger(), pkgs, nil)
	require.NoError(t, err)
	ctx := buildgraph.NewContext(pg, table, hclog.NewNullLogger())
	g, err := ctx.Build(matched, tasks)
	require.NoError(t, err)

	return New(g, hashing.NewMemo(), Options{
		Concurrency: 2,
		RepoRoot:    dirs["."],
		PackageDir:  func(pkg string) turbopath.AbsoluteSystemPath { return dirs[pkg] },
	})
}

func TestExecutorRunsLeafThenDependent(t *testing.T) {
	root := t.TempDir()
	leafDir := newPackageDir(t, root, "leaf")
	consumerDir := newPackageDir(t, root, "consumer")

	leaf := &pkggraph.Package{Name: "leaf", Version: "1.0.0", Dir: leafDir, Scripts: map[string]string{"build": "echo leaf > out.txt"}}
	consumer := &pkggraph.Package{Name: "consumer", Version: "1.0.0", Dir: consumerDir, Scripts: map[string]string{"build": "echo consumer > out.txt"}, Dependencies: []pkggraph.Dependency{{Name: "leaf", Range: "^1.0.0"}}}

	table := taskconfig.NewTable()
	require.NoError(t, table.AddGlobal("build", &taskconfig.TaskDefinition{DependsOn: []string{"^build"}, Cache: false}))

	dirs := map[string]turbopath.AbsoluteSystemPath{
		".":        turbopath.AbsoluteSystemPathFromUpstream(root),
		"leaf":     leafDir,
		"consumer": consumerDir,
	}
	e := runGraph(t, []*pkggraph.Package{leaf, consumer}, dirs, table, []string{"leaf", "consumer"}, []string{"build"})

	s, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, s.Failed())

	leafOut, err := os.ReadFile(filepath.Join(leafDir.ToString(), "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "leaf\n", string(leafOut))

	consumerOut, err := os.ReadFile(filepath.Join(consumerDir.ToString(), "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "consumer\n", string(consumerOut))
}

func TestExecutorCascadesNotRunOnFailure(t *testing.T) {
	root := t.TempDir()
	leafDir := newPackageDir(t, root, "leaf")
	consumerDir := newPackageDir(t, root, "consumer")

	leaf := &pkggraph.Package{Name: "leaf", Version: "1.0.0", Dir: leafDir, Scripts: map[string]string{"build": "exit 1"}}
	consumer := &pkggraph.Package{Name: "consumer", Version: "1.0.0", Dir: consumerDir, Scripts: map[string]string{"build": "echo consumer > out.txt"}, Dependencies: []pkggraph.Dependency{{Name: "leaf", Range: "^1.0.0"}}}

	table := taskconfig.NewTable()
	require.NoError(t, table.AddGlobal("build", &taskconfig.TaskDefinition{DependsOn: []string{"^build"}, Cache: false}))

	dirs := map[string]turbopath.AbsoluteSystemPath{
		".":        turbopath.AbsoluteSystemPathFromUpstream(root),
		"leaf":     leafDir,
		"consumer": consumerDir,
	}
	e := runGraph(t, []*pkggraph.Package{leaf, consumer}, dirs, table, []string{"leaf", "consumer"}, []string{"build"})

	s, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Failed())

	var leafState, consumerState buildgraph.State
	for _, o := range s.Outcomes() {
		switch o.TaskID {
		case "leaf#build":
			leafState = o.State
		case "consumer#build":
			consumerState = o.State
		}
	}
	assert.Equal(t, buildgraph.StateFailed, leafState)
	assert.Equal(t, buildgraph.StateNotRun, consumerState)

	_, err = os.Stat(filepath.Join(consumerDir.ToString(), "out.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestExecutorIncrementalCacheHitsOnSecondRun(t *testing.T) {
	root := t.TempDir()
	pkgDir := newPackageDir(t, root, "pkg")
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir.ToString(), "index.ts"), []byte("export {}"), 0644))

	pkg := &pkggraph.Package{Name: "pkg", Version: "1.0.0", Dir: pkgDir, Scripts: map[string]string{"build": "echo built > out.txt"}}
	table := taskconfig.NewTable()
	require.NoError(t, table.AddGlobal("build", &taskconfig.TaskDefinition{Cache: true, Inputs: []string{"**/*.ts"}}))

	dirs := map[string]turbopath.AbsoluteSystemPath{
		".":   turbopath.AbsoluteSystemPathFromUpstream(root),
		"pkg": pkgDir,
	}

	e1 := runGraph(t, []*pkggraph.Package{pkg}, dirs, table, []string{"pkg"}, []string{"build"})
	s1, err := e1.Run(context.Background())
	require.NoError(t, err)
	require.False(t, s1.Failed())
	require.Equal(t, buildgraph.StateSucceeded, s1.Outcomes()[0].State)

	e2 := runGraph(t, []*pkggraph.Package{pkg}, dirs, table, []string{"pkg"}, []string{"build"})
	s2, err := e2.Run(context.Background())
	require.NoError(t, err)
	require.False(t, s2.Failed())
	assert.Equal(t, buildgraph.StateUpToDate, s2.Outcomes()[0].State)
}

func TestExecutorDryRunNeverWritesOutputOrDonefile(t *testing.T) {
	root := t.TempDir()
	pkgDir := newPackageDir(t, root, "pkg")
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir.ToString(), "index.ts"), []byte("export {}"), 0644))

	pkg := &pkggraph.Package{Name: "pkg", Version: "1.0.0", Dir: pkgDir, Scripts: map[string]string{"build": "echo built > out.txt"}}
	table := taskconfig.NewTable()
	require.NoError(t, table.AddGlobal("build", &taskconfig.TaskDefinition{Cache: true, Inputs: []string{"**/*.ts"}}))

	pg, err := pkggraph.New(hclog.NewNullLogger(), []*pkggraph.Package{pkg}, nil)
	require.NoError(t, err)
	ctx := buildgraph.NewContext(pg, table, hclog.NewNullLogger())
	g, err := ctx.Build([]string{"pkg"}, []string{"build"})
	require.NoError(t, err)

	e := New(g, hashing.NewMemo(), Options{
		Concurrency: 2,
		RepoRoot:    turbopath.AbsoluteSystemPathFromUpstream(root),
		PackageDir:  func(string) turbopath.AbsoluteSystemPath { return pkgDir },
		DryRun:      true,
	})

	s, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, s.Failed())
	require.Len(t, s.Outcomes(), 1)
	assert.True(t, s.Outcomes()[0].DryRun)
	assert.Equal(t, buildgraph.StateSucceeded, s.Outcomes()[0].State)

	_, statErr := os.Stat(filepath.Join(pkgDir.ToString(), "out.txt"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(pkgDir.ToString(), "node_modules", ".fluid-build-task-done"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExecutorRunsDeclarativeTaskThroughInProcessRunner(t *testing.T) {
	root := t.TempDir()
	pkgDir := newPackageDir(t, root, "pkg")

	pkg := &pkggraph.Package{Name: "pkg", Version: "1.0.0"}
	table := taskconfig.NewTable()
	require.NoError(t, table.AddGlobal("check", &taskconfig.TaskDefinition{Cache: false}))
	table.Declarative["check"] = &taskconfig.DeclarativeTask{Executable: "noop-checker"}

	pg, err := pkggraph.New(hclog.NewNullLogger(), []*pkggraph.Package{pkg}, nil)
	require.NoError(t, err)
	ctx := buildgraph.NewContext(pg, table, hclog.NewNullLogger())
	g, err := ctx.Build([]string{"pkg"}, []string{"check"})
	require.NoError(t, err)

	var invoked int32
	e := New(g, hashing.NewMemo(), Options{
		Concurrency: 2,
		RepoRoot:    turbopath.AbsoluteSystemPathFromUpstream(root),
		PackageDir:  func(string) turbopath.AbsoluteSystemPath { return pkgDir },
		InProcessRunners: map[string]InProcessRunner{
			"noop-checker": func(context.Context, turbopath.AbsoluteSystemPath, []string, []string, io.Writer) error {
				atomic.AddInt32(&invoked, 1)
				return nil
			},
		},
	})

	s, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, s.Failed())
	assert.Equal(t, int32(1), atomic.LoadInt32(&invoked))

	_, statErr := os.Stat(filepath.Join(pkgDir.ToString(), "sh"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestWorkerPoolFallsBackToSubprocessWhenSaturated(t *testing.T) {
	pool := newWorkerPool(1)
	require.True(t, pool.tryAcquire("k"))
	assert.False(t, pool.tryAcquire("k"))
	pool.release("k")
	assert.True(t, pool.tryAcquire("k"))
}

func TestExecutorCancellationReturnsError(t *testing.T) {
	root := t.TempDir()
	pkgDir := newPackageDir(t, root, "pkg")

	pkg := &pkggraph.Package{Name: "pkg", Version: "1.0.0", Dir: pkgDir, Scripts: map[string]string{"build": "sleep 5"}}
	table := taskconfig.NewTable()
	require.NoError(t, table.AddGlobal("build", &taskconfig.TaskDefinition{Cache: false}))

	dirs := map[string]turbopath.AbsoluteSystemPath{
		".":   turbopath.AbsoluteSystemPathFromUpstream(root),
		"pkg": pkgDir,
	}
	e := runGraph(t, []*pkggraph.Package{pkg}, dirs, table, []string{"pkg"}, []string{"build"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := e.Run(ctx)
	assert.Error(t, err)
}
