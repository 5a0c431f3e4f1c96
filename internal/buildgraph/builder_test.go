package buildgraph

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluidbuild/fbx/internal/pkggraph"
	"github.com/fluidbuild/fbx/internal/taskconfig"
)

func testContext(t *testing.T, packages []*pkggraph.Package, table *taskconfig.Table) *Context {
	t.Helper()
	g, err := pkggraph.New(hclog.NewNullLogger(), packages, nil)
	require.NoError(t, err)
	return NewContext(g, table, hclog.NewNullLogger())
}

func TestBuildSimpleDependsOnChain(t *testing.T) {
	leaf := &pkggraph.Package{Name: "leaf", Version: "1.0.0", Scripts: map[string]string{"build": "tsc"}}
	consumer := &pkggraph.Package{Name: "consumer", Version: "1.0.0", Scripts: map[string]string{"build": "tsc"}, Dependencies: []pkggraph.Dependency{{Name: "leaf", Range: "^1.0.0"}}}

	table := taskconfig.NewTable()
	require.NoError(t, table.AddGlobal("build", &taskconfig.TaskDefinition{DependsOn: []string{"^build"}, Cache: true}))

	ctx := testContext(t, []*pkggraph.Package{leaf, consumer}, table)
	g, err := ctx.Build([]string{"leaf", "consumer"}, []string{"build"})
	require.NoError(t, err)

	assert.Contains(t, g.Tasks, "consumer#build")
	assert.Contains(t, g.Tasks, "leaf#build")
	assert.Equal(t, []string{"leaf#build"}, g.DependenciesOf("consumer#build"))
	assert.Equal(t, "tsc", g.Tasks["leaf#build"].Command)
	assert.Equal(t, KindScript, g.Tasks["leaf#build"].Kind)
}

func TestBuildMissingScriptFails(t *testing.T) {
	pkg := &pkggraph.Package{Name: "my-pkg", Version: "1.0.0"}
	table := taskconfig.NewTable()
	require.NoError(t, table.AddGlobal("build", &taskconfig.TaskDefinition{Cache: true}))

	ctx := testContext(t, []*pkggraph.Package{pkg}, table)
	_, err := ctx.Build([]string{"my-pkg"}, []string{"build"})
	assert.Error(t, err)
}

func TestBuildExplicitTargetHasNoCommand(t *testing.T) {
	pkg := &pkggraph.Package{Name: "my-pkg", Version: "1.0.0"}
	isScript := false
	table := taskconfig.NewTable()
	require.NoError(t, table.AddGlobal("lint", &taskconfig.TaskDefinition{Script: &isScript}))

	ctx := testContext(t, []*pkggraph.Package{pkg}, table)
	g, err := ctx.Build([]string{"my-pkg"}, []string{"lint"})
	require.NoError(t, err)

	task := g.Tasks["my-pkg#lint"]
	require.NotNil(t, task)
	assert.Equal(t, KindTarget, task.Kind)
	assert.Empty(t, task.Command)
}

func TestBuildReleaseGroupRootSynthesizesFanOut(t *testing.T) {
	root := &pkggraph.Package{Name: "//", Version: "1.0.0", IsReleaseGroupRoot: true, Dependencies: []pkggraph.Dependency{{Name: "child", Range: "workspace:*"}}}
	child := &pkggraph.Package{Name: "child", Version: "1.0.0", Scripts: map[string]string{"build": "tsc"}}

	table := taskconfig.NewTable()
	require.NoError(t, table.AddGlobal("build", &taskconfig.TaskDefinition{Cache: true}))

	ctx := testContext(t, []*pkggraph.Package{root, child}, table)
	g, err := ctx.Build([]string{"//"}, []string{"build"})
	require.NoError(t, err)

	task := g.Tasks["//#build"]
	require.NotNil(t, task)
	assert.Equal(t, KindTarget, task.Kind)
	assert.Equal(t, []string{"^build"}, task.Definition.DependsOn)
}

func TestBuildLifecycleComposite(t *testing.T) {
	pkg := &pkggraph.Package{Name: "my-pkg", Version: "1.0.0", Scripts: map[string]string{"build": "tsc", "prebuild": "echo pre", "postbuild": "echo post"}}

	table := taskconfig.NewTable()
	require.NoError(t, table.AddGlobal("build", &taskconfig.TaskDefinition{Cache: true}))
	require.NoError(t, table.AddGlobal("prebuild", &taskconfig.TaskDefinition{Cache: true}))
	require.NoError(t, table.AddGlobal("postbuild", &taskconfig.TaskDefinition{Cache: true}))

	ctx := testContext(t, []*pkggraph.Package{pkg}, table)
	g, err := ctx.Build([]string{"my-pkg"}, []string{"build"})
	require.NoError(t, err)

	composite, ok := g.Tasks["my-pkg#build"]
	require.True(t, ok)
	assert.Equal(t, KindComposite, composite.Kind)
	assert.NotEmpty(t, composite.preStageID)
	assert.NotEmpty(t, composite.postStageID)

	assert.Contains(t, g.Tasks, "my-pkg#prebuild")
	assert.Contains(t, g.Tasks, "my-pkg#postbuild")
}

func TestBuildWildcardBeforeExcludesMutualWildcard(t *testing.T) {
	pkg := &pkggraph.Package{Name: "pkg", Version: "1.0.0", Scripts: map[string]string{"a": "echo a", "b": "echo b", "c": "echo c"}}

	table := taskconfig.NewTable()
	require.NoError(t, table.AddGlobal("a", &taskconfig.TaskDefinition{Before: []string{"*"}, Cache: true}))
	require.NoError(t, table.AddGlobal("b", &taskconfig.TaskDefinition{Before: []string{"*"}, Cache: true}))
	require.NoError(t, table.AddGlobal("c", &taskconfig.TaskDefinition{Cache: true}))

	ctx := testContext(t, []*pkggraph.Package{pkg}, table)
	g, err := ctx.Build([]string{"pkg"}, []string{"a", "b", "c"})
	require.NoError(t, err)

	assert.NotContains(t, g.DependenciesOf("pkg#a"), "pkg#b")
	assert.NotContains(t, g.DependenciesOf("pkg#b"), "pkg#a")
	assert.ElementsMatch(t, []string{"pkg#a", "pkg#b"}, g.DependenciesOf("pkg#c"))
}

func TestBuildDeclarativeTaskSuppliesCommandAndGlobs(t *testing.T) {
	pkg := &pkggraph.Package{Name: "my-pkg", Version: "1.0.0"}

	table := taskconfig.NewTable()
	require.NoError(t, table.AddGlobal("tsc", &taskconfig.TaskDefinition{Cache: true}))
	table.Declarative["tsc"] = &taskconfig.DeclarativeTask{
		Executable:  "tsc",
		DefaultArgs: []string{"--build"},
		TaskDefinition: taskconfig.TaskDefinition{
			Inputs:  []string{"tsconfig.json"},
			Outputs: []string{"dist/**"},
		},
	}

	ctx := testContext(t, []*pkggraph.Package{pkg}, table)
	g, err := ctx.Build([]string{"my-pkg"}, []string{"tsc"})
	require.NoError(t, err)

	task := g.Tasks["my-pkg#tsc"]
	require.NotNil(t, task)
	assert.Equal(t, "tsc --build", task.Command)
	assert.Equal(t, []string{"tsconfig.json"}, task.Definition.Inputs)
	assert.Equal(t, []string{"dist/**"}, task.Definition.Outputs)
}

func TestBuildMissingTaskEverywhereFails(t *testing.T) {
	pkg := &pkggraph.Package{Name: "my-pkg", Version: "1.0.0"}
	table := taskconfig.NewTable()
	ctx := testContext(t, []*pkggraph.Package{pkg}, table)

	_, err := ctx.Build([]string{"my-pkg"}, []string{"nonexistent"})
	assert.Error(t, err)
}

func TestBuildWeightsFavorLongerDependencyChains(t *testing.T) {
	leaf := &pkggraph.Package{Name: "leaf", Version: "1.0.0", Scripts: map[string]string{"build": "tsc"}}
	mid := &pkggraph.Package{Name: "mid", Version: "1.0.0", Scripts: map[string]string{"build": "tsc"}, Dependencies: []pkggraph.Dependency{{Name: "leaf", Range: "^1.0.0"}}}
	top := &pkggraph.Package{Name: "top", Version: "1.0.0", Scripts: map[string]string{"build": "tsc"}, Dependencies: []pkggraph.Dependency{{Name: "mid", Range: "^1.0.0"}}}

	table := taskconfig.NewTable()
	require.NoError(t, table.AddGlobal("build", &taskconfig.TaskDefinition{DependsOn: []string{"^build"}, Cache: true}))

	ctx := testContext(t, []*pkggraph.Package{leaf, mid, top}, table)
	g, err := ctx.Build([]string{"leaf", "mid", "top"}, []string{"build"})
	require.NoError(t, err)

	assert.Greater(t, g.Tasks["leaf#build"].Weight, g.Tasks["mid#build"].Weight)
	assert.Greater(t, g.Tasks["mid#build"].Weight, g.Tasks["top#build"].Weight)
}

func TestRenderDOTIncludesEveryTaskID(t *testing.T) {
	leaf := &pkggraph.Package{Name: "leaf", Version: "1.0.0", Scripts: map[string]string{"build": "tsc"}}
	consumer := &pkggraph.Package{Name: "consumer", Version: "1.0.0", Scripts: map[string]string{"build": "tsc"}, Dependencies: []pkggraph.Dependency{{Name: "leaf", Range: "^1.0.0"}}}

	table := taskconfig.NewTable()
	require.NoError(t, table.AddGlobal("build", &taskconfig.TaskDefinition{DependsOn: []string{"^build"}, Cache: true}))

	ctx := testContext(t, []*pkggraph.Package{leaf, consumer}, table)
	g, err := ctx.Build([]string{"leaf", "consumer"}, []string{"build"})
	require.NoError(t, err)

	dot := g.RenderDOT()
	assert.Contains(t, dot, "digraph")
	assert.Contains(t, dot, "leaf#build")
	assert.Contains(t, dot, "consumer#build")
}
