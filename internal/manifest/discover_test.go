package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluidbuild/fbx/internal/taskconfig"
	"github.com/fluidbuild/fbx/internal/turbopath"
)

func writeManifest(t *testing.T, dir string, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(contents), 0o644))
}

func TestDiscoverReleaseGroupFindsWorkspaceMembers(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `{
		"name": "mono",
		"version": "1.0.0",
		"workspaces": ["packages/*"]
	}`)
	writeManifest(t, filepath.Join(root, "packages", "a"), `{
		"name": "a",
		"version": "1.0.0",
		"scripts": {"build": "tsc -b"},
		"tasks": {"build": {"outputs": ["dist/**"]}}
	}`)
	writeManifest(t, filepath.Join(root, "packages", "b"), `{
		"name": "b",
		"version": "1.0.0",
		"dependencies": {"a": "workspace:*"}
	}`)

	table := taskconfig.NewTable()
	rootPath := turbopath.AbsoluteSystemPathFromUpstream(root)
	packages, group, err := DiscoverReleaseGroup(rootPath, rootPath, table)
	require.NoError(t, err)

	assert.Equal(t, "mono", group.Name)
	names := map[string]bool{}
	for _, p := range packages {
		names[p.Name] = true
	}
	assert.True(t, names["mono"])
	assert.True(t, names["a"])
	assert.True(t, names["b"])

	def, err := table.Resolve("a", "build")
	require.NoError(t, err)
	assert.Equal(t, []string{"dist/**"}, def.Outputs)
}

func TestDiscoverAllSetsReleaseGroupRootForSingleGroup(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `{"name": "solo", "version": "1.0.0"}`)

	table := taskconfig.NewTable()
	rootPath := turbopath.AbsoluteSystemPathFromUpstream(root)
	_, err := DiscoverAll(hclog.NewNullLogger(), rootPath, []string{"."}, table)
	require.NoError(t, err)
	assert.Equal(t, "solo", table.ReleaseGroupRootOf["solo"])
}

func TestDiscoverAllKeepsSeparateRootsAcrossMultipleReleaseGroups(t *testing.T) {
	base := t.TempDir()
	firstDir := filepath.Join(base, "first")
	secondDir := filepath.Join(base, "second")
	writeManifest(t, firstDir, `{
		"name": "first-root",
		"version": "1.0.0",
		"workspaces": ["packages/*"]
	}`)
	writeManifest(t, filepath.Join(firstDir, "packages", "a"), `{
		"name": "a",
		"version": "1.0.0",
		"scripts": {"build": "tsc -b"}
	}`)
	writeManifest(t, secondDir, `{
		"name": "second-root",
		"version": "1.0.0",
		"workspaces": ["packages/*"]
	}`)
	writeManifest(t, filepath.Join(secondDir, "packages", "b"), `{
		"name": "b",
		"version": "1.0.0",
		"scripts": {"build": "tsc -b"}
	}`)

	table := taskconfig.NewTable()
	table.AddPackageOverlay("first-root", "build", &taskconfig.TaskDefinition{Inputs: []string{"first-only"}})
	table.AddPackageOverlay("second-root", "build", &taskconfig.TaskDefinition{Inputs: []string{"second-only"}})

	repoRoot := turbopath.AbsoluteSystemPathFromUpstream(base)
	graph, err := DiscoverAll(hclog.NewNullLogger(), repoRoot, []string{"first", "second"}, table)
	require.NoError(t, err)
	require.NotNil(t, graph)

	// Each package keeps its own group's root as its fallback, never the
	// other group's -- a single global root would collapse these two.
	assert.Equal(t, "first-root", table.ReleaseGroupRootOf["a"])
	assert.Equal(t, "second-root", table.ReleaseGroupRootOf["b"])
	assert.Equal(t, "first-root", table.ReleaseGroupRootOf["first-root"])
	assert.Equal(t, "second-root", table.ReleaseGroupRootOf["second-root"])

	aDef, err := table.Resolve("a", "build")
	require.NoError(t, err)
	assert.Equal(t, []string{"first-only"}, aDef.Inputs)

	bDef, err := table.Resolve("b", "build")
	require.NoError(t, err)
	assert.Equal(t, []string{"second-only"}, bDef.Inputs)
}
