package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluidbuild/fbx/internal/taskconfig"
)

func TestParseBareWorkspaces(t *testing.T) {
	data := []byte(`{
		"name": "my-pkg",
		"version": "1.2.3",
		"scripts": {"build": "tsc -b"},
		"dependencies": {"other-pkg": "workspace:*"}
	}`)

	m, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "my-pkg", m.Name)
	assert.Equal(t, "1.2.3", m.Version)
	assert.Equal(t, "tsc -b", m.Scripts["build"])
	assert.Equal(t, "workspace:*", m.Dependencies["other-pkg"])
}

func TestParseObjectWorkspaces(t *testing.T) {
	data := []byte(`{
		"name": "root",
		"workspaces": {"packages": ["packages/*", "apps/*"]}
	}`)

	m, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Workspaces{"packages/*", "apps/*"}, m.Workspaces)
}

func TestParseMissingNameFails(t *testing.T) {
	_, err := Parse([]byte(`{"version": "1.0.0"}`))
	assert.Error(t, err)
}

func TestParseTolertesComments(t *testing.T) {
	data := []byte(`{
		// this is a hand-authored manifest
		"name": "commented-pkg"
	}`)
	m, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "commented-pkg", m.Name)
}

func TestRegisterTaskOverlaysAddsPackageScopedEntries(t *testing.T) {
	data := []byte(`{
		"name": "my-pkg",
		"tasks": {"build": {"dependsOn": ["^build"]}}
	}`)
	m, err := Parse(data)
	require.NoError(t, err)

	table := taskconfig.NewTable()
	m.RegisterTaskOverlays(table, m.Name)

	def, err := table.Resolve("my-pkg", "build")
	require.NoError(t, err)
	assert.Equal(t, []string{"^build"}, def.DependsOn)
}

func TestToPackageFlattensDependencies(t *testing.T) {
	m := &Manifest{
		Name:                 "my-pkg",
		Dependencies:         map[string]string{"a": "^1.0.0"},
		DevDependencies:      map[string]string{"b": "^2.0.0"},
		OptionalDependencies: map[string]string{"c": "^3.0.0"},
		PeerDependencies:     map[string]string{"a": "^1.0.0"},
	}
	pkg := m.ToPackage("")
	assert.Len(t, pkg.Dependencies, 3)
}
