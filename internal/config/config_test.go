package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluidbuild/fbx/internal/turbopath"
)

func TestLoadParsesTasksAndPackages(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{
		// repo-wide settings
		"concurrency": "4",
		"packages": ["packages/*"],
		"tasks": {
			"build": {"dependsOn": ["^build"], "outputs": ["dist/**"]},
			"test": {"dependsOn": ["build"], "cache": false}
		},
		"packageOverlay": {
			"app": {"build": {"outputs": ["build/**"]}}
		}
	}`)

	cfg, err := Load(turbopath.AbsoluteSystemPathFromUpstream(dir), "", nil)
	require.NoError(t, err)

	assert.Equal(t, "4", cfg.Concurrency)
	assert.Equal(t, []string{"packages/*"}, cfg.Packages)

	build, err := cfg.Tasks.Resolve("lib", "build")
	require.NoError(t, err)
	assert.Equal(t, []string{"^build"}, build.DependsOn)
	assert.True(t, build.Cache)

	test, err := cfg.Tasks.Resolve("lib", "test")
	require.NoError(t, err)
	assert.False(t, test.Cache)

	appBuild, err := cfg.Tasks.Resolve("app", "build")
	require.NoError(t, err)
	assert.Equal(t, []string{"build/**"}, appBuild.Outputs)
}

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(turbopath.AbsoluteSystemPathFromUpstream(dir), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "10", cfg.Concurrency)
	assert.Equal(t, ".fbuild-cache", cfg.CacheDir)
}

func TestLoadSeedsDefaultDeclarativeTasks(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(turbopath.AbsoluteSystemPathFromUpstream(dir), "", nil)
	require.NoError(t, err)

	tsc, ok := cfg.Tasks.Declarative["tsc"]
	require.True(t, ok)
	assert.Equal(t, "tsc", tsc.Executable)
	assert.Contains(t, tsc.Inputs, "tsconfig.json")

	biome, ok := cfg.Tasks.Declarative["biome check"]
	require.True(t, ok)
	assert.Equal(t, "biome", biome.Executable)
	assert.Equal(t, []string{"check"}, biome.DefaultArgs)
}

func TestLoadDeclarativeTasksOverrideSeededDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{
		"declarativeTasks": [
			{"executable": "tsc", "inputs": ["custom-tsconfig.json"], "outputs": ["out/**"]}
		]
	}`)

	cfg, err := Load(turbopath.AbsoluteSystemPathFromUpstream(dir), "", nil)
	require.NoError(t, err)

	tsc, ok := cfg.Tasks.Declarative["tsc"]
	require.True(t, ok)
	assert.Equal(t, []string{"custom-tsconfig.json"}, tsc.Inputs)
	assert.Equal(t, []string{"out/**"}, tsc.Outputs)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{"logLevel": "not-a-level"}`)
	_, err := Load(turbopath.AbsoluteSystemPathFromUpstream(dir), "", nil)
	assert.Error(t, err)
}

func writeConfig(t *testing.T, dir string, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(contents), 0644))
}
