// Package pkggraph models the repository's packages, their release-group
// membership, and the cross-package dependency graph built by matching
// declared manifest dependency ranges against the known package set
// (spec §4.2).
package pkggraph

import (
	"github.com/fluidbuild/fbx/internal/turbopath"
)

// RootPkgName is the reserved name used for a release-group's synthetic
// root package lookups when no release group owns the current context.
const RootPkgName = "//"

// Dependency is a single (name, version-range) pair taken from a
// package's combined dependency list (dependencies, devDependencies,
// optionalDependencies, peerDependencies are flattened into one list --
// the core does not distinguish between them).
type Dependency struct {
	Name  string
	Range string
}

// Package is a single workspace package (spec §3 "Package").
type Package struct {
	Name    string
	Version string
	Dir     turbopath.AbsoluteSystemPath

	// Scripts is the name -> shell command mapping from the manifest.
	Scripts map[string]string

	// Dependencies is the combined dependency list across all manifest
	// dependency fields.
	Dependencies []Dependency

	Private bool

	// ReleaseGroup is the name of the owning release group, or "" for an
	// independent (standalone) package.
	ReleaseGroup string

	// IsReleaseGroupRoot is true for the single package per release group
	// whose manifest lives at the workspace root.
	IsReleaseGroupRoot bool

	// Matched is true iff the user's package-selection criteria selected
	// this package directly (spec §3 "matched package"). Packages pulled
	// in transitively as dependencies of a matched package are not
	// themselves matched, but their tasks may still be instantiated.
	Matched bool
}

// HasScript reports whether the package's manifest defines a script with
// the given name.
func (p *Package) HasScript(name string) (string, bool) {
	cmd, ok := p.Scripts[name]
	return cmd, ok
}

// ReleaseGroup is a named set of packages sharing a root directory, a
// version, and a workspace glob list (spec §3 "ReleaseGroup").
type ReleaseGroup struct {
	Name           string
	RootDir        turbopath.AbsoluteSystemPath
	Version        string
	WorkspaceGlobs []string

	// RootPackage is the name of the package designated as this release
	// group's root (Package.IsReleaseGroupRoot is true for it).
	RootPackage string
}
