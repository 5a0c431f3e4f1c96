// Package turbopath teaches the Go type system about two kinds of paths
// used throughout the build engine:
//   - AbsoluteSystemPath: an absolute, OS-native path (a repo root, a
//     package directory).
//   - AnchoredUnixPath: a path relative to some anchor (the repo root),
//     always forward-slash-normalized regardless of OS, as required by
//     the donefile on-disk format and the content-hash key space.
//
// Keeping these as distinct string types (rather than plain `string`)
// lets the type system catch a repo-relative path being passed where an
// absolute one is expected, and vice versa.
package turbopath

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/yookoala/realpath"
)

// RepoRootPlaceholder is the token substituted with the repository root
// (forward-slash-normalized, trailing slash stripped) inside input/output
// globs before they are compiled.
const RepoRootPlaceholder = "${repoRoot}"

// AnchoredUnixPathArray enables ergonomic operations on slices of paths.
type AnchoredUnixPathArray []AnchoredUnixPath

// ToStringArray returns the plain string form of each path in the array.
func (source AnchoredUnixPathArray) ToStringArray() []string {
	output := make([]string, len(source))
	for index, path := range source {
		output[index] = path.ToString()
	}
	return output
}

// AbsoluteSystemPathFromUpstream casts a string to an AbsoluteSystemPath
// without validation. Used at the boundary where a path arrives from an
// external collaborator (config loader, CLI flag) already known to be
// absolute.
func AbsoluteSystemPathFromUpstream(path string) AbsoluteSystemPath {
	return AbsoluteSystemPath(path)
}

// AnchoredUnixPathFromUpstream casts a string to an AnchoredUnixPath
// without validation.
func AnchoredUnixPathFromUpstream(path string) AnchoredUnixPath {
	return AnchoredUnixPath(path)
}

// GetCwd returns the current working directory, with symlinks resolved
// (package managers resolve symlinks the same way when computing lockfile
// paths, so the build engine needs to agree with them).
func GetCwd() (AbsoluteSystemPath, error) {
	cwdRaw, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("invalid working directory: %w", err)
	}
	cwdRaw, err = realpath.Realpath(cwdRaw)
	if err != nil {
		return "", fmt.Errorf("evaluating symlinks in cwd: %w", err)
	}
	if !filepath.IsAbs(cwdRaw) {
		return "", fmt.Errorf("cwd is not an absolute path: %v", cwdRaw)
	}
	return AbsoluteSystemPath(cwdRaw), nil
}

// ResolveUnknownPath returns unknown as an AbsoluteSystemPath if it is
// already absolute, otherwise resolves it relative to root.
func ResolveUnknownPath(root AbsoluteSystemPath, unknown string) AbsoluteSystemPath {
	if unknown == "" {
		return root
	}
	if filepath.IsAbs(unknown) {
		return AbsoluteSystemPath(unknown)
	}
	return root.Join(unknown)
}

// EvalSymlinks resolves any symlinks in p, returning the resolved path.
func (p AbsoluteSystemPath) EvalSymlinks() (AbsoluteSystemPath, error) {
	resolved, err := realpath.Realpath(p.ToString())
	if err != nil {
		return "", err
	}
	return AbsoluteSystemPath(resolved), nil
}
