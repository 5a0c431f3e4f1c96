package pkggraph

import (
	"strings"
)

// PrivacyFilter is a tri-state filter over a package's private flag.
type PrivacyFilter int

const (
	// PrivacyEither matches both private and public packages.
	PrivacyEither PrivacyFilter = iota
	// PrivacyOnlyPrivate matches only packages with private: true.
	PrivacyOnlyPrivate
	// PrivacyOnlyPublic matches only packages with private: false.
	PrivacyOnlyPublic
)

// PackageSelectionCriteria is the resolved form of the user's CLI
// package-selection flags (spec §6 "Package-selection criteria").
type PackageSelectionCriteria struct {
	// All, when true, selects every package regardless of the other
	// fields; it is the bare-invocation default (no selection flags
	// given), not expressible through any single CLI flag on its own.
	All bool
	// IndependentPackages includes every standalone (non-release-group)
	// package.
	IndependentPackages bool
	// ReleaseGroups includes every child package of each named release
	// group.
	ReleaseGroups []string
	// ReleaseGroupRoots includes only the root package of each named
	// release group.
	ReleaseGroupRoots []string
	// Directory includes the package rooted at each given absolute
	// directory.
	Directory []string
	// ChangedFiles includes every package owning at least one of these
	// paths, in addition to whatever the other criteria select. Callers resolve the git
	// collaborator's repo-relative ChangedFilesSince output to absolute
	// paths before populating this field.
	ChangedFiles []string

	// Scope is a set of package-name prefixes; when non-empty, a
	// candidate package must match at least one to remain selected.
	Scope []string
	// SkipScope is a set of package-name prefixes; a candidate package
	// matching any of these is excluded regardless of other criteria.
	SkipScope []string
	// Private filters by the package's private flag.
	Private PrivacyFilter
}

// ApplySelection sets Matched on every package satisfying criteria. It
// is idempotent and may be called once per build.
func (g *Graph) ApplySelection(criteria PackageSelectionCriteria) {
	releaseGroups := make(map[string]bool, len(criteria.ReleaseGroups))
	for _, name := range criteria.ReleaseGroups {
		releaseGroups[name] = true
	}
	releaseGroupRoots := make(map[string]bool, len(criteria.ReleaseGroupRoots))
	for _, name := range criteria.ReleaseGroupRoots {
		releaseGroupRoots[name] = true
	}
	directories := make(map[string]bool, len(criteria.Directory))
	for _, dir := range criteria.Directory {
		directories[dir] = true
	}

	for name, pkg := range g.Packages {
		selected := criteria.All

		if criteria.IndependentPackages && pkg.ReleaseGroup == "" {
			selected = true
		}
		if pkg.ReleaseGroup != "" && releaseGroups[pkg.ReleaseGroup] {
			selected = true
		}
		if pkg.IsReleaseGroupRoot && releaseGroupRoots[pkg.ReleaseGroup] {
			selected = true
		}
		if directories[pkg.Dir.ToString()] {
			selected = true
		}
		if matchesAnyChangedFile(pkg, criteria.ChangedFiles) {
			selected = true
		}

		if selected && len(criteria.Scope) > 0 && !matchesAnyPrefix(name, criteria.Scope) {
			selected = false
		}
		if selected && matchesAnyPrefix(name, criteria.SkipScope) {
			selected = false
		}
		if selected {
			switch criteria.Private {
			case PrivacyOnlyPrivate:
				selected = pkg.Private
			case PrivacyOnlyPublic:
				selected = !pkg.Private
			}
		}

		pkg.Matched = selected
	}
}

func matchesAnyPrefix(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func matchesAnyChangedFile(pkg *Package, changedFiles []string) bool {
	if len(changedFiles) == 0 {
		return false
	}
	dir := strings.TrimSuffix(pkg.Dir.ToString(), "/") + "/"
	for _, f := range changedFiles {
		if strings.HasPrefix(f, dir) || f == pkg.Dir.ToString() {
			return true
		}
	}
	return false
}
