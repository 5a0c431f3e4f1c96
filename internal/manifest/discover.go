package manifest

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/hashicorp/go-hclog"
	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"

	"github.com/fluidbuild/fbx/internal/pkggraph"
	"github.com/fluidbuild/fbx/internal/taskconfig"
	"github.com/fluidbuild/fbx/internal/turbopath"
)

// DiscoverAll reads every release-group root named in releaseGroupDirs
// (paths relative to repoRoot, per the config's "packages" list),
// registers each discovered package's own task-table overlay into
// table, and builds the combined cross-package dependency graph. Every
// package, regardless of how many release groups the repo has, gets a
// table.ReleaseGroupRootOf entry pointing at its own group's root (spec
// §4.1's release-group-root fallback is a per-group rule -- a repo with
// several release groups must resolve each package against its own
// group's root, never another group's).
func DiscoverAll(logger hclog.Logger, repoRoot turbopath.AbsoluteSystemPath, releaseGroupDirs []string, table *taskconfig.Table) (*pkggraph.Graph, error) {
	var allPackages []*pkggraph.Package
	var allGroups []*pkggraph.ReleaseGroup
	for _, dir := range releaseGroupDirs {
		root := turbopath.ResolveUnknownPath(repoRoot, dir)
		packages, group, err := DiscoverReleaseGroup(repoRoot, root, table)
		if err != nil {
			return nil, err
		}
		allPackages = append(allPackages, packages...)
		allGroups = append(allGroups, group)
	}
	return pkggraph.New(logger, allPackages, allGroups)
}

const manifestFileName = "package.json"

// DiscoverReleaseGroup reads the manifest at releaseGroupRoot, treats it
// as a release-group root, and walks its workspace globs to find member
// packages. The root package itself is included in the returned slice
// with IsReleaseGroupRoot set. Each discovered package's own "tasks"
// table is registered as a package overlay on table.
func DiscoverReleaseGroup(repoRoot turbopath.AbsoluteSystemPath, releaseGroupRoot turbopath.AbsoluteSystemPath, table *taskconfig.Table) ([]*pkggraph.Package, *pkggraph.ReleaseGroup, error) {
	rootManifest, err := Read(releaseGroupRoot.Join(manifestFileName))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading release group root manifest at %s", releaseGroupRoot)
	}

	root := rootManifest.ToPackage(releaseGroupRoot)
	root.ReleaseGroup = root.Name
	root.IsReleaseGroupRoot = true
	rootManifest.RegisterTaskOverlays(table, root.Name)
	table.SetReleaseGroupRoot(root.Name, root.Name)

	group := &pkggraph.ReleaseGroup{
		Name:           root.Name,
		RootDir:        releaseGroupRoot,
		Version:        root.Version,
		WorkspaceGlobs: []string(rootManifest.Workspaces),
		RootPackage:    root.Name,
	}

	packages := []*pkggraph.Package{root}
	if len(group.WorkspaceGlobs) == 0 {
		return packages, group, nil
	}

	globs, err := compileWorkspaceGlobs(group.WorkspaceGlobs)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "compiling workspace globs for %s", root.Name)
	}

	walkErr := godirwalk.Walk(releaseGroupRoot.ToString(), &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if !de.IsDir() {
				return nil
			}
			if de.Name() == "node_modules" || de.Name() == ".git" {
				return godirwalk.SkipThis
			}
			dir := turbopath.AbsoluteSystemPathFromUpstream(osPathname)
			if dir == releaseGroupRoot {
				return nil
			}
			rel, relErr := releaseGroupRoot.RelativeUnixPath(dir)
			if relErr != nil {
				return relErr
			}
			if !matchesAny(globs, rel.ToString()) {
				return nil
			}
			manifestPath := dir.Join(manifestFileName)
			if !manifestPath.FileExists() {
				return nil
			}
			memberManifest, readErr := Read(manifestPath)
			if readErr != nil {
				return readErr
			}
			member := memberManifest.ToPackage(dir)
			member.ReleaseGroup = group.Name
			memberManifest.RegisterTaskOverlays(table, member.Name)
			table.SetReleaseGroupRoot(member.Name, root.Name)
			packages = append(packages, member)
			return godirwalk.SkipThis
		},
	})
	if walkErr != nil {
		return nil, nil, errors.Wrapf(walkErr, "walking workspace globs under %s", releaseGroupRoot)
	}

	return packages, group, nil
}

func compileWorkspaceGlobs(patterns []string) ([]glob.Glob, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(strings.TrimSuffix(pattern, "/"), '/')
		if err != nil {
			return nil, errors.Wrapf(err, "compiling workspace glob %q", pattern)
		}
		compiled = append(compiled, g)
	}
	return compiled, nil
}

func matchesAny(globs []glob.Glob, path string) bool {
	for _, g := range globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}
