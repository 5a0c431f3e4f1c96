// Package hashing computes content-addressed hashes of the files a task
// declares as inputs, and of the environment variables it declares as
// part of its cache key (spec §4.4, §4.5).
package hashing

import (
	"sort"
	"strings"

	"github.com/gobwas/glob"
	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"

	"github.com/fluidbuild/fbx/internal/turbopath"
)

// ExpandGlobs walks packageDir and returns, as paths anchored at root,
// every file whose root-relative path matches at least one of
// includePatterns and none of excludePatterns, after also
// filtering out anything the repository's .gitignore (root and
// package-local) would exclude. "${repoRoot}" in a pattern is replaced
// with root before compilation (spec §4.4).
func ExpandGlobs(root turbopath.AbsoluteSystemPath, packageDir turbopath.AbsoluteSystemPath, includePatterns []string, excludePatterns []string) (turbopath.AnchoredUnixPathArray, error) {
	includes, err := compileGlobs(root, includePatterns)
	if err != nil {
		return nil, errors.Wrap(err, "compiling input globs")
	}
	excludes, err := compileGlobs(root, excludePatterns)
	if err != nil {
		return nil, errors.Wrap(err, "compiling excluded-output globs")
	}

	ignore, err := loadGitignore(root.Join(".gitignore"))
	if err != nil {
		return nil, err
	}
	pkgIgnore, err := loadGitignore(packageDir.Join(".gitignore"))
	if err != nil {
		return nil, err
	}

	var matched []turbopath.AnchoredUnixPath
	walkErr := godirwalk.Walk(packageDir.ToString(), &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				if de.Name() == "node_modules" || de.Name() == ".git" {
					return godirwalk.SkipThis
				}
				return nil
			}
			anchored, relErr := root.RelativeUnixPath(turbopath.AbsoluteSystemPathFromUpstream(osPathname))
			if relErr != nil {
				return relErr
			}
			rel := anchored.ToString()
			if ignore.MatchesPath(rel) || pkgIgnore.MatchesPath(rel) {
				return nil
			}
			if !matchesAny(includes, rel) {
				return nil
			}
			if matchesAny(excludes, rel) {
				return nil
			}
			matched = append(matched, anchored)
			return nil
		},
	})
	if walkErr != nil {
		return nil, errors.Wrapf(walkErr, "walking %s", packageDir)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i] < matched[j] })
	return matched, nil
}

func compileGlobs(root turbopath.AbsoluteSystemPath, patterns []string) ([]glob.Glob, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		substituted := strings.ReplaceAll(pattern, turbopath.RepoRootPlaceholder, strings.TrimSuffix(root.ToString(), "/"))
		g, err := glob.Compile(substituted, '/')
		if err != nil {
			return nil, errors.Wrapf(err, "compiling glob %q", pattern)
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

func loadGitignore(path turbopath.AbsoluteSystemPath) (*gitignore.GitIgnore, error) {
	if !path.FileExists() {
		return gitignore.CompileIgnoreLines(), nil
	}
	ign, err := gitignore.CompileIgnoreFile(path.ToString())
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return ign, nil
}
