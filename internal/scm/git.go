// Adapted from https://github.com/thought-machine/please/tree/master/src/scm
// Copyright Thought Machine, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package scm

import (
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"github.com/fluidbuild/fbx/internal/turbopath"
)

// git implements SCM by shelling out to the git binary.
type git struct {
	repoRoot turbopath.AbsoluteSystemPath
}

func (g *git) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = g.repoRoot.ToString()
	out, err := cmd.Output()
	return strings.TrimSpace(string(out)), err
}

func (g *git) GetCurrentBranch() (string, error) {
	out, err := g.run("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", errors.Wrap(err, "getting current branch")
	}
	return out, nil
}

func (g *git) GetRemote(partialURL string) (string, error) {
	out, err := g.run("remote", "-v")
	if err != nil {
		return "", errors.Wrap(err, "listing remotes")
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && strings.Contains(fields[1], partialURL) {
			return fields[0], nil
		}
	}
	return "", errors.Errorf("no remote matching %q", partialURL)
}

func (g *git) ChangedFilesSince(ref string, remote string) ([]string, error) {
	if remote != "" {
		ref = remote + "/" + ref
	}
	base, err := g.run("merge-base", ref, "HEAD")
	if err != nil {
		// No common ancestor (e.g. ref never fetched): fall back to a
		// plain diff against ref itself.
		base = ref
	}
	diffOut, err := g.run("diff", "--name-only", base, "HEAD")
	if err != nil {
		return nil, errors.Wrapf(err, "diffing against %s", ref)
	}
	untrackedOut, err := g.run("ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, errors.Wrap(err, "listing untracked files")
	}

	seen := make(map[string]bool)
	var files []string
	for _, line := range append(strings.Split(diffOut, "\n"), strings.Split(untrackedOut, "\n")...) {
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		files = append(files, line)
	}
	return files, nil
}

func (g *git) FetchTags(remote string) error {
	if _, err := g.run("fetch", "--tags", remote); err != nil {
		return errors.Wrapf(err, "fetching tags from %s", remote)
	}
	return nil
}

func (g *git) TagsMatching(prefix string) ([]string, error) {
	out, err := g.run("tag", "--list", prefix+"*")
	if err != nil {
		return nil, errors.Wrap(err, "listing tags")
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (g *git) CommitDate(tag string, format string) (string, error) {
	out, err := g.run("log", "-1", "--format="+format, tag)
	if err != nil {
		return "", errors.Wrapf(err, "getting commit date for %s", tag)
	}
	return out, nil
}
