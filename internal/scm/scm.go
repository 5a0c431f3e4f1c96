// Package scm abstracts operations on various tools like git.
// Currently, only git is supported.
//
// Adapted from https://github.com/thought-machine/please/tree/master/src/scm
// Copyright Thought Machine, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package scm

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/fluidbuild/fbx/internal/turbopath"
)

// ErrFallback is returned by NewFallback when no .git directory can be
// found walking up from the given root.
var ErrFallback = errors.New("cannot find a .git folder, falling back to manual file hashing (which may be slower)")

// SCM is a read-only collaborator over a git checkout. The build engine
// never mutates source control; it only asks what changed.
type SCM interface {
	// GetCurrentBranch returns the checked-out branch name.
	GetCurrentBranch() (string, error)
	// GetRemote returns the first configured remote whose URL contains
	// partialURL.
	GetRemote(partialURL string) (string, error)
	// ChangedFilesSince returns paths, relative to the repo root,
	// changed since ref (merge-base diff against remote/ref), plus any
	// untracked files.
	ChangedFilesSince(ref string, remote string) ([]string, error)
	// FetchTags fetches tags from remote.
	FetchTags(remote string) error
	// TagsMatching lists tags whose name starts with prefix.
	TagsMatching(prefix string) ([]string, error)
	// CommitDate returns the commit date of tag, formatted per format.
	CommitDate(tag string, format string) (string, error)
}

// New returns a git SCM rooted at repoRoot, or nil if repoRoot has no
// .git directory.
func New(repoRoot turbopath.AbsoluteSystemPath) SCM {
	if _, err := os.Stat(repoRoot.Join(".git").ToString()); err != nil {
		return nil
	}
	return &git{repoRoot: repoRoot}
}

// NewFallback returns a git SCM for repoRoot, or a stub plus ErrFallback
// if repoRoot has no .git directory.
func NewFallback(repoRoot turbopath.AbsoluteSystemPath) (SCM, error) {
	if s := New(repoRoot); s != nil {
		return s, nil
	}
	return &stub{}, ErrFallback
}

// FromInRepo walks up from cwd looking for a .git directory and returns
// an SCM rooted at its parent.
func FromInRepo(cwd turbopath.AbsoluteSystemPath) (SCM, error) {
	dir := cwd.ToString()
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return NewFallback(turbopath.AbsoluteSystemPathFromUpstream(dir))
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return NewFallback(cwd)
		}
		dir = parent
	}
}
