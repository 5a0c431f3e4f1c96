// Adapted from https://github.com/thought-machine/please/tree/master/src/scm
// Copyright Thought Machine, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package scm

import "fmt"

// stub is returned by NewFallback when no .git directory is found, so
// callers can keep running (falling back to manual file hashing)
// instead of failing outright.
type stub struct{}

func (s *stub) GetCurrentBranch() (string, error) { return "", fmt.Errorf("no git repository found") }
func (s *stub) GetRemote(string) (string, error)  { return "", fmt.Errorf("no git repository found") }
func (s *stub) ChangedFilesSince(string, string) ([]string, error) {
	return nil, fmt.Errorf("no git repository found")
}
func (s *stub) FetchTags(string) error { return fmt.Errorf("no git repository found") }
func (s *stub) TagsMatching(string) ([]string, error) {
	return nil, fmt.Errorf("no git repository found")
}
func (s *stub) CommitDate(string, string) (string, error) {
	return "", fmt.Errorf("no git repository found")
}
