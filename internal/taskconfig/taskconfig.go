// Package taskconfig resolves a package-task's effective configuration by
// layering the repo-wide task table, a package's own overlay, and the
// release-group root's fallback definition, following the same
// whole-entry-replace merge rule the teacher uses for its pipeline
// configuration (spec §4.1).
package taskconfig

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/fluidbuild/fbx/internal/util"
)

// ConfigError reports a problem in the task-definition table itself
// (distinct from a MissingTaskError, which just means a particular
// package doesn't participate in a particular task).
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

func configErrorf(format string, args ...interface{}) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// MissingTaskError is returned when a named task has no definition
// anywhere in the chain considered for a given package. Callers that
// allow package-scoped tasks to simply not exist in every package
// special-case this error rather than failing the whole run.
type MissingTaskError struct {
	Package string
	Task    string
}

func (e *MissingTaskError) Error() string {
	return fmt.Sprintf("could not find task %q for package %q", e.Task, e.Package)
}

// TaskDefinition is a single task's resolved configuration (spec §3).
// Before/After are not present in the teacher's Pipeline type -- they
// are this system's ordering-hint mechanism, layered in using the same
// merge machinery as the rest of the definition.
type TaskDefinition struct {
	// Script is nil when the definition hasn't expressed an opinion (the
	// common case: the resolver falls back to looking the task name up
	// in the package's scripts manifest). An explicit false marks a pure
	// aggregation/target task with no command of its own (spec §3); an
	// explicit true documents that a command is expected, without
	// changing the manifest-lookup behavior.
	Script *bool

	// DependsOn lists dependency-string entries in the grammar described
	// by spec §4.3: "task", "^task", "pkg#task", "*", "^*" (the last two
	// legal only for Before/After).
	DependsOn []string
	Before    []string
	After     []string

	Outputs          []string
	ExcludedOutputs  []string
	Inputs           []string
	Env              []string
	PassthroughEnv   []string

	Cache      bool
	Persistent bool
}

// RawTaskDefinition is the wire/JSON shape of a task entry in the
// fluid-build config file (spec §6); a nil Cache means "inherit the
// default" which is true for every task except ones explicitly marked
// uncacheable. Exported so the config loader can unmarshal directly
// into it.
type RawTaskDefinition struct {
	Script          *bool    `json:"script,omitempty"`
	DependsOn       []string `json:"dependsOn,omitempty"`
	Before          []string `json:"before,omitempty"`
	After           []string `json:"after,omitempty"`
	Outputs         []string `json:"outputs,omitempty"`
	ExcludedOutputs []string `json:"excludedOutputs,omitempty"`
	Inputs          []string `json:"inputs,omitempty"`
	Env             []string `json:"env,omitempty"`
	PassthroughEnv  []string `json:"passthroughEnv,omitempty"`
	Cache           *bool    `json:"cache,omitempty"`
	Persistent      bool     `json:"persistent,omitempty"`
}

// ToTaskDefinition converts a decoded RawTaskDefinition into its
// resolved form, applying the Cache default.
func (r *RawTaskDefinition) ToTaskDefinition() *TaskDefinition {
	cache := true
	if r.Cache != nil {
		cache = *r.Cache
	}
	return &TaskDefinition{
		Script:          r.Script,
		DependsOn:       r.DependsOn,
		Before:          r.Before,
		After:           r.After,
		Outputs:         r.Outputs,
		ExcludedOutputs: r.ExcludedOutputs,
		Inputs:          r.Inputs,
		Env:             r.Env,
		PassthroughEnv:  r.PassthroughEnv,
		Cache:           cache,
		Persistent:      r.Persistent,
	}
}

// DeclarativeTask describes an external executable invoked in place of a
// package-local script (spec §4.1 step 5, §4.4): a multi-command tool
// (such as a formatter or a cross-package code generator) that isn't a
// per-package npm script but still participates in the task graph.
type DeclarativeTask struct {
	// Executable is the command name or path to invoke.
	Executable string
	// DefaultArgs are appended after the subcommand name, before any
	// task-specific passthrough arguments.
	DefaultArgs []string
	// TaskDefinition is the ordering/caching configuration associated
	// with invoking this executable as a task.
	TaskDefinition
}

// Table is the fully-loaded repo-wide task configuration: the global
// task table, each package's local overlay, and the declarative-task
// registry (spec §4.1, §6 "fluid-build config").
type Table struct {
	// Global holds task definitions that apply repo-wide unless a
	// package overlay replaces them.
	Global map[string]*TaskDefinition

	// PackageOverlay holds task definitions scoped to one package, keyed
	// first by package name then by task name. An entry here entirely
	// replaces the corresponding global entry; fields are never merged
	// field-by-field (teacher's MergeTaskDefinitions behavior).
	PackageOverlay map[string]map[string]*TaskDefinition

	// ReleaseGroupRootOf maps a package name to the root package name of
	// its own release group; that root's task table is consulted as the
	// final fallback before a task is declared missing. Populated per
	// package (not just once for a single release group) so a repo with
	// several release groups resolves each package against its own
	// group's root, not some other group's.
	ReleaseGroupRootOf map[string]string

	// Declarative holds the multi-command external executables this
	// repo knows how to run as tasks, keyed by task name.
	Declarative map[string]*DeclarativeTask
}

// NewTable constructs an empty Table ready to have entries added.
func NewTable() *Table {
	return &Table{
		Global:             map[string]*TaskDefinition{},
		PackageOverlay:     map[string]map[string]*TaskDefinition{},
		Declarative:        map[string]*DeclarativeTask{},
		ReleaseGroupRootOf: map[string]string{},
	}
}

// SetReleaseGroupRoot records that pkg belongs to a release group whose
// root package is rootPkg, so Resolve(pkg, ...) falls back to rootPkg's
// overlay instead of some other release group's root.
func (t *Table) SetReleaseGroupRoot(pkg string, rootPkg string) {
	t.ReleaseGroupRootOf[pkg] = rootPkg
}

// AddGlobal registers a repo-wide task definition. name must not contain
// the package-task delimiter.
func (t *Table) AddGlobal(name string, def *TaskDefinition) error {
	if util.IsPackageTask(name) {
		return configErrorf("global task name %q must not reference a package", name)
	}
	if name == util.EllipsisSentinel {
		return configErrorf("task name cannot be the ellipsis sentinel %q", util.EllipsisSentinel)
	}
	t.Global[name] = def
	return nil
}

// AddPackageOverlay registers a package-scoped task definition that
// entirely replaces any global definition of the same task name for
// that package.
func (t *Table) AddPackageOverlay(pkg string, name string, def *TaskDefinition) {
	if _, ok := t.PackageOverlay[pkg]; !ok {
		t.PackageOverlay[pkg] = map[string]*TaskDefinition{}
	}
	t.PackageOverlay[pkg][name] = def
}

// Resolve returns the effective TaskDefinition for taskName in pkg,
// following the chain: package overlay -> global table -> pkg's own
// release group's root package overlay -> that root's use of the global
// table. Each package falls back to its own release group's root, not a
// single repo-wide one, so a multi-release-group repo resolves every
// package against the correct root. A MissingTaskError means no package
// anywhere in the chain defines the task; it is the caller's job to
// decide whether that's acceptable (e.g. because the task was only
// requested implicitly via a dependsOn wildcard).
func (t *Table) Resolve(pkg string, taskName string) (*TaskDefinition, error) {
	if def, ok := t.PackageOverlay[pkg][taskName]; ok {
		return def, nil
	}
	if def, ok := t.Global[taskName]; ok {
		return def, nil
	}
	if root, ok := t.ReleaseGroupRootOf[pkg]; ok && root != "" && root != pkg {
		return t.Resolve(root, taskName)
	}
	return nil, &MissingTaskError{Package: pkg, Task: taskName}
}

// HasTaskDefinitionAnywhere reports whether any package in pkgNames (or
// the global table) defines taskName -- used to validate a requested
// task name actually resolves somewhere before the build graph is
// constructed, mirroring the teacher's upfront "could not find the
// following tasks" check.
func (t *Table) HasTaskDefinitionAnywhere(pkgNames []string, taskName string) bool {
	if _, ok := t.Global[taskName]; ok {
		return true
	}
	if _, ok := t.Declarative[taskName]; ok {
		return true
	}
	for _, pkg := range pkgNames {
		if _, ok := t.PackageOverlay[pkg][taskName]; ok {
			return true
		}
	}
	return false
}

// ParseTaskDefinition decodes a raw (JSON-shaped) task definition.
func ParseTaskDefinition(name string, outputs, excludedOutputs, inputs, dependsOn, before, after, env, passthroughEnv []string, cache *bool, persistent bool) (*TaskDefinition, error) {
	if name == util.EllipsisSentinel {
		return nil, errors.Wrapf(configErrorf("unresolved ellipsis sentinel"), "parsing task %q", name)
	}
	raw := &RawTaskDefinition{
		DependsOn:       dependsOn,
		Before:          before,
		After:           after,
		Outputs:         outputs,
		ExcludedOutputs: excludedOutputs,
		Inputs:          inputs,
		Env:             env,
		PassthroughEnv:  passthroughEnv,
		Cache:           cache,
		Persistent:      persistent,
	}
	return raw.ToTaskDefinition(), nil
}
