package util

import (
	"fmt"
	"strings"
)

const (
	// TaskDelimiter separates a package name from a task name in a task ID.
	TaskDelimiter = "#"
	// RootPkgName is the reserved name of the release-group root package.
	RootPkgName = "//"
	// TopoPrefix marks a dependsOn/before/after entry as referring to the
	// same-named task in dependent packages (the "^task" form).
	TopoPrefix = "^"
	// WildcardTask is the "*" form, legal only in before/after.
	WildcardTask = "*"
	// TopoWildcardTask is the "^*" form, legal only in before/after.
	TopoWildcardTask = "^*"
	// EllipsisSentinel is the forbidden "..." placeholder that the config
	// loading layer must have substituted before tasks reach the resolver.
	EllipsisSentinel = "..."
	// RecursiveInvocationSentinel prefixes a script body that just calls
	// back into the orchestrator itself (e.g. "fbx run build"). Such a
	// script is never executed directly -- the config author is expected
	// to have expressed the same intent as a dependsOn entry instead.
	RecursiveInvocationSentinel = "fbx run"
)

// TaskID returns a package-task identifier (e.g. "my-pkg#build").
// If target is already a package-task id (contains TaskDelimiter), it is
// returned unchanged.
func TaskID(pkgName interface{}, target string) string {
	if IsPackageTask(target) {
		return target
	}
	return fmt.Sprintf("%v%v%v", pkgName, TaskDelimiter, target)
}

// RootTaskID returns the task id for running the given task in the
// release-group root package.
func RootTaskID(target string) string {
	return TaskID(RootPkgName, target)
}

// GetPackageTaskFromID returns the (package, task) tuple encoded in a taskID.
func GetPackageTaskFromID(taskID string) (packageName string, task string) {
	arr := strings.SplitN(taskID, TaskDelimiter, 2)
	if len(arr) == 1 {
		return "", arr[0]
	}
	return arr[0], arr[1]
}

// IsPackageTask returns true if task is of the form "pkg#task" (a
// package-specific task reference), not a bare task name.
func IsPackageTask(task string) bool {
	return strings.Index(task, TaskDelimiter) > 0
}

// StripPackageName removes the package portion of a taskID, returning the
// bare task name. Non-package-task strings are returned unmodified.
func StripPackageName(taskID string) string {
	if IsPackageTask(taskID) {
		_, task := GetPackageTaskFromID(taskID)
		return task
	}
	return taskID
}

// IsTopoRef reports whether a dependency entry uses the "^taskName" form.
func IsTopoRef(entry string) bool {
	return strings.HasPrefix(entry, TopoPrefix) && entry != TopoWildcardTask
}

// StripTopoPrefix removes a leading "^" from a dependency entry.
func StripTopoPrefix(entry string) string {
	return strings.TrimPrefix(entry, TopoPrefix)
}
