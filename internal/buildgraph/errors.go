package buildgraph

import (
	"fmt"
	"strings"
)

// GraphError reports a malformed build graph: a dependsOn/before/after
// entry referencing a package or task that doesn't exist anywhere in
// the chain considered for it (spec §4.3, mirrors the teacher's
// "found reference to unknown package" / "Could not find workspace"
// checks in engine.go's AddDep and Prepare).
type GraphError struct {
	msg string
}

func (e *GraphError) Error() string { return e.msg }

func graphErrorf(format string, args ...interface{}) error {
	return &GraphError{msg: fmt.Sprintf(format, args...)}
}

// CycleError is returned when the constructed task graph contains a
// cycle.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic task dependency detected: %s", strings.Join(e.Cycle, " -> "))
}
