package buildgraph

import "github.com/fluidbuild/fbx/internal/taskconfig"

// Kind distinguishes the three shapes a build-graph vertex can take
// (spec §3 "Task"): a leaf that actually runs a command, a pure
// aggregator with no command of its own, or the lifecycle wrapper that
// chains a task's pre/post hooks around it.
type Kind int

const (
	// KindScript runs a package-local script or a declarative external
	// executable and produces a donefile.
	KindScript Kind = iota
	// KindTarget has no command; it exists purely to fan out to its
	// dependencies (the release-group root's synthetic top-level task,
	// for instance).
	KindTarget
	// KindComposite is the dependable handle for a task that has a
	// "pre<name>" and/or "post<name>" counterpart. Dependents always
	// depend on the composite, never on the pre/run/post stages
	// directly.
	KindComposite
)

func (k Kind) String() string {
	switch k {
	case KindScript:
		return "script"
	case KindTarget:
		return "target"
	case KindComposite:
		return "composite"
	default:
		return "unknown"
	}
}

// State is a task's position in the execution state machine (spec
// §4.7): Created -> Pending -> Ready -> Running -> one of
// {Succeeded, UpToDate, CachedSuccess} | NotRun | Failed.
type State int

const (
	StateCreated State = iota
	StatePending
	StateReady
	StateRunning
	StateSucceeded
	StateUpToDate
	StateCachedSuccess
	StateNotRun
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateUpToDate:
		return "up-to-date"
	case StateCachedSuccess:
		return "cached"
	case StateNotRun:
		return "not-run"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends a task's participation in a
// run (no further transition is possible).
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateUpToDate, StateCachedSuccess, StateNotRun, StateFailed:
		return true
	default:
		return false
	}
}

// Task is a single vertex in the build graph: either a runnable script
// task, a pure aggregator, or a lifecycle composite (spec §3, §4.3).
type Task struct {
	// ID is the externally-visible package-task identifier
	// ("pkg#task"), the same string used in dependsOn/before/after
	// entries and reported to the user.
	ID      string
	Package string
	Name    string
	Kind    Kind

	// Definition is nil for KindComposite; every KindScript and
	// KindTarget vertex has one (even if empty/default).
	Definition *taskconfig.TaskDefinition

	// Declarative is set when this task invokes a registered external
	// executable rather than a package-local script.
	Declarative *taskconfig.DeclarativeTask

	// Command is the shell command a KindScript task runs, resolved from
	// the owning package's scripts manifest (or synthesized from a
	// DeclarativeTask's executable + default args). Empty for
	// KindTarget and KindComposite.
	Command string

	State  State
	Weight int

	// internal, used only for composite bookkeeping; empty for
	// KindScript/KindTarget vertices.
	preStageID  string
	runStageID  string
	postStageID string
}
