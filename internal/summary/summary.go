// Package summary implements the "Metrics / summary" component (spec
// §2): per-task outcome records, aggregate cache-hit/miss counts, and
// the human-readable report a caller prints after a run, including the
// failure summary spec §4.6/§7 describe (package, task, tail of
// captured output).
package summary

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/fluidbuild/fbx/internal/buildgraph"
	"github.com/fluidbuild/fbx/internal/incremental"
)

// TaskOutcome is one task's final record.
type TaskOutcome struct {
	TaskID         string
	Package        string
	Task           string
	State          buildgraph.State
	Classification incremental.Classification // zero value for non-leaf/non-incremental tasks
	QueueWait      time.Duration
	Duration       time.Duration
	Err            error
	// OutputTail holds the last lines of captured output for a failed
	// task (spec §4.6 "Failure summary").
	OutputTail []string
	// DryRun marks an outcome produced by executor.Options.DryRun: the
	// task was classified but never actually run.
	DryRun bool
}

// Cached reports whether this outcome represents a cache hit (no
// command actually ran).
func (o TaskOutcome) Cached() bool {
	return o.State == buildgraph.StateUpToDate || o.State == buildgraph.StateCachedSuccess
}

// Summary aggregates every task outcome in one run.
type Summary struct {
	RunID     string
	StartedAt time.Time
	EndedAt   time.Time

	outcomes      []TaskOutcome
	notRunCount   int
	failureCount  int
}

// New starts a new run summary.
func New(startedAt time.Time) *Summary {
	return &Summary{RunID: uuid.NewString(), StartedAt: startedAt}
}

// Record appends a task's final outcome.
func (s *Summary) Record(o TaskOutcome) {
	s.outcomes = append(s.outcomes, o)
	switch o.State {
	case buildgraph.StateFailed:
		s.failureCount++
	case buildgraph.StateNotRun:
		s.notRunCount++
	}
}

// Outcomes returns every recorded outcome, in recording order.
func (s *Summary) Outcomes() []TaskOutcome {
	return s.outcomes
}

// Failed reports whether any task in this run failed.
func (s *Summary) Failed() bool {
	return s.failureCount > 0
}

// counts tallies cache hits/misses/non-incremental/failures for the
// closing report.
type counts struct {
	cacheHit, ran, nonIncremental, notRun, failed, wouldRun int
}

func (s *Summary) tally() counts {
	var c counts
	for _, o := range s.outcomes {
		switch {
		case o.State == buildgraph.StateFailed:
			c.failed++
		case o.State == buildgraph.StateNotRun:
			c.notRun++
		case o.Cached():
			c.cacheHit++
		case o.DryRun:
			c.wouldRun++
		case o.Classification == incremental.ClassificationNonIncremental:
			c.nonIncremental++
			c.ran++
		default:
			c.ran++
		}
	}
	return c
}

// Close finalizes the summary and returns the human-readable report
// spec §7 describes: a red "Build failed" line plus the
// (package, task, tail-of-output) failure list and a "Did not run K
// tasks" tally when the run failed, a one-line tally for a dry run, or
// task, cache and time lines for a successful run.
func (s *Summary) Close(endedAt time.Time) string {
	s.EndedAt = endedAt
	c := s.tally()

	var b strings.Builder
	if s.Failed() {
		b.WriteString(color.New(color.FgRed, color.Bold).Sprint("Build failed") + "\n")
		for _, o := range s.outcomes {
			if o.State != buildgraph.StateFailed {
				continue
			}
			fmt.Fprintf(&b, "  %s#%s: %v\n", o.Package, o.Task, o.Err)
			for _, line := range o.OutputTail {
				fmt.Fprintf(&b, "    %s\n", line)
			}
		}
		if c.notRun > 0 {
			fmt.Fprintf(&b, "Did not run %d tasks due to prior failures\n", c.notRun)
		}
		return b.String()
	}

	if c.wouldRun > 0 {
		total := c.cacheHit + c.wouldRun
		fmt.Fprintf(&b, "Tasks:    %d would run, %d cached, %d total (dry run)\n", c.wouldRun, c.cacheHit, total)
		return b.String()
	}

	total := c.cacheHit + c.ran
	fmt.Fprintf(&b, "Tasks:    %d successful, %d total\n", total, total)
	fmt.Fprintf(&b, "Cached:   %d cached, %d total\n", c.cacheHit, total)
	fmt.Fprintf(&b, "Time:     %s\n", endedAt.Sub(s.StartedAt).Truncate(time.Millisecond))
	return b.String()
}

// ByPackage groups outcomes by package name, each group in recording
// order, for a per-package breakdown view.
func (s *Summary) ByPackage() map[string][]TaskOutcome {
	out := map[string][]TaskOutcome{}
	for _, o := range s.outcomes {
		out[o.Package] = append(out[o.Package], o)
	}
	return out
}

// SortedTaskIDs returns every recorded task ID, sorted, for stable
// iteration in reports and tests.
func (s *Summary) SortedTaskIDs() []string {
	ids := make([]string, 0, len(s.outcomes))
	for _, o := range s.outcomes {
		ids = append(ids, o.TaskID)
	}
	sort.Strings(ids)
	return ids
}
