package executor

import (
	"context"
	"io"
	"sync"

	"github.com/fluidbuild/fbx/internal/turbopath"
)

// InProcessRunner executes a declarative task's work without spawning a
// subprocess, keyed by the DeclarativeTask's Executable name. Grounded on
// spec.md §4.6's "optional in-process worker pool": some declarative
// executables are cheap and frequent enough -- run once per package on
// every build -- that paying fork/exec on each invocation is wasted work
// compared to reusing an in-process worker. A caller registers a runner
// for whichever executable names it has a native implementation for
// (Options.InProcessRunners); any executable without one still spawns a
// subprocess exactly as before.
type InProcessRunner func(ctx context.Context, dir turbopath.AbsoluteSystemPath, args []string, env []string, out io.Writer) error

// workerPool bounds how many concurrent in-process runs of a given kind
// (executable name) are allowed at once. A task that can't acquire a
// slot immediately reports saturation rather than blocking -- the caller
// falls back to a normal subprocess spawn, so a busy in-process pool
// never throttles a build below what plain subprocess execution could
// already do on its own.
type workerPool struct {
	mu       sync.Mutex
	inFlight map[string]int
	capacity int
}

func newWorkerPool(capacity int) *workerPool {
	if capacity <= 0 {
		capacity = 2
	}
	return &workerPool{inFlight: map[string]int{}, capacity: capacity}
}

// tryAcquire reports whether a slot for kind was claimed; the caller
// must call release(kind) exactly once if this returns true.
func (p *workerPool) tryAcquire(kind string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight[kind] >= p.capacity {
		return false
	}
	p.inFlight[kind]++
	return true
}

func (p *workerPool) release(kind string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight[kind]--
}
