package sched

import (
	"sync"

	"github.com/gofilt/gofilt/filter"
	"github.com/gofilt/gofilt/pid"
)

type taskKind int

const (
	taskProcess taskKind = iota
	taskEvent
	taskConfigurePid
)

// task is one unit of a filter's private FIFO (§4.6). taskProcess carries
// no payload: it just means "check for new input/output and call Process
// again", so posting several of them collapses to one pending flag rather
// than growing the queue unboundedly under a fast producer.
type task struct {
	kind     taskKind
	evt      pid.Event
	inst     *pid.PidInstance
	isRemove bool
}

// filterState is the scheduling wrapper around one filter.Filter. Session
// FIFOs hold *filterState, never raw tasks, so "at most one task per
// filter executing at once" (§8 invariant 2) falls out of FIFO membership
// alone: a filterState is never pushed twice while queued or executing.
type filterState struct {
	mu          sync.Mutex
	f           *filter.Filter
	tasks       []task
	needProcess bool
	queued      bool // present in mainQ or genQ right now, or currently executing
	timedAt     int64
	heapIdx     int
}

func newFilterState(f *filter.Filter) *filterState {
	return &filterState{heapIdx: -1, f: f}
}

// postProcess marks "rerun Process", coalescing with any already-pending
// process request. Returns true if the caller must enqueue fs.
func (fs *filterState) postProcess() (needsEnqueue bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.needProcess = true
	if fs.queued {
		return false
	}
	fs.queued = true
	return true
}

func (fs *filterState) postTask(t task) (needsEnqueue bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.tasks = append(fs.tasks, t)
	if fs.queued {
		return false
	}
	fs.queued = true
	return true
}

// drainOne pops the next non-process task, if any, else reports
// whether a process run is owed.
func (fs *filterState) drainOne() (t task, isTask, process bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.tasks) > 0 {
		t = fs.tasks[0]
		fs.tasks = fs.tasks[1:]
		return t, true, false
	}
	if fs.needProcess {
		fs.needProcess = false
		return task{}, false, true
	}
	return task{}, false, false
}

func (fs *filterState) hasWork() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.tasks) > 0 || fs.needProcess
}

// release clears queued unless new work landed while fs was executing, in
// which case the caller must push fs back onto a session FIFO instead of
// letting it go idle.
func (fs *filterState) release() (requeue bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.tasks) > 0 || fs.needProcess {
		return true
	}
	fs.queued = false
	return false
}
