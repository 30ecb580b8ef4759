// Package sched implements the cooperative multi-threaded task scheduler
// of §4.6: a session owns cfg.Threads worker goroutines in all (one when
// Threads is 0), the first of which is the distinguished "thread 0" (the
// main thread); no worker runs beyond that count. They drain two
// session-global FIFOs of
// filters - never of individual tasks - so that a filter's own private
// task queue is the only place serialization needs to be enforced.
//
// Grounded on the teacher's transport.collector (transport/collect.go)
// for the container/heap-based timed-task structure, on
// transport/api.go's sendLoop/cmplLoop goroutine-pair-per-stream for the
// worker-pool shape, and on sys/cpu.go for default worker sizing.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package sched

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofilt/gofilt/cmn"
	"github.com/gofilt/gofilt/cmn/mono"
	"github.com/gofilt/gofilt/cmn/nlog"
	"github.com/gofilt/gofilt/filter"
	"github.com/gofilt/gofilt/gferr"
	"github.com/gofilt/gofilt/pid"
	"github.com/gofilt/gofilt/sys"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// interface guard: *Sched satisfies filter.Scheduler.
var _ filter.Scheduler = (*Sched)(nil)

// Sched is one session's scheduler.
type Sched struct {
	cfg *cmn.Config

	mainQ fifo
	genQ  fifo

	mu      sync.Mutex
	filters map[int]*filterState

	timedMu sync.Mutex
	timed   timedHeap

	wakeCh chan struct{}

	// blockingSem bounds how many §4.6 "blocking source" filters may run
	// concurrently across the worker pool; it is sized to the worker
	// count - the teacher's sendLoop/cmplLoop pairing similarly
	// caps concurrent in-flight stream I/O per session.
	blockingSem *semaphore.Weighted

	solo bool // Threads<=1: thread 0 is the only worker, including blocking filters

	metrics *Metrics

	// activity counts Process attempts, so a session-level watchdog can
	// detect "no task progress" (§5 per-session timeout) without sched
	// needing to know anything about sessions.
	activity atomic.Int64

	eg     *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a scheduler from cfg (cmn.Rom.Get() if nil).
func New(cfg *cmn.Config) *Sched {
	if cfg == nil {
		cfg = cmn.Rom.Get()
	}
	threads := cfg.Threads
	if threads < 1 {
		threads = 1 // Threads 0 is single-threaded mode: thread 0 runs everything
	}
	return &Sched{
		cfg:         cfg,
		filters:     make(map[int]*filterState),
		wakeCh:      make(chan struct{}, 1),
		blockingSem: semaphore.NewWeighted(int64(threads)),
		solo:        threads == 1,
	}
}

func (s *Sched) numWorkers() int {
	if s.solo {
		return 1
	}
	threads := s.cfg.Threads
	if threads <= 0 {
		threads = sys.NumCPU()
	}
	return threads
}

// SetMetrics attaches a Prometheus metrics set (see NewMetrics); optional.
func (s *Sched) SetMetrics(m *Metrics) { s.metrics = m }

// Add registers f with the scheduler (§4.4 filter_new posts here once the
// filter is constructed). Idempotent per index.
func (s *Sched) Add(f *filter.Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.filters[f.Index()]; ok {
		return
	}
	s.filters[f.Index()] = newFilterState(f)
	if s.metrics != nil {
		s.metrics.FiltersRunning.Inc()
	}
}

// Remove drops f from the scheduler's bookkeeping (after Finalize).
func (s *Sched) Remove(filterIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.filters, filterIndex)
}

// Activity returns the number of Process attempts made so far, for a
// session-level watchdog to detect "no task progress" (§5 timeout).
func (s *Sched) Activity() int64 { return s.activity.Load() }

func (s *Sched) lookup(filterIndex int) *filterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters[filterIndex]
}

// Reschedule implements filter.Scheduler: a connected pid gained new
// work, or WouldBlock state changed, so filterIndex should run again.
func (s *Sched) Reschedule(filterIndex int) {
	fs := s.lookup(filterIndex)
	if fs == nil {
		return
	}
	if fs.postProcess() {
		s.enqueue(fs)
	}
	s.notify()
}

// PostEvent implements §4.4 process_event delivery through the scheduler
// rather than a direct call, so event handling obeys the same
// per-filter serialization as Process.
func (s *Sched) PostEvent(filterIndex int, evt pid.Event) {
	fs := s.lookup(filterIndex)
	if fs == nil {
		return
	}
	if fs.postTask(task{kind: taskEvent, evt: evt}) {
		s.enqueue(fs)
	}
	s.notify()
}

// PostConfigurePid implements §4.4 configure_pid delivery through the
// scheduler.
func (s *Sched) PostConfigurePid(filterIndex int, inst *pid.PidInstance, isRemove bool) {
	fs := s.lookup(filterIndex)
	if fs == nil {
		return
	}
	if fs.postTask(task{kind: taskConfigurePid, inst: inst, isRemove: isRemove}) {
		s.enqueue(fs)
	}
	s.notify()
}

func (s *Sched) enqueue(fs *filterState) {
	if fs.f.MainThreadOnly() {
		s.mainQ.push(fs)
	} else {
		s.genQ.push(fs)
	}
	s.observeQueueDepth()
}

func (s *Sched) notify() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Start launches the worker pool and the timed-task goroutine, and
// blocks until Stop is called or a worker returns an error.
func (s *Sched) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.ctx, s.cancel = ctx, cancel
	eg, ctx := errgroup.WithContext(ctx)
	s.eg = eg
	s.ctx = ctx

	n := s.numWorkers()
	for w := 0; w < n; w++ {
		w := w
		eg.Go(func() error {
			s.workerLoop(w)
			return nil
		})
	}
	eg.Go(func() error {
		s.timerLoop()
		return nil
	})
}

// Stop cancels every worker and the timer goroutine and waits for them
// to return.
func (s *Sched) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.notify()
	return s.eg.Wait()
}

func (s *Sched) workerLoop(workerID int) {
	isMain := workerID == 0
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		fs := s.dequeue(isMain)
		if fs == nil {
			s.sleep()
			continue
		}
		if isMain && !s.solo && fs.f.IsBlocking() {
			// §4.6: thread 0 never runs a blocking source; re-post it
			// to the general queue for a worker thread to pick up.
			s.genQ.push(fs)
			continue
		}
		s.run(fs, isMain)
	}
}

// dequeue implements §4.6's "main thread drains main_thread_tasks first,
// falling back to the general queue when idle" and "worker threads only
// ever drain the general queue".
func (s *Sched) dequeue(isMain bool) *filterState {
	defer s.observeQueueDepth()
	if isMain {
		if fs := s.mainQ.pop(); fs != nil {
			return fs
		}
	}
	return s.genQ.pop()
}

func (s *Sched) sleep() {
	d := s.cfg.MaxSleep
	if d <= 0 {
		d = 50 * time.Millisecond
	}
	select {
	case <-s.ctx.Done():
	case <-s.wakeCh:
	case <-time.After(d):
	}
}

// run executes up to FilterQueueBound tasks/process-iterations from fs's
// private queue (§4.6's opportunistic same-filter execution bound), then
// hands fs back to a session FIFO if more work arrived meanwhile.
func (s *Sched) run(fs *filterState, isMain bool) {
	if fs.f.IsDisabled() {
		// fs_abort(NONE)/(FAST) or the health check already disabled this
		// filter: drop whatever is queued rather than calling Process
		// again (§8 invariant "after fs_abort(NONE) returns, no further
		// process call is made").
		fs.mu.Lock()
		fs.tasks = nil
		fs.needProcess = false
		fs.mu.Unlock()
		fs.release()
		return
	}
	if fs.f.IsBlocking() {
		if err := s.blockingSem.Acquire(s.ctx, 1); err != nil {
			s.enqueue(fs) // ctx cancelled mid-acquire; don't drop the work
			return
		}
		defer s.blockingSem.Release(1)
	}

	bound := s.cfg.FilterQueueBound
	if bound <= 0 {
		bound = 10
	}

	for i := 0; i < bound; i++ {
		t, isTask, process := fs.drainOne()
		switch {
		case isTask:
			s.runTask(fs, t)
		case process:
			if fs.f.WouldBlock() {
				// §3/§8 invariant 3: every output is saturated or has no
				// consumer at all. Don't call Process again; a consumer's
				// DropPacket or a later wire() will Reschedule this filter
				// once there's somewhere to produce into.
				i = bound
				break
			}
			if s.runProcess(fs) {
				return // forcibly disabled; outputs already EOS'd
			}
			if fs.f.TakeRequeueRequest() {
				fs.postProcess()
			}
		default:
			i = bound // nothing left, stop opportunistic loop
		}
		if !fs.hasWork() {
			break
		}
	}

	if requeue := fs.release(); requeue {
		s.enqueue(fs)
		s.notify()
	}
}

func (s *Sched) runTask(fs *filterState, t task) {
	switch t.kind {
	case taskEvent:
		fs.f.ProcessEvent(t.evt)
	case taskConfigurePid:
		if err := fs.f.ConfigurePid(t.inst, t.isRemove); err != nil {
			nlog.Warningf("configure_pid %s: %v", fs.f.ID(), err)
		}
	}
}

// runProcess calls Process once, derives the §4.6/§7 health-check signal
// from pid I/O counters (Process itself reports no such signal), and
// routes a timed-reschedule request into the timed heap. Returns true if
// the filter was just forcibly disabled.
func (s *Sched) runProcess(fs *filterState) (disabled bool) {
	s.activity.Add(1)
	before := ioTotals(fs.f)
	err := fs.f.Process()
	after := ioTotals(fs.f)

	isErr := err != nil && gferr.KindOf(err) != gferr.EOS
	ioProgress := after > before

	if fs.f.RecordProcessOutcome(isErr, ioProgress) {
		nlog.Errorf("filter %s: disabling after sustained errors with no I/O progress", fs.f.ID())
		for _, out := range fs.f.Outputs() {
			out.SetEOS()
		}
		fs.f.Disable()
		if s.metrics != nil {
			s.metrics.FiltersDisabled.Inc()
			s.metrics.FiltersRunning.Dec()
		}
		return true
	}

	if dl := fs.f.TakeScheduleNextTime(); dl != 0 {
		s.scheduleTimed(fs, dl)
	}
	return false
}

func (s *Sched) scheduleTimed(fs *filterState, deadline int64) {
	s.timedMu.Lock()
	defer s.timedMu.Unlock()
	fs.timedAt = deadline
	if fs.heapIdx >= 0 {
		heap.Fix(&s.timed, fs.heapIdx)
		return
	}
	heap.Push(&s.timed, fs)
}

// timerLoop wakes filters whose AskRTReschedule deadline has elapsed,
// sleeping no longer than the next deadline or cfg.MaxSleep, whichever
// is sooner - grounded on transport/collect.go's ticked collector.do().
func (s *Sched) timerLoop() {
	maxSleep := s.cfg.MaxSleep
	if maxSleep <= 0 {
		maxSleep = 50 * time.Millisecond
	}
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		sleep := s.dueIn(maxSleep)
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(sleep):
		}
		s.fireDue()
	}
}

func (s *Sched) dueIn(maxSleep time.Duration) time.Duration {
	s.timedMu.Lock()
	defer s.timedMu.Unlock()
	if len(s.timed) == 0 {
		return maxSleep
	}
	next := time.Duration(s.timed[0].timedAt - mono.NanoTime())
	if next < 0 {
		return 0
	}
	if next > maxSleep {
		return maxSleep
	}
	return next
}

func (s *Sched) fireDue() {
	now := mono.NanoTime()
	var due []*filterState
	s.timedMu.Lock()
	for len(s.timed) > 0 && s.timed[0].timedAt <= now {
		due = append(due, heap.Pop(&s.timed).(*filterState))
	}
	s.timedMu.Unlock()
	for _, fs := range due {
		if fs.postProcess() {
			s.enqueue(fs)
		}
	}
	if len(due) > 0 {
		s.notify()
	}
}
