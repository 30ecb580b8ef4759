package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gofilt/gofilt/cmn"
	"github.com/gofilt/gofilt/filter"
	"github.com/gofilt/gofilt/gferr"
)

func newTestFilter(t *testing.T, s *Sched, reg *filter.Register) *filter.Filter {
	t.Helper()
	f, err := filter.New(len(s.filters), reg, s, "", "", nil, cmn.DefaultSeparators())
	require.NoError(t, err)
	s.Add(f)
	return f
}

// TestSchedSerializesSameFilter drives one filter from many concurrent
// Reschedule calls and checks its Process callback never overlaps itself
// (§8 invariant 2).
func TestSchedSerializesSameFilter(t *testing.T) {
	var inProcess, overlapped atomic.Bool
	var calls atomic.Int32

	reg := &filter.Register{
		Name: "count",
		CB: filter.Callbacks{
			Process: func(f *filter.Filter) error {
				if !inProcess.CompareAndSwap(false, true) {
					overlapped.Store(true)
				}
				time.Sleep(time.Millisecond)
				calls.Add(1)
				inProcess.Store(false)
				return gferr.New(gferr.EOS, "")
			},
		},
	}

	cfg := cmn.DefaultConfig()
	cfg.Threads = 4
	s := New(cfg)
	f := newTestFilter(t, s, reg)

	s.Start(context.Background())
	defer s.Stop()

	for i := 0; i < 50; i++ {
		s.Reschedule(f.Index())
	}
	require.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.False(t, overlapped.Load())
}

// TestSchedMainThreadOnlyRoutesToMainQ checks that a MAIN_THREAD filter is
// always enqueued on mainQ, never genQ, regardless of which goroutine
// calls Reschedule.
func TestSchedMainThreadOnlyRoutesToMainQ(t *testing.T) {
	reg := &filter.Register{
		Name:  "ui",
		Flags: filter.RegMainThread,
		CB:    filter.Callbacks{Process: func(f *filter.Filter) error { return nil }},
	}
	s := New(cmn.DefaultConfig())
	f := newTestFilter(t, s, reg)

	s.Reschedule(f.Index())

	require.Equal(t, 1, s.mainQ.len())
	require.Equal(t, 0, s.genQ.len())
}

// TestSchedReschedulesCoalesce checks that posting several Reschedule
// calls before the filter is dequeued collapses to one FIFO entry, not
// one per call.
func TestSchedReschedulesCoalesce(t *testing.T) {
	reg := &filter.Register{
		Name: "plain",
		CB:   filter.Callbacks{Process: func(f *filter.Filter) error { return nil }},
	}
	s := New(cmn.DefaultConfig())
	f := newTestFilter(t, s, reg)

	s.Reschedule(f.Index())
	s.Reschedule(f.Index())
	s.Reschedule(f.Index())

	require.Equal(t, 1, s.genQ.len())
}

// TestSchedOpportunisticRequeue checks that a filter which keeps asking
// for an immediate rerun (RequestRequeue) keeps making progress across
// many scheduler passes rather than stalling after the first
// FilterQueueBound-sized batch.
func TestSchedOpportunisticRequeue(t *testing.T) {
	var calls atomic.Int32
	reg := &filter.Register{
		Name: "busy",
		CB: filter.Callbacks{
			Process: func(f *filter.Filter) error {
				calls.Add(1)
				f.RequestRequeue()
				return nil
			},
		},
	}
	cfg := cmn.DefaultConfig()
	cfg.FilterQueueBound = 3
	s := New(cfg)
	f := newTestFilter(t, s, reg)

	s.Start(context.Background())
	defer s.Stop()

	s.Reschedule(f.Index())
	require.Eventually(t, func() bool { return calls.Load() > int32(cfg.FilterQueueBound) }, time.Second, time.Millisecond)
}

// TestSchedTimedReschedule checks that AskRTReschedule wakes the filter
// again after its deadline without any further external Reschedule call.
func TestSchedTimedReschedule(t *testing.T) {
	var calls atomic.Int32
	reg := &filter.Register{
		Name: "timed",
		CB: filter.Callbacks{
			Process: func(f *filter.Filter) error {
				n := calls.Add(1)
				if n == 1 {
					f.AskRTReschedule(5000) // 5ms
				}
				return nil
			},
		},
	}
	s := New(cmn.DefaultConfig())
	f := newTestFilter(t, s, reg)

	s.Start(context.Background())
	defer s.Stop()

	s.Reschedule(f.Index())
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
}

// TestSchedAbortFlushNoneDisablesFilter checks fs_abort(FlushNone) disables
// the filter and stops further Process calls.
func TestSchedAbortFlushNoneDisablesFilter(t *testing.T) {
	var calls atomic.Int32
	reg := &filter.Register{
		Name: "abortable",
		CB: filter.Callbacks{
			Process: func(f *filter.Filter) error {
				calls.Add(1)
				return nil
			},
		},
	}
	s := New(cmn.DefaultConfig())
	f := newTestFilter(t, s, reg)

	s.Start(context.Background())
	defer s.Stop()

	s.Abort(f.Index(), FlushNone)
	require.True(t, f.IsDisabled())
	require.False(t, f.IsRunning())

	before := calls.Load()
	s.Reschedule(f.Index())
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, before, calls.Load())
}

// TestSchedHealthCheckDisablesOnSustainedErrors checks the §4.6/§7
// health check forcibly disables a filter that errors continuously with
// no I/O progress.
func TestSchedHealthCheckDisablesOnSustainedErrors(t *testing.T) {
	reg := &filter.Register{
		Name: "sick",
		CB: filter.Callbacks{
			Process: func(f *filter.Filter) error {
				f.RequestRequeue()
				return gferr.New(gferr.IOErr, "boom")
			},
		},
	}
	s := New(cmn.DefaultConfig())
	f := newTestFilter(t, s, reg)

	s.Start(context.Background())
	defer s.Stop()

	s.Reschedule(f.Index())
	require.Eventually(t, func() bool { return f.IsDisabled() }, 2*time.Second, 5*time.Millisecond)
}
