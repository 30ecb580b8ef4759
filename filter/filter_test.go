package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gofilt/gofilt/cmn"
	"github.com/gofilt/gofilt/prop"
)

type fakeSched struct{ rescheduled []int }

func (s *fakeSched) Reschedule(idx int) { s.rescheduled = append(s.rescheduled, idx) }

func TestFilterNewParsesArgsAndInitializes(t *testing.T) {
	initCalled := false
	reg := &Register{
		Name: "testfilter",
		Args: []ArgDesc{{Name: "width", Type: prop.KindI32}},
		CB: Callbacks{
			Process: func(f *Filter) error { return nil },
			Initialize: func(f *Filter) error {
				initCalled = true
				return nil
			},
		},
	}
	sched := &fakeSched{}
	f, err := New(0, reg, sched, "width=1920", "", nil, cmn.DefaultSeparators())
	require.NoError(t, err)
	require.True(t, initCalled)
	require.True(t, f.IsRunning())

	w, ok := f.Arg("width")
	require.True(t, ok)
	require.EqualValues(t, 1920, w.AsI64())
}

func TestFilterRequiresProcessCallback(t *testing.T) {
	reg := &Register{Name: "broken"}
	_, err := New(0, reg, nil, "", "", nil, cmn.DefaultSeparators())
	require.Error(t, err)
}

func TestFilterFinalizeIdempotent(t *testing.T) {
	calls := 0
	reg := &Register{
		Name: "sink",
		CB: Callbacks{
			Process:  func(f *Filter) error { return nil },
			Finalize: func(f *Filter) { calls++ },
		},
	}
	f, err := New(0, reg, nil, "", "", nil, cmn.DefaultSeparators())
	require.NoError(t, err)
	f.Finalize()
	f.Finalize()
	require.Equal(t, 1, calls)
	require.False(t, f.IsRunning())
}

func TestFilterWakeCallsScheduler(t *testing.T) {
	reg := &Register{CB: Callbacks{Process: func(f *Filter) error { return nil }}}
	sched := &fakeSched{}
	f, err := New(3, reg, sched, "", "", nil, cmn.DefaultSeparators())
	require.NoError(t, err)
	f.Wake()
	require.Equal(t, []int{3}, sched.rescheduled)
}
