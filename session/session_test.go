package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gofilt/gofilt/caps"
	"github.com/gofilt/gofilt/cmn"
	"github.com/gofilt/gofilt/filter"
	"github.com/gofilt/gofilt/gferr"
	"github.com/gofilt/gofilt/pid"
	"github.com/gofilt/gofilt/pkt"
	"github.com/gofilt/gofilt/prop"
	"github.com/gofilt/gofilt/sched"
)

var testReservoir = prop.NewReservoir()

// sourceReg builds a register that, once started, sends len(ctsList)
// packets stamped with the given CTS values, then EOS's its output and
// returns gferr.EOS.
func sourceReg(name string, ctsList []int64, outCaps []caps.Cap) *filter.Register {
	var idx int
	return &filter.Register{
		Name: name,
		Caps: []caps.Bundle{outCaps},
		CB: filter.Callbacks{
			Initialize: func(f *filter.Filter) error {
				out := pid.NewOutputPid(f, "out", 1000, cmn.PidBuffers{}, testReservoir)
				f.AddOutput(out)
				return nil
			},
			Process: func(f *filter.Filter) error {
				out := f.Outputs()[0]
				if idx >= len(ctsList) {
					out.SetEOS()
					return gferr.New(gferr.EOS, "")
				}
				p := pkt.NewShared([]byte("x"), nil, nil)
				p.SetCTS(ctsList[idx])
				idx++
				out.Send(p)
				f.RequestRequeue()
				return nil
			},
		},
	}
}

// sinkReg builds a register that drains every connected input, appending
// each packet's CTS to *got (guarded by mu), and reports EOS once its
// input has reached EOS with nothing left queued.
func sinkReg(name string, inCaps []caps.Cap, got *[]int64, mu *sync.Mutex) *filter.Register {
	return &filter.Register{
		Name: name,
		Caps: []caps.Bundle{inCaps},
		CB: filter.Callbacks{
			Process: func(f *filter.Filter) error {
				ins := f.Inputs()
				if len(ins) == 0 {
					return nil
				}
				in := ins[0]
				for {
					p, ok := in.GetPacket()
					if !ok {
						break
					}
					mu.Lock()
					*got = append(*got, p.Info().CTS)
					mu.Unlock()
					in.DropPacket()
				}
				if in.IsEOS() {
					return gferr.New(gferr.EOS, "")
				}
				return nil
			},
		},
	}
}

func waitDone(t *testing.T, s *Session, timeout time.Duration) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(timeout):
		t.Fatal("session did not terminate in time")
	}
}

// TestSessionPassThrough drives §8 S1: a source emitting 3 packets at
// CTS 0/40/80 then EOS, directly into a sink, with the session
// terminating once both filters finalize.
func TestSessionPassThrough(t *testing.T) {
	var got []int64
	var mu sync.Mutex

	open := []caps.Cap{{Name: "fmt", Value: prop.String("raw"), Flags: caps.FlagOutput}}
	closed := []caps.Cap{{Name: "fmt", Value: prop.String("raw"), Flags: caps.FlagInput}}

	s := New(nil, nil)
	s.RegisterFilterKind(sourceReg("src", []int64{0, 40, 80}, open))
	s.RegisterFilterKind(sinkReg("sink", closed, &got, &mu))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	_, err := s.AddFilter("src", "", "")
	require.NoError(t, err)
	_, err = s.AddFilter("sink", "", "")
	require.NoError(t, err)

	waitDone(t, s, 2*time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int64{0, 40, 80}, got)
}

// TestSessionResolverChain drives §8 S2: src's "raw" output can't reach
// sink's "enc"-only input directly, but an intermediate adapter register
// bridges the two, so the resolver must auto-insert it.
func TestSessionResolverChain(t *testing.T) {
	var got []int64
	var mu sync.Mutex

	srcOut := []caps.Cap{{Name: "fmt", Value: prop.String("raw"), Flags: caps.FlagOutput}}
	sinkIn := []caps.Cap{{Name: "fmt", Value: prop.String("enc"), Flags: caps.FlagInput}}
	adapterIn := []caps.Cap{{Name: "fmt", Value: prop.String("raw"), Flags: caps.FlagInput}}
	adapterOut := []caps.Cap{{Name: "fmt", Value: prop.String("enc"), Flags: caps.FlagOutput}}

	s := New(nil, nil)
	s.RegisterFilterKind(sourceReg("src2", []int64{0}, srcOut))
	s.RegisterFilterKind(sinkReg("sink2", sinkIn, &got, &mu))
	s.RegisterFilterKind(&filter.Register{
		Name:  "adapt2",
		Flags: filter.RegAllowCyclic, // irrelevant here; exercises the flag path
		Caps:  []caps.Bundle{append(append([]caps.Cap{}, adapterIn...), adapterOut...)},
		CB: filter.Callbacks{
			Initialize: func(f *filter.Filter) error {
				out := pid.NewOutputPid(f, "out", 1000, cmn.PidBuffers{}, testReservoir)
				f.AddOutput(out)
				return nil
			},
			Process: func(f *filter.Filter) error {
				ins := f.Inputs()
				if len(ins) == 0 {
					return nil
				}
				in := ins[0]
				out := f.Outputs()[0]
				for {
					p, ok := in.GetPacket()
					if !ok {
						break
					}
					fwd := pkt.NewShared([]byte("y"), nil, nil)
					fwd.SetCTS(p.Info().CTS)
					out.Send(fwd)
					in.DropPacket()
				}
				if in.IsEOS() {
					out.SetEOS()
					return gferr.New(gferr.EOS, "")
				}
				return nil
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	_, err := s.AddFilter("src2", "", "")
	require.NoError(t, err)
	_, err = s.AddFilter("sink2", "", "")
	require.NoError(t, err)

	waitDone(t, s, 2*time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int64{0}, got)
}

// TestSessionAbortFast drives §8 S6: aborting a filter with FlushFast
// stops further Process calls and EOS's the filter's outputs, without
// requiring the whole session to reach natural EOS first.
func TestSessionAbortFast(t *testing.T) {
	var calls int
	var mu sync.Mutex

	s := New(nil, nil)
	s.RegisterFilterKind(&filter.Register{
		Name: "spinner",
		Caps: []caps.Bundle{{{Name: "fmt", Value: prop.String("raw"), Flags: caps.FlagOutput}}},
		CB: filter.Callbacks{
			Initialize: func(f *filter.Filter) error {
				f.AddOutput(pid.NewOutputPid(f, "out", 1000, cmn.PidBuffers{}, testReservoir))
				return nil
			},
			Process: func(f *filter.Filter) error {
				mu.Lock()
				calls++
				mu.Unlock()
				f.RequestRequeue()
				return nil
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	f, err := s.AddFilter("spinner", "", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 0
	}, time.Second, time.Millisecond)

	s.Abort(f.Index(), sched.FlushFast)
	require.Eventually(t, func() bool {
		for _, out := range f.Outputs() {
			if !out.IsEOS() {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)
}

// TestSessionBackpressure drives §8 S3: a producer with buffer=100ms
// emitting one 10ms packet per Process call, into a sink that never calls
// DropPacket. After 10 packets queue (100ms), the producer must stop being
// scheduled; dropping one packet must resume it.
func TestSessionBackpressure(t *testing.T) {
	var sent int
	var sentMu sync.Mutex
	loadSent := func() int {
		sentMu.Lock()
		defer sentMu.Unlock()
		return sent
	}

	open := []caps.Cap{{Name: "fmt", Value: prop.String("raw"), Flags: caps.FlagOutput}}
	closed := []caps.Cap{{Name: "fmt", Value: prop.String("raw"), Flags: caps.FlagInput}}

	var onceInst *pid.PidInstance
	var instMu sync.Mutex

	s := New(&cmn.Config{
		Threads:        1,
		MaxSleep:       5 * time.Millisecond,
		SessionTimeout: 10 * time.Second,
		MaxChainLength: 6,
		Separators:     cmn.DefaultSeparators(),
		PidBuffers: cmn.PidBuffers{
			Buffer:  100 * time.Millisecond,
			RBuffer: 50 * time.Millisecond,
			MBuffer: 10 * time.Second,
		},
		FilterQueueBound: 10,
		ImplicitLinking:  true,
	}, nil)

	s.RegisterFilterKind(&filter.Register{
		Name: "bpsrc",
		Caps: []caps.Bundle{open},
		CB: filter.Callbacks{
			Initialize: func(f *filter.Filter) error {
				out := pid.NewOutputPid(f, "out", 1000, cmn.PidBuffers{}, testReservoir)
				f.AddOutput(out)
				return nil
			},
			Process: func(f *filter.Filter) error {
				sentMu.Lock()
				sent++
				sentMu.Unlock()
				out := f.Outputs()[0]
				p := pkt.NewShared([]byte("x"), nil, nil)
				p.SetDuration(10000) // 10ms, in microseconds
				out.Send(p)
				f.RequestRequeue()
				return nil
			},
		},
	})
	s.RegisterFilterKind(&filter.Register{
		Name: "bpsink",
		Caps: []caps.Bundle{closed},
		CB: filter.Callbacks{
			ConfigurePid: func(f *filter.Filter, in *pid.PidInstance, isRemove bool) error {
				if !isRemove {
					instMu.Lock()
					onceInst = in
					instMu.Unlock()
				}
				return nil
			},
			Process: func(f *filter.Filter) error {
				return nil // never drops a packet
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	_, err := s.AddFilter("bpsrc", "", "")
	require.NoError(t, err)
	_, err = s.AddFilter("bpsink", "", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return loadSent() >= 10
	}, 2*time.Second, time.Millisecond)

	stalled := loadSent()
	require.Never(t, func() bool {
		return loadSent() > stalled
	}, 150*time.Millisecond, 5*time.Millisecond)

	instMu.Lock()
	in := onceInst
	instMu.Unlock()
	require.NotNil(t, in)
	require.True(t, in.DropPacket())

	// Exactly one more packet fits before the instance saturates again.
	require.Eventually(t, func() bool {
		return loadSent() > stalled
	}, 2*time.Second, time.Millisecond)
}

// TestSessionRenegotiation drives §8 S4: a source feeding a sink directly
// (their coarse capability bundles are incompatible, so the two are wired
// by hand here, as if some other mechanism had connected them); the sink
// observes the producer's actual pixfmt property is wrong and calls
// negotiate_property. Only once a converter register becomes available
// does the session splice it in via the swap_pidinst handshake, freezing
// the sink's original input until the converter's first packet arrives.
func TestSessionRenegotiation(t *testing.T) {
	const pixfmtKey = 0x70786674 // 'pxft', an arbitrary 4CC for this test
	const maxPackets = 30

	var got []string
	var mu sync.Mutex

	// Coarse bundles deliberately mismatch ("yuv" vs "rgb" profile) so no
	// automatic static link ever forms between rsrc and rsink, and so the
	// graph offers no direct edge once rconv is registered - only through
	// rconv do the profiles line up.
	srcCaps := []caps.Cap{{Name: "profile", Value: prop.String("yuv"), Flags: caps.FlagOutput}}
	sinkCaps := []caps.Cap{{Name: "profile", Value: prop.String("rgb"), Flags: caps.FlagInput}}
	convIn := []caps.Cap{{Name: "profile", Value: prop.String("yuv"), Flags: caps.FlagInput}}
	convOut := []caps.Cap{{Name: "profile", Value: prop.String("rgb"), Flags: caps.FlagOutput}}

	s := New(nil, nil)

	var sent int
	s.RegisterFilterKind(&filter.Register{
		Name: "rsrc",
		Caps: []caps.Bundle{srcCaps},
		CB: filter.Callbacks{
			Initialize: func(f *filter.Filter) error {
				out := pid.NewOutputPid(f, "out", 1000, cmn.PidBuffers{}, testReservoir)
				out.SetProperty(pixfmtKey, "pixfmt", prop.String("YUV420"))
				f.AddOutput(out)
				return nil
			},
			Process: func(f *filter.Filter) error {
				out := f.Outputs()[0]
				out.Send(pkt.NewShared([]byte("f"), nil, nil))
				sent++
				if sent >= maxPackets {
					out.SetEOS()
					return gferr.New(gferr.EOS, "")
				}
				f.AskRTReschedule(4000) // 4ms, paced so the sweep loop can splice mid-stream
				return nil
			},
		},
	})

	s.RegisterFilterKind(&filter.Register{
		Name: "rsink",
		Caps: []caps.Bundle{sinkCaps},
		CB: filter.Callbacks{
			Process: func(f *filter.Filter) error {
				ins := f.Inputs()
				if len(ins) == 0 {
					return nil
				}
				in := ins[0]
				v, _ := in.GetProperty(pixfmtKey, "pixfmt")
				if prop.Dump(v, "") != "RGB" {
					// reject the current format; leave whatever's queued
					// on this (soon-to-be-replaced) instance alone rather
					// than consuming it under the wrong format.
					in.NegotiateProperty(pixfmtKey, "pixfmt", prop.String("RGB"))
					f.AskRTReschedule(4000)
					return nil
				}
				for {
					p, ok := in.GetPacket()
					if !ok {
						break
					}
					_ = p
					mu.Lock()
					got = append(got, prop.Dump(v, ""))
					mu.Unlock()
					in.DropPacket()
				}
				if in.IsEOS() {
					return gferr.New(gferr.EOS, "")
				}
				return nil
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	rsrcF, err := s.AddFilter("rsrc", "", "")
	require.NoError(t, err)
	rsinkF, err := s.AddFilter("rsink", "", "")
	require.NoError(t, err)

	// No register yet bridges rsrc's "yuv" output to rsink's "rgb" input,
	// so connectNewFilter's automatic resolution found nothing; wire them
	// directly by hand, exactly the scenario §4.3 describes ("a downstream
	// filter rejects the current format").
	s.wire(rsrcF, rsrcF.Outputs()[0], rsinkF)

	// rconv only becomes available now, forcing the splice to happen at
	// runtime via negotiate_property rather than at initial link time.
	s.RegisterFilterKind(&filter.Register{
		Name:  "rconv",
		Flags: filter.RegAllowCyclic,
		Caps:  []caps.Bundle{append(append([]caps.Cap{}, convIn...), convOut...)},
		CB: filter.Callbacks{
			Initialize: func(f *filter.Filter) error {
				out := pid.NewOutputPid(f, "out", 1000, cmn.PidBuffers{}, testReservoir)
				out.SetProperty(pixfmtKey, "pixfmt", prop.String("RGB"))
				f.AddOutput(out)
				return nil
			},
			Process: func(f *filter.Filter) error {
				ins := f.Inputs()
				if len(ins) == 0 {
					return nil
				}
				in := ins[0]
				out := f.Outputs()[0]
				for {
					_, ok := in.GetPacket()
					if !ok {
						break
					}
					out.Send(pkt.NewShared([]byte("c"), nil, nil))
					in.DropPacket()
				}
				if in.IsEOS() {
					out.SetEOS()
					return gferr.New(gferr.EOS, "")
				}
				return nil
			},
		},
	})

	waitDone(t, s, 3*time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, got)
	for _, v := range got {
		require.Equal(t, "RGB", v)
	}
}
