package pid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gofilt/gofilt/cmn"
	"github.com/gofilt/gofilt/memsys"
	"github.com/gofilt/gofilt/pkt"
	"github.com/gofilt/gofilt/prop"
)

type fakeFilter struct {
	idx    int
	wakes  int
}

func (f *fakeFilter) Index() int { return f.idx }
func (f *fakeFilter) Wake()      { f.wakes++ }

func newTestPid(t *testing.T) (*OutputPid, *fakeFilter, *fakeFilter) {
	t.Helper()
	producer := &fakeFilter{idx: 0}
	consumer := &fakeFilter{idx: 1}
	res := prop.NewReservoir()
	p := NewOutputPid(producer, "out0", 1000, cmn.DefaultPidBuffers(), res)
	return p, producer, consumer
}

func TestConnectDeliverDrop(t *testing.T) {
	p, _, consumer := newTestPid(t)
	inst := p.Connect(consumer, cmn.DefaultPidBuffers(), false)

	pool := memsys.NewMMSA()
	pck := pkt.NewAlloc(pool, 16, nil)
	pck.SetDuration(int64(50 * time.Millisecond / time.Microsecond))
	p.Send(pck)

	require.Equal(t, 1, consumer.wakes)
	got, ok := inst.GetPacket()
	require.True(t, ok)
	require.NotNil(t, got)
	require.True(t, inst.DropPacket())
	_, ok = inst.GetPacket()
	require.False(t, ok)
}

func TestWouldBlockCrossesBufferThreshold(t *testing.T) {
	buffers := cmn.PidBuffers{Buffer: 100 * time.Millisecond, RBuffer: 50 * time.Millisecond, MBuffer: 500 * time.Millisecond}
	p, _, consumer := newTestPid(t)
	inst := p.Connect(consumer, buffers, false)
	pool := memsys.NewMMSA()

	for i := 0; i < 3; i++ {
		pck := pkt.NewAlloc(pool, 8, nil)
		pck.SetDuration(int64(50 * time.Millisecond / time.Microsecond))
		p.Send(pck)
	}
	require.True(t, inst.WouldBlock())
}

func TestPropsChangedFiresOnce(t *testing.T) {
	p, _, consumer := newTestPid(t)
	inst := p.Connect(consumer, cmn.DefaultPidBuffers(), false)
	pool := memsys.NewMMSA()

	p.SetProperty(0, "width", prop.I32(1920))
	p.Send(pkt.NewAlloc(pool, 4, nil))

	_, ok := inst.GetPacket()
	require.True(t, ok)
	require.True(t, inst.PropsChanged())
	require.False(t, inst.PropsChanged(), "must not fire a second time without a new publish")
}

func TestSetEOSFinalizesDrainedInstance(t *testing.T) {
	p, _, consumer := newTestPid(t)
	inst := p.Connect(consumer, cmn.DefaultPidBuffers(), false)
	p.SetEOS()
	require.True(t, inst.IsEOS())
}

func TestReassemblerJoinsBlockSequence(t *testing.T) {
	buffers := cmn.DefaultPidBuffers()
	p, _, consumer := newTestPid(t)
	inst := p.Connect(consumer, buffers, true)
	pool := memsys.NewMMSA()

	start := pkt.NewAlloc(pool, 4, nil)
	copy(start.Bytes(), []byte("abcd"))
	start.SetFlags(pkt.FlagBlockStart)
	p.Send(start)

	mid := pkt.NewAlloc(pool, 4, nil)
	copy(mid.Bytes(), []byte("efgh"))
	p.Send(mid)

	end := pkt.NewAlloc(pool, 4, nil)
	copy(end.Bytes(), []byte("ijkl"))
	end.SetFlags(pkt.FlagBlockEnd)
	p.Send(end)

	got, ok := inst.GetPacket()
	require.True(t, ok)
	require.Equal(t, []byte("abcdefghijkl"), got.Bytes())
}
