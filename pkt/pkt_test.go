package pkt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gofilt/gofilt/memsys"
	"github.com/gofilt/gofilt/prop"
)

func TestFlagsSAPAndCmd(t *testing.T) {
	var f Flags
	f = f.WithSAP(SAPOpenGOP)
	require.Equal(t, SAPOpenGOP, f.SAP())

	f = f.WithCmd(CmdPidEOS)
	require.Equal(t, CmdPidEOS, f.Cmd())
	require.Equal(t, SAPOpenGOP, f.SAP(), "setting cmd must not disturb the SAP bits")

	f = f.Set(FlagBlockStart)
	require.True(t, f.Has(FlagBlockStart))
	f = f.Clear(FlagBlockStart)
	require.False(t, f.Has(FlagBlockStart))
}

func TestNewAllocRoundTrip(t *testing.T) {
	pool := memsys.NewMMSA()
	res := prop.NewReservoir()
	props := prop.NewMap(res)
	props.Set(0, "codec", prop.String("h264"))

	p := NewAlloc(pool, 4096, props)
	require.Len(t, p.Bytes(), 4096)

	v, ok := p.Props().Get(0, "codec")
	require.True(t, ok)
	require.Equal(t, "h264", v.AsString())

	p.Unref()
}

func TestNewRefSharesPayloadBumpsSource(t *testing.T) {
	pool := memsys.NewMMSA()
	src := NewAlloc(pool, 16, nil)
	copy(src.Bytes(), []byte("0123456789012345"))

	r := NewRef(src)
	require.Equal(t, src.Bytes(), r.Bytes())

	src.Unref() // drop producer's own reference; src.refs still held by r
	require.NotNil(t, r.Bytes(), "ref packet must keep source alive until its own Unref")

	r.Unref()
}

func TestNewSharedReleaseCBFiresOnce(t *testing.T) {
	calls := 0
	buf := make([]byte, 8)
	p := NewShared(buf, func() { calls++ }, nil)

	p2 := p.Ref()
	p.Unref()
	require.Equal(t, 0, calls, "release callback must wait for every ref to drop")
	p2.Unref()
	require.Equal(t, 1, calls)
}
