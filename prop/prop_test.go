package prop

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueEqualWildcardAndAlternates(t *testing.T) {
	require.True(t, Equal(String("video/mp4"), String("*")))
	require.True(t, Equal(String("*"), String("video/mp4")))
	require.True(t, Equal(String("h264|hevc"), String("hevc")))
	require.False(t, Equal(String("h264|hevc"), String("av1")))
	require.True(t, Equal(IntList([]int64{1, 2, 3}), IntList([]int64{1, 2, 3})))
	require.False(t, Equal(IntList([]int64{1, 2}), IntList([]int64{1, 2, 3})))
}

func TestValueDump(t *testing.T) {
	require.Equal(t, "42", Dump(I32(42), ","))
	require.Equal(t, "25/1", Dump(FracVal(25, 1, false), ","))
	require.Equal(t, "1920x1080", Dump(Vec2IVal(1920, 1080), ","))
	require.Equal(t, "a,b,c", Dump(StringList([]string{"a", "b", "c"}), ","))
}

func TestParseInt(t *testing.T) {
	cases := map[string]int64{
		"1000":  1000,
		"1k":    1000,
		"2m":    2000000,
		"0x10":  16,
		"-5":    -5,
		"+I":    PosInf,
		"-I":    NegInf,
	}
	for in, want := range cases {
		v, err := Parse(KindI64, in, nil, ",")
		require.NoError(t, err, in)
		require.Equal(t, want, v.AsI64(), in)
	}
}

func TestParseVec2I(t *testing.T) {
	v, err := Parse(KindVec2I, "1920x1080", nil, ",")
	require.NoError(t, err)
	require.Equal(t, Vec2I{1920, 1080}, v.AsVec2I())

	v, err = Parse(KindVec2I, "hd", nil, ",")
	require.NoError(t, err)
	require.Equal(t, Vec2I{1280, 720}, v.AsVec2I())
}

func TestParseTimeString(t *testing.T) {
	v, err := Parse(KindDouble, "00:01:30.500", nil, ",")
	require.NoError(t, err)
	require.InDelta(t, 90500.0, v.AsFloat(), 0.001)
}

func TestParseEnum(t *testing.T) {
	enums := EnumList{"YUV420P": 0, "RGBA": 1}
	v, err := Parse(KindPixFmt, "RGBA", enums, ",")
	require.NoError(t, err)
	require.Equal(t, int64(1), v.AsI64())

	v, err = Parse(KindPixFmt, "2", enums, ",")
	require.NoError(t, err)
	require.Equal(t, int64(2), v.AsI64())
}

func TestMapSetGetRemove(t *testing.T) {
	res := NewReservoir()
	m := NewMap(res)
	m.Set(0, "width", I32(1920))
	m.Set(0, "height", I32(1080))

	v, ok := m.Get(0, "width")
	require.True(t, ok)
	require.EqualValues(t, 1920, v.AsI64())

	require.Equal(t, 2, m.Count())
	require.True(t, m.Remove(0, "height"))
	require.Equal(t, 1, m.Count())

	_, ok = m.Get(0, "height")
	require.False(t, ok)
}

func TestMapCopyOnWriteAfterRef(t *testing.T) {
	res := NewReservoir()
	m := NewMap(res)
	m.Set(0, "codec", String("h264"))

	shared := m.Ref()
	m.Set(0, "codec", String("hevc"))

	v, _ := m.Get(0, "codec")
	require.Equal(t, "hevc", v.AsString())

	sv, _ := shared.Get(0, "codec")
	require.Equal(t, "h264", sv.AsString(), "shared snapshot must not observe the post-Ref mutation")
}

func TestMapMerge(t *testing.T) {
	res := NewReservoir()
	dst := NewMap(res)
	src := NewMap(res)
	src.Set(0, "a", I32(1))
	src.Set(0, "b", I32(2))

	Merge(dst, src, func(key4cc uint32, name string, v Value) bool {
		return name != "b"
	})

	_, ok := dst.Get(0, "a")
	require.True(t, ok)
	_, ok = dst.Get(0, "b")
	require.False(t, ok)
}

func TestDumpJSON(t *testing.T) {
	res := NewReservoir()
	m := NewMap(res)
	m.Set(0, "width", I32(1920))
	b, err := DumpJSON(m)
	require.NoError(t, err)
	require.Contains(t, string(b), "width")
}
