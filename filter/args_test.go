package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gofilt/gofilt/cmn"
)

func TestParseArgStringBasics(t *testing.T) {
	sep := cmn.DefaultSeparators()
	args, pidProps, err := ParseArgString("width=1920:height=1080:raw:!debug:#fps=25", sep, nil)
	require.NoError(t, err)

	w, ok := args["width"]
	require.True(t, ok)
	require.Equal(t, "1920", w.AsString())

	r, ok := args["raw"]
	require.True(t, ok)
	require.True(t, r.AsBool())

	d, ok := args["debug"]
	require.True(t, ok)
	require.False(t, d.AsBool())

	fps, ok := pidProps["fps"]
	require.True(t, ok)
	require.Equal(t, "25", fps.AsString())
}

func TestParseArgStringURLNotSplit(t *testing.T) {
	sep := cmn.DefaultSeparators()
	args, _, err := ParseArgString("src=http://example.com:8080/path:format=mp4", sep, nil)
	require.NoError(t, err)

	src, ok := args["src"]
	require.True(t, ok)
	require.Equal(t, "http://example.com:8080/path", src.AsString())

	f, ok := args["format"]
	require.True(t, ok)
	require.Equal(t, "mp4", f.AsString())
}

func TestParseArgStringEscapedSeparator(t *testing.T) {
	sep := cmn.DefaultSeparators()
	args, _, err := ParseArgString("name=a::b", sep, nil)
	require.NoError(t, err)
	v, ok := args["name"]
	require.True(t, ok)
	require.Equal(t, "a:b", v.AsString())
}

func TestInheritArgsStripsLocalAndPidProps(t *testing.T) {
	sep := cmn.DefaultSeparators()
	out := InheritArgs(sep, "width=1920:FID=src1", "codec=hevc:#fps=30:gfloc_tmp=1")
	require.Contains(t, out, "width=1920")
	require.NotContains(t, out, "FID")
	require.Contains(t, out, "codec=hevc")
	require.NotContains(t, out, "fps=30")
	require.NotContains(t, out, "gfloc_tmp")
}

func TestGIncStableAndIncrementing(t *testing.T) {
	ResetGInc()
	a := GInc("seedA", 0)
	b := GInc("seedA", 0)
	require.Equal(t, a+1, b)

	c := GInc("seedB", 5)
	d := GInc("seedB", 5)
	require.Equal(t, c+5, d)
}
