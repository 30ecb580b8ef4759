package caps

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gofilt/gofilt/prop"
)

type fakeEntry struct {
	name        string
	bundles     []Bundle
	priority    int
	script      bool
	meta        bool
	allowCyclic bool
	explicit    bool
}

func (e *fakeEntry) Name() string        { return e.name }
func (e *fakeEntry) Bundles() []Bundle   { return e.bundles }
func (e *fakeEntry) Priority() int       { return e.priority }
func (e *fakeEntry) IsScript() bool      { return e.script }
func (e *fakeEntry) IsMeta() bool        { return e.meta }
func (e *fakeEntry) AllowCyclic() bool   { return e.allowCyclic }
func (e *fakeEntry) ExplicitOnly() bool  { return e.explicit }

func outCap(name string, v prop.Value) Cap { return Cap{Name: name, Value: v, Flags: FlagOutput} }
func inCap(name string, v prop.Value) Cap  { return Cap{Name: name, Value: v, Flags: FlagInput} }
func exCap(name string, v prop.Value) Cap {
	return Cap{Name: name, Value: v, Flags: FlagInput | FlagExcluded}
}

func TestBundleMatchesUnrestrictedKey(t *testing.T) {
	src := Bundle{outCap("codec_id", prop.String("RAW"))}
	dst := Bundle{inCap("format", prop.String("iso"))}
	require.True(t, src.Matches(dst, false))
}

func TestBundleMatchesExcludedValue(t *testing.T) {
	src := Bundle{outCap("codec_id", prop.String("RAW"))}
	dst := Bundle{exCap("codec_id", prop.String("RAW"))}
	require.False(t, src.Matches(dst, false))
}

func TestBundleMatchesRequiresNonExcludedEqual(t *testing.T) {
	src := Bundle{outCap("codec_id", prop.String("RAW"))}
	dst := Bundle{inCap("codec_id", prop.String("AVC"))}
	require.False(t, src.Matches(dst, false))

	dst2 := Bundle{inCap("codec_id", prop.String("RAW"))}
	require.True(t, src.Matches(dst2, false))
}

func TestBundleMatchesRelaxIgnoresStaticForcedCap(t *testing.T) {
	src := Bundle{outCap("codec_id", prop.String("RAW"))}
	dst := Bundle{{Name: "codec_id", Value: prop.String("AVC"), Flags: FlagInput | FlagStatic}}
	require.False(t, src.Matches(dst, false))
	require.True(t, src.Matches(dst, true))
}

func TestGraphResolveLinkDirectChain(t *testing.T) {
	src := &fakeEntry{name: "rawsrc", bundles: []Bundle{{outCap("codec_id", prop.String("RAW"))}}}
	mid := &fakeEntry{
		name:     "encoder",
		priority: 1,
		bundles: []Bundle{
			{inCap("codec_id", prop.String("RAW"))},
			{outCap("codec_id", prop.String("AVC"))},
		},
	}
	sink := &fakeEntry{name: "sink", bundles: []Bundle{{inCap("codec_id", prop.String("AVC"))}}}

	reg := NewRegistry()
	reg.AddRegister(src)
	reg.AddRegister(mid)
	reg.AddRegister(sink)

	chain, err := reg.Graph().ResolveLink("rawsrc", "sink", ResolveOpts{})
	require.NoError(t, err)
	require.Equal(t, []string{"encoder", "sink"}, chain)
}

func TestGraphResolveLinkPrefersLowerCost(t *testing.T) {
	src := &fakeEntry{name: "src", bundles: []Bundle{{outCap("k", prop.String("v"))}}}
	direct := &fakeEntry{name: "direct", bundles: []Bundle{{inCap("k", prop.String("v"))}}}
	scripted := &fakeEntry{
		name: "scripted", script: true,
		bundles: []Bundle{{inCap("k", prop.String("v"))}, {outCap("k", prop.String("v"))}},
	}
	reg := NewRegistry()
	reg.AddRegister(src)
	reg.AddRegister(direct)
	reg.AddRegister(scripted)

	chain, err := reg.Graph().ResolveLink("src", "direct", ResolveOpts{})
	require.NoError(t, err)
	require.Equal(t, []string{"direct"}, chain)
}

func TestGraphResolveLinkBlacklistForcesDetour(t *testing.T) {
	src := &fakeEntry{name: "src", bundles: []Bundle{{outCap("k", prop.String("v"))}}}
	a := &fakeEntry{
		name: "regA",
		bundles: []Bundle{
			{inCap("k", prop.String("v"))},
			{outCap("k", prop.String("w"))},
		},
	}
	b := &fakeEntry{name: "regB", bundles: []Bundle{{inCap("k", prop.String("v"))}}}
	sink := &fakeEntry{name: "sink", bundles: []Bundle{{inCap("k", prop.String("w"))}}}

	reg := NewRegistry()
	reg.AddRegister(src)
	reg.AddRegister(a)
	reg.AddRegister(b)
	reg.AddRegister(sink)

	bl := NewTriedSet()
	bl.Add("regA")
	_, err := reg.Graph().ResolveLink("src", "sink", ResolveOpts{Blacklist: bl})
	require.Error(t, err) // regB has no path to sink, regA is blacklisted
}

func TestGraphResolveLinkNoPath(t *testing.T) {
	src := &fakeEntry{name: "src", bundles: []Bundle{{outCap("k", prop.String("v"))}}}
	sink := &fakeEntry{name: "sink", bundles: []Bundle{{inCap("k", prop.String("x"))}}}
	reg := NewRegistry()
	reg.AddRegister(src)
	reg.AddRegister(sink)

	_, err := reg.Graph().ResolveLink("src", "sink", ResolveOpts{})
	require.Error(t, err)
}

// TestGraphResolveLinkSkipsExplicitOnlyIntermediate checks that a
// register flagged ExplicitOnly is never auto-selected as a chain
// intermediate (§4.5), even when it would otherwise offer the cheapest
// path, but is still reachable when it is the resolve_link target itself.
func TestGraphResolveLinkSkipsExplicitOnlyIntermediate(t *testing.T) {
	src := &fakeEntry{name: "src", bundles: []Bundle{{outCap("k", prop.String("v"))}}}
	explicitMid := &fakeEntry{
		name:     "explicit_mid",
		explicit: true,
		priority: 1,
		bundles: []Bundle{
			{inCap("k", prop.String("v"))},
			{outCap("k", prop.String("v2"))},
		},
	}
	detour := &fakeEntry{
		name: "detour",
		bundles: []Bundle{
			{inCap("k", prop.String("v"))},
			{outCap("k", prop.String("v2"))},
		},
	}
	sink := &fakeEntry{name: "sink", bundles: []Bundle{{inCap("k", prop.String("v2"))}}}

	reg := NewRegistry()
	reg.AddRegister(src)
	reg.AddRegister(explicitMid)
	reg.AddRegister(detour)
	reg.AddRegister(sink)

	chain, err := reg.Graph().ResolveLink("src", "sink", ResolveOpts{})
	require.NoError(t, err)
	require.Equal(t, []string{"detour", "sink"}, chain)

	// still reachable when it is the target, not merely a hop.
	chain, err = reg.Graph().ResolveLink("src", "explicit_mid", ResolveOpts{})
	require.NoError(t, err)
	require.Equal(t, []string{"explicit_mid"}, chain)
}

func TestLiveGraphWouldCycle(t *testing.T) {
	lg := NewLiveGraph()
	lg.Connect("a", "b")
	lg.Connect("b", "c")
	require.True(t, lg.WouldCycle("c", "a"))
	require.False(t, lg.WouldCycle("a", "d"))
}

func TestImplicitScoreExcludesCrossSubsession(t *testing.T) {
	_, ok := ImplicitScore(1, 2, "", "")
	require.False(t, ok)

	score, ok := ImplicitScore(1, 1, "src1", "src1")
	require.True(t, ok)
	require.Equal(t, 0, score)
}
