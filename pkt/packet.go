package pkt

import (
	"github.com/gofilt/gofilt/cmn/atomic"
	"github.com/gofilt/gofilt/memsys"
	"github.com/gofilt/gofilt/prop"
)

// payloadKind selects which of Packet's payload fields is meaningful.
type payloadKind int

const (
	payloadOwned payloadKind = iota
	payloadShared
	payloadRef
	payloadFrameInterface
)

// FrameInterface is the callback-object payload variant (§4.2
// new_frame_interface): a decoded frame a filter hands downstream without
// copying it into a byte buffer, e.g. a GPU surface or a decoder's internal
// picture buffer.
type FrameInterface interface {
	// Plane returns the idx'th image plane (0 for packed/non-planar data).
	Plane(idx int) (data []byte, stride int, err error)
	NumPlanes() int
}

// Info is the packet-info header (§4.2): timing, sequencing, and the flag
// word. Copied by value on NewRef so a reference packet can override
// individual fields (e.g. a different DTS at a new destination) without
// perturbing the source.
type Info struct {
	DTS             int64
	CTS             int64
	Duration        int64
	ByteOffset      int64
	SeqNum          uint32
	RollDistance    int32
	CarouselVersion uint32
	Flags           Flags
}

// Packet is the §4.2 reference-counted unit of data flow. Held behind a
// pointer always; the zero value is never used directly by callers.
type Packet struct {
	kind     payloadKind
	owned    []byte
	pool     *memsys.MMSA
	shared   []byte
	releaseCB func()
	ref      *Packet
	frame    FrameInterface

	props *prop.Map
	info  Info

	refs atomic.Int32
}

// NewAlloc implements §4.2 new_alloc(pid, size): an owned buffer pulled
// from the filter's reservoir.
func NewAlloc(pool *memsys.MMSA, size int, props *prop.Map) *Packet {
	p := &Packet{kind: payloadOwned, pool: pool, owned: pool.Alloc(size), props: props}
	p.refs.Store(1)
	return p
}

// NewShared implements §4.2 new_shared(pid, bytes, size, release_cb): a
// borrowed buffer the producer still owns; releaseCB runs once the last
// reference drops, exactly as the teacher's Obj.Callback fires once per
// object regardless of fan-out (transport/api.go's Obj.prc).
func NewShared(bytes []byte, releaseCB func(), props *prop.Map) *Packet {
	p := &Packet{kind: payloadShared, shared: bytes, releaseCB: releaseCB, props: props}
	p.refs.Store(1)
	return p
}

// NewRef implements §4.2 new_ref(other_packet): clones metadata (info,
// properties) while sharing the source's payload; the source's refcount is
// bumped so it cannot be released before this reference drops.
func NewRef(other *Packet) *Packet {
	other.refs.Inc()
	p := &Packet{kind: payloadRef, ref: other, info: other.info}
	if other.props != nil {
		p.props = other.props.Ref()
	}
	p.refs.Store(1)
	return p
}

// NewFrameInterface implements §4.2 new_frame_interface(pid, ifce).
func NewFrameInterface(ifce FrameInterface, props *prop.Map) *Packet {
	p := &Packet{kind: payloadFrameInterface, frame: ifce, props: props}
	p.refs.Store(1)
	return p
}

// Bytes returns the packet's payload as a byte slice. Valid only for
// owned/shared/ref payload kinds; a frame-interface packet has no single
// byte-slice view and returns nil - callers must use Frame() instead.
func (p *Packet) Bytes() []byte {
	switch p.kind {
	case payloadOwned:
		return p.owned
	case payloadShared:
		return p.shared
	case payloadRef:
		return p.ref.Bytes()
	default:
		return nil
	}
}

// Frame returns the frame-interface payload, or nil if this packet doesn't
// carry one.
func (p *Packet) Frame() FrameInterface {
	if p.kind == payloadFrameInterface {
		return p.frame
	}
	return nil
}

func (p *Packet) Props() *prop.Map { return p.props }
func (p *Packet) Info() Info       { return p.info }
func (p *Packet) SetInfo(i Info)   { p.info = i }

func (p *Packet) SetDTS(dts int64)                   { p.info.DTS = dts }
func (p *Packet) SetCTS(cts int64)                   { p.info.CTS = cts }
func (p *Packet) SetDuration(d int64)                { p.info.Duration = d }
func (p *Packet) SetByteOffset(o int64)               { p.info.ByteOffset = o }
func (p *Packet) SetSeqNum(n uint32)                  { p.info.SeqNum = n }
func (p *Packet) SetRollDistance(r int32)             { p.info.RollDistance = r }
func (p *Packet) SetCarouselVersion(v uint32)         { p.info.CarouselVersion = v }
func (p *Packet) SetFlags(f Flags)                    { p.info.Flags = f }
func (p *Packet) HasFlag(f Flags) bool                { return p.info.Flags.Has(f) }

// Ref pins the packet (§4.2 "to retain, it calls ref(pck)"): bumps the
// refcount and, transitively, the refcount of the producing pid's property
// map, so both stay alive until a matching Unref.
func (p *Packet) Ref() *Packet {
	p.refs.Inc()
	return p
}

// Unref implements §4.2's drop path: when the refcount reaches zero, an
// owned buffer returns to its pool, a shared buffer's release callback
// fires, a ref packet releases its source, and the property map (if any)
// is unreffed.
func (p *Packet) Unref() {
	if p.refs.Dec() > 0 {
		return
	}
	switch p.kind {
	case payloadOwned:
		if p.pool != nil && p.owned != nil {
			p.pool.Free(p.owned)
		}
	case payloadShared:
		if p.releaseCB != nil {
			p.releaseCB()
		}
	case payloadRef:
		p.ref.Unref()
	}
	if p.props != nil {
		p.props.Unref()
	}
}
