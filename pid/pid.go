// Package pid implements the filter session's output pid and pid-instance
// types (§4.3): the producer-owned output port and one FIFO per connected
// consumer, with would-block accounting, property propagation, EOS, and
// capability-renegotiation hooks.
//
// Grounded on the teacher's transport.Stream (transport/api.go) fanning out
// one logical object to many destinations via transport/bundle's
// stream-bundle/data-mover pattern: one OutputPid here plays the role of
// one Stream's source side, and each PidInstance plays the role of one
// destination stream, each with its own queue and back-pressure state.
// transport/collect.go's idle-stream detector grounds the per-pid sparse
// flag.
/*
 * Copyright (c) 2018-2022, NVIDIA CORPORATION. All rights reserved.
 */
package pid

import (
	"sync"

	"github.com/gofilt/gofilt/cmn"
	"github.com/gofilt/gofilt/cmn/atomic"
	"github.com/gofilt/gofilt/prop"
)

// FilterHandle decouples pid from the filter package (§9 "arena + indices":
// a pid holds a stable handle to its owning/consuming filter rather than an
// arbitrary pointer cycle). filter.Filter implements this.
type FilterHandle interface {
	Index() int
	// Wake reschedules the filter: new packets or would-block state changed.
	Wake()
}

// Event is a pid-level signal (§4.3 send_event): seek/play/stop/buffer
// requests and quality hints flow upstream; configuration notices flow
// downstream.
type Event struct {
	Kind     string
	Upstream bool
	Data     prop.Value
}

// OutputPid is a producer's output port (§4.3 pid_new). One OutputPid fans
// out to zero or more PidInstances, one per connected consumer.
type OutputPid struct {
	mu        sync.Mutex
	owner     FilterHandle
	name      string
	timescale uint32
	// requiresReorder overrides the default monotonic-sequence assumption:
	// set when the producer may deliver packets out of DTS order and relies
	// on downstream reordering rather than in-order delivery.
	requiresReorder bool
	// sparse marks a pid whose producer may go quiet for long stretches
	// without that silence meaning end-of-stream (e.g. a subtitle or data
	// pid) - consumers must not treat its idle queue as would_block.
	sparse bool

	props        *prop.Map
	propsVersion uint64

	eos atomic.Bool
	seq uint32

	buffers   cmn.PidBuffers
	instances []*PidInstance

	listeners []func(Event)

	// sentCount counts packets handed to Send, the "written" half of
	// sched's §4.6 nb_pck_io health-check accounting.
	sentCount atomic.Int64
}

func NewOutputPid(owner FilterHandle, name string, timescale uint32, buffers cmn.PidBuffers, res *prop.Reservoir) *OutputPid {
	return &OutputPid{
		owner:     owner,
		name:      name,
		timescale: timescale,
		buffers:   buffers,
		props:     prop.NewMap(res),
	}
}

func (p *OutputPid) Name() string   { return p.name }
func (p *OutputPid) Owner() FilterHandle { return p.owner }
func (p *OutputPid) Timescale() uint32  { return p.timescale }
func (p *OutputPid) IsEOS() bool        { return p.eos.Load() }
func (p *OutputPid) SetSparse(v bool)   { p.sparse = v }
func (p *OutputPid) IsSparse() bool     { return p.sparse }
func (p *OutputPid) SetRequiresReorder(v bool) { p.requiresReorder = v }
func (p *OutputPid) RequiresReorder() bool     { return p.requiresReorder }

// NextSeq returns the next monotonic sequence number for a packet produced
// on this pid.
func (p *OutputPid) NextSeq() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return p.seq
}

// SetProperty implements §4.3 set_property: publishes a new value into the
// pid's property map and bumps propsVersion, so every connected instance's
// next GetPacket reports "props changed" exactly once.
func (p *OutputPid) SetProperty(key4cc uint32, name string, v prop.Value) {
	p.mu.Lock()
	p.props.Set(key4cc, name, v)
	p.propsVersion++
	p.mu.Unlock()
}

// GetInfo implements §4.3 get_info: a direct, non-configuring read of the
// pid's current property map. It always reflects the producer's latest
// value and never toggles "props changed"; a consumer's
// PidInstance.GetProperty falls back to this same read.
func (p *OutputPid) GetInfo(key4cc uint32, name string) (prop.Value, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.props.Get(key4cc, name)
}

// SetEOS implements §4.3 set_eos: no further packets flow; every connected
// instance is marked EOS once its queue drains.
func (p *OutputPid) SetEOS() {
	p.eos.Store(true)
	p.mu.Lock()
	insts := append([]*PidInstance(nil), p.instances...)
	p.mu.Unlock()
	for _, inst := range insts {
		inst.markUpstreamEOS()
	}
}

// Connect creates a new PidInstance for consumer and attaches it to this
// pid's fan-out list.
func (p *OutputPid) Connect(consumer FilterHandle, buffers cmn.PidBuffers, requiresFullDataBlock bool) *PidInstance {
	inst := newPidInstance(p, consumer, buffers, requiresFullDataBlock)
	p.mu.Lock()
	p.instances = append(p.instances, inst)
	p.mu.Unlock()
	return inst
}

// Disconnect removes inst from this pid's fan-out list (e.g. on filter
// teardown or a resolver-driven reconnect).
func (p *OutputPid) Disconnect(inst *PidInstance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cur := range p.instances {
		if cur == inst {
			p.instances = append(p.instances[:i], p.instances[i+1:]...)
			return
		}
	}
}

// SentCount returns the number of packets handed to Send, for sched's
// §4.6 nb_pck_io health-check accounting.
func (p *OutputPid) SentCount() int64 { return p.sentCount.Load() }

func (p *OutputPid) Instances() []*PidInstance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*PidInstance(nil), p.instances...)
}

// SendEvent implements §4.3 send_event (producer side, downstream-directed
// unless evt.Upstream). Listeners are the connected instances' consumers.
func (p *OutputPid) SendEvent(evt Event) {
	p.mu.Lock()
	insts := append([]*PidInstance(nil), p.instances...)
	p.mu.Unlock()
	for _, inst := range insts {
		inst.receiveDownstreamEvent(evt)
	}
}
