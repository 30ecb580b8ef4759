package pid

import (
	"sync"
	"time"

	"github.com/gofilt/gofilt/cmn"
	"github.com/gofilt/gofilt/cmn/atomic"
	"github.com/gofilt/gofilt/pkt"
	"github.com/gofilt/gofilt/prop"
)

// PidInstance is one consumer's view of an OutputPid (§4.3): its own FIFO,
// its own buffer tunables, and its own would-block/props-changed state.
type PidInstance struct {
	mu       sync.Mutex
	pid      *OutputPid
	consumer FilterHandle

	queue []*pkt.Packet

	buffers          cmn.PidBuffers
	bufferedDuration time.Duration

	wouldBlock atomic.Bool
	eos        atomic.Bool

	lastPropsVersion uint64
	propsChanged     bool

	requiresFullDataBlock bool
	reassembler           *Reassembler

	// negotiated holds per-property overrides accepted via negotiate_property
	// (§4.3) that apply only to this instance, until the upstream either
	// reconfigures globally or an adapter is spliced in.
	negotiated map[uint32]prop.Value

	// pending* record an outstanding negotiate_property the owning pid
	// couldn't satisfy in place, for the session's resolver to pick up and
	// splice an adapter for (TakePendingNegotiation).
	pendingNegotiate bool
	pendingKey       uint32
	pendingName      string
	pendingDesired   prop.Value

	// heldOff implements the swap_pidinst handshake (§4.3): while true, this
	// instance is off-limits to new deliveries - the resolver is splicing an
	// adapter in front of it and will Release() once the adapter produces
	// its first matching packet.
	heldOff atomic.Bool

	// recvCount counts packets this instance has handed off to its consumer
	// (DropPacket), the "read" half of sched's §4.6 nb_pck_io health check.
	recvCount atomic.Int64
}

func newPidInstance(p *OutputPid, consumer FilterHandle, buffers cmn.PidBuffers, requiresFullDataBlock bool) *PidInstance {
	inst := &PidInstance{
		pid:                   p,
		consumer:              consumer,
		buffers:               buffers,
		requiresFullDataBlock: requiresFullDataBlock,
		negotiated:            make(map[uint32]prop.Value),
	}
	if requiresFullDataBlock {
		inst.reassembler = NewReassembler()
	}
	return inst
}

func (inst *PidInstance) Pid() *OutputPid { return inst.pid }

// Consumer returns the filter this instance feeds, so the session can
// check "is src already connected to dst" before resolving a new link.
func (inst *PidInstance) Consumer() FilterHandle { return inst.consumer }

// deliver is the per-destination half of OutputPid.Send.
func (inst *PidInstance) deliver(pck *pkt.Packet) {
	if inst.heldOff.Load() {
		return
	}
	ref := pkt.NewRef(pck)

	inst.mu.Lock()
	defer inst.mu.Unlock()

	// mbuffer is the hard cap (§3/§4.3): once reached, this instance takes
	// no further packets regardless of whether the producer honored
	// would_block on its own - the pid itself refuses to grow past it.
	if inst.hardBlockedLocked() {
		ref.Unref()
		return
	}

	if inst.requiresFullDataBlock {
		if done := inst.reassembler.Feed(ref); done != nil {
			inst.enqueueLocked(done)
		}
	} else {
		inst.enqueueLocked(ref)
	}
	inst.consumer.Wake()
}

// enqueueLocked treats Info.Duration as already expressed in
// microseconds (the pid's own clock, not the media timescale the producer
// may stamp DTS/CTS in) for the purpose of buffer accounting - filters
// that run a different timescale convert on set_property before calling
// send, same as get_info doesn't re-derive units.
func (inst *PidInstance) enqueueLocked(pck *pkt.Packet) {
	inst.queue = append(inst.queue, pck)
	inst.bufferedDuration += time.Duration(pck.Info().Duration) * time.Microsecond
	inst.recomputeWouldBlockLocked()
}

func (inst *PidInstance) recomputeWouldBlockLocked() {
	full := inst.buffers.Buffer
	if full <= 0 {
		full = cmn.Rom.Get().PidBuffers.Buffer
	}
	inst.wouldBlock.Store(inst.bufferedDuration >= full)
}

// WouldBlock implements the §4.3 blocking model's per-instance half.
func (inst *PidInstance) WouldBlock() bool { return inst.wouldBlock.Load() }

// NeedsRebuffer reports whether the queue has drained below the rbuffer
// watermark, i.e. the consumer should ask upstream to resume at full rate.
func (inst *PidInstance) NeedsRebuffer() bool {
	rb := inst.buffers.RBuffer
	if rb <= 0 {
		rb = cmn.Rom.Get().PidBuffers.RBuffer
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.bufferedDuration <= rb
}

// HardBlocked reports whether the queue has hit the hard mbuffer cap, at
// which point the scheduler must stop scheduling the producer altogether
// rather than merely deprioritizing it.
func (inst *PidInstance) HardBlocked() bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.hardBlockedLocked()
}

func (inst *PidInstance) hardBlockedLocked() bool {
	mb := inst.buffers.MBuffer
	if mb <= 0 {
		mb = cmn.Rom.Get().PidBuffers.MBuffer
	}
	return inst.bufferedDuration >= mb
}

// GetPacket implements §4.3 get_packet: peeks the head without popping it.
func (inst *PidInstance) GetPacket() (*pkt.Packet, bool) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if len(inst.queue) == 0 {
		return nil, false
	}
	if inst.pid.propsVersion != inst.lastPropsVersion {
		inst.propsChanged = true
		inst.lastPropsVersion = inst.pid.propsVersion
	}
	return inst.queue[0], true
}

// PropsChanged implements the §4.3 "fires exactly once" contract: returns
// true only for the first call since the last property publish observed.
func (inst *PidInstance) PropsChanged() bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	v := inst.propsChanged
	inst.propsChanged = false
	return v
}

// DropPacket implements §4.3 drop_packet: pops the head and releases it. If
// this drop clears the instance's would_block state, the producing filter
// is rescheduled (§8 invariant 3: a blocked producer resumes once a
// consumer drops a packet, rather than staying queued with nothing to do).
func (inst *PidInstance) DropPacket() bool {
	inst.mu.Lock()
	if len(inst.queue) == 0 {
		inst.mu.Unlock()
		return false
	}
	pck := inst.queue[0]
	inst.queue = inst.queue[1:]
	inst.bufferedDuration -= time.Duration(pck.Info().Duration) * time.Microsecond
	if inst.bufferedDuration < 0 {
		inst.bufferedDuration = 0
	}
	wasBlocked := inst.wouldBlock.Load()
	inst.recomputeWouldBlockLocked()
	unblocked := wasBlocked && !inst.wouldBlock.Load()
	inst.mu.Unlock()

	pck.Unref()
	inst.recvCount.Inc()
	if unblocked {
		inst.pid.Owner().Wake()
	}
	return true
}

// RecvCount returns the number of packets this instance has consumed via
// DropPacket, for sched's §4.6 nb_pck_io health-check accounting.
func (inst *PidInstance) RecvCount() int64 { return inst.recvCount.Load() }

// GetProperty implements §4.3 get_property: an instance-scoped override for
// a FourCC key (as installed by NegotiateProperty) takes priority over the
// pid's own map; a named property (key4cc 0) is always read from the map.
func (inst *PidInstance) GetProperty(key4cc uint32, name string) (prop.Value, bool) {
	inst.mu.Lock()
	if v, ok := inst.negotiated[key4cc]; ok && key4cc != 0 {
		inst.mu.Unlock()
		return v, true
	}
	inst.mu.Unlock()
	return inst.pid.GetInfo(key4cc, name)
}

// NegotiateProperty implements §4.3 negotiate_property: records the
// instance's desired override. Returns true if the upstream pid already
// carries that value (negotiation trivially satisfied), false if the
// caller (the resolver) must splice in an adapter via the swap_pidinst
// handshake - in which case the request is also recorded for the session
// to pick up via TakePendingNegotiation, since the consumer filter that
// calls this has no path to the resolver itself.
func (inst *PidInstance) NegotiateProperty(key4cc uint32, name string, desired prop.Value) bool {
	cur, ok := inst.pid.GetInfo(key4cc, name)
	if ok && prop.Equal(cur, desired) {
		return true
	}
	inst.mu.Lock()
	inst.negotiated[key4cc] = desired
	inst.pendingNegotiate = true
	inst.pendingKey = key4cc
	inst.pendingName = name
	inst.pendingDesired = desired
	inst.mu.Unlock()
	return false
}

// TakePendingNegotiation returns and clears an outstanding negotiate_property
// request this instance couldn't satisfy in place (§4.3/§4.5 adapter
// insertion).
func (inst *PidInstance) TakePendingNegotiation() (key4cc uint32, name string, desired prop.Value, ok bool) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if !inst.pendingNegotiate {
		return 0, "", prop.Value{}, false
	}
	inst.pendingNegotiate = false
	return inst.pendingKey, inst.pendingName, inst.pendingDesired, true
}

// HoldOff implements the producer side of the §4.3 swap_pidinst handshake:
// the instance is taken off-limits to new deliveries while the resolver
// splices an adapter filter in front of it.
func (inst *PidInstance) HoldOff() { inst.heldOff.Store(true) }

// Release ends the hold-off once the adapter has produced its first
// matching packet.
func (inst *PidInstance) Release() { inst.heldOff.Store(false) }

// SendEvent implements §4.3 send_event(evt, upstream=true): feeds a
// consumer-originated signal (seek/play/stop/buffer/quality) back through
// to the producing pid's listeners.
func (inst *PidInstance) SendEvent(evt Event) {
	evt.Upstream = true
	inst.pid.mu.Lock()
	listeners := append([]func(Event){}, inst.pid.listeners...)
	inst.pid.mu.Unlock()
	for _, l := range listeners {
		l(evt)
	}
}

func (inst *PidInstance) receiveDownstreamEvent(evt Event) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.requiresFullDataBlock && evt.Kind == "flush" {
		inst.reassembler.Reset()
	}
}

func (inst *PidInstance) markUpstreamEOS() {
	inst.mu.Lock()
	hasQueued := len(inst.queue) > 0
	inst.mu.Unlock()
	if !hasQueued {
		inst.eos.Store(true)
	}
	inst.consumer.Wake()
}

// IsEOS reports whether this instance has both observed upstream EOS and
// drained its queue.
func (inst *PidInstance) IsEOS() bool {
	if inst.eos.Load() {
		return true
	}
	if !inst.pid.IsEOS() {
		return false
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if len(inst.queue) == 0 {
		inst.eos.Store(true)
		return true
	}
	return false
}
