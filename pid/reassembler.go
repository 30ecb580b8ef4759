package pid

import (
	"github.com/gofilt/gofilt/pkt"
	"github.com/gofilt/gofilt/prop"
)

// Reassembler implements §4.2's whole-frame delivery: it accumulates a
// block-start -> block-end packet sequence into one synthesized packet.
// Kept as its own unit (rather than inlined into PidInstance.deliver) so it
// can be unit-tested against the flag-sequencing edge cases independently
// of queueing/would-block concerns.
type Reassembler struct {
	buf       []byte
	corrupted bool
	started   bool
	first     *pkt.Packet // holds the info/props of the block-start packet
}

func NewReassembler() *Reassembler { return &Reassembler{} }

// Feed consumes one incoming packet-instance. It returns the synthesized
// packet once a block-end is observed, or nil while the sequence is still
// accumulating. The caller must not retain pck past this call; Feed takes
// ownership (unreffing it once its bytes are copied into the accumulator,
// or folding it into the returned packet when it completes the sequence).
func (r *Reassembler) Feed(pck *pkt.Packet) *pkt.Packet {
	info := pck.Info()
	standalone := info.Flags.Has(pkt.FlagBlockStart) && info.Flags.Has(pkt.FlagBlockEnd)
	if standalone {
		return pck
	}
	if info.Flags.Has(pkt.FlagBlockStart) || !r.started {
		r.reset()
		r.started = true
		r.first = pck
	}
	r.buf = append(r.buf, pck.Bytes()...)
	if info.Flags.Has(pkt.FlagCorrupted) {
		r.corrupted = true
	}
	if !info.Flags.Has(pkt.FlagBlockEnd) {
		if pck != r.first {
			pck.Unref()
		}
		return nil
	}
	out := r.finish(pck)
	return out
}

func (r *Reassembler) finish(last *pkt.Packet) *pkt.Packet {
	info := r.first.Info()
	info.Duration = last.Info().Duration
	if r.corrupted {
		info.Flags = info.Flags.Set(pkt.FlagCorrupted)
	}
	var props *prop.Map
	if p := r.first.Props(); p != nil {
		props = p.Ref()
	}
	combined := append([]byte(nil), r.buf...)
	out := pkt.NewShared(combined, nil, props)
	out.SetInfo(info)
	if last != r.first {
		last.Unref()
	}
	r.first.Unref()
	r.reset()
	return out
}

// Reset discards any in-progress accumulation, e.g. on a seek/flush event.
func (r *Reassembler) Reset() {
	if r.first != nil {
		r.first.Unref()
	}
	r.reset()
}

func (r *Reassembler) reset() {
	r.buf = nil
	r.corrupted = false
	r.started = false
	r.first = nil
}
