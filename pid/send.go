package pid

import "github.com/gofilt/gofilt/pkt"

// Send implements §4.2 send(pck): publishes pck to every connected
// instance. Each instance gets its own packet-instance (a pkt.Ref clone
// sharing the payload) so it can be popped/dropped independently; the
// producer's own initial reference is released once fan-out completes,
// matching "source packet is released when every destination instance has
// been popped and dropped and the producer has released its initial
// reference".
func (p *OutputPid) Send(pck *pkt.Packet) {
	if p.eos.Load() {
		pck.Unref()
		return
	}
	p.mu.Lock()
	insts := append([]*PidInstance(nil), p.instances...)
	p.mu.Unlock()

	for _, inst := range insts {
		inst.deliver(pck)
	}
	pck.Unref()
	p.sentCount.Inc()
}
