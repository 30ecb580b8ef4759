package sched

import "github.com/gofilt/gofilt/filter"

// ioTotals snapshots a filter's aggregate recv/sent packet counters so
// the worker loop can diff them across one Process call. Callbacks.Process
// (§4.4) has no return signal for "did I do any I/O", so §4.6/§7's health
// check (nb_pck_io) is derived instead from pid/pid-instance counters
// taken immediately before and after the call.
func ioTotals(f *filter.Filter) int64 {
	var total int64
	for _, in := range f.Inputs() {
		total += in.RecvCount()
	}
	for _, out := range f.Outputs() {
		total += out.SentCount()
	}
	return total
}
