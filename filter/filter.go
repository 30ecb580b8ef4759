package filter

import (
	"sync"
	"time"

	"github.com/gofilt/gofilt/cmn"
	"github.com/gofilt/gofilt/cmn/atomic"
	"github.com/gofilt/gofilt/cmn/cos"
	"github.com/gofilt/gofilt/cmn/mono"
	"github.com/gofilt/gofilt/gferr"
	"github.com/gofilt/gofilt/pid"
	"github.com/gofilt/gofilt/prop"
)

// Scheduler is the subset of *sched.Sched a Filter needs to reschedule
// itself - kept as an interface here (rather than importing sched
// directly) to avoid a filter<->sched import cycle, since sched's
// filterState holds a *Filter.
type Scheduler interface {
	Reschedule(filterIndex int)
}

// Filter is one instantiated filter (§4.4 filter_new). Implements
// pid.FilterHandle so pid/caps never need to import this package (§9
// "arena + indices").
type Filter struct {
	mu sync.Mutex

	index    int
	id       string
	register *Register
	sched    Scheduler

	state any // user's private_size-sized state blob equivalent

	args       map[string]prop.Value
	pidArgs    map[string]prop.Value // fragment-introduced per-pid property assignments
	srcArgs    string
	dstArgs    string

	inputs  []*pid.PidInstance
	outputs []*pid.OutputPid

	destCandidates []string // unresolved sink URLs/names still pending link resolution

	running  atomic.Bool
	finalized atomic.Bool
	sticky   bool

	// scheduleNextTime/requeueRequest implement §4.6's two suspension-free
	// reschedule signals: a Process callback calls AskRTReschedule to ask
	// for a timed wakeup, or RequestRequeue to ask for an immediate rerun
	// once it returns (tasks never suspend mid-body). sched reads and
	// clears both after every Process call.
	scheduleNextTime atomic.Int64
	requeueRequest   atomic.Bool

	nbConsecutiveErrors atomic.Int32
	timeAtFirstError    atomic.Int64
	disabled            atomic.Bool
}

// New implements §4.4 filter_new(session, register, src_args, dst_args,
// arg_type): parses arguments, calls the register's Initialize.
func New(index int, reg *Register, sched Scheduler, srcArgs, dstArgs string, resolver MacroResolver, sep cmn.Separators) (*Filter, error) {
	if err := reg.requireProcess(); err != nil {
		return nil, err
	}
	f := &Filter{
		index:    index,
		id:       cos.GenUUID(),
		register: reg,
		sched:    sched,
		srcArgs:  srcArgs,
		dstArgs:  dstArgs,
		sticky:   reg.IsSticky(),
	}
	parsed, pidProps, err := ParseArgString(srcArgs, sep, resolver)
	if err != nil {
		return nil, gferr.Wrap(gferr.BadParam, err)
	}
	if err := CoerceArgTypes(reg, parsed); err != nil {
		return nil, gferr.Wrap(gferr.BadParam, err)
	}
	f.args = parsed
	f.pidArgs = pidProps
	if reg.CB.Initialize != nil {
		if err := reg.CB.Initialize(f); err != nil {
			return nil, err
		}
	}
	f.running.Store(true)
	return f, nil
}

func (f *Filter) Index() int      { return f.index }
func (f *Filter) ID() string      { return f.id }
func (f *Filter) Register() *Register { return f.register }
func (f *Filter) IsRunning() bool { return f.running.Load() && !f.finalized.Load() }
func (f *Filter) IsSticky() bool  { return f.sticky }

// MainThreadOnly and IsBlocking forward the register-level scheduling
// hints (§4.6) the scheduler needs without reaching into Register itself.
func (f *Filter) MainThreadOnly() bool { return f.register.MainThreadOnly() }
func (f *Filter) IsBlocking() bool     { return f.register.IsBlocking() }

// Wake implements pid.FilterHandle: a connected pid gained new work, so
// this filter should be rescheduled.
func (f *Filter) Wake() {
	if f.sched != nil {
		f.sched.Reschedule(f.index)
	}
}

func (f *Filter) State() any        { return f.state }
func (f *Filter) SetState(s any)    { f.state = s }

// Arg returns a parsed argument value, falling back to its declared
// default (parsed lazily) when the argument string didn't set it.
func (f *Filter) Arg(name string) (prop.Value, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.args[name]; ok {
		return v, true
	}
	desc, found := f.register.argDesc(name)
	if !found || desc.Default == "" {
		return prop.Value{}, false
	}
	dv, err := prop.Parse(desc.Type, desc.Default, nil, ",")
	return dv, err == nil
}

// PidArg returns a fragment-introduced per-pid property the producer
// should apply to a newly created output pid named name (§4.4 '#').
func (f *Filter) PidArg(name string) (prop.Value, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.pidArgs[name]
	return v, ok
}

// UpdateArg implements §4.4 update_arg(name, value): only args flagged
// Updatable/SyncUpdatable may change after instantiation.
func (f *Filter) UpdateArg(name string, v prop.Value) error {
	desc, ok := f.register.argDesc(name)
	if !ok {
		return gferr.New(gferr.BadParam, "unknown arg %q", name)
	}
	if desc.Flags&(ArgUpdatable|ArgSyncUpdatable) == 0 {
		return gferr.New(gferr.NotSupported, "arg %q is not updatable", name)
	}
	f.mu.Lock()
	f.args[name] = v
	f.mu.Unlock()
	if f.register.CB.UpdateArg != nil {
		return f.register.CB.UpdateArg(f, name, v)
	}
	return nil
}

func (f *Filter) AddInput(inst *pid.PidInstance) {
	f.mu.Lock()
	f.inputs = append(f.inputs, inst)
	f.mu.Unlock()
}

func (f *Filter) AddOutput(p *pid.OutputPid) {
	f.mu.Lock()
	f.outputs = append(f.outputs, p)
	f.mu.Unlock()
}

// RemoveInput drops inst from this filter's input list, used when the
// resolver splices a fresh instance onto an adapter chain in place of a
// direct connection (§4.3/§4.5 negotiate_property adapter insertion).
func (f *Filter) RemoveInput(inst *pid.PidInstance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, in := range f.inputs {
		if in == inst {
			f.inputs = append(f.inputs[:i], f.inputs[i+1:]...)
			return
		}
	}
}

func (f *Filter) Inputs() []*pid.PidInstance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*pid.PidInstance(nil), f.inputs...)
}

func (f *Filter) Outputs() []*pid.OutputPid {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*pid.OutputPid(nil), f.outputs...)
}

// healthErrorWindow is §4.6/§7's "errors for > 1 second with zero I/O
// progress" threshold before a filter is forcibly disabled.
const healthErrorWindow = time.Second

// AskRTReschedule implements §4.6 filter_ask_rt_reschedule(us): a Process
// callback that wants to be rerun later (rather than waiting on new
// packets) sets a timed deadline instead of blocking - tasks never
// suspend mid-body.
func (f *Filter) AskRTReschedule(us int64) {
	f.scheduleNextTime.Store(mono.NanoTime() + us*1000)
}

// RequestRequeue implements §4.6's requeue_request=true: asks for an
// immediate rerun once the current task returns.
func (f *Filter) RequestRequeue() { f.requeueRequest.Store(true) }

// TakeScheduleNextTime returns and clears the pending timed-reschedule
// deadline (0 if none), read by sched after every Process call.
func (f *Filter) TakeScheduleNextTime() int64 {
	v := f.scheduleNextTime.Load()
	if v != 0 {
		f.scheduleNextTime.Store(0)
	}
	return v
}

// TakeRequeueRequest returns and clears requeue_request.
func (f *Filter) TakeRequeueRequest() bool { return f.requeueRequest.CAS(true, false) }

// RecordProcessOutcome implements §4.6/§7's health check: ioProgress marks
// whether any packet was read or written during the just-finished Process
// call (resets the error streak unconditionally, since forward progress is
// what matters, not success); isErr marks a non-OK/EOS return. Returns true
// once the filter has been erroring for over healthErrorWindow with zero
// I/O progress, at which point the caller must force-disable it.
func (f *Filter) RecordProcessOutcome(isErr, ioProgress bool) (shouldDisable bool) {
	if ioProgress {
		f.nbConsecutiveErrors.Store(0)
		f.timeAtFirstError.Store(0)
		return false
	}
	if !isErr {
		return false
	}
	if f.nbConsecutiveErrors.Inc() == 1 {
		f.timeAtFirstError.Store(mono.NanoTime())
	}
	first := f.timeAtFirstError.Load()
	return first != 0 && mono.Since(first) > healthErrorWindow
}

// Disable forcibly stops the filter outside the normal Finalize path
// (§4.6 "the filter is forcibly disabled"); sched EOS's its outputs
// separately since that requires walking live pid instances.
func (f *Filter) Disable() {
	f.disabled.Store(true)
	f.running.Store(false)
}

func (f *Filter) IsDisabled() bool { return f.disabled.Load() }

// WouldBlock implements §3/§8 invariant 3's filter-level back-pressure
// signal: would_block (the count of output pids with no room left) plus
// num_unconnected_outputs is at least num_outputs, i.e. every output this
// filter has is either saturated or has nowhere to deliver to - there is
// nothing useful left for Process to do until a consumer drains.
func (f *Filter) WouldBlock() bool {
	outs := f.Outputs()
	if len(outs) == 0 {
		return false
	}
	blockedOrUnconnected := 0
	for _, out := range outs {
		insts := out.Instances()
		if len(insts) == 0 {
			blockedOrUnconnected++
			continue
		}
		allBlocked := true
		for _, inst := range insts {
			if !inst.WouldBlock() {
				allBlocked = false
				break
			}
		}
		if allBlocked {
			blockedOrUnconnected++
		}
	}
	return blockedOrUnconnected >= len(outs)
}

// Process invokes the register's Process callback, normalizing its error
// through gferr (§7's boundary rule: NETWORK_EMPTY degrades to nil).
func (f *Filter) Process() error {
	if f.register.CB.Process == nil {
		return nil
	}
	return gferr.Normalize(f.register.CB.Process(f))
}

// ProcessEvent implements §4.4 process_event.
func (f *Filter) ProcessEvent(evt pid.Event) bool {
	if f.register.CB.ProcessEvent == nil {
		return false
	}
	return f.register.CB.ProcessEvent(f, evt)
}

// ConfigurePid implements §4.4 configure_pid.
func (f *Filter) ConfigurePid(p *pid.PidInstance, isRemove bool) error {
	if f.register.CB.ConfigurePid == nil {
		return nil
	}
	return f.register.CB.ConfigurePid(f, p, isRemove)
}

// Finalize implements §4.4 finalize, idempotently.
func (f *Filter) Finalize() {
	if !f.finalized.CAS(false, true) {
		return
	}
	f.running.Store(false)
	if f.register.CB.Finalize != nil {
		f.register.CB.Finalize(f)
	}
}

// ShouldFinalize implements the §4.4/§4.3 lifecycle rule: a non-sticky
// filter with every output EOS and every input EOS finalizes.
func (f *Filter) ShouldFinalize() bool {
	if f.sticky {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.outputs {
		if !p.IsEOS() {
			return false
		}
	}
	for _, in := range f.inputs {
		if !in.IsEOS() {
			return false
		}
	}
	return len(f.outputs)+len(f.inputs) > 0
}

// DestCandidates returns sink URLs/names still awaiting link resolution
// (populated from dstArgs by the session/resolver).
func (f *Filter) DestCandidates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.destCandidates...)
}

func (f *Filter) SetDestCandidates(c []string) {
	f.mu.Lock()
	f.destCandidates = c
	f.mu.Unlock()
}
