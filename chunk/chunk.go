// Package chunk implements the per-process simulation unit of spec.md §3
// (Chunk) and §4.3: the build/finalize/step/reset lifecycle that drives one
// chunk's ordered operator list once per step.
//
// Grounded on hwsim.Circuit (NewCircuit/Step/Dispose): the teacher fans a
// fixed Component slice out across worker goroutines and double-buffers
// pin state every Step; this package generalizes the same build-then-step
// shape to a single ordered op.Operator slice executed synchronously, with
// no intra-chunk parallelism (spec.md §5 is explicit that operator
// execution order is a correctness requirement, since operators alias
// signals — a deliberate narrowing of the teacher's worker-pool pattern,
// recorded in DESIGN.md).
package chunk

import (
	"sort"

	"github.com/nengodist/nengodist"
	"github.com/nengodist/nengodist/comm"
	"github.com/nengodist/nengodist/internal/obslog"
	"github.com/nengodist/nengodist/op"
	"github.com/nengodist/nengodist/probe"
	"github.com/nengodist/nengodist/signal"
)

// Options configures FinalizeBuild.
type Options struct {
	// Merged enables the merged-mode communication optimizer (spec.md
	// §4.4 "Merged mode"): all sends to a peer become one message, and
	// likewise for receives.
	Merged bool
	// BarrierPeriod, if > 0, installs an MPIBarrier firing every
	// BarrierPeriod steps at a terminal index (spec.md §4.4 MPIBarrier).
	// Requires Transport to be set.
	BarrierPeriod int
	// Transport is the communicator FinalizeBuild hands to the merged
	// send/recv operators and the barrier it installs. Plain send/recv
	// operators keep the Transport they were constructed with; FinalizeBuild
	// does not rebind them. May be nil for a chunk with no peers.
	Transport comm.Transport
	// Sink is the probe.LogSink probe data flushes into. If nil,
	// FinalizeBuild installs a probe.MemorySink.
	Sink probe.LogSink
	// FlushEvery, if > 0, flushes every probe's buffer every FlushEvery
	// steps, in addition to the flush Close (and ProbeData, per probe)
	// performs.
	FlushEvery int
	Logger     *obslog.Logger
}

// rearmable is implemented by operators that carry internal state cleared
// by Reset (send/recv/barrier/merged variants).
type rearmable interface{ Rearm() }

// drainable is implemented by operators with outstanding non-blocking
// requests that must be waited on before Reset rearms them.
type drainable interface{ Drain() error }

// Chunk is one process's share of a distributed simulation: its signal
// store, its ordered operator list, and its probes (spec.md §3 Chunk).
type Chunk struct {
	rank, nProcs int
	dt           float64
	time         float64
	stepCounter  int

	store      *signal.Store
	operators  []op.Operator
	probes     map[nengodist.Key]*probe.Probe
	probeOrder []nengodist.Key

	opts  Options
	sink  probe.LogSink
	built bool
}

// New returns an empty chunk for the given rank within a communicator of
// nProcs processes, stepping at dt per tick.
func New(rank, nProcs int, dt float64) *Chunk {
	return &Chunk{
		rank: rank, nProcs: nProcs, dt: dt,
		store:  signal.NewStore(),
		probes: make(map[nengodist.Key]*probe.Probe),
	}
}

// Rank, NProcs, Dt, Time and StepCount report the chunk's identity and progress.
func (c *Chunk) Rank() int             { return c.rank }
func (c *Chunk) NProcs() int           { return c.nProcs }
func (c *Chunk) Dt() float64           { return c.dt }
func (c *Chunk) Time() float64         { return c.time }

// Now satisfies op.Clock, so a HostCallback can be built with a chunk as its
// time source.
func (c *Chunk) Now() float64 { return c.time }
func (c *Chunk) StepCount() int        { return c.stepCounter }
func (c *Chunk) Store() *signal.Store  { return c.store }

// AddBaseSignal registers a new BaseSignal in the chunk's store.
func (c *Chunk) AddBaseSignal(key nengodist.Key, label string, shape1, shape2 int, data []float64) error {
	if c.built {
		return nengodist.NewBuildError("chunk %d: cannot add signal %q after finalize", c.rank, label)
	}
	return c.store.AddBase(key, label, shape1, shape2, data)
}

// AddOperator appends op to the chunk's pending operator list. Operators
// are sorted by Index at FinalizeBuild; insertion order here is the tie
// break for equal indices.
func (c *Chunk) AddOperator(operator op.Operator) error {
	if c.built {
		return nengodist.NewBuildError("chunk %d: cannot add operator %q after finalize", c.rank, operator.Label())
	}
	c.operators = append(c.operators, operator)
	return nil
}

// AddProbe registers a probe sampling target every period steps.
func (c *Chunk) AddProbe(key nengodist.Key, label string, target signal.View, period int) error {
	if c.built {
		return nengodist.NewBuildError("chunk %d: cannot add probe %q after finalize", c.rank, label)
	}
	if _, exists := c.probes[key]; exists {
		return nengodist.NewBuildError("chunk %d: duplicate probe key %d (%q)", c.rank, key, label)
	}
	p, err := probe.New(key, label, target, period)
	if err != nil {
		return err
	}
	c.probes[key] = p
	c.probeOrder = append(c.probeOrder, key)
	return nil
}

// FinalizeBuild sorts operators by index, optionally synthesizes merged
// send/receive plans and a terminal barrier, snapshots every signal for
// reset, and attaches a log sink (spec.md §4.3 steps 1-6).
func (c *Chunk) FinalizeBuild(opts Options) error {
	if c.built {
		return nengodist.NewBuildError("chunk %d: already finalized", c.rank)
	}
	c.opts = opts
	if opts.Logger == nil {
		c.opts.Logger = obslog.Default()
	}

	sort.SliceStable(c.operators, func(i, j int) bool {
		return c.operators[i].Index() < c.operators[j].Index()
	})

	if opts.Merged {
		if err := c.installMergedPlans(opts.Transport); err != nil {
			return err
		}
	}

	if opts.BarrierPeriod > 0 {
		if opts.Transport == nil {
			return nengodist.NewBuildError("chunk %d: BarrierPeriod set without a Transport", c.rank)
		}
		terminal := terminalIndex(c.operators)
		barrier := comm.NewBarrier(terminal, "mpi-barrier", opts.BarrierPeriod, opts.Transport)
		c.operators = append(c.operators, barrier)
	}

	c.store.FinalizeSnapshots()

	c.sink = opts.Sink
	if c.sink == nil {
		c.sink = probe.NewMemorySink()
	}

	c.built = true
	c.opts.Logger.Infof("chunk %d: finalized with %d operators, %d probes", c.rank, len(c.operators), len(c.probes))
	return nil
}

// terminalIndex returns an index strictly greater than every operator
// already scheduled, so a barrier installed there runs last each step.
func terminalIndex(ops []op.Operator) float64 {
	max := 0.0
	for _, o := range ops {
		if o.Index() > max {
			max = o.Index()
		}
	}
	return max + 1
}

// installMergedPlans replaces every *comm.SendOp/*comm.RecvOp with one
// comm.MergedSend/comm.MergedRecv per peer, inserted at the earliest
// (sends) or latest (receives) index among the operators it replaces. A
// plain operator whose index falls between two members of a group runs
// after that group's merged send and before its merged receive.
func (c *Chunk) installMergedPlans(transport comm.Transport) error {
	if transport == nil {
		return nengodist.NewBuildError("chunk %d: Merged set without a Transport", c.rank)
	}
	var sends []*comm.SendOp
	var recvs []*comm.RecvOp
	var kept []op.Operator
	for _, o := range c.operators {
		switch v := o.(type) {
		case *comm.SendOp:
			sends = append(sends, v)
		case *comm.RecvOp:
			recvs = append(recvs, v)
		default:
			kept = append(kept, o)
		}
	}
	if len(sends) == 0 && len(recvs) == 0 {
		return nil
	}

	mergedSends := comm.BuildMergedSends(transport, sends)
	mergedRecvs := comm.BuildMergedRecvs(transport, recvs)

	earliestByPeer := map[int]float64{}
	for _, s := range sends {
		idx, ok := earliestByPeer[s.Peer()]
		if !ok || s.Index() < idx {
			earliestByPeer[s.Peer()] = s.Index()
		}
	}
	latestByPeer := map[int]float64{}
	for _, r := range recvs {
		idx, ok := latestByPeer[r.Peer()]
		if !ok || r.Index() > idx {
			latestByPeer[r.Peer()] = r.Index()
		}
	}

	type placed struct {
		op    op.Operator
		index float64
	}
	plainAt := make([]placed, len(kept))
	for i, o := range kept {
		plainAt[i] = placed{op: o, index: o.Index()}
	}
	for peer, ms := range mergedSends {
		plainAt = append(plainAt, placed{op: ms, index: earliestByPeer[peer]})
	}
	for peer, mr := range mergedRecvs {
		plainAt = append(plainAt, placed{op: mr, index: latestByPeer[peer]})
	}

	sort.SliceStable(plainAt, func(i, j int) bool { return plainAt[i].index < plainAt[j].index })
	c.operators = make([]op.Operator, len(plainAt))
	for i, p := range plainAt {
		c.operators[i] = p.op
	}
	return nil
}

// Step executes every operator once, in index order, then samples every
// probe and advances the step counter and simulated time (spec.md §4.3
// "Step").
func (c *Chunk) Step() error {
	if !c.built {
		return nengodist.NewRuntimeError("chunk %d: Step called before FinalizeBuild", c.rank)
	}
	for _, operator := range c.operators {
		if err := operator.Step(); err != nil {
			return err
		}
	}
	for _, key := range c.probeOrder {
		c.probes[key].Sample(c.stepCounter)
	}
	c.stepCounter++
	c.time = float64(c.stepCounter) * c.dt

	if c.opts.FlushEvery > 0 && c.stepCounter%c.opts.FlushEvery == 0 {
		if err := c.FlushProbes(); err != nil {
			return err
		}
	}
	return nil
}

// Run executes n steps.
func (c *Chunk) Run(n int) error {
	for i := 0; i < n; i++ {
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

// FlushProbes moves every probe's buffered samples into the sink.
func (c *Chunk) FlushProbes() error {
	for _, key := range c.probeOrder {
		if err := c.flushProbe(c.probes[key]); err != nil {
			return err
		}
	}
	return nil
}

// flushProbe flushes one probe into the active sink. A failed write is an
// IOError, which spec.md §7 requires to be non-fatal for the step loop: the
// diagnostic is logged, the sink is disabled (swapped for a discard sink) so
// later flushes don't keep hitting the same broken backend, and nil is
// returned so callers keep running. Any other error (a probe/build bug)
// still propagates.
func (c *Chunk) flushProbe(p *probe.Probe) error {
	err := p.Flush(c.sink)
	if err == nil {
		return nil
	}
	if ioErr, ok := err.(*nengodist.IOError); ok {
		c.opts.Logger.Errorf("chunk %d: %s, disabling log sink", c.rank, ioErr.Error())
		c.sink = probe.NewDiscardSink()
		return nil
	}
	return err
}

// ProbeData returns every sample recorded so far for key: first flushing
// the probe's in-memory buffer, then reading back through the sink
// (spec.md §4.6 probe_data).
func (c *Chunk) ProbeData(key nengodist.Key) ([][]float64, error) {
	p, ok := c.probes[key]
	if !ok {
		return nil, nengodist.NewRuntimeError("chunk %d: unknown probe key %d", c.rank, key)
	}
	if err := c.flushProbe(p); err != nil {
		return nil, err
	}
	reader, ok := c.sink.(probe.Reader)
	if !ok {
		return nil, nengodist.NewRuntimeError("chunk %d: log sink does not support readback", c.rank)
	}
	return reader.ReadBlock(key)
}

// ProbeSampleCount reports how many samples a probe has taken over its
// lifetime (flushed or not), for progress reporting without draining the
// sink (SPEC_FULL.md §12 supplement).
func (c *Chunk) ProbeSampleCount(key nengodist.Key) (int, bool) {
	p, ok := c.probes[key]
	if !ok {
		return 0, false
	}
	return p.Count(), true
}

// Reset restores every signal to its build-time snapshot, clears probe
// buffers, drains outstanding communication requests and rearms
// send/recv/barrier operators, and resets the step counter and simulated
// time to zero (spec.md §4.3 "Reset"). seed is accepted to match spec.md
// §6's reset(seed) external-interface signature (mirrored from
// mpi_sim/chunk.hpp's reset(unsigned seed)); this core has no randomized
// state of its own to reseed, so it is only logged for diagnostics — a
// seed's effect, if any, belongs to the excluded network-description
// builder that produced the signals' initial values. When the chunk runs on
// its own default MemorySink (Options.Sink was nil), that sink is replaced
// by an empty one, so ProbeData afterwards returns only post-reset samples;
// a sink passed in Options keeps everything already written to it.
func (c *Chunk) Reset(seed int64) error {
	c.opts.Logger.Debugf("chunk %d: reset (seed=%d)", c.rank, seed)
	for _, operator := range c.operators {
		if d, ok := operator.(drainable); ok {
			if err := d.Drain(); err != nil {
				return err
			}
		}
	}
	for _, operator := range c.operators {
		if r, ok := operator.(rearmable); ok {
			r.Rearm()
		}
	}
	c.store.Reset()
	for _, key := range c.probeOrder {
		c.probes[key].Clear(false)
	}
	if c.opts.Sink == nil {
		c.sink = probe.NewMemorySink()
	}
	c.stepCounter = 0
	c.time = 0
	return nil
}

// Close flushes any remaining probe data and closes the log sink.
func (c *Chunk) Close() error {
	if err := c.FlushProbes(); err != nil {
		return err
	}
	return c.sink.Close()
}
