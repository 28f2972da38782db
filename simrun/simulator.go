package simrun

import (
	"time"

	"github.com/nengodist/nengodist"
	"github.com/nengodist/nengodist/chunk"
	"github.com/nengodist/nengodist/comm"
	"github.com/nengodist/nengodist/comm/local"
	"github.com/nengodist/nengodist/internal/obslog"
	"github.com/nengodist/nengodist/internal/runid"
	"github.com/nengodist/nengodist/op"
	"github.com/nengodist/nengodist/probe"
	"github.com/nengodist/nengodist/signal"
)

// Options configures a Simulator.
type Options struct {
	Merged        bool
	BarrierPeriod int
	// SinkFactory builds the probe.LogSink for a given rank. Defaults to
	// probe.NewMemorySink() per chunk.
	SinkFactory func(rank int) (probe.LogSink, error)
	FlushEvery  int
	Logger      *obslog.Logger
}

// RunStats records wall-clock timing for a completed run_n_steps call
// (SPEC_FULL.md §12 supplement, for the excluded front end's --timing
// flag).
type RunStats struct {
	Steps   int
	Elapsed time.Duration
}

// Simulator is the in-process reference implementation of spec.md §4.6's
// distributed simulator: it owns nProcs chunks wired together over
// comm/local, implementing the embedded-host registration surface of
// spec.md §6 directly rather than over the wire protocol (which is what
// cmd/nengodworker and package simrun's Record/Encoder/Decoder exist for,
// in the real multi-process deployment — see DESIGN.md).
//
// Grounded on hwsim.NewCircuit's worker spawn: one Chunk per rank plays
// the role of one circuit-worker's component shard, and Network.Rank
// plays the role of the teacher's per-worker dispatch channel.
type Simulator struct {
	nProcs  int
	dt      float64
	network *local.Network
	chunks  []*chunk.Chunk
	opts    Options
	runID   runid.ID
	logger  *obslog.Logger
	built   bool
	stats   RunStats
}

// New returns a simulator coordinating nProcs chunks stepping at dt.
func New(nProcs int, dt float64, opts Options) *Simulator {
	if opts.Logger == nil {
		opts.Logger = obslog.Default()
	}
	nw := local.NewNetwork(nProcs)
	chunks := make([]*chunk.Chunk, nProcs)
	for r := 0; r < nProcs; r++ {
		chunks[r] = chunk.New(r, nProcs, dt)
	}
	return &Simulator{nProcs: nProcs, dt: dt, network: nw, chunks: chunks, opts: opts, runID: runid.New(), logger: opts.Logger}
}

// RunID is this simulator's unique run identifier.
func (s *Simulator) RunID() runid.ID { return s.runID }

// Chunk exposes the underlying chunk for rank, for callers building a
// network directly rather than through a higher-level front end.
func (s *Simulator) Chunk(rank int) *chunk.Chunk { return s.chunks[rank] }

// Transport exposes the comm.Transport bound to rank, for constructing
// MPISend/MPIRecv operators directly via package comm.
func (s *Simulator) Transport(rank int) comm.Transport { return s.network.Rank(rank) }

// AddBaseSignal registers a signal on the given rank's chunk (spec.md §6
// add_signal).
func (s *Simulator) AddBaseSignal(rank int, key nengodist.Key, label string, shape1, shape2 int, data []float64) error {
	return s.chunks[rank].AddBaseSignal(key, label, shape1, shape2, data)
}

// AddOperator adds a pre-built operator to rank's chunk (spec.md §6
// add_op, for operator kinds not worth a dedicated convenience method).
func (s *Simulator) AddOperator(rank int, operator op.Operator) error {
	return s.chunks[rank].AddOperator(operator)
}

// AddSend and AddRecv are convenience wrappers around comm.NewSend/NewRecv
// bound to rank's transport (spec.md §6 add_op, kind MPISend/MPIRecv).
func (s *Simulator) AddSend(rank int, index float64, label string, dstRank, tag int, content signal.View) error {
	send := comm.NewSend(index, label, dstRank, tag, content, s.network.Rank(rank))
	return s.chunks[rank].AddOperator(send)
}

func (s *Simulator) AddRecv(rank int, index float64, label string, srcRank, tag int, content signal.View) error {
	recv := comm.NewRecv(index, label, srcRank, tag, content, s.network.Rank(rank))
	return s.chunks[rank].AddOperator(recv)
}

// AddProbe registers a probe on rank's chunk (spec.md §6 add_probe).
func (s *Simulator) AddProbe(rank int, key nengodist.Key, label string, target signal.View, period int) error {
	return s.chunks[rank].AddProbe(key, label, target, period)
}

// FinalizeBuild finalizes every chunk, attaching a log sink per rank and
// installing merged plans/barriers as configured (spec.md §4.6
// finalize_build).
func (s *Simulator) FinalizeBuild() error {
	for r, c := range s.chunks {
		var sink probe.LogSink
		if s.opts.SinkFactory != nil {
			var err error
			sink, err = s.opts.SinkFactory(r)
			if err != nil {
				return nengodist.WrapIOError(err, "simrun: sink factory failed")
			}
		}
		err := c.FinalizeBuild(chunk.Options{
			Merged: s.opts.Merged, BarrierPeriod: s.opts.BarrierPeriod,
			Transport: s.network.Rank(r), Sink: sink, FlushEvery: s.opts.FlushEvery,
			Logger: s.logger,
		})
		if err != nil {
			return err
		}
	}
	s.built = true
	s.logger.Infof("simrun: run %s finalized with %d ranks", s.runID, s.nProcs)
	return nil
}

// RunNSteps advances every chunk by n steps in lockstep (spec.md §4.6
// run_n_steps). A fatal error on any rank aborts the whole run.
func (s *Simulator) RunNSteps(n int) error {
	if !s.built {
		return nengodist.NewRuntimeError("simrun: RunNSteps called before FinalizeBuild")
	}
	start := time.Now()
	for i := 0; i < n; i++ {
		for _, c := range s.chunks {
			if err := c.Step(); err != nil {
				return err
			}
		}
	}
	s.stats.Steps += n
	s.stats.Elapsed += time.Since(start)
	return nil
}

// ProbeData gathers every sample recorded for key from whichever chunk
// owns that probe (spec.md §4.6 probe_data).
func (s *Simulator) ProbeData(key nengodist.Key) ([][]float64, error) {
	for _, c := range s.chunks {
		if _, ok := c.ProbeSampleCount(key); ok {
			return c.ProbeData(key)
		}
	}
	return nil, nengodist.NewRuntimeError("simrun: no chunk owns probe key %d", key)
}

// ProbeSampleCount reports how many samples have been taken for key
// across whichever chunk owns it, without draining the sink
// (SPEC_FULL.md §12 supplement).
func (s *Simulator) ProbeSampleCount(key nengodist.Key) (int, bool) {
	for _, c := range s.chunks {
		if n, ok := c.ProbeSampleCount(key); ok {
			return n, true
		}
	}
	return 0, false
}

// Reset restores every chunk to its build-time snapshot (spec.md §4.6
// reset(seed)). seed is forwarded to each chunk's Reset unchanged; see
// chunk.Chunk.Reset for why this deterministic core only logs it.
func (s *Simulator) Reset(seed int64) error {
	for _, c := range s.chunks {
		if err := c.Reset(seed); err != nil {
			return err
		}
	}
	s.stats = RunStats{}
	return nil
}

// Stats returns the accumulated timing for this simulator's run_n_steps
// calls.
func (s *Simulator) Stats() RunStats { return s.stats }

// Close flushes and closes every chunk's log sink (spec.md §4.6 close).
func (s *Simulator) Close() error {
	var first error
	for _, c := range s.chunks {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
