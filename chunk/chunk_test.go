package chunk_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nengodist/nengodist"
	"github.com/nengodist/nengodist/chunk"
	"github.com/nengodist/nengodist/comm"
	"github.com/nengodist/nengodist/comm/local"
	"github.com/nengodist/nengodist/op"
	"github.com/nengodist/nengodist/probe"
)

// TestScalarResetAndProbe reproduces spec.md §8 scenario 1.
func TestScalarResetAndProbe(t *testing.T) {
	c := chunk.New(0, 1, 0.001)
	require.NoError(t, c.AddBaseSignal(1, "a", 1, 0, []float64{0}))
	av, err := c.Store().ViewFromKey(1)
	require.NoError(t, err)
	require.NoError(t, c.AddOperator(op.Reset(0, "reset-a", av, 3.5)))
	require.NoError(t, c.AddProbe(100, "P", av, 1))
	require.NoError(t, c.FinalizeBuild(chunk.Options{}))

	require.NoError(t, c.Run(2))
	rows, err := c.ProbeData(100)
	require.NoError(t, err)
	require.Equal(t, [][]float64{{3.5}, {3.5}}, rows)
}

// TestDotProduct reproduces spec.md §8 scenario 2.
func TestDotProduct(t *testing.T) {
	c := chunk.New(0, 1, 0.001)
	require.NoError(t, c.AddBaseSignal(1, "A", 2, 2, []float64{1, 2, 3, 4}))
	require.NoError(t, c.AddBaseSignal(2, "X", 2, 0, []float64{1, 1}))
	require.NoError(t, c.AddBaseSignal(3, "Y", 2, 0, []float64{0, 0}))
	av, _ := c.Store().ViewFromKey(1)
	xv, _ := c.Store().ViewFromKey(2)
	yv, _ := c.Store().ViewFromKey(3)

	require.NoError(t, c.AddOperator(op.Reset(0, "reset-y", yv, 0)))
	dotInc, err := op.DotInc(1, "dotinc", av, xv, yv)
	require.NoError(t, err)
	require.NoError(t, c.AddOperator(dotInc))
	require.NoError(t, c.AddProbe(200, "Y", yv, 1))
	require.NoError(t, c.FinalizeBuild(chunk.Options{}))

	require.NoError(t, c.Run(1))
	rows, err := c.ProbeData(200)
	require.NoError(t, err)
	require.Equal(t, [][]float64{{3, 7}}, rows)
}

// TestLIFFires reproduces spec.md §8 scenario 4.
func TestLIFFires(t *testing.T) {
	c := chunk.New(0, 1, 0.001)
	const tauRC, tauRef, dt = 0.02, 0.002, 0.001
	require.NoError(t, c.AddBaseSignal(1, "J", 1, 0, []float64{2.0}))
	require.NoError(t, c.AddBaseSignal(2, "out", 1, 0, []float64{0}))
	jv, _ := c.Store().ViewFromKey(1)
	outv, _ := c.Store().ViewFromKey(2)

	lif, err := op.SimLIF(0, "lif", 1, tauRC, tauRef, dt, jv, outv)
	require.NoError(t, err)
	require.NoError(t, c.AddOperator(lif))
	require.NoError(t, c.AddProbe(300, "out", outv, 1))
	require.NoError(t, c.FinalizeBuild(chunk.Options{}))

	require.NoError(t, c.Run(50))
	rows, err := c.ProbeData(300)
	require.NoError(t, err)
	require.Len(t, rows, 50)

	var fired, rest bool
	for _, r := range rows {
		switch r[0] {
		case 1 / dt:
			fired = true
		case 0:
			rest = true
		default:
			t.Fatalf("unexpected sample value %v", r[0])
		}
	}
	require.True(t, fired, "expected at least one firing sample")
	require.True(t, rest, "expected resting samples alongside the firing sample")
}

// TestResetRestoresBuildSnapshotAndClearsProbes checks that Reset restores
// signal contents, zeroes the step counter, and clears probe buffers.
func TestResetRestoresBuildSnapshotAndClearsProbes(t *testing.T) {
	c := chunk.New(0, 1, 0.001)
	require.NoError(t, c.AddBaseSignal(1, "counter", 1, 0, []float64{1}))
	require.NoError(t, c.AddBaseSignal(2, "step", 1, 0, []float64{1}))
	counter, _ := c.Store().ViewFromKey(1)
	step, _ := c.Store().ViewFromKey(2)
	// counter += step on every tick, so after finalize (snapshot at 1) a
	// Reset must bring it back to 1 regardless of how many steps ran.
	inc, err := op.ScalarDotInc(0, "inc", step, step, counter)
	require.NoError(t, err)
	require.NoError(t, c.AddOperator(inc))
	require.NoError(t, c.AddProbe(100, "counter", counter, 1))
	require.NoError(t, c.FinalizeBuild(chunk.Options{}))

	require.NoError(t, c.Run(3))
	require.Equal(t, 3, c.StepCount())
	require.Equal(t, []float64{4}, counter.Snapshot())
	rows, err := c.ProbeData(100)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, c.Reset(0))
	require.Equal(t, 0, c.StepCount())
	require.Equal(t, 0.0, c.Time())
	require.Equal(t, []float64{1}, counter.Snapshot())
	rows, err = c.ProbeData(100)
	require.NoError(t, err)
	require.Empty(t, rows)
}

// TestProbeFlushBoundary reproduces spec.md §8 scenario 6: period 1,
// FLUSH_PROBES_EVERY override of 4, run(10) yields 10 total samples with
// two mid-run flushes plus a final flush at Close.
func TestProbeFlushBoundary(t *testing.T) {
	c := chunk.New(0, 1, 0.001)
	require.NoError(t, c.AddBaseSignal(1, "a", 1, 0, []float64{0}))
	av, _ := c.Store().ViewFromKey(1)
	require.NoError(t, c.AddOperator(op.Reset(0, "reset-a", av, 1)))
	require.NoError(t, c.AddProbe(100, "a", av, 1))

	sink := probe.NewMemorySink()
	require.NoError(t, c.FinalizeBuild(chunk.Options{Sink: sink, FlushEvery: 4}))

	require.NoError(t, c.Run(10))
	require.NoError(t, c.Close())

	rows, err := sink.ReadBlock(100)
	require.NoError(t, err)
	require.Len(t, rows, 10)
}

// failingSink fails every write, to exercise spec.md §7's
// IOError handling: non-fatal for the step loop, sink disabled, diagnostic
// emitted.
type failingSink struct{ calls int }

func (f *failingSink) WriteBlock(nengodist.Key, string, [][]float64) error {
	f.calls++
	return errors.New("boom")
}

func (f *failingSink) Close() error { return nil }

// TestFlushIOErrorDisablesSinkAndContinues checks that a failing LogSink
// write does not abort the step loop: the sink is swapped out after the
// first failure and the run completes normally.
func TestFlushIOErrorDisablesSinkAndContinues(t *testing.T) {
	c := chunk.New(0, 1, 0.001)
	require.NoError(t, c.AddBaseSignal(1, "a", 1, 0, []float64{0}))
	av, _ := c.Store().ViewFromKey(1)
	require.NoError(t, c.AddOperator(op.Reset(0, "reset-a", av, 1)))
	require.NoError(t, c.AddProbe(100, "a", av, 1))

	sink := &failingSink{}
	require.NoError(t, c.FinalizeBuild(chunk.Options{Sink: sink, FlushEvery: 1}))

	require.NoError(t, c.Run(3))
	require.NoError(t, c.Close())
	require.Equal(t, 1, sink.calls, "sink should be disabled after its first failed write")
}

// TestTwoChunkRingWithComm reproduces spec.md §8 scenario 3 end to end
// using comm/local as the transport.
func TestTwoChunkRingWithComm(t *testing.T) {
	nw := local.NewNetwork(2)

	c0 := chunk.New(0, 2, 0.001)
	require.NoError(t, c0.AddBaseSignal(1, "x", 1, 0, []float64{0}))
	require.NoError(t, c0.AddBaseSignal(2, "y", 1, 0, []float64{0}))
	x0, _ := c0.Store().ViewFromKey(1)
	y0, _ := c0.Store().ViewFromKey(2)
	require.NoError(t, c0.AddOperator(op.Reset(0, "reset-x0", x0, 1.0)))
	send0 := comm.NewSend(1, "0->1", 1, 7, x0, nw.Rank(0))
	recv0 := comm.NewRecv(1, "0<-1", 1, 8, y0, nw.Rank(0))
	require.NoError(t, c0.AddOperator(recv0))
	require.NoError(t, c0.AddOperator(send0))
	require.NoError(t, c0.AddProbe(200, "y0", y0, 1))
	require.NoError(t, c0.FinalizeBuild(chunk.Options{}))

	c1 := chunk.New(1, 2, 0.001)
	require.NoError(t, c1.AddBaseSignal(1, "x", 1, 0, []float64{0}))
	require.NoError(t, c1.AddBaseSignal(2, "y", 1, 0, []float64{0}))
	x1, _ := c1.Store().ViewFromKey(1)
	y1, _ := c1.Store().ViewFromKey(2)
	require.NoError(t, c1.AddOperator(op.Reset(0, "reset-x1", x1, 2.0)))
	send1 := comm.NewSend(1, "1->0", 0, 8, x1, nw.Rank(1))
	recv1 := comm.NewRecv(1, "1<-0", 0, 7, y1, nw.Rank(1))
	require.NoError(t, c1.AddOperator(recv1))
	require.NoError(t, c1.AddOperator(send1))
	require.NoError(t, c1.FinalizeBuild(chunk.Options{}))

	for step := 0; step < 3; step++ {
		require.NoError(t, c0.Step())
		require.NoError(t, c1.Step())
	}

	rows, err := c0.ProbeData(200)
	require.NoError(t, err)
	require.Equal(t, [][]float64{{0}, {2}, {2}}, rows)
}
