package simrun_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nengodist/nengodist/op"
	"github.com/nengodist/nengodist/simrun"
)

func TestSingleProcessScalarResetAndProbe(t *testing.T) {
	sim := simrun.New(1, 0.001, simrun.Options{})
	require.NoError(t, sim.AddBaseSignal(0, 1, "a", 1, 0, []float64{0}))
	av, err := sim.Chunk(0).Store().ViewFromKey(1)
	require.NoError(t, err)
	require.NoError(t, sim.AddOperator(0, op.Reset(0, "reset-a", av, 3.5)))
	require.NoError(t, sim.AddProbe(0, 100, "P", av, 1))
	require.NoError(t, sim.FinalizeBuild())
	defer sim.Close()

	require.NoError(t, sim.RunNSteps(2))
	rows, err := sim.ProbeData(100)
	require.NoError(t, err)
	require.Equal(t, [][]float64{{3.5}, {3.5}}, rows)

	count, ok := sim.ProbeSampleCount(100)
	require.True(t, ok)
	require.Equal(t, 2, count)
	require.Equal(t, 2, sim.Stats().Steps)
}

// TestTwoChunkRing reproduces spec.md §8 scenario 3 through the Simulator
// surface (new_chunk/add_signal/add_op/add_probe/run_n_steps/probe_data).
func TestTwoChunkRing(t *testing.T) {
	sim := simrun.New(2, 0.001, simrun.Options{})

	require.NoError(t, sim.AddBaseSignal(0, 1, "x", 1, 0, []float64{0}))
	require.NoError(t, sim.AddBaseSignal(0, 2, "y", 1, 0, []float64{0}))
	x0, _ := sim.Chunk(0).Store().ViewFromKey(1)
	y0, _ := sim.Chunk(0).Store().ViewFromKey(2)
	require.NoError(t, sim.AddOperator(0, op.Reset(0, "reset-x0", x0, 1.0)))
	require.NoError(t, sim.AddRecv(0, 1, "0<-1", 1, 8, y0))
	require.NoError(t, sim.AddSend(0, 1, "0->1", 1, 7, x0))
	require.NoError(t, sim.AddProbe(0, 200, "y0", y0, 1))

	require.NoError(t, sim.AddBaseSignal(1, 1, "x", 1, 0, []float64{0}))
	require.NoError(t, sim.AddBaseSignal(1, 2, "y", 1, 0, []float64{0}))
	x1, _ := sim.Chunk(1).Store().ViewFromKey(1)
	y1, _ := sim.Chunk(1).Store().ViewFromKey(2)
	require.NoError(t, sim.AddOperator(1, op.Reset(0, "reset-x1", x1, 2.0)))
	require.NoError(t, sim.AddRecv(1, 1, "1<-0", 0, 7, y1))
	require.NoError(t, sim.AddSend(1, 1, "1->0", 0, 8, x1))

	require.NoError(t, sim.FinalizeBuild())
	defer sim.Close()

	require.NoError(t, sim.RunNSteps(3))
	rows, err := sim.ProbeData(200)
	require.NoError(t, err)
	require.Equal(t, [][]float64{{0}, {2}, {2}}, rows)
}

func TestResetReplaysIdentically(t *testing.T) {
	sim := simrun.New(1, 0.001, simrun.Options{})
	require.NoError(t, sim.AddBaseSignal(0, 1, "a", 1, 0, []float64{0}))
	av, _ := sim.Chunk(0).Store().ViewFromKey(1)
	require.NoError(t, sim.AddOperator(0, op.Reset(0, "reset-a", av, 3.5)))
	require.NoError(t, sim.AddProbe(0, 100, "P", av, 1))
	require.NoError(t, sim.FinalizeBuild())
	defer sim.Close()

	require.NoError(t, sim.RunNSteps(4))
	first, err := sim.ProbeData(100)
	require.NoError(t, err)

	require.NoError(t, sim.Reset(0))
	require.NoError(t, sim.RunNSteps(4))
	second, err := sim.ProbeData(100)
	require.NoError(t, err)

	require.Equal(t, first, second)
}
