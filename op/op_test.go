package op_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nengodist/nengodist/op"
	"github.com/nengodist/nengodist/signal"
)

func mustView(t *testing.T, s *signal.Store, key signal.Key, label string, shape1, shape2 int, data []float64) signal.View {
	t.Helper()
	require.NoError(t, s.AddBase(key, label, shape1, shape2, data))
	v, err := s.ViewFromKey(key)
	require.NoError(t, err)
	return v
}

func TestResetOp(t *testing.T) {
	s := signal.NewStore()
	a := mustView(t, s, 1, "a", 1, 0, []float64{0})
	r := op.Reset(0, "reset", a, 3.5)
	require.NoError(t, r.Step())
	require.NoError(t, r.Step())
	assert.Equal(t, 3.5, a.At(0, 0))
}

func TestDotProductScenario(t *testing.T) {
	// spec.md §8 scenario 2.
	s := signal.NewStore()
	A := mustView(t, s, 1, "A", 2, 2, []float64{1, 2, 3, 4})
	X := mustView(t, s, 2, "X", 2, 0, []float64{1, 1})
	Y := mustView(t, s, 3, "Y", 2, 0, []float64{0, 0})

	reset := op.Reset(0, "reset-y", Y, 0)
	dotinc, err := op.DotInc(1, "dotinc", A, X, Y)
	require.NoError(t, err)

	require.NoError(t, reset.Step())
	require.NoError(t, dotinc.Step())
	assert.Equal(t, 3.0, Y.At(0, 0))
	assert.Equal(t, 7.0, Y.At(1, 0))
}

func TestCopyShapeMismatch(t *testing.T) {
	s := signal.NewStore()
	a := mustView(t, s, 1, "a", 2, 0, []float64{0, 0})
	b := mustView(t, s, 2, "b", 3, 0, []float64{0, 0, 0})
	_, err := op.Copy(0, "copy", a, b)
	require.Error(t, err)
}

func TestCopyIdempotent(t *testing.T) {
	// Copy(Copy(x)) == Copy(x) (spec.md §8 round-trip property).
	s := signal.NewStore()
	src := mustView(t, s, 1, "src", 1, 0, []float64{4})
	dst := mustView(t, s, 2, "dst", 1, 0, []float64{0})
	c, err := op.Copy(0, "c", dst, src)
	require.NoError(t, err)
	require.NoError(t, c.Step())
	first := dst.At(0, 0)
	require.NoError(t, c.Step())
	assert.Equal(t, first, dst.At(0, 0))
}

func TestResetThenDotIncAlgebraic(t *testing.T) {
	// Reset(v) followed by DotInc(A,X,Y) with Y the reset target yields A·X + v.
	s := signal.NewStore()
	A := mustView(t, s, 1, "A", 1, 1, []float64{2})
	X := mustView(t, s, 2, "X", 1, 0, []float64{3})
	Y := mustView(t, s, 3, "Y", 1, 0, []float64{0})

	reset := op.Reset(0, "reset", Y, 5)
	dotinc, err := op.DotInc(1, "dotinc", A, X, Y)
	require.NoError(t, err)
	require.NoError(t, reset.Step())
	require.NoError(t, dotinc.Step())
	assert.Equal(t, 11.0, Y.At(0, 0)) // 2*3 + 5
}

func TestProdUpdate(t *testing.T) {
	s := signal.NewStore()
	A := mustView(t, s, 1, "A", 1, 1, []float64{2})
	X := mustView(t, s, 2, "X", 1, 0, []float64{3})
	B := mustView(t, s, 3, "B", 1, 0, []float64{0.5})
	Y := mustView(t, s, 4, "Y", 1, 0, []float64{10})

	p, err := op.ProdUpdate(0, "p", A, X, B, Y)
	require.NoError(t, err)
	require.NoError(t, p.Step())
	assert.Equal(t, 11.0, Y.At(0, 0)) // 0.5*10 + 2*3
}

func TestScalarDotIncAndProdUpdate(t *testing.T) {
	s := signal.NewStore()
	a := mustView(t, s, 1, "a", 1, 0, []float64{2})
	X := mustView(t, s, 2, "X", 2, 0, []float64{1, 2})
	Y := mustView(t, s, 3, "Y", 2, 0, []float64{0, 0})

	sdi, err := op.ScalarDotInc(0, "sdi", a, X, Y)
	require.NoError(t, err)
	require.NoError(t, sdi.Step())
	assert.Equal(t, []float64{2, 4}, []float64{Y.At(0, 0), Y.At(1, 0)})

	b := mustView(t, s, 4, "b", 1, 0, []float64{0.5})
	spu, err := op.ScalarProdUpdate(1, "spu", a, X, b, Y)
	require.NoError(t, err)
	require.NoError(t, spu.Step())
	assert.Equal(t, []float64{3, 6}, []float64{Y.At(0, 0), Y.At(1, 0)}) // 0.5*[2,4] + 2*[1,2]
}

func TestSimLIFRate(t *testing.T) {
	s := signal.NewStore()
	J := mustView(t, s, 1, "J", 1, 0, []float64{2})
	out := mustView(t, s, 2, "out", 1, 0, []float64{0})
	o, err := op.SimLIFRate(0, "rate", 0.02, 0.002, 0.001, J, out)
	require.NoError(t, err)
	require.NoError(t, o.Step())
	assert.Greater(t, out.At(0, 0), 0.0)
}

func TestSimLIFRateBelowThreshold(t *testing.T) {
	s := signal.NewStore()
	J := mustView(t, s, 1, "J", 1, 0, []float64{0.5})
	out := mustView(t, s, 2, "out", 1, 0, []float64{0})
	o, err := op.SimLIFRate(0, "rate", 0.02, 0.002, 0.001, J, out)
	require.NoError(t, err)
	require.NoError(t, o.Step())
	assert.Equal(t, 0.0, out.At(0, 0))
}

func TestSimLIFFires(t *testing.T) {
	// spec.md §8 scenario 4: run(50), at least one sample == 1/dt, rest 0.
	s := signal.NewStore()
	J := mustView(t, s, 1, "J", 1, 0, []float64{2.0})
	out := mustView(t, s, 2, "out", 1, 0, []float64{0})
	lif, err := op.SimLIF(0, "lif", 1, 0.02, 0.002, 0.001, J, out)
	require.NoError(t, err)

	sawSpike := false
	for i := 0; i < 50; i++ {
		require.NoError(t, lif.Step())
		v := out.At(0, 0)
		if v != 0 {
			assert.Equal(t, 1000.0, v)
			sawSpike = true
		}
	}
	assert.True(t, sawSpike, "expected at least one spike over 50 steps")
}

func TestFilterGain(t *testing.T) {
	// A pure-gain filter (numer=[2], denom=[1]) behaves like a scalar multiply.
	s := signal.NewStore()
	in := mustView(t, s, 1, "in", 1, 0, []float64{3})
	out := mustView(t, s, 2, "out", 1, 0, []float64{0})
	f, err := op.Filter(0, "f", in, out, []float64{2}, []float64{1})
	require.NoError(t, err)
	require.NoError(t, f.Step())
	assert.Equal(t, 6.0, out.At(0, 0))
}

func TestHostCallback(t *testing.T) {
	s := signal.NewStore()
	out := mustView(t, s, 1, "out", 2, 0, []float64{0, 0})
	h := op.HostCallback(0, "host", out, func(t float64, input []float64) ([]float64, error) {
		return []float64{9, 9}, nil
	}, false, nil, nil)
	require.NoError(t, h.Step())
	assert.Equal(t, 9.0, out.At(0, 0))
}
