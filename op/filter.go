package op

import (
	"github.com/nengodist/nengodist"
	"github.com/nengodist/nengodist/signal"
)

// filterOp applies a discrete linear filter (given transfer-function
// numerator/denominator coefficients) independently to every element along
// the signal dimension, with state (the transposed direct-form-II delay
// line) retained across steps.
type filterOp struct {
	base
	input, output signal.View
	b, a          []float64   // normalized: a[0] == 1
	state         [][]float64 // per-element delay line, length len(b)-1
}

// Filter returns an operator applying the filter with numerator numer and
// denominator denom to every element of input, writing to output (which
// must have the same shape as input). denom[0] must be non-zero; numer and
// denom are copied and normalized so that denom[0] == 1.
func Filter(index float64, label string, input, output signal.View, numer, denom []float64) (Operator, error) {
	if input.Shape1 != output.Shape1 || input.Shape2 != output.Shape2 {
		return nil, shapeMismatch(label, [2]int{input.Shape1, input.Shape2}, [2]int{output.Shape1, output.Shape2})
	}
	if len(denom) == 0 || denom[0] == 0 {
		return nil, nengodist.NewBuildError("filter %q: denom[0] must be non-zero", label)
	}
	order := len(numer)
	if len(denom) > order {
		order = len(denom)
	}
	b := make([]float64, order)
	a := make([]float64, order)
	d0 := denom[0]
	for i := range b {
		if i < len(numer) {
			b[i] = numer[i] / d0
		}
		if i < len(denom) {
			a[i] = denom[i] / d0
		}
	}
	state := make([][]float64, input.Len())
	for i := range state {
		state[i] = make([]float64, order-1)
	}
	return &filterOp{base: base{index, label}, input: input, output: output, b: b, a: a, state: state}, nil
}

func (f *filterOp) Step() error {
	n := 0
	f.input.ForEach(func(i, j int, x float64) {
		z := f.state[n]
		var y float64
		if len(f.b) > 0 {
			y = f.b[0]*x + firstOrZero(z)
		}
		for k := 1; k < len(f.b); k++ {
			next := 0.0
			if k < len(z) {
				next = z[k]
			}
			contrib := f.b[k]*x - f.a[k]*y
			if k-1 < len(z) {
				z[k-1] = next + contrib
			}
		}
		f.output.Set(i, j, y)
		n++
	})
	return nil
}

func firstOrZero(z []float64) float64 {
	if len(z) == 0 {
		return 0
	}
	return z[0]
}
