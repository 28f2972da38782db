package op

import (
	"github.com/nengodist/nengodist"
	"github.com/nengodist/nengodist/signal"
)

// Clock is the minimal time source a HostCallback needs; chunk.Chunk
// implements it.
type Clock interface {
	Now() float64
}

// HostFunc is an externally-registered callback handle: given the current
// time (if requested) and a snapshot of the input view (if bound), it
// returns the vector to write into the output view. The mechanism used to
// reach the host language is outside this package's contract.
type HostFunc func(t float64, input []float64) ([]float64, error)

// hostCallbackOp invokes fn once per step and writes its result into
// output. Failure to produce a compatible shape is fatal (RuntimeError).
type hostCallbackOp struct {
	base
	output   signal.View
	fn       HostFunc
	wantTime bool
	clock    Clock
	input    *signal.View
}

// HostCallback returns an operator invoking fn each step. clock is used
// only when wantTime is true; input may be nil if the callback takes no
// signal input.
func HostCallback(index float64, label string, output signal.View, fn HostFunc, wantTime bool, clock Clock, input *signal.View) Operator {
	return &hostCallbackOp{base: base{index, label}, output: output, fn: fn, wantTime: wantTime, clock: clock, input: input}
}

func (h *hostCallbackOp) Step() error {
	var t float64
	if h.wantTime && h.clock != nil {
		t = h.clock.Now()
	}
	var inVal []float64
	if h.input != nil {
		inVal = h.input.Snapshot()
	}
	result, err := h.fn(t, inVal)
	if err != nil {
		return nengodist.WrapRuntimeError(err, h.Label()+": host callback failed")
	}
	if err := h.output.LoadFrom(result); err != nil {
		return nengodist.WrapRuntimeError(err, h.Label()+": host callback returned incompatible shape")
	}
	return nil
}
