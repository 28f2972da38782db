package op

import "github.com/nengodist/nengodist/signal"

// resetOp sets every element of dst to a constant value each step.
type resetOp struct {
	base
	dst   signal.View
	value float64
}

// Reset returns an operator that sets every element of dst to value on
// each Step.
func Reset(index float64, label string, dst signal.View, value float64) Operator {
	return &resetOp{base: base{index, label}, dst: dst, value: value}
}

func (r *resetOp) Step() error {
	r.dst.ForEach(func(i, j int, _ float64) { r.dst.Set(i, j, r.value) })
	return nil
}
