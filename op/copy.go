package op

import "github.com/nengodist/nengodist/signal"

// copyOp performs an element-wise assignment dst = src each step.
type copyOp struct {
	base
	dst, src signal.View
}

// Copy returns an operator performing dst = src, element-wise. dst and src
// must have matching shapes; Copy returns a BuildError if they do not.
func Copy(index float64, label string, dst, src signal.View) (Operator, error) {
	if dst.Shape1 != src.Shape1 || dst.Shape2 != src.Shape2 {
		return nil, shapeMismatch(label, [2]int{dst.Shape1, dst.Shape2}, [2]int{src.Shape1, src.Shape2})
	}
	return &copyOp{base: base{index, label}, dst: dst, src: src}, nil
}

func (c *copyOp) Step() error {
	c.dst.ForEach(func(i, j int, _ float64) {
		c.dst.Set(i, j, c.src.At(i, j))
	})
	return nil
}
