package op

import "github.com/nengodist/nengodist/signal"

// dotIncOp computes Y += A·X, a standard matrix-vector multiply-accumulate.
type dotIncOp struct {
	base
	a, x, y signal.View
}

// DotInc returns an operator computing Y += A·X. A is a Shape1 x Shape2
// matrix view, X a Shape2-length vector, Y a Shape1-length vector. No
// aliasing between A/X and Y is required.
func DotInc(index float64, label string, a, x, y signal.View) (Operator, error) {
	if a.Shape2 != x.Shape1 || a.Shape1 != y.Shape1 {
		return nil, shapeMismatch(label, [2]int{a.Shape1, a.Shape2}, [2]int{x.Shape1, y.Shape1})
	}
	return &dotIncOp{base: base{index, label}, a: a, x: x, y: y}, nil
}

func (d *dotIncOp) Step() error {
	for i := 0; i < d.y.Shape1; i++ {
		var sum float64
		for j := 0; j < d.x.Shape1; j++ {
			sum += d.a.At(i, j) * d.x.At(j, 0)
		}
		d.y.Set(i, 0, d.y.At(i, 0)+sum)
	}
	return nil
}

// scalarDotIncOp computes Y += a·X where a is a 1-element broadcast scalar.
type scalarDotIncOp struct {
	base
	a, x, y signal.View
}

// ScalarDotInc returns an operator computing Y += a·X, element-wise, where
// a is a 1-element view applied as a broadcast scalar. X and Y must have
// matching shapes.
func ScalarDotInc(index float64, label string, a, x, y signal.View) (Operator, error) {
	if a.Len() != 1 {
		return nil, shapeMismatch(label+" (scalar a)", [2]int{a.Shape1, a.Shape2}, [2]int{1, 0})
	}
	if x.Shape1 != y.Shape1 || x.Shape2 != y.Shape2 {
		return nil, shapeMismatch(label, [2]int{x.Shape1, x.Shape2}, [2]int{y.Shape1, y.Shape2})
	}
	return &scalarDotIncOp{base: base{index, label}, a: a, x: x, y: y}, nil
}

func (d *scalarDotIncOp) Step() error {
	scalar := d.a.At(0, 0)
	d.y.ForEach(func(i, j int, val float64) {
		d.y.Set(i, j, val+scalar*d.x.At(i, j))
	})
	return nil
}

// prodUpdateOp computes Y = B⊙Y + A·X, elementwise scaling of Y by B then
// adding the matrix-vector product.
type prodUpdateOp struct {
	base
	a, x, b, y signal.View
}

// ProdUpdate returns an operator computing Y = B⊙Y + A·X. B and Y must have
// matching shapes; A/X follow DotInc's shape rule.
func ProdUpdate(index float64, label string, a, x, b, y signal.View) (Operator, error) {
	if a.Shape2 != x.Shape1 || a.Shape1 != y.Shape1 {
		return nil, shapeMismatch(label, [2]int{a.Shape1, a.Shape2}, [2]int{x.Shape1, y.Shape1})
	}
	if b.Shape1 != y.Shape1 || b.Shape2 != y.Shape2 {
		return nil, shapeMismatch(label+" (b,y)", [2]int{b.Shape1, b.Shape2}, [2]int{y.Shape1, y.Shape2})
	}
	return &prodUpdateOp{base: base{index, label}, a: a, x: x, b: b, y: y}, nil
}

func (p *prodUpdateOp) Step() error {
	for i := 0; i < p.y.Shape1; i++ {
		var sum float64
		for j := 0; j < p.x.Shape1; j++ {
			sum += p.a.At(i, j) * p.x.At(j, 0)
		}
		p.y.Set(i, 0, p.b.At(i, 0)*p.y.At(i, 0)+sum)
	}
	return nil
}

// scalarProdUpdateOp computes Y = b*Y + a*X, element-wise, where a and b
// are 1-element broadcast scalars.
type scalarProdUpdateOp struct {
	base
	a, x, b, y signal.View
}

// ScalarProdUpdate returns an operator computing Y = b*Y + a*X, where a and
// b are both 1-element views applied as broadcast scalars.
func ScalarProdUpdate(index float64, label string, a, x, b, y signal.View) (Operator, error) {
	if a.Len() != 1 || b.Len() != 1 {
		return nil, shapeMismatch(label+" (scalar a,b)", [2]int{a.Len(), b.Len()}, [2]int{1, 1})
	}
	if x.Shape1 != y.Shape1 || x.Shape2 != y.Shape2 {
		return nil, shapeMismatch(label, [2]int{x.Shape1, x.Shape2}, [2]int{y.Shape1, y.Shape2})
	}
	return &scalarProdUpdateOp{base: base{index, label}, a: a, x: x, b: b, y: y}, nil
}

func (p *scalarProdUpdateOp) Step() error {
	sa, sb := p.a.At(0, 0), p.b.At(0, 0)
	p.y.ForEach(func(i, j int, val float64) {
		p.y.Set(i, j, sb*val+sa*p.x.At(i, j))
	})
	return nil
}
