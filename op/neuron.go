package op

import (
	"math"

	"github.com/nengodist/nengodist/signal"
)

// simLIFOp is the leaky integrate-and-fire neuron update (spec.md §4.2).
// It maintains per-neuron membrane voltage and a refractory timer as
// internal state, stepped once per Step call.
type simLIFOp struct {
	base
	tauRC, tauRef, dt float64
	j, out            signal.View
	v, ref            []float64
}

// SimLIF returns a leaky integrate-and-fire update operator for n neurons.
// j is the input current view, out the emitted-spike-rate view; both must
// have n elements.
func SimLIF(index float64, label string, n int, tauRC, tauRef, dt float64, j, out signal.View) (Operator, error) {
	if j.Len() != n || out.Len() != n {
		return nil, shapeMismatch(label, [2]int{j.Len(), out.Len()}, [2]int{n, n})
	}
	return &simLIFOp{
		base: base{index, label}, tauRC: tauRC, tauRef: tauRef, dt: dt,
		j: j, out: out, v: make([]float64, n), ref: make([]float64, n),
	}, nil
}

func (s *simLIFOp) Step() error {
	n := 0
	s.j.ForEach(func(i, jj int, current float64) {
		vBefore := s.v[n]
		ref := s.ref[n] - s.dt

		dv := (s.dt / s.tauRC) * (current - vBefore)
		v := vBefore + dv

		var outVal float64
		if ref <= 0 && v >= 1 {
			outVal = 1 / s.dt
			overshoot := v - 1
			frac := 0.0
			if dv != 0 {
				frac = overshoot / dv
			}
			ref = s.tauRef + s.dt*(1-frac)
			v = 0
		} else if ref > 0 {
			// refractory: voltage does not accumulate
			v = 0
		}

		s.v[n] = v
		s.ref[n] = ref
		s.out.Set(i, jj, outVal)
		n++
	})
	return nil
}

// simLIFRateOp is the stateless rate approximation of SimLIF.
type simLIFRateOp struct {
	base
	tauRC, tauRef, dt float64
	j, out            signal.View
}

// SimLIFRate returns the stateless LIF rate-approximation operator:
// out = 1 / (tauRef + tauRC * ln(1 + 1/(J-1))) for J > 1, else 0.
func SimLIFRate(index float64, label string, tauRC, tauRef, dt float64, j, out signal.View) (Operator, error) {
	if j.Shape1 != out.Shape1 || j.Shape2 != out.Shape2 {
		return nil, shapeMismatch(label, [2]int{j.Shape1, j.Shape2}, [2]int{out.Shape1, out.Shape2})
	}
	return &simLIFRateOp{base: base{index, label}, tauRC: tauRC, tauRef: tauRef, dt: dt, j: j, out: out}, nil
}

func (s *simLIFRateOp) Step() error {
	s.j.ForEach(func(i, jj int, jval float64) {
		var rate float64
		if jval > 1 {
			rate = 1 / (s.tauRef + s.tauRC*math.Log(1+1/(jval-1)))
		}
		s.out.Set(i, jj, rate)
	})
	return nil
}
