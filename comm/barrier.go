package comm

// BarrierOp performs a collective barrier every period steps, bounding
// inter-process skew without paying a per-step collective cost (spec.md
// §4.4). A period of 1 barriers on every step; the distributed simulator
// installs one of these at a terminal index (spec.md §4.3 step 4).
type BarrierOp struct {
	index     float64
	label     string
	period    int
	transport Transport
	step      int
}

// NewBarrier returns a barrier operator firing every period steps.
func NewBarrier(index float64, label string, period int, transport Transport) *BarrierOp {
	if period < 1 {
		period = 1
	}
	return &BarrierOp{index: index, label: label, period: period, transport: transport}
}

func (b *BarrierOp) Index() float64 { return b.index }
func (b *BarrierOp) Label() string  { return b.label }

func (b *BarrierOp) Step() error {
	b.step++
	if b.step%b.period != 0 {
		return nil
	}
	if err := b.transport.Barrier(); err != nil {
		return wrapCommErr(err, b.label+": barrier failed")
	}
	return nil
}

// Rearm resets the internal step counter, e.g. on Chunk.Reset.
func (b *BarrierOp) Rearm() { b.step = 0 }
