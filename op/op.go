// Package op implements the closed set of operators enumerated in
// spec.md §4.2: Reset, Copy, DotInc, ScalarDotInc, ProdUpdate,
// ScalarProdUpdate, Filter, SimLIF, SimLIFRate and HostCallback. The
// communication operators (MPISend/MPIRecv/MPIWait/MPIBarrier) live in
// package comm since they additionally depend on a Transport.
//
// The shape mirrors hwsim's hwlib: one file per family of related
// operators (reset.go, copy.go, linalg.go, filter.go, neuron.go, host.go),
// each exposing plain constructors that return a resolved Operator rather
// than a hwlib-style PartSpec — there is no socket/pin-binding phase here
// because signal.View is already resolved by the time an operator is
// built (spec.md §4.1).
package op

import "github.com/nengodist/nengodist"

// Operator is a polymorphic step-callable with a stable execution index
// (spec.md §3). The concrete variant set is closed; see the constructors
// in this package and in package comm.
type Operator interface {
	// Index is the total-order key assigned at build; operators execute
	// in ascending Index order each step, ties broken by insertion order.
	Index() float64
	// Step executes one step of the operator against its bound views.
	Step() error
	// Label is a diagnostic name, never used for scheduling.
	Label() string
}

// base implements Index/Label for embedding into concrete operators.
type base struct {
	index float64
	label string
}

func (b base) Index() float64 { return b.index }
func (b base) Label() string  { return b.label }

// shapeMismatch builds the BuildError an operator constructor returns when
// its operand shapes disagree.
func shapeMismatch(label string, a, b [2]int) error {
	return nengodist.NewBuildError("%s: shape mismatch %v vs %v", label, a, b)
}
