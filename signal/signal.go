// Package signal implements the signal store and view model of the
// distributed step-engine (spec.md §3, §4.1): contiguous numeric tensors
// (BaseSignal) plus strided, non-owning descriptors (View) naming
// sub-regions of them.
//
// The store is the generalization of hwsim.Circuit's double-buffered pin
// array: where a Circuit held one bool per pin in two flat slices and
// resolved a pin name to an index at mount time, a Store holds one
// *BaseSignal per Key and resolves a View to {base, strides, offset} at
// build time, so the hot path (chunk.Step) is a bare slice walk with no
// map lookups.
package signal

import (
	"fmt"

	"github.com/nengodist/nengodist"
)

// BaseSignal is a contiguous rank-1 or rank-2 floating array, identified by
// a Key, carrying a label for diagnostics, its shape, and an initial-value
// snapshot retained for reset.
type BaseSignal struct {
	Key     nengodist.Key
	Label   string
	Shape1  int // rows (or length, for rank 1)
	Shape2  int // columns; 0 for rank 1
	Data    []float64
	Initial []float64 // snapshot taken at finalize, restored on reset
}

// NDim reports the rank of the signal: 1 or 2.
func (b *BaseSignal) NDim() int {
	if b.Shape2 > 0 {
		return 2
	}
	return 1
}

// Len is the total element count (Shape1 * max(Shape2, 1)).
func (b *BaseSignal) Len() int {
	if b.Shape2 > 0 {
		return b.Shape1 * b.Shape2
	}
	return b.Shape1
}

// snapshot records the current contents as the reset target.
func (b *BaseSignal) snapshot() {
	b.Initial = append([]float64(nil), b.Data...)
}

// restore copies the initial snapshot back over Data.
func (b *BaseSignal) restore() {
	copy(b.Data, b.Initial)
}

// Spec describes a View to be constructed against a BaseSignal. Offset and
// strides are in elements, not bytes. A zero Stride1/Stride2 is resolved to
// a contiguous, row-major stride for the given shape.
type Spec struct {
	BaseKey Key
	Label   string
	Shape1  int
	Shape2  int
	Stride1 int
	Stride2 int
	Offset  int
}

// Key is a re-export of nengodist.Key for callers that only import signal.
type Key = nengodist.Key

// View is a non-owning, strided window into a BaseSignal. Views may alias;
// correctness of overlapping writes within a step is the builder's
// responsibility (spec.md §3).
type View struct {
	base    *BaseSignal
	Label   string
	NDim    int
	Shape1  int
	Shape2  int
	Stride1 int
	Stride2 int
	Offset  int
}

// BaseKey is the Key of the underlying BaseSignal.
func (v View) BaseKey() Key { return v.base.Key }

// Len is the number of elements the view addresses.
func (v View) Len() int {
	if v.NDim == 2 {
		return v.Shape1 * v.Shape2
	}
	return v.Shape1
}

func (v View) index(i, j int) int {
	return v.Offset + i*v.Stride1 + j*v.Stride2
}

// At returns the element at (i, j). j must be 0 for rank-1 views.
func (v View) At(i, j int) float64 {
	return v.base.Data[v.index(i, j)]
}

// Set writes the element at (i, j). j must be 0 for rank-1 views.
func (v View) Set(i, j int, val float64) {
	v.base.Data[v.index(i, j)] = val
}

// ForEach visits every element in row-major order, calling f(i, j, value).
func (v View) ForEach(f func(i, j int, val float64)) {
	if v.NDim == 1 {
		for i := 0; i < v.Shape1; i++ {
			f(i, 0, v.At(i, 0))
		}
		return
	}
	for i := 0; i < v.Shape1; i++ {
		for j := 0; j < v.Shape2; j++ {
			f(i, j, v.At(i, j))
		}
	}
}

// Snapshot returns a fresh, contiguous copy of the view's current contents
// in row-major order. Used by Probe.Sample and by communication operators
// when copying into their internal send/recv buffers.
func (v View) Snapshot() []float64 {
	out := make([]float64, 0, v.Len())
	v.ForEach(func(_, _ int, val float64) { out = append(out, val) })
	return out
}

// LoadFrom overwrites the view's contents from a flat, row-major slice of
// exactly v.Len() elements.
func (v View) LoadFrom(flat []float64) error {
	if len(flat) != v.Len() {
		return nengodist.NewRuntimeError("view %s: expected %d elements, got %d", v.Label, v.Len(), len(flat))
	}
	n := 0
	v.ForEach(func(i, j int, _ float64) {
		v.Set(i, j, flat[n])
		n++
	})
	return nil
}

// Store owns every BaseSignal added by a chunk. Once build completes, the
// backing storage for each BaseSignal is stable in address for the run:
// operators resolve their Views once, at build time, and never re-resolve.
type Store struct {
	bases map[Key]*BaseSignal
	order []Key // insertion order, for deterministic iteration (diagnostics, reset)
}

// NewStore returns an empty signal store.
func NewStore() *Store {
	return &Store{bases: make(map[Key]*BaseSignal)}
}

// AddBase registers a new BaseSignal. data is taken by reference (not
// copied); the store becomes its owner. Adding a duplicate key is a build
// error.
func (s *Store) AddBase(key Key, label string, shape1, shape2 int, data []float64) error {
	if _, exists := s.bases[key]; exists {
		return nengodist.NewBuildError("duplicate signal key %d (%q)", key, label)
	}
	want := shape1
	if shape2 > 0 {
		want = shape1 * shape2
	}
	if len(data) != want {
		return nengodist.NewBuildError("signal %q: shape (%d,%d) needs %d elements, got %d", label, shape1, shape2, want, len(data))
	}
	s.bases[key] = &BaseSignal{Key: key, Label: label, Shape1: shape1, Shape2: shape2, Data: data}
	s.order = append(s.order, key)
	return nil
}

// Base returns the BaseSignal for key, or an error if unknown.
func (s *Store) Base(key Key) (*BaseSignal, error) {
	b, ok := s.bases[key]
	if !ok {
		return nil, nengodist.NewBuildError("unknown signal key %d", key)
	}
	return b, nil
}

// ViewFromKey returns a full-extent View over the named BaseSignal.
func (s *Store) ViewFromKey(key Key) (View, error) {
	b, err := s.Base(key)
	if err != nil {
		return View{}, err
	}
	stride1 := 1
	if b.Shape2 > 0 {
		stride1 = b.Shape2
	}
	return View{
		base: b, Label: b.Label, NDim: b.NDim(),
		Shape1: b.Shape1, Shape2: b.Shape2,
		Stride1: stride1, Stride2: boolToStride(b.Shape2 > 0),
		Offset: 0,
	}, nil
}

func boolToStride(twoDim bool) int {
	if twoDim {
		return 1
	}
	return 0
}

// View resolves a Spec against the store, validating the resulting window
// is in-bounds. A zero stride pair defaults to a contiguous, row-major
// layout for the requested shape.
func (s *Store) View(spec Spec) (View, error) {
	b, err := s.Base(spec.BaseKey)
	if err != nil {
		return View{}, err
	}
	shape1, shape2 := spec.Shape1, spec.Shape2
	if shape1 == 0 {
		shape1 = b.Shape1
		shape2 = b.Shape2
	}
	ndim := 1
	if shape2 > 0 {
		ndim = 2
	}
	stride1, stride2 := spec.Stride1, spec.Stride2
	if stride1 == 0 && stride2 == 0 {
		if ndim == 2 {
			stride1, stride2 = shape2, 1
		} else {
			stride1 = 1
		}
	}
	label := spec.Label
	if label == "" {
		label = b.Label
	}
	v := View{base: b, Label: label, NDim: ndim, Shape1: shape1, Shape2: shape2, Stride1: stride1, Stride2: stride2, Offset: spec.Offset}
	if err := boundsCheck(b, v); err != nil {
		return View{}, err
	}
	return v, nil
}

func boundsCheck(b *BaseSignal, v View) error {
	maxIdx := v.Offset
	if v.Shape1 > 0 {
		maxIdx += (v.Shape1 - 1) * v.Stride1
	}
	if v.Shape2 > 0 {
		maxIdx += (v.Shape2 - 1) * v.Stride2
	}
	if v.Offset < 0 || maxIdx >= len(b.Data) {
		return nengodist.NewBuildError("view %q on signal %q (%d,%d,%d,%d): out of range for backing length %d",
			v.Label, b.Label, v.Shape1, v.Shape2, v.Stride1, v.Stride2, len(b.Data))
	}
	return nil
}

// Keys returns every registered signal key in insertion order.
func (s *Store) Keys() []Key {
	out := make([]Key, len(s.order))
	copy(out, s.order)
	return out
}

// FinalizeSnapshots records the current content of every BaseSignal as its
// reset target. Called once by chunk.FinalizeBuild.
func (s *Store) FinalizeSnapshots() {
	for _, k := range s.order {
		s.bases[k].snapshot()
	}
}

// Reset restores every BaseSignal to its initial snapshot.
func (s *Store) Reset() {
	for _, k := range s.order {
		s.bases[k].restore()
	}
}

// String renders a compact diagnostic description, e.g. for BuildError
// messages that name a signal.
func (v View) String() string {
	return fmt.Sprintf("%s[%d,%d]@%d", v.Label, v.Shape1, v.Shape2, v.Offset)
}
