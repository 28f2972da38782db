// Package simrun implements the distributed simulator of spec.md §4.6:
// rank coordination, build record dispatch, step broadcast, probe gather,
// and shutdown.
//
// Grounded on hwsim.NewCircuit's worker spawn/dispatch (one worker per
// partition of the component slice, driven by a shared Step) and on the
// coordinator/worker split described for distributed executors operating
// over partitions of work (other_examples/grailbio-bigslice__doc.go):
// here the partitions are chunks instead of slice shards, and "dispatch"
// means shipping typed build records instead of closures, since each
// chunk is its own process.
package simrun

import (
	"encoding/gob"
	"io"

	"github.com/pkg/errors"

	"github.com/nengodist/nengodist"
)

// Flag tags a build-phase wire record (spec.md §6 "Wire protocol between
// simulator ranks").
type Flag int32

const (
	FlagAddSignal Flag = 1
	FlagAddOp     Flag = 2
	FlagAddProbe  Flag = 3
	FlagStop      Flag = 4
)

// OpKind names one of the closed set of operator constructors an OpRecord
// can describe. HostCallback is deliberately absent: a Go closure cannot
// cross the wire, so host callbacks are only ever attached to a chunk
// in-process (documented in DESIGN.md).
type OpKind string

const (
	OpReset            OpKind = "Reset"
	OpCopy             OpKind = "Copy"
	OpDotInc           OpKind = "DotInc"
	OpScalarDotInc     OpKind = "ScalarDotInc"
	OpProdUpdate       OpKind = "ProdUpdate"
	OpScalarProdUpdate OpKind = "ScalarProdUpdate"
	OpFilter           OpKind = "Filter"
	OpSimLIF           OpKind = "SimLIF"
	OpSimLIFRate       OpKind = "SimLIFRate"
	OpMPISend          OpKind = "MPISend"
	OpMPIRecv          OpKind = "MPIRecv"
)

// SignalRecord carries a full BaseSignal: its key, label, shape, and
// initial tensor payload (spec.md §6 add_signal).
type SignalRecord struct {
	Key            nengodist.Key
	Label          string
	Shape1, Shape2 int
	Data           []float64
}

// ProbeRecord carries a probe binding: which signal it samples, and at
// what period (spec.md §6 add_probe).
type ProbeRecord struct {
	Key       nengodist.Key
	Label     string
	SignalKey nengodist.Key
	Period    int
}

// OpRecord carries one operator's constructor arguments, addressing its
// operands by signal key (spec.md §6 add_op; op_spec is {kind, index,
// params...}). Every view an OpRecord names is resolved to the signal's
// full extent on the worker side; OpRecord has no notion of a sub-view.
type OpRecord struct {
	Kind  OpKind
	Index float64
	Label string

	// Signal-key operands; which fields are meaningful depends on Kind.
	Dst, Src   nengodist.Key // Reset (Dst), Copy (Dst, Src)
	A, X, B, Y nengodist.Key // DotInc/ScalarDotInc/ProdUpdate/ScalarProdUpdate
	J, Out     nengodist.Key // SimLIF/SimLIFRate
	Input      nengodist.Key // Filter input
	Output     nengodist.Key // Filter output

	Value             float64   // Reset
	N                 int       // SimLIF
	TauRC, TauRef, Dt float64   // SimLIF/SimLIFRate
	Numer, Denom      []float64 // Filter

	Peer, Tag int // MPISend/MPIRecv
}

// Record is one framed message in the build-phase wire protocol. Exactly
// one of Signal/Op/Probe is set, depending on Flag; FlagStop sets none.
type Record struct {
	Flag   Flag
	Signal *SignalRecord
	Op     *OpRecord
	Probe  *ProbeRecord
}

// Encoder writes a stream of Records to an io.Writer via encoding/gob,
// which is self-framing (each Encode call is one wire message) and so
// needs no additional length-prefixing, unlike the per-step comm package's
// raw float payloads.
type Encoder struct{ enc *gob.Encoder }

func NewEncoder(w io.Writer) *Encoder { return &Encoder{enc: gob.NewEncoder(w)} }

func (e *Encoder) Send(rec Record) error {
	if err := e.enc.Encode(rec); err != nil {
		return errors.Wrap(err, "simrun: encode record")
	}
	return nil
}

// Decoder reads a stream of Records written by an Encoder.
type Decoder struct{ dec *gob.Decoder }

func NewDecoder(r io.Reader) *Decoder { return &Decoder{dec: gob.NewDecoder(r)} }

func (d *Decoder) Recv() (Record, error) {
	var rec Record
	if err := d.dec.Decode(&rec); err != nil {
		return Record{}, err // io.EOF surfaces unwrapped, callers check it directly
	}
	return rec, nil
}
