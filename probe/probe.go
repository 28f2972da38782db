// Package probe implements the periodic signal sampler of spec.md §3
// (Probe) and §4.5, plus the LogSink interface a chunk flushes samples
// into.
//
// Grounded on hwsim.Circuit's watch mechanism is not applicable here (the
// teacher has no sampling concept); this package instead generalizes
// signal.View.Snapshot, itself grounded on the teacher's pin-array reads,
// into a periodic ring buffer.
package probe

import (
	"github.com/nengodist/nengodist"
	"github.com/nengodist/nengodist/signal"
)

// LogSink is what a Probe flushes its buffered samples into (spec.md §2
// "Log sink", §4.5 "flush"). probe/sqlitesink is the one concrete backend
// shipped in this repo; MemorySink below is the in-process fallback used
// when a run has no durable sink configured.
type LogSink interface {
	// WriteBlock appends rows (each a flat, row-major sample) for the probe
	// identified by key to the sink.
	WriteBlock(key nengodist.Key, label string, rows [][]float64) error
	// Close releases any resources held by the sink.
	Close() error
}

// Reader is implemented by sinks that support reading back everything
// written for a key, e.g. to answer probe_data(key) in-process without a
// side channel (spec.md §4.6).
type Reader interface {
	ReadBlock(key nengodist.Key) ([][]float64, error)
}

// Probe periodically samples a signal.View into an in-memory buffer, which
// is later handed to a LogSink and cleared (spec.md §3 Probe).
type Probe struct {
	Key    nengodist.Key
	Label  string
	Target signal.View
	Period int

	buffer [][]float64
	total  int // samples taken over the probe's lifetime, flushed or not
}

// New returns a probe sampling target every period steps. period must be
// >= 1.
func New(key nengodist.Key, label string, target signal.View, period int) (*Probe, error) {
	if period < 1 {
		return nil, nengodist.NewBuildError("probe %q: period must be >= 1, got %d", label, period)
	}
	return &Probe{Key: key, Label: label, Target: target, Period: period}, nil
}

// Sample appends a fresh copy of the target view's contents if step is a
// multiple of the probe's period (spec.md §4.5).
func (p *Probe) Sample(step int) {
	if step%p.Period != 0 {
		return
	}
	p.buffer = append(p.buffer, p.Target.Snapshot())
	p.total++
}

// Len reports the number of buffered, unflushed samples.
func (p *Probe) Len() int { return len(p.buffer) }

// Count reports the total number of samples taken over the probe's
// lifetime, including ones already flushed — lets a caller report run
// progress without draining the sink.
func (p *Probe) Count() int { return p.total }

// Flush moves the buffered samples into sink and clears the buffer. A
// no-op when the buffer is empty, so callers may flush unconditionally on
// a schedule (spec.md §8 scenario 6, "internal buffer flushed twice
// mid-run, once at end").
func (p *Probe) Flush(sink LogSink) error {
	if len(p.buffer) == 0 {
		return nil
	}
	if err := sink.WriteBlock(p.Key, p.Label, p.buffer); err != nil {
		return nengodist.WrapIOError(err, "probe "+p.Label+": flush failed")
	}
	p.buffer = p.buffer[:0]
	return nil
}

// Clear drops every buffered sample. If hard, the backing array is also
// released, so a probe that will not be sampled again stops holding memory
// (spec.md §4.5 "clear(hard)").
func (p *Probe) Clear(hard bool) {
	if hard {
		p.buffer = nil
		return
	}
	p.buffer = p.buffer[:0]
}

// discardSink accepts and drops every write. A chunk swaps its sink for one
// of these after a LogSink write fails, per spec.md §7's IOError handling:
// "the step loop continues, the log sink is disabled, and a diagnostic is
// emitted".
type discardSink struct{}

// NewDiscardSink returns a LogSink that silently drops every write.
func NewDiscardSink() LogSink { return discardSink{} }

func (discardSink) WriteBlock(nengodist.Key, string, [][]float64) error { return nil }
func (discardSink) Close() error                                        { return nil }

// MemorySink is the default LogSink used when a chunk is not configured
// with a durable backend: it retains every written block in process
// memory, which is enough for tests and for probe_data() readback within a
// single run.
type MemorySink struct {
	blocks map[nengodist.Key][][]float64
	labels map[nengodist.Key]string
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{blocks: make(map[nengodist.Key][][]float64), labels: make(map[nengodist.Key]string)}
}

func (m *MemorySink) WriteBlock(key nengodist.Key, label string, rows [][]float64) error {
	m.labels[key] = label
	for _, row := range rows {
		m.blocks[key] = append(m.blocks[key], append([]float64(nil), row...))
	}
	return nil
}

func (m *MemorySink) ReadBlock(key nengodist.Key) ([][]float64, error) {
	return m.blocks[key], nil
}

func (m *MemorySink) Close() error { return nil }
