package comm

import "github.com/nengodist/nengodist/signal"

// RecvOp posts a non-blocking receive one step early; the value it
// completes into content on step s was sent by the peer at step s-1
// (spec.md §4.4's one-step communication latency).
type RecvOp struct {
	index     float64
	label     string
	src       int
	tag       int
	content   signal.View
	transport Transport
	buffer    []byte
	req       Request
	firstCall bool
}

// NewRecv returns a receive operator filling content from src under tag
// each step.
func NewRecv(index float64, label string, src, tag int, content signal.View, transport Transport) *RecvOp {
	n := content.Len()
	return &RecvOp{index: index, label: label, src: src, tag: tag, content: content, transport: transport, buffer: make([]byte, n*8), firstCall: true}
}

func (r *RecvOp) Index() float64 { return r.index }
func (r *RecvOp) Label() string  { return r.label }

func (r *RecvOp) Step() error {
	if r.firstCall {
		r.firstCall = false
	} else if r.req != nil {
		if err := r.req.Wait(); err != nil {
			return wrapCommErr(err, r.label+": recv wait failed")
		}
		flat := make([]float64, r.content.Len())
		decodeFloats(flat, r.buffer)
		if err := r.content.LoadFrom(flat); err != nil {
			return err
		}
	}
	req, err := r.transport.Recv(r.src, r.tag, r.buffer)
	if err != nil {
		return wrapCommErr(err, r.label+": recv failed")
	}
	r.req = req
	return nil
}

// Rearm discards any pending request and resets the first-call flag, so
// the next Step starts a fresh first-recv (spec.md §4.3 "Reset"). It does
// not touch the content view; chunk.Chunk.Reset restores that from the
// signal snapshot.
func (r *RecvOp) Rearm() {
	r.req = nil
	r.firstCall = true
}

// Drain waits on any outstanding request without posting a new receive.
func (r *RecvOp) Drain() error {
	if r.req == nil {
		return nil
	}
	err := r.req.Wait()
	r.req = nil
	return wrapCommErr(err, r.label+": drain failed")
}

func (r *RecvOp) Peer() int { return r.src }
func (r *RecvOp) Tag() int  { return r.tag }
