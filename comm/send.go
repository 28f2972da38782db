package comm

import "github.com/nengodist/nengodist/signal"

// SendOp posts a non-blocking send one step early and waits on it the
// following step, hiding transport latency (spec.md §4.4).
type SendOp struct {
	index     float64
	label     string
	dst       int
	tag       int
	content   signal.View
	transport Transport
	buffer    []byte
	req       Request
	firstCall bool
}

// NewSend returns a send operator posting content to dst under tag each
// step.
func NewSend(index float64, label string, dst, tag int, content signal.View, transport Transport) *SendOp {
	return &SendOp{index: index, label: label, dst: dst, tag: tag, content: content, transport: transport, firstCall: true}
}

func (s *SendOp) Index() float64 { return s.index }
func (s *SendOp) Label() string  { return s.label }

func (s *SendOp) Step() error {
	if s.firstCall {
		s.firstCall = false
	} else if s.req != nil {
		if err := s.req.Wait(); err != nil {
			return wrapCommErr(err, s.label+": send wait failed")
		}
	}
	s.buffer = encodeFloats(s.buffer, s.content.Snapshot())
	req, err := s.transport.Send(s.dst, s.tag, s.buffer)
	if err != nil {
		return wrapCommErr(err, s.label+": send failed")
	}
	s.req = req
	return nil
}

// Rearm discards any pending request and resets the first-call flag, so
// the next Step starts a fresh first-send (spec.md §4.3 "Reset").
func (s *SendOp) Rearm() {
	s.req = nil
	s.firstCall = true
}

// Drain waits on any outstanding request without posting a new send. Used
// by chunk.Chunk.Reset before rearming; chunk.Chunk.Run does not drain
// after its last step, so the final send stays outstanding until the next
// Step or Reset.
func (s *SendOp) Drain() error {
	if s.req == nil {
		return nil
	}
	err := s.req.Wait()
	s.req = nil
	return wrapCommErr(err, s.label+": drain failed")
}

// Peer and Tag expose the binding for merge-plan construction.
func (s *SendOp) Peer() int { return s.dst }
func (s *SendOp) Tag() int  { return s.tag }
