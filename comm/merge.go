package comm

import "github.com/nengodist/nengodist/signal"

// mergeTag is the reserved tag merged sends/receives use on the wire.
// User tags are non-negative (spec.md §6); this sentinel can never
// collide with one.
const mergeTag = -1

// segment locates one logical send/recv payload within a merged buffer.
type segment struct {
	view   signal.View
	offset int // element offset within the merged buffer
}

// MergedSend concatenates every individual send to the same peer into one
// buffer, exchanging a single message per step regardless of the number of
// logical channels (spec.md §3 MergedCommPlan, §4.4 "Merged mode").
type MergedSend struct {
	index     float64
	label     string
	dst       int
	segments  []segment
	total     int
	transport Transport
	flat      []float64
	buffer    []byte
	req       Request
	firstCall bool
}

func (m *MergedSend) Index() float64 { return m.index }
func (m *MergedSend) Label() string  { return m.label }

func (m *MergedSend) Step() error {
	if m.firstCall {
		m.firstCall = false
	} else if m.req != nil {
		if err := m.req.Wait(); err != nil {
			return wrapCommErr(err, m.label+": merged send wait failed")
		}
	}
	if m.flat == nil {
		m.flat = make([]float64, m.total)
	}
	for _, seg := range m.segments {
		copy(m.flat[seg.offset:], seg.view.Snapshot())
	}
	m.buffer = encodeFloats(m.buffer, m.flat)
	req, err := m.transport.Send(m.dst, mergeTag, m.buffer)
	if err != nil {
		return wrapCommErr(err, m.label+": merged send failed")
	}
	m.req = req
	return nil
}

func (m *MergedSend) Rearm() { m.req = nil; m.firstCall = true }

func (m *MergedSend) Drain() error {
	if m.req == nil {
		return nil
	}
	err := m.req.Wait()
	m.req = nil
	return wrapCommErr(err, m.label+": merged send drain failed")
}

// MergedRecv is the receive-side counterpart of MergedSend: one message
// per peer per step, scattered back into the individual content views.
type MergedRecv struct {
	index     float64
	label     string
	src       int
	segments  []segment
	total     int
	transport Transport
	flat      []float64
	buffer    []byte
	req       Request
	firstCall bool
}

func (m *MergedRecv) Index() float64 { return m.index }
func (m *MergedRecv) Label() string  { return m.label }

func (m *MergedRecv) Step() error {
	if m.firstCall {
		m.firstCall = false
	} else if m.req != nil {
		if err := m.req.Wait(); err != nil {
			return wrapCommErr(err, m.label+": merged recv wait failed")
		}
		if m.flat == nil {
			m.flat = make([]float64, m.total)
		}
		decodeFloats(m.flat, m.buffer)
		for _, seg := range m.segments {
			n := seg.view.Len()
			if err := seg.view.LoadFrom(m.flat[seg.offset : seg.offset+n]); err != nil {
				return err
			}
		}
	}
	req, err := m.transport.Recv(m.src, mergeTag, m.buffer)
	if err != nil {
		return wrapCommErr(err, m.label+": merged recv failed")
	}
	m.req = req
	return nil
}

func (m *MergedRecv) Rearm() { m.req = nil; m.firstCall = true }

func (m *MergedRecv) Drain() error {
	if m.req == nil {
		return nil
	}
	err := m.req.Wait()
	m.req = nil
	return wrapCommErr(err, m.label+": merged recv drain failed")
}

// BuildMergedSends groups sends by destination peer into one MergedSend
// per peer, sized for that peer's total element count. The byte buffer is
// pre-sized so the hot path never allocates after the first step.
func BuildMergedSends(transport Transport, sends []*SendOp) map[int]*MergedSend {
	byPeer := map[int][]*SendOp{}
	for _, s := range sends {
		byPeer[s.dst] = append(byPeer[s.dst], s)
	}
	out := make(map[int]*MergedSend, len(byPeer))
	for peer, group := range byPeer {
		segs := make([]segment, len(group))
		total := 0
		for i, s := range group {
			segs[i] = segment{view: s.content, offset: total}
			total += s.content.Len()
		}
		out[peer] = &MergedSend{
			label: "merged-send", dst: peer, segments: segs, total: total,
			transport: transport, buffer: make([]byte, total*8), firstCall: true,
		}
	}
	return out
}

// BuildMergedRecvs groups receives by source peer into one MergedRecv per
// peer.
func BuildMergedRecvs(transport Transport, recvs []*RecvOp) map[int]*MergedRecv {
	byPeer := map[int][]*RecvOp{}
	for _, r := range recvs {
		byPeer[r.src] = append(byPeer[r.src], r)
	}
	out := make(map[int]*MergedRecv, len(byPeer))
	for peer, group := range byPeer {
		segs := make([]segment, len(group))
		total := 0
		for i, r := range group {
			segs[i] = segment{view: r.content, offset: total}
			total += r.content.Len()
		}
		out[peer] = &MergedRecv{
			label: "merged-recv", src: peer, segments: segs, total: total,
			transport: transport, buffer: make([]byte, total*8), firstCall: true,
		}
	}
	return out
}
