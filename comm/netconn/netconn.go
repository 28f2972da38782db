// Package netconn implements comm.Transport over plain TCP connections, for
// running each chunk as its own OS process across machines (spec.md §4.2,
// "one process per chunk", and §6's "wire protocol" framing).
//
// No example in the retrieval pack implements a message transport at this
// layer, so the wire format follows the same length-prefixed, big-endian
// framing net/rpc and most hand-rolled Go socket protocols use: a 4-byte tag,
// a 4-byte length, then the payload. Connection setup follows the standard
// lower-dials-higher convention to avoid duplicate links: rank r dials every
// rank > r, and accepts one incoming connection per rank < r.
package netconn

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/nengodist/nengodist/comm"
)

// barrierTag is a reserved tag for the rank-0-coordinated barrier protocol;
// it can never collide with a user tag (spec.md §6 tags are non-negative)
// or with comm.mergeTag (-1), since it uses a different reserved value.
const barrierTag = -2

// Transport is a comm.Transport backed by one persistent TCP connection per
// peer rank.
type Transport struct {
	rank   int
	nprocs int

	mu    sync.Mutex
	conns map[int]net.Conn
	wmu   map[int]*sync.Mutex // serializes writes per connection

	inboxMu sync.Mutex
	inbox   map[int]map[int]chan []byte // peer -> tag -> pending payload
	waiters map[int]map[int]chan []byte // peer -> tag -> waiting receiver
}

// Dial establishes a fully-connected mesh among len(addrs) ranks, where
// addrs[i] is the "host:port" rank i listens on, and returns the Transport
// bound to addrs[rank]. It blocks until every connection is established.
func Dial(rank int, addrs []string) (*Transport, error) {
	nprocs := len(addrs)
	t := &Transport{
		rank: rank, nprocs: nprocs,
		conns: make(map[int]net.Conn), wmu: make(map[int]*sync.Mutex),
		inbox: make(map[int]map[int]chan []byte), waiters: make(map[int]map[int]chan []byte),
	}

	var lnErr error
	var ln net.Listener
	if hasLowerPeers(rank) {
		ln, lnErr = net.Listen("tcp", addrs[rank])
		if lnErr != nil {
			return nil, errors.Wrapf(lnErr, "netconn: listen on %s", addrs[rank])
		}
		defer ln.Close()
	}

	var wg sync.WaitGroup
	var acceptErr error
	if ln != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rank; i++ {
				conn, err := ln.Accept()
				if err != nil {
					acceptErr = errors.Wrap(err, "netconn: accept")
					return
				}
				peer, err := readRank(conn)
				if err != nil {
					acceptErr = err
					return
				}
				t.register(peer, conn)
			}
		}()
	}

	for peer := rank + 1; peer < nprocs; peer++ {
		conn, err := net.Dial("tcp", addrs[peer])
		if err != nil {
			return nil, errors.Wrapf(err, "netconn: dial rank %d at %s", peer, addrs[peer])
		}
		if err := writeRank(conn, rank); err != nil {
			return nil, err
		}
		t.register(peer, conn)
	}

	wg.Wait()
	if acceptErr != nil {
		return nil, acceptErr
	}
	return t, nil
}

func hasLowerPeers(rank int) bool { return rank > 0 }

func writeRank(conn net.Conn, rank int) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(rank))
	_, err := conn.Write(hdr[:])
	return errors.Wrap(err, "netconn: handshake write")
}

func readRank(conn net.Conn) (int, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return 0, errors.Wrap(err, "netconn: handshake read")
	}
	return int(binary.BigEndian.Uint32(hdr[:])), nil
}

func (t *Transport) register(peer int, conn net.Conn) {
	t.mu.Lock()
	t.conns[peer] = conn
	t.wmu[peer] = &sync.Mutex{}
	t.mu.Unlock()

	go t.readLoop(peer, conn)
}

// readLoop demultiplexes frames from one peer's connection into per-tag
// channels, matching pending waiters or buffering ahead of them.
func (t *Transport) readLoop(peer int, conn net.Conn) {
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(conn, hdr[:]); err != nil {
			return
		}
		tag := int(int32(binary.BigEndian.Uint32(hdr[0:4])))
		size := binary.BigEndian.Uint32(hdr[4:8])
		payload := make([]byte, size)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}
		t.deliver(peer, tag, payload)
	}
}

func (t *Transport) deliver(peer, tag int, payload []byte) {
	t.inboxMu.Lock()
	if w, ok := t.waiters[peer][tag]; ok {
		delete(t.waiters[peer], tag)
		t.inboxMu.Unlock()
		w <- payload
		return
	}
	if t.inbox[peer] == nil {
		t.inbox[peer] = make(map[int]chan []byte)
	}
	ch := make(chan []byte, 1)
	ch <- payload
	t.inbox[peer][tag] = ch
	t.inboxMu.Unlock()
}

func (t *Transport) waitFor(peer, tag int) chan []byte {
	t.inboxMu.Lock()
	defer t.inboxMu.Unlock()
	if ch, ok := t.inbox[peer][tag]; ok {
		delete(t.inbox[peer], tag)
		return ch
	}
	ch := make(chan []byte, 1)
	if t.waiters[peer] == nil {
		t.waiters[peer] = make(map[int]chan []byte)
	}
	t.waiters[peer][tag] = ch
	return ch
}

func (t *Transport) Rank() int   { return t.rank }
func (t *Transport) NProcs() int { return t.nprocs }

func (t *Transport) Send(peer, tag int, buf []byte) (comm.Request, error) {
	t.mu.Lock()
	conn := t.conns[peer]
	wmu := t.wmu[peer]
	t.mu.Unlock()
	if conn == nil {
		return nil, errors.Errorf("netconn: no connection to rank %d", peer)
	}
	done := make(chan error, 1)
	go func() {
		wmu.Lock()
		defer wmu.Unlock()
		var hdr [8]byte
		binary.BigEndian.PutUint32(hdr[0:4], uint32(int32(tag)))
		binary.BigEndian.PutUint32(hdr[4:8], uint32(len(buf)))
		if _, err := conn.Write(hdr[:]); err != nil {
			done <- errors.Wrap(err, "netconn: write header")
			return
		}
		if _, err := conn.Write(buf); err != nil {
			done <- errors.Wrap(err, "netconn: write payload")
			return
		}
		done <- nil
	}()
	return &request{done: done}, nil
}

func (t *Transport) Recv(peer, tag int, buf []byte) (comm.Request, error) {
	ch := t.waitFor(peer, tag)
	done := make(chan error, 1)
	go func() {
		payload := <-ch
		copy(buf, payload)
		done <- nil
	}()
	return &request{done: done}, nil
}

// Barrier implements a rank-0-coordinated collective: every non-zero rank
// signals rank 0 and waits for release; rank 0 waits for every signal, then
// releases everyone.
func (t *Transport) Barrier() error {
	if t.rank == 0 {
		for p := 1; p < t.nprocs; p++ {
			req, err := t.Recv(p, barrierTag, make([]byte, 1))
			if err != nil {
				return err
			}
			if err := req.Wait(); err != nil {
				return err
			}
		}
		for p := 1; p < t.nprocs; p++ {
			req, err := t.Send(p, barrierTag, []byte{1})
			if err != nil {
				return err
			}
			if err := req.Wait(); err != nil {
				return err
			}
		}
		return nil
	}
	req, err := t.Send(0, barrierTag, []byte{1})
	if err != nil {
		return err
	}
	if err := req.Wait(); err != nil {
		return err
	}
	req, err = t.Recv(0, barrierTag, make([]byte, 1))
	if err != nil {
		return err
	}
	return req.Wait()
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var first error
	for _, c := range t.conns {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type request struct {
	done chan error
}

func (r *request) Wait() error { return <-r.done }
