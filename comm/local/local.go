// Package local implements comm.Transport over in-process Go channels, for
// running several chunks as goroutines within one binary — the mode used
// by package chunk's and simrun's tests, and by simrun.Simulator's
// single-binary runs.
//
// Grounded on hwsim.Circuit's worker dispatch (NewCircuit spawns one
// goroutine per partition, Step fans out over per-worker channels and
// waits on a sync.WaitGroup): here the "workers" are simulation ranks
// instead of component shards, and the fan-out primitive is a per-(src,
// dst, tag) channel instead of a shared WaitGroup.
package local

import (
	"sync"

	"github.com/nengodist/nengodist/comm"
)

type chanKey struct {
	from, to, tag int
}

// Network is the shared in-process bus backing every rank's Transport.
type Network struct {
	mu    sync.Mutex
	chans map[chanKey]chan []byte
	n     int

	barMu    sync.Mutex
	barCond  *sync.Cond
	barCount int
	barGen   int
}

// NewNetwork returns a bus for n ranks.
func NewNetwork(n int) *Network {
	nw := &Network{chans: make(map[chanKey]chan []byte), n: n}
	nw.barCond = sync.NewCond(&nw.barMu)
	return nw
}

func (nw *Network) chanFor(k chanKey) chan []byte {
	nw.mu.Lock()
	defer nw.mu.Unlock()
	ch, ok := nw.chans[k]
	if !ok {
		ch = make(chan []byte, 1)
		nw.chans[k] = ch
	}
	return ch
}

// Rank returns a Transport bound to rank r of this network.
func (nw *Network) Rank(r int) comm.Transport {
	return &transport{nw: nw, rank: r}
}

type transport struct {
	nw   *Network
	rank int
}

func (t *transport) Rank() int   { return t.rank }
func (t *transport) NProcs() int { return t.nw.n }

func (t *transport) Send(peer, tag int, buf []byte) (comm.Request, error) {
	ch := t.nw.chanFor(chanKey{t.rank, peer, tag})
	cp := append([]byte(nil), buf...)
	done := make(chan error, 1)
	go func() {
		ch <- cp
		done <- nil
	}()
	return &request{done: done}, nil
}

func (t *transport) Recv(peer, tag int, buf []byte) (comm.Request, error) {
	ch := t.nw.chanFor(chanKey{peer, t.rank, tag})
	done := make(chan error, 1)
	go func() {
		data := <-ch
		copy(buf, data)
		done <- nil
	}()
	return &request{done: done}, nil
}

// Barrier implements a reusable cyclic barrier over all n ranks.
func (t *transport) Barrier() error {
	nw := t.nw
	nw.barMu.Lock()
	defer nw.barMu.Unlock()
	gen := nw.barGen
	nw.barCount++
	if nw.barCount == nw.n {
		nw.barCount = 0
		nw.barGen++
		nw.barCond.Broadcast()
	} else {
		for gen == nw.barGen {
			nw.barCond.Wait()
		}
	}
	return nil
}

func (t *transport) Close() error { return nil }

type request struct {
	done chan error
}

func (r *request) Wait() error { return <-r.done }
