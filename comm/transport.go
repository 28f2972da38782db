// Package comm implements the inter-chunk communication operators of
// spec.md §4.4: MPISend, MPIRecv, MPIWait and MPIBarrier, plus the
// merged-mode optimizer of §3 (MergedCommPlan) and §4.4 ("Merged mode").
//
// The operators are transport-agnostic: they ride on the Transport
// interface below, grounded on the same send/recv/barrier shape as
// hwsim.Circuit's worker dispatch (a fixed set of peers, a fan-out post
// followed by a fan-in wait) generalized from intra-process goroutines to
// inter-process messages. comm/local implements Transport over in-process
// channels (single binary, multiple chunks, used by tests and
// single-machine runs); comm/netconn implements it over TCP.
package comm

import "github.com/nengodist/nengodist"

// Request represents a previously posted non-blocking send or receive.
// Wait blocks until the operation completes.
type Request interface {
	Wait() error
}

// Transport is what a communicator binds communication operators to
// (spec.md §4.3 step 3, "Bind every communication operator to the given
// communicator"). Tags are user-assigned and must be unique per directed
// peer pair (spec.md §6).
type Transport interface {
	// Rank is this process's rank within the communicator.
	Rank() int
	// NProcs is the total number of participants.
	NProcs() int
	// Send posts a non-blocking send of buf to peer under tag. buf must
	// not be modified until the returned Request is waited on.
	Send(peer int, tag int, buf []byte) (Request, error)
	// Recv posts a non-blocking receive from peer under tag, filling buf
	// once the returned Request completes.
	Recv(peer int, tag int, buf []byte) (Request, error)
	// Barrier blocks until every participant has called Barrier.
	Barrier() error
	// Close releases transport resources.
	Close() error
}

func wrapCommErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	return nengodist.WrapRuntimeError(err, msg)
}
