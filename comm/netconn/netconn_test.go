package netconn_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nengodist/nengodist/comm/netconn"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func dialAll(t *testing.T, addrs []string) []*netconn.Transport {
	t.Helper()
	out := make([]*netconn.Transport, len(addrs))
	errs := make([]error, len(addrs))
	done := make(chan int, len(addrs))
	for i := range addrs {
		go func(rank int) {
			tr, err := netconn.Dial(rank, addrs)
			out[rank] = tr
			errs[rank] = err
			done <- rank
		}(i)
	}
	for range addrs {
		<-done
	}
	for _, err := range errs {
		require.NoError(t, err)
	}
	return out
}

func TestDialFormsFullMesh(t *testing.T) {
	addrs := []string{freeAddr(t), freeAddr(t), freeAddr(t)}
	transports := dialAll(t, addrs)
	defer func() {
		for _, tr := range transports {
			tr.Close()
		}
	}()
	for i, tr := range transports {
		require.Equal(t, i, tr.Rank())
		require.Equal(t, 3, tr.NProcs())
	}
}

func TestSendRecvRoundTrip(t *testing.T) {
	addrs := []string{freeAddr(t), freeAddr(t)}
	transports := dialAll(t, addrs)
	defer func() {
		for _, tr := range transports {
			tr.Close()
		}
	}()

	payload := []byte{1, 2, 3, 4}
	recvBuf := make([]byte, 4)
	recvReq, err := transports[1].Recv(0, 9, recvBuf)
	require.NoError(t, err)

	sendReq, err := transports[0].Send(1, 9, payload)
	require.NoError(t, err)
	require.NoError(t, sendReq.Wait())
	require.NoError(t, recvReq.Wait())
	require.Equal(t, payload, recvBuf)
}

func TestBarrierReleasesAllRanks(t *testing.T) {
	addrs := []string{freeAddr(t), freeAddr(t), freeAddr(t)}
	transports := dialAll(t, addrs)
	defer func() {
		for _, tr := range transports {
			tr.Close()
		}
	}()

	done := make(chan error, len(transports))
	for _, tr := range transports {
		go func(tr *netconn.Transport) { done <- tr.Barrier() }(tr)
	}
	for range transports {
		require.NoError(t, <-done)
	}
}
