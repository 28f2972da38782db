package main

import (
	"encoding/gob"
	"io"

	"github.com/nengodist/nengodist"
	"github.com/nengodist/nengodist/chunk"
)

// The control protocol drives a worker once its chunk has been finalized
// (spec.md §4.6 run_n_steps/probe_data/reset/close, dispatched one message
// at a time rather than batched like the build-phase simrun.Record stream —
// a worker only ever has one steady-state command in flight). It is a
// second, independently-typed gob stream layered on the same stdin/stdout
// pair the build records arrive on: encoding/gob reads and writes exactly
// one length-prefixed message at a time with no read-ahead, so starting a
// fresh gob.Decoder/Encoder pair here is safe once the build-phase decoder
// has consumed its FlagStop record.
type controlKind string

const (
	controlRunSteps   controlKind = "run_n_steps"
	controlProbeData  controlKind = "probe_data"
	controlProbeCount controlKind = "probe_count"
	controlReset      controlKind = "reset"
	controlClose      controlKind = "close"
)

type controlMsg struct {
	Kind controlKind
	N    int
	Key  nengodist.Key
	Seed int64 // controlReset only (spec.md §6 reset(seed))
}

type controlReply struct {
	Err   string
	Rows  [][]float64
	Count int
	Found bool
}

// runControlLoop serves controlMsg requests against c until it receives
// controlClose or the request stream closes.
func runControlLoop(c *chunk.Chunk, r io.Reader, w io.Writer) error {
	dec := gob.NewDecoder(r)
	enc := gob.NewEncoder(w)

	for {
		var msg controlMsg
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		reply := dispatchControl(c, msg)
		if err := enc.Encode(reply); err != nil {
			return err
		}
		if msg.Kind == controlClose {
			return nil
		}
	}
}

func dispatchControl(c *chunk.Chunk, msg controlMsg) controlReply {
	switch msg.Kind {
	case controlRunSteps:
		if err := c.Run(msg.N); err != nil {
			return controlReply{Err: err.Error()}
		}
		return controlReply{}

	case controlProbeData:
		rows, err := c.ProbeData(msg.Key)
		if err != nil {
			return controlReply{Err: err.Error()}
		}
		return controlReply{Rows: rows, Found: true}

	case controlProbeCount:
		n, ok := c.ProbeSampleCount(msg.Key)
		return controlReply{Count: n, Found: ok}

	case controlReset:
		if err := c.Reset(msg.Seed); err != nil {
			return controlReply{Err: err.Error()}
		}
		return controlReply{}

	case controlClose:
		if err := c.Close(); err != nil {
			return controlReply{Err: err.Error()}
		}
		return controlReply{}

	default:
		return controlReply{Err: "nengodworker: unrecognized control kind " + string(msg.Kind)}
	}
}
