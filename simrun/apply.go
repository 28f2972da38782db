package simrun

import (
	"github.com/nengodist/nengodist"
	"github.com/nengodist/nengodist/chunk"
	"github.com/nengodist/nengodist/comm"
	"github.com/nengodist/nengodist/op"
	"github.com/nengodist/nengodist/signal"
)

// ApplyRecord applies one decoded build-phase record to c, resolving any
// signal-key operands to full-extent views via c.Store(). transport is
// used for MPISend/MPIRecv records; it may be nil if the chunk has no
// peers. ApplyRecord reports stop=true once it applies a FlagStop record,
// signaling the worker's build loop to call c.FinalizeBuild.
func ApplyRecord(c *chunk.Chunk, transport comm.Transport, rec Record) (stop bool, err error) {
	switch rec.Flag {
	case FlagAddSignal:
		s := rec.Signal
		return false, c.AddBaseSignal(s.Key, s.Label, s.Shape1, s.Shape2, s.Data)

	case FlagAddProbe:
		p := rec.Probe
		target, err := c.Store().ViewFromKey(p.SignalKey)
		if err != nil {
			return false, err
		}
		return false, c.AddProbe(p.Key, p.Label, target, p.Period)

	case FlagAddOp:
		built, err := buildOp(c, transport, rec.Op)
		if err != nil {
			return false, err
		}
		return false, c.AddOperator(built)

	case FlagStop:
		return true, nil

	default:
		return false, nengodist.NewBuildError("simrun: unrecognized wire flag %d", rec.Flag)
	}
}

func buildOp(c *chunk.Chunk, transport comm.Transport, rec *OpRecord) (op.Operator, error) {
	store := c.Store()
	v := func(key nengodist.Key) (signal.View, error) {
		return store.ViewFromKey(key)
	}

	switch rec.Kind {
	case OpReset:
		dst, err := v(rec.Dst)
		if err != nil {
			return nil, err
		}
		return op.Reset(rec.Index, rec.Label, dst, rec.Value), nil

	case OpCopy:
		dst, err := v(rec.Dst)
		if err != nil {
			return nil, err
		}
		src, err := v(rec.Src)
		if err != nil {
			return nil, err
		}
		return op.Copy(rec.Index, rec.Label, dst, src)

	case OpDotInc:
		a, err := v(rec.A)
		if err != nil {
			return nil, err
		}
		x, err := v(rec.X)
		if err != nil {
			return nil, err
		}
		y, err := v(rec.Y)
		if err != nil {
			return nil, err
		}
		return op.DotInc(rec.Index, rec.Label, a, x, y)

	case OpScalarDotInc:
		a, err := v(rec.A)
		if err != nil {
			return nil, err
		}
		x, err := v(rec.X)
		if err != nil {
			return nil, err
		}
		y, err := v(rec.Y)
		if err != nil {
			return nil, err
		}
		return op.ScalarDotInc(rec.Index, rec.Label, a, x, y)

	case OpProdUpdate:
		a, err := v(rec.A)
		if err != nil {
			return nil, err
		}
		x, err := v(rec.X)
		if err != nil {
			return nil, err
		}
		b, err := v(rec.B)
		if err != nil {
			return nil, err
		}
		y, err := v(rec.Y)
		if err != nil {
			return nil, err
		}
		return op.ProdUpdate(rec.Index, rec.Label, a, x, b, y)

	case OpScalarProdUpdate:
		a, err := v(rec.A)
		if err != nil {
			return nil, err
		}
		x, err := v(rec.X)
		if err != nil {
			return nil, err
		}
		b, err := v(rec.B)
		if err != nil {
			return nil, err
		}
		y, err := v(rec.Y)
		if err != nil {
			return nil, err
		}
		return op.ScalarProdUpdate(rec.Index, rec.Label, a, x, b, y)

	case OpFilter:
		in, err := v(rec.Input)
		if err != nil {
			return nil, err
		}
		out, err := v(rec.Output)
		if err != nil {
			return nil, err
		}
		return op.Filter(rec.Index, rec.Label, in, out, rec.Numer, rec.Denom)

	case OpSimLIF:
		j, err := v(rec.J)
		if err != nil {
			return nil, err
		}
		out, err := v(rec.Out)
		if err != nil {
			return nil, err
		}
		return op.SimLIF(rec.Index, rec.Label, rec.N, rec.TauRC, rec.TauRef, rec.Dt, j, out)

	case OpSimLIFRate:
		j, err := v(rec.J)
		if err != nil {
			return nil, err
		}
		out, err := v(rec.Out)
		if err != nil {
			return nil, err
		}
		return op.SimLIFRate(rec.Index, rec.Label, rec.TauRC, rec.TauRef, rec.Dt, j, out)

	case OpMPISend:
		if transport == nil {
			return nil, nengodist.NewBuildError("simrun: MPISend op %q with no transport bound", rec.Label)
		}
		src, err := v(rec.Src)
		if err != nil {
			return nil, err
		}
		return comm.NewSend(rec.Index, rec.Label, rec.Peer, rec.Tag, src, transport), nil

	case OpMPIRecv:
		if transport == nil {
			return nil, nengodist.NewBuildError("simrun: MPIRecv op %q with no transport bound", rec.Label)
		}
		dst, err := v(rec.Dst)
		if err != nil {
			return nil, err
		}
		return comm.NewRecv(rec.Index, rec.Label, rec.Peer, rec.Tag, dst, transport), nil

	default:
		return nil, nengodist.NewBuildError("simrun: unrecognized op kind %q", rec.Kind)
	}
}
