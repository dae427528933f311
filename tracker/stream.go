/*
NAME
  stream.go

DESCRIPTION
  stream.go provides the command stream: the coding scope state machine
  through which Begin, Control, Decode, Encode, Barrier and End calls are
  recorded and validated in program order.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package tracker

import (
	"github.com/ausocean/utils/logging"

	"github.com/ausocean/vidval/codec/codecutil"
	"github.com/ausocean/vidval/diag"
	"github.com/ausocean/vidval/dpb"
	"github.com/ausocean/vidval/hazard"
	"github.com/ausocean/vidval/resource"
)

// Stream is one logical command stream. Calls on a Stream are validated
// synchronously and in order; a Stream is not safe for concurrent use, but
// different Streams may be used from different goroutines.
type Stream struct {
	id      uint32
	session *Session
	slots   *dpb.Table
	log     logging.Logger

	open bool
	ops  int // Operations recorded in the open scope.
}

// ID returns the stream's identifier, unique within its Context.
func (st *Stream) ID() uint32 { return st.id }

// Session returns the session the stream records against.
func (st *Stream) Session() *Session { return st.session }

// IsOpen reports whether a coding scope is open.
func (st *Stream) IsOpen() bool { return st.open }

// Slot returns the state of DPB slot i.
func (st *Stream) Slot(i int32) (dpb.Slot, error) { return st.slots.Get(i) }

// Slots returns the state of every DPB slot.
func (st *Stream) Slots() []dpb.Slot { return st.slots.Slots() }

// usable returns a diagnostic if the stream's session has been destroyed.
func (st *Stream) usable(call string) diag.List {
	if !st.session.Destroyed() {
		return nil
	}
	var d diag.List
	d.Add(diag.SessionDestroyed, diag.NoSlot, resource.ID{}, "%s on stream of destroyed session", call)
	return d
}

func (st *Stream) report(call string, diags diag.List) error {
	if len(diags) == 0 {
		st.log.Debug(call+" recorded", "stream", st.id)
		return nil
	}
	for _, d := range diags {
		st.log.Warning(call+" diagnostic", "stream", st.id, "kind", d.Kind.String(), "slot", d.Slot, "detail", d.Error())
	}
	return diags
}

// Begin opens a coding scope and applies the begin-time slot associations.
// The scope opens even if some associations are in error, so that the rest
// of the scope is still validated.
func (st *Stream) Begin(assocs []dpb.Association) error {
	if d := st.usable("begin"); d != nil {
		return st.report("begin", d)
	}
	if st.open {
		var d diag.List
		d.Add(diag.ScopeAlreadyOpen, diag.NoSlot, resource.ID{}, "begin inside an open coding scope")
		return st.report("begin", d)
	}
	st.open = true
	st.ops = 0
	return st.report("begin", st.slots.ApplyBeginAssociations(assocs))
}

// End closes the coding scope.
func (st *Stream) End() error {
	if d := st.usable("end"); d != nil {
		return st.report("end", d)
	}
	if !st.open {
		var d diag.List
		d.Add(diag.ScopeNotOpen, diag.NoSlot, resource.ID{}, "end without begin")
		return st.report("end", d)
	}
	st.open = false
	st.log.Debug("scope closed", "stream", st.id, "operations", st.ops, "activeSlots", st.slots.Active())
	return nil
}

// Control records a coding control command. A reset deactivates every slot
// immediately. A control with any diagnostic has no effect.
func (st *Stream) Control(c Control) error {
	if d := st.usable("control"); d != nil {
		return st.report("control", d)
	}
	if !st.open {
		var d diag.List
		d.Add(diag.ScopeNotOpen, diag.NoSlot, resource.ID{}, "control outside a coding scope")
		return st.report("control", d)
	}
	diags := st.validateControl(c)
	if len(diags) == 0 && c.Reset {
		st.slots.Reset()
	}
	return st.report("control", diags)
}

// Decode records a decode operation.
func (st *Stream) Decode(op Operation) error { return st.record(codecutil.Decode, op) }

// Encode records an encode operation.
func (st *Stream) Encode(op Operation) error { return st.record(codecutil.Encode, op) }

func (st *Stream) record(dir codecutil.Direction, op Operation) error {
	call := dir.String()
	if d := st.usable(call); d != nil {
		return st.report(call, d)
	}
	if !st.open {
		var d diag.List
		d.Add(diag.ScopeNotOpen, diag.NoSlot, resource.ID{}, "%s outside a coding scope", call)
		return st.report(call, d)
	}

	diags := st.validate(dir, op)
	if len(diags) != 0 {
		return st.report(call, diags)
	}
	st.apply(op)
	st.ops++

	ref := hazard.OpRef{Session: st.session.id, Stream: st.id, Seq: st.session.ctx.seq.Add(1)}
	stage := hazard.StageDecode
	if dir == codecutil.Encode {
		stage = hazard.StageEncode
	}
	return st.report(call, st.session.ctx.hazards.Access(ref, stage, uses(dir, op)))
}

// Barrier declares a synchronization of accesses to b.Region. Barriers may
// be recorded inside or outside a coding scope.
func (st *Stream) Barrier(b hazard.Barrier) {
	if st.session.Destroyed() {
		st.log.Warning("barrier on stream of destroyed session ignored", "stream", st.id)
		return
	}
	st.session.ctx.hazards.Barrier(b)
	st.log.Debug("barrier recorded", "stream", st.id, "region", b.Region.String())
}

// uses returns the regions op accesses, reference reads first.
func uses(dir codecutil.Direction, op Operation) []hazard.Use {
	var u []hazard.Use
	for _, r := range op.References {
		u = append(u, hazard.Use{Region: r.Resource, Access: hazard.AccessRead, Slot: r.Slot, DPB: true})
	}
	if op.Setup != nil {
		u = append(u, hazard.Use{Region: op.Setup.Resource, Access: hazard.AccessWrite, Slot: op.Setup.Slot, DPB: true})
	}

	picture, bitstream := hazard.AccessWrite, hazard.AccessRead
	if dir == codecutil.Encode {
		picture, bitstream = hazard.AccessRead, hazard.AccessWrite
	}
	u = append(u,
		hazard.Use{Region: op.Picture, Access: picture, Slot: diag.NoSlot},
		hazard.Use{Region: op.Bitstream, Access: bitstream, Slot: diag.NoSlot},
	)
	if op.QuantizationMap != nil {
		u = append(u, hazard.Use{Region: op.QuantizationMap.Resource, Access: hazard.AccessRead, Slot: diag.NoSlot})
	}
	return u
}
