/*
NAME
  validate.go

DESCRIPTION
  validate.go provides the operation validator, which checks a single decode
  or encode operation against the stream's slot table and the session
  limits, and applies a valid operation's effect on the slot table.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package tracker

import (
	"math/bits"

	"github.com/ausocean/vidval/codec/codecutil"
	"github.com/ausocean/vidval/diag"
	"github.com/ausocean/vidval/dpb"
	"github.com/ausocean/vidval/resource"
	"github.com/ausocean/vidval/tracker/config"
)

// validate checks op without stopping at the first violation; every
// independently detectable violation is reported.
func (st *Stream) validate(dir codecutil.Direction, op Operation) diag.List {
	cfg := &st.session.cfg
	var diags diag.List

	if dir != cfg.Operation.Direction {
		diags.Add(diag.OperationKindMismatch, diag.NoSlot, resource.ID{}, "%s recorded against %s session", dir, cfg.Operation)
	}

	switch {
	case cfg.MaxDPBSlots == 0:
		if op.Setup != nil || len(op.References) != 0 {
			diags.Add(diag.DPBUnavailable, diag.NoSlot, resource.ID{}, "session has no DPB slots")
		}
	case op.Setup == nil:
		diags.Add(diag.SetupSlotMissing, diag.NoSlot, resource.ID{}, "session with %d DPB slots requires a setup slot", cfg.MaxDPBSlots)
	default:
		if _, err := st.slots.Get(op.Setup.Slot); err != nil {
			diags = append(diags, err.(diag.Diagnostic))
		}
		diags = append(diags, st.checkPicture(op.Setup.Slot, op.Setup.Resource, true)...)
	}

	diags = append(diags, st.checkPicture(diag.NoSlot, op.Picture, false)...)
	if !op.Bitstream.IsBuffer() || op.Bitstream.ByteSize == 0 {
		diags.Add(diag.InvalidResource, diag.NoSlot, op.Bitstream, "bitstream must be a non-empty buffer range")
	}

	if dir == codecutil.Decode && cfg.IsDecode() && op.Setup != nil && op.Picture.IsImage() {
		coincide := op.Picture == op.Setup.Resource
		switch {
		case coincide && !cfg.Coincide:
			diags.Add(diag.OutputModeUnsupported, op.Setup.Slot, op.Picture, "output coincides with reconstructed picture but coincide mode is unsupported")
		case !coincide && !cfg.Distinct:
			diags.Add(diag.OutputModeUnsupported, op.Setup.Slot, op.Picture, "output is distinct from reconstructed picture but distinct mode is unsupported")
		}
	}

	diags = append(diags, st.checkReferences(op.References)...)

	if q := op.QuantizationMap; q != nil {
		if !cfg.QuantizationMaps {
			diags.Add(diag.UnsupportedFeature, diag.NoSlot, q.Resource, "session does not support quantization maps")
		}
		if !q.Resource.IsImage() {
			diags.Add(diag.InvalidResource, diag.NoSlot, q.Resource, "quantization map must be a non-null image")
		}
	}
	if op.Query != nil && !cfg.InlineQueries {
		diags.Add(diag.UnsupportedFeature, diag.NoSlot, resource.ID{}, "session does not support inline queries")
	}
	return diags
}

// checkPicture checks that r is an image whose coded region fits the
// session. DPB pictures must also lie within the DPB's array layers.
func (st *Stream) checkPicture(slot int32, r resource.ID, dpbPicture bool) diag.List {
	cfg := &st.session.cfg
	var diags diag.List
	if !r.IsImage() {
		diags.Add(diag.InvalidResource, slot, r, "picture must be a non-null image")
		return diags
	}
	if r.Extent.IsZero() || !cfg.MaxCodedExtent.Contains(r.Offset, r.Extent) {
		diags.Add(diag.CodedRegionOutOfBounds, slot, r, "coded region exceeds %dx%d", cfg.MaxCodedExtent.Width, cfg.MaxCodedExtent.Height)
	}
	switch {
	case r.LayerCount == 0:
		diags.Add(diag.LayerOutOfRange, slot, r, "picture has no array layers")
	case dpbPicture && uint64(r.BaseLayer)+uint64(r.LayerCount) > uint64(cfg.DPBLayers):
		diags.Add(diag.LayerOutOfRange, slot, r, "layers exceed the DPB's %d", cfg.DPBLayers)
	}
	return diags
}

// checkReferences checks the reference list of an operation against the
// slot table. TooManyReferences, DuplicateSlot and DuplicateReference are
// each reported once per cause, however many entries share it.
func (st *Stream) checkReferences(refs []ReferenceSlot) diag.List {
	cfg := &st.session.cfg
	var diags diag.List

	if uint32(len(refs)) > cfg.MaxActiveReferences {
		diags.Add(diag.TooManyReferences, diag.NoSlot, resource.ID{}, "%d references exceed the session limit of %d", len(refs), cfg.MaxActiveReferences)
	}

	slotUses := make(map[int32]int)
	resourceSlot := make(map[resource.ID]int32)
	sharedReported := make(map[resource.ID]bool)
	for _, ref := range refs {
		slotUses[ref.Slot]++
		switch slotUses[ref.Slot] {
		case 1:
		case 2:
			diags.Add(diag.DuplicateSlot, ref.Slot, ref.Resource, "slot referenced more than once")
			continue
		default:
			continue
		}

		if !ref.Resource.IsNull() {
			first, seen := resourceSlot[ref.Resource]
			switch {
			case !seen:
				resourceSlot[ref.Resource] = ref.Slot
			case !sharedReported[ref.Resource]:
				sharedReported[ref.Resource] = true
				diags.Add(diag.DuplicateReference, ref.Slot, ref.Resource, "resource also referenced through slot %d", first)
			}
		}

		slot, err := st.slots.Get(ref.Slot)
		if err != nil {
			diags = append(diags, err.(diag.Diagnostic))
			continue
		}
		diags = append(diags, st.checkPicture(ref.Slot, ref.Resource, true)...)
		switch {
		case slot.State == dpb.Inactive:
			diags.Add(diag.SlotInactiveReferenced, ref.Slot, ref.Resource, "slot is inactive")
		case slot.Resource != ref.Resource:
			diags.Add(diag.ResourceMismatch, ref.Slot, ref.Resource, "slot holds %v", slot.Resource)
		}
	}
	return diags
}

// apply makes a validated operation's effect on the slot table visible to
// later operations. Only a setup that requests a reference activates its
// slot; a setup that does not deactivates it.
func (st *Stream) apply(op Operation) {
	s := op.Setup
	if s == nil || st.session.cfg.MaxDPBSlots == 0 {
		return
	}
	if s.Reference {
		st.slots.Bind(s.Slot, s.Resource)
		return
	}
	st.slots.Invalidate(s.Slot)
}

// validateControl checks the optional parameters of a control command.
func (st *Stream) validateControl(c Control) diag.List {
	cfg := &st.session.cfg
	var diags diag.List

	if rc := c.RateControl; rc != nil {
		switch {
		case !cfg.IsEncode():
			diags.Add(diag.UnsupportedFeature, diag.NoSlot, resource.ID{}, "rate control on %s session", cfg.Operation)
		case bits.OnesCount8(uint8(rc.Mode)) != 1 || !cfg.RateControlModes.Has(rc.Mode):
			diags.Add(diag.UnsupportedFeature, diag.NoSlot, resource.ID{}, "rate control mode %q not one of %q", rc.Mode, cfg.RateControlModes)
		case (rc.Mode == config.RateControlCBR || rc.Mode == config.RateControlVBR) && rc.Bitrate == 0:
			diags.Add(diag.UnsupportedFeature, diag.NoSlot, resource.ID{}, "%s rate control needs a bitrate", rc.Mode)
		}
	}

	if q := c.QualityLevel; q != nil {
		switch {
		case !cfg.IsEncode():
			diags.Add(diag.UnsupportedFeature, diag.NoSlot, resource.ID{}, "quality level on %s session", cfg.Operation)
		case *q >= cfg.MaxQualityLevels:
			diags.Add(diag.UnsupportedFeature, diag.NoSlot, resource.ID{}, "quality level %d not below %d", *q, cfg.MaxQualityLevels)
		}
	}
	return diags
}
