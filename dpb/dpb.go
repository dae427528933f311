/*
NAME
  dpb.go

DESCRIPTION
  dpb.go provides the decoded picture buffer slot table: the record of which
  picture resource, if any, each DPB slot currently holds.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package dpb provides the DPB slot table of a coding session.
package dpb

import (
	"fmt"

	"github.com/ausocean/vidval/diag"
	"github.com/ausocean/vidval/resource"
)

// State is the activation state of a slot.
type State uint8

// Slot states.
const (
	Inactive State = iota
	Active
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// NoAssociation is the slot index of a picture that is not associated with
// any DPB slot.
const NoAssociation int32 = -1

// Slot is the state of one DPB slot. A slot is Active iff Resource is
// non-null.
type Slot struct {
	Index    uint32
	State    State
	Resource resource.ID
}

// Association is one begin-time slot association. A null Resource requests
// that the slot be invalidated; a non-null Resource asserts that the slot
// already holds it.
type Association struct {
	Slot     int32
	Resource resource.ID
}

// Table is the slot table. It is not safe for concurrent use.
type Table struct {
	slots []Slot
}

// New returns a table of n inactive slots.
func New(n uint32) *Table {
	t := &Table{slots: make([]Slot, n)}
	for i := range t.slots {
		t.slots[i].Index = uint32(i)
	}
	return t
}

// Len returns the number of slots.
func (t *Table) Len() int { return len(t.slots) }

func (t *Table) inRange(i int32) bool { return i >= 0 && int(i) < len(t.slots) }

func (t *Table) outOfRange(i int32) diag.Diagnostic {
	return diag.New(diag.SlotIndexOutOfRange, i, resource.ID{}, "slot index outside [0,%d)", len(t.slots))
}

// Bind activates slot i with resource r. Binding the null resource
// invalidates the slot.
func (t *Table) Bind(i int32, r resource.ID) error {
	if !t.inRange(i) {
		return t.outOfRange(i)
	}
	s := &t.slots[i]
	s.Resource = r
	s.State = Active
	if r.IsNull() {
		s.State = Inactive
	}
	return nil
}

// Invalidate deactivates slot i.
func (t *Table) Invalidate(i int32) error {
	if !t.inRange(i) {
		return t.outOfRange(i)
	}
	t.slots[i] = Slot{Index: uint32(i)}
	return nil
}

// Get returns the state of slot i.
func (t *Table) Get(i int32) (Slot, error) {
	if !t.inRange(i) {
		return Slot{}, t.outOfRange(i)
	}
	return t.slots[i], nil
}

// Reset deactivates every slot.
func (t *Table) Reset() {
	for i := range t.slots {
		t.slots[i] = Slot{Index: uint32(i)}
	}
}

// Active returns the number of active slots.
func (t *Table) Active() int {
	var n int
	for _, s := range t.slots {
		if s.State == Active {
			n++
		}
	}
	return n
}

// Slots returns a copy of every slot.
func (t *Table) Slots() []Slot {
	return append([]Slot(nil), t.slots...)
}

// ApplyBeginAssociations applies the slot associations given when a coding
// scope begins. Associations may invalidate slots or restate what a slot
// already holds; they can never activate a slot. Every entry is checked and
// all invalidations are applied even when other entries are in error.
func (t *Table) ApplyBeginAssociations(list []Association) diag.List {
	var diags diag.List
	seenSlot := make(map[int32]bool)
	seenResource := make(map[resource.ID]int32)

	for _, a := range list {
		if a.Slot == NoAssociation {
			continue
		}
		if !t.inRange(a.Slot) {
			diags = append(diags, t.outOfRange(a.Slot))
			continue
		}

		if seenSlot[a.Slot] {
			diags.Add(diag.DuplicateSlot, a.Slot, a.Resource, "slot associated more than once")
			continue
		}
		seenSlot[a.Slot] = true

		if a.Resource.IsNull() {
			t.Invalidate(a.Slot)
			continue
		}

		if other, ok := seenResource[a.Resource]; ok {
			diags.Add(diag.DuplicateReference, a.Slot, a.Resource, "resource already associated with slot %d", other)
		} else {
			seenResource[a.Resource] = a.Slot
		}

		s := t.slots[a.Slot]
		switch {
		case s.State == Inactive:
			diags.Add(diag.SlotInactiveReferenced, a.Slot, a.Resource, "begin cannot activate a slot")
		case s.Resource != a.Resource:
			diags.Add(diag.ResourceMismatch, a.Slot, a.Resource, "slot holds %v", s.Resource)
		}
	}
	return diags
}
