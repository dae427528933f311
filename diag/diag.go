/*
NAME
  diag.go

DESCRIPTION
  diag.go provides the diagnostics reported for invalid or unsynchronized
  coding commands.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package diag provides structured diagnostics. A single call may produce
// several diagnostics; they are returned together as a List, which
// implements error.
package diag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ausocean/vidval/resource"
)

// Kind identifies the rule a diagnostic reports a violation of.
type Kind uint8

// Diagnostic kinds.
const (
	invalidKind Kind = iota

	// Configuration violations.
	TooManyReferences
	OutputModeUnsupported
	DPBUnavailable
	SetupSlotMissing
	OperationKindMismatch
	UnsupportedFeature

	// Binding violations.
	SlotIndexOutOfRange
	SlotInactiveReferenced
	ResourceMismatch
	DuplicateSlot
	DuplicateReference
	InvalidResource
	CodedRegionOutOfBounds
	LayerOutOfRange

	// Coding scope state violations.
	ScopeNotOpen
	ScopeAlreadyOpen
	SessionDestroyed

	// Hazards.
	WriteAfterWrite
	WriteAfterRead
	ReadAfterWrite

	numKinds
)

var kindNames = [numKinds]string{
	invalidKind:            "Invalid",
	TooManyReferences:      "TooManyReferences",
	OutputModeUnsupported:  "OutputModeUnsupported",
	DPBUnavailable:         "DPBUnavailable",
	SetupSlotMissing:       "SetupSlotMissing",
	OperationKindMismatch:  "OperationKindMismatch",
	UnsupportedFeature:     "UnsupportedFeature",
	SlotIndexOutOfRange:    "SlotIndexOutOfRange",
	SlotInactiveReferenced: "SlotInactiveReferenced",
	ResourceMismatch:       "ResourceMismatch",
	DuplicateSlot:          "DuplicateSlot",
	DuplicateReference:     "DuplicateReference",
	InvalidResource:        "InvalidResource",
	CodedRegionOutOfBounds: "CodedRegionOutOfBounds",
	LayerOutOfRange:        "LayerOutOfRange",
	ScopeNotOpen:           "ScopeNotOpen",
	ScopeAlreadyOpen:       "ScopeAlreadyOpen",
	SessionDestroyed:       "SessionDestroyed",
	WriteAfterWrite:        "WriteAfterWrite",
	WriteAfterRead:         "WriteAfterRead",
	ReadAfterWrite:         "ReadAfterWrite",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind returns the Kind with the given name.
func ParseKind(s string) (Kind, error) {
	for k := TooManyReferences; k < numKinds; k++ {
		if strings.EqualFold(kindNames[k], s) {
			return k, nil
		}
	}
	return invalidKind, fmt.Errorf("unknown diagnostic kind: %q", s)
}

// Class groups kinds by the component that detects them.
type Class uint8

// Diagnostic classes.
const (
	ClassConfiguration Class = iota
	ClassBinding
	ClassState
	ClassHazard
)

func (c Class) String() string {
	switch c {
	case ClassConfiguration:
		return "configuration"
	case ClassBinding:
		return "binding"
	case ClassState:
		return "state"
	case ClassHazard:
		return "hazard"
	default:
		return fmt.Sprintf("Class(%d)", uint8(c))
	}
}

// Class returns the class of k.
func (k Kind) Class() Class {
	switch {
	case k >= WriteAfterWrite:
		return ClassHazard
	case k >= ScopeNotOpen:
		return ClassState
	case k >= SlotIndexOutOfRange:
		return ClassBinding
	default:
		return ClassConfiguration
	}
}

// NoSlot is the Slot of a diagnostic that does not concern a DPB slot.
const NoSlot int32 = -1

// Diagnostic describes one violation.
type Diagnostic struct {
	Kind     Kind
	Slot     int32       // Offending DPB slot, or NoSlot.
	Resource resource.ID // Offending resource, or the null ID.
	Message  string
}

// New returns a Diagnostic with a formatted message.
func New(k Kind, slot int32, r resource.ID, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Kind: k, Slot: slot, Resource: r, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (d Diagnostic) Error() string {
	var b strings.Builder
	b.WriteString(d.Kind.String())
	if d.Slot != NoSlot {
		fmt.Fprintf(&b, " slot %d", d.Slot)
	}
	if !d.Resource.IsNull() {
		fmt.Fprintf(&b, " %v", d.Resource)
	}
	if d.Message != "" {
		b.WriteString(": ")
		b.WriteString(d.Message)
	}
	return b.String()
}

// List is the set of diagnostics produced by one call, in detection order.
type List []Diagnostic

// Error implements the error interface.
func (l List) Error() string {
	switch len(l) {
	case 0:
		return "no diagnostics"
	case 1:
		return l[0].Error()
	}
	s := make([]string, len(l))
	for i, d := range l {
		s[i] = d.Error()
	}
	return fmt.Sprintf("%d diagnostics: %s", len(l), strings.Join(s, "; "))
}

// Err returns l as an error, or nil if l is empty.
func (l List) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// Add appends a formatted diagnostic to l.
func (l *List) Add(k Kind, slot int32, r resource.ID, format string, args ...interface{}) {
	*l = append(*l, New(k, slot, r, format, args...))
}

// Kinds returns the kinds of l in order.
func (l List) Kinds() []Kind {
	if len(l) == 0 {
		return nil
	}
	k := make([]Kind, len(l))
	for i, d := range l {
		k[i] = d.Kind
	}
	return k
}

// Count returns the number of diagnostics of kind k in l.
func (l List) Count(k Kind) int {
	var n int
	for _, d := range l {
		if d.Kind == k {
			n++
		}
	}
	return n
}

// FromError returns the diagnostics carried by err. A nil err gives an empty
// List; an error that is neither a List nor a Diagnostic gives nil and false.
func FromError(err error) (List, bool) {
	if err == nil {
		return List{}, true
	}
	var l List
	if errors.As(err, &l) {
		return l, true
	}
	var d Diagnostic
	if errors.As(err, &d) {
		return List{d}, true
	}
	return nil, false
}

// Has reports whether err carries a diagnostic of kind k.
func Has(err error, k Kind) bool {
	return Count(err, k) > 0
}

// Count returns the number of diagnostics of kind k carried by err.
func Count(err error, k Kind) int {
	l, _ := FromError(err)
	return l.Count(k)
}

// Kinds returns the kinds of the diagnostics carried by err.
func Kinds(err error) []Kind {
	l, _ := FromError(err)
	return l.Kinds()
}
