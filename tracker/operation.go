/*
NAME
  operation.go

DESCRIPTION
  operation.go defines the commands recorded into a coding scope.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package tracker

import (
	"github.com/ausocean/vidval/resource"
	"github.com/ausocean/vidval/tracker/config"
)

// SetupSlot names the DPB slot an operation reconstructs its picture into.
type SetupSlot struct {
	Slot     int32
	Resource resource.ID

	// Reference requests that the reconstructed picture be kept as a
	// reference. Only then does the slot become active.
	Reference bool
}

// ReferenceSlot names a DPB slot an operation predicts from.
type ReferenceSlot struct {
	Slot     int32
	Resource resource.ID
}

// QuantizationMapKind is the interpretation of a quantization map.
type QuantizationMapKind uint8

// Quantization map kinds.
const (
	QuantizationDelta QuantizationMapKind = iota
	QuantizationEmphasis
)

// QuantizationMap is an encode-only image of per-block quantization values.
type QuantizationMap struct {
	Kind     QuantizationMapKind
	Resource resource.ID
}

// InlineQuery asks for a query result to be written for the operation.
type InlineQuery struct {
	Pool  uint64
	Index uint32
}

// Operation is one decode or encode command. Optional features are present
// when their field is non-nil.
type Operation struct {
	Setup      *SetupSlot
	References []ReferenceSlot

	// Picture is the decode output picture, or the encode input picture.
	Picture resource.ID

	// Bitstream is the buffer range read by a decode or written by an encode.
	Bitstream resource.ID

	QuantizationMap *QuantizationMap
	Query           *InlineQuery
}

// RateControl selects an encode rate control mode.
type RateControl struct {
	Mode    config.RateControlMode
	Bitrate uint64 // Bits per second; ignored unless Mode is CBR or VBR.
}

// Control is a coding control command. Optional parameters are present when
// their field is non-nil.
type Control struct {
	Reset        bool
	RateControl  *RateControl
	QualityLevel *uint32
}
