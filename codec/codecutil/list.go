/*
NAME
  list.go

DESCRIPTION
  list.go defines the closed set of video coding operations (decode or encode
  for each supported codec) and the per-codec capability limits used when
  validating a session configuration.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package codecutil describes the video codecs and coding directions a
// session may be created for.
package codecutil

import (
	"fmt"
	"strings"
)

// All available codecs for reference in any application.
// When adding or removing a codec from this list, the capabilities map below
// must be updated.
const (
	H264 = "h264"
	H265 = "h265"
	AV1  = "av1"
	VP9  = "vp9"
)

// Direction is the direction of a coding operation.
type Direction uint8

// Coding directions.
const (
	Decode Direction = iota
	Encode
)

func (d Direction) String() string {
	switch d {
	case Decode:
		return "decode"
	case Encode:
		return "encode"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// Capability reports the limits a codec places on a coding session,
// independent of what any particular device supports.
type Capability interface {
	// Name returns the codec name as listed in the consts above.
	Name() string

	// MaxDPBSlots is the largest number of DPB slots the codec can address,
	// including the slot used for the picture being reconstructed.
	MaxDPBSlots() uint32

	// MaxActiveReferences is the largest number of reference pictures a
	// single operation may use.
	MaxActiveReferences() uint32

	// Encodable reports whether encode operations exist for the codec.
	Encodable() bool
}

type h264Capability struct{}

func (h264Capability) Name() string                { return H264 }
func (h264Capability) MaxDPBSlots() uint32         { return 17 }
func (h264Capability) MaxActiveReferences() uint32 { return 16 }
func (h264Capability) Encodable() bool             { return true }

type h265Capability struct{}

func (h265Capability) Name() string                { return H265 }
func (h265Capability) MaxDPBSlots() uint32         { return 16 }
func (h265Capability) MaxActiveReferences() uint32 { return 15 }
func (h265Capability) Encodable() bool             { return true }

// AV1 keeps 8 reference frames; one extra slot holds the frame being coded.
type av1Capability struct{}

func (av1Capability) Name() string                { return AV1 }
func (av1Capability) MaxDPBSlots() uint32         { return 9 }
func (av1Capability) MaxActiveReferences() uint32 { return 7 }
func (av1Capability) Encodable() bool             { return true }

type vp9Capability struct{}

func (vp9Capability) Name() string                { return VP9 }
func (vp9Capability) MaxDPBSlots() uint32         { return 9 }
func (vp9Capability) MaxActiveReferences() uint32 { return 3 }
func (vp9Capability) Encodable() bool             { return false }

var capabilities = map[string]Capability{
	H264: h264Capability{},
	H265: h265Capability{},
	AV1:  av1Capability{},
	VP9:  vp9Capability{},
}

// IsValid checks if a string is a known and valid codec in the right format.
func IsValid(s string) bool {
	_, ok := capabilities[s]
	return ok
}

// CapabilityOf returns the capability of the named codec, or nil if the codec
// is unknown.
func CapabilityOf(codec string) Capability {
	return capabilities[codec]
}

// Operation names one member of the closed set {Decode, Encode} × codecs.
// The zero value is not a valid operation; use NewOperation or
// ParseOperation.
type Operation struct {
	Direction Direction
	Codec     string
}

// NewOperation returns the operation for the given direction and codec, or an
// error if the codec is unknown or cannot be used in that direction.
func NewOperation(d Direction, codec string) (Operation, error) {
	op := Operation{Direction: d, Codec: codec}
	if !op.IsValid() {
		return Operation{}, fmt.Errorf("invalid coding operation: %s", op)
	}
	return op, nil
}

// ParseOperation parses operation strings of the form "decode_h264" or
// "encode_av1".
func ParseOperation(s string) (Operation, error) {
	dir, codec, ok := strings.Cut(strings.ToLower(s), "_")
	if !ok {
		return Operation{}, fmt.Errorf("malformed coding operation: %q", s)
	}
	switch dir {
	case "decode":
		return NewOperation(Decode, codec)
	case "encode":
		return NewOperation(Encode, codec)
	default:
		return Operation{}, fmt.Errorf("unknown coding direction: %q", dir)
	}
}

// IsValid reports whether op is a member of the operation set.
func (op Operation) IsValid() bool {
	c := CapabilityOf(op.Codec)
	if c == nil {
		return false
	}
	switch op.Direction {
	case Decode:
		return true
	case Encode:
		return c.Encodable()
	default:
		return false
	}
}

// Capability returns the capability of the operation's codec.
func (op Operation) Capability() Capability {
	return CapabilityOf(op.Codec)
}

func (op Operation) String() string {
	return op.Direction.String() + "_" + op.Codec
}
