/*
NAME
  resource.go

DESCRIPTION
  resource.go provides the identity of the picture and bitstream resource
  regions referenced by coding commands.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package resource provides a value type identifying a physical image or
// buffer region. The handles themselves are owned by an external resource
// manager; this package only compares them.
package resource

import "fmt"

// Kind distinguishes image regions from buffer regions.
type Kind uint8

// Resource kinds. KindNone is the kind of the null ID.
const (
	KindNone Kind = iota
	KindImage
	KindBuffer
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindImage:
		return "image"
	case KindBuffer:
		return "buffer"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Offset2D is a coded offset in pixels.
type Offset2D struct {
	X, Y int32
}

// Extent2D is a coded extent in pixels.
type Extent2D struct {
	Width, Height uint32
}

// IsZero reports whether either dimension of e is zero.
func (e Extent2D) IsZero() bool { return e.Width == 0 || e.Height == 0 }

// Contains reports whether the rectangle at o with extent sz fits inside e.
func (e Extent2D) Contains(o Offset2D, sz Extent2D) bool {
	if o.X < 0 || o.Y < 0 {
		return false
	}
	return uint64(o.X)+uint64(sz.Width) <= uint64(e.Width) &&
		uint64(o.Y)+uint64(sz.Height) <= uint64(e.Height)
}

// ID identifies a resource region. IDs are compared by value: two IDs are the
// same region iff they are equal, which makes ID usable as a map key.
//
// The zero ID is the null resource.
type ID struct {
	Kind   Kind
	Handle uint64 // Resource manager handle; 0 is null.

	// Image regions.
	BaseLayer  uint32
	LayerCount uint32
	Offset     Offset2D
	Extent     Extent2D

	// Buffer regions.
	ByteOffset uint64
	ByteSize   uint64
}

// Image returns the ID of a single array layer of an image with the given
// coded offset and extent.
func Image(handle uint64, layer uint32, off Offset2D, ext Extent2D) ID {
	return ID{
		Kind:       KindImage,
		Handle:     handle,
		BaseLayer:  layer,
		LayerCount: 1,
		Offset:     off,
		Extent:     ext,
	}
}

// Buffer returns the ID of the byte range [off, off+size) of a buffer.
func Buffer(handle, off, size uint64) ID {
	return ID{
		Kind:       KindBuffer,
		Handle:     handle,
		ByteOffset: off,
		ByteSize:   size,
	}
}

// IsNull reports whether id is the null resource.
func (id ID) IsNull() bool { return id.Handle == 0 }

// IsImage reports whether id is a non-null image region.
func (id ID) IsImage() bool { return !id.IsNull() && id.Kind == KindImage }

// IsBuffer reports whether id is a non-null buffer region.
func (id ID) IsBuffer() bool { return !id.IsNull() && id.Kind == KindBuffer }

func (id ID) String() string {
	switch {
	case id.IsNull():
		return "null"
	case id.Kind == KindImage:
		return fmt.Sprintf("image(%#x layers [%d,%d) %dx%d@%d,%d)",
			id.Handle, id.BaseLayer, id.BaseLayer+id.LayerCount,
			id.Extent.Width, id.Extent.Height, id.Offset.X, id.Offset.Y)
	case id.Kind == KindBuffer:
		return fmt.Sprintf("buffer(%#x [%d,%d))", id.Handle, id.ByteOffset, id.ByteOffset+id.ByteSize)
	default:
		return fmt.Sprintf("%s(%#x)", id.Kind, id.Handle)
	}
}
