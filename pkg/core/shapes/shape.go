// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape, the tensor descriptor consumed by the RNN planner.
//
// A Shape holds the logical dimensions and the DType of a tensor, plus its physical memory
// layout: a Layout tag, the per-axis strides (in elements) and, for pre-packed weights,
// a PackedDesc.
//
// Strides are always indexed by the *logical* axis, whatever the physical order is. So for a
// weights tensor with logical dimensions [L, D, I, G, O] stored as LDGOI, Strides[2] (the I
// axis) is 1 and Strides[4] (the O axis) is I.
//
// ## Glossary
//
//   - Rank: number of axes (dimensions) of a tensor.
//   - Axis: the index of a dimension.
//   - Dimension: the size of a tensor in one of its axes.
//   - DType: the data type of the unit element, see github.com/gomlx/gopjrt/dtypes.
//   - Layout: the physical order of the axes in memory, or Any if the consumer should choose it.
package shapes

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Shape describes one tensor: dtype, logical dimensions and memory layout.
//
// Use Make or MakeWithStrides to create a new shape. The zero value Shape{} represents an
// absent (optional) tensor, see Ok.
type Shape struct {
	DType      dtypes.DType
	Dimensions []int

	// Layout of the tensor in memory. Any means the layout is still to be decided.
	Layout Layout

	// Strides per logical axis, in elements. Nil for Layout Any or RNNPacked.
	Strides []int

	// Packed is set only for Layout RNNPacked.
	Packed *PackedDesc
}

// Make returns a Shape with the given dtype, layout and dimensions, with dense strides for the
// layout's physical axes order.
//
// It panics if a dimension is <= 0 or the rank doesn't match the layout.
func Make(dtype dtypes.DType, layout Layout, dimensions ...int) Shape {
	s := Shape{DType: dtype, Layout: layout, Dimensions: slices.Clone(dimensions)}
	for _, dim := range dimensions {
		if dim <= 0 {
			exceptions.Panicf("shapes.Make(%s): cannot create a shape with an axis with dimension <= 0", s)
		}
	}
	if rank := layout.Rank(); rank > 0 && rank != len(dimensions) {
		exceptions.Panicf("shapes.Make(%s): layout %s requires rank %d", s, layout, rank)
	}
	s.Strides = layout.DenseStrides(s.Dimensions)
	return s
}

// MakeWithStrides is like Make, but uses the given per-logical-axis strides, for instance when
// rows are padded.
func MakeWithStrides(dtype dtypes.DType, layout Layout, dimensions, strides []int) Shape {
	s := Make(dtype, layout, dimensions...)
	if len(strides) != len(dimensions) {
		exceptions.Panicf("shapes.MakeWithStrides(%s): got %d strides for rank %d", s, len(strides), len(dimensions))
	}
	s.Strides = slices.Clone(strides)
	return s
}

// MakePacked returns a weights Shape in the RNNPacked layout.
func MakePacked(dtype dtypes.DType, desc PackedDesc, dimensions ...int) Shape {
	s := Make(dtype, RNNPacked, dimensions...)
	s.Packed = desc.Clone()
	return s
}

// Ok returns whether this is a valid Shape. A "zero" shape, that is just instantiating it with Shape{}, is invalid,
// and it's used to represent an absent optional tensor.
func (s Shape) Ok() bool { return s.DType != dtypes.InvalidDType }

// Rank of the shape, that is, the number of dimensions.
func (s Shape) Rank() int { return len(s.Dimensions) }

// Dim returns the dimension of the given axis. axis can take negative numbers, in which
// case it counts as starting from the end -- so axis=-1 refers to the last axis.
// Like with a slice indexing, it panics for an out-of-bound axis.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjustedAxis]
}

// Stride returns the stride of the given logical axis, or 0 if the shape has no strides
// (Layout Any or RNNPacked).
func (s Shape) Stride(axis int) int {
	if len(s.Strides) == 0 {
		return 0
	}
	return s.Strides[axis]
}

// IsBlocking returns whether the shape describes a plain strided layout (as opposed to Any or
// a packed layout).
func (s Shape) IsBlocking() bool {
	return s.Ok() && s.Layout != Any && s.Layout != RNNPacked && len(s.Strides) == s.Rank()
}

// String implements stringer, pretty-prints the shape.
func (s Shape) String() string {
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	if s.Layout == Any {
		return fmt.Sprintf("(%s)%v", s.DType, s.Dimensions)
	}
	return fmt.Sprintf("(%s)%v:%s", s.DType, s.Dimensions, s.Layout)
}

// Size returns the number of elements of DType needed for this shape. It's the product of all dimensions.
func (s Shape) Size() (size int) {
	size = 1
	for _, d := range s.Dimensions {
		size *= d
	}
	return
}

// Memory returns the memory used to store an array of the given shape, the same as the size in bytes.
// For packed shapes it is the packed size, which includes padding and compensation.
func (s Shape) Memory() uintptr {
	if s.Layout == RNNPacked && s.Packed != nil {
		return uintptr(s.Packed.Size)
	}
	return s.DType.Memory() * uintptr(s.Size())
}

// Equal compares two shapes for equality: dtype, dimensions, layout, strides and packing are compared.
func (s Shape) Equal(s2 Shape) bool {
	if s.DType != s2.DType || s.Layout != s2.Layout {
		return false
	}
	if !slices.Equal(s.Dimensions, s2.Dimensions) || !slices.Equal(s.Strides, s2.Strides) {
		return false
	}
	if (s.Packed == nil) != (s2.Packed == nil) {
		return false
	}
	return s.Packed == nil || s.Packed.Equal(*s2.Packed)
}

// EqualDimensions compares only the dtype and the dimensions of two shapes.
func (s Shape) EqualDimensions(s2 Shape) bool {
	return s.DType == s2.DType && slices.Equal(s.Dimensions, s2.Dimensions)
}

// Clone returns a deep copy of the shape.
func (s Shape) Clone() Shape {
	s2 := s
	s2.Dimensions = slices.Clone(s.Dimensions)
	s2.Strides = slices.Clone(s.Strides)
	if s.Packed != nil {
		s2.Packed = s.Packed.Clone()
	}
	return s2
}
