// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"fmt"
	"slices"
)

// Layout is the physical memory format of a tensor.
type Layout int

const (
	// Any leaves the layout to be chosen by the consumer of the descriptor.
	Any Layout = iota

	// TNC is used by src_layer/dst_layer: [timesteps, batch, channels].
	TNC

	// LDSNC is used by src_iter/dst_iter: [layers, directions, states, batch, channels].
	LDSNC

	// LDIGO is the forward weights layout: logical [layers, directions, input, gates, output],
	// stored in the same order.
	LDIGO

	// LDGOI has the same logical axes as LDIGO, but stores the input channels innermost.
	LDGOI

	// LDGO is used by the bias: [layers, directions, gates, output].
	LDGO

	// RNNPacked weights were rearranged for a specific GEMM back end, see PackedDesc.
	RNNPacked
)

var layoutNames = map[Layout]string{
	Any:       "any",
	TNC:       "tnc",
	LDSNC:     "ldsnc",
	LDIGO:     "ldigo",
	LDGOI:     "ldgoi",
	LDGO:      "ldgo",
	RNNPacked: "rnn_packed",
}

// String implements fmt.Stringer.
func (l Layout) String() string {
	if name, found := layoutNames[l]; found {
		return name
	}
	return fmt.Sprintf("Layout(%d)", int(l))
}

// Rank returns the rank required by the layout, or 0 for Any.
func (l Layout) Rank() int {
	switch l {
	case TNC:
		return 3
	case LDGO:
		return 4
	case LDSNC, LDIGO, LDGOI, RNNPacked:
		return 5
	default:
		return 0
	}
}

// physicalOrder returns the logical axes in the order they are laid out in memory, outermost first.
func (l Layout) physicalOrder() []int {
	switch l {
	case TNC:
		return []int{0, 1, 2}
	case LDGO:
		return []int{0, 1, 2, 3}
	case LDSNC, LDIGO:
		return []int{0, 1, 2, 3, 4}
	case LDGOI:
		return []int{0, 1, 3, 4, 2}
	default:
		return nil
	}
}

// DenseStrides returns the per-logical-axis strides of a dense (unpadded) tensor with the given
// dimensions, or nil if the layout has no strides (Any, RNNPacked).
func (l Layout) DenseStrides(dimensions []int) []int {
	order := l.physicalOrder()
	if order == nil || len(order) != len(dimensions) {
		return nil
	}
	strides := make([]int, len(dimensions))
	stride := 1
	for _, axis := range slices.Backward(order) {
		strides[axis] = stride
		stride *= dimensions[axis]
	}
	return strides
}

// PackedFormat tells how a packed weights tensor was laid out before packing.
type PackedFormat int

const (
	// LDIGOPacked is used for forward propagation.
	LDIGOPacked PackedFormat = iota
	// LDGOIPacked is used for backward propagation.
	LDGOIPacked
)

// String implements fmt.Stringer.
func (f PackedFormat) String() string {
	switch f {
	case LDIGOPacked:
		return "ldigo_p"
	case LDGOIPacked:
		return "ldgoi_p"
	default:
		return fmt.Sprintf("PackedFormat(%d)", int(f))
	}
}

// PackedDesc describes weights packed for a GEMM back end.
//
// The weights matrix of each (layer, direction) is split in NParts row ranges ("parts"), each
// packed separately. Parts are counted in gates: a part of Parts[p] gates holds Parts[p]*DIC rows.
type PackedDesc struct {
	Format PackedFormat

	// N is the GEMM "n" dimension the packing was prepared for (batch, or batch*timesteps when merged).
	N int

	// Parts holds the number of gates of each part.
	Parts []int

	// PartPackSize is the packed size in bytes of one (layer, direction) instance of each part.
	PartPackSize []int

	// OffsetCompensation is where the quantization compensation terms start, in bytes.
	OffsetCompensation int

	// Size is the total size in bytes, including compensation.
	Size int
}

// NParts returns the number of parts.
func (d *PackedDesc) NParts() int { return len(d.Parts) }

// Clone returns a deep copy.
func (d *PackedDesc) Clone() *PackedDesc {
	d2 := *d
	d2.Parts = slices.Clone(d.Parts)
	d2.PartPackSize = slices.Clone(d.PartPackSize)
	return &d2
}

// Equal compares two packed descriptors.
func (d *PackedDesc) Equal(d2 PackedDesc) bool {
	return d.Format == d2.Format && d.N == d2.N &&
		slices.Equal(d.Parts, d2.Parts) && slices.Equal(d.PartPackSize, d2.PartPackSize) &&
		d.OffsetCompensation == d2.OffsetCompensation && d.Size == d2.Size
}
