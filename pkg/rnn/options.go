// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rnn

import (
	"math"

	"github.com/gomlx/gopjrt/dtypes"
)

// Packer is the weight-packing back end queried by NewConf and ResolvePackedLayout.
// It is implemented by the back ends in the packing sub-package.
type Packer interface {
	// PackedSize returns the size in bytes of a packed [m, k] weights part, multiplied by an
	// n-columns operand. It returns an error wrapping packing.ErrNotPackable if it can't pack it.
	PackedSize(dtype dtypes.DType, m, n, k int) (int, error)

	// PanelRows returns the preferred maximum number of rows of a packed part.
	PanelRows(dtype dtypes.DType) int
}

// PackingMode selects when weights are packed.
type PackingMode int

const (
	// PackAuto packs weights whose layout is left open (shapes.Any) for inference on large
	// channels. Quantized modes are always packed.
	PackAuto PackingMode = iota

	// PackNever never packs weights: not valid for quantized modes.
	PackNever

	// PackAlways packs both weights tensors. If their layout is explicit, they are packed
	// into the scratchpad at execution time.
	PackAlways
)

// Options configure NewConf.
type Options struct {
	// Alignment policy, required.
	Alignment Alignment

	// Packer used for packed weights. If nil, weights are not packed (and quantized modes are unsupported).
	Packer Packer

	// Packing selects when to pack weights.
	Packing PackingMode

	// GEMMBlockElems, if > 0, limits the output elements (rows x GEMM columns) of an unpacked GEMM call:
	// larger weights matrices are split into more parts. The GEMM columns are the batch size, times
	// the number of timesteps if the GEMM is merged across timesteps.
	GEMMBlockElems int

	// AddressLimit is the maximum size in bytes of any buffer.
	AddressLimit int
}

// DefaultOptions returns the default options for the given alignment: no packing and no limit other than
// the platform's int.
func DefaultOptions(alignment Alignment) Options {
	return Options{
		Alignment:    alignment,
		Packing:      PackAuto,
		AddressLimit: math.MaxInt,
	}
}

// WithPacker returns a copy of the options using the given packing back end.
func (o Options) WithPacker(packer Packer) Options {
	o.Packer = packer
	return o
}

// WithPacking returns a copy of the options with the given packing mode.
func (o Options) WithPacking(mode PackingMode) Options {
	o.Packing = mode
	return o
}

// WithGEMMBlockElems returns a copy of the options with the given GEMM block limit, see Options.GEMMBlockElems.
func (o Options) WithGEMMBlockElems(elems int) Options {
	o.GEMMBlockElems = elems
	return o
}

// WithAddressLimit returns a copy of the options with the given limit of bytes per buffer.
func (o Options) WithAddressLimit(limit int) Options {
	o.AddressLimit = limit
	return o
}
