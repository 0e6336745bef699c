// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rnn

import (
	"math"

	"github.com/gomlx/rnnplan/pkg/core/shapes"
	"github.com/gomlx/rnnplan/pkg/rnn/packing"
	"github.com/pkg/errors"
)

// ResolvePackedLayout asks the packer for the packed size of each part of the layer (isIter=false)
// or iteration weights of conf, and returns the resulting packed descriptor.
//
// Packing is all-or-nothing: if any part is rejected by the packer, it returns an error wrapping
// ErrUnpackable, and the caller is expected to fall back to unpacked weights.
func ResolvePackedLayout(packer Packer, conf *Conf, isIter bool) (*shapes.PackedDesc, error) {
	what, parts, channels := "layer", conf.LayerParts, conf.SLC
	if isIter {
		what, parts, channels = "iter", conf.IterParts, conf.SIC
	}
	if packer == nil {
		return nil, errors.Wrapf(ErrUnpackable, "no packing back end configured for %s weights", what)
	}
	desc := &shapes.PackedDesc{
		Format: shapes.LDIGOPacked,
		N:      conf.GemmN(isIter),
		Parts:  parts.Slice(),
	}
	if !conf.IsFwd {
		desc.Format = shapes.LDGOIPacked
	}
	perMatrix := 0
	for p, gates := range desc.Parts {
		m, k := gates*conf.DIC, channels
		if !conf.IsFwd {
			m, k = k, m
		}
		size, err := packer.PackedSize(conf.WeightsDType, m, desc.N, k)
		if err != nil {
			if errors.Is(err, packing.ErrNotPackable) {
				return nil, errors.Wrapf(ErrUnpackable, "%s weights part %d (m=%d, n=%d, k=%d): %v",
					what, p, m, desc.N, k, err)
			}
			return nil, errors.WithMessagef(err, "packing %s weights part %d", what, p)
		}
		desc.PartPackSize = append(desc.PartPackSize, size)
		perMatrix += size
	}
	var ok bool
	desc.Size, ok = mulChecked(math.MaxInt, conf.NLayer, conf.NDir, perMatrix)
	if !ok {
		return nil, errors.Wrapf(ErrResourceLimit, "packed %s weights of %d bytes per matrix", what, perMatrix)
	}
	desc.OffsetCompensation = desc.Size
	if conf.IsInt8() {
		// One int32 compensation term per output row, for the zero-point of the quantized input.
		compensation, ok := mulChecked(math.MaxInt, conf.NLayer, conf.NDir, conf.NGates, conf.DIC, 4)
		if !ok || desc.Size > math.MaxInt-compensation {
			return nil, errors.Wrapf(ErrResourceLimit, "packed %s weights compensation overflows", what)
		}
		desc.Size += compensation
	}
	return desc, nil
}

// ExpectedWeightsDesc returns the shape the layer (isIter=false) or iteration weights are expected to be
// given in: the packed shape if the weights are packed and not copied, or else the dense LDIGO (forward)
// or LDGOI (backward) shape.
func (c *Conf) ExpectedWeightsDesc(isIter bool) shapes.Shape {
	channels, packed, copied, desc := c.SLC, c.WeightsLayerIsPacked, c.CopyWeightsLayer, c.WeightsLayerPacked
	if isIter {
		channels, packed, copied, desc = c.SIC, c.WeightsIterIsPacked, c.CopyWeightsIter, c.WeightsIterPacked
	}
	if packed && !copied && desc != nil {
		return shapes.MakePacked(c.WeightsDType, *desc, c.NLayer, c.NDir, channels, c.NGates, c.DIC)
	}
	layout := shapes.LDIGO
	if !c.IsFwd {
		layout = shapes.LDGOI
	}
	return shapes.Make(c.WeightsDType, layout, c.NLayer, c.NDir, channels, c.NGates, c.DIC)
}

// adoptPacked validates weights given already packed, and returns their parts.
func adoptPacked(conf *Conf, weights shapes.Shape, isIter bool) (WeightParts, error) {
	desc := weights.Packed
	if desc == nil {
		return WeightParts{}, errors.Wrapf(ErrInvalidShape, "weights %s have no packed descriptor", weights)
	}
	wantFormat := shapes.LDIGOPacked
	if !conf.IsFwd {
		wantFormat = shapes.LDGOIPacked
	}
	if desc.Format != wantFormat {
		return WeightParts{}, errors.Wrapf(ErrInvalidShape, "packed weights format %s, %s requires %s",
			desc.Format, conf.Prop, wantFormat)
	}
	if n := conf.GemmN(isIter); desc.N != n {
		return WeightParts{}, errors.Wrapf(ErrInvalidShape, "packed weights prepared for GEMM n=%d, configuration uses n=%d",
			desc.N, n)
	}
	if desc.NParts() == 0 || desc.NParts() > MaxParts || len(desc.PartPackSize) != desc.NParts() {
		return WeightParts{}, errors.Wrapf(ErrInvalidShape, "packed weights with %d parts (%d sizes), must be 1 to %d",
			desc.NParts(), len(desc.PartPackSize), MaxParts)
	}
	var parts WeightParts
	for p, gates := range desc.Parts {
		if gates <= 0 || desc.PartPackSize[p] <= 0 {
			return WeightParts{}, errors.Wrapf(ErrInvalidShape, "packed weights part %d invalid: %d gates, %d bytes",
				p, gates, desc.PartPackSize[p])
		}
		parts.Gates[p] = gates
		parts.PackSize[p] = desc.PartPackSize[p]
	}
	parts.NParts = desc.NParts()
	if parts.TotalGates() != conf.NGates {
		return WeightParts{}, errors.Wrapf(ErrInvalidShape, "packed weights parts %v don't add up to %d gates",
			desc.Parts, conf.NGates)
	}
	return parts, nil
}

// mulChecked returns the product of the factors, and false if it is larger than limit.
// Factors must be non-negative.
func mulChecked(limit int, factors ...int) (int, bool) {
	product := 1
	for _, f := range factors {
		if f != 0 && product > limit/f {
			return 0, false
		}
		product *= f
	}
	return product, product <= limit
}
