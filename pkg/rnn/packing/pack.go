// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package packing

import (
	"github.com/gomlx/rnnplan/internal/workerspool"
	"github.com/gomlx/rnnplan/pkg/core/shapes"
	"github.com/pkg/errors"
)

// PackLHS packs a [rows, cols] LHS matrix into horizontal strips of height mr (Mr), traversed
// K-first: the result is laid out as [ceil(rows/mr), cols, mr], zero-padded in the last strip.
//
//   - src: the matrix, element (row, col) at src[row*rowStride + col*colStride].
//   - dst: must hold at least ceil(rows/mr)*mr*cols elements.
func PackLHS[T any](src []T, rowStride, colStride, rows, cols int, dst []T, mr int) {
	var zero T
	dstIdx := 0
	for stripRowIdx := 0; stripRowIdx < rows; stripRowIdx += mr {
		validRows := min(mr, rows-stripRowIdx)
		for col := range cols {
			srcIdx := stripRowIdx*rowStride + col*colStride
			for range validRows {
				dst[dstIdx] = src[srcIdx]
				dstIdx++
				srcIdx += rowStride
			}
			// Zero-pad
			for r := validRows; r < mr; r++ {
				dst[dstIdx] = zero
				dstIdx++
			}
		}
	}
}

// PackedPartOffset returns the offset in bytes of the packed part p of the (layer, direction)
// weights matrix: parts are stored contiguously per (layer, direction).
func PackedPartOffset(desc *shapes.PackedDesc, numDirections, layer, direction, part int) int {
	perMatrix := 0
	for _, size := range desc.PartPackSize {
		perMatrix += size
	}
	offset := (layer*numDirections + direction) * perMatrix
	for _, size := range desc.PartPackSize[:part] {
		offset += size
	}
	return offset
}

// PackWeights packs the weights src, described by weights (LDIGO or LDGOI layout, logical
// [L, D, I, G, O]), into dst following desc, which must have been sized by a back end with the
// given params. Each (layer, direction, part) is packed by a separate task in pool.
//
// For the LDIGOPacked format each part is the LHS of the forward GEMM, with rows (gate, output)
// and cols input; for LDGOIPacked it is transposed.
func PackWeights[T any](pool *workerspool.Pool, params CacheParams, weights shapes.Shape, src []T,
	desc *shapes.PackedDesc, dst []T) error {
	if !weights.IsBlocking() || weights.Rank() != 5 {
		return errors.Errorf("PackWeights: weights must be in a strided [L, D, I, G, O] layout, got %s", weights)
	}
	if err := params.Validate(); err != nil {
		return err
	}
	elementSize := int(weights.DType.Memory())
	numLayers, numDirections := weights.Dim(0), weights.Dim(1)
	numInputs, numGates, numOutputs := weights.Dim(2), weights.Dim(3), weights.Dim(4)
	totalGates := 0
	for p, gates := range desc.Parts {
		totalGates += gates
		if desc.PartPackSize[p]%elementSize != 0 {
			return errors.Errorf("PackWeights: part %d packed size %d not a multiple of the element size %d",
				p, desc.PartPackSize[p], elementSize)
		}
	}
	if totalGates != numGates || len(desc.PartPackSize) != len(desc.Parts) {
		return errors.Errorf("PackWeights: packed parts %v (sizes %v) don't cover the %d gates",
			desc.Parts, desc.PartPackSize, numGates)
	}
	if end := PackedPartOffset(desc, numDirections, numLayers, 0, 0); end > len(dst)*elementSize {
		return errors.Errorf("PackWeights: dst has %d bytes, packed parts need %d", len(dst)*elementSize, end)
	}

	partFirstGate := make([]int, len(desc.Parts))
	for p := 1; p < len(desc.Parts); p++ {
		partFirstGate[p] = partFirstGate[p-1] + desc.Parts[p-1]
	}
	mr := params.LHSL1KernelRows
	strideL, strideD := weights.Stride(0), weights.Stride(1)
	strideI, strideG, strideO := weights.Stride(2), weights.Stride(3), weights.Stride(4)
	numParts := len(desc.Parts)
	pool.ForEach(numLayers*numDirections*numParts, func(task int) {
		part := task % numParts
		direction := (task / numParts) % numDirections
		layer := task / numParts / numDirections
		srcStart := layer*strideL + direction*strideD + partFirstGate[part]*strideG
		partRows := desc.Parts[part] * numOutputs
		dstStart := PackedPartOffset(desc, numDirections, layer, direction, part) / elementSize
		dstPart := dst[dstStart : dstStart+desc.PartPackSize[part]/elementSize]
		// Rows of a part are (gate, output) pairs: they are equally spaced only if gates are contiguous
		// to outputs, so pack gate by gate.
		if desc.Parts[part] > 1 && strideG != numOutputs*strideO {
			packPerGate(src[srcStart:], strideI, strideG, strideO, desc.Parts[part], numOutputs, numInputs,
				desc.Format, dstPart, mr)
			return
		}
		if desc.Format == shapes.LDIGOPacked {
			PackLHS(src[srcStart:], strideO, strideI, partRows, numInputs, dstPart, mr)
		} else {
			PackLHS(src[srcStart:], strideI, strideO, numInputs, partRows, dstPart, mr)
		}
	})
	return nil
}

// packPerGate gathers the part into a contiguous [gates*outputs, inputs] matrix before packing it.
func packPerGate[T any](src []T, strideI, strideG, strideO, numGates, numOutputs, numInputs int,
	format shapes.PackedFormat, dst []T, mr int) {
	rows := numGates * numOutputs
	gathered := make([]T, rows*numInputs)
	for g := range numGates {
		for o := range numOutputs {
			row := g*numOutputs + o
			for i := range numInputs {
				gathered[row*numInputs+i] = src[g*strideG+o*strideO+i*strideI]
			}
		}
	}
	if format == shapes.LDIGOPacked {
		PackLHS(gathered, numInputs, 1, rows, numInputs, dst, mr)
	} else {
		PackLHS(gathered, 1, numInputs, numInputs, rows, dst, mr)
	}
}
