// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/rnnplan/pkg/core/shapes"
	"github.com/gomlx/rnnplan/pkg/rnn"
)

type tensorDims struct {
	L, T, N  int
	SLC, SIC int
	DIC      int
	Int8     bool
	Layout   shapes.Layout // Weights layout.
}

// buildTensors returns dense tensors consistent with the RNN description.
// Quantized configurations use u8 sources and states with int8 weights.
func buildTensors(desc rnn.Desc, dims tensorDims) rnn.Tensors {
	numGates, numDirs, numStates := desc.Cell.NumGates(), desc.Direction.NumDirections(), desc.Cell.NumStates()
	dlc := dims.DIC
	if desc.Direction == rnn.BidirectionalConcat {
		dlc *= 2
	}
	numBias := numGates
	if desc.Cell == rnn.GRULinearBeforeReset {
		numBias++
	}
	src, weights := dtypes.Float32, dtypes.Float32
	if dims.Int8 {
		src, weights = dtypes.Uint8, dtypes.Int8
	}
	f32 := dtypes.Float32
	t := rnn.Tensors{
		SrcLayer:     shapes.Make(src, shapes.TNC, dims.T, dims.N, dims.SLC),
		SrcIter:      shapes.Make(src, shapes.LDSNC, dims.L, numDirs, numStates, dims.N, dims.SIC),
		WeightsLayer: shapes.Make(weights, dims.Layout, dims.L, numDirs, dims.SLC, numGates, dims.DIC),
		WeightsIter:  shapes.Make(weights, dims.Layout, dims.L, numDirs, dims.SIC, numGates, dims.DIC),
		Bias:         shapes.Make(f32, shapes.LDGO, dims.L, numDirs, numBias, dims.DIC),
		DstLayer:     shapes.Make(f32, shapes.TNC, dims.T, dims.N, dlc),
		DstIter:      shapes.Make(src, shapes.LDSNC, dims.L, numDirs, numStates, dims.N, dims.DIC),
	}
	if desc.Prop == rnn.Backward {
		t.DiffWeightsLayer = shapes.Make(f32, shapes.LDIGO, dims.L, numDirs, dims.SLC, numGates, dims.DIC)
		t.DiffWeightsIter = shapes.Make(f32, shapes.LDIGO, dims.L, numDirs, dims.SIC, numGates, dims.DIC)
	}
	return t
}
