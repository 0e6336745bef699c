// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package packing

import (
	"math"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/gomlx/rnnplan/internal/workerspool"
	"github.com/gomlx/rnnplan/pkg/core/shapes"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestNewWithConfig(t *testing.T) {
	b, err := NewWithConfig("")
	require.NoError(t, err)
	assert.Equal(t, GotoName, b.Name())

	b, err = NewWithConfig("goto:mr=4,float32.mc=264")
	require.NoError(t, err)
	p, ok := b.Params(dtypes.Float32)
	require.True(t, ok)
	assert.Equal(t, 4, p.LHSL1KernelRows)
	assert.Equal(t, 264, b.PanelRows(dtypes.Float32))
	// Other dtypes only got the global override.
	p, ok = b.Params(dtypes.Int8)
	require.True(t, ok)
	assert.Equal(t, 4, p.LHSL1KernelRows)
	assert.Equal(t, DefaultGotoParams[dtypes.Int8].LHSL2PanelCrossSize, p.LHSL2PanelCrossSize)

	b, err = NewWithConfig("goto:dtypes=float32+int8")
	require.NoError(t, err)
	_, ok = b.Params(dtypes.Float16)
	assert.False(t, ok)
	assert.Equal(t, 0, b.PanelRows(dtypes.Float16))

	_, err = NewWithConfig("goto:mr=5") // Mc=528 is not a multiple of 5.
	require.Error(t, err)
	_, err = NewWithConfig("goto:foo=1")
	require.Error(t, err)
	_, err = NewWithConfig("goto:mr")
	require.Error(t, err)
	_, err = NewWithConfig("mkl:")
	require.Error(t, err)
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv(RNNPLAN_PACKING, "goto:mc=12,mr=6")
	b, err := New()
	require.NoError(t, err)
	assert.Equal(t, 12, b.PanelRows(dtypes.Float32))
}

func TestGotoPackedSize(t *testing.T) {
	g, err := NewGoto("")
	require.NoError(t, err)
	// Mr=6 for float32: 10 rows are padded to 12.
	size, err := g.PackedSize(dtypes.Float32, 10, 3, 7)
	require.NoError(t, err)
	assert.Equal(t, 12*7*4, size)

	size, err = g.PackedSize(dtypes.Int8, 12, 3, 7)
	require.NoError(t, err)
	assert.Equal(t, 12*7, size)

	for _, tc := range []struct {
		name    string
		dtype   dtypes.DType
		m, n, k int
	}{
		{"too few rows", dtypes.Float32, 5, 3, 7},
		{"unsupported dtype", dtypes.Float64, 12, 3, 7},
		{"invalid n", dtypes.Float32, 12, 0, 7},
		{"byte size overflows", dtypes.Float32, 12, 3, math.MaxInt / 16},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.PackedSize(tc.dtype, tc.m, tc.n, tc.k)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotPackable), "got %v", err)
		})
	}
}

func TestPackLHS(t *testing.T) {
	// [3, 2] matrix, row-major, packed with mr=2: strips [[0,2],[1,3]] then [[4,0],[5,0]].
	src := []float32{0, 1, 2, 3, 4, 5}
	dst := make([]float32, 2*2*2)
	PackLHS(src, 2, 1, 3, 2, dst, 2)
	assert.Equal(t, []float32{0, 2, 1, 3, 4, 0, 5, 0}, dst)

	// Same matrix, given transposed (column-major).
	srcT := []float32{0, 2, 4, 1, 3, 5}
	dstT := make([]float32, len(dst))
	PackLHS(srcT, 1, 3, 3, 2, dstT, 2)
	assert.Equal(t, dst, dstT)

	half := []float16.Float16{float16.Fromfloat32(1), float16.Fromfloat32(2)}
	halfDst := make([]float16.Float16, 2)
	PackLHS(half, 1, 1, 1, 1, halfDst, 2)
	assert.Equal(t, float32(1), halfDst[0].Float32())
	assert.Equal(t, float32(0), halfDst[1].Float32())
}

// unpackLDIGO reads back element (layer, direction, input, gate, output) of forward-packed weights.
func unpackLDIGO[T any](packed []T, desc *shapes.PackedDesc, numDirections, numOutputs, elementSize, mr int,
	layer, direction, input, gate, output int) T {
	part, partFirstGate := 0, 0
	for gate >= partFirstGate+desc.Parts[part] {
		partFirstGate += desc.Parts[part]
		part++
	}
	row := (gate-partFirstGate)*numOutputs + output
	base := PackedPartOffset(desc, numDirections, layer, direction, part) / elementSize
	numInputs := desc.PartPackSize[part] / elementSize / ((desc.Parts[part]*numOutputs + mr - 1) / mr * mr)
	return packed[base+(row/mr)*numInputs*mr+input*mr+row%mr]
}

func TestPackWeights(t *testing.T) {
	const numLayers, numDirections, numInputs, numGates, numOutputs = 2, 2, 5, 3, 4
	g, err := NewGoto("mr=4,mc=8")
	require.NoError(t, err)
	params, _ := g.Params(dtypes.Float32)
	weights := shapes.Make(dtypes.Float32, shapes.LDIGO, numLayers, numDirections, numInputs, numGates, numOutputs)
	src := make([]float32, weights.Size())
	for ii := range src {
		src[ii] = float32(ii + 1)
	}

	desc := &shapes.PackedDesc{Format: shapes.LDIGOPacked, N: 1, Parts: []int{2, 1}}
	for _, gates := range desc.Parts {
		size, err := g.PackedSize(dtypes.Float32, gates*numOutputs, 1, numInputs)
		require.NoError(t, err)
		desc.PartPackSize = append(desc.PartPackSize, size)
	}
	total := PackedPartOffset(desc, numDirections, numLayers, 0, 0)
	dst := make([]float32, total/4)

	for _, parallelism := range []int{0, 3} {
		clear(dst)
		require.NoError(t, PackWeights(workerspool.NewWithParallelism(parallelism), params, weights, src, desc, dst))
		for l := range numLayers {
			for d := range numDirections {
				for i := range numInputs {
					for gate := range numGates {
						for o := range numOutputs {
							want := src[l*weights.Stride(0)+d*weights.Stride(1)+i*weights.Stride(2)+gate*weights.Stride(3)+o]
							got := unpackLDIGO(dst, desc, numDirections, numOutputs, 4, params.LHSL1KernelRows, l, d, i, gate, o)
							require.Equalf(t, want, got, "l=%d, d=%d, i=%d, g=%d, o=%d", l, d, i, gate, o)
						}
					}
				}
			}
		}
	}

	// Padded gates (stride 8 for 4 outputs) take the gather path and must produce the same packing.
	paddedStrides := []int{2 * 5 * 24, 5 * 24, 24, 8, 1}
	padded := shapes.MakeWithStrides(dtypes.Float32, shapes.LDIGO,
		[]int{numLayers, numDirections, numInputs, numGates, numOutputs}, paddedStrides)
	paddedSrc := make([]float32, numLayers*paddedStrides[0])
	for l := range numLayers {
		for d := range numDirections {
			for i := range numInputs {
				for gate := range numGates {
					for o := range numOutputs {
						paddedSrc[l*paddedStrides[0]+d*paddedStrides[1]+i*paddedStrides[2]+gate*paddedStrides[3]+o] =
							src[l*weights.Stride(0)+d*weights.Stride(1)+i*weights.Stride(2)+gate*weights.Stride(3)+o]
					}
				}
			}
		}
	}
	paddedDst := make([]float32, len(dst))
	require.NoError(t, PackWeights(workerspool.New(), params, padded, paddedSrc, desc, paddedDst))
	if diff := cmp.Diff(dst, paddedDst); diff != "" {
		t.Errorf("packing of padded weights differs (-dense +padded):\n%s", diff)
	}

	// Errors.
	badDesc := desc.Clone()
	badDesc.Parts = []int{1, 1}
	require.Error(t, PackWeights(workerspool.New(), params, weights, src, badDesc, dst))
	require.Error(t, PackWeights(workerspool.New(), params, weights, src, desc, dst[:3]))
	anyLayout := shapes.Make(dtypes.Float32, shapes.Any, numLayers, numDirections, numInputs, numGates, numOutputs)
	require.Error(t, PackWeights(workerspool.New(), params, anyLayout, src, desc, dst))
}

func TestPackWeightsBFloat16(t *testing.T) {
	weights := shapes.Make(dtypes.BFloat16, shapes.LDGOI, 1, 1, 3, 1, 4)
	src := make([]bfloat16.BFloat16, weights.Size())
	for ii := range src {
		src[ii] = bfloat16.FromFloat32(float32(ii))
	}
	g, err := NewGoto("")
	require.NoError(t, err)
	params, _ := g.Params(dtypes.BFloat16)
	// Backward packing: m = inputs (3), padded to Mr=4, k = gates*outputs (4).
	desc := &shapes.PackedDesc{Format: shapes.LDGOIPacked, N: 1, Parts: []int{1}, PartPackSize: []int{4 * 4 * 2}}
	dst := make([]bfloat16.BFloat16, 16)
	require.NoError(t, PackWeights(workerspool.New(), params, weights, src, desc, dst))
	// LDGOI dense: element (i, o) at o*3 + i. Packed: [k=o][mr=i].
	for o := range 4 {
		for i := range 4 {
			want := float32(0)
			if i < 3 {
				want = float32(o*3 + i)
			}
			assert.Equalf(t, want, dst[o*4+i].Float32(), "i=%d, o=%d", i, o)
		}
	}
}
