// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rnn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundUp(t *testing.T) {
	assert.Equal(t, 0, RoundUp(0, 64))
	assert.Equal(t, 64, RoundUp(1, 64))
	assert.Equal(t, 64, RoundUp(64, 64))
	assert.Equal(t, uint32(130), RoundUp(uint32(129), uint32(10)))
}

func TestAlignmentValidate(t *testing.T) {
	require.NoError(t, Alignment{VectorBytes: 64, RegionBytes: 4096}.Validate())
	require.NoError(t, Alignment{VectorBytes: 64, AliasingPeriod: 256, RegionBytes: 64}.Validate())
	require.Error(t, Alignment{}.Validate())
	require.Error(t, Alignment{VectorBytes: 64}.Validate())
	require.Error(t, Alignment{VectorBytes: 64, AliasingPeriod: -1, RegionBytes: 64}.Validate())
	require.Error(t, Alignment{VectorBytes: 64, AliasingPeriod: 64, RegionBytes: 64}.Validate())
}

func TestGoodLeadingDim(t *testing.T) {
	a := Alignment{VectorBytes: 64, AliasingPeriod: 256, RegionBytes: 64}
	assert.Equal(t, 16, a.GoodLeadingDim(1, 4))
	assert.Equal(t, 80, a.GoodLeadingDim(80, 4))
	assert.Equal(t, 96, a.GoodLeadingDim(81, 4))
	assert.Equal(t, 64, a.GoodLeadingDim(20, 1))
	// Multiple of the aliasing period: one more step.
	assert.Equal(t, 272, a.GoodLeadingDim(256, 4))
	assert.Equal(t, 272, a.GoodLeadingDim(250, 4))
	assert.Equal(t, 576, a.GoodLeadingDim(512, 1))

	for _, a := range []Alignment{
		{VectorBytes: 64, RegionBytes: 64},
		{VectorBytes: 64, AliasingPeriod: 256, RegionBytes: 64},
		{VectorBytes: 32, AliasingPeriod: 48, RegionBytes: 128},
		{VectorBytes: 16, AliasingPeriod: 1024, RegionBytes: 16},
		{VectorBytes: 1, RegionBytes: 1},
	} {
		for _, sizeofDT := range []int{1, 2, 4, 8} {
			step := max(1, a.VectorBytes/sizeofDT)
			for dim := 1; dim <= 2100; dim++ {
				ld := a.GoodLeadingDim(dim, sizeofDT)
				require.GreaterOrEqualf(t, ld, dim, "alignment=%+v, sizeof=%d", a, sizeofDT)
				require.Zerof(t, ld%step, "alignment=%+v, sizeof=%d, dim=%d: ld=%d", a, sizeofDT, dim, ld)
				if a.AliasingPeriod > 0 {
					require.NotZerof(t, ld%a.AliasingPeriod, "alignment=%+v, sizeof=%d, dim=%d: ld=%d", a, sizeofDT, dim, ld)
				}
				require.Equalf(t, ld, a.GoodLeadingDim(ld, sizeofDT), "not idempotent: alignment=%+v, sizeof=%d, dim=%d",
					a, sizeofDT, dim)
			}
		}
	}
}
