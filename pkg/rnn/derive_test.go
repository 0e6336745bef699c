// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rnn

import (
	"fmt"
	"math"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/rnnplan/pkg/core/shapes"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAlignment has no aliasing period and aligns regions to 64 bytes: all regions of float32
// configurations are multiples of 64 bytes, so there is no padding between them.
var testAlignment = Alignment{VectorBytes: 64, RegionBytes: 64}

type testDims struct {
	L, T, N, SLC, DIC int
}

// f32Tensors returns a consistent set of float32 tensors for the RNN, with the given weights layout.
func f32Tensors(desc Desc, dims testDims, weightsLayout shapes.Layout) Tensors {
	numGates, numDirs, numStates := desc.Cell.NumGates(), desc.Direction.NumDirections(), desc.Cell.NumStates()
	dlc := dims.DIC
	if desc.Direction == BidirectionalConcat {
		dlc *= 2
	}
	numBias := numGates
	if desc.Cell == GRULinearBeforeReset {
		numBias++
	}
	f32 := dtypes.Float32
	t := Tensors{
		SrcLayer:     shapes.Make(f32, shapes.TNC, dims.T, dims.N, dims.SLC),
		SrcIter:      shapes.Make(f32, shapes.LDSNC, dims.L, numDirs, numStates, dims.N, dims.DIC),
		WeightsLayer: shapes.Make(f32, weightsLayout, dims.L, numDirs, dims.SLC, numGates, dims.DIC),
		WeightsIter:  shapes.Make(f32, weightsLayout, dims.L, numDirs, dims.DIC, numGates, dims.DIC),
		Bias:         shapes.Make(f32, shapes.LDGO, dims.L, numDirs, numBias, dims.DIC),
		DstLayer:     shapes.Make(f32, shapes.TNC, dims.T, dims.N, dlc),
		DstIter:      shapes.Make(f32, shapes.LDSNC, dims.L, numDirs, numStates, dims.N, dims.DIC),
	}
	if desc.Prop == Backward {
		t.DiffWeightsLayer = shapes.Make(f32, shapes.LDIGO, dims.L, numDirs, dims.SLC, numGates, dims.DIC)
		t.DiffWeightsIter = shapes.Make(f32, shapes.LDIGO, dims.L, numDirs, dims.DIC, numGates, dims.DIC)
	}
	return t
}

// int8Tensors returns the tensors of a u8u8u8f32 quantized RNN.
func int8Tensors(desc Desc, dims testDims) Tensors {
	t := f32Tensors(desc, dims, shapes.Any)
	t.SrcLayer.DType = dtypes.Uint8
	t.SrcIter.DType = dtypes.Uint8
	t.DstIter.DType = dtypes.Uint8
	t.WeightsLayer.DType = dtypes.Int8
	t.WeightsIter.DType = dtypes.Int8
	return t
}

func TestNewConfInference(t *testing.T) {
	// Single layer, single direction, inference, float32, batch 1.
	desc := Desc{Cell: VanillaLSTM, Prop: ForwardInference, Direction: LeftToRight}
	conf, err := NewConf(desc, f32Tensors(desc, testDims{L: 1, T: 3, N: 1, SLC: 20, DIC: 20}, shapes.Any),
		DefaultOptions(testAlignment))
	require.NoError(t, err)

	assert.True(t, conf.IsFwd)
	assert.False(t, conf.IsTraining)
	assert.False(t, conf.UseWorkspace)
	assert.Equal(t, AllF32, conf.DTConf)
	assert.Equal(t, 2, conf.NStates)
	assert.Equal(t, 4, conf.NBias)
	assert.Equal(t, 80, conf.GatesLD)
	assert.Equal(t, 80, conf.GatesWsLD)
	assert.Equal(t, 32, conf.StatesWsLD)
	assert.True(t, conf.MergeGemmLayer)
	assert.False(t, conf.MergeGemmIter)
	assert.Equal(t, shapes.LDIGO, conf.WeightsLayerLayout)
	assert.Equal(t, 80, conf.WeightsLayerLD)
	assert.Equal(t, 20, conf.WeightsLayerNLD)
	assert.False(t, conf.WeightsLayerIsPacked)
	assert.False(t, conf.CopyBias)

	assert.Equal(t, 960, conf.RegionSizes[GatesRegion])
	assert.Equal(t, 512, conf.RegionSizes[StatesRegion])
	assert.Equal(t, 512, conf.RegionSizes[CStatesRegion])
	for _, kind := range []RegionKind{DiffStatesRegion, DiffLayerWeightsRegion, DiffIterWeightsRegion} {
		assert.Zerof(t, conf.RegionSizes[kind], "region %s", kind)
	}

	plan := PlanOffsets(conf)
	require.NoError(t, plan.Validate())
	assert.Equal(t, 0, plan.WorkspaceSize)
	assert.Equal(t, 960+512+512, plan.ScratchpadSize)
	assert.Equal(t, Region{Kind: StatesRegion, Buffer: Scratchpad, Offset: 960, Size: 512}, plan.Region(StatesRegion))
	assert.Equal(t, 1472, plan.Region(CStatesRegion).Offset)
	for _, r := range plan.Regions {
		assert.Equal(t, Scratchpad, r.Buffer)
	}

	scratchpad, workspace := ScratchpadAndWorkspaceSizes(conf)
	assert.Equal(t, plan.ScratchpadSize, scratchpad)
	assert.Equal(t, 0, workspace)

	expected := conf.ExpectedWeightsDesc(false)
	assert.True(t, expected.Equal(shapes.Make(dtypes.Float32, shapes.LDIGO, 1, 1, 20, 4, 20)), "got %s", expected)
}

func TestNewConfTrainingWorkspace(t *testing.T) {
	// 4 layers, bidirectional concat, training, float32.
	desc := Desc{Cell: VanillaGRU, Prop: Backward, Direction: BidirectionalConcat}
	dims := testDims{L: 4, T: 5, N: 3, SLC: 16, DIC: 16}
	tensors := f32Tensors(desc, dims, shapes.Any)
	conf, err := NewConf(desc, tensors, DefaultOptions(testAlignment))
	require.NoError(t, err)
	require.True(t, conf.UseWorkspace)
	assert.Equal(t, 32, conf.DLC)
	assert.Equal(t, shapes.LDGOI, conf.WeightsLayerLayout)
	assert.Equal(t, 16, conf.WeightsLayerLD)
	assert.Equal(t, 48, conf.WeightsLayerNLD)
	assert.True(t, conf.MergeGemmLayer)
	assert.False(t, conf.MergeGemmIter)
	assert.Equal(t, 48, conf.DiffWeightsIterWsLD)
	assert.False(t, conf.CopyDiffWeightsLayer)
	assert.False(t, conf.CopyDiffWeightsIter)

	// Sizes computed from the structural sizes only.
	const numDirs, numGates, numStates = 2, 3, 1
	gatesLD := testAlignment.GoodLeadingDim(numGates*dims.DIC, 4)
	statesLD := testAlignment.GoodLeadingDim(dims.DIC, 4)
	gates := dims.L * dims.T * numDirs * dims.N * gatesLD * 4
	states := dims.L * (dims.T + 1) * numDirs * dims.N * statesLD * 4
	diffStates := (numStates + 1) * (dims.T + 1) * dims.N * statesLD * 4

	plan := PlanOffsets(conf)
	require.NoError(t, plan.Validate())
	assert.Equal(t, gates+states+diffStates, plan.WorkspaceSize)
	assert.Equal(t, 34560, plan.WorkspaceSize)
	assert.Equal(t, 0, plan.ScratchpadSize)
	for _, kind := range []RegionKind{GatesRegion, StatesRegion, DiffStatesRegion} {
		assert.Equalf(t, Workspace, plan.Region(kind).Buffer, "region %s", kind)
	}
	// Diff weights in the workspace layout are accumulated in place.
	for _, kind := range []RegionKind{DiffLayerWeightsRegion, DiffIterWeightsRegion} {
		assert.Zerof(t, plan.Region(kind).Size, "region %s", kind)
	}

	// With a coarser region alignment, each region is padded.
	alignment := testAlignment
	alignment.RegionBytes = 4096
	conf4K, err := NewConf(desc, tensors, DefaultOptions(alignment))
	require.NoError(t, err)
	plan4K := PlanOffsets(conf4K)
	require.NoError(t, plan4K.Validate())
	padded := 0
	for _, size := range []int{gates, states, diffStates} {
		padded += RoundUp(size, 4096)
	}
	assert.Equal(t, padded, plan4K.WorkspaceSize)
	assert.Equal(t, 40960, plan4K.WorkspaceSize)
	for _, r := range plan4K.Regions {
		assert.Zerof(t, r.Offset%4096, "region %s", r)
	}

	// Diff weights with padded rows are accumulated in the scratchpad and copied back.
	padded5D := func(ld int) shapes.Shape {
		dims5 := []int{dims.L, numDirs, dims.DIC, numGates, dims.DIC}
		strides := []int{numDirs * dims.DIC * ld, dims.DIC * ld, ld, dims.DIC, 1}
		return shapes.MakeWithStrides(dtypes.Float32, shapes.LDIGO, dims5, strides)
	}
	copied := tensors
	copied.DiffWeightsLayer = padded5D(64)
	copied.DiffWeightsIter = padded5D(64)
	confCopied, err := NewConf(desc, copied, DefaultOptions(testAlignment))
	require.NoError(t, err)
	assert.True(t, confCopied.CopyDiffWeightsLayer)
	assert.True(t, confCopied.CopyDiffWeightsIter)
	assert.Equal(t, 64, confCopied.DiffWeightsLayerLD)
	planCopied := PlanOffsets(confCopied)
	require.NoError(t, planCopied.Validate())
	diffWeights := dims.L * numDirs * dims.DIC * gatesLD * 4
	assert.Equal(t, plan.WorkspaceSize, planCopied.WorkspaceSize)
	assert.Equal(t, 2*diffWeights, planCopied.ScratchpadSize)
	for _, kind := range []RegionKind{DiffLayerWeightsRegion, DiffIterWeightsRegion} {
		assert.Equalf(t, Scratchpad, planCopied.Region(kind).Buffer, "region %s", kind)
		assert.Equalf(t, diffWeights, planCopied.Region(kind).Size, "region %s", kind)
	}

	// The forward training pass fills the same workspace the backward pass reads.
	fwdDesc := desc
	fwdDesc.Prop = ForwardTraining
	fwdConf, err := NewConf(fwdDesc, f32Tensors(fwdDesc, dims, shapes.Any), DefaultOptions(testAlignment))
	require.NoError(t, err)
	assert.True(t, fwdConf.IsTraining)
	assert.Equal(t, diffStates, fwdConf.RegionSizes[DiffStatesRegion])
	fwdPlan := PlanOffsets(fwdConf)
	require.NoError(t, fwdPlan.Validate())
	assert.Equal(t, plan.WorkspaceSize, fwdPlan.WorkspaceSize)
	for _, kind := range []RegionKind{GatesRegion, StatesRegion, CStatesRegion, DiffStatesRegion} {
		assert.Equalf(t, plan.Region(kind), fwdPlan.Region(kind), "region %s", kind)
	}
}

func TestTrainingWorkspacesMatch(t *testing.T) {
	dims := testDims{L: 4, T: 5, N: 3, SLC: 16, DIC: 16}
	for _, cell := range []CellKind{VanillaRNN, VanillaLSTM, VanillaGRU, GRULinearBeforeReset} {
		for _, dir := range []Direction{LeftToRight, BidirectionalConcat, BidirectionalSum} {
			fwd := Desc{Cell: cell, Prop: ForwardTraining, Direction: dir}
			bwd := Desc{Cell: cell, Prop: Backward, Direction: dir}
			fwdConf, err := NewConf(fwd, f32Tensors(fwd, dims, shapes.Any), DefaultOptions(testAlignment))
			require.NoError(t, err)
			bwdConf, err := NewConf(bwd, f32Tensors(bwd, dims, shapes.Any), DefaultOptions(testAlignment))
			require.NoError(t, err)
			require.Positivef(t, fwdConf.RegionSizes[DiffStatesRegion], "%s/%s", cell, dir)
			_, fwdWorkspace := ScratchpadAndWorkspaceSizes(fwdConf)
			_, bwdWorkspace := ScratchpadAndWorkspaceSizes(bwdConf)
			require.Equalf(t, bwdWorkspace, fwdWorkspace, "%s/%s", cell, dir)
		}
	}
}

func TestBidirectionalOutputChannels(t *testing.T) {
	dims := testDims{L: 1, T: 2, N: 2, SLC: 6, DIC: 4}
	for _, tc := range []struct {
		dir   Direction
		dlc   int
		valid bool
	}{
		{BidirectionalConcat, 8, true},
		{BidirectionalConcat, 4, false},
		{BidirectionalConcat, 12, false},
		{BidirectionalSum, 4, true},
		{BidirectionalSum, 8, false},
		{LeftToRight, 4, true},
		{RightToLeft, 8, false},
	} {
		t.Run(fmt.Sprintf("%s-dlc=%d", tc.dir, tc.dlc), func(t *testing.T) {
			desc := Desc{Cell: VanillaRNN, Prop: ForwardInference, Direction: tc.dir}
			tensors := f32Tensors(desc, dims, shapes.LDIGO)
			tensors.DstLayer = shapes.Make(dtypes.Float32, shapes.TNC, dims.T, dims.N, tc.dlc)
			conf, err := NewConf(desc, tensors, DefaultOptions(testAlignment))
			if tc.valid {
				require.NoError(t, err)
				assert.Equal(t, tc.dlc, conf.DLC)
				return
			}
			require.Error(t, err)
			assert.Truef(t, errors.Is(err, ErrInvalidShape), "got %v", err)
		})
	}
}

func TestNewConfErrors(t *testing.T) {
	dims := testDims{L: 1, T: 2, N: 2, SLC: 8, DIC: 8}
	lstm := Desc{Cell: VanillaLSTM, Prop: ForwardInference, Direction: LeftToRight}
	f32 := dtypes.Float32
	for _, tc := range []struct {
		name    string
		desc    Desc
		tensors func() Tensors
		opts    func(Options) Options
		want    error
	}{
		{"invalid cell", Desc{Cell: CellKind(7)}, func() Tensors { return f32Tensors(lstm, dims, shapes.Any) }, nil, ErrUnsupported},
		{"gates mismatch", Desc{Cell: VanillaGRU}, func() Tensors { return f32Tensors(lstm, dims, shapes.Any) }, nil, ErrInvalidShape},
		{"directions mismatch", Desc{Cell: VanillaLSTM, Direction: BidirectionalSum},
			func() Tensors { return f32Tensors(lstm, dims, shapes.Any) }, nil, ErrInvalidShape},
		{"missing weights", lstm, func() Tensors {
			tensors := f32Tensors(lstm, dims, shapes.Any)
			tensors.WeightsIter = shapes.Shape{}
			return tensors
		}, nil, ErrInvalidShape},
		{"sic differs from dic", lstm, func() Tensors {
			tensors := f32Tensors(lstm, dims, shapes.Any)
			tensors.WeightsIter = shapes.Make(f32, shapes.LDIGO, 1, 1, 9, 4, 8)
			return tensors
		}, nil, ErrInvalidShape},
		{"multi-layer slc differs from dic", lstm, func() Tensors {
			return f32Tensors(lstm, testDims{L: 2, T: 2, N: 2, SLC: 10, DIC: 8}, shapes.Any)
		}, nil, ErrInvalidShape},
		{"src_layer channels", lstm, func() Tensors {
			tensors := f32Tensors(lstm, dims, shapes.Any)
			tensors.SrcLayer = shapes.Make(f32, shapes.TNC, 2, 2, 9)
			return tensors
		}, nil, ErrInvalidShape},
		{"dst_layer batch", lstm, func() Tensors {
			tensors := f32Tensors(lstm, dims, shapes.Any)
			tensors.DstLayer = shapes.Make(f32, shapes.TNC, 2, 3, 8)
			return tensors
		}, nil, ErrInvalidShape},
		{"bias terms", lstm, func() Tensors {
			tensors := f32Tensors(lstm, dims, shapes.Any)
			tensors.Bias = shapes.Make(f32, shapes.LDGO, 1, 1, 5, 8)
			return tensors
		}, nil, ErrInvalidShape},
		{"src_iter layout", lstm, func() Tensors {
			tensors := f32Tensors(lstm, dims, shapes.Any)
			tensors.SrcIter = shapes.Make(f32, shapes.LDGOI, 1, 1, 2, 2, 8)
			return tensors
		}, nil, ErrInvalidShape},
		{"backward without diff weights", Desc{Cell: VanillaLSTM, Prop: Backward},
			func() Tensors { return f32Tensors(lstm, dims, shapes.Any) }, nil, ErrInvalidShape},
		{"forward with diff weights", lstm, func() Tensors {
			return f32Tensors(Desc{Cell: VanillaLSTM, Prop: Backward}, dims, shapes.Any)
		}, nil, ErrInvalidShape},
		{"padded gates", lstm, func() Tensors {
			tensors := f32Tensors(lstm, dims, shapes.Any)
			tensors.WeightsLayer = shapes.MakeWithStrides(f32, shapes.LDIGO, []int{1, 1, 8, 4, 8}, []int{8 * 64, 8 * 64, 64, 16, 1})
			return tensors
		}, nil, ErrInvalidShape},
		{"leading dimension too small", lstm, func() Tensors {
			tensors := f32Tensors(lstm, dims, shapes.Any)
			tensors.WeightsLayer = shapes.MakeWithStrides(f32, shapes.LDIGO, []int{1, 1, 8, 4, 8}, []int{8 * 16, 8 * 16, 16, 8, 1})
			return tensors
		}, nil, ErrInvalidShape},
		{"float64", lstm, func() Tensors {
			tensors := f32Tensors(lstm, dims, shapes.Any)
			tensors.SrcLayer.DType = dtypes.Float64
			return tensors
		}, nil, ErrUnsupported},
		{"int8 gru", Desc{Cell: VanillaGRU}, func() Tensors { return int8Tensors(Desc{Cell: VanillaGRU}, dims) },
			func(o Options) Options { return o.WithPacker(newTestGoto(t)) }, ErrUnsupported},
		{"int8 training", Desc{Cell: VanillaLSTM, Prop: ForwardTraining}, func() Tensors { return int8Tensors(lstm, dims) },
			func(o Options) Options { return o.WithPacker(newTestGoto(t)) }, ErrUnsupported},
		{"int8 without packer", lstm, func() Tensors { return int8Tensors(lstm, dims) }, nil, ErrUnsupported},
		{"int8 never packed", lstm, func() Tensors { return int8Tensors(lstm, dims) },
			func(o Options) Options { return o.WithPacker(newTestGoto(t)).WithPacking(PackNever) }, ErrUnsupported},
		{"int8 unpackable", lstm, func() Tensors { return int8Tensors(lstm, dims) },
			func(o Options) Options { return o.WithPacker(rejectingPacker{}) }, ErrUnsupported},
		{"packing without packer", lstm, func() Tensors { return f32Tensors(lstm, dims, shapes.Any) },
			func(o Options) Options { return o.WithPacking(PackAlways) }, ErrUnsupported},
		{"address limit", lstm, func() Tensors { return f32Tensors(lstm, dims, shapes.Any) },
			func(o Options) Options { return o.WithAddressLimit(100) }, ErrResourceLimit},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions(testAlignment)
			if tc.opts != nil {
				opts = tc.opts(opts)
			}
			_, err := NewConf(tc.desc, tc.tensors(), opts)
			require.Error(t, err)
			assert.Truef(t, errors.Is(err, tc.want), "expected %v, got %+v", tc.want, err)
		})
	}

	_, err := NewConf(lstm, f32Tensors(lstm, dims, shapes.Any), DefaultOptions(Alignment{}))
	require.Error(t, err)
}

func TestNewConfDeterministic(t *testing.T) {
	dims := testDims{L: 2, T: 3, N: 2, SLC: 6, DIC: 6}
	alignments := []Alignment{
		testAlignment,
		{VectorBytes: 64, AliasingPeriod: 1024, RegionBytes: 4096},
		{VectorBytes: 32, AliasingPeriod: 64, RegionBytes: 128},
		{VectorBytes: 16, RegionBytes: 16},
	}
	for _, cell := range []CellKind{VanillaRNN, VanillaLSTM, VanillaGRU, GRULinearBeforeReset} {
		for _, prop := range []PropKind{ForwardInference, ForwardTraining, Backward} {
			for _, dir := range []Direction{LeftToRight, RightToLeft, BidirectionalConcat, BidirectionalSum} {
				for _, alignment := range alignments {
					desc := Desc{Cell: cell, Prop: prop, Direction: dir}
					name := fmt.Sprintf("%s/%s/%s/%+v", cell, prop, dir, alignment)
					tensors := f32Tensors(desc, dims, shapes.Any)
					opts := DefaultOptions(alignment).WithGEMMBlockElems(64)
					conf, err := NewConf(desc, tensors, opts)
					require.NoError(t, err, name)
					conf2, err := NewConf(desc, tensors, opts)
					require.NoError(t, err, name)
					if diff := cmp.Diff(conf, conf2); diff != "" {
						t.Fatalf("%s: configurations differ:\n%s", name, diff)
					}

					plan := PlanOffsets(conf)
					require.NoError(t, plan.Validate(), name)
					require.Equal(t, plan, PlanOffsets(conf2), name)
					require.Equal(t, plan, PlanOffsets(conf), name)
					for _, r := range plan.Regions {
						require.Zerof(t, r.Offset%alignment.RegionBytes, "%s: region %s", name, r)
						require.LessOrEqualf(t, r.End(), plan.BufferSize(r.Buffer), "%s: region %s", name, r)
						wantBuffer := Scratchpad
						if conf.UseWorkspace && r.Kind.IsPersistent() {
							wantBuffer = Workspace
						}
						require.Equalf(t, wantBuffer, r.Buffer, "%s: region %s", name, r)
					}
					require.Equal(t, !conf.IsTraining, plan.Region(DiffStatesRegion).Size == 0, name)
					require.Equal(t, cell == VanillaLSTM, plan.Region(CStatesRegion).Size > 0, name)
					require.Equal(t, cell == GRULinearBeforeReset, plan.Region(GridScratchRegion).Size > 0, name)
					require.Equal(t, !conf.IsTraining, plan.WorkspaceSize == 0, name)
					for _, parts := range []WeightParts{conf.LayerParts, conf.IterParts} {
						require.Equal(t, conf.NGates, parts.TotalGates(), name)
					}
				}
			}
		}
	}
}

func TestAddressLimit(t *testing.T) {
	desc := Desc{Cell: VanillaRNN, Prop: ForwardInference, Direction: LeftToRight}
	tensors := f32Tensors(desc, testDims{L: 1, T: 1, N: 1, SLC: 16, DIC: 16}, shapes.Any)
	for _, tc := range []struct {
		regionBytes, total int
	}{
		{64, 64 + 128},      // gates and states, no padding.
		{4096, 4096 + 4096}, // Both regions padded to 4096 bytes.
	} {
		alignment := testAlignment
		alignment.RegionBytes = tc.regionBytes
		conf, err := NewConf(desc, tensors, DefaultOptions(alignment).WithAddressLimit(tc.total))
		require.NoErrorf(t, err, "limit equal to the total of %d bytes", tc.total)
		scratchpad, _ := ScratchpadAndWorkspaceSizes(conf)
		assert.Equal(t, tc.total, scratchpad)

		_, err = NewConf(desc, tensors, DefaultOptions(alignment).WithAddressLimit(tc.total-1))
		require.Errorf(t, err, "limit of %d bytes", tc.total-1)
		assert.True(t, errors.Is(err, ErrResourceLimit), "got %v", err)
	}
}

func TestRoundUpWithin(t *testing.T) {
	for _, tc := range []struct {
		x, alignment, limit, want int
		ok                        bool
	}{
		{0, 64, 0, 0, true},
		{1, 64, 64, 64, true},
		{1, 64, 63, 0, false},
		{64, 64, 64, 64, true},
		{65, 64, 100, 0, false},
		{math.MaxInt - 10, 64, math.MaxInt, 0, false},
		{math.MaxInt, 1, math.MaxInt, math.MaxInt, true},
	} {
		got, ok := roundUpWithin(tc.x, tc.alignment, tc.limit)
		assert.Equalf(t, tc.ok, ok, "roundUpWithin(%d, %d, %d)", tc.x, tc.alignment, tc.limit)
		if tc.ok {
			assert.Equal(t, tc.want, got)
		}
	}
}
