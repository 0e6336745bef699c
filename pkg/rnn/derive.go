// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rnn

import (
	"math"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/rnnplan/pkg/core/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Desc describes the RNN operation.
type Desc struct {
	Cell      CellKind
	Prop      PropKind
	Direction Direction
}

// Tensors holds the descriptors of the tensors connected to the RNN.
// Optional tensors are left as the zero shapes.Shape{}.
//
// Logical dimensions:
//
//   - SrcLayer, DstLayer: [T, N, SLC] and [T, N, DLC], layout TNC.
//   - SrcIter, DstIter (optional): [L, D, S, N, SIC] and [L, D, S, N, DIC], layout LDSNC.
//   - WeightsLayer, WeightsIter: [L, D, SLC, G, DIC] and [L, D, SIC, G, DIC], layout LDIGO, LDGOI,
//     RNNPacked or Any (to let NewConf choose, see Conf.ExpectedWeightsDesc).
//   - Bias (optional): [L, D, NBias, DIC], layout LDGO.
//   - DiffWeightsLayer, DiffWeightsIter: same as the weights, only for Backward.
type Tensors struct {
	SrcLayer, SrcIter         shapes.Shape
	WeightsLayer, WeightsIter shapes.Shape
	Bias                      shapes.Shape
	DstLayer, DstIter         shapes.Shape
	DiffWeightsLayer          shapes.Shape
	DiffWeightsIter           shapes.Shape
}

// packingMinChannels is the number of channels above which PackAuto packs the weights.
const packingMinChannels = 760

// NewConf derives the execution configuration of the RNN from its tensors.
//
// Errors wrap one of ErrUnsupported, ErrInvalidShape or ErrResourceLimit. A weights tensor that the packing
// back end can't pack is not an error (except for quantized configurations): it's left unpacked,
// and the reason is recorded in Conf.LayerPackFallback or Conf.IterPackFallback.
func NewConf(desc Desc, tensors Tensors, opts Options) (*Conf, error) {
	if err := opts.Alignment.Validate(); err != nil {
		return nil, err
	}
	if opts.AddressLimit <= 0 {
		opts.AddressLimit = math.MaxInt
	}
	if desc.Cell < VanillaRNN || desc.Cell > GRULinearBeforeReset ||
		desc.Prop < ForwardInference || desc.Prop > Backward ||
		desc.Direction < LeftToRight || desc.Direction > BidirectionalSum {
		return nil, errors.Wrapf(ErrUnsupported, "invalid RNN description %+v", desc)
	}
	c := &Conf{
		Cell:      desc.Cell,
		Prop:      desc.Prop,
		Direction: desc.Direction,
		Alignment: opts.Alignment,
	}
	c.IsFwd = desc.Prop != Backward
	c.IsTraining = desc.Prop != ForwardInference
	c.UseWorkspace = c.IsTraining
	c.IsLBR = desc.Cell == GRULinearBeforeReset

	if err := checkRanks(tensors, c.IsFwd); err != nil {
		return nil, err
	}
	var err error
	c.DTConf, err = dataTypeConf(tensors)
	if err != nil {
		return nil, err
	}
	if c.IsInt8() && (c.Cell != VanillaLSTM || c.Prop != ForwardInference) {
		return nil, errors.Wrapf(ErrUnsupported, "precision %s only supported for %s %s, got %s %s",
			c.DTConf, VanillaLSTM, ForwardInference, c.Cell, c.Prop)
	}
	c.WeightsDType = tensors.WeightsLayer.DType
	if c.IsInt8() {
		c.GatesDType, c.StatesDType = dtypes.Int32, dtypes.Uint8
	} else {
		c.GatesDType, c.StatesDType = dtypes.Float32, dtypes.Float32
	}
	if err = c.initDims(tensors); err != nil {
		return nil, err
	}

	// Gates and states buffers.
	c.GatesLD = c.NGates * c.DIC
	c.GatesNLD = c.MB
	c.GatesWsLD = c.Alignment.GoodLeadingDim(c.GatesLD, int(c.GatesDType.Memory()))
	c.StatesNLD = c.MB
	c.StatesWsLD = c.Alignment.GoodLeadingDim(max(c.SLC, c.SIC, c.DIC), int(c.StatesDType.Memory()))

	// Merging GEMMs across timesteps is only possible when they don't depend on the previous timestep's output:
	// always the case for the layer GEMM, and for the iteration GEMM in the backward pass (except for GRUs).
	c.MergeGemmLayer = (c.IsFwd && c.MB < 128) || !c.IsFwd || c.IsInt8()
	c.MergeGemmIter = !(c.IsFwd || c.Cell.IsGRU())

	if err = c.initWeights(tensors.WeightsLayer, opts, false); err != nil {
		return nil, err
	}
	if err = c.initWeights(tensors.WeightsIter, opts, true); err != nil {
		return nil, err
	}
	c.BiasParts.NParts = 1
	c.BiasParts.Gates[0] = c.NBias
	c.CopyBias = c.IsInt8()
	if !c.IsFwd {
		if err = c.initDiffWeights(tensors); err != nil {
			return nil, err
		}
	}

	if err = c.initRegionSizes(opts.AddressLimit); err != nil {
		return nil, err
	}
	if _, err = planOffsets(c, opts.AddressLimit); err != nil {
		return nil, err
	}
	klog.V(1).Infof("RNN configuration:\n%s", c)
	return c, nil
}

// checkRanks checks the presence and rank of every tensor.
func checkRanks(t Tensors, isFwd bool) error {
	for _, tc := range []struct {
		name     string
		s        shapes.Shape
		rank     int
		required bool
	}{
		{"src_layer", t.SrcLayer, 3, true},
		{"src_iter", t.SrcIter, 5, false},
		{"weights_layer", t.WeightsLayer, 5, true},
		{"weights_iter", t.WeightsIter, 5, true},
		{"bias", t.Bias, 4, false},
		{"dst_layer", t.DstLayer, 3, true},
		{"dst_iter", t.DstIter, 5, false},
		{"diff_weights_layer", t.DiffWeightsLayer, 5, !isFwd},
		{"diff_weights_iter", t.DiffWeightsIter, 5, !isFwd},
	} {
		if !tc.s.Ok() {
			if tc.required {
				return errors.Wrapf(ErrInvalidShape, "%s is missing", tc.name)
			}
			continue
		}
		if tc.s.Rank() != tc.rank {
			return errors.Wrapf(ErrInvalidShape, "%s %s must have rank %d", tc.name, tc.s, tc.rank)
		}
	}
	if isFwd && (t.DiffWeightsLayer.Ok() || t.DiffWeightsIter.Ok()) {
		return errors.Wrapf(ErrInvalidShape, "diff weights given for a forward propagation")
	}
	return nil
}

// dataTypeConf classifies the precision of the RNN.
func dataTypeConf(t Tensors) (DataTypeConf, error) {
	isOptional := func(s shapes.Shape, dtype dtypes.DType) bool { return !s.Ok() || s.DType == dtype }
	if t.SrcLayer.DType == dtypes.Float32 && t.WeightsLayer.DType == dtypes.Float32 &&
		t.WeightsIter.DType == dtypes.Float32 && t.DstLayer.DType == dtypes.Float32 &&
		isOptional(t.SrcIter, dtypes.Float32) && isOptional(t.DstIter, dtypes.Float32) &&
		isOptional(t.Bias, dtypes.Float32) {
		return AllF32, nil
	}
	unsupported := errors.Wrapf(ErrUnsupported,
		"precision src_layer=%s, src_iter=%s, weights_layer=%s, weights_iter=%s, dst_layer=%s, dst_iter=%s",
		t.SrcLayer.DType, t.SrcIter.DType, t.WeightsLayer.DType, t.WeightsIter.DType, t.DstLayer.DType, t.DstIter.DType)
	if t.SrcLayer.DType != dtypes.Uint8 || t.WeightsLayer.DType != dtypes.Int8 || t.WeightsIter.DType != dtypes.Int8 ||
		!isOptional(t.Bias, dtypes.Float32) {
		return AllF32, unsupported
	}
	iterDType := dtypes.Uint8
	if t.SrcIter.Ok() {
		iterDType = t.SrcIter.DType
	} else if t.DstIter.Ok() {
		iterDType = t.DstIter.DType
	}
	if (iterDType != dtypes.Uint8 && iterDType != dtypes.Float32) || !isOptional(t.DstIter, iterDType) {
		return AllF32, unsupported
	}
	switch {
	case iterDType == dtypes.Uint8 && t.DstLayer.DType == dtypes.Float32:
		return U8U8U8F32, nil
	case iterDType == dtypes.Uint8 && t.DstLayer.DType == dtypes.Uint8:
		return U8U8U8U8, nil
	case iterDType == dtypes.Float32 && t.DstLayer.DType == dtypes.Float32:
		return F32U8F32F32, nil
	case iterDType == dtypes.Float32 && t.DstLayer.DType == dtypes.Uint8:
		return F32U8F32U8, nil
	}
	return AllF32, unsupported
}

// checkTensor checks the layout and dimensions of an optional tensor.
func checkTensor(name string, s shapes.Shape, layout shapes.Layout, dims ...int) error {
	if s.Ok() && s.Layout != shapes.Any && s.Layout != layout {
		return errors.Wrapf(ErrInvalidShape, "%s %s: layout must be %s", name, s, layout)
	}
	return checkDims(name, s, dims...)
}

// checkDims checks only the dimensions of an optional tensor.
func checkDims(name string, s shapes.Shape, dims ...int) error {
	if !s.Ok() {
		return nil
	}
	for axis, dim := range dims {
		if s.Dim(axis) != dim {
			return errors.Wrapf(ErrInvalidShape, "%s %s: expected dimensions %v", name, s, dims)
		}
	}
	return nil
}

// initDims sets the structural sizes and checks that all tensors agree on them.
func (c *Conf) initDims(t Tensors) error {
	wl, wi := t.WeightsLayer, t.WeightsIter
	c.NLayer, c.NDir, c.SLC, c.NGates, c.DIC = wl.Dim(0), wl.Dim(1), wl.Dim(2), wl.Dim(3), wl.Dim(4)
	c.NIter, c.MB = t.SrcLayer.Dim(0), t.SrcLayer.Dim(1)
	c.SIC = wi.Dim(2)
	c.DLC = t.DstLayer.Dim(2)
	c.NStates = c.Cell.NumStates()
	c.NBias = c.NGates
	if c.IsLBR {
		c.NBias++
	}

	if c.NDir != c.Direction.NumDirections() {
		return errors.Wrapf(ErrInvalidShape, "direction %s requires %d directions, weights %s have %d",
			c.Direction, c.Direction.NumDirections(), wl, c.NDir)
	}
	if c.NGates != c.Cell.NumGates() {
		return errors.Wrapf(ErrInvalidShape, "cell %s has %d gates, weights %s have %d",
			c.Cell, c.Cell.NumGates(), wl, c.NGates)
	}
	wantDLC := c.DIC
	if c.Direction == BidirectionalConcat {
		wantDLC = 2 * c.DIC
	}
	if c.DLC != wantDLC {
		return errors.Wrapf(ErrInvalidShape, "direction %s with %d output channels requires dst_layer with %d channels, got %s",
			c.Direction, c.DIC, wantDLC, t.DstLayer)
	}
	if c.SIC != c.DIC {
		return errors.Wrapf(ErrInvalidShape, "weights_iter input channels (%d) must match the output channels (%d)",
			c.SIC, c.DIC)
	}
	if c.NLayer > 1 && c.SLC != c.DIC {
		return errors.Wrapf(ErrInvalidShape, "with %d layers, the input channels (%d) must match the output channels (%d)",
			c.NLayer, c.SLC, c.DIC)
	}
	for _, check := range []error{
		checkTensor("src_layer", t.SrcLayer, shapes.TNC, c.NIter, c.MB, c.SLC),
		checkTensor("dst_layer", t.DstLayer, shapes.TNC, c.NIter, c.MB, c.DLC),
		checkTensor("src_iter", t.SrcIter, shapes.LDSNC, c.NLayer, c.NDir, c.NStates, c.MB, c.SIC),
		checkTensor("dst_iter", t.DstIter, shapes.LDSNC, c.NLayer, c.NDir, c.NStates, c.MB, c.DIC),
		checkTensor("bias", t.Bias, shapes.LDGO, c.NLayer, c.NDir, c.NBias, c.DIC),
		checkDims("weights_iter", wi, c.NLayer, c.NDir, c.SIC, c.NGates, c.DIC),
		checkDims("diff_weights_layer", t.DiffWeightsLayer, c.NLayer, c.NDir, c.SLC, c.NGates, c.DIC),
		checkDims("diff_weights_iter", t.DiffWeightsIter, c.NLayer, c.NDir, c.SIC, c.NGates, c.DIC),
	} {
		if check != nil {
			return check
		}
	}
	return nil
}

// weightsLeadingDims returns the resolved layout and the leading and non-leading dimensions of a
// dense weights tensor. The layout Any is resolved to anyLayout, with dense strides.
func weightsLeadingDims(name string, w shapes.Shape, anyLayout shapes.Layout) (layout shapes.Layout, ld, nld int, err error) {
	layout, strides := w.Layout, w.Strides
	if layout == shapes.Any {
		layout = anyLayout
		strides = layout.DenseStrides(w.Dimensions)
	}
	if len(strides) != 5 {
		return layout, 0, 0, errors.Wrapf(ErrInvalidShape, "%s %s has no strides", name, w)
	}
	numDirs, numInputs, numGates, numOutputs := w.Dim(1), w.Dim(2), w.Dim(3), w.Dim(4)
	var width int
	switch layout {
	case shapes.LDIGO:
		// Rows are the input channels, each holding all gates of all output channels.
		if strides[4] != 1 || strides[3] != numOutputs || strides[1] != strides[2]*numInputs || strides[0] != strides[1]*numDirs {
			return layout, 0, 0, errors.Wrapf(ErrInvalidShape, "%s %s: strides %v not supported, only the input axis can be padded",
				name, w, strides)
		}
		ld, nld, width = strides[2], numInputs, numGates*numOutputs
	case shapes.LDGOI:
		// Rows are the (gate, output channel) pairs, each holding all input channels.
		if strides[2] != 1 || strides[3] != numOutputs*strides[4] || strides[1] != numGates*strides[3] || strides[0] != strides[1]*numDirs {
			return layout, 0, 0, errors.Wrapf(ErrInvalidShape, "%s %s: strides %v not supported, only the output axis can be padded",
				name, w, strides)
		}
		ld, nld, width = strides[4], numGates*numOutputs, numInputs
	default:
		return layout, 0, 0, errors.Wrapf(ErrInvalidShape, "%s %s: layout must be %s, %s, %s or %s",
			name, w, shapes.LDIGO, shapes.LDGOI, shapes.RNNPacked, shapes.Any)
	}
	if ld < width {
		return layout, 0, 0, errors.Wrapf(ErrInvalidShape, "%s %s: leading dimension %d smaller than the rows (%d)",
			name, w, ld, width)
	}
	return layout, ld, nld, nil
}

// wantsPacking decides whether the weights should be packed.
func (c *Conf) wantsPacking(w shapes.Shape, opts Options, channels int) (bool, error) {
	if c.IsInt8() {
		if opts.Packing == PackNever || opts.Packer == nil {
			return false, errors.Wrapf(ErrUnsupported, "precision %s requires packed weights and a packing back end", c.DTConf)
		}
		return true, nil
	}
	switch opts.Packing {
	case PackNever:
		return false, nil
	case PackAlways:
		if opts.Packer == nil {
			return false, errors.Wrapf(ErrUnsupported, "packing requested with no packing back end")
		}
		return true, nil
	default:
		return opts.Packer != nil && w.Layout == shapes.Any && c.Prop == ForwardInference &&
			channels > packingMinChannels && c.DIC > packingMinChannels, nil
	}
}

// initWeights decides the layout, the packing and the split in parts of the layer or iteration weights.
func (c *Conf) initWeights(w shapes.Shape, opts Options, isIter bool) error {
	what, channels := "weights_layer", c.SLC
	layout, ld, nld := &c.WeightsLayerLayout, &c.WeightsLayerLD, &c.WeightsLayerNLD
	parts, isPacked, packed := &c.LayerParts, &c.WeightsLayerIsPacked, &c.WeightsLayerPacked
	copyWeights, fallback := &c.CopyWeightsLayer, &c.LayerPackFallback
	if isIter {
		what, channels = "weights_iter", c.SIC
		layout, ld, nld = &c.WeightsIterLayout, &c.WeightsIterLD, &c.WeightsIterNLD
		parts, isPacked, packed = &c.IterParts, &c.WeightsIterIsPacked, &c.WeightsIterPacked
		copyWeights, fallback = &c.CopyWeightsIter, &c.IterPackFallback
	}
	if w.DType != c.WeightsDType {
		return errors.Wrapf(ErrUnsupported, "%s dtype %s differs from weights_layer dtype %s", what, w.DType, c.WeightsDType)
	}

	var err error
	if w.Layout == shapes.RNNPacked {
		if *parts, err = adoptPacked(c, w, isIter); err != nil {
			return errors.WithMessage(err, what)
		}
		*layout, *isPacked, *packed = shapes.RNNPacked, true, w.Packed.Clone()
		return nil
	}

	pack, err := c.wantsPacking(w, opts, channels)
	if err != nil {
		return errors.WithMessage(err, what)
	}
	base := baseParts(c.Cell, isIter)
	anyLayout := shapes.LDIGO
	if !c.IsFwd {
		anyLayout = shapes.LDGOI
	}
	if pack {
		if *parts, err = splitParts(base, c.DIC, maxPartRows(c, opts, isIter, true)); err != nil {
			return errors.WithMessage(err, what)
		}
		desc, err := ResolvePackedLayout(opts.Packer, c, isIter)
		switch {
		case err == nil:
			copy(parts.PackSize[:], desc.PartPackSize)
			*layout, *isPacked, *packed = shapes.RNNPacked, true, desc
			if w.Layout != shapes.Any {
				// Given dense: packed into the scratchpad at execution time.
				*copyWeights = true
				if _, *ld, *nld, err = weightsLeadingDims(what, w, anyLayout); err != nil {
					return err
				}
			}
			klog.V(1).Infof("%s packed in %d parts %s, %d bytes", what, parts.NParts, parts, desc.Size)
			return nil
		case !errors.Is(err, ErrUnpackable):
			return err
		case c.IsInt8():
			return errors.Wrapf(ErrUnsupported, "precision %s requires packed weights: %v", c.DTConf, err)
		}
		klog.Warningf("%s can't be packed, falling back to the unpacked layout: %v", what, err)
		*fallback = err
	}

	if *parts, err = splitParts(base, c.DIC, maxPartRows(c, opts, isIter, false)); err != nil {
		return errors.WithMessage(err, what)
	}
	*layout, *ld, *nld, err = weightsLeadingDims(what, w, anyLayout)
	return err
}

// initDiffWeights sets the leading dimensions of the diff weights, as given and in the workspace.
func (c *Conf) initDiffWeights(t Tensors) error {
	for _, dw := range []shapes.Shape{t.DiffWeightsLayer, t.DiffWeightsIter} {
		if dw.DType != dtypes.Float32 {
			return errors.Wrapf(ErrUnsupported, "diff weights %s must be %s", dw, dtypes.Float32)
		}
	}
	wsLD := c.Alignment.GoodLeadingDim(c.NGates*c.DIC, int(dtypes.Float32.Memory()))
	var layout shapes.Layout
	var err error
	layout, c.DiffWeightsLayerLD, c.DiffWeightsLayerNLD, err = weightsLeadingDims("diff_weights_layer", t.DiffWeightsLayer, shapes.LDIGO)
	if err != nil {
		return err
	}
	c.DiffWeightsLayerWsLD = wsLD
	c.CopyDiffWeightsLayer = layout != shapes.LDIGO || c.DiffWeightsLayerLD != wsLD

	layout, c.DiffWeightsIterLD, c.DiffWeightsIterNLD, err = weightsLeadingDims("diff_weights_iter", t.DiffWeightsIter, shapes.LDIGO)
	if err != nil {
		return err
	}
	c.DiffWeightsIterWsLD = wsLD
	c.CopyDiffWeightsIter = layout != shapes.LDIGO || c.DiffWeightsIterLD != wsLD
	return nil
}

// initRegionSizes computes the size in bytes of every region, see PlanOffsets.
func (c *Conf) initRegionSizes(limit int) error {
	gatesSize := int(c.GatesDType.Memory())
	statesSize := int(c.StatesDType.Memory())
	const f32Size = 4
	for _, r := range []struct {
		kind    RegionKind
		present bool
		factors []int
	}{
		{GatesRegion, true, []int{c.NLayer, c.NIter, c.NDir, c.GatesNLD, c.GatesWsLD, gatesSize}},
		{StatesRegion, true, []int{c.NLayer, c.NIter + 1, c.NDir, c.StatesNLD, c.StatesWsLD, statesSize}},
		{CStatesRegion, c.Cell == VanillaLSTM, []int{c.NLayer, c.NIter + 1, c.NDir, c.StatesNLD, c.StatesWsLD, f32Size}},
		{DiffStatesRegion, c.IsTraining, []int{c.NStates + 1, c.NIter + 1, c.StatesNLD, c.StatesWsLD, f32Size}},
		{GridScratchRegion, c.IsLBR, []int{c.NLayer, c.NDir, c.MB, c.DIC, f32Size}},
		{CellScratchRegion, c.IsLBR || c.IsInt8(), []int{c.GatesNLD, c.GatesWsLD, f32Size}},
		{BiasRegion, c.CopyBias, []int{c.NLayer, c.NDir, c.NBias, c.DIC, f32Size}},
		{DiffLayerWeightsRegion, c.CopyDiffWeightsLayer, []int{c.NLayer, c.NDir, c.SLC, c.DiffWeightsLayerWsLD, f32Size}},
		{DiffIterWeightsRegion, c.CopyDiffWeightsIter, []int{c.NLayer, c.NDir, c.SIC, c.DiffWeightsIterWsLD, f32Size}},
	} {
		if !r.present {
			continue
		}
		size, ok := mulChecked(limit, r.factors...)
		if !ok {
			return errors.Wrapf(ErrResourceLimit, "%s region of %v elements exceeds %d bytes", r.kind, r.factors, limit)
		}
		c.RegionSizes[r.kind] = size
	}
	for _, staged := range []struct {
		kind RegionKind
		copy bool
		desc *shapes.PackedDesc
	}{
		{PackedLayerWeightsRegion, c.CopyWeightsLayer, c.WeightsLayerPacked},
		{PackedIterWeightsRegion, c.CopyWeightsIter, c.WeightsIterPacked},
	} {
		if !staged.copy || staged.desc == nil {
			continue
		}
		if staged.desc.Size > limit {
			return errors.Wrapf(ErrResourceLimit, "%s region of %d bytes exceeds %d bytes", staged.kind, staged.desc.Size, limit)
		}
		c.RegionSizes[staged.kind] = staged.desc.Size
	}
	return nil
}
