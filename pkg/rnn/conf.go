// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rnn

import (
	"fmt"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/rnnplan/pkg/core/shapes"
)

// MaxParts is the maximum number of parts a weights matrix can be split into.
const MaxParts = 4

// WeightParts is how a weights matrix of one (layer, direction) is split in row ranges ("parts"),
// each multiplied by a separate GEMM call. Parts are counted in whole gates: part p covers
// Gates[p]*DIC rows of the matrix.
type WeightParts struct {
	NParts int
	Gates  [MaxParts]int

	// PackSize is the packed size in bytes of each part, for one (layer, direction). Zero if not packed.
	PackSize [MaxParts]int
}

// Slice returns the number of gates of each part.
func (p WeightParts) Slice() []int {
	return append([]int(nil), p.Gates[:p.NParts]...)
}

// TotalGates returns the sum of the gates of all parts.
func (p WeightParts) TotalGates() int {
	total := 0
	for _, g := range p.Gates[:p.NParts] {
		total += g
	}
	return total
}

// FirstGate returns the index of the first gate of the part.
func (p WeightParts) FirstGate(part int) int {
	first := 0
	for _, g := range p.Gates[:part] {
		first += g
	}
	return first
}

// String implements fmt.Stringer.
func (p WeightParts) String() string {
	return fmt.Sprintf("%v", p.Gates[:p.NParts])
}

// Conf is the execution configuration of an RNN primitive, derived by NewConf.
//
// It's a plain value aggregate: it must not be changed after NewConf returns, and it can be
// shared read-only by any number of goroutines.
type Conf struct {
	Cell      CellKind
	Prop      PropKind
	Direction Direction
	DTConf    DataTypeConf

	IsFwd, IsTraining, IsLBR bool

	// UseWorkspace is set when the persistent regions (gates, states) must be kept in the workspace
	// buffer, to be read by a later backward pass.
	UseWorkspace bool

	// Structural sizes.
	NLayer, NIter, NDir, NGates, NStates, MB int

	// Channels: input layer, input iteration, output per direction and output layer.
	SLC, SIC, DIC, DLC int

	// NBias is the number of bias terms per output channel: NGates, plus one for GRULinearBeforeReset.
	NBias int

	// DTypes of the elements of the gates and states buffers, and of the weights.
	GatesDType, StatesDType, WeightsDType dtypes.DType

	// Leading (aligned row stride) and non-leading (number of rows) dimensions.
	GatesLD, GatesNLD, GatesWsLD int
	StatesNLD, StatesWsLD        int

	WeightsLayerLD, WeightsLayerNLD int
	WeightsIterLD, WeightsIterNLD   int

	DiffWeightsLayerLD, DiffWeightsLayerNLD, DiffWeightsLayerWsLD int
	DiffWeightsIterLD, DiffWeightsIterNLD, DiffWeightsIterWsLD    int

	// Resolved layouts of the weights: LDIGO, LDGOI or RNNPacked.
	WeightsLayerLayout, WeightsIterLayout shapes.Layout

	// Merge GEMM calls across timesteps.
	MergeGemmLayer, MergeGemmIter bool

	// Split of the weights matrices.
	LayerParts, IterParts, BiasParts WeightParts

	// WeightsLayerIsPacked and WeightsIterIsPacked are set when the GEMMs use packed weights.
	WeightsLayerIsPacked, WeightsIterIsPacked bool

	// WeightsLayerPacked and WeightsIterPacked describe the packed weights, nil if not packed.
	WeightsLayerPacked, WeightsIterPacked *shapes.PackedDesc

	// LayerPackFallback and IterPackFallback are set (wrapping ErrUnpackable) when packing was
	// requested but the back end rejected it, and the unpacked layout is used instead.
	LayerPackFallback, IterPackFallback error

	// Copy flags: the tensor is copied (and packed, for weights) into the scratchpad before execution.
	CopyWeightsLayer, CopyWeightsIter, CopyBias bool

	// CopyDiffWeights* are set when the user's diff weights have a different layout or leading dimension
	// than DiffWeights*WsLD: they are accumulated in a scratchpad region and copied back at the end of
	// the backward pass. Otherwise they are accumulated in place.
	CopyDiffWeightsLayer, CopyDiffWeightsIter bool

	// RegionSizes holds the size in bytes of every region, see PlanOffsets.
	RegionSizes [NumRegionKinds]int

	// Alignment policy used.
	Alignment Alignment
}

// IsInt8 returns whether the configuration is quantized.
func (c *Conf) IsInt8() bool { return c.DTConf.IsInt8() }

// GemmN returns the number of columns of the layer (isIter=false) or iteration GEMM.
func (c *Conf) GemmN(isIter bool) int {
	merge := c.MergeGemmLayer
	if isIter {
		merge = c.MergeGemmIter
	}
	if merge {
		return c.MB * c.NIter
	}
	return c.MB
}

// GatesCellOffset returns the offset, in elements of GatesDType from the start of the gates region,
// of the [MB, GatesWsLD] gates of the cell (layer, direction, iteration).
func (c *Conf) GatesCellOffset(layer, direction, iter int) int {
	return ((layer*c.NDir+direction)*c.NIter + iter) * c.GatesNLD * c.GatesWsLD
}

// StatesCellOffset returns the offset, in elements from the start of the states (or c-states) region,
// of the [MB, StatesWsLD] states of the cell (layer, direction, iter). iter goes from 0 to NIter
// inclusive: iteration 0 holds the initial states.
func (c *Conf) StatesCellOffset(layer, direction, iter int) int {
	return ((layer*c.NDir+direction)*(c.NIter+1) + iter) * c.StatesNLD * c.StatesWsLD
}

// BiasOffset returns the offset, in elements from the start of the bias region, of the [NBias, DIC]
// bias of the (layer, direction).
func (c *Conf) BiasOffset(layer, direction int) int {
	return (layer*c.NDir + direction) * c.NBias * c.DIC
}

// DiffWeightsLayerOffset returns the offset, in elements from the start of the diff-layer-weights region,
// of the [SLC, DiffWeightsLayerWsLD] matrix of the (layer, direction).
func (c *Conf) DiffWeightsLayerOffset(layer, direction int) int {
	return (layer*c.NDir + direction) * c.SLC * c.DiffWeightsLayerWsLD
}

// DiffWeightsIterOffset returns the offset, in elements from the start of the diff-iter-weights region,
// of the [SIC, DiffWeightsIterWsLD] matrix of the (layer, direction).
func (c *Conf) DiffWeightsIterOffset(layer, direction int) int {
	return (layer*c.NDir + direction) * c.SIC * c.DiffWeightsIterWsLD
}

// String returns a multi-line summary of the configuration.
func (c *Conf) String() string {
	var sb strings.Builder
	w := func(format string, args ...any) { _, _ = fmt.Fprintf(&sb, format+"\n", args...) }
	w("cell=%s, prop=%s, direction=%s, precision=%s", c.Cell, c.Prop, c.Direction, c.DTConf)
	w("layers=%d, iters=%d, directions=%d, gates=%d, states=%d, batch=%d", c.NLayer, c.NIter, c.NDir, c.NGates, c.NStates, c.MB)
	w("slc=%d, sic=%d, dic=%d, dlc=%d, n_bias=%d", c.SLC, c.SIC, c.DIC, c.DLC, c.NBias)
	w("gates: ld=%d, nld=%d, ws_ld=%d; states: nld=%d, ws_ld=%d", c.GatesLD, c.GatesNLD, c.GatesWsLD, c.StatesNLD, c.StatesWsLD)
	w("weights_layer: %s ld=%d nld=%d parts=%s packed=%v copy=%v",
		c.WeightsLayerLayout, c.WeightsLayerLD, c.WeightsLayerNLD, c.LayerParts, c.WeightsLayerIsPacked, c.CopyWeightsLayer)
	w("weights_iter: %s ld=%d nld=%d parts=%s packed=%v copy=%v",
		c.WeightsIterLayout, c.WeightsIterLD, c.WeightsIterNLD, c.IterParts, c.WeightsIterIsPacked, c.CopyWeightsIter)
	if !c.IsFwd {
		w("diff_weights: layer ld=%d ws_ld=%d copy=%v, iter ld=%d ws_ld=%d copy=%v",
			c.DiffWeightsLayerLD, c.DiffWeightsLayerWsLD, c.CopyDiffWeightsLayer,
			c.DiffWeightsIterLD, c.DiffWeightsIterWsLD, c.CopyDiffWeightsIter)
	}
	w("merge_gemm_layer=%v, merge_gemm_iter=%v, copy_bias=%v, use_workspace=%v",
		c.MergeGemmLayer, c.MergeGemmIter, c.CopyBias, c.UseWorkspace)
	return strings.TrimSuffix(sb.String(), "\n")
}
