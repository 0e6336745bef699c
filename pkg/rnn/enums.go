// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rnn

// CellKind is the recurrent cell flavor.
type CellKind int

//go:generate go tool enumer -type=CellKind -transform=snake -values -text -output=gen_cellkind_enumer.go enums.go

const (
	VanillaRNN CellKind = iota
	VanillaLSTM
	VanillaGRU

	// GRULinearBeforeReset applies the linear transform of the recurrent state before the reset gate.
	// It needs one extra bias term.
	GRULinearBeforeReset
)

// NumGates returns the number of gates per cell.
func (c CellKind) NumGates() int {
	switch c {
	case VanillaLSTM:
		return 4
	case VanillaGRU, GRULinearBeforeReset:
		return 3
	default:
		return 1
	}
}

// NumStates returns the number of recurrent states carried: 2 for the LSTM (hidden and cell states).
func (c CellKind) NumStates() int {
	if c == VanillaLSTM {
		return 2
	}
	return 1
}

// IsGRU returns whether it's one of the GRU variants.
func (c CellKind) IsGRU() bool { return c == VanillaGRU || c == GRULinearBeforeReset }

// PropKind is the propagation kind.
type PropKind int

//go:generate go tool enumer -type=PropKind -transform=snake -values -text -output=gen_propkind_enumer.go enums.go

const (
	ForwardInference PropKind = iota
	ForwardTraining
	Backward
)

// Direction is the execution direction.
type Direction int

//go:generate go tool enumer -type=Direction -transform=snake -values -text -output=gen_direction_enumer.go enums.go

const (
	LeftToRight Direction = iota
	RightToLeft

	// BidirectionalConcat concatenates the outputs of both directions: DLC = 2*DIC.
	BidirectionalConcat

	// BidirectionalSum sums the outputs of both directions: DLC = DIC.
	BidirectionalSum
)

// NumDirections returns 2 for the bidirectional variants, 1 otherwise.
func (d Direction) NumDirections() int {
	if d == BidirectionalConcat || d == BidirectionalSum {
		return 2
	}
	return 1
}

// DataTypeConf is the precision mode, named after the dtypes of src_iter, src_layer, dst_iter and dst_layer:
// "f32u8f32u8" means float32 recurrent states, quantized (u8) input and output layers.
// Weights are always int8 in the quantized modes.
type DataTypeConf int

//go:generate go tool enumer -type=DataTypeConf -transform=lower -values -text -output=gen_datatypeconf_enumer.go enums.go

const (
	AllF32 DataTypeConf = iota
	U8U8U8F32
	F32U8F32F32
	U8U8U8U8
	F32U8F32U8
)

// IsInt8 returns whether it's a quantized mode.
func (c DataTypeConf) IsInt8() bool { return c != AllF32 }
