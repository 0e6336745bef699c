// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rnn

import (
	"unsafe"

	"github.com/gomlx/exceptions"
)

// Array2D is a non-owning view of rows of a flat slice, each row starting LD elements after the previous.
type Array2D[T any] struct {
	data []T
	ld   int
}

// NewArray2D creates a view over data with the given number of rows and leading dimension.
// It panics if data is too small.
func NewArray2D[T any](data []T, rows, ld int) Array2D[T] {
	if rows < 0 || ld < 0 || len(data) < rows*ld {
		exceptions.Panicf("rnn.NewArray2D: buffer of %d elements too small for %d rows with leading dimension %d",
			len(data), rows, ld)
	}
	return Array2D[T]{data: data, ld: ld}
}

// Offset returns the position of (row, col) in the underlying slice.
func (a Array2D[T]) Offset(row, col int) int { return row*a.ld + col }

// At returns a pointer to element (row, col).
func (a Array2D[T]) At(row, col int) *T { return &a.data[row*a.ld+col] }

// Array4D is a non-owning view of a [d0, d1, d2, ld] array over a flat slice.
type Array4D[T any] struct {
	data       []T
	d1, d2, ld int
}

// NewArray4D creates a view over data with the given dimensions, the last being the leading dimension.
// It panics if data is too small.
func NewArray4D[T any](data []T, d0, d1, d2, ld int) Array4D[T] {
	if d0 < 0 || d1 < 0 || d2 < 0 || ld < 0 {
		exceptions.Panicf("rnn.NewArray4D: invalid dimensions [%d, %d, %d, %d]", d0, d1, d2, ld)
	}
	if _, ok := mulChecked(len(data), d0, d1, d2, ld); !ok {
		exceptions.Panicf("rnn.NewArray4D: buffer of %d elements too small for [%d, %d, %d, %d]",
			len(data), d0, d1, d2, ld)
	}
	return Array4D[T]{data: data, d1: d1, d2: d2, ld: ld}
}

// Offset returns the position of (i0, i1, i2, i3) in the underlying slice.
func (a Array4D[T]) Offset(i0, i1, i2, i3 int) int { return ((i0*a.d1+i1)*a.d2+i2)*a.ld + i3 }

// At returns a pointer to element (i0, i1, i2, i3).
func (a Array4D[T]) At(i0, i1, i2, i3 int) *T { return &a.data[a.Offset(i0, i1, i2, i3)] }

// GatesView maps (batch, gate, channel) to the gates of one cell: [batch][gate*DIC + channel].
type GatesView[T any] struct {
	arr Array2D[T]
	dic int
}

// NewGatesView creates a view over the gates of one cell, that is, starting at conf.GatesCellOffset.
func NewGatesView[T any](data []T, conf *Conf) GatesView[T] {
	return GatesView[T]{arr: NewArray2D(data, conf.GatesNLD, conf.GatesWsLD), dic: conf.DIC}
}

// Offset returns the position of (batch, gate, channel) in the underlying slice.
func (v GatesView[T]) Offset(batch, gate, channel int) int {
	return v.arr.Offset(batch, gate*v.dic+channel)
}

// At returns a pointer to the gate element.
func (v GatesView[T]) At(batch, gate, channel int) *T {
	return v.arr.At(batch, gate*v.dic+channel)
}

// StatesView maps (batch, channel) to the states of one cell.
type StatesView[T any] struct {
	Array2D[T]
}

// NewStatesView creates a view over the states of one cell, that is, starting at conf.StatesCellOffset.
func NewStatesView[T any](data []T, conf *Conf) StatesView[T] {
	return StatesView[T]{NewArray2D(data, conf.StatesNLD, conf.StatesWsLD)}
}

// DiffStatesView maps (state, iter, batch, channel) to the diff states: [state][0][batch][channel].
//
// The iteration is not used: the backward pass advances the view one timestep at a time with Step.
type DiffStatesView[T any] struct {
	arr  Array4D[T]
	base int
}

// NewDiffStatesView creates a view over the whole diff-states region.
func NewDiffStatesView[T any](data []T, conf *Conf) DiffStatesView[T] {
	return DiffStatesView[T]{arr: NewArray4D(data, conf.NStates+1, conf.NIter+1, conf.StatesNLD, conf.StatesWsLD)}
}

// Step returns the view rebased on the given timestep (0 to NIter inclusive).
func (v DiffStatesView[T]) Step(iter int) DiffStatesView[T] {
	v.base = v.arr.Offset(0, iter, 0, 0)
	return v
}

// Offset returns the position of (state, batch, channel) of the current timestep. iter is ignored.
func (v DiffStatesView[T]) Offset(state, iter, batch, channel int) int {
	return v.base + v.arr.Offset(state, 0, batch, channel)
}

// At returns a pointer to the diff state element of the current timestep. iter is ignored.
func (v DiffStatesView[T]) At(state, iter, batch, channel int) *T {
	return &v.arr.data[v.Offset(state, iter, batch, channel)]
}

// DiffWeightsView maps (input channel, gate, output channel) to a diff weights matrix in the
// workspace: [input][gate*DIC + output].
type DiffWeightsView[T any] struct {
	arr Array2D[T]
	dic int
}

// NewDiffWeightsLayerView creates a view over the diff layer weights of one (layer, direction),
// that is, starting at conf.DiffWeightsLayerOffset.
func NewDiffWeightsLayerView[T any](data []T, conf *Conf) DiffWeightsView[T] {
	return DiffWeightsView[T]{arr: NewArray2D(data, conf.SLC, conf.DiffWeightsLayerWsLD), dic: conf.DIC}
}

// NewDiffWeightsIterView creates a view over the diff iteration weights of one (layer, direction),
// that is, starting at conf.DiffWeightsIterOffset.
func NewDiffWeightsIterView[T any](data []T, conf *Conf) DiffWeightsView[T] {
	return DiffWeightsView[T]{arr: NewArray2D(data, conf.SIC, conf.DiffWeightsIterWsLD), dic: conf.DIC}
}

// Offset returns the position of (input, gate, output) in the underlying slice.
func (v DiffWeightsView[T]) Offset(input, gate, output int) int {
	return v.arr.Offset(input, gate*v.dic+output)
}

// At returns a pointer to the diff weight element.
func (v DiffWeightsView[T]) At(input, gate, output int) *T {
	return v.arr.At(input, gate*v.dic+output)
}

// BiasView maps (bias term, channel) to the bias of one (layer, direction).
type BiasView[T any] struct {
	Array2D[T]
}

// NewBiasView creates a view over the bias of one (layer, direction), that is, starting at conf.BiasOffset.
func NewBiasView[T any](data []T, conf *Conf) BiasView[T] {
	return BiasView[T]{NewArray2D(data, conf.NBias, conf.DIC)}
}

// RegionSlice returns the region r of the raw buffer buf as a slice of T.
//
// It panics if the region is out of the buffer bounds, if its size is not a multiple of the size of T,
// or if it is not aligned for T.
func RegionSlice[T any](buf []byte, r Region) []T {
	var zero T
	elementSize := int(unsafe.Sizeof(zero))
	if r.Offset < 0 || r.Size < 0 || r.End() > len(buf) {
		exceptions.Panicf("rnn.RegionSlice: region %s out of the buffer bounds [0:%d]", r, len(buf))
	}
	if elementSize == 0 || r.Size%elementSize != 0 {
		exceptions.Panicf("rnn.RegionSlice: region %s size not a multiple of the element size %d", r, elementSize)
	}
	if r.Size == 0 {
		return nil
	}
	ptr := unsafe.Pointer(&buf[r.Offset])
	if uintptr(ptr)%unsafe.Alignof(zero) != 0 {
		exceptions.Panicf("rnn.RegionSlice: region %s is not aligned to %d bytes", r, unsafe.Alignof(zero))
	}
	return unsafe.Slice((*T)(ptr), r.Size/elementSize)
}
