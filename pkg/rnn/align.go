// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rnn

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Alignment is the memory alignment policy used to pick leading dimensions and region offsets.
//
// Its values depend on the target hardware (vector width, cache organization) and are left to
// the caller: there are no defaults.
type Alignment struct {
	// VectorBytes is the granularity, in bytes, of the leading dimensions of the gates and states buffers.
	VectorBytes int

	// AliasingPeriod, if > 0, is a number of elements that leading dimensions must not be a
	// multiple of (to avoid cache-set aliasing when walking rows). Leading dimensions that
	// are get one more VectorBytes step.
	AliasingPeriod int

	// RegionBytes is the alignment of the start of every region in the workspace and scratchpad.
	// It assumes the buffers themselves are allocated aligned to it.
	RegionBytes int
}

// Validate the alignment policy.
func (a Alignment) Validate() error {
	if a.VectorBytes <= 0 || a.RegionBytes <= 0 {
		return errors.Errorf("invalid alignment %+v: VectorBytes and RegionBytes must be > 0", a)
	}
	if a.AliasingPeriod < 0 {
		return errors.Errorf("invalid alignment %+v: AliasingPeriod must be >= 0", a)
	}
	// A step of a single byte-wide element is VectorBytes elements, the largest step possible.
	if a.AliasingPeriod > 0 && a.AliasingPeriod <= a.VectorBytes {
		return errors.Errorf("invalid alignment %+v: AliasingPeriod must be larger than VectorBytes", a)
	}
	return nil
}

// RoundUp returns the smallest multiple of alignment that is >= value.
func RoundUp[T constraints.Integer](value, alignment T) T {
	return (value + alignment - 1) / alignment * alignment
}

// GoodLeadingDim returns the leading dimension (row stride, in elements) to use for rows of dim
// elements of sizeofDT bytes each.
//
// The result is >= dim, a multiple of VectorBytes/sizeofDT elements, and not a multiple of
// AliasingPeriod. It is idempotent: GoodLeadingDim(GoodLeadingDim(x)) == GoodLeadingDim(x).
func (a Alignment) GoodLeadingDim(dim, sizeofDT int) int {
	step := max(1, a.VectorBytes/sizeofDT)
	ld := RoundUp(dim, step)
	if a.AliasingPeriod > 0 && ld%a.AliasingPeriod == 0 {
		ld += step
	}
	return ld
}
