// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rnn

import "github.com/pkg/errors"

// Error kinds returned (wrapped with context) by NewConf and ResolvePackedLayout.
// Use errors.Is to check for them.
var (
	// ErrUnsupported is returned for a direction/precision/cell combination that is not implemented.
	ErrUnsupported = errors.New("unsupported RNN configuration")

	// ErrInvalidShape is returned when connected tensors disagree on their dimensions.
	ErrInvalidShape = errors.New("invalid RNN tensor shapes")

	// ErrUnpackable is returned when the packing back end can't pack the weights.
	// NewConf recovers from it by falling back to unpacked weights, except for quantized modes.
	ErrUnpackable = errors.New("weights layout not packable")

	// ErrResourceLimit is returned when a buffer size exceeds the addressable limit.
	ErrResourceLimit = errors.New("RNN buffer size exceeds addressable limit")
)
