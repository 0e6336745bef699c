// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rnn

import "github.com/pkg/errors"

// baseParts returns the split of the weights matrices imposed by the cell: the vanilla GRU
// multiplies its last gate by the reset-applied state, so its iteration GEMM is done in two parts.
func baseParts(cell CellKind, isIter bool) []int {
	nGates := cell.NumGates()
	if isIter && cell == VanillaGRU {
		return []int{nGates - 1, 1}
	}
	return []int{nGates}
}

// splitParts splits each of the base segments (in gates) further, so that no part has more than
// maxRows rows, where a part of g gates has g*dic rows. Parts hold at least one gate, even if
// dic > maxRows. Segments are split as evenly as possible, in whole gates.
// If maxRows <= 0 the base segments are returned as is.
func splitParts(base []int, dic, maxRows int) (WeightParts, error) {
	var parts WeightParts
	for _, segment := range base {
		pieces := 1
		if maxRows > 0 {
			gatesPerPart := max(1, maxRows/dic)
			pieces = (segment + gatesPerPart - 1) / gatesPerPart
		}
		for piece := range pieces {
			if parts.NParts == MaxParts {
				return WeightParts{}, errors.Wrapf(ErrUnsupported,
					"splitting weights %v in parts of at most %d rows (dic=%d) requires more than %d parts",
					base, maxRows, dic, MaxParts)
			}
			gates := segment / pieces
			if piece < segment%pieces {
				gates++
			}
			parts.Gates[parts.NParts] = gates
			parts.NParts++
		}
	}
	return parts, nil
}

// maxPartRows returns the maximum number of rows of a weights part: the packing back end's panel
// rows for packed weights, or else the number of rows fitting the GEMM output block.
func maxPartRows(conf *Conf, opts Options, isIter, packed bool) int {
	if packed {
		if opts.Packer == nil {
			return 0
		}
		return opts.Packer.PanelRows(conf.WeightsDType)
	}
	if opts.GEMMBlockElems <= 0 {
		return 0
	}
	return max(1, opts.GEMMBlockElems/conf.GemmN(isIter))
}
