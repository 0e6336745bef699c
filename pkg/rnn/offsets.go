// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package rnn

import (
	"fmt"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// RegionKind enumerates the regions planned in the workspace and scratchpad buffers, in the order
// they are laid out.
type RegionKind int

const (
	GatesRegion RegionKind = iota
	StatesRegion
	CStatesRegion
	DiffStatesRegion
	GridScratchRegion
	CellScratchRegion
	PackedLayerWeightsRegion
	PackedIterWeightsRegion
	BiasRegion
	DiffLayerWeightsRegion
	DiffIterWeightsRegion

	// NumRegionKinds is the number of region kinds, not a region.
	NumRegionKinds
)

var regionKindNames = [NumRegionKinds]string{
	"gates", "states", "c_states", "diff_states", "grid_scratch", "cell_scratch",
	"packed_layer_weights", "packed_iter_weights", "bias", "diff_layer_weights", "diff_iter_weights",
}

// String implements fmt.Stringer.
func (k RegionKind) String() string {
	if k >= 0 && k < NumRegionKinds {
		return regionKindNames[k]
	}
	return fmt.Sprintf("RegionKind(%d)", int(k))
}

// IsPersistent returns whether the region holds values needed by a later backward pass, in which
// case it goes in the workspace when the configuration uses it.
func (k RegionKind) IsPersistent() bool {
	switch k {
	case GatesRegion, StatesRegion, CStatesRegion, DiffStatesRegion:
		return true
	default:
		return false
	}
}

// BufferKind is one of the two buffers regions are planned in.
type BufferKind int

const (
	// Scratchpad is only needed during one execution.
	Scratchpad BufferKind = iota

	// Workspace persists between a forward training execution and the backward one.
	Workspace
)

// String implements fmt.Stringer.
func (b BufferKind) String() string {
	switch b {
	case Scratchpad:
		return "scratchpad"
	case Workspace:
		return "workspace"
	default:
		return fmt.Sprintf("BufferKind(%d)", int(b))
	}
}

// Region is a byte range of a buffer.
type Region struct {
	Kind   RegionKind
	Buffer BufferKind
	Offset int
	Size   int
}

// End returns the offset of the first byte after the region.
func (r Region) End() int { return r.Offset + r.Size }

// String implements fmt.Stringer.
func (r Region) String() string {
	return fmt.Sprintf("%s@%s[%d:%d]", r.Kind, r.Buffer, r.Offset, r.End())
}

// Plan is the layout of all regions, as returned by PlanOffsets.
type Plan struct {
	// Regions in layout order, one per RegionKind, including the ones of size 0 (which don't take space).
	Regions [NumRegionKinds]Region

	WorkspaceSize, ScratchpadSize int
}

// Region returns the region of the given kind.
func (p *Plan) Region(kind RegionKind) Region {
	return p.Regions[kind]
}

// BufferSize returns the total size of the given buffer.
func (p *Plan) BufferSize(buffer BufferKind) int {
	if buffer == Workspace {
		return p.WorkspaceSize
	}
	return p.ScratchpadSize
}

// Validate checks that non-empty regions are within the bounds of their buffer and don't overlap.
func (p *Plan) Validate() error {
	for ii, r := range p.Regions {
		if r.Size == 0 {
			continue
		}
		if r.Offset < 0 || r.Size < 0 || r.End() > p.BufferSize(r.Buffer) {
			return errors.Errorf("region %s out of the %s bounds [0:%d]", r, r.Buffer, p.BufferSize(r.Buffer))
		}
		for _, r2 := range p.Regions[ii+1:] {
			if r2.Size == 0 || r2.Buffer != r.Buffer {
				continue
			}
			if r.Offset < r2.End() && r2.Offset < r.End() {
				return errors.Errorf("regions %s and %s overlap", r, r2)
			}
		}
	}
	return nil
}

// PlanOffsets assigns an offset in the workspace or the scratchpad to every region of conf.
//
// Regions are laid out in RegionKind order, each starting on a multiple of Alignment.RegionBytes
// of its buffer. Persistent regions go to the workspace if conf.UseWorkspace, all the others go to
// the scratchpad. The result depends only on conf.
//
// It can't fail for a Conf returned by NewConf.
func PlanOffsets(conf *Conf) Plan {
	p, err := planOffsets(conf, math.MaxInt)
	if err != nil {
		exceptions.Panicf("rnn.PlanOffsets: invalid configuration: %+v", err)
	}
	return p
}

// ScratchpadAndWorkspaceSizes returns the total sizes in bytes of the scratchpad and the workspace.
func ScratchpadAndWorkspaceSizes(conf *Conf) (scratchpadSize, workspaceSize int) {
	p := PlanOffsets(conf)
	return p.ScratchpadSize, p.WorkspaceSize
}

// planOffsets implements PlanOffsets, checking that buffers don't exceed limit bytes.
func planOffsets(conf *Conf, limit int) (Plan, error) {
	var p Plan
	regionBytes := conf.Alignment.RegionBytes
	if regionBytes <= 0 {
		return p, errors.Errorf("invalid alignment of regions %d", regionBytes)
	}
	var ends [2]int // Indexed by BufferKind.
	for kind := range NumRegionKinds {
		r := Region{Kind: kind, Buffer: Scratchpad, Size: conf.RegionSizes[kind]}
		if conf.UseWorkspace && kind.IsPersistent() {
			r.Buffer = Workspace
		}
		end := ends[r.Buffer]
		r.Offset = end
		if r.Size > 0 {
			start, ok := roundUpWithin(end, regionBytes, limit)
			if ok && r.Size <= limit-start {
				r.Offset = start
				ends[r.Buffer], ok = roundUpWithin(r.End(), regionBytes, limit)
			} else {
				ok = false
			}
			if !ok {
				return p, errors.Wrapf(ErrResourceLimit, "%s region %s of %d bytes at offset %d exceeds %d bytes",
					r.Buffer, kind, r.Size, end, limit)
			}
		}
		p.Regions[kind] = r
	}
	p.ScratchpadSize, p.WorkspaceSize = ends[Scratchpad], ends[Workspace]
	return p, nil
}

// roundUpWithin rounds x up to a multiple of alignment, and returns false if the result exceeds limit.
func roundUpWithin(x, alignment, limit int) (int, bool) {
	if x > limit {
		return 0, false
	}
	rem := x % alignment
	if rem == 0 {
		return x, true
	}
	if x > limit-(alignment-rem) {
		return 0, false
	}
	return x + alignment - rem, true
}
