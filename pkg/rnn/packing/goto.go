// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package packing

import (
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// GotoName is the name of the GotoBLAS-style back end in the registry.
const GotoName = "goto"

func init() {
	Register(GotoName, func(config string) (Backend, error) { return NewGoto(config) })
}

// DefaultGotoParams are the blocking parameters per dtype used by NewGoto.
var DefaultGotoParams = map[dtypes.DType]CacheParams{
	dtypes.Float32: {
		LHSL1KernelRows:      6,    // Mr: Uses 6 ZMM registers for accumulation rows
		RHSL1KernelCols:      32,   // Nr: Uses 2 ZMM registers (2x16) for accumulation cols
		ContractingPanelSize: 256,  // Kc: A strip fits in L1 cache
		LHSL2PanelCrossSize:  528,  // Mc: Fits in L2 cache (multiple of 6)
		RHSL3PanelCrossSize:  4096, // Nc: Fits in L3 cache (multiple of 32)
	},
	// int8 kernels accumulate in int32 registers: same register blocking as float32.
	dtypes.Int8: {
		LHSL1KernelRows:      6,
		RHSL1KernelCols:      32,
		ContractingPanelSize: 512,
		LHSL2PanelCrossSize:  528,
		RHSL3PanelCrossSize:  4096,
	},
	dtypes.Float16: {
		LHSL1KernelRows:      4,
		RHSL1KernelCols:      16,
		ContractingPanelSize: 512,
		LHSL2PanelCrossSize:  512,
		RHSL3PanelCrossSize:  2048,
	},
	dtypes.BFloat16: {
		LHSL1KernelRows:      4,
		RHSL1KernelCols:      8, // f32 accumulation
		ContractingPanelSize: 256,
		LHSL2PanelCrossSize:  256,
		RHSL3PanelCrossSize:  1024,
	},
}

// Goto packs the LHS in the GotoBLAS micro-panel layout: [ceil(m/Mr), k, Mr].
type Goto struct {
	params map[dtypes.DType]CacheParams
}

// Compile-time check that Goto implements Backend.
var _ Backend = (*Goto)(nil)

// NewGoto creates a Goto back end.
//
// The config string is a comma-separated list of "key=value" overrides applied to every dtype:
// "mr", "nr", "kc", "mc", "nc". Optionally a key can be prefixed with a dtype name, as in
// "float32.mc=264", to override only that dtype. Use "dtypes=float32,int8" (separated by "+" or
// ";" within the value, e.g. "dtypes=float32+int8") to restrict the supported dtypes.
func NewGoto(config string) (*Goto, error) {
	g := &Goto{params: maps.Clone(DefaultGotoParams)}
	if config == "" {
		return g, nil
	}
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return nil, errors.Errorf("invalid option %q for %q packing back end: expected key=value", part, GotoName)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "dtypes" {
			if err := g.restrictDTypes(value); err != nil {
				return nil, err
			}
			continue
		}
		var dtypeFilter dtypes.DType
		if dtypeName, param, hasDType := strings.Cut(key, "."); hasDType {
			dt, err := parseDType(dtypeName)
			if err != nil {
				return nil, err
			}
			dtypeFilter = dt
			key = param
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid value for option %q of %q packing back end", key, GotoName)
		}
		for dt, p := range g.params {
			if dtypeFilter != dtypes.InvalidDType && dt != dtypeFilter {
				continue
			}
			switch key {
			case "mr":
				p.LHSL1KernelRows = n
			case "nr":
				p.RHSL1KernelCols = n
			case "kc":
				p.ContractingPanelSize = n
			case "mc":
				p.LHSL2PanelCrossSize = n
			case "nc":
				p.RHSL3PanelCrossSize = n
			default:
				return nil, errors.Errorf("unknown configuration option %q for %q packing back end", key, GotoName)
			}
			g.params[dt] = p
		}
	}
	for dt, p := range g.params {
		if err := p.Validate(); err != nil {
			return nil, errors.WithMessagef(err, "dtype %s", dt)
		}
	}
	klog.V(1).Infof("packing back end %q configured with %q", GotoName, config)
	return g, nil
}

func parseDType(name string) (dtypes.DType, error) {
	for dt := range DefaultGotoParams {
		if strings.EqualFold(dt.String(), name) {
			return dt, nil
		}
	}
	return dtypes.InvalidDType, errors.Errorf("unknown or unsupported dtype %q for %q packing back end", name, GotoName)
}

func (g *Goto) restrictDTypes(value string) error {
	keep := make(map[dtypes.DType]bool)
	for _, name := range strings.FieldsFunc(value, func(r rune) bool { return r == '+' || r == ';' }) {
		dt, err := parseDType(strings.TrimSpace(name))
		if err != nil {
			return err
		}
		keep[dt] = true
	}
	maps.DeleteFunc(g.params, func(dt dtypes.DType, _ CacheParams) bool { return !keep[dt] })
	return nil
}

// Name implements Backend.
func (g *Goto) Name() string { return GotoName }

// String implements fmt.Stringer.
func (g *Goto) String() string { return fmt.Sprintf("%s(%d dtypes)", GotoName, len(g.params)) }

// Params implements Backend.
func (g *Goto) Params(dtype dtypes.DType) (CacheParams, bool) {
	p, found := g.params[dtype]
	return p, found
}

// PanelRows implements Backend: it's the L2 panel height (Mc).
func (g *Goto) PanelRows(dtype dtypes.DType) int {
	p, found := g.params[dtype]
	if !found {
		return 0
	}
	return p.LHSL2PanelCrossSize
}

// PackedSize implements Backend.
//
// Parts with fewer rows than a micro-panel (Mr) are not packed: the padding would dominate.
func (g *Goto) PackedSize(dtype dtypes.DType, m, n, k int) (int, error) {
	p, found := g.params[dtype]
	if !found {
		return 0, errors.Wrapf(ErrNotPackable, "dtype %s not supported by %q", dtype, GotoName)
	}
	if m <= 0 || n <= 0 || k <= 0 {
		return 0, errors.Wrapf(ErrNotPackable, "invalid GEMM sizes m=%d, n=%d, k=%d", m, n, k)
	}
	if m < p.LHSL1KernelRows {
		return 0, errors.Wrapf(ErrNotPackable, "m=%d smaller than the kernel rows (Mr=%d)", m, p.LHSL1KernelRows)
	}
	elements := p.PackedLHSElements(m, k)
	elementSize := int(dtype.Memory())
	if elements > math.MaxInt/elementSize {
		return 0, errors.Wrapf(ErrNotPackable, "packed size of [%d, %d] overflows", m, k)
	}
	return elements * elementSize, nil
}
