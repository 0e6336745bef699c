// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package packing implements the weight-packing back ends queried by the RNN planner.
//
// A back end knows how a GEMM kernel wants its LHS operand (the RNN weights) rearranged, and so
// how many bytes a packed weight part takes. It may also refuse to pack a given shape, in which
// case the planner falls back to unpacked weights.
//
// Back ends are registered by name (see Register) and created from a configuration string,
// formatted as "<backend_name>:<backend_configuration>" (see NewWithConfig). The environment
// variable RNNPLAN_PACKING can be used to select the default one.
package packing

import (
	"os"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// ErrNotPackable is returned (possibly wrapped) by Backend.PackedSize when the back end can't
// pack the requested shape.
var ErrNotPackable = errors.New("shape not packable")

// CacheParams holds the blocking parameters of a GotoBLAS-like GEMM for one dtype.
type CacheParams struct {
	LHSL1KernelRows int // or Mr: number of lhs kernel rows going to registers.
	RHSL1KernelCols int // or Nr: Register Block Width

	ContractingPanelSize int // Kc: L1 Block Depth
	LHSL2PanelCrossSize  int // Mc: L2 Block Height
	RHSL3PanelCrossSize  int // Nc: L3 Block Width
}

// Validate checks that all parameters are positive and consistent.
func (p CacheParams) Validate() error {
	if p.LHSL1KernelRows <= 0 || p.RHSL1KernelCols <= 0 || p.ContractingPanelSize <= 0 ||
		p.LHSL2PanelCrossSize <= 0 || p.RHSL3PanelCrossSize <= 0 {
		return errors.Errorf("invalid cache parameters %+v: all values must be > 0", p)
	}
	if p.LHSL2PanelCrossSize%p.LHSL1KernelRows != 0 {
		return errors.Errorf("invalid cache parameters %+v: Mc (%d) must be a multiple of Mr (%d)",
			p, p.LHSL2PanelCrossSize, p.LHSL1KernelRows)
	}
	return nil
}

// PackedLHSElements returns the number of elements needed to pack a [m, k] LHS matrix:
// ceil(m/Mr) micro-panels of shape [k, Mr].
func (p CacheParams) PackedLHSElements(m, k int) int {
	mr := p.LHSL1KernelRows
	return (m + mr - 1) / mr * mr * k
}

// Backend is a weight-packing back end.
type Backend interface {
	// Name returns a short name of the back end.
	Name() string

	// Params returns the blocking parameters for the dtype, if supported.
	Params(dtype dtypes.DType) (CacheParams, bool)

	// PackedSize returns the size in bytes of a packed [m, k] LHS operand that will be
	// multiplied by a RHS with n columns. It returns an error wrapping ErrNotPackable if
	// the shape or dtype can't be packed.
	PackedSize(dtype dtypes.DType, m, n, k int) (int, error)

	// PanelRows returns the preferred maximum number of LHS rows per packed part, or 0 if the
	// dtype is not supported.
	PanelRows(dtype dtypes.DType) int
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register back end with the given name, and a constructor that takes as input a configuration string that is
// passed along to the back end.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// RNNPLAN_PACKING is the environment variable with the default packing configuration to use.
//
// The format of config is "<backend_name>:<backend_configuration>".
const RNNPLAN_PACKING = "RNNPLAN_PACKING"

// DefaultConfig is the packing configuration used by New if RNNPLAN_PACKING is not set.
var DefaultConfig string

// New returns a new default Backend.
//
// The default is:
//
// 1. The environment RNNPLAN_PACKING is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered back end is used with an empty configuration.
func New() (Backend, error) {
	if config, found := os.LookupEnv(RNNPLAN_PACKING); found {
		return NewWithConfig(config)
	}
	return NewWithConfig(DefaultConfig)
}

// NewWithConfig creates a back end from a configuration formatted as
// "<backend_name>:<backend_configuration>". If the name is omitted, the first registered back end is used.
func NewWithConfig(config string) (Backend, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.New("no registered packing back ends")
	}
	backendName := firstRegistered
	backendConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		backendName = config[:idx]
		backendConfig = config[idx+1:]
	} else if _, found := registeredConstructors[config]; found {
		backendName = config
		backendConfig = ""
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		return nil, errors.Errorf("can't find packing back end %q for configuration %q given", backendName, config)
	}
	backend, err := constructor(backendConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "creating packing back end %q", backendName)
	}
	return backend, nil
}
