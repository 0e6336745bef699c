// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// rnn_layout prints the execution configuration and the workspace/scratchpad layout of an RNN.
//
// Example:
//
//	rnn_layout -cell=vanilla_lstm -prop=backward -dir=bidirectional_concat -layers=2 -iters=10 -batch=32 -slc=256 -dic=256 \
//	  -vector_bytes=64 -aliasing_period=4096 -region_bytes=4096
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/rnnplan/pkg/core/shapes"
	"github.com/gomlx/rnnplan/pkg/rnn"
	"github.com/gomlx/rnnplan/pkg/rnn/packing"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagCell = flag.String("cell", rnn.VanillaLSTM.String(),
		fmt.Sprintf("Cell kind, one of %q.", rnn.CellKindStrings()))
	flagProp = flag.String("prop", rnn.ForwardInference.String(),
		fmt.Sprintf("Propagation kind, one of %q.", rnn.PropKindStrings()))
	flagDir = flag.String("dir", rnn.LeftToRight.String(),
		fmt.Sprintf("Direction, one of %q.", rnn.DirectionStrings()))
	flagLayers = flag.Int("layers", 1, "Number of layers.")
	flagIters  = flag.Int("iters", 1, "Number of timesteps.")
	flagBatch  = flag.Int("batch", 1, "Minibatch size.")
	flagSLC    = flag.Int("slc", 0, "Source layer channels. Defaults to -dic.")
	flagSIC    = flag.Int("sic", 0, "Source iteration channels. Defaults to -dic.")
	flagDIC    = flag.Int("dic", 0, "Destination iteration channels (the hidden size).")
	flagInt8   = flag.Bool("int8", false, "Quantized u8u8u8f32 configuration (LSTM forward inference only).")
	flagLayout = flag.String("weights_layout", "any", "Weights layout: any, ldigo or ldgoi.")

	flagPacking = flag.String("packing", "auto", "When to pack weights: auto, never or always.")
	flagPacker  = flag.String("packer", "",
		fmt.Sprintf("Packing back end configuration, formatted as \"<backend_name>:<config>\". "+
			"Defaults to $%s.", packing.RNNPLAN_PACKING))
	flagGEMMBlock = flag.Int("gemm_block", 0, "If > 0, maximum output elements of an unpacked GEMM call.")

	flagVectorBytes    = flag.Int("vector_bytes", 0, "Vector register width in bytes. Required.")
	flagAliasingPeriod = flag.Int("aliasing_period", 0, "Cache aliasing period in elements, 0 to disable.")
	flagRegionBytes    = flag.Int("region_bytes", 0, "Alignment in bytes of each region. Required.")
	flagAddressLimit   = flag.Int("address_limit", 0, "If > 0, maximum size in bytes of a buffer.")

	flagNoColor = flag.Bool("no_color", false, "Disable colors in the output.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if flag.NArg() > 0 {
		klog.Errorf("Unexpected arguments %q. See 'rnn_layout -help'.", flag.Args())
		os.Exit(1)
	}
	if *flagNoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	desc, dims, opts, err := parseFlags()
	if err != nil {
		klog.Errorf("%v. See 'rnn_layout -help'.", err)
		os.Exit(1)
	}
	if opts.Packing != rnn.PackNever {
		if *flagPacker != "" {
			opts.Packer = must.M1(packing.NewWithConfig(*flagPacker))
		} else {
			opts.Packer = must.M1(packing.New())
		}
	}
	conf, err := rnn.NewConf(desc, buildTensors(desc, dims), opts)
	if err != nil {
		klog.Errorf("Failed to derive the RNN configuration: %+v", err)
		os.Exit(1)
	}
	fmt.Println(report(conf))
}

// parseFlags converts the flags to the RNN description, its dimensions and the planner options.
func parseFlags() (desc rnn.Desc, dims tensorDims, opts rnn.Options, err error) {
	if desc.Cell, err = rnn.CellKindString(*flagCell); err != nil {
		err = errors.Wrapf(err, "invalid -cell, valid values are %q", rnn.CellKindStrings())
		return
	}
	if desc.Prop, err = rnn.PropKindString(*flagProp); err != nil {
		err = errors.Wrapf(err, "invalid -prop, valid values are %q", rnn.PropKindStrings())
		return
	}
	if desc.Direction, err = rnn.DirectionString(*flagDir); err != nil {
		err = errors.Wrapf(err, "invalid -dir, valid values are %q", rnn.DirectionStrings())
		return
	}
	dims = tensorDims{
		L: *flagLayers, T: *flagIters, N: *flagBatch,
		SLC: *flagSLC, SIC: *flagSIC, DIC: *flagDIC,
		Int8: *flagInt8,
	}
	if dims.DIC <= 0 {
		err = errors.New("-dic must be set to a positive value")
		return
	}
	if dims.SLC == 0 {
		dims.SLC = dims.DIC
	}
	if dims.SIC == 0 {
		dims.SIC = dims.DIC
	}
	if dims.Layout, err = parseLayout(*flagLayout); err != nil {
		return
	}

	if *flagVectorBytes <= 0 || *flagRegionBytes <= 0 {
		err = errors.New("the alignment policy is required: set -vector_bytes and -region_bytes")
		return
	}
	opts = rnn.DefaultOptions(rnn.Alignment{
		VectorBytes:    *flagVectorBytes,
		AliasingPeriod: *flagAliasingPeriod,
		RegionBytes:    *flagRegionBytes,
	}).WithGEMMBlockElems(*flagGEMMBlock)
	if *flagAddressLimit > 0 {
		opts = opts.WithAddressLimit(*flagAddressLimit)
	}
	switch strings.ToLower(*flagPacking) {
	case "auto":
		opts = opts.WithPacking(rnn.PackAuto)
	case "never":
		opts = opts.WithPacking(rnn.PackNever)
	case "always":
		opts = opts.WithPacking(rnn.PackAlways)
	default:
		err = errors.Errorf("invalid -packing=%q, valid values are auto, never or always", *flagPacking)
	}
	return
}

func parseLayout(name string) (shapes.Layout, error) {
	switch strings.ToLower(name) {
	case "any", "":
		return shapes.Any, nil
	case "ldigo":
		return shapes.LDIGO, nil
	case "ldgoi":
		return shapes.LDGOI, nil
	}
	return shapes.Any, errors.Errorf("invalid -weights_layout=%q, valid values are any, ldigo or ldgoi", name)
}

var titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)

// report renders the configuration summary and the table of regions.
func report(conf *rnn.Conf) string {
	plan := rnn.PlanOffsets(conf)
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("RNN configuration"))
	sb.WriteString("\n")
	sb.WriteString(conf.String())
	sb.WriteString("\n")
	for _, fallback := range []error{conf.LayerPackFallback, conf.IterPackFallback} {
		if fallback != nil {
			_, _ = fmt.Fprintf(&sb, "not packed: %v\n", fallback)
		}
	}

	sb.WriteString(titleStyle.Render("Regions"))
	sb.WriteString("\n")
	table := newPlainTable(true, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	table.Headers("Region", "Buffer", "Offset", "Size", "Bytes")
	for _, r := range plan.Regions {
		if r.Size == 0 {
			continue
		}
		table.Row(r.Kind.String(), r.Buffer.String(),
			humanize.Comma(int64(r.Offset)), humanize.Comma(int64(r.Size)), humanize.IBytes(uint64(r.Size)))
	}
	sb.WriteString(table.Render())
	sb.WriteString("\n")
	_, _ = fmt.Fprintf(&sb, "scratchpad: %s (%s bytes), workspace: %s (%s bytes)",
		humanize.IBytes(uint64(plan.ScratchpadSize)), humanize.Comma(int64(plan.ScratchpadSize)),
		humanize.IBytes(uint64(plan.WorkspaceSize)), humanize.Comma(int64(plan.WorkspaceSize)))
	return sb.String()
}
