package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sarchlab/grengine/gr"
	"github.com/sarchlab/grengine/hw"
)

func newZbcCmd(o *options) *cobra.Command {
	var (
		colors     []string
		depths     []string
		format     uint32
		clearTable bool
	)

	zbcCmd := &cobra.Command{
		Use:   "zbc",
		Short: "Add clear values to the ZBC table and print it.",
		Long: "`zbc --color 0xff0000ff --depth 0x3f000000` boots the engine, " +
			"adds the values and prints every used entry of the " +
			"zero-bandwidth-clear table.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := o.platform()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := p.Boot(ctx); err != nil {
				return err
			}

			e := p.Engine
			out := cmd.OutOrStdout()

			if clearTable {
				if err := e.ClearZbcTable(ctx); err != nil {
					return err
				}
			}

			for _, s := range colors {
				v, err := strconv.ParseUint(s, 0, 32)
				if err != nil {
					return fmt.Errorf("color %q: %w", s, err)
				}

				entry := gr.ZbcEntry{Type: gr.ZbcColor, Format: format}
				for i := range entry.ColorDS {
					entry.ColorDS[i] = uint32(v)
					entry.ColorL2[i] = uint32(v)
				}

				idx, err := e.AddZbc(ctx, entry)
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "color %#08x -> %d\n", v, idx)
			}

			for _, s := range depths {
				v, err := strconv.ParseUint(s, 0, 32)
				if err != nil {
					return fmt.Errorf("depth %q: %w", s, err)
				}

				idx, err := e.AddZbc(ctx, gr.ZbcEntry{
					Type:   gr.ZbcDepth,
					Format: format,
					Depth:  uint32(v),
				})
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "depth %#08x -> %d\n", v, idx)
			}

			return printZbcTable(out, e)
		},
	}

	f := zbcCmd.Flags()
	f.StringSliceVar(&colors, "color", nil, "color clear values to add")
	f.StringSliceVar(&depths, "depth", nil, "depth clear values to add")
	f.Uint32Var(&format, "format", 1, "format of the added values")
	f.BoolVar(&clearTable, "clear", false, "reset the table to the defaults first")

	return zbcCmd
}

func printZbcTable(out io.Writer, e *gr.Engine) error {
	s := e.Snapshot()

	for _, slot := range s.ZbcColors {
		r, err := e.QueryZbc(gr.ZbcColor, slot.Index)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "color[%d] format=%d ds=%#08x l2=%#08x refs=%d\n",
			slot.Index, r.Format, r.ColorDS[0], r.ColorL2[0], r.RefCount)
	}

	for _, slot := range s.ZbcDepths {
		r, err := e.QueryZbc(gr.ZbcDepth, slot.Index)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "depth[%d] format=%d depth=%#08x refs=%d\n",
			slot.Index, r.Format, r.Depth, r.RefCount)
	}

	fmt.Fprintf(out, "table size %d\n", hw.ZbcTableSize)

	return nil
}
