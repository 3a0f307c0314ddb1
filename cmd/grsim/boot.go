package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/grengine/gr"
	"github.com/sarchlab/grengine/instrumentation/tracing"
)

func newBootCmd(o *options) *cobra.Command {
	var (
		channels int
		class    string
	)

	bootCmd := &cobra.Command{
		Use:   "boot",
		Short: "Boot the engine and open channels.",
		Long: "`boot --channels 8` initializes the engine, opens eight " +
			"channels concurrently, prints the engine state and the FECS " +
			"methods issued, then closes the channels.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cls, err := parseClass(class)
			if err != nil {
				return err
			}

			p, err := o.platform()
			if err != nil {
				return err
			}

			commands := tracing.NewTagCounter(commandTag)
			p.Engine.Submitter().AcceptHook(commands)

			ctx := cmd.Context()
			if err := p.Boot(ctx); err != nil {
				return err
			}

			chs, err := p.OpenChannels(ctx, channels, cls)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printSnapshot(out, p.Engine.Snapshot())
			printCounts(out, "FECS methods", commands)

			for _, ch := range chs {
				p.CloseChannel(ctx, ch)
			}

			return nil
		},
	}

	bootCmd.Flags().IntVar(&channels, "channels", 1, "channels to open")
	bootCmd.Flags().StringVar(&class, "class", "kepler-c",
		"object class: kepler-c, compute, 2d, dma or a number")

	return bootCmd
}

func printSnapshot(out io.Writer, s gr.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "engine\t%s\n", s.Name)
	fmt.Fprintf(w, "ready\t%t\n", s.Ready)
	fmt.Fprintf(w, "isr\t%s\n", s.IsrState)

	if t := s.Topology; t != nil {
		fmt.Fprintf(w, "gpcs\t%d\n", t.GpcCount)
		fmt.Fprintf(w, "tpcs\t%d %v\n", t.TpcCount, t.GpcTpcCount)
		fmt.Fprintf(w, "zculls\t%d\n", t.ZcbCount)
		fmt.Fprintf(w, "fbps\t%d\n", t.FbpCount)
	}

	fmt.Fprintf(w, "tile map\t%v\n", s.TileMap.Tiles)
	fmt.Fprintf(w, "row offset\t%d\n", s.RowOffset)
	fmt.Fprintf(w, "golden image\t%#x\n", s.GoldenImageSize)
	fmt.Fprintf(w, "zcull image\t%#x\n", s.ZcullImageSize)
	fmt.Fprintf(w, "pm image\t%#x\n", s.PmImageSize)
	fmt.Fprintf(w, "golden captured\t%t (%d captures)\n",
		s.GoldenCaptured, s.GoldenCaptures)
	fmt.Fprintf(w, "comptag lines\t%d\n", s.ComptagLines)
	fmt.Fprintf(w, "zbc colors\t%d\n", len(s.ZbcColors))
	fmt.Fprintf(w, "zbc depths\t%d\n", len(s.ZbcDepths))

	w.Flush()
}

func printCounts(out io.Writer, title string, c *tracing.TagCounter) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "%s\t%d\n", title, c.Total())
	for _, name := range c.GetTagNames() {
		fmt.Fprintf(w, "  %s\t%d\n", name, c.GetTagCount(name))
	}

	w.Flush()
}
