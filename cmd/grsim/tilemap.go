package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/grengine/gpusim"
	"github.com/sarchlab/grengine/gr"
	"github.com/sarchlab/grengine/hw"
)

func newTileMapCmd(o *options) *cobra.Command {
	var tpcs []int

	tileMapCmd := &cobra.Command{
		Use:   "tilemap",
		Short: "Print the screen tile map of a chip.",
		Long: "`tilemap --tpcs 4,2,1` prints the tile map of a chip with " +
			"three gpcs holding four, two and one tpcs. Without --tpcs the " +
			"chip of the configuration is used.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := o.config()
			if err != nil {
				return err
			}

			chip := c.Chip
			if len(tpcs) > 0 {
				chip, err = chipWithTpcs(chip, tpcs)
				if err != nil {
					return err
				}
			}

			topo, err := gr.DiscoverTopology(gpusim.NewDevice(chip))
			if err != nil {
				return err
			}

			m, err := gr.ComputeTileMap(topo)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tpcs per gpc: %v\n", topo.GpcTpcCount)
			fmt.Fprintf(out, "tiles: %v\n", m.Tiles)
			fmt.Fprintf(out, "tiles per gpc: %v\n", m.Counts(topo.GpcCount))
			fmt.Fprintf(out, "row offset: %d\n", m.RowOffset)

			return nil
		},
	}

	tileMapCmd.Flags().IntSliceVar(&tpcs, "tpcs", nil, "tpc count of each gpc")

	return tileMapCmd
}

// chipWithTpcs replaces the gpcs of base. The tpcs of a gpc are split over
// the two PES units, the first one taking the odd tpc.
func chipWithTpcs(base gpusim.Chip, tpcs []int) (gpusim.Chip, error) {
	chip := base
	chip.Name = fmt.Sprintf("%s-%v", base.Name, tpcs)
	chip.MaxGpcs = uint32(len(tpcs))
	chip.MaxTpcPerGpc = 0
	chip.Gpcs = make([]gpusim.Gpc, len(tpcs))

	for i, n := range tpcs {
		if n <= 0 || n > hw.MaxTpcPerGpc {
			return gpusim.Chip{}, fmt.Errorf("gpc %d: %d tpcs", i, n)
		}

		all := uint32(1)<<n - 1
		pes0 := uint32(1)<<((n+1)/2) - 1

		chip.Gpcs[i] = gpusim.Gpc{
			PesTpcMask: [hw.PesPerGpc]uint32{pes0, all &^ pes0},
			Zculls:     1,
		}

		if uint32(n) > chip.MaxTpcPerGpc {
			chip.MaxTpcPerGpc = uint32(n)
		}
	}

	if err := chip.Validate(); err != nil {
		return gpusim.Chip{}, err
	}

	return chip, nil
}
