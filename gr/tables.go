package gr

import (
	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/regbus"
)

const maxMappedTiles = 32

// clearCountBits clears the lowest n set bits of v.
func clearCountBits(v uint32, n int) uint32 {
	for ; v != 0 && n > 0; n-- {
		v &= v - 1
	}

	return v
}

// RatioTables holds the alpha and beta distribution tables. Used marks the
// registers that carry at least one gpc.
type RatioTables struct {
	Alpha [hw.AlphaRatioTables]uint32
	Beta  [hw.AlphaRatioTables]uint32
	Used  [hw.AlphaRatioTables]bool
}

// ComputeRatioTables splits the tpcs of every PES between the alpha and the
// beta circular buffers, one split per table row. Within a gpc the PES
// alternate between feeding the alpha and the beta target.
func ComputeRatioTables(t *Topology) *RatioTables {
	rt := new(RatioTables)
	rowStride := hw.AlphaRatioTables / hw.AlphaBetaRows

	for row := 0; row < hw.AlphaBetaRows; row++ {
		alphaTarget := max(t.TpcCount*row/hw.AlphaBetaRows, 1)
		betaTarget := t.TpcCount - alphaTarget
		assignAlpha := alphaTarget < betaTarget

		for gpc := 0; gpc < t.GpcCount; gpc++ {
			reg := row*rowStride + gpc>>2

			var alphaMask, betaMask uint32
			for pes := 0; pes < t.PesPerGpc; pes++ {
				n := t.PesTpcCount[pes][gpc]
				mask := t.PesTpcMask[pes][gpc]

				var alphaBits, betaBits int
				if assignAlpha {
					alphaBits = min(alphaTarget, n)
					betaBits = n - alphaBits
				} else {
					betaBits = min(betaTarget, n)
					alphaBits = n - betaBits
				}

				partial := clearCountBits(mask, n-alphaBits)
				alphaMask |= partial
				betaMask |= mask ^ partial

				alphaTarget -= min(alphaBits, alphaTarget)
				betaTarget -= min(betaBits, betaTarget)

				if alphaBits > 0 || betaBits > 0 {
					assignAlpha = !assignAlpha
				}
			}

			rt.Alpha[reg] |= hw.RatioTableGpc(gpc, alphaMask)
			rt.Beta[reg] |= hw.RatioTableGpc(gpc, betaMask)
			rt.Used[reg] = true
		}
	}

	return rt
}

func writeRatioTables(bus regbus.Bus, rt *RatioTables) {
	for i := range rt.Used {
		if !rt.Used[i] {
			continue
		}

		bus.Write32(hw.GrPdAlphaRatioTable0+uint32(i)*4, rt.Alpha[i])
		bus.Write32(hw.GrPdBetaRatioTable0+uint32(i)*4, rt.Beta[i])
	}
}

// mapRegisters packs the tile map into the six map registers shared by the
// crstr, wwdx and rstr2d units.
func mapRegisters(m TileMap) [hw.MapRegs]uint32 {
	var regs [hw.MapRegs]uint32
	for r := 0; r < hw.MapRegs; r++ {
		for n := 0; n < hw.TilesPerMapReg; n++ {
			tile := r*hw.TilesPerMapReg + n
			if tile >= maxMappedTiles {
				continue
			}

			regs[r] |= hw.MapTile(n, m.Tile(tile))
		}
	}

	return regs
}

// normShift scales the wwdx table to at least 16 entries.
func normShift(tpcCount int) uint32 {
	switch {
	case tpcCount == 1:
		return 4
	case tpcCount < 4:
		return 3
	case tpcCount < 8:
		return 2
	case tpcCount < 16:
		return 1
	default:
		return 0
	}
}

func writeROPMapping(bus regbus.Bus, m TileMap, tpcCount int) {
	rowOffset := uint32(m.RowOffset)
	entries := uint32(tpcCount)
	maps := mapRegisters(m)

	bus.Write32(hw.GrCrstrMapTableCfg, hw.MapTableCfg(rowOffset, entries))
	for i, v := range maps {
		bus.Write32(hw.GrCrstrGpcMap0+uint32(i)*4, v)
	}

	shift := normShift(tpcCount)
	normEntries := entries << shift

	var coeff [7]uint32
	for i := range coeff {
		if normEntries != 0 {
			coeff[i] = (1 << (5 + uint(i))) % normEntries
		}
	}

	bus.Write32(hw.GrWwdxMapTableCfg,
		hw.WwdxMapTableCfg(rowOffset, entries, normEntries, shift, coeff[0]))
	bus.Write32(hw.GrWwdxMapTableCfg2, hw.WwdxMapTableCfg2([6]uint32(coeff[1:])))
	for i, v := range maps {
		bus.Write32(hw.GrWwdxMapGpcMap0+uint32(i)*4, v)
	}

	bus.Write32(hw.GrRstr2dMapTableCfg, hw.MapTableCfg(rowOffset, entries))
	for i, v := range maps {
		bus.Write32(hw.GrRstr2dGpcMap0+uint32(i)*4, v)
	}
}
