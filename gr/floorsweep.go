package gr

import (
	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/regbus"
)

// floorsweep tells every unit which tpcs exist: sm ids, per-gpc tpc counts,
// the tile tables and the skip table. The engine must be quiet while this
// runs.
func (e *Engine) floorsweep() {
	t := e.topo
	bus := e.bus

	smID := uint32(0)
	for tpc := 0; tpc < t.MaxTpcPerGpc; tpc++ {
		for gpc := 0; gpc < t.GpcCount; gpc++ {
			gpcOff := hw.GpcOffset(gpc)

			if tpc < t.GpcTpcCount[gpc] {
				tpcOff := hw.TpcOffset(gpc, tpc)

				bus.Write32(hw.Gpc0Tpc0SmCfg+tpcOff, hw.SmID(smID))
				bus.Write32(hw.Gpc0Tpc0L1cCfgSmid+tpcOff, hw.SmID(smID))
				bus.Write32(hw.Gpc0GpmPdSmID(tpc)+gpcOff, hw.SmID(smID))
				bus.Write32(hw.Gpc0Tpc0PeCfgSmid+tpcOff, hw.SmID(smID))

				smID++
			}

			n := hw.ActiveTpcs(uint32(t.GpcTpcCount[gpc]))
			bus.Write32(hw.Gpc0GpmPdActiveTpcs+gpcOff, n)
			bus.Write32(hw.Gpc0GpmSdActiveTpcs+gpcOff, n)
		}
	}

	writeNumTpcPerGpc(bus, t)
	writeROPMapping(bus, e.tiles, t.TpcCount)
	writeRatioTables(bus, ComputeRatioTables(t))

	if t.FbpCount == 1 {
		regbus.Modify(bus, hw.LtcTstgSetMgmt,
			hw.TstgSetMaxWaysEvict(0, ^uint32(0)),
			hw.TstgSetMaxWaysEvict(0, hw.MaxWaysEvictSingleFbp))
	}

	for reg := 0; reg < hw.DistSkipTableRegs; reg++ {
		var v uint32
		for gpc := reg * 4; gpc < reg*4+4; gpc++ {
			v |= hw.DistSkipTableGpc(gpc, t.SkipMask(gpc))
		}

		bus.Write32(hw.GrPdDistSkipTable0+uint32(reg)*4, v)
	}

	bus.Write32(hw.GrCwdFs, hw.CwdFs(uint32(t.GpcCount), uint32(t.TpcCount)))
	bus.Write32(hw.GrBesZropSettings, hw.ZropCropActiveFbps(uint32(t.FbpCount)))
	bus.Write32(hw.GrBesCropSettings, hw.ZropCropActiveFbps(uint32(t.FbpCount)))
}

// writeNumTpcPerGpc fills the per-gpc tpc count registers, eight gpcs per
// register, wrapping back to gpc 0 once the gpcs run out.
func writeNumTpcPerGpc(bus regbus.Bus, t *Topology) {
	gpcID := 0
	for reg := 0; reg < hw.NumTpcPerGpcRegs; reg++ {
		if gpcID >= t.GpcCount {
			gpcID = 0
		}

		var v uint32
		for k := 0; k < 8; k++ {
			gpc := gpcID + k
			if gpc < t.GpcCount {
				v |= hw.NumTpcPerGpc(k, uint32(t.GpcTpcCount[gpc]))
			}
		}

		bus.Write32(hw.GrPdNumTpcPerGpc0+uint32(reg)*4, v)
		bus.Write32(hw.GrDsNumTpcPerGpc0+uint32(reg)*4, v)

		gpcID += 8
	}
}
