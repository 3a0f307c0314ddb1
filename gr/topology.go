package gr

import (
	"fmt"
	"math/bits"

	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/regbus"
)

const busDead = 0xffffffff

// Topology is the unit layout discovered at init. It does not change until
// the engine is torn down.
type Topology struct {
	MaxGpcCount    int
	MaxFbpCount    int
	MaxTpcPerGpc   int
	MaxTpcCount    int
	MaxZcullPerGpc int
	PesPerGpc      int

	FbpCount int
	GpcCount int
	TpcCount int
	PpcCount int
	ZcbCount int

	GpcTpcCount []int
	GpcZcbCount []int
	GpcPpcCount []int
	PesTpcCount [hw.PesPerGpc][]int
	PesTpcMask  [hw.PesPerGpc][]uint32
	GpcSkipMask []uint32
}

// DiscoverTopology reads the capability registers and builds the topology.
func DiscoverTopology(bus regbus.Bus) (*Topology, error) {
	gpcEnum := bus.Read32(hw.RingEnumGpc)
	if gpcEnum == busDead {
		return nil, fmt.Errorf("%w: gpc enumeration reads %#x",
			ErrHardwareNotResponding, gpcEnum)
	}

	t := &Topology{
		MaxGpcCount:    int(hw.TopValue(bus.Read32(hw.TopNumGpcs))),
		MaxTpcPerGpc:   int(hw.TopValue(bus.Read32(hw.TopTpcPerGpc))),
		MaxFbpCount:    int(hw.TopValue(bus.Read32(hw.TopNumFbps))),
		FbpCount:       int(hw.RingEnumCount(bus.Read32(hw.RingEnumFbp))),
		GpcCount:       int(hw.RingEnumCount(gpcEnum)),
		MaxZcullPerGpc: hw.MaxZcullPerGpc,
		PesPerGpc:      hw.PesPerGpc,
	}
	t.MaxTpcCount = t.MaxGpcCount * t.MaxTpcPerGpc

	if t.GpcCount == 0 {
		return nil, fmt.Errorf("%w: no gpc reported", ErrHardwareNotResponding)
	}

	t.GpcTpcCount = make([]int, t.GpcCount)
	t.GpcZcbCount = make([]int, t.GpcCount)
	t.GpcPpcCount = make([]int, t.GpcCount)
	t.GpcSkipMask = make([]uint32, t.GpcCount)
	for pes := 0; pes < t.PesPerGpc; pes++ {
		t.PesTpcCount[pes] = make([]int, t.GpcCount)
		t.PesTpcMask[pes] = make([]uint32, t.GpcCount)
	}

	for gpc := 0; gpc < t.GpcCount; gpc++ {
		fs := bus.Read32(hw.Gpc0FsGpc + hw.GpcOffset(gpc))
		if fs == busDead {
			return nil, fmt.Errorf("%w: gpc %d floorsweep status reads %#x",
				ErrHardwareNotResponding, gpc, fs)
		}

		t.GpcTpcCount[gpc] = int(hw.FsGpcNumTpcs(fs))
		t.TpcCount += t.GpcTpcCount[gpc]

		t.GpcZcbCount[gpc] = int(hw.FsGpcNumZculls(fs))
		t.ZcbCount += t.GpcZcbCount[gpc]

		t.GpcPpcCount[gpc] = t.PesPerGpc
		t.PpcCount += t.GpcPpcCount[gpc]

		var counts [hw.PesPerGpc]int
		var masks [hw.PesPerGpc]uint32
		for pes := 0; pes < t.PesPerGpc; pes++ {
			masks[pes] = hw.PesTpcMaskValue(bus.Read32(hw.PesTpcMask(gpc, pes)))
			counts[pes] = bits.OnesCount32(masks[pes])
			t.PesTpcMask[pes][gpc] = masks[pes]
			t.PesTpcCount[pes][gpc] = counts[pes]
		}

		t.GpcSkipMask[gpc] = pesSkipMask(counts, masks)
	}

	if t.TpcCount == 0 {
		return nil, fmt.Errorf("%w: no tpc reported", ErrHardwareNotResponding)
	}

	return t, nil
}

// pesSkipMask selects the unit to hide when the two PES of a gpc are
// unbalanced by one unit: the lowest unit of the heavier PES.
func pesSkipMask(counts [hw.PesPerGpc]int, masks [hw.PesPerGpc]uint32) uint32 {
	sum := counts[0] + counts[1]
	if sum != 5 && (sum != 4 || counts[0] == counts[1]) {
		return 0
	}

	heavy := 1
	if counts[0] > counts[1] {
		heavy = 0
	}

	m := masks[heavy]

	return m ^ (m & (m - 1))
}

// SkipMask returns the skip mask of gpc, zero for gpcs that are not present.
func (t *Topology) SkipMask(gpc int) uint32 {
	if gpc < 0 || gpc >= len(t.GpcSkipMask) {
		return 0
	}

	return t.GpcSkipMask[gpc]
}

// Clone returns a deep copy.
func (t *Topology) Clone() *Topology {
	c := *t
	c.GpcTpcCount = append([]int(nil), t.GpcTpcCount...)
	c.GpcZcbCount = append([]int(nil), t.GpcZcbCount...)
	c.GpcPpcCount = append([]int(nil), t.GpcPpcCount...)
	c.GpcSkipMask = append([]uint32(nil), t.GpcSkipMask...)
	for pes := range t.PesTpcCount {
		c.PesTpcCount[pes] = append([]int(nil), t.PesTpcCount[pes]...)
		c.PesTpcMask[pes] = append([]uint32(nil), t.PesTpcMask[pes]...)
	}

	return &c
}
