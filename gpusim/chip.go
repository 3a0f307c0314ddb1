// Package gpusim simulates the register interface of a gk20a graphics
// engine and the host channel layer around it, so that the engine can be
// booted and exercised without hardware.
package gpusim

import (
	"fmt"
	"math/bits"

	"github.com/sarchlab/grengine/hw"
)

// Gpc describes one gpc of a chip.
type Gpc struct {
	// PesTpcMask is the set of tpcs behind each of the two PES units.
	PesTpcMask [hw.PesPerGpc]uint32 `yaml:"pes_tpc_mask" toml:"pes_tpc_mask"`
	Zculls     uint32               `yaml:"zculls" toml:"zculls"`
}

// TpcCount returns the number of tpcs of the gpc.
func (g Gpc) TpcCount() int {
	n := 0
	for _, m := range g.PesTpcMask {
		n += bits.OnesCount32(m)
	}

	return n
}

// ImageSizes are the context image sizes the simulated FECS reports.
type ImageSizes struct {
	Golden uint32 `yaml:"golden" toml:"golden"`
	Zcull  uint32 `yaml:"zcull" toml:"zcull"`
	Pm     uint32 `yaml:"pm" toml:"pm"`
}

// Chip is the description the simulated device answers capability queries
// from.
type Chip struct {
	Name string `yaml:"name" toml:"name"`

	MaxGpcs      uint32 `yaml:"max_gpcs" toml:"max_gpcs"`
	MaxTpcPerGpc uint32 `yaml:"max_tpc_per_gpc" toml:"max_tpc_per_gpc"`
	MaxFbps      uint32 `yaml:"max_fbps" toml:"max_fbps"`
	Fbps         uint32 `yaml:"fbps" toml:"fbps"`
	Gpcs         []Gpc  `yaml:"gpcs" toml:"gpcs"`

	ZcullAliquots        uint32 `yaml:"zcull_aliquots" toml:"zcull_aliquots"`
	ComptagsPerCacheline uint32 `yaml:"comptags_per_cacheline" toml:"comptags_per_cacheline"`
	CachelineShift       uint32 `yaml:"cacheline_shift" toml:"cacheline_shift"`
	SlicesPerFbp         uint32 `yaml:"slices_per_fbp" toml:"slices_per_fbp"`

	ImemBlocks uint32     `yaml:"imem_blocks" toml:"imem_blocks"`
	DmemBlocks uint32     `yaml:"dmem_blocks" toml:"dmem_blocks"`
	Images     ImageSizes `yaml:"images" toml:"images"`
}

// Gk20a describes the gk20a: one gpc with one tpc and one fbp.
func Gk20a() Chip {
	return Chip{
		Name:         "gk20a",
		MaxGpcs:      1,
		MaxTpcPerGpc: 1,
		MaxFbps:      1,
		Fbps:         1,
		Gpcs: []Gpc{
			{PesTpcMask: [hw.PesPerGpc]uint32{0x1, 0x0}, Zculls: 1},
		},
		ZcullAliquots:        0x200,
		ComptagsPerCacheline: 0x10,
		CachelineShift:       2,
		SlicesPerFbp:         1,
		ImemBlocks:           0x40,
		DmemBlocks:           0x20,
		Images: ImageSizes{
			Golden: 0x8000,
			Zcull:  0x1000,
			Pm:     0x1000,
		},
	}
}

// TpcCount returns the number of tpcs over all gpcs.
func (c Chip) TpcCount() int {
	n := 0
	for _, g := range c.Gpcs {
		n += g.TpcCount()
	}

	return n
}

// Validate checks that the description is something the register map can
// express.
func (c Chip) Validate() error {
	if len(c.Gpcs) == 0 {
		return fmt.Errorf("chip %q: no gpc", c.Name)
	}

	if uint32(len(c.Gpcs)) > c.MaxGpcs || c.MaxGpcs > hw.MaxGpcs {
		return fmt.Errorf("chip %q: %d gpcs, max %d", c.Name, len(c.Gpcs), c.MaxGpcs)
	}

	if c.Fbps == 0 || c.Fbps > c.MaxFbps {
		return fmt.Errorf("chip %q: %d fbps, max %d", c.Name, c.Fbps, c.MaxFbps)
	}

	for i, g := range c.Gpcs {
		n := g.TpcCount()
		if n == 0 || uint32(n) > c.MaxTpcPerGpc || c.MaxTpcPerGpc > hw.MaxTpcPerGpc {
			return fmt.Errorf("chip %q: gpc %d has %d tpcs, max %d",
				c.Name, i, n, c.MaxTpcPerGpc)
		}

		if g.PesTpcMask[0]&g.PesTpcMask[1] != 0 {
			return fmt.Errorf("chip %q: gpc %d pes masks overlap", c.Name, i)
		}

		if g.Zculls > hw.MaxZcullPerGpc {
			return fmt.Errorf("chip %q: gpc %d has %d zculls", c.Name, i, g.Zculls)
		}
	}

	if c.Images.Golden < hw.CtxHeaderBytes || c.Images.Golden%4 != 0 {
		return fmt.Errorf("chip %q: golden image size %#x", c.Name, c.Images.Golden)
	}

	return nil
}
