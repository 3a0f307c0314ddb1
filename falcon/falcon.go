// Package falcon drives the embedded context-switch microcontrollers: it
// loads their instruction and data memories, starts them and implements the
// mailbox command protocol used to talk to them.
package falcon

import (
	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/regbus"
)

// A Falcon is one microcontroller reachable through a register bus.
type Falcon struct {
	name string
	base uint32
	bus  regbus.Bus
}

// New creates a Falcon whose registers start at base.
func New(name string, base uint32, bus regbus.Bus) *Falcon {
	return &Falcon{name: name, base: base, bus: bus}
}

// Name returns the name of the falcon.
func (f *Falcon) Name() string {
	return f.name
}

func (f *Falcon) reg(off uint32) uint32 {
	return f.base + off
}

// ImemBlocks returns the size of the instruction memory in 256-byte blocks.
func (f *Falcon) ImemBlocks() uint32 {
	return hw.HwcfgImemSize(f.bus.Read32(f.reg(hw.FalconHwcfg)))
}

// LoadDMEM writes data into data memory from offset 0.
func (f *Falcon) LoadDMEM(data []uint32) {
	f.bus.Write32(f.reg(hw.FalconDmemc),
		hw.FalconMemc(0, 0, hw.FalconMemcAutoIncWrite))

	for _, w := range data {
		f.bus.Write32(f.reg(hw.FalconDmemd), w)
	}
}

// LoadIMEM writes code into instruction memory from offset 0. Every
// 256-byte block gets the next tag, and the tail is zero padded through the
// following block boundary without running past the end of IMEM.
func (f *Falcon) LoadIMEM(code []uint32) {
	imemBytes := f.ImemBlocks() * hw.FalconImemBlockBytes

	f.bus.Write32(f.reg(hw.FalconImemc),
		hw.FalconMemc(0, 0, hw.FalconMemcAutoIncWrite))

	tag := uint32(0)
	f.bus.Write32(f.reg(hw.FalconImemt), tag)

	for i, w := range code {
		if i != 0 && i%hw.FalconImemWordsPerBlock == 0 {
			tag++
			f.bus.Write32(f.reg(hw.FalconImemt), tag)
		}

		f.bus.Write32(f.reg(hw.FalconImemd), w)
	}

	padStart := uint32(len(code)) * 4
	padEnd := padStart + (hw.FalconImemBlockBytes - padStart%hw.FalconImemBlockBytes) +
		hw.FalconImemBlockBytes

	for i := padStart; i < padEnd && i < imemBytes; i += 4 {
		if i != 0 && i%hw.FalconImemBlockBytes == 0 {
			tag++
			f.bus.Write32(f.reg(hw.FalconImemt), tag)
		}

		f.bus.Write32(f.reg(hw.FalconImemd), 0)
	}
}

func (f *Falcon) clearRequireCtx() {
	f.bus.Write32(f.reg(hw.FalconDmactl), 0)
}

func (f *Falcon) startCPU() {
	f.bus.Write32(f.reg(hw.FalconCpuctl), hw.FalconCpuctlStartCPU)
}
