package gpusim

import (
	"sync"

	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/regbus"
)

// Trap is a method fault injected into the device.
type Trap struct {
	Intr   uint32
	Class  uint32
	Method uint32
	Subch  uint32
	DataLo uint32
	DataHi uint32
	Ctx    uint32
}

// Device is the register interface of a simulated graphics engine. Every
// register reads back what was last written unless the device gives it a
// side effect.
type Device struct {
	*regbus.RegFile

	chip Chip
	fecs *FecsModel

	lock          sync.Mutex
	intr          uint32
	comptagClears int
}

// NewDevice creates a device answering for chip.
func NewDevice(chip Chip) *Device {
	d := &Device{
		RegFile: regbus.NewRegFile(),
		chip:    chip,
	}

	d.fecs = newFecsModel(d.RegFile, chip)

	d.pokeCapabilities()
	d.mapInterrupts()
	d.mapPowerMode()
	d.mapComptagClear()

	return d
}

// Chip returns the description the device was built from.
func (d *Device) Chip() Chip {
	return d.chip
}

func (d *Device) pokeCapabilities() {
	c := d.chip
	r := d.RegFile

	r.Poke(hw.TopNumGpcs, c.MaxGpcs)
	r.Poke(hw.TopTpcPerGpc, c.MaxTpcPerGpc)
	r.Poke(hw.TopNumFbps, c.MaxFbps)
	r.Poke(hw.RingEnumGpc, uint32(len(c.Gpcs)))
	r.Poke(hw.RingEnumFbp, c.Fbps)

	for gpc, g := range c.Gpcs {
		r.Poke(hw.Gpc0FsGpc+hw.GpcOffset(gpc), hw.FsGpc(uint32(g.TpcCount()), g.Zculls))
		for pes, m := range g.PesTpcMask {
			r.Poke(hw.PesTpcMask(gpc, pes), m)
		}
	}

	r.Poke(hw.Gpc0ZcullTotalRAMSize, c.ZcullAliquots)
	r.Poke(hw.LtcCbcParam,
		hw.CbcParam(c.ComptagsPerCacheline, c.CachelineShift, c.SlicesPerFbp))

	hwcfg := hw.Hwcfg(c.ImemBlocks, c.DmemBlocks)
	r.Poke(hw.FecsBase+hw.FalconHwcfg, hwcfg)
	r.Poke(hw.GpccsBase+hw.FalconHwcfg, hwcfg)

	r.Poke(hw.McEnable, hw.McEnablePgraph|hw.McEnableBlg|hw.McEnablePerfmon)
}

// mapInterrupts makes the interrupt status write-one-to-clear.
func (d *Device) mapInterrupts() {
	d.RegFile.MapIO(hw.GrIntr, hw.GrIntr,
		func(uint32) uint32 {
			d.lock.Lock()
			defer d.lock.Unlock()

			return d.intr
		},
		func(_ uint32, v uint32) {
			d.lock.Lock()
			defer d.lock.Unlock()

			d.intr &^= v
		})
}

// mapPowerMode completes power mode requests at once.
func (d *Device) mapPowerMode() {
	d.RegFile.MapIO(hw.GrFePwrMode, hw.GrFePwrMode, nil, func(addr uint32, v uint32) {
		d.RegFile.Poke(addr, v&^hw.GrFePwrModeReqMask)
	})
}

// mapComptagClear completes compression tag clears at once.
func (d *Device) mapComptagClear() {
	d.RegFile.MapIO(hw.LtcCbcCtrl1, hw.LtcCbcCtrl1, nil, func(addr uint32, v uint32) {
		if v&hw.CbcCtrl1ClearActive == 0 {
			return
		}

		d.lock.Lock()
		d.comptagClears++
		d.lock.Unlock()

		d.RegFile.Poke(addr, v&^hw.CbcCtrl1ClearActive)
	})
}

// RaiseInterrupt latches the trap registers and sets the interrupt bits.
func (d *Device) RaiseInterrupt(t Trap) {
	r := d.RegFile

	r.Poke(hw.GrTrappedAddr, hw.TrappedAddr(t.Method>>2, t.Subch))
	r.Poke(hw.GrTrappedDataLo, t.DataLo)
	r.Poke(hw.GrTrappedDataHi, t.DataHi)
	r.Poke(hw.FeObjectTable(t.Subch), t.Class)
	r.Poke(hw.FecsCurrentCtx, t.Ctx)

	d.lock.Lock()
	d.intr |= t.Intr
	d.lock.Unlock()
}

// PendingInterrupts returns the interrupt bits not yet cleared.
func (d *Device) PendingInterrupts() uint32 {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.intr
}

// SetEngineBusy makes the engine report busy, or idle again.
func (d *Device) SetEngineBusy(busy bool) {
	var v uint32
	if busy {
		v = hw.GrEngineStatusBusy
	}

	d.RegFile.Poke(hw.GrEngineStatus, v)
}

// ComptagClears returns how many compression tag clears were started.
func (d *Device) ComptagClears() int {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.comptagClears
}

// Fecs returns the model of the context-switch firmware.
func (d *Device) Fecs() *FecsModel {
	return d.fecs
}

var _ regbus.Bus = (*Device)(nil)
